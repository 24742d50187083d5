package lifecycle

import (
	"os"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDaemonizeChildBranchReturnsReadyWriterOnFD3(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()

	require.NoError(t, syscall.Dup2(int(w.Fd()), readyFD))
	w.Close()
	defer os.NewFile(readyFD, "ready").Close()

	t.Setenv(daemonEnv, "1")

	rw, err := Daemonize()
	require.NoError(t, err)
	require.NotNil(t, rw.f)

	require.NoError(t, rw.Signal())

	buf := make([]byte, 1)
	_, err = r.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, byte(readyByte), buf[0])
}

func TestForegroundSignalIsNoop(t *testing.T) {
	rw := Foreground()
	assert.NoError(t, rw.Signal())
}

func TestNilReadyWriterSignalIsNoop(t *testing.T) {
	var rw *ReadyWriter
	assert.NoError(t, rw.Signal())
}

func TestReadyWriterSignalWritesReadyByte(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)

	rw := &ReadyWriter{f: w}
	require.NoError(t, rw.Signal())

	buf := make([]byte, 1)
	_, err = r.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, byte(readyByte), buf[0])
}

func TestExitCodeOfNilErrorIsZero(t *testing.T) {
	assert.Equal(t, 0, exitCode(nil))
}
