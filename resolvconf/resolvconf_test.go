package resolvconf

import (
	"net/netip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeResolvConf(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "resolv.conf")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestParseBasic(t *testing.T) {
	path := writeResolvConf(t, "nameserver 8.8.8.8\nnameserver 8.8.4.4\noptions ndots:2\n")

	res, err := Parse(path)
	require.NoError(t, err)
	assert.Equal(t, []netip.Addr{
		netip.MustParseAddr("8.8.8.8"),
		netip.MustParseAddr("8.8.4.4"),
	}, res.Servers)
	assert.Equal(t, 2, res.NDots)
}

func TestParseCapsAtThree(t *testing.T) {
	path := writeResolvConf(t, "nameserver 1.1.1.1\nnameserver 2.2.2.2\nnameserver 3.3.3.3\nnameserver 4.4.4.4\n")

	res, err := Parse(path)
	require.NoError(t, err)
	assert.Len(t, res.Servers, 3)
}

func TestParseIPv6ScopedAndBracketed(t *testing.T) {
	path := writeResolvConf(t, "nameserver [::1]\nnameserver fe80::1%eth0\n")

	res, err := Parse(path)
	require.NoError(t, err)
	require.Len(t, res.Servers, 2)
	assert.Equal(t, "eth0", res.Servers[1].Zone())
}

func TestParseDefaultNDots(t *testing.T) {
	path := writeResolvConf(t, "nameserver 8.8.8.8\n")

	res, err := Parse(path)
	require.NoError(t, err)
	assert.Equal(t, 1, res.NDots)
}

func TestParseIgnoresUnknownOptions(t *testing.T) {
	path := writeResolvConf(t, "nameserver 8.8.8.8\noptions timeout:5 attempts:2 rotate\n")

	res, err := Parse(path)
	require.NoError(t, err)
	assert.Equal(t, 1, res.NDots)
}
