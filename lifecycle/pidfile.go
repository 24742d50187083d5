package lifecycle

import (
	"fmt"
	"os"
	"path/filepath"
)

// PidFileName is the fixed pidfile name inside the config directory.
const PidFileName = "aardvark.pid"

// WritePidFile writes the current process's PID to <configDir>/aardvark.pid.
func WritePidFile(configDir string) error {
	path := filepath.Join(configDir, PidFileName)
	return os.WriteFile(path, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0o644)
}

// RemovePidFile removes the pidfile, ignoring a not-exist error since clean
// shutdown may race a manual removal.
func RemovePidFile(configDir string) error {
	path := filepath.Join(configDir, PidFileName)
	err := os.Remove(path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
