// Package settings loads the daemon's own tuning knobs: the forward
// timeout, the TCP idle timeout, the syslog tag, and the metrics
// bind address. These are never part of the per-network config directory
// the launcher writes; they're operator-controlled, optional, and loaded
// once at startup from a small TOML file.
package settings

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"dario.cat/mergo"
)

// Settings holds the daemon's own tuning knobs, as opposed to the
// per-network container/DNS-server data the launcher drops in ConfigDir.
type Settings struct {
	ForwardTimeout Duration `toml:"forward_timeout"`
	TCPIdleTimeout Duration `toml:"tcp_idle_timeout"`
	SyslogTag      string   `toml:"syslog_tag"`
	MetricsAddr    string   `toml:"metrics_addr"`
}

// Duration wraps time.Duration for TOML's string form ("2.5s").
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns the compiled-in tuning knobs used when no settings file
// is present, or when the file leaves a field unset.
func Defaults() Settings {
	return Settings{
		ForwardTimeout: Duration{2500 * time.Millisecond},
		TCPIdleTimeout: Duration{3 * time.Second},
		SyslogTag:      "aardvark-dns",
		MetricsAddr:    "",
	}
}

// Load reads path, if present, and merges it over Defaults(). A missing
// file is not an error: the daemon runs on defaults alone. A malformed
// file is.
func Load(path string) (Settings, error) {
	out := Defaults()

	if path == "" {
		return out, nil
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return out, nil
	}

	loaded := Settings{}
	if _, err := toml.DecodeFile(path, &loaded); err != nil {
		return Settings{}, fmt.Errorf("could not load settings file %s: %w", path, err)
	}

	if err := mergo.Merge(&loaded, out); err != nil {
		return Settings{}, fmt.Errorf("merge default settings: %w", err)
	}

	return loaded, nil
}
