package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/xhit/go-str2duration/v2"
	"gopkg.in/yaml.v3"

	"schedfill/internal/fill"
	"schedfill/internal/surface"
)

// BrowserConfig describes how to reach the scheduling page.
type BrowserConfig struct {
	// RemoteURL is the DevTools endpoint of an already running browser
	// (started with --remote-debugging-port). Empty launches Chromium.
	RemoteURL string `yaml:"remote_url" json:"remote_url"`
	// UserDataDir is the profile directory of a launched browser; keeping
	// it lets the login survive between runs.
	UserDataDir string `yaml:"user_data_dir" json:"user_data_dir"`
	ExecPath    string `yaml:"exec_path" json:"exec_path"`
	Headless    bool   `yaml:"headless" json:"headless"`
}

// TimingsConfig holds the dialog waits as duration strings ("5s", "300ms").
type TimingsConfig struct {
	OpenTimeout  string `yaml:"open_timeout" json:"open_timeout"`
	CloseTimeout string `yaml:"close_timeout" json:"close_timeout"`
	PollInterval string `yaml:"poll_interval" json:"poll_interval"`
	RenderDelay  string `yaml:"render_delay" json:"render_delay"`
	EventDelay   string `yaml:"event_delay" json:"event_delay"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the control panel.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address of the control panel.
	Listen string `yaml:"listen" json:"listen"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// URL is the scheduling page to fill.
	URL string `yaml:"url" json:"url"`

	Browser   BrowserConfig     `yaml:"browser" json:"browser"`
	Selectors surface.Selectors `yaml:"selectors" json:"selectors"`
	Timings   TimingsConfig     `yaml:"timings" json:"timings"`

	// Refresh is a cron expression for watch mode (e.g. "*/30 * * * *").
	Refresh string `yaml:"refresh" json:"refresh"`

	// Timezone is the IANA zone schedule times are in, used by export.
	Timezone string `yaml:"timezone" json:"timezone"`

	// DumpDir, if set, receives a screenshot for every failed event.
	DumpDir string `yaml:"dump_dir" json:"dump_dir"`

	// CacheDir stores downloaded schedule inputs.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// control panel endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:    "127.0.0.1:8080",
		LogLevel:  "info",
		Selectors: surface.DefaultSelectors(),
		Timings: TimingsConfig{
			OpenTimeout:  "5s",
			CloseTimeout: "5s",
			PollInterval: "100ms",
			RenderDelay:  "300ms",
			EventDelay:   "500ms",
		},
		Refresh:  "*/30 * * * *",
		Timezone: "Europe/Zagreb",
		CacheDir: "./var/input-cache",
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	d := DefaultConfig()
	if c.Listen == "" {
		c.Listen = d.Listen
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	c.Selectors = c.Selectors.WithDefaults()

	fillStr := func(v *string, def string) {
		if *v == "" {
			*v = def
		}
	}
	fillStr(&c.Timings.OpenTimeout, d.Timings.OpenTimeout)
	fillStr(&c.Timings.CloseTimeout, d.Timings.CloseTimeout)
	fillStr(&c.Timings.PollInterval, d.Timings.PollInterval)
	fillStr(&c.Timings.RenderDelay, d.Timings.RenderDelay)
	fillStr(&c.Timings.EventDelay, d.Timings.EventDelay)

	if c.Refresh == "" {
		c.Refresh = d.Refresh
	}
	if c.Timezone == "" {
		c.Timezone = d.Timezone
	}
	if c.CacheDir == "" {
		c.CacheDir = d.CacheDir
	}
}

// FillTimings parses the configured durations.
func (c *Config) FillTimings() (fill.Timings, error) {
	var (
		t    fill.Timings
		errs []error
	)
	parse := func(name, raw string, dst *time.Duration, allowZero bool) {
		d, err := str2duration.ParseDuration(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("timings.%s: %w", name, err))
			return
		}
		if d < 0 || (d == 0 && !allowZero) {
			errs = append(errs, fmt.Errorf("timings.%s: must be positive, got %q", name, raw))
			return
		}
		*dst = d
	}
	parse("open_timeout", c.Timings.OpenTimeout, &t.OpenTimeout, false)
	parse("close_timeout", c.Timings.CloseTimeout, &t.CloseTimeout, false)
	parse("poll_interval", c.Timings.PollInterval, &t.PollInterval, false)
	parse("render_delay", c.Timings.RenderDelay, &t.RenderDelay, true)
	parse("event_delay", c.Timings.EventDelay, &t.EventDelay, true)

	if err := errors.Join(errs...); err != nil {
		return fill.Timings{}, fmt.Errorf("config: %w", err)
	}
	return t, nil
}

// Location resolves Timezone, falling back to time.Local.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// header is written above the YAML of every saved config.
const header = "# schedfill configuration. Durations accept units from ms to d (\"1d12h\").\n"

// Load reads the YAML config at path and fills in defaults. A missing file
// is created from DefaultConfig, so the first run leaves an editable config
// behind; the defaults are returned together with any error writing it.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config: path is empty")
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		cfg := DefaultConfig()
		return cfg, Save(path, cfg)
	case err != nil:
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.Normalize()
	if _, err := cfg.FillTimings(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save normalizes cfg and replaces the file at path with it. The file is
// readable by the owner only since it may carry basic auth credentials.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config: path is empty")
	}
	if cfg == nil {
		return errors.New("config: nil config")
	}
	cfg.Normalize()

	body, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: encode: %w", err)
	}
	if err := writeAtomic(path, append([]byte(header), body...), 0o600); err != nil {
		return fmt.Errorf("config: save %s: %w", path, err)
	}
	return nil
}

// writeAtomic writes data next to path and renames it into place, so a
// crash never leaves a half-written config.
func writeAtomic(path string, data []byte, perm os.FileMode) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if err = tmp.Chmod(perm); err != nil {
		return err
	}
	if _, err = tmp.Write(data); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
