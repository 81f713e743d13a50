// Package config loads kpiq settings from YAML with environment overrides.
package config

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	kpiqerrors "github.com/Robertstar2000/TallmanDashboard-sub007/pkg/errors"
	"github.com/Robertstar2000/TallmanDashboard-sub007/pkg/log"
	"github.com/Robertstar2000/TallmanDashboard-sub007/pkg/pool"
	"github.com/Robertstar2000/TallmanDashboard-sub007/pkg/tlsutil"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "KPIQ_"

// Duration is a time.Duration written as a Go duration string in YAML.
type Duration time.Duration

// UnmarshalYAML accepts "30s" style strings and bare seconds.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := parseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML writes the duration string.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(s)
}

// Config is the full kpiq configuration.
type Config struct {
	HTTP HTTPConfig `yaml:"http"`
	Log  LogConfig  `yaml:"log"`

	// ExecTimeout bounds a whole request; zero disables it.
	ExecTimeout Duration `yaml:"exec_timeout"`

	// MaxConcurrency caps requests in flight; zero means no cap.
	MaxConcurrency int `yaml:"max_concurrency"`

	Networked NetworkedConfig `yaml:"networked"`
	FileBased FileBasedConfig `yaml:"filebased"`
	Test      TestConfig      `yaml:"test"`
}

type HTTPConfig struct {
	Addr string    `yaml:"addr"`
	TLS  TLSConfig `yaml:"tls"`
}

// TLSConfig turns on HTTPS for the API.
type TLSConfig struct {
	CertFile   string   `yaml:"cert_file"`
	KeyFile    string   `yaml:"key_file"`
	SelfSigned bool     `yaml:"self_signed"`
	Hosts      []string `yaml:"hosts"`
}

// Options converts the section for tlsutil.
func (t TLSConfig) Options() tlsutil.Config {
	return tlsutil.Config{
		CertFile:   t.CertFile,
		KeyFile:    t.KeyFile,
		SelfSigned: t.SelfSigned,
		Hosts:      t.Hosts,
	}
}

type LogConfig struct {
	Level      string            `yaml:"level"`
	Format     string            `yaml:"format"`
	Categories map[string]string `yaml:"categories"`
	Caller     bool              `yaml:"caller"`
}

// NetworkedConfig describes the P21 server.
type NetworkedConfig struct {
	Enabled      bool              `yaml:"enabled"`
	Driver       string            `yaml:"driver"`
	Host         string            `yaml:"host"`
	Port         int               `yaml:"port"`
	Instance     string            `yaml:"instance"`
	Database     string            `yaml:"database"`
	User         string            `yaml:"user"`
	Password     string            `yaml:"password"`
	Params       map[string]string `yaml:"params"`
	DSN          string            `yaml:"dsn"`
	MaxOpenConns int               `yaml:"max_open_conns"`
	IdleTimeout  Duration          `yaml:"idle_timeout"`
}

// FileBasedConfig describes the POR Access file.
type FileBasedConfig struct {
	Enabled       bool     `yaml:"enabled"`
	Path          string   `yaml:"path"`
	Watch         bool     `yaml:"watch"`
	WatchDebounce Duration `yaml:"watch_debounce"`
	TablesCommand string   `yaml:"mdb_tables"`
	ExportCommand string   `yaml:"mdb_export"`
}

// TestConfig controls the embedded TEST-mode dataset.
type TestConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		HTTP:           HTTPConfig{Addr: ":8080"},
		Log:            LogConfig{Level: "info", Format: "text"},
		ExecTimeout:    Duration(30 * time.Second),
		MaxConcurrency: 64,
		Networked: NetworkedConfig{
			Driver:      pool.DriverSQLServer,
			Port:        1433,
			IdleTimeout: Duration(pool.DefaultConfig().IdleTimeout),
		},
		FileBased: FileBasedConfig{
			WatchDebounce: Duration(500 * time.Millisecond),
			TablesCommand: "mdb-tables",
			ExportCommand: "mdb-export",
		},
		Test: TestConfig{Enabled: true},
	}
}

// Load reads path over the defaults and applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return cfg, kpiqerrors.Wrapf(err, kpiqerrors.ErrCodeConfigParse, "open config %s", path).Err()
		}
		defer f.Close()
		if err := Decode(f, &cfg); err != nil {
			return cfg, kpiqerrors.Wrapf(err, kpiqerrors.ErrCodeConfigParse, "parse config %s", path).Err()
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// Decode reads YAML from r into cfg. Unknown keys are rejected.
func Decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.SetStrict(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return err
	}
	return nil
}

// ApplyEnv overrides fields from KPIQ_* variables. Secrets are expected to
// arrive this way rather than through the file.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	boolean := func(name string, dst *bool) error {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return envError(name, v, err)
		}
		*dst = b
		return nil
	}

	str("HTTP_ADDR", &c.HTTP.Addr)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)

	str("NETWORKED_DRIVER", &c.Networked.Driver)
	str("NETWORKED_HOST", &c.Networked.Host)
	str("NETWORKED_DATABASE", &c.Networked.Database)
	str("NETWORKED_USER", &c.Networked.User)
	str("NETWORKED_PASSWORD", &c.Networked.Password)
	str("NETWORKED_DSN", &c.Networked.DSN)
	str("FILEBASED_PATH", &c.FileBased.Path)

	if v, ok := lookup(EnvPrefix + "NETWORKED_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return envError("NETWORKED_PORT", v, err)
		}
		c.Networked.Port = port
	}
	if v, ok := lookup(EnvPrefix + "EXEC_TIMEOUT"); ok {
		d, err := parseDuration(v)
		if err != nil {
			return envError("EXEC_TIMEOUT", v, err)
		}
		c.ExecTimeout = Duration(d)
	}
	for name, dst := range map[string]*bool{
		"NETWORKED_ENABLED": &c.Networked.Enabled,
		"FILEBASED_ENABLED": &c.FileBased.Enabled,
		"TEST_ENABLED":      &c.Test.Enabled,
	} {
		if err := boolean(name, dst); err != nil {
			return err
		}
	}
	return nil
}

func envError(name, value string, err error) error {
	return kpiqerrors.Wrapf(err, kpiqerrors.ErrCodeConfigInvalid, "invalid %s%s=%q", EnvPrefix, name, value).
		WithField("variable", EnvPrefix+name).
		Err()
}

// Validate checks that enabled backends are usable.
func (c *Config) Validate() error {
	var problems []string

	if c.HTTP.Addr == "" {
		problems = append(problems, "http.addr is empty")
	}
	if (c.HTTP.TLS.CertFile == "") != (c.HTTP.TLS.KeyFile == "") {
		problems = append(problems, "http.tls needs both cert_file and key_file")
	}
	if c.ExecTimeout < 0 {
		problems = append(problems, "exec_timeout is negative")
	}
	if c.MaxConcurrency < 0 {
		problems = append(problems, "max_concurrency is negative")
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		problems = append(problems, err.Error())
	}
	for cat, level := range c.Log.Categories {
		if _, err := log.ParseLevel(level); err != nil {
			problems = append(problems, fmt.Sprintf("log.categories.%s: %v", cat, err))
		}
	}

	if c.Networked.Enabled {
		switch c.Networked.Driver {
		case "", pool.DriverSQLServer, pool.DriverPgx:
		default:
			problems = append(problems, fmt.Sprintf("networked.driver %q is not sqlserver or pgx", c.Networked.Driver))
		}
		if c.Networked.Host == "" && c.Networked.DSN == "" {
			problems = append(problems, "networked.host or networked.dsn is required")
		}
		if c.Networked.IdleTimeout < 0 {
			problems = append(problems, "networked.idle_timeout is negative")
		}
	}
	if c.FileBased.Enabled && c.FileBased.Path == "" {
		problems = append(problems, "filebased.path is required")
	}

	if len(problems) > 0 {
		return kpiqerrors.Newf(kpiqerrors.ErrCodeConfigInvalid, "invalid configuration: %s", strings.Join(problems, "; ")).
			WithField("problems", problems).
			Err()
	}
	return nil
}

// Server converts the networked section for the pool factory.
func (n NetworkedConfig) Server() pool.ServerConfig {
	return pool.ServerConfig{
		Driver:       n.Driver,
		Host:         n.Host,
		Port:         n.Port,
		Instance:     n.Instance,
		Database:     n.Database,
		User:         n.User,
		Password:     n.Password,
		Params:       n.Params,
		DSN:          n.DSN,
		MaxOpenConns: n.MaxOpenConns,
	}
}

// Logger builds the logger configuration. Validate has already checked the
// level names.
func (l LogConfig) Logger(out io.Writer) log.Config {
	level, _ := log.ParseLevel(l.Level)
	cfg := log.Config{
		DefaultLevel:  level,
		Output:        out,
		Format:        log.ParseFormat(l.Format),
		IncludeCaller: l.Caller,
	}
	if len(l.Categories) > 0 {
		cfg.CategoryLevels = make(map[log.Category]log.Level, len(l.Categories))
		for cat, name := range l.Categories {
			lv, _ := log.ParseLevel(name)
			cfg.CategoryLevels[log.Category(strings.ToLower(cat))] = lv
		}
	}
	return cfg
}
