package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

type Config struct {
	ListenAddress string `toml:"ListenAddress" yaml:"listen"`
	DataDir       string `toml:"DataDir" yaml:"dataDir"`
	// HTTP server timeouts, in seconds.
	ReadTimeout  int `toml:"ReadTimeout" yaml:"readTimeout"`
	WriteTimeout int `toml:"WriteTimeout" yaml:"writeTimeout"`
	IdleTimeout  int `toml:"IdleTimeout" yaml:"idleTimeout"`

	Genesis       Genesis       `toml:"genesis" yaml:"genesis"`
	Auth          Auth          `toml:"auth" yaml:"auth"`
	RateLimit     RateLimit     `toml:"rate_limit" yaml:"rateLimit"`
	Observability Observability `toml:"observability" yaml:"observability"`
	Logging       Logging       `toml:"logging" yaml:"logging"`
}

// Default returns the configuration written when no file exists.
func Default() *Config {
	return &Config{
		ListenAddress: ":8080",
		DataDir:       "./escrow-data",
		ReadTimeout:   15,
		WriteTimeout:  15,
		IdleTimeout:   60,
		Auth: Auth{
			Enabled:             true,
			HMACSecretEnv:       "ESCROW_JWT_SECRET",
			ClockSkewSeconds:    120,
			AllowAnonymousReads: true,
		},
		RateLimit: RateLimit{RequestsPerMinute: 120, Burst: 20},
		Observability: Observability{
			ServiceName:  "escrowd",
			Metrics:      true,
			OTLPInsecure: true,
			LogRequests:  true,
			EventLog:     "events.db",
		},
		Logging: Logging{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 28,
		},
	}
}

// Load reads the configuration at path. Files ending in .yaml or .yml are
// decoded as YAML; everything else as TOML. A missing file is created with
// defaults in TOML form.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	} else if err != nil {
		return nil, err
	}

	cfg := Default()
	if isYAML(path) {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()
		if err := yaml.NewDecoder(file).Decode(cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	} else {
		meta, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("config file %s has unknown key %s", path, undecoded[0].String())
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}

func (c *Config) applyEnv() {
	if name := strings.TrimSpace(c.Auth.HMACSecretEnv); name != "" {
		if secret := strings.TrimSpace(os.Getenv(name)); secret != "" {
			c.Auth.HMACSecret = secret
		}
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

// EventLogPath resolves the event archive location, or "" when disabled.
func (c *Config) EventLogPath() string {
	path := strings.TrimSpace(c.Observability.EventLog)
	if path == "" || path == ":memory:" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.DataDir, path)
}

// StatePath is the LevelDB directory holding escrow state.
func (c *Config) StatePath() string {
	return filepath.Join(c.DataDir, "state")
}

func seconds(v int) time.Duration { return time.Duration(v) * time.Second }

func (c *Config) ReadTimeoutDuration() time.Duration  { return seconds(c.ReadTimeout) }
func (c *Config) WriteTimeoutDuration() time.Duration { return seconds(c.WriteTimeout) }
func (c *Config) IdleTimeoutDuration() time.Duration  { return seconds(c.IdleTimeout) }

// ClockSkew is the JWT validation leeway.
func (a Auth) ClockSkew() time.Duration { return seconds(a.ClockSkewSeconds) }
