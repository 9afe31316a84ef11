package config

import (
	"flag"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		// Addr is the metrics/health listen address.
		Addr string `yaml:"addr"`
	} `yaml:"server"`
	Storage struct {
		DBPath string `yaml:"db_path"`
	} `yaml:"storage"`
	Remote struct {
		// BaseURL receives outbound requests; WSURL serves the inbound
		// event feed.
		BaseURL string `yaml:"base_url"`
		WSURL   string `yaml:"ws_url"`
	} `yaml:"remote"`
	Sync struct {
		SendBackoff        string  `yaml:"send_backoff"`
		RatePerSec         float64 `yaml:"rate_per_sec"`
		Burst              int     `yaml:"burst"`
		EventQueueCapacity int     `yaml:"event_queue_capacity"`
	} `yaml:"sync"`
	Retention struct {
		Enabled bool   `yaml:"enabled"`
		Cron    string `yaml:"cron"`
		MaxAge  string `yaml:"max_age"`
	} `yaml:"retention"`
	User struct {
		ID   string `yaml:"id"`
		Name string `yaml:"name"`
	} `yaml:"user"`
	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// SendBackoff parses the configured backoff, defaulting to 3s.
func (c *Config) SendBackoff() time.Duration {
	if d, err := time.ParseDuration(c.Sync.SendBackoff); err == nil && d > 0 {
		return d
	}
	return 3 * time.Second
}

// RetentionMaxAge parses the tombstone age limit, defaulting to 30 days.
func (c *Config) RetentionMaxAge() time.Duration {
	if d, err := time.ParseDuration(c.Retention.MaxAge); err == nil && d > 0 {
		return d
	}
	return 30 * 24 * time.Hour
}

// Load reads the YAML file (if path is non-empty), then applies env
// overrides. Missing file with an explicit path is an error; defaults
// cover the rest.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	cfg.Server.Addr = ":9600"
	cfg.Storage.DBPath = "./chatsync-db"

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("CHATSYNC_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("CHATSYNC_DB_PATH"); v != "" {
		cfg.Storage.DBPath = v
	}
	if v := os.Getenv("CHATSYNC_REMOTE_URL"); v != "" {
		cfg.Remote.BaseURL = v
	}
	if v := os.Getenv("CHATSYNC_WS_URL"); v != "" {
		cfg.Remote.WSURL = v
	}
	if v := os.Getenv("CHATSYNC_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// ParseCommandFlags registers and parses the daemon's flags, returning the
// values plus which ones were explicitly set so they can win over file and
// env configuration.
func ParseCommandFlags() (addr, dbPath, cfgPath string, set map[string]bool) {
	a := flag.String("addr", "", "metrics/health listen address")
	d := flag.String("db", "", "database directory")
	c := flag.String("config", "", "path to YAML config")
	flag.Parse()
	set = map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return *a, *d, *c, set
}

// ResolveConfigPath picks the config file: the flag when set, otherwise
// the CHATSYNC_CONFIG env var, otherwise none.
func ResolveConfigPath(flagVal string, flagSet bool) string {
	if flagSet {
		return flagVal
	}
	return os.Getenv("CHATSYNC_CONFIG")
}
