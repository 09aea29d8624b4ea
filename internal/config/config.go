// Package config loads elara-memory settings from defaults, a YAML file and
// ELARA_MEMORY_* environment variables.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/m-mizutani/goerr/v2"
	"github.com/spf13/viper"

	"github.com/rcliao/elara-memory/internal/logging"
	"github.com/rcliao/elara-memory/internal/store"
)

// EnvPrefix is the prefix of environment overrides, e.g. ELARA_MEMORY_DB_PATH.
const EnvPrefix = "ELARA_MEMORY"

type Config struct {
	DBPath   string      `yaml:"db_path" mapstructure:"db_path"`
	LogLevel string      `yaml:"log_level" mapstructure:"log_level"`
	Output   string      `yaml:"output" mapstructure:"output"`
	Prune    PruneConfig `yaml:"prune" mapstructure:"prune"`
	Inbox    InboxConfig `yaml:"inbox" mapstructure:"inbox"`
}

type PruneConfig struct {
	Days          int `yaml:"days" mapstructure:"days"`
	MinImportance int `yaml:"min_importance" mapstructure:"min_importance"`
}

type InboxConfig struct {
	Dir      string        `yaml:"dir" mapstructure:"dir"`
	Pattern  string        `yaml:"pattern" mapstructure:"pattern"`
	Debounce time.Duration `yaml:"debounce" mapstructure:"debounce"`
}

func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	base := filepath.Join(home, ".elara-memory")
	return &Config{
		DBPath:   filepath.Join(base, "memory.db"),
		LogLevel: "warn",
		Output:   "json",
		Prune: PruneConfig{
			Days:          store.DefaultPruneDays,
			MinImportance: store.DefaultPruneMinImportance,
		},
		Inbox: InboxConfig{
			Dir:      filepath.Join(base, "inbox"),
			Pattern:  "*.json",
			Debounce: 500 * time.Millisecond,
		},
	}
}

// Load reads configuration. When file is empty the usual locations are
// searched and a missing file is not an error.
func Load(file string) (*Config, error) {
	cfg := DefaultConfig()
	v := viper.New()

	v.SetDefault("db_path", cfg.DBPath)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("output", cfg.Output)
	v.SetDefault("prune.days", cfg.Prune.Days)
	v.SetDefault("prune.min_importance", cfg.Prune.MinImportance)
	v.SetDefault("inbox.dir", cfg.Inbox.Dir)
	v.SetDefault("inbox.pattern", cfg.Inbox.Pattern)
	v.SetDefault("inbox.debounce", cfg.Inbox.Debounce)

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("elara-memory")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		for _, dir := range searchDirs() {
			v.AddConfigPath(dir)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, goerr.Wrap(err, "read config", goerr.V("file", file))
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, goerr.Wrap(err, "decode config")
	}
	cfg.DBPath = expandHome(cfg.DBPath)
	cfg.Inbox.Dir = expandHome(cfg.Inbox.Dir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// searchDirs lists the per-user directories holding elara-memory.yaml, in
// lookup order.
func searchDirs() []string {
	var dirs []string
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		dirs = append(dirs, filepath.Join(xdg, "elara-memory"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, ".config", "elara-memory"))
	}
	return dirs
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return goerr.New("config: db_path is required")
	}
	if _, ok := logging.ParseLevel(c.LogLevel); !ok {
		return goerr.New("config: invalid log_level", goerr.V("log_level", c.LogLevel))
	}
	switch c.Output {
	case "json", "yaml":
	default:
		return goerr.New("config: output must be json or yaml", goerr.V("output", c.Output))
	}
	if c.Prune.Days < 0 {
		return goerr.New("config: prune.days must not be negative", goerr.V("days", c.Prune.Days))
	}
	if !doublestar.ValidatePattern(c.Inbox.Pattern) {
		return goerr.New("config: invalid inbox.pattern", goerr.V("pattern", c.Inbox.Pattern))
	}
	if c.Inbox.Debounce < 0 {
		return goerr.New("config: inbox.debounce must not be negative", goerr.V("debounce", c.Inbox.Debounce))
	}
	return nil
}
