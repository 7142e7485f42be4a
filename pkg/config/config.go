package config

import (
	"errors"
	"flag"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"

	"github.com/ahmedsaleh747/go-creative-utils/pkg/security"
)

// EnvPrefix marks environment variables that override file values.
// GRID_DATABASE__DSN sets database.dsn.
const EnvPrefix = "GRID_"

var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Auth     AuthConfig     `koanf:"auth"`
	Grid     GridConfig     `koanf:"grid"`
	Log      LogConfig      `koanf:"log"`

	// Source is the file the config was read from, if any.
	Source string `koanf:"-"`
}

type ServerConfig struct {
	Address string `koanf:"address"`
	// PublicURL is where the grid pages reach the REST backend. Empty means
	// the server's own address.
	PublicURL string `koanf:"public_url"`
}

type DatabaseConfig struct {
	Driver string `koanf:"driver"` // gorm or bun
	DSN    string `koanf:"dsn"`
	Seed   bool   `koanf:"seed"`
}

type AuthConfig struct {
	Tokens []TokenConfig `koanf:"tokens"`
}

type TokenConfig struct {
	Token  string `koanf:"token"`
	UserID int    `koanf:"user_id"`
	Roles  string `koanf:"roles"`
}

type GridConfig struct {
	PageSize  int    `koanf:"page_size"`
	Timezone  string `koanf:"timezone"`
	LoginPath string `koanf:"login_path"`
}

type LogConfig struct {
	Dev bool `koanf:"dev"`
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"server.address":  ":8080",
		"database.driver": "gorm",
		"database.dsn":    "grid.db",
		"database.seed":   false,
		"grid.page_size":  20,
		"grid.timezone":   "Local",
		"grid.login_path": "/login",
		"log.dev":         false,
	}
}

// FileForEnv names the config file of an environment, e.g. config-dev.yaml.
func FileForEnv(env string) string {
	return fmt.Sprintf("config-%s.yaml", env)
}

// Load reads defaults, then the file at path (yaml or toml by extension, skipped
// when path is empty), then GRID_ environment overrides.
func Load(path string) (*Config, error) {
	k, err := load(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Source = path
	return &cfg, nil
}

func load(path string) (*koanf.Koanf, error) {
	k := koanf.New(".")
	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		parser, err := parserFor(path)
		if err != nil {
			return nil, err
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}
	return k, nil
}

func parserFor(path string) (koanf.Parser, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Parser(), nil
	case ".toml":
		return toml.Parser(), nil
	}
	return nil, fmt.Errorf("%w: unsupported config format %q", ErrInvalid, path)
}

func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

// LoadFromFlags parses -env (default prod) and -config from args and loads the
// selected file. -config wins over -env.
func LoadFromFlags(fs *flag.FlagSet, args []string) (*Config, error) {
	envName := fs.String("env", "prod", "Specify the environment (dev or prod)")
	path := fs.String("config", "", "Path to a config file, overrides -env")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if *path == "" {
		*path = FileForEnv(*envName)
	}
	return Load(*path)
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "gorm", "bun":
	default:
		return fmt.Errorf("%w: database.driver must be gorm or bun, got %q", ErrInvalid, c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("%w: database.dsn is required", ErrInvalid)
	}
	if c.Grid.PageSize <= 0 {
		return fmt.Errorf("%w: grid.page_size must be positive", ErrInvalid)
	}
	for i, t := range c.Auth.Tokens {
		if t.Token == "" {
			return fmt.Errorf("%w: auth.tokens[%d] has no token", ErrInvalid, i)
		}
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// TokenTable maps the configured bearer tokens to their users.
func (c *Config) TokenTable() map[string]security.TokenUser {
	table := make(map[string]security.TokenUser, len(c.Auth.Tokens))
	for _, t := range c.Auth.Tokens {
		table[t.Token] = security.TokenUser{UserID: t.UserID, Roles: t.Roles}
	}
	return table
}

// Location resolves grid.timezone, used to display dates.
func (c *Config) Location() (*time.Location, error) {
	if c.Grid.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Grid.Timezone)
}

// Watch calls onChange with the reloaded config whenever the file at path
// changes. Reload errors are passed along with a nil config.
func Watch(path string, onChange func(*Config, error)) error {
	if path == "" {
		return fmt.Errorf("%w: no config file to watch", ErrInvalid)
	}
	return file.Provider(path).Watch(func(_ interface{}, err error) {
		if err != nil {
			onChange(nil, err)
			return
		}
		onChange(Load(path))
	})
}
