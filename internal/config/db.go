// Package config loads the server configuration: a config.json file beside
// the executable (or an explicit --config path) with FIREGRES_* environment
// overrides on top.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// ConfigFileName is the default file looked up next to the executable and in
// the working directory.
const ConfigFileName = "config.json"

// DB holds the connection parameters for the backing database.
type DB struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	DB       string `mapstructure:"db"`
	SSLMode  string `mapstructure:"sslmode"`
}

// Config is the full server configuration.
type Config struct {
	DB DB `mapstructure:"db"`
}

// ConnString renders the DB section as a postgres:// URL.
func (c *Config) ConnString() string {
	u := url.URL{
		Scheme: "postgres",
		Host:   c.DB.Host + ":" + strconv.Itoa(c.DB.Port),
		Path:   "/" + c.DB.DB,
	}
	if c.DB.Username != "" {
		if c.DB.Password != "" {
			u.User = url.UserPassword(c.DB.Username, c.DB.Password)
		} else {
			u.User = url.User(c.DB.Username)
		}
	}
	q := url.Values{}
	q.Set("sslmode", c.DB.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// Load reads the configuration. path may name a specific file; when empty,
// config.json is searched beside the executable and in the working
// directory. A missing file is not an error: defaults and environment
// variables (FIREGRES_DB_HOST etc.) still apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("json")

	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.username", "postgres")
	v.SetDefault("db.password", "")
	v.SetDefault("db.db", "postgres")
	v.SetDefault("db.sslmode", "disable")

	v.SetEnvPrefix("FIREGRES")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else {
		v.SetConfigName(strings.TrimSuffix(ConfigFileName, ".json"))
		if exe, err := os.Executable(); err == nil {
			v.AddConfigPath(filepath.Dir(exe))
		}
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}
