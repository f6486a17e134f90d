// Package config loads service settings from defaults, an optional config.yaml,
// an optional .env file and the process environment, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"go.uber.org/zap/zapcore"
)

const (
	EnvPrefix = "CLOUDCART_"

	defaultConfigFile = "config.yaml"
	defaultEnvFile    = ".env"
)

type Config struct {
	Environment string `koanf:"environment"`

	HTTP struct {
		Port              int           `koanf:"port"`
		Origins           []string      `koanf:"origins"`
		ReadHeaderTimeout time.Duration `koanf:"readheadertimeout"`
	} `koanf:"http"`

	Shutdown struct {
		Timeout time.Duration `koanf:"timeout"`
	} `koanf:"shutdown"`

	Log struct {
		Level string `koanf:"level"`
	} `koanf:"log"`

	Database struct {
		URL string `koanf:"url"`
	} `koanf:"database"`

	Seed struct {
		Enabled bool `koanf:"enabled"`
	} `koanf:"seed"`

	Metrics struct {
		Enabled bool   `koanf:"enabled"`
		Token   string `koanf:"token"`
	} `koanf:"metrics"`

	RateLimit struct {
		Writes int           `koanf:"writes"`
		Window time.Duration `koanf:"window"`
	} `koanf:"ratelimit"`
}

func defaults() map[string]any {
	return map[string]any{
		"environment":            "local",
		"http.port":              8080,
		"http.origins":           []string{"*"},
		"http.readheadertimeout": "5s",
		"shutdown.timeout":       "10s",
		"log.level":              "info",
		"database.url":           "",
		"seed.enabled":           true,
		"metrics.enabled":        true,
		"metrics.token":          "",
		"ratelimit.writes":       0,
		"ratelimit.window":       "1m",
	}
}

// Sources overrides where Load looks for files. Empty fields fall back to the
// working-directory defaults.
type Sources struct {
	ConfigFile string
	EnvFile    string
}

func Load() (Config, error) {
	return LoadFrom(Sources{})
}

func LoadFrom(src Sources) (Config, error) {
	if src.ConfigFile == "" {
		src.ConfigFile = defaultConfigFile
	}
	if src.EnvFile == "" {
		src.EnvFile = defaultEnvFile
	}

	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return Config{}, fmt.Errorf("load defaults: %w", err)
	}

	if err := k.Load(file.Provider(src.ConfigFile), yaml.Parser()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load %s: %w", src.ConfigFile, err)
	}

	dotenv, err := godotenv.Read(src.EnvFile)
	switch {
	case err == nil:
		if err := k.Load(confmap.Provider(fromEnvMap(dotenv), "."), nil); err != nil {
			return Config{}, fmt.Errorf("load %s: %w", src.EnvFile, err)
		}
	case !errors.Is(err, os.ErrNotExist):
		return Config{}, fmt.Errorf("read %s: %w", src.EnvFile, err)
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envPair), nil); err != nil {
		return Config{}, fmt.Errorf("load env: %w", err)
	}

	// PORT and ENVIRONMENT are what the platform sets for the service. The process
	// environment wins over .env for them too.
	if err := k.Load(confmap.Provider(legacyEnv(dotenv), "."), nil); err != nil {
		return Config{}, fmt.Errorf("load legacy env: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port out of range: %d", c.HTTP.Port)
	}
	if c.HTTP.ReadHeaderTimeout <= 0 {
		return fmt.Errorf("http.readheadertimeout must be positive: %v", c.HTTP.ReadHeaderTimeout)
	}
	if c.Shutdown.Timeout <= 0 {
		return fmt.Errorf("shutdown.timeout must be positive: %v", c.Shutdown.Timeout)
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if c.Database.URL != "" && !isPostgresURL(c.Database.URL) {
		return errors.New("database.url must start with postgres:// or postgresql://")
	}
	if c.RateLimit.Writes < 0 {
		return fmt.Errorf("ratelimit.writes must not be negative: %d", c.RateLimit.Writes)
	}
	if c.RateLimit.Writes > 0 && c.RateLimit.Window <= 0 {
		return fmt.Errorf("ratelimit.window must be positive: %v", c.RateLimit.Window)
	}
	return nil
}

func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.HTTP.Port)
}

func (c Config) String() string {
	return fmt.Sprintf("environment=%s http.port=%d log.level=%s database=%s seed=%t metrics=%t ratelimit.writes=%d",
		c.Environment, c.HTTP.Port, c.Log.Level, maskURL(c.Database.URL), c.Seed.Enabled, c.Metrics.Enabled, c.RateLimit.Writes)
}

func isPostgresURL(u string) bool {
	return strings.HasPrefix(u, "postgres://") || strings.HasPrefix(u, "postgresql://")
}

func maskURL(u string) string {
	if u == "" {
		return "memory"
	}
	if _, host, ok := strings.Cut(u, "@"); ok {
		return "****@" + host
	}
	return "****"
}

// listKeys are read from the environment as comma-separated values.
var listKeys = map[string]bool{
	"http.origins": true,
}

// envKey maps CLOUDCART_HTTP_PORT to http.port.
func envKey(key string) string {
	key = strings.TrimPrefix(key, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(key), "_", ".")
}

func envPair(key, value string) (string, any) {
	k := envKey(key)
	if listKeys[k] {
		return k, splitList(value)
	}
	return k, value
}

func splitList(v string) []string {
	out := []string{}
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func fromEnvMap(vars map[string]string) map[string]any {
	out := make(map[string]any, len(vars))
	for k, v := range vars {
		if !strings.HasPrefix(k, EnvPrefix) {
			continue
		}
		key, val := envPair(k, v)
		out[key] = val
	}
	return out
}

func legacyEnv(dotenv map[string]string) map[string]any {
	lookup := func(name string) string {
		if v := os.Getenv(name); v != "" {
			return v
		}
		return dotenv[name]
	}

	out := map[string]any{}
	if v := lookup("PORT"); v != "" {
		out["http.port"] = v
	}
	if v := lookup("ENVIRONMENT"); v != "" {
		out["environment"] = v
	}
	return out
}
