package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Supported map backends.
const (
	BackendBaidu = "baidu"
	BackendBing  = "bing"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Map      MapConfig
	Upstream UpstreamConfig
	Session  SessionConfig
	CORS     CORSConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string
	Env  string
}

// MapConfig selects the map backend and its layer collection endpoint.
type MapConfig struct {
	Backend       string
	BaiduLayerAPI string
	BingLayerAPI  string
}

// LayerAPI returns the collection endpoint of the configured backend.
func (m MapConfig) LayerAPI() string {
	if m.Backend == BackendBing {
		return m.BingLayerAPI
	}
	return m.BaiduLayerAPI
}

// UpstreamConfig holds settings for the external layer and auth endpoints.
type UpstreamConfig struct {
	AuthAPI      string
	Timeout      time.Duration
	MaxIdleConns int
}

// SessionConfig holds console session settings.
type SessionConfig struct {
	IdleTimeout time.Duration
}

// CORSConfig holds CORS configuration.
type CORSConfig struct {
	Origins []string
}

// Flags registers the command-line flags Load understands.
// Flags take precedence over environment variables.
func Flags(fs *pflag.FlagSet) {
	fs.String("env-file", ".env", "optional dotenv file loaded before reading the environment")
	fs.String("port", "", "HTTP listen port (overrides PORT)")
	fs.String("backend", "", "map backend: baidu or bing (overrides MAP_BACKEND)")
}

// Load reads configuration from environment variables.
// It uses viper to read values and provides sensible defaults for development.
// fs may be nil; when given, its flags are bound over the environment.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	// Load the dotenv file first so its values reach AutomaticEnv.
	envFile := ".env"
	if fs != nil {
		if f := fs.Lookup("env-file"); f != nil {
			envFile = f.Value.String()
		}
	}
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	}

	// Set defaults for development
	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("MAP_BACKEND", BackendBaidu)
	v.SetDefault("BAIDU_LAYER_API", "http://localhost:3100/layers")
	v.SetDefault("BING_LAYER_API", "http://localhost:3100/bing/layers")
	v.SetDefault("AUTH_API", "http://localhost:3100/auth")
	v.SetDefault("UPSTREAM_TIMEOUT", "10s")
	v.SetDefault("UPSTREAM_MAX_IDLE_CONNS", 10)
	v.SetDefault("SESSION_IDLE_TIMEOUT", "12h")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000,http://localhost:3001")

	// Bind environment variables
	v.AutomaticEnv()

	if fs != nil {
		if err := bindFlag(v, fs, "PORT", "port"); err != nil {
			return nil, err
		}
		if err := bindFlag(v, fs, "MAP_BACKEND", "backend"); err != nil {
			return nil, err
		}
	}

	// Build configuration
	cfg := &Config{
		Server: ServerConfig{
			Port: v.GetString("PORT"),
			Env:  v.GetString("ENV"),
		},
		Map: MapConfig{
			Backend:       strings.ToLower(strings.TrimSpace(v.GetString("MAP_BACKEND"))),
			BaiduLayerAPI: v.GetString("BAIDU_LAYER_API"),
			BingLayerAPI:  v.GetString("BING_LAYER_API"),
		},
		Upstream: UpstreamConfig{
			AuthAPI:      v.GetString("AUTH_API"),
			Timeout:      v.GetDuration("UPSTREAM_TIMEOUT"),
			MaxIdleConns: v.GetInt("UPSTREAM_MAX_IDLE_CONNS"),
		},
		Session: SessionConfig{
			IdleTimeout: v.GetDuration("SESSION_IDLE_TIMEOUT"),
		},
		CORS: CORSConfig{
			Origins: parseOrigins(v.GetString("CORS_ORIGINS")),
		},
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// bindFlag binds a flag to a key only when the flag was set explicitly,
// so an unset flag never masks the environment.
func bindFlag(v *viper.Viper, fs *pflag.FlagSet, key, name string) error {
	f := fs.Lookup(name)
	if f == nil || !f.Changed {
		return nil
	}
	if err := v.BindPFlag(key, f); err != nil {
		return fmt.Errorf("failed to bind flag --%s: %w", name, err)
	}
	return nil
}

// Validate checks that required configuration is present and valid.
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("PORT is required")
	}

	// Validate map config
	switch c.Map.Backend {
	case BackendBaidu, BackendBing:
	default:
		return fmt.Errorf("MAP_BACKEND must be %q or %q, got %q", BackendBaidu, BackendBing, c.Map.Backend)
	}
	if c.Map.LayerAPI() == "" {
		if c.Map.Backend == BackendBing {
			return fmt.Errorf("BING_LAYER_API is required")
		}
		return fmt.Errorf("BAIDU_LAYER_API is required")
	}

	// Validate upstream config
	if c.Upstream.AuthAPI == "" {
		return fmt.Errorf("AUTH_API is required")
	}
	if c.Upstream.Timeout <= 0 {
		return fmt.Errorf("UPSTREAM_TIMEOUT must be positive")
	}
	if c.Upstream.MaxIdleConns < 1 {
		return fmt.Errorf("UPSTREAM_MAX_IDLE_CONNS must be at least 1")
	}

	// Validate session config
	if c.Session.IdleTimeout <= 0 {
		return fmt.Errorf("SESSION_IDLE_TIMEOUT must be positive")
	}

	// Validate CORS config
	if len(c.CORS.Origins) == 0 {
		return fmt.Errorf("CORS_ORIGINS is required")
	}

	return nil
}

// parseOrigins splits a comma-separated string of origins into a slice.
func parseOrigins(origins string) []string {
	if origins == "" {
		return []string{}
	}

	parts := strings.Split(origins, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
