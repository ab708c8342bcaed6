package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port           string   `yaml:"port"`
	Env            string   `yaml:"env"`
	StoreBackend   string   `yaml:"store_backend"` // mongo or memory
	MongoURI       string   `yaml:"mongodb_uri"`
	MongoDB        string   `yaml:"mongodb_database"`
	PostgresURL    string   `yaml:"postgres_url"`
	JWTSecret      string   `yaml:"jwt_secret"`
	OrgTimezone    string   `yaml:"org_timezone"`
	DefaultLocale  string   `yaml:"default_locale"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Load reads the optional YAML file named by CONFIG_FILE, then lets
// environment variables override it, then fills defaults.
func Load() (*Config, error) {
	cfg := &Config{}
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	cfg.Port = getEnv("PORT", orDefault(cfg.Port, "3000"))
	cfg.Env = getEnv("ENV", orDefault(cfg.Env, "development"))
	cfg.StoreBackend = getEnv("STORE_BACKEND", orDefault(cfg.StoreBackend, "mongo"))
	cfg.MongoURI = getEnv("MONGODB_URI", orDefault(cfg.MongoURI, "mongodb://localhost:27017"))
	cfg.MongoDB = getEnv("MONGODB_DATABASE", orDefault(cfg.MongoDB, "corpchat"))
	cfg.PostgresURL = getEnv("POSTGRES_URL", cfg.PostgresURL)
	cfg.JWTSecret = getEnv("JWT_SECRET", cfg.JWTSecret)
	cfg.OrgTimezone = getEnv("ORG_TIMEZONE", orDefault(cfg.OrgTimezone, "America/Sao_Paulo"))
	cfg.DefaultLocale = getEnv("DEFAULT_LOCALE", orDefault(cfg.DefaultLocale, "en"))
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		cfg.AllowedOrigins = splitList(v)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreBackend {
	case "mongo", "memory":
	default:
		return fmt.Errorf("invalid STORE_BACKEND %q (want mongo or memory)", c.StoreBackend)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	return nil
}

// loadFile parses a YAML config, expanding ${VAR} placeholders from the environment.
func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	content := os.Expand(string(data), func(key string) string {
		if v, ok := os.LookupEnv(key); ok {
			return v
		}
		return "${" + key + "}"
	})
	if err := yaml.Unmarshal([]byte(content), cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func orDefault(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
