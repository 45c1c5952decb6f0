package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port           string        `yaml:"port"`
	RemoteBaseURL  string        `yaml:"remote_base_url"`
	RemoteTimeout  time.Duration `yaml:"remote_timeout"`
	JWTSecret      string        `yaml:"jwt_secret"`
	DatabaseURL    string        `yaml:"database_url"`
	AMQPURL        string        `yaml:"amqp_url"`
	SafetyTimeout  time.Duration `yaml:"safety_timeout"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	Verbose        bool          `yaml:"verbose"`
}

// Load reads an optional .env file, then the environment, then overlays the
// YAML file at path when path is non-empty.
func Load(path string) (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg := &Config{
		Port:           getEnv("PORT", "8082"),
		RemoteBaseURL:  getEnv("REMOTE_BASE_URL", "http://localhost:5000/api/"),
		RemoteTimeout:  getDuration("REMOTE_TIMEOUT", 15*time.Second),
		JWTSecret:      getEnv("JWT_SECRET", "dev-secret-change-in-production"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		AMQPURL:        os.Getenv("AMQP_URL"),
		SafetyTimeout:  getDuration("SAFETY_TIMEOUT", 5*time.Second),
		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173")),
		Verbose:        getBool("LOG_VERBOSE", false),
	}

	if path != "" {
		if err := overlayFile(cfg, path); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// overlayFile applies every non-empty field of the YAML document at path.
func overlayFile(cfg *Config, path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	var file Config
	if err := yaml.Unmarshal(b, &file); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	if file.Port != "" {
		cfg.Port = file.Port
	}
	if file.RemoteBaseURL != "" {
		cfg.RemoteBaseURL = file.RemoteBaseURL
	}
	if file.RemoteTimeout > 0 {
		cfg.RemoteTimeout = file.RemoteTimeout
	}
	if file.JWTSecret != "" {
		cfg.JWTSecret = file.JWTSecret
	}
	if file.DatabaseURL != "" {
		cfg.DatabaseURL = file.DatabaseURL
	}
	if file.AMQPURL != "" {
		cfg.AMQPURL = file.AMQPURL
	}
	if file.SafetyTimeout > 0 {
		cfg.SafetyTimeout = file.SafetyTimeout
	}
	if len(file.AllowedOrigins) > 0 {
		cfg.AllowedOrigins = file.AllowedOrigins
	}
	if file.Verbose {
		cfg.Verbose = true
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func getBool(key string, fallback bool) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes":
		return true
	case "0", "false", "no":
		return false
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
