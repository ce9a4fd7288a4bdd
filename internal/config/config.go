package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

var knownWeakSecrets = []string{
	"change-me", "dev-secret-change-me", "secret", "admin", "password",
}

type Config struct {
	Port         int    `env:"PORT" envDefault:"3005"`
	BaseURL      string `env:"ORBITAL_BASE_URL" envDefault:"http://localhost:3005"`
	ServerURL    string `env:"ORBITAL_SERVER_URL" envDefault:"http://localhost:3005"`
	ClientID     string `env:"ORBITAL_CLIENT_ID" envDefault:"orbital-cli"`
	DatabaseURL  string `env:"ORBITAL_DATABASE_URL" envDefault:"file:orbital.db?_foreign_keys=on"`
	RedisURL     string `env:"ORBITAL_REDIS_URL" envDefault:"redis://localhost:6379/0"`
	OpenAIAPIKey string `env:"ORBITAL_OPENAI_API_KEY"`
	OpenAIModel  string `env:"ORBITAL_MODEL" envDefault:"gpt-4o-mini"`
	ConfigDir    string `env:"ORBITAL_CONFIG_DIR"`
	LogLevel     string `env:"ORBITAL_LOG_LEVEL" envDefault:"info"`
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// TokenFile returns the path of the credential file. The directory defaults
// to ~/.orbital when ORBITAL_CONFIG_DIR is unset.
func (c *Config) TokenFile() (string, error) {
	dir := c.ConfigDir
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		dir = filepath.Join(home, ".orbital")
	}
	return filepath.Join(dir, "token.json"), nil
}

// VerificationURI is the page operators visit to enter their user code.
func (c *Config) VerificationURI() string {
	return c.BaseURL + "/device"
}

func (c *Config) Validate(isProduction bool) error {
	if isProduction {
		if strings.HasPrefix(c.RedisURL, "redis://") {
			log.Warn().Msg("ORBITAL_REDIS_URL uses redis:// (not TLS) in production: consider using rediss://")
		}
		if !strings.HasPrefix(c.BaseURL, "https://") {
			log.Warn().Msg("ORBITAL_BASE_URL is not https in production: user codes travel in the clear")
		}
		for _, weak := range knownWeakSecrets {
			if c.OpenAIAPIKey == weak {
				return fmt.Errorf("ORBITAL_OPENAI_API_KEY is a known weak placeholder; set a real key")
			}
		}
	}
	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
