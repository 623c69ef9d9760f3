package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds the process configuration read from the environment.
type Config struct {
	GeminiAPIKey string `env:"GEMINI_API_KEY"`
	OpenAIAPIKey string `env:"OPENAI_API_KEY"`
	SettingsPath string `env:"DICETALE_SETTINGS" envDefault:"settings.yaml"`
	SaveDir      string `env:"DICETALE_SAVE_DIR" envDefault:".saves"`
	LogFile      string `env:"DICETALE_LOG_FILE" envDefault:"dicetale.log"`
	ChronicleDB  string `env:"DICETALE_CHRONICLE_DB" envDefault:"chronicle.db"`
	Debug        bool   `env:"DICETALE_DEBUG"`
}

// LoadConfig loads an optional .env file and then the environment.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// APIKey returns the key from the environment for a provider kind.
func (c *Config) APIKey(kind string) string {
	switch kind {
	case KindGemini:
		return c.GeminiAPIKey
	case KindOpenAI:
		return c.OpenAIAPIKey
	}
	return ""
}
