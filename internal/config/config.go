package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/teambition/rrule-go"
	"gopkg.in/yaml.v3"

	"github.com/ppamtools/shift-assigner/pkg/core/assigner"
	"github.com/ppamtools/shift-assigner/pkg/core/pipeline"
)

// Database drivers
const (
	DriverPostgres     = "postgres"
	DriverGormPostgres = "gorm-postgres"
	DriverGormSQLite   = "gorm-sqlite"
)

// DatabaseURLEnv overrides database.dsn when set
const DatabaseURLEnv = "DATABASE_URL"

// Database selects the store backend
type Database struct {
	Driver string `yaml:"driver" validate:"required,oneof=postgres gorm-postgres gorm-sqlite"`
	DSN    string `yaml:"dsn" validate:"required"`
}

// Pipeline controls where run artifacts are written
type Pipeline struct {
	Dir        string `yaml:"dir" validate:"required"`
	StatusFile string `yaml:"statusFile" validate:"required"`
}

// Bot is the engine configuration plus the daemon schedule
type Bot struct {
	assigner.Config `yaml:",inline"`

	// Schedule is an RRULE; the daemon runs a batch at each occurrence
	Schedule string `yaml:"schedule,omitempty"`
}

// Config represents the application configuration
type Config struct {
	Database Database `yaml:"database"`
	Pipeline Pipeline `yaml:"pipeline"`
	Bot      Bot      `yaml:"bot"`
}

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Default returns a config with every optional value filled in
func Default() Config {
	return Config{
		Pipeline: Pipeline{
			Dir:        "logs",
			StatusFile: pipeline.DefaultStatusFile,
		},
		Bot: Bot{Config: assigner.DefaultConfig()},
	}
}

// LoadWithEnv loads <env>_bot_config.yaml, looking in the current directory first and then
// in the user's home directory. A .env file in the current directory is loaded beforehand.
func LoadWithEnv(env string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	configPath, err := findConfigFile(env + "_bot_config.yaml")
	if err != nil {
		return nil, fmt.Errorf("failed to find config file: %w", err)
	}

	return LoadFromPath(configPath)
}

// LoadFromPath loads and validates the configuration from a specific path
func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if url := os.Getenv(DatabaseURLEnv); url != "" {
		cfg.Database.DSN = url
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate validates the configuration struct and checks rrule syntax
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	if cfg.Bot.Schedule != "" {
		if _, err := rrule.StrToRRule(cfg.Bot.Schedule); err != nil {
			return fmt.Errorf("invalid rrule in bot.schedule: %w", err)
		}
	}

	return nil
}

// findConfigFile searches for name in the current directory and the home directory
func findConfigFile(name string) (string, error) {
	if _, err := os.Stat(name); err == nil {
		return name, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	homeConfigPath := filepath.Join(homeDir, name)
	if _, err := os.Stat(homeConfigPath); err == nil {
		return homeConfigPath, nil
	}

	return "", fmt.Errorf("config file %s not found in current directory or home directory", name)
}
