package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// MaxTelegramFileSize is the largest attachment a bot may download.
const MaxTelegramFileSize = 52428800

// validModels only lists models that answer with verbose_json, which carries
// the detected language.
var (
	validModels    = []string{"whisper-1"}
	validLogLevels = []string{"trace", "debug", "info", "warn", "error", "fatal", "panic"}
)

type Config struct {
	TelegramToken string `env:"TELEGRAM_TOKEN,required"`
	OpenAIAPIKey  string `env:"OPENAI_API_KEY,required"`
	OpenAIBaseURL string `env:"OPENAI_BASE_URL"`

	// Self-hosted Bot API server; printf patterns taking token and method/path.
	TelegramAPIEndpoint  string `env:"TELEGRAM_API_ENDPOINT"`
	TelegramFileEndpoint string `env:"TELEGRAM_FILE_ENDPOINT"`
	BotWorkers           int    `env:"BOT_WORKERS" envDefault:"8"`

	RedisURL string `env:"REDIS_URL" envDefault:"redis://localhost:6379"`

	TranscribeModel     string        `env:"WHISPER_API_MODEL" envDefault:"whisper-1"`
	TranscribeTimeout   time.Duration `env:"WHISPER_API_TIMEOUT" envDefault:"30s"`
	TranscribeAttempts  int           `env:"WHISPER_API_MAX_RETRIES" envDefault:"3"`
	TranscribeRateLimit int           `env:"WHISPER_API_RATE_LIMIT" envDefault:"50"` // requests per minute
	PriorityLanguages   []string      `env:"PRIORITY_LANGUAGES" envDefault:"ru,en"`

	MaxFileSize      int64         `env:"MAX_FILE_SIZE" envDefault:"52428800"`
	AudioCacheTTL    time.Duration `env:"AUDIO_CACHE_TTL" envDefault:"1h"`
	LanguageCacheTTL time.Duration `env:"LANGUAGE_CACHE_TTL" envDefault:"720h"`
	TranscodeAudio   bool          `env:"TRANSCODE_AUDIO" envDefault:"true"`
	TempDir          string        `env:"TEMP_DIR"`

	HTTPAddr     string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`

	AuthToken string `env:"AUTH_TOKEN"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
}

// Overrides holds CLI flag values that take priority over env vars.
type Overrides struct {
	EnvFile  string
	HTTPAddr string
	LogLevel string
	RedisURL string
	TempDir  string
}

// Load reads configuration from .env file, environment variables, and CLI overrides.
// Priority: CLI flags > environment variables > .env file > struct defaults.
func Load(overrides Overrides) (*Config, error) {
	envFile := overrides.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if overrides.HTTPAddr != "" {
		cfg.HTTPAddr = overrides.HTTPAddr
	}
	if overrides.LogLevel != "" {
		cfg.LogLevel = overrides.LogLevel
	}
	if overrides.RedisURL != "" {
		cfg.RedisURL = overrides.RedisURL
	}
	if overrides.TempDir != "" {
		cfg.TempDir = overrides.TempDir
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges. All problems are reported together.
func (c *Config) Validate() error {
	var errs []error

	if c.MaxFileSize <= 0 {
		errs = append(errs, errors.New("MAX_FILE_SIZE must be positive"))
	}
	if c.MaxFileSize > MaxTelegramFileSize {
		errs = append(errs, fmt.Errorf("MAX_FILE_SIZE cannot exceed %d bytes", MaxTelegramFileSize))
	}
	if c.TranscribeTimeout <= 0 {
		errs = append(errs, errors.New("WHISPER_API_TIMEOUT must be positive"))
	}
	if c.TranscribeAttempts <= 0 {
		errs = append(errs, errors.New("WHISPER_API_MAX_RETRIES must be positive"))
	}
	if c.TranscribeRateLimit <= 0 {
		errs = append(errs, errors.New("WHISPER_API_RATE_LIMIT must be positive"))
	}
	if c.BotWorkers <= 0 {
		errs = append(errs, errors.New("BOT_WORKERS must be positive"))
	}
	if c.AudioCacheTTL <= 0 || c.LanguageCacheTTL <= 0 {
		errs = append(errs, errors.New("cache TTLs must be positive"))
	}
	if !slices.Contains(validModels, c.TranscribeModel) {
		errs = append(errs, fmt.Errorf("WHISPER_API_MODEL must be one of: %s", strings.Join(validModels, ", ")))
	}
	if !slices.Contains(validLogLevels, strings.ToLower(c.LogLevel)) {
		errs = append(errs, fmt.Errorf("LOG_LEVEL must be one of: %s", strings.Join(validLogLevels, ", ")))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}
