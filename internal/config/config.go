package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config contains all runtime settings for the brand studio service.
type Config struct {
	BindAddr         string        `mapstructure:"APP_BIND_ADDR" validate:"required"`
	ShutdownTimeout  time.Duration `mapstructure:"APP_SHUTDOWN_TIMEOUT" validate:"gte=1s"`
	LogLevel         string        `mapstructure:"APP_LOG_LEVEL" validate:"oneof=debug info warn warning error"`
	MetricsNamespace string        `mapstructure:"APP_METRICS_NAMESPACE" validate:"required"`
	AllowAnyOrigin   bool          `mapstructure:"APP_ALLOW_ANY_ORIGIN"`

	Executor ExecutorConfig `mapstructure:",squash"`
	Redis    RedisConfig    `mapstructure:",squash"`
	Polling  PollingConfig  `mapstructure:",squash"`
	Autosave AutosaveConfig `mapstructure:",squash"`
	Settings Settings       `mapstructure:",squash"`

	DatabaseURL string `mapstructure:"DATABASE_URL"`
}

type ExecutorConfig struct {
	Mode        string        `mapstructure:"EXECUTOR_MODE" validate:"oneof=http queue failover mock"`
	HTTPURL     string        `mapstructure:"EXECUTOR_HTTP_URL" validate:"omitempty,url"`
	FallbackURL string        `mapstructure:"EXECUTOR_FALLBACK_URL" validate:"omitempty,url"`
	Timeout     time.Duration `mapstructure:"EXECUTOR_TIMEOUT" validate:"gt=0"`
	UserID      string        `mapstructure:"EXECUTOR_USER_ID" validate:"required"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"REDIS_ADDR"`
	Password string `mapstructure:"REDIS_PASSWORD"`
	DB       int    `mapstructure:"REDIS_DB" validate:"gte=0"`
}

type PollingConfig struct {
	BaseDelay   time.Duration `mapstructure:"POLL_BASE_DELAY" validate:"gt=0"`
	Growth      float64       `mapstructure:"POLL_GROWTH" validate:"gte=1"`
	MaxDelay    time.Duration `mapstructure:"POLL_MAX_DELAY" validate:"gtefield=BaseDelay"`
	MaxAttempts int           `mapstructure:"POLL_MAX_ATTEMPTS" validate:"gte=1"`
	GraceWindow time.Duration `mapstructure:"POLL_GRACE_WINDOW" validate:"gte=0"`
}

type AutosaveConfig struct {
	Debounce      time.Duration `mapstructure:"AUTOSAVE_DEBOUNCE" validate:"gt=0"`
	MaxRetries    int           `mapstructure:"AUTOSAVE_MAX_RETRIES" validate:"gte=0"`
	RetryDelay    time.Duration `mapstructure:"AUTOSAVE_RETRY_DELAY" validate:"gt=0"`
	StatusDisplay time.Duration `mapstructure:"AUTOSAVE_STATUS_DISPLAY" validate:"gt=0"`
}

// Settings are the user generation preferences forwarded with every task.
type Settings struct {
	Language             string `mapstructure:"SETTINGS_LANGUAGE" json:"language" validate:"required"`
	TotalPostsPerMonth   int    `mapstructure:"SETTINGS_TOTAL_POSTS_PER_MONTH" json:"totalPostsPerMonth" validate:"gte=1,lte=500"`
	TextGenerationModel  string `mapstructure:"SETTINGS_TEXT_MODEL" json:"textGenerationModel" validate:"required"`
	ImageGenerationModel string `mapstructure:"SETTINGS_IMAGE_MODEL" json:"imageGenerationModel" validate:"required"`
}

// Payload renders s the way the executor expects it inside a task payload.
func (s Settings) Payload() map[string]any {
	return map[string]any{
		"language":             s.Language,
		"totalPostsPerMonth":   s.TotalPostsPerMonth,
		"textGenerationModel":  s.TextGenerationModel,
		"imageGenerationModel": s.ImageGenerationModel,
	}
}

var defaults = map[string]any{
	"APP_BIND_ADDR":         ":8080",
	"APP_SHUTDOWN_TIMEOUT":  "15s",
	"APP_LOG_LEVEL":         "info",
	"APP_METRICS_NAMESPACE": "brandstudio",
	"APP_ALLOW_ANY_ORIGIN":  false,

	"EXECUTOR_MODE":         "mock",
	"EXECUTOR_HTTP_URL":     "",
	"EXECUTOR_FALLBACK_URL": "",
	"EXECUTOR_TIMEOUT":      "30s",
	"EXECUTOR_USER_ID":      "local-user",

	"REDIS_ADDR":     "",
	"REDIS_PASSWORD": "",
	"REDIS_DB":       0,

	"POLL_BASE_DELAY":   "1s",
	"POLL_GROWTH":       1.5,
	"POLL_MAX_DELAY":    "30s",
	"POLL_MAX_ATTEMPTS": 10,
	"POLL_GRACE_WINDOW": "5s",

	"AUTOSAVE_DEBOUNCE":       "2s",
	"AUTOSAVE_MAX_RETRIES":    3,
	"AUTOSAVE_RETRY_DELAY":    "1s",
	"AUTOSAVE_STATUS_DISPLAY": "3s",

	"SETTINGS_LANGUAGE":              "English",
	"SETTINGS_TOTAL_POSTS_PER_MONTH": 12,
	"SETTINGS_TEXT_MODEL":            "gemini-2.5-flash",
	"SETTINGS_IMAGE_MODEL":           "imagen-4.0-generate-001",

	"DATABASE_URL": "",
}

// Load reads environment variables and applies safe defaults. Durations
// take Go duration syntax ("1500ms", "2s").
func Load() (Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	var cfg Config
	err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		trimStringsHook(),
		mapstructure.StringToTimeDurationHookFunc(),
	)))
	if err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and cross-field rules.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	switch c.Executor.Mode {
	case "http":
		if c.Executor.HTTPURL == "" {
			return fmt.Errorf("EXECUTOR_HTTP_URL is required when EXECUTOR_MODE=http")
		}
	case "queue":
		if c.Redis.Addr == "" {
			return fmt.Errorf("REDIS_ADDR is required when EXECUTOR_MODE=queue")
		}
	case "failover":
		if c.Executor.HTTPURL == "" {
			return fmt.Errorf("EXECUTOR_HTTP_URL is required when EXECUTOR_MODE=failover")
		}
		if c.Executor.FallbackURL == "" && c.Redis.Addr == "" {
			return fmt.Errorf("EXECUTOR_MODE=failover needs EXECUTOR_FALLBACK_URL or REDIS_ADDR")
		}
	}
	return nil
}

func trimStringsHook() mapstructure.DecodeHookFuncKind {
	return func(from, _ reflect.Kind, data any) (any, error) {
		if s, ok := data.(string); ok && from == reflect.String {
			return strings.TrimSpace(s), nil
		}
		return data, nil
	}
}
