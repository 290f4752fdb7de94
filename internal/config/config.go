package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `json:"server"`
	Database  DatabaseConfig  `json:"database"`
	Extractor ExtractorConfig `json:"extractor"`
	Quota     QuotaConfig     `json:"quota"`
	Chat      ChatConfig      `json:"chat"`
	Events    EventsConfig    `json:"events"`
	Metrics   MetricsConfig   `json:"metrics"`
	Auth      AuthConfig      `json:"auth"`
	AIEnabled bool            `json:"ai_enabled" mapstructure:"ai_enabled"`
}

type ServerConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"sslmode"`
}

type ExtractorConfig struct {
	APIKey              string        `json:"api_key" mapstructure:"api_key"`
	Model               string        `json:"model"`
	Temperature         float32       `json:"temperature"`
	MaxTokens           int           `json:"max_tokens" mapstructure:"max_tokens"`
	Timeout             time.Duration `json:"timeout"`
	ConfidenceThreshold float64       `json:"confidence_threshold" mapstructure:"confidence_threshold"`
}

type QuotaConfig struct {
	PerDay  int `json:"per_day" mapstructure:"per_day"`
	PerHour int `json:"per_hour" mapstructure:"per_hour"`
	// WarnBelow publishes a quota_warning event once remaining drops to
	// or under this value.
	WarnBelow int `json:"warn_below" mapstructure:"warn_below"`
}

type ChatConfig struct {
	IdleTimeout   time.Duration `json:"idle_timeout" mapstructure:"idle_timeout"`
	MessageWindow int           `json:"message_window" mapstructure:"message_window"`
	CompactBatch  int           `json:"compact_batch" mapstructure:"compact_batch"`
}

type EventsConfig struct {
	QueueSize int `json:"queue_size" mapstructure:"queue_size"`
}

type MetricsConfig struct {
	Port int `json:"port"`
}

type AuthConfig struct {
	SecretKey string `json:"secret_key" mapstructure:"secret_key"`
	Issuer    string `json:"issuer"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("json")

	// Add config paths
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Check for user config directory
	homeDir, err := os.UserHomeDir()
	if err == nil {
		viper.AddConfigPath(filepath.Join(homeDir, ".taskmind"))
	}

	setDefaults()

	// Read config
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		// No file is fine, defaults + env cover everything
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	loadEnvOverrides(&cfg)

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "localhost")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "taskmind")
	viper.SetDefault("database.database", "taskmind")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("extractor.model", "gpt-4o-mini")
	viper.SetDefault("extractor.temperature", 0.3)
	viper.SetDefault("extractor.max_tokens", 500)
	viper.SetDefault("extractor.timeout", 10*time.Second)
	viper.SetDefault("extractor.confidence_threshold", 0.6)
	viper.SetDefault("quota.per_day", 100)
	viper.SetDefault("quota.per_hour", 20)
	viper.SetDefault("quota.warn_below", 3)
	viper.SetDefault("chat.idle_timeout", 24*time.Hour)
	viper.SetDefault("chat.message_window", 50)
	viper.SetDefault("chat.compact_batch", 20)
	viper.SetDefault("events.queue_size", 16)
	viper.SetDefault("metrics.port", 9090)
	viper.SetDefault("auth.issuer", "taskmind")
	viper.SetDefault("ai_enabled", true)
}

func loadEnvOverrides(cfg *Config) {
	if port := os.Getenv("TASKMIND_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}
	if host := os.Getenv("TASKMIND_HOST"); host != "" {
		cfg.Server.Host = host
	}

	// Database overrides
	if dbHost := os.Getenv("POSTGRES_HOST"); dbHost != "" {
		cfg.Database.Host = dbHost
	}
	if dbPort := os.Getenv("POSTGRES_PORT"); dbPort != "" {
		if port, err := strconv.Atoi(dbPort); err == nil {
			cfg.Database.Port = port
		}
	}
	if dbUser := os.Getenv("POSTGRES_USER"); dbUser != "" {
		cfg.Database.User = dbUser
	}
	if dbPass := os.Getenv("POSTGRES_PASSWORD"); dbPass != "" {
		cfg.Database.Password = dbPass
	}
	if dbName := os.Getenv("POSTGRES_DB"); dbName != "" {
		cfg.Database.Database = dbName
	}

	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		cfg.Extractor.APIKey = key
	}
	if model := os.Getenv("OPENAI_MODEL"); model != "" {
		cfg.Extractor.Model = model
	}
	if limit := os.Getenv("TASKMIND_QUOTA_PER_DAY"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil {
			cfg.Quota.PerDay = n
		}
	}
	if limit := os.Getenv("TASKMIND_QUOTA_PER_HOUR"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil {
			cfg.Quota.PerHour = n
		}
	}
	if secret := os.Getenv("JWT_SECRET_KEY"); secret != "" {
		cfg.Auth.SecretKey = secret
	}
	if enabled := os.Getenv("TASKMIND_AI_ENABLED"); enabled != "" {
		if b, err := strconv.ParseBool(enabled); err == nil {
			cfg.AIEnabled = b
		}
	}
}
