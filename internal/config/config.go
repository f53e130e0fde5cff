package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port          string
	Environment   string
	Database      DatabaseConfig
	Shopify       ShopifyConfig
	Redis         RedisConfig
	Kafka         KafkaConfig
	Promotions    PromotionsConfig
	LogLevel      string
	WebhookSecret string // WEBHOOK_SECRET: verify incoming platform webhooks
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type ShopifyConfig struct {
	APIVersion string
}

// RedisConfig backs the variant snapshot cache; empty Addr disables caching
type RedisConfig struct {
	Addr        string
	SnapshotTTL time.Duration
}

// KafkaConfig backs the evaluation audit publisher; empty Brokers disables it
type KafkaConfig struct {
	Brokers    []string
	AuditTopic string
}

// PromotionsConfig holds reconciliation and sweep tuning
type PromotionsConfig struct {
	DefaultTTLHours int
	SweepInterval   time.Duration
	CodePrefix      string
}

func Load() (*Config, error) {
	viper.SetConfigType("env")
	viper.SetConfigName(".env")
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.AddConfigPath("../..")

	// Set defaults
	viper.SetDefault("PORT", "8080")
	viper.SetDefault("ENVIRONMENT", "development")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("SHOPIFY_API_VERSION", "2024-10")
	viper.SetDefault("SNAPSHOT_CACHE_TTL", "2m")
	viper.SetDefault("PROMO_DEFAULT_TTL_HOURS", 24)
	viper.SetDefault("PROMO_SWEEP_INTERVAL", "1h")
	viper.SetDefault("PROMO_CODE_PREFIX", "BNDL")
	viper.SetDefault("KAFKA_AUDIT_TOPIC", "bundle-evaluations")

	// Read from environment variables
	viper.AutomaticEnv()

	// Try to read .env file (optional)
	if err := viper.ReadInConfig(); err != nil {
		// It's okay if .env doesn't exist, we'll use env vars
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := &Config{
		Port:        viper.GetString("PORT"),
		Environment: viper.GetString("ENVIRONMENT"),
		LogLevel:    viper.GetString("LOG_LEVEL"),
		Database: DatabaseConfig{
			Host:     viper.GetString("DB_HOST"),
			Port:     viper.GetString("DB_PORT"),
			User:     viper.GetString("DB_USER"),
			Password: viper.GetString("DB_PASSWORD"),
			DBName:   viper.GetString("DB_NAME"),
			SSLMode:  viper.GetString("DB_SSLMODE"),
		},
		Shopify: ShopifyConfig{
			APIVersion: viper.GetString("SHOPIFY_API_VERSION"),
		},
		Redis: RedisConfig{
			Addr:        viper.GetString("REDIS_ADDR"),
			SnapshotTTL: viper.GetDuration("SNAPSHOT_CACHE_TTL"),
		},
		Kafka: KafkaConfig{
			Brokers:    viper.GetStringSlice("KAFKA_BROKERS"),
			AuditTopic: viper.GetString("KAFKA_AUDIT_TOPIC"),
		},
		Promotions: PromotionsConfig{
			DefaultTTLHours: viper.GetInt("PROMO_DEFAULT_TTL_HOURS"),
			SweepInterval:   viper.GetDuration("PROMO_SWEEP_INTERVAL"),
			CodePrefix:      viper.GetString("PROMO_CODE_PREFIX"),
		},
		WebhookSecret: viper.GetString("WEBHOOK_SECRET"),
	}

	if cfg.Database.Host == "" {
		return nil, fmt.Errorf("DB_HOST is required")
	}

	return cfg, nil
}
