package config

import (
	"log"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration values.
type Config struct {
	AppPort           string `mapstructure:"APP_PORT"`
	Env               string `mapstructure:"ENV"`
	LogLevel          string `mapstructure:"LOG_LEVEL"`
	MaxRequestsPerMin int    `mapstructure:"MAX_REQUESTS_PER_MIN"`

	// Backend endpoints.
	APIBaseURL     string        `mapstructure:"API_BASE_URL"`
	WSURL          string        `mapstructure:"WS_URL"`
	WSNamespace    string        `mapstructure:"WS_NAMESPACE"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`

	// Partner credentials. PartnerToken wins over the redis session.
	PartnerToken     string `mapstructure:"PARTNER_TOKEN"`
	PartnerSessionID string `mapstructure:"PARTNER_SESSION_ID"`

	// Push channel reconnect policy.
	ReconnectBaseDelay   time.Duration `mapstructure:"RECONNECT_BASE_DELAY"`
	ReconnectMaxAttempts int           `mapstructure:"RECONNECT_MAX_ATTEMPTS"`

	// Redis configuration.
	RedisAddr           string `mapstructure:"REDIS_ADDR"`
	RedisPassword       string `mapstructure:"REDIS_PASSWORD"`
	RedisSessionDB      int    `mapstructure:"REDIS_SESSION_DB"`
	RedisPaymentQueueDB int    `mapstructure:"REDIS_PAYMENT_QUEUE_DB"`

	// Payments.
	StripeKey       string `mapstructure:"STRIPE_KEY"`
	PaymentCurrency string `mapstructure:"PAYMENT_CURRENCY"`

	// Partner location.
	LocationReportInterval time.Duration `mapstructure:"LOCATION_REPORT_INTERVAL"`
	PartnerLat             float64       `mapstructure:"PARTNER_LAT"`
	PartnerLng             float64       `mapstructure:"PARTNER_LNG"`
}

var AppConfig Config

func LoadConfig() {
	// Look for a config file named "config.yaml" in the current and "config" directory.
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	// Automatically use environment variables where available.
	viper.AutomaticEnv()

	// Set default values.
	viper.SetDefault("APP_PORT", "8090")
	viper.SetDefault("ENV", "development")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("MAX_REQUESTS_PER_MIN", 120)
	viper.SetDefault("API_BASE_URL", "http://localhost:5000/api")
	viper.SetDefault("WS_URL", "ws://localhost:5000")
	viper.SetDefault("WS_NAMESPACE", "/partner")
	viper.SetDefault("REQUEST_TIMEOUT", "15s")
	viper.SetDefault("PARTNER_TOKEN", "")
	viper.SetDefault("PARTNER_SESSION_ID", "")
	viper.SetDefault("RECONNECT_BASE_DELAY", "1s")
	viper.SetDefault("RECONNECT_MAX_ATTEMPTS", 5)
	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("REDIS_PASSWORD", "")
	viper.SetDefault("REDIS_SESSION_DB", 1)
	viper.SetDefault("REDIS_PAYMENT_QUEUE_DB", 3)
	viper.SetDefault("STRIPE_KEY", "")
	viper.SetDefault("PAYMENT_CURRENCY", "inr")
	viper.SetDefault("LOCATION_REPORT_INTERVAL", "10s")
	viper.SetDefault("PARTNER_LAT", 13.0827)
	viper.SetDefault("PARTNER_LNG", 80.2707)

	if err := viper.ReadInConfig(); err != nil {
		log.Println("No config file found, using environment variables only")
	}

	if err := viper.Unmarshal(&AppConfig); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
}

func GetEnv() string {
	return AppConfig.Env
}

func IsProduction() bool {
	return GetEnv() == "production"
}
