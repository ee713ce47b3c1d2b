/**
 * @description
 * This package handles the configuration management for the treasury service. It
 * uses Viper to read configuration from environment variables and an optional .env
 * file, providing a single place to manage application settings.
 *
 * @dependencies
 * - github.com/spf13/viper: Configuration loading and environment binding.
 */

package config

import (
	"log"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

const (
	defaultServerPort         = "8080"
	defaultEventsExchange     = "treasury.events"
	defaultMemberEventQueue   = "treasury_service.member_updates"
	defaultRateLimitPrefix   = "treasury:rate_limit"
	defaultMemberActionLimit = 10
	defaultReconcileSchedule = "0 0 * * *"
	defaultTimezone          = "Asia/Kolkata"
	defaultWalletMaxRetries  = 5
	defaultDBMaxConns        = 10
)

// Config holds all the configuration variables for the treasury service.
type Config struct {
	ServerPort                     string `mapstructure:"SERVER_PORT"`
	DatabaseURL                    string `mapstructure:"DATABASE_URL"`
	DBMaxConns                     int32  `mapstructure:"DB_MAX_CONNS"`
	RabbitMQURL                    string `mapstructure:"RABBITMQ_URL"`
	EventsExchange                 string `mapstructure:"EVENTS_EXCHANGE"`
	MemberEventQueue               string `mapstructure:"MEMBER_EVENT_QUEUE"`
	RedisURL                       string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix           string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	MemberActionRateLimitPerMinute int    `mapstructure:"MEMBER_ACTION_RATE_LIMIT_PER_MINUTE"`
	JWKSURL                        string `mapstructure:"JWKS_URL"`
	JWTHMACSecret                  string `mapstructure:"JWT_HMAC_SECRET"`
	JWTAudience                    string `mapstructure:"JWT_AUDIENCE"`
	JWTIssuer                      string `mapstructure:"JWT_ISSUER"`
	InternalAPIKey                 string `mapstructure:"INTERNAL_API_KEY"`
	ReconciliationSchedule         string `mapstructure:"RECONCILIATION_SCHEDULE"`
	Timezone                       string `mapstructure:"TIMEZONE"`
	WalletMaxRetries               int    `mapstructure:"WALLET_MAX_RETRIES"`
	CORSAllowedOrigins             string `mapstructure:"CORS_ALLOWED_ORIGINS"`
}

// LoadConfig reads configuration from environment variables and an optional .env
// file in path.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("SERVER_PORT", defaultServerPort)
	viper.SetDefault("DB_MAX_CONNS", defaultDBMaxConns)
	viper.SetDefault("EVENTS_EXCHANGE", defaultEventsExchange)
	viper.SetDefault("MEMBER_EVENT_QUEUE", defaultMemberEventQueue)
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", defaultRateLimitPrefix)
	viper.SetDefault("MEMBER_ACTION_RATE_LIMIT_PER_MINUTE", defaultMemberActionLimit)
	viper.SetDefault("RECONCILIATION_SCHEDULE", defaultReconcileSchedule)
	viper.SetDefault("TIMEZONE", defaultTimezone)
	viper.SetDefault("WALLET_MAX_RETRIES", defaultWalletMaxRetries)
	viper.SetDefault("CORS_ALLOWED_ORIGINS", "")

	// Bind explicitly so the keys appear in Unmarshal even without a config file.
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL", "DATABASE_URL", "TREASURY_DATABASE_URL")
	_ = viper.BindEnv("DB_MAX_CONNS")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("EVENTS_EXCHANGE")
	_ = viper.BindEnv("MEMBER_EVENT_QUEUE")
	_ = viper.BindEnv("REDIS_URL", "REDIS_URL", "TREASURY_REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("MEMBER_ACTION_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("JWKS_URL")
	_ = viper.BindEnv("JWT_HMAC_SECRET")
	_ = viper.BindEnv("JWT_AUDIENCE")
	_ = viper.BindEnv("JWT_ISSUER")
	_ = viper.BindEnv("INTERNAL_API_KEY", "INTERNAL_API_KEY", "TREASURY_SERVICE_INTERNAL_API_KEY")
	_ = viper.BindEnv("RECONCILIATION_SCHEDULE")
	_ = viper.BindEnv("TIMEZONE")
	_ = viper.BindEnv("WALLET_MAX_RETRIES")
	_ = viper.BindEnv("CORS_ALLOWED_ORIGINS")

	// A missing config file is fine; everything can come from the environment.
	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	if strings.TrimSpace(config.InternalAPIKey) == "" {
		config.InternalAPIKey = strings.TrimSpace(os.Getenv("TREASURY_SERVICE_INTERNAL_API_KEY"))
	}
	config.DatabaseURL = strings.TrimSpace(config.DatabaseURL)
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RabbitMQURL = strings.TrimSpace(config.RabbitMQURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = defaultRateLimitPrefix
	}

	if config.DBMaxConns <= 0 {
		config.DBMaxConns = defaultDBMaxConns
	}
	if config.MemberActionRateLimitPerMinute <= 0 {
		config.MemberActionRateLimitPerMinute = defaultMemberActionLimit
	}
	if config.WalletMaxRetries <= 0 {
		log.Printf("level=warn component=config msg=\"non-positive wallet retry budget; using default\" value=%d", config.WalletMaxRetries)
		config.WalletMaxRetries = defaultWalletMaxRetries
	}

	config.ReconciliationSchedule = strings.TrimSpace(config.ReconciliationSchedule)
	if _, parseErr := cron.ParseStandard(config.ReconciliationSchedule); parseErr != nil {
		log.Printf("level=warn component=config msg=\"invalid RECONCILIATION_SCHEDULE; using default\" value=%q err=%v", config.ReconciliationSchedule, parseErr)
		config.ReconciliationSchedule = defaultReconcileSchedule
	}

	config.Timezone = strings.TrimSpace(config.Timezone)
	if _, locErr := time.LoadLocation(config.Timezone); config.Timezone == "" || locErr != nil {
		log.Printf("level=warn component=config msg=\"invalid TIMEZONE; using default\" value=%q err=%v", config.Timezone, locErr)
		config.Timezone = defaultTimezone
	}

	return
}

// Location returns the club's local timezone used for deadlines and cron.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// AllowedOrigins splits CORS_ALLOWED_ORIGINS on commas. Unset means no cross-origin access.
func (c Config) AllowedOrigins() []string {
	var origins []string
	for _, origin := range strings.Split(c.CORSAllowedOrigins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}
