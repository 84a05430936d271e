package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the workshop service.
type Config struct {
	AppName                string
	AppEnv                 string
	AppPort                string
	LogLevel               string
	DatabaseURL            string
	RedisURL               string
	NATSURL                string
	NATSSubject            string
	JWTSecret              string
	CloudinaryCloudName    string
	CloudinaryAPIKey       string
	CloudinaryAPISecret    string
	CloudinaryUploadFolder string
	LockTimeout            time.Duration
	LockTTL                time.Duration
	AggregationDecimals    int
	DefaultGrade           float64
	DefaultGradingGrade    float64
	CronCheckPhase         bool
	CORSAllowOrigins       string
	AccessLog              bool
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("GEMA")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "GEMA Workshop API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("nats.subject", "gema.workshop.events")
	v.SetDefault("cloudinary.folder", "gema/workshop")
	v.SetDefault("lock.timeout", "30s")
	v.SetDefault("lock.ttl", "5m")
	v.SetDefault("aggregation.decimals", 5)
	v.SetDefault("workshop.default_grade", 80)
	v.SetDefault("workshop.default_gradinggrade", 20)
	v.SetDefault("cron.checkphase", true)
	v.SetDefault("cors.origins", "*")
	v.SetDefault("http.accesslog", false)

	lockTimeout, err := parseDuration(v.GetString("lock.timeout"), 30*time.Second)
	if err != nil {
		return Config{}, fmt.Errorf("invalid lock timeout: %w", err)
	}

	lockTTL, err := parseDuration(v.GetString("lock.ttl"), 5*time.Minute)
	if err != nil {
		return Config{}, fmt.Errorf("invalid lock ttl: %w", err)
	}

	cfg := Config{
		AppName:                v.GetString("app.name"),
		AppEnv:                 v.GetString("app.env"),
		AppPort:                v.GetString("app.port"),
		LogLevel:               strings.ToLower(v.GetString("log.level")),
		DatabaseURL:            v.GetString("database.url"),
		RedisURL:               v.GetString("redis.url"),
		NATSURL:                v.GetString("nats.url"),
		NATSSubject:            v.GetString("nats.subject"),
		JWTSecret:              v.GetString("jwt.secret"),
		CloudinaryCloudName:    v.GetString("cloudinary.cloud_name"),
		CloudinaryAPIKey:       v.GetString("cloudinary.api_key"),
		CloudinaryAPISecret:    v.GetString("cloudinary.api_secret"),
		CloudinaryUploadFolder: v.GetString("cloudinary.folder"),
		LockTimeout:            lockTimeout,
		LockTTL:                lockTTL,
		AggregationDecimals:    v.GetInt("aggregation.decimals"),
		DefaultGrade:           v.GetFloat64("workshop.default_grade"),
		DefaultGradingGrade:    v.GetFloat64("workshop.default_gradinggrade"),
		CronCheckPhase:         v.GetBool("cron.checkphase"),
		CORSAllowOrigins:       v.GetString("cors.origins"),
		AccessLog:              v.GetBool("http.accesslog"),
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("database url must be provided")
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	if cfg.AggregationDecimals < 0 || cfg.AggregationDecimals > 10 {
		cfg.AggregationDecimals = 5
	}

	return cfg, nil
}

func parseDuration(value string, fallback time.Duration) (time.Duration, error) {
	if strings.TrimSpace(value) == "" {
		return fallback, nil
	}

	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return fallback, nil
	}
	return d, nil
}
