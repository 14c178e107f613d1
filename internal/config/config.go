package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	App struct {
		Port        string
		Debug       bool
		FrontendURL string
	}
	DB struct {
		Driver          string
		Host            string
		Port            string
		User            string
		Password        string
		DBName          string
		SSLMode         string
		MaxOpenConns    int
		MaxIdleConns    int
		ConnMaxLifetime time.Duration
		ConnectAttempts int
		ConnectDelay    time.Duration
	}
	Redis struct {
		Enabled  bool
		Host     string
		Port     string
		Password string
		DB       int
	}
	Cache struct {
		TTL time.Duration
	}
	Auth struct {
		JWTSecret string
		TokenTTL  time.Duration
	}
	Device struct {
		APIKey    string
		KeyHeader string
	}
	Workers struct {
		ActivityEnabled  bool
		ActivityInterval time.Duration
	}
	RateLimit struct {
		RequestsPerSecond int
		Burst             int
	}
	Log struct {
		Level  string
		Format string
	}
	Export struct {
		MaxRows int
	}
	Follow struct {
		APIURL   string
		Email    string
		Password string
		Interval time.Duration
	}
}

func Load() *Config {
	cfg := &Config{}

	// App
	cfg.App.Port = getEnv("PORT", "8080")
	cfg.App.Debug = getEnvAsBool("DEBUG", false)
	cfg.App.FrontendURL = getEnv("FRONTEND_URL", "http://localhost:3000")

	// DB
	cfg.DB.Driver = strings.ToLower(getEnv("DB_DRIVER", "postgres"))
	cfg.DB.Host = getEnv("DB_HOST", "localhost")
	cfg.DB.Port = getEnv("DB_PORT", defaultDBPort(cfg.DB.Driver))
	cfg.DB.User = getEnv("DB_USER", "postgres")
	cfg.DB.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.DB.DBName = getEnv("DB_NAME", "fleetwatch")
	cfg.DB.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.DB.MaxOpenConns = getEnvAsInt("DB_MAX_OPEN_CONNS", 25)
	cfg.DB.MaxIdleConns = getEnvAsInt("DB_MAX_IDLE_CONNS", 10)
	cfg.DB.ConnMaxLifetime = getEnvAsDuration("DB_CONN_MAX_LIFETIME", time.Hour)
	cfg.DB.ConnectAttempts = getEnvAsInt("DB_CONNECT_ATTEMPTS", 10)
	cfg.DB.ConnectDelay = getEnvAsDuration("DB_CONNECT_DELAY", 2*time.Second)

	// Redis
	cfg.Redis.Enabled = getEnvAsBool("REDIS_ENABLED", true)
	cfg.Redis.Host = getEnv("REDIS_HOST", "localhost")
	cfg.Redis.Port = getEnv("REDIS_PORT", "6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvAsInt("REDIS_DB", 0)
	cfg.Cache.TTL = getEnvAsDuration("CACHE_TTL", 5*time.Second)

	// Auth
	cfg.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	cfg.Auth.TokenTTL = getEnvAsDuration("JWT_TTL", time.Hour)

	// Devices
	cfg.Device.APIKey = os.Getenv("DEVICE_API_KEY")
	cfg.Device.KeyHeader = getEnv("DEVICE_API_KEY_HEADER", "X-API-Key")

	// Workers
	cfg.Workers.ActivityEnabled = getEnvAsBool("ACTIVITY_WORKER_ENABLED", true)
	cfg.Workers.ActivityInterval = getEnvAsDuration("ACTIVITY_WORKER_INTERVAL", time.Minute)

	// Rate Limit
	cfg.RateLimit.RequestsPerSecond = getEnvAsInt("RATE_LIMIT_RPS", 5)
	cfg.RateLimit.Burst = getEnvAsInt("RATE_LIMIT_BURST", 10)

	// Logging
	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	cfg.Export.MaxRows = getEnvAsInt("EXPORT_MAX_ROWS", 5000)

	// Follow client
	cfg.Follow.APIURL = getEnv("FOLLOW_API_URL", "http://localhost:8080/api")
	cfg.Follow.Email = os.Getenv("FOLLOW_EMAIL")
	cfg.Follow.Password = os.Getenv("FOLLOW_PASSWORD")
	cfg.Follow.Interval = getEnvAsDuration("FOLLOW_INTERVAL", 10*time.Second)

	return cfg
}

// Validate reports settings the API server cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.Device.APIKey == "" {
		errs = append(errs, errors.New("DEVICE_API_KEY is required"))
	}
	switch c.DB.Driver {
	case "postgres", "mysql":
	default:
		errs = append(errs, errors.New("DB_DRIVER must be postgres or mysql"))
	}
	return errors.Join(errs...)
}

func defaultDBPort(driver string) string {
	if driver == "mysql" {
		return "3306"
	}
	return "5432"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if dur, err := time.ParseDuration(value); err == nil {
			return dur
		}
	}
	return defaultValue
}
