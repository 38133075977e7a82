package config

import (
	"errors"  // Validation errors
	"fmt"     // Error formatting
	"os"      // For environment variables
	"strconv" // For string to number conversion
	"time"    // Durations

	"github.com/joho/godotenv" // For loading .env files
)

// Config holds the application configuration
type Config struct {
	AppPort    string // Application port
	DBDriver   string // "mysql" or "memory"
	DBUser     string // Database user
	DBPassword string // Database password
	DBHost     string // Database host
	DBPort     string // Database port
	DBName     string // Database name
	JWTSecret  string // JWT secret key
	RedisAddr  string // Redis server address, empty disables cache and pub/sub
	RedisPass  string // Redis password
	RedisDB    int    // Redis database number
	IsProd     bool   // Is production environment
	LogLevel   string // logrus level name

	MeterInterval   time.Duration // Block length and meter tick period
	MeterEpsilon    time.Duration // Tolerated tick jitter
	MeterWorkers    int           // Concurrent charges per tick
	CallRingTimeout time.Duration // Ringing calls older than this are missed
	EarningsHold    time.Duration // Recent earnings held back from payout, 0 disables

	RateLimitRPS   float64 // Requests per second per user
	RateLimitBurst int     // Burst size per user

	FCMCredentialsFile string // Firebase service account, empty disables push
	NotifyQueueSize    int    // Notification buffer before dropping
	NotifyWorkers      int    // Notification delivery goroutines
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	_ = godotenv.Load() // Load .env file if present
	return &Config{
		AppPort:    getEnv("APP_PORT", "8080"),
		DBDriver:   getEnv("DB_DRIVER", "mysql"),
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBHost:     getEnv("DB_HOST", "127.0.0.1"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBName:     os.Getenv("DB_NAME"),
		JWTSecret:  os.Getenv("JWT_SECRET"),
		RedisAddr:  os.Getenv("REDIS_ADDR"),
		RedisPass:  os.Getenv("REDIS_PASS"),
		RedisDB:    getInt("REDIS_DB", 0),
		IsProd:     os.Getenv("IS_PROD") == "true",
		LogLevel:   getEnv("LOG_LEVEL", "info"),

		MeterInterval:   getDuration("METER_INTERVAL", 30*time.Second),
		MeterEpsilon:    getDuration("METER_EPSILON", 2*time.Second),
		MeterWorkers:    getInt("METER_WORKERS", 4),
		CallRingTimeout: getDuration("CALL_RING_TIMEOUT", 90*time.Second),
		EarningsHold:    getDuration("EARNINGS_HOLD", 0),

		RateLimitRPS:   getFloat("RATE_LIMIT_RPS", 10),
		RateLimitBurst: getInt("RATE_LIMIT_BURST", 20),

		FCMCredentialsFile: os.Getenv("FCM_CREDENTIALS_FILE"),
		NotifyQueueSize:    getInt("NOTIFY_QUEUE_SIZE", 1024),
		NotifyWorkers:      getInt("NOTIFY_WORKERS", 2),
	}
}

// Validate rejects settings the meter and server cannot run with
func (c *Config) Validate() error {
	var errs []error
	if c.DBDriver != "mysql" && c.DBDriver != "memory" {
		errs = append(errs, fmt.Errorf("DB_DRIVER must be mysql or memory, got %q", c.DBDriver))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.MeterInterval <= 0 {
		errs = append(errs, errors.New("METER_INTERVAL must be positive"))
	}
	if c.MeterEpsilon < 0 || c.MeterEpsilon >= c.MeterInterval {
		errs = append(errs, errors.New("METER_EPSILON must be within [0, METER_INTERVAL)"))
	}
	if c.CallRingTimeout <= 0 {
		errs = append(errs, errors.New("CALL_RING_TIMEOUT must be positive"))
	}
	if c.EarningsHold < 0 {
		errs = append(errs, errors.New("EARNINGS_HOLD must not be negative"))
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive"))
	}
	return errors.Join(errs...)
}

// DSN builds the MySQL data source name
func (c *Config) DSN() string {
	return c.DBUser + ":" + c.DBPassword + "@tcp(" + c.DBHost + ":" + c.DBPort + ")/" + c.DBName + "?parseTime=true"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Malformed numbers fall back to the default; Validate catches the rest.
func getInt(key string, fallback int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if f, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return f
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return d
	}
	return fallback
}
