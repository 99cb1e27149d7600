package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName       string
	AppVersion    string
	Environment   string
	HTTPAddr      string
	CORSOrigins   []string
	Timezone      string
	SnowflakeNode int64

	AuthJWTSecret string
	AuthJWTIssuer string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	RateLimit RateLimitConfig
	Scheduler SchedulerConfig
	Live      LiveConfig
}

type RateLimitConfig struct {
	Enabled       bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	CompletionLimit  int
	CompletionWindow time.Duration
	MessageLimit     int
	MessageWindow    time.Duration
	APILimit         int
	APIWindow        time.Duration
}

type SchedulerConfig struct {
	Enabled  bool
	Interval time.Duration
}

type LiveConfig struct {
	SessionBuffer int
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:       getenv("APP_SERVICE", "goalforge"),
		AppVersion:    getenv("APP_VERSION", "0.1.0"),
		Environment:   getenv("ENVIRONMENT", "development"),
		HTTPAddr:      getenv("HTTP_ADDR", ":8080"),
		CORSOrigins:   getenvList("CORS_ALLOWED_ORIGINS", "*"),
		Timezone:      getenv("APP_TIMEZONE", "UTC"),
		SnowflakeNode: getenvInt64("SNOWFLAKE_NODE", 1),
		AuthJWTSecret: strings.TrimSpace(getenv("AUTH_JWT_SECRET", "")),
		AuthJWTIssuer: strings.TrimSpace(getenv("AUTH_JWT_ISSUER", "goalforge")),
		OTLPEndpoint:  getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "goalforge"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 50),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),

		RateLimit: RateLimitConfig{
			Enabled:          getenvBool("RATE_LIMIT_ENABLED", true),
			RedisAddr:        strings.TrimSpace(getenv("RATE_LIMIT_REDIS_ADDR", "")),
			RedisPassword:    getenv("RATE_LIMIT_REDIS_PASSWORD", ""),
			RedisDB:          getenvInt("RATE_LIMIT_REDIS_DB", 0),
			CompletionLimit:  getenvInt("RATE_LIMIT_COMPLETION_LIMIT", 20),
			CompletionWindow: getenvSeconds("RATE_LIMIT_COMPLETION_WINDOW_SECONDS", time.Minute),
			MessageLimit:     getenvInt("RATE_LIMIT_MESSAGE_LIMIT", 30),
			MessageWindow:    getenvSeconds("RATE_LIMIT_MESSAGE_WINDOW_SECONDS", time.Minute),
			APILimit:         getenvInt("RATE_LIMIT_API_LIMIT", 100),
			APIWindow:        getenvSeconds("RATE_LIMIT_API_WINDOW_SECONDS", 15*time.Minute),
		},
		Scheduler: SchedulerConfig{
			Enabled:  getenvBool("SCHEDULER_ENABLED", true),
			Interval: getenvSeconds("SCHEDULER_INTERVAL_SECONDS", time.Minute),
		},
		Live: LiveConfig{
			SessionBuffer: getenvInt("LIVE_SESSION_BUFFER", 64),
		},
	}

	if cfg.AuthJWTSecret == "" {
		log.Printf("[config] AUTH_JWT_SECRET is empty; every bearer token will be rejected")
	}

	return cfg
}

// Location resolves the canonical timezone used for calendar dates.
func (c Config) Location() *time.Location {
	name := strings.TrimSpace(c.Timezone)
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		log.Printf("[config] unknown APP_TIMEZONE %q, falling back to UTC", name)
		return time.UTC
	}
	return loc
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvList(key, def string) []string {
	var out []string
	for _, part := range strings.Split(getenv(key, def), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvInt(key string, def int) int {
	return int(getenvInt64(key, int64(def)))
}

func getenvSeconds(key string, def time.Duration) time.Duration {
	seconds := getenvInt64(key, 0)
	if seconds <= 0 {
		return def
	}
	return time.Duration(seconds) * time.Second
}
