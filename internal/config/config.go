package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds process-wide configuration. It is built once at startup and
// passed by value; nothing mutates it afterwards.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	LogLevel    string

	MetricsAddr string

	SchedulerEnabled  bool
	SourcesConfigPath string

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
}

// Load loads configuration from environment variables and an optional .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:     getenv("APP_SERVICE", "shelfscout"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		LogLevel:    getenv("LOG_LEVEL", "info"),

		MetricsAddr: getenv("METRICS_ADDR", ""),

		SchedulerEnabled:  getenvBool("SCHEDULER_ENABLED", false),
		SourcesConfigPath: getenv("SOURCES_CONFIG", ""),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "shelfscout"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 2),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 10),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 3600),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 600),
	}

	return cfg
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
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

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}
