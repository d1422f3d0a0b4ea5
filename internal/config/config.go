// Package config handles configuration loading for the side-car.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the side-car.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Local    LocalConfig
	Auth     AuthConfig
	Logging  LoggingConfig
	GeoIP    GeoIPConfig
	AIBan    AIBanConfig
	Tasks    TaskConfig
	CORS     CORSConfig
	Timezone *time.Location
}

// CORSConfig holds the browser-dashboard CORS allow-list.
type CORSConfig struct {
	AllowedOrigins []string
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string
	Env             string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DBEngine identifies the gateway's SQL dialect.
type DBEngine string

const (
	EnginePostgres DBEngine = "postgres"
	EngineMySQL    DBEngine = "mysql"
)

// DatabaseConfig holds gateway database configuration.
type DatabaseConfig struct {
	Engine          DBEngine
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	PoolSize int
}

// LocalConfig holds local SQLite store configuration.
type LocalConfig struct {
	Path string
}

// AuthConfig holds admin-auth configuration.
type AuthConfig struct {
	AdminPassword  string
	APIKey         string
	JWTSecret      string
	JWTExpireHours int
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string
	Format string // json or console
}

// GeoIPConfig holds GeoIP database configuration.
type GeoIPConfig struct {
	DBPath  string
	Mirrors []string
}

// AIBanConfig holds AI-ban pipeline defaults (overridable via aiban_config table).
type AIBanConfig struct {
	Enabled        bool
	DryRun         bool
	ScanInterval   time.Duration
	BaseURL        string
	APIKey         string
	Model          string
	CooldownWindow time.Duration
	FailureLimit   int
}

// TaskConfig holds background task cadences.
type TaskConfig struct {
	CacheWarmupInterval     time.Duration
	IndexEnsureInterval     time.Duration
	IPRecordingInterval     time.Duration
	GeoIPUpdateInterval     time.Duration
	CacheCleanupInterval    time.Duration
	CacheRefreshInterval    time.Duration
	LogSyncInterval         time.Duration
	ModelStatusInterval     time.Duration
	IndexPacing             time.Duration
}

// Load loads configuration from environment variables, sourcing a local
// .env file first when present (mirrors the teacher's godotenv usage).
func Load() (*Config, error) {
	_ = godotenv.Load()

	loc, err := time.LoadLocation(getEnv("TIMEZONE", "UTC"))
	if err != nil {
		loc = time.UTC
	}

	engine := DBEngine(strings.ToLower(getEnv("DB_ENGINE", "postgres")))

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", "8081"),
			Env:             getEnv("ENV", "development"),
			ReadTimeout:     getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getDurationEnv("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:     getDurationEnv("SERVER_IDLE_TIMEOUT", 120*time.Second),
			ShutdownTimeout: getDurationEnv("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Engine:          engine,
			DSN:             buildDSN(engine),
			MaxOpenConns:    getIntEnv("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getIntEnv("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getDurationEnv("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", ""),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
			PoolSize: getIntEnv("REDIS_POOL_SIZE", 10),
		},
		Local: LocalConfig{
			Path: getEnv("LOCAL_DB_PATH", "./data/local.db"),
		},
		Auth: AuthConfig{
			AdminPassword:  getEnv("ADMIN_PASSWORD", ""),
			APIKey:         getEnv("API_KEY", ""),
			JWTSecret:      getEnv("JWT_SECRET", "change-me"),
			JWTExpireHours: getIntEnv("JWT_EXPIRE_HOURS", 24),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		GeoIP: GeoIPConfig{
			DBPath:  getEnv("GEOIP_DB_PATH", "./data/geoip"),
			Mirrors: splitCSV(getEnv("GEOIP_MIRRORS", "")),
		},
		AIBan: AIBanConfig{
			Enabled:        getBoolEnv("AIBAN_ENABLED", false),
			DryRun:         getBoolEnv("AIBAN_DRY_RUN", true),
			ScanInterval:   getDurationEnv("AIBAN_SCAN_INTERVAL", 10*time.Minute),
			BaseURL:        getEnv("AIBAN_BASE_URL", "https://api.openai.com/v1"),
			APIKey:         getEnv("AIBAN_API_KEY", ""),
			Model:          getEnv("AIBAN_MODEL", "gpt-4o-mini"),
			CooldownWindow: getDurationEnv("AIBAN_COOLDOWN", 15*time.Minute),
			FailureLimit:   getIntEnv("AIBAN_FAILURE_LIMIT", 3),
		},
		Tasks: TaskConfig{
			CacheWarmupInterval:  getDurationEnv("TASK_CACHE_WARMUP_INTERVAL", 24*time.Hour),
			IndexEnsureInterval:  getDurationEnv("TASK_INDEX_ENSURE_INTERVAL", 24*time.Hour),
			IPRecordingInterval:  getDurationEnv("TASK_IP_RECORDING_INTERVAL", 30*time.Minute),
			GeoIPUpdateInterval:  getDurationEnv("TASK_GEOIP_UPDATE_INTERVAL", 24*time.Hour),
			CacheCleanupInterval: getDurationEnv("TASK_CACHE_CLEANUP_INTERVAL", time.Hour),
			CacheRefreshInterval: getDurationEnv("TASK_CACHE_REFRESH_INTERVAL", 5*time.Minute),
			LogSyncInterval:      getDurationEnv("TASK_LOG_SYNC_INTERVAL", 5*time.Minute),
			ModelStatusInterval:  getDurationEnv("TASK_MODEL_STATUS_INTERVAL", 30*time.Minute),
			IndexPacing:          getDurationEnv("TASK_INDEX_PACING", 2*time.Second),
		},
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173")),
		},
		Timezone: loc,
	}

	return cfg, nil
}

func buildDSN(engine DBEngine) string {
	if dsn := os.Getenv("SQL_DSN"); dsn != "" {
		return dsn
	}

	host := getEnv("DB_DNS", "localhost")
	port := getEnv("DB_PORT", defaultPort(engine))
	user := getEnv("DB_USER", "postgres")
	pass := getEnv("DB_PASSWORD", "")
	name := getEnv("DB_NAME", "newapi")

	if engine == EngineMySQL {
		return user + ":" + pass + "@tcp(" + host + ":" + port + ")/" + name + "?parseTime=true&loc=UTC"
	}
	return "postgres://" + user + ":" + pass + "@" + host + ":" + port + "/" + name + "?sslmode=disable"
}

func defaultPort(engine DBEngine) string {
	if engine == EngineMySQL {
		return "3306"
	}
	return "5432"
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

func splitCSV(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Helper functions, same shape as the teacher's config loader.

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}
