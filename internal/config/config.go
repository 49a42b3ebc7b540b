package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendAuto     = "auto"
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendMongo    = "mongo"
)

type Config struct {
	Port                  string
	AllowedOrigin         string
	StoreBackend          string
	DatabaseURL           string
	DBMigrate             bool
	MongoURI              string
	MongoDatabase         string
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	ReportCacheTTLSeconds int
	SaleTxTimeoutSeconds  int
	AuthSecret            string
	AccessTokenTTLMinutes int
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first; variables already set in the environment win.
func Load() Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("[config] WARN: could not read .env: %v", err)
	}

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	migrateOnStart, err := strconv.ParseBool(getEnv("DB_MIGRATE", "true"))
	if err != nil {
		migrateOnStart = true
	}

	cfg := Config{
		Port:                  getEnv("PORT", "8080"),
		AllowedOrigin:         getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:5173"),
		StoreBackend:          strings.ToLower(strings.TrimSpace(getEnv("STORE_BACKEND", BackendAuto))),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		DBMigrate:             migrateOnStart,
		MongoURI:              os.Getenv("MONGO_URI"),
		MongoDatabase:         getEnv("MONGO_DATABASE", "posinet"),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               redisDB,
		ReportCacheTTLSeconds: positiveInt("REPORT_CACHE_TTL_SECONDS", 30),
		SaleTxTimeoutSeconds:  positiveInt("SALE_TX_TIMEOUT_SECONDS", 10),
		AuthSecret:            strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes: positiveInt("ACCESS_TOKEN_TTL_MINUTES", 60),
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

// Backend resolves "auto" to a concrete ledger backend.
func (c Config) Backend() (string, error) {
	switch c.StoreBackend {
	case "", BackendAuto:
		if c.DatabaseURL != "" {
			return BackendPostgres, nil
		}
		if c.MongoURI != "" {
			return BackendMongo, nil
		}
		return BackendMemory, nil
	case BackendMemory:
		return BackendMemory, nil
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return "", fmt.Errorf("STORE_BACKEND=postgres requires DATABASE_URL")
		}
		return BackendPostgres, nil
	case BackendMongo:
		if c.MongoURI == "" {
			return "", fmt.Errorf("STORE_BACKEND=mongo requires MONGO_URI")
		}
		return BackendMongo, nil
	default:
		return "", fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}
}

func (c Config) ReportCacheTTL() time.Duration {
	return time.Duration(c.ReportCacheTTLSeconds) * time.Second
}

func (c Config) SaleTxTimeout() time.Duration {
	return time.Duration(c.SaleTxTimeoutSeconds) * time.Second
}

func (c Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLMinutes) * time.Minute
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func positiveInt(key string, fallback int) int {
	n, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil || n < 1 {
		return fallback
	}
	return n
}
