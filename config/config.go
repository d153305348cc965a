// Package config reads process settings from the environment (and .env).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

type Config struct {
	Port     string
	LogLevel string

	StoreDriver string // sqlite | postgres | mysql | memory
	SQLitePath  string
	DatabaseURL string
	MySQLDSN    string
	Seed        bool

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	CacheTTL        time.Duration
	CacheMaxEntries int
	BatchWorkers    int
	RequestTimeout  time.Duration
	AllowedOrigins  []string
	WarmSchemes     []string
	WarmInterval    time.Duration

	ExportS3Bucket string
	AWSRegion      string
	AWSProfile     string
}

// Load reads .env when present, then the environment. Invalid numbers fall
// back to their defaults.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Port:     getEnv("PORT", "8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		StoreDriver: strings.ToLower(getEnv("STORE_DRIVER", "sqlite")),
		SQLitePath:  getEnv("SQLITE_PATH", "schemes.db"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		MySQLDSN:    os.Getenv("MYSQL_DSN"),
		Seed:        getBool("SEED_DEMO", false),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getInt("REDIS_DB", 0),

		CacheTTL:        time.Duration(getInt("CACHE_TTL_SECONDS", 900)) * time.Second,
		CacheMaxEntries: getInt("CACHE_MAX_ENTRIES", 32),
		BatchWorkers:    getInt("BATCH_WORKERS", 8),
		RequestTimeout:  time.Duration(getInt("REQUEST_TIMEOUT_SECONDS", 120)) * time.Second,
		AllowedOrigins:  strings.Split(getEnv("ALLOWED_ORIGINS", "*"), ","),
		WarmSchemes:     getList("WARM_SCHEMES"),
		WarmInterval:    time.Duration(getInt("WARM_INTERVAL_SECONDS", 600)) * time.Second,

		ExportS3Bucket: os.Getenv("EXPORT_S3_BUCKET"),
		AWSRegion:      getEnv("AWS_REGION", "ap-south-1"),
		AWSProfile:     os.Getenv("AWS_PROFILE"),
	}
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

// RedisClient returns nil when no address is configured.
func (c Config) RedisClient() *redis.Client {
	if c.RedisAddr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     c.RedisAddr,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	})
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

// getInt keeps fallback for unparsable or non-positive values, except that
// an explicit 0 is allowed when fallback is 0.
func getInt(key string, fallback int) int {
	n, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil || n < 0 || (n == 0 && fallback != 0) {
		return fallback
	}
	return n
}

func getBool(key string, fallback bool) bool {
	b, err := strconv.ParseBool(getEnv(key, strconv.FormatBool(fallback)))
	if err != nil {
		return fallback
	}
	return b
}

// getList splits a comma-separated value, dropping blanks.
func getList(key string) []string {
	var out []string
	for _, s := range strings.Split(os.Getenv(key), ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
