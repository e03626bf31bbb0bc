package config

import (
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

type Config struct {
	API      APIConfig
	Queue    QueueConfig
	Worker   WorkerConfig
	Storage  StorageConfig
	Database DatabaseConfig
	Webhook  WebhookConfig
	Trace    TraceConfig
}

type APIConfig struct {
	Addr              string
	MaxBodyBytes      int64
	PresignTTL        time.Duration
	RateLimitCapacity int
	RateLimitWindow   time.Duration
	ClientIDHeader    string
}

type QueueConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Name          string
}

func (q QueueConfig) RedisClientOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     q.RedisAddr,
		Password: q.RedisPassword,
		DB:       q.RedisDB,
	}
}

// RedisClient builds a plain redis client on the same connection settings,
// for the pieces that talk to redis outside asynq.
func (q QueueConfig) RedisClient() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     q.RedisAddr,
		Password: q.RedisPassword,
		DB:       q.RedisDB,
	})
}

type WorkerConfig struct {
	Concurrency      int
	MaxActiveBatches int
	MetricsAddr      string
	OutputPrefix     string
}

type StorageConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// DatabaseConfig selects the batch store. An empty DSN keeps batches in
// process memory, which is fine for a single-node setup.
type DatabaseConfig struct {
	DSN string
}

type WebhookConfig struct {
	SigningSecret string
	Timeout       time.Duration
	MaxAttempts   int
}

type TraceConfig struct {
	Exporter     string
	OTLPEndpoint string
	OTLPInsecure bool
}

func Load() Config {
	defaultBatchSlots := max(1, runtime.NumCPU()/2)

	return Config{
		API: APIConfig{
			Addr:              env("OPTIPRESS_API_ADDR", ":8080"),
			MaxBodyBytes:      int64(envInt("API_MAX_BODY_MB", 32)) << 20,
			PresignTTL:        time.Duration(envInt("API_PRESIGN_TTL_MINUTES", 15)) * time.Minute,
			RateLimitCapacity: envInt("API_RATE_LIMIT_CAPACITY", 60),
			RateLimitWindow:   time.Duration(envInt("API_RATE_LIMIT_WINDOW_SECONDS", 60)) * time.Second,
			ClientIDHeader:    env("API_CLIENT_ID_HEADER", "X-Client-ID"),
		},
		Queue: QueueConfig{
			RedisAddr:     env("REDIS_ADDR", "localhost:6379"),
			RedisPassword: env("REDIS_PASSWORD", ""),
			RedisDB:       envInt("REDIS_DB", 0),
			Name:          env("ASYNQ_QUEUE", "optipress"),
		},
		Worker: WorkerConfig{
			Concurrency:      envInt("WORKER_CONCURRENCY", max(2, runtime.NumCPU())),
			MaxActiveBatches: envInt("WORKER_MAX_ACTIVE_BATCHES", defaultBatchSlots),
			MetricsAddr:      env("WORKER_METRICS_ADDR", ":9090"),
			OutputPrefix:     env("OUTPUT_PREFIX", "outputs"),
		},
		Storage: StorageConfig{
			Endpoint:  env("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey: env("MINIO_ACCESS_KEY", "minioadmin"),
			SecretKey: env("MINIO_SECRET_KEY", "minioadmin"),
			Bucket:    env("MINIO_BUCKET", "optipress-batches"),
			UseSSL:    envBool("MINIO_USE_SSL", false),
		},
		Database: DatabaseConfig{
			DSN: env("POSTGRES_DSN", ""),
		},
		Webhook: WebhookConfig{
			SigningSecret: env("WEBHOOK_SIGNING_SECRET", ""),
			Timeout:       time.Duration(envInt("WEBHOOK_TIMEOUT_SECONDS", 10)) * time.Second,
			MaxAttempts:   envInt("WEBHOOK_MAX_ATTEMPTS", 4),
		},
		Trace: TraceConfig{
			Exporter:     env("TRACE_EXPORTER", ""),
			OTLPEndpoint: env("TRACE_OTLP_ENDPOINT", ""),
			OTLPInsecure: envBool("TRACE_OTLP_INSECURE", true),
		},
	}
}

func env(key, fallback string) string {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	return value
}

func envInt(key string, fallback int) int {
	value := env(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envBool(key string, fallback bool) bool {
	value := env(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
