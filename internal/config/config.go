package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBPath            string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int
	// DBLogLevel is one of silent, error, warn or info.
	DBLogLevel           string
	DBSlowQueryThreshold time.Duration

	Observability ObservabilityConfig
	Storage       StorageConfig
	ML            MLConfig
	PayMongo      PayMongoConfig
	Ingest        IngestConfig
	RateLimit     RateLimitConfig
	Outbound      OutboundConfig
}

type ObservabilityConfig struct {
	LogLevel      string
	LogFormat     string
	OtelEnabled   bool
	OtelProtocol  string
	SamplingRatio float64
}

// StorageConfig selects and configures the object store driver.
type StorageConfig struct {
	Driver          string
	Bucket          string
	BoltPath        string
	CredentialsFile string
	Timeout         time.Duration
	MaxRetries      int
}

type MLConfig struct {
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
}

type PayMongoConfig struct {
	BaseURL       string
	SecretKey     string
	WebhookSecret string
	SuccessURL    string
	CancelURL     string
	Timeout       time.Duration
}

// IngestConfig bounds the per-upload fan-out.
type IngestConfig struct {
	Concurrency    int
	FanOutTimeout  time.Duration
	MaxUploadBytes int64
}

type RateLimitConfig struct {
	Enabled       bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	UploadRate    float64
	UploadBurst   int
	LockTTL       time.Duration
}

type OutboundConfig struct {
	Timeout             time.Duration
	MaxIdleConnsPerHost int
}

const (
	StorageDriverBolt = "bolt"
	StorageDriverGCS  = "gcs"
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:      getenv("APP_SERVICE", "restore"),
		AppVersion:   getenv("SERVICE_VERSION", getenv("APP_VERSION", "0.1.0")),
		Environment:  getenv("DEPLOYMENT_ENV", getenv("ENVIRONMENT", "development")),
		HTTPAddr:     getenv("HTTP_ADDR", ":8080"),
		OTLPEndpoint: getenv("OTEL_EXPORTER_OTLP_ENDPOINT", getenv("OTLP_ENDPOINT", "localhost:4317")),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "restore"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBPath:            getenv("DATABASE_PATH", "restore.db"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),

		DBLogLevel:           strings.ToLower(getenv("DB_LOG_LEVEL", "warn")),
		DBSlowQueryThreshold: getenvDuration("DB_SLOW_QUERY_THRESHOLD", 200*time.Millisecond),

		Observability: ObservabilityConfig{
			LogLevel:      strings.ToLower(strings.TrimSpace(getenv("LOG_LEVEL", "info"))),
			LogFormat:     strings.ToLower(strings.TrimSpace(getenv("LOG_FORMAT", "json"))),
			OtelEnabled:   getenvBool("OTEL_ENABLED", true),
			OtelProtocol:  otlpProtocol(),
			SamplingRatio: getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
		},

		Storage: StorageConfig{
			Driver:          strings.ToLower(getenv("STORAGE_DRIVER", StorageDriverBolt)),
			Bucket:          strings.TrimSpace(getenv("STORAGE_BUCKET", "")),
			BoltPath:        getenv("STORAGE_BOLT_PATH", "objects.db"),
			CredentialsFile: strings.TrimSpace(getenv("GOOGLE_APPLICATION_CREDENTIALS", "")),
			Timeout:         getenvDuration("STORAGE_TIMEOUT", 5*time.Second),
			MaxRetries:      getenvInt("STORAGE_MAX_RETRIES", 3),
		},
		ML: MLConfig{
			BaseURL:    strings.TrimRight(getenv("ML_BASE_URL", "http://localhost:5000"), "/"),
			Timeout:    getenvDuration("ML_TIMEOUT", 30*time.Second),
			MaxRetries: getenvInt("ML_MAX_RETRIES", 3),
		},
		PayMongo: PayMongoConfig{
			BaseURL:       strings.TrimRight(getenv("PAYMONGO_BASE_URL", "https://api.paymongo.com/v1"), "/"),
			SecretKey:     strings.TrimSpace(getenv("PAYMONGO_SECRET_KEY", "")),
			WebhookSecret: strings.TrimSpace(getenv("PAYMONGO_WEBHOOK_SECRET", "")),
			SuccessURL:    getenv("PAYMONGO_SUCCESS_URL", "http://localhost:3000/payment/success"),
			CancelURL:     getenv("PAYMONGO_CANCEL_URL", "http://localhost:3000/payment/cancel"),
			Timeout:       getenvDuration("PAYMONGO_TIMEOUT", 10*time.Second),
		},
		Ingest: IngestConfig{
			Concurrency:    getenvInt("INGEST_CONCURRENCY", 4),
			FanOutTimeout:  getenvDuration("INGEST_FANOUT_TIMEOUT", 2*time.Minute),
			MaxUploadBytes: getenvInt64("INGEST_MAX_UPLOAD_BYTES", 32<<20),
		},
		RateLimit: RateLimitConfig{
			Enabled:       getenvBool("RATE_LIMIT_ENABLED", false),
			RedisAddr:     getenv("REDIS_ADDR", "localhost:6379"),
			RedisPassword: getenv("REDIS_PASSWORD", ""),
			RedisDB:       getenvInt("REDIS_DB", 0),
			UploadRate:    getenvFloat("RATE_LIMIT_UPLOAD_RATE", 0.5),
			UploadBurst:   getenvInt("RATE_LIMIT_UPLOAD_BURST", 5),
			LockTTL:       getenvDuration("RECONCILE_LOCK_TTL", 30*time.Second),
		},
		Outbound: OutboundConfig{
			Timeout:             getenvDuration("OUTBOUND_HTTP_TIMEOUT", 60*time.Second),
			MaxIdleConnsPerHost: getenvInt("OUTBOUND_MAX_IDLE_CONNS_PER_HOST", 16),
		},
	}

	if cfg.Ingest.Concurrency <= 0 {
		cfg.Ingest.Concurrency = 1
	}
	if r := cfg.Observability.SamplingRatio; r < 0 || r > 1 {
		cfg.Observability.SamplingRatio = 0.1
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

// otlpProtocol lets the traces-specific variable override the shared one.
func otlpProtocol() string {
	protocol := getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")
	if traces := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL")); traces != "" {
		protocol = traces
	}
	return strings.ToLower(strings.TrimSpace(protocol))
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

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

// getenvDuration accepts Go duration strings ("5s") or bare seconds ("5").
func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	if parsed, err := time.ParseDuration(value); err == nil {
		return parsed
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}
	return def
}
