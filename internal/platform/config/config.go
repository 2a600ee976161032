package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config aggregates all runtime configuration. FromEnv builds it from
// environment variables so main stays lean.
type Config struct {
	Server     Server
	Postgres   Postgres
	Redis      Redis
	Kafka      Kafka
	Classifier Classifier
	NoteStore  NoteStore
	Reply      Reply
	Intake     Intake
	Registry   Registry
	Admin      Admin
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr string
}

// Postgres configures the durable dedupe and audit stores. An empty DSN
// selects the in-memory backends (development only).
type Postgres struct {
	DSN string
}

// Redis configures the optional Redis dedupe backend.
type Redis struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Kafka configures the optional audit sink. Empty brokers disable it.
type Kafka struct {
	Brokers    []string
	AuditTopic string
}

// Classifier configures the classification API client.
type Classifier struct {
	BaseURL       string
	APIKey        string
	Model         string
	Timeout       time.Duration
	ConfidenceMin float64
}

// NoteStore configures the note-store API client.
type NoteStore struct {
	BaseURL     string
	Token       string
	Timeout     time.Duration
	MaxAttempts int
}

// Reply configures the chat reply client.
type Reply struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Intake configures inbound webhook verification and dispatch.
type Intake struct {
	SigningSecret string
	MaxSkew       time.Duration
	MaxInFlight   int
}

// Registry locates the mapping document.
type Registry struct {
	Path string
}

// Admin configures the JWT guard on operator endpoints.
type Admin struct {
	JWTSigningKey string
}

// FromEnv builds a Config from environment variables with development
// defaults where a missing value is safe.
func FromEnv() Config {
	return Config{
		Server: Server{
			Addr: getEnv("INKDROP_ADDR", ":8080"),
		},
		Postgres: Postgres{
			DSN: os.Getenv("INKDROP_POSTGRES_DSN"),
		},
		Redis: Redis{
			URL:          os.Getenv("INKDROP_REDIS_URL"),
			PoolSize:     getEnvInt("INKDROP_REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvInt("INKDROP_REDIS_MIN_IDLE", 2),
			DialTimeout:  getEnvDuration("INKDROP_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getEnvDuration("INKDROP_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getEnvDuration("INKDROP_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: Kafka{
			Brokers:    splitNonEmpty(os.Getenv("INKDROP_KAFKA_BROKERS")),
			AuditTopic: getEnv("INKDROP_KAFKA_AUDIT_TOPIC", "inkdrop.audit"),
		},
		Classifier: Classifier{
			BaseURL:       getEnv("INKDROP_CLASSIFIER_URL", "https://api.anthropic.com"),
			APIKey:        os.Getenv("INKDROP_CLASSIFIER_API_KEY"),
			Model:         getEnv("INKDROP_CLASSIFIER_MODEL", "claude-sonnet-4-20250514"),
			Timeout:       getEnvDuration("INKDROP_CLASSIFIER_TIMEOUT", 20*time.Second),
			ConfidenceMin: getEnvFloat("INKDROP_CONFIDENCE_MIN", 0.5),
		},
		NoteStore: NoteStore{
			BaseURL:     os.Getenv("INKDROP_NOTESTORE_URL"),
			Token:       os.Getenv("INKDROP_NOTESTORE_TOKEN"),
			Timeout:     getEnvDuration("INKDROP_NOTESTORE_TIMEOUT", 10*time.Second),
			MaxAttempts: getEnvInt("INKDROP_NOTESTORE_MAX_ATTEMPTS", 4),
		},
		Reply: Reply{
			BaseURL: os.Getenv("INKDROP_REPLY_URL"),
			Token:   os.Getenv("INKDROP_REPLY_TOKEN"),
			Timeout: getEnvDuration("INKDROP_REPLY_TIMEOUT", 10*time.Second),
		},
		Intake: Intake{
			SigningSecret: os.Getenv("INKDROP_SIGNING_SECRET"),
			MaxSkew:       getEnvDuration("INKDROP_INTAKE_MAX_SKEW", 5*time.Minute),
			MaxInFlight:   getEnvInt("INKDROP_INTAKE_MAX_IN_FLIGHT", 32),
		},
		Registry: Registry{
			Path: getEnv("INKDROP_REGISTRY_PATH", "registry.yaml"),
		},
		Admin: Admin{
			// Use a default for development - should be overridden in production
			JWTSigningKey: getEnv("INKDROP_ADMIN_JWT_KEY", "dev-secret-key-change-in-production"),
		},
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
