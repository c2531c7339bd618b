package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Storage      StorageConfig
	WhatsApp     WhatsAppConfig
	Notification NotificationConfig
	Kafka        KafkaConfig
	Event        EventConfig
	Phone        PhoneConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	MigrationsDir  string
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret              string
	AccessTokenTTLMinutes  int
	BcryptCost             int
	BootstrapAdminEmail    string
	BootstrapAdminPassword string
	MaxFailedLogins        int
	LockoutMinutes         int
}

// StorageConfig selects and configures the credential image store. When
// Endpoint is empty images are written under LocalDir and served by the API.
type StorageConfig struct {
	Endpoint      string
	Region        string
	AccessKey     string
	SecretKey     string
	QRBucket      string
	PublicBaseURL string
	LocalDir      string
}

// WhatsAppConfig controls the browser driven messaging session.
type WhatsAppConfig struct {
	Enabled               bool
	BaseURL               string
	SessionFile           string
	ComposeSelector       string
	Headless              bool
	PairingTimeoutSeconds int
	ComposeTimeoutSeconds int
}

// NotificationConfig tunes delivery pacing and retries.
type NotificationConfig struct {
	MinDelayMillis       int
	RetryCapacity        int
	RetryIntervalSeconds int
	RetryMaxAttempts     int
	SubmitTimeoutSeconds int
}

// KafkaConfig enables forwarding of lifecycle events. Empty Brokers disables it.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// EventConfig describes the event attendees register for.
type EventConfig struct {
	Name string
}

// PhoneConfig configures number normalization.
type PhoneConfig struct {
	CountryCode string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "event-checkin"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "5000"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 60),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			MigrationsDir:  getEnv("POSTGRES_MIGRATIONS_DIR", "migrations"),
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:              getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes:  getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			BcryptCost:             getEnvAsInt("AUTH_BCRYPT_COST", 12),
			BootstrapAdminEmail:    os.Getenv("ADMIN_BOOTSTRAP_EMAIL"),
			BootstrapAdminPassword: os.Getenv("ADMIN_BOOTSTRAP_PASSWORD"),
			MaxFailedLogins:        getEnvAsInt("AUTH_MAX_FAILED_LOGINS", 5),
			LockoutMinutes:         getEnvAsInt("AUTH_LOCKOUT_MINUTES", 15),
		},
		Storage: StorageConfig{
			Endpoint:      os.Getenv("STORAGE_ENDPOINT"),
			Region:        getEnv("STORAGE_REGION", "us-east-1"),
			AccessKey:     os.Getenv("STORAGE_ACCESS_KEY"),
			SecretKey:     os.Getenv("STORAGE_SECRET_KEY"),
			QRBucket:      getEnv("STORAGE_QR_BUCKET", "qr_codes"),
			PublicBaseURL: getEnv("STORAGE_PUBLIC_BASE_URL", "http://localhost:5000/media"),
			LocalDir:      getEnv("STORAGE_LOCAL_DIR", "data/media"),
		},
		WhatsApp: WhatsAppConfig{
			Enabled:               getEnvAsBool("WHATSAPP_ENABLED", false),
			BaseURL:               getEnv("WHATSAPP_BASE_URL", "https://web.whatsapp.com"),
			SessionFile:           getEnv("WHATSAPP_SESSION_FILE", "data/whatsapp_session.json"),
			ComposeSelector:       getEnv("WHATSAPP_COMPOSE_SELECTOR", `//div[@title="Type a message"]`),
			Headless:              getEnvAsBool("WHATSAPP_HEADLESS", true),
			PairingTimeoutSeconds: getEnvAsInt("WHATSAPP_PAIRING_TIMEOUT_SECONDS", 20),
			ComposeTimeoutSeconds: getEnvAsInt("WHATSAPP_COMPOSE_TIMEOUT_SECONDS", 30),
		},
		Notification: NotificationConfig{
			MinDelayMillis:       getEnvAsInt("NOTIFY_MIN_DELAY_MS", 2000),
			RetryCapacity:        getEnvAsInt("NOTIFY_RETRY_CAPACITY", 256),
			RetryIntervalSeconds: getEnvAsInt("NOTIFY_RETRY_INTERVAL_SECONDS", 30),
			RetryMaxAttempts:     getEnvAsInt("NOTIFY_RETRY_MAX_ATTEMPTS", 5),
			SubmitTimeoutSeconds: getEnvAsInt("NOTIFY_SUBMIT_TIMEOUT_SECONDS", 45),
		},
		Kafka: KafkaConfig{
			Brokers: getEnvAsList("KAFKA_BROKERS"),
			Topic:   getEnv("KAFKA_TOPIC", "attendee-lifecycle"),
		},
		Event: EventConfig{
			Name: getEnv("EVENT_NAME", "iftar event"),
		},
		Phone: PhoneConfig{
			CountryCode: getEnv("PHONE_COUNTRY_CODE", "880"),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// LockoutWindow returns how long an email stays locked after too many failures.
func (a AuthConfig) LockoutWindow() time.Duration {
	return time.Duration(a.LockoutMinutes) * time.Minute
}

// PairingTimeout bounds the interactive pairing wait.
func (w WhatsAppConfig) PairingTimeout() time.Duration {
	return time.Duration(w.PairingTimeoutSeconds) * time.Second
}

// ComposeTimeout bounds the wait for the message box to become interactive.
func (w WhatsAppConfig) ComposeTimeout() time.Duration {
	return time.Duration(w.ComposeTimeoutSeconds) * time.Second
}

// MinDelay is charged after every successful delivery.
func (n NotificationConfig) MinDelay() time.Duration {
	return time.Duration(n.MinDelayMillis) * time.Millisecond
}

// RetryInterval is the drain tick and the initial retry backoff.
func (n NotificationConfig) RetryInterval() time.Duration {
	return time.Duration(n.RetryIntervalSeconds) * time.Second
}

// SubmitTimeout bounds how long a caller waits for its turn on the channel.
func (n NotificationConfig) SubmitTimeout() time.Duration {
	return time.Duration(n.SubmitTimeoutSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsList(key string) []string {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
