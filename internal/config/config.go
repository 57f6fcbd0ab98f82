package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
)

type Config struct {
	Port    string
	GinMode string

	// Database
	DatabaseDriver    string // "postgres" or "sqlite"
	DatabaseURL       string
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxIdleTime int // in minutes
	DBConnMaxLifetime int // in minutes

	// LLM provider
	OpenAIAPIKey      string
	OpenAIBaseURL     string
	LLMModel          string
	LLMTimeoutSeconds int

	// Digest pipeline
	DigestMaxChunkSize    int
	DigestChunkMeasure    string // "bytes" or "tokens"
	DigestWorkers         int
	DigestScriptConverter string // OpenCC scheme, e.g. "s2twp"; empty disables conversion
	DigestMarkSeen        bool   // rotate current infos into previous after a summarize run
	PromptsFile           string // empty uses the embedded prompt set
	PromptsLocale         string
	DigestRetentionDays   int // stored digests older than this are pruned daily; 0 keeps them forever

	// Scheduled digests. Loaded from the YAML config file; DIGEST_SCHEDULE adds one entry.
	Schedules []ScheduleConfig `yaml:"schedules"`

	// NATS
	NatsURL string

	// Push Notifications
	PushNotificationsEnabled bool
	FirebaseProjectID        string
	FirebaseCredJSON         string

	// Server
	ServerShutdownTimeoutSeconds int

	// CORS
	CORSAllowedOrigins string

	// Logging
	LogLevel  string
	LogFormat string
}

// ScheduleConfig is one periodic digest run.
type ScheduleConfig struct {
	Spec   string `yaml:"spec"`
	Mode   string `yaml:"mode"`
	Notify bool   `yaml:"notify"`
}

var AppConfig *Config

const (
	DefaultMaxChunkSize = 5000
	DefaultWorkers      = 4
	DefaultModel        = "gpt-4"
	DefaultBaseURL      = "https://api.openai.com/v1"
)

// LoadConfig reads .env, the environment and the optional YAML config file, and
// stores the result in AppConfig.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := FromEnv()

	configFilePath := getEnvOrDefault("CONFIG_FILE", "config.yaml")
	configFile, err := os.Open(configFilePath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		log.Printf("Config file %s not found, using environment only", configFilePath)
	case err != nil:
		return nil, fmt.Errorf("failed to open config file: %w", err)
	default:
		defer configFile.Close()
		log.Printf("Loading config file: %v", configFilePath)
		if err := LoadConfigFile(configFile, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if spec := strings.TrimSpace(os.Getenv("DIGEST_SCHEDULE")); spec != "" {
		cfg.Schedules = append(cfg.Schedules, ScheduleConfig{
			Spec:   spec,
			Mode:   getEnvOrDefault("DIGEST_SCHEDULE_MODE", "summarize"),
			Notify: getEnvOrDefault("DIGEST_SCHEDULE_NOTIFY", "true") == "true",
		})
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.OpenAIAPIKey == "" {
		log.Println("Warning: OpenAI API key is missing. Please set OPENAI_API_KEY environment variable.")
	}

	if cfg.PushNotificationsEnabled && cfg.FirebaseCredJSON == "" {
		log.Println("Warning: push notifications enabled but FIREBASE_CRED_JSON is missing.")
	}

	AppConfig = cfg
	return cfg, nil
}

// FromEnv builds a Config from environment variables only.
func FromEnv() *Config {
	return &Config{
		Port:    getEnvOrDefault("PORT", "8080"),
		GinMode: getEnvOrDefault("GIN_MODE", "release"),

		// Database
		DatabaseDriver:    strings.ToLower(getEnvOrDefault("DATABASE_DRIVER", "sqlite")),
		DatabaseURL:       getEnvOrDefault("DATABASE_URL", "notigpt.db"),
		DBMaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 15),
		DBMaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		DBConnMaxIdleTime: getEnvAsInt("DB_CONN_MAX_IDLE_TIME_MINUTES", 1),
		DBConnMaxLifetime: getEnvAsInt("DB_CONN_MAX_LIFETIME_MINUTES", 30),

		// LLM provider
		OpenAIAPIKey:      strings.TrimSpace(getEnvOrDefault("OPENAI_API_KEY", "")),
		OpenAIBaseURL:     strings.TrimRight(getEnvOrDefault("OPENAI_BASE_URL", DefaultBaseURL), "/"),
		LLMModel:          getEnvOrDefault("LLM_MODEL", DefaultModel),
		LLMTimeoutSeconds: getEnvAsInt("LLM_TIMEOUT_SECONDS", 900),

		// Digest pipeline
		DigestMaxChunkSize:    getEnvAsInt("DIGEST_MAX_CHUNK_SIZE", DefaultMaxChunkSize),
		DigestChunkMeasure:    getEnvOrDefault("DIGEST_CHUNK_MEASURE", "bytes"),
		DigestWorkers:         getEnvAsInt("DIGEST_WORKERS", DefaultWorkers),
		DigestScriptConverter: getEnvOrDefault("DIGEST_SCRIPT_CONVERSION", ""),
		DigestMarkSeen:        getEnvOrDefault("DIGEST_MARK_SEEN", "false") == "true",
		PromptsFile:           getEnvOrDefault("PROMPTS_FILE", ""),
		PromptsLocale:         getEnvOrDefault("PROMPTS_LOCALE", "en"),
		DigestRetentionDays:   getEnvAsInt("DIGEST_RETENTION_DAYS", 30),

		// NATS
		NatsURL: getEnvOrDefault("NATS_URL", ""),

		// Push Notifications
		PushNotificationsEnabled: getEnvOrDefault("PUSH_NOTIFICATIONS_ENABLED", "false") == "true",
		FirebaseProjectID:        getEnvOrDefault("FIREBASE_PROJECT_ID", ""),
		FirebaseCredJSON:         getEnvOrDefault("FIREBASE_CRED_JSON", ""),

		// Server
		ServerShutdownTimeoutSeconds: getEnvAsInt("SERVER_SHUTDOWN_TIMEOUT_SECONDS", 30),

		// CORS
		CORSAllowedOrigins: getEnvOrDefault("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),

		// Logging
		LogLevel:  getEnvOrDefault("LOG_LEVEL", "debug"),
		LogFormat: getEnvOrDefault("LOG_FORMAT", "text"),
	}
}

// Validate checks settings that would otherwise fail deep inside a component.
func (c *Config) Validate() error {
	switch c.DatabaseDriver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported DATABASE_DRIVER %q: must be postgres or sqlite", c.DatabaseDriver)
	}

	switch c.DigestChunkMeasure {
	case "bytes", "tokens":
	default:
		return fmt.Errorf("unsupported DIGEST_CHUNK_MEASURE %q: must be bytes or tokens", c.DigestChunkMeasure)
	}

	if c.DigestMaxChunkSize <= 0 {
		return fmt.Errorf("DIGEST_MAX_CHUNK_SIZE must be positive, got %d", c.DigestMaxChunkSize)
	}

	if c.DigestWorkers <= 0 {
		return fmt.Errorf("DIGEST_WORKERS must be positive, got %d", c.DigestWorkers)
	}

	if c.DigestRetentionDays < 0 {
		return fmt.Errorf("DIGEST_RETENTION_DAYS must not be negative, got %d", c.DigestRetentionDays)
	}

	for i, s := range c.Schedules {
		if strings.TrimSpace(s.Spec) == "" {
			return fmt.Errorf("schedules[%d]: spec is required", i)
		}
	}

	return nil
}

// LLMTimeout returns the HTTP timeout for chat-completion calls.
func (c *Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLMTimeoutSeconds) * time.Second
}

// CORSOrigins splits CORSAllowedOrigins on commas.
func (c *Config) CORSOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.CORSAllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		} else {
			log.Printf("Warning: Failed to parse environment variable %s='%s' as int, using default %d: %v", key, value, defaultValue, err)
		}
	}
	return defaultValue
}

// LoadConfigFile decodes a YAML config file on top of config.
func LoadConfigFile(reader io.Reader, config *Config) error {
	decoder := yaml.NewDecoder(reader)

	if err := decoder.Decode(config); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}

	return nil
}
