package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds application configuration
type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Storage     StorageConfig
	Groq        GroqConfig
	Scheduler   SchedulerConfig
	Suggestions SuggestionsConfig
	Dataset     DatasetConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port            string
	Host            string
	Environment     string
	AllowedOrigins  []string
	ShutdownTimeout int
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host        string
	Port        string
	User        string
	Password    string
	Name        string
	SSLMode     string
	MaxConns    int
	MinConns    int
	AutoMigrate bool
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// StorageConfig holds storage configuration
type StorageConfig struct {
	Type            string // "minio" or "s3"
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	UseSSL          bool
}

// GroqConfig holds the extraction service configuration
type GroqConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// SchedulerConfig holds the enrichment scheduling knobs. Loaded with
// envconfig using the SCRIBE prefix, e.g. SCRIBE_SILENCE_THRESHOLD=12s.
type SchedulerConfig struct {
	SilenceThreshold  time.Duration `envconfig:"SILENCE_THRESHOLD" default:"12s"`
	MinUpdateInterval time.Duration `envconfig:"MIN_UPDATE_INTERVAL" default:"20s"`
	MinUtterances     int           `envconfig:"MIN_UTTERANCES" default:"3"`
	Tick              time.Duration `envconfig:"TICK" default:"1s"`
	ExtractionTimeout time.Duration `envconfig:"EXTRACTION_TIMEOUT" default:"45s"`
	RelevanceFilter   bool          `envconfig:"RELEVANCE_FILTER" default:"true"`
	WorkerCount       int           `envconfig:"WORKER_COUNT" default:"4"`
}

// SuggestionsConfig holds suggestion index configuration
type SuggestionsConfig struct {
	Backend   string // "redis" or "memory"
	KeyPrefix string
	TopK      int
}

// DatasetConfig holds the training dataset export configuration
type DatasetConfig struct {
	Enabled bool
	Path    string
}

// DefaultScheduler returns the scheduler defaults
func DefaultScheduler() SchedulerConfig {
	return SchedulerConfig{
		SilenceThreshold:  12 * time.Second,
		MinUpdateInterval: 20 * time.Second,
		MinUtterances:     3,
		Tick:              time.Second,
		ExtractionTimeout: 45 * time.Second,
		RelevanceFilter:   true,
		WorkerCount:       4,
	}
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using environment variables or defaults")
	}

	config := &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", "8080"),
			Host:            getEnv("HOST", "0.0.0.0"),
			Environment:     getEnv("ENVIRONMENT", "development"),
			AllowedOrigins:  getEnvAsList("ALLOWED_ORIGINS", "http://localhost:3000"),
			ShutdownTimeout: getEnvAsInt("SHUTDOWN_TIMEOUT", 10),
		},
		Database: DatabaseConfig{
			Host:        getEnv("DB_HOST", "localhost"),
			Port:        getEnv("DB_PORT", "5432"),
			User:        getEnv("DB_USER", "postgres"),
			Password:    getEnv("DB_PASSWORD", "postgres"),
			Name:        getEnv("DB_NAME", "clinical_scribe"),
			SSLMode:     getEnv("DB_SSLMODE", "disable"),
			MaxConns:    getEnvAsInt("DB_MAX_CONNS", 25),
			MinConns:    getEnvAsInt("DB_MIN_CONNS", 5),
			AutoMigrate: getEnvAsBool("DB_AUTO_MIGRATE", true),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Storage: StorageConfig{
			Type:            getEnv("STORAGE_TYPE", "minio"),
			Endpoint:        getEnv("STORAGE_ENDPOINT", "localhost:9000"),
			AccessKeyID:     getEnv("STORAGE_ACCESS_KEY", "minioadmin"),
			SecretAccessKey: getEnv("STORAGE_SECRET_KEY", "minioadmin"),
			BucketName:      getEnv("STORAGE_BUCKET", "clinical-reports"),
			UseSSL:          getEnvAsBool("STORAGE_USE_SSL", false),
		},
		Groq: GroqConfig{
			APIKey:  getEnv("GROQ_API_KEY", ""),
			BaseURL: getEnv("GROQ_BASE_URL", "https://api.groq.com/openai/v1"),
			Model:   getEnv("GROQ_MODEL", "llama-3.1-8b-instant"),
		},
		Suggestions: SuggestionsConfig{
			Backend:   getEnv("SUGGESTIONS_BACKEND", "redis"),
			KeyPrefix: getEnv("SUGGESTIONS_KEY_PREFIX", "scribe:suggestions"),
			TopK:      getEnvAsInt("SUGGESTIONS_TOP_K", 7),
		},
		Dataset: DatasetConfig{
			Enabled: getEnvAsBool("DATASET_EXPORT_ENABLED", true),
			Path:    getEnv("DATASET_PATH", "data/datasets/clinical_ai_v1.jsonl"),
		},
	}

	if err := envconfig.Process("SCRIBE", &config.Scheduler); err != nil {
		return nil, fmt.Errorf("failed to load scheduler config: %w", err)
	}

	// Validate required fields
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Groq.APIKey == "" && !c.IsDevelopment() {
		return fmt.Errorf("GROQ_API_KEY is required")
	}
	if err := c.Scheduler.Validate(); err != nil {
		return err
	}
	if c.Suggestions.TopK <= 0 {
		return fmt.Errorf("SUGGESTIONS_TOP_K must be positive")
	}
	return nil
}

// Validate validates the scheduler knobs
func (s SchedulerConfig) Validate() error {
	if s.Tick <= 0 {
		return fmt.Errorf("SCRIBE_TICK must be positive")
	}
	if s.MinUtterances <= 0 {
		return fmt.Errorf("SCRIBE_MIN_UTTERANCES must be positive")
	}
	if s.SilenceThreshold <= 0 {
		return fmt.Errorf("SCRIBE_SILENCE_THRESHOLD must be positive")
	}
	if s.MinUpdateInterval < 0 {
		return fmt.Errorf("SCRIBE_MIN_UPDATE_INTERVAL must not be negative")
	}
	if s.ExtractionTimeout <= 0 {
		return fmt.Errorf("SCRIBE_EXTRACTION_TIMEOUT must be positive")
	}
	if s.WorkerCount <= 0 {
		return fmt.Errorf("SCRIBE_WORKER_COUNT must be positive")
	}
	return nil
}

// IsDevelopment reports whether the service runs in development mode
func (c *Config) IsDevelopment() bool {
	return c.Server.Environment == "development"
}

// GetDatabaseDSN returns the database connection string
func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// GetRedisAddr returns the Redis address
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", c.Redis.Host, c.Redis.Port)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key, defaultValue string) []string {
	var out []string
	for _, v := range strings.Split(getEnv(key, defaultValue), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
