package config

import (
	"fmt"
	"log"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all service configuration, grouped by concern
type Config struct {
	Environment string

	Server   ServerConfig
	Database DatabaseConfig
	Cache    CacheConfig
	Queue    QueueConfig
	Agent    AgentConfig
	Flow     FlowConfig
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host string
	Port string
}

// DatabaseConfig holds PostgreSQL settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	LogLevel        string
	MaxConnections  int
	MinConnections  int
	MaxConnLifetime int // minutes
	MaxConnIdleTime int // minutes
}

// CacheConfig holds Redis settings
type CacheConfig struct {
	Host         string
	Port         int
	Password     string
	DB           int
	DialTimeout  int // seconds
	ReadTimeout  int // seconds
	WriteTimeout int // seconds
	PoolSize     int
	MinIdleConns int
}

// QueueConfig holds Asynq worker settings
type QueueConfig struct {
	RedisHost      string
	RedisPort      int
	RedisPassword  string
	RedisDB        int
	DialTimeout    int // seconds
	ReadTimeout    int // seconds
	WriteTimeout   int // seconds
	Concurrency    int
	StrictPriority bool
	MaxRetries     int
}

// AgentConfig holds settings for the external pitch generation service
type AgentConfig struct {
	BaseURL          string
	APIKey           string
	PitchWorkflow    string
	GuidanceWorkflow string
	RequestTimeout   int // seconds
}

// FlowConfig holds wizard/session tuning.
// Poll interval and attempt bound are fixed deployment configuration,
// never exposed to users.
type FlowConfig struct {
	PollIntervalSeconds  int
	PollMaxAttempts      int
	AutosaveDebounceMS   int
	GuidanceCacheTTLHrs  int
	SaveRetryMaxAttempts int
}

// Load loads configuration from environment variables and .env file
func Load() (*Config, error) {
	// Load .env file if exists
	if err := godotenv.Load(".env"); err != nil {
		if err := godotenv.Load("../.env"); err != nil {
			log.Println("No .env file found, using environment variables only")
		}
	}

	// Set defaults
	viper.SetDefault("ENV", "development")
	viper.SetDefault("SERVER_HOST", "0.0.0.0")
	viper.SetDefault("SERVER_PORT", "8080")

	// Database defaults
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", 5432)
	viper.SetDefault("DB_NAME", "pitchbuilder")
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("DB_LOG_LEVEL", "silent")
	viper.SetDefault("DB_MAX_CONNECTIONS", 25)
	viper.SetDefault("DB_MIN_CONNECTIONS", 5)
	viper.SetDefault("DB_MAX_CONN_LIFETIME", 60)
	viper.SetDefault("DB_MAX_CONN_IDLE_TIME", 10)

	// Redis defaults
	viper.SetDefault("REDIS_HOST", "localhost")
	viper.SetDefault("REDIS_PORT", 6379)
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("REDIS_DIAL_TIMEOUT", 5)
	viper.SetDefault("REDIS_READ_TIMEOUT", 3)
	viper.SetDefault("REDIS_WRITE_TIMEOUT", 3)
	viper.SetDefault("REDIS_POOL_SIZE", 10)
	viper.SetDefault("REDIS_MIN_IDLE_CONNS", 2)

	// Worker defaults
	viper.SetDefault("WORKER_CONCURRENCY", 10)
	viper.SetDefault("WORKER_MAX_RETRIES", 3)
	viper.SetDefault("WORKER_STRICT_PRIORITY", false)

	// Agent defaults
	viper.SetDefault("AGENT_BASE_URL", "https://api.promptlayer.com")
	viper.SetDefault("AGENT_PITCH_WORKFLOW", "Master_Agent_V1")
	viper.SetDefault("AGENT_GUIDANCE_WORKFLOW", "Guidance_Agent_V1")
	viper.SetDefault("AGENT_REQUEST_TIMEOUT", 30)

	// Flow defaults: 5s * 60 attempts gives a five minute wait ceiling
	viper.SetDefault("FLOW_POLL_INTERVAL_SECONDS", 5)
	viper.SetDefault("FLOW_POLL_MAX_ATTEMPTS", 60)
	viper.SetDefault("FLOW_AUTOSAVE_DEBOUNCE_MS", 750)
	viper.SetDefault("FLOW_GUIDANCE_CACHE_TTL_HOURS", 24)
	viper.SetDefault("FLOW_SAVE_RETRY_MAX_ATTEMPTS", 3)

	// Bind environment variables
	viper.AutomaticEnv()

	config := &Config{
		Environment: viper.GetString("ENV"),
		Server: ServerConfig{
			Host: viper.GetString("SERVER_HOST"),
			Port: viper.GetString("SERVER_PORT"),
		},
		Database: DatabaseConfig{
			Host:            viper.GetString("DB_HOST"),
			Port:            viper.GetInt("DB_PORT"),
			User:            viper.GetString("DB_USER"),
			Password:        viper.GetString("DB_PASSWORD"),
			Database:        viper.GetString("DB_NAME"),
			SSLMode:         viper.GetString("DB_SSLMODE"),
			LogLevel:        viper.GetString("DB_LOG_LEVEL"),
			MaxConnections:  viper.GetInt("DB_MAX_CONNECTIONS"),
			MinConnections:  viper.GetInt("DB_MIN_CONNECTIONS"),
			MaxConnLifetime: viper.GetInt("DB_MAX_CONN_LIFETIME"),
			MaxConnIdleTime: viper.GetInt("DB_MAX_CONN_IDLE_TIME"),
		},
		Cache: CacheConfig{
			Host:         viper.GetString("REDIS_HOST"),
			Port:         viper.GetInt("REDIS_PORT"),
			Password:     viper.GetString("REDIS_PASSWORD"),
			DB:           viper.GetInt("REDIS_DB"),
			DialTimeout:  viper.GetInt("REDIS_DIAL_TIMEOUT"),
			ReadTimeout:  viper.GetInt("REDIS_READ_TIMEOUT"),
			WriteTimeout: viper.GetInt("REDIS_WRITE_TIMEOUT"),
			PoolSize:     viper.GetInt("REDIS_POOL_SIZE"),
			MinIdleConns: viper.GetInt("REDIS_MIN_IDLE_CONNS"),
		},
		Queue: QueueConfig{
			RedisHost:      viper.GetString("REDIS_HOST"),
			RedisPort:      viper.GetInt("REDIS_PORT"),
			RedisPassword:  viper.GetString("REDIS_PASSWORD"),
			RedisDB:        viper.GetInt("REDIS_DB"),
			DialTimeout:    viper.GetInt("REDIS_DIAL_TIMEOUT"),
			ReadTimeout:    viper.GetInt("REDIS_READ_TIMEOUT"),
			WriteTimeout:   viper.GetInt("REDIS_WRITE_TIMEOUT"),
			Concurrency:    viper.GetInt("WORKER_CONCURRENCY"),
			StrictPriority: viper.GetBool("WORKER_STRICT_PRIORITY"),
			MaxRetries:     viper.GetInt("WORKER_MAX_RETRIES"),
		},
		Agent: AgentConfig{
			BaseURL:          viper.GetString("AGENT_BASE_URL"),
			APIKey:           viper.GetString("AGENT_API_KEY"),
			PitchWorkflow:    viper.GetString("AGENT_PITCH_WORKFLOW"),
			GuidanceWorkflow: viper.GetString("AGENT_GUIDANCE_WORKFLOW"),
			RequestTimeout:   viper.GetInt("AGENT_REQUEST_TIMEOUT"),
		},
		Flow: FlowConfig{
			PollIntervalSeconds:  viper.GetInt("FLOW_POLL_INTERVAL_SECONDS"),
			PollMaxAttempts:      viper.GetInt("FLOW_POLL_MAX_ATTEMPTS"),
			AutosaveDebounceMS:   viper.GetInt("FLOW_AUTOSAVE_DEBOUNCE_MS"),
			GuidanceCacheTTLHrs:  viper.GetInt("FLOW_GUIDANCE_CACHE_TTL_HOURS"),
			SaveRetryMaxAttempts: viper.GetInt("FLOW_SAVE_RETRY_MAX_ATTEMPTS"),
		},
	}

	// Validate required fields
	if config.Database.User == "" {
		return nil, fmt.Errorf("DB_USER is required")
	}
	if config.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}
	if config.Agent.APIKey == "" {
		return nil, fmt.Errorf("AGENT_API_KEY is required")
	}

	return config, nil
}

// GetDatabaseURL constructs the PostgreSQL connection string
func (c *Config) GetDatabaseURL() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host, c.Database.Port, c.Database.User, c.Database.Password,
		c.Database.Database, c.Database.SSLMode)
}

// GetRedisURL constructs the Redis connection string
func (c *Config) GetRedisURL() string {
	return fmt.Sprintf("%s:%d", c.Cache.Host, c.Cache.Port)
}

// IsProduction returns true if running in production
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// IsDevelopment returns true if running in development
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// LogConfig logs the configuration (hiding sensitive data)
func (c *Config) LogConfig() {
	log.Printf("Configuration loaded:")
	log.Printf("  Environment: %s", c.Environment)
	log.Printf("  Server: %s:%s", c.Server.Host, c.Server.Port)
	log.Printf("  Database: %s:%d/%s", c.Database.Host, c.Database.Port, c.Database.Database)
	log.Printf("  Redis: %s:%d (DB: %d)", c.Cache.Host, c.Cache.Port, c.Cache.DB)
	log.Printf("  Agent: %s (pitch=%s guidance=%s)", c.Agent.BaseURL, c.Agent.PitchWorkflow, c.Agent.GuidanceWorkflow)
	log.Printf("  Poll: every %ds, max %d attempts", c.Flow.PollIntervalSeconds, c.Flow.PollMaxAttempts)
	log.Printf("  Worker Concurrency: %d", c.Queue.Concurrency)

	// Check API key without revealing it
	if c.Agent.APIKey != "" {
		log.Printf("  Agent API Key: [CONFIGURED]")
	} else {
		log.Printf("  Agent API Key: [NOT SET]")
	}
}
