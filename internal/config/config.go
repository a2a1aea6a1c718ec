package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Backend names accepted by SESSION_BACKEND and EVENT_BACKEND.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config holds all configuration for the orchestration service
type Config struct {
	// Server configuration
	HTTPPort int    `env:"CARECOORD_HTTP_PORT" envDefault:"8080"`
	GRPCPort int    `env:"CARECOORD_GRPC_PORT" envDefault:"9090"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Downstream agents
	Agents AgentConfig

	// Session and event backends
	Sessions SessionConfig
	Events   EventConfig

	// Redis configuration
	Redis RedisConfig

	// Worker configuration
	Workers WorkerConfig

	// Timeouts
	Timeouts TimeoutConfig

	// Graph validation
	Validation ValidationConfig
}

// AgentConfig holds the base URLs of the specialized agents
type AgentConfig struct {
	SymptomAnalyzerURL   string        `env:"SYMPTOM_ANALYZER_URL" envDefault:"http://localhost:8001"`
	DiseasePredictionURL string        `env:"DISEASE_PREDICTION_URL" envDefault:"http://localhost:8002"`
	PatientJourneyURL    string        `env:"PATIENT_JOURNEY_URL" envDefault:"http://localhost:8003"`
	PromptProcessorURL   string        `env:"PROMPT_PROCESSOR_URL" envDefault:"http://localhost:8004"`
	RequestTimeout       time.Duration `env:"AGENT_REQUEST_TIMEOUT" envDefault:"0s"`
	DefaultPatientID     string        `env:"DEFAULT_PATIENT_ID" envDefault:"pat1"`
}

// SessionConfig selects where orchestration sessions are kept
type SessionConfig struct {
	Backend string        `env:"SESSION_BACKEND" envDefault:"memory"`
	TTL     time.Duration `env:"SESSION_TTL" envDefault:"0s"`
}

// EventConfig selects the orchestration event bus
type EventConfig struct {
	Backend      string `env:"EVENT_BACKEND" envDefault:"memory"`
	StreamMaxLen int64  `env:"EVENT_STREAM_MAXLEN" envDefault:"1000"`
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASS"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`

	// Connection pool settings
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	MaxRetries   int           `env:"REDIS_MAX_RETRIES" envDefault:"3"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`
}

// WorkerConfig holds worker pool configuration
type WorkerConfig struct {
	PoolSize            int           `env:"WORKER_POOL_SIZE" envDefault:"4"`
	QueueSize           int           `env:"WORKER_QUEUE_SIZE" envDefault:"64"`
	HealthCheckInterval time.Duration `env:"WORKER_HEALTH_CHECK_INTERVAL" envDefault:"30s"`
}

// TimeoutConfig holds various timeout configurations
type TimeoutConfig struct {
	OrchestrationTimeout time.Duration `env:"TIMEOUT_ORCHESTRATION" envDefault:"0s"` // 0 = unbounded
	ShutdownTimeout      time.Duration `env:"TIMEOUT_SHUTDOWN" envDefault:"30s"`
}

// ValidationConfig holds task-graph validation switches
type ValidationConfig struct {
	StrictDataFlow bool `env:"VALIDATION_STRICT_DATA_FLOW" envDefault:"false"`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.GRPCPort < 1 || c.GRPCPort > 65535 {
		return fmt.Errorf("invalid gRPC port: %d", c.GRPCPort)
	}

	if c.Agents.SymptomAnalyzerURL == "" || c.Agents.DiseasePredictionURL == "" ||
		c.Agents.PatientJourneyURL == "" || c.Agents.PromptProcessorURL == "" {
		return fmt.Errorf("all agent URLs are required")
	}
	if c.Agents.RequestTimeout < 0 {
		return fmt.Errorf("agent request timeout must not be negative")
	}

	if !validBackend(c.Sessions.Backend) {
		return fmt.Errorf("invalid session backend: %s (must be memory or redis)", c.Sessions.Backend)
	}
	if !validBackend(c.Events.Backend) {
		return fmt.Errorf("invalid event backend: %s (must be memory or redis)", c.Events.Backend)
	}
	if c.UsesRedis() && c.Redis.Addr == "" {
		return fmt.Errorf("redis address is required")
	}
	if c.Events.StreamMaxLen < 1 {
		return fmt.Errorf("event stream max length must be at least 1")
	}

	if c.Workers.PoolSize < 1 {
		return fmt.Errorf("worker pool size must be at least 1")
	}
	if c.Workers.QueueSize < 1 {
		return fmt.Errorf("worker queue size must be at least 1")
	}

	if c.Timeouts.OrchestrationTimeout < 0 {
		return fmt.Errorf("orchestration timeout must not be negative")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}

	return nil
}

// UsesRedis reports whether any backend needs a Redis connection
func (c *Config) UsesRedis() bool {
	return c.Sessions.Backend == BackendRedis || c.Events.Backend == BackendRedis
}

// GetHTTPAddr returns the HTTP server address
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// GetGRPCAddr returns the gRPC server address
func (c *Config) GetGRPCAddr() string {
	return fmt.Sprintf(":%d", c.GRPCPort)
}

func validBackend(name string) bool {
	return name == BackendMemory || name == BackendRedis
}
