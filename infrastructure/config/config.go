package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds all service configuration loaded from the environment.
type Config struct {
	// Service identity
	ServiceName   string
	ServerAddress string
	Environment   string

	// Event store
	MongoURI         string
	MongoDBNameEvent string
	// Read models live in a separate database so projections can be
	// rebuilt without touching the streams.
	MongoDBNameLibrary string

	// Broker
	RabbitMQUsername       string
	RabbitMQPassword       string
	RabbitMQURL            string
	RabbitMQPort           int
	RabbitMQEventsExchange string

	// Projection cache
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Logging
	LogLevel string

	// Authentication
	JWTSecret string
	JWTIssuer string

	// Feature flags
	EnableMetrics bool
	EnableCORS    bool
}

// LoadConfig loads configuration from environment variables.
func LoadConfig(serviceName string) (*Config, error) {
	cfg := &Config{
		ServiceName:   serviceName,
		ServerAddress: getEnv("SERVER_ADDRESS", ":8080"),
		Environment:   getEnv("ENVIRONMENT", getEnv("NODE_ENV", "development")),

		MongoURI:           getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDBNameEvent:   getEnv("MONGO_DB_NAME_EVENT", "bibliotek_events"),
		MongoDBNameLibrary: getEnv("MONGO_DB_NAME_LIBRARY", "bibliotek_library"),

		RabbitMQUsername:       getEnv("RABBIT_MQ_USERNAME", "guest"),
		RabbitMQPassword:       getEnv("RABBIT_MQ_PASSWORD", "guest"),
		RabbitMQURL:            getEnv("RABBIT_MQ_URL", "localhost"),
		RabbitMQPort:           getEnvInt("RABBIT_MQ_PORT", 5672),
		RabbitMQEventsExchange: getEnv("RABBIT_MQ_EVENTS_EXCHANGE", "events"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		LogLevel: getEnv("LOG_LEVEL", "info"),

		JWTSecret: getEnv("JWT_SECRET", ""),
		JWTIssuer: getEnv("JWT_ISSUER", "bibliotek"),

		EnableMetrics: getEnvBool("ENABLE_METRICS", true),
		EnableCORS:    getEnvBool("ENABLE_CORS", true),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	// Outside production a missing secret falls back to a fixed dev value so
	// the services boot without any environment set up.
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "bibliotek-dev-secret"
	}
	return cfg, nil
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service name is required")
	}
	if c.IsProduction() {
		if c.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required in production")
		}
		if c.MongoURI == "" {
			return fmt.Errorf("MONGO_URI is required")
		}
	}
	return nil
}

// AMQPAddress builds the broker connection string.
func (c *Config) AMQPAddress() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%d/", c.RabbitMQUsername, c.RabbitMQPassword, c.RabbitMQURL, c.RabbitMQPort)
}

// QueueName returns this service's durable queue, e.g. "books.production.queue".
func (c *Config) QueueName() string {
	return fmt.Sprintf("%s.%s.queue", c.ServiceName, c.Environment)
}

// IsDevelopment checks if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction checks if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// getEnv gets an environment variable with a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value.
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

// getEnvInt gets an integer environment variable with a default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
