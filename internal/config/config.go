package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Store backends understood by the server.
const (
	StoreMemory = "memory"
	StoreMySQL  = "mysql"
)

// Config holds all configuration for our application
type Config struct {
	Port                 string
	Origin               string
	Environment          string
	LogLevel             string
	JWTSecret            string
	JWTExpirationMinutes int
	StoreBackend         string
	Database             DatabaseConfig
	Equipment            EquipmentConfig
	Lab                  LabConfig
	Kafka                KafkaConfig
}

// DatabaseConfig holds database connection details
type DatabaseConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	Name     string
	DSN      string
}

// EquipmentConfig holds settings for the equipment lifecycle manager
type EquipmentConfig struct {
	ExpiringSoonDays int
}

// LabConfig holds settings for the lab result interpreter
type LabConfig struct {
	// CatalogPath points at a YAML test catalog. Empty means the built-in catalog.
	CatalogPath string
}

// KafkaConfig holds the critical-result notification transport.
// No brokers means notifications are only logged.
type KafkaConfig struct {
	Brokers       []string
	CriticalTopic string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	dbConfig := DatabaseConfig{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     getEnv("DB_PORT", "3306"),
		Username: getEnv("DB_USERNAME", "root"),
		Password: getEnv("DB_PASSWORD", ""),
		Name:     getEnv("DB_NAME", "diabetes_clinic"),
	}

	// Build DSN (Data Source Name) for MySQL connection
	dbConfig.DSN = fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		dbConfig.Username, dbConfig.Password, dbConfig.Host, dbConfig.Port, dbConfig.Name)

	jwtExpMinutes, err := strconv.Atoi(getEnv("JWT_EXPIRATION_MINUTES", "60"))
	if err != nil {
		return nil, fmt.Errorf("invalid JWT_EXPIRATION_MINUTES: %w", err)
	}

	expiringSoonDays, err := strconv.Atoi(getEnv("WARRANTY_EXPIRING_SOON_DAYS", "30"))
	if err != nil {
		return nil, fmt.Errorf("invalid WARRANTY_EXPIRING_SOON_DAYS: %w", err)
	}

	cfg := &Config{
		Port:                 getEnv("PORT", "3001"),
		Origin:               getEnv("ORIGIN", "http://localhost:4200"),
		Environment:          getEnv("APP_ENV", "development"),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		JWTSecret:            getEnv("JWT_SECRET", "default_jwt_secret"),
		JWTExpirationMinutes: jwtExpMinutes,
		StoreBackend:         strings.ToLower(getEnv("STORE_BACKEND", StoreMemory)),
		Database:             dbConfig,
		Equipment: EquipmentConfig{
			ExpiringSoonDays: expiringSoonDays,
		},
		Lab: LabConfig{
			CatalogPath: getEnv("LAB_CATALOG_PATH", ""),
		},
		Kafka: KafkaConfig{
			Brokers:       splitList(getEnv("KAFKA_BROKERS", "")),
			CriticalTopic: getEnv("KAFKA_CRITICAL_TOPIC", "lab.critical-results"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that cannot be caught while parsing
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case StoreMemory, StoreMySQL:
	default:
		return fmt.Errorf("invalid STORE_BACKEND %q: expected %q or %q", c.StoreBackend, StoreMemory, StoreMySQL)
	}
	if c.Equipment.ExpiringSoonDays <= 0 {
		return fmt.Errorf("invalid WARRANTY_EXPIRING_SOON_DAYS: must be positive, got %d", c.Equipment.ExpiringSoonDays)
	}
	if c.JWTExpirationMinutes <= 0 {
		return fmt.Errorf("invalid JWT_EXPIRATION_MINUTES: must be positive, got %d", c.JWTExpirationMinutes)
	}
	return nil
}

// Helper function to get environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
