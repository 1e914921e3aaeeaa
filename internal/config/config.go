package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	NodeEnv   string
	Port      string
	JWTSecret string
	Database  DatabaseConfig
	WhatsApp  WhatsAppConfig
	Lorawan   LorawanConfig
	ERP       ERPConfig
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	Database string
}

// WhatsAppConfig holds the notification gateway configuration
type WhatsAppConfig struct {
	APIURL      string
	APIToken    string
	SenderPhone string
}

// LorawanConfig holds the network-server provisioning webhook configuration
type LorawanConfig struct {
	WebhookURL string
	APIKey     string
}

// ERPConfig holds the Odoo XML-RPC connection for hardware catalog import
type ERPConfig struct {
	URL      string
	Database string
	Username string
	Password string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	return &Config{
		NodeEnv:   getEnv("NODE_ENV", "development"),
		Port:      getEnv("PORT", "3001"),
		JWTSecret: jwtSecret,
		Database: DatabaseConfig{
			Host:     getEnv("PG_HOST", "localhost"),
			Port:     getEnv("PG_PORT", "5432"),
			Username: getEnv("PG_USERNAME", "postgres"),
			Password: os.Getenv("PG_PASSWORD"),
			Database: getEnv("PG_DATABASE", "onboardflow"),
		},
		WhatsApp: WhatsAppConfig{
			APIURL:      os.Getenv("WHATSAPP_API_URL"),
			APIToken:    os.Getenv("WHATSAPP_API_TOKEN"),
			SenderPhone: os.Getenv("WHATSAPP_SENDER_PHONE"),
		},
		Lorawan: LorawanConfig{
			WebhookURL: os.Getenv("LORAWAN_WEBHOOK_URL"),
			APIKey:     os.Getenv("LORAWAN_API_KEY"),
		},
		ERP: ERPConfig{
			URL:      os.Getenv("ODOO_URL"),
			Database: os.Getenv("ODOO_DB"),
			Username: os.Getenv("ODOO_USERNAME"),
			Password: os.Getenv("ODOO_PASSWORD"),
		},
	}, nil
}

// getEnv gets environment variable with default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
