package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port        string
	Environment string

	// Database
	Database DatabaseConfig

	// Chat assistant
	Chatbot ChatbotConfig

	// WhatsApp Cloud API channel
	WhatsApp WhatsAppConfig

	// Logging
	Log LogConfig

	// Security
	Security SecurityConfig
}

type DatabaseConfig struct {
	Type     string // only "mongodb" is supported
	URI      string
	Name     string
	Host     string
	Port     string
	Username string
	Password string

	// Connection pool settings
	MaxConnections int
	MinConnections int
	MaxIdleTime    time.Duration
	QueryTimeout   time.Duration
}

type ChatbotConfig struct {
	ThinkingDelay      time.Duration
	CacheTTL           time.Duration
	SessionTTL         time.Duration
	MaxHistoryMessages int
	TimezoneOffset     int // hours east of UTC used when rendering dates
	ArchiveTranscripts bool
}

type WhatsAppConfig struct {
	APIURL        string
	APIVersion    string
	AccessToken   string
	PhoneNumberID string
	VerifyToken   string
	AppSecret     string

	// Prefix for local numbers ("0912...") when normalizing recipients.
	DefaultCountryCode string
}

type LogConfig struct {
	Level string
}

type SecurityConfig struct {
	AllowedOrigins []string
	TrustedProxies []string

	// Per-client request budget for the chat API
	RateLimitPerMinute int
	RateLimitBurst     int

	// Shared secret for the WhatsApp admin endpoints; empty disables them
	AdminToken string
}

var cfg *Config

// Load initializes the configuration
func Load() error {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	loaded := fromEnv()

	// Validate configuration
	if err := loaded.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	cfg = loaded
	return nil
}

// Get returns the loaded configuration
func Get() *Config {
	if cfg == nil {
		log.Fatal("Configuration not loaded. Call Load() first")
	}
	return cfg
}

func fromEnv() *Config {
	return &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),

		Database: DatabaseConfig{
			Type:     getEnv("DB_TYPE", "mongodb"),
			URI:      getEnv("DATABASE_URL", ""),
			Name:     getEnv("DB_NAME", "clinic_booking"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "27017"),
			Username: getEnv("DB_USERNAME", ""),
			Password: getEnv("DB_PASSWORD", ""),

			MaxConnections: getEnvAsInt("DB_MAX_CONNECTIONS", 100),
			MinConnections: getEnvAsInt("DB_MIN_CONNECTIONS", 10),
			MaxIdleTime:    getEnvAsDuration("DB_MAX_IDLE_TIME", "30m"),
			QueryTimeout:   getEnvAsDuration("DB_QUERY_TIMEOUT", "5s"),
		},

		Chatbot: ChatbotConfig{
			ThinkingDelay:      getEnvAsDuration("CHATBOT_THINKING_DELAY", "500ms"),
			CacheTTL:           getEnvAsDuration("CHATBOT_CACHE_TTL", "5m"),
			SessionTTL:         getEnvAsDuration("CHATBOT_SESSION_TTL", "30m"),
			MaxHistoryMessages: getEnvAsInt("CHATBOT_MAX_HISTORY", 60),
			TimezoneOffset:     getEnvAsInt("CHATBOT_TIMEZONE_OFFSET_HOURS", 7),
			ArchiveTranscripts: getEnvAsBool("CHATBOT_ARCHIVE_TRANSCRIPTS", true),
		},

		WhatsApp: WhatsAppConfig{
			APIURL:        getEnv("WHATSAPP_API_URL", "https://graph.facebook.com"),
			APIVersion:    getEnv("WHATSAPP_API_VERSION", "v18.0"),
			AccessToken:   getEnv("WHATSAPP_ACCESS_TOKEN", ""),
			PhoneNumberID: getEnv("WHATSAPP_PHONE_NUMBER_ID", ""),
			VerifyToken:   getEnv("WHATSAPP_VERIFY_TOKEN", ""),
			AppSecret:     getEnv("WHATSAPP_APP_SECRET", ""),

			DefaultCountryCode: getEnv("WHATSAPP_DEFAULT_COUNTRY_CODE", "84"),
		},

		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},

		Security: SecurityConfig{
			AllowedOrigins: getEnvAsSlice("ALLOWED_ORIGINS", []string{"http://localhost:3000", "http://localhost:5173"}),
			TrustedProxies: getEnvAsSlice("TRUSTED_PROXIES", []string{}),

			RateLimitPerMinute: getEnvAsInt("RATE_LIMIT_PER_MINUTE", 120),
			RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 20),

			AdminToken: getEnv("ADMIN_API_TOKEN", ""),
		},
	}
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

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	value := getEnv(key, "")
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks required fields and sane chatbot settings.
func (c *Config) Validate() error {
	if c.Database.Type != "mongodb" {
		return fmt.Errorf("unsupported database type: %s", c.Database.Type)
	}
	if c.Database.URI == "" && (c.Database.Host == "" || c.Database.Port == "") {
		return fmt.Errorf("database URI or host/port must be provided")
	}

	if c.Chatbot.MaxHistoryMessages <= 0 {
		return fmt.Errorf("CHATBOT_MAX_HISTORY must be positive, got %d", c.Chatbot.MaxHistoryMessages)
	}
	if c.Chatbot.CacheTTL <= 0 {
		return fmt.Errorf("CHATBOT_CACHE_TTL must be positive")
	}
	if c.Chatbot.ThinkingDelay < 0 {
		return fmt.Errorf("CHATBOT_THINKING_DELAY cannot be negative")
	}
	if c.Chatbot.TimezoneOffset < -12 || c.Chatbot.TimezoneOffset > 14 {
		return fmt.Errorf("CHATBOT_TIMEZONE_OFFSET_HOURS out of range: %d", c.Chatbot.TimezoneOffset)
	}

	return nil
}

// MissingWhatsAppSettings lists the WhatsApp variables that are not set.
// The channel is optional, so this is reported rather than enforced.
func (c *Config) MissingWhatsAppSettings() []string {
	missing := []string{}
	if c.WhatsApp.AccessToken == "" {
		missing = append(missing, "WHATSAPP_ACCESS_TOKEN")
	}
	if c.WhatsApp.PhoneNumberID == "" {
		missing = append(missing, "WHATSAPP_PHONE_NUMBER_ID")
	}
	if c.WhatsApp.VerifyToken == "" {
		missing = append(missing, "WHATSAPP_VERIFY_TOKEN")
	}
	return missing
}

// Location returns the fixed zone dates are rendered in.
func (c ChatbotConfig) Location() *time.Location {
	return time.FixedZone(fmt.Sprintf("UTC%+d", c.TimezoneOffset), c.TimezoneOffset*3600)
}

// BuildDatabaseURI constructs the database URI if not provided
func (c *Config) BuildDatabaseURI() string {
	if c.Database.URI != "" {
		return c.Database.URI
	}

	if c.Database.Username != "" && c.Database.Password != "" {
		return fmt.Sprintf("mongodb://%s:%s@%s:%s/%s",
			c.Database.Username,
			c.Database.Password,
			c.Database.Host,
			c.Database.Port,
			c.Database.Name,
		)
	}
	return fmt.Sprintf("mongodb://%s:%s/%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
	)
}
