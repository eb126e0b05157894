package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port string

	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Mailbox source: "gmail" or "imap"
	MailProvider string

	// Gmail OAuth
	GoogleClientID     string
	GoogleClientSecret string
	GmailAccessToken   string
	GmailRefreshToken  string

	// IMAP
	IMAPHost     string
	IMAPPort     int
	IMAPUsername string
	IMAPPassword string
	IMAPMailbox  string

	// Sync
	PollInterval time.Duration
	BackfillDays int

	// Index / search
	EmbedModel         string
	GeminiAPIKey       string
	SearchVectorWeight float64 // 0 disables weighted mode, scores use max
	ReindexBatch       int
	IndexWorkers       int

	// Digest
	DigestInterval time.Duration

	// AI provider: "gemini", "ollama" or "auto"
	AIProvider    string
	OllamaBaseURL string
	OllamaModel   string

	// SMTP
	SMTPHost      string
	SMTPPort      int
	SMTPUsername  string
	SMTPPassword  string
	SMTPFromEmail string
	SMTPFromName  string
}

func Load() *Config {
	// Load .env file if it exists
	_ = godotenv.Load()

	return &Config{
		Port: getEnv("PORT", "8080"),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "postgres"),
		DBName:     getEnv("DB_NAME", "maildigest"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		MailProvider: getEnv("MAIL_PROVIDER", "gmail"),

		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		GmailAccessToken:   getEnv("GMAIL_ACCESS_TOKEN", ""),
		GmailRefreshToken:  getEnv("GMAIL_REFRESH_TOKEN", ""),

		IMAPHost:     getEnv("IMAP_HOST", ""),
		IMAPPort:     getInt("IMAP_PORT", 993),
		IMAPUsername: getEnv("IMAP_USERNAME", ""),
		IMAPPassword: getEnv("IMAP_PASSWORD", ""),
		IMAPMailbox:  getEnv("IMAP_MAILBOX", "INBOX"),

		PollInterval: getDuration("POLL_INTERVAL", 5*time.Minute),
		BackfillDays: getInt("BACKFILL_DAYS", 30),

		EmbedModel:         getEnv("EMBED_MODEL", "text-embedding-004"),
		GeminiAPIKey:       getEnv("GEMINI_API_KEY", ""),
		SearchVectorWeight: getFloat("SEARCH_VECTOR_WEIGHT", 0),
		ReindexBatch:       getInt("REINDEX_BATCH", 25),
		IndexWorkers:       getInt("INDEX_WORKERS", 4),

		DigestInterval: getDuration("DIGEST_INTERVAL", 7*24*time.Hour),

		AIProvider:    getEnv("AI_PROVIDER", "auto"),
		OllamaBaseURL: getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
		OllamaModel:   getEnv("OLLAMA_MODEL", "llama3"),

		SMTPHost:      getEnv("SMTP_HOST", "localhost"),
		SMTPPort:      getInt("SMTP_PORT", 587),
		SMTPUsername:  getEnv("SMTP_USERNAME", ""),
		SMTPPassword:  getEnv("SMTP_PASSWORD", ""),
		SMTPFromEmail: getEnv("SMTP_FROM_EMAIL", "digest@localhost"),
		SMTPFromName:  getEnv("SMTP_FROM_NAME", "Mail Digest"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
