package config

import "os"

// Config holds server configuration.
type Config struct {
	Port         string
	LogLevel     string
	DatabasePath string
	FileStoreDir string
	PublicURL    string

	// Generation engine.
	LLMProvider string // "openai" | "anthropic"
	LLMBaseURL  string
	LLMAPIKey   string
	LLMModel    string
	LLMRPS      float64
	LLMBurst    int

	// Notification fan-out.
	RedisURL string

	// Outbound mail. Mail is disabled when SMTPHost is empty.
	SMTPHost string
	SMTPPort string
	SMTPUser string
	SMTPPass string
	MailFrom string

	TuningDir string
}

// Load loads configuration from environment variables.
func Load() *Config {
	cfg := &Config{
		Port:         getenv("PORT", "8080"),
		LogLevel:     getenv("LOG_LEVEL", "INFO"),
		DatabasePath: getenv("DATABASE_PATH", "parley.db"),
		FileStoreDir: getenv("FILE_STORE_DIR", "uploads"),
		PublicURL:    getenv("PUBLIC_URL", "http://localhost:8080"),
		LLMProvider:  getenv("LLM_PROVIDER", "openai"),
		LLMBaseURL:   getenv("LLM_BASE_URL", "http://localhost:1234/v1"),
		LLMAPIKey:    os.Getenv("LLM_API_KEY"),
		LLMModel:     getenv("LLM_MODEL", "gpt-4o"),
		LLMRPS:       2,
		LLMBurst:     4,
		RedisURL:     os.Getenv("REDIS_URL"),
		SMTPHost:     os.Getenv("SMTP_HOST"),
		SMTPPort:     getenv("SMTP_PORT", "587"),
		SMTPUser:     os.Getenv("SMTP_USER"),
		SMTPPass:     os.Getenv("SMTP_PASS"),
		MailFrom:     getenv("MAIL_FROM", "no-reply@localhost"),
		TuningDir:    os.Getenv("TUNING_DIR"),
	}
	return cfg
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
