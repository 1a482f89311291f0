package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port      string
	JWTSecret string

	// Postgres
	DatabaseURL string

	// Mailbox provider
	Provider           string // "gmail" or "imap"
	GoogleClientID     string
	GoogleClientSecret string
	GoogleProjectID    string
	GooglePubSubTopic  string
	GooglePubSubSub    string
	GoogleCredentials  string
	GmailAccessToken   string
	GmailRefreshToken  string
	IMAPHost           string
	IMAPPort           string
	IMAPUsername       string
	IMAPPassword       string

	// Owner identity used for message direction inference
	OwnerEmail   string
	OwnerAliases []string

	// Single-tenant deployments map every mailbox to one workspace
	DefaultWorkspace string

	// AI provider
	AIProvider    string
	GeminiAPIKey  string
	OllamaBaseURL string
	OllamaModel   string

	// Worker / pipeline tuning
	WorkerSecret       string
	WorkerTimeBudget   time.Duration
	FetchTimeBudget    time.Duration
	MaxJobAttempts     int
	ImportPageSize     int
	ImportMaxPages     int
	ImportCutoffDays   int
	EarlyClassifyCount int
	ClassifyFanOut     int
	BackoffBase        time.Duration
	BackoffMax         time.Duration
	LexiconPath        string
}

func Load() *Config {
	// Load .env file if it exists
	_ = godotenv.Load()

	return &Config{
		Port:      getEnv("PORT", "8080"),
		JWTSecret: getEnv("JWT_SECRET", "your-secret-key-change-in-production"),

		DatabaseURL: getEnv("DATABASE_URL", "host=localhost user=postgres password=postgres dbname=inboxpilot port=5432 sslmode=disable"),

		Provider:           getEnv("MAIL_PROVIDER", "gmail"),
		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleProjectID:    getEnv("GOOGLE_PROJECT_ID", ""),
		GooglePubSubTopic:  getEnv("GOOGLE_PUBSUB_TOPIC", "gmail-updates"),
		GooglePubSubSub:    getEnv("GOOGLE_PUBSUB_SUBSCRIPTION", "gmail-updates-sub"),
		GoogleCredentials:  getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),
		GmailAccessToken:   getEnv("GMAIL_ACCESS_TOKEN", ""),
		GmailRefreshToken:  getEnv("GMAIL_REFRESH_TOKEN", ""),
		IMAPHost:           getEnv("IMAP_HOST", ""),
		IMAPPort:           getEnv("IMAP_PORT", "993"),
		IMAPUsername:       getEnv("IMAP_USERNAME", ""),
		IMAPPassword:       getEnv("IMAP_PASSWORD", ""),

		OwnerEmail:   strings.ToLower(strings.TrimSpace(getEnv("OWNER_EMAIL", ""))),
		OwnerAliases: splitList(getEnv("OWNER_ALIASES", "")),

		DefaultWorkspace: getEnv("DEFAULT_WORKSPACE_ID", "default"),

		AIProvider:    getEnv("AI_PROVIDER", "auto"),
		GeminiAPIKey:  getEnv("GEMINI_API_KEY", ""),
		OllamaBaseURL: getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
		OllamaModel:   getEnv("OLLAMA_MODEL", "llama3"),

		WorkerSecret:       getEnv("WORKER_SECRET", ""),
		WorkerTimeBudget:   getDuration("WORKER_TIME_BUDGET", 50*time.Second),
		FetchTimeBudget:    getDuration("FETCH_TIME_BUDGET", 25*time.Second),
		MaxJobAttempts:     getInt("MAX_JOB_ATTEMPTS", 6),
		ImportPageSize:     getInt("IMPORT_PAGE_SIZE", 25),
		ImportMaxPages:     getInt("IMPORT_MAX_PAGES", 40),
		ImportCutoffDays:   getInt("IMPORT_CUTOFF_DAYS", 180),
		EarlyClassifyCount: getInt("EARLY_CLASSIFY_COUNT", 1000),
		ClassifyFanOut:     getInt("CLASSIFY_FAN_OUT", 5),
		BackoffBase:        getDuration("BACKOFF_BASE", 5*time.Second),
		BackoffMax:         getDuration("BACKOFF_MAX", 300*time.Second),
		LexiconPath:        getEnv("LEXICON_PATH", ""),
	}
}

// OwnerIdentities returns the owner address plus all aliases, normalized.
func (c *Config) OwnerIdentities() []string {
	out := make([]string, 0, len(c.OwnerAliases)+1)
	if c.OwnerEmail != "" {
		out = append(out, c.OwnerEmail)
	}
	out = append(out, c.OwnerAliases...)
	return out
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

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func splitList(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
