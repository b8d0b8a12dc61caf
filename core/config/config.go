package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	OTel       OTelConfig
	Slack      SlackConfig
	Teams      TeamsConfig
	GoogleChat GoogleChatConfig
	OpenAI     OpenAIConfig
	Index      IndexConfig
	Pipeline   PipelineConfig
	Feedback   FeedbackConfig
	Dedup      DedupConfig
	Confluence ConfluenceConfig
	Env        string
	Port       string
}

type OTelConfig struct {
	Endpoint       string
	Headers        string
	ServiceName    string
	ServiceVersion string
}

type SlackConfig struct {
	// BotToken authenticates chat.postMessage calls. Supplied via environment,
	// never hard-coded.
	BotToken string
	// SigningSecret verifies inbound request signatures. Empty disables
	// verification (local development only).
	SigningSecret string
	// BotUserID is the bot's member ID, used to strip the leading mention
	// from question text.
	BotUserID string
}

type TeamsConfig struct {
	AppID       string
	AppPassword string
	TokenURL    string
	TokenScope  string
	// BotMention is the display handle stripped from question text.
	BotMention string
}

type GoogleChatConfig struct {
	BotMention string
}

type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	ChatModel  string
	EmbedModel string
	MaxTokens  int
}

type IndexConfig struct {
	QdrantURL    string
	QdrantAPIKey string
	// ReadAlias is the collection alias queries resolve through. Rebuilds
	// write a fresh collection and re-point the alias.
	ReadAlias        string
	CollectionPrefix string
	TopK             int
}

type PipelineConfig struct {
	QueueSize    int
	Workers      int
	QueryTimeout time.Duration
}

type FeedbackConfig struct {
	// DatabaseURL enables the Postgres-backed feedback store. Empty falls
	// back to the in-memory store.
	DatabaseURL string
	MaxConns    int32
	MinConns    int32
}

type DedupConfig struct {
	// RedisURL enables the Redis-backed dedup store. Empty falls back to the
	// in-memory store.
	RedisURL string
	TTL      time.Duration
}

type ConfluenceConfig struct {
	BaseURL  string
	Username string
	APIToken string
	Spaces   []string
	// RequestsPerSecond bounds crawl traffic against the Confluence API.
	RequestsPerSecond float64
}

type ServiceType string

const (
	ServiceTypeServer ServiceType = "server"
	ServiceTypeIngest ServiceType = "ingest"
)

// Load loads configuration from environment variables. In development it
// loads a service-specific .env file first (.env.server or .env.ingest),
// falling back to .env.
func Load(serviceType ServiceType) (Config, error) {
	if getEnv("ASKHUB_ENV", "development") == "development" {
		envFile := fmt.Sprintf(".env.%s", serviceType)
		if err := godotenv.Load(envFile); err != nil {
			_ = godotenv.Load(".env")
		}
	}

	cfg := Config{
		Env:  getEnv("ASKHUB_ENV", "development"),
		Port: getEnv("PORT", "8080"),
		OTel: OTelConfig{
			Endpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Headers:        getEnv("OTEL_EXPORTER_OTLP_HEADERS", ""),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "askhub"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "dev"),
		},
		Slack: SlackConfig{
			BotToken:      getEnv("SLACK_BOT_TOKEN", ""),
			SigningSecret: getEnv("SLACK_SIGNING_SECRET", ""),
			BotUserID:     getEnv("SLACK_BOT_USER_ID", ""),
		},
		Teams: TeamsConfig{
			AppID:       getEnv("TEAMS_APP_ID", ""),
			AppPassword: getEnv("TEAMS_APP_PASSWORD", ""),
			TokenURL:    getEnv("TEAMS_TOKEN_URL", "https://login.microsoftonline.com/botframework.com/oauth2/v2.0/token"),
			TokenScope:  getEnv("TEAMS_TOKEN_SCOPE", "https://api.botframework.com/.default"),
			BotMention:  getEnv("TEAMS_BOT_MENTION", "@askhub"),
		},
		GoogleChat: GoogleChatConfig{
			BotMention: getEnv("GOOGLE_CHAT_BOT_MENTION", "@askhub"),
		},
		OpenAI: OpenAIConfig{
			APIKey:     getEnv("OPENAI_API_KEY", ""),
			BaseURL:    getEnv("OPENAI_BASE_URL", ""),
			ChatModel:  getEnv("OPENAI_CHAT_MODEL", "gpt-4o-mini"),
			EmbedModel: getEnv("OPENAI_EMBED_MODEL", "text-embedding-3-small"),
			MaxTokens:  getEnvInt("OPENAI_MAX_TOKENS", 1024),
		},
		Index: IndexConfig{
			QdrantURL:        getEnv("QDRANT_URL", "http://localhost:6333"),
			QdrantAPIKey:     getEnv("QDRANT_API_KEY", ""),
			ReadAlias:        getEnv("QDRANT_READ_ALIAS", "askhub_read"),
			CollectionPrefix: getEnv("QDRANT_COLLECTION_PREFIX", "askhub_docs"),
			TopK:             getEnvInt("INDEX_TOP_K", 5),
		},
		Pipeline: PipelineConfig{
			QueueSize:    getEnvInt("PIPELINE_QUEUE_SIZE", 64),
			Workers:      getEnvInt("PIPELINE_WORKERS", 4),
			QueryTimeout: getEnvDuration("PIPELINE_QUERY_TIMEOUT", 90*time.Second),
		},
		Feedback: FeedbackConfig{
			DatabaseURL: getEnv("DATABASE_URL", ""),
			MaxConns:    getEnvInt32("DB_MAX_CONNS", 5),
			MinConns:    getEnvInt32("DB_MIN_CONNS", 1),
		},
		Dedup: DedupConfig{
			RedisURL: getEnv("REDIS_URL", ""),
			TTL:      getEnvDuration("DEDUP_TTL", time.Hour),
		},
		Confluence: ConfluenceConfig{
			BaseURL:           getEnv("CONFLUENCE_BASE_URL", ""),
			Username:          getEnv("CONFLUENCE_USERNAME", ""),
			APIToken:          getEnv("CONFLUENCE_API_TOKEN", ""),
			Spaces:            splitList(getEnv("CONFLUENCE_SPACES", "")),
			RequestsPerSecond: getEnvFloat("CONFLUENCE_RPS", 2),
		},
	}

	if serviceType == ServiceTypeServer && cfg.OpenAI.APIKey == "" {
		return Config{}, fmt.Errorf("OPENAI_API_KEY is required")
	}
	if serviceType == ServiceTypeIngest && cfg.Confluence.BaseURL == "" {
		return Config{}, fmt.Errorf("CONFLUENCE_BASE_URL is required")
	}

	return cfg, nil
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c OTelConfig) Enabled() bool {
	return c.Endpoint != ""
}

func (c SlackConfig) Enabled() bool {
	return c.BotToken != ""
}

func (c TeamsConfig) Enabled() bool {
	return c.AppID != "" && c.AppPassword != ""
}

func (c FeedbackConfig) UsePostgres() bool {
	return c.DatabaseURL != ""
}

func (c DedupConfig) UseRedis() bool {
	return c.RedisURL != ""
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvInt32(key string, fallback int32) int32 {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(i)
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
