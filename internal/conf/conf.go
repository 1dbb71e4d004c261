package conf

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // business timezone lookups without system zoneinfo

	"github.com/go-playground/validator/v10"

	"github.com/agenciageraleads/summi-worker/internal/biz/domain"
)

// Config represents application configuration.
// It is built once at process start and handed to every component.
type Config struct {
	// Relational store
	Database DatabaseConfig

	// Identity provider (Supabase auth)
	Supabase SupabaseConfig

	// Inference service
	OpenAI OpenAIConfig

	// Messaging gateway (Evolution API)
	Evolution EvolutionConfig

	// Ingestion and classification knobs
	Pipeline PipelineConfig

	// Hourly digest job
	Schedule ScheduleConfig

	// Shared store and work queues
	Queue QueueConfig

	// HTTP surface
	HTTP HTTPConfig

	// Logging
	Log LogConfig

	// Prompts configuration (loaded from YAML)
	Prompts *PromptsConfig
}

// DatabaseConfig selects the conversation store backend
type DatabaseConfig struct {
	Driver string `validate:"oneof=sqlite postgres"`
	URL    string `validate:"required"`
}

// SupabaseConfig contains the identity provider settings
type SupabaseConfig struct {
	URL            string `validate:"omitempty,url"`
	AnonKey        string
	ServiceRoleKey string
	JWTSecret      string
}

// OpenAIConfig contains inference settings
type OpenAIConfig struct {
	APIKey          string `validate:"required"`
	BaseURL         string `validate:"omitempty,url"`
	ModelAnalysis   string `validate:"required"`
	ModelSummary    string `validate:"required"`
	ModelVision     string `validate:"required"`
	ModelTranscribe string `validate:"required"`
	TTSModel        string `validate:"required"`
	TTSVoice        string `validate:"required"`
	Timeout         time.Duration
}

// EvolutionConfig contains messaging gateway settings
type EvolutionConfig struct {
	URL            string `validate:"required,url"`
	APIKey         string `validate:"required"`
	SenderInstance string `validate:"required"`
	Timeout        time.Duration
}

// PipelineConfig contains ingestion and classification settings
type PipelineConfig struct {
	IgnoreRemoteJID   string
	DedupTTL          time.Duration `validate:"gt=0"`
	StoreRawPayload   bool
	RetentionEntries  int `validate:"gte=0"`
	RetentionChars    int `validate:"gte=0"`
	AnalysisBatchSize int `validate:"gt=0"`
}

// Retention returns the conversation log bounds
func (c PipelineConfig) Retention() domain.Retention {
	return domain.Retention{MaxEntries: c.RetentionEntries, MaxChars: c.RetentionChars}
}

// ScheduleConfig contains hourly job settings
type ScheduleConfig struct {
	EnableHourlyJob        bool
	Spec                   string `validate:"required"`
	BusinessHoursStart     int    `validate:"gte=0,lte=23"`
	BusinessHoursEnd       int    `validate:"gte=0,lte=24"`
	Timezone               string `validate:"required"`
	LowPriorityCleanupDays int    `validate:"gte=0"`
	SubscriberLimit        int    `validate:"gt=0"`
	DigestBatchSize        int    `validate:"gt=0"`
}

// BusinessWindow returns the default business window
func (c ScheduleConfig) BusinessWindow() domain.BusinessWindow {
	return domain.BusinessWindow{Start: c.BusinessHoursStart, End: c.BusinessHoursEnd}
}

// Location returns the business timezone, UTC when it cannot be loaded
func (c ScheduleConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// QueueConfig contains shared store and queue settings
type QueueConfig struct {
	RedisURL       string
	AnalysisName   string `validate:"required"`
	SummaryName    string `validate:"required"`
	EnableAnalysis bool
	EnableSummary  bool
}

// HTTPConfig contains the HTTP server settings
type HTTPConfig struct {
	Addr          string `validate:"required"`
	InternalToken string
}

// LogConfig contains logger settings
type LogConfig struct {
	Level  string `validate:"oneof=trace debug info warn error"`
	Format string `validate:"oneof=json console"`
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() *Config {
	// Prompts from YAML
	promptsConfig, err := LoadPromptsConfig(os.Getenv("PROMPTS_CONFIG_PATH"))
	if err != nil {
		promptsConfig = DefaultPromptsConfig()
	}

	return &Config{
		Database: DatabaseConfig{
			Driver: strings.ToLower(getEnv("DB_DRIVER", "sqlite")),
			URL:    getEnv("DATABASE_URL", "summi.db"),
		},
		Supabase: SupabaseConfig{
			URL:            strings.TrimRight(os.Getenv("SUPABASE_URL"), "/"),
			AnonKey:        os.Getenv("SUPABASE_ANON_KEY"),
			ServiceRoleKey: os.Getenv("SUPABASE_SERVICE_ROLE_KEY"),
			JWTSecret:      os.Getenv("JWT_SECRET"),
		},
		OpenAI: OpenAIConfig{
			APIKey:          os.Getenv("OPENAI_API_KEY"),
			BaseURL:         os.Getenv("OPENAI_BASE_URL"),
			ModelAnalysis:   getEnv("OPENAI_MODEL_ANALYSIS", "gpt-4o-mini"),
			ModelSummary:    getEnv("OPENAI_MODEL_SUMMARY", "gpt-4o-mini"),
			ModelVision:     getEnv("OPENAI_MODEL_VISION", "gpt-4o-mini"),
			ModelTranscribe: getEnv("OPENAI_MODEL_TRANSCRIBE", "gpt-4o-mini-transcribe"),
			TTSModel:        getEnv("OPENAI_TTS_MODEL", "gpt-4o-mini-tts"),
			TTSVoice:        getEnv("OPENAI_TTS_VOICE", "alloy"),
			Timeout:         time.Duration(getEnvInt("OPENAI_TIMEOUT_SECONDS", 120)) * time.Second,
		},
		Evolution: EvolutionConfig{
			URL:            strings.TrimRight(os.Getenv("EVOLUTION_API_URL"), "/"),
			APIKey:         os.Getenv("EVOLUTION_API_KEY"),
			SenderInstance: getEnv("SUMMI_SENDER_INSTANCE", "Summi"),
			Timeout:        time.Duration(getEnvInt("EVOLUTION_TIMEOUT_SECONDS", 60)) * time.Second,
		},
		Pipeline: PipelineConfig{
			IgnoreRemoteJID:   getEnv("IGNORE_REMOTE_JID", "556293984600"),
			DedupTTL:          time.Duration(max(1, getEnvInt("WEBHOOK_DEDUPE_TTL_SECONDS", 600))) * time.Second,
			StoreRawPayload:   getEnvBool("STORE_RAW_PAYLOAD", false),
			RetentionEntries:  getEnvInt("LOG_RETENTION_ENTRIES", 200),
			RetentionChars:    getEnvInt("LOG_RETENTION_CHARS", 20000),
			AnalysisBatchSize: getEnvInt("ANALYSIS_BATCH_SIZE", 50),
		},
		Schedule: ScheduleConfig{
			EnableHourlyJob:        getEnvBool("ENABLE_HOURLY_JOB", true),
			Spec:                   getEnv("HOURLY_SCHEDULE", "@every 1h"),
			BusinessHoursStart:     getEnvInt("BUSINESS_HOURS_START", 8),
			BusinessHoursEnd:       getEnvInt("BUSINESS_HOURS_END", 18),
			Timezone:               getEnv("BUSINESS_TIMEZONE", "America/Sao_Paulo"),
			LowPriorityCleanupDays: getEnvInt("LOW_PRIORITY_CLEANUP_DAYS", 0),
			SubscriberLimit:        getEnvInt("SUBSCRIBER_LIMIT", 1000),
			DigestBatchSize:        getEnvInt("DIGEST_BATCH_SIZE", 50),
		},
		Queue: QueueConfig{
			RedisURL:       os.Getenv("REDIS_URL"),
			AnalysisName:   getEnv("QUEUE_ANALYSIS_NAME", "summi:queue:analysis"),
			SummaryName:    getEnv("QUEUE_SUMMARY_NAME", "summi:queue:summary"),
			EnableAnalysis: getEnvBool("ENABLE_ANALYSIS_QUEUE", false),
			EnableSummary:  getEnvBool("ENABLE_SUMMARY_QUEUE", false),
		},
		HTTP: HTTPConfig{
			Addr:          getEnv("HTTP_ADDR", ":8080"),
			InternalToken: os.Getenv("INTERNAL_TOKEN"),
		},
		Log: LogConfig{
			Level:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
			Format: strings.ToLower(getEnv("LOG_FORMAT", "json")),
		},
		Prompts: promptsConfig,
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return toConfigError(err)
	}
	if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
		return &ConfigError{Field: "BUSINESS_TIMEZONE", Message: err.Error()}
	}
	if (c.Queue.EnableAnalysis || c.Queue.EnableSummary) && c.Queue.RedisURL == "" {
		return &ConfigError{Field: "REDIS_URL", Message: "required when a queue is enabled"}
	}
	return nil
}

// ValidateDatabase validates only what schema migrations need
func (c *Config) ValidateDatabase() error {
	if err := validate.Struct(c.Database); err != nil {
		return toConfigError(err)
	}
	return nil
}

func toConfigError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &ConfigError{Field: fe.Namespace(), Message: "failed '" + fe.Tag() + "' check"}
	}
	return &ConfigError{Field: "config", Message: err.Error()}
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}

func getEnv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	switch strings.ToLower(value) {
	case "1", "true", "yes", "y", "on", "sim":
		return true
	default:
		return false
	}
}
