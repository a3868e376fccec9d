package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"       validate:"required"`
	Database     DatabaseConfig     `mapstructure:"database"     validate:"required"`
	LLM          LLMConfig          `mapstructure:"llm"          validate:"required"`
	Classifier   ClassifierConfig   `mapstructure:"classifier"   validate:"required"`
	Freshness    FreshnessConfig    `mapstructure:"freshness"    validate:"required"`
	Scheduler    SchedulerConfig    `mapstructure:"scheduler"    validate:"required"`
	Verification VerificationConfig `mapstructure:"verification" validate:"required"`
}

// ServerConfig contains settings for the operational HTTP listener and logging.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL              string        `mapstructure:"url"               validate:"required,url"`
	MaxOpenConns     int           `mapstructure:"max_open_conns"    validate:"gte=1"`
	MaxIdleConns     int           `mapstructure:"max_idle_conns"    validate:"gte=0"`
	ConnMaxLifetime  time.Duration `mapstructure:"conn_max_lifetime" validate:"gte=0"`
	StatementTimeout time.Duration `mapstructure:"statement_timeout" validate:"gt=0"`
}

// LLMConfig contains the Gemini integration settings used by the classifier.
type LLMConfig struct {
	GeminiAPIKey       string        `mapstructure:"gemini_api_key"       validate:"required"`
	ModelName          string        `mapstructure:"model_name"           validate:"required"`
	PromptTemplatePath string        `mapstructure:"prompt_template_path"`
	MaxRetries         int           `mapstructure:"max_retries"          validate:"gte=0,lte=10"`
	RetryDelay         time.Duration `mapstructure:"retry_delay"          validate:"gte=0"`
}

// ClassifierConfig bounds calls to the external classifier.
type ClassifierConfig struct {
	Timeout        time.Duration `mapstructure:"timeout"         validate:"gt=0"`
	RatePerSecond  float64       `mapstructure:"rate_per_second" validate:"gt=0"`
	Burst          int           `mapstructure:"burst"           validate:"gte=1"`
	PromptTemplate string        `mapstructure:"prompt_template"`

	// CategoryAliases extends the built-in category normalization table.
	CategoryAliases map[string]string `mapstructure:"category_aliases"`
}

// FreshnessConfig carries every tunable of the freshness policy. Zero values
// fall back to the policy defaults.
type FreshnessConfig struct {
	TemporarilyClosedDays     int      `mapstructure:"temporarily_closed_days"      validate:"gte=0"`
	NotOpenYetDays            int      `mapstructure:"not_open_yet_days"            validate:"gte=0"`
	VerifiedFewReviewsDays    int      `mapstructure:"verified_few_reviews_days"    validate:"gte=0"`
	VerifiedMediumReviewsDays int      `mapstructure:"verified_medium_reviews_days" validate:"gte=0"`
	VerifiedManyReviewsDays   int      `mapstructure:"verified_many_reviews_days"   validate:"gte=0"`
	FewReviewsBelow           int      `mapstructure:"few_reviews_below"            validate:"gte=0"`
	ManyReviewsFrom           int      `mapstructure:"many_reviews_from"            validate:"gte=0"`
	LowConfidenceDays         int      `mapstructure:"low_confidence_days"          validate:"gte=0"`
	MediumConfidenceDays      int      `mapstructure:"medium_confidence_days"       validate:"gte=0"`
	HighConfidenceDays        int      `mapstructure:"high_confidence_days"         validate:"gte=0"`
	MediumConfidenceFrom      float64  `mapstructure:"medium_confidence_from"       validate:"gte=0,lte=1"`
	HighConfidenceFrom        float64  `mapstructure:"high_confidence_from"         validate:"gte=0,lte=1"`
	AbsMaxDays                int      `mapstructure:"abs_max_days"                 validate:"gte=0"`
	ClosedMarkers             []string `mapstructure:"closed_markers"`
}

// SchedulerConfig controls the bootstrap and enqueue-due batches.
type SchedulerConfig struct {
	BootstrapLimit int           `mapstructure:"bootstrap_limit" validate:"gte=1"`
	EnqueueLimit   int           `mapstructure:"enqueue_limit"   validate:"gte=1"`
	EnqueueStates  []string      `mapstructure:"enqueue_states"  validate:"min=1,dive,oneof=CANDIDATE PENDING_VERIFICATION VERIFIED"`
	Interval       time.Duration `mapstructure:"interval"        validate:"gt=0"`
}

// VerificationConfig controls the verification consumer.
type VerificationConfig struct {
	Limit              int           `mapstructure:"limit"               validate:"gte=1"`
	MaxAttempts        int           `mapstructure:"max_attempts"        validate:"gte=1"`
	PromotionThreshold float64       `mapstructure:"promotion_threshold" validate:"gte=0,lte=1"`
	Concurrency        int           `mapstructure:"concurrency"         validate:"gte=1,lte=64"`
	ProgressEvery      int           `mapstructure:"progress_every"      validate:"gte=1"`
	StaleAfter         time.Duration `mapstructure:"stale_after"         validate:"gt=0"`
	Interval           time.Duration `mapstructure:"interval"            validate:"gt=0"`
}
