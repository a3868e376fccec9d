package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable read by Load.
const EnvPrefix = "FRESHNESS"

// configFileEnv names the variable that points at an optional YAML config file.
const configFileEnv = EnvPrefix + "_CONFIG_FILE"

// Load configuration from environment variables and optionally a config file.
// A .env file in the working directory is read first without overriding
// variables that are already set. Environment variables take precedence over
// values from the config file. Returns a populated and validated Config.
func Load() (*Config, error) {
	return LoadFile(os.Getenv(configFileEnv))
}

// LoadFile is Load with an explicit config file path. An empty path means no
// file is read.
func LoadFile(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env file: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Keys without defaults are invisible to Unmarshal unless bound explicitly.
	for _, key := range []string{"database.url", "llm.gemini_api_key"} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks struct tags and cross-field constraints.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	f := cfg.Freshness
	if f.MediumConfidenceFrom > 0 && f.HighConfidenceFrom > 0 &&
		f.MediumConfidenceFrom > f.HighConfidenceFrom {
		return fmt.Errorf(
			"config validation failed: freshness.medium_confidence_from (%.2f) exceeds high_confidence_from (%.2f)",
			f.MediumConfidenceFrom, f.HighConfidenceFrom,
		)
	}
	if f.FewReviewsBelow > 0 && f.ManyReviewsFrom > 0 && f.FewReviewsBelow > f.ManyReviewsFrom {
		return fmt.Errorf(
			"config validation failed: freshness.few_reviews_below (%d) exceeds many_reviews_from (%d)",
			f.FewReviewsBelow, f.ManyReviewsFrom,
		)
	}
	if cfg.Database.MaxIdleConns > cfg.Database.MaxOpenConns {
		return fmt.Errorf(
			"config validation failed: database.max_idle_conns (%d) exceeds max_open_conns (%d)",
			cfg.Database.MaxIdleConns, cfg.Database.MaxOpenConns,
		)
	}

	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.statement_timeout", "10s")

	v.SetDefault("llm.model_name", "gemini-2.0-flash")
	v.SetDefault("llm.prompt_template_path", "")
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("llm.retry_delay", "2s")

	v.SetDefault("classifier.timeout", "30s")
	v.SetDefault("classifier.rate_per_second", 2.0)
	v.SetDefault("classifier.burst", 4)
	v.SetDefault("classifier.prompt_template", "")

	// Zero means "use the policy default" for every freshness value.
	v.SetDefault("freshness.temporarily_closed_days", 0)
	v.SetDefault("freshness.not_open_yet_days", 0)
	v.SetDefault("freshness.verified_few_reviews_days", 0)
	v.SetDefault("freshness.verified_medium_reviews_days", 0)
	v.SetDefault("freshness.verified_many_reviews_days", 0)
	v.SetDefault("freshness.few_reviews_below", 0)
	v.SetDefault("freshness.many_reviews_from", 0)
	v.SetDefault("freshness.low_confidence_days", 0)
	v.SetDefault("freshness.medium_confidence_days", 0)
	v.SetDefault("freshness.high_confidence_days", 0)
	v.SetDefault("freshness.medium_confidence_from", 0.0)
	v.SetDefault("freshness.high_confidence_from", 0.0)
	v.SetDefault("freshness.abs_max_days", 0)
	v.SetDefault("freshness.closed_markers", []string{})

	v.SetDefault("scheduler.bootstrap_limit", 500)
	v.SetDefault("scheduler.enqueue_limit", 200)
	v.SetDefault("scheduler.enqueue_states", []string{"VERIFIED"})
	v.SetDefault("scheduler.interval", "15m")

	v.SetDefault("verification.limit", 50)
	v.SetDefault("verification.max_attempts", 3)
	v.SetDefault("verification.promotion_threshold", 0.8)
	v.SetDefault("verification.concurrency", 4)
	v.SetDefault("verification.progress_every", 10)
	v.SetDefault("verification.stale_after", "15m")
	v.SetDefault("verification.interval", "5m")
}
