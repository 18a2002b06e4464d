package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// CounterWeight mirrors one scoring counter entry from the config file.
type CounterWeight struct {
	Name   string  `mapstructure:"name" validate:"required"`
	Weight float64 `mapstructure:"weight" validate:"gt=0"`
}

// Scoring holds the hot-reloadable scoring parameters.
type Scoring struct {
	Counters          []CounterWeight `mapstructure:"counters" validate:"omitempty,dive"`
	TopPercentile     float64         `mapstructure:"top_percentile" validate:"gt=0,lt=100"`
	RewardFactor      float64         `mapstructure:"reward_factor" validate:"gte=1"`
	Steepness         float64         `mapstructure:"steepness" validate:"gt=0"`
	CenterSensitivity float64         `mapstructure:"center_sensitivity" validate:"gt=0,lte=1"`
	BoostFactor       float64         `mapstructure:"boost_factor" validate:"gte=1"`
}

type Config struct {
	Port             int    `mapstructure:"port" validate:"required,min=1,max=65535"`
	LedgerURL        string `mapstructure:"ledger_url" validate:"required,url"`
	MetricsAuthToken string `mapstructure:"metrics_auth_token"`

	PostgresDSN        string `mapstructure:"postgres_dsn"`
	TelemetryTable     string `mapstructure:"telemetry_table" validate:"required"`
	DocumentTable      string `mapstructure:"document_table"`
	MigrateFromDoc     bool   `mapstructure:"migrate_from_document"`
	RetentionHours     int    `mapstructure:"retention_hours" validate:"required,min=1"`
	MembershipGraceSec int    `mapstructure:"membership_grace" validate:"required,min=1"`

	SyncIntervalSec    int `mapstructure:"sync_interval" validate:"required,min=1"`
	CollectIntervalSec int `mapstructure:"collect_interval" validate:"required,min=1"`
	ScoreIntervalSec   int `mapstructure:"score_interval" validate:"required,min=1"`

	CollectTimeoutSec  int `mapstructure:"collect_timeout" validate:"required,min=1"`
	CollectConcurrency int `mapstructure:"collect_concurrency" validate:"required,min=1"`

	MinSubmitIntervalSec int `mapstructure:"min_submit_interval" validate:"required,min=1"`
	SubmitRetryDelaySec  int `mapstructure:"submit_retry_delay" validate:"required,min=1"`

	Scoring Scoring `mapstructure:"scoring"`
}

// Load unmarshals the current viper state into a validated Config.
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}
