package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/flexprice/invoicerecon/internal/types"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Configuration struct {
	Deployment     DeploymentConfig     `validate:"required"`
	Logging        LoggingConfig        `validate:"required"`
	Store          StoreConfig          `validate:"required"`
	Postgres       PostgresConfig       `mapstructure:"postgres"`
	PubSub         PubSubConfig         `mapstructure:"pubsub" validate:"required"`
	Kafka          KafkaConfig          `mapstructure:"kafka"`
	Catalog        CatalogConfig        `mapstructure:"catalog"`
	Reconciliation ReconciliationConfig `mapstructure:"reconciliation" validate:"required"`
	Payment        PaymentConfig        `mapstructure:"payment"`
	Sentry         SentryConfig         `mapstructure:"sentry"`
}

type DeploymentConfig struct {
	Mode types.RunMode `validate:"required"`
}

type LoggingConfig struct {
	Level types.LogLevel `validate:"required"`
}

type StoreConfig struct {
	Type types.StoreType `validate:"required,oneof=memory postgres"`
}

type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`

	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type PubSubConfig struct {
	Type  types.PubSubType `validate:"required,oneof=memory kafka"`
	Topic string           `validate:"required"`
}

type KafkaConfig struct {
	Brokers       []string
	ConsumerGroup string `mapstructure:"consumer_group"`
	ClientID      string `mapstructure:"client_id"`
	TLS           bool
	UseSASL       bool   `mapstructure:"use_sasl"`
	SASLMechanism string `mapstructure:"sasl_mechanism"`
	SASLUser      string `mapstructure:"sasl_user"`
	SASLPassword  string `mapstructure:"sasl_password"`
}

type CatalogConfig struct {
	CacheEnabled bool          `mapstructure:"cache_enabled"`
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`
}

type ReconciliationConfig struct {
	// ChangePlanPolicy decides when a plan change takes effect when the
	// request does not say so explicitly
	ChangePlanPolicy types.ChangePlanPolicy `mapstructure:"change_plan_policy" validate:"required"`
	// Workers bounds how many subscriptions a clock advance reconciles at once
	Workers int `validate:"min=1"`
	// RetryMaxElapsed bounds how long a conflicting or failed run is retried
	RetryMaxElapsed time.Duration `mapstructure:"retry_max_elapsed"`
	// MaxTimersPerAdvance guards against runaway timer loops for a single
	// subscription in one clock advance
	MaxTimersPerAdvance int `mapstructure:"max_timers_per_advance" validate:"min=1"`
}

type PaymentConfig struct {
	AutoPay bool `mapstructure:"auto_pay"`
}

type SentryConfig struct {
	Enabled     bool
	DSN         string
	Environment string
	SampleRate  float64 `mapstructure:"sample_rate"`
}

func NewConfig() (*Configuration, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./internal/config")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/invoicerecon")

	v.SetEnvPrefix("RECON")
	v.SetEnvKeyReplacer(strings.NewReplacer(
		".", "_",
		"-", "_",
	))
	v.AutomaticEnv()

	setDefaults(v)

	// Read config file if exists
	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("Error reading config file: %v\n", err)
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, err
		}
	} else {
		fmt.Printf("Using config file: %s\n", v.ConfigFileUsed())
	}

	var config Configuration
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	def := GetDefaultConfig()
	v.SetDefault("deployment.mode", def.Deployment.Mode)
	v.SetDefault("logging.level", def.Logging.Level)
	v.SetDefault("store.type", def.Store.Type)
	v.SetDefault("pubsub.type", def.PubSub.Type)
	v.SetDefault("pubsub.topic", def.PubSub.Topic)
	v.SetDefault("catalog.cache_enabled", def.Catalog.CacheEnabled)
	v.SetDefault("catalog.cache_ttl", def.Catalog.CacheTTL)
	v.SetDefault("reconciliation.change_plan_policy", def.Reconciliation.ChangePlanPolicy)
	v.SetDefault("reconciliation.workers", def.Reconciliation.Workers)
	v.SetDefault("reconciliation.retry_max_elapsed", def.Reconciliation.RetryMaxElapsed)
	v.SetDefault("reconciliation.max_timers_per_advance", def.Reconciliation.MaxTimersPerAdvance)
	v.SetDefault("payment.auto_pay", def.Payment.AutoPay)
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.max_open_conns", 10)
	v.SetDefault("postgres.max_idle_conns", 5)
	v.SetDefault("postgres.conn_max_lifetime", time.Hour)
	v.SetDefault("kafka.consumer_group", "invoicerecon")
	v.SetDefault("kafka.client_id", "invoicerecon")
}

func (c Configuration) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return err
	}
	if err := c.Reconciliation.ChangePlanPolicy.Validate(); err != nil {
		return err
	}
	if c.PubSub.Type == types.KafkaPubSub && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka brokers are required when pubsub type is kafka")
	}
	if c.Store.Type == types.StorePostgres && c.Postgres.Host == "" {
		return fmt.Errorf("postgres host is required when store type is postgres")
	}
	return nil
}

// GetDefaultConfig returns a default configuration for local development
// This is useful for running scripts, tests or the scenario runner
func GetDefaultConfig() *Configuration {
	return &Configuration{
		Deployment: DeploymentConfig{Mode: types.ModeLocal},
		Logging:    LoggingConfig{Level: types.LogLevelInfo},
		Store:      StoreConfig{Type: types.StoreMemory},
		PubSub:     PubSubConfig{Type: types.MemoryPubSub, Topic: types.DefaultSignalTopic},
		Catalog: CatalogConfig{
			CacheEnabled: true,
			CacheTTL:     30 * time.Minute,
		},
		Reconciliation: ReconciliationConfig{
			ChangePlanPolicy:    types.ChangePlanPolicyImmediate,
			Workers:             8,
			RetryMaxElapsed:     5 * time.Second,
			MaxTimersPerAdvance: 1000,
		},
		Payment: PaymentConfig{AutoPay: true},
	}
}

func (c PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"user=%s password=%s dbname=%s host=%s port=%d sslmode=%s",
		c.User,
		c.Password,
		c.DBName,
		c.Host,
		c.Port,
		c.SSLMode,
	)
}
