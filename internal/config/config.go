package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Pipeline     PipelineConfig     `mapstructure:"pipeline"`
	Security     SecurityConfig     `mapstructure:"security"`
	Notification NotificationConfig `mapstructure:"notification"`
	Lark         LarkConfig         `mapstructure:"lark"`
	Logger       LoggerConfig       `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsDir   string        `mapstructure:"migrations_dir"`
}

// PipelineConfig holds thresholds and weights for validation and scoring.
// The anomaly weights are a default policy, not a contract; deployments tune
// them here rather than in code.
type PipelineConfig struct {
	FlagThreshold        int           `mapstructure:"flag_threshold"`
	RecognizedCategories []string      `mapstructure:"recognized_categories"`
	HistoryWindow        int           `mapstructure:"history_window"`
	MaxExpenseAge        time.Duration `mapstructure:"max_expense_age"`
	MaxSubmissionLag     time.Duration `mapstructure:"max_submission_lag"`
	BatchWorkers         int           `mapstructure:"batch_workers"`
	Anomaly              AnomalyConfig `mapstructure:"anomaly"`
}

// AnomalyConfig holds the additive anomaly signal weights (capped at 100).
type AnomalyConfig struct {
	AmountSpikeWeight      int      `mapstructure:"amount_spike_weight"`
	DateOutOfRangeWeight   int      `mapstructure:"date_out_of_range_weight"`
	PersonalUseWeight      int      `mapstructure:"personal_use_weight"`
	SubmissionLagWeight    int      `mapstructure:"submission_lag_weight"`
	CurrencyMismatchWeight int      `mapstructure:"currency_mismatch_weight"`
	PersonalUseTerms       []string `mapstructure:"personal_use_terms"`
}

// SecurityConfig holds the security filter term blacklist. Injection
// patterns are compiled in; the blacklist is deployment-specific.
type SecurityConfig struct {
	BlacklistedTerms []string `mapstructure:"blacklisted_terms"`
}

// NotificationConfig holds delivery retry policy and admin recipients
type NotificationConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	BaseBackoff     time.Duration `mapstructure:"base_backoff"`
	MaxBackoff      time.Duration `mapstructure:"max_backoff"`
	SendTimeout     time.Duration `mapstructure:"send_timeout"`
	AdminRecipients []string      `mapstructure:"admin_recipients"`
}

// LarkConfig holds Lark delivery channel credentials. Empty AppID disables
// the channel and notifications go to the log channel instead.
type LarkConfig struct {
	AppID     string `mapstructure:"app_id"`
	AppSecret string `mapstructure:"app_secret"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	bindEnvVars()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 30*time.Second)
	viper.SetDefault("server.write_timeout", 30*time.Second)

	// Database defaults
	viper.SetDefault("database.path", "data/expense_gate.db")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	viper.SetDefault("database.migrations_dir", "migrations")

	// Pipeline defaults
	viper.SetDefault("pipeline.flag_threshold", 50)
	viper.SetDefault("pipeline.recognized_categories", []string{
		"Office Supplies", "Travel", "Meals", "Lodging", "Transportation",
		"Software", "Hardware", "Training", "Client Entertainment",
	})
	viper.SetDefault("pipeline.history_window", 20)
	viper.SetDefault("pipeline.max_expense_age", 365*24*time.Hour)
	viper.SetDefault("pipeline.max_submission_lag", 30*24*time.Hour)
	viper.SetDefault("pipeline.batch_workers", 8)

	// Anomaly weights
	viper.SetDefault("pipeline.anomaly.amount_spike_weight", 40)
	viper.SetDefault("pipeline.anomaly.date_out_of_range_weight", 35)
	viper.SetDefault("pipeline.anomaly.personal_use_weight", 25)
	viper.SetDefault("pipeline.anomaly.submission_lag_weight", 15)
	viper.SetDefault("pipeline.anomaly.currency_mismatch_weight", 10)
	viper.SetDefault("pipeline.anomaly.personal_use_terms", []string{
		"personal", "gift", "birthday", "family", "vacation", "alcohol",
	})

	// Security blacklist
	viper.SetDefault("security.blacklisted_terms", []string{
		"ignore previous", "reveal", "secret", "token", "password", "return only",
	})

	// Notification defaults
	viper.SetDefault("notification.max_attempts", 3)
	viper.SetDefault("notification.base_backoff", 1*time.Second)
	viper.SetDefault("notification.max_backoff", 8*time.Second)
	viper.SetDefault("notification.send_timeout", 10*time.Second)
	viper.SetDefault("notification.admin_recipients", []string{})

	// Logger defaults
	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.output_path", "stdout")
	viper.SetDefault("logger.format", "json")
}

// bindEnvVars binds environment variables to configuration
func bindEnvVars() {
	// Sensitive credentials from environment
	viper.BindEnv("lark.app_id", "LARK_APP_ID")
	viper.BindEnv("lark.app_secret", "LARK_APP_SECRET")
	viper.BindEnv("database.path", "EXPENSE_GATE_DB_PATH")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Pipeline.FlagThreshold < 0 || c.Pipeline.FlagThreshold > 100 {
		return fmt.Errorf("pipeline.flag_threshold must be between 0 and 100, got %d", c.Pipeline.FlagThreshold)
	}
	if len(c.Pipeline.RecognizedCategories) == 0 {
		return fmt.Errorf("pipeline.recognized_categories must not be empty")
	}
	if c.Pipeline.HistoryWindow <= 0 {
		return fmt.Errorf("pipeline.history_window must be positive")
	}
	if c.Pipeline.BatchWorkers <= 0 {
		return fmt.Errorf("pipeline.batch_workers must be positive")
	}

	weights := c.Pipeline.Anomaly
	for name, w := range map[string]int{
		"amount_spike_weight":      weights.AmountSpikeWeight,
		"date_out_of_range_weight": weights.DateOutOfRangeWeight,
		"personal_use_weight":      weights.PersonalUseWeight,
		"submission_lag_weight":    weights.SubmissionLagWeight,
		"currency_mismatch_weight": weights.CurrencyMismatchWeight,
	} {
		if w < 0 || w > 100 {
			return fmt.Errorf("pipeline.anomaly.%s must be between 0 and 100, got %d", name, w)
		}
	}

	if c.Notification.MaxAttempts <= 0 {
		return fmt.Errorf("notification.max_attempts must be positive")
	}
	if c.Notification.BaseBackoff <= 0 {
		return fmt.Errorf("notification.base_backoff must be positive")
	}

	// Lark credentials are optional, but must come as a pair
	if (c.Lark.AppID == "") != (c.Lark.AppSecret == "") {
		return fmt.Errorf("lark.app_id and lark.app_secret must be set together")
	}

	return nil
}
