// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct, shared by the wizard
// server and the origination worker manager.
type Config struct {
	App      AppConfig               `mapstructure:"app"`
	HTTP     HTTPConfig              `mapstructure:"http"`
	Camunda  CamundaConfig           `mapstructure:"camunda"`
	Database DatabaseConfig          `mapstructure:"database"`
	Gateway  GatewayConfig           `mapstructure:"gateway"`
	Wizard   WizardConfig            `mapstructure:"wizard"`
	Workers  map[string]WorkerConfig `mapstructure:"workers"`
	Logging  LoggingConfig           `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// HTTPConfig holds settings for the wizard server's listener and the
// metrics/pprof sidecar listener.
type HTTPConfig struct {
	Address        string `mapstructure:"address"`
	MetricsAddress string `mapstructure:"metrics_address"`
	ReadTimeout    int    `mapstructure:"read_timeout"`  // milliseconds
	WriteTimeout   int    `mapstructure:"write_timeout"` // milliseconds
}

type CamundaConfig struct {
	BrokerAddress  string `mapstructure:"broker_address"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses  []string `mapstructure:"addresses"`
	Username   string   `mapstructure:"username"`
	Password   string   `mapstructure:"password"`
	SSLEnabled bool     `mapstructure:"ssl_enabled"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// WorkerConfig holds the core settings applicable to every worker.
type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"`     // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"` // For error handling
}

// --- Domain Configuration Sections ---

// GatewayConfig holds settings for the external submission gateway.
type GatewayConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Timeout int    `mapstructure:"timeout"` // milliseconds
}

// WizardConfig holds the application wizard's business thresholds and
// behavioral knobs.
type WizardConfig struct {
	MinimumIncome     float64 `mapstructure:"minimum_income"`
	IncomeMultiple    float64 `mapstructure:"income_multiple"`
	RecommendedFactor float64 `mapstructure:"recommended_factor"`
	DefaultFeeRate    float64 `mapstructure:"default_fee_rate"`

	// PersistPolicy is "persist-if-dirty" or "persist-always".
	PersistPolicy string `mapstructure:"persist_policy"`

	// ResumeTTL bounds how long a resume snapshot is kept, in minutes.
	ResumeTTL int `mapstructure:"resume_ttl"`

	// ProcessID is the BPMN process started after a successful submission.
	// Leave StartProcessOnSubmit false to run the wizard without a broker.
	ProcessID            string `mapstructure:"process_id"`
	StartProcessOnSubmit bool   `mapstructure:"start_process_on_submit"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
