package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App          AppConfig               `mapstructure:"app"`
	Camunda      CamundaConfig           `mapstructure:"camunda"`
	Database     DatabaseConfig          `mapstructure:"database"`
	Workers      map[string]WorkerConfig `mapstructure:"workers"`
	Integrations IntegrationConfig       `mapstructure:"integrations"`
	APIs         APIsConfig              `mapstructure:"apis"`
	Research     ResearchConfig          `mapstructure:"research"`
	Retry        RetryConfig             `mapstructure:"retry"`
	Logging      LoggingConfig           `mapstructure:"logging"`
	Tracing      TracingConfig           `mapstructure:"tracing"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	HTTPAddress string `mapstructure:"http_address"`
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
	Addresses    []string `mapstructure:"addresses"`
	Username     string   `mapstructure:"username"`
	Password     string   `mapstructure:"password"`
	ContactIndex string   `mapstructure:"contact_index"`
}

type RedisConfig struct {
	Address   string `mapstructure:"address"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// WorkerConfig holds the core settings applicable to every worker.
type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"` // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"`
}

// IntegrationConfig holds settings for SaaS CRM access.
type IntegrationConfig struct {
	Zoho struct {
		BaseURL   string `mapstructure:"base_url"`
		AuthToken string `mapstructure:"oauth_token"`
		Timeout   int    `mapstructure:"timeout"` // milliseconds
	} `mapstructure:"zoho"`
}

// APIsConfig holds settings for the LLM, search and scrape providers.
type APIsConfig struct {
	LLM struct {
		BaseURL     string  `mapstructure:"base_url"`
		APIKey      string  `mapstructure:"api_key"`
		Model       string  `mapstructure:"model"`
		MaxTokens   int     `mapstructure:"max_tokens"`
		Temperature float64 `mapstructure:"temperature"`
		Timeout     int     `mapstructure:"timeout"` // milliseconds
	} `mapstructure:"llm"`

	WebSearch struct {
		BaseURL  string `mapstructure:"base_url"`
		APIKey   string `mapstructure:"api_key"`
		EngineID string `mapstructure:"engine_id"`
		Timeout  int    `mapstructure:"timeout"` // milliseconds
	} `mapstructure:"web_search"`

	Scrape struct {
		UserAgent       string `mapstructure:"user_agent"`
		MaxContentChars int    `mapstructure:"max_content_chars"`
		Timeout         int    `mapstructure:"timeout"` // milliseconds
	} `mapstructure:"scrape"`
}

// ResearchConfig tunes the research orchestrator and report pipeline.
type ResearchConfig struct {
	CacheBackend          string `mapstructure:"cache_backend"` // memory | redis
	CacheTTL              int    `mapstructure:"cache_ttl"`     // milliseconds
	CRMBackend            string `mapstructure:"crm_backend"`   // zoho | postgres | elasticsearch | none
	CRMRequestsPerMinute  int    `mapstructure:"crm_requests_per_minute"`
	AttendeeConcurrency   int    `mapstructure:"attendee_concurrency"`
	FuzzyPrefixLength     int    `mapstructure:"fuzzy_prefix_length"`
	MaxToolRounds         int    `mapstructure:"max_tool_rounds"`
	GenerationTimeout     int    `mapstructure:"generation_timeout"` // milliseconds
	CritiqueEnabled       *bool  `mapstructure:"critique_enabled"`
	LinkedInResults       int    `mapstructure:"linkedin_results"`
	BackgroundResults     int    `mapstructure:"background_results"`
	OverviewResults       int    `mapstructure:"overview_results"`
	NewsResults           int    `mapstructure:"news_results"`
	FinancialResults      int    `mapstructure:"financial_results"`
	TransformationResults int    `mapstructure:"transformation_results"`
	CompetitiveResults    int    `mapstructure:"competitive_results"`
}

// IsCritiqueEnabled defaults to true when unset.
func (r ResearchConfig) IsCritiqueEnabled() bool {
	return r.CritiqueEnabled == nil || *r.CritiqueEnabled
}

// RetryConfig is the shared policy for every external call.
type RetryConfig struct {
	MaxAttempts int `mapstructure:"max_attempts"`
	BaseDelay   int `mapstructure:"base_delay"` // milliseconds
	MaxDelay    int `mapstructure:"max_delay"`  // milliseconds
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// TracingConfig enables span export. An empty endpoint disables it.
type TracingConfig struct {
	JaegerEndpoint string  `mapstructure:"jaeger_endpoint"`
	SampleRatio    float64 `mapstructure:"sample_ratio"`
}
