package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load reads configs/config.yaml, merges config.<APP_ENVIRONMENT>.yaml over
// it and applies environment overrides.
func Load() (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigName("config")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig() // env overlay is optional

	return finish(v)
}

// LoadFromFile loads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return finish(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

func finish(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideFromEnv(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func loadEnvFile() {
	candidates := []string{".env", "../.env", "../../.env"}
	if root := findProjectRoot(); root != "" {
		candidates = append(candidates, filepath.Join(root, ".env"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// expandEnvVars resolves ${VAR} placeholders inside string values. Unset
// variables expand to "" so defaults and env fallbacks still apply.
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok || !strings.Contains(strVal, "$") {
			continue
		}
		if expanded := os.ExpandEnv(strVal); expanded != strVal {
			v.Set(key, expanded)
		}
	}
}

// overrideFromEnv fills secrets that are conventionally supplied as plain
// environment variables rather than dotted config keys.
func overrideFromEnv(cfg *Config) {
	setIfEmpty(&cfg.APIs.LLM.APIKey, "LLM_API_KEY")
	setIfEmpty(&cfg.APIs.LLM.BaseURL, "LLM_BASE_URL")
	setIfEmpty(&cfg.APIs.WebSearch.APIKey, "WEB_SEARCH_API_KEY")
	setIfEmpty(&cfg.APIs.WebSearch.EngineID, "WEB_SEARCH_ENGINE_ID")
	setIfEmpty(&cfg.Integrations.Zoho.AuthToken, "ZOHO_CRM_OAUTH_TOKEN")
	setIfEmpty(&cfg.Database.Postgres.User, "DB_USER")
	setIfEmpty(&cfg.Database.Postgres.Password, "DB_PASSWORD")
	setIfEmpty(&cfg.Database.Redis.Password, "REDIS_PASSWORD")
}

func setIfEmpty(dst *string, envKey string) {
	if *dst != "" {
		return
	}
	if val := os.Getenv(envKey); val != "" {
		*dst = val
	}
}

func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "meeting-intel"
	}
	if cfg.App.HTTPAddress == "" {
		cfg.App.HTTPAddress = ":8080"
	}

	if cfg.Camunda.MaxJobsActive == 0 {
		cfg.Camunda.MaxJobsActive = 10
	}
	if cfg.Camunda.Timeout == 0 {
		cfg.Camunda.Timeout = 30000
	}
	if cfg.Camunda.RequestTimeout == 0 {
		cfg.Camunda.RequestTimeout = 30000
	}

	if cfg.Database.Postgres.Port == 0 {
		cfg.Database.Postgres.Port = 5432
	}
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 25
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}
	if cfg.Database.Elasticsearch.ContactIndex == "" {
		cfg.Database.Elasticsearch.ContactIndex = "crm-contacts"
	}
	if cfg.Database.Redis.KeyPrefix == "" {
		cfg.Database.Redis.KeyPrefix = "search-cache:"
	}

	if cfg.Integrations.Zoho.BaseURL == "" {
		cfg.Integrations.Zoho.BaseURL = "https://www.zohoapis.com/crm/v3"
	}
	if cfg.Integrations.Zoho.Timeout == 0 {
		cfg.Integrations.Zoho.Timeout = 30000
	}

	if cfg.APIs.LLM.BaseURL == "" {
		cfg.APIs.LLM.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.APIs.LLM.Model == "" {
		cfg.APIs.LLM.Model = "gpt-4o"
	}
	if cfg.APIs.LLM.MaxTokens == 0 {
		cfg.APIs.LLM.MaxTokens = 4000
	}
	if cfg.APIs.LLM.Temperature == 0 {
		cfg.APIs.LLM.Temperature = 0.4
	}
	if cfg.APIs.LLM.Timeout == 0 {
		cfg.APIs.LLM.Timeout = 120000
	}
	if cfg.APIs.WebSearch.BaseURL == "" {
		cfg.APIs.WebSearch.BaseURL = "https://www.googleapis.com/customsearch/v1"
	}
	if cfg.APIs.WebSearch.Timeout == 0 {
		cfg.APIs.WebSearch.Timeout = 30000
	}
	if cfg.APIs.Scrape.Timeout == 0 {
		cfg.APIs.Scrape.Timeout = 30000
	}
	if cfg.APIs.Scrape.MaxContentChars == 0 {
		cfg.APIs.Scrape.MaxContentChars = 8000
	}
	if cfg.APIs.Scrape.UserAgent == "" {
		cfg.APIs.Scrape.UserAgent = "Mozilla/5.0 (compatible; meeting-intel/1.0)"
	}

	r := &cfg.Research
	if r.CacheBackend == "" {
		r.CacheBackend = "memory"
	}
	if r.CacheTTL == 0 {
		r.CacheTTL = int((15 * time.Minute).Milliseconds())
	}
	if r.CRMBackend == "" {
		r.CRMBackend = "none"
	}
	if r.CRMRequestsPerMinute == 0 {
		r.CRMRequestsPerMinute = 60
	}
	if r.AttendeeConcurrency == 0 {
		r.AttendeeConcurrency = 3
	}
	if r.FuzzyPrefixLength == 0 {
		r.FuzzyPrefixLength = 4
	}
	if r.MaxToolRounds == 0 {
		r.MaxToolRounds = 1
	}
	if r.GenerationTimeout == 0 {
		r.GenerationTimeout = int((5 * time.Minute).Milliseconds())
	}
	setIntDefault(&r.LinkedInResults, 3)
	setIntDefault(&r.BackgroundResults, 3)
	setIntDefault(&r.OverviewResults, 5)
	setIntDefault(&r.NewsResults, 5)
	setIntDefault(&r.FinancialResults, 3)
	setIntDefault(&r.TransformationResults, 3)
	setIntDefault(&r.CompetitiveResults, 5)

	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = 3
	}
	if cfg.Retry.BaseDelay == 0 {
		cfg.Retry.BaseDelay = 500
	}
	if cfg.Retry.MaxDelay == 0 {
		cfg.Retry.MaxDelay = 8000
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
	if cfg.Tracing.SampleRatio == 0 {
		cfg.Tracing.SampleRatio = 1
	}

	for key, worker := range cfg.Workers {
		if worker.MaxJobsActive == 0 {
			worker.MaxJobsActive = 5
		}
		if worker.Timeout == 0 {
			worker.Timeout = r.GenerationTimeout + 60000
		}
		if worker.MaxRetries == 0 {
			worker.MaxRetries = 3
		}
		cfg.Workers[key] = worker
	}
}

func setIntDefault(dst *int, def int) {
	if *dst == 0 {
		*dst = def
	}
}

func validateConfig(cfg *Config) error {
	switch cfg.Research.CacheBackend {
	case "memory":
	case "redis":
		if cfg.Database.Redis.Address == "" {
			return fmt.Errorf("database.redis.address is required when research.cache_backend is redis")
		}
	default:
		return fmt.Errorf("unsupported research.cache_backend %q", cfg.Research.CacheBackend)
	}

	switch cfg.Research.CRMBackend {
	case "none":
	case "zoho":
		if cfg.Integrations.Zoho.AuthToken == "" {
			return fmt.Errorf("integrations.zoho.oauth_token is required when research.crm_backend is zoho")
		}
	case "postgres":
		if cfg.Database.Postgres.Host == "" || cfg.Database.Postgres.Database == "" {
			return fmt.Errorf("database.postgres.host and database are required when research.crm_backend is postgres")
		}
	case "elasticsearch":
		if len(cfg.Database.Elasticsearch.Addresses) == 0 {
			return fmt.Errorf("database.elasticsearch.addresses is required when research.crm_backend is elasticsearch")
		}
	default:
		return fmt.Errorf("unsupported research.crm_backend %q", cfg.Research.CRMBackend)
	}

	if cfg.Research.AttendeeConcurrency < 1 {
		return fmt.Errorf("research.attendee_concurrency must be positive")
	}
	if cfg.Research.MaxToolRounds < 0 {
		return fmt.Errorf("research.max_tool_rounds must not be negative")
	}
	if cfg.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be positive")
	}

	return nil
}

// ValidateForWorker checks the settings only the Zeebe worker process needs.
func ValidateForWorker(cfg *Config) error {
	if cfg.Camunda.BrokerAddress == "" {
		return fmt.Errorf("camunda.broker_address is required")
	}
	return nil
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}

// GetWorkerConfig retrieves worker-specific configuration with fallback to defaults
func GetWorkerConfig(cfg *Config, workerName string) WorkerConfig {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker
	}

	return WorkerConfig{
		Enabled:       true,
		MaxJobsActive: 5,
		Timeout:       cfg.Research.GenerationTimeout + 60000,
		MaxRetries:    3,
	}
}

// IsWorkerEnabled checks if a specific worker is enabled
func IsWorkerEnabled(cfg *Config, workerName string) bool {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker.Enabled
	}
	return true
}
