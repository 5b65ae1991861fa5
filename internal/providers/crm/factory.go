package crm

import (
	"fmt"
	"time"

	"meeting-intel/internal/common/config"
	"meeting-intel/internal/common/database"
	"meeting-intel/internal/common/logger"
	"meeting-intel/internal/common/retry"
	"meeting-intel/internal/common/zoho"
	"meeting-intel/internal/research/crmmatch"
	"meeting-intel/internal/research/ratelimit"
)

// Backends carries the already connected database clients a store may need.
type Backends struct {
	Postgres      *database.PostgresClient
	Elasticsearch *database.ElasticsearchClient
}

// NewStore builds the configured ContactStore behind the per-minute CRM
// limiter. It returns nil when CRM lookups are disabled.
func NewStore(cfg *config.Config, backends Backends, policy retry.Policy, log logger.Logger) (crmmatch.ContactStore, error) {
	var store crmmatch.ContactStore

	switch cfg.Research.CRMBackend {
	case "", BackendNone:
		return nil, nil
	case BackendZoho:
		z := cfg.Integrations.Zoho
		client := zoho.NewCRMClient(z.BaseURL, z.AuthToken, config.GetDuration(z.Timeout), policy)
		store = NewZohoStore(client)
	case BackendPostgres:
		if backends.Postgres == nil {
			return nil, fmt.Errorf("crm backend postgres requires a postgres connection")
		}
		store = NewPostgresStore(backends.Postgres, policy)
	case BackendElasticsearch:
		if backends.Elasticsearch == nil {
			return nil, fmt.Errorf("crm backend elasticsearch requires an elasticsearch connection")
		}
		store = NewElasticsearchStore(backends.Elasticsearch, cfg.Database.Elasticsearch.ContactIndex, policy)
	default:
		return nil, fmt.Errorf("unsupported crm backend %q", cfg.Research.CRMBackend)
	}

	limiter := ratelimit.NewWindowLimiter("crm", cfg.Research.CRMRequestsPerMinute,
		ratelimit.WithWindow(time.Minute),
		ratelimit.WithLogger(log),
	)
	return NewRateLimitedStore(store, limiter), nil
}
