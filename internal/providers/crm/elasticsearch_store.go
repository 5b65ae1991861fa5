package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"meeting-intel/internal/common/database"
	apperrors "meeting-intel/internal/common/errors"
	"meeting-intel/internal/common/retry"
	"meeting-intel/internal/models"
	"meeting-intel/internal/research/crmmatch"
)

// ElasticsearchStore searches an index of CRM contact documents.
type ElasticsearchStore struct {
	es     *database.ElasticsearchClient
	index  string
	policy retry.Policy
}

type contactDocument struct {
	FirstName    string     `json:"first_name"`
	LastName     string     `json:"last_name"`
	Email        string     `json:"email"`
	Company      string     `json:"company"`
	Title        string     `json:"title"`
	Phone        string     `json:"phone"`
	Owner        string     `json:"owner"`
	LastActivity *time.Time `json:"last_activity"`
	Notes        string     `json:"notes"`
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			ID     string          `json:"_id"`
			Source contactDocument `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

func NewElasticsearchStore(es *database.ElasticsearchClient, index string, policy retry.Policy) *ElasticsearchStore {
	if index == "" {
		index = "crm-contacts"
	}
	return &ElasticsearchStore{es: es, index: index, policy: policy}
}

func (s *ElasticsearchStore) FindByEmail(ctx context.Context, email string) (*models.Contact, error) {
	query := map[string]interface{}{
		"size": 5,
		"query": map[string]interface{}{
			"match": map[string]interface{}{
				"email": map[string]interface{}{"query": email, "operator": "and"},
			},
		},
	}

	contacts, err := s.search(ctx, query)
	if err != nil {
		return nil, apperrors.NewCRMLookupFailedError(BackendElasticsearch, err)
	}
	for i := range contacts {
		if strings.EqualFold(contacts[i].Email, email) {
			return &contacts[i], nil
		}
	}
	return nil, nil
}

func (s *ElasticsearchStore) FindByName(ctx context.Context, q crmmatch.NameQuery) ([]models.Contact, error) {
	firstClause := map[string]interface{}{
		"match": map[string]interface{}{"first_name": q.FirstName},
	}
	if q.FirstNamePrefix {
		firstClause = map[string]interface{}{
			"match_phrase_prefix": map[string]interface{}{"first_name": q.FirstName},
		}
	}
	must := []interface{}{
		map[string]interface{}{"match": map[string]interface{}{"last_name": q.LastName}},
		firstClause,
	}
	if q.Company != "" {
		must = append(must, map[string]interface{}{"match": map[string]interface{}{"company": q.Company}})
	}

	query := map[string]interface{}{
		"size":  maxCandidates * 2,
		"query": map[string]interface{}{"bool": map[string]interface{}{"must": must}},
		"sort":  []interface{}{map[string]interface{}{"last_activity": map[string]interface{}{"order": "desc", "missing": "_last", "unmapped_type": "date"}}},
	}

	contacts, err := s.search(ctx, query)
	if err != nil {
		return nil, apperrors.NewCRMLookupFailedError(BackendElasticsearch, err)
	}
	// match queries are analyzed, so tighten to exact name semantics.
	return filterContacts(contacts, q), nil
}

func (s *ElasticsearchStore) search(ctx context.Context, query map[string]interface{}) ([]models.Contact, error) {
	body, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}

	return retry.Do(ctx, s.policy, func(ctx context.Context) ([]models.Contact, error) {
		client := s.es.Client
		res, err := client.Search(
			client.Search.WithContext(ctx),
			client.Search.WithIndex(s.index),
			client.Search.WithBody(bytes.NewReader(body)),
		)
		if err != nil {
			return nil, err
		}
		defer res.Body.Close()

		if res.IsError() {
			msg, _ := io.ReadAll(io.LimitReader(res.Body, 2048))
			return nil, retry.ClassifyStatus(res.StatusCode, string(msg))
		}

		var parsed searchResponse
		if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
			return nil, retry.Permanent(fmt.Errorf("decode search response: %w", err))
		}

		out := make([]models.Contact, 0, len(parsed.Hits.Hits))
		for _, hit := range parsed.Hits.Hits {
			d := hit.Source
			out = append(out, models.Contact{
				ID:           hit.ID,
				FirstName:    d.FirstName,
				LastName:     d.LastName,
				Email:        d.Email,
				Company:      d.Company,
				Title:        d.Title,
				Phone:        d.Phone,
				Owner:        d.Owner,
				LastActivity: d.LastActivity,
				Notes:        d.Notes,
				Source:       BackendElasticsearch,
			})
		}
		return out, nil
	})
}
