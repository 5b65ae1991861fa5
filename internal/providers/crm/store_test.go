package crm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"meeting-intel/internal/common/config"
	"meeting-intel/internal/common/database"
	apperrors "meeting-intel/internal/common/errors"
	"meeting-intel/internal/common/logger"
	"meeting-intel/internal/common/retry"
	"meeting-intel/internal/common/zoho"
	"meeting-intel/internal/models"
	"meeting-intel/internal/research/crmmatch"
)

var testPolicy = retry.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}

var contactCols = []string{"id", "first_name", "last_name", "email", "company", "title", "phone", "owner", "last_activity", "notes"}

func TestMatchesQuery(t *testing.T) {
	c := models.Contact{FirstName: "Jonathan", LastName: "Smith", Company: "Acme Corporation"}

	tests := []struct {
		name string
		q    crmmatch.NameQuery
		want bool
	}{
		{"exact", crmmatch.NameQuery{FirstName: "jonathan", LastName: "SMITH"}, true},
		{"first name differs", crmmatch.NameQuery{FirstName: "Jon", LastName: "Smith"}, false},
		{"prefix", crmmatch.NameQuery{FirstName: "jona", LastName: "Smith", FirstNamePrefix: true}, true},
		{"company contained", crmmatch.NameQuery{FirstName: "Jonathan", LastName: "Smith", Company: "acme"}, true},
		{"company mismatch", crmmatch.NameQuery{FirstName: "Jonathan", LastName: "Smith", Company: "Globex"}, false},
		{"last name differs", crmmatch.NameQuery{FirstName: "Jonathan", LastName: "Smyth"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, matchesQuery(c, tt.q))
		})
	}
}

func TestZohoStore(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("email") != "" {
			_, _ = w.Write([]byte(`{"data":[{"id":"1","First_Name":"Jane","Last_Name":"Doe","Email":"Jane@Acme.test","Account_Name":{"name":"Acme"},"Owner":{"name":"Rep"}}]}`))
			return
		}
		assert.Equal(t, "((Last_Name:equals:Doe)and(First_Name:starts_with:Ja))", r.URL.Query().Get("criteria"))
		_, _ = w.Write([]byte(`{"data":[
			{"id":"1","First_Name":"Jane","Last_Name":"Doe","Account_Name":{"name":"Acme"}},
			{"id":"2","First_Name":"Jake","Last_Name":"Doe","Account_Name":{"name":"Globex"}}
		]}`))
	}))
	defer server.Close()

	store := NewZohoStore(zoho.NewCRMClient(server.URL, "tok", time.Second, testPolicy))

	contact, err := store.FindByEmail(context.Background(), "jane@acme.test")
	require.NoError(t, err)
	require.NotNil(t, contact)
	assert.Equal(t, "Acme", contact.Company)
	assert.Equal(t, "Rep", contact.Owner)
	assert.Equal(t, BackendZoho, contact.Source)

	contacts, err := store.FindByName(context.Background(), crmmatch.NameQuery{
		FirstName: "Ja", LastName: "Doe", Company: "acme", FirstNamePrefix: true,
	})
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.Equal(t, "1", contacts[0].ID)
}

func TestZohoStore_ErrorIsCRMLookupFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	store := NewZohoStore(zoho.NewCRMClient(server.URL, "tok", time.Second, testPolicy))
	_, err := store.FindByEmail(context.Background(), "x@y.test")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeCRMLookupFailed))
}

func TestPostgresStore_FindByEmail(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	activity := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`WHERE LOWER\(email\) = \$1`).
		WithArgs("jane@acme.test").
		WillReturnRows(sqlmock.NewRows(contactCols).
			AddRow("c1", "Jane", "Doe", "jane@acme.test", "Acme", "CTO", nil, "Rep", activity, nil))

	store := NewPostgresStore(database.NewPostgresFromDB(db), testPolicy)
	contact, err := store.FindByEmail(context.Background(), "Jane@Acme.test")

	require.NoError(t, err)
	require.NotNil(t, contact)
	assert.Equal(t, "CTO", contact.Title)
	assert.Empty(t, contact.Phone)
	require.NotNil(t, contact.LastActivity)
	assert.True(t, activity.Equal(*contact.LastActivity))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FindByEmailNoRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`FROM crm_contacts`).WillReturnRows(sqlmock.NewRows(contactCols))

	store := NewPostgresStore(database.NewPostgresFromDB(db), testPolicy)
	contact, err := store.FindByEmail(context.Background(), "nobody@acme.test")

	require.NoError(t, err)
	assert.Nil(t, contact)
}

func TestPostgresStore_FindByNamePrefixWithCompany(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`LOWER\(last_name\) = LOWER\(\$1\) AND first_name ILIKE \$2 AND TRIM\(company\) <> '' AND \(company ILIKE \$3`).
		WithArgs("Smith", "Jon%", "%Acme%", "Acme").
		WillReturnRows(sqlmock.NewRows(contactCols).
			AddRow("c2", "Jonathan", "Smith", nil, "Acme", nil, nil, nil, nil, nil))

	store := NewPostgresStore(database.NewPostgresFromDB(db), testPolicy)
	contacts, err := store.FindByName(context.Background(), crmmatch.NameQuery{
		FirstName: "Jon", LastName: "Smith", Company: "Acme", FirstNamePrefix: true,
	})

	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.Equal(t, "c2", contacts[0].ID)
	assert.Nil(t, contacts[0].LastActivity)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_NameQueryExcludesBlankCompanies(t *testing.T) {
	store := NewPostgresStore(nil, testPolicy)

	withCompany, args := store.nameQuery(crmmatch.NameQuery{FirstName: "Jane", LastName: "Doe", Company: "Acme Corp"})
	assert.Contains(t, withCompany, "TRIM(company) <> '' AND (company ILIKE $3 OR $4 ILIKE ('%' || company || '%'))")
	assert.Equal(t, []interface{}{"Doe", "Jane", "%Acme Corp%", "Acme Corp"}, args)

	// Without a hint, contacts with no company are still candidates.
	anyCompany, args := store.nameQuery(crmmatch.NameQuery{FirstName: "Jane", LastName: "Doe"})
	assert.NotContains(t, anyCompany, "company <>")
	assert.Len(t, args, 2)
}

func TestPostgresStore_QueryErrorIsCRMLookupFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`FROM crm_contacts`).WillReturnError(errors.New("connection reset"))
	mock.ExpectQuery(`FROM crm_contacts`).WillReturnError(errors.New("connection reset"))

	store := NewPostgresStore(database.NewPostgresFromDB(db), testPolicy)
	_, err = store.FindByName(context.Background(), crmmatch.NameQuery{FirstName: "A", LastName: "B"})

	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeCRMLookupFailed))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `50\%\_off`, escapeLike("50%_off"))
}

func newESServer(t *testing.T, handler func(body map[string]interface{}) string) *database.ElasticsearchClient {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/crm-contacts/_search")
		raw, _ := io.ReadAll(r.Body)
		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(raw, &body))

		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(handler(body)))
	}))
	t.Cleanup(server.Close)

	client, err := database.NewElasticsearch(config.ElasticsearchConfig{Addresses: []string{server.URL}})
	require.NoError(t, err)
	return client
}

func TestElasticsearchStore_FindByEmail(t *testing.T) {
	es := newESServer(t, func(body map[string]interface{}) string {
		return `{"hits":{"hits":[
			{"_id":"x","_source":{"first_name":"Other","last_name":"Person","email":"other@acme.test"}},
			{"_id":"e1","_source":{"first_name":"Jane","last_name":"Doe","email":"jane@acme.test","company":"Acme"}}
		]}}`
	})

	store := NewElasticsearchStore(es, "", testPolicy)
	contact, err := store.FindByEmail(context.Background(), "jane@acme.test")

	require.NoError(t, err)
	require.NotNil(t, contact)
	assert.Equal(t, "e1", contact.ID)
	assert.Equal(t, BackendElasticsearch, contact.Source)
}

func TestElasticsearchStore_FindByNameFiltersAnalyzedMatches(t *testing.T) {
	es := newESServer(t, func(body map[string]interface{}) string {
		must := body["query"].(map[string]interface{})["bool"].(map[string]interface{})["must"].([]interface{})
		assert.Len(t, must, 2)
		assert.Contains(t, must[1].(map[string]interface{}), "match_phrase_prefix")
		return `{"hits":{"hits":[
			{"_id":"a","_source":{"first_name":"Jonathan","last_name":"Smith"}},
			{"_id":"b","_source":{"first_name":"Jo","last_name":"Smith-Jones"}}
		]}}`
	})

	store := NewElasticsearchStore(es, "crm-contacts", testPolicy)
	contacts, err := store.FindByName(context.Background(), crmmatch.NameQuery{
		FirstName: "Jona", LastName: "Smith", FirstNamePrefix: true,
	})

	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.Equal(t, "a", contacts[0].ID)
}

type MockLimiter struct {
	mock.Mock
}

func (m *MockLimiter) Acquire(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type MockStore struct {
	mock.Mock
}

func (m *MockStore) FindByEmail(ctx context.Context, email string) (*models.Contact, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Contact), args.Error(1)
}

func (m *MockStore) FindByName(ctx context.Context, q crmmatch.NameQuery) ([]models.Contact, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Contact), args.Error(1)
}

func TestRateLimitedStore(t *testing.T) {
	ctx := context.Background()
	limiter := new(MockLimiter)
	inner := new(MockStore)

	limiter.On("Acquire", ctx).Return(nil).Twice()
	inner.On("FindByEmail", ctx, "a@b.test").Return(nil, nil)
	inner.On("FindByName", ctx, crmmatch.NameQuery{FirstName: "A", LastName: "B"}).Return([]models.Contact{}, nil)

	store := NewRateLimitedStore(inner, limiter)
	_, err := store.FindByEmail(ctx, "a@b.test")
	require.NoError(t, err)
	_, err = store.FindByName(ctx, crmmatch.NameQuery{FirstName: "A", LastName: "B"})
	require.NoError(t, err)

	limiter.AssertExpectations(t)
	inner.AssertExpectations(t)
}

func TestRateLimitedStore_CancelledWaitSkipsBackend(t *testing.T) {
	ctx := context.Background()
	limiter := new(MockLimiter)
	inner := new(MockStore)
	limiter.On("Acquire", ctx).Return(context.Canceled)

	_, err := NewRateLimitedStore(inner, limiter).FindByEmail(ctx, "a@b.test")

	assert.ErrorIs(t, err, context.Canceled)
	inner.AssertNotCalled(t, "FindByEmail", mock.Anything, mock.Anything)
}

func TestNewStore(t *testing.T) {
	log := logger.NewTestLogger(t)

	store, err := NewStore(&config.Config{}, Backends{}, testPolicy, log)
	require.NoError(t, err)
	assert.Nil(t, store)

	cfg := &config.Config{Research: config.ResearchConfig{CRMBackend: BackendZoho, CRMRequestsPerMinute: 60}}
	store, err = NewStore(cfg, Backends{}, testPolicy, log)
	require.NoError(t, err)
	assert.IsType(t, &RateLimitedStore{}, store)

	cfg.Research.CRMBackend = BackendPostgres
	_, err = NewStore(cfg, Backends{}, testPolicy, log)
	assert.Error(t, err)

	cfg.Research.CRMBackend = "salesforce"
	_, err = NewStore(cfg, Backends{}, testPolicy, log)
	assert.Error(t, err)
}
