package report

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "meeting-intel/internal/common/errors"
	"meeting-intel/internal/common/logger"
	"meeting-intel/internal/models"
	"meeting-intel/internal/providers/llm"
	"meeting-intel/internal/research/conversation"
	"meeting-intel/internal/research/orchestrator"
	"meeting-intel/internal/research/searchcache"
)

func structuredDraft(t *testing.T, summary string) string {
	t.Helper()
	raw, err := json.Marshal(map[string]interface{}{
		"executiveSummary":        summary,
		"companyIntelligence":     "Unknown",
		"attendeeAnalysis":        "Jane Doe leads sales.",
		"competitiveAnalysis":     "Unknown",
		"opportunityAssessment":   "Pipeline tooling.",
		"meetingDynamicsStrategy": "Open with discovery.",
		"keyQuestions":            []string{"What are your goals?"},
		"objectionsResponses":     "Budget: phase the rollout.",
		"followUpPlan":            "Send recap.",
		"openResearchItems":       []string{"Budget"},
		"confidenceScore":         0.6,
	})
	require.NoError(t, err)
	return string(raw)
}

type MockResearcher struct {
	mock.Mock
}

func (m *MockResearcher) Run(ctx context.Context, req models.ResearchRequest) *models.ResearchContext {
	return m.Called(ctx, req).Get(0).(*models.ResearchContext)
}

type MockDrafter struct {
	mock.Mock
}

func (m *MockDrafter) Run(ctx context.Context, system, user string) (*conversation.Result, error) {
	args := m.Called(ctx, system, user)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*conversation.Result), args.Error(1)
}

type MockCritic struct {
	mock.Mock
}

func (m *MockCritic) Refine(ctx context.Context, draft string, rc *models.ResearchContext) (string, bool) {
	args := m.Called(ctx, draft, rc)
	return args.String(0), args.Bool(1)
}

var validRequest = models.ResearchRequest{
	Company:   "Acme Co",
	Attendees: []models.AttendeeInput{{Name: "Jane Doe", Title: "VP Sales"}},
	Purpose:   "Discovery call",
}

func researchContext() *models.ResearchContext {
	return &models.ResearchContext{
		Company:   "Acme Co",
		Attendees: []models.AttendeeProfile{{Name: "Jane Doe"}},
		Sources:   []string{"https://a.test"},
	}
}

func TestGenerateReport_Structured(t *testing.T) {
	researcher := new(MockResearcher)
	drafter := new(MockDrafter)
	rc := researchContext()

	researcher.On("Run", mock.Anything, validRequest).Return(rc)
	drafter.On("Run", mock.Anything, mock.AnythingOfType("string"), mock.MatchedBy(func(user string) bool {
		return len(user) > 0
	})).Return(&conversation.Result{Draft: structuredDraft(t, "Acme summary")}, nil)

	g := NewGenerator(researcher, drafter, WithLogger(logger.NewTestLogger(t)))
	r, err := g.GenerateReport(context.Background(), validRequest)

	require.NoError(t, err)
	assert.True(t, r.Structured)
	assert.Equal(t, "Acme summary", r.ExecutiveSummary)
	assert.Equal(t, 1, r.Metadata.AttendeesCount)
	assert.Equal(t, 1, r.Metadata.SourcesCount)
	assert.False(t, r.Metadata.Critiqued)
	assert.Same(t, rc, r.Research)
	researcher.AssertExpectations(t)
	drafter.AssertExpectations(t)
}

func TestGenerateReport_RawFallback(t *testing.T) {
	researcher := new(MockResearcher)
	drafter := new(MockDrafter)
	researcher.On("Run", mock.Anything, mock.Anything).Return(researchContext())
	drafter.On("Run", mock.Anything, mock.Anything, mock.Anything).
		Return(&conversation.Result{Draft: "## Brief\nNo JSON here"}, nil)

	r, err := NewGenerator(researcher, drafter).GenerateReport(context.Background(), validRequest)

	require.NoError(t, err)
	assert.False(t, r.Structured)
	assert.Equal(t, "## Brief\nNo JSON here", r.RawContent)
}

func TestGenerateReport_InvalidRequest(t *testing.T) {
	researcher := new(MockResearcher)
	drafter := new(MockDrafter)
	g := NewGenerator(researcher, drafter)

	for _, req := range []models.ResearchRequest{
		{Company: "  ", Attendees: []models.AttendeeInput{{Name: "A B"}}},
		{Company: "Acme"},
		{Company: "Acme", Attendees: []models.AttendeeInput{{Name: " "}}},
	} {
		_, err := g.GenerateReport(context.Background(), req)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidResearchRequest))
	}
	researcher.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
}

func TestGenerateReport_DraftErrorsPropagate(t *testing.T) {
	for _, draftErr := range []error{
		apperrors.NewLLMTimeoutError(context.DeadlineExceeded),
		apperrors.NewLLMNotConfiguredError(),
		apperrors.NewLLMEmptyResponseError(),
	} {
		researcher := new(MockResearcher)
		drafter := new(MockDrafter)
		researcher.On("Run", mock.Anything, mock.Anything).Return(researchContext())
		drafter.On("Run", mock.Anything, mock.Anything, mock.Anything).Return(nil, draftErr)

		r, err := NewGenerator(researcher, drafter).GenerateReport(context.Background(), validRequest)

		assert.Nil(t, r)
		assert.ErrorIs(t, err, draftErr)
	}
}

func TestGenerateReport_Critique(t *testing.T) {
	original := structuredDraft(t, "Original")
	revised := structuredDraft(t, "Revised")

	tests := []struct {
		name          string
		draft         string
		refined       string
		applied       bool
		skip          bool
		wantSummary   string
		wantRaw       string
		wantCritiqued bool
		expectCall    bool
	}{
		{name: "applied", draft: original, refined: revised, applied: true, wantSummary: "Revised", wantCritiqued: true, expectCall: true},
		{name: "critic failed", draft: original, refined: original, applied: false, wantSummary: "Original", expectCall: true},
		{name: "structure regression rejected", draft: original, refined: "prose only", applied: true, wantSummary: "Original", expectCall: true},
		{name: "raw draft improved to raw", draft: "raw v1", refined: "raw v2", applied: true, wantRaw: "raw v2", wantCritiqued: true, expectCall: true},
		{name: "raw draft upgraded to structured", draft: "raw v1", refined: revised, applied: true, wantSummary: "Revised", wantCritiqued: true, expectCall: true},
		{name: "skipped per request", draft: original, skip: true, wantSummary: "Original"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			researcher := new(MockResearcher)
			drafter := new(MockDrafter)
			critic := new(MockCritic)
			rc := researchContext()

			researcher.On("Run", mock.Anything, mock.Anything).Return(rc)
			drafter.On("Run", mock.Anything, mock.Anything, mock.Anything).Return(&conversation.Result{Draft: tt.draft}, nil)
			if tt.expectCall {
				critic.On("Refine", mock.Anything, tt.draft, rc).Return(tt.refined, tt.applied)
			}

			req := validRequest
			req.SkipCritique = tt.skip
			r, err := NewGenerator(researcher, drafter, WithCritic(critic)).GenerateReport(context.Background(), req)

			require.NoError(t, err)
			assert.Equal(t, tt.wantSummary, r.ExecutiveSummary)
			assert.Equal(t, tt.wantRaw, r.RawContent)
			assert.Equal(t, tt.wantCritiqued, r.Metadata.Critiqued)
			if tt.expectCall {
				critic.AssertExpectations(t)
			} else {
				critic.AssertNotCalled(t, "Refine", mock.Anything, mock.Anything, mock.Anything)
			}
		})
	}
}

func TestGenerateReport_CritiqueDisabledGlobally(t *testing.T) {
	researcher := new(MockResearcher)
	drafter := new(MockDrafter)
	critic := new(MockCritic)
	researcher.On("Run", mock.Anything, mock.Anything).Return(researchContext())
	drafter.On("Run", mock.Anything, mock.Anything, mock.Anything).Return(&conversation.Result{Draft: "text"}, nil)

	_, err := NewGenerator(researcher, drafter, WithCritic(critic), WithCritiqueEnabled(false)).
		GenerateReport(context.Background(), validRequest)

	require.NoError(t, err)
	critic.AssertNotCalled(t, "Refine", mock.Anything, mock.Anything, mock.Anything)
}

// recordingProvider fails every search and counts calls per query.
type recordingProvider struct {
	mu    sync.Mutex
	calls map[string]int
}

func (p *recordingProvider) Search(ctx context.Context, query string, maxResults int) ([]models.SearchResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.calls == nil {
		p.calls = make(map[string]int)
	}
	p.calls[query]++
	return nil, errors.New("provider offline")
}

type replayModel struct {
	responses []*llm.ChatResponse
	n         int
}

func (m *replayModel) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	r := m.responses[m.n]
	m.n++
	return r, nil
}

func TestGenerateReport_EndToEndWarmCache(t *testing.T) {
	provider := &recordingProvider{}
	store := searchcache.NewMemoryStore()
	cache := searchcache.New(provider, searchcache.WithStore(store))

	background := orchestrator.BackgroundQuery("Jane Doe", "Acme Co", "VP Sales")
	require.NoError(t, store.Set(context.Background(), background, searchcache.Entry{
		Results:   []models.SearchResult{{Title: "Jane Doe joins Acme", Link: "https://news.test/jane", Snippet: "VP Sales"}},
		FetchedAt: time.Now(),
	}, time.Hour))

	model := &replayModel{responses: []*llm.ChatResponse{
		{ToolCalls: []llm.ToolCall{{ID: "t1", Name: "web_search", Arguments: `{"query":"Acme Co pricing"}`}}},
		{Content: structuredDraft(t, "Acme Co is evaluating sales tooling.")},
	}}

	engine := conversation.NewEngine(model, conversation.NewToolbox(cache, nil, nil), conversation.WithDeadline(time.Minute))
	g := NewGenerator(orchestrator.New(cache), engine)

	r, err := g.GenerateReport(context.Background(), validRequest)

	require.NoError(t, err)
	assert.Equal(t, 1, r.Metadata.AttendeesCount)
	require.Len(t, r.Research.Attendees, 1)
	assert.Equal(t, "Jane Doe", r.Research.Attendees[0].Name)
	require.NotNil(t, r.Research.Attendees[0].SearchResults)
	assert.Equal(t, "Jane Doe joins Acme", r.Research.Attendees[0].SearchResults[0].Title)
	assert.True(t, r.Structured)

	provider.mu.Lock()
	defer provider.mu.Unlock()
	assert.Zero(t, provider.calls[background], "warm background query must not reach the provider")
	assert.Equal(t, 1, provider.calls["Acme Co pricing"])
}

func TestGenerateReport_DeadlineCoversCritique(t *testing.T) {
	researcher := new(MockResearcher)
	drafter := new(MockDrafter)
	critic := new(MockCritic)
	rc := researchContext()
	draft := structuredDraft(t, "Original")

	hasDeadline := mock.MatchedBy(func(ctx context.Context) bool {
		dl, ok := ctx.Deadline()
		return ok && time.Until(dl) <= time.Minute
	})
	researcher.On("Run", hasDeadline, mock.Anything).Return(rc)
	drafter.On("Run", hasDeadline, mock.Anything, mock.Anything).Return(&conversation.Result{Draft: draft}, nil)
	critic.On("Refine", hasDeadline, draft, rc).Return(draft, false)

	r, err := NewGenerator(researcher, drafter, WithCritic(critic), WithDeadline(time.Minute)).
		GenerateReport(context.Background(), validRequest)

	require.NoError(t, err)
	assert.Equal(t, "Original", r.ExecutiveSummary)
	researcher.AssertExpectations(t)
	drafter.AssertExpectations(t)
	critic.AssertExpectations(t)
}
