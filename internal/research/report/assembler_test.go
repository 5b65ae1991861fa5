package report

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"meeting-intel/internal/models"
	"meeting-intel/internal/research/validator"
)

func fixedAssembler(now time.Time) *Assembler {
	return NewAssemblerWith(func() time.Time { return now }, func() string { return "report-1" })
}

func TestAssemble_Structured(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	rc := &models.ResearchContext{
		Company:   "Acme",
		Attendees: []models.AttendeeProfile{{Name: "A"}, {Name: "B"}},
		Sources:   []string{"https://a.test", "https://b.test", "https://c.test"},
	}

	r := fixedAssembler(now).Assemble(AssemblyInput{
		Research:  rc,
		Draft:     validator.StructuredDraft{Content: models.ReportContent{ExecutiveSummary: "sum", ConfidenceScore: 0.4}},
		Critiqued: true,
		StartedAt: now.Add(-1500 * time.Millisecond),
	})

	assert.Equal(t, "report-1", r.ID)
	assert.True(t, r.Structured)
	assert.Equal(t, "sum", r.ExecutiveSummary)
	assert.Empty(t, r.RawContent)
	assert.Same(t, rc, r.Research)
	assert.Equal(t, models.ReportMetadata{
		GeneratedAt:      now,
		SourcesCount:     3,
		AttendeesCount:   2,
		Critiqued:        true,
		GenerationMillis: 1500,
	}, r.Metadata)
}

func TestAssemble_Raw(t *testing.T) {
	r := fixedAssembler(time.Now()).Assemble(AssemblyInput{
		Draft: validator.RawDraft{Source: "plain text brief"},
	})

	assert.False(t, r.Structured)
	assert.Equal(t, "plain text brief", r.RawContent)
	assert.Empty(t, r.ExecutiveSummary)
	assert.NotNil(t, r.Research)
	assert.Zero(t, r.Metadata.AttendeesCount)
	assert.Zero(t, r.Metadata.GenerationMillis)
}

func TestNewAssembler_UniqueIDs(t *testing.T) {
	a := NewAssembler()
	first := a.Assemble(AssemblyInput{Draft: validator.RawDraft{Source: "x"}})
	second := a.Assemble(AssemblyInput{Draft: validator.RawDraft{Source: "x"}})
	assert.NotEqual(t, first.ID, second.ID)
	assert.Len(t, first.ID, 36)
}
