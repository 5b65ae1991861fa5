package report

import (
	"time"

	"github.com/google/uuid"

	"meeting-intel/internal/models"
	"meeting-intel/internal/research/validator"
)

// AssemblyInput is everything the assembler merges.
type AssemblyInput struct {
	Research  *models.ResearchContext
	Draft     validator.Draft
	Critiqued bool
	StartedAt time.Time
}

// Assembler merges research, draft and run metadata. It performs no I/O;
// the clock and ID source are injected.
type Assembler struct {
	now   func() time.Time
	newID func() string
}

func NewAssembler() *Assembler {
	return &Assembler{
		now:   time.Now,
		newID: func() string { return uuid.New().String() },
	}
}

// NewAssemblerWith is NewAssembler with a fixed clock and ID source.
func NewAssemblerWith(now func() time.Time, newID func() string) *Assembler {
	return &Assembler{now: now, newID: newID}
}

func (a *Assembler) Assemble(in AssemblyInput) *models.IntelligenceReport {
	now := a.now().UTC()
	rc := in.Research
	if rc == nil {
		rc = &models.ResearchContext{}
	}

	r := &models.IntelligenceReport{
		ID:       a.newID(),
		Research: rc,
		Metadata: models.ReportMetadata{
			GeneratedAt:    now,
			SourcesCount:   len(rc.Sources),
			AttendeesCount: len(rc.Attendees),
			Critiqued:      in.Critiqued,
		},
	}
	if !in.StartedAt.IsZero() {
		r.Metadata.GenerationMillis = now.Sub(in.StartedAt).Milliseconds()
	}

	switch d := in.Draft.(type) {
	case validator.StructuredDraft:
		r.Structured = true
		r.ReportContent = d.Content
	case validator.RawDraft:
		r.RawContent = d.Source
	}
	return r
}
