// Package validator turns the model's final text into either a typed report
// or the unchanged raw text.
package validator

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"meeting-intel/internal/models"
	"meeting-intel/internal/research/prompts"
)

// Draft is either StructuredDraft or RawDraft.
type Draft interface {
	isDraft()
	// Text is what the model produced, unmodified.
	Text() string
}

// StructuredDraft is a draft that passed validation.
type StructuredDraft struct {
	Content models.ReportContent
	Source  string
}

func (StructuredDraft) isDraft()       {}
func (d StructuredDraft) Text() string { return d.Source }

// RawDraft is a draft that could not be parsed into the report shape.
type RawDraft struct {
	Source string
	Reason string
}

func (RawDraft) isDraft()       {}
func (d RawDraft) Text() string { return d.Source }

var (
	schemaOnce sync.Once
	schema     *gojsonschema.Schema
	schemaErr  error
)

// nonBlank matches strings that contain something besides whitespace.
const nonBlank = `\S`

func reportSchema() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		text := map[string]interface{}{"type": "string", "pattern": nonBlank}
		list := map[string]interface{}{"type": "array", "minItems": 1, "items": text}

		props := map[string]interface{}{}
		for _, f := range prompts.ReportFields {
			switch f {
			case "keyQuestions", "openResearchItems":
				props[f] = list
			case "confidenceScore":
				props[f] = map[string]interface{}{"type": "number"}
			default:
				props[f] = text
			}
		}

		schema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewGoLoader(map[string]interface{}{
			"type":       "object",
			"properties": props,
			"required":   prompts.ReportFields,
		}))
	})
	return schema, schemaErr
}

// Validate parses draft into a report. Any parse or shape failure returns a
// RawDraft carrying draft unchanged.
func Validate(draft string) Draft {
	body := stripFences(draft)
	if !strings.HasPrefix(body, "{") {
		return RawDraft{Source: draft, Reason: "not a json object"}
	}

	s, err := reportSchema()
	if err != nil {
		return RawDraft{Source: draft, Reason: fmt.Sprintf("schema: %v", err)}
	}

	result, err := s.Validate(gojsonschema.NewStringLoader(body))
	if err != nil {
		return RawDraft{Source: draft, Reason: fmt.Sprintf("parse: %v", err)}
	}
	if !result.Valid() {
		errs := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			errs[i] = desc.String()
		}
		return RawDraft{Source: draft, Reason: strings.Join(errs, "; ")}
	}

	var content models.ReportContent
	if err := json.Unmarshal([]byte(body), &content); err != nil {
		return RawDraft{Source: draft, Reason: fmt.Sprintf("decode: %v", err)}
	}
	normalize(&content)
	return StructuredDraft{Content: content, Source: draft}
}

// stripFences removes a surrounding markdown code fence, if any.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		return strings.TrimSpace(strings.TrimSuffix(s, "```"))
	}
	s = strings.TrimSpace(s)
	return strings.TrimSpace(strings.TrimSuffix(s, "```"))
}

func normalize(c *models.ReportContent) {
	for _, p := range []*string{
		&c.ExecutiveSummary, &c.CompanyIntelligence, &c.AttendeeAnalysis,
		&c.CompetitiveAnalysis, &c.OpportunityAssessment, &c.MeetingDynamicsStrategy,
		&c.ObjectionsResponses, &c.FollowUpPlan,
	} {
		*p = strings.TrimSpace(*p)
	}
	c.KeyQuestions = trimList(c.KeyQuestions)
	c.OpenResearchItems = trimList(c.OpenResearchItems)
	c.ConfidenceScore = ClampConfidence(c.ConfidenceScore)
}

func trimList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// ClampConfidence bounds v to [0, 1].
func ClampConfidence(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
