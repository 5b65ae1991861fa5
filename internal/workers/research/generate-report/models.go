package generatereport

import (
	"encoding/json"
	"strings"

	"meeting-intel/internal/models"
)

// Input is the job variable payload. Field names match the process model.
type Input struct {
	Company           string                 `json:"company"`
	Attendees         []models.AttendeeInput `json:"attendees"`
	Purpose           string                 `json:"purpose,omitempty"`
	AdditionalContext string                 `json:"additionalContext,omitempty"`
	Industry          string                 `json:"industry,omitempty"`
	SkipCritique      bool                   `json:"skipCritique,omitempty"`
}

// ToRequest trims the free-text fields and builds the research request.
func (in *Input) ToRequest() models.ResearchRequest {
	attendees := make([]models.AttendeeInput, len(in.Attendees))
	for i, a := range in.Attendees {
		attendees[i] = models.AttendeeInput{
			Name:        strings.TrimSpace(a.Name),
			Email:       strings.TrimSpace(a.Email),
			Title:       strings.TrimSpace(a.Title),
			Company:     strings.TrimSpace(a.Company),
			LinkedInURL: strings.TrimSpace(a.LinkedInURL),
		}
	}
	return models.ResearchRequest{
		Company:           strings.TrimSpace(in.Company),
		Attendees:         attendees,
		Purpose:           strings.TrimSpace(in.Purpose),
		AdditionalContext: strings.TrimSpace(in.AdditionalContext),
		Industry:          strings.TrimSpace(in.Industry),
		SkipCritique:      in.SkipCritique,
	}
}

type Output struct {
	Report *models.IntelligenceReport `json:"report"`
}

// Variables renders the output as job completion variables.
func (o *Output) Variables() (map[string]interface{}, error) {
	raw, err := json.Marshal(o.Report)
	if err != nil {
		return nil, err
	}
	var report map[string]interface{}
	if err := json.Unmarshal(raw, &report); err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"report":           report,
		"reportId":         o.Report.ID,
		"reportStructured": o.Report.Structured,
	}, nil
}
