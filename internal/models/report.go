package models

import "time"

// ReportContent is the fixed set of sections the model is asked to produce.
type ReportContent struct {
	ExecutiveSummary        string   `json:"executiveSummary"`
	CompanyIntelligence     string   `json:"companyIntelligence"`
	AttendeeAnalysis        string   `json:"attendeeAnalysis"`
	CompetitiveAnalysis     string   `json:"competitiveAnalysis"`
	OpportunityAssessment   string   `json:"opportunityAssessment"`
	MeetingDynamicsStrategy string   `json:"meetingDynamicsStrategy"`
	KeyQuestions            []string `json:"keyQuestions"`
	ObjectionsResponses     string   `json:"objectionsResponses"`
	FollowUpPlan            string   `json:"followUpPlan"`
	OpenResearchItems       []string `json:"openResearchItems"`
	ConfidenceScore         float64  `json:"confidenceScore"`
}

// ReportMetadata describes the run that produced a report.
type ReportMetadata struct {
	GeneratedAt      time.Time `json:"generatedAt"`
	SourcesCount     int       `json:"sourcesCount"`
	AttendeesCount   int       `json:"attendeesCount"`
	Critiqued        bool      `json:"critiqued"`
	GenerationMillis int64     `json:"generationMillis"`
}

// IntelligenceReport is the final deliverable. When Structured is false the
// section fields are empty and RawContent carries the model's text.
type IntelligenceReport struct {
	ID         string `json:"id"`
	Structured bool   `json:"structured"`
	ReportContent
	RawContent string           `json:"rawContent,omitempty"`
	Research   *ResearchContext `json:"research"`
	Metadata   ReportMetadata   `json:"metadata"`
}
