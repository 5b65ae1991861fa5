package models

import "time"

// SearchResult is one hit from a web search provider. Link is empty when the
// result is a synthetic error marker.
type SearchResult struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	Link    string `json:"link"`
	Error   string `json:"error,omitempty"`
}

// IsError reports whether the result stands in for a failed provider call.
func (r SearchResult) IsError() bool {
	return r.Error != ""
}

// AttendeeInput holds the caller-supplied identity hints for one person.
type AttendeeInput struct {
	Name        string `json:"name"`
	Email       string `json:"email,omitempty"`
	Title       string `json:"title,omitempty"`
	Company     string `json:"company,omitempty"`
	LinkedInURL string `json:"linkedinUrl,omitempty"`
}

// ResearchRequest is the input to one report generation run.
type ResearchRequest struct {
	Company           string          `json:"company"`
	Attendees         []AttendeeInput `json:"attendees"`
	Purpose           string          `json:"purpose,omitempty"`
	AdditionalContext string          `json:"additionalContext,omitempty"`
	Industry          string          `json:"industry,omitempty"`
	SkipCritique      bool            `json:"skipCritique,omitempty"`
}

// Contact is a CRM record resolved for an attendee.
type Contact struct {
	ID           string     `json:"id"`
	FirstName    string     `json:"firstName"`
	LastName     string     `json:"lastName"`
	Email        string     `json:"email,omitempty"`
	Company      string     `json:"company,omitempty"`
	Title        string     `json:"title,omitempty"`
	Phone        string     `json:"phone,omitempty"`
	Owner        string     `json:"owner,omitempty"`
	LastActivity *time.Time `json:"lastActivity,omitempty"`
	Notes        string     `json:"notes,omitempty"`
	Source       string     `json:"source,omitempty"`
}

// FullName joins first and last name.
func (c Contact) FullName() string {
	switch {
	case c.FirstName == "":
		return c.LastName
	case c.LastName == "":
		return c.FirstName
	default:
		return c.FirstName + " " + c.LastName
	}
}

// AttendeeProfile is the research result for one attendee. It is built once
// per run and not modified after it is placed in a ResearchContext.
type AttendeeProfile struct {
	Name            string         `json:"name"`
	Email           string         `json:"email,omitempty"`
	Title           string         `json:"title,omitempty"`
	Company         string         `json:"company"`
	LinkedInURL     string         `json:"linkedinUrl,omitempty"`
	LinkedInSnippet string         `json:"linkedinSnippet,omitempty"`
	CRMContact      *Contact       `json:"crmContact,omitempty"`
	CRMLookupFailed bool           `json:"crmLookupFailed,omitempty"`
	SearchResults   []SearchResult `json:"searchResults"`
}

// CompanyProfile groups the four company-level result sets.
type CompanyProfile struct {
	Name                  string         `json:"name"`
	Overview              []SearchResult `json:"overview"`
	RecentNews            []SearchResult `json:"recentNews"`
	Financial             []SearchResult `json:"financial"`
	DigitalTransformation []SearchResult `json:"digitalTransformation"`
}

// CompetitiveLandscape holds competitor search results and a one-line summary.
type CompetitiveLandscape struct {
	Results []SearchResult `json:"results"`
	Summary string         `json:"summary"`
}

// ResearchContext is everything gathered for one request. It is owned by a
// single run and never shared between requests.
type ResearchContext struct {
	Company     string               `json:"company"`
	Purpose     string               `json:"purpose,omitempty"`
	Context     string               `json:"additionalContext,omitempty"`
	Attendees   []AttendeeProfile    `json:"attendees"`
	CompanyInfo CompanyProfile       `json:"companyProfile"`
	Competitive CompetitiveLandscape `json:"competitiveLandscape"`
	Sources     []string             `json:"sources"`
}
