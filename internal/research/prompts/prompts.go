// Package prompts builds the messages sent to the model for drafting and
// critiquing a meeting intelligence report.
package prompts

import (
	"encoding/json"
	"fmt"
	"strings"

	"meeting-intel/internal/models"
)

// UnknownMarker is how the model must express missing information.
const UnknownMarker = "Unknown"

// ReportFields lists the JSON keys of the report object in output order.
var ReportFields = []string{
	"executiveSummary",
	"companyIntelligence",
	"attendeeAnalysis",
	"competitiveAnalysis",
	"opportunityAssessment",
	"meetingDynamicsStrategy",
	"keyQuestions",
	"objectionsResponses",
	"followUpPlan",
	"openResearchItems",
	"confidenceScore",
}

var fieldGuide = map[string]string{
	"executiveSummary":        "string. Three to five sentences a busy executive can read in thirty seconds.",
	"companyIntelligence":     "string. Business model, recent news, financial position and technology initiatives, each tied to a source.",
	"attendeeAnalysis":        "string. One paragraph per attendee: role, background, likely priorities and any CRM history.",
	"competitiveAnalysis":     "string. Main competitors and how the company is positioned against them.",
	"opportunityAssessment":   "string. Where our capabilities map to their stated or evidenced needs.",
	"meetingDynamicsStrategy": "string. Who decides, who influences, and how to run the conversation.",
	"keyQuestions":            "array of strings. Five to eight discovery questions.",
	"objectionsResponses":     "string. Likely objections with a suggested response to each.",
	"followUpPlan":            "string. Concrete next steps after the meeting.",
	"openResearchItems":       "array of strings. Facts still unknown that should be verified.",
	"confidenceScore":         "number between 0 and 1. How well the research supports the report.",
}

const systemPersona = `You are a senior account strategist preparing a pre-meeting intelligence brief.
You work only from the research provided and from tool results you request.
Never invent names, numbers, dates or events. When a fact is not supported by the research, write "%s" and add it to openResearchItems.
Cite the source link in parentheses after any claim that depends on a specific result.
You may call tools to fill important gaps, but call each tool only when the research is clearly insufficient.`

// System returns the drafting persona and the output contract.
func System() string {
	var b strings.Builder
	fmt.Fprintf(&b, systemPersona, UnknownMarker)
	b.WriteString("\n\nRespond with a single JSON object and nothing else. It must contain exactly these keys:\n")
	for _, f := range ReportFields {
		fmt.Fprintf(&b, "- %s: %s\n", f, fieldGuide[f])
	}
	b.WriteString("Every string must be non-empty and every array must have at least one element.")
	return b.String()
}

// User returns the task instructions followed by the serialized research.
func User(rc *models.ResearchContext) (string, error) {
	payload, err := json.MarshalIndent(rc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("serialize research context: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Prepare the intelligence brief for an upcoming meeting with %s.\n", rc.Company)
	if rc.Purpose != "" {
		fmt.Fprintf(&b, "Meeting purpose: %s\n", rc.Purpose)
	}
	if rc.Context != "" {
		fmt.Fprintf(&b, "Additional context from the requester: %s\n", rc.Context)
	}
	fmt.Fprintf(&b, "Attendees: %d. Distinct sources gathered: %d.\n", len(rc.Attendees), len(rc.Sources))
	b.WriteString("Results with an \"error\" field are failed lookups, treat that information as unknown.\n\n")
	b.WriteString("Research context (JSON):\n")
	b.Write(payload)
	return b.String(), nil
}

const critiquePersona = `You are an exacting editor reviewing a pre-meeting intelligence brief before it reaches an executive.
Revise the draft under these rules:
1. Strengthen claims only with evidence already present in the research context, citing its link.
2. Tighten every recommendation so it maps to a specific need or capability named in the research.
3. Preserve every "%s" marker verbatim. Never replace a gap with an invented fact.
4. Improve executive readability: shorter sentences, concrete verbs, no filler.
Return the revised brief in exactly the same format as the draft. If the draft is a JSON object, return a JSON object with the same keys and nothing else.`

// CritiqueSystem returns the editor persona for the refinement pass.
func CritiqueSystem() string {
	return fmt.Sprintf(critiquePersona, UnknownMarker)
}

// CritiqueUser pairs the draft with the research it must stay faithful to.
// rc may be nil.
func CritiqueUser(draft string, rc *models.ResearchContext) (string, error) {
	var b strings.Builder
	b.WriteString("Draft brief:\n")
	b.WriteString(draft)
	if rc != nil {
		payload, err := json.Marshal(rc)
		if err != nil {
			return "", fmt.Errorf("serialize research context: %w", err)
		}
		b.WriteString("\n\nResearch context (JSON):\n")
		b.Write(payload)
	}
	return b.String(), nil
}
