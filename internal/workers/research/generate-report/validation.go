package generatereport

import "meeting-intel/internal/common/validation"

// inputVariables are the only variables fetched from the process scope.
var inputVariables = []string{"company", "attendees", "purpose", "additionalContext", "industry", "skipCritique"}

func GetInputSchema() validation.JSONSchema {
	return validation.JSONSchema{
		Type:     "object",
		Required: []string{"company", "attendees"},
		Properties: map[string]validation.Property{
			"company": {
				Type:        "string",
				Description: "Target company the meeting is with",
				MinLength:   intPtr(1),
				MaxLength:   intPtr(200),
			},
			"attendees": {
				Type:        "array",
				Description: "People attending the meeting",
				MinItems:    intPtr(1),
				Items: &validation.Property{
					Type:     "object",
					Required: []string{"name"},
					Properties: map[string]validation.Property{
						"name":        {Type: "string", MinLength: intPtr(1), MaxLength: intPtr(200)},
						"email":       {Type: "string", MaxLength: intPtr(255)},
						"title":       {Type: "string", MaxLength: intPtr(200)},
						"company":     {Type: "string", MaxLength: intPtr(200)},
						"linkedinUrl": {Type: "string", MaxLength: intPtr(500)},
					},
				},
			},
			"purpose": {
				Type:        "string",
				Description: "Why the meeting is happening",
				MaxLength:   intPtr(2000),
			},
			"additionalContext": {
				Type:        "string",
				Description: "Free-form notes from the requester",
				MaxLength:   intPtr(10000),
			},
			"industry": {
				Type:        "string",
				Description: "Industry hint for the competitive search",
				MaxLength:   intPtr(200),
			},
			"skipCritique": {
				Type:        "boolean",
				Description: "Skip the critique pass for this report",
			},
		},
		AdditionalProperties: true,
	}
}

func intPtr(i int) *int {
	return &i
}
