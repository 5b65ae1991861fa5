package report

import (
	"fmt"
	"strings"

	apperrors "meeting-intel/internal/common/errors"
	"meeting-intel/internal/models"
)

// ValidateRequest checks a request before any provider is called.
func ValidateRequest(req models.ResearchRequest) error {
	if strings.TrimSpace(req.Company) == "" {
		return apperrors.NewInvalidResearchRequestError("company is required")
	}
	if len(req.Attendees) == 0 {
		return apperrors.NewInvalidResearchRequestError("at least one attendee is required")
	}
	for i, a := range req.Attendees {
		if strings.TrimSpace(a.Name) == "" {
			return apperrors.NewInvalidResearchRequestError(fmt.Sprintf("attendees[%d].name is required", i))
		}
	}
	return nil
}
