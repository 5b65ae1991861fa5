// Package crm implements crmmatch.ContactStore over the supported CRM
// backends.
package crm

import (
	"strings"

	"meeting-intel/internal/models"
	"meeting-intel/internal/research/crmmatch"
)

const (
	BackendNone          = "none"
	BackendZoho          = "zoho"
	BackendPostgres      = "postgres"
	BackendElasticsearch = "elasticsearch"
)

// maxCandidates caps how many rows a name lookup returns.
const maxCandidates = 10

// matchesQuery applies NameQuery semantics to a contact case-insensitively.
// Backends whose native query is looser run their results through it.
func matchesQuery(c models.Contact, q crmmatch.NameQuery) bool {
	if !strings.EqualFold(strings.TrimSpace(c.LastName), q.LastName) {
		return false
	}
	first := strings.ToLower(strings.TrimSpace(c.FirstName))
	want := strings.ToLower(q.FirstName)
	if q.FirstNamePrefix {
		if !strings.HasPrefix(first, want) {
			return false
		}
	} else if first != want {
		return false
	}
	if q.Company != "" && !companyMatches(c.Company, q.Company) {
		return false
	}
	return true
}

func companyMatches(company, hint string) bool {
	a := strings.ToLower(strings.TrimSpace(company))
	b := strings.ToLower(strings.TrimSpace(hint))
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

func filterContacts(contacts []models.Contact, q crmmatch.NameQuery) []models.Contact {
	out := make([]models.Contact, 0, len(contacts))
	for _, c := range contacts {
		if matchesQuery(c, q) {
			out = append(out, c)
		}
		if len(out) == maxCandidates {
			break
		}
	}
	return out
}
