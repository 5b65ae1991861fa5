// Package crmmatch resolves a meeting attendee to a CRM contact.
//
// Strategies run from most to least precise and stop at the first hit:
// normalized email, full name plus company, full name alone, then a
// first-name prefix combined with the exact last name.
package crmmatch

import (
	"context"
	"strings"

	"meeting-intel/internal/common/logger"
	"meeting-intel/internal/models"
)

// DefaultPrefixLength is the number of first-name characters used by the
// fuzzy strategy.
const DefaultPrefixLength = 4

// NameQuery asks a ContactStore for contacts by name. When FirstNamePrefix is
// set, FirstName is a prefix to match rather than a full first name. An
// empty Company means any company.
type NameQuery struct {
	FirstName       string
	LastName        string
	Company         string
	FirstNamePrefix bool
}

// ContactStore is a CRM-like backend.
type ContactStore interface {
	FindByEmail(ctx context.Context, email string) (*models.Contact, error)
	FindByName(ctx context.Context, q NameQuery) ([]models.Contact, error)
}

// Strategy names the rule that produced a match.
type Strategy string

const (
	StrategyNone        Strategy = ""
	StrategyEmail       Strategy = "email"
	StrategyNameCompany Strategy = "name_company"
	StrategyName        Strategy = "name"
	StrategyFuzzy       Strategy = "fuzzy"
)

type step struct {
	strategy Strategy
	query    NameQuery
}

// Matcher runs the resolution strategies against a ContactStore.
type Matcher struct {
	store     ContactStore
	prefixLen int
	logger    logger.Logger
}

// Option customises a Matcher.
type Option func(*Matcher)

// WithPrefixLength sets the fuzzy first-name prefix length.
func WithPrefixLength(n int) Option {
	return func(m *Matcher) {
		if n > 0 {
			m.prefixLen = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(m *Matcher) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewMatcher creates a Matcher over store.
func NewMatcher(store ContactStore, opts ...Option) *Matcher {
	m := &Matcher{
		store:     store,
		prefixLen: DefaultPrefixLength,
		logger:    logger.NewNoOpLogger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = logger.Component(m.logger, "crm-matcher")
	return m
}

// FindContact returns the best contact for attendee, or nil when no strategy
// yields a candidate. attendee.Company is used as the company hint. Store
// errors are returned as is and stop the search.
func (m *Matcher) FindContact(ctx context.Context, attendee models.AttendeeInput) (*models.Contact, error) {
	c, _, err := m.Resolve(ctx, attendee)
	return c, err
}

// Resolve is FindContact that also reports which strategy matched.
func (m *Matcher) Resolve(ctx context.Context, attendee models.AttendeeInput) (*models.Contact, Strategy, error) {
	if email := NormalizeEmail(attendee.Email); email != "" {
		c, err := m.store.FindByEmail(ctx, email)
		if err != nil {
			return nil, StrategyNone, err
		}
		if c != nil {
			m.logMatch(attendee, StrategyEmail, c)
			return c, StrategyEmail, nil
		}
	}

	first, last, ok := SplitName(attendee.Name)
	if !ok {
		return nil, StrategyNone, nil
	}
	hint := strings.TrimSpace(attendee.Company)

	var steps []step
	if hint != "" {
		steps = append(steps, step{StrategyNameCompany, NameQuery{FirstName: first, LastName: last, Company: hint}})
	}
	steps = append(steps,
		step{StrategyName, NameQuery{FirstName: first, LastName: last}},
		step{StrategyFuzzy, NameQuery{FirstName: prefix(first, m.prefixLen), LastName: last, FirstNamePrefix: true}},
	)

	for _, st := range steps {
		candidates, err := m.store.FindByName(ctx, st.query)
		if err != nil {
			return nil, StrategyNone, err
		}
		if len(candidates) == 0 {
			continue
		}
		c := pickCandidate(candidates, hint)
		m.logMatch(attendee, st.strategy, c)
		return c, st.strategy, nil
	}

	return nil, StrategyNone, nil
}

func (m *Matcher) logMatch(attendee models.AttendeeInput, s Strategy, c *models.Contact) {
	m.logger.Debug("crm contact matched", map[string]interface{}{
		"attendee":  attendee.Name,
		"strategy":  string(s),
		"contactId": c.ID,
	})
}

// pickCandidate prefers a contact whose company and the hint contain one
// another, case-insensitively. Otherwise the first candidate wins.
func pickCandidate(candidates []models.Contact, hint string) *models.Contact {
	if h := strings.ToLower(strings.TrimSpace(hint)); h != "" {
		for i := range candidates {
			company := strings.ToLower(strings.TrimSpace(candidates[i].Company))
			if company == "" {
				continue
			}
			if strings.Contains(company, h) || strings.Contains(h, company) {
				c := candidates[i]
				return &c
			}
		}
	}
	c := candidates[0]
	return &c
}

// NormalizeEmail trims and lowercases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SplitName splits on whitespace into first and last tokens. Names with a
// single token are rejected.
func SplitName(name string) (first, last string, ok bool) {
	parts := strings.Fields(name)
	if len(parts) < 2 {
		return "", "", false
	}
	return parts[0], parts[len(parts)-1], true
}

func prefix(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
