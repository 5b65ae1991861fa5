// Package orchestrator gathers the research context for one report: attendee
// profiles, a company profile and the competitive landscape.
//
// Provider failures never fail a run. Search failures arrive as error-marked
// results from the search cache and CRM failures are logged and flagged on
// the affected profile.
package orchestrator

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"meeting-intel/internal/common/logger"
	"meeting-intel/internal/models"
)

const DefaultConcurrency = 3

// Searcher is satisfied by *searchcache.Cache.
type Searcher interface {
	GetOrFetch(ctx context.Context, query string, limit int) []models.SearchResult
}

// ContactFinder is satisfied by *crmmatch.Matcher.
type ContactFinder interface {
	FindContact(ctx context.Context, attendee models.AttendeeInput) (*models.Contact, error)
}

// Limits are the per-query result ceilings.
type Limits struct {
	LinkedIn       int
	Background     int
	Overview       int
	News           int
	Financial      int
	Transformation int
	Competitive    int
}

var DefaultLimits = Limits{
	LinkedIn:       3,
	Background:     3,
	Overview:       5,
	News:           5,
	Financial:      3,
	Transformation: 3,
	Competitive:    5,
}

func (l Limits) withDefaults() Limits {
	fill := func(v *int, d int) {
		if *v <= 0 {
			*v = d
		}
	}
	fill(&l.LinkedIn, DefaultLimits.LinkedIn)
	fill(&l.Background, DefaultLimits.Background)
	fill(&l.Overview, DefaultLimits.Overview)
	fill(&l.News, DefaultLimits.News)
	fill(&l.Financial, DefaultLimits.Financial)
	fill(&l.Transformation, DefaultLimits.Transformation)
	fill(&l.Competitive, DefaultLimits.Competitive)
	return l
}

type Orchestrator struct {
	search      Searcher
	contacts    ContactFinder
	limits      Limits
	concurrency int
	logger      logger.Logger
	tracer      trace.Tracer
}

type Option func(*Orchestrator)

// WithContactFinder enables CRM resolution. Without it profiles carry no
// CRM data.
func WithContactFinder(f ContactFinder) Option {
	return func(o *Orchestrator) { o.contacts = f }
}

func WithLimits(l Limits) Option {
	return func(o *Orchestrator) { o.limits = l.withDefaults() }
}

// WithConcurrency bounds how many attendees are researched at once.
func WithConcurrency(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

func WithLogger(l logger.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

func New(search Searcher, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		search:      search,
		limits:      DefaultLimits,
		concurrency: DefaultConcurrency,
		logger:      logger.NewNoOpLogger(),
		tracer:      otel.Tracer("meeting-intel/research/orchestrator"),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = logger.Component(o.logger, "research-orchestrator")
	return o
}

// Run executes the attendee, company and competitive phases concurrently and
// merges them. It always returns a context.
func (o *Orchestrator) Run(ctx context.Context, req models.ResearchRequest) *models.ResearchContext {
	ctx, span := o.tracer.Start(ctx, "research.run", trace.WithAttributes(
		attribute.String("company", req.Company),
		attribute.Int("attendees", len(req.Attendees)),
	))
	defer span.End()

	start := time.Now()
	company := strings.TrimSpace(req.Company)

	var (
		wg          sync.WaitGroup
		attendees   []models.AttendeeProfile
		profile     models.CompanyProfile
		competitive models.CompetitiveLandscape
	)
	wg.Add(3)
	go func() {
		defer wg.Done()
		attendees = o.researchAttendees(ctx, company, req.Attendees)
	}()
	go func() {
		defer wg.Done()
		profile = o.researchCompany(ctx, company)
	}()
	go func() {
		defer wg.Done()
		competitive = o.researchCompetitive(ctx, company, strings.TrimSpace(req.Industry))
	}()
	wg.Wait()

	rc := &models.ResearchContext{
		Company:     company,
		Purpose:     strings.TrimSpace(req.Purpose),
		Context:     strings.TrimSpace(req.AdditionalContext),
		Attendees:   attendees,
		CompanyInfo: profile,
		Competitive: competitive,
	}
	rc.Sources = CollectSources(rc)

	o.logger.Info("research completed", map[string]interface{}{
		"company":    company,
		"attendees":  len(attendees),
		"sources":    len(rc.Sources),
		"durationMs": time.Since(start).Milliseconds(),
	})
	return rc
}

func (o *Orchestrator) researchAttendees(ctx context.Context, company string, inputs []models.AttendeeInput) []models.AttendeeProfile {
	ctx, span := o.tracer.Start(ctx, "research.attendees")
	defer span.End()

	profiles := make([]models.AttendeeProfile, len(inputs))

	var g errgroup.Group
	g.SetLimit(o.concurrency)
	for i, in := range inputs {
		g.Go(func() error {
			profiles[i] = o.researchAttendee(ctx, company, in)
			return nil
		})
	}
	_ = g.Wait()

	return profiles
}

func (o *Orchestrator) researchAttendee(ctx context.Context, targetCompany string, in models.AttendeeInput) models.AttendeeProfile {
	name := strings.TrimSpace(in.Name)
	company := strings.TrimSpace(in.Company)
	if company == "" {
		company = targetCompany
	}
	title := strings.TrimSpace(in.Title)

	p := models.AttendeeProfile{
		Name:        name,
		Email:       strings.TrimSpace(in.Email),
		Title:       title,
		Company:     company,
		LinkedInURL: strings.TrimSpace(in.LinkedInURL),
	}

	if o.contacts != nil {
		lookup := in
		lookup.Name = name
		lookup.Company = company
		contact, err := o.contacts.FindContact(ctx, lookup)
		if err != nil {
			p.CRMLookupFailed = true
			o.logger.Warn("crm lookup failed, continuing without crm data", map[string]interface{}{
				"attendee": name,
				"error":    err,
			})
		} else {
			p.CRMContact = contact
		}
	}

	if p.LinkedInURL == "" {
		results := o.search.GetOrFetch(ctx, LinkedInQuery(name, company, title), o.limits.LinkedIn)
		if hit, ok := MatchLinkedInProfile(results, name); ok {
			p.LinkedInURL = hit.Link
			p.LinkedInSnippet = hit.Snippet
		}
	}

	p.SearchResults = o.search.GetOrFetch(ctx, BackgroundQuery(name, company, title), o.limits.Background)
	return p
}

func (o *Orchestrator) researchCompany(ctx context.Context, company string) models.CompanyProfile {
	ctx, span := o.tracer.Start(ctx, "research.company")
	defer span.End()

	p := models.CompanyProfile{Name: company}

	var wg sync.WaitGroup
	run := func(dst *[]models.SearchResult, query string, limit int) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			*dst = o.search.GetOrFetch(ctx, query, limit)
		}()
	}
	run(&p.Overview, OverviewQuery(company), o.limits.Overview)
	run(&p.RecentNews, NewsQuery(company), o.limits.News)
	run(&p.Financial, FinancialQuery(company), o.limits.Financial)
	run(&p.DigitalTransformation, TransformationQuery(company), o.limits.Transformation)
	wg.Wait()

	return p
}

func (o *Orchestrator) researchCompetitive(ctx context.Context, company, industry string) models.CompetitiveLandscape {
	ctx, span := o.tracer.Start(ctx, "research.competitive")
	defer span.End()

	results := o.search.GetOrFetch(ctx, CompetitiveQuery(company, industry), o.limits.Competitive)
	return models.CompetitiveLandscape{
		Results: results,
		Summary: SummarizeCompetitive(company, industry, results),
	}
}
