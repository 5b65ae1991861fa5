package orchestrator

import (
	"fmt"
	"net/url"
	"strings"

	"meeting-intel/internal/models"
)

// normalize collapses runs of whitespace so queries built from empty parts
// hit the same cache key.
func normalize(parts ...string) string {
	return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
}

func LinkedInQuery(name, company, title string) string {
	return normalize(name, company, title, "linkedin")
}

func BackgroundQuery(name, company, title string) string {
	return normalize(name, company, title, "background experience")
}

func OverviewQuery(company string) string {
	return normalize(company, "company overview business model products")
}

func NewsQuery(company string) string {
	return normalize(company, "recent news announcements")
}

func FinancialQuery(company string) string {
	return normalize(company, "revenue funding financial results")
}

func TransformationQuery(company string) string {
	return normalize(company, "digital transformation technology initiatives")
}

// CompetitiveQuery narrows the competitor search to industry when given.
func CompetitiveQuery(company, industry string) string {
	if industry != "" {
		return normalize(company, "competitors", industry, "industry market landscape")
	}
	return normalize(company, "competitors alternatives market landscape")
}

// SummarizeCompetitive builds the one-line landscape summary from the top
// usable result titles.
func SummarizeCompetitive(company, industry string, results []models.SearchResult) string {
	var titles []string
	for _, r := range results {
		if r.IsError() || strings.TrimSpace(r.Title) == "" {
			continue
		}
		titles = append(titles, strings.TrimSpace(r.Title))
		if len(titles) == 3 {
			break
		}
	}

	scope := company
	if industry != "" {
		scope = fmt.Sprintf("%s (%s)", company, industry)
	}
	if len(titles) == 0 {
		return fmt.Sprintf("No competitive landscape data found for %s", scope)
	}
	return fmt.Sprintf("Competitive landscape for %s: %s", scope, strings.Join(titles, "; "))
}

// MatchLinkedInProfile returns the first result that links to a personal
// profile and mentions both the first and last name tokens.
func MatchLinkedInProfile(results []models.SearchResult, name string) (models.SearchResult, bool) {
	tokens := strings.Fields(strings.ToLower(name))
	if len(tokens) == 0 {
		return models.SearchResult{}, false
	}
	first, last := tokens[0], tokens[len(tokens)-1]

	for _, r := range results {
		if r.IsError() || !IsLinkedInProfileURL(r.Link) {
			continue
		}
		text := strings.ToLower(r.Title + " " + r.Snippet)
		if strings.Contains(text, first) && strings.Contains(text, last) {
			return r, true
		}
	}
	return models.SearchResult{}, false
}

// IsLinkedInProfileURL accepts linkedin.com/in/<slug> on any subdomain.
func IsLinkedInProfileURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	if host != "linkedin.com" && !strings.HasSuffix(host, ".linkedin.com") {
		return false
	}
	slug := strings.TrimPrefix(u.Path, "/in/")
	return slug != u.Path && strings.Trim(slug, "/") != ""
}

// CollectSources lists every non-empty link in the context once, in the
// order attendees, company, competitive.
func CollectSources(rc *models.ResearchContext) []string {
	seen := make(map[string]struct{})
	sources := make([]string, 0)
	add := func(link string) {
		link = strings.TrimSpace(link)
		if link == "" {
			return
		}
		if _, ok := seen[link]; ok {
			return
		}
		seen[link] = struct{}{}
		sources = append(sources, link)
	}
	addAll := func(results []models.SearchResult) {
		for _, r := range results {
			if !r.IsError() {
				add(r.Link)
			}
		}
	}

	for _, a := range rc.Attendees {
		add(a.LinkedInURL)
		addAll(a.SearchResults)
	}
	addAll(rc.CompanyInfo.Overview)
	addAll(rc.CompanyInfo.RecentNews)
	addAll(rc.CompanyInfo.Financial)
	addAll(rc.CompanyInfo.DigitalTransformation)
	addAll(rc.Competitive.Results)
	return sources
}
