package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"meeting-intel/internal/common/metrics"
	"meeting-intel/internal/models"
	"meeting-intel/internal/providers/llm"
	"meeting-intel/internal/providers/scrape"
)

// ToolKind is the closed set of tools the model may call.
type ToolKind int

const (
	ToolWebSearch ToolKind = iota + 1
	ToolScrapeWebpage
	ToolCRMLookup
)

// AllTools is the advertised tool set in a stable order.
var AllTools = []ToolKind{ToolWebSearch, ToolScrapeWebpage, ToolCRMLookup}

func (k ToolKind) Name() string {
	switch k {
	case ToolWebSearch:
		return "web_search"
	case ToolScrapeWebpage:
		return "scrape_webpage"
	case ToolCRMLookup:
		return "crm_lookup"
	default:
		return fmt.Sprintf("tool(%d)", int(k))
	}
}

// ParseToolKind maps a model-supplied tool name back to its kind.
func ParseToolKind(name string) (ToolKind, bool) {
	for _, k := range AllTools {
		if k.Name() == name {
			return k, true
		}
	}
	return 0, false
}

const (
	defaultToolResults = 5
	maxToolResults     = 10
)

type Searcher interface {
	GetOrFetch(ctx context.Context, query string, limit int) []models.SearchResult
}

type PageFetcher interface {
	FetchText(ctx context.Context, url string) (*scrape.Page, error)
}

type ContactFinder interface {
	FindContact(ctx context.Context, attendee models.AttendeeInput) (*models.Contact, error)
}

// Toolbox executes tool calls against the research providers. A nil backend
// makes its tool answer with an error payload.
type Toolbox struct {
	search   Searcher
	pages    PageFetcher
	contacts ContactFinder
}

func NewToolbox(search Searcher, pages PageFetcher, contacts ContactFinder) *Toolbox {
	return &Toolbox{search: search, pages: pages, contacts: contacts}
}

// Definitions describes AllTools to the model.
func (t *Toolbox) Definitions() []llm.ToolDefinition {
	defs := make([]llm.ToolDefinition, 0, len(AllTools))
	for _, k := range AllTools {
		defs = append(defs, definition(k))
	}
	return defs
}

func definition(k ToolKind) llm.ToolDefinition {
	switch k {
	case ToolWebSearch:
		return llm.ToolDefinition{
			Name:        k.Name(),
			Description: "Search the web. Use for recent facts about the company, its market or an attendee that the research does not cover.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"query":       map[string]interface{}{"type": "string", "description": "Search query"},
					"max_results": map[string]interface{}{"type": "integer", "minimum": 1, "maximum": maxToolResults},
				},
				"required": []string{"query"},
			},
		}
	case ToolScrapeWebpage:
		return llm.ToolDefinition{
			Name:        k.Name(),
			Description: "Fetch a web page and return its readable text, truncated.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"url": map[string]interface{}{"type": "string", "description": "Absolute http or https URL"},
				},
				"required": []string{"url"},
			},
		}
	case ToolCRMLookup:
		return llm.ToolDefinition{
			Name:        k.Name(),
			Description: "Look up a person in the CRM by full name, optionally narrowed by company.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"name":    map[string]interface{}{"type": "string", "description": "First and last name"},
					"company": map[string]interface{}{"type": "string"},
				},
				"required": []string{"name"},
			},
		}
	default:
		return llm.ToolDefinition{Name: k.Name()}
	}
}

type webSearchArgs struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

type scrapeArgs struct {
	URL string `json:"url"`
}

type crmLookupArgs struct {
	Name    string `json:"name"`
	Company string `json:"company"`
}

// Execute runs one call and returns the JSON payload for the tool message.
// Failures are reported inside the payload as {"error": "..."}.
func (t *Toolbox) Execute(ctx context.Context, call llm.ToolCall) string {
	kind, ok := ParseToolKind(call.Name)
	if !ok {
		metrics.ToolCalls.WithLabelValues("unknown", "error").Inc()
		return errorPayload(fmt.Errorf("unknown tool %q", call.Name))
	}

	result, err := t.execute(ctx, kind, call.Arguments)
	if err != nil {
		metrics.ToolCalls.WithLabelValues(kind.Name(), "error").Inc()
		return errorPayload(err)
	}
	metrics.ToolCalls.WithLabelValues(kind.Name(), "success").Inc()

	out, err := json.Marshal(result)
	if err != nil {
		return errorPayload(err)
	}
	return string(out)
}

func (t *Toolbox) execute(ctx context.Context, kind ToolKind, rawArgs string) (interface{}, error) {
	switch kind {
	case ToolWebSearch:
		var args webSearchArgs
		if err := decodeArgs(rawArgs, &args); err != nil {
			return nil, err
		}
		if strings.TrimSpace(args.Query) == "" {
			return nil, fmt.Errorf("query is required")
		}
		if t.search == nil {
			return nil, fmt.Errorf("web search is not configured")
		}
		n := args.MaxResults
		if n <= 0 {
			n = defaultToolResults
		}
		if n > maxToolResults {
			n = maxToolResults
		}
		return map[string]interface{}{
			"query":   args.Query,
			"results": t.search.GetOrFetch(ctx, strings.TrimSpace(args.Query), n),
		}, nil

	case ToolScrapeWebpage:
		var args scrapeArgs
		if err := decodeArgs(rawArgs, &args); err != nil {
			return nil, err
		}
		if strings.TrimSpace(args.URL) == "" {
			return nil, fmt.Errorf("url is required")
		}
		if t.pages == nil {
			return nil, fmt.Errorf("webpage scraping is not configured")
		}
		return t.pages.FetchText(ctx, args.URL)

	case ToolCRMLookup:
		var args crmLookupArgs
		if err := decodeArgs(rawArgs, &args); err != nil {
			return nil, err
		}
		if strings.TrimSpace(args.Name) == "" {
			return nil, fmt.Errorf("name is required")
		}
		if t.contacts == nil {
			return nil, fmt.Errorf("crm lookup is not configured")
		}
		contact, err := t.contacts.FindContact(ctx, models.AttendeeInput{
			Name:    strings.TrimSpace(args.Name),
			Company: strings.TrimSpace(args.Company),
		})
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"found":   contact != nil,
			"contact": contact,
		}, nil

	default:
		return nil, fmt.Errorf("tool %s has no executor", kind.Name())
	}
}

func decodeArgs(raw string, dst interface{}) error {
	if strings.TrimSpace(raw) == "" {
		raw = "{}"
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return fmt.Errorf("malformed arguments: %w", err)
	}
	return nil
}

func errorPayload(err error) string {
	out, _ := json.Marshal(map[string]string{"error": err.Error()})
	return string(out)
}
