package zoho

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	commonhttp "meeting-intel/internal/common/http"
	"meeting-intel/internal/common/retry"
)

const DefaultBaseURL = "https://www.zohoapis.com/crm/v3"

// contactFields limits search responses to what contact matching reads.
const contactFields = "id,First_Name,Last_Name,Email,Phone,Title,Account_Name,Owner,Last_Activity_Time,Description,Lead_Source"

type CRMClient struct {
	oauthToken string
	baseURL    string
	httpClient *commonhttp.Client
	policy     retry.Policy
}

type Lookup struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

type Contact struct {
	ID               string  `json:"id,omitempty"`
	Email            string  `json:"Email"`
	FirstName        string  `json:"First_Name"`
	LastName         string  `json:"Last_Name"`
	Phone            string  `json:"Phone,omitempty"`
	Title            string  `json:"Title,omitempty"`
	Account          *Lookup `json:"Account_Name,omitempty"`
	Owner            *Lookup `json:"Owner,omitempty"`
	LastActivityTime string  `json:"Last_Activity_Time,omitempty"`
	Description      string  `json:"Description,omitempty"`
	Source           string  `json:"Lead_Source,omitempty"`
}

// AccountName returns the linked account's display name.
func (c Contact) AccountName() string {
	if c.Account == nil {
		return ""
	}
	return c.Account.Name
}

// LastActivity parses Last_Activity_Time, returning nil when absent.
func (c Contact) LastActivity() *time.Time {
	if c.LastActivityTime == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, c.LastActivityTime)
	if err != nil {
		return nil
	}
	return &t
}

func NewCRMClient(baseURL, oauthToken string, timeout time.Duration, policy retry.Policy) *CRMClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &CRMClient{
		oauthToken: oauthToken,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: commonhttp.NewClient(timeout),
		policy:     policy,
	}
}

// SearchByEmail runs an exact email search.
func (c *CRMClient) SearchByEmail(ctx context.Context, email string) ([]Contact, error) {
	params := url.Values{}
	params.Set("email", email)
	return c.search(ctx, params)
}

// SearchByCriteria runs a criteria search such as
// ((Last_Name:equals:Smith)and(First_Name:starts_with:Jona)).
func (c *CRMClient) SearchByCriteria(ctx context.Context, criteria string) ([]Contact, error) {
	params := url.Values{}
	params.Set("criteria", criteria)
	return c.search(ctx, params)
}

func (c *CRMClient) GetContact(ctx context.Context, contactID string) (*Contact, error) {
	endpoint := fmt.Sprintf("%s/Contacts/%s", c.baseURL, url.PathEscape(contactID))

	contacts, err := retry.Do(ctx, c.policy, func(ctx context.Context) ([]Contact, error) {
		return c.get(ctx, endpoint)
	})
	if err != nil {
		return nil, err
	}
	if len(contacts) == 0 {
		return nil, fmt.Errorf("contact not found")
	}
	return &contacts[0], nil
}

func (c *CRMClient) search(ctx context.Context, params url.Values) ([]Contact, error) {
	params.Set("fields", contactFields)
	endpoint := fmt.Sprintf("%s/Contacts/search?%s", c.baseURL, params.Encode())

	return retry.Do(ctx, c.policy, func(ctx context.Context) ([]Contact, error) {
		return c.get(ctx, endpoint)
	})
}

// get returns no contacts for 204, which Zoho sends when nothing matches.
func (c *CRMClient) get(ctx context.Context, endpoint string) ([]Contact, error) {
	req, err := commonhttp.NewRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("failed to create request: %w", err))
	}

	req.Header.Set("Authorization", "Zoho-oauthtoken "+c.oauthToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, retry.ClassifyStatus(resp.StatusCode, string(body))
	}

	var result struct {
		Data []Contact `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, retry.Permanent(fmt.Errorf("failed to decode response: %w", err))
	}
	return result.Data, nil
}

// EscapeCriteriaValue escapes characters with meaning inside a criteria
// expression.
func EscapeCriteriaValue(v string) string {
	r := strings.NewReplacer(`\`, `\\`, "(", `\(`, ")", `\)`, ",", `\,`)
	return r.Replace(v)
}
