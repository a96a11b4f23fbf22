// Package backend talks to the leasing backend's REST API.
//
// Client implements outbox.Sink (leads and messages) and respond.Searcher
// (property search), and exposes the tour and application endpoints used
// when a conversation turns into an action.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hurttlocker/leasebot/internal/lead"
	"github.com/hurttlocker/leasebot/internal/outbox"
)

// DefaultTimeout bounds every request made by a Client.
const DefaultTimeout = 10 * time.Second

// Config controls the backend client.
type Config struct {
	// BaseURL is the API root, e.g. http://localhost:3001/api.
	BaseURL string

	// Headers are added to every request (e.g., Authorization).
	Headers map[string]string

	// Version is sent in the User-Agent header.
	Version string

	Timeout time.Duration
}

// Client is a thin JSON-over-HTTP client.
type Client struct {
	base    string
	headers map[string]string
	agent   string
	http    *http.Client
}

// StatusError reports a non-2xx response.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.Code)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

// New returns a Client for cfg.BaseURL.
func New(cfg Config) (*Client, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid backend url %q", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	agent := "leasebot"
	if cfg.Version != "" {
		agent += "/" + cfg.Version
	}
	return &Client{
		base:    strings.TrimRight(cfg.BaseURL, "/"),
		headers: cfg.Headers,
		agent:   agent,
		http:    &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type leadResponse struct {
	ID string `json:"id"`
}

// UpsertLead POSTs the lead summary to /leads and returns the backend ID.
func (c *Client) UpsertLead(ctx context.Context, s outbox.LeadSummary) (string, error) {
	if s.Preferences == nil {
		s.Preferences = []string{}
	}
	var out leadResponse
	if err := c.do(ctx, http.MethodPost, "/leads", s, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", fmt.Errorf("POST /leads: response has no id")
	}
	return out.ID, nil
}

type messagePayload struct {
	Role     string            `json:"role"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata"`
}

// AppendMessage POSTs m to /leads/{id}/messages. Roles are sent upper-case.
func (c *Client) AppendMessage(ctx context.Context, leadID string, m lead.Message) error {
	md := m.Metadata
	if md == nil {
		md = map[string]string{}
	}
	body := messagePayload{
		Role:     strings.ToUpper(string(m.Role)),
		Content:  m.Content,
		Metadata: md,
	}
	return c.do(ctx, http.MethodPost, "/leads/"+url.PathEscape(leadID)+"/messages", body, nil)
}

// property is the search result shape. Older deployments send propertyId.
type property struct {
	ID          string   `json:"id"`
	PropertyID  string   `json:"propertyId"`
	Address     string   `json:"address"`
	Bedrooms    int      `json:"bedrooms"`
	Bathrooms   float64  `json:"bathrooms"`
	Rent        int      `json:"rent"`
	Available   *bool    `json:"available"`
	PetFriendly bool     `json:"petFriendly"`
	Amenities   []string `json:"amenities"`
}

func (p property) candidate() lead.Candidate {
	id := p.ID
	if id == "" {
		id = p.PropertyID
	}
	return lead.Candidate{
		ID:          id,
		Address:     p.Address,
		Bedrooms:    p.Bedrooms,
		Bathrooms:   p.Bathrooms,
		Rent:        p.Rent,
		Available:   p.Available == nil || *p.Available,
		PetFriendly: p.PetFriendly,
		Amenities:   p.Amenities,
	}
}

// Search GETs /properties/search with the criteria as query parameters.
func (c *Client) Search(ctx context.Context, cr lead.Criteria) ([]lead.Candidate, error) {
	q := url.Values{}
	if cr.Bedrooms != nil {
		q.Set("bedrooms", strconv.Itoa(*cr.Bedrooms))
	}
	if cr.MaxRent != nil {
		q.Set("maxRent", strconv.Itoa(*cr.MaxRent))
	}
	if cr.PetFriendly {
		q.Set("petFriendly", "true")
	}
	path := "/properties/search"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var props []property
	if err := c.do(ctx, http.MethodGet, path, nil, &props); err != nil {
		return nil, err
	}
	out := make([]lead.Candidate, 0, len(props))
	for _, p := range props {
		out = append(out, p.candidate())
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s %s: marshal: %w", method, path, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", c.agent)
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode: %w", method, path, err)
	}
	return nil
}
