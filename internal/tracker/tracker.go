// Package tracker is a minimal GitHub client scoped to a single repository.
// It covers exactly the calls the orchestrator needs: creating and amending
// issues, listing the open ones it owns, commenting, and attaching issues to
// a Projects v2 board. The API token arrives through the REPO_TOKEN
// environment variable; this package never reads credentials from disk.
package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultBaseURL is the GitHub API root. Tests point Client.BaseURL at a
// local httptest server instead.
const DefaultBaseURL = "https://api.github.com"

const (
	userAgent     = "AI-Factory-Orchestrator"
	acceptREST    = "application/vnd.github.v3+json"
	acceptGraphQL = "application/vnd.github.v4+json"

	// perPage is the listing page size. GitHub caps it at 100.
	perPage = 100
)

// Client talks to the GitHub REST API, plus the one GraphQL mutation that
// Projects v2 requires.
type Client struct {
	owner string
	repo  string
	token string

	// BaseURL is the API root for every request.
	BaseURL string

	http *http.Client
}

// New builds a client for owner/repo. An empty token is a configuration
// error rather than an API error: it means REPO_TOKEN was not exported.
func New(owner, repo, token string) (*Client, error) {
	if token == "" {
		return nil, NewConfigError("REPO_TOKEN", "API token is required")
	}
	if owner == "" {
		return nil, NewConfigError("repo_owner", "repository owner is required")
	}
	if repo == "" {
		return nil, NewConfigError("repo_name", "repository name is required")
	}

	return &Client{
		owner:   owner,
		repo:    repo,
		token:   token,
		BaseURL: DefaultBaseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Repo returns the owner/name pair the client is scoped to.
func (c *Client) Repo() (owner, name string) {
	return c.owner, c.repo
}

// ---------------------------------------------------------------------------
// Payloads
// ---------------------------------------------------------------------------

// Issue is the subset of the GitHub issue payload the orchestrator uses.
type Issue struct {
	Number  int     `json:"number"`
	NodeID  string  `json:"node_id"`
	Title   string  `json:"title"`
	Body    string  `json:"body"`
	State   string  `json:"state"`
	HTMLURL string  `json:"html_url"`
	Labels  []Label `json:"labels"`
}

// Label is a GitHub issue label.
type Label struct {
	Name string `json:"name"`
}

// HasLabel reports whether the issue carries the named label.
func (is *Issue) HasLabel(name string) bool {
	for _, l := range is.Labels {
		if l.Name == name {
			return true
		}
	}
	return false
}

// NewIssue is the payload for opening an issue.
type NewIssue struct {
	Title  string   `json:"title"`
	Body   string   `json:"body"`
	Labels []string `json:"labels,omitempty"`
}

// IssuePatch updates selected fields of an existing issue. Nil fields are
// left untouched on the server.
type IssuePatch struct {
	Title       *string   `json:"title,omitempty"`
	Body        *string   `json:"body,omitempty"`
	State       *string   `json:"state,omitempty"`
	StateReason *string   `json:"state_reason,omitempty"`
	Labels      *[]string `json:"labels,omitempty"`
}

// String returns a pointer to s, for filling IssuePatch fields inline.
func String(s string) *string { return &s }

// ghError is the error envelope GitHub returns for failed REST calls.
type ghError struct {
	Message string `json:"message"`
}

// ---------------------------------------------------------------------------
// Operations
// ---------------------------------------------------------------------------

// CreateIssue opens a new issue and returns the created record.
func (c *Client) CreateIssue(ctx context.Context, issue NewIssue) (*Issue, error) {
	var out Issue
	path := fmt.Sprintf("/repos/%s/%s/issues", c.owner, c.repo)
	if err := c.do(ctx, http.MethodPost, path, issue, &out, http.StatusCreated); err != nil {
		return nil, fmt.Errorf("create issue %q: %w", issue.Title, err)
	}
	return &out, nil
}

// ListOpenIssues returns every open issue carrying the given label, walking
// all pages of the listing.
func (c *Client) ListOpenIssues(ctx context.Context, label string) ([]Issue, error) {
	var all []Issue
	for page := 1; ; page++ {
		path := fmt.Sprintf("/repos/%s/%s/issues?state=open&labels=%s&per_page=%d&page=%d",
			c.owner, c.repo, url.QueryEscape(label), perPage, page)
		var batch []Issue
		if err := c.do(ctx, http.MethodGet, path, nil, &batch, http.StatusOK); err != nil {
			return nil, fmt.Errorf("list open issues: %w", err)
		}
		all = append(all, batch...)
		if len(batch) < perPage {
			return all, nil
		}
	}
}

// GetIssue fetches a single issue by number.
func (c *Client) GetIssue(ctx context.Context, number int) (*Issue, error) {
	var out Issue
	path := fmt.Sprintf("/repos/%s/%s/issues/%d", c.owner, c.repo, number)
	if err := c.do(ctx, http.MethodGet, path, nil, &out, http.StatusOK); err != nil {
		return nil, fmt.Errorf("get issue #%d: %w", number, err)
	}
	return &out, nil
}

// UpdateIssue applies a partial update to an existing issue.
func (c *Client) UpdateIssue(ctx context.Context, number int, patch IssuePatch) (*Issue, error) {
	var out Issue
	path := fmt.Sprintf("/repos/%s/%s/issues/%d", c.owner, c.repo, number)
	if err := c.do(ctx, http.MethodPatch, path, patch, &out, http.StatusOK); err != nil {
		return nil, fmt.Errorf("update issue #%d: %w", number, err)
	}
	return &out, nil
}

// AddComment posts a comment on an issue.
func (c *Client) AddComment(ctx context.Context, number int, body string) error {
	path := fmt.Sprintf("/repos/%s/%s/issues/%d/comments", c.owner, c.repo, number)
	payload := map[string]string{"body": body}
	if err := c.do(ctx, http.MethodPost, path, payload, nil, http.StatusCreated); err != nil {
		return fmt.Errorf("comment on issue #%d: %w", number, err)
	}
	return nil
}

// addToProjectMutation attaches an issue to a Projects v2 board. Projects v2
// has no REST surface, so this is the one GraphQL call the client makes.
const addToProjectMutation = `mutation($projectId: ID!, $contentId: ID!) {
  addProjectV2ItemById(input: {projectId: $projectId, contentId: $contentId}) {
    item { id }
  }
}`

// AddToProject attaches the issue identified by contentID (a GraphQL node
// ID, not an issue number) to the board and returns the new board item's ID.
func (c *Client) AddToProject(ctx context.Context, projectID, contentID string) (string, error) {
	payload := map[string]any{
		"query": addToProjectMutation,
		"variables": map[string]string{
			"projectId": projectID,
			"contentId": contentID,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("add to project: marshal request: %w", err)
	}

	resp, data, err := c.roundTrip(ctx, http.MethodPost, c.BaseURL+"/graphql", acceptGraphQL, body)
	if err != nil {
		return "", fmt.Errorf("add to project: %w", err)
	}
	if err := checkStatus(resp, data, http.StatusOK); err != nil {
		return "", fmt.Errorf("add to project: %w", err)
	}

	// GraphQL reports failures in the errors array even on HTTP 200.
	var out struct {
		Data struct {
			AddProjectV2ItemByID struct {
				Item struct {
					ID string `json:"id"`
				} `json:"item"`
			} `json:"addProjectV2ItemById"`
		} `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("add to project: decode response: %w", err)
	}
	if len(out.Errors) > 0 {
		return "", fmt.Errorf("add to project: %w",
			&APIError{StatusCode: resp.StatusCode, Message: out.Errors[0].Message})
	}
	if out.Data.AddProjectV2ItemByID.Item.ID == "" {
		return "", fmt.Errorf("add to project: response carried no item id")
	}
	return out.Data.AddProjectV2ItemByID.Item.ID, nil
}

// ---------------------------------------------------------------------------
// Transport
// ---------------------------------------------------------------------------

// do executes one REST call: marshal the payload, perform the exchange,
// check the status, and decode the response into out when out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, payload, out any, want int) error {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	resp, data, err := c.roundTrip(ctx, method, c.BaseURL+path, acceptREST, body)
	if err != nil {
		return err
	}
	if err := checkStatus(resp, data, want); err != nil {
		return err
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// roundTrip performs one HTTP exchange with the standard auth headers and
// returns the response along with its fully-read body.
func (c *Client) roundTrip(ctx context.Context, method, rawURL, accept string, body []byte) (*http.Response, []byte, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, rd)
	if err != nil {
		return nil, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "token "+c.token)
	req.Header.Set("Accept", accept)
	req.Header.Set("User-Agent", userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read response: %w", err)
	}
	return resp, data, nil
}

// checkStatus turns a non-success response into a typed error. Rate limiting
// is detected before the generic status check so callers can back off and
// retry instead of failing the task outright.
func checkStatus(resp *http.Response, data []byte, want int) error {
	limited := resp.StatusCode == http.StatusTooManyRequests ||
		(resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0")
	if limited {
		return newRateLimitError(resp)
	}
	if resp.StatusCode != want {
		var ghe ghError
		if err := json.Unmarshal(data, &ghe); err != nil || ghe.Message == "" {
			ghe.Message = strings.TrimSpace(string(data))
		}
		return &APIError{StatusCode: resp.StatusCode, Message: ghe.Message}
	}
	return nil
}
