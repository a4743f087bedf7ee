// Package github provides the repository search and details tools backed by
// the GitHub REST API.
package github

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"opsagent/pkg/tools"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	DefaultBaseURL = "https://api.github.com"
	SearchToolName = "github_search"
	DetailToolName = "github_repo_details"

	defaultPerPage = 5
)

// Client talks to the GitHub API. The token is optional; anonymous requests
// are subject to a lower rate limit.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates a Client. An empty baseURL uses DefaultBaseURL.
func NewClient(baseURL, token string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Tools returns the search and details tools sharing this client.
func (c *Client) Tools() []tools.Tool {
	return []tools.Tool{&SearchTool{client: c}, &DetailsTool{client: c}}
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("github API %s returned %d: %s", path, resp.StatusCode, apiMessage(body))
	}
	return json.Unmarshal(body, out)
}

func apiMessage(body []byte) string {
	var e struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &e) == nil && e.Message != "" {
		return e.Message
	}
	return strings.TrimSpace(string(body))
}

type repository struct {
	FullName        string  `json:"full_name"`
	HTMLURL         string  `json:"html_url"`
	StargazersCount int     `json:"stargazers_count"`
	ForksCount      int     `json:"forks_count"`
	OpenIssuesCount int     `json:"open_issues_count"`
	Language        *string `json:"language"`
	Description     *string `json:"description"`
}

// SearchTool implements github_search.
type SearchTool struct {
	client *Client
}

func (t *SearchTool) Name() string { return SearchToolName }

func (t *SearchTool) Description() string { return "Search GitHub repos." }

func (t *SearchTool) InputShape() string { return `{"query": "search term", "per_page": 5}` }

func (t *SearchTool) Invoke(ctx context.Context, input map[string]any) (map[string]any, error) {
	query := tools.StringArg(input, "query")
	if query == "" {
		return nil, fmt.Errorf("query is required for %s", SearchToolName)
	}
	perPage, err := tools.IntArg(input, "per_page", defaultPerPage)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Items []repository `json:"items"`
	}
	params := url.Values{"q": {query}, "per_page": {strconv.Itoa(perPage)}}
	if err := t.client.get(ctx, "/search/repositories", params, &resp); err != nil {
		return nil, err
	}

	items := make([]any, 0, len(resp.Items))
	for _, r := range resp.Items {
		items = append(items, map[string]any{
			"name":        r.FullName,
			"url":         r.HTMLURL,
			"stars":       r.StargazersCount,
			"description": nullable(r.Description),
		})
	}
	return map[string]any{"count": len(items), "items": items}, nil
}

// DetailsTool implements github_repo_details.
type DetailsTool struct {
	client *Client
}

func (t *DetailsTool) Name() string { return DetailToolName }

func (t *DetailsTool) Description() string { return "Get repo details." }

func (t *DetailsTool) InputShape() string { return `{"full_name": "owner/repo"}` }

func (t *DetailsTool) Invoke(ctx context.Context, input map[string]any) (map[string]any, error) {
	fullName := tools.StringArg(input, "full_name")
	if fullName == "" {
		return nil, fmt.Errorf("full_name is required for %s", DetailToolName)
	}

	var r repository
	if err := t.client.get(ctx, "/repos/"+fullName, nil, &r); err != nil {
		return nil, err
	}
	return map[string]any{
		"name":        r.FullName,
		"url":         r.HTMLURL,
		"stars":       r.StargazersCount,
		"forks":       r.ForksCount,
		"open_issues": r.OpenIssuesCount,
		"language":    nullable(r.Language),
		"description": nullable(r.Description),
	}, nil
}

func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
