// Package github talks to the GitHub GraphQL API: it reads project status
// values for issues, scans and posts issue comments, and manages labels.
// It also authenticates as a GitHub App when no personal token is given.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultGraphQLURL is the public GitHub GraphQL endpoint.
const DefaultGraphQLURL = "https://api.github.com/graphql"

// InstallationToken is a GitHub App installation access token.
type InstallationToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// TokenExchanger trades an App JWT for an installation token over REST.
type TokenExchanger struct {
	httpClient *http.Client
	baseURL    string
}

// TokenExchangerOption configures a TokenExchanger.
type TokenExchangerOption func(*TokenExchanger)

// WithHTTPClient sets the HTTP client used for the exchange.
func WithHTTPClient(client *http.Client) TokenExchangerOption {
	return func(t *TokenExchanger) {
		t.httpClient = client
	}
}

// WithBaseURL sets the REST API base URL.
func WithBaseURL(baseURL string) TokenExchangerOption {
	return func(t *TokenExchanger) {
		t.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// NewTokenExchanger creates a TokenExchanger for api.github.com unless
// WithBaseURL says otherwise.
func NewTokenExchanger(opts ...TokenExchangerOption) *TokenExchanger {
	t := &TokenExchanger{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    "https://api.github.com",
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// RESTBaseURL derives the REST API root from a GraphQL endpoint.
// https://api.github.com/graphql maps to https://api.github.com and
// https://ghe.example.com/api/graphql maps to https://ghe.example.com/api/v3.
func RESTBaseURL(graphqlURL string) (string, error) {
	u, err := url.Parse(graphqlURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse GraphQL URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("GraphQL URL %q must be absolute", graphqlURL)
	}

	path := strings.TrimSuffix(strings.TrimRight(u.Path, "/"), "/graphql")
	switch {
	case path == "":
	case strings.HasSuffix(path, "/api"):
		path += "/v3"
	}
	u.Path = path
	u.RawQuery = ""
	return strings.TrimRight(u.String(), "/"), nil
}

// ExchangeToken exchanges a signed App JWT for an installation token.
// Installation tokens are valid for one hour.
func (t *TokenExchanger) ExchangeToken(ctx context.Context, appJWT string, installationID int64) (*InstallationToken, error) {
	if appJWT == "" {
		return nil, fmt.Errorf("JWT cannot be empty")
	}
	if installationID <= 0 {
		return nil, fmt.Errorf("installation ID must be positive")
	}

	endpoint := fmt.Sprintf("%s/app/installations/%d/access_tokens", t.baseURL, installationID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Authorization", "Bearer "+appJWT)
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusCreated {
		return nil, parseAPIError(resp.StatusCode, body)
	}

	var token InstallationToken
	if err := json.Unmarshal(body, &token); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}
	if token.Token == "" {
		return nil, fmt.Errorf("token response did not include a token")
	}

	return &token, nil
}

type apiError struct {
	Message          string `json:"message"`
	DocumentationURL string `json:"documentation_url"`
}

func parseAPIError(statusCode int, body []byte) error {
	var apiErr apiError
	if err := json.Unmarshal(body, &apiErr); err != nil {
		return fmt.Errorf("API error (status %d): %s", statusCode, string(body))
	}

	switch statusCode {
	case http.StatusUnauthorized:
		return fmt.Errorf("unauthorized: %s (check the App ID and private key)", apiErr.Message)
	case http.StatusForbidden:
		return fmt.Errorf("forbidden: %s (check the App's repository and project permissions)", apiErr.Message)
	case http.StatusNotFound:
		return fmt.Errorf("not found: %s (check the installation ID)", apiErr.Message)
	default:
		return fmt.Errorf("API error (status %d): %s", statusCode, apiErr.Message)
	}
}
