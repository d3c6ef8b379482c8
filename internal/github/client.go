package github

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/shurcooL/githubv4"
	"golang.org/x/oauth2"

	"github.com/andywolf/statusnotify/internal/logging"
	"github.com/andywolf/statusnotify/internal/version"
)

// Client wraps a githubv4 client with the operations statusnotify needs.
type Client struct {
	gql    *githubv4.Client
	logger *logging.Logger

	mu     sync.Mutex
	labels map[string]string
}

// ClientOption configures a Client.
type ClientOption func(*clientConfig)

type clientConfig struct {
	httpClient *http.Client
	logger     *logging.Logger
}

// WithGraphQLHTTPClient sets the base HTTP client. Its transport is wrapped
// with the bearer token source.
func WithGraphQLHTTPClient(client *http.Client) ClientOption {
	return func(c *clientConfig) {
		c.httpClient = client
	}
}

// WithLogger sets the logger used for per-item warnings.
func WithLogger(logger *logging.Logger) ClientOption {
	return func(c *clientConfig) {
		c.logger = logger
	}
}

// NewClient creates a client for the GraphQL endpoint at apiURL. A nil
// token source sends unauthenticated requests.
func NewClient(ctx context.Context, apiURL string, ts oauth2.TokenSource, opts ...ClientOption) *Client {
	cfg := clientConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = logging.Discard()
	}

	httpClient := cfg.httpClient
	if ts != nil {
		if httpClient != nil {
			ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)
		}
		httpClient = oauth2.NewClient(ctx, ts)
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	httpClient = withUserAgent(httpClient, version.UserAgent())

	if apiURL == "" {
		apiURL = DefaultGraphQLURL
	}

	return &Client{
		gql:    githubv4.NewEnterpriseClient(apiURL, httpClient),
		logger: cfg.logger,
		labels: make(map[string]string),
	}
}

type userAgentTransport struct {
	base      http.RoundTripper
	userAgent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.userAgent)
	return t.base.RoundTrip(req)
}

// withUserAgent returns a shallow copy of client that sets User-Agent.
func withUserAgent(client *http.Client, userAgent string) *http.Client {
	base := client.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	c := *client
	c.Transport = &userAgentTransport{base: base, userAgent: userAgent}
	return &c
}

// StaticTokenSource returns a token source for a personal access token.
func StaticTokenSource(token string) oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
}

func (c *Client) query(ctx context.Context, q interface{}, vars map[string]interface{}) error {
	if err := c.gql.Query(ctx, q, vars); err != nil {
		return fmt.Errorf("graphql query failed: %w", err)
	}
	return nil
}

func (c *Client) mutate(ctx context.Context, m interface{}, input githubv4.Input) error {
	if err := c.gql.Mutate(ctx, m, input, nil); err != nil {
		return fmt.Errorf("graphql mutation failed: %w", err)
	}
	return nil
}

// nodeID renders a decoded githubv4.ID as a string.
func nodeID(id githubv4.ID) string {
	if id == nil {
		return ""
	}
	if s, ok := id.(string); ok {
		return s
	}
	return fmt.Sprint(id)
}
