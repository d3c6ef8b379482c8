package github

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andywolf/statusnotify/internal/version"
)

type graphQLRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables"`
}

// fakeGraphQL is an httptest GraphQL endpoint that answers each request
// with the next canned response.
type fakeGraphQL struct {
	t         *testing.T
	mu        sync.Mutex
	requests  []graphQLRequest
	responses []string
	auth      []string
	agents    []string
}

func newFakeGraphQL(t *testing.T, responses ...string) (*fakeGraphQL, *httptest.Server) {
	t.Helper()
	f := &fakeGraphQL{t: t, responses: responses}
	server := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(server.Close)
	return f, server
}

func (f *fakeGraphQL) serve(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		f.t.Errorf("read body: %v", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	var req graphQLRequest
	if err := json.Unmarshal(body, &req); err != nil {
		f.t.Errorf("decode body: %v", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.auth = append(f.auth, r.Header.Get("Authorization"))
	f.agents = append(f.agents, r.Header.Get("User-Agent"))
	n := len(f.requests)
	f.mu.Unlock()

	if n > len(f.responses) {
		f.t.Errorf("unexpected request %d: %s", n, req.Query)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(f.responses[n-1]))
}

func (f *fakeGraphQL) request(i int) graphQLRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	require.Greater(f.t, len(f.requests), i, "request %d was not made", i)
	return f.requests[i]
}

func (f *fakeGraphQL) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func newTestClient(t *testing.T, server *httptest.Server) *Client {
	t.Helper()
	return NewClient(context.Background(), server.URL, StaticTokenSource("ghp_testtoken"),
		WithGraphQLHTTPClient(server.Client()))
}

func TestNewClient_SendsBearerToken(t *testing.T) {
	fake, server := newFakeGraphQL(t, `{"data":{"repository":{"label":{"id":"LA_1"}}}}`)
	client := newTestClient(t, server)

	_, err := client.LabelID(context.Background(), "acme/api", "qa-notified")
	require.NoError(t, err)

	require.Len(t, fake.auth, 1)
	assert.Equal(t, "Bearer ghp_testtoken", fake.auth[0])
	assert.Equal(t, version.UserAgent(), fake.agents[0])
}

func TestNewClient_GraphQLErrors(t *testing.T) {
	_, server := newFakeGraphQL(t, `{"data":null,"errors":[{"message":"Could not resolve to a Repository"}]}`)
	client := newTestClient(t, server)

	_, err := client.LabelID(context.Background(), "acme/missing", "qa")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Could not resolve to a Repository")
}

func TestNodeID(t *testing.T) {
	assert.Equal(t, "", nodeID(nil))
	assert.Equal(t, "I_1", nodeID("I_1"))
	assert.Equal(t, "42", nodeID(42))
}
