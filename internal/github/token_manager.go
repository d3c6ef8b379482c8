package github

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// TokenRefreshBuffer is how long before expiry a cached installation token
// is considered stale.
const TokenRefreshBuffer = 5 * time.Minute

// appJWTLifetime is the lifetime of each JWT minted for an exchange.
const appJWTLifetime = 9 * time.Minute

// TokenExchangerAPI is the part of TokenExchanger the manager depends on.
type TokenExchangerAPI interface {
	ExchangeToken(ctx context.Context, appJWT string, installationID int64) (*InstallationToken, error)
}

// AppTokenManager caches a GitHub App installation token and refreshes it
// shortly before it expires.
type AppTokenManager struct {
	mu sync.Mutex

	installationID int64
	signer         *AppJWTSigner
	exchanger      TokenExchangerAPI

	token     string
	expiresAt time.Time

	nowFunc func() time.Time
}

// AppTokenManagerOption configures an AppTokenManager.
type AppTokenManagerOption func(*AppTokenManager)

// WithNowFunc overrides the clock.
func WithNowFunc(fn func() time.Time) AppTokenManagerOption {
	return func(m *AppTokenManager) {
		m.nowFunc = fn
		m.signer.nowFunc = fn
	}
}

// WithTokenExchanger overrides the REST exchanger.
func WithTokenExchanger(exchanger TokenExchangerAPI) AppTokenManagerOption {
	return func(m *AppTokenManager) {
		m.exchanger = exchanger
	}
}

// NewAppTokenManager validates the App credentials. No network call is
// made until the first token is requested.
func NewAppTokenManager(appID, installationID int64, privateKey []byte, opts ...AppTokenManagerOption) (*AppTokenManager, error) {
	if installationID <= 0 {
		return nil, fmt.Errorf("installation ID must be positive")
	}
	if len(privateKey) == 0 {
		return nil, fmt.Errorf("private key cannot be empty")
	}

	signer, err := NewAppJWTSigner(appID, privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create JWT signer: %w", err)
	}

	m := &AppTokenManager{
		installationID: installationID,
		signer:         signer,
		exchanger:      NewTokenExchanger(),
		nowFunc:        time.Now,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m, nil
}

// AccessToken returns a valid installation token, exchanging a new one if
// the cached token is missing or about to expire.
func (m *AppTokenManager) AccessToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.needsRefreshLocked() {
		return m.token, nil
	}
	return m.refreshLocked(ctx)
}

// Refresh exchanges a new token regardless of the cached one.
func (m *AppTokenManager) Refresh(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refreshLocked(ctx)
}

// NeedsRefresh reports whether the next AccessToken call will exchange.
func (m *AppTokenManager) NeedsRefresh() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.needsRefreshLocked()
}

// ExpiresAt returns the expiry of the cached token, or the zero time.
func (m *AppTokenManager) ExpiresAt() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.expiresAt
}

// TokenSource adapts the manager to oauth2 so it can back an HTTP client.
func (m *AppTokenManager) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &appTokenSource{ctx: ctx, manager: m}
}

func (m *AppTokenManager) needsRefreshLocked() bool {
	if m.token == "" {
		return true
	}
	return !m.nowFunc().Add(TokenRefreshBuffer).Before(m.expiresAt)
}

func (m *AppTokenManager) refreshLocked(ctx context.Context) (string, error) {
	appJWT, err := m.signer.Sign(appJWTLifetime)
	if err != nil {
		return "", fmt.Errorf("failed to generate JWT: %w", err)
	}

	installToken, err := m.exchanger.ExchangeToken(ctx, appJWT, m.installationID)
	if err != nil {
		return "", fmt.Errorf("failed to exchange token: %w", err)
	}

	m.token = installToken.Token
	m.expiresAt = installToken.ExpiresAt
	return m.token, nil
}

type appTokenSource struct {
	ctx     context.Context
	manager *AppTokenManager
}

func (s *appTokenSource) Token() (*oauth2.Token, error) {
	token, err := s.manager.AccessToken(s.ctx)
	if err != nil {
		return nil, err
	}
	return &oauth2.Token{
		AccessToken: token,
		TokenType:   "Bearer",
		Expiry:      s.manager.ExpiresAt(),
	}, nil
}
