package github

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// MaxJWTDuration is the maximum lifetime GitHub accepts for an App JWT.
const MaxJWTDuration = 10 * time.Minute

// jwtClockSkew backdates the issued-at claim so a runner whose clock is a
// little ahead of GitHub's is not rejected.
const jwtClockSkew = 60 * time.Second

// AppJWTSigner signs the short-lived JWTs a GitHub App uses to request
// installation tokens.
type AppJWTSigner struct {
	appID      string
	privateKey *rsa.PrivateKey
	nowFunc    func() time.Time
}

// NewAppJWTSigner parses the App's PEM private key (PKCS#1 or PKCS#8).
func NewAppJWTSigner(appID int64, privateKeyPEM []byte) (*AppJWTSigner, error) {
	if appID <= 0 {
		return nil, fmt.Errorf("app ID must be positive")
	}

	privateKey, err := parsePrivateKey(privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	return &AppJWTSigner{
		appID:      strconv.FormatInt(appID, 10),
		privateKey: privateKey,
		nowFunc:    time.Now,
	}, nil
}

// Sign returns a JWT valid for the given duration, at most MaxJWTDuration.
func (s *AppJWTSigner) Sign(duration time.Duration) (string, error) {
	if duration <= 0 {
		return "", fmt.Errorf("duration must be positive")
	}
	if duration > MaxJWTDuration {
		return "", fmt.Errorf("duration %v exceeds maximum allowed %v", duration, MaxJWTDuration)
	}

	now := s.nowFunc()
	claims := jwt.RegisteredClaims{
		Issuer:    s.appID,
		IssuedAt:  jwt.NewNumericDate(now.Add(-jwtClockSkew)),
		ExpiresAt: jwt.NewNumericDate(now.Add(duration)),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(s.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// parsePrivateKey parses a PEM-encoded RSA private key.
func parsePrivateKey(pemData []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block")
	}

	if block.Type == "RSA PRIVATE KEY" {
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key is not RSA")
	}
	return rsaKey, nil
}
