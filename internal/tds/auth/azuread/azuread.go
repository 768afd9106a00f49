// Package azuread implements the Azure AD LoginBlobProvider for the
// AzureADPassword and AzureADAccessToken strategies (TDS 7.4 Federated
// Authentication Library). It wraps golang-jwt/jwt/v5 purely to parse
// (never verify against a remote JWKS, which is the token issuer's
// job) the access token's exp claim so the session can pre-emptively
// refuse a token that will expire before login completes, and to
// extract tid/upn for diagnostics.
package azuread

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrTokenExpiringSoon is returned when the access token's exp claim
// falls within the login grace window.
var ErrTokenExpiringSoon = errors.New("tds/auth/azuread: access token expires before login can complete")

// TokenSource supplies a fresh Azure AD access token on demand; the
// Provider calls it on every Continue, for either Azure AD strategy.
type TokenSource func(ctx context.Context) (string, error)

// Claims is the subset of an Azure AD access token's claims this
// package extracts for diagnostics.
type Claims struct {
	TenantID string `json:"tid"`
	UPN      string `json:"upn"`
	jwt.RegisteredClaims
}

// Provider is a LoginBlobProvider for federated authentication. The
// "login blob" here is the raw access token bytes (UTF-8), per TDS
// 7.4's FEDAUTH token exchange: InitialBlob actually returns nothing
// useful until the server's fedAuthInfoSTSURL/fedAuthInfoSPN sub-tokens
// (0x01/0x02) arrive, so this provider always reports
// continueNeeded=true and does the real work in Continue.
type Provider struct {
	Source TokenSource
	// GracePeriod is how far in advance of exp the token is treated as
	// too close to expiry to start a login with.
	GracePeriod time.Duration

	LastClaims Claims
}

// NewProvider creates a provider pulling tokens from source.
func NewProvider(source TokenSource) *Provider {
	return &Provider{Source: source, GracePeriod: 30 * time.Second}
}

// InitialBlob returns no blob; Azure AD federated auth always needs
// the server's STS URL/SPN round trip before a token can be requested
// and handed back.
func (p *Provider) InitialBlob(ctx context.Context, spn string) ([]byte, bool, error) {
	return nil, true, nil
}

// Continue is called with the fedAuthInfo payload (STS URL / SPN,
// already extracted by the token-parser collaborator and concatenated
// here as serverBlob for simplicity); it fetches a token from Source,
// validates its expiry, and returns the token bytes as the federated
// auth blob.
func (p *Provider) Continue(ctx context.Context, serverBlob []byte) ([]byte, bool, error) {
	token, err := p.Source(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("tds/auth/azuread: fetch token: %w", err)
	}

	claims, err := parseClaims(token)
	if err != nil {
		return nil, false, fmt.Errorf("tds/auth/azuread: parse token: %w", err)
	}
	p.LastClaims = claims

	if claims.ExpiresAt != nil && time.Until(claims.ExpiresAt.Time) < p.GracePeriod {
		return nil, false, ErrTokenExpiringSoon
	}

	return []byte(token), true, nil
}

// parseClaims decodes the token's claims without verifying its
// signature: the issuer (Azure AD / STS) already did that, and this
// client has no business re-verifying a token it didn't mint.
func parseClaims(token string) (Claims, error) {
	var claims Claims
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, &claims); err != nil {
		return Claims{}, err
	}
	return claims, nil
}
