package azuread

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	claims := Claims{
		TenantID: "tenant-123",
		UPN:      "alice@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte("test-signing-key-unused-by-client"))
	require.NoError(t, err)
	return signed
}

func TestInitialBlobAlwaysNeedsContinuation(t *testing.T) {
	p := NewProvider(func(ctx context.Context) (string, error) { return "", nil })
	blob, continueNeeded, err := p.InitialBlob(context.Background(), "https://database.windows.net/")
	require.NoError(t, err)
	assert.Nil(t, blob)
	assert.True(t, continueNeeded)
}

func TestContinueReturnsTokenAndExtractsClaims(t *testing.T) {
	tok := signedToken(t, time.Now().Add(time.Hour))
	p := NewProvider(func(ctx context.Context) (string, error) { return tok, nil })

	blob, done, err := p.Continue(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, tok, string(blob))
	assert.Equal(t, "tenant-123", p.LastClaims.TenantID)
	assert.Equal(t, "alice@example.com", p.LastClaims.UPN)
}

func TestContinueRejectsTokenExpiringWithinGrace(t *testing.T) {
	tok := signedToken(t, time.Now().Add(5*time.Second))
	p := NewProvider(func(ctx context.Context) (string, error) { return tok, nil })
	p.GracePeriod = 30 * time.Second

	_, _, err := p.Continue(context.Background(), nil)
	assert.ErrorIs(t, err, ErrTokenExpiringSoon)
}

func TestContinuePropagatesSourceError(t *testing.T) {
	wantErr := errors.New("boom")
	p := NewProvider(func(ctx context.Context) (string, error) { return "", wantErr })
	_, _, err := p.Continue(context.Background(), nil)
	assert.ErrorIs(t, err, wantErr)
}
