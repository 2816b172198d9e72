package token

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDenylist struct {
	revoked map[string]time.Duration
}

func newFakeDenylist() *fakeDenylist {
	return &fakeDenylist{revoked: make(map[string]time.Duration)}
}

func (f *fakeDenylist) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	f.revoked[jti] = ttl
	return nil
}

func (f *fakeDenylist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	_, ok := f.revoked[jti]
	return ok, nil
}

func testIssuer() (*Issuer, *time.Time) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	issuer := NewIssuer("test-secret", 15*time.Minute, 30*24*time.Hour)
	issuer.SetClock(func() time.Time { return now })
	return issuer, &now
}

func TestIssuePairRoundTrip(t *testing.T) {
	issuer, _ := testIssuer()

	pair, err := issuer.IssuePair("user-1", true)
	require.NoError(t, err)
	assert.NotEqual(t, pair.AccessToken, pair.RefreshToken)

	access, err := issuer.Verify(pair.AccessToken, TypeAccess)
	require.NoError(t, err)
	assert.Equal(t, "user-1", access.Subject)
	assert.True(t, access.IsAdmin)
	assert.Equal(t, TypeAccess, access.TokenType)
	assert.NotEmpty(t, access.ID)

	refresh, err := issuer.Verify(pair.RefreshToken, TypeRefresh)
	require.NoError(t, err)
	assert.Equal(t, "user-1", refresh.Subject)
	assert.NotEqual(t, access.ID, refresh.ID)
}

func TestVerifyRejectsWrongType(t *testing.T) {
	issuer, _ := testIssuer()

	pair, err := issuer.IssuePair("user-1", false)
	require.NoError(t, err)

	// A refresh token must not pass as an access token and vice versa
	_, err = issuer.Verify(pair.RefreshToken, TypeAccess)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = issuer.Verify(pair.AccessToken, TypeRefresh)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsExpired(t *testing.T) {
	issuer, clock := testIssuer()

	pair, err := issuer.IssuePair("user-1", false)
	require.NoError(t, err)

	*clock = clock.Add(16 * time.Minute)

	_, err = issuer.Verify(pair.AccessToken, TypeAccess)
	assert.ErrorIs(t, err, ErrInvalidToken)

	// The refresh token is still good for another month
	_, err = issuer.Verify(pair.RefreshToken, TypeRefresh)
	assert.NoError(t, err)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	issuer, _ := testIssuer()
	other := NewIssuer("other-secret", 15*time.Minute, 30*24*time.Hour)

	pair, err := issuer.IssuePair("user-1", false)
	require.NoError(t, err)

	_, err = other.Verify(pair.AccessToken, TypeAccess)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	issuer, _ := testIssuer()

	_, err := issuer.Verify("not-a-token", TypeAccess)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRevokedRefreshTokenFails(t *testing.T) {
	issuer, _ := testIssuer()
	denylist := newFakeDenylist()
	ctx := context.Background()

	pair, err := issuer.IssuePair("user-1", false)
	require.NoError(t, err)

	_, err = issuer.VerifyRefresh(ctx, pair.RefreshToken, denylist)
	require.NoError(t, err)

	require.NoError(t, issuer.RevokeRefresh(ctx, pair.RefreshToken, denylist))

	_, err = issuer.VerifyRefresh(ctx, pair.RefreshToken, denylist)
	assert.ErrorIs(t, err, ErrTokenRevoked)
}

func TestRevokeUsesRemainingLifetime(t *testing.T) {
	issuer, clock := testIssuer()
	denylist := newFakeDenylist()
	ctx := context.Background()

	pair, err := issuer.IssuePair("user-1", false)
	require.NoError(t, err)

	*clock = clock.Add(10 * 24 * time.Hour)
	require.NoError(t, issuer.RevokeRefresh(ctx, pair.RefreshToken, denylist))

	claims, err := issuer.Verify(pair.RefreshToken, TypeRefresh)
	require.NoError(t, err)
	assert.Equal(t, 20*24*time.Hour, denylist.revoked[claims.ID])
}

func TestRevokeGarbageIsNoop(t *testing.T) {
	issuer, _ := testIssuer()
	denylist := newFakeDenylist()

	require.NoError(t, issuer.RevokeRefresh(context.Background(), "garbage", denylist))
	assert.Empty(t, denylist.revoked)
}
