package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

var (
	// ErrInvalidToken covers bad signatures, malformed tokens, expiry
	// and type mismatches. Callers map it to 401.
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenRevoked means the token's JTI is on the denylist.
	ErrTokenRevoked = errors.New("token revoked")
)

// Claims carried by both access and refresh tokens.
type Claims struct {
	TokenType string `json:"token_type"`
	IsAdmin   bool   `json:"is_admin"`
	jwt.RegisteredClaims
}

// Denylist answers whether a refresh token ID has been revoked.
// Implemented by the Redis token denylist; tests supply fakes.
type Denylist interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// Pair is one issued access/refresh token couple.
type Pair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// Issuer signs and verifies HS256 JWTs.
type Issuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewIssuer(secret string, accessTTL, refreshTTL time.Duration) *Issuer {
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}
	if refreshTTL <= 0 {
		refreshTTL = 30 * 24 * time.Hour
	}
	return &Issuer{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// SetClock overrides the time source. Test use only.
func (i *Issuer) SetClock(now func() time.Time) {
	i.now = now
}

// IssuePair signs a fresh access/refresh token couple for a user.
func (i *Issuer) IssuePair(userID string, isAdmin bool) (*Pair, error) {
	now := i.now()

	access, accessExp, err := i.sign(userID, isAdmin, TypeAccess, now, i.accessTTL)
	if err != nil {
		return nil, err
	}

	refresh, refreshExp, err := i.sign(userID, isAdmin, TypeRefresh, now, i.refreshTTL)
	if err != nil {
		return nil, err
	}

	return &Pair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (i *Issuer) sign(userID string, isAdmin bool, tokenType string, now time.Time, ttl time.Duration) (string, time.Time, error) {
	expiresAt := now.Add(ttl)

	claims := Claims{
		TokenType: tokenType,
		IsAdmin:   isAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        uuid.New().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign %s token: %w", tokenType, err)
	}

	return signed, expiresAt, nil
}

// Verify parses a token and checks signature, expiry and token type.
func (i *Issuer) Verify(tokenString, expectedType string) (*Claims, error) {
	claims := &Claims{}

	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return i.now() }))
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}

	if claims.TokenType != expectedType {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// VerifyRefresh checks a refresh token against signature, expiry, type
// and the revocation denylist.
func (i *Issuer) VerifyRefresh(ctx context.Context, tokenString string, denylist Denylist) (*Claims, error) {
	claims, err := i.Verify(tokenString, TypeRefresh)
	if err != nil {
		return nil, err
	}

	if denylist != nil {
		revoked, err := denylist.IsRevoked(ctx, claims.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to check revocation: %w", err)
		}
		if revoked {
			return nil, ErrTokenRevoked
		}
	}

	return claims, nil
}

// RevokeRefresh denylists a refresh token for its remaining lifetime.
// An unparseable token is ignored; logout must not fail on garbage.
func (i *Issuer) RevokeRefresh(ctx context.Context, tokenString string, denylist Denylist) error {
	claims, err := i.Verify(tokenString, TypeRefresh)
	if err != nil || denylist == nil {
		return nil
	}

	remaining := claims.ExpiresAt.Time.Sub(i.now())
	return denylist.Revoke(ctx, claims.ID, remaining)
}
