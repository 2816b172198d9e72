package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopfive/backend/internal/service"
	"github.com/shopfive/backend/internal/token"
)

const (
	accessCookieName  = "access_token_cookie"
	refreshCookieName = "refresh_token_cookie"
)

type contextKey string

const (
	contextKeyUserID  contextKey = "user_id"
	contextKeyIsAdmin contextKey = "is_admin"
)

// RequireAuth verifies the access token from the Authorization header or
// the access token cookie and stores the identity on the context.
func RequireAuth(issuer *token.Issuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := bearerToken(r)
			if tokenString == "" {
				if cookie, err := r.Cookie(accessCookieName); err == nil {
					tokenString = cookie.Value
				}
			}
			if tokenString == "" {
				respondWithError(w, service.ErrUnauthorized)
				return
			}

			claims, err := issuer.Verify(tokenString, token.TypeAccess)
			if err != nil {
				respondWithError(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), contextKeyUserID, claims.Subject)
			ctx = context.WithValue(ctx, contextKeyIsAdmin, claims.IsAdmin)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin rejects requests whose token lacks the admin claim. Must
// run after RequireAuth.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !IsAdmin(r.Context()) {
			respondWithError(w, fmt.Errorf("%w: admin role required", service.ErrPermissionDenied))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}

// GetUserID returns the authenticated user's ID from the context.
func GetUserID(ctx context.Context) string {
	if userID, ok := ctx.Value(contextKeyUserID).(string); ok {
		return userID
	}
	return ""
}

// IsAdmin reports whether the authenticated user carries the admin claim.
func IsAdmin(ctx context.Context) bool {
	if isAdmin, ok := ctx.Value(contextKeyIsAdmin).(bool); ok {
		return isAdmin
	}
	return false
}

// setAuthCookies stores both tokens as HttpOnly cookies scoped to the
// site, expiring with the tokens themselves.
func setAuthCookies(w http.ResponseWriter, pair *token.Pair) {
	http.SetCookie(w, authCookie(accessCookieName, pair.AccessToken, pair.AccessExpiresAt))
	http.SetCookie(w, authCookie(refreshCookieName, pair.RefreshToken, pair.RefreshExpiresAt))
}

// clearAuthCookies expires both token cookies.
func clearAuthCookies(w http.ResponseWriter) {
	expired := time.Unix(0, 0)
	http.SetCookie(w, authCookie(accessCookieName, "", expired))
	http.SetCookie(w, authCookie(refreshCookieName, "", expired))
}

func authCookie(name, value string, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	}
}
