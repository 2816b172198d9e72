package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/shopfive/backend/internal/service"
	"github.com/shopfive/backend/internal/token"
	"github.com/shopfive/backend/internal/upload"
	"github.com/shopfive/backend/internal/util"
)

const maxUploadBytes = 10 << 20

// AuthHandler handles HTTP requests for registration, login and the
// password recovery flow
type AuthHandler struct {
	authService *service.AuthService
	userService *service.UserService
	saver       *upload.Saver
	issuer      *token.Issuer
	logger      *zap.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(
	authService *service.AuthService,
	userService *service.UserService,
	saver *upload.Saver,
	issuer *token.Issuer,
	logger *zap.Logger,
) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		userService: userService,
		saver:       saver,
		issuer:      issuer,
		logger:      logger,
	}
}

// RegisterRoutes registers all auth routes
func (h *AuthHandler) RegisterRoutes(router chi.Router) {
	router.Route("/auths", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
		r.Post("/forgot_password", h.ForgotPassword)
		r.Post("/check_otp", h.CheckOTP)
		r.Post("/change_password", h.ChangePassword)
		r.Post("/refresh_user", h.Refresh)
		r.Post("/logout", h.Logout)
	})
}

// Register handles account signup. The request is multipart so the
// profile photo can ride along with the form fields.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		respondWithError(w, fmt.Errorf("%w: invalid multipart form", service.ErrInvalidInput))
		return
	}

	req := &service.RegisterRequest{
		Username: r.FormValue("username"),
		Email:    r.FormValue("email"),
		Phone:    r.FormValue("phone"),
		Password: r.FormValue("password"),
	}

	file, header, err := r.FormFile("photo")
	if err != nil {
		respondWithError(w, errPhotoRequired)
		return
	}
	defer file.Close()
	path, err := h.saver.Save(file, header.Filename)
	if err != nil {
		respondWithError(w, err)
		return
	}
	req.PhotoPath = path

	user, err := h.userService.Register(ctx, req, clientMeta(r))
	if err != nil {
		respondWithError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, ok(map[string]interface{}{
		"user": user,
	}))
	h.logger.Info("User registered via HTTP",
		util.String("user_id", user.UserID),
		util.Duration("duration", time.Since(startTime)),
		util.String("method", "Register"),
	)
}

// Login handles credential login and sets the token cookies.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	var req service.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, fmt.Errorf("%w: invalid request body", service.ErrInvalidInput))
		return
	}

	user, pair, err := h.authService.Login(ctx, &req, clientMeta(r))
	if err != nil {
		respondWithError(w, err)
		return
	}

	// The refresh token travels only in its HttpOnly cookie, never in
	// the body.
	setAuthCookies(w, pair)
	respondWithJSON(w, http.StatusOK, ok(map[string]interface{}{
		"access_token": pair.AccessToken,
		"user_id":      user.UserID,
		"is_admin":     user.IsAdmin,
	}))
	h.logger.Info("User logged in via HTTP",
		util.String("user_id", user.UserID),
		util.Duration("duration", time.Since(startTime)),
		util.String("method", "Login"),
	)
}

// ForgotPassword issues a recovery code and emails it to the account.
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, fmt.Errorf("%w: invalid request body", service.ErrInvalidInput))
		return
	}

	if err := h.authService.ForgotPassword(ctx, req.Email, clientMeta(r)); err != nil {
		respondWithError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, ok(map[string]interface{}{
		"email":  req.Email,
		"detail": "reset code sent",
	}))
}

// CheckOTP verifies a recovery code and logs the user in on success.
func (h *AuthHandler) CheckOTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		Email   string `json:"email"`
		OTPCode string `json:"otp_code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, fmt.Errorf("%w: invalid request body", service.ErrInvalidInput))
		return
	}

	user, pair, err := h.authService.CheckOTP(ctx, req.Email, req.OTPCode, clientMeta(r))
	if err != nil {
		respondWithError(w, err)
		return
	}

	setAuthCookies(w, pair)
	respondWithJSON(w, http.StatusOK, ok(map[string]interface{}{
		"access_token": pair.AccessToken,
		"user_id":      user.UserID,
	}))
}

// ChangePassword sets a new password for the user identified by the
// refresh cookie, so the recovery flow can finish without an access
// token.
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		NewPassword string `json:"new_password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, fmt.Errorf("%w: invalid request body", service.ErrInvalidInput))
		return
	}

	cookie, err := r.Cookie(refreshCookieName)
	if err != nil || cookie.Value == "" {
		respondWithError(w, service.ErrUnauthorized)
		return
	}
	claims, err := h.issuer.Verify(cookie.Value, token.TypeRefresh)
	if err != nil {
		respondWithError(w, err)
		return
	}

	if err := h.authService.ChangePassword(ctx, claims.Subject, req.NewPassword, clientMeta(r)); err != nil {
		respondWithError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, ok(map[string]interface{}{
		"user_id": claims.Subject,
		"detail":  "password changed",
	}))
}

// Refresh rotates the refresh cookie into a fresh pair.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	refreshToken := h.refreshTokenFrom(r)
	if refreshToken == "" {
		respondWithError(w, service.ErrUnauthorized)
		return
	}

	pair, err := h.authService.Refresh(ctx, refreshToken)
	if err != nil {
		respondWithError(w, err)
		return
	}

	setAuthCookies(w, pair)
	respondWithJSON(w, http.StatusOK, ok(map[string]interface{}{
		"access_token": pair.AccessToken,
	}))
}

// Logout revokes the refresh token and clears the cookies.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if refreshToken := h.refreshTokenFrom(r); refreshToken != "" {
		if err := h.authService.Logout(ctx, refreshToken, clientMeta(r)); err != nil {
			respondWithError(w, err)
			return
		}
	}

	clearAuthCookies(w)
	respondWithJSON(w, http.StatusOK, ok(map[string]interface{}{
		"detail": "logged out",
	}))
}

// refreshTokenFrom reads the refresh token from its cookie. The cookie
// is the only transport for refresh tokens.
func (h *AuthHandler) refreshTokenFrom(r *http.Request) string {
	if cookie, err := r.Cookie(refreshCookieName); err == nil {
		return cookie.Value
	}
	return ""
}
