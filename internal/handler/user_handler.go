package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/shopfive/backend/internal/service"
	"github.com/shopfive/backend/internal/token"
	"github.com/shopfive/backend/internal/util"
)

// UserHandler handles HTTP requests for the user profile
type UserHandler struct {
	userService *service.UserService
	issuer      *token.Issuer
	logger      *zap.Logger
}

// NewUserHandler creates a new user handler
func NewUserHandler(userService *service.UserService, issuer *token.Issuer, logger *zap.Logger) *UserHandler {
	return &UserHandler{
		userService: userService,
		issuer:      issuer,
		logger:      logger,
	}
}

// RegisterRoutes registers all user routes
func (h *UserHandler) RegisterRoutes(router chi.Router) {
	router.Route("/user", func(r chi.Router) {
		r.Use(RequireAuth(h.issuer))
		r.Get("/me", h.Me)
		r.Post("/admin_login", h.AdminLogin)
	})
}

// Me returns the authenticated user's profile.
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	profile, err := h.userService.GetProfile(ctx, GetUserID(ctx))
	if err != nil {
		respondWithError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, ok(map[string]interface{}{
		"user":  profile.User,
		"phone": profile.Phone,
	}))
}

// AdminLogin grants the admin role to the authenticated user and returns
// tokens carrying the new claim.
func (h *UserHandler) AdminLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	user, pair, err := h.userService.PromoteToAdmin(ctx, GetUserID(ctx), clientMeta(r))
	if err != nil {
		respondWithError(w, err)
		return
	}

	setAuthCookies(w, pair)
	respondWithJSON(w, http.StatusOK, ok(map[string]interface{}{
		"access_token": pair.AccessToken,
		"is_admin":     user.IsAdmin,
	}))
	h.logger.Info("Admin role granted via HTTP",
		util.String("user_id", user.UserID),
		util.Duration("duration", time.Since(startTime)),
		util.String("method", "AdminLogin"),
	)
}
