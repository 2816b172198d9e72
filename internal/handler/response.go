package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/shopfive/backend/internal/lockout"
	"github.com/shopfive/backend/internal/otp"
	"github.com/shopfive/backend/internal/service"
	"github.com/shopfive/backend/internal/token"
	"github.com/shopfive/backend/internal/upload"
	"github.com/shopfive/backend/internal/util"
)

// errPhotoRequired rejects a registration whose photo part is missing
// or unusable.
var errPhotoRequired = errors.New("valid user photo required")

// ok builds the success envelope. Extra fields ride alongside "msg".
func ok(fields map[string]interface{}) map[string]interface{} {
	if fields == nil {
		fields = map[string]interface{}{}
	}
	fields["msg"] = "ok"
	return fields
}

func errBody(err error) map[string]interface{} {
	return map[string]interface{}{
		"msg":   "error",
		"error": err.Error(),
	}
}

// respondWithJSON sends a JSON response
func respondWithJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		util.Error("Failed to encode JSON response", zap.Error(err))
	}
}

// respondWithError maps the error to a status code and sends the error
// envelope. Locked accounts additionally get a Retry-After header.
func respondWithError(w http.ResponseWriter, err error) {
	statusCode := getStatusCode(err)

	var locked *lockout.LockedError
	if errors.As(err, &locked) {
		w.Header().Set("Retry-After", strconv.Itoa(locked.RemainingSeconds()))
	}

	util.Warn("HTTP error response",
		zap.Error(err),
		zap.Int("status_code", statusCode),
	)
	respondWithJSON(w, statusCode, errBody(err))
}

// getStatusCode determines the appropriate HTTP status code for an error
func getStatusCode(err error) int {
	var locked *lockout.LockedError
	if errors.As(err, &locked) {
		return http.StatusTooManyRequests
	}
	var mismatch *otp.MismatchError
	if errors.As(err, &mismatch) {
		return http.StatusBadRequest
	}

	switch {
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrUserAlreadyExists):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrInvalidCredentials), errors.Is(err, service.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, service.ErrProductNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrDuplicateCartItem):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrEmptyCart):
		return http.StatusNotFound
	case errors.Is(err, otp.ErrNoActiveCode):
		return http.StatusNotFound
	case errors.Is(err, otp.ErrCodeExpired), errors.Is(err, otp.ErrTooManyAttempts):
		return http.StatusBadRequest
	case errors.Is(err, token.ErrInvalidToken), errors.Is(err, token.ErrTokenRevoked):
		return http.StatusUnauthorized
	case errors.Is(err, upload.ErrDisallowedType), errors.Is(err, errPhotoRequired):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// clientMeta extracts the request details carried into the audit trail.
// RealIP middleware has already rewritten RemoteAddr.
func clientMeta(r *http.Request) service.RequestMeta {
	return service.RequestMeta{
		IPAddress: r.RemoteAddr,
		UserAgent: r.UserAgent(),
	}
}
