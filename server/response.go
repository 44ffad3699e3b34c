package server

import (
	"chatline/apperrors"
	"encoding/json"
	"errors"
	"net/http"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), map[string]any{
		"success": false,
		"error":   apperrors.Code(err),
		"message": err.Error(),
	})
}

// statusFor maps the failure taxonomy to HTTP statuses. Precondition failures
// on membership (already/not a member, sole admin) are client errors, not
// authorization failures.
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperrors.ErrInvalidInput),
		errors.Is(err, apperrors.ErrAlreadyMember),
		errors.Is(err, apperrors.ErrNotMember),
		errors.Is(err, apperrors.ErrSoleAdminCannotLeave):
		return http.StatusBadRequest
	case errors.Is(err, apperrors.ErrNotAuthenticated),
		errors.Is(err, apperrors.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, apperrors.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperrors.ErrUserAlreadyExists):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
