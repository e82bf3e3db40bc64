// Package handlers exposes the admin HTTP surface: sync policy and control,
// reference dictionaries, webhook intake and warehouse introspection.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/brightpulse/bitrix-warehouse/pkg/apperrors"
)

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// statusForError maps the error taxonomy onto HTTP status codes.
func statusForError(err error) (int, string) {
	switch {
	case apperrors.IsAuthentication(err):
		return http.StatusUnauthorized, "bitrix_authentication"
	case apperrors.IsRateLimit(err):
		return http.StatusTooManyRequests, "bitrix_rate_limit"
	case apperrors.IsOperationTimeLimit(err), apperrors.IsAPI(err):
		return http.StatusBadGateway, "bitrix_api"
	case apperrors.IsDatabase(err):
		return http.StatusInternalServerError, "database"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// WriteError classifies err and writes the matching error response.
func WriteError(w http.ResponseWriter, err error) error {
	status, code := statusForError(err)
	return ErrorResponse(w, status, code, err.Error())
}
