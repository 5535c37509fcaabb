package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/vedran77/huddle/internal/domain"
	"github.com/vedran77/huddle/pkg/validator"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}

func writeValidationErrors(w http.ResponseWriter, errs validator.ValidationErrors) {
	writeJSON(w, http.StatusBadRequest, map[string]any{
		"error": map[string]any{
			"code":    domain.CodeInvalidArgument,
			"message": "Validation failed",
			"fields":  errs,
		},
	})
}

// statusFor maps a wire code to its HTTP status.
func statusFor(code string) int {
	switch code {
	case domain.CodeInvalidArgument:
		return http.StatusBadRequest
	case domain.CodeNotFound:
		return http.StatusNotFound
	case domain.CodePermissionDenied:
		return http.StatusForbidden
	case domain.CodeInvalidState, domain.CodeConflict:
		return http.StatusConflict
	case domain.CodeUnauthenticated:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError answers with the wire code of err and its generic
// description. The full error is logged with the operation name.
func writeServiceError(w http.ResponseWriter, log zerolog.Logger, op string, err error) {
	code := domain.Code(err)
	if code == domain.CodeInternal {
		log.Error().Err(err).Str("op", op).Msg("request failed")
	} else {
		log.Debug().Err(err).Str("op", op).Str("code", code).Msg("request rejected")
	}
	writeError(w, statusFor(code), code, domain.PublicMessage(code))
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	return dec.Decode(dst)
}
