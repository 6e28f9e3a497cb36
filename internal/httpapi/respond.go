package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"

	"twoway-sms/internal/apperr"
	"twoway-sms/internal/logger"
)

const maxBodyBytes = 1 << 20

var validate = validator.New(validator.WithRequiredStructEnabled())

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error().Err(err).Msg("encode response")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logger.Error().Err(err).Str("request_id", RequestIDFrom(r.Context())).
			Str("path", r.URL.Path).Msg("request failed")
	}
	writeJSON(w, status, map[string]string{"error": apperr.PublicMessage(err)})
}

// decodeJSON reads a JSON body into dst and runs its validate tags. Any
// failure maps to a 400 with msg.
func decodeJSON(r *http.Request, dst any, msg string) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.Validation(msg)
		}
		return apperr.Validation("Invalid JSON body")
	}
	if err := validate.Struct(dst); err != nil {
		return apperr.Validation(msg)
	}
	return nil
}

type okResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}
