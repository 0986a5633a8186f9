package api

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/sarvex/keywhiz/internal/apperr"
)

// statusFor implements the kind→status table: NotFound and the
// boundary-rewritten Forbidden both surface as 404 so a caller cannot
// distinguish "absent" from "denied"; Conflict is 409; CryptoIntegrityError
// and StoreError are 500 (never a 4xx, since neither is the caller's
// fault); InvalidInput is 400.
func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.NotFound, apperr.Forbidden:
		return http.StatusNotFound
	case apperr.Conflict:
		return http.StatusConflict
	case apperr.InvalidInput:
		return http.StatusBadRequest
	case apperr.CryptoIntegrityError, apperr.StoreError:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// writeAppError classifies err by apperr.Kind, writes the mapped status
// as a JSON error body, and — for CryptoIntegrityError — emits an
// Error-level log line with page=true so an operator's alerting pipeline
// can page on it. This kind is never swallowed.
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	code := statusFor(kind)

	if kind == apperr.CryptoIntegrityError {
		cryptoIntegrityErrorsTotal.Inc()
		log.Error().
			Str("request_id", requestIDFromCtx(r.Context())).
			Str("path", r.URL.Path).
			Bool("page", true).
			Err(err).
			Msg("crypto integrity error")
	}

	writeJSON(w, code, map[string]string{
		"kind":  kind.String(),
		"error": err.Error(),
	})
}
