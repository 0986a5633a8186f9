package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/sarvex/keywhiz/internal/apperr"
	"github.com/sarvex/keywhiz/internal/principal"
	"github.com/sarvex/keywhiz/internal/store"
)

// requestIDMiddleware attaches a UUID request ID to each request.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := newRequestID()
		w.Header().Set("X-Request-ID", id)
		ctx := withRequestID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// responseRecorder captures the status code written by a downstream
// handler so outer middleware can log or count it.
type responseRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rr *responseRecorder) WriteHeader(code int) {
	rr.statusCode = code
	rr.ResponseWriter.WriteHeader(code)
}

// routePattern reads the matched chi route pattern out of the request
// context, falling back to the raw path when chi hasn't recorded one
// (e.g. a 404 for an unmatched route).
func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
		return rc.RoutePattern()
	}
	return r.URL.Path
}

// accessLogMiddleware writes one structured log line per request. The
// core never re-authenticates, so this is the closest thing to an audit
// trail this module owns; it does not persist anywhere, unlike the
// teacher's audit-log store.
func accessLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rr := &responseRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rr, r)

		who := "anonymous"
		if p, ok := principalFromCtx(r.Context()); ok {
			who = p.Name()
		}

		log.Info().
			Str("request_id", requestIDFromCtx(r.Context())).
			Str("method", r.Method).
			Str("route", routePattern(r)).
			Str("principal", who).
			Int("status", rr.statusCode).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}

// clientCertMiddleware asserts an AutomationClient principal from the CN
// of the caller's verified TLS client certificate, looking it up in
// clients by name. A deployment terminating TLS elsewhere may substitute
// a header-based variant; the core downstream of this middleware only
// ever inspects the resulting principal.AuthPrincipal, never a
// certificate or header directly.
func clientCertMiddleware(clients store.ClientStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var cn string
			if r.TLS != nil && len(r.TLS.PeerCertificates) > 0 {
				cn = r.TLS.PeerCertificates[0].Subject.CommonName
			}
			if cn == "" {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing client certificate"})
				return
			}
			client, err := clients.GetClientByName(r.Context(), cn)
			if err != nil {
				writeAppError(w, r, err)
				return
			}
			if !client.Automation {
				writeAppError(w, r, apperr.New(apperr.NotFound, "unknown client"))
				return
			}
			ctx := withPrincipal(r.Context(), principal.AutomationClient{ClientID: client.ID, ClientName: client.Name})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
