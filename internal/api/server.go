package api

import (
	"context"
	"crypto/tls"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/sarvex/keywhiz/internal/acl"
	"github.com/sarvex/keywhiz/internal/secretcontroller"
	"github.com/sarvex/keywhiz/internal/store"
)

// Config holds server configuration.
type Config struct {
	ListenAddr  string
	TLSCertFile string
	TLSKeyFile  string
}

// Server is the API server: a thin chi adapter over a SecretController
// and an acl.Engine, plus direct store access for client/group/membership
// administration.
type Server struct {
	controller *secretcontroller.Controller
	acl        *acl.Engine
	clients    store.ClientStore
	groups     store.GroupStore
	members    store.MembershipStore
	cfg        Config
	httpSrv    *http.Server
}

// NewServer builds a fully wired Server.
func NewServer(controller *secretcontroller.Controller, engine *acl.Engine, s store.Store, cfg Config) *Server {
	return &Server{
		controller: controller,
		acl:        engine,
		clients:    s,
		groups:     s,
		members:    s,
		cfg:        cfg,
	}
}

// BuildRouter wires up all routes and returns a chi router.
func (s *Server) BuildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(metricsMiddleware)
	r.Use(accessLogMiddleware)

	r.Handle("/metrics", MetricsHandler())
	r.Get("/health", s.healthHandler)

	r.Group(func(r chi.Router) {
		r.Use(clientCertMiddleware(s.clients))

		r.Route("/automation/v1/secrets", func(r chi.Router) {
			r.Post("/", s.createSecretHandler)
			r.Get("/", s.listSecretsHandler)
			r.Get("/{name}", s.getSecretHandler)
			r.Delete("/{name}", s.deleteSecretHandler)
			r.Get("/{name}/versions", s.listVersionsHandler)
			r.Delete("/{name}/versions/{version}", s.deleteVersionHandler)
		})

		r.Route("/automation/v1/clients", func(r chi.Router) {
			r.Post("/", s.createClientHandler)
			r.Get("/", s.listClientsHandler)
			r.Delete("/{name}", s.deleteClientHandler)
		})

		r.Route("/automation/v1/groups", func(r chi.Router) {
			r.Post("/", s.createGroupHandler)
			r.Get("/", s.listGroupsHandler)
			r.Delete("/{name}", s.deleteGroupHandler)
		})

		r.Route("/automation/v1/memberships", func(r chi.Router) {
			r.Post("/clients/{clientID}/groups/{groupID}", s.enrollHandler)
			r.Delete("/clients/{clientID}/groups/{groupID}", s.evictHandler)
			r.Post("/secrets/{seriesID}/groups/{groupID}", s.allowHandler)
			r.Delete("/secrets/{seriesID}/groups/{groupID}", s.disallowHandler)
		})

		r.Get("/self/secrets", s.secretsForCallerHandler)
		r.Get("/self/secrets/{name}", s.secretForCallerHandler)
	})

	return r
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Start begins listening on the configured address.
func (s *Server) Start() error {
	handler := s.BuildRouter()

	s.refreshSecretsTotal(context.Background())

	s.httpSrv = &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	if s.cfg.TLSCertFile != "" && s.cfg.TLSKeyFile != "" {
		s.httpSrv.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
			ClientAuth: tls.RequireAndVerifyClientCert,
		}
		log.Info().Str("addr", s.cfg.ListenAddr).Msg("starting HTTPS server")
		return s.httpSrv.ListenAndServeTLS(s.cfg.TLSCertFile, s.cfg.TLSKeyFile)
	}

	log.Info().Str("addr", s.cfg.ListenAddr).Msg("starting HTTP server")
	return s.httpSrv.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}
