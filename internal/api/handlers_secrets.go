package api

import (
	"encoding/base64"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sarvex/keywhiz/internal/apperr"
	"github.com/sarvex/keywhiz/internal/principal"
	"github.com/sarvex/keywhiz/internal/sanitize"
	"github.com/sarvex/keywhiz/pkg/models"
)

// createSecretRequest is the wire shape for POST /automation/v1/secrets.
// SecretBase64 is the plaintext, base64-encoded, never the envelope.
type createSecretRequest struct {
	Name              string            `json:"name"`
	SecretBase64      string            `json:"secret"`
	Description       string            `json:"description,omitempty"`
	Version           string            `json:"version,omitempty"`
	AutoVersion       bool              `json:"autoVersion,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
	Type              string            `json:"type,omitempty"`
	GenerationOptions map[string]string `json:"generationOptions,omitempty"`
}

func (s *Server) createSecretHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := principal.RequireAutomationClient(mustPrincipal(r))
	if !ok {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "automation client required"})
		return
	}

	var req createSecretRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, r, apperr.Wrap(apperr.InvalidInput, "malformed request body", err))
		return
	}
	plaintext, err := base64.StdEncoding.DecodeString(req.SecretBase64)
	if err != nil {
		writeAppError(w, r, apperr.Wrap(apperr.InvalidInput, "secret must be base64", err))
		return
	}

	builder := s.controller.Build(req.Name, plaintext, caller.Name())
	if req.Description != "" {
		builder = builder.WithDescription(req.Description)
	}
	if req.Version != "" {
		builder = builder.WithVersion(req.Version)
	} else if req.AutoVersion {
		builder = builder.WithAutoVersion()
	}
	if req.Metadata != nil {
		builder = builder.WithMetadata(req.Metadata)
	}
	if req.Type != "" {
		builder = builder.WithType(req.Type)
	}
	if req.GenerationOptions != nil {
		builder = builder.WithGenerationOptions(req.GenerationOptions)
	}

	secret, err := builder.Create(r.Context())
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	resolved, err := s.resolvedFrom(secret)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	s.refreshSecretsTotal(r.Context())
	writeJSON(w, http.StatusCreated, resolved)
}

func (s *Server) getSecretHandler(w http.ResponseWriter, r *http.Request) {
	if _, ok := principal.RequireAutomationClient(mustPrincipal(r)); !ok {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "automation client required"})
		return
	}
	name := chi.URLParam(r, "name")
	version := r.URL.Query().Get("version")
	if base, v, ok := models.ParseDisplayName(name); ok {
		name, version = base, v
	}

	secret, err := s.controller.GetByNameAndVersion(r.Context(), name, version)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	resolved, err := s.resolvedFrom(secret)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resolved)
}

func (s *Server) listSecretsHandler(w http.ResponseWriter, r *http.Request) {
	secrets, err := s.controller.ListAll(r.Context())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	out := make([]models.SanitizedSecret, 0, len(secrets))
	for _, secret := range secrets {
		sanitized, err := sanitize.Sanitize(secret)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		out = append(out, sanitized)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) listVersionsHandler(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	secrets, err := s.controller.ListAll(r.Context())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	var versions []string
	for _, secret := range secrets {
		if secret.Series.Name == name {
			versions = append(versions, secret.Content.Version)
		}
	}
	if versions == nil {
		writeAppError(w, r, apperr.New(apperr.NotFound, "no such secret"))
		return
	}
	writeJSON(w, http.StatusOK, versions)
}

func (s *Server) deleteSecretHandler(w http.ResponseWriter, r *http.Request) {
	if _, ok := principal.RequireAutomationClient(mustPrincipal(r)); !ok {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "automation client required"})
		return
	}
	name := chi.URLParam(r, "name")
	if err := s.controller.DeleteSeries(r.Context(), name); err != nil {
		writeAppError(w, r, err)
		return
	}
	s.refreshSecretsTotal(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) deleteVersionHandler(w http.ResponseWriter, r *http.Request) {
	if _, ok := principal.RequireAutomationClient(mustPrincipal(r)); !ok {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "automation client required"})
		return
	}
	name := chi.URLParam(r, "name")
	version := chi.URLParam(r, "version")
	if err := s.controller.DeleteVersion(r.Context(), name, version); err != nil {
		writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// secretsForCallerHandler answers "which secrets may I see", applying the
// acl.Engine's group-membership predicate rather than the unrestricted
// controller listing above.
func (s *Server) secretsForCallerHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := principal.RequireAutomationClient(mustPrincipal(r))
	if !ok {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "automation client required"})
		return
	}
	secrets, err := s.acl.SecretsFor(r.Context(), caller.ClientID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	out := make([]models.SanitizedSecret, 0, len(secrets))
	for _, secret := range secrets {
		sanitized, err := sanitize.Sanitize(secret)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		out = append(out, sanitized)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) secretForCallerHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := principal.RequireAutomationClient(mustPrincipal(r))
	if !ok {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "automation client required"})
		return
	}
	name := chi.URLParam(r, "name")
	secret, err := s.acl.GetSecretForClient(r.Context(), caller.ClientID, name)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	resolved, err := s.resolvedFrom(secret)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resolved)
}

// resolvedFrom decrypts secret and returns the full JSON surface,
// including the base64 plaintext. Only reachable from handlers already
// gated to AutomationClient, per C8's "read-ciphertext" restriction.
func (s *Server) resolvedFrom(secret *models.Secret) (models.ResolvedSecret, error) {
	sanitized, err := sanitize.Sanitize(*secret)
	if err != nil {
		return models.ResolvedSecret{}, err
	}
	plaintext, err := s.controller.Decrypt(secret)
	if err != nil {
		return models.ResolvedSecret{}, err
	}
	return models.ResolvedSecret{
		SanitizedSecret: sanitized,
		SecretBase64:    base64.StdEncoding.EncodeToString(plaintext),
	}, nil
}

func mustPrincipal(r *http.Request) principal.AuthPrincipal {
	p, _ := principalFromCtx(r.Context())
	return p
}
