package api_test

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sarvex/keywhiz/internal/acl"
	"github.com/sarvex/keywhiz/internal/api"
	"github.com/sarvex/keywhiz/internal/crypto"
	"github.com/sarvex/keywhiz/internal/secretcontroller"
	"github.com/sarvex/keywhiz/internal/store/memstore"
	"github.com/sarvex/keywhiz/pkg/models"
)

type testServer struct {
	router http.Handler
	ctrl   *secretcontroller.Controller
	store  *memstore.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	rootKey, err := crypto.GenerateRootKey()
	require.NoError(t, err)
	ring, err := crypto.NewKeyRing("k1", rootKey)
	require.NoError(t, err)
	s := memstore.New()
	ctrl := secretcontroller.New(s, s, s, crypto.New(ring))
	engine := acl.New(s, s, s, s)
	srv := api.NewServer(ctrl, engine, s, api.Config{})
	return &testServer{router: srv.BuildRouter(), ctrl: ctrl, store: s}
}

// asClient attaches a fake verified client certificate bearing cn as its
// CommonName, standing in for what a TLS-terminating listener would have
// already validated before clientCertMiddleware runs.
func asClient(req *http.Request, cn string) *http.Request {
	cert := &x509.Certificate{Subject: pkix.Name{CommonName: cn}}
	req.TLS = &tls.ConnectionState{PeerCertificates: []*x509.Certificate{cert}}
	return req
}

func TestHealthAndMetricsAreUnauthenticated(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	srv.router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr = httptest.NewRecorder()
	srv.router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestAutomationRoutesRequireClientCertificate(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/automation/v1/secrets", nil)
	rr := httptest.NewRecorder()
	srv.router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestUnknownClientCertificateIsNotFound(t *testing.T) {
	srv := newTestServer(t)

	req := asClient(httptest.NewRequest(http.MethodGet, "/automation/v1/secrets", nil), "stranger")
	rr := httptest.NewRecorder()
	srv.router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

// TestNonAutomationClientCertificateIsRejected covers C8: a clients row
// with automation=false must not pass clientCertMiddleware even if its
// name matches the certificate CN exactly.
func TestNonAutomationClientCertificateIsRejected(t *testing.T) {
	ctx := context.Background()
	srv := newTestServer(t)
	_, err := srv.store.CreateClient(ctx, "human-operator", "", "admin", false)
	require.NoError(t, err)

	req := asClient(httptest.NewRequest(http.MethodGet, "/automation/v1/secrets", nil), "human-operator")
	rr := httptest.NewRecorder()
	srv.router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCreateAndFetchSecretRoundTripThroughHTTP(t *testing.T) {
	ctx := context.Background()
	srv := newTestServer(t)
	_, err := srv.store.CreateClient(ctx, "shuttle", "", "admin", true)
	require.NoError(t, err)

	body, err := json.Marshal(map[string]any{
		"name":   "API_KEY",
		"secret": base64.StdEncoding.EncodeToString([]byte("s3cr3t")),
	})
	require.NoError(t, err)

	req := asClient(httptest.NewRequest(http.MethodPost, "/automation/v1/secrets", bytes.NewReader(body)), "shuttle")
	rr := httptest.NewRecorder()
	srv.router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusCreated, rr.Code)

	var created models.ResolvedSecret
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	assert.Equal(t, "API_KEY", created.Name)
	plaintext, err := base64.StdEncoding.DecodeString(created.SecretBase64)
	require.NoError(t, err)
	assert.Equal(t, "s3cr3t", string(plaintext))

	req = asClient(httptest.NewRequest(http.MethodGet, "/automation/v1/secrets/API_KEY", nil), "shuttle")
	rr = httptest.NewRecorder()
	srv.router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
}

// TestGetSecretAcceptsDisplayNameComposite covers spec invariant 7: a
// caller may address a specific revision through the URL path alone by
// passing "name..version" instead of "name" plus a "?version=" query
// param, per models.DisplayName/ParseDisplayName.
func TestGetSecretAcceptsDisplayNameComposite(t *testing.T) {
	ctx := context.Background()
	srv := newTestServer(t)
	_, err := srv.store.CreateClient(ctx, "shuttle", "", "admin", true)
	require.NoError(t, err)

	created, err := srv.ctrl.Build("API_KEY", []byte("s3cr3t"), "admin").Create(ctx)
	require.NoError(t, err)
	display := models.DisplayName("API_KEY", created.Content.Version)

	req := asClient(httptest.NewRequest(http.MethodGet, "/automation/v1/secrets/"+display, nil), "shuttle")
	rr := httptest.NewRecorder()
	srv.router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var resolved models.ResolvedSecret
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resolved))
	assert.Equal(t, "API_KEY", resolved.Name)
	assert.Equal(t, created.Content.Version, resolved.Version)
}

func TestSanitizedListingNeverIncludesEnvelopeOrPlaintext(t *testing.T) {
	ctx := context.Background()
	srv := newTestServer(t)
	created, err := srv.ctrl.Build("DB_Pass", []byte("hunter2"), "admin").Create(ctx)
	require.NoError(t, err)
	_, err = srv.store.CreateClient(ctx, "admin", "", "admin", true)
	require.NoError(t, err)

	// listSecretsHandler is registered inside the cert-gated group but
	// does not itself require an AutomationClient, only a verified cert.
	req := asClient(httptest.NewRequest(http.MethodGet, "/automation/v1/secrets", nil), "admin")
	rr := httptest.NewRecorder()
	srv.router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var out []models.SanitizedSecret
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, "DB_Pass", out[0].Name)
	assert.NotContains(t, rr.Body.String(), "hunter2")
	assert.NotContains(t, rr.Body.String(), created.Content.EncryptedContent)
}

func TestDuplicateSecretCreateMapsToHTTPConflict(t *testing.T) {
	ctx := context.Background()
	srv := newTestServer(t)
	_, err := srv.store.CreateClient(ctx, "shuttle", "", "admin", true)
	require.NoError(t, err)

	body, err := json.Marshal(map[string]any{
		"name":   "X",
		"secret": base64.StdEncoding.EncodeToString([]byte("p")),
	})
	require.NoError(t, err)

	req := asClient(httptest.NewRequest(http.MethodPost, "/automation/v1/secrets", bytes.NewReader(body)), "shuttle")
	rr := httptest.NewRecorder()
	srv.router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusCreated, rr.Code)

	req = asClient(httptest.NewRequest(http.MethodPost, "/automation/v1/secrets", bytes.NewReader(body)), "shuttle")
	rr = httptest.NewRecorder()
	srv.router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusConflict, rr.Code)
}
