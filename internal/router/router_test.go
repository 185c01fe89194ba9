package router

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-secrets/internal/credential"
)

type deadSource struct{}

func (deadSource) Read([]byte) (int, error) { return 0, errors.New("getrandom failed") }

func newServer(opts ...credential.Option) http.Handler {
	logger := zap.NewNop().Sugar()
	gen := credential.NewGenerator(opts...)
	return RegisterRoutes(logger, credential.NewHandler(gen, logger))
}

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	newServer().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/service-secrets/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestGenerateBundle(t *testing.T) {
	now := time.Date(2025, 8, 20, 12, 0, 0, 0, time.UTC)
	rec := httptest.NewRecorder()
	newServer(credential.WithClock(func() time.Time { return now })).
		ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/service-secrets/bundles", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.NotEmpty(t, rec.Header().Get("X-Bundle-Id"))

	b, err := credential.ParseEnv(strings.NewReader(rec.Body.String()))
	require.NoError(t, err)
	assert.Len(t, b.Entries, len(credential.DefaultDefinitions()))

	key, _ := b.Get(credential.JWTSecret)
	svc, _ := b.Get(credential.ServiceRoleKey)
	_, err = credential.VerifyServiceToken(svc, key, now)
	assert.NoError(t, err)
}

func TestGenerateBundle_MethodNotAllowed(t *testing.T) {
	rec := httptest.NewRecorder()
	newServer().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/service-secrets/bundles", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestGenerateBundle_RandomSourceDown(t *testing.T) {
	rec := httptest.NewRecorder()
	newServer(credential.WithSource(deadSource{})).
		ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/service-secrets/bundles", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotContains(t, rec.Body.String(), "=")
}
