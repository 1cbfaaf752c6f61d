package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nexbit/backoffice/internal/api"
	"github.com/nexbit/backoffice/internal/api/middleware"
	"github.com/nexbit/backoffice/internal/api/problem"
	"github.com/nexbit/backoffice/internal/config"
	"github.com/nexbit/backoffice/internal/idempotency"
	"github.com/nexbit/backoffice/internal/notifier"
	"github.com/nexbit/backoffice/internal/repository"
	"github.com/nexbit/backoffice/internal/service"
	"github.com/nexbit/backoffice/internal/twofa"
)

const (
	testJWTSecret   = "test-secret-0123456789-test-secret"
	testJWTIssuer   = "nexbit-backoffice-test"
	testJWTAudience = "nexbit-admin-test"
)

// setupRouter wires the router without live Postgres or redis. The cases
// below only exercise paths that reject before any storage call.
func setupRouter() http.Handler {
	middleware.SetJWTSecret(testJWTSecret)
	middleware.SetJWTValidation(testJWTIssuer, testJWTAudience)

	cfg := &config.Config{
		HTTPPort:           "0",
		JWTSecret:          testJWTSecret,
		JWTIssuer:          testJWTIssuer,
		JWTAudience:        testJWTAudience,
		PublicRateLimitRPS: 1000,
		AuthRateLimitRPS:   1000,
		SweepInterval:      time.Second,
		SweepBatchSize:     5,
		IdempotencyTTL:     time.Hour,
	}
	repo := repository.NewRepository(nil)
	engine := service.NewStatusEngine(repo, notifier.Log{}, service.Policy{
		DepositGrace:      10 * time.Second,
		WithdrawalTimeout: time.Minute,
	})
	idemStore := idempotency.NewStore(nil, nil, cfg.IdempotencyTTL)
	router := api.NewRouter(cfg, zap.NewNop(), nil, repo, engine, idemStore, nil, twofa.NewStore(nil), notifier.Log{})
	return router.Routes()
}

func signToken(t *testing.T, isSuper bool, issuer string) string {
	t.Helper()
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"admin_id": "admin-1",
		"username": "ops",
		"is_super": isSuper,
		"sub":      "admin-1",
		"iss":      issuer,
		"aud":      testJWTAudience,
		"iat":      now.Unix(),
		"exp":      now.Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return signed
}

func doRequest(t *testing.T, h http.Handler, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) problem.Details {
	t.Helper()
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	var details problem.Details
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &details))
	return details
}

func TestHealthLive(t *testing.T) {
	h := setupRouter()
	rec := doRequest(t, h, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestOpenAPIServed(t *testing.T) {
	h := setupRouter()
	rec := doRequest(t, h, http.MethodGet, "/openapi.yaml", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/yaml", rec.Header().Get("Content-Type"))
	assert.True(t, strings.Contains(rec.Body.String(), "Nexbit Back-Office API"))
}

func TestAuthHeaderRequired(t *testing.T) {
	h := setupRouter()
	rec := doRequest(t, h, http.MethodGet, "/api/me", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	details := decodeProblem(t, rec)
	assert.Equal(t, http.StatusUnauthorized, details.Status)
}

func TestAuthRejectsGarbageToken(t *testing.T) {
	h := setupRouter()
	rec := doRequest(t, h, http.MethodGet, "/api/me", "not-a-jwt", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthRejectsWrongIssuer(t *testing.T) {
	h := setupRouter()
	token := signToken(t, false, "someone-else")
	rec := doRequest(t, h, http.MethodGet, "/api/me", token, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminRoutesRequireSuper(t *testing.T) {
	h := setupRouter()
	token := signToken(t, false, testJWTIssuer)
	rec := doRequest(t, h, http.MethodGet, "/api/admins", token, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
	details := decodeProblem(t, rec)
	assert.Equal(t, http.StatusForbidden, details.Status)
}

func TestTraceHeaderPropagated(t *testing.T) {
	h := setupRouter()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Trace-ID", "trace-abc")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "trace-abc", rec.Header().Get("X-Trace-ID"))
}

func TestLoginRejectsInvalidBody(t *testing.T) {
	h := setupRouter()
	req := httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMovementsRejectUnknownKindFilter(t *testing.T) {
	h := setupRouter()
	token := signToken(t, false, testJWTIssuer)
	rec := doRequest(t, h, http.MethodGet, "/api/movements?kind=transfer", token, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMovementsRejectUnknownStatusFilter(t *testing.T) {
	h := setupRouter()
	token := signToken(t, false, testJWTIssuer)
	rec := doRequest(t, h, http.MethodGet, "/api/movements?status=exploded", token, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// processing is a withdrawal-only status, valid as an unkinded filter
	// but invalid when scoped to deposits.
	rec = doRequest(t, h, http.MethodGet, "/api/deposits?status=processing", token, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSetStatusRejectsUnknownKind(t *testing.T) {
	h := setupRouter()
	token := signToken(t, false, testJWTIssuer)
	rec := doRequest(t, h, http.MethodPost, "/api/movements/transfer/abc/status", token,
		map[string]string{"status": "done"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdjustRejectsBadAmount(t *testing.T) {
	h := setupRouter()
	token := signToken(t, false, testJWTIssuer)

	rec := doRequest(t, h, http.MethodPost, "/api/members/m1/adjust", token,
		map[string]string{"delta": "not-a-number", "reason": "test"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, h, http.MethodPost, "/api/members/m1/adjust", token,
		map[string]string{"delta": "0", "reason": "test"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, h, http.MethodPost, "/api/members/m1/adjust", token,
		map[string]string{"delta": "10.00"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateDepositRequiresIdempotencyKey(t *testing.T) {
	h := setupRouter()
	token := signToken(t, false, testJWTIssuer)
	rec := doRequest(t, h, http.MethodPost, "/api/deposits", token,
		map[string]string{"member_id": "m1", "amount": "10.00"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	details := decodeProblem(t, rec)
	assert.True(t, strings.Contains(details.Type, "idempotency/missing-key"))
}

func TestSettingsRejectInvalidDuration(t *testing.T) {
	h := setupRouter()
	token := signToken(t, false, testJWTIssuer)
	rec := doRequest(t, h, http.MethodPost, "/api/settings", token,
		map[string]string{"deposit_grace": "soon"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
