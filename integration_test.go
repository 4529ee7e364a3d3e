package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"share-gateway/pkg/bruteforce"
	"share-gateway/pkg/config"
	gatewayhttp "share-gateway/pkg/http"
	"share-gateway/pkg/kv"
	"share-gateway/pkg/logging"
	"share-gateway/pkg/middleware"
	"share-gateway/pkg/proxycache"
	"share-gateway/pkg/ratelimit"
	"share-gateway/pkg/service"
	"share-gateway/pkg/storage"
	"share-gateway/pkg/upstream"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testJWTSecret = "integration-test-secret"

// Mock implementations for testing

type mockShareLinkStorage struct {
	links map[string]*storage.ShareLink
}

func newMockShareLinkStorage() *mockShareLinkStorage {
	return &mockShareLinkStorage{links: make(map[string]*storage.ShareLink)}
}

func (m *mockShareLinkStorage) Create(ctx context.Context, link *storage.ShareLink) error {
	cp := *link
	m.links[link.Code] = &cp
	return nil
}

func (m *mockShareLinkStorage) GetByCode(ctx context.Context, code string) (*storage.ShareLink, error) {
	if link, exists := m.links[code]; exists {
		cp := *link
		return &cp, nil
	}
	return nil, nil
}

func (m *mockShareLinkStorage) ListByOrganizer(ctx context.Context, organizerID string) ([]*storage.ShareLink, error) {
	var out []*storage.ShareLink
	for _, link := range m.links {
		if link.OrganizerID == organizerID {
			cp := *link
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *mockShareLinkStorage) CountByOrganizer(ctx context.Context, organizerID string) (int, error) {
	count := 0
	for _, link := range m.links {
		if link.OrganizerID == organizerID {
			count++
		}
	}
	return count, nil
}

func (m *mockShareLinkStorage) Update(ctx context.Context, link *storage.ShareLink) error {
	cp := *link
	m.links[link.Code] = &cp
	return nil
}

func (m *mockShareLinkStorage) Delete(ctx context.Context, code string) error {
	delete(m.links, code)
	return nil
}

func (m *mockShareLinkStorage) RecordAccess(ctx context.Context, code string, at time.Time) error {
	if link, exists := m.links[code]; exists {
		link.AccessCount++
		link.LastAccessedAt = &at
	}
	return nil
}

// fakeCoreAPI stands in for the ticketing core API.
func fakeCoreAPI(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/ticket_counts":
			json.NewEncoder(w).Encode(map[string]any{
				"events": []map[string]any{
					{
						"event_id":   5,
						"event_name": "Summer Gala",
						"types": []map[string]any{
							{"ticket_type_id": 1, "name": "General", "total": 100, "sold": 55, "available": 45},
						},
					},
				},
			})
		case "/api/participants":
			json.NewEncoder(w).Encode(map[string]any{
				"participants": []map[string]any{
					{"name": "Ada", "email": "ada@example.com", "ticket_type": "General"},
				},
			})
		case "/api/event_availability":
			json.NewEncoder(w).Encode(map[string]any{
				"availability": []map[string]any{
					{"ticket_type_id": 1, "available": 40},
				},
			})
		case "/api/events":
			json.NewEncoder(w).Encode(map[string]any{"events": []any{}})
		default:
			http.NotFound(w, r)
		}
	}))
}

type testEnv struct {
	router  *chi.Mux
	storage *mockShareLinkStorage
	core    *httptest.Server
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	core := fakeCoreAPI(t)
	t.Cleanup(core.Close)

	logger := logging.NewLogger(logging.LevelError)
	store := kv.NewMemStore()

	upstreamCfg := config.UpstreamConfig{
		BaseURL:             core.URL,
		APIKey:              "test-api-key",
		MetadataTimeout:     2 * time.Second,
		AvailabilityTimeout: 2 * time.Second,
		AvailabilityTTL:     30 * time.Second,
	}
	policy := upstream.DefaultCachePolicy(upstreamCfg.AvailabilityTTL)
	client := upstream.NewClient(upstreamCfg, proxycache.NewCache(store), policy, logger)

	mockStorage := newMockShareLinkStorage()
	limiter := ratelimit.NewLimiter(store, logger)
	guard := bruteforce.NewGuard(store, logger)

	shareService := service.NewShareService(mockStorage, client, client, limiter, guard, logger, service.Config{
		MaxLinksPerOrganizer:  50,
		MaxEventsPerLink:      20,
		CodeLength:            10,
		PublicRequests:        30,
		PublicWindow:          time.Minute,
		BruteForceMaxAttempts: 5,
		BruteForceWindow:      300 * time.Second,
		BruteForceLockout:     600 * time.Second,
	})

	auth := middleware.NewAuthMiddleware(middleware.AuthConfig{
		Secret: testJWTSecret,
		Issuer: "ticketing-core",
	})

	handler := gatewayhttp.NewHandler(shareService, client, "http://localhost:8080", nil, nil)

	r := chi.NewRouter()
	gatewayhttp.SetupRoutes(r, handler, auth, limiter, gatewayhttp.RouteConfig{
		APIRequests: 1000,
		APIWindow:   time.Minute,
	})

	return &testEnv{router: r, storage: mockStorage, core: core}
}

func organizerToken(t *testing.T, organizerID string) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   organizerID,
		Issuer:    "ticketing-core",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, struct {
		Scope string `json:"scope"`
		jwt.RegisteredClaims
	}{Scope: "share_links:read share_links:write", RegisteredClaims: claims})
	signed, err := token.SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return signed
}

func createShareLink(t *testing.T, env *testEnv, token string, body map[string]any) map[string]any {
	t.Helper()
	jsonData, _ := json.Marshal(body)
	req := httptest.NewRequest("POST", "/v1/share-links", bytes.NewBuffer(jsonData))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestCreateShareLinkEndpoint(t *testing.T) {
	env := setupTestEnv(t)
	token := organizerToken(t, "org-1")

	resp := createShareLink(t, env, token, map[string]any{
		"name":      "Sales overview",
		"event_ids": []any{5, 5, -2, "junk"},
	})

	assert.Contains(t, resp, "code")
	assert.Contains(t, resp, "share_url")
	assert.Equal(t, "Sales overview", resp["name"])
	assert.Equal(t, []any{float64(5)}, resp["event_ids"])
	assert.Equal(t, false, resp["has_password"])
}

func TestCreateRequiresAuth(t *testing.T) {
	env := setupTestEnv(t)

	jsonData, _ := json.Marshal(map[string]any{"event_ids": []any{5}})
	req := httptest.NewRequest("POST", "/v1/share-links", bytes.NewBuffer(jsonData))
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestListShareLinks(t *testing.T) {
	env := setupTestEnv(t)
	token := organizerToken(t, "org-1")

	createShareLink(t, env, token, map[string]any{"name": "one", "event_ids": []any{5}})
	createShareLink(t, env, organizerToken(t, "org-2"), map[string]any{"name": "other", "event_ids": []any{5}})

	req := httptest.NewRequest("GET", "/v1/share-links", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp, 1)
	assert.Equal(t, "one", resp[0]["name"])
}

func TestPublicReadEndpoint(t *testing.T) {
	env := setupTestEnv(t)
	token := organizerToken(t, "org-1")

	created := createShareLink(t, env, token, map[string]any{
		"name": "Sales", "event_ids": []any{5},
	})
	code := created["code"].(string)

	req := httptest.NewRequest("GET", "/s/"+code, nil)
	req.RemoteAddr = "203.0.113.9:4242"
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var view map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Equal(t, "Sales", view["name"])

	events := view["events"].([]any)
	require.Len(t, events, 1)
	types := events[0].(map[string]any)["types"].([]any)
	tt := types[0].(map[string]any)

	// Snapshot total with live availability merged in.
	assert.Equal(t, float64(100), tt["total"])
	assert.Equal(t, float64(40), tt["available"])
	assert.Equal(t, float64(60), tt["sold"])
}

func TestPublicReadUnknownCode(t *testing.T) {
	env := setupTestEnv(t)

	req := httptest.NewRequest("GET", "/s/zzzzzzzzzz", nil)
	req.RemoteAddr = "203.0.113.9:4242"
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPublicReadDeactivatedLink(t *testing.T) {
	env := setupTestEnv(t)
	token := organizerToken(t, "org-1")

	created := createShareLink(t, env, token, map[string]any{"event_ids": []any{5}})
	code := created["code"].(string)

	jsonData, _ := json.Marshal(map[string]any{"is_active": false})
	req := httptest.NewRequest("PATCH", "/v1/share-links/"+code, bytes.NewBuffer(jsonData))
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest("GET", "/s/"+code, nil)
	req.RemoteAddr = "203.0.113.9:4242"
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusGone, w.Code)
}

func TestPublicReadPasswordFlow(t *testing.T) {
	env := setupTestEnv(t)
	token := organizerToken(t, "org-1")

	created := createShareLink(t, env, token, map[string]any{
		"event_ids": []any{5},
		"password":  "hunter2hunter2",
	})
	code := created["code"].(string)
	assert.Equal(t, true, created["has_password"])

	// No password: challenged.
	req := httptest.NewRequest("GET", "/s/"+code, nil)
	req.RemoteAddr = "203.0.113.9:4242"
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Wrong password in the body: rejected.
	jsonData, _ := json.Marshal(map[string]any{"password": "wrong"})
	req = httptest.NewRequest("POST", "/s/"+code, bytes.NewBuffer(jsonData))
	req.RemoteAddr = "203.0.113.9:4242"
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// A password in the query string is ignored, not accepted.
	req = httptest.NewRequest("GET", "/s/"+code+"?password=hunter2hunter2", nil)
	req.RemoteAddr = "203.0.113.9:4242"
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Correct password in the body: served.
	jsonData, _ = json.Marshal(map[string]any{"password": "hunter2hunter2"})
	req = httptest.NewRequest("POST", "/s/"+code, bytes.NewBuffer(jsonData))
	req.RemoteAddr = "203.0.113.9:4242"
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestPublicReadLockout(t *testing.T) {
	env := setupTestEnv(t)
	token := organizerToken(t, "org-1")

	created := createShareLink(t, env, token, map[string]any{
		"event_ids": []any{5},
		"password":  "hunter2hunter2",
	})
	code := created["code"].(string)

	for i := 0; i < 5; i++ {
		jsonData, _ := json.Marshal(map[string]any{"password": "wrong"})
		req := httptest.NewRequest("POST", "/s/"+code, bytes.NewBuffer(jsonData))
		req.RemoteAddr = "203.0.113.9:4242"
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, req)
		require.Equal(t, http.StatusForbidden, w.Code)
	}

	jsonData, _ := json.Marshal(map[string]any{"password": "hunter2hunter2"})
	req := httptest.NewRequest("POST", "/s/"+code, bytes.NewBuffer(jsonData))
	req.RemoteAddr = "203.0.113.9:4242"
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "600", w.Header().Get("Retry-After"))
}

func TestAutomatedRefreshSkipsAccessStats(t *testing.T) {
	env := setupTestEnv(t)
	token := organizerToken(t, "org-1")

	created := createShareLink(t, env, token, map[string]any{"event_ids": []any{5}})
	code := created["code"].(string)

	req := httptest.NewRequest("GET", "/s/"+code, nil)
	req.RemoteAddr = "203.0.113.9:4242"
	req.Header.Set("X-Automated-Refresh", "true")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest("GET", "/s/"+code, nil)
	req.RemoteAddr = "203.0.113.9:4242"
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, 1, env.storage.links[code].AccessCount)
}

func TestDeleteShareLinkEndpoint(t *testing.T) {
	env := setupTestEnv(t)
	token := organizerToken(t, "org-1")

	created := createShareLink(t, env, token, map[string]any{"event_ids": []any{5}})
	code := created["code"].(string)

	req := httptest.NewRequest("DELETE", "/v1/share-links/"+code, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)

	// Deleting someone else's link looks like a missing link.
	created = createShareLink(t, env, token, map[string]any{"event_ids": []any{5}})
	req = httptest.NewRequest("DELETE", "/v1/share-links/"+created["code"].(string), nil)
	req.Header.Set("Authorization", "Bearer "+organizerToken(t, "org-2"))
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestProxyEndpoint(t *testing.T) {
	env := setupTestEnv(t)
	token := organizerToken(t, "org-1")

	req := httptest.NewRequest("GET", "/v1/proxy/events", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"events":[]}`, w.Body.String())
}

func TestHealthCheck(t *testing.T) {
	env := setupTestEnv(t)

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
}

func TestCorrelationIDHeader(t *testing.T) {
	env := setupTestEnv(t)

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	assert.NotEmpty(t, w.Header().Get("X-Correlation-ID"))
}
