package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/tradedesk-app/tradedesk-backend/pkg/errors"
)

type memoryStore struct {
	data map[string]string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: make(map[string]string)}
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	str, _ := value.(string)
	m.data[key] = str
	return true, nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("fake:%s:%s", scope, id)
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func TestRouteTTLSelection(t *testing.T) {
	tests := []struct {
		name   string
		method string
		path   string
		want   time.Duration
		ok     bool
	}{
		{"broadcast", http.MethodPost, "/api/v1/callouts", criticalIdempotencyTTL, true},
		{"select winner", http.MethodPost, "/api/v1/callouts/123/select", criticalIdempotencyTTL, true},
		{"complete", http.MethodPost, "/api/v1/callouts/456/complete", criticalIdempotencyTTL, true},
		{"respond", http.MethodPost, "/api/v1/responses/789/respond", defaultIdempotencyTTL, true},
		{"mark read", http.MethodPost, "/api/v1/notifications/abc/read", defaultIdempotencyTTL, true},
		{"non idempotent", http.MethodGet, "/api/v1/callouts", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ttl, ok := routeTTL(tt.method, tt.path)
			require.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.want, ttl)
			}
		})
	}
}

func TestRequestPathTrimsTrailingSlash(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/callouts/", nil)
	assert.Equal(t, "/api/v1/callouts", requestPath(req))

	root := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, "/", requestPath(root))
}

func TestIdempotencyMiddlewareRequiresHeader(t *testing.T) {
	mw := Idempotency(newMemoryStore(), nil)
	handlerCalled := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
		w.WriteHeader(http.StatusCreated)
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/callouts", strings.NewReader(`{"foo":"bar"}`))
	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, req)

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.False(t, handlerCalled, "handler must not run without an idempotency key")
}

// The middleware is installed with r.Use inside the /api/v1 group, where chi
// has not resolved the leaf route yet. Mount it the same way here and drive
// real requests through the router to prove the guard still engages.
func TestIdempotencyMiddlewareEngagesUnderGroupRouting(t *testing.T) {
	mw := Idempotency(newMemoryStore(), nil)
	var broadcasts int

	router := chi.NewRouter()
	router.Route("/api/v1", func(r chi.Router) {
		r.Use(mw)
		r.Route("/callouts", func(r chi.Router) {
			r.Post("/", func(w http.ResponseWriter, _ *http.Request) {
				broadcasts++
				w.WriteHeader(http.StatusCreated)
				_, _ = w.Write([]byte(`{"id":"c1"}`))
			})
			r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
			})
		})
	})

	// Missing key on a guarded route is rejected before the handler runs.
	bare := httptest.NewRequest(http.MethodPost, "/api/v1/callouts", strings.NewReader(`{"incident_type":"leak"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, bare)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, 0, broadcasts)

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/callouts", strings.NewReader(`{"incident_type":"leak"}`))
		req.Header.Set("Idempotency-Key", "key-1")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	first := send()
	require.Equal(t, http.StatusCreated, first.Code)
	require.Equal(t, 1, broadcasts)

	replay := send()
	assert.Equal(t, http.StatusCreated, replay.Code)
	assert.JSONEq(t, `{"id":"c1"}`, replay.Body.String())
	assert.Equal(t, 1, broadcasts, "duplicate must be served from the stored record")

	// Reads pass straight through.
	list := httptest.NewRequest(http.MethodGet, "/api/v1/callouts", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, list)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestIdempotencyMiddlewareReplaysStoredResponse(t *testing.T) {
	mw := Idempotency(newMemoryStore(), nil)
	var calls int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/callouts", strings.NewReader(`{"foo":"bar"}`))
		req.Header.Set("Idempotency-Key", "abc")
		rec := httptest.NewRecorder()
		mw(handler).ServeHTTP(rec, req)
		return rec
	}

	first := send()
	require.Equal(t, http.StatusAccepted, first.Code)

	replay := send()
	assert.Equal(t, http.StatusAccepted, replay.Code)
	assert.Equal(t, "application/json", replay.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"ok":true}`, replay.Body.String())
	assert.Equal(t, 1, calls, "second request must be served from the stored record")
}

func TestIdempotencyMiddlewareDetectsBodyChange(t *testing.T) {
	mw := Idempotency(newMemoryStore(), nil)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	first := httptest.NewRequest(http.MethodPost, "/api/v1/callouts", strings.NewReader(`{"foo":"bar"}`))
	first.Header.Set("Idempotency-Key", "xyz")
	mw(handler).ServeHTTP(httptest.NewRecorder(), first)

	second := httptest.NewRequest(http.MethodPost, "/api/v1/callouts", strings.NewReader(`{"foo":"diff"}`))
	second.Header.Set("Idempotency-Key", "xyz")
	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, second)

	require.Equal(t, http.StatusConflict, resp.Code)
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &payload))
	assert.Equal(t, string(pkgerrors.CodeIdempotency), payload.Error.Code)
}
