package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geocheck/attendance-server-go/internal/auth"
	"github.com/geocheck/attendance-server-go/internal/model"
)

const (
	testKey    = "middleware-test-key"
	testIssuer = "attendance-test"
)

func issue(t *testing.T, id model.Identity) string {
	t.Helper()
	token, err := auth.Issue(testKey, testIssuer, id, time.Hour)
	require.NoError(t, err)
	return token
}

func identityEcho(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, GetIdentity(r.Context()))
}

func TestAuthMiddleware(t *testing.T) {
	m := NewAuthMiddleware(auth.NewVerifier(testKey, testIssuer))
	handler := m.Handler(http.HandlerFunc(identityEcho))
	ann := model.Identity{ID: "u1", Name: "Ann", Role: model.RoleParticipant}

	t.Run("bearer header", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/v1/sessions", nil)
		req.Header.Set("Authorization", "Bearer "+issue(t, ann))
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var got model.Identity
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, ann, got)
	})

	t.Run("query token", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/v1/events?token="+issue(t, ann), nil)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("missing token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("GET", "/v1/sessions", nil))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "UNAUTHORIZED")
	})

	t.Run("garbage token", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/v1/sessions", nil)
		req.Header.Set("Authorization", "Bearer not-a-jwt")
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "INVALID_TOKEN")
	})
}

func TestRequireRole(t *testing.T) {
	handler := RequireRole(model.RolePresenter, model.RoleAdmin)(http.HandlerFunc(identityEcho))

	tests := []struct {
		name     string
		identity *model.Identity
		want     int
	}{
		{"presenter", &model.Identity{ID: "t1", Name: "T", Role: model.RolePresenter}, http.StatusOK},
		{"admin", &model.Identity{ID: "a1", Name: "A", Role: model.RoleAdmin}, http.StatusOK},
		{"participant", &model.Identity{ID: "s1", Name: "S", Role: model.RoleParticipant}, http.StatusForbidden},
		{"anonymous", nil, http.StatusUnauthorized},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/v1/sessions", nil)
			if tc.identity != nil {
				req = req.WithContext(WithIdentity(req.Context(), tc.identity))
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	defer func() { log.Logger = prev }()

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(RequestLogger)
	r.Get("/missing", func(w http.ResponseWriter, r *http.Request) {
		zerolog.Ctx(r.Context()).Info().Msg("inside handler")
		w.WriteHeader(http.StatusNotFound)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/missing", nil))

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)

	var inner, access map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &inner))
	require.NoError(t, json.Unmarshal(lines[1], &access))

	assert.NotEmpty(t, inner["requestId"])
	assert.Equal(t, inner["requestId"], access["requestId"])
	assert.Equal(t, "warn", access["level"])
	assert.Equal(t, float64(http.StatusNotFound), access["status"])
	assert.Equal(t, "/missing", access["path"])
}

func TestBodyLimitMiddleware(t *testing.T) {
	readAll := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := io.ReadAll(r.Body); err != nil {
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	handler := NewBodyLimitMiddleware(8).Handler(readAll)

	t.Run("declared length over the limit", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("POST", "/v1/checkins", bytes.NewBufferString(`{"a":"too long"}`)))

		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "PAYLOAD_TOO_LARGE", body["code"])
	})

	t.Run("unknown length is cut off while reading", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/v1/checkins", bytes.NewBufferString(`{"a":"too long"}`))
		req.ContentLength = -1
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})

	t.Run("small body passes", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("POST", "/v1/checkins", bytes.NewBufferString(`{}`)))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("default limit", func(t *testing.T) {
		assert.Equal(t, int64(DefaultMaxBodySize), NewBodyLimitMiddleware(0).maxSize)
	})
}

func TestSecurityHeaders(t *testing.T) {
	handler := NewSecurityHeadersMiddleware(true).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rec.Header().Get("Strict-Transport-Security"))
}
