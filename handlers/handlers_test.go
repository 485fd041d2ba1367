package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/flock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/relaybots/relay/backend/go-services/internal/accounts"
	"github.com/relaybots/relay/backend/go-services/internal/auth"
	"github.com/relaybots/relay/backend/go-services/internal/console"
	"github.com/relaybots/relay/backend/go-services/internal/guard"
	"github.com/relaybots/relay/backend/go-services/internal/sessions"
	"github.com/relaybots/relay/backend/go-services/internal/store"
)

type testServer struct {
	engine *gin.Engine
	guard  *guard.Guard
}

func newTestServer(t *testing.T, lockTimeout time.Duration, opts ...console.Option) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	tbl, err := accounts.FromPasswords(map[string]string{"admin": "admin123", "support": "support123"}, bcrypt.MinCost)
	require.NoError(t, err)
	authSvc := auth.NewService(tbl, sessions.NewService(sessions.NewMemoryRepository()), []byte("handlers-test-secret-xxxxxxxxxxxx"), time.Hour)

	g := guard.New(store.NewFileStore(filepath.Join(t.TempDir(), "db.json")), lockTimeout)

	r := gin.New()
	NewAuthHandler(authSvc, false).Register(r.Group("/"))
	NewConsoleHandler(console.NewService(g, opts...)).Register(r.Group("/"), authSvc)
	return &testServer{engine: r, guard: g}
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func (s *testServer) login(t *testing.T, user, pass string) string {
	t.Helper()
	w := s.do(t, http.MethodPost, "/auth/login", "", map[string]string{"username": user, "password": pass})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Token     string `json:"token"`
		ExpiresIn int    `json:"expires_in"`
		Identity  string `json:"identity"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, user, resp.Identity)
	require.Greater(t, resp.ExpiresIn, 0)
	return resp.Token
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestLogin_SetsCookieAndRejectsBadPassword(t *testing.T) {
	s := newTestServer(t, time.Second)

	w := s.do(t, http.MethodPost, "/auth/login", "", map[string]string{"username": "admin", "password": "admin123"})
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Header().Get("Set-Cookie"), "relay_session=")

	w = s.do(t, http.MethodPost, "/auth/login", "", map[string]string{"username": "admin", "password": "nope"})
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, false, decode(t, w)["success"])

	w = s.do(t, http.MethodPost, "/auth/login", "", `{"username":"admin"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLogout_RevokesSession(t *testing.T) {
	s := newTestServer(t, time.Second)
	tok := s.login(t, "support", "support123")

	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/summary", tok, nil).Code)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/auth/logout", tok, nil).Code)
	require.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/api/summary", tok, nil).Code)
}

func TestConsoleRoutes_RequireSession(t *testing.T) {
	s := newTestServer(t, time.Second)
	for _, r := range []struct{ method, path string }{
		{http.MethodGet, "/api/summary"},
		{http.MethodGet, "/api/users"},
		{http.MethodGet, "/api/devices"},
		{http.MethodGet, "/api/messages"},
		{http.MethodGet, "/messages"},
		{http.MethodGet, "/settings"},
		{http.MethodPost, "/settings"},
		{http.MethodPost, "/api/send_message"},
		{http.MethodPost, "/api/backup"},
		{http.MethodPost, "/auth/logout"},
	} {
		w := s.do(t, r.method, r.path, "", nil)
		require.Equal(t, http.StatusUnauthorized, w.Code, r.path)
	}
}

func TestUnauthenticatedMutation_LeavesFileByteIdentical(t *testing.T) {
	s := newTestServer(t, time.Second)
	tok := s.login(t, "admin", "admin123")
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/settings", tok, map[string]string{"welcome": "hi"}).Code)

	before, err := os.ReadFile(s.guard.Store().Path())
	require.NoError(t, err)

	w := s.do(t, http.MethodPost, "/api/send_message", "forged.token.value", map[string]interface{}{"chat_id": 42, "text": "spam"})
	require.Equal(t, http.StatusUnauthorized, w.Code)
	w = s.do(t, http.MethodPost, "/settings", "", map[string]string{"welcome": "pwned"})
	require.Equal(t, http.StatusUnauthorized, w.Code)

	after, err := os.ReadFile(s.guard.Store().Path())
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func TestMessagesPagination(t *testing.T) {
	s := newTestServer(t, time.Second)
	require.NoError(t, s.guard.WithDocument(context.Background(), func(doc *store.Document) error {
		for i := 0; i < 45; i++ {
			if _, err := doc.AppendMessage(store.Message{ChatID: "7", Text: fmt.Sprintf("m%d", i)}); err != nil {
				return err
			}
		}
		return nil
	}))
	tok := s.login(t, "admin", "admin123")

	cases := []struct {
		query string
		page  float64
		count int
		first string
	}{
		{"", 1, 20, "m0"},
		{"?page=2", 2, 20, "m20"},
		{"?page=3", 3, 5, "m40"},
		{"?page=4", 4, 0, ""},
		{"?page=0", 1, 20, "m0"},
		{"?page=abc", 1, 20, "m0"},
	}
	for _, tc := range cases {
		w := s.do(t, http.MethodGet, "/messages"+tc.query, tok, nil)
		require.Equal(t, http.StatusOK, w.Code)
		body := decode(t, w)
		require.Equal(t, tc.page, body["page"], tc.query)
		require.Equal(t, float64(3), body["total_pages"])
		require.Equal(t, float64(20), body["per_page"])
		msgs := body["messages"].([]interface{})
		require.Len(t, msgs, tc.count, tc.query)
		if tc.count > 0 {
			require.Equal(t, tc.first, msgs[0].(map[string]interface{})["text"])
		}
	}
}

func TestSendMessage(t *testing.T) {
	s := newTestServer(t, time.Second)
	tok := s.login(t, "admin", "admin123")

	w := s.do(t, http.MethodPost, "/api/send_message", tok, map[string]interface{}{"chat_id": 12345, "text": "hello"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, true, decode(t, w)["success"])

	w = s.do(t, http.MethodPost, "/api/send_message", tok, map[string]interface{}{"chat_id": "12345", "text": ""})
	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decode(t, w)
	require.Equal(t, false, body["success"])
	require.Equal(t, "text", body["field"])

	w = s.do(t, http.MethodPost, "/api/send_message", tok, `not json`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/messages", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var msgs []map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &msgs))
	require.Len(t, msgs, 1)
	require.Equal(t, float64(12345), msgs[0]["chat_id"])
	require.Equal(t, "outbound", msgs[0]["direction"])
	require.Equal(t, "admin", msgs[0]["sender"])
}

func TestSettingsRoundTrip(t *testing.T) {
	s := newTestServer(t, time.Second)
	tok := s.login(t, "admin", "admin123")

	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/settings", tok, map[string]string{"a": "1", "b": "2"}).Code)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/settings", tok, map[string]string{"b": "3"}).Code)

	w := s.do(t, http.MethodGet, "/settings", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"b":"3"}`, w.Body.String())

	w = s.do(t, http.MethodPost, "/settings", tok, `["not","an","object"]`)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMutation_LockTimeoutIs503(t *testing.T) {
	s := newTestServer(t, 100*time.Millisecond)
	tok := s.login(t, "admin", "admin123")

	holder := flock.New(s.guard.LockPath())
	locked, err := holder.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	defer holder.Unlock()

	w := s.do(t, http.MethodPost, "/settings", tok, map[string]string{"a": "1"})
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.Equal(t, "lock_timeout", decode(t, w)["code"])

	// reads do not take the lock
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/settings", tok, nil).Code)
}

func TestCorruptStoreIs500(t *testing.T) {
	s := newTestServer(t, time.Second)
	tok := s.login(t, "admin", "admin123")
	require.NoError(t, os.WriteFile(s.guard.Store().Path(), []byte("{not json"), 0o644))

	w := s.do(t, http.MethodGet, "/api/summary", tok, nil)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.Equal(t, "corrupt_store", decode(t, w)["code"])

	w = s.do(t, http.MethodPost, "/settings", tok, map[string]string{"a": "1"})
	require.Equal(t, http.StatusInternalServerError, w.Code)
	raw, err := os.ReadFile(s.guard.Store().Path())
	require.NoError(t, err)
	require.Equal(t, "{not json", string(raw))
}

func TestBackupUnavailableIs503(t *testing.T) {
	s := newTestServer(t, time.Second)
	tok := s.login(t, "admin", "admin123")
	w := s.do(t, http.MethodPost, "/api/backup", tok, nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestSummaryAndLists(t *testing.T) {
	s := newTestServer(t, time.Second)
	require.NoError(t, s.guard.WithDocument(context.Background(), func(doc *store.Document) error {
		if _, _, err := doc.UpsertUser(store.User{UserID: "1", Username: "bob"}); err != nil {
			return err
		}
		_, _, err := doc.RegisterDevice("d1", "1", "2024-05-01T10:00:00Z")
		return err
	}))
	tok := s.login(t, "support", "support123")

	w := s.do(t, http.MethodGet, "/api/summary", tok, nil)
	require.JSONEq(t, `{"users":1,"devices":1,"messages":0}`, w.Body.String())

	w = s.do(t, http.MethodGet, "/api/devices", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"registered_at":"2024-05-01T10:00:00Z"`)
	require.Contains(t, w.Body.String(), `"last_upload":null`)
}
