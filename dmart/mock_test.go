package dmart

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// mockDmart is an in-process Dmart service covering login, profile and logout
type mockDmart struct {
	server *httptest.Server

	mu          sync.Mutex
	users       map[string]string
	tokens      map[string]string
	issued      int
	tokenFunc   func(n int) string
	loginDelay  time.Duration
	loginStatus int
	profileCode int
	logoutCode  int
	rejectAll   bool

	logins     int
	profiles   int
	logouts    int
	requestIDs []string
}

func newMockDmart(t *testing.T) *mockDmart {
	t.Helper()

	m := &mockDmart{
		users:     map[string]string{"alice": "secret"},
		tokens:    make(map[string]string),
		tokenFunc: func(n int) string { return fmt.Sprintf("tok-%d", n) },
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /user/login", m.handleLogin)
	mux.HandleFunc("GET /user/profile", m.handleProfile)
	mux.HandleFunc("POST /user/logout", m.handleLogout)

	m.server = httptest.NewServer(mux)
	t.Cleanup(m.server.Close)

	return m
}

func (m *mockDmart) URL() string {
	return m.server.URL
}

func (m *mockDmart) config() Config {
	return Config{URL: m.server.URL, Username: "alice", Password: "secret"}
}

// expire makes the service reject a previously issued token
func (m *mockDmart) expire(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, token)
}

func (m *mockDmart) setPassword(user, password string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user] = password
}

func (m *mockDmart) counts() (logins, profiles, logouts int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.logins, m.profiles, m.logouts
}

func (m *mockDmart) record(r *http.Request) {
	m.requestIDs = append(m.requestIDs, r.Header.Get(RequestIDHeader))
}

func (m *mockDmart) handleLogin(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.logins++
	m.record(r)
	delay := m.loginDelay
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	var body struct {
		Shortname string `json:"shortname"`
		Password  string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeFailed(w, http.StatusUnprocessableEntity, "request", 1, "invalid body")
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.loginStatus != 0 {
		writeFailed(w, m.loginStatus, "internal", 99, "forced failure")
		return
	}

	if pw, ok := m.users[body.Shortname]; !ok || pw != body.Password {
		writeFailed(w, http.StatusUnauthorized, "auth", 10, "Invalid username or password")
		return
	}

	m.issued++
	token := m.tokenFunc(m.issued)
	m.tokens[token] = body.Shortname

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "success",
		"records": []map[string]any{{
			"resource_type": "user",
			"shortname":     body.Shortname,
			"subpath":       "users",
			"attributes": map[string]any{
				"access_token": token,
				"type":         "web",
			},
		}},
	})
}

func (m *mockDmart) handleProfile(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.profiles++
	m.record(r)

	user, ok := m.tokens[strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")]
	if !ok || m.rejectAll {
		writeFailed(w, http.StatusUnauthorized, "jwtauth", 48, "Expired Token")
		return
	}

	if m.profileCode != 0 {
		writeFailed(w, m.profileCode, "db", 220, "profile store unavailable")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "success",
		"records": []map[string]any{{
			"resource_type": "user",
			"shortname":     user,
			"subpath":       "users",
			"attributes": map[string]any{
				"email":       user + "@example.com",
				"displayname": map[string]string{"en": strings.ToUpper(user[:1]) + user[1:]},
				"type":        "web",
				"language":    "en",
				"roles":       []string{"super_admin"},
				"groups":      []string{},
				"permissions": map[string]any{
					"management:users:user": map[string]any{
						"allowed_actions":       []string{"view", "update"},
						"conditions":            []string{},
						"restricted_fields":     []any{},
						"allowed_fields_values": map[string]any{},
					},
				},
				"is_email_verified": true,
			},
		}},
	})
}

func (m *mockDmart) handleLogout(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.logouts++
	m.record(r)

	if m.logoutCode != 0 {
		writeFailed(w, m.logoutCode, "internal", 99, "logout failed")
		return
	}

	delete(m.tokens, strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
	writeJSON(w, http.StatusOK, map[string]any{"status": "success"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeFailed(w http.ResponseWriter, status int, errType string, code int, msg string) {
	writeJSON(w, status, map[string]any{
		"status": "failed",
		"error": map[string]any{
			"type":    errType,
			"code":    code,
			"message": msg,
		},
	})
}
