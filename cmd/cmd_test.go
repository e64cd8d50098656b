package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/s0up4200/godmart/config"
	"github.com/s0up4200/godmart/dmart"
)

type fakeDmart struct {
	*httptest.Server
	logins  atomic.Int32
	logouts atomic.Int32
}

func newFakeDmart(t *testing.T) *fakeDmart {
	t.Helper()

	f := &fakeDmart{}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /user/login", func(w http.ResponseWriter, r *http.Request) {
		f.logins.Add(1)
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["shortname"] != "alice" || body["password"] != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"status":"failed","error":{"type":"auth","code":10,"message":"Invalid username or password"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":"success","records":[{"resource_type":"user","shortname":"alice","subpath":"users","attributes":{"access_token":"tok","type":"web"}}]}`))
	})
	mux.HandleFunc("GET /user/profile", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"status":"failed","error":{"type":"jwtauth","code":48,"message":"Expired Token"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":"success","records":[{"resource_type":"user","shortname":"alice","subpath":"users","attributes":{
			"email":"alice@example.com","displayname":{"en":"Alice"},"type":"web","language":"en","is_email_verified":true,
			"roles":["super_admin"],"groups":["staff"],
			"permissions":{"management:users:user":{"allowed_actions":["view","update"],"conditions":[],"restricted_fields":[],"allowed_fields_values":{}}}}}]}`))
	})
	mux.HandleFunc("POST /user/logout", func(w http.ResponseWriter, _ *http.Request) {
		f.logouts.Add(1)
		_, _ = w.Write([]byte(`{"status":"success"}`))
	})

	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

func writeTestConfig(t *testing.T, url, password string) string {
	t.Helper()

	content := "dmart:\n  url: " + url + "\n  username: alice\n  retry_count: 0\n"
	if password != "" {
		content += "  password: " + password + "\n"
	}
	content += "logging:\n  level: error\n  format: json\n"

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()

	for _, key := range []string{"URL", "USERNAME", "PASSWORD"} {
		t.Setenv("GODMART_DMART_"+key, "")
		require.NoError(t, os.Unsetenv("GODMART_DMART_"+key))
	}

	cfgFile, jsonOutput, matchExpr = "", false, ""
	level := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(level) })

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)

	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestProfileCommand(t *testing.T) {
	server := newFakeDmart(t)
	path := writeTestConfig(t, server.URL, "secret")

	out, err := runCommand(t, "profile", "--config", path)
	require.NoError(t, err)

	assert.Contains(t, out, "Alice (alice)")
	assert.Contains(t, out, "alice@example.com [verified]")
	assert.Contains(t, out, "Roles:    super_admin")
	assert.Contains(t, out, "management:users:user: view, update")
	assert.Equal(t, int32(1), server.logins.Load())
	assert.Equal(t, int32(1), server.logouts.Load())
}

func TestProfileCommand_JSON(t *testing.T) {
	server := newFakeDmart(t)
	path := writeTestConfig(t, server.URL, "secret")

	out, err := runCommand(t, "profile", "--json", "--config", path)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "alice", got["shortname"])
	assert.Equal(t, "users", got["subpath"])
	assert.Equal(t, "alice@example.com", got["email"])
}

func TestProfileCommand_Expr(t *testing.T) {
	server := newFakeDmart(t)
	path := writeTestConfig(t, server.URL, "secret")

	out, err := runCommand(t, "profile", "--config", path, "--expr", `hasRole("super_admin") and can("management:users:user", "update")`)
	require.NoError(t, err)
	assert.Contains(t, out, "Profile matches")

	_, err = runCommand(t, "profile", "--config", path, "--expr", `inGroup("admins")`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not match")
}

func TestProfileCommand_InvalidExprSkipsLogin(t *testing.T) {
	server := newFakeDmart(t)
	path := writeTestConfig(t, server.URL, "secret")

	_, err := runCommand(t, "profile", "--config", path, "--expr", `hasRole(`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid expression")
	assert.Zero(t, server.logins.Load())
}

func TestProfileCommand_BadPassword(t *testing.T) {
	server := newFakeDmart(t)
	path := writeTestConfig(t, server.URL, "wrong")

	_, err := runCommand(t, "profile", "--config", path)
	require.Error(t, err)
	assert.ErrorIs(t, err, dmart.ErrAuthentication)
	assert.Zero(t, server.logouts.Load())
}

func TestTestCommand(t *testing.T) {
	server := newFakeDmart(t)
	path := writeTestConfig(t, server.URL, "secret")

	out, err := runCommand(t, "test", "--config", path)
	require.NoError(t, err)

	assert.Contains(t, out, "Testing connection to Dmart at "+server.URL)
	assert.Contains(t, out, "Login successful")
	assert.Contains(t, out, "Logged in as Alice (alice)")
	assert.Contains(t, out, "- Permissions: 1")
	assert.Equal(t, int32(1), server.logouts.Load())
}

func TestTestCommand_PromptsForPassword(t *testing.T) {
	server := newFakeDmart(t)
	path := writeTestConfig(t, server.URL, "")

	origTTY, origRead := stdinIsTerminal, readPassword
	t.Cleanup(func() { stdinIsTerminal, readPassword = origTTY, origRead })
	stdinIsTerminal = func() bool { return true }
	readPassword = func(int) ([]byte, error) { return []byte("secret"), nil }

	out, err := runCommand(t, "test", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Password for alice: ")
	assert.Contains(t, out, "Login successful")
}

func TestVersionCommand(t *testing.T) {
	out, err := runCommand(t, "version", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Contains(t, out, "godmart "+appVersion)
}

func TestPromptPassword(t *testing.T) {
	origTTY, origRead := stdinIsTerminal, readPassword
	t.Cleanup(func() { stdinIsTerminal, readPassword = origTTY, origRead })

	var out bytes.Buffer

	stdinIsTerminal = func() bool { return false }
	_, err := promptPassword(&out, "alice")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GODMART_DMART_PASSWORD")

	stdinIsTerminal = func() bool { return true }
	readPassword = func(int) ([]byte, error) { return nil, errors.New("inappropriate ioctl") }
	_, err = promptPassword(&out, "alice")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read password")
}

func TestSetupLogger(t *testing.T) {
	level := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(level) })

	tests := []struct {
		level string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"WARN", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			_ = setupLogger(config.LoggingConfig{Level: tt.level, Format: "console"}, os.Stderr)
			assert.Equal(t, tt.want, zerolog.GlobalLevel())
		})
	}
}
