package global

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ChatCore/global/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const memoryNode = `
node:
  id: test-node
jwt:
  secret: test-secret
http:
  mode: test
log:
  level: error
store:
  users:
    alice: [bob]
    bob: [alice]
`

type reply struct {
	Code int             `json:"code"`
	Data json.RawMessage `json:"data"`
}

func call(t *testing.T, h http.Handler, method, path, token string, in any) (int, reply) {
	t.Helper()
	var buf bytes.Buffer
	if in != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(in))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	var out reply
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w.Code, out
}

func TestBootInMemoryNode(t *testing.T) {
	t.Setenv("CHAT_JWT_SECRET", "")
	cfg, err := config.Parse([]byte(memoryNode))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	app, err := Boot(ctx, cfg)
	require.NoError(t, err)
	defer app.Close()

	h := app.Server.Engine()
	code, _ := call(t, h, http.MethodPost, "/api/v1/auth/token", "", map[string]string{"username": "alice"})
	require.Equal(t, http.StatusNotFound, code)

	token, _, err := app.Auth.IssueToken(ctx, "alice")
	require.NoError(t, err)

	code, res := call(t, h, http.MethodPost, "/api/v1/conversations", token, map[string]any{
		"name":         "pair",
		"participants": []string{"alice", "bob"},
	})
	require.Equal(t, http.StatusOK, code)
	var conv struct {
		ID string `json:"conversationId"`
	}
	require.NoError(t, json.Unmarshal(res.Data, &conv))
	require.NotEmpty(t, conv.ID)

	require.Eventually(t, func() bool {
		code, res := call(t, h, http.MethodGet, "/api/v1/conversations", token, nil)
		if code != http.StatusOK {
			return false
		}
		var rows map[string]json.RawMessage
		_ = json.Unmarshal(res.Data, &rows)
		_, ok := rows[conv.ID]
		return ok
	}, time.Second, 10*time.Millisecond)
}

func TestBootDevTokens(t *testing.T) {
	t.Setenv("CHAT_JWT_SECRET", "")
	cfg, err := config.Parse([]byte(memoryNode))
	require.NoError(t, err)
	cfg.HTTP.DevTokens = true

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	app, err := Boot(ctx, cfg)
	require.NoError(t, err)
	defer app.Close()

	h := app.Server.Engine()
	code, res := call(t, h, http.MethodPost, "/api/v1/auth/token", "", map[string]string{"username": "alice"})
	require.Equal(t, http.StatusOK, code)
	var tok struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(res.Data, &tok))
	assert.NotEmpty(t, tok.Token)

	code, _ = call(t, h, http.MethodPost, "/api/v1/auth/token", "", map[string]string{"username": "mallory"})
	assert.Equal(t, http.StatusNotFound, code)
}

func TestBootRejectsUnreachableBackends(t *testing.T) {
	t.Setenv("CHAT_JWT_SECRET", "")
	cfg, err := config.Parse([]byte(memoryNode + `
postgres:
  dsn: "postgres://nobody@127.0.0.1:1/none?connect_timeout=1"
`))
	require.NoError(t, err)
	cfg.Store.Directory = config.BackendPostgres

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = Boot(ctx, cfg)
	require.Error(t, err)
}

func TestLoadRemoteDisabled(t *testing.T) {
	t.Setenv("CHAT_JWT_SECRET", "")
	t.Setenv("CHAT_NACOS_ENABLED", "")
	cfg, err := config.Parse([]byte(memoryNode))
	require.NoError(t, err)

	got, remote, err := LoadRemote(cfg, []byte(memoryNode))
	require.NoError(t, err)
	assert.Same(t, cfg, got)
	assert.Nil(t, remote)
	remote.Close()
}
