package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/MrWong99/mcpguard/internal/config"
	"github.com/MrWong99/mcpguard/internal/engine"
	"github.com/MrWong99/mcpguard/internal/guardcore"
	"github.com/MrWong99/mcpguard/internal/guards"
)

const adminTestYAML = `
server:
  log_level: info
routes:
  - name: r1
    security_guards:
      - id: g1
        kind: rug_pull
        enabled: true
`

func newTestWatcher(t *testing.T) *config.Watcher {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(adminTestYAML), 0o644))
	w, err := config.NewWatcher(path, nil, config.WithInterval(time.Hour))
	require.NoError(t, err)
	t.Cleanup(w.Stop)
	return w
}

func newTestEngine(t *testing.T, w *config.Watcher) *engine.Engine {
	t.Helper()
	eng := engine.New(guards.NewDefaultRegistry(), nil)
	for _, rc := range w.Current().Routes {
		require.NoError(t, eng.Reload(rc.Name, rc.SecurityGuards))
	}
	return eng
}

func TestAdminHandler_ReloadRoute_Success(t *testing.T) {
	w := newTestWatcher(t)
	eng := newTestEngine(t, w)
	h := NewAdminHandler(eng, w)

	mux := http.NewServeMux()
	h.Register(mux)

	req := httptest.NewRequest(http.MethodPost, "/admin/guards/r1/reload", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, eng.Guards("r1"))
}

func TestAdminHandler_ReloadRoute_UnknownRoute(t *testing.T) {
	w := newTestWatcher(t)
	eng := newTestEngine(t, w)
	h := NewAdminHandler(eng, w)

	mux := http.NewServeMux()
	h.Register(mux)

	req := httptest.NewRequest(http.MethodPost, "/admin/guards/does-not-exist/reload", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminHandler_ResetRugPull_MissingServerParam(t *testing.T) {
	w := newTestWatcher(t)
	eng := newTestEngine(t, w)
	h := NewAdminHandler(eng, w)

	mux := http.NewServeMux()
	h.Register(mux)

	req := httptest.NewRequest(http.MethodPost, "/admin/rugpull/reset", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminHandler_ResetRugPull_ResetsMatchingGuards(t *testing.T) {
	w := newTestWatcher(t)
	eng := newTestEngine(t, w)
	h := NewAdminHandler(eng, w)

	mux := http.NewServeMux()
	h.Register(mux)

	// Establish a baseline so there is something to reset.
	gctx := &guardcore.GuardContext{ServerName: "srv1"}
	payload := guardcore.ToolsPayload{Tools: []guardcore.Tool{{Name: "t1", Description: "v1"}}}
	for _, g := range eng.Guards("r1") {
		_, err := g.Evaluate(context.Background(), guardcore.PhaseToolsList, payload, gctx)
		require.NoError(t, err)
	}

	request := httptest.NewRequest(http.MethodPost, "/admin/rugpull/reset?server=srv1", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, request)

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, float64(1), body["guards_reset"])
}
