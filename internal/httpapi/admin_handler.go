package httpapi

import (
	"fmt"
	"net/http"

	"github.com/MrWong99/mcpguard/internal/config"
	"github.com/MrWong99/mcpguard/internal/engine"
)

// rugPullResetter is implemented by guards.RugPull. Declared locally rather
// than imported from package guards, so AdminHandler can reach a live guard
// instance by duck-typed capability instead of engine exposing RugPull's
// concrete type — engine.Guards intentionally returns the guardcore.Guard
// interface, not guard-kind-specific types.
type rugPullResetter interface {
	Reset(server string)
}

// adminError is the JSON body returned for any 4xx/5xx admin response.
type adminError struct {
	Error string `json:"error"`
}

// AdminHandler serves the administrative HTTP surface: reloading a route's
// guard chain from the currently-watched configuration, and resetting
// rug-pull baselines for a server across every route. Both endpoints
// assume the caller has already been authenticated upstream — identity is
// a pass-through concern the guard engine never enforces itself.
type AdminHandler struct {
	engine  *engine.Engine
	watcher *config.Watcher
}

// NewAdminHandler returns an AdminHandler dispatching reloads against eng,
// sourcing route descriptors from watcher's current configuration.
func NewAdminHandler(eng *engine.Engine, watcher *config.Watcher) *AdminHandler {
	return &AdminHandler{engine: eng, watcher: watcher}
}

// ReloadRoute handles POST /admin/guards/{route}/reload. It rebuilds the
// named route's chain from the watcher's currently-loaded configuration
// rather than accepting a request body, so a reload always reflects the
// on-disk config file the operator just edited — the same source Watcher
// itself reloads from on a polling tick.
func (h *AdminHandler) ReloadRoute(w http.ResponseWriter, r *http.Request) {
	route := r.PathValue("route")
	if route == "" {
		writeJSON(w, http.StatusBadRequest, adminError{Error: "route is required"})
		return
	}

	cfg := h.watcher.Current()
	rc, ok := findRoute(cfg, route)
	if !ok {
		writeJSON(w, http.StatusNotFound, adminError{Error: fmt.Sprintf("route %q is not configured", route)})
		return
	}

	if err := h.engine.Reload(route, rc.SecurityGuards, rc.MaxRouteMemoryBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, adminError{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"route": route, "status": "reloaded"})
}

// ResetRugPull handles POST /admin/rugpull/reset?server=... . It calls
// Reset(server) on every rug_pull guard instance on every configured route,
// and guards_reset counts every such instance, including those that held no
// baseline for server — rug-pull baselines are per guard instance
// (spec.md §4.3.3's "per guard id" lifecycle), and an operator fixing a
// legitimate tool-schema change has no reason to know which specific
// route or guard id happened to flag it.
func (h *AdminHandler) ResetRugPull(w http.ResponseWriter, r *http.Request) {
	server := r.URL.Query().Get("server")
	if server == "" {
		writeJSON(w, http.StatusBadRequest, adminError{Error: "server query parameter is required"})
		return
	}

	reset := 0
	for _, route := range h.engine.Routes() {
		for _, g := range h.engine.Guards(route) {
			if resetter, ok := g.(rugPullResetter); ok {
				resetter.Reset(server)
				reset++
			}
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"server": server, "guards_reset": reset})
}

// Register adds the admin routes to mux.
func (h *AdminHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /admin/guards/{route}/reload", h.ReloadRoute)
	mux.HandleFunc("POST /admin/rugpull/reset", h.ResetRugPull)
}

// findRoute looks up route by name in cfg.Routes.
func findRoute(cfg *config.Config, route string) (config.RouteConfig, bool) {
	if cfg == nil {
		return config.RouteConfig{}, false
	}
	for _, rc := range cfg.Routes {
		if rc.Name == route {
			return rc, true
		}
	}
	return config.RouteConfig{}, false
}
