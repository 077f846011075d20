// Package httpapi serves mcpguard's read-only schema endpoint and the
// administrative guard-management endpoints over net/http, mirroring
// internal/health's "struct + Register(mux) + writeJSON" handler shape.
package httpapi

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/MrWong99/mcpguard/internal/guardschema"
)

// availableGuard is one entry of the /schemas endpoint's availableGuards
// list: enough metadata for a configuration UI to render a guard picker
// without fetching each kind's full schema up front.
type availableGuard struct {
	Type        string `json:"type"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Icon        string `json:"icon"`
	IsWasm      bool   `json:"isWasm"`
}

// schemaResponse is the /schemas endpoint's body, per spec.md §6: schemas
// keyed by guard kind plus a flat availableGuards summary list.
type schemaResponse struct {
	Schemas         map[string]*jsonschema.Schema `json:"schemas"`
	AvailableGuards []availableGuard              `json:"availableGuards"`
}

// SchemaHandler serves GET /schemas from a guardschema.Registry. The
// registry is read on every request rather than snapshotted at
// construction time, so a guard kind registered after the handler is built
// appears without restarting the handler.
type SchemaHandler struct {
	schemas *guardschema.Registry
}

// NewSchemaHandler returns a SchemaHandler backed by schemas.
func NewSchemaHandler(schemas *guardschema.Registry) *SchemaHandler {
	return &SchemaHandler{schemas: schemas}
}

// List handles GET /schemas.
func (h *SchemaHandler) List(w http.ResponseWriter, _ *http.Request) {
	all := h.schemas.List()

	kinds := make([]string, 0, len(all))
	for kind := range all {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)

	guards := make([]availableGuard, 0, len(kinds))
	for _, kind := range kinds {
		meta, _ := h.schemas.Meta(kind)
		guards = append(guards, availableGuard{
			Type:        kind,
			Title:       meta.Title,
			Description: meta.Description,
			Category:    meta.Category,
			Icon:        meta.Icon,
			IsWasm:      kind == "wasm" || meta.Category == "wasm",
		})
	}

	writeJSON(w, http.StatusOK, schemaResponse{Schemas: all, AvailableGuards: guards})
}

// Register adds the /schemas route to mux.
func (h *SchemaHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /schemas", h.List)
}

// writeJSON encodes v as JSON and writes it with the given status code,
// matching internal/health's handler convention.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
