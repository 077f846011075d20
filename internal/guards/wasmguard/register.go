package wasmguard

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/MrWong99/mcpguard/internal/guardcore"
	"github.com/MrWong99/mcpguard/internal/guards"
)

// wasmConfig is the "wasm" kind's GuardDescriptor.Config shape: a path to
// the compiled guest module (with its sidecar modulePath+".json" manifest),
// an optional pool size override, and operator-supplied fields overriding
// the manifest's DefaultConfig before it's handed to the guest.
type wasmConfig struct {
	ModulePath string         `json:"module_path"`
	PoolSize   int            `json:"pool_size"`
	Config     map[string]any `json:"config,omitempty"`
}

// Register adds the "wasm" guard kind to reg, backed by l. This lives in
// package wasmguard rather than guards.NewDefaultRegistry because
// wasmguard pulls in wazero — a heavier, optional dependency only binaries
// that actually load sandboxed guards should need — so package guards must
// not import wasmguard; the dependency runs the other way, matching
// registry.go's own doc comment on NewDefaultRegistry.
func Register(reg *guards.Registry, l *Loader) {
	reg.Register("wasm", func(id string, raw json.RawMessage) (guardcore.Guard, error) {
		var cfg wasmConfig
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &cfg); err != nil {
				return nil, guardcore.NewGuardError(id, guardcore.ErrConfig,
					fmt.Errorf("wasmguard: decode config: %w", err))
			}
		}
		if cfg.ModulePath == "" {
			return nil, guardcore.NewGuardError(id, guardcore.ErrConfig,
				fmt.Errorf("wasmguard: config.module_path is required"))
		}
		return l.Load(context.Background(), id, cfg.ModulePath, cfg.PoolSize, cfg.Config)
	})
}
