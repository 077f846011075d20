package wasmguard

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/MrWong99/mcpguard/internal/guardcore"
)

const (
	defaultMaxMemoryBytes = 10 * 1024 * 1024
	defaultMaxStackBytes  = 2 * 1024 * 1024
	wasmPageSizeBytes     = 64 * 1024
)

// Manifest is the sandboxed guard's self-description: which ABI it was
// built against, which phases it wants to observe, its default
// configuration, and its resource ceilings. A guest module ships one
// alongside its .wasm binary as modulePath+".json" — a real custom WASM
// section is the nicer long-term home for this (SPEC_FULL.md §4.4), but
// wazero's stable API has no generic "read an arbitrary custom section"
// accessor to build against without running the toolchain to confirm it, so
// the sidecar file is the only loading mechanism implemented for now (see
// DESIGN.md).
type Manifest struct {
	ABIVersion    string            `json:"abi_version"`
	Hooks         []guardcore.Phase `json:"hooks"`
	Entrypoint    string            `json:"entrypoint,omitempty"`
	DefaultConfig map[string]any    `json:"default_config,omitempty"`
	MaxMemory     int64             `json:"max_memory,omitempty"`
	MaxStack      int64             `json:"max_stack,omitempty"`
}

// loadManifest reads and validates the sidecar manifest for modulePath.
func loadManifest(modulePath string) (Manifest, error) {
	data, err := os.ReadFile(modulePath + ".json")
	if err != nil {
		return Manifest{}, fmt.Errorf("wasmguard: read manifest for %q: %w", modulePath, err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("wasmguard: decode manifest for %q: %w", modulePath, err)
	}

	if m.ABIVersion == "" {
		return Manifest{}, fmt.Errorf("wasmguard: manifest for %q declares no abi_version", modulePath)
	}
	if len(m.Hooks) == 0 {
		return Manifest{}, fmt.Errorf("wasmguard: manifest for %q declares no hooks", modulePath)
	}
	for _, h := range m.Hooks {
		if !h.IsValid() {
			return Manifest{}, fmt.Errorf("wasmguard: manifest for %q declares unknown hook %q", modulePath, h)
		}
	}

	ok, err := abiAtLeast(m.ABIVersion, guardcore.MinimumGuestABI)
	if err != nil {
		return Manifest{}, fmt.Errorf("wasmguard: manifest for %q has malformed abi_version %q: %w", modulePath, m.ABIVersion, err)
	}
	if !ok {
		return Manifest{}, fmt.Errorf("wasmguard: guest %q declares abi_version %s, below minimum %s", modulePath, m.ABIVersion, guardcore.MinimumGuestABI)
	}

	if m.MaxMemory <= 0 {
		m.MaxMemory = defaultMaxMemoryBytes
	}
	if m.MaxStack <= 0 {
		m.MaxStack = defaultMaxStackBytes
	}

	return m, nil
}

// memoryPages returns the linear-memory cap in 64KiB wasm pages, rounded up.
func (m Manifest) memoryPages() uint32 {
	pages := (m.MaxMemory + wasmPageSizeBytes - 1) / wasmPageSizeBytes
	return uint32(pages)
}

// abiAtLeast reports whether version is >= min, comparing dotted
// numeric components (e.g. "1.2.0" vs "1.10.0"). A small local comparator
// rather than a dependency: the corpus carries no semver library and guard
// ABI versions are always the simple major.minor.patch shape guardcore
// itself uses.
func abiAtLeast(version, min string) (bool, error) {
	v, err := splitVersion(version)
	if err != nil {
		return false, err
	}
	m, err := splitVersion(min)
	if err != nil {
		return false, err
	}
	for i := 0; i < 3; i++ {
		if v[i] != m[i] {
			return v[i] > m[i], nil
		}
	}
	return true, nil
}

func splitVersion(s string) ([3]int, error) {
	var out [3]int
	parts := strings.SplitN(s, ".", 3)
	for i := 0; i < len(parts) && i < 3; i++ {
		n, err := strconv.Atoi(parts[i])
		if err != nil {
			return out, fmt.Errorf("component %q is not numeric", parts[i])
		}
		out[i] = n
	}
	return out, nil
}
