package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/MrWong99/mcpguard/internal/guardcore"
	"github.com/MrWong99/mcpguard/internal/guards"
	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// knownGuardKinds lists the guard kinds registered by [guards.NewDefaultRegistry],
// used by [Validate] to warn about a probably-mistyped kind. The sandboxed
// "wasm" kind is registered separately by wasmguard.Register, so it is
// always accepted here.
var knownGuardKinds = append(guards.NewDefaultRegistry().Kinds(), "wasm")

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	routeNamesSeen := make(map[string]int, len(cfg.Routes))
	for i, route := range cfg.Routes {
		prefix := fmt.Sprintf("routes[%d]", i)
		if route.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else {
			if prev, ok := routeNamesSeen[route.Name]; ok {
				errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of routes[%d]", prefix, route.Name, prev))
			}
			routeNamesSeen[route.Name] = i
		}

		guardIDsSeen := make(map[string]int, len(route.SecurityGuards))
		for j, gd := range route.SecurityGuards {
			gprefix := fmt.Sprintf("%s.security_guards[%d]", prefix, j)
			if gd.ID == "" {
				errs = append(errs, fmt.Errorf("%s.id is required", gprefix))
			} else if prev, ok := guardIDsSeen[gd.ID]; ok {
				errs = append(errs, fmt.Errorf("%s.id %q is a duplicate of %s.security_guards[%d]", gprefix, gd.ID, prefix, prev))
			} else {
				guardIDsSeen[gd.ID] = j
			}

			if gd.Kind == "" {
				errs = append(errs, fmt.Errorf("%s.kind is required", gprefix))
			} else {
				validateGuardKind(gprefix, gd.Kind)
			}

			// Zero is a sentinel meaning "use the engine default" (see
			// guardcore.GuardDescriptor.Timeout) and is exempt from the floor;
			// any non-zero value must fall within the documented bounds.
			if gd.TimeoutMS != 0 && (gd.TimeoutMS < 10 || gd.TimeoutMS > 10_000) {
				errs = append(errs, fmt.Errorf("%s.timeout_ms must be 0 (use the engine default) or between 10 and 10000, got %d", gprefix, gd.TimeoutMS))
			}

			if gd.Priority < 0 || gd.Priority > 100 {
				errs = append(errs, fmt.Errorf("%s.priority must be between 0 and 100, got %d", gprefix, gd.Priority))
			}

			if fm := gd.FailureMode; fm != "" && fm != guardcore.FailClosed && fm != guardcore.FailOpen {
				errs = append(errs, fmt.Errorf("%s.failure_mode %q is invalid; valid values: fail_closed, fail_open", gprefix, fm))
			}

			for _, p := range gd.RunsOn {
				if !p.IsValid() {
					errs = append(errs, fmt.Errorf("%s.runs_on contains invalid phase %q", gprefix, p))
				}
			}
		}
	}

	return errors.Join(errs...)
}

// validateGuardKind logs a warning if kind is not among the registry's
// known built-in kinds. It is not a hard error because a deployment may run
// custom guard kinds registered outside [guards.NewDefaultRegistry].
func validateGuardKind(prefix, kind string) {
	if slices.Contains(knownGuardKinds, kind) {
		return
	}
	slog.Warn("unknown guard kind — may be a typo or a custom registration",
		"where", prefix,
		"kind", kind,
		"known", knownGuardKinds,
	)
}
