package config

import (
	"fmt"

	"github.com/MrWong99/mcpguard/internal/guardcore"
)

// ConfigDiff describes what changed between two configs across all routes.
type ConfigDiff struct {
	RoutesChanged   bool
	RouteChanges    []RouteDiff
	LogLevelChanged bool
	NewLogLevel     LogLevel
}

// RouteDiff describes what changed for a single route between two configs.
type RouteDiff struct {
	Name          string
	GuardsChanged bool
	GuardChanges  []GuardDiff
	Added         bool
	Removed       bool
}

// GuardDiff describes what changed for a single guard descriptor within a route.
type GuardDiff struct {
	ID      string
	Added   bool
	Removed bool
	// Changed is true when the descriptor's Kind, Enabled, Priority, TimeoutMS,
	// FailureMode, RunsOn, or Config differ, without saying which.
	Changed bool
}

// Diff compares old and new configs and returns what changed. Used to log a
// concise summary when [Watcher] applies a reload.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	oldRoutes := make(map[string]*RouteConfig, len(old.Routes))
	for i := range old.Routes {
		oldRoutes[old.Routes[i].Name] = &old.Routes[i]
	}
	newRoutes := make(map[string]*RouteConfig, len(new.Routes))
	for i := range new.Routes {
		newRoutes[new.Routes[i].Name] = &new.Routes[i]
	}

	for name, oldRoute := range oldRoutes {
		newRoute, exists := newRoutes[name]
		if !exists {
			d.RouteChanges = append(d.RouteChanges, RouteDiff{Name: name, Removed: true})
			d.RoutesChanged = true
			continue
		}
		rd := diffRoute(name, oldRoute, newRoute)
		if rd.GuardsChanged {
			d.RouteChanges = append(d.RouteChanges, rd)
			d.RoutesChanged = true
		}
	}

	for name := range newRoutes {
		if _, exists := oldRoutes[name]; !exists {
			d.RouteChanges = append(d.RouteChanges, RouteDiff{Name: name, Added: true})
			d.RoutesChanged = true
		}
	}

	return d
}

// diffRoute compares two route configs with the same name.
func diffRoute(name string, old, new *RouteConfig) RouteDiff {
	rd := RouteDiff{Name: name}

	if old.MaxRouteMemoryBytes != new.MaxRouteMemoryBytes {
		rd.GuardChanges = append(rd.GuardChanges, GuardDiff{ID: "(route memory ceiling)", Changed: true})
		rd.GuardsChanged = true
	}

	oldGuards := make(map[string]*guardcore.GuardDescriptor, len(old.SecurityGuards))
	for i := range old.SecurityGuards {
		oldGuards[old.SecurityGuards[i].ID] = &old.SecurityGuards[i]
	}
	newGuards := make(map[string]*guardcore.GuardDescriptor, len(new.SecurityGuards))
	for i := range new.SecurityGuards {
		newGuards[new.SecurityGuards[i].ID] = &new.SecurityGuards[i]
	}

	for id, oldGD := range oldGuards {
		newGD, exists := newGuards[id]
		if !exists {
			rd.GuardChanges = append(rd.GuardChanges, GuardDiff{ID: id, Removed: true})
			rd.GuardsChanged = true
			continue
		}
		if !guardDescriptorEqual(oldGD, newGD) {
			rd.GuardChanges = append(rd.GuardChanges, GuardDiff{ID: id, Changed: true})
			rd.GuardsChanged = true
		}
	}
	for id := range newGuards {
		if _, exists := oldGuards[id]; !exists {
			rd.GuardChanges = append(rd.GuardChanges, GuardDiff{ID: id, Added: true})
			rd.GuardsChanged = true
		}
	}

	return rd
}

// guardDescriptorEqual does a shallow field comparison; Config maps are
// compared by length and, for matching keys, string-formatted equality,
// which is sufficient since descriptors round-trip through YAML/JSON scalars.
func guardDescriptorEqual(a, b *guardcore.GuardDescriptor) bool {
	if a.Kind != b.Kind || a.Enabled != b.Enabled || a.Priority != b.Priority ||
		a.TimeoutMS != b.TimeoutMS || a.FailureMode != b.FailureMode {
		return false
	}
	if len(a.RunsOn) != len(b.RunsOn) {
		return false
	}
	for i := range a.RunsOn {
		if a.RunsOn[i] != b.RunsOn[i] {
			return false
		}
	}
	if len(a.Config) != len(b.Config) {
		return false
	}
	for k, av := range a.Config {
		bv, ok := b.Config[k]
		if !ok {
			return false
		}
		if fmt.Sprint(av) != fmt.Sprint(bv) {
			return false
		}
	}
	return true
}
