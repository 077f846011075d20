package config_test

import (
	"strings"
	"testing"

	"github.com/MrWong99/mcpguard/internal/config"
)

func TestLoad_NonExistentFile(t *testing.T) {
	t.Parallel()
	_, err := config.Load("/nonexistent/mcpguard.yaml")
	if err == nil {
		t.Fatal("expected error for non-existent file, got nil")
	}
}

func TestLoadFromReader_RejectsUnknownFields(t *testing.T) {
	t.Parallel()
	yaml := `
routes:
  - name: r1
    bogus_field: true
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
}

func TestValidate_MultipleErrorsAreJoined(t *testing.T) {
	t.Parallel()
	yaml := `
routes:
  - name: r1
    security_guards:
      - id: g1
        kind: pii
      - id: g1
        kind: tool_poisoning
        timeout_ms: -1
  - name: r1
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected errors, got nil")
	}
	errStr := err.Error()
	if !strings.Contains(errStr, "duplicate") {
		t.Errorf("error should mention duplicate route name, got: %v", err)
	}
	if !strings.Contains(errStr, "timeout_ms") {
		t.Errorf("error should mention timeout_ms, got: %v", err)
	}
}

func TestValidate_DefaultFailureModeIsAccepted(t *testing.T) {
	t.Parallel()
	yaml := `
routes:
  - name: r1
    security_guards:
      - id: g1
        kind: pii
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_MultipleRoutesWithDistinctGuardIDsIsValid(t *testing.T) {
	t.Parallel()
	yaml := `
routes:
  - name: r1
    security_guards:
      - id: g1
        kind: pii
  - name: r2
    security_guards:
      - id: g1
        kind: rug_pull
`
	// Guard IDs only need to be unique within a route, not across routes.
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
