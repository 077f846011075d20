package wasmguard

import (
	"encoding/json"
	"fmt"

	"github.com/MrWong99/mcpguard/internal/guardcore"
)

// guestRequest is the JSON envelope written into a guest module's linear
// memory for each Evaluate call. Guests never see the host's Go types
// directly — only this wire shape, matching the engine's own separation of
// the in-process Payload interface from whatever the wire actually carries.
type guestRequest struct {
	Phase      string          `json:"phase"`
	ServerName string          `json:"server_name"`
	SessionID  string          `json:"session_id,omitempty"`
	Payload    json.RawMessage `json:"payload"`
	Config     json.RawMessage `json:"config,omitempty"`
}

// guestResponse is the JSON envelope a guest module returns. Kind selects
// which of Deny/Modify is populated, mirroring guardcore.Decision's own
// tagged-union shape one level up.
type guestResponse struct {
	Kind   string       `json:"kind"`
	Deny   *guestDeny   `json:"deny,omitempty"`
	Modify *guestModify `json:"modify,omitempty"`
}

type guestDeny struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type guestModify struct {
	Type    string                  `json:"type"`
	Warning string                  `json:"warning,omitempty"`
	Fields  []guardcore.RedactedField `json:"fields,omitempty"`
	Tools   []guardcore.Tool        `json:"tools,omitempty"`
}

// toDecision translates the wire response into a guardcore.Decision. An
// error here always means the guest violated the wire contract, which the
// caller (Guard.Evaluate) reports as an ErrInternal guard error rather than
// a Deny — a misbehaving guest is a guard failure, not a security verdict.
func (r guestResponse) toDecision() (guardcore.Decision, error) {
	switch r.Kind {
	case "", "allow":
		return guardcore.Allow(), nil

	case "deny":
		if r.Deny == nil || r.Deny.Code == "" || r.Deny.Message == "" {
			return guardcore.Decision{}, fmt.Errorf("wasmguard: deny response missing code/message")
		}
		return guardcore.Deny(r.Deny.Code, r.Deny.Message, r.Deny.Details), nil

	case "modify":
		if r.Modify == nil {
			return guardcore.Decision{}, fmt.Errorf("wasmguard: modify response missing modify block")
		}
		switch r.Modify.Type {
		case "add_warning":
			return guardcore.Modify(guardcore.AddWarning{Message: r.Modify.Warning}), nil
		case "redact_fields":
			return guardcore.Modify(guardcore.RedactFields{Fields: r.Modify.Fields}), nil
		case "replace_tools":
			return guardcore.Modify(guardcore.ReplaceTools{Tools: r.Modify.Tools}), nil
		default:
			return guardcore.Decision{}, fmt.Errorf("wasmguard: unknown modify type %q", r.Modify.Type)
		}

	default:
		return guardcore.Decision{}, fmt.Errorf("wasmguard: unknown decision kind %q", r.Kind)
	}
}
