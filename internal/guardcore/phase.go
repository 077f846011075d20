// Package guardcore defines the capability surface every security guard must
// expose: the phases a guard can observe, the context it is evaluated with,
// and the decisions it may return. It is the in-process trait contract
// described as the guard ABI — native guards (package guards) and the
// sandboxed adapter (package wasmguard) both implement [Guard].
package guardcore

// Phase identifies a point in the MCP message lifecycle at which a guard may
// evaluate a payload.
type Phase string

const (
	// PhaseRequest fires on an inbound request before it is routed to an
	// upstream server (e.g. server selection).
	PhaseRequest Phase = "request"

	// PhaseResponse fires on any response payload flowing back to the client.
	PhaseResponse Phase = "response"

	// PhaseToolsList fires on a tools/list response from an upstream server.
	PhaseToolsList Phase = "tools_list"

	// PhaseToolInvoke fires on a tools/call request before it is forwarded.
	PhaseToolInvoke Phase = "tool_invoke"

	// PhaseToolResult fires on the result of a tool invocation.
	PhaseToolResult Phase = "tool_result"

	// PhasePromptRequest fires on a prompts/get request.
	PhasePromptRequest Phase = "prompt_request"

	// PhaseResourceRequest fires on a resources/read request.
	PhaseResourceRequest Phase = "resource_request"
)

// AllPhases lists every recognised phase, in a stable order used wherever a
// full phase set needs to be iterated (e.g. the schema registry's default
// phase hints).
var AllPhases = []Phase{
	PhaseRequest,
	PhaseResponse,
	PhaseToolsList,
	PhaseToolInvoke,
	PhaseToolResult,
	PhasePromptRequest,
	PhaseResourceRequest,
}

// IsValid reports whether p is a recognised phase.
func (p Phase) IsValid() bool {
	for _, known := range AllPhases {
		if p == known {
			return true
		}
	}
	return false
}
