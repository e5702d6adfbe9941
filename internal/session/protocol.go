// Package session multiplexes concurrent protocol clients onto the shared
// directory, policy, and mailbox components. Each client connection gets an
// isolated JSON-RPC handler; all handlers share one store.
package session

import "encoding/json"

// JSON-RPC 2.0 error codes.
const (
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternal       = -32603
)

// Error kinds surfaced to clients alongside the JSON-RPC code.
const (
	KindNotFound        = "not_found"
	KindPolicyViolation = "policy_violation"
	KindSessionNotFound = "session_not_found"
	KindStorageFailure  = "storage_failure"
	KindInvalidParams   = "invalid_params"
)

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *ErrorObject    `json:"error,omitempty"`
}

// ErrorObject is a JSON-RPC 2.0 error with a machine-readable kind.
type ErrorObject struct {
	Code    int        `json:"code"`
	Message string     `json:"message"`
	Data    *ErrorData `json:"data,omitempty"`
}

// ErrorData carries the error kind so facades can branch without parsing
// messages.
type ErrorData struct {
	Kind string `json:"kind"`
}

// InitializeResult acknowledges a handshake.
type InitializeResult struct {
	SessionID  string     `json:"sessionId"`
	ServerInfo ServerInfo `json:"serverInfo"`
}

// ServerInfo identifies this server to clients.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Tool describes one callable tool.
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// ToolsResult is the response to tools/list.
type ToolsResult struct {
	Tools []Tool `json:"tools"`
}

// CallParams are the parameters of a tools/call request.
type CallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// CallResult wraps a tool's output in content blocks.
type CallResult struct {
	Content []ContentBlock `json:"content"`
}

// ContentBlock is one piece of tool output.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func obj(props map[string]interface{}, required ...string) map[string]interface{} {
	schema := map[string]interface{}{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func str(desc string) map[string]interface{} {
	return map[string]interface{}{"type": "string", "description": desc}
}

// Tools returns the descriptors for the fixed tool surface. The names are
// part of the external contract.
func Tools() []Tool {
	return []Tool{
		{
			Name:        "register_agent",
			Description: "Register a new agent identity or update an existing one. Returns the agent details.",
			InputSchema: obj(map[string]interface{}{
				"projectSlug":   str("The project/workspace identifier"),
				"name":          str("Agent name (e.g., 'GreenMountain'). Generated if omitted."),
				"program":       str("The AI program (e.g., 'claude-code')"),
				"model":         str("The AI model (e.g., 'claude-3-5-sonnet')"),
				"contactPolicy": map[string]interface{}{"type": "string", "enum": []string{"open", "auto", "contacts_only"}, "description": "Default is 'auto'"},
			}, "projectSlug"),
		},
		{
			Name:        "send_message",
			Description: "Send a message to other agents.",
			InputSchema: obj(map[string]interface{}{
				"projectSlug": str("The project/workspace identifier"),
				"from":        str("Your agent name"),
				"to":          map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}, "description": "Recipient agent names"},
				"subject":     str("Message subject"),
				"body":        str("Markdown body"),
				"threadId":    str("Optional thread ID to reply to"),
				"importance":  map[string]interface{}{"type": "string", "enum": []string{"low", "normal", "high"}},
				"ackRequired": map[string]interface{}{"type": "boolean"},
			}, "projectSlug", "from", "to", "subject", "body"),
		},
		{
			Name:        "fetch_inbox",
			Description: "Fetch recent messages where you are a recipient.",
			InputSchema: obj(map[string]interface{}{
				"projectSlug": str("The project/workspace identifier"),
				"agentName":   str("Your agent name"),
				"limit":       map[string]interface{}{"type": "number"},
				"unreadOnly":  map[string]interface{}{"type": "boolean"},
			}, "projectSlug", "agentName"),
		},
		{
			Name:        "list_agents",
			Description: "List active agents in the project.",
			InputSchema: obj(map[string]interface{}{
				"projectSlug": str("The project/workspace identifier"),
			}, "projectSlug"),
		},
		{
			Name:        "list_projects",
			Description: "List all known projects.",
			InputSchema: obj(map[string]interface{}{}),
		},
		{
			Name:        "request_contact",
			Description: "Ask another agent for permission to message it.",
			InputSchema: obj(map[string]interface{}{
				"projectSlug": str("The project/workspace identifier"),
				"from":        str("Your agent name"),
				"to":          str("The agent you want to contact"),
				"reason":      str("Why you want to make contact"),
			}, "projectSlug", "from", "to"),
		},
		{
			Name:        "respond_contact",
			Description: "Approve or deny a pending contact request addressed to you.",
			InputSchema: obj(map[string]interface{}{
				"projectSlug": str("The project/workspace identifier"),
				"from":        str("The agent that requested contact"),
				"to":          str("Your agent name"),
				"decision":    map[string]interface{}{"type": "string", "enum": []string{"approved", "denied"}},
			}, "projectSlug", "from", "to", "decision"),
		},
		{
			Name:        "list_contacts",
			Description: "List your approved contacts.",
			InputSchema: obj(map[string]interface{}{
				"projectSlug": str("The project/workspace identifier"),
				"agentName":   str("Your agent name"),
			}, "projectSlug", "agentName"),
		},
	}
}
