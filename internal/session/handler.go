package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/zulandar/switchboard/internal/directory"
	"github.com/zulandar/switchboard/internal/mailbox"
	"github.com/zulandar/switchboard/internal/models"
	"github.com/zulandar/switchboard/internal/policy"
	"gorm.io/gorm"
)

// serverVersion is reported in the initialize handshake.
const serverVersion = "1.0.0"

type handlerState int

const (
	stateUninitialized handlerState = iota
	stateActive
	stateClosed
)

// Handler is one client session's protocol state machine. All handlers
// share the same store; protocol state is per-session. Requests within a
// session serialize on the handler's mutex, so a client sees its own calls
// in order while unrelated sessions proceed in parallel.
type Handler struct {
	id     string
	db     *gorm.DB
	notify mailbox.NotifyConfig

	mu    sync.Mutex
	state handlerState
}

// NewHandler builds a handler bound to the shared database handle.
func NewHandler(id string, db *gorm.DB, notify mailbox.NotifyConfig) *Handler {
	return &Handler{id: id, db: db, notify: notify}
}

// ID returns the opaque session identifier.
func (h *Handler) ID() string { return h.id }

// close marks the handler terminal. Requests racing a close get a
// session_not_found error instead of touching shared state.
func (h *Handler) close() {
	h.mu.Lock()
	h.state = stateClosed
	h.mu.Unlock()
}

// Handle processes one request and returns its response. It never panics
// the process: every failure becomes a structured error scoped to this
// request.
func (h *Handler) Handle(req *Request) *Response {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state == stateClosed {
		return errorResponse(req, codeInvalidRequest, KindSessionNotFound, "session is closed")
	}

	switch req.Method {
	case "initialize":
		h.state = stateActive
		return resultResponse(req, InitializeResult{
			SessionID:  h.id,
			ServerInfo: ServerInfo{Name: "switchboard", Version: serverVersion},
		})
	case "tools/list":
		if h.state != stateActive {
			return errorResponse(req, codeInvalidRequest, KindInvalidParams, "session not initialized")
		}
		return resultResponse(req, ToolsResult{Tools: Tools()})
	case "tools/call":
		if h.state != stateActive {
			return errorResponse(req, codeInvalidRequest, KindInvalidParams, "session not initialized")
		}
		return h.handleCall(req)
	default:
		return errorResponse(req, codeMethodNotFound, KindInvalidParams, fmt.Sprintf("unknown method %q", req.Method))
	}
}

func (h *Handler) handleCall(req *Request) *Response {
	var call CallParams
	if err := json.Unmarshal(req.Params, &call); err != nil {
		return errorResponse(req, codeInvalidParams, KindInvalidParams, "malformed tools/call params")
	}

	result, err := h.dispatch(call.Name, call.Arguments)
	if err != nil {
		code, kind := classify(err)
		return errorResponse(req, code, kind, err.Error())
	}

	text, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return errorResponse(req, codeInternal, KindStorageFailure, "encode tool result")
	}
	return resultResponse(req, CallResult{
		Content: []ContentBlock{{Type: "text", Text: string(text)}},
	})
}

// dispatch routes a tool call to the component operation it maps onto.
func (h *Handler) dispatch(tool string, args json.RawMessage) (interface{}, error) {
	switch tool {
	case "register_agent":
		var p struct {
			ProjectSlug   string `json:"projectSlug"`
			Name          string `json:"name"`
			Program       string `json:"program"`
			Model         string `json:"model"`
			ContactPolicy string `json:"contactPolicy"`
		}
		if err := decodeArgs(args, &p); err != nil {
			return nil, err
		}
		return directory.Register(h.db, directory.RegisterParams{
			ProjectSlug:   p.ProjectSlug,
			Name:          p.Name,
			Program:       p.Program,
			Model:         p.Model,
			ContactPolicy: models.ContactPolicy(p.ContactPolicy),
		})

	case "send_message":
		var p struct {
			ProjectSlug string   `json:"projectSlug"`
			From        string   `json:"from"`
			To          []string `json:"to"`
			Subject     string   `json:"subject"`
			Body        string   `json:"body"`
			ThreadID    string   `json:"threadId"`
			Importance  string   `json:"importance"`
			AckRequired bool     `json:"ackRequired"`
		}
		if err := decodeArgs(args, &p); err != nil {
			return nil, err
		}
		msg, err := mailbox.Send(h.db, mailbox.SendParams{
			ProjectSlug: p.ProjectSlug,
			From:        p.From,
			To:          p.To,
			Subject:     p.Subject,
			Body:        p.Body,
			ThreadID:    p.ThreadID,
			Importance:  p.Importance,
			AckRequired: p.AckRequired,
		})
		if err != nil {
			return nil, err
		}
		if mailbox.ShouldNotify(msg) {
			mailbox.Notify(msg, h.notify)
		}
		return msg, nil

	case "fetch_inbox":
		var p struct {
			ProjectSlug string `json:"projectSlug"`
			AgentName   string `json:"agentName"`
			Limit       int    `json:"limit"`
			UnreadOnly  bool   `json:"unreadOnly"`
		}
		if err := decodeArgs(args, &p); err != nil {
			return nil, err
		}
		return mailbox.Inbox(h.db, p.ProjectSlug, p.AgentName, p.Limit, p.UnreadOnly)

	case "list_agents":
		var p struct {
			ProjectSlug string `json:"projectSlug"`
		}
		if err := decodeArgs(args, &p); err != nil {
			return nil, err
		}
		return directory.List(h.db, p.ProjectSlug)

	case "list_projects":
		return directory.ListProjects(h.db)

	case "request_contact":
		var p struct {
			ProjectSlug string `json:"projectSlug"`
			From        string `json:"from"`
			To          string `json:"to"`
			Reason      string `json:"reason"`
		}
		if err := decodeArgs(args, &p); err != nil {
			return nil, err
		}
		from, to, err := h.resolvePair(p.ProjectSlug, p.From, p.To)
		if err != nil {
			return nil, err
		}
		return policy.RequestContact(h.db, from.ProjectID, from.ID, to.ID, p.Reason)

	case "respond_contact":
		var p struct {
			ProjectSlug string `json:"projectSlug"`
			From        string `json:"from"`
			To          string `json:"to"`
			Decision    string `json:"decision"`
		}
		if err := decodeArgs(args, &p); err != nil {
			return nil, err
		}
		from, to, err := h.resolvePair(p.ProjectSlug, p.From, p.To)
		if err != nil {
			return nil, err
		}
		return policy.RespondContact(h.db, from.ProjectID, from.ID, to.ID, models.LinkStatus(p.Decision))

	case "list_contacts":
		var p struct {
			ProjectSlug string `json:"projectSlug"`
			AgentName   string `json:"agentName"`
		}
		if err := decodeArgs(args, &p); err != nil {
			return nil, err
		}
		agent, err := directory.Whois(h.db, p.ProjectSlug, p.AgentName)
		if err != nil {
			return nil, err
		}
		return policy.ListContacts(h.db, agent.ProjectID, agent.ID)

	default:
		return nil, fmt.Errorf("session: unknown tool %q", tool)
	}
}

// resolvePair resolves the two endpoint agents of a contact operation.
func (h *Handler) resolvePair(projectSlug, fromName, toName string) (*models.Agent, *models.Agent, error) {
	from, err := directory.Whois(h.db, projectSlug, fromName)
	if err != nil {
		return nil, nil, err
	}
	to, err := directory.Whois(h.db, projectSlug, toName)
	if err != nil {
		return nil, nil, err
	}
	return from, to, nil
}

func decodeArgs(args json.RawMessage, into interface{}) error {
	if len(args) == 0 {
		return nil
	}
	if err := json.Unmarshal(args, into); err != nil {
		return fmt.Errorf("session: malformed tool arguments: %w", err)
	}
	return nil
}

// classify maps component errors onto wire codes and kinds.
func classify(err error) (int, string) {
	var policyErr *mailbox.PolicyError
	switch {
	case errors.Is(err, directory.ErrNotFound), errors.Is(err, policy.ErrLinkNotFound):
		return codeInvalidParams, KindNotFound
	case errors.As(err, &policyErr):
		return codeInvalidRequest, KindPolicyViolation
	case errors.Is(err, ErrSessionNotFound):
		return codeInvalidRequest, KindSessionNotFound
	default:
		return codeInternal, KindStorageFailure
	}
}

func resultResponse(req *Request, result interface{}) *Response {
	return &Response{JSONRPC: "2.0", ID: req.ID, Result: result}
}

func errorResponse(req *Request, code int, kind, message string) *Response {
	return &Response{
		JSONRPC: "2.0",
		ID:      req.ID,
		Error:   &ErrorObject{Code: code, Message: message, Data: &ErrorData{Kind: kind}},
	}
}
