// Package gateway speaks the WebSocket wire protocol: it parses client
// frames, dispatches them to the session manager, and serializes events
// back to the connection each session is attached to.
package gateway

import (
	"github.com/GGPrompts/PortfolioHub-sub010/internal/session"
)

// MsgType discriminates wire messages. The set is closed; dispatch
// switches over it exhaustively and anything else is answered with an
// error frame.
type MsgType string

// Client → server message types.
const (
	MsgCreate       MsgType = "create"
	MsgDestroy      MsgType = "destroy"
	MsgCommand      MsgType = "command"
	MsgResize       MsgType = "resize"
	MsgData         MsgType = "data"
	MsgListSessions MsgType = "list-sessions"
	MsgStatus       MsgType = "status"
)

// Server → client message types.
const (
	MsgCreated     MsgType = "created"
	MsgError       MsgType = "error"
	MsgOutput      MsgType = "output"
	MsgDestroyed   MsgType = "destroyed"
	MsgSessionList MsgType = "session-list"
)

// Error reason codes for frames the gateway itself produces. Validator
// rejections reuse the verdict's reason code instead.
const (
	codeMalformedMessage = "malformed-message"
	codeUnknownType      = "unknown-type"
	codeInvalidRequest   = "invalid-request"
	codeSessionNotFound  = "session-not-found"
	codeCapacityExceeded = "capacity-exceeded"
	codeSpawnFailed      = "spawn-failed"
	codeMessageTooLarge  = "message-too-large"
)

// ClientMessage is one inbound frame. Every message except create
// carries a sessionId; the optional id is echoed back on direct
// responses so the client can correlate them.
type ClientMessage struct {
	Type         MsgType `json:"type"`
	ID           string  `json:"id,omitempty"`
	SessionID    string  `json:"sessionId,omitempty"`
	WorkbranchID string  `json:"workbranchId,omitempty"`
	Shell        string  `json:"shell,omitempty"`
	Cwd          string  `json:"cwd,omitempty"`
	Title        string  `json:"title,omitempty"`
	Data         string  `json:"data,omitempty"`
	Cols         uint16  `json:"cols,omitempty"`
	Rows         uint16  `json:"rows,omitempty"`
}

// ServerMessage is one outbound frame.
type ServerMessage struct {
	Type         MsgType        `json:"type"`
	ID           string         `json:"id,omitempty"`
	SessionID    string         `json:"sessionId,omitempty"`
	WorkbranchID string         `json:"workbranchId,omitempty"`
	Shell        string         `json:"shell,omitempty"`
	Data         string         `json:"data,omitempty"`
	Reason       string         `json:"reason,omitempty"`
	ReasonCode   string         `json:"reasonCode,omitempty"`
	Message      string         `json:"message,omitempty"`
	Sessions     []session.Info `json:"sessions,omitempty"`
	Status       *ServiceStatus `json:"status,omitempty"`
}

// ServiceStatus is the payload of status frames and the /health endpoint.
type ServiceStatus struct {
	Healthy       bool  `json:"healthy"`
	Sessions      int   `json:"sessions"`
	UptimeSeconds int64 `json:"uptimeSeconds"`
	AuditEnabled  bool  `json:"auditEnabled"`
}

func errorFrame(correlationID, sessionID, reasonCode, message string) ServerMessage {
	return ServerMessage{
		Type:       MsgError,
		ID:         correlationID,
		SessionID:  sessionID,
		ReasonCode: reasonCode,
		Message:    message,
	}
}
