package gateway

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"

	"github.com/GGPrompts/PortfolioHub-sub010/internal/logging"
	"github.com/GGPrompts/PortfolioHub-sub010/internal/security"
	"github.com/GGPrompts/PortfolioHub-sub010/internal/session"
)

// readLimit caps one inbound WebSocket frame.
const readLimit = 1024 * 1024

// Server is the WebSocket gateway plus the HTTP health surface.
type Server struct {
	mgr          *session.Manager
	queueSize    int
	auditEnabled bool
	started      time.Time
}

// New creates a Server over mgr. queueSize bounds each connection's
// outbound buffer.
func New(mgr *session.Manager, queueSize int, auditEnabled bool) *Server {
	return &Server{
		mgr:          mgr,
		queueSize:    queueSize,
		auditEnabled: auditEnabled,
		started:      time.Now(),
	}
}

// Routes mounts the gateway endpoints on r.
func (s *Server) Routes(r chi.Router) {
	r.Get("/health", s.handleHealth)
	r.Get("/logs", s.handleLogs)
	r.Get("/ws", s.handleWS)
}

func (s *Server) status() *ServiceStatus {
	return &ServiceStatus{
		Healthy:       true,
		Sessions:      s.mgr.Count(),
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		AuditEnabled:  s.auditEnabled,
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.status())
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	lines := 200
	if v := r.URL.Query().Get("lines"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "lines must be a positive integer")
			return
		}
		lines = n
	}
	tail, err := logging.ReadTail(lines)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read log")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(tail))
}

// handleWS owns one client connection for its lifetime: a read loop
// here, a write loop inside conn. On disconnect the client's sessions
// are detached, not destroyed; the manager's sweep reclaims them if no
// reconnect happens within the grace window.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		log.Printf("[gateway] accept failed: %v", err)
		return
	}
	defer ws.CloseNow()

	ws.SetReadLimit(readLimit)

	c := newConn(r.Context(), ws, s.queueSize)
	defer c.close()
	defer s.mgr.DetachSink(c)

	limiter := security.NewRateLimiter(security.MessageRateLimit, security.MessageRateBurst)

	for {
		_, data, err := ws.Read(c.ctx)
		if err != nil {
			return
		}

		// Rate limit: drop messages beyond the allowed rate.
		if !limiter.Allow() {
			continue
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			// Malformed frames get an error frame; the connection
			// always stays open.
			c.send(errorFrame("", "", codeMalformedMessage, "invalid JSON message"))
			continue
		}

		s.dispatch(c, msg)
	}
}

// dispatch routes one parsed message. The MsgType set is closed; every
// branch is handled here and anything else is an error frame.
func (s *Server) dispatch(c *conn, msg ClientMessage) {
	switch msg.Type {
	case MsgCreate:
		s.handleCreate(c, msg)
	case MsgDestroy:
		s.handleDestroy(c, msg)
	case MsgCommand:
		s.handleCommand(c, msg)
	case MsgResize:
		s.handleResize(c, msg)
	case MsgData:
		s.handleData(c, msg)
	case MsgListSessions:
		s.handleList(c, msg)
	case MsgStatus:
		c.send(ServerMessage{Type: MsgStatus, ID: msg.ID, Status: s.status()})
	default:
		c.send(errorFrame(msg.ID, "", codeUnknownType, "unknown message type "+strconv.Quote(string(msg.Type))))
	}
}

func (s *Server) handleCreate(c *conn, msg ClientMessage) {
	info, err := s.mgr.Create(msg.WorkbranchID, msg.Shell, msg.Cwd, msg.Title, c)
	if err != nil {
		c.send(errorFrame(msg.ID, "", createErrorCode(err), err.Error()))
		return
	}
	c.send(ServerMessage{
		Type:         MsgCreated,
		ID:           msg.ID,
		SessionID:    info.ID,
		WorkbranchID: info.Workbranch,
		Shell:        info.Shell,
	})
}

func createErrorCode(err error) string {
	switch {
	case errors.Is(err, session.ErrCapacityExceeded):
		return codeCapacityExceeded
	case errors.Is(err, session.ErrOutsideRoot):
		return codeInvalidRequest
	default:
		return codeSpawnFailed
	}
}

func (s *Server) handleDestroy(c *conn, msg ClientMessage) {
	// Idempotent: the response is success-shaped whether the session
	// was just removed or already gone.
	s.mgr.DestroyRequested(msg.SessionID, c)
	c.send(ServerMessage{
		Type:      MsgDestroyed,
		ID:        msg.ID,
		SessionID: msg.SessionID,
		Reason:    "destroyed",
	})
}

func (s *Server) handleCommand(c *conn, msg ClientMessage) {
	if len(msg.Data) > security.MaxInputMessageSize {
		c.send(errorFrame(msg.ID, msg.SessionID, codeMessageTooLarge, "command exceeds input size limit"))
		return
	}
	// A command may reference a detached session; sending input
	// reattaches this connection so the resulting output has somewhere
	// to go.
	s.reattachIfDetached(c, msg.SessionID)

	verdict, err := s.mgr.SendCommand(msg.SessionID, msg.Data)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			c.send(errorFrame(msg.ID, msg.SessionID, codeSessionNotFound, "no session with that ID"))
			return
		}
		c.send(errorFrame(msg.ID, msg.SessionID, codeInvalidRequest, err.Error()))
		return
	}
	if !verdict.Allowed {
		c.send(errorFrame(msg.ID, msg.SessionID, string(verdict.Reason), verdict.Guidance))
	}
}

func (s *Server) handleData(c *conn, msg ClientMessage) {
	if len(msg.Data) > security.MaxInputMessageSize {
		c.send(errorFrame(msg.ID, msg.SessionID, codeMessageTooLarge, "input exceeds size limit"))
		return
	}
	s.reattachIfDetached(c, msg.SessionID)

	if err := s.mgr.SendRaw(msg.SessionID, []byte(msg.Data)); err != nil {
		c.send(errorFrame(msg.ID, msg.SessionID, codeSessionNotFound, "no session with that ID"))
	}
}

func (s *Server) handleResize(c *conn, msg ClientMessage) {
	if msg.Cols == 0 || msg.Rows == 0 {
		c.send(errorFrame(msg.ID, msg.SessionID, codeInvalidRequest, "cols and rows must be positive"))
		return
	}
	cols, rows := msg.Cols, msg.Rows
	if cols > security.MaxTermCols {
		cols = security.MaxTermCols
	}
	if rows > security.MaxTermRows {
		rows = security.MaxTermRows
	}
	if err := s.mgr.Resize(msg.SessionID, cols, rows); err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			c.send(errorFrame(msg.ID, msg.SessionID, codeSessionNotFound, "no session with that ID"))
			return
		}
		c.send(errorFrame(msg.ID, msg.SessionID, codeInvalidRequest, err.Error()))
	}
}

func (s *Server) handleList(c *conn, msg ClientMessage) {
	c.send(ServerMessage{
		Type:         MsgSessionList,
		ID:           msg.ID,
		WorkbranchID: msg.WorkbranchID,
		Sessions:     s.mgr.List(msg.WorkbranchID),
	})
}

// reattachIfDetached re-binds a detached session to this connection,
// which is how a client resumes its sessions within the grace window.
func (s *Server) reattachIfDetached(c *conn, sessionID string) {
	info, err := s.mgr.Get(sessionID)
	if err != nil || info.Attached {
		return
	}
	if _, err := s.mgr.Attach(sessionID, c); err != nil {
		log.Printf("[gateway] reattach %s failed: %v", sessionID, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
