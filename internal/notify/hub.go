package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// HubSource identifies replies the hub itself sends.
const HubSource = "websocket-hub"

// inbound is a client frame. Action selects the route.
type inbound struct {
	Action  string          `json:"action"`
	Message json.RawMessage `json:"message,omitempty"`
}

type session struct {
	id        string
	owner     string
	conn      *websocket.Conn
	connected time.Time
}

// Hub accepts websocket sessions carrying a verified session token and keeps
// the owner -> connection map used to address notifications. It serves as
// both the Resolver and the Sender of a Channel.
type Hub struct {
	verifier   TokenVerifier
	acceptOpts *websocket.AcceptOptions
	newID      func() string
	now        func() time.Time

	mu       sync.RWMutex
	sessions map[string]*session // connection id -> session
	owners   map[string][]string // owner -> connection ids, oldest first
}

var (
	_ Resolver     = (*Hub)(nil)
	_ Sender       = (*Hub)(nil)
	_ http.Handler = (*Hub)(nil)
)

// NewHub creates a Hub. Sessions are registered under the owner verifier
// returns for the request's token. originPatterns is passed to
// websocket.Accept; an empty list only admits same-origin browsers.
func NewHub(verifier TokenVerifier, originPatterns ...string) *Hub {
	return &Hub{
		verifier:   verifier,
		acceptOpts: &websocket.AcceptOptions{OriginPatterns: originPatterns},
		newID:      func() string { return uuid.NewString() },
		now:        time.Now,
		sessions:   make(map[string]*session),
		owners:     make(map[string][]string),
	}
}

// ServeHTTP upgrades the request and serves the session until it closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	owner, err := h.verifier.VerifyOwner(requestToken(r))
	if err != nil {
		slog.Warn("websocket_unauthorized", slog.String("remote", r.RemoteAddr), slog.String("error", err.Error()))
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, h.acceptOpts)
	if err != nil {
		slog.Warn("websocket_accept_failed", slog.String("owner", owner), slog.String("error", err.Error()))
		return
	}

	s := &session{id: h.newID(), owner: owner, conn: conn, connected: h.now()}
	h.register(s)
	defer h.unregister(s)

	slog.Info("websocket_connected", slog.String("owner", owner), slog.String("connection_id", s.id))

	ctx := r.Context()
	if err := h.reply(ctx, s, TypeConnection, s.id); err != nil {
		_ = conn.Close(websocket.StatusInternalError, "handshake failed")
		return
	}

	for {
		var msg inbound
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway {
				slog.Debug("websocket_read_ended", slog.String("connection_id", s.id), slog.String("error", err.Error()))
			}
			break
		}
		if err := h.route(ctx, s, msg); err != nil {
			slog.Warn("websocket_reply_failed", slog.String("connection_id", s.id), slog.String("error", err.Error()))
			break
		}
	}

	_ = conn.Close(websocket.StatusNormalClosure, "")
	slog.Info("websocket_disconnected", slog.String("owner", owner), slog.String("connection_id", s.id))
}

func (h *Hub) route(ctx context.Context, s *session, msg inbound) error {
	switch msg.Action {
	case "whoami":
		return h.reply(ctx, s, TypeConnection, s.id)
	case "message":
		var text string
		if err := json.Unmarshal(msg.Message, &text); err != nil {
			text = string(msg.Message)
		}
		return h.reply(ctx, s, TypeMessage, text)
	default:
		return h.reply(ctx, s, TypeDefault, "default route hit")
	}
}

func (h *Hub) reply(ctx context.Context, s *session, kind, text string) error {
	writeCtx, cancel := context.WithTimeout(ctx, DefaultSendTimeout)
	defer cancel()
	return wsjson.Write(writeCtx, s.conn, Notification{
		Source:       HubSource,
		Type:         kind,
		Message:      text,
		ConnectionID: s.id,
	})
}

func (h *Hub) register(s *session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[s.id] = s
	h.owners[s.owner] = append(h.owners[s.owner], s.id)
}

func (h *Hub) unregister(s *session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions, s.id)

	ids := h.owners[s.owner]
	for i, id := range ids {
		if id == s.id {
			ids = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	if len(ids) == 0 {
		delete(h.owners, s.owner)
	} else {
		h.owners[s.owner] = ids
	}
}

// ConnectionID returns the owner's most recent live connection.
func (h *Hub) ConnectionID(_ context.Context, owner string) (string, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := h.owners[owner]
	if len(ids) == 0 {
		return "", nil
	}
	return ids[len(ids)-1], nil
}

// Send writes n to the connection as JSON.
func (h *Hub) Send(ctx context.Context, connectionID string, n Notification) error {
	h.mu.RLock()
	s, ok := h.sessions[connectionID]
	h.mu.RUnlock()
	if !ok {
		return ErrConnectionGone
	}
	return wsjson.Write(ctx, s.conn, n)
}

// Sessions returns the number of live sessions.
func (h *Hub) Sessions() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Close closes every live session.
func (h *Hub) Close() {
	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.sessions))
	for _, s := range h.sessions {
		conns = append(conns, s.conn)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		_ = c.Close(websocket.StatusGoingAway, "server shutting down")
	}
}
