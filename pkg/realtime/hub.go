package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"

	"github.com/screenleads/backend/pkg/api"
	"github.com/screenleads/backend/pkg/auth"
	"github.com/screenleads/backend/pkg/debug"
	"github.com/screenleads/backend/pkg/observability"
	"github.com/screenleads/backend/pkg/tenant"
	"github.com/screenleads/backend/pkg/transport"
)

const (
	defaultConnectTimeout = 10 * time.Second
	writeTimeout          = 5 * time.Second
	sendBuffer            = 32
)

// Hub accepts websocket sessions and routes published messages to them.
type Hub struct {
	Authn    *auth.BearerAuthenticator
	Registry *Registry

	// AllowedOrigins are host patterns accepted in addition to the
	// request's own host.
	AllowedOrigins []string

	// ConnectTimeout bounds the wait for the CONNECT frame.
	ConnectTimeout time.Duration

	mu       sync.RWMutex
	sessions map[string]*client
}

type client struct {
	id       string
	identity *auth.Identity
	scope    tenant.Scope
	send     chan Frame
	cancel   context.CancelFunc
}

func (c *client) enqueue(f Frame) bool {
	select {
	case c.send <- f:
		return true
	default:
		return false
	}
}

// NewHub creates a hub over registry.
func NewHub(authn *auth.BearerAuthenticator, registry *Registry) *Hub {
	return &Hub{
		Authn:    authn,
		Registry: registry,
		sessions: make(map[string]*client),
	}
}

// Sessions returns the number of connected sessions.
func (h *Hub) Sessions() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// ServeConnect upgrades the request and runs the session until the client
// disconnects or the server shuts down.
func (h *Hub) ServeConnect(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.AllowedOrigins})
	if err != nil {
		debug.Log("realtime", "websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c, err := h.handshake(ctx, conn)
	if err != nil {
		slog.Warn("realtime connect rejected", "remote_addr", r.RemoteAddr, "reason", err)
		conn.Close(websocket.StatusPolicyViolation, "connect rejected")
		return
	}

	c.cancel = cancel
	h.register(c)
	defer h.unregister(c)

	go h.writeLoop(ctx, cancel, conn, c)

	for {
		var f Frame
		if err := wsjson.Read(ctx, conn, &f); err != nil {
			debug.Log("realtime", "session read ended", "session", c.id, "error", err)
			return
		}

		switch f.Command {
		case CommandSubscribe:
			if msg := h.subscribe(c, f.Destination); msg != "" {
				c.enqueue(errorFrame(msg))
			}
		case CommandUnsubscribe:
			h.Registry.Unsubscribe(f.Destination, c.id)
		case CommandDisconnect:
			// The close handshake waits for the peer; the session leaves
			// the hub before it starts.
			h.unregister(c)
			cancel()
			conn.Close(websocket.StatusNormalClosure, "disconnect")
			return
		default:
			c.enqueue(errorFrame("unsupported command " + f.Command))
		}
	}
}

func (h *Hub) handshake(ctx context.Context, conn *websocket.Conn) (*client, error) {
	timeout := h.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	hctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var f Frame
	if err := wsjson.Read(hctx, conn, &f); err != nil {
		return nil, err
	}
	if f.Command != CommandConnect {
		wsjson.Write(hctx, conn, errorFrame("expected CONNECT"))
		return nil, errors.New("first frame was " + f.Command)
	}

	token, ok := auth.BearerToken(f.header("Authorization"))
	if !ok {
		wsjson.Write(hctx, conn, errorFrame(api.MessageInvalidCredential))
		return nil, auth.ErrUnauthenticated
	}
	id, err := h.Authn.AuthenticateToken(hctx, token)
	if err != nil {
		wsjson.Write(hctx, conn, errorFrame(api.MessageInvalidCredential))
		return nil, err
	}

	c := &client{
		id:       uuid.NewString(),
		identity: id,
		scope:    tenant.ForIdentity(id),
		send:     make(chan Frame, sendBuffer),
	}
	if err := wsjson.Write(hctx, conn, Frame{
		Command: CommandConnected,
		Headers: map[string]string{"session": c.id, "user-name": id.Subject},
	}); err != nil {
		return nil, err
	}
	return c, nil
}

func (h *Hub) subscribe(c *client, destination string) string {
	if !ValidDestination(destination) {
		return "invalid destination"
	}
	if company, ok := CompanyOf(destination); ok && !c.scope.Allows(company) {
		slog.Warn("realtime subscription denied",
			"session", c.id,
			"subject", c.identity.Subject,
			"destination", destination,
		)
		return "access denied"
	}
	h.Registry.Subscribe(destination, c.id)
	debug.Log("realtime", "subscribed", "session", c.id, "destination", destination)
	return ""
}

func (h *Hub) writeLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, c *client) {
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case f := <-c.send:
			wctx, wcancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(wctx, conn, f)
			wcancel()
			if err != nil {
				debug.Log("realtime", "session write failed", "session", c.id, "error", err)
				return
			}
		}
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.sessions[c.id] = c
	h.mu.Unlock()
	observability.RealtimeSessions.Inc()
	debug.Log("realtime", "session connected", "session", c.id, "subject", c.identity.Subject)
}

// unregister removes c from the hub. Repeated calls are no-ops.
func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	_, ok := h.sessions[c.id]
	delete(h.sessions, c.id)
	h.mu.Unlock()
	if !ok {
		return
	}
	h.Registry.Disconnect(c.id)
	observability.RealtimeSessions.Dec()
	debug.Log("realtime", "session closed", "session", c.id)
}

// Publish delivers body to every session subscribed to destination and
// returns the number of sessions it was queued for. Sessions whose send
// buffer is full miss the message.
func (h *Hub) Publish(destination string, body any) (int, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return 0, err
	}
	frame := Frame{Command: CommandMessage, Destination: destination, Body: raw}

	delivered := 0
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, id := range h.Registry.Subscribers(destination) {
		c, ok := h.sessions[id]
		if !ok {
			continue
		}
		if c.enqueue(frame) {
			delivered++
		} else {
			slog.Warn("realtime message dropped", "session", id, "destination", destination)
		}
	}
	return delivered, nil
}

// Shutdown ends every open session. Sessions are closed without a close
// handshake; clients are expected to reconnect.
func (h *Hub) Shutdown() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.sessions {
		c.cancel()
	}
	if n := len(h.sessions); n > 0 {
		slog.Info("realtime sessions closed for shutdown", "sessions", n)
	}
}

// ServeStatus reports the subscriber count of every destination.
func (h *Hub) ServeStatus(w http.ResponseWriter, r *http.Request) {
	transport.WriteJSON(w, http.StatusOK, h.Registry.Counts())
}
