package realtime

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/rentwise/rentwise/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10 // 64 KiB

	defaultBufferSize = 64
)

// ErrHubClosed is returned for upgrades attempted after Close.
var ErrHubClosed = errors.New("realtime: hub closed")

// IdentityVerifier confirms an identity announcement. It returns the user id the
// connection should be bound to.
type IdentityVerifier interface {
	VerifyIdentity(announcedUserID, token string) (string, error)
}

// HubOption customises a Hub.
type HubOption func(*Hub)

// WithIdentityVerifier requires announcements to carry a token accepted by verifier.
func WithIdentityVerifier(verifier IdentityVerifier) HubOption {
	return func(h *Hub) {
		h.verifier = verifier
	}
}

// WithAllowedOrigins permits cross-origin upgrades from the listed origins.
// "*" allows any origin.
func WithAllowedOrigins(origins []string) HubOption {
	return func(h *Hub) {
		for _, origin := range origins {
			origin = strings.TrimSpace(origin)
			if origin == "" {
				continue
			}
			if origin == "*" {
				h.allowAnyOrigin = true
				continue
			}
			h.allowedOrigins[strings.ToLower(hostWithoutPort(origin))] = struct{}{}
		}
	}
}

// WithSendBuffer sets the per-connection outbound queue length.
func WithSendBuffer(size int) HubOption {
	return func(h *Hub) {
		if size > 0 {
			h.sendBuffer = size
		}
	}
}

// Hub accepts WebSocket connections, handles identity announcements and fans
// events out to the connections of each user through its Presence registry.
type Hub struct {
	presence *Presence
	upgrader websocket.Upgrader
	verifier IdentityVerifier
	log      *zap.Logger

	allowAnyOrigin bool
	allowedOrigins map[string]struct{}
	sendBuffer     int

	mu      sync.Mutex
	clients map[*connection]struct{}
	closed  bool
}

// NewHub constructs a realtime hub with its own presence registry.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		presence:       NewPresence(),
		log:            logger.WithModule("realtime"),
		allowedOrigins: make(map[string]struct{}),
		sendBuffer:     defaultBufferSize,
		clients:        make(map[*connection]struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}

	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// Presence exposes the registry backing the hub.
func (h *Hub) Presence() *Presence {
	return h.presence
}

// Serve upgrades the HTTP connection and runs it until the peer disconnects.
// The connection starts unauthenticated and receives nothing until it announces
// an identity.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		http.Error(w, ErrHubClosed.Error(), http.StatusServiceUnavailable)
		return
	}

	socket, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("upgrade failed", zap.Error(err))
		return
	}

	client := newConnection(h, socket, uuid.NewString())
	if err := h.register(client); err != nil {
		h.log.Warn("register connection failed", zap.String("connection_id", client.id), zap.Error(err))
		_ = socket.Close()
		return
	}
	h.log.Debug("connection opened", zap.String("connection_id", client.id), zap.String("remote", r.RemoteAddr))

	go client.writeLoop()
	client.readLoop()
}

// Broadcast delivers message to every authenticated connection of userID on this instance.
func (h *Hub) Broadcast(userID string, message Message) int {
	return h.presence.Broadcast(userID, message)
}

// EmitToUser queues a named event for every connection of userID. It never
// blocks and never reports delivery failures.
func (h *Hub) EmitToUser(userID, event string, data any) {
	delivered := h.Broadcast(userID, Message{Event: event, Data: data})
	h.log.Debug("event emitted",
		logger.UserID(userID),
		zap.String("event", event),
		zap.Int("delivered", delivered),
	)
}

// ActiveConnections reports the number of open connections.
func (h *Hub) ActiveConnections() int {
	return h.presence.ActiveConnections()
}

// ConnectedUsers reports how many distinct users hold an authenticated connection.
func (h *Hub) ConnectedUsers() int {
	return h.presence.ConnectedUsers()
}

// Closed reports whether Close has been called.
func (h *Hub) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// Close disconnects every client and rejects further upgrades.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	clients := make([]*connection, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.Unlock()

	for _, client := range clients {
		client.close()
	}
}

func (h *Hub) register(client *connection) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrHubClosed
	}
	if err := h.presence.Connect(client); err != nil {
		return err
	}
	h.clients[client] = struct{}{}
	return nil
}

func (h *Hub) unregister(client *connection) {
	h.presence.Remove(client.id)

	h.mu.Lock()
	delete(h.clients, client)
	h.mu.Unlock()
}

func (h *Hub) authenticate(client *connection, ctrl ControlMessage) {
	userID := strings.TrimSpace(ctrl.UserID)

	if h.verifier != nil {
		verified, err := h.verifier.VerifyIdentity(userID, ctrl.Token)
		if err != nil {
			h.log.Info("identity announcement rejected",
				zap.String("connection_id", client.id),
				logger.UserID(userID),
				zap.Error(err),
			)
			client.Send(Message{Event: EventError, Data: ErrorPayload{Code: "UNAUTHORIZED", Message: "identity could not be verified"}})
			return
		}
		userID = verified
	}

	if err := h.presence.Authenticate(client.id, userID); err != nil {
		client.Send(Message{Event: EventError, Data: ErrorPayload{Code: "BAD_REQUEST", Message: err.Error()}})
		return
	}

	h.log.Debug("connection authenticated", zap.String("connection_id", client.id), logger.UserID(userID))
	client.Send(Message{Event: EventAuthenticated, Data: map[string]string{"user_id": userID}})
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowAnyOrigin {
		return true
	}
	originHost := strings.ToLower(hostWithoutPort(origin))
	if _, ok := h.allowedOrigins[originHost]; ok {
		return true
	}
	return originHost == strings.ToLower(hostWithoutPort(r.Host)) || isLoopback(originHost)
}

type connection struct {
	hub    *Hub
	socket *websocket.Conn
	id     string
	send   chan Message
	done   chan struct{}
	once   sync.Once
}

func newConnection(hub *Hub, socket *websocket.Conn, id string) *connection {
	return &connection{
		hub:    hub,
		socket: socket,
		id:     id,
		send:   make(chan Message, hub.sendBuffer),
		done:   make(chan struct{}),
	}
}

func (c *connection) ID() string {
	return c.id
}

// Send queues message for the write loop. A full queue drops the message.
func (c *connection) Send(message Message) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- message:
		return true
	default:
		c.hub.log.Warn("dropping message for slow connection",
			zap.String("connection_id", c.id),
			zap.String("event", message.Event),
		)
		return false
	}
}

func (c *connection) readLoop() {
	defer c.close()

	c.socket.SetReadLimit(maxMessageSize)
	_ = c.socket.SetReadDeadline(time.Now().Add(pongWait))
	c.socket.SetPongHandler(func(string) error {
		_ = c.socket.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, payload, err := c.socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.hub.log.Info("unexpected close", zap.String("connection_id", c.id), zap.Error(err))
			}
			return
		}

		if len(payload) == 0 {
			continue
		}

		var ctrl ControlMessage
		if err := json.Unmarshal(payload, &ctrl); err != nil {
			c.hub.log.Debug("invalid control payload", zap.String("connection_id", c.id), zap.Error(err))
			continue
		}

		switch strings.ToLower(strings.TrimSpace(ctrl.Action)) {
		case ActionAuthenticate:
			c.hub.authenticate(c, ctrl)
		case ActionPing:
			c.Send(Message{Event: EventPong})
		default:
			c.hub.log.Debug("unsupported control action", zap.String("connection_id", c.id), zap.String("action", ctrl.Action))
		}
	}
}

func (c *connection) writeLoop() {
	defer c.close()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.socket.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return
		case message := <-c.send:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteJSON(message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *connection) close() {
	c.once.Do(func() {
		c.hub.unregister(c)
		close(c.done)
		// Let the write loop flush its close frame first.
		time.AfterFunc(writeWait/10, func() {
			_ = c.socket.Close()
		})
		c.hub.log.Debug("connection closed", zap.String("connection_id", c.id))
	})
}

func hostWithoutPort(host string) string {
	host = strings.TrimSpace(host)
	if host == "" {
		return ""
	}

	if strings.Contains(host, "://") {
		if parsed, err := url.Parse(host); err == nil {
			return hostWithoutPort(parsed.Host)
		}
	}

	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

func isLoopback(host string) bool {
	ip := net.ParseIP(host)
	if ip != nil {
		return ip.IsLoopback()
	}
	return strings.EqualFold(host, "localhost")
}
