package realtime

import (
	"errors"
	"strings"
	"sync"

	"github.com/rentwise/rentwise/pkg/metrics"
)

var (
	// ErrUnknownConnection is returned when the connection id is not registered.
	ErrUnknownConnection = errors.New("realtime: unknown connection")
	// ErrDuplicateConnection is returned when a connection id is registered twice.
	ErrDuplicateConnection = errors.New("realtime: duplicate connection id")
	// ErrEmptyUserID is returned when an identity announcement carries no user id.
	ErrEmptyUserID = errors.New("realtime: user id is required")
)

// State describes where a connection is in its lifecycle.
type State int

const (
	// StateDisconnected is terminal; unknown ids also report it.
	StateDisconnected State = iota
	// StateConnecting means the transport is open but no identity was announced.
	StateConnecting
	// StateAuthenticated means the connection belongs to a user's broadcast group.
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "disconnected"
	}
}

// Conn is a live connection able to accept outbound messages.
type Conn interface {
	ID() string
	// Send queues a message without blocking and reports whether it was accepted.
	Send(Message) bool
}

// Registry tracks live connections and their announced users.
type Registry interface {
	Connect(conn Conn) error
	Authenticate(connID, userID string) error
	Remove(connID string)
	Broadcast(userID string, message Message) int
}

type presenceEntry struct {
	conn   Conn
	userID string
}

// Presence is the in-memory Registry. Each server (or test) owns its own instance.
type Presence struct {
	mu     sync.RWMutex
	conns  map[string]*presenceEntry
	groups map[string]map[string]Conn
}

var _ Registry = (*Presence)(nil)

// NewPresence constructs an empty registry.
func NewPresence() *Presence {
	return &Presence{
		conns:  make(map[string]*presenceEntry),
		groups: make(map[string]map[string]Conn),
	}
}

// Connect registers a connection in the Connecting state.
func (p *Presence) Connect(conn Conn) error {
	if conn == nil || conn.ID() == "" {
		return ErrUnknownConnection
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.conns[conn.ID()]; exists {
		return ErrDuplicateConnection
	}
	p.conns[conn.ID()] = &presenceEntry{conn: conn}
	metrics.RealtimeConnections.WithLabelValues(StateConnecting.String()).Inc()
	return nil
}

// Authenticate binds the connection to userID. A later announcement replaces the
// earlier one and moves the connection to the new user's group.
func (p *Presence) Authenticate(connID, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ErrEmptyUserID
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	entry, ok := p.conns[connID]
	if !ok {
		return ErrUnknownConnection
	}
	if entry.userID == userID {
		return nil
	}

	if entry.userID == "" {
		metrics.RealtimeConnections.WithLabelValues(StateConnecting.String()).Dec()
		metrics.RealtimeConnections.WithLabelValues(StateAuthenticated.String()).Inc()
	} else {
		p.leaveGroupLocked(entry.userID, connID)
	}

	entry.userID = userID
	group := p.groups[userID]
	if group == nil {
		group = make(map[string]Conn)
		p.groups[userID] = group
	}
	group[connID] = entry.conn
	return nil
}

// Remove drops the connection. Removing an unknown id is a no-op.
func (p *Presence) Remove(connID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, ok := p.conns[connID]
	if !ok {
		return
	}
	delete(p.conns, connID)

	if entry.userID == "" {
		metrics.RealtimeConnections.WithLabelValues(StateConnecting.String()).Dec()
		return
	}
	p.leaveGroupLocked(entry.userID, connID)
	metrics.RealtimeConnections.WithLabelValues(StateAuthenticated.String()).Dec()
}

// Broadcast offers message to every authenticated connection of userID and
// returns how many accepted it. Without an audience the message is dropped.
func (p *Presence) Broadcast(userID string, message Message) int {
	p.mu.RLock()
	group := p.groups[userID]
	targets := make([]Conn, 0, len(group))
	for _, conn := range group {
		targets = append(targets, conn)
	}
	p.mu.RUnlock()

	if len(targets) == 0 {
		metrics.RealtimeDeliveries.WithLabelValues(message.Event, "no_audience").Inc()
		return 0
	}

	delivered := 0
	for _, conn := range targets {
		if conn.Send(message) {
			delivered++
			metrics.RealtimeDeliveries.WithLabelValues(message.Event, "delivered").Inc()
			continue
		}
		metrics.RealtimeDeliveries.WithLabelValues(message.Event, "dropped").Inc()
	}
	return delivered
}

// State reports the lifecycle state of a connection.
func (p *Presence) State(connID string) State {
	p.mu.RLock()
	defer p.mu.RUnlock()

	entry, ok := p.conns[connID]
	switch {
	case !ok:
		return StateDisconnected
	case entry.userID == "":
		return StateConnecting
	default:
		return StateAuthenticated
	}
}

// UserOf returns the user bound to a connection.
func (p *Presence) UserOf(connID string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	entry, ok := p.conns[connID]
	if !ok || entry.userID == "" {
		return "", false
	}
	return entry.userID, true
}

// ConnectionCount returns the number of authenticated connections for userID.
func (p *Presence) ConnectionCount(userID string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.groups[userID])
}

// ActiveConnections returns the number of registered connections in any live state.
func (p *Presence) ActiveConnections() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.conns)
}

// ConnectedUsers returns the number of users with at least one authenticated connection.
func (p *Presence) ConnectedUsers() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.groups)
}

func (p *Presence) leaveGroupLocked(userID, connID string) {
	group := p.groups[userID]
	delete(group, connID)
	if len(group) == 0 {
		delete(p.groups, userID)
	}
}
