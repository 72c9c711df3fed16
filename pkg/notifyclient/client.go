// Package notifyclient subscribes to a user's live notification feed.
//
// A Subscription owns exactly one connection. It announces the user's identity
// as soon as the socket opens, invokes the callback once per "notification"
// event in arrival order and stops invoking it the moment Close begins.
// There is no reconnection and no replay of missed events.
package notifyclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	eventNotification  = "notification"
	eventAuthenticated = "authenticated"
	eventError         = "error"

	actionAuthenticate = "authenticate"

	writeWait = 10 * time.Second
)

// ErrNilCallback is returned when Subscribe is called without a callback.
var ErrNilCallback = errors.New("notifyclient: callback is required")

// Notification is the stored notification row pushed by the server.
type Notification struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Type      string          `json:"type"`
	Title     string          `json:"title"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data"`
	IsRead    bool            `json:"is_read"`
	CreatedAt time.Time       `json:"created_at"`
}

// Callback receives each pushed notification.
type Callback func(Notification)

// Options configures a subscription.
type Options struct {
	// URL is the WebSocket endpoint, e.g. ws://localhost:8080/ws.
	URL string
	// UserID is announced after connecting. Empty means do not subscribe.
	UserID string
	// Token is the access token sent with the announcement when the server verifies identities.
	Token  string
	Dialer *websocket.Dialer
	Header http.Header
	Logger *zap.Logger
}

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type announcement struct {
	Action string `json:"action"`
	UserID string `json:"user_id"`
	Token  string `json:"token,omitempty"`
}

type serverError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Subscription is a live feed for one user.
type Subscription struct {
	conn     *websocket.Conn
	callback Callback
	userID   string
	log      *zap.Logger

	closed    atomic.Bool
	closeOnce sync.Once
	stopCtx   func() bool

	// cbMu is held for the closed check and the callback it guards.
	cbMu     sync.Mutex
	readerID atomic.Uint64

	done          chan struct{}
	authenticated chan struct{}
	authOnce      sync.Once
	rejected      chan struct{}
	rejectOnce    sync.Once

	mu  sync.Mutex
	err error
}

// Subscribe opens one connection for opts.UserID and announces it. An empty
// user id yields a nil Subscription and no connection. Cancelling ctx tears the
// subscription down like Close.
func Subscribe(ctx context.Context, opts Options, callback Callback) (*Subscription, error) {
	userID := strings.TrimSpace(opts.UserID)
	if userID == "" {
		return nil, nil
	}
	if callback == nil {
		return nil, ErrNilCallback
	}
	if ctx == nil {
		ctx = context.Background()
	}

	dialer := opts.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	conn, _, err := dialer.DialContext(ctx, opts.URL, opts.Header)
	if err != nil {
		return nil, fmt.Errorf("notifyclient: dial %s: %w", opts.URL, err)
	}

	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(announcement{Action: actionAuthenticate, UserID: userID, Token: opts.Token}); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("notifyclient: announce identity: %w", err)
	}

	sub := &Subscription{
		conn:          conn,
		callback:      callback,
		userID:        userID,
		log:           log.With(zap.String("user_id", userID)),
		done:          make(chan struct{}),
		authenticated: make(chan struct{}),
		rejected:      make(chan struct{}),
	}
	sub.stopCtx = context.AfterFunc(ctx, sub.Close)

	go sub.readLoop()
	return sub, nil
}

// UserID returns the announced user.
func (s *Subscription) UserID() string {
	return s.userID
}

// Done is closed once the reader has stopped.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Authenticated is closed when the server acknowledges the announcement.
func (s *Subscription) Authenticated() <-chan struct{} {
	return s.authenticated
}

// Rejected is closed when the server reports an error before acknowledging the
// announcement. Err carries the server's reason.
func (s *Subscription) Rejected() <-chan struct{} {
	return s.rejected
}

// Err reports why the subscription ended on its own, or the last error the
// server reported. It is nil after a clean Close.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close stops callbacks, closes the connection and waits for the reader to
// exit. It is safe to call more than once. Called from within the callback it
// returns without waiting, since the reader cannot exit until the callback does.
func (s *Subscription) Close() {
	if s == nil {
		return
	}
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		if s.stopCtx != nil {
			s.stopCtx()
		}

		_ = s.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		_ = s.conn.Close()
	})

	if s.onReader() {
		return
	}

	// An in-flight callback either finishes here or saw closed and skipped.
	s.cbMu.Lock()
	s.cbMu.Unlock()
	<-s.done
}

func (s *Subscription) onReader() bool {
	id := s.readerID.Load()
	return id != 0 && id == goroutineID()
}

func (s *Subscription) readLoop() {
	defer close(s.done)
	s.readerID.Store(goroutineID())

	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			if !s.closed.Load() {
				s.setErr(fmt.Errorf("notifyclient: connection lost: %w", err))
				s.log.Debug("subscription ended", zap.Error(err))
			}
			return
		}

		var frame envelope
		if err := json.Unmarshal(payload, &frame); err != nil {
			s.log.Debug("ignoring malformed frame", zap.Error(err))
			continue
		}

		switch frame.Event {
		case eventNotification:
			var notification Notification
			if err := json.Unmarshal(frame.Data, &notification); err != nil {
				s.log.Debug("ignoring malformed notification", zap.Error(err))
				continue
			}
			s.dispatch(notification)
		case eventAuthenticated:
			s.authOnce.Do(func() { close(s.authenticated) })
		case eventError:
			var serr serverError
			_ = json.Unmarshal(frame.Data, &serr)
			s.setErr(fmt.Errorf("notifyclient: server error %s: %s", serr.Code, serr.Message))
			if !s.isAuthenticated() {
				s.rejectOnce.Do(func() { close(s.rejected) })
			}
		}
	}
}

func (s *Subscription) dispatch(notification Notification) {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()

	if s.closed.Load() {
		return
	}
	s.callback(notification)
}

func (s *Subscription) isAuthenticated() bool {
	select {
	case <-s.authenticated:
		return true
	default:
		return false
	}
}

func (s *Subscription) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}
