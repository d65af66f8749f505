package session

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/jeffbot/soundboard/messages"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
)

// State is the lifecycle position of one connection.
type State int32

const (
	// StateConnecting is the transient initial state: socket accepted,
	// welcome not yet sent.
	StateConnecting State = iota
	// StateUnauthenticated means the welcome went out and only the
	// authenticate action may do real work.
	StateUnauthenticated
	// StateAuthenticated is the terminal success state; the bound identity
	// never changes afterwards.
	StateAuthenticated
	// StateClosed is terminal. No frames are processed or sent after it.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticated:
		return "authenticated"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

const (
	writeBufferSize = 64
	writeTimeout    = 10 * time.Second
	// pongGrace is how far past the keepalive period a silent peer may drift
	// before the read deadline fires.
	pongGrace = 10 * time.Second
)

// ClientSession represents a single live connection. It exclusively owns the
// socket: all reads happen in the read loop, all writes in the write pump.
type ClientSession struct {
	ID         string
	RemoteAddr string
	CreatedAt  time.Time

	conn       *websocket.Conn
	dispatcher *Dispatcher

	keepAlivePeriod time.Duration
	maxMessageSize  int64

	// Single-writer queue: handlers and the keepalive ticker never touch the
	// socket directly.
	writeChan chan any

	mu           sync.RWMutex
	state        State
	userID       string
	lastActivity time.Time
	closed       bool

	CloseChan chan struct{}
	ctx       context.Context
	cancel    context.CancelFunc

	// onAuthenticated is invoked once, when the identity is bound. Set by
	// the manager before Start.
	onAuthenticated func(*ClientSession)
}

// NewClientSession creates a session for an accepted connection. The caller
// still owns the conn until Start.
func NewClientSession(id string, conn *websocket.Conn, dispatcher *Dispatcher, keepAlivePeriod time.Duration, maxMessageSize int64) *ClientSession {
	ctx, cancel := context.WithCancel(context.Background())

	return &ClientSession{
		ID:              id,
		CreatedAt:       time.Now(),
		conn:            conn,
		dispatcher:      dispatcher,
		keepAlivePeriod: keepAlivePeriod,
		maxMessageSize:  maxMessageSize,
		writeChan:       make(chan any, writeBufferSize),
		state:           StateConnecting,
		lastActivity:    time.Now(),
		CloseChan:       make(chan struct{}),
		ctx:             ctx,
		cancel:          cancel,
	}
}

// Start sends the welcome envelope and begins the read loop and write pump.
func (cs *ClientSession) Start() {
	cs.conn.SetReadLimit(cs.maxMessageSize)
	if cs.RemoteAddr == "" {
		cs.RemoteAddr = cs.conn.RemoteAddr().String()
	}

	go cs.writePump()

	cs.queueMessage(messages.NewWelcomeMessage())
	cs.mu.Lock()
	cs.state = StateUnauthenticated
	cs.mu.Unlock()

	go cs.readLoop()
}

// State returns the current lifecycle state.
func (cs *ClientSession) State() State {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.state
}

// Authenticated reports whether an identity is bound.
func (cs *ClientSession) Authenticated() bool {
	return cs.State() == StateAuthenticated
}

// UserID returns the bound identity, empty until authentication succeeds.
func (cs *ClientSession) UserID() string {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.userID
}

// LastSeen returns when the session last processed or queued a frame.
func (cs *ClientSession) LastSeen() time.Time {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.lastActivity
}

// bindIdentity performs the single Unauthenticated -> Authenticated
// transition. Returns false when the session is already authenticated or
// closed; the identity is never rebound.
func (cs *ClientSession) bindIdentity(userID string) bool {
	cs.mu.Lock()
	if cs.state != StateUnauthenticated {
		cs.mu.Unlock()
		return false
	}
	cs.state = StateAuthenticated
	cs.userID = userID
	cs.mu.Unlock()

	log.Printf("🔐 [%s] User %s authenticated", cs.shortID(), userID)
	if cs.onAuthenticated != nil {
		cs.onAuthenticated(cs)
	}
	return true
}

// readLoop processes inbound frames one at a time: the next frame is read
// only after the previous envelope has been queued, so there is never more
// than one in-flight request per connection.
func (cs *ClientSession) readLoop() {
	defer cs.Close()

	cs.armReadDeadline()
	cs.conn.SetPongHandler(func(string) error {
		cs.armReadDeadline()
		return nil
	})

	for {
		select {
		case <-cs.CloseChan:
			return
		default:
			_, raw, err := cs.conn.ReadMessage()
			if err != nil {
				if !cs.IsClosed() && websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Printf("🔌 [%s] Read error: %v", cs.shortID(), err)
				}
				return
			}

			cs.touch()
			cs.armReadDeadline()

			cs.queueMessage(cs.dispatcher.Handle(cs, raw))
		}
	}
}

// writePump owns all socket writes: queued envelopes plus keepalive pings.
func (cs *ClientSession) writePump() {
	ticker := time.NewTicker(cs.keepAlivePeriod)
	defer func() {
		ticker.Stop()
		cs.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		cs.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
	}()

	for {
		select {
		case <-cs.CloseChan:
			return

		case <-ticker.C:
			cs.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := cs.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case msg, ok := <-cs.writeChan:
			if !ok {
				return
			}
			if !cs.writeEnvelope(msg) {
				return
			}

			// Drain whatever queued up while we were writing.
			n := len(cs.writeChan)
			for i := 0; i < n; i++ {
				select {
				case msg, ok := <-cs.writeChan:
					if !ok {
						return
					}
					if !cs.writeEnvelope(msg) {
						return
					}
				default:
				}
			}
		}
	}
}

func (cs *ClientSession) writeEnvelope(msg any) bool {
	data, err := sonic.Marshal(msg)
	if err != nil {
		log.Printf("❌ [%s] Failed to marshal envelope: %v", cs.shortID(), err)
		return true
	}
	cs.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return cs.conn.WriteMessage(websocket.TextMessage, data) == nil
}

// queueMessage hands an envelope to the write pump without blocking.
func (cs *ClientSession) queueMessage(msg any) {
	cs.mu.RLock()
	closed := cs.closed
	cs.mu.RUnlock()
	if closed {
		return
	}
	select {
	case cs.writeChan <- msg:
		cs.touch()
	default:
		log.Printf("⚠️ [%s] Write queue full, dropping envelope", cs.shortID())
	}
}

func (cs *ClientSession) touch() {
	cs.mu.Lock()
	cs.lastActivity = time.Now()
	cs.mu.Unlock()
}

func (cs *ClientSession) armReadDeadline() {
	cs.conn.SetReadDeadline(time.Now().Add(cs.keepAlivePeriod + pongGrace))
}

// Close transitions the session to Closed and releases the connection.
// Idempotent; any in-flight output is discarded.
func (cs *ClientSession) Close() error {
	cs.mu.Lock()
	if cs.closed {
		cs.mu.Unlock()
		return nil
	}
	cs.closed = true
	cs.state = StateClosed
	cs.mu.Unlock()

	cs.cancel()
	close(cs.writeChan)
	close(cs.CloseChan)

	if cs.conn != nil {
		cs.conn.Close()
	}

	return nil
}

// IsClosed returns whether the session has reached the Closed state.
func (cs *ClientSession) IsClosed() bool {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.closed
}

func (cs *ClientSession) shortID() string {
	if len(cs.ID) > 8 {
		return cs.ID[:8]
	}
	return cs.ID
}
