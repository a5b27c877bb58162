package notify

import (
	"errors"
	"sync"
)

var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrSendBufferFull   = errors.New("send buffer full")
)

// Connection is one live delivery channel. Send must not block.
type Connection interface {
	Send(frame []byte) error
	Close() error
}

// Registry maps a user id to its live connections. State is in memory only;
// clients re-register after reconnecting.
type Registry struct {
	mu    sync.RWMutex
	conns map[uint]map[Connection]struct{}
	owner map[Connection]uint
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[uint]map[Connection]struct{}),
		owner: make(map[Connection]uint),
	}
}

// Register adds conn to userID's set. A connection already registered for
// another user is moved.
func (r *Registry) Register(userID uint, conn Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.owner[conn]; ok {
		if prev == userID {
			return
		}
		r.removeLocked(conn, prev)
	}
	set, ok := r.conns[userID]
	if !ok {
		set = make(map[Connection]struct{})
		r.conns[userID] = set
	}
	set[conn] = struct{}{}
	r.owner[conn] = userID
	liveConnections.Inc()
}

// Unregister removes conn from whichever user owns it. It reports whether the
// connection was registered.
func (r *Registry) Unregister(conn Connection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.owner[conn]
	if !ok {
		return false
	}
	r.removeLocked(conn, userID)
	return true
}

func (r *Registry) removeLocked(conn Connection, userID uint) {
	delete(r.owner, conn)
	if set, ok := r.conns[userID]; ok {
		delete(set, conn)
		if len(set) == 0 {
			delete(r.conns, userID)
		}
	}
	liveConnections.Dec()
}

// ConnectionsFor returns a snapshot of userID's live connections.
func (r *Registry) ConnectionsFor(userID uint) []Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.conns[userID]
	out := make([]Connection, 0, len(set))
	for conn := range set {
		out = append(out, conn)
	}
	return out
}

// Count returns the number of live connections across all users.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.owner)
}
