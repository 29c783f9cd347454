// Package session implements the daemon-side connection registry
// described in spec.md §4.16: a concurrent map from session id to
// per-connection state, sharded so the accept loop can update an
// entry while a query goroutine enumerates snapshots without a
// global lock.
package session

import (
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// State is a connection's position in its daemon-side lifecycle.
type State int

const (
	Handshaking State = iota
	Authenticating
	Listing
	Transferring
	Completed
	Failed
)

func (s State) String() string {
	switch s {
	case Handshaking:
		return "handshaking"
	case Authenticating:
		return "authenticating"
	case Listing:
		return "listing"
	case Transferring:
		return "transferring"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

func (s State) terminal() bool {
	return s == Completed || s == Failed
}

// Entry is a snapshot of one connection's state (spec.md §3, "Session
// state (daemon side)"). Snapshots returned to callers are copies;
// mutating one has no effect on the registry.
type Entry struct {
	ID            int64
	PeerAddr      string
	PeerHostname  string
	Module        string
	State         State
	StartedAt     time.Time
	BytesReceived uint64
	BytesSent     uint64
}

type entry struct {
	id            int64
	peerAddr      string
	peerHostname  atomic.Value // string
	module        atomic.Value // string
	state         atomic.Int32
	startedAt     time.Time
	bytesReceived atomic.Uint64
	bytesSent     atomic.Uint64
}

func (e *entry) snapshot() Entry {
	hostname, _ := e.peerHostname.Load().(string)
	module, _ := e.module.Load().(string)
	return Entry{
		ID:            e.id,
		PeerAddr:      e.peerAddr,
		PeerHostname:  hostname,
		Module:        module,
		State:         State(e.state.Load()),
		StartedAt:     e.startedAt,
		BytesReceived: e.bytesReceived.Load(),
		BytesSent:     e.bytesSent.Load(),
	}
}

// Registry is a concurrent, sharded session table. The zero value is
// not usable; construct with New.
type Registry struct {
	nextID  atomic.Int64
	entries *xsync.MapOf[int64, *entry]
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		entries: xsync.NewMapOf[int64, *entry](),
	}
}

// Register creates a new session entry for peerAddr (with an optional
// hostname, empty if not yet resolved) and returns its freshly
// assigned id. Ids are assigned from an atomic counter and are never
// reused within a Registry's lifetime.
func (r *Registry) Register(peerAddr, peerHostname string) int64 {
	id := r.nextID.Add(1)
	e := &entry{
		id:        id,
		peerAddr:  peerAddr,
		startedAt: time.Now(),
	}
	e.peerHostname.Store(peerHostname)
	e.module.Store("")
	e.state.Store(int32(Handshaking))
	r.entries.Store(id, e)
	return id
}

// SetState updates id's lifecycle state. It is a no-op if id is not
// present (e.g. the connection already terminated and was pruned).
func (r *Registry) SetState(id int64, s State) {
	if e, ok := r.entries.Load(id); ok {
		e.state.Store(int32(s))
	}
}

// SetModule records which module id is bound to.
func (r *Registry) SetModule(id int64, module string) {
	if e, ok := r.entries.Load(id); ok {
		e.module.Store(module)
	}
}

// SetHostname records a resolved reverse-DNS hostname for id.
func (r *Registry) SetHostname(id int64, hostname string) {
	if e, ok := r.entries.Load(id); ok {
		e.peerHostname.Store(hostname)
	}
}

// AddBytes adds to id's received/sent counters.
func (r *Registry) AddBytes(id int64, received, sent uint64) {
	e, ok := r.entries.Load(id)
	if !ok {
		return
	}
	if received > 0 {
		e.bytesReceived.Add(received)
	}
	if sent > 0 {
		e.bytesSent.Add(sent)
	}
}

// Unregister removes id unconditionally, regardless of its state.
func (r *Registry) Unregister(id int64) {
	r.entries.Delete(id)
}

// Get returns a snapshot of id's current state.
func (r *Registry) Get(id int64) (Entry, bool) {
	e, ok := r.entries.Load(id)
	if !ok {
		return Entry{}, false
	}
	return e.snapshot(), true
}

// Len returns the number of tracked sessions.
func (r *Registry) Len() int {
	return r.entries.Size()
}

// PruneInactive removes every entry whose state is Completed or
// Failed.
func (r *Registry) PruneInactive() int {
	var pruned int
	r.entries.Range(func(id int64, e *entry) bool {
		if State(e.state.Load()).terminal() {
			r.entries.Delete(id)
			pruned++
		}
		return true
	})
	return pruned
}

// PruneOlderThan removes every entry started more than age ago,
// regardless of state; intended as a janitor hook for connections
// stuck without ever reaching a terminal state.
func (r *Registry) PruneOlderThan(age time.Duration) int {
	cutoff := time.Now().Add(-age)
	var pruned int
	r.entries.Range(func(id int64, e *entry) bool {
		if e.startedAt.Before(cutoff) {
			r.entries.Delete(id)
			pruned++
		}
		return true
	})
	return pruned
}

// ActiveSessions returns a snapshot of every tracked session. Order is
// unspecified.
func (r *Registry) ActiveSessions() []Entry {
	out := make([]Entry, 0, r.entries.Size())
	r.entries.Range(func(_ int64, e *entry) bool {
		out = append(out, e.snapshot())
		return true
	})
	return out
}

// SessionsForModule returns a snapshot of every tracked session bound
// to module.
func (r *Registry) SessionsForModule(module string) []Entry {
	var out []Entry
	r.entries.Range(func(_ int64, e *entry) bool {
		if m, _ := e.module.Load().(string); m == module {
			out = append(out, e.snapshot())
		}
		return true
	})
	return out
}
