// Package pool manages authenticated RouterOS connections: per-key health
// state with exponential backoff, idle connection reuse with expiry, and
// scoped lease semantics that guarantee release on every exit path.
package pool

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/metricsmith/routeros_exporter/internal/routeros"
)

// idleTTL is how long a pooled-but-unused connection may sit before it is
// evicted by the background sweep.
const idleTTL = 5 * time.Minute

// idleSweepInterval is how often the background eviction sweep runs.
const idleSweepInterval = 60 * time.Second

// Conn is the subset of *routeros.Conn the pool depends on; it exists so
// tests can substitute a fake dialer without a real socket.
type Conn interface {
	Run(path string, args map[string]string) ([]routeros.Sentence, error)
	Login(user, password string) error
	Close() error
}

// Dialer opens a new, unauthenticated connection to addr.
type Dialer func(addr string) (Conn, error)

// DefaultDialer dials the real RouterOS wire protocol.
func DefaultDialer(addr string) (Conn, error) {
	return routeros.Dial(addr)
}

// ErrBackoff is returned by Acquire when the backoff gate refuses an
// attempt without performing any network I/O.
var ErrBackoff = errors.New("pool: target temporarily disabled due to consecutive errors")

type idleEntry struct {
	conn     Conn
	lastUsed time.Time
}

// Pool owns live connections keyed by (address, user), issues scoped
// leases, and tracks consecutive-error state per key.
type Pool struct {
	dial   Dialer
	logger *slog.Logger

	mu     sync.Mutex
	idle   map[Key]*idleEntry
	leased map[Key]int
	states map[Key]*connState

	shutdown chan struct{}
	closeOne sync.Once
}

// New constructs a Pool. A nil dialer uses DefaultDialer.
func New(dial Dialer, logger *slog.Logger) *Pool {
	if dial == nil {
		dial = DefaultDialer
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pool{
		dial:     dial,
		logger:   logger,
		idle:     make(map[Key]*idleEntry),
		leased:   make(map[Key]int),
		states:   make(map[Key]*connState),
		shutdown: make(chan struct{}),
	}
	go p.idleEvictionLoop()
	return p
}

// Lease is a scoped handle granting exclusive use of a pooled connection.
// Release must be called exactly once; Use is preferred since it
// guarantees this even across panics.
type Lease struct {
	pool      *Pool
	key       Key
	conn      Conn
	released  bool
	discarded bool
}

// Conn returns the leased connection.
func (l *Lease) Conn() Conn { return l.conn }

// Discard marks the connection as unfit to return to the pool (e.g. after
// a transport-level error); Release will close it instead of pooling it.
func (l *Lease) Discard() {
	l.discarded = true
}

// Release returns the connection to the pool (or closes it, if shutting
// down or discarded). Safe to call multiple times.
func (l *Lease) Release() {
	if l.released {
		return
	}
	l.released = true
	l.pool.release(l.key, l.conn, l.discarded)
}

// Acquire resolves a connection for key following the four-step
// acquisition contract: backoff gate, idle reuse, fresh dial+login, state
// update.
func (p *Pool) Acquire(key Key, secret Secret) (*Lease, error) {
	now := time.Now()

	p.mu.Lock()
	state, ok := p.states[key]
	if !ok {
		state = newConnState()
		p.states[key] = state
	}
	if state.shouldSkip(now) {
		p.mu.Unlock()
		return nil, fmt.Errorf("%w: %s@%s (%d consecutive errors)", ErrBackoff, key.User, key.Address, state.consecutiveErrors)
	}

	if entry, ok := p.idle[key]; ok {
		if now.Sub(entry.lastUsed) < idleTTL {
			delete(p.idle, key)
			p.leased[key]++
			p.mu.Unlock()
			return &Lease{pool: p, key: key, conn: entry.conn}, nil
		}
		delete(p.idle, key)
		_ = entry.conn.Close()
	}
	p.mu.Unlock()

	conn, err := p.dial(key.Address)
	if err != nil {
		p.recordFailure(key, now)
		return nil, err
	}
	if err := conn.Login(key.User, secret.Reveal()); err != nil {
		_ = conn.Close()
		p.recordFailure(key, now)
		return nil, err
	}

	p.mu.Lock()
	state.recordSuccess(now)
	p.leased[key]++
	p.mu.Unlock()

	return &Lease{pool: p, key: key, conn: conn}, nil
}

// Use acquires a lease, invokes fn, and guarantees the lease is released
// on every exit path — normal return, error return, or panic — which is
// the scoped-resource pattern this pool is built around.
func (p *Pool) Use(key Key, secret Secret, fn func(Conn) error) (err error) {
	lease, err := p.Acquire(key, secret)
	if err != nil {
		return err
	}
	defer lease.Release()
	defer func() {
		if r := recover(); r != nil {
			lease.Discard()
			lease.Release()
			panic(r)
		}
	}()

	if err := fn(lease.Conn()); err != nil {
		lease.Discard()
		return err
	}
	return nil
}

func (p *Pool) recordFailure(key Key, now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	state, ok := p.states[key]
	if !ok {
		state = newConnState()
		p.states[key] = state
	}
	state.recordError(now)
}

func (p *Pool) release(key Key, conn Conn, discard bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.leased[key] > 0 {
		p.leased[key]--
	}

	select {
	case <-p.shutdown:
		discard = true
	default:
	}

	if discard {
		_ = conn.Close()
		return
	}
	p.idle[key] = &idleEntry{conn: conn, lastUsed: time.Now()}
}

// RecordSuccess records a successful operation against key without
// performing an acquire. The collector calls this (and RecordError) after
// command issuance succeeds or fails, strictly before releasing the
// lease, since the pool-state update must precede release to avoid the
// next acquire observing stale state.
func (p *Pool) RecordSuccess(key Key) {
	p.mu.Lock()
	defer p.mu.Unlock()
	state, ok := p.states[key]
	if !ok {
		state = newConnState()
		p.states[key] = state
	}
	state.recordSuccess(time.Now())
}

// RecordError records a failed operation against key.
func (p *Pool) RecordError(key Key) {
	p.recordFailure(key, time.Now())
}

// State returns (consecutiveErrors, everSucceeded) for key, if known.
func (p *Pool) State(key Key) (consecutiveErrors int, everSucceeded bool, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.states[key]
	if !ok {
		return 0, false, false
	}
	return s.consecutiveErrors, s.everSucceeded, true
}

// Stats returns (totalPooled, currentlyLeased) across all keys, for the
// HTTP health view.
func (p *Pool) Stats() (totalPooled, currentlyLeased int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	totalPooled = len(p.idle)
	for _, n := range p.leased {
		currentlyLeased += n
	}
	return totalPooled, currentlyLeased
}

// CleanupStates removes error-state entries whose key is no longer
// configured, given the currently active set of keys.
func (p *Pool) CleanupStates(active map[Key]struct{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for key := range p.states {
		if _, ok := active[key]; !ok {
			delete(p.states, key)
		}
	}
}

func (p *Pool) idleEvictionLoop() {
	ticker := time.NewTicker(idleSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.shutdown:
			return
		case <-ticker.C:
			p.evictIdle()
		}
	}
}

func (p *Pool) evictIdle() {
	now := time.Now()
	p.mu.Lock()
	var expired []Conn
	for key, entry := range p.idle {
		if now.Sub(entry.lastUsed) > idleTTL {
			expired = append(expired, entry.conn)
			delete(p.idle, key)
		}
	}
	p.mu.Unlock()

	for _, conn := range expired {
		_ = conn.Close()
	}
	if len(expired) > 0 {
		p.logger.Debug("pool: evicted idle connections", "count", len(expired))
	}
}

// Shutdown stops the idle-eviction loop and discards all pooled
// connections instead of returning future releases to the pool.
func (p *Pool) Shutdown() {
	p.closeOne.Do(func() { close(p.shutdown) })

	p.mu.Lock()
	idle := p.idle
	p.idle = make(map[Key]*idleEntry)
	p.mu.Unlock()

	for _, entry := range idle {
		_ = entry.conn.Close()
	}
}
