// README: Session registry: lazily creates orchestrators, restores map snapshots, evicts idle sessions.
package turn

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	DefaultIdleTTL     = 30 * time.Minute
	defaultJanitorTick = time.Minute
)

type sessionPruner interface {
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

// turnCounter is implemented by recorders that know a session's last recorded turn.
type turnCounter interface {
	LastTurnID(ctx context.Context, sessionID string) (uint64, error)
}

// Manager holds one Orchestrator per session and evicts idle ones.
type Manager struct {
	deps    Deps
	idleTTL time.Duration
	log     logrus.FieldLogger

	mu       sync.Mutex
	sessions map[string]*Orchestrator
	closed   bool
}

func NewManager(deps Deps, idleTTL time.Duration) *Manager {
	if idleTTL <= 0 {
		idleTTL = DefaultIdleTTL
	}
	log := deps.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Manager{
		deps:     deps,
		idleTTL:  idleTTL,
		log:      log,
		sessions: make(map[string]*Orchestrator),
	}
}

// Get returns the session's orchestrator. On first use it is created, its map is
// restored from the last snapshot and turn numbering continues after the newest
// persisted turn. Persistence lookups run without holding the registry lock.
func (m *Manager) Get(ctx context.Context, sessionID string) (*Orchestrator, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	if o, ok := m.sessions[sessionID]; ok {
		m.mu.Unlock()
		return o, nil
	}
	m.mu.Unlock()

	o := NewOrchestrator(sessionID, m.deps)
	m.resume(ctx, o)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		o.Close()
		return nil, ErrClosed
	}
	if existing, ok := m.sessions[sessionID]; ok {
		m.mu.Unlock()
		o.Close()
		return existing, nil
	}
	m.sessions[sessionID] = o
	m.deps.Metrics.setSessions(len(m.sessions))
	m.mu.Unlock()
	return o, nil
}

func (m *Manager) resume(ctx context.Context, o *Orchestrator) {
	log := m.log.WithField("session_id", o.SessionID())
	if m.deps.Snapshots != nil {
		snap, ok, err := m.deps.Snapshots.Load(ctx, o.SessionID())
		switch {
		case err != nil:
			log.WithError(err).Warn("sessions: load snapshot failed, starting empty")
		case ok:
			o.Restore(snap)
			log.WithField("version", snap.Version).Info("sessions: restored map snapshot")
		}
	}
	if c, ok := m.deps.Recorder.(turnCounter); ok {
		last, err := c.LastTurnID(ctx, o.SessionID())
		if err != nil {
			log.WithError(err).Warn("sessions: read last turn id failed")
			return
		}
		o.continueAfter(last)
	}
}

// Lookup returns an existing orchestrator without creating one.
func (m *Manager) Lookup(sessionID string) (*Orchestrator, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.sessions[sessionID]
	return o, ok
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Evict closes sessions idle since before cutoff that have no running turn and
// no event subscribers. It returns how many were closed.
func (m *Manager) Evict(cutoff time.Time) int {
	m.mu.Lock()
	var stale []*Orchestrator
	for id, o := range m.sessions {
		last, quiet := o.idle()
		if quiet && last.Before(cutoff) && o.events.Subscribers() == 0 {
			stale = append(stale, o)
			delete(m.sessions, id)
		}
	}
	m.deps.Metrics.setSessions(len(m.sessions))
	m.mu.Unlock()

	for _, o := range stale {
		o.Close()
	}
	return len(stale)
}

// RunJanitor evicts idle sessions until ctx is done.
func (m *Manager) RunJanitor(ctx context.Context) {
	tick := m.idleTTL / 2
	if tick > defaultJanitorTick {
		tick = defaultJanitorTick
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := m.Evict(now.Add(-m.idleTTL)); n > 0 {
				m.log.WithField("evicted", n).Info("sessions: evicted idle conversations")
			}
			if p, ok := m.deps.Snapshots.(sessionPruner); ok {
				if _, err := p.Prune(ctx, now.Add(-24*time.Hour)); err != nil {
					m.log.WithError(err).Warn("sessions: prune snapshot index failed")
				}
			}
		}
	}
}

// Close shuts every session down.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	all := make([]*Orchestrator, 0, len(m.sessions))
	for id, o := range m.sessions {
		all = append(all, o)
		delete(m.sessions, id)
	}
	m.deps.Metrics.setSessions(0)
	m.mu.Unlock()

	for _, o := range all {
		o.Close()
	}
}
