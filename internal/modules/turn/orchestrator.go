// README: Request orchestrator; runs one conversation's turns, keeps a single turn in flight and gates map writes by turn id.
package turn

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"chatmap/internal/ai"
	"chatmap/internal/modules/chat"
	"chatmap/internal/modules/geo"
	"chatmap/internal/modules/history"
	"chatmap/internal/modules/mapstate"
	"chatmap/internal/types"
)

var ErrClosed = errors.New("conversation closed")

// persistTimeout bounds snapshot and history writes after a turn ends.
const persistTimeout = 5 * time.Second

type Recorder interface {
	Record(ctx context.Context, r history.Record) error
}

// SnapshotStore persists the map per session. Save must refuse a snapshot whose
// version is not newer than the stored one (mapstate.ErrStaleSnapshot).
type SnapshotStore interface {
	Save(ctx context.Context, sessionID string, snap mapstate.Snapshot) error
	Load(ctx context.Context, sessionID string) (mapstate.Snapshot, bool, error)
}

// Deps are shared by every conversation. Recorder, Snapshots and Metrics are optional.
type Deps struct {
	Generator *chat.Generator
	Extractor *geo.Extractor
	Recorder  Recorder
	Snapshots SnapshotStore
	Metrics   *Metrics
	Logger    logrus.FieldLogger
}

type Orchestrator struct {
	sessionID string
	deps      Deps
	log       logrus.FieldLogger
	state     *mapstate.Holder
	events    *Broker
	base      context.Context
	stop      context.CancelFunc
	wg        sync.WaitGroup

	mu       sync.Mutex
	nextID   uint64
	active   *Turn
	history  []types.Message
	lastUsed time.Time
	closed   bool
}

func NewOrchestrator(sessionID string, deps Deps) *Orchestrator {
	log := deps.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithField("session_id", sessionID)
	base, stop := context.WithCancel(context.Background())
	return &Orchestrator{
		sessionID: sessionID,
		deps:      deps,
		log:       log,
		state:     mapstate.NewHolder(),
		events:    NewBroker(log),
		base:      base,
		stop:      stop,
		lastUsed:  time.Now(),
	}
}

func (o *Orchestrator) SessionID() string { return o.sessionID }

func (o *Orchestrator) Events() *Broker { return o.events }

// MapState returns the current render state and the turn id that produced it.
func (o *Orchestrator) MapState() (mapstate.State, uint64) {
	return o.state.Get()
}

// History returns a copy of the conversation used as context for the next turn.
func (o *Orchestrator) History() []types.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]types.Message, len(o.history))
	copy(out, o.history)
	return out
}

// Active returns the in-flight turn, or nil.
func (o *Orchestrator) Active() *Turn {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active
}

// Restore seeds the map from a snapshot; turn numbering continues after its version.
func (o *Orchestrator) Restore(snap mapstate.Snapshot) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state.Restore(snap.State, snap.Version)
	o.continueAfterLocked(snap.Version)
}

// continueAfter makes sure the next turn id is greater than id.
func (o *Orchestrator) continueAfter(id uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.continueAfterLocked(id)
}

func (o *Orchestrator) continueAfterLocked(id uint64) {
	if id > o.nextID {
		o.nextID = id
	}
}

// Submit starts a new turn for query, cancelling the one in flight.
// A *ai.ConfigError is returned, and no turn started, when cfg is incomplete.
func (o *Orchestrator) Submit(query string, cfg ai.EndpointConfig) (*Turn, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil, ErrClosed
	}
	o.cancelActiveLocked()

	o.nextID++
	hist := make([]types.Message, len(o.history), len(o.history)+1)
	copy(hist, o.history)
	hist = append(hist, types.Message{Role: types.RoleUser, Content: query})

	ctx, cancel := context.WithCancel(o.base)
	t := newTurn(o.nextID, query, hist, cfg, cancel)
	t.mu.Lock()
	_ = t.advance(StateStreaming)
	t.mu.Unlock()

	o.active = t
	o.lastUsed = time.Now()
	o.wg.Add(1)
	o.publish(Event{Type: EventTurn, TurnID: t.id, State: StateStreaming})
	o.mu.Unlock()

	o.log.WithFields(logrus.Fields{"turn_id": t.id, "provider": cfg.Provider, "model": cfg.Model}).Info("turn: submitted")
	go o.run(ctx, t)
	return t, nil
}

// Cancel stops the in-flight turn. It reports whether there was one.
func (o *Orchestrator) Cancel() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.lastUsed = time.Now()
	return o.cancelActiveLocked()
}

// Clear cancels the in-flight turn, forgets the conversation and resets the map.
// The reset consumes a turn id of its own, so the persisted empty map outranks
// any snapshot an earlier turn is still writing.
func (o *Orchestrator) Clear() mapstate.State {
	o.mu.Lock()
	o.cancelActiveLocked()
	o.history = nil
	o.lastUsed = time.Now()
	o.nextID++
	floor := o.nextID
	st := o.state.Reset(floor)
	o.publish(Event{Type: EventMap, TurnID: floor, Map: &st})
	o.mu.Unlock()

	o.saveSnapshot(st, floor, o.log)
	o.log.WithField("floor", floor).Info("turn: conversation cleared")
	return st
}

// Close cancels any turn, waits for it to unwind and ends all subscriptions.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	o.closed = true
	o.cancelActiveLocked()
	o.mu.Unlock()

	o.stop()
	o.wg.Wait()
	o.events.CloseAll()
}

// idle reports when the conversation was last used and whether a turn is running.
func (o *Orchestrator) idle() (time.Time, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastUsed, o.active == nil
}

// cancelActiveLocked flags the active turn and closes its context; o.mu must be held.
func (o *Orchestrator) cancelActiveLocked() bool {
	t := o.active
	if t == nil {
		return false
	}
	t.mu.Lock()
	t.cancelled = true
	t.mu.Unlock()
	t.cancel()
	o.active = nil
	return true
}

func (o *Orchestrator) run(ctx context.Context, t *Turn) {
	defer o.wg.Done()
	defer close(t.done)
	defer t.cancel()

	log := o.log.WithField("turn_id", t.id)

	stream, err := o.deps.Generator.Generate(ctx, t.history, t.cfg)
	if err != nil {
		o.fail(t, err, log)
		return
	}
	defer stream.Close()

	for {
		frag, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			o.fail(t, err, log)
			return
		}
		o.deps.Metrics.fragment()
		o.appendText(t, frag)
	}

	answer := stream.Text()
	if !o.completeStream(t, answer) {
		o.fail(t, ai.ErrCancelled, log)
		return
	}

	start := time.Now()
	res, err := o.deps.Extractor.Extract(ctx, answer, t.history, t.cfg)
	o.deps.Metrics.extractDone(time.Since(start))

	var ve *geo.ValidationError
	switch {
	case err == nil:
	case errors.As(err, &ve):
		// The answer stays visible; only the map falls back to an empty result.
		log.WithError(err).Warn("turn: extraction rejected")
		t.mu.Lock()
		t.validation = ve.Error()
		t.mu.Unlock()
		res = geo.Empty(answer)
		res.Dropped = ve.Dropped
	default:
		o.fail(t, err, log)
		return
	}

	o.deps.Metrics.droppedLocations(len(res.Dropped))
	o.commit(t, res, log)
}

func (o *Orchestrator) appendText(t *Turn, frag string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancelled {
		return
	}
	t.text.WriteString(frag)
	o.publish(Event{Type: EventText, TurnID: t.id, Delta: frag, Text: t.text.String()})
}

// completeStream records the finished answer in the conversation and moves the
// turn to extraction. It returns false when the turn was cancelled meanwhile.
func (o *Orchestrator) completeStream(t *Turn, answer string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancelled {
		return false
	}

	_ = t.advance(StateStreamComplete)
	o.publish(Event{Type: EventTurn, TurnID: t.id, State: StateStreamComplete, Text: answer})

	next := make([]types.Message, len(t.history), len(t.history)+1)
	copy(next, t.history)
	o.history = append(next, types.Message{Role: types.RoleAssistant, Content: answer})

	_ = t.advance(StateExtracting)
	o.publish(Event{Type: EventTurn, TurnID: t.id, State: StateExtracting})
	return true
}

// commit applies res to the map unless the turn was cancelled. The check and the
// write happen under o.mu, the same lock Cancel and Submit take.
func (o *Orchestrator) commit(t *Turn, res geo.Result, log logrus.FieldLogger) {
	o.mu.Lock()
	t.mu.Lock()
	if t.cancelled {
		t.mu.Unlock()
		o.mu.Unlock()
		o.fail(t, ai.ErrCancelled, log)
		return
	}

	_ = t.advance(StateExtracted)
	t.result = &res
	if len(res.Dropped) > 0 && t.validation == "" {
		t.validation = fmt.Sprintf("%d location(s) dropped for invalid coordinates", len(res.Dropped))
	}

	st, applied := o.state.Apply(t.id, res)
	if applied {
		_ = t.advance(StateReconciled)
		o.publish(Event{Type: EventMap, TurnID: t.id, Map: &st})
	} else {
		_ = t.advance(StateCancelled)
		log.Warn("turn: stale result discarded")
	}
	final := t.state
	if o.active == t {
		o.active = nil
	}
	o.publish(Event{Type: EventTurn, TurnID: t.id, State: final})
	t.mu.Unlock()
	o.mu.Unlock()

	o.deps.Metrics.turnFinished(final)
	log.WithFields(logrus.Fields{
		"state":     final,
		"task_type": res.TaskType,
		"markers":   len(st.Markers),
	}).Info("turn: finished")

	if applied {
		o.saveSnapshot(st, t.id, log)
	}
	o.record(t, log)
}

// fail ends the turn as cancelled or errored. Cancellation is never reported as an error.
func (o *Orchestrator) fail(t *Turn, err error, log logrus.FieldLogger) {
	o.mu.Lock()
	t.mu.Lock()
	if t.state.Terminal() {
		t.mu.Unlock()
		o.mu.Unlock()
		return
	}

	next := StateError
	if t.cancelled || errors.Is(err, ai.ErrCancelled) {
		next, err = StateCancelled, nil
	}
	if advErr := t.advance(next); advErr != nil {
		log.WithFields(logrus.Fields{"from": t.state, "to": next}).Warn("turn: forcing terminal state")
		t.state = next
		t.completedAt = time.Now().UTC()
	}
	t.err = err
	if o.active == t {
		o.active = nil
	}

	ev := Event{Type: EventTurn, TurnID: t.id, State: next}
	if err != nil {
		ev.Error = err.Error()
	}
	o.publish(ev)
	if next == StateError {
		o.publish(Event{Type: EventError, TurnID: t.id, Text: t.text.String(), Error: err.Error()})
	}
	t.mu.Unlock()
	o.mu.Unlock()

	o.deps.Metrics.turnFinished(next)
	if next == StateError {
		log.WithError(err).Warn("turn: failed")
	} else {
		log.Info("turn: cancelled")
	}
	o.record(t, log)
}

func (o *Orchestrator) publish(ev Event) {
	ev.SessionID = o.sessionID
	o.events.Publish(ev)
}

func (o *Orchestrator) saveSnapshot(st mapstate.State, version uint64, log logrus.FieldLogger) {
	if o.deps.Snapshots == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	err := o.deps.Snapshots.Save(ctx, o.sessionID, mapstate.Snapshot{Version: version, State: st})
	switch {
	case errors.Is(err, mapstate.ErrStaleSnapshot):
		log.WithField("version", version).Debug("turn: newer snapshot already stored")
	case err != nil:
		log.WithError(err).Warn("turn: save snapshot failed")
	}
}

func (o *Orchestrator) record(t *Turn, log logrus.FieldLogger) {
	if o.deps.Recorder == nil {
		return
	}
	info := t.Info()
	rec := history.Record{
		SessionID: o.sessionID,
		TurnID:    t.id,
		Query:     t.query,
		Answer:    info.Text,
		State:     string(info.State),
		Error:     info.Error,
		Locations: []geo.Location{},
		CreatedAt: t.createdAt,
	}
	t.mu.Lock()
	rec.CompletedAt = t.completedAt
	t.mu.Unlock()
	if info.Result != nil {
		rec.TaskType = string(info.Result.TaskType)
		rec.Locations = info.Result.Locations
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := o.deps.Recorder.Record(ctx, rec); err != nil {
		log.WithError(err).Warn("turn: record history failed")
	}
}
