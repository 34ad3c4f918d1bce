// README: Turn model: lifecycle states, events and the per-turn handle returned to callers.
package turn

import (
	"errors"
	"strings"
	"sync"
	"time"

	"chatmap/internal/ai"
	"chatmap/internal/modules/geo"
	"chatmap/internal/modules/mapstate"
	"chatmap/internal/types"
)

var (
	ErrEmptyQuery        = errors.New("empty query")
	ErrInvalidTransition = errors.New("invalid turn state transition")
)

type State string

const (
	StateIdle           State = "idle"
	StateStreaming      State = "streaming"
	StateStreamComplete State = "stream_complete"
	StateExtracting     State = "extracting"
	StateExtracted      State = "extracted"
	StateReconciled     State = "reconciled"
	StateCancelled      State = "cancelled"
	StateError          State = "error"
)

var transitions = map[State][]State{
	StateIdle:           {StateStreaming},
	StateStreaming:      {StateStreamComplete, StateCancelled, StateError},
	StateStreamComplete: {StateExtracting, StateCancelled},
	StateExtracting:     {StateExtracted, StateCancelled, StateError},
	StateExtracted:      {StateReconciled, StateCancelled},
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateReconciled || s == StateCancelled || s == StateError
}

func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Turn is one submission and its lifecycle. Callers get it from Submit and may
// read it concurrently; only the orchestrator mutates it.
type Turn struct {
	id        uint64
	query     string
	history   []types.Message
	cfg       ai.EndpointConfig
	createdAt time.Time
	cancel    func()
	done      chan struct{}

	mu          sync.Mutex
	state       State
	text        strings.Builder
	cancelled   bool
	err         error
	result      *geo.Result
	validation  string
	completedAt time.Time
}

func newTurn(id uint64, query string, history []types.Message, cfg ai.EndpointConfig, cancel func()) *Turn {
	return &Turn{
		id:        id,
		query:     query,
		history:   history,
		cfg:       cfg,
		createdAt: time.Now().UTC(),
		cancel:    cancel,
		done:      make(chan struct{}),
		state:     StateIdle,
	}
}

func (t *Turn) ID() uint64 { return t.id }

// Done is closed once the turn reached a terminal state.
func (t *Turn) Done() <-chan struct{} { return t.done }

// Info is a point-in-time copy of a Turn.
type Info struct {
	ID         uint64      `json:"turn_id"`
	Query      string      `json:"query"`
	State      State       `json:"state"`
	Text       string      `json:"text"`
	Error      string      `json:"error,omitempty"`
	Validation string      `json:"validation,omitempty"`
	Result     *geo.Result `json:"result,omitempty"`
}

func (t *Turn) Info() Info {
	t.mu.Lock()
	defer t.mu.Unlock()
	info := Info{
		ID:         t.id,
		Query:      t.query,
		State:      t.state,
		Text:       t.text.String(),
		Validation: t.validation,
		Result:     t.result,
	}
	if t.err != nil {
		info.Error = t.err.Error()
	}
	return info
}

// advance moves the turn to next; t.mu must be held.
func (t *Turn) advance(next State) error {
	if !canTransition(t.state, next) {
		return ErrInvalidTransition
	}
	t.state = next
	if next.Terminal() {
		t.completedAt = time.Now().UTC()
	}
	return nil
}

type EventType string

const (
	EventText  EventType = "text"
	EventMap   EventType = "map"
	EventTurn  EventType = "turn"
	EventError EventType = "error"
)

// Event is published to subscribers of a conversation.
type Event struct {
	Type      EventType       `json:"type"`
	SessionID string          `json:"session_id"`
	TurnID    uint64          `json:"turn_id"`
	State     State           `json:"state,omitempty"`
	Delta     string          `json:"delta,omitempty"`
	Text      string          `json:"text,omitempty"`
	Map       *mapstate.State `json:"map,omitempty"`
	Error     string          `json:"error,omitempty"`
}
