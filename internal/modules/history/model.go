// README: Turn history records; one row per finished turn, kept for the conversation log.
package history

import (
	"context"
	"errors"
	"time"

	"chatmap/internal/modules/geo"
)

var ErrUnsupportedDSN = errors.New("history: unsupported dsn")

// DefaultListLimit caps List when the caller passes a non-positive limit.
const DefaultListLimit = 50

type Record struct {
	SessionID   string         `json:"session_id"`
	TurnID      uint64         `json:"turn_id"`
	Query       string         `json:"query"`
	Answer      string         `json:"answer"`
	State       string         `json:"state"`
	TaskType    string         `json:"task_type,omitempty"`
	Locations   []geo.Location `json:"locations"`
	Error       string         `json:"error,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	CompletedAt time.Time      `json:"completed_at"`
}

// Store persists finished turns.
type Store interface {
	Record(ctx context.Context, r Record) error
	// List returns a session's turns, newest first.
	List(ctx context.Context, sessionID string, limit int) ([]Record, error)
	// LastTurnID returns the highest recorded turn id of a session, 0 when none.
	LastTurnID(ctx context.Context, sessionID string) (uint64, error)
	Close() error
}
