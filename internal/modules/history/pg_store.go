// README: Postgres-backed turn history (pgx).
package history

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const pgSchema = `
CREATE TABLE IF NOT EXISTS chat_turns (
	session_id   TEXT        NOT NULL,
	turn_id      BIGINT      NOT NULL,
	query        TEXT        NOT NULL,
	answer       TEXT        NOT NULL DEFAULT '',
	state        TEXT        NOT NULL,
	task_type    TEXT        NOT NULL DEFAULT '',
	locations    JSONB       NOT NULL DEFAULT '[]',
	error        TEXT        NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (session_id, turn_id)
)`

// PGStore handles chat_turns persistence in Postgres.
type PGStore struct {
	db *pgxpool.Pool
}

// NewPGStore returns a PGStore backed by the given connection pool.
func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

// EnsureSchema creates chat_turns when it does not exist yet.
func (s *PGStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, pgSchema)
	return err
}

// Record upserts r; a turn recorded twice keeps the later outcome.
func (s *PGStore) Record(ctx context.Context, r Record) error {
	locs, err := marshalLocations(r)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO chat_turns (session_id, turn_id, query, answer, state, task_type, locations, error, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (session_id, turn_id) DO UPDATE SET
			query = EXCLUDED.query,
			answer = EXCLUDED.answer,
			state = EXCLUDED.state,
			task_type = EXCLUDED.task_type,
			locations = EXCLUDED.locations,
			error = EXCLUDED.error,
			completed_at = EXCLUDED.completed_at
	`, r.SessionID, int64(r.TurnID), r.Query, r.Answer, r.State, r.TaskType, locs, r.Error, r.CreatedAt, r.CompletedAt)
	return err
}

func (s *PGStore) List(ctx context.Context, sessionID string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := s.db.Query(ctx, `
		SELECT session_id, turn_id, query, answer, state, task_type, locations, error, created_at, completed_at
		FROM chat_turns
		WHERE session_id = $1
		ORDER BY turn_id DESC
		LIMIT $2
	`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Record{}
	for rows.Next() {
		var (
			r      Record
			turnID int64
			locs   []byte
		)
		if err := rows.Scan(&r.SessionID, &turnID, &r.Query, &r.Answer, &r.State, &r.TaskType, &locs, &r.Error, &r.CreatedAt, &r.CompletedAt); err != nil {
			return nil, err
		}
		r.TurnID = uint64(turnID)
		if err := json.Unmarshal(locs, &r.Locations); err != nil {
			return nil, fmt.Errorf("history: decode locations for turn %d: %w", turnID, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PGStore) LastTurnID(ctx context.Context, sessionID string) (uint64, error) {
	var last int64
	err := s.db.QueryRow(ctx, `SELECT COALESCE(MAX(turn_id), 0) FROM chat_turns WHERE session_id = $1`, sessionID).Scan(&last)
	if err != nil {
		return 0, fmt.Errorf("history: last turn id: %w", err)
	}
	return uint64(last), nil
}

func (s *PGStore) Close() error {
	s.db.Close()
	return nil
}

func marshalLocations(r Record) ([]byte, error) {
	if r.Locations == nil {
		return []byte("[]"), nil
	}
	raw, err := json.Marshal(r.Locations)
	if err != nil {
		return nil, fmt.Errorf("history: encode locations: %w", err)
	}
	return raw, nil
}
