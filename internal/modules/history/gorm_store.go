// README: GORM-backed turn history for SQLite and MySQL.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// turnRow is the chat_turns table as seen by gorm.
type turnRow struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	SessionID   string `gorm:"size:64;not null;uniqueIndex:idx_session_turn"`
	TurnID      uint64 `gorm:"not null;uniqueIndex:idx_session_turn"`
	Query       string `gorm:"type:text"`
	Answer      string `gorm:"type:text"`
	State       string `gorm:"size:16"`
	TaskType    string `gorm:"size:16"`
	Locations   string `gorm:"type:text"`
	Error       string `gorm:"type:text"`
	CreatedAt   time.Time
	CompletedAt time.Time
}

func (turnRow) TableName() string { return "chat_turns" }

// GormStore keeps turn history in SQLite or MySQL.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore migrates chat_turns and returns the store.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&turnRow{}); err != nil {
		return nil, fmt.Errorf("history: migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) Record(ctx context.Context, r Record) error {
	locs, err := marshalLocations(r)
	if err != nil {
		return err
	}
	row := turnRow{
		SessionID:   r.SessionID,
		TurnID:      r.TurnID,
		Query:       r.Query,
		Answer:      r.Answer,
		State:       r.State,
		TaskType:    r.TaskType,
		Locations:   string(locs),
		Error:       r.Error,
		CreatedAt:   r.CreatedAt,
		CompletedAt: r.CompletedAt,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}, {Name: "turn_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"query", "answer", "state", "task_type", "locations", "error", "completed_at"}),
	}).Create(&row).Error
}

func (s *GormStore) List(ctx context.Context, sessionID string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	var rows []turnRow
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("turn_id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]Record, 0, len(rows))
	for _, row := range rows {
		r := Record{
			SessionID:   row.SessionID,
			TurnID:      row.TurnID,
			Query:       row.Query,
			Answer:      row.Answer,
			State:       row.State,
			TaskType:    row.TaskType,
			Error:       row.Error,
			CreatedAt:   row.CreatedAt,
			CompletedAt: row.CompletedAt,
		}
		if err := json.Unmarshal([]byte(row.Locations), &r.Locations); err != nil {
			return nil, fmt.Errorf("history: decode locations for turn %d: %w", row.TurnID, err)
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *GormStore) LastTurnID(ctx context.Context, sessionID string) (uint64, error) {
	var last int64
	err := s.db.WithContext(ctx).
		Model(&turnRow{}).
		Select("COALESCE(MAX(turn_id), 0)").
		Where("session_id = ?", sessionID).
		Row().
		Scan(&last)
	if err != nil {
		return 0, fmt.Errorf("history: last turn id: %w", err)
	}
	return uint64(last), nil
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
