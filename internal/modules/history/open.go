// README: Picks the history backend from the DSN scheme.
package history

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"chatmap/internal/infra"
)

// Open picks a Store by the DSN scheme:
//
//	postgres://, postgresql://   Postgres through pgx
//	sqlite://<path>, file:...    SQLite through gorm
//	mysql://<go-sql-driver dsn>  MySQL through gorm
func Open(ctx context.Context, dsn string) (Store, error) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		pool, err := infra.NewDB(ctx, dsn)
		if err != nil {
			return nil, fmt.Errorf("history: connect postgres: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("history: ping postgres: %w", err)
		}
		s := NewPGStore(pool)
		if err := s.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("history: create schema: %w", err)
		}
		return s, nil

	case strings.HasPrefix(dsn, "sqlite://"), strings.HasPrefix(dsn, "file:"):
		return openGorm(sqlite.Open(strings.TrimPrefix(dsn, "sqlite://")))

	case strings.HasPrefix(dsn, "mysql://"):
		return openGorm(mysql.Open(mysqlDSN(strings.TrimPrefix(dsn, "mysql://"))))

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDSN, redactDSN(dsn))
	}
}

func openGorm(dialector gorm.Dialector) (Store, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", dialector.Name(), err)
	}
	return NewGormStore(db)
}

// mysqlDSN makes sure DATETIME columns scan into time.Time.
func mysqlDSN(dsn string) string {
	if strings.Contains(dsn, "parseTime=") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&parseTime=true"
	}
	return dsn + "?parseTime=true"
}

func redactDSN(dsn string) string {
	if i := strings.Index(dsn, "://"); i >= 0 {
		return dsn[:i+3] + "..."
	}
	if len(dsn) > 8 {
		return dsn[:8] + "..."
	}
	return dsn
}
