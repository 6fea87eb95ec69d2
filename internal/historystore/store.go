// Package historystore is the optional match-history archive
// (SPEC_FULL.md §11.6): a fire-and-forget audit trail of finished rooms,
// entirely outside the authoritative in-memory state the session server
// governs. Modeled on the teacher's internal/db repository pattern
// (pgxpool-backed, one method per query), but New owns migrating the schema
// itself through the same pool it serves queries from, rather than opening
// a second database/sql connection just to run goose.
package historystore

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/gomokusrv/arbiter/internal/historystore/migrations"
	"github.com/gomokusrv/arbiter/internal/sessionsrv"
)

var gooseDialectOnce sync.Once

// Store persists finished-room records to PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to PostgreSQL, applies the match_history schema, and returns
// a Store handle ready for RecordMatch.
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	if err := migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrating match history schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

// migrate applies pending goose migrations over pool's own connections
// (stdlib.OpenDBFromPool), so the migration run and the query pool share one
// underlying connection set instead of dialing the database twice.
func migrate(ctx context.Context, pool *pgxpool.Pool) error {
	var dialectErr error
	gooseDialectOnce.Do(func() {
		goose.SetBaseFS(migrations.FS)
		dialectErr = goose.SetDialect("postgres")
	})
	if dialectErr != nil {
		return fmt.Errorf("setting goose dialect: %w", dialectErr)
	}

	sqlDB := stdlib.OpenDBFromPool(pool)
	defer sqlDB.Close()

	return goose.UpContext(ctx, sqlDB, ".")
}

// Close closes the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

var _ sessionsrv.HistoryStore = (*Store)(nil)

// RecordMatch appends one finished-room record. The insert runs on its own
// goroutine and failures are logged, not returned — the dispatcher treats the
// archive as fire-and-forget and never blocks gameplay on it (SPEC_FULL.md
// §11.6).
func (s *Store) RecordMatch(ctx context.Context, m sessionsrv.MatchRecord) {
	go func() {
		_, err := s.pool.Exec(ctx,
			`INSERT INTO match_history (room_id, players, winner, reason, move_count, started_at, finished_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			m.RoomID, m.Players, m.Winner, m.Reason, m.MoveCount, m.StartedAt, m.FinishedAt,
		)
		if err != nil {
			slog.Error("recording match history", "room", m.RoomID, "error", err)
		}
	}()
}
