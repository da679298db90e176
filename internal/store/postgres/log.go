package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/parley/internal/domain"
)

type LogRepo struct {
	pool *pgxpool.Pool
}

func NewLogRepo(pool *pgxpool.Pool) *LogRepo {
	return &LogRepo{pool: pool}
}

func (r *LogRepo) Append(ctx context.Context, entry *domain.LogEntry) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO log_entries (id, ts, category, description, detail)
		 VALUES ($1, $2, $3, $4, $5)`,
		entry.ID, entry.Timestamp, entry.Category, entry.Description, entry.Detail,
	)
	if err != nil {
		return fmt.Errorf("logRepo.Append: %w", err)
	}

	return nil
}

// ListRecent returns at most limit entries, newest first.
func (r *LogRepo) ListRecent(ctx context.Context, limit int) ([]*domain.LogEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, ts, category, description, detail
		 FROM log_entries
		 ORDER BY ts DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("logRepo.ListRecent: %w", err)
	}
	defer rows.Close()

	entries := []*domain.LogEntry{}
	for rows.Next() {
		var e domain.LogEntry

		err = rows.Scan(&e.ID, &e.Timestamp, &e.Category, &e.Description, &e.Detail)
		if err != nil {
			return nil, fmt.Errorf("logRepo.ListRecent: scan: %w", err)
		}
		entries = append(entries, &e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("logRepo.ListRecent: rows: %w", err)
	}

	return entries, nil
}
