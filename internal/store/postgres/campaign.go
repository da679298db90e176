package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/parley/internal/domain"
)

const campaignColumns = `id, account_id, targets, templates, count, min_delay_ms, max_delay_ms,
	status, sent, failed, error_kind, error, started_at, completed_at, created_at`

type CampaignRepo struct {
	pool *pgxpool.Pool
}

func NewCampaignRepo(pool *pgxpool.Pool) *CampaignRepo {
	return &CampaignRepo{pool: pool}
}

func (r *CampaignRepo) Create(ctx context.Context, c *domain.Campaign) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO campaigns (`+campaignColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		c.ID, c.AccountID, c.Targets, c.Templates, c.Count,
		c.MinDelay.Milliseconds(), c.MaxDelay.Milliseconds(),
		c.Status, c.Sent, c.Failed, c.ErrorKind, c.Error,
		c.StartedAt, c.CompletedAt, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("campaignRepo.Create: %w", err)
	}

	return nil
}

func (r *CampaignRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Campaign, error) {
	c, err := scanCampaign(r.pool.QueryRow(ctx,
		`SELECT `+campaignColumns+` FROM campaigns WHERE id = $1`,
		id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("campaignRepo.GetByID: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("campaignRepo.GetByID: %w", err)
	}

	return c, nil
}

// List returns campaigns newest first.
func (r *CampaignRepo) List(ctx context.Context, limit, offset int) ([]*domain.Campaign, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+campaignColumns+` FROM campaigns
		 ORDER BY created_at DESC
		 LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("campaignRepo.List: %w", err)
	}
	defer rows.Close()

	campaigns := []*domain.Campaign{}
	for rows.Next() {
		c, scanErr := scanCampaign(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("campaignRepo.List: scan: %w", scanErr)
		}
		campaigns = append(campaigns, c)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("campaignRepo.List: rows: %w", err)
	}

	return campaigns, nil
}

func (r *CampaignRepo) MarkRunning(ctx context.Context, id uuid.UUID, startedAt time.Time) error {
	return r.exec(ctx, "MarkRunning",
		`UPDATE campaigns SET status = $1, started_at = $2 WHERE id = $3`,
		domain.CampaignRunning, startedAt, id,
	)
}

func (r *CampaignRepo) RecordProgress(ctx context.Context, id uuid.UUID, sent, failed int) error {
	return r.exec(ctx, "RecordProgress",
		`UPDATE campaigns SET sent = $1, failed = $2 WHERE id = $3`,
		sent, failed, id,
	)
}

func (r *CampaignRepo) Finish(ctx context.Context, id uuid.UUID, status domain.CampaignStatus, kind domain.ErrorKind, errMsg string, completedAt time.Time) error {
	return r.exec(ctx, "Finish",
		`UPDATE campaigns SET status = $1, error_kind = $2, error = $3, completed_at = $4 WHERE id = $5`,
		status, kind, errMsg, completedAt, id,
	)
}

func (r *CampaignRepo) exec(ctx context.Context, op, sql string, args ...any) error {
	tag, err := r.pool.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("campaignRepo.%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("campaignRepo.%s: %w", op, domain.ErrNotFound)
	}

	return nil
}

func scanCampaign(row pgx.Row) (*domain.Campaign, error) {
	var (
		c            domain.Campaign
		minMS, maxMS int64
	)

	err := row.Scan(
		&c.ID, &c.AccountID, &c.Targets, &c.Templates, &c.Count, &minMS, &maxMS,
		&c.Status, &c.Sent, &c.Failed, &c.ErrorKind, &c.Error,
		&c.StartedAt, &c.CompletedAt, &c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.MinDelay = time.Duration(minMS) * time.Millisecond
	c.MaxDelay = time.Duration(maxMS) * time.Millisecond

	return &c, nil
}
