package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/parley/internal/domain"
)

// SessionRepo stores session blobs sealed with the account id as associated
// data, so a ciphertext copied to another row fails to open.
type SessionRepo struct {
	pool   *pgxpool.Pool
	sealer Sealer
}

func NewSessionRepo(pool *pgxpool.Pool, sealer Sealer) *SessionRepo {
	return &SessionRepo{pool: pool, sealer: sealer}
}

func (r *SessionRepo) Get(ctx context.Context, accountID string) (*domain.Session, error) {
	var (
		s      domain.Session
		sealed []byte
	)

	err := r.pool.QueryRow(ctx,
		`SELECT account_id, blob, updated_at FROM sessions WHERE account_id = $1`,
		accountID,
	).Scan(&s.AccountID, &sealed, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("sessionRepo.Get: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("sessionRepo.Get: %w", err)
	}

	blob, err := r.sealer.Open(sealed, []byte(accountID))
	if err != nil {
		return nil, fmt.Errorf("sessionRepo.Get: open blob: %w", err)
	}
	s.Blob = blob

	return &s, nil
}

// Put upserts the blob. The most recent write wins.
func (r *SessionRepo) Put(ctx context.Context, s *domain.Session) error {
	sealed, err := r.sealer.Seal(s.Blob, []byte(s.AccountID))
	if err != nil {
		return fmt.Errorf("sessionRepo.Put: seal blob: %w", err)
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO sessions (account_id, blob, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (account_id) DO UPDATE SET blob = EXCLUDED.blob, updated_at = EXCLUDED.updated_at`,
		s.AccountID, sealed, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sessionRepo.Put: %w", err)
	}

	return nil
}

func (r *SessionRepo) Delete(ctx context.Context, accountID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE account_id = $1`, accountID)
	if err != nil {
		return fmt.Errorf("sessionRepo.Delete: %w", err)
	}

	return nil
}
