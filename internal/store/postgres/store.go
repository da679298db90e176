package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/parley/internal/domain"
)

// Sealer encrypts session blobs at rest. aad binds a ciphertext to its row.
type Sealer interface {
	Seal(plaintext, aad []byte) ([]byte, error)
	Open(ciphertext, aad []byte) ([]byte, error)
}

type Store struct {
	pool      *pgxpool.Pool
	sessions  *SessionRepo
	campaigns *CampaignRepo
	logs      *LogRepo
}

func New(ctx context.Context, dsn string, maxConns int32, sealer Sealer) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres.New: parse config: %w", err)
	}

	cfg.MaxConns = maxConns

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres.New: connect: %w", err)
	}

	err = pool.Ping(ctx)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres.New: ping: %w", err)
	}

	err = EnsureSchema(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres.New: %w", err)
	}

	return &Store{
		pool:      pool,
		sessions:  NewSessionRepo(pool, sealer),
		campaigns: NewCampaignRepo(pool),
		logs:      NewLogRepo(pool),
	}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) Sessions() domain.SessionRepository   { return s.sessions }
func (s *Store) Campaigns() domain.CampaignRepository { return s.campaigns }
func (s *Store) Logs() domain.LogRepository           { return s.logs }
