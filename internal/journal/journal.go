// Package journal records operator-visible events (challenges, failures,
// status changes) to the append-only log repository.
package journal

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/parley/internal/domain"
)

// Journal writes LogEntry records. A failed write is logged and swallowed so
// journaling never changes the outcome of the operation being described.
type Journal struct {
	repo domain.LogRepository
	now  func() time.Time
}

func New(repo domain.LogRepository) *Journal {
	return &Journal{repo: repo, now: time.Now}
}

func (j *Journal) Record(ctx context.Context, category domain.LogCategory, description, detail string) {
	entry := &domain.LogEntry{
		ID:          uuid.New(),
		Timestamp:   j.now().UTC(),
		Category:    category,
		Description: description,
		Detail:      detail,
	}

	// Entries describing a cancelled operation are still written.
	if err := j.repo.Append(context.WithoutCancel(ctx), entry); err != nil {
		log.Error().Err(err).Str("description", description).Msg("journal.Record: failed to append entry")
	}
}

func (j *Journal) Challenge(ctx context.Context, description, detail string) {
	j.Record(ctx, domain.LogChallenge, description, detail)
}

func (j *Journal) Status(ctx context.Context, description, detail string) {
	j.Record(ctx, domain.LogStatusUpdate, description, detail)
}

func (j *Journal) Error(ctx context.Context, description, detail string) {
	j.Record(ctx, domain.LogError, description, detail)
}
