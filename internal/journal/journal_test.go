package journal_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/parley/internal/domain"
	"github.com/gosuda/parley/internal/journal"
	"github.com/gosuda/parley/internal/store/memory"
)

type failingRepo struct{}

func (failingRepo) Append(context.Context, *domain.LogEntry) error {
	return errors.New("disk full")
}

func (failingRepo) ListRecent(context.Context, int) ([]*domain.LogEntry, error) {
	return nil, nil
}

func TestJournal_Categories(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := memory.New().Logs()
	j := journal.New(repo)

	j.Challenge(ctx, "Login challenge", "acct")
	j.Status(ctx, "Campaign started", "c1")
	j.Error(ctx, "Send failed", "g1")

	entries, err := repo.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, domain.LogError, entries[0].Category)
	assert.Equal(t, "Send failed", entries[0].Description)
	assert.Equal(t, "g1", entries[0].Detail)
	assert.Equal(t, domain.LogStatusUpdate, entries[1].Category)
	assert.Equal(t, domain.LogChallenge, entries[2].Category)
	assert.False(t, entries[0].Timestamp.IsZero())
}

func TestJournal_AppendFailureIsSwallowed(t *testing.T) {
	t.Parallel()

	j := journal.New(failingRepo{})
	assert.NotPanics(t, func() {
		j.Error(context.Background(), "anything", "")
	})
}
