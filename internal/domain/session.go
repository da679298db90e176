package domain

import (
	"bytes"
	"context"
	"time"

	"github.com/google/uuid"
)

// Credential is an operator-supplied account identifier and secret.
// It is held in memory only.
type Credential struct {
	AccountID string
	Secret    string //nolint:gosec // G117: credential held in memory only
}

// SessionBlob is the opaque authenticated state (cookies, header tokens)
// returned by the external surface. It is passed through unchanged.
type SessionBlob []byte

// Empty reports whether the blob carries no state.
func (b SessionBlob) Empty() bool {
	return len(b) == 0
}

// Clone returns an independent copy so callers can hold a snapshot.
func (b SessionBlob) Clone() SessionBlob {
	if b == nil {
		return nil
	}
	return bytes.Clone(b)
}

// Session is the single live blob for an account.
type Session struct {
	AccountID string
	Blob      SessionBlob
	UpdatedAt time.Time
}

// SessionRepository persists at most one session per account.
// Put overwrites unconditionally; there is no merge.
type SessionRepository interface {
	Get(ctx context.Context, accountID string) (*Session, error)
	Put(ctx context.Context, s *Session) error
	Delete(ctx context.Context, accountID string) error
}

type ChallengeKind string

const (
	ChallengeInteractive ChallengeKind = "interactive_verification"
)

// ChallengeContext is a pending interactive verification. It is consumed by
// exactly one response submission and never persisted.
type ChallengeContext struct {
	ID        uuid.UUID
	AccountID string
	Kind      ChallengeKind
	State     []byte // surface-owned pending state, opaque
	CreatedAt time.Time
}
