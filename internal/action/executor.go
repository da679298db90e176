// Package action executes single operations against the external surface
// with the account's current session.
package action

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/parley/internal/domain"
	"github.com/gosuda/parley/internal/journal"
	"github.com/gosuda/parley/internal/metrics"
	"github.com/gosuda/parley/internal/surface"
)

type Status string

const (
	StatusSuccess         Status = "success"
	StatusSessionInvalid  Status = "session_invalid"
	StatusOperationFailed Status = "operation_failed"
)

// Result is the outcome of one operation. Output is set only on success.
type Result struct {
	Status Status
	Output []byte
	Reason string
}

// Kind maps the status to the error kind reported at the API boundary.
func (r Result) Kind() domain.ErrorKind {
	switch r.Status {
	case StatusSessionInvalid:
		return domain.KindSessionInvalid
	case StatusOperationFailed:
		return domain.KindOperationFailed
	default:
		return domain.KindNone
	}
}

// Sessions is the subset of session.Manager the executor needs.
type Sessions interface {
	Snapshot(ctx context.Context, accountID string) (domain.SessionBlob, error)
	Invalidate(ctx context.Context, accountID string, seen domain.SessionBlob) error
}

type Executor struct {
	sessions Sessions
	surface  surface.Surface
	journal  *journal.Journal
	timeout  time.Duration
}

// NewExecutor returns an Executor whose operations are bounded by timeout.
// A zero timeout leaves the caller's deadline in charge.
func NewExecutor(sessions Sessions, surf surface.Surface, j *journal.Journal, timeout time.Duration) *Executor {
	return &Executor{sessions: sessions, surface: surf, journal: j, timeout: timeout}
}

// Execute runs op for accountID against a private snapshot of the session.
// Classified failures are returned as a Result; the error is reserved for
// invalid input and storage faults.
func (e *Executor) Execute(ctx context.Context, accountID string, op surface.Operation) (Result, error) {
	if err := validate(accountID, op); err != nil {
		return Result{}, fmt.Errorf("action.Executor.Execute: %w", err)
	}

	logger := log.With().Str("account_id", accountID).Str("kind", string(op.Kind)).Logger()

	blob, err := e.sessions.Snapshot(ctx, accountID)
	if errors.Is(err, domain.ErrNotFound) || (err == nil && blob.Empty()) {
		metrics.Actions.WithLabelValues(string(op.Kind), string(StatusSessionInvalid)).Inc()
		e.journal.Error(ctx, "Action skipped", accountID+": no session for "+string(op.Kind))
		return Result{Status: StatusSessionInvalid, Reason: "no session"}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("action.Executor.Execute: %w", err)
	}

	opCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		opCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	start := time.Now()
	reply, err := e.surface.Perform(opCtx, blob, op)
	metrics.ActionDuration.WithLabelValues(string(op.Kind)).Observe(time.Since(start).Seconds())

	res := e.classify(ctx, accountID, op, blob, reply, err)
	metrics.Actions.WithLabelValues(string(op.Kind), string(res.Status)).Inc()

	if res.Status != StatusSuccess {
		logger.Warn().Str("status", string(res.Status)).Str("reason", res.Reason).Msg("action.Execute: operation did not succeed")
	}
	return res, nil
}

func (e *Executor) classify(
	ctx context.Context,
	accountID string,
	op surface.Operation,
	blob domain.SessionBlob,
	reply *surface.Reply,
	err error,
) Result {
	switch {
	case err == nil:
		var out []byte
		if reply != nil {
			out = reply.Output
		}
		return Result{Status: StatusSuccess, Output: out}

	case errors.Is(err, surface.ErrUnauthorized):
		if invErr := e.sessions.Invalidate(ctx, accountID, blob); invErr != nil {
			log.Error().Err(invErr).Str("account_id", accountID).Msg("action.Execute: failed to invalidate session")
		}
		e.journal.Error(ctx, "Session invalid", accountID+": "+string(op.Kind)+" rejected, session removed")
		return Result{Status: StatusSessionInvalid, Reason: "authenticated state missing"}

	case errors.Is(err, surface.ErrElementMissing), errors.Is(err, context.DeadlineExceeded):
		e.journal.Error(ctx, "Action failed", accountID+": "+string(op.Kind)+" to "+op.Target+": required element not found in time")
		return Result{Status: StatusOperationFailed, Reason: "required element not found in time"}

	default:
		e.journal.Error(ctx, "Action failed", accountID+": "+string(op.Kind)+" to "+op.Target+": "+err.Error())
		return Result{Status: StatusOperationFailed, Reason: err.Error()}
	}
}

func validate(accountID string, op surface.Operation) error {
	if accountID == "" {
		return fmt.Errorf("account id required: %w", domain.ErrInvalidInput)
	}

	switch op.Kind {
	case surface.OpSendMessage:
		if op.Target == "" || op.Text == "" {
			return fmt.Errorf("send_message needs target and text: %w", domain.ErrInvalidInput)
		}
	case surface.OpRenameGroup:
		if op.Target == "" || op.Text == "" {
			return fmt.Errorf("rename_group needs target and name: %w", domain.ErrInvalidInput)
		}
	case surface.OpListThreads:
	default:
		return fmt.Errorf("unknown operation %q: %w", op.Kind, domain.ErrInvalidInput)
	}
	return nil
}
