// Package session owns the account session lifecycle: login, interactive
// challenge recovery, validation and invalidation of stored session blobs.
package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/parley/internal/domain"
	"github.com/gosuda/parley/internal/journal"
	"github.com/gosuda/parley/internal/metrics"
	"github.com/gosuda/parley/internal/surface"
)

var (
	// ErrNoPendingChallenge is returned when a response code arrives for an
	// account with no parked challenge.
	ErrNoPendingChallenge = errors.New("session: no pending challenge") //nolint:gochecknoglobals // sentinel error

	// ErrNoCredential is returned when re-authentication is requested for an
	// account whose credential is not held in memory.
	ErrNoCredential = errors.New("session: no credential for account") //nolint:gochecknoglobals // sentinel error
)

// Alerter is told when a human has to answer a challenge and when that
// challenge has been cleared.
type Alerter interface {
	ChallengeRequired(ctx context.Context, accountID string) error
	ChallengeCleared(ctx context.Context, accountID string) error
}

// Manager is the single writer of session blobs. Writers for the same account
// are serialized; readers take snapshots.
type Manager struct {
	sessions domain.SessionRepository
	surface  surface.Surface
	rules    surface.Rules
	creds    *Credentials
	journal  *journal.Journal
	alerts   Alerter // nil when no alert channel is configured

	locks accountLocks

	mu      sync.Mutex
	pending map[string]*domain.ChallengeContext

	now func() time.Time
}

func NewManager(
	sessions domain.SessionRepository,
	surf surface.Surface,
	rules surface.Rules,
	creds *Credentials,
	j *journal.Journal,
	alerts Alerter,
) *Manager {
	return &Manager{
		sessions: sessions,
		surface:  surf,
		rules:    rules,
		creds:    creds,
		journal:  j,
		alerts:   alerts,
		pending:  make(map[string]*domain.ChallengeContext),
		now:      time.Now,
	}
}

// Login drives the external login surface with cred and classifies the result.
// The blob is persisted only when the outcome is LoginAuthenticated.
func (m *Manager) Login(ctx context.Context, cred domain.Credential) (LoginResult, error) {
	if cred.AccountID == "" || cred.Secret == "" {
		return LoginResult{}, fmt.Errorf("session.Manager.Login: account id and secret required: %w", domain.ErrInvalidInput)
	}

	unlock := m.locks.lock(cred.AccountID)
	defer unlock()

	res, err := m.login(ctx, cred)
	metrics.Logins.WithLabelValues("login", string(res.Outcome)).Inc()
	return res, err
}

func (m *Manager) login(ctx context.Context, cred domain.Credential) (LoginResult, error) {
	logger := log.With().Str("account_id", cred.AccountID).Logger()

	page, err := m.surface.Login(ctx, cred)
	if err != nil {
		logger.Warn().Err(err).Msg("session.Login: surface call failed")
		m.journal.Error(ctx, "Login error", cred.AccountID+": "+err.Error())
		return LoginResult{Outcome: LoginTransientFailure, Reason: err.Error()}, nil
	}

	switch m.rules.Classify(page) {
	case surface.OutcomeChallengeRequired:
		m.creds.Put(cred)
		ch := m.parkChallenge(cred.AccountID, page.State)
		logger.Warn().Str("challenge_id", ch.ID.String()).Msg("session.Login: challenge required")
		m.journal.Challenge(ctx, "Login challenge", cred.AccountID+": interactive verification required")
		m.alert(ctx, cred.AccountID)
		return LoginResult{Outcome: LoginChallengeRequired, Challenge: ch}, nil

	case surface.OutcomeInvalidCredentials:
		// Terminal for this credential; forget it so nothing retries it.
		m.creds.Delete(cred.AccountID)
		logger.Warn().Msg("session.Login: invalid credentials")
		m.journal.Error(ctx, "Login failed", cred.AccountID+": invalid credentials")
		return LoginResult{Outcome: LoginInvalidCredentials, Reason: "invalid credentials"}, nil

	case surface.OutcomeUnknown:
		logger.Warn().Str("url", pageURL(page)).Msg("session.Login: logged-in marker not found")
		m.journal.Error(ctx, "Login inconclusive", cred.AccountID+": logged-in marker not found at "+pageURL(page))
		return LoginResult{Outcome: LoginTransientFailure, Reason: "logged-in marker not found"}, nil
	}

	if page.Session.Empty() {
		m.journal.Error(ctx, "Login inconclusive", cred.AccountID+": surface returned no session")
		return LoginResult{Outcome: LoginTransientFailure, Reason: "surface returned no session"}, nil
	}

	if err := m.store(ctx, cred.AccountID, page.Session); err != nil {
		return LoginResult{Outcome: LoginTransientFailure, Reason: "persist session"}, fmt.Errorf("session.Manager.Login: %w", err)
	}

	m.creds.Put(cred)
	m.dropChallenge(cred.AccountID)
	logger.Info().Msg("session.Login: authenticated")
	m.journal.Status(ctx, "Login successful", cred.AccountID)
	return LoginResult{Outcome: LoginAuthenticated}, nil
}

// SubmitChallenge answers the parked challenge for accountID with code. The
// parked context is consumed whatever the result; StillPending parks a new one.
func (m *Manager) SubmitChallenge(ctx context.Context, accountID, code string) (ChallengeResult, error) {
	if accountID == "" || code == "" {
		return ChallengeResult{}, fmt.Errorf("session.Manager.SubmitChallenge: account id and code required: %w", domain.ErrInvalidInput)
	}

	unlock := m.locks.lock(accountID)
	defer unlock()

	ch, ok := m.takeChallenge(accountID)
	if !ok {
		return ChallengeResult{}, fmt.Errorf("session.Manager.SubmitChallenge: %w", ErrNoPendingChallenge)
	}

	res, err := m.submit(ctx, ch, code)
	metrics.Logins.WithLabelValues("challenge", string(res.Outcome)).Inc()
	return res, err
}

func (m *Manager) submit(ctx context.Context, ch *domain.ChallengeContext, code string) (ChallengeResult, error) {
	logger := log.With().Str("account_id", ch.AccountID).Str("challenge_id", ch.ID.String()).Logger()

	page, err := m.surface.SubmitChallenge(ctx, ch.State, code)
	if err != nil {
		logger.Warn().Err(err).Msg("session.SubmitChallenge: surface call failed")
		m.journal.Error(ctx, "Challenge submit error", ch.AccountID+": "+err.Error())
		return ChallengeResult{Outcome: ChallengeFailed, FailureKind: domain.KindTransient, Reason: err.Error()}, nil
	}

	switch m.rules.Classify(page) {
	case surface.OutcomeChallengeRequired:
		state := page.State
		if len(state) == 0 {
			state = ch.State
		}
		next := m.parkChallenge(ch.AccountID, state)
		logger.Warn().Str("next_challenge_id", next.ID.String()).Msg("session.SubmitChallenge: challenge still pending")
		m.journal.Challenge(ctx, "Challenge solution failed", ch.AccountID+": submitted code did not clear the challenge")
		return ChallengeResult{Outcome: ChallengeStillPending}, nil

	case surface.OutcomeInvalidCredentials:
		m.creds.Delete(ch.AccountID)
		m.journal.Error(ctx, "Challenge failed", ch.AccountID+": surface rejected the credential")
		return ChallengeResult{Outcome: ChallengeFailed, FailureKind: domain.KindInvalidCredentials, Reason: "invalid credentials"}, nil

	case surface.OutcomeUnknown:
		m.journal.Error(ctx, "Challenge inconclusive", ch.AccountID+": logged-in marker not found at "+pageURL(page))
		return ChallengeResult{Outcome: ChallengeFailed, FailureKind: domain.KindTransient, Reason: "logged-in marker not found"}, nil
	}

	if page.Session.Empty() {
		m.journal.Error(ctx, "Challenge inconclusive", ch.AccountID+": surface returned no session")
		return ChallengeResult{Outcome: ChallengeFailed, FailureKind: domain.KindTransient, Reason: "surface returned no session"}, nil
	}

	if err := m.store(ctx, ch.AccountID, page.Session); err != nil {
		return ChallengeResult{Outcome: ChallengeFailed, FailureKind: domain.KindTransient, Reason: "persist session"}, fmt.Errorf("session.Manager.SubmitChallenge: %w", err)
	}

	logger.Info().Msg("session.SubmitChallenge: challenge resolved")
	m.journal.Status(ctx, "Challenge solved", ch.AccountID)
	m.cleared(ctx, ch.AccountID)
	return ChallengeResult{Outcome: ChallengeResolved}, nil
}

// Check validates the stored blob with one cheap authenticated read. Only an
// authentication-class rejection deletes the blob.
func (m *Manager) Check(ctx context.Context, accountID string) (Validity, error) {
	sess, err := m.sessions.Get(ctx, accountID)
	if errors.Is(err, domain.ErrNotFound) {
		metrics.SessionChecks.WithLabelValues(string(Invalid)).Inc()
		return Invalid, nil
	}
	if err != nil {
		return Unknown, fmt.Errorf("session.Manager.Check: %w", err)
	}

	validity := Valid
	probeErr := m.surface.Probe(ctx, sess.Blob.Clone())
	switch {
	case probeErr == nil:
	case errors.Is(probeErr, surface.ErrUnauthorized):
		validity = Invalid
		if err := m.Invalidate(ctx, accountID, sess.Blob); err != nil {
			return Invalid, fmt.Errorf("session.Manager.Check: %w", err)
		}
	default:
		validity = Unknown
		log.Warn().Err(probeErr).Str("account_id", accountID).Msg("session.Check: probe failed, keeping session")
	}

	metrics.SessionChecks.WithLabelValues(string(validity)).Inc()
	return validity, nil
}

// Snapshot returns a private copy of the current blob.
func (m *Manager) Snapshot(ctx context.Context, accountID string) (domain.SessionBlob, error) {
	sess, err := m.sessions.Get(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("session.Manager.Snapshot: %w", err)
	}
	return sess.Blob.Clone(), nil
}

// Invalidate deletes the stored blob if it is still the one the caller saw
// rejected. A blob written by a newer login is left alone.
func (m *Manager) Invalidate(ctx context.Context, accountID string, seen domain.SessionBlob) error {
	unlock := m.locks.lock(accountID)
	defer unlock()

	current, err := m.sessions.Get(ctx, accountID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("session.Manager.Invalidate: %w", err)
	}
	if !bytes.Equal(current.Blob, seen) {
		return nil
	}

	if err := m.sessions.Delete(ctx, accountID); err != nil {
		return fmt.Errorf("session.Manager.Invalidate: %w", err)
	}

	log.Info().Str("account_id", accountID).Msg("session.Invalidate: session rejected, deleted")
	m.journal.Status(ctx, "Session invalidated", accountID)
	return nil
}

// Reauthenticate logs in again with the credential held for accountID.
func (m *Manager) Reauthenticate(ctx context.Context, accountID string) (LoginResult, error) {
	cred, ok := m.creds.Get(accountID)
	if !ok {
		return LoginResult{}, fmt.Errorf("session.Manager.Reauthenticate: %w", ErrNoCredential)
	}
	return m.Login(ctx, cred)
}

// Logout forgets the blob, the credential and any parked challenge.
func (m *Manager) Logout(ctx context.Context, accountID string) error {
	unlock := m.locks.lock(accountID)
	defer unlock()

	m.dropChallenge(accountID)
	m.creds.Delete(accountID)

	if err := m.sessions.Delete(ctx, accountID); err != nil {
		return fmt.Errorf("session.Manager.Logout: %w", err)
	}
	m.journal.Status(ctx, "Logged out", accountID)
	return nil
}

// PendingChallenge reports the parked challenge for accountID, if any.
func (m *Manager) PendingChallenge(accountID string) (*domain.ChallengeContext, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch, ok := m.pending[accountID]
	if !ok {
		return nil, false
	}
	cp := *ch
	return &cp, true
}

func (m *Manager) store(ctx context.Context, accountID string, blob domain.SessionBlob) error {
	return m.sessions.Put(ctx, &domain.Session{
		AccountID: accountID,
		Blob:      blob.Clone(),
		UpdatedAt: m.now().UTC(),
	})
}

func (m *Manager) parkChallenge(accountID string, state []byte) *domain.ChallengeContext {
	ch := &domain.ChallengeContext{
		ID:        uuid.New(),
		AccountID: accountID,
		Kind:      domain.ChallengeInteractive,
		State:     bytes.Clone(state),
		CreatedAt: m.now().UTC(),
	}

	m.mu.Lock()
	m.pending[accountID] = ch
	m.mu.Unlock()

	cp := *ch
	return &cp
}

func (m *Manager) takeChallenge(accountID string) (*domain.ChallengeContext, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch, ok := m.pending[accountID]
	if ok {
		delete(m.pending, accountID)
	}
	return ch, ok
}

func (m *Manager) dropChallenge(accountID string) {
	m.mu.Lock()
	delete(m.pending, accountID)
	m.mu.Unlock()
}

func (m *Manager) alert(ctx context.Context, accountID string) {
	if m.alerts == nil {
		return
	}
	if err := m.alerts.ChallengeRequired(ctx, accountID); err != nil {
		log.Error().Err(err).Str("account_id", accountID).Msg("session.alert: failed to notify operator")
	}
}

func (m *Manager) cleared(ctx context.Context, accountID string) {
	if m.alerts == nil {
		return
	}
	if err := m.alerts.ChallengeCleared(ctx, accountID); err != nil {
		log.Error().Err(err).Str("account_id", accountID).Msg("session.cleared: failed to update operator alert")
	}
}

func pageURL(p *surface.Page) string {
	if p == nil {
		return "<no page>"
	}
	return p.URL
}
