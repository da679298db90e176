// Package campaign runs paced multi-message campaigns in the background.
package campaign

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/parley/internal/action"
	"github.com/gosuda/parley/internal/domain"
	"github.com/gosuda/parley/internal/journal"
	"github.com/gosuda/parley/internal/metrics"
	"github.com/gosuda/parley/internal/session"
	redisstore "github.com/gosuda/parley/internal/store/redis"
	"github.com/gosuda/parley/internal/surface"
)

var (
	ErrNotRunning   = errors.New("campaign: not running")    //nolint:gochecknoglobals // sentinel error
	ErrShuttingDown = errors.New("campaign: runner stopped") //nolint:gochecknoglobals // sentinel error
)

const DefaultFailureCooldown = 5 * time.Second

type Executor interface {
	Execute(ctx context.Context, accountID string, op surface.Operation) (action.Result, error)
}

type Reauthenticator interface {
	Reauthenticate(ctx context.Context, accountID string) (session.LoginResult, error)
}

type PubSubPublisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// Notifier is told about every campaign that reaches a terminal status.
type Notifier interface {
	CampaignFinished(ctx context.Context, c domain.Campaign) error
}

// Options tunes a Runner. Zero values select the defaults.
type Options struct {
	// FailureCooldown replaces the regular delay after a failed send.
	FailureCooldown time.Duration
	// MaxIterations caps targets × count per campaign. Zero means no cap.
	MaxIterations int
	// Sleep waits for d or until ctx is done. Defaults to a timer wait.
	Sleep func(ctx context.Context, d time.Duration) error
	// Rand drives template choice, variation and delays.
	Rand *rand.Rand
	// Notifier, if set, receives a summary of each finished campaign.
	Notifier Notifier
}

// Runner owns every live campaign. Each campaign runs on its own goroutine
// with at most one action in flight.
type Runner struct {
	campaigns domain.CampaignRepository
	exec      Executor
	auth      Reauthenticator
	pubsub    PubSubPublisher // nil disables events
	notifier  Notifier        // nil disables summaries
	journal   *journal.Journal

	cooldown      time.Duration
	maxIterations int
	sleep         func(ctx context.Context, d time.Duration) error

	rngMu sync.Mutex
	rng   *rand.Rand

	root context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup

	mu      sync.Mutex
	live    map[uuid.UUID]*liveCampaign
	stopped bool // guarded by mu, set once by Shutdown

	now func() time.Time
}

type liveCampaign struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func NewRunner(
	campaigns domain.CampaignRepository,
	exec Executor,
	auth Reauthenticator,
	pubsub PubSubPublisher,
	j *journal.Journal,
	opts Options,
) *Runner {
	if opts.FailureCooldown <= 0 {
		opts.FailureCooldown = DefaultFailureCooldown
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), rand.Uint64())) //nolint:gosec // pacing, not crypto
	}

	root, stop := context.WithCancel(context.Background())
	return &Runner{
		campaigns:     campaigns,
		exec:          exec,
		auth:          auth,
		pubsub:        pubsub,
		notifier:      opts.Notifier,
		journal:       j,
		cooldown:      opts.FailureCooldown,
		maxIterations: opts.MaxIterations,
		sleep:         opts.Sleep,
		rng:           opts.Rand,
		root:          root,
		stop:          stop,
		live:          make(map[uuid.UUID]*liveCampaign),
		now:           time.Now,
	}
}

// Start persists a new campaign, marks it running and returns without waiting
// for any send. The campaign outlives ctx; use Cancel to stop it.
func (r *Runner) Start(ctx context.Context, spec Spec) (*domain.Campaign, error) {
	if err := spec.Validate(r.maxIterations); err != nil {
		return nil, fmt.Errorf("campaign.Runner.Start: %w", err)
	}
	if r.isStopped() {
		return nil, fmt.Errorf("campaign.Runner.Start: %w", ErrShuttingDown)
	}

	c := &domain.Campaign{
		ID:        uuid.New(),
		AccountID: spec.AccountID,
		Targets:   append([]string(nil), spec.Targets...),
		Templates: append([]string(nil), spec.Templates...),
		Count:     spec.Count,
		MinDelay:  spec.MinDelay,
		MaxDelay:  spec.MaxDelay,
		Status:    domain.CampaignPending,
		CreatedAt: r.now().UTC(),
	}
	if err := r.campaigns.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("campaign.Runner.Start: create: %w", err)
	}

	startedAt := r.now().UTC()
	if err := r.campaigns.MarkRunning(ctx, c.ID, startedAt); err != nil {
		return nil, fmt.Errorf("campaign.Runner.Start: mark running: %w", err)
	}
	c.Status = domain.CampaignRunning
	c.StartedAt = &startedAt

	runCtx, cancel := context.WithCancel(r.root)
	lc := &liveCampaign{cancel: cancel, done: make(chan struct{})}

	// Registration and wg.Add share the lock with Shutdown so a campaign is
	// either waited for or never started.
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		cancel()
		if err := r.campaigns.Finish(context.WithoutCancel(ctx), c.ID, domain.CampaignCancelled, domain.KindNone, "runner shutting down", r.now().UTC()); err != nil {
			log.Error().Err(err).Str("campaign_id", c.ID.String()).Msg("campaign.Start: failed to finish refused campaign")
		}
		return nil, fmt.Errorf("campaign.Runner.Start: %w", ErrShuttingDown)
	}
	r.live[c.ID] = lc
	r.wg.Add(1)
	r.mu.Unlock()

	log.Info().Str("campaign_id", c.ID.String()).Str("account_id", c.AccountID).Int("iterations", c.Iterations()).Msg("campaign.Start: started")
	r.journal.Status(ctx, "Campaign started", fmt.Sprintf("%s: %d sends to %d targets", c.ID, c.Iterations(), len(c.Targets)))
	r.publish(c.ID, Event{Type: EventStarted, Status: domain.CampaignRunning})

	metrics.CampaignsRunning.Inc()
	go r.run(runCtx, *c, lc)

	return c, nil
}

// Cancel stops a running campaign and waits until it has recorded its
// terminal state or ctx is done.
func (r *Runner) Cancel(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	lc, ok := r.live[id]
	r.mu.Unlock()

	if !ok {
		c, err := r.campaigns.GetByID(ctx, id)
		if err != nil {
			return fmt.Errorf("campaign.Runner.Cancel: %w", err)
		}
		return fmt.Errorf("campaign.Runner.Cancel: status %q: %w", c.Status, ErrNotRunning)
	}

	lc.cancel()
	select {
	case <-lc.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("campaign.Runner.Cancel: %w", ctx.Err())
	}
}

// Wait blocks until the campaign is no longer running or ctx is done.
func (r *Runner) Wait(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	lc, ok := r.live[id]
	r.mu.Unlock()
	if !ok {
		return nil
	}

	select {
	case <-lc.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) Get(ctx context.Context, id uuid.UUID) (*domain.Campaign, error) {
	c, err := r.campaigns.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("campaign.Runner.Get: %w", err)
	}
	return c, nil
}

func (r *Runner) List(ctx context.Context, limit, offset int) ([]*domain.Campaign, error) {
	cs, err := r.campaigns.List(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("campaign.Runner.List: %w", err)
	}
	return cs, nil
}

// Shutdown cancels every live campaign and waits for them to record their
// terminal state. New campaigns are refused afterwards.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()
	r.stop()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("campaign.Runner.Shutdown: %w", ctx.Err())
	}
}

func (r *Runner) isStopped() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopped
}

// outcome is the terminal state of one run.
type outcome struct {
	status domain.CampaignStatus
	kind   domain.ErrorKind
	msg    string
}

func (r *Runner) run(ctx context.Context, c domain.Campaign, lc *liveCampaign) {
	logger := log.With().Str("campaign_id", c.ID.String()).Str("account_id", c.AccountID).Logger()

	defer func() {
		r.mu.Lock()
		delete(r.live, c.ID)
		r.mu.Unlock()
		lc.cancel()
		close(lc.done)
		metrics.CampaignsRunning.Dec()
		r.wg.Done()
	}()

	var sent, failed int
	total := c.Iterations()
	result := outcome{status: domain.CampaignCompleted}

	for i := range total {
		if ctx.Err() != nil {
			result = outcome{status: domain.CampaignCancelled}
			break
		}

		target := c.Targets[i/c.Count]
		text := r.message(c.Templates)

		res, abort := r.send(ctx, c, target, text)
		if abort != nil {
			result = *abort
			break
		}

		wait := r.delay(c.MinDelay, c.MaxDelay)
		if res.Status == action.StatusSuccess {
			sent++
			r.publish(c.ID, Event{Type: EventSent, Target: target, Iteration: i + 1, Total: total})
		} else {
			failed++
			// The cooldown only ever lengthens the regular delay.
			wait = max(r.cooldown, wait)
			logger.Warn().Int("iteration", i+1).Str("reason", res.Reason).Msg("campaign.run: send failed, cooling down")
			r.journal.Error(ctx, "Message send skipped", fmt.Sprintf("%s: send %d/%d to %s failed: %s", c.ID, i+1, total, target, res.Reason))
			r.publish(c.ID, Event{Type: EventFailed, Target: target, Iteration: i + 1, Total: total, Kind: res.Kind()})
		}

		if err := r.campaigns.RecordProgress(context.WithoutCancel(ctx), c.ID, sent, failed); err != nil {
			logger.Error().Err(err).Msg("campaign.run: failed to record progress")
		}

		if i == total-1 {
			break
		}
		if err := r.sleep(ctx, wait); err != nil {
			result = outcome{status: domain.CampaignCancelled}
			break
		}
	}

	r.finish(context.WithoutCancel(ctx), c, result, sent, failed)
}

// send executes one iteration. A session rejection gets one
// re-authentication and one retry; a non-nil outcome aborts the campaign.
// Cancellation does not interrupt an iteration already in flight; the
// executor and gateway timeouts still bound it.
func (r *Runner) send(ctx context.Context, c domain.Campaign, target, text string) (action.Result, *outcome) {
	op := surface.Operation{Kind: surface.OpSendMessage, Target: target, Text: text}
	ctx = context.WithoutCancel(ctx)

	res, err := r.exec.Execute(ctx, c.AccountID, op)
	if err != nil {
		return action.Result{Status: action.StatusOperationFailed, Reason: err.Error()}, nil
	}
	if res.Status != action.StatusSessionInvalid {
		return res, nil
	}

	log.Warn().Str("campaign_id", c.ID.String()).Msg("campaign.send: session invalid, reauthenticating")
	login, err := r.auth.Reauthenticate(ctx, c.AccountID)
	if err != nil {
		return res, &outcome{
			status: domain.CampaignAborted,
			kind:   domain.KindSessionInvalid,
			msg:    "session invalid and re-authentication unavailable: " + err.Error(),
		}
	}
	if login.Outcome != session.LoginAuthenticated {
		return res, &outcome{
			status: domain.CampaignAborted,
			kind:   login.Kind(),
			msg:    "re-authentication " + string(login.Outcome),
		}
	}

	res, err = r.exec.Execute(ctx, c.AccountID, op)
	if err != nil {
		return action.Result{Status: action.StatusOperationFailed, Reason: err.Error()}, nil
	}
	if res.Status == action.StatusSessionInvalid {
		return res, &outcome{
			status: domain.CampaignAborted,
			kind:   domain.KindSessionInvalid,
			msg:    "session rejected again after re-authentication",
		}
	}
	return res, nil
}

func (r *Runner) finish(ctx context.Context, c domain.Campaign, o outcome, sent, failed int) {
	logger := log.With().Str("campaign_id", c.ID.String()).Logger()

	if err := r.campaigns.RecordProgress(ctx, c.ID, sent, failed); err != nil {
		logger.Error().Err(err).Msg("campaign.finish: failed to record progress")
	}
	if err := r.campaigns.Finish(ctx, c.ID, o.status, o.kind, o.msg, r.now().UTC()); err != nil {
		logger.Error().Err(err).Msg("campaign.finish: failed to record terminal status")
	}

	metrics.Campaigns.WithLabelValues(string(o.status)).Inc()

	detail := fmt.Sprintf("%s: %s, %d sent, %d failed", c.ID, o.status, sent, failed)
	if o.status == domain.CampaignAborted {
		logger.Warn().Str("kind", string(o.kind)).Str("reason", o.msg).Msg("campaign.finish: aborted")
		r.journal.Error(ctx, "Campaign aborted", detail+": "+o.msg)
	} else {
		logger.Info().Str("status", string(o.status)).Int("sent", sent).Int("failed", failed).Msg("campaign.finish: done")
		r.journal.Status(ctx, "Campaign finished", detail)
	}

	r.publish(c.ID, Event{Type: EventFinished, Status: o.status, Kind: o.kind, Sent: sent, Failed: failed})

	if r.notifier != nil {
		completed := r.now().UTC()
		c.Status, c.ErrorKind, c.Error = o.status, o.kind, o.msg
		c.Sent, c.Failed, c.CompletedAt = sent, failed, &completed
		if err := r.notifier.CampaignFinished(ctx, c); err != nil {
			logger.Error().Err(err).Msg("campaign.finish: failed to send summary")
		}
	}
}

func (r *Runner) message(templates []string) string {
	r.rngMu.Lock()
	defer r.rngMu.Unlock()
	return Vary(r.rng, templates[r.rng.IntN(len(templates))])
}

// delay draws uniformly from [lo, hi].
func (r *Runner) delay(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	r.rngMu.Lock()
	defer r.rngMu.Unlock()
	return lo + time.Duration(r.rng.Int64N(int64(hi-lo)+1))
}

func (r *Runner) publish(id uuid.UUID, evt Event) {
	if r.pubsub == nil {
		return
	}

	evt.CampaignID = id
	evt.Timestamp = r.now().UTC()
	payload, err := json.Marshal(evt)
	if err != nil {
		return
	}

	channel := redisstore.CampaignChannel(id)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if pubErr := r.pubsub.Publish(ctx, channel, payload); pubErr != nil {
		log.Error().Err(pubErr).Str("channel", channel).Msg("campaign.publish: failed to publish event")
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
