package campaign_test

import (
	"context"
	"encoding/json"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/parley/internal/action"
	"github.com/gosuda/parley/internal/campaign"
	"github.com/gosuda/parley/internal/domain"
	"github.com/gosuda/parley/internal/journal"
	"github.com/gosuda/parley/internal/session"
	"github.com/gosuda/parley/internal/store/memory"
	redisstore "github.com/gosuda/parley/internal/store/redis"
	"github.com/gosuda/parley/internal/surface"
	"github.com/gosuda/parley/internal/surface/surfacetest"
)

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

type mockExecutor struct {
	mu    sync.Mutex
	calls []surface.Operation
	fn    func(call int) action.Result
}

func (m *mockExecutor) Execute(_ context.Context, _ string, op surface.Operation) (action.Result, error) {
	m.mu.Lock()
	m.calls = append(m.calls, op)
	n := len(m.calls)
	m.mu.Unlock()

	if m.fn != nil {
		return m.fn(n), nil
	}
	return action.Result{Status: action.StatusSuccess}, nil
}

func (m *mockExecutor) Calls() []surface.Operation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]surface.Operation(nil), m.calls...)
}

type mockReauth struct {
	mu    sync.Mutex
	count int
	fn    func() (session.LoginResult, error)
}

func (m *mockReauth) Reauthenticate(context.Context, string) (session.LoginResult, error) {
	m.mu.Lock()
	m.count++
	m.mu.Unlock()

	if m.fn != nil {
		return m.fn()
	}
	return session.LoginResult{Outcome: session.LoginAuthenticated}, nil
}

func (m *mockReauth) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count
}

type mockPublisher struct {
	mu     sync.Mutex
	events []campaign.Event
	chans  []string
}

func (m *mockPublisher) Publish(_ context.Context, channel string, payload []byte) error {
	var evt campaign.Event
	if err := json.Unmarshal(payload, &evt); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
	m.chans = append(m.chans, channel)
	return nil
}

func (m *mockPublisher) Types() []campaign.EventType {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]campaign.EventType, len(m.events))
	for i, e := range m.events {
		out[i] = e.Type
	}
	return out
}

type recordingSleep struct {
	mu     sync.Mutex
	waits  []time.Duration
	before func(ctx context.Context) error
}

func (s *recordingSleep) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.waits = append(s.waits, d)
	s.mu.Unlock()

	if s.before != nil {
		return s.before(ctx)
	}
	return ctx.Err()
}

func (s *recordingSleep) Waits() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.waits...)
}

type harness struct {
	store  *memory.Store
	exec   *mockExecutor
	reauth *mockReauth
	pub    *mockPublisher
	sleep  *recordingSleep
	runner *campaign.Runner
}

func newHarness(t *testing.T, opts campaign.Options) *harness {
	t.Helper()

	h := &harness{
		store:  memory.New(),
		exec:   &mockExecutor{},
		reauth: &mockReauth{},
		pub:    &mockPublisher{},
		sleep:  &recordingSleep{},
	}
	if opts.Sleep == nil {
		opts.Sleep = h.sleep.Sleep
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewPCG(1, 2))
	}
	h.runner = campaign.NewRunner(h.store.Campaigns(), h.exec, h.reauth, h.pub, journal.New(h.store.Logs()), opts)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = h.runner.Shutdown(ctx)
	})
	return h
}

func (h *harness) startAndWait(t *testing.T, spec campaign.Spec) *domain.Campaign {
	t.Helper()

	c, err := h.runner.Start(context.Background(), spec)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, h.runner.Wait(ctx, c.ID))

	got, err := h.runner.Get(context.Background(), c.ID)
	require.NoError(t, err)
	return got
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestRunner_InvocationCountAndDelays(t *testing.T) {
	t.Parallel()

	h := newHarness(t, campaign.Options{})
	spec := campaign.Spec{
		AccountID: "acct",
		Targets:   []string{"group-1"},
		Templates: []string{"hello", "hi there"},
		Count:     10,
		MinDelay:  2 * time.Second,
		MaxDelay:  4 * time.Second,
	}

	c := h.startAndWait(t, spec)

	assert.Equal(t, domain.CampaignCompleted, c.Status)
	assert.Equal(t, 10, c.Sent)
	assert.Equal(t, 0, c.Failed)
	assert.NotNil(t, c.CompletedAt)
	assert.Len(t, h.exec.Calls(), 10)

	waits := h.sleep.Waits()
	require.Len(t, waits, 9)
	for _, w := range waits {
		assert.GreaterOrEqual(t, w, spec.MinDelay)
		assert.LessOrEqual(t, w, spec.MaxDelay)
	}

	for _, op := range h.exec.Calls() {
		assert.Equal(t, surface.OpSendMessage, op.Kind)
		assert.Equal(t, "group-1", op.Target)
		assert.True(t,
			isSubsequence([]rune("hello"), []rune(op.Text)) || isSubsequence([]rune("hi there"), []rune(op.Text)),
			"%q is not a variation of a template", op.Text)
	}
}

func TestRunner_MultiTarget(t *testing.T) {
	t.Parallel()

	h := newHarness(t, campaign.Options{})
	c := h.startAndWait(t, campaign.Spec{
		AccountID: "acct",
		Targets:   []string{"a", "b"},
		Templates: []string{"msg"},
		Count:     2,
	})

	assert.Equal(t, domain.CampaignCompleted, c.Status)
	assert.Equal(t, 4, c.Sent)

	var targets []string
	for _, op := range h.exec.Calls() {
		targets = append(targets, op.Target)
	}
	assert.Equal(t, []string{"a", "a", "b", "b"}, targets)
}

func TestRunner_CompletesWithRealDelays(t *testing.T) {
	t.Parallel()

	store := memory.New()
	exec := &mockExecutor{}
	runner := campaign.NewRunner(store.Campaigns(), exec, &mockReauth{}, nil, journal.New(store.Logs()), campaign.Options{})
	t.Cleanup(func() { _ = runner.Shutdown(context.Background()) })

	start := time.Now()
	c, err := runner.Start(context.Background(), campaign.Spec{
		AccountID: "acct",
		Targets:   []string{"group-1"},
		Templates: []string{"hello"},
		Count:     3,
		MinDelay:  time.Second,
		MaxDelay:  time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.CampaignRunning, c.Status)

	require.Eventually(t, func() bool {
		got, err := runner.Get(context.Background(), c.ID)
		return err == nil && got.Status == domain.CampaignCompleted
	}, 10*time.Second, 50*time.Millisecond)

	assert.GreaterOrEqual(t, time.Since(start), 2*time.Second)

	got, err := runner.Get(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Sent)
	assert.Len(t, exec.Calls(), 3)
}

func TestRunner_FailuresNeverAbort(t *testing.T) {
	t.Parallel()

	h := newHarness(t, campaign.Options{FailureCooldown: 7 * time.Second})
	h.exec.fn = func(int) action.Result {
		return action.Result{Status: action.StatusOperationFailed, Reason: "element missing"}
	}

	c := h.startAndWait(t, campaign.Spec{
		AccountID: "acct",
		Targets:   []string{"group-1"},
		Templates: []string{"hello"},
		Count:     4,
		MinDelay:  time.Second,
		MaxDelay:  time.Second,
	})

	assert.Equal(t, domain.CampaignCompleted, c.Status)
	assert.Equal(t, 0, c.Sent)
	assert.Equal(t, 4, c.Failed)
	assert.Len(t, h.exec.Calls(), 4)
	assert.Equal(t, []time.Duration{7 * time.Second, 7 * time.Second, 7 * time.Second}, h.sleep.Waits())

	logs, err := h.store.Logs().ListRecent(context.Background(), 50)
	require.NoError(t, err)
	var skipped int
	for _, l := range logs {
		if l.Description == "Message send skipped" {
			skipped++
		}
	}
	assert.Equal(t, 4, skipped)
}

func TestRunner_CooldownNeverShortensDelay(t *testing.T) {
	t.Parallel()

	h := newHarness(t, campaign.Options{FailureCooldown: 5 * time.Second})
	h.exec.fn = func(int) action.Result {
		return action.Result{Status: action.StatusOperationFailed, Reason: "element missing"}
	}

	spec := campaign.Spec{
		AccountID: "acct",
		Targets:   []string{"group-1"},
		Templates: []string{"hello"},
		Count:     3,
		MinDelay:  30 * time.Second,
		MaxDelay:  60 * time.Second,
	}
	c := h.startAndWait(t, spec)

	assert.Equal(t, domain.CampaignCompleted, c.Status)
	assert.Equal(t, 3, c.Failed)

	waits := h.sleep.Waits()
	require.Len(t, waits, 2)
	for _, w := range waits {
		assert.GreaterOrEqual(t, w, spec.MinDelay)
		assert.LessOrEqual(t, w, spec.MaxDelay)
	}
}

func TestRunner_SessionInvalidPolicy(t *testing.T) {
	t.Parallel()

	invalidOnce := func(call int) action.Result {
		if call == 2 {
			return action.Result{Status: action.StatusSessionInvalid}
		}
		return action.Result{Status: action.StatusSuccess}
	}
	alwaysInvalid := func(int) action.Result {
		return action.Result{Status: action.StatusSessionInvalid}
	}

	tests := []struct {
		name       string
		exec       func(call int) action.Result
		reauth     func() (session.LoginResult, error)
		wantStatus domain.CampaignStatus
		wantKind   domain.ErrorKind
		wantSent   int
		wantCalls  int
		wantReauth int
	}{
		{
			name:       "reauth and retry succeeds",
			exec:       invalidOnce,
			wantStatus: domain.CampaignCompleted,
			wantSent:   3,
			wantCalls:  4,
			wantReauth: 1,
		},
		{
			name: "reauth hits challenge",
			exec: alwaysInvalid,
			reauth: func() (session.LoginResult, error) {
				return session.LoginResult{Outcome: session.LoginChallengeRequired}, nil
			},
			wantStatus: domain.CampaignAborted,
			wantKind:   domain.KindChallengeRequired,
			wantCalls:  1,
			wantReauth: 1,
		},
		{
			name: "reauth with bad credentials",
			exec: alwaysInvalid,
			reauth: func() (session.LoginResult, error) {
				return session.LoginResult{Outcome: session.LoginInvalidCredentials}, nil
			},
			wantStatus: domain.CampaignAborted,
			wantKind:   domain.KindInvalidCredentials,
			wantCalls:  1,
			wantReauth: 1,
		},
		{
			name: "no credential held",
			exec: alwaysInvalid,
			reauth: func() (session.LoginResult, error) {
				return session.LoginResult{}, session.ErrNoCredential
			},
			wantStatus: domain.CampaignAborted,
			wantKind:   domain.KindSessionInvalid,
			wantCalls:  1,
			wantReauth: 1,
		},
		{
			name:       "rejected again after reauth",
			exec:       alwaysInvalid,
			wantStatus: domain.CampaignAborted,
			wantKind:   domain.KindSessionInvalid,
			wantCalls:  2,
			wantReauth: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := newHarness(t, campaign.Options{})
			h.exec.fn = tt.exec
			h.reauth.fn = tt.reauth

			c := h.startAndWait(t, campaign.Spec{
				AccountID: "acct",
				Targets:   []string{"group-1"},
				Templates: []string{"hello"},
				Count:     3,
			})

			assert.Equal(t, tt.wantStatus, c.Status)
			assert.Equal(t, tt.wantKind, c.ErrorKind)
			assert.Equal(t, tt.wantSent, c.Sent)
			assert.Len(t, h.exec.Calls(), tt.wantCalls)
			assert.Equal(t, tt.wantReauth, h.reauth.Count())
			assert.NotNil(t, c.CompletedAt)
			if tt.wantStatus == domain.CampaignAborted {
				assert.NotEmpty(t, c.Error)
			}
		})
	}
}

func TestRunner_Cancel(t *testing.T) {
	t.Parallel()

	h := newHarness(t, campaign.Options{})
	h.sleep.before = func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}

	c, err := h.runner.Start(context.Background(), campaign.Spec{
		AccountID: "acct",
		Targets:   []string{"group-1"},
		Templates: []string{"hello"},
		Count:     5,
		MinDelay:  time.Hour,
		MaxDelay:  time.Hour,
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(h.exec.Calls()) == 1 }, 5*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.runner.Cancel(ctx, c.ID))

	got, err := h.runner.Get(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CampaignCancelled, got.Status)
	assert.Equal(t, 1, got.Sent)
	assert.NotNil(t, got.CompletedAt)
	assert.Len(t, h.exec.Calls(), 1)

	t.Run("terminal campaign cannot be cancelled", func(t *testing.T) {
		err := h.runner.Cancel(context.Background(), c.ID)
		require.ErrorIs(t, err, campaign.ErrNotRunning)
	})

	t.Run("unknown campaign", func(t *testing.T) {
		err := h.runner.Cancel(context.Background(), uuid.New())
		require.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestRunner_CancelLetsInFlightSendFinish(t *testing.T) {
	t.Parallel()

	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	fake := &surfacetest.Fake{
		PerformFunc: func(ctx context.Context, _ domain.SessionBlob, _ surface.Operation) (*surface.Reply, error) {
			select {
			case entered <- struct{}{}:
			default:
			}
			select {
			case <-release:
				return &surface.Reply{}, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
	}

	store := memory.New()
	j := journal.New(store.Logs())
	manager := session.NewManager(store.Sessions(), fake, surface.DefaultRules(), session.NewCredentials(), j, nil)
	exec := action.NewExecutor(manager, fake, j, 10*time.Second)
	runner := campaign.NewRunner(store.Campaigns(), exec, manager, nil, j, campaign.Options{})
	t.Cleanup(func() { _ = runner.Shutdown(context.Background()) })

	login, err := manager.Login(context.Background(), domain.Credential{AccountID: "acct", Secret: "pw"})
	require.NoError(t, err)
	require.Equal(t, session.LoginAuthenticated, login.Outcome)

	c, err := runner.Start(context.Background(), campaign.Spec{
		AccountID: "acct",
		Targets:   []string{"group-1"},
		Templates: []string{"hello"},
		Count:     3,
		MinDelay:  time.Hour,
		MaxDelay:  time.Hour,
	})
	require.NoError(t, err)

	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("send never reached the surface")
	}

	// The send is still blocked, so Cancel cannot observe a terminal state yet.
	short, cancelShort := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancelShort()
	require.ErrorIs(t, runner.Cancel(short, c.ID), context.DeadlineExceeded)

	close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, runner.Wait(ctx, c.ID))

	got, err := runner.Get(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CampaignCancelled, got.Status)
	assert.Equal(t, 1, got.Sent)
	assert.Equal(t, 0, got.Failed)
	assert.Len(t, fake.Performed(), 1)

	logs, err := store.Logs().ListRecent(context.Background(), 50)
	require.NoError(t, err)
	for _, l := range logs {
		assert.NotEqual(t, domain.LogError, l.Category, "unexpected error entry %q: %s", l.Description, l.Detail)
	}
}

func TestRunner_ShutdownCancelsLiveCampaigns(t *testing.T) {
	t.Parallel()

	h := newHarness(t, campaign.Options{})
	h.sleep.before = func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}

	spec := campaign.Spec{
		AccountID: "acct",
		Targets:   []string{"group-1"},
		Templates: []string{"hello"},
		Count:     5,
	}
	c, err := h.runner.Start(context.Background(), spec)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.runner.Shutdown(ctx))

	got, err := h.runner.Get(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CampaignCancelled, got.Status)

	_, err = h.runner.Start(context.Background(), spec)
	require.ErrorIs(t, err, campaign.ErrShuttingDown)
}

func TestRunner_ShutdownRacingStart(t *testing.T) {
	t.Parallel()

	h := newHarness(t, campaign.Options{})
	h.sleep.before = func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}

	spec := campaign.Spec{
		AccountID: "acct",
		Targets:   []string{"group-1"},
		Templates: []string{"hello"},
		Count:     5,
	}

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.runner.Start(context.Background(), spec)
			if err != nil {
				assert.ErrorIs(t, err, campaign.ErrShuttingDown)
			}
		}()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.runner.Shutdown(ctx))
	wg.Wait()

	cs, err := h.runner.List(context.Background(), 100, 0)
	require.NoError(t, err)
	for _, c := range cs {
		assert.True(t, c.Status.Terminal(), "campaign %s left %q after shutdown", c.ID, c.Status)
	}
}

func TestRunner_PublishesEvents(t *testing.T) {
	t.Parallel()

	h := newHarness(t, campaign.Options{})
	h.exec.fn = func(call int) action.Result {
		if call == 2 {
			return action.Result{Status: action.StatusOperationFailed}
		}
		return action.Result{Status: action.StatusSuccess}
	}

	c := h.startAndWait(t, campaign.Spec{
		AccountID: "acct",
		Targets:   []string{"group-1"},
		Templates: []string{"hello"},
		Count:     3,
	})

	assert.Equal(t, []campaign.EventType{
		campaign.EventStarted,
		campaign.EventSent,
		campaign.EventFailed,
		campaign.EventSent,
		campaign.EventFinished,
	}, h.pub.Types())

	h.pub.mu.Lock()
	defer h.pub.mu.Unlock()
	for _, ch := range h.pub.chans {
		assert.Equal(t, redisstore.CampaignChannel(c.ID), ch)
	}
	last := h.pub.events[len(h.pub.events)-1]
	assert.Equal(t, domain.CampaignCompleted, last.Status)
	assert.Equal(t, 2, last.Sent)
	assert.Equal(t, 1, last.Failed)
}

func TestRunner_StartValidates(t *testing.T) {
	t.Parallel()

	h := newHarness(t, campaign.Options{MaxIterations: 5})

	_, err := h.runner.Start(context.Background(), campaign.Spec{
		AccountID: "acct",
		Targets:   []string{"group-1"},
		Templates: []string{"hello"},
		Count:     6,
	})
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	list, err := h.runner.List(context.Background(), 10, 0)
	require.NoError(t, err)
	assert.Empty(t, list)
}

type recordingNotifier struct {
	mu        sync.Mutex
	campaigns []domain.Campaign
}

func (n *recordingNotifier) CampaignFinished(_ context.Context, c domain.Campaign) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.campaigns = append(n.campaigns, c)
	return nil
}

func TestRunner_NotifiesOnFinish(t *testing.T) {
	t.Parallel()

	notifier := &recordingNotifier{}
	h := newHarness(t, campaign.Options{Notifier: notifier})
	h.exec.fn = func(call int) action.Result {
		if call == 2 {
			return action.Result{Status: action.StatusOperationFailed, Reason: "boom"}
		}
		return action.Result{Status: action.StatusSuccess}
	}

	c := h.startAndWait(t, campaign.Spec{
		AccountID: "acct",
		Targets:   []string{"group-1"},
		Templates: []string{"msg"},
		Count:     3,
	})

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	require.Len(t, notifier.campaigns, 1)
	got := notifier.campaigns[0]
	assert.Equal(t, c.ID, got.ID)
	assert.Equal(t, domain.CampaignCompleted, got.Status)
	assert.Equal(t, 2, got.Sent)
	assert.Equal(t, 1, got.Failed)
	assert.NotNil(t, got.CompletedAt)
}
