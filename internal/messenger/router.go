package messenger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/parley/internal/session"
)

// ErrAlertNotFound is returned when a reply arrives in a thread that carries
// no open challenge alert.
var ErrAlertNotFound = errors.New("messenger: alert not found") //nolint:gochecknoglobals // sentinel error

// ChallengeSubmitter is the subset of session.Manager the router drives.
type ChallengeSubmitter interface {
	SubmitChallenge(ctx context.Context, accountID, code string) (session.ChallengeResult, error)
}

// Router posts challenge alerts to one channel and turns threaded replies
// into challenge submissions. It implements session.Alerter.
type Router struct {
	messenger    Messenger
	channelID    string
	pollInterval time.Duration
	ttl          time.Duration

	mu        sync.Mutex
	submitter ChallengeSubmitter
	byThread  map[MessageID]*openAlert
	byAccount map[string]MessageID

	now func() time.Time
}

type openAlert struct {
	accountID string
	postedAt  time.Time
}

var _ session.Alerter = (*Router)(nil)

// RouterOption configures optional Router parameters.
type RouterOption func(*Router)

// WithPollInterval sets the interval at which the expiry watcher checks for stale alerts.
func WithPollInterval(d time.Duration) RouterOption {
	return func(r *Router) {
		r.pollInterval = d
	}
}

// WithAlertTTL sets how long an alert accepts replies. Zero disables expiry.
func WithAlertTTL(d time.Duration) RouterOption {
	return func(r *Router) {
		r.ttl = d
	}
}

// NewRouter creates a Router posting to channelID.
func NewRouter(msg Messenger, channelID string, opts ...RouterOption) *Router {
	r := &Router{
		messenger:    msg,
		channelID:    channelID,
		pollInterval: 30 * time.Second,
		byThread:     make(map[MessageID]*openAlert),
		byAccount:    make(map[string]MessageID),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetSubmitter wires the session manager after both have been constructed.
func (r *Router) SetSubmitter(s ChallengeSubmitter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.submitter = s
}

// ChallengeRequired posts an alert for accountID. A newer alert for the same
// account replaces the older one.
func (r *Router) ChallengeRequired(ctx context.Context, accountID string) error {
	text := fmt.Sprintf("Account `%s` needs interactive verification. Reply in this thread with the code.", accountID)
	msgID, err := r.messenger.SendMessage(ctx, r.channelID, text)
	if err != nil {
		return fmt.Errorf("messenger.Router.ChallengeRequired: send message: %w", err)
	}

	r.mu.Lock()
	if old, ok := r.byAccount[accountID]; ok {
		delete(r.byThread, old)
	}
	r.byThread[msgID] = &openAlert{accountID: accountID, postedAt: r.now()}
	r.byAccount[accountID] = msgID
	r.mu.Unlock()

	return nil
}

// ChallengeCleared closes the open alert for accountID, if any.
func (r *Router) ChallengeCleared(ctx context.Context, accountID string) error {
	r.mu.Lock()
	msgID, ok := r.byAccount[accountID]
	if ok {
		delete(r.byAccount, accountID)
		delete(r.byThread, msgID)
	}
	r.mu.Unlock()

	if !ok {
		return nil
	}

	text := fmt.Sprintf("Account `%s` verification resolved.", accountID)
	if err := r.messenger.UpdateMessage(ctx, r.channelID, msgID, text); err != nil {
		return fmt.Errorf("messenger.Router.ChallengeCleared: update message: %w", err)
	}
	return nil
}

// HandleResponse submits answer as the challenge code for the account whose
// alert started threadID, then reports the outcome in the alert message.
func (r *Router) HandleResponse(ctx context.Context, threadID, answer string) error {
	msgID := MessageID(threadID)

	r.mu.Lock()
	alert, ok := r.byThread[msgID]
	submitter := r.submitter
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("messenger.Router.HandleResponse: thread %q: %w", threadID, ErrAlertNotFound)
	}
	if submitter == nil {
		return errors.New("messenger.Router.HandleResponse: no challenge submitter configured")
	}

	code := strings.TrimSpace(answer)
	res, err := submitter.SubmitChallenge(ctx, alert.accountID, code)
	if err != nil {
		return fmt.Errorf("messenger.Router.HandleResponse: submit: %w", err)
	}

	var text string
	switch res.Outcome {
	case session.ChallengeResolved:
		if !r.isOpen(msgID) {
			// Already closed through ChallengeCleared.
			return nil
		}
		text = fmt.Sprintf("Account `%s` verification resolved.", alert.accountID)
		r.close(alert.accountID, msgID)
	case session.ChallengeStillPending:
		text = fmt.Sprintf("Account `%s` still needs verification. The last code was rejected; reply again in this thread.", alert.accountID)
	default:
		text = fmt.Sprintf("Account `%s` verification failed (%s).", alert.accountID, res.Kind())
		r.close(alert.accountID, msgID)
	}

	if updateErr := r.messenger.UpdateMessage(ctx, r.channelID, msgID, text); updateErr != nil {
		return fmt.Errorf("messenger.Router.HandleResponse: update message: %w", updateErr)
	}
	return nil
}

// StartExpiryWatcher closes alerts older than the TTL. It blocks until ctx
// is cancelled.
func (r *Router) StartExpiryWatcher(ctx context.Context) {
	if r.ttl <= 0 {
		return
	}

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.expire(ctx)
		}
	}
}

func (r *Router) expire(ctx context.Context) {
	cutoff := r.now().Add(-r.ttl)

	type expired struct {
		msgID     MessageID
		accountID string
	}
	var stale []expired

	r.mu.Lock()
	for msgID, a := range r.byThread {
		if a.postedAt.Before(cutoff) {
			stale = append(stale, expired{msgID: msgID, accountID: a.accountID})
		}
	}
	r.mu.Unlock()

	for _, s := range stale {
		r.close(s.accountID, s.msgID)

		text := fmt.Sprintf("Account `%s` verification alert expired. Submit the code through the API.", s.accountID)
		if err := r.messenger.UpdateMessage(ctx, r.channelID, s.msgID, text); err != nil {
			log.Error().Err(err).Str("thread_id", string(s.msgID)).Msg("update expired alert")
		}
		log.Warn().Str("account_id", s.accountID).Msg("challenge alert expired")
	}
}

func (r *Router) isOpen(msgID MessageID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.byThread[msgID]
	return ok
}

// close removes the alert only if it is still the current one for the account.
func (r *Router) close(accountID string, msgID MessageID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.byThread, msgID)
	if r.byAccount[accountID] == msgID {
		delete(r.byAccount, accountID)
	}
}
