// Package surfacetest provides a scriptable Surface for tests.
package surfacetest

import (
	"context"
	"sync"

	"github.com/gosuda/parley/internal/domain"
	"github.com/gosuda/parley/internal/surface"
)

// Fake is a Surface whose behaviour is supplied per method. Unset methods
// return a page or reply that classifies as success under DefaultRules.
type Fake struct {
	LoginFunc     func(ctx context.Context, cred domain.Credential) (*surface.Page, error)
	ChallengeFunc func(ctx context.Context, state []byte, code string) (*surface.Page, error)
	ProbeFunc     func(ctx context.Context, blob domain.SessionBlob) error
	PerformFunc   func(ctx context.Context, blob domain.SessionBlob, op surface.Operation) (*surface.Reply, error)

	mu         sync.Mutex
	logins     int
	challenges int
	probes     int
	performed  []surface.Operation
}

var _ surface.Surface = (*Fake)(nil)

// LoggedIn returns a page that classifies as success and carries blob.
func LoggedIn(blob string) *surface.Page {
	return &surface.Page{URL: "https://surface.test/home", Body: "logged_in", Session: domain.SessionBlob(blob)}
}

// Challenge returns a page that classifies as challenge-required.
func Challenge(state string) *surface.Page {
	return &surface.Page{URL: "https://surface.test/challenge", Body: "verification_required", State: []byte(state)}
}

// BadCredentials returns a page that classifies as invalid credentials.
func BadCredentials() *surface.Page {
	return &surface.Page{URL: "https://surface.test/login", Body: "invalid_credentials"}
}

func (f *Fake) Login(ctx context.Context, cred domain.Credential) (*surface.Page, error) {
	f.mu.Lock()
	f.logins++
	f.mu.Unlock()

	if f.LoginFunc != nil {
		return f.LoginFunc(ctx, cred)
	}
	return LoggedIn("session-" + cred.AccountID), nil
}

func (f *Fake) SubmitChallenge(ctx context.Context, state []byte, code string) (*surface.Page, error) {
	f.mu.Lock()
	f.challenges++
	f.mu.Unlock()

	if f.ChallengeFunc != nil {
		return f.ChallengeFunc(ctx, state, code)
	}
	return LoggedIn("session-after-challenge"), nil
}

func (f *Fake) Probe(ctx context.Context, blob domain.SessionBlob) error {
	f.mu.Lock()
	f.probes++
	f.mu.Unlock()

	if f.ProbeFunc != nil {
		return f.ProbeFunc(ctx, blob)
	}
	return nil
}

func (f *Fake) Perform(ctx context.Context, blob domain.SessionBlob, op surface.Operation) (*surface.Reply, error) {
	f.mu.Lock()
	f.performed = append(f.performed, op)
	f.mu.Unlock()

	if f.PerformFunc != nil {
		return f.PerformFunc(ctx, blob, op)
	}
	return &surface.Reply{}, nil
}

// Logins returns how many times Login was called.
func (f *Fake) Logins() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logins
}

// Challenges returns how many times SubmitChallenge was called.
func (f *Fake) Challenges() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.challenges
}

// Probes returns how many times Probe was called.
func (f *Fake) Probes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.probes
}

// Performed returns a copy of every operation passed to Perform.
func (f *Fake) Performed() []surface.Operation {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]surface.Operation, len(f.performed))
	copy(out, f.performed)
	return out
}
