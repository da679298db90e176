package session

import (
	"github.com/gosuda/parley/internal/domain"
)

type LoginOutcome string

const (
	LoginAuthenticated      LoginOutcome = "authenticated"
	LoginInvalidCredentials LoginOutcome = "invalid_credentials"
	LoginChallengeRequired  LoginOutcome = "challenge_required"
	LoginTransientFailure   LoginOutcome = "transient_failure"
)

// LoginResult is the Authenticator's closed set of outcomes. Challenge is set
// only for LoginChallengeRequired; Reason only for failures.
type LoginResult struct {
	Outcome   LoginOutcome
	Challenge *domain.ChallengeContext
	Reason    string
}

// Kind maps the outcome to the error kind reported at the API boundary.
func (r LoginResult) Kind() domain.ErrorKind {
	switch r.Outcome {
	case LoginInvalidCredentials:
		return domain.KindInvalidCredentials
	case LoginChallengeRequired:
		return domain.KindChallengeRequired
	case LoginTransientFailure:
		return domain.KindTransient
	default:
		return domain.KindNone
	}
}

type ChallengeOutcome string

const (
	ChallengeResolved     ChallengeOutcome = "resolved"
	ChallengeStillPending ChallengeOutcome = "still_pending"
	ChallengeFailed       ChallengeOutcome = "failed"
)

// ChallengeResult is the Challenge Resolver's outcome. FailureKind narrows a
// ChallengeFailed outcome (transient vs. invalid credentials).
type ChallengeResult struct {
	Outcome     ChallengeOutcome
	FailureKind domain.ErrorKind
	Reason      string
}

func (r ChallengeResult) Kind() domain.ErrorKind {
	switch r.Outcome {
	case ChallengeStillPending:
		return domain.KindChallengeRequired
	case ChallengeFailed:
		if r.FailureKind != domain.KindNone {
			return r.FailureKind
		}
		return domain.KindTransient
	default:
		return domain.KindNone
	}
}

type Validity string

const (
	Valid   Validity = "valid"
	Invalid Validity = "invalid"
	// Unknown means the check itself failed for a non-authentication reason.
	// The stored blob is left untouched.
	Unknown Validity = "unknown"
)
