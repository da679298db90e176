package surface

import "strings"

type Outcome string

const (
	OutcomeSuccess            Outcome = "success"
	OutcomeInvalidCredentials Outcome = "invalid_credentials"
	OutcomeChallengeRequired  Outcome = "challenge_required"
	OutcomeUnknown            Outcome = "unknown"
)

// Rules are the substring markers that identify the surface's state. They are
// matched against both the page URL and the page body.
type Rules struct {
	ChallengeMarkers     []string
	BadCredentialMarkers []string
	LoggedInMarkers      []string
}

// DefaultRules returns neutral markers suitable for the reference gateway.
func DefaultRules() Rules {
	return Rules{
		ChallengeMarkers:     []string{"/challenge", "/checkpoint", "verification_required"},
		BadCredentialMarkers: []string{"invalid_credentials", "incorrect password"},
		LoggedInMarkers:      []string{"logged_in"},
	}
}

// Classify maps a page to exactly one outcome. Order matters: a challenge
// marker beats a bad-credential marker, and the absence of a logged-in marker
// is Unknown rather than success.
func (r Rules) Classify(p *Page) Outcome {
	if p == nil {
		return OutcomeUnknown
	}

	switch {
	case matchAny(p, r.ChallengeMarkers):
		return OutcomeChallengeRequired
	case matchAny(p, r.BadCredentialMarkers):
		return OutcomeInvalidCredentials
	case !matchAny(p, r.LoggedInMarkers):
		return OutcomeUnknown
	default:
		return OutcomeSuccess
	}
}

func matchAny(p *Page, markers []string) bool {
	for _, m := range markers {
		if m == "" {
			continue
		}
		if strings.Contains(p.URL, m) || strings.Contains(p.Body, m) {
			return true
		}
	}
	return false
}
