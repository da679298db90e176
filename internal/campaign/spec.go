package campaign

import (
	"fmt"
	"strings"
	"time"

	"github.com/gosuda/parley/internal/domain"
)

// Spec is the operator's request for a new campaign.
type Spec struct {
	AccountID string
	Targets   []string
	Templates []string
	Count     int
	MinDelay  time.Duration
	MaxDelay  time.Duration
}

// Validate checks the spec. maxIterations caps targets × count; zero means
// no cap.
func (s Spec) Validate(maxIterations int) error {
	switch {
	case s.AccountID == "":
		return fmt.Errorf("account id required: %w", domain.ErrInvalidInput)
	case len(s.Targets) == 0:
		return fmt.Errorf("at least one target required: %w", domain.ErrInvalidInput)
	case len(s.Templates) == 0:
		return fmt.Errorf("at least one message template required: %w", domain.ErrInvalidInput)
	case s.Count < 1:
		return fmt.Errorf("count must be at least 1: %w", domain.ErrInvalidInput)
	case s.MinDelay < 0:
		return fmt.Errorf("min delay must not be negative: %w", domain.ErrInvalidInput)
	case s.MaxDelay < s.MinDelay:
		return fmt.Errorf("max delay must not be below min delay: %w", domain.ErrInvalidInput)
	}

	for _, t := range s.Targets {
		if strings.TrimSpace(t) == "" {
			return fmt.Errorf("blank target: %w", domain.ErrInvalidInput)
		}
	}
	for _, t := range s.Templates {
		if strings.TrimSpace(t) == "" {
			return fmt.Errorf("blank message template: %w", domain.ErrInvalidInput)
		}
	}

	if maxIterations > 0 && len(s.Targets)*s.Count > maxIterations {
		return fmt.Errorf("campaign of %d sends exceeds limit of %d: %w", len(s.Targets)*s.Count, maxIterations, domain.ErrInvalidInput)
	}
	return nil
}
