// Package notify posts campaign summaries to the operator channel.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gosuda/parley/internal/campaign"
	"github.com/gosuda/parley/internal/domain"
	"github.com/gosuda/parley/internal/messenger"
)

// Notifier posts one message per finished campaign.
type Notifier struct {
	messenger messenger.Messenger
	channelID string
}

var _ campaign.Notifier = (*Notifier)(nil)

// New creates a Notifier posting to channelID.
func New(msg messenger.Messenger, channelID string) *Notifier {
	return &Notifier{
		messenger: msg,
		channelID: channelID,
	}
}

// CampaignFinished posts a summary of c.
func (n *Notifier) CampaignFinished(ctx context.Context, c domain.Campaign) error {
	if _, err := n.messenger.SendMessage(ctx, n.channelID, Summary(c)); err != nil {
		return fmt.Errorf("notify.Notifier.CampaignFinished: send: %w", err)
	}
	return nil
}

// Summary renders c as a short markdown message.
func Summary(c domain.Campaign) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*Campaign* `%s` on `%s`: *%s*\n", c.ID, c.AccountID, c.Status)
	fmt.Fprintf(&b, "Sent %d, failed %d of %d", c.Sent, c.Failed, c.Iterations())

	if c.StartedAt != nil && c.CompletedAt != nil {
		fmt.Fprintf(&b, " in %s", c.CompletedAt.Sub(*c.StartedAt).Round(time.Second))
	}
	if c.ErrorKind != "" {
		fmt.Fprintf(&b, "\nStopped: `%s` %s", c.ErrorKind, c.Error)
	}

	return b.String()
}
