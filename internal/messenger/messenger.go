// Package messenger routes challenge alerts to a chat platform and feeds the
// operator's threaded replies back to the session manager.
package messenger

import "context"

// MessageID uniquely identifies a message within a messenger platform. On
// Slack it is the message timestamp, which also names its thread.
type MessageID string

// Messenger abstracts communication with a chat platform.
type Messenger interface {
	// SendMessage posts a text message to a channel and returns its platform message ID.
	SendMessage(ctx context.Context, channelID, text string) (MessageID, error)

	// UpdateMessage edits an existing message in a channel.
	UpdateMessage(ctx context.Context, channelID string, messageID MessageID, text string) error

	// Platform returns the messenger platform identifier (e.g. "slack").
	Platform() string
}
