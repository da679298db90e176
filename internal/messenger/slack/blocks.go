package slack

import (
	slacklib "github.com/slack-go/slack"
)

// BuildAlertBlocks builds a single markdown section for an operator alert.
func BuildAlertBlocks(text string) []slacklib.Block {
	section := slacklib.NewSectionBlock(
		slacklib.NewTextBlockObject(slacklib.MarkdownType, text, false, false),
		nil,
		nil,
	)

	return []slacklib.Block{section}
}
