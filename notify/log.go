package notify

import (
	"context"

	core "github.com/DomeLiquid/paycore"
)

// LogNotifier writes owner messages to the log. Used when no messaging keystore is configured.
type LogNotifier struct {
	log core.Log
}

var _ core.Notifier = (*LogNotifier)(nil)

func NewLogNotifier(log core.Log) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) NotifyOwner(_ context.Context, owner, messageId, text string) error {
	n.log.Info().Str("owner", owner).Str("message_id", messageId).Str("text", text).Msg("owner notification")
	return nil
}
