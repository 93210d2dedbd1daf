package notifier

import (
	"context"

	"github.com/princinho/hostelbackend/logger"
)

// LogNotifier writes messages to the log instead of delivering them. Used
// when no broker is configured.
type LogNotifier struct {
	log *logger.Logger
}

func NewLogNotifier(log *logger.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(_ context.Context, msg Message) error {
	n.log.Info().
		Str("kind", string(msg.Kind)).
		Str("to", msg.To).
		Str("subject", msg.Subject).
		Str("body", msg.Body).
		Msg("notification not delivered (no broker configured)")
	return nil
}
