package services

import (
	"context"
	"time"

	"github.com/princinho/hostelbackend/notifier"
)

const defaultNotifyTimeout = 3 * time.Second

// deliver hands msg to n with its own deadline. A slow notifier costs the
// caller at most timeout; it is never cancelled by the request finishing.
func deliver(ctx context.Context, n notifier.Notifier, timeout time.Duration, msg notifier.Message) error {
	if n == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	return n.Notify(ctx, msg)
}
