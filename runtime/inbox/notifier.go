package inbox

import "context"

// Notifier publishes a wakeup for workflowID when a signal lands on its
// inbox. queue.Worker polls on a ticker and does not listen for these
// wakeups. The queue remains the durable source of truth; Notifier is a latency
// optimization layered on top, never a delivery guarantee.
type Notifier interface {
	Notify(ctx context.Context, workflowID string) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, workflowID string) error

func (f NotifierFunc) Notify(ctx context.Context, workflowID string) error { return f(ctx, workflowID) }
