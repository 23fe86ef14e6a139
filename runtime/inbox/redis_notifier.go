package inbox

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisNotifier publishes a resume wakeup on a per-workflow pub/sub channel,
// keying a short-lived Redis channel by the entity a subscriber is waiting
// on.
type RedisNotifier struct {
	client *redis.Client
}

// NewRedisNotifier wraps client as a Notifier.
func NewRedisNotifier(client *redis.Client) *RedisNotifier {
	return &RedisNotifier{client: client}
}

func channelName(workflowID string) string {
	return "workflow-resume:" + workflowID
}

// Notify publishes to the workflow's channel. Publishing to a channel with
// no subscribers is a no-op in Redis, so this never blocks on a worker being
// present.
func (n *RedisNotifier) Notify(ctx context.Context, workflowID string) error {
	return n.client.Publish(ctx, channelName(workflowID), time.Now().UTC().Format(time.RFC3339Nano)).Err()
}

// Wait blocks until a wakeup is published for workflowID, ctx is cancelled,
// or timeout elapses, whichever comes first. queue.Worker does not call it;
// its poll interval is fixed by WorkerConfig.PollInterval.
func (n *RedisNotifier) Wait(ctx context.Context, workflowID string, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	sub := n.client.Subscribe(ctx, channelName(workflowID))
	defer func() { _ = sub.Close() }()

	select {
	case <-sub.Channel():
	case <-ctx.Done():
	}
}
