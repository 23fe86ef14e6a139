package inbox_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/durableplanner/plannerd/runtime/inbox"
)

func TestRedisNotifierWaitReturnsOnNotify(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	notifier := inbox.NewRedisNotifier(client)

	done := make(chan struct{})
	go func() {
		notifier.Wait(context.Background(), "wf-1", time.Second)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, notifier.Notify(context.Background(), "wf-1"))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after Notify")
	}
}

func TestRedisNotifierWaitTimesOutWithNoNotify(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	notifier := inbox.NewRedisNotifier(client)

	start := time.Now()
	notifier.Wait(context.Background(), "wf-1", 30*time.Millisecond)
	require.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}
