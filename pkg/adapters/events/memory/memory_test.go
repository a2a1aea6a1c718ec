package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aescanero/carecoord/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *recorder) handle(_ context.Context, event domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recorder) ids() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.ID
	}
	return out
}

func TestEventBus_DeliversInOrder(t *testing.T) {
	bus := NewEventBus(zap.NewNop())
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first, second := &recorder{}, &recorder{}
	require.NoError(t, bus.Subscribe(ctx, "topic", first.handle))
	require.NoError(t, bus.Subscribe(ctx, "topic", second.handle))

	var want []string
	for i := 0; i < 10; i++ {
		id := fmt.Sprintf("e%d", i)
		want = append(want, id)
		require.NoError(t, bus.Publish(ctx, "topic", domain.Event{ID: id}))
	}

	require.Eventually(t, func() bool { return len(first.ids()) == 10 && len(second.ids()) == 10 },
		time.Second, 5*time.Millisecond)
	assert.Equal(t, want, first.ids())
	assert.Equal(t, want, second.ids())
}

func TestEventBus_TopicsAreSeparate(t *testing.T) {
	bus := NewEventBus(zap.NewNop())
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec := &recorder{}
	require.NoError(t, bus.Subscribe(ctx, "a", rec.handle))
	require.NoError(t, bus.Publish(ctx, "b", domain.Event{ID: "other"}))
	require.NoError(t, bus.Publish(ctx, "a", domain.Event{ID: "mine"}))

	require.Eventually(t, func() bool { return len(rec.ids()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"mine"}, rec.ids())
}

func TestEventBus_CancelRemovesOnlyThatSubscription(t *testing.T) {
	bus := NewEventBus(zap.NewNop())
	defer bus.Close()

	keepCtx, keepCancel := context.WithCancel(context.Background())
	defer keepCancel()
	dropCtx, dropCancel := context.WithCancel(context.Background())

	kept, dropped := &recorder{}, &recorder{}
	require.NoError(t, bus.Subscribe(keepCtx, "topic", kept.handle))
	require.NoError(t, bus.Subscribe(dropCtx, "topic", dropped.handle))

	dropCancel()
	require.Eventually(t, func() bool {
		bus.mu.RLock()
		defer bus.mu.RUnlock()
		return len(bus.subscribers["topic"]) == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, bus.Publish(context.Background(), "topic", domain.Event{ID: "after"}))

	require.Eventually(t, func() bool { return len(kept.ids()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, dropped.ids())
}

func TestEventBus_Unsubscribe(t *testing.T) {
	bus := NewEventBus(zap.NewNop())
	defer bus.Close()

	rec := &recorder{}
	require.NoError(t, bus.Subscribe(context.Background(), "topic", rec.handle))
	require.NoError(t, bus.Unsubscribe(context.Background(), "topic"))
	require.NoError(t, bus.Publish(context.Background(), "topic", domain.Event{ID: "late"}))

	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, rec.ids())
}

func TestEventBus_HandlerErrorsDoNotStopDelivery(t *testing.T) {
	bus := NewEventBus(zap.NewNop())
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	calls := 0
	require.NoError(t, bus.Subscribe(ctx, "topic", func(context.Context, domain.Event) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		return errors.New("boom")
	}))

	require.NoError(t, bus.Publish(ctx, "topic", domain.Event{ID: "1"}))
	require.NoError(t, bus.Publish(ctx, "topic", domain.Event{ID: "2"}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls == 2
	}, time.Second, 5*time.Millisecond)
}

func TestEventBus_PublishWithoutSubscribers(t *testing.T) {
	bus := NewEventBus(zap.NewNop())
	assert.NoError(t, bus.Publish(context.Background(), "nobody", domain.Event{ID: "x"}))
	assert.NoError(t, bus.Close())
}
