package changefeed

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	rediscommon "wisefido-erboard/internal/common/redis"
	"wisefido-erboard/internal/models"
)

const testStream = "erboard:beds:changes"

func setupRedis(t *testing.T) *redis.Client {
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

type recorder struct {
	mu     sync.Mutex
	events []models.BedEvent
	fail   bool
}

func (r *recorder) handle(_ context.Context, e models.BedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("handler failed")
	}
	r.events = append(r.events, e)
	return nil
}

func newTestConsumer(client *redis.Client, group string, rec *recorder) *Consumer {
	c := NewConsumer(client, testStream, group, "worker-1", 10, rec.handle, zap.NewNop())
	c.block = 20 * time.Millisecond
	return c
}

func TestPublishAndConsume(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()
	rec := &recorder{}
	consumer := newTestConsumer(client, "erboard-client-b", rec)
	require.NoError(t, consumer.EnsureGroup(ctx))

	pub := NewPublisher(client, testStream, 1000, "client-a", zap.NewNop())
	bed := models.Bed{ID: "bed-1", Label: "A1", Section: "A", Status: models.StatusCleaning, Version: 7}
	require.NoError(t, pub.Publish(ctx, models.EventUpdate, bed))

	acked, err := consumer.ConsumeOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, acked)

	require.Len(t, rec.events, 1)
	got := rec.events[0]
	assert.Equal(t, models.EventUpdate, got.EventType)
	assert.Equal(t, "client-a", got.Origin)
	assert.Equal(t, "bed-1", got.Bed.ID)
	assert.Equal(t, int64(7), got.Bed.Version)

	pending, err := client.XPending(ctx, testStream, "erboard-client-b").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), pending.Count)
}

func TestEveryClientGroupSeesEveryEvent(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()

	recA, recB := &recorder{}, &recorder{}
	a := newTestConsumer(client, "erboard-a", recA)
	b := newTestConsumer(client, "erboard-b", recB)
	require.NoError(t, a.EnsureGroup(ctx))
	require.NoError(t, b.EnsureGroup(ctx))

	pub := NewPublisher(client, testStream, 0, "a", zap.NewNop())
	require.NoError(t, pub.Publish(ctx, models.EventUpdate, models.Bed{ID: "bed-1", Status: models.StatusEmpty}))
	require.NoError(t, pub.Publish(ctx, models.EventDelete, models.Bed{ID: "bed-2", Status: models.StatusEmpty}))

	_, err := a.ConsumeOnce(ctx)
	require.NoError(t, err)
	_, err = b.ConsumeOnce(ctx)
	require.NoError(t, err)

	assert.Len(t, recA.events, 2)
	assert.Len(t, recB.events, 2)
}

func TestGroupStartsAtTail(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()

	pub := NewPublisher(client, testStream, 0, "a", zap.NewNop())
	require.NoError(t, pub.Publish(ctx, models.EventUpdate, models.Bed{ID: "old", Status: models.StatusEmpty}))

	rec := &recorder{}
	c := newTestConsumer(client, "late-joiner", rec)
	require.NoError(t, c.EnsureGroup(ctx))

	acked, err := c.ConsumeOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, acked)
	assert.Empty(t, rec.events)
}

func TestHandlerFailureLeavesMessagePending(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()
	rec := &recorder{fail: true}
	c := newTestConsumer(client, "g", rec)
	require.NoError(t, c.EnsureGroup(ctx))

	pub := NewPublisher(client, testStream, 0, "a", zap.NewNop())
	require.NoError(t, pub.Publish(ctx, models.EventUpdate, models.Bed{ID: "bed-1", Status: models.StatusEmpty}))

	acked, err := c.ConsumeOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, acked)

	pending, err := client.XPending(ctx, testStream, "g").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending.Count)
}

func TestMalformedMessageIsAckedAndSkipped(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()
	rec := &recorder{}
	c := newTestConsumer(client, "g", rec)
	require.NoError(t, c.EnsureGroup(ctx))

	_, err := rediscommon.PublishJSONToStream(ctx, client, testStream, 0, map[string]string{"event_type": "bogus"})
	require.NoError(t, err)

	acked, err := c.ConsumeOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, acked)
	assert.Empty(t, rec.events)

	pending, err := client.XPending(ctx, testStream, "g").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), pending.Count)
}

func TestParseEvent(t *testing.T) {
	_, err := ParseEvent(rediscommon.StreamMessage{ID: "1-0", Values: map[string]interface{}{}})
	assert.Error(t, err)

	_, err = ParseEvent(rediscommon.StreamMessage{ID: "1-0", Values: map[string]interface{}{
		"data": `{"event_type":"update","bed":{"id":""}}`,
	}})
	assert.Error(t, err)

	ev, err := ParseEvent(rediscommon.StreamMessage{ID: "1-0", Values: map[string]interface{}{
		"data": `{"event_type":"insert","bed":{"id":"bed-3","status":"Empty","version":1}}`,
	}})
	require.NoError(t, err)
	assert.Equal(t, models.EventInsert, ev.EventType)
	assert.Equal(t, "bed-3", ev.Bed.ID)
}

func TestNextBackoff(t *testing.T) {
	d := initialBackoff
	for i := 0; i < 10; i++ {
		d = nextBackoff(d)
	}
	assert.Equal(t, maxBackoff, d)
	assert.Equal(t, 2*time.Second, nextBackoff(time.Second))
}

func TestStart_StopsOnCancel(t *testing.T) {
	client := setupRedis(t)
	rec := &recorder{}
	c := newTestConsumer(client, "g", rec)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop")
	}
}
