// ABOUTME: Integration tests for the Redis transport: visibility, receipts, delete.
// ABOUTME: Uses testutil.NewTestRedis; each test runs against a real Redis testcontainer.
package queue_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snyk-ps/snyk-tag-processor/internal/queue"
	"github.com/snyk-ps/snyk-tag-processor/internal/testutil"
)

func newTestQueue(t *testing.T) *queue.RedisQueue {
	t.Helper()
	if testing.Short() {
		t.Skip("short mode: skipping container test")
	}
	return queue.NewRedisQueue(testutil.NewTestRedis(t), "test:queue")
}

func TestRedisQueue_ReceiveHidesMessage(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, []byte(`{"n":1}`), 0)
	require.NoError(t, err)

	msgs, err := q.Receive(ctx, 32, time.Minute)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, id, msgs[0].ID)
	assert.Equal(t, `{"n":1}`, string(msgs[0].Body))
	assert.NotEmpty(t, msgs[0].Receipt)

	// Hidden for the visibility window: a second receive comes back empty.
	again, err := q.Receive(ctx, 32, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestRedisQueue_VisibilityExpiryRedelivers(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, []byte(`{"n":1}`), 0)
	require.NoError(t, err)

	msgs, err := q.Receive(ctx, 32, 300*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	firstReceipt := msgs[0].Receipt

	time.Sleep(400 * time.Millisecond)

	redelivered, err := q.Receive(ctx, 32, time.Minute)
	require.NoError(t, err)
	require.Len(t, redelivered, 1)
	assert.Equal(t, msgs[0].ID, redelivered[0].ID)
	assert.NotEqual(t, firstReceipt, redelivered[0].Receipt, "redelivery rotates the receipt")

	// The lapsed receipt no longer authorizes a delete.
	err = q.Delete(ctx, msgs[0])
	assert.ErrorIs(t, err, queue.ErrReceiptMismatch)
}

func TestRedisQueue_UpdateRewritesBodyAndRotatesReceipt(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, []byte(`{"attempts":0}`), 0)
	require.NoError(t, err)

	msgs, err := q.Receive(ctx, 32, time.Minute)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	m := msgs[0]
	oldReceipt := m.Receipt

	require.NoError(t, q.Update(ctx, m, []byte(`{"attempts":1}`), 0))
	assert.NotEqual(t, oldReceipt, m.Receipt)
	assert.Equal(t, `{"attempts":1}`, string(m.Body))

	// Zero visibility makes it immediately receivable with the new body.
	redelivered, err := q.Receive(ctx, 32, time.Minute)
	require.NoError(t, err)
	require.Len(t, redelivered, 1)
	assert.Equal(t, `{"attempts":1}`, string(redelivered[0].Body))

	// The pre-update receipt is dead.
	stale := &queue.Message{ID: m.ID, Receipt: oldReceipt, Body: m.Body}
	err = q.Update(ctx, stale, []byte(`{}`), 0)
	assert.ErrorIs(t, err, queue.ErrReceiptMismatch)
}

func TestRedisQueue_DeleteIsTerminal(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, []byte(`{"n":1}`), 0)
	require.NoError(t, err)

	msgs, err := q.Receive(ctx, 32, 200*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.NoError(t, q.Delete(ctx, msgs[0]))

	// Not redelivered even after the visibility window lapses.
	time.Sleep(300 * time.Millisecond)
	again, err := q.Receive(ctx, 32, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestRedisQueue_DelayedEnqueue(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, []byte(`{"n":1}`), 300*time.Millisecond)
	require.NoError(t, err)

	early, err := q.Receive(ctx, 32, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, early, "message is invisible until its delay lapses")

	time.Sleep(400 * time.Millisecond)
	msgs, err := q.Receive(ctx, 32, time.Minute)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestRedisQueue_BatchReceiveCapsAtMax(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := q.Enqueue(ctx, []byte(`{}`), 0)
		require.NoError(t, err)
	}

	first, err := q.Receive(ctx, 3, time.Minute)
	require.NoError(t, err)
	assert.Len(t, first, 3)

	rest, err := q.Receive(ctx, 32, time.Minute)
	require.NoError(t, err)
	assert.Len(t, rest, 2)
}
