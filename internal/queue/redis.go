// ABOUTME: Redis transport implementing storage-queue visibility semantics.
// ABOUTME: Used for local development and CI; production runs on Azure.
package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrReceiptMismatch is returned when an Update or Delete presents a stale
// receipt — the message was re-received by someone else after the caller's
// visibility window lapsed.
var ErrReceiptMismatch = errors.New("queue: receipt mismatch")

// RedisQueue implements Queue on a sorted set scored by the instant each
// message becomes visible. Receiving a message bumps its score into the
// future and rotates its receipt, which mirrors the pop-receipt behavior
// of the Azure backend closely enough that the consumer cannot tell them
// apart. All multi-key steps run as Lua scripts so concurrent consumers
// cannot claim the same message twice.
type RedisQueue struct {
	client *redis.Client
	key    string
}

var _ Queue = (*RedisQueue)(nil)

// Key layout, derived from the configured queue key k:
//
//	k            ZSET  member = message ID, score = visible-at (unix ms)
//	k:bodies     HASH  message ID → body
//	k:receipts   HASH  message ID → current receipt
//	k:rc         STRING receipt counter
var (
	receiveScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[3]))
local out = {}
for _, id in ipairs(due) do
  local receipt = redis.call('INCR', KEYS[4])
  redis.call('ZADD', KEYS[1], ARGV[2], id)
  redis.call('HSET', KEYS[3], id, receipt)
  out[#out+1] = id
  out[#out+1] = tostring(receipt)
  out[#out+1] = redis.call('HGET', KEYS[2], id)
end
return out
`)

	updateScript = redis.NewScript(`
if redis.call('HGET', KEYS[3], ARGV[1]) ~= ARGV[2] then
  return false
end
local receipt = redis.call('INCR', KEYS[4])
redis.call('ZADD', KEYS[1], ARGV[4], ARGV[1])
redis.call('HSET', KEYS[2], ARGV[1], ARGV[3])
redis.call('HSET', KEYS[3], ARGV[1], receipt)
return tostring(receipt)
`)

	deleteScript = redis.NewScript(`
if redis.call('HGET', KEYS[3], ARGV[1]) ~= ARGV[2] then
  return false
end
redis.call('ZREM', KEYS[1], ARGV[1])
redis.call('HDEL', KEYS[2], ARGV[1])
redis.call('HDEL', KEYS[3], ARGV[1])
return 1
`)
)

// NewRedisQueue wraps client as a Queue rooted at key.
func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	return &RedisQueue{client: client, key: key}
}

func (q *RedisQueue) keys() []string {
	return []string{q.key, q.key + ":bodies", q.key + ":receipts", q.key + ":rc"}
}

// Enqueue adds a message that becomes visible after delay. Producers and
// tests use it; the consumer itself only receives.
func (q *RedisQueue) Enqueue(ctx context.Context, body []byte, delay time.Duration) (string, error) {
	id := uuid.New().String()
	visibleAt := time.Now().Add(delay).UnixMilli()
	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, q.key+":bodies", id, body)
	pipe.ZAdd(ctx, q.key, redis.Z{Score: float64(visibleAt), Member: id})
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("enqueue: %w", err)
	}
	return id, nil
}

func (q *RedisQueue) Receive(ctx context.Context, max int, visibility time.Duration) ([]*Message, error) {
	now := time.Now()
	res, err := receiveScript.Run(ctx, q.client, q.keys(),
		now.UnixMilli(),
		now.Add(visibility).UnixMilli(),
		max,
	).Result()
	if err != nil {
		return nil, fmt.Errorf("receive: %w", err)
	}

	flat, ok := res.([]interface{})
	if !ok || len(flat)%3 != 0 {
		return nil, fmt.Errorf("receive: unexpected script reply %T", res)
	}
	msgs := make([]*Message, 0, len(flat)/3)
	for i := 0; i < len(flat); i += 3 {
		id, _ := flat[i].(string)
		receipt, _ := flat[i+1].(string)
		body, _ := flat[i+2].(string)
		msgs = append(msgs, &Message{ID: id, Receipt: receipt, Body: []byte(body)})
	}
	return msgs, nil
}

func (q *RedisQueue) Update(ctx context.Context, m *Message, body []byte, visibility time.Duration) error {
	res, err := updateScript.Run(ctx, q.client, q.keys(),
		m.ID,
		m.Receipt,
		body,
		time.Now().Add(visibility).UnixMilli(),
	).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("update message %s: %w", m.ID, ErrReceiptMismatch)
		}
		return fmt.Errorf("update message %s: %w", m.ID, err)
	}
	receipt, ok := res.(string)
	if !ok {
		if n, isInt := res.(int64); isInt {
			receipt = strconv.FormatInt(n, 10)
		} else {
			return fmt.Errorf("update message %s: unexpected script reply %T", m.ID, res)
		}
	}
	m.Receipt = receipt
	m.Body = body
	return nil
}

func (q *RedisQueue) Delete(ctx context.Context, m *Message) error {
	_, err := deleteScript.Run(ctx, q.client, q.keys(), m.ID, m.Receipt).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("delete message %s: %w", m.ID, ErrReceiptMismatch)
		}
		return fmt.Errorf("delete message %s: %w", m.ID, err)
	}
	return nil
}
