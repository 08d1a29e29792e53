package consumer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/snyk-ps/snyk-tag-processor/internal/queue"
)

// receiveBatchSize is the storage-queue maximum for one receive call.
const receiveBatchSize = 32

// LoopConfig holds the polling knobs (sourced from config.Config).
type LoopConfig struct {
	PollInterval      time.Duration
	VisibilityTimeout time.Duration
}

// Loop repeatedly pulls a batch of messages from the queue and fans each
// one out to a concurrent Processor invocation. Messages never share state;
// the batch size is the only concurrency bound.
type Loop struct {
	queue queue.Queue
	proc  *Processor
	cfg   LoopConfig
	log   *slog.Logger
}

// NewLoop creates a Loop.
func NewLoop(q queue.Queue, proc *Processor, cfg LoopConfig) *Loop {
	return &Loop{
		queue: q,
		proc:  proc,
		cfg:   cfg,
		log:   slog.Default(),
	}
}

// Run polls the queue until ctx is cancelled. The next receive is not
// issued until every message of the current batch has reached a terminal
// disposition, so cancellation drains in-flight work before returning.
func (l *Loop) Run(ctx context.Context) error {
	l.log.Info("consumer loop started",
		"batch_size", receiveBatchSize,
		"poll_interval", l.cfg.PollInterval,
		"visibility_timeout", l.cfg.VisibilityTimeout,
	)

	for {
		msgs, err := l.queue.Receive(ctx, receiveBatchSize, l.cfg.VisibilityTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// Receive failures are transient as far as the loop is
			// concerned; the poll sleep below doubles as the retry delay.
			l.log.Error("receive failed", "error", err)
		}

		if len(msgs) > 0 {
			l.log.Debug("received batch", "count", len(msgs))
			var wg sync.WaitGroup
			for _, m := range msgs {
				wg.Add(1)
				go func(m *queue.Message) {
					defer wg.Done()
					l.proc.Process(ctx, m)
				}(m)
			}
			wg.Wait()
		}

		// Sleep between polls even after an empty batch so an idle queue is
		// not hot-polled. time.NewTimer (not time.After) so the timer is
		// released when ctx wins the select.
		timer := time.NewTimer(l.cfg.PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			l.log.Info("consumer loop stopping")
			return ctx.Err()
		case <-timer.C:
		}
	}
}
