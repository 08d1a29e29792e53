package consumer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/snyk-ps/snyk-tag-processor/internal/queue"
)

// leaseRenewer keeps one in-flight message hidden from other consumers by
// re-extending its visibility window on a fixed cadence.
type leaseRenewer struct {
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

// renewLease starts a background renewer for m: every visibility/2 it
// re-extends the message's visibility by the full visibility duration. A
// failed renewal is logged and ends the renewer without retrying — the
// lease then expires on its own and the queue redelivers the message,
// which is the self-healing fallback.
func renewLease(ctx context.Context, q queue.Queue, m *queue.Message, visibility time.Duration, log *slog.Logger) *leaseRenewer {
	ctx, cancel := context.WithCancel(ctx)
	r := &leaseRenewer{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(r.done)
		ticker := time.NewTicker(visibility / 2)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := q.Update(ctx, m, m.Body, visibility); err != nil {
					if ctx.Err() == nil {
						log.Error("lease renewal failed, letting lease expire",
							"message_id", m.ID, "error", err)
					}
					return
				}
				log.Debug("lease renewed", "message_id", m.ID)
			}
		}
	}()
	return r
}

// stop cancels the renewer and waits for its goroutine to exit, so no
// renewal call is in flight when the owner issues its terminal queue call.
// Safe to call more than once.
func (r *leaseRenewer) stop() {
	r.stopOnce.Do(r.cancel)
	<-r.done
}
