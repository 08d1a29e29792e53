package consumer

import (
	"context"
	"sync"
	"time"

	"github.com/snyk-ps/snyk-tag-processor/internal/queue"
	"github.com/snyk-ps/snyk-tag-processor/internal/snyk"
)

// queueOp is one recorded transport call.
type queueOp struct {
	kind       string // "update" or "delete"
	body       string
	visibility time.Duration
	at         time.Time
}

// fakeQueue records every transport call in order.
type fakeQueue struct {
	mu        sync.Mutex
	batches   [][]*queue.Message
	recvErr   error
	updateErr error
	deleteErr error
	ops       []queueOp
	receives  int
}

func (f *fakeQueue) Receive(_ context.Context, _ int, _ time.Duration) ([]*queue.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.receives++
	if f.recvErr != nil {
		return nil, f.recvErr
	}
	if len(f.batches) == 0 {
		return nil, nil
	}
	batch := f.batches[0]
	f.batches = f.batches[1:]
	return batch, nil
}

func (f *fakeQueue) Update(_ context.Context, m *queue.Message, body []byte, visibility time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	f.ops = append(f.ops, queueOp{kind: "update", body: string(body), visibility: visibility, at: time.Now()})
	m.Body = body
	return nil
}

func (f *fakeQueue) Delete(_ context.Context, m *queue.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.ops = append(f.ops, queueOp{kind: "delete", at: time.Now()})
	return nil
}

func (f *fakeQueue) opLog() []queueOp {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]queueOp, len(f.ops))
	copy(out, f.ops)
	return out
}

func (f *fakeQueue) opCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.ops)
}

// fakeAPI counts calls and delegates to the configured funcs. A nil func
// returns zero values; tests set only what their path exercises.
type fakeAPI struct {
	mu           sync.Mutex
	statusFn     func(jobURL string) (snyk.Status, error)
	projectsFn   func(target, branch, org string) ([]string, error)
	tagFn        func(ids []string, tags []snyk.Tag, org string) snyk.TagResult
	statusCalls  int
	projectCalls int
	tagCalls     int
}

func (f *fakeAPI) ImportJobStatus(_ context.Context, jobURL string) (snyk.Status, error) {
	f.mu.Lock()
	f.statusCalls++
	fn := f.statusFn
	f.mu.Unlock()
	if fn == nil {
		return snyk.StatusFailed, nil
	}
	return fn(jobURL)
}

func (f *fakeAPI) ProjectIDs(_ context.Context, target, branch, org string) ([]string, error) {
	f.mu.Lock()
	f.projectCalls++
	fn := f.projectsFn
	f.mu.Unlock()
	if fn == nil {
		return nil, nil
	}
	return fn(target, branch, org)
}

func (f *fakeAPI) TagProjects(_ context.Context, ids []string, tags []snyk.Tag, org string) snyk.TagResult {
	f.mu.Lock()
	f.tagCalls++
	fn := f.tagFn
	f.mu.Unlock()
	if fn == nil {
		return snyk.TagResult{}
	}
	return fn(ids, tags, org)
}

func (f *fakeAPI) calls() (status, projects, tag int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statusCalls, f.projectCalls, f.tagCalls
}
