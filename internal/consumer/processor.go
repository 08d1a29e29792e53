package consumer

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/snyk-ps/snyk-tag-processor/internal/queue"
	"github.com/snyk-ps/snyk-tag-processor/internal/snyk"
)

// API is the slice of the Snyk client the processor needs. Declared here so
// tests can substitute a fake without an HTTP server.
type API interface {
	ImportJobStatus(ctx context.Context, jobURL string) (snyk.Status, error)
	ProjectIDs(ctx context.Context, targetName, branch, orgID string) ([]string, error)
	TagProjects(ctx context.Context, projectIDs []string, tags []snyk.Tag, orgID string) snyk.TagResult
}

// ProcessorConfig holds the processing knobs (sourced from config.Config).
type ProcessorConfig struct {
	MaxAttempts       int
	BackoffBase       time.Duration
	VisibilityTimeout time.Duration
}

// Processor drives one queue message through the import lifecycle to
// exactly one terminal disposition: delete, or requeue with an incremented
// attempt counter.
type Processor struct {
	queue queue.Queue
	api   API
	cfg   ProcessorConfig
	log   *slog.Logger
}

// NewProcessor creates a Processor.
func NewProcessor(q queue.Queue, api API, cfg ProcessorConfig) *Processor {
	return &Processor{
		queue: q,
		api:   api,
		cfg:   cfg,
		log:   slog.Default(),
	}
}

// action is a terminal message disposition.
type action int

const (
	actionDelete action = iota
	actionRequeue
)

// Process handles one received message. The lease renewer runs for the
// whole decision and is stopped before the terminal queue call is issued.
//
// An import reporting a failed status is requeued like every other
// recoverable condition; only a structurally invalid payload or an
// exhausted attempt budget deletes without retry.
func (p *Processor) Process(ctx context.Context, m *queue.Message) {
	renewer := renewLease(ctx, p.queue, m, p.cfg.VisibilityTimeout, p.log)
	// Safety net for early returns and panics; no-op after the explicit
	// stop below.
	defer renewer.stop()

	job, err := decodeJob(m.Body)
	if err != nil {
		p.log.Error("invalid message, deleting", "message_id", m.ID, "error", err)
		renewer.stop()
		p.deleteMessage(ctx, m, p.log)
		return
	}

	log := p.log.With(
		"message_id", m.ID,
		"target", job.TargetName,
		"branch", job.Branch,
		"attempts", job.Attempts,
	)
	log.Info("processing message")

	act := p.decide(ctx, job, log)

	// No renewal may be in flight once the terminal call below goes out.
	renewer.stop()

	switch act {
	case actionDelete:
		p.deleteMessage(ctx, m, log)
	case actionRequeue:
		p.requeue(ctx, m, job, log)
	}
}

// decide walks the message through attempts gate → status poll → project
// resolution → tagging and picks the disposition. It issues no queue calls.
func (p *Processor) decide(ctx context.Context, job Job, log *slog.Logger) action {
	if job.Attempts >= p.cfg.MaxAttempts {
		log.Error("message exceeded maximum attempts, deleting")
		return actionDelete
	}

	status, err := p.api.ImportJobStatus(ctx, job.ImportJobURL)
	if err != nil {
		log.Error("import status poll failed, requeueing", "error", err)
		return actionRequeue
	}

	switch status {
	case snyk.StatusComplete:
		// Fall through to resolution below.
	case snyk.StatusPending:
		log.Info("import still pending, requeueing")
		return actionRequeue
	default:
		// The import itself failed. Requeued rather than deleted: failed
		// imports are routinely re-run upstream, and the attempts cap
		// bounds the total work either way.
		log.Error("import failed, requeueing")
		return actionRequeue
	}

	log.Info("import complete, resolving project ids")
	projectIDs, err := p.api.ProjectIDs(ctx, job.TargetName, job.Branch, job.OrgID)
	if err != nil {
		log.Error("project resolution failed, requeueing", "error", err)
		return actionRequeue
	}
	if len(projectIDs) == 0 {
		log.Info("no projects found for target, deleting")
		return actionDelete
	}

	res := p.api.TagProjects(ctx, projectIDs, job.Tags, job.OrgID)
	if !res.OK() {
		log.Error("tagging incomplete, requeueing",
			"projects", len(projectIDs),
			"tagged", res.Tagged,
			"already_tagged", res.AlreadyTagged,
			"failed", res.Failed,
		)
		return actionRequeue
	}

	log.Info("projects tagged",
		"projects", len(projectIDs),
		"tagged", res.Tagged,
		"already_tagged", res.AlreadyTagged,
	)
	return actionDelete
}

// requeue puts the message back with attempts+1 and a visibility delay from
// the backoff policy. Every field except attempts round-trips unchanged.
func (p *Processor) requeue(ctx context.Context, m *queue.Message, job Job, log *slog.Logger) {
	next := job.withAttempt(job.Attempts + 1)
	body, err := json.Marshal(next)
	if err != nil {
		// Unreachable for a descriptor that just decoded; the lease will
		// expire and the message redelivers as-is.
		log.Error("marshal requeued job", "error", err)
		return
	}

	delay := backoffFor(next.Attempts, p.cfg.MaxAttempts, p.cfg.BackoffBase)
	if err := p.queue.Update(ctx, m, body, delay); err != nil {
		log.Error("requeue failed, lease will expire naturally", "error", err)
		return
	}
	log.Info("message requeued", "next_attempt", next.Attempts, "delay", delay)
}

func (p *Processor) deleteMessage(ctx context.Context, m *queue.Message, log *slog.Logger) {
	if err := p.queue.Delete(ctx, m); err != nil {
		log.Error("delete failed, lease will expire naturally", "message_id", m.ID, "error", err)
		return
	}
	log.Info("message deleted", "message_id", m.ID)
}
