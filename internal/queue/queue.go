// Package queue abstracts the work-queue transport behind visibility-lease
// primitives: batch receive, update (rewrite and/or re-extend), delete.
//
// A Message is owned by exactly one processing goroutine at a time. Update
// rotates the transport receipt stored in the Message, so the owner must
// serialize its own Update/Delete calls; the consumer does this by stopping
// and awaiting the lease renewer before issuing a terminal call.
package queue

import (
	"context"
	"time"
)

// Message is one received queue entry. ID and Receipt are opaque transport
// state; callers only hand them back through Update and Delete.
type Message struct {
	ID      string
	Receipt string
	Body    []byte
}

// Queue is the transport contract shared by the Azure and Redis backends.
type Queue interface {
	// Receive returns up to max messages, hiding each from other consumers
	// for the visibility duration. An empty slice is a normal idle result.
	Receive(ctx context.Context, max int, visibility time.Duration) ([]*Message, error)

	// Update rewrites the message body and restarts its visibility window.
	// Pass the current body unchanged to renew a lease. On success the
	// Message carries the transport's latest receipt and the new body.
	Update(ctx context.Context, m *Message, body []byte, visibility time.Duration) error

	// Delete removes the message permanently.
	Delete(ctx context.Context, m *Message) error
}
