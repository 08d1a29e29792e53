// ABOUTME: Azure Storage Queue transport: the production queue backend.
// ABOUTME: Authenticates with DefaultAzureCredential (managed identity in AKS).
package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
)

// AzureQueue implements Queue on one Azure Storage Queue.
type AzureQueue struct {
	client *azqueue.QueueClient
}

var _ Queue = (*AzureQueue)(nil)

// NewAzureQueue builds a client for
// https://<account>.queue.core.windows.net/<queue> using
// DefaultAzureCredential (environment, workload identity, or managed
// identity — whichever the runtime provides).
func NewAzureQueue(accountName, queueName string) (*AzureQueue, error) {
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("azure credential: %w", err)
	}
	return NewAzureQueueWithCredential(accountName, queueName, cred)
}

// NewAzureQueueWithCredential is NewAzureQueue with an injected credential.
func NewAzureQueueWithCredential(accountName, queueName string, cred azcore.TokenCredential) (*AzureQueue, error) {
	queueURL := fmt.Sprintf("https://%s.queue.core.windows.net/%s", accountName, queueName)
	client, err := azqueue.NewQueueClient(queueURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("azure queue client %s: %w", queueURL, err)
	}
	return &AzureQueue{client: client}, nil
}

// visibilitySeconds converts a duration to the whole-second pointer form
// the storage service expects.
func visibilitySeconds(d time.Duration) *int32 {
	s := int32(d / time.Second)
	return &s
}

func (q *AzureQueue) Receive(ctx context.Context, max int, visibility time.Duration) ([]*Message, error) {
	n := int32(max) //nolint:gosec // max is the batch size constant, far below int32 range
	resp, err := q.client.DequeueMessages(ctx, &azqueue.DequeueMessagesOptions{
		NumberOfMessages:  &n,
		VisibilityTimeout: visibilitySeconds(visibility),
	})
	if err != nil {
		return nil, fmt.Errorf("dequeue messages: %w", err)
	}

	msgs := make([]*Message, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		if m.MessageID == nil || m.PopReceipt == nil {
			continue
		}
		var body []byte
		if m.MessageText != nil {
			body = []byte(*m.MessageText)
		}
		msgs = append(msgs, &Message{ID: *m.MessageID, Receipt: *m.PopReceipt, Body: body})
	}
	return msgs, nil
}

func (q *AzureQueue) Update(ctx context.Context, m *Message, body []byte, visibility time.Duration) error {
	resp, err := q.client.UpdateMessage(ctx, m.ID, m.Receipt, string(body), &azqueue.UpdateMessageOptions{
		VisibilityTimeout: visibilitySeconds(visibility),
	})
	if err != nil {
		return fmt.Errorf("update message %s: %w", m.ID, err)
	}
	// The service invalidates the old pop receipt on every update; later
	// calls on this message must present the new one.
	if resp.PopReceipt != nil {
		m.Receipt = *resp.PopReceipt
	}
	m.Body = body
	return nil
}

func (q *AzureQueue) Delete(ctx context.Context, m *Message) error {
	if _, err := q.client.DeleteMessage(ctx, m.ID, m.Receipt, nil); err != nil {
		return fmt.Errorf("delete message %s: %w", m.ID, err)
	}
	return nil
}
