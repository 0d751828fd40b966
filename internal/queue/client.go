package queue

import (
	"context"
	"time"
)

// Client sends messages to a queue backend.
type Client interface {
	Send(ctx context.Context, msg Message) error
}

// Dispatcher turns document ids into queue messages.
type Dispatcher struct {
	Client Client
	now    func() time.Time
}

// NewDispatcher wraps client.
func NewDispatcher(client Client) *Dispatcher {
	return &Dispatcher{Client: client, now: time.Now}
}

// Dispatch enqueues an enrichment job for documentID.
func (d *Dispatcher) Dispatch(ctx context.Context, documentID, requestID string) error {
	now := time.Now
	if d.now != nil {
		now = d.now
	}
	return d.Client.Send(ctx, Message{
		DocumentID: documentID,
		RequestID:  requestID,
		EnqueuedAt: now().UTC().Format(time.RFC3339),
		Version:    MessageVersion,
	})
}
