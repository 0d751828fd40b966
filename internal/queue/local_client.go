package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"docvault/internal/shared/telemetry"
)

var (
	// ErrQueueFull is returned when the local buffer has no room.
	ErrQueueFull = errors.New("local queue full")
	// ErrQueueClosed is returned after Shutdown.
	ErrQueueClosed = errors.New("local queue closed")
)

// HandlerFunc processes one message.
type HandlerFunc func(ctx context.Context, msg Message) error

// LocalClient is an in-process queue served by a fixed pool of workers.
type LocalClient struct {
	jobs    chan Message
	handler HandlerFunc
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewLocalClient starts workers goroutines reading from a buffer of size buffer.
func NewLocalClient(workers, buffer int, handler HandlerFunc) *LocalClient {
	if workers < 1 {
		workers = 1
	}
	if buffer < 1 {
		buffer = 1
	}
	c := &LocalClient{
		jobs:    make(chan Message, buffer),
		handler: handler,
	}
	for i := 0; i < workers; i++ {
		c.wg.Add(1)
		go c.run(i)
	}
	return c
}

// Send enqueues msg without blocking.
func (c *LocalClient) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrQueueClosed
	}
	select {
	case c.jobs <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

// Shutdown stops accepting messages and waits for queued ones to finish or ctx to expire.
func (c *LocalClient) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.jobs)
	}
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *LocalClient) run(worker int) {
	defer c.wg.Done()
	for msg := range c.jobs {
		c.handle(worker, msg)
	}
}

func (c *LocalClient) handle(worker int, msg Message) {
	defer func() {
		if r := recover(); r != nil {
			telemetry.Error("queue.local.panic", map[string]any{
				"worker":      worker,
				"document_id": msg.DocumentID,
				"request_id":  msg.RequestID,
				"error":       fmt.Sprint(r),
			})
		}
	}()
	if err := c.handler(context.Background(), msg); err != nil {
		telemetry.Error("queue.local.failed", map[string]any{
			"worker":      worker,
			"document_id": msg.DocumentID,
			"request_id":  msg.RequestID,
			"error":       err.Error(),
		})
	}
}

var _ Client = (*LocalClient)(nil)
