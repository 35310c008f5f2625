package queue

import (
	"context"
	"errors"
	"sync"

	"housebot/server/internal/models"

	"github.com/sirupsen/logrus"
)

var (
	ErrQueueFull   = errors.New("queue is full")
	ErrQueueClosed = errors.New("queue is closed")
)

// Handler processes one update. Errors are logged by the queue.
type Handler func(ctx context.Context, update models.Update) error

// UpdateQueue fans Telegram updates out to a fixed number of shards. All
// updates of one user land on the same shard, so they are handled one at a
// time and in arrival order.
type UpdateQueue struct {
	shards   []chan models.Update
	closed   bool
	started  bool
	mu       sync.RWMutex
	wg       sync.WaitGroup
	logger   *logrus.Logger
	handlers []Handler
}

// NewUpdateQueue creates a queue with shardCount shards of bufferSize each.
func NewUpdateQueue(shardCount, bufferSize int, logger *logrus.Logger) *UpdateQueue {
	if shardCount < 1 {
		shardCount = 1
	}
	shards := make([]chan models.Update, shardCount)
	for i := range shards {
		shards[i] = make(chan models.Update, bufferSize)
	}
	return &UpdateQueue{
		shards:   shards,
		logger:   logger,
		handlers: make([]Handler, 0),
	}
}

// ShardFor returns the shard index that owns userID.
func (q *UpdateQueue) ShardFor(userID int64) int {
	return int(uint64(userID) % uint64(len(q.shards)))
}

// Push routes an update to its user's shard without blocking.
func (q *UpdateQueue) Push(update models.Update) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}

	shard := q.ShardFor(update.UserID())
	select {
	case q.shards[shard] <- update:
		q.logger.WithFields(logrus.Fields{
			"update_id": update.UpdateID,
			"user_id":   update.UserID(),
			"shard":     shard,
		}).Debug("Pushed update to queue")
		return nil
	default:
		return ErrQueueFull
	}
}

// Subscribe adds a handler that is called for every update. Handlers must be
// registered before Start.
func (q *UpdateQueue) Subscribe(handler Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers = append(q.handlers, handler)
}

// Start launches one worker per shard. Workers exit once the queue is closed
// and drained.
func (q *UpdateQueue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.started || q.closed {
		return
	}
	q.started = true

	for i, shard := range q.shards {
		q.wg.Add(1)
		go q.process(ctx, i, shard)
	}
}

func (q *UpdateQueue) process(ctx context.Context, shard int, items <-chan models.Update) {
	defer q.wg.Done()

	for update := range items {
		q.dispatch(ctx, shard, update)
	}
}

// dispatch sends the update to all subscribed handlers
func (q *UpdateQueue) dispatch(ctx context.Context, shard int, update models.Update) {
	q.mu.RLock()
	handlers := q.handlers
	q.mu.RUnlock()

	for _, handler := range handlers {
		if err := handler(ctx, update); err != nil {
			q.logger.WithError(err).WithFields(logrus.Fields{
				"update_id": update.UpdateID,
				"shard":     shard,
			}).Error("Handler failed to process update")
		}
	}
}

// Close stops accepting updates and waits for the workers to drain what was
// already queued.
func (q *UpdateQueue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	for _, shard := range q.shards {
		close(shard)
	}
	q.mu.Unlock()

	q.wg.Wait()
	return nil
}

// Len returns the number of updates waiting across all shards
func (q *UpdateQueue) Len() int {
	n := 0
	for _, shard := range q.shards {
		n += len(shard)
	}
	return n
}

// IsClosed returns whether the queue has been closed
func (q *UpdateQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
