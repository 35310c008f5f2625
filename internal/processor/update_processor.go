package processor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/sirupsen/logrus"

	"housebot/server/internal/models"
	"housebot/server/internal/queue"
)

// Handler handles one update end to end.
type Handler interface {
	Handle(ctx context.Context, update models.Update) error
}

// Recorder receives per-update outcomes. *metrics.Provider satisfies it.
type Recorder interface {
	ObserveUpdate(result string, d time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) ObserveUpdate(string, time.Duration) {}

// UpdateProcessor moves updates from the poller through the sharded queue
// into the handler, isolating failures to the update that caused them.
type UpdateProcessor struct {
	handler Handler
	queue   *queue.UpdateQueue
	logger  *logrus.Logger
	metrics Recorder
	timeout time.Duration
}

// NewUpdateProcessor creates a new processor. timeout bounds each update;
// zero means no limit. metrics may be nil.
func NewUpdateProcessor(handler Handler, q *queue.UpdateQueue, timeout time.Duration, logger *logrus.Logger, metrics Recorder) *UpdateProcessor {
	if metrics == nil {
		metrics = nopRecorder{}
	}
	return &UpdateProcessor{
		handler: handler,
		queue:   q,
		logger:  logger,
		metrics: metrics,
		timeout: timeout,
	}
}

// Start subscribes to the queue and starts its workers.
func (p *UpdateProcessor) Start(ctx context.Context) {
	p.queue.Subscribe(p.process)
	p.queue.Start(ctx)
}

// Stop closes the queue and waits for queued updates to finish.
func (p *UpdateProcessor) Stop() {
	if err := p.queue.Close(); err != nil {
		p.logger.WithError(err).Error("Failed to close update queue")
	}
}

// Enqueue is the poller's callback. A full shard drops the update.
func (p *UpdateProcessor) Enqueue(update models.Update) {
	err := p.queue.Push(update)
	if err == nil {
		return
	}

	p.metrics.ObserveUpdate("dropped", 0)
	entry := p.logger.WithError(err).WithFields(logrus.Fields{
		"update_id": update.UpdateID,
		"user_id":   update.UserID(),
	})
	if errors.Is(err, queue.ErrQueueFull) {
		entry.Warn("Update queue full, dropping update")
		return
	}
	entry.Error("Failed to enqueue update")
}

// process handles a single update, recovering from panics in the handler
func (p *UpdateProcessor) process(ctx context.Context, update models.Update) (err error) {
	start := time.Now()
	result := "handled"

	defer func() {
		if r := recover(); r != nil {
			result = "panicked"
			err = fmt.Errorf("panic while handling update %d: %v", update.UpdateID, r)
			p.logger.WithFields(logrus.Fields{
				"update_id": update.UpdateID,
				"user_id":   update.UserID(),
				"stack":     string(debug.Stack()),
			}).Error("Recovered from panic in update handler")
		}
		p.metrics.ObserveUpdate(result, time.Since(start))
	}()

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	if err := p.handler.Handle(ctx, update); err != nil {
		result = "failed"
		return fmt.Errorf("failed to handle update %d: %w", update.UpdateID, err)
	}

	p.logger.WithFields(logrus.Fields{
		"update_id": update.UpdateID,
		"user_id":   update.UserID(),
		"duration":  time.Since(start).String(),
	}).Debug("Handled update")
	return nil
}
