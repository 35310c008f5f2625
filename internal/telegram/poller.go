package telegram

import (
	"context"
	"errors"
	"time"

	"housebot/server/internal/models"

	"github.com/sirupsen/logrus"
)

// UpdateSource is the part of Service the poller needs.
type UpdateSource interface {
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]models.Update, error)
}

// Poller feeds updates from getUpdates into a handler until its context ends.
type Poller struct {
	source     UpdateSource
	logger     *logrus.Logger
	timeout    time.Duration
	retryDelay time.Duration
	offset     int64
}

func NewPoller(source UpdateSource, logger *logrus.Logger, timeout time.Duration) *Poller {
	return &Poller{
		source:     source,
		logger:     logger,
		timeout:    timeout,
		retryDelay: 3 * time.Second,
	}
}

// Run blocks until ctx is cancelled. Each received update is passed to handle
// in order and the offset is advanced past it.
func (p *Poller) Run(ctx context.Context, handle func(models.Update)) error {
	p.logger.Info("Starting Telegram long polling")
	for {
		if ctx.Err() != nil {
			return nil
		}

		updates, err := p.source.GetUpdates(ctx, p.offset, p.timeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, ErrUnauthorized) {
				return err
			}
			p.logger.WithError(err).Warn("getUpdates failed")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(p.retryDelay):
			}
			continue
		}

		for _, u := range updates {
			if u.UpdateID >= p.offset {
				p.offset = u.UpdateID + 1
			}
			handle(u)
		}
	}
}
