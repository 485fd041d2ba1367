package telegram

import (
	"context"
	"errors"
	"time"

	"github.com/relaybots/relay/backend/go-services/pkg/logger"
)

// Handler processes one update. Errors are logged and the update is skipped.
type Handler func(ctx context.Context, u Update) error

// Poller drives a long-poll getUpdates loop.
type Poller struct {
	client  *Client
	timeout time.Duration
	backoff time.Duration
	offset  int64
}

func NewPoller(c *Client, timeout time.Duration) *Poller {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Poller{client: c, timeout: timeout, backoff: time.Second}
}

// Run polls until ctx is canceled. Each update is acknowledged (offset moves
// past it) whether or not the handler succeeds.
func (p *Poller) Run(ctx context.Context, h Handler) error {
	wait := p.backoff
	for {
		if ctx.Err() != nil {
			return nil
		}
		updates, err := p.client.GetUpdates(ctx, p.offset, p.timeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var apiErr *APIError
			if errors.As(err, &apiErr) && apiErr.Code == 401 {
				return err
			}
			if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
				wait = time.Duration(apiErr.RetryAfter) * time.Second
			}
			logger.Warnf("getUpdates failed, retrying in %s: %v", wait, err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(wait):
			}
			if wait < 30*time.Second {
				wait *= 2
			}
			continue
		}
		wait = p.backoff
		for _, u := range updates {
			if u.UpdateID >= p.offset {
				p.offset = u.UpdateID + 1
			}
			if err := h(ctx, u); err != nil {
				logger.Errorf("update %d: %v", u.UpdateID, err)
			}
		}
	}
}
