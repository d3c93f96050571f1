package funnel

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/Patil2099/posthog/internal/logging"
	"github.com/Patil2099/posthog/internal/models"
)

const (
	DefaultPollInterval = time.Second
	DefaultPollTimeout  = 180 * time.Second
)

// ErrFunnelTimeout is returned when the backend keeps reporting that the
// computation is in progress past the poll ceiling.
var ErrFunnelTimeout = errors.New("funnel timeout")

// Backend is the analytics backend the funnel logic talks to
type Backend interface {
	Funnel(ctx context.Context, params models.RequestParams) (*models.FunnelResponse, error)
	Persons(ctx context.Context, uuids []string) ([]models.Person, error)
	CreateInsight(ctx context.Context, req models.InsightRequest) (*models.Insight, error)
}

// Poller re-issues funnel requests while the backend is still computing
type Poller struct {
	backend  Backend
	interval time.Duration
	timeout  time.Duration
	cache    *ResultCache
	now      func() time.Time
}

// NewPoller creates a poller; zero durations fall back to the defaults
func NewPoller(backend Backend, interval, timeout time.Duration, cache *ResultCache) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if timeout <= 0 {
		timeout = DefaultPollTimeout
	}
	return &Poller{
		backend:  backend,
		interval: interval,
		timeout:  timeout,
		cache:    cache,
		now:      time.Now,
	}
}

// Poll sends params and waits until the backend reports a finished result.
// Only the first request carries the refresh flag.
func (p *Poller) Poll(ctx context.Context, params models.RequestParams) (*models.FunnelResponse, error) {
	if p.cache != nil && !params.Refresh {
		if cached, ok := p.cache.Get(params); ok {
			return cached, nil
		}
	}

	resp, err := p.backend.Funnel(ctx, params)
	if err != nil {
		return nil, err
	}

	start := p.now()
	params.Refresh = false
	attempts := 1
	for resp.Loading && p.now().Sub(start) < p.timeout {
		if err := p.wait(ctx); err != nil {
			return nil, err
		}
		resp, err = p.backend.Funnel(ctx, params)
		if err != nil {
			return nil, err
		}
		attempts++
	}

	if resp.Loading {
		logging.L().Warn("funnel still computing after poll ceiling",
			zap.Duration("timeout", p.timeout),
			zap.Int("attempts", attempts))
		return nil, ErrFunnelTimeout
	}

	if attempts > 1 {
		logging.L().Debug("funnel result ready", zap.Int("attempts", attempts))
	}
	if p.cache != nil {
		p.cache.Set(params, resp)
	}
	return resp, nil
}

func (p *Poller) wait(ctx context.Context) error {
	timer := time.NewTimer(p.interval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
