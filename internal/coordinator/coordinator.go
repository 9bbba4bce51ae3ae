package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jkaberg/rituals-hass/internal/bus"
	"github.com/jkaberg/rituals-hass/internal/rituals"
	"github.com/sirupsen/logrus"
)

// Refresher fetches a fresh snapshot for the hub identified by hash.
// *rituals.Account satisfies it.
type Refresher interface {
	Refresh(ctx context.Context, hash string) (*rituals.Diffuser, error)
}

// Coordinator polls a single diffuser and caches its latest snapshot for any
// number of entities. Entities never fetch on their own; they read
// Diffuser() whenever they are asked for state.
type Coordinator struct {
	refresher Refresher
	interval  time.Duration
	timeout   time.Duration
	bus       *bus.Bus
	logger    *logrus.Logger

	mu          sync.RWMutex
	diffuser    *rituals.Diffuser
	lastSuccess bool
	lastErr     error
	lastUpdated time.Time
}

// New creates a coordinator seeded with an initial snapshot. The snapshot
// usually comes from the account hub listing. A nil bus disables update
// notifications.
func New(initial *rituals.Diffuser, refresher Refresher, interval time.Duration, b *bus.Bus, logger *logrus.Logger) *Coordinator {
	return &Coordinator{
		refresher:   refresher,
		interval:    interval,
		timeout:     interval,
		bus:         b,
		logger:      logger,
		diffuser:    initial,
		lastSuccess: initial != nil,
		lastUpdated: time.Now(),
	}
}

// SetTimeout bounds every single refresh call. Defaults to the poll interval.
func (c *Coordinator) SetTimeout(timeout time.Duration) { c.timeout = timeout }

// Diffuser returns the most recent snapshot. The returned value must not be
// modified.
func (c *Coordinator) Diffuser() *rituals.Diffuser {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.diffuser
}

// LastUpdateSuccess reports whether the most recent refresh succeeded.
func (c *Coordinator) LastUpdateSuccess() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastSuccess
}

// LastError returns the error of the most recent failed refresh, or nil.
func (c *Coordinator) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

// LastUpdated returns the time of the most recent successful refresh.
func (c *Coordinator) LastUpdated() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastUpdated
}

// Refresh fetches a new snapshot once. On failure the previous snapshot is
// kept and the coordinator is marked unsuccessful until the next good fetch.
func (c *Coordinator) Refresh(ctx context.Context) error {
	current := c.Diffuser()
	if current == nil {
		return fmt.Errorf("coordinator has no diffuser to refresh")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	fresh, err := c.refresher.Refresh(ctx, current.Hash)
	now := time.Now()

	c.mu.Lock()
	wasSuccess := c.lastSuccess
	if err != nil {
		c.lastSuccess = false
		c.lastErr = err
	} else {
		c.diffuser = fresh
		c.lastSuccess = true
		c.lastErr = nil
		c.lastUpdated = now
	}
	c.mu.Unlock()

	fields := logrus.Fields{"hublot": current.Hublot, "name": current.Name}
	switch {
	case err != nil && wasSuccess:
		c.logger.WithFields(fields).WithError(err).Warn("coordinator: refresh failed")
	case err != nil:
		c.logger.WithFields(fields).WithError(err).Debug("coordinator: refresh still failing")
	case !wasSuccess:
		c.logger.WithFields(fields).Info("coordinator: refresh recovered")
	default:
		c.logger.WithFields(fields).Debug("coordinator: refreshed")
	}

	if c.bus != nil {
		c.bus.Publish(bus.Update{Hublot: current.Hublot, Success: err == nil, At: now})
	}

	if err != nil {
		return fmt.Errorf("refresh %s: %w", current.Hublot, err)
	}
	return nil
}

// Run refreshes on every interval tick until ctx is cancelled. Refresh
// errors are logged and recorded, never returned.
func (c *Coordinator) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			_ = c.Refresh(ctx)
		}
	}
}
