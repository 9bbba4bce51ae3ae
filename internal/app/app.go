package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jkaberg/rituals-hass/internal/bus"
	"github.com/jkaberg/rituals-hass/internal/config"
	"github.com/jkaberg/rituals-hass/internal/coordinator"
	"github.com/jkaberg/rituals-hass/internal/entity"
	"github.com/jkaberg/rituals-hass/internal/rituals"
	"github.com/jkaberg/rituals-hass/internal/transmission"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Account is the subset of *rituals.Account the app drives.
type Account interface {
	coordinator.Refresher
	Authenticate(ctx context.Context) error
	Diffusers(ctx context.Context) ([]*rituals.Diffuser, error)
}

// Sink receives entities at setup and publishes their state afterwards.
type Sink interface {
	transmission.Transmitter
	Register(entities []*entity.BinarySensor)
}

// Setup logs in, builds one coordinator per diffuser keyed by hublot and
// registers the resulting entities with the sink. Each coordinator is
// refreshed once before entities are created.
func Setup(ctx context.Context, cfg *config.Config, account Account, sink Sink, b *bus.Bus, logger *logrus.Logger) (map[string]*coordinator.Coordinator, error) {
	if err := account.Authenticate(ctx); err != nil {
		return nil, fmt.Errorf("authenticate: %w", err)
	}

	diffusers, err := account.Diffusers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list diffusers: %w", err)
	}

	coordinators := make(map[string]*coordinator.Coordinator, len(diffusers))
	for _, d := range diffusers {
		c := coordinator.New(d, account, cfg.UpdateInterval, b, logger)
		c.SetTimeout(cfg.APITimeout)
		if err := c.Refresh(ctx); err != nil {
			logger.WithError(err).WithField("hublot", d.Hublot).Warn("app: first refresh failed, using listing snapshot")
		}
		coordinators[d.Hublot] = c

		logger.WithFields(logrus.Fields{
			"hublot":      d.Hublot,
			"name":        d.Name,
			"has_battery": d.HasBattery,
		}).Info("Diffuser found")
	}

	entity.SetupBinarySensors(coordinators, sink.Register)
	return coordinators, nil
}

// Run sets up coordinators and entities, then blocks until ctx is cancelled
// while coordinators poll and the scheduler publishes state.
func Run(parentCtx context.Context, cfg *config.Config, account Account, sink Sink, logger *logrus.Logger) error {
	messageBus := bus.New()
	defer messageBus.Close()

	coordinators, err := Setup(parentCtx, cfg, account, sink, messageBus, logger)
	if err != nil {
		return err
	}
	if len(coordinators) == 0 {
		logger.Warn("No diffusers on this account; nothing to publish")
	}

	grp, ctx := errgroup.WithContext(parentCtx)

	// Coordinators ---------------------------------------------------------
	for _, c := range coordinators {
		c := c
		grp.Go(func() error { return c.Run(ctx) })
	}

	// Scheduler ------------------------------------------------------------
	sub := messageBus.Subscribe()
	grp.Go(func() error {
		return schedule(ctx, sub, sink, cfg.MQTTInterval, logger)
	})

	if err := grp.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("app: background group exited: %w", err)
	}
	return nil
}

// schedule publishes immediately once, then whenever a coordinator reports
// and at least interval has passed since the last successful pass. Failed
// passes are retried on the next tick.
func schedule(ctx context.Context, updates <-chan bus.Update, sink transmission.Transmitter, interval time.Duration, logger *logrus.Logger) error {
	ticker := time.NewTicker(config.SchedulerTick)
	defer ticker.Stop()

	pending := true
	var lastSent time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			logger.WithFields(logrus.Fields{"hublot": u.Hublot, "success": u.Success}).Debug("scheduler: coordinator update")
			pending = true
		case <-ticker.C:
		}

		if !pending || time.Since(lastSent) < interval {
			continue
		}
		if err := sink.Transmit(); err != nil {
			logger.WithError(err).Warn("scheduler: transmit failed")
			continue
		}
		pending = false
		lastSent = time.Now()
	}
}
