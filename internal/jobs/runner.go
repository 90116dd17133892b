// Package jobs runs the periodic maintenance of the service: purging idle
// lobbies and sweeping expired rate limit records.
package jobs

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/mossy-p/lifecounter/internal/ratelimit"
	"github.com/sirupsen/logrus"
)

// LobbyPurger deletes idle lobbies.
type LobbyPurger interface {
	PurgeStale(ctx context.Context, retention time.Duration, batch int) (int, error)
}

type Config struct {
	Interval       time.Duration
	LobbyRetention time.Duration
	LobbyBatch     int
	SweepBatch     int
	// KickTimeout bounds a cleanup started by Kick.
	KickTimeout time.Duration
}

// Runner owns the maintenance jobs. The HTTP maintenance endpoints and the
// ticker call the same methods.
type Runner struct {
	lobbies LobbyPurger
	sweeper ratelimit.Sweeper
	logger  *logrus.Logger
	cfg     Config
	purging atomic.Bool
}

func NewRunner(lobbies LobbyPurger, sweeper ratelimit.Sweeper, logger *logrus.Logger, cfg Config) *Runner {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Minute
	}
	if cfg.LobbyRetention <= 0 {
		cfg.LobbyRetention = 24 * time.Hour
	}
	if cfg.LobbyBatch <= 0 {
		cfg.LobbyBatch = 50
	}
	if cfg.SweepBatch <= 0 {
		cfg.SweepBatch = 100
	}
	if cfg.KickTimeout <= 0 {
		cfg.KickTimeout = 10 * time.Second
	}
	return &Runner{lobbies: lobbies, sweeper: sweeper, logger: logger, cfg: cfg}
}

// CleanupLobbies purges one batch of idle lobbies. It deletes nothing when
// another purge is already running.
func (r *Runner) CleanupLobbies(ctx context.Context) (int, error) {
	if !r.purging.CompareAndSwap(false, true) {
		r.logger.Debug("jobs: lobby cleanup already running")
		return 0, nil
	}
	defer r.purging.Store(false)
	return r.lobbies.PurgeStale(ctx, r.cfg.LobbyRetention, r.cfg.LobbyBatch)
}

// CleanupRateLimits sweeps one batch of expired limiter records.
func (r *Runner) CleanupRateLimits(ctx context.Context) (int, error) {
	return r.sweeper.Sweep(ctx, r.cfg.SweepBatch)
}

// Kick starts a lobby cleanup in the background unless one is already
// running. It never blocks the caller and failures are only logged.
func (r *Runner) Kick() {
	if !r.purging.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer r.purging.Store(false)
		ctx, cancel := context.WithTimeout(context.Background(), r.cfg.KickTimeout)
		defer cancel()
		if _, err := r.lobbies.PurgeStale(ctx, r.cfg.LobbyRetention, r.cfg.LobbyBatch); err != nil {
			r.logger.WithError(err).Warn("jobs: opportunistic lobby cleanup failed")
		}
	}()
}

// Run executes both jobs every interval until ctx is done.
func (r *Runner) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *Runner) tick(ctx context.Context) {
	if n, err := r.CleanupLobbies(ctx); err != nil {
		r.logger.WithError(err).Error("jobs: lobby cleanup failed")
	} else if n > 0 {
		r.logger.WithField("deleted", n).Info("jobs: lobby cleanup")
	}
	if n, err := r.CleanupRateLimits(ctx); err != nil {
		r.logger.WithError(err).Error("jobs: rate limit cleanup failed")
	} else if n > 0 {
		r.logger.WithField("deleted", n).Info("jobs: rate limit cleanup")
	}
}
