package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
)

// Fallback answers from a durable backend and degrades to an in-process
// limiter while the backend is failing. Limits are then enforced per
// instance only.
type Fallback struct {
	primary Backend
	memory  *Memory
	logger  *logrus.Logger
}

var _ Backend = (*Fallback)(nil)

// NewFallback wraps primary. memory may be nil.
func NewFallback(primary Backend, memory *Memory, logger *logrus.Logger) *Fallback {
	if memory == nil {
		memory = NewMemory(nil)
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Fallback{primary: primary, memory: memory, logger: logger}
}

func (f *Fallback) degrade(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	f.logger.WithFields(logrus.Fields{
		"op":    op,
		"error": err,
	}).Warn("ratelimit: backend unavailable, using in-memory limiter")
	return nil
}

func (f *Fallback) Allow(ctx context.Context, actorID, action string, max int, window time.Duration) (bool, error) {
	ok, err := f.primary.Allow(ctx, actorID, action, max, window)
	if err == nil {
		return ok, nil
	}
	if cerr := f.degrade(ctx, "allow", err); cerr != nil {
		return false, cerr
	}
	return f.memory.Allow(ctx, actorID, action, max, window)
}

func (f *Fallback) ShouldDebounce(ctx context.Context, actorID, playerID, field string, minInterval time.Duration) (bool, error) {
	skip, err := f.primary.ShouldDebounce(ctx, actorID, playerID, field, minInterval)
	if err == nil {
		return skip, nil
	}
	if cerr := f.degrade(ctx, "debounce", err); cerr != nil {
		return false, cerr
	}
	return f.memory.ShouldDebounce(ctx, actorID, playerID, field, minInterval)
}

// Sweep cleans both the in-memory records and the backend. Errors from
// either are returned together with the records deleted so far.
func (f *Fallback) Sweep(ctx context.Context, limit int) (int, error) {
	n, merr := f.memory.Sweep(ctx, limit)
	if n >= limit {
		return n, merr
	}
	m, err := f.primary.Sweep(ctx, limit-n)
	return n + m, errors.Join(merr, err)
}
