// Package ratelimit enforces per-actor request quotas and minimum spacing
// between rapid updates of the same field.
//
// Quotas are fixed windows: the first request opens a window of the policy's
// length, requests inside it are counted, and the first request after it
// closes starts a fresh window. Bursts straddling a window boundary can reach
// twice the quota.
package ratelimit

import (
	"context"
	"time"
)

// Limiter counts requests per (actor, action) in fixed windows.
type Limiter interface {
	// Allow consumes one request from the window and reports whether it fits.
	// Denied requests are not counted.
	Allow(ctx context.Context, actorID, action string, max int, window time.Duration) (bool, error)
}

// Debouncer enforces a minimum interval between updates of one field.
type Debouncer interface {
	// ShouldDebounce reports whether an update arriving now is too close to
	// the last accepted one. Accepted updates advance the last update time.
	ShouldDebounce(ctx context.Context, actorID, playerID, field string, minInterval time.Duration) (bool, error)
}

// Sweeper deletes expired bookkeeping records.
type Sweeper interface {
	Sweep(ctx context.Context, limit int) (int, error)
}

// Backend is a complete limiter implementation.
type Backend interface {
	Limiter
	Debouncer
	Sweeper
}

// DefaultDebounceTTL is how long a debounce record is kept after its last
// update. It only affects storage hygiene.
const DefaultDebounceTTL = 24 * time.Hour

// Policy is a named quota.
type Policy struct {
	Action string
	Max    int
	Window time.Duration
}

// Gateway quotas.
var (
	CreateLobby    = Policy{Action: "createLobby", Max: 3, Window: 5 * time.Minute}
	JoinLobby      = Policy{Action: "joinLobby", Max: 10, Window: time.Minute}
	AddPlayer      = Policy{Action: "addPlayer", Max: 20, Window: time.Minute}
	UpdatePlayer   = Policy{Action: "updatePlayer", Max: 60, Window: time.Minute}
	UpdateTarget   = Policy{Action: "updatePlayerTarget", Max: 120, Window: time.Minute}
	IncrementField = Policy{Action: "incrementPlayerField", Max: 30, Window: time.Minute}
	StageDamage    = Policy{Action: "stageDamage", Max: 120, Window: time.Minute}
	Commander      = Policy{Action: "updateCommanderDamage", Max: 60, Window: time.Minute}
	ApplyDamage    = Policy{Action: "applyCombatDamage", Max: 30, Window: time.Minute}
	Settings       = Policy{Action: "updatePlayerSettings", Max: 20, Window: time.Minute}
	DeletePlayer   = Policy{Action: "deletePlayer", Max: 20, Window: time.Minute}
	StartTimer     = Policy{Action: "startTimer", Max: 10, Window: time.Minute}
	Maintenance    = Policy{Action: "maintenance", Max: 5, Window: time.Minute}
)

// Allow checks the policy for key against l.
func (p Policy) Allow(ctx context.Context, l Limiter, key string) (bool, error) {
	return l.Allow(ctx, key, p.Action, p.Max, p.Window)
}
