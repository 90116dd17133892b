// Package lobby manages the lifecycle of lobbies: creation with a
// collision-checked code, joining, synthetic players, timers and the purge of
// idle lobbies.
package lobby

import (
	"context"
	"errors"
	"fmt"
	mrand "math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/mossy-p/lifecounter/internal/apperr"
	"github.com/mossy-p/lifecounter/internal/live"
	"github.com/mossy-p/lifecounter/internal/models"
	"github.com/mossy-p/lifecounter/internal/store"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	// MaxCodeAttempts bounds how many fresh codes Create draws before giving up.
	MaxCodeAttempts = 8
	// MaxTimerMinutes bounds StartTimer.
	MaxTimerMinutes  = 240
	purgeParallelism = 4
	defaultName      = "Player"
)

// ErrCodeSpaceExhausted is returned when every drawn code was taken.
var ErrCodeSpaceExhausted = errors.New("could not find a free lobby code")

var dummyNames = []string{"Alice", "Bob", "Charlie", "David", "Eve", "Frank"}

// Config tunes a Manager.
type Config struct {
	StartingLife int
	Now          func() time.Time
	NewCode      func() (string, error)
}

// Manager implements the lobby lifecycle on top of a Store.
type Manager struct {
	store        store.Store
	publisher    live.Publisher
	logger       *logrus.Logger
	startingLife int
	now          func() time.Time
	newCode      func() (string, error)
}

func NewManager(s store.Store, pub live.Publisher, logger *logrus.Logger, cfg Config) *Manager {
	if cfg.StartingLife == 0 {
		cfg.StartingLife = 40
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewCode == nil {
		cfg.NewCode = GenerateCode
	}
	if pub == nil {
		pub = live.Discard{}
	}
	return &Manager{
		store:        s,
		publisher:    pub,
		logger:       logger,
		startingLife: cfg.StartingLife,
		now:          cfg.Now,
		newCode:      cfg.NewCode,
	}
}

// prepare turns a client snapshot into a freshly joining player. Life only
// defaults when the snapshot leaves it out, so an explicit 0 is kept.
func (m *Manager) prepare(in models.PlayerInput) models.Player {
	p := in.Player()
	if p.Name == "" {
		p.Name = defaultName
	}
	if in.Life == nil {
		p.Life = m.startingLife
	}
	p.JoinedAt = m.now().UnixMilli()
	return p
}

// Create opens a lobby owned by ownerID with owner as its first player and
// returns the lobby code.
func (m *Manager) Create(ctx context.Context, ownerID string, in models.PlayerInput) (string, error) {
	in.ID = ownerID
	owner := m.prepare(in)

	for attempt := 1; attempt <= MaxCodeAttempts; attempt++ {
		code, err := m.newCode()
		if err != nil {
			return "", err
		}
		now := m.now().UnixMilli()
		l := models.Lobby{
			Code:        code,
			OwnerID:     ownerID,
			OwnerName:   owner.Name,
			CreatedAt:   now,
			LastUpdated: now,
		}
		err = m.store.CreateLobby(ctx, l, owner)
		if errors.Is(err, store.ErrConflict) {
			m.logger.WithFields(logrus.Fields{
				"lobby":   code,
				"attempt": attempt,
			}).Warn("lobby: code collision, drawing a new one")
			continue
		}
		if err != nil {
			return "", fmt.Errorf("create lobby %s: %w", code, err)
		}

		m.logger.WithFields(logrus.Fields{
			"lobby": code,
			"actor": ownerID,
		}).Info("lobby: created")
		return code, nil
	}
	return "", fmt.Errorf("%w after %d attempts", ErrCodeSpaceExhausted, MaxCodeAttempts)
}

// Join upserts the player playerID into the lobby identified by code. The id
// always comes from the caller, never from the snapshot. Joining again with
// the same player id replaces the previous record.
func (m *Manager) Join(ctx context.Context, code, playerID string, in models.PlayerInput) (string, error) {
	code = NormalizeCode(code)
	if !ValidCode(code) {
		return "", apperr.InvalidArgument("lobby code must be %d letters or digits", codeLength)
	}
	if _, err := m.store.GetLobby(ctx, code); err != nil {
		return "", fmt.Errorf("join %s: %w", code, err)
	}
	in.ID = playerID
	p := m.prepare(in)
	if err := m.store.SetPlayer(ctx, code, p); err != nil {
		return "", fmt.Errorf("join %s: %w", code, err)
	}
	m.publishPlayer(ctx, code, p)
	m.logger.WithFields(logrus.Fields{"lobby": code, "player": p.ID}).Info("lobby: player joined")
	return code, nil
}

// AddPlayer adds a player that is not tied to a signed-in actor. Missing ids
// and names are generated.
func (m *Manager) AddPlayer(ctx context.Context, code string, in models.PlayerInput) (models.Player, error) {
	if in.ID == "" {
		in.ID = uuid.New().String()
	}
	if in.Name == "" {
		in.Name = dummyNames[mrand.IntN(len(dummyNames))]
	}
	p := m.prepare(in)
	if err := m.store.SetPlayer(ctx, code, p); err != nil {
		return models.Player{}, fmt.Errorf("add player to %s: %w", code, err)
	}
	m.publishPlayer(ctx, code, p)
	return p, nil
}

// RemovePlayer deletes a player record. Any lobby member may remove any
// player.
func (m *Manager) RemovePlayer(ctx context.Context, code, playerID string) error {
	if err := m.store.DeletePlayer(ctx, code, playerID); err != nil {
		return fmt.Errorf("remove %s from %s: %w", playerID, code, err)
	}
	m.publish(ctx, code, models.LobbyEvent{Type: models.EventPlayerRemoved, PlayerID: playerID})
	return nil
}

// UpdatePlayer merges u into an existing player.
func (m *Manager) UpdatePlayer(ctx context.Context, code, playerID string, u models.PlayerUpdate) (models.Player, error) {
	p, err := m.store.UpdatePlayer(ctx, code, playerID, u)
	if err != nil {
		return models.Player{}, fmt.Errorf("update %s in %s: %w", playerID, code, err)
	}
	m.publishPlayer(ctx, code, p)
	return p, nil
}

// IncrementField atomically adds delta to a counter field of a player and
// returns the new value.
func (m *Manager) IncrementField(ctx context.Context, code, playerID, field string, delta int) (int, error) {
	v, err := m.store.IncrementPlayerField(ctx, code, playerID, field, delta)
	if err != nil {
		return 0, fmt.Errorf("increment %s of %s: %w", field, playerID, err)
	}
	m.publish(ctx, code, models.LobbyEvent{Type: models.EventPlayerUpdated, PlayerID: playerID})
	return v, nil
}

func (m *Manager) Get(ctx context.Context, code string) (models.Lobby, error) {
	return m.store.GetLobby(ctx, code)
}

func (m *Manager) Players(ctx context.Context, code string) ([]models.Player, error) {
	return m.store.ListPlayers(ctx, code)
}

// Touch marks the lobby as active.
func (m *Manager) Touch(ctx context.Context, code string) error {
	return m.store.TouchLobby(ctx, code)
}

// StartTimer stores the absolute end of a countdown the clients display.
// The server does not act when it expires.
func (m *Manager) StartTimer(ctx context.Context, code string, minutes int) (time.Time, error) {
	if minutes < 1 || minutes > MaxTimerMinutes {
		return time.Time{}, apperr.InvalidArgument("durationMinutes must be between 1 and %d", MaxTimerMinutes)
	}
	end := m.now().Add(time.Duration(minutes) * time.Minute)
	l, err := m.store.SetLobbyTimer(ctx, code, end)
	if err != nil {
		return time.Time{}, fmt.Errorf("start timer on %s: %w", code, err)
	}
	m.publish(ctx, code, models.LobbyEvent{Type: models.EventLobbyUpdated, Lobby: &l})
	return time.UnixMilli(l.TimerEnd), nil
}

// PurgeStale deletes up to batch lobbies idle for longer than retention,
// together with their players. A lobby written to after the scan is kept.
// It is safe to call often and from several instances at once.
func (m *Manager) PurgeStale(ctx context.Context, retention time.Duration, batch int) (int, error) {
	cutoff := m.now().Add(-retention)
	codes, err := m.store.StaleLobbies(ctx, cutoff, batch)
	if err != nil {
		return 0, fmt.Errorf("scan stale lobbies: %w", err)
	}

	var deleted atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(purgeParallelism)
	for _, code := range codes {
		g.Go(func() error {
			ok, err := m.store.DeleteLobbyIfStale(gctx, code, cutoff)
			if err != nil {
				return fmt.Errorf("purge %s: %w", code, err)
			}
			if ok {
				deleted.Add(1)
				m.publish(gctx, code, models.LobbyEvent{Type: models.EventLobbyClosed})
			}
			return nil
		})
	}
	err = g.Wait()

	n := int(deleted.Load())
	if n > 0 {
		m.logger.WithField("deleted", n).Info("lobby: purged idle lobbies")
	}
	return n, err
}

func (m *Manager) publishPlayer(ctx context.Context, code string, p models.Player) {
	m.publish(ctx, code, models.LobbyEvent{Type: models.EventPlayerUpdated, PlayerID: p.ID, Player: &p})
}

// publish is best effort: the records are already durable and clients can
// refetch.
func (m *Manager) publish(ctx context.Context, code string, ev models.LobbyEvent) {
	if ev.At == 0 {
		ev.At = m.now().UnixMilli()
	}
	if err := m.publisher.Publish(ctx, code, ev); err != nil {
		m.logger.WithFields(logrus.Fields{
			"lobby": code,
			"event": ev.Type,
			"error": err,
		}).Warn("lobby: failed to publish event")
	}
}
