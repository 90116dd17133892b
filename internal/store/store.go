// Package store persists lobbies and their player records.
//
// The layout is a two level hierarchy: a lobby record keyed by its code owns
// a set of player records keyed by player id. Deleting a lobby cascades to
// its players.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/mossy-p/lifecounter/internal/models"
)

var (
	// ErrNotFound is returned when the referenced lobby or player is absent.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a lobby code is already taken.
	ErrConflict = errors.New("record already exists")
	// ErrUnavailable is returned once retries against the backend are exhausted.
	ErrUnavailable = errors.New("store unavailable")
	// ErrCorrupt is returned when a stored value cannot be decoded, such as a
	// non-numeric life total.
	ErrCorrupt = errors.New("stored record is corrupt")
	// ErrInvalid is returned when a write falls outside the configured limits.
	ErrInvalid = errors.New("invalid field value")
)

// MutateFunc computes the write of a transactional update from the current
// record. It may run more than once and must not perform I/O.
type MutateFunc func(current models.Player) (models.PlayerMutation, error)

// Store is the record store the lobby manager and damage protocol depend on.
type Store interface {
	GetPlayer(ctx context.Context, lobbyID, playerID string) (models.Player, error)
	// SetPlayer replaces the player record. The lobby must exist.
	SetPlayer(ctx context.Context, lobbyID string, p models.Player) error
	// UpdatePlayer merges the set fields of u into an existing record.
	UpdatePlayer(ctx context.Context, lobbyID, playerID string, u models.PlayerUpdate) (models.Player, error)
	// IncrementPlayerField atomically adds delta to a counter field and
	// returns the new value.
	IncrementPlayerField(ctx context.Context, lobbyID, playerID, field string, delta int) (int, error)
	DeletePlayer(ctx context.Context, lobbyID, playerID string) error
	ListPlayers(ctx context.Context, lobbyID string) ([]models.Player, error)
	// RunAtomic runs fn against the current record and writes its result,
	// isolated from concurrent RunAtomic calls on the same record.
	RunAtomic(ctx context.Context, lobbyID, playerID string, fn MutateFunc) (models.Player, error)

	// CreateLobby writes the lobby and its owner in one transaction. It
	// returns ErrConflict when the code is already in use.
	CreateLobby(ctx context.Context, l models.Lobby, owner models.Player) error
	GetLobby(ctx context.Context, code string) (models.Lobby, error)
	TouchLobby(ctx context.Context, code string) error
	SetLobbyTimer(ctx context.Context, code string, end time.Time) (models.Lobby, error)
	// StaleLobbies lists up to limit lobby codes idle since before.
	StaleLobbies(ctx context.Context, before time.Time, limit int) ([]string, error)
	// DeleteLobbyIfStale removes the lobby and all its players unless it was
	// updated at or after before. It reports whether the lobby was deleted.
	DeleteLobbyIfStale(ctx context.Context, code string, before time.Time) (bool, error)

	SaveUser(ctx context.Context, u models.User) error
	RecordInterest(ctx context.Context, actorID string) (bool, error)
}
