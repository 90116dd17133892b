// Package damage implements staged life and commander damage: clients stage
// deltas against a player without touching the authoritative counters, then
// commit folds every staged delta in one transaction or abort discards them.
package damage

import (
	"context"
	"fmt"
	"time"

	"github.com/mossy-p/lifecounter/internal/apperr"
	"github.com/mossy-p/lifecounter/internal/live"
	"github.com/mossy-p/lifecounter/internal/models"
	"github.com/mossy-p/lifecounter/internal/store"
	"github.com/sirupsen/logrus"
)

// DefaultCeiling bounds the magnitude of a single staged adjustment.
const DefaultCeiling = 1000

// Protocol stages, commits and aborts damage on player records.
type Protocol struct {
	store     store.Store
	publisher live.Publisher
	logger    *logrus.Logger
	ceiling   int
	now       func() time.Time
}

func NewProtocol(s store.Store, pub live.Publisher, logger *logrus.Logger, ceiling int) *Protocol {
	if ceiling <= 0 {
		ceiling = DefaultCeiling
	}
	if pub == nil {
		pub = live.Discard{}
	}
	return &Protocol{
		store:     s,
		publisher: pub,
		logger:    logger,
		ceiling:   ceiling,
		now:       time.Now,
	}
}

func (p *Protocol) checkDelta(delta int) error {
	if delta == 0 {
		return apperr.InvalidArgument("delta must be non-zero")
	}
	if delta > p.ceiling || delta < -p.ceiling {
		return apperr.InvalidArgument("delta must be within ±%d", p.ceiling)
	}
	return nil
}

// Stage adds delta to a staged field. Concurrent stages compose additively.
// It returns the new staged value.
func (p *Protocol) Stage(ctx context.Context, lobbyID, playerID, field string, delta int) (int, error) {
	if !models.StagedFields[field] {
		return 0, apperr.InvalidArgument("field must be %s or %s", models.FieldLifeToApply, models.FieldInfectToApply)
	}
	if err := p.checkDelta(delta); err != nil {
		return 0, err
	}
	v, err := p.store.IncrementPlayerField(ctx, lobbyID, playerID, field, delta)
	if err != nil {
		return 0, fmt.Errorf("stage %s on %s: %w", field, playerID, err)
	}
	p.publish(ctx, lobbyID, models.LobbyEvent{Type: models.EventPlayerUpdated, PlayerID: playerID})
	return v, nil
}

// fold computes the commit of cur. The staged fields are decremented by the
// amounts folded instead of being zeroed, so a delta staged after the read
// survives for the next commit. Folded totals are not held to the per-write
// cap: every staged delta was already accepted.
func fold(cur models.Player) models.PlayerMutation {
	life := cur.Life + cur.LifeToApply
	cds := make([]models.CommanderDamage, len(cur.CommanderDamages))
	for i, cd := range cur.CommanderDamages {
		life -= cd.LifeToApply
		cd.Damage += cd.LifeToApply
		cd.LifeToApply = 0
		cds[i] = cd
	}
	return models.PlayerMutation{
		Set: models.PlayerUpdate{
			Life:             models.IntPtr(life),
			Infect:           models.IntPtr(cur.Infect + cur.InfectToApply),
			CommanderDamages: cds,
		},
		Add: map[string]int{
			models.FieldLifeToApply:   -cur.LifeToApply,
			models.FieldInfectToApply: -cur.InfectToApply,
		},
		Derived: true,
	}
}

// Commit folds all staged deltas into life, infect and commander damage in a
// single transaction. It fails without writing anything when the player is
// gone.
func (p *Protocol) Commit(ctx context.Context, lobbyID, playerID string) (models.Player, error) {
	var folded models.Player
	pl, err := p.store.RunAtomic(ctx, lobbyID, playerID, func(cur models.Player) (models.PlayerMutation, error) {
		folded = cur
		return fold(cur), nil
	})
	if err != nil {
		return models.Player{}, fmt.Errorf("commit %s: %w", playerID, err)
	}
	p.logger.WithFields(logrus.Fields{
		"lobby":  lobbyID,
		"player": playerID,
		"life":   pl.Life,
		"staged": folded.LifeToApply,
	}).Debug("damage: committed")
	p.publishPlayer(ctx, lobbyID, pl)
	return pl, nil
}

// Abort discards every staged delta without touching authoritative values.
// Aborting twice is the same as aborting once.
func (p *Protocol) Abort(ctx context.Context, lobbyID, playerID string) (models.Player, error) {
	pl, err := p.store.RunAtomic(ctx, lobbyID, playerID, func(cur models.Player) (models.PlayerMutation, error) {
		if !cur.HasStaged() {
			return models.PlayerMutation{}, nil
		}
		cds := make([]models.CommanderDamage, len(cur.CommanderDamages))
		for i, cd := range cur.CommanderDamages {
			cd.LifeToApply = 0
			cds[i] = cd
		}
		return models.PlayerMutation{Set: models.PlayerUpdate{
			LifeToApply:      models.IntPtr(0),
			InfectToApply:    models.IntPtr(0),
			CommanderDamages: cds,
		}}, nil
	})
	if err != nil {
		return models.Player{}, fmt.Errorf("abort %s: %w", playerID, err)
	}
	p.publishPlayer(ctx, lobbyID, pl)
	return pl, nil
}

// StageCommander adds delta to the staged commander damage opponent dealt to
// the player, creating the entry when it does not exist yet. Entries written
// before opponent ids were tracked are matched by name and upgraded.
func (p *Protocol) StageCommander(ctx context.Context, lobbyID, playerID string, opponent models.OpponentRef, delta int) (models.Player, error) {
	if opponent.ID == "" && opponent.Name == "" {
		return models.Player{}, apperr.InvalidArgument("opponentId or commanderName is required")
	}
	if err := p.checkDelta(delta); err != nil {
		return models.Player{}, err
	}
	pl, err := p.store.RunAtomic(ctx, lobbyID, playerID, func(cur models.Player) (models.PlayerMutation, error) {
		cds := make([]models.CommanderDamage, 0, len(cur.CommanderDamages)+1)
		found := false
		for _, cd := range cur.CommanderDamages {
			if !found && opponent.Matches(cd) {
				found = true
				cd.LifeToApply += delta
				if cd.OpponentID == "" {
					cd.OpponentID = opponent.ID
				}
				if opponent.Name != "" {
					cd.CommanderName = opponent.Name
				}
			}
			cds = append(cds, cd)
		}
		if !found {
			cds = append(cds, models.CommanderDamage{
				OpponentID:    opponent.ID,
				CommanderName: opponent.Name,
				LifeToApply:   delta,
			})
		}
		return models.PlayerMutation{Set: models.PlayerUpdate{CommanderDamages: cds}}, nil
	})
	if err != nil {
		return models.Player{}, fmt.Errorf("stage commander damage on %s: %w", playerID, err)
	}
	p.publishPlayer(ctx, lobbyID, pl)
	return pl, nil
}

// ReplaceCommanderDamages overwrites the whole commander damage list.
func (p *Protocol) ReplaceCommanderDamages(ctx context.Context, lobbyID, playerID string, entries []models.CommanderDamage) (models.Player, error) {
	if entries == nil {
		entries = []models.CommanderDamage{}
	}
	pl, err := p.store.RunAtomic(ctx, lobbyID, playerID, func(models.Player) (models.PlayerMutation, error) {
		return models.PlayerMutation{Set: models.PlayerUpdate{CommanderDamages: entries}}, nil
	})
	if err != nil {
		return models.Player{}, fmt.Errorf("replace commander damages on %s: %w", playerID, err)
	}
	p.publishPlayer(ctx, lobbyID, pl)
	return pl, nil
}

func (p *Protocol) publishPlayer(ctx context.Context, lobbyID string, pl models.Player) {
	p.publish(ctx, lobbyID, models.LobbyEvent{Type: models.EventPlayerUpdated, PlayerID: pl.ID, Player: &pl})
}

func (p *Protocol) publish(ctx context.Context, lobbyID string, ev models.LobbyEvent) {
	ev.At = p.now().UnixMilli()
	if err := p.publisher.Publish(ctx, lobbyID, ev); err != nil {
		p.logger.WithFields(logrus.Fields{
			"lobby": lobbyID,
			"event": ev.Type,
			"error": err,
		}).Warn("damage: failed to publish event")
	}
}
