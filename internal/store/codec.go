package store

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/mossy-p/lifecounter/internal/models"
)

func encodePlayer(p models.Player) (map[string]any, error) {
	cds := p.CommanderDamages
	if cds == nil {
		cds = []models.CommanderDamage{}
	}
	raw, err := json.Marshal(cds)
	if err != nil {
		return nil, fmt.Errorf("encode commander damages: %w", err)
	}
	return map[string]any{
		"id":                         p.ID,
		models.FieldName:             p.Name,
		models.FieldBackgroundColor:  p.BackgroundColor,
		models.FieldFontColor:        p.FontColor,
		models.FieldLife:             p.Life,
		models.FieldLifeToApply:      p.LifeToApply,
		models.FieldInfect:           p.Infect,
		models.FieldInfectToApply:    p.InfectToApply,
		models.FieldCommanderDamages: string(raw),
		"joinedAt":                   p.JoinedAt,
	}, nil
}

// encodeUpdate returns only the hash fields u sets.
func encodeUpdate(u models.PlayerUpdate) (map[string]any, error) {
	fields := make(map[string]any)
	if u.Name != nil {
		fields[models.FieldName] = *u.Name
	}
	if u.BackgroundColor != nil {
		fields[models.FieldBackgroundColor] = *u.BackgroundColor
	}
	if u.FontColor != nil {
		fields[models.FieldFontColor] = *u.FontColor
	}
	if u.Life != nil {
		fields[models.FieldLife] = *u.Life
	}
	if u.LifeToApply != nil {
		fields[models.FieldLifeToApply] = *u.LifeToApply
	}
	if u.Infect != nil {
		fields[models.FieldInfect] = *u.Infect
	}
	if u.InfectToApply != nil {
		fields[models.FieldInfectToApply] = *u.InfectToApply
	}
	if u.CommanderDamages != nil {
		raw, err := json.Marshal(u.CommanderDamages)
		if err != nil {
			return nil, fmt.Errorf("encode commander damages: %w", err)
		}
		fields[models.FieldCommanderDamages] = string(raw)
	}
	return fields, nil
}

func decodePlayer(h map[string]string) (models.Player, error) {
	p := models.Player{
		ID:              h["id"],
		Name:            h[models.FieldName],
		BackgroundColor: h[models.FieldBackgroundColor],
		FontColor:       h[models.FieldFontColor],
	}

	// Life is authoritative: a missing or non-numeric value fails closed
	// instead of reading as zero.
	life, err := strconv.Atoi(h[models.FieldLife])
	if err != nil {
		return models.Player{}, fmt.Errorf("%w: life %q is not a number", ErrCorrupt, h[models.FieldLife])
	}
	p.Life = life

	for _, f := range []struct {
		name string
		dst  *int
	}{
		{models.FieldLifeToApply, &p.LifeToApply},
		{models.FieldInfect, &p.Infect},
		{models.FieldInfectToApply, &p.InfectToApply},
	} {
		v, ok := h[f.name]
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return models.Player{}, fmt.Errorf("%w: %s %q is not a number", ErrCorrupt, f.name, v)
		}
		*f.dst = n
	}

	if raw := h[models.FieldCommanderDamages]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &p.CommanderDamages); err != nil {
			return models.Player{}, fmt.Errorf("%w: commander damages: %v", ErrCorrupt, err)
		}
	}
	if p.CommanderDamages == nil {
		p.CommanderDamages = []models.CommanderDamage{}
	}

	if v := h["joinedAt"]; v != "" {
		p.JoinedAt, _ = strconv.ParseInt(v, 10, 64)
	}
	return p, nil
}

func encodeLobby(l models.Lobby) map[string]any {
	return map[string]any{
		"code":        l.Code,
		"ownerId":     l.OwnerID,
		"ownerName":   l.OwnerName,
		"createdAt":   l.CreatedAt,
		"lastUpdated": l.LastUpdated,
		"timerEnd":    l.TimerEnd,
	}
}

func decodeLobby(h map[string]string) models.Lobby {
	l := models.Lobby{
		Code:      h["code"],
		OwnerID:   h["ownerId"],
		OwnerName: h["ownerName"],
	}
	l.CreatedAt, _ = strconv.ParseInt(h["createdAt"], 10, 64)
	l.LastUpdated, _ = strconv.ParseInt(h["lastUpdated"], 10, 64)
	l.TimerEnd, _ = strconv.ParseInt(h["timerEnd"], 10, 64)
	return l
}

// applyMutation mirrors on p what the transaction wrote to the record.
func applyMutation(p models.Player, m models.PlayerMutation) models.Player {
	p = m.Set.Apply(p)
	for field, delta := range m.Add {
		switch field {
		case models.FieldLife:
			p.Life += delta
		case models.FieldLifeToApply:
			p.LifeToApply += delta
		case models.FieldInfect:
			p.Infect += delta
		case models.FieldInfectToApply:
			p.InfectToApply += delta
		}
	}
	return p
}
