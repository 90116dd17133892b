package models

import (
	"fmt"
	"math"
	"unicode/utf8"
)

// Player field names as stored and as accepted by the gateway.
const (
	FieldLife             = "life"
	FieldLifeToApply      = "lifeToApply"
	FieldInfect           = "infect"
	FieldInfectToApply    = "infectToApply"
	FieldName             = "name"
	FieldBackgroundColor  = "backgroundColor"
	FieldFontColor        = "fontColor"
	FieldCommanderDamages = "commanderDamages"
)

// MaxCommanderEntries bounds the commander damage list of a single player.
const MaxCommanderEntries = 16

// MaxIDLength bounds player and actor identifiers.
const MaxIDLength = 128

// Player is the per-lobby record of one participant.
//
// LifeToApply and InfectToApply are staged deltas: they persist until a
// commit folds them into Life and Infect or an abort discards them.
type Player struct {
	ID               string            `json:"id"`
	Name             string            `json:"name"`
	BackgroundColor  string            `json:"backgroundColor,omitempty"`
	FontColor        string            `json:"fontColor,omitempty"`
	Life             int               `json:"life"`
	LifeToApply      int               `json:"lifeToApply"`
	Infect           int               `json:"infect"`
	InfectToApply    int               `json:"infectToApply"`
	CommanderDamages []CommanderDamage `json:"commanderDamages"`
	JoinedAt         int64             `json:"joinedAt,omitempty"`
}

// CommanderDamage tracks damage one opponent's commander dealt to the owner.
type CommanderDamage struct {
	OpponentID    string `json:"opponentId,omitempty" binding:"max=128"`
	CommanderName string `json:"commanderName" binding:"max=500"`
	Damage        int    `json:"damage" binding:"min=-10000,max=10000"`
	LifeToApply   int    `json:"lifeToApply" binding:"min=-10000,max=10000"`
}

// Key identifies the opponent an entry belongs to. Entries written before
// opponent ids were recorded fall back to the display name.
func (c CommanderDamage) Key() string {
	if c.OpponentID != "" {
		return "id:" + c.OpponentID
	}
	return "name:" + c.CommanderName
}

// OpponentRef names the opponent a commander damage adjustment targets.
type OpponentRef struct {
	ID   string `json:"opponentId"`
	Name string `json:"commanderName"`
}

// Matches reports whether entry c belongs to the referenced opponent.
func (r OpponentRef) Matches(c CommanderDamage) bool {
	if r.ID != "" && c.OpponentID != "" {
		return r.ID == c.OpponentID
	}
	return c.CommanderName == r.Name
}

// HasStaged reports whether any staged delta is pending on the player.
func (p Player) HasStaged() bool {
	if p.LifeToApply != 0 || p.InfectToApply != 0 {
		return true
	}
	for _, cd := range p.CommanderDamages {
		if cd.LifeToApply != 0 {
			return true
		}
	}
	return false
}

// Limits are the bounds every write is validated against. Values are never
// clamped: out of range input is rejected.
type Limits struct {
	NumericCap int
	StringCap  int
}

// DefaultLimits matches the gateway defaults.
var DefaultLimits = Limits{NumericCap: 10000, StringCap: 500}

// StringsOnly drops the numeric cap and keeps the string cap.
func (l Limits) StringsOnly() Limits {
	l.NumericCap = math.MaxInt
	return l
}

func (l Limits) checkInt(field string, v int) error {
	if v > l.NumericCap || v < -l.NumericCap {
		return fmt.Errorf("%s must be within ±%d, got %d", field, l.NumericCap, v)
	}
	return nil
}

func (l Limits) checkString(field, v string) error {
	if n := utf8.RuneCountInString(v); n > l.StringCap {
		return fmt.Errorf("%s must be at most %d characters, got %d", field, l.StringCap, n)
	}
	return nil
}

// Validate checks a full player snapshot used for create, join and add.
func (p Player) Validate(l Limits) error {
	if p.ID == "" {
		return fmt.Errorf("player id is required")
	}
	if len(p.ID) > MaxIDLength {
		return fmt.Errorf("player id must be at most %d bytes", MaxIDLength)
	}
	for _, s := range []struct{ field, v string }{
		{FieldName, p.Name},
		{FieldBackgroundColor, p.BackgroundColor},
		{FieldFontColor, p.FontColor},
	} {
		if err := l.checkString(s.field, s.v); err != nil {
			return err
		}
	}
	for _, n := range []struct {
		field string
		v     int
	}{
		{FieldLife, p.Life},
		{FieldLifeToApply, p.LifeToApply},
		{FieldInfect, p.Infect},
		{FieldInfectToApply, p.InfectToApply},
	} {
		if err := l.checkInt(n.field, n.v); err != nil {
			return err
		}
	}
	return ValidateCommanderDamages(p.CommanderDamages, l)
}

// ValidateCommanderDamages checks bounds and that each opponent appears at
// most once.
func ValidateCommanderDamages(entries []CommanderDamage, l Limits) error {
	if len(entries) > MaxCommanderEntries {
		return fmt.Errorf("at most %d commander damage entries allowed", MaxCommanderEntries)
	}
	seen := make(map[string]struct{}, len(entries))
	for i, cd := range entries {
		if cd.CommanderName == "" && cd.OpponentID == "" {
			return fmt.Errorf("commanderDamages[%d]: commanderName or opponentId is required", i)
		}
		if err := l.checkString(fmt.Sprintf("commanderDamages[%d].commanderName", i), cd.CommanderName); err != nil {
			return err
		}
		if len(cd.OpponentID) > MaxIDLength {
			return fmt.Errorf("commanderDamages[%d].opponentId too long", i)
		}
		if err := l.checkInt(fmt.Sprintf("commanderDamages[%d].damage", i), cd.Damage); err != nil {
			return err
		}
		if err := l.checkInt(fmt.Sprintf("commanderDamages[%d].lifeToApply", i), cd.LifeToApply); err != nil {
			return err
		}
		if _, dup := seen[cd.Key()]; dup {
			return fmt.Errorf("commanderDamages[%d]: duplicate entry for %q", i, cd.CommanderName)
		}
		seen[cd.Key()] = struct{}{}
	}
	return nil
}

// PlayerUpdate is a partial write. Nil fields are left untouched.
type PlayerUpdate struct {
	Name             *string           `json:"name,omitempty" binding:"omitempty,max=500"`
	BackgroundColor  *string           `json:"backgroundColor,omitempty" binding:"omitempty,max=500"`
	FontColor        *string           `json:"fontColor,omitempty" binding:"omitempty,max=500"`
	Life             *int              `json:"life,omitempty" binding:"omitempty,min=-10000,max=10000"`
	LifeToApply      *int              `json:"lifeToApply,omitempty" binding:"omitempty,min=-10000,max=10000"`
	Infect           *int              `json:"infect,omitempty" binding:"omitempty,min=-10000,max=10000"`
	InfectToApply    *int              `json:"infectToApply,omitempty" binding:"omitempty,min=-10000,max=10000"`
	CommanderDamages []CommanderDamage `json:"commanderDamages,omitempty" binding:"omitempty,max=16,dive"`
}

// Empty reports whether the update names no field at all.
func (u PlayerUpdate) Empty() bool {
	return len(u.Fields()) == 0
}

// Fields lists the names of the fields the update sets.
func (u PlayerUpdate) Fields() []string {
	var out []string
	if u.Name != nil {
		out = append(out, FieldName)
	}
	if u.BackgroundColor != nil {
		out = append(out, FieldBackgroundColor)
	}
	if u.FontColor != nil {
		out = append(out, FieldFontColor)
	}
	if u.Life != nil {
		out = append(out, FieldLife)
	}
	if u.LifeToApply != nil {
		out = append(out, FieldLifeToApply)
	}
	if u.Infect != nil {
		out = append(out, FieldInfect)
	}
	if u.InfectToApply != nil {
		out = append(out, FieldInfectToApply)
	}
	if u.CommanderDamages != nil {
		out = append(out, FieldCommanderDamages)
	}
	return out
}

// Validate checks every set field against l.
func (u PlayerUpdate) Validate(l Limits) error {
	for _, s := range []struct {
		field string
		v     *string
	}{
		{FieldName, u.Name},
		{FieldBackgroundColor, u.BackgroundColor},
		{FieldFontColor, u.FontColor},
	} {
		if s.v == nil {
			continue
		}
		if err := l.checkString(s.field, *s.v); err != nil {
			return err
		}
	}
	for _, n := range []struct {
		field string
		v     *int
	}{
		{FieldLife, u.Life},
		{FieldLifeToApply, u.LifeToApply},
		{FieldInfect, u.Infect},
		{FieldInfectToApply, u.InfectToApply},
	} {
		if n.v == nil {
			continue
		}
		if err := l.checkInt(n.field, *n.v); err != nil {
			return err
		}
	}
	if u.CommanderDamages != nil {
		return ValidateCommanderDamages(u.CommanderDamages, l)
	}
	return nil
}

// Apply returns p with the update's fields written over it.
func (u PlayerUpdate) Apply(p Player) Player {
	if u.Name != nil {
		p.Name = *u.Name
	}
	if u.BackgroundColor != nil {
		p.BackgroundColor = *u.BackgroundColor
	}
	if u.FontColor != nil {
		p.FontColor = *u.FontColor
	}
	if u.Life != nil {
		p.Life = *u.Life
	}
	if u.LifeToApply != nil {
		p.LifeToApply = *u.LifeToApply
	}
	if u.Infect != nil {
		p.Infect = *u.Infect
	}
	if u.InfectToApply != nil {
		p.InfectToApply = *u.InfectToApply
	}
	if u.CommanderDamages != nil {
		p.CommanderDamages = append([]CommanderDamage(nil), u.CommanderDamages...)
	}
	return p
}

// PlayerMutation is what a transactional update writes: absolute values in
// Set and relative adjustments in Add, keyed by counter field name. Add lets
// a transaction subtract exactly what it consumed from a staged field.
type PlayerMutation struct {
	Set PlayerUpdate
	Add map[string]int
	// Derived marks values computed from stored state rather than taken
	// from a client. Only the string caps apply to them.
	Derived bool
}

// CounterFields are the integer fields that support atomic increments.
var CounterFields = map[string]bool{
	FieldLife:          true,
	FieldLifeToApply:   true,
	FieldInfect:        true,
	FieldInfectToApply: true,
}

// StagedFields are the counter fields that hold staged deltas.
var StagedFields = map[string]bool{
	FieldLifeToApply:   true,
	FieldInfectToApply: true,
}

// IntPtr and StrPtr build PlayerUpdate values.
func IntPtr(v int) *int { return &v }

func StrPtr(v string) *string { return &v }
