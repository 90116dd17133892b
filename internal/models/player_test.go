package models

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCommanderDamages(t *testing.T) {
	tests := []struct {
		name    string
		entries []CommanderDamage
		wantErr string
	}{
		{"empty", nil, ""},
		{"distinct", []CommanderDamage{{OpponentID: "a", CommanderName: "Sam"}, {OpponentID: "b", CommanderName: "Sam"}}, ""},
		{"duplicate id", []CommanderDamage{{OpponentID: "a", CommanderName: "Sam"}, {OpponentID: "a", CommanderName: "Max"}}, "duplicate"},
		{"duplicate legacy name", []CommanderDamage{{CommanderName: "Sam"}, {CommanderName: "Sam"}}, "duplicate"},
		{"unnamed", []CommanderDamage{{Damage: 1}}, "required"},
		{"damage out of range", []CommanderDamage{{CommanderName: "Sam", Damage: 10001}}, "damage"},
		{"name too long", []CommanderDamage{{CommanderName: strings.Repeat("x", 501)}}, "commanderName"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCommanderDamages(tt.entries, DefaultLimits)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	many := make([]CommanderDamage, MaxCommanderEntries+1)
	for i := range many {
		many[i] = CommanderDamage{OpponentID: string(rune('a' + i))}
	}
	assert.Error(t, ValidateCommanderDamages(many, DefaultLimits))
}

func TestPlayerUpdate(t *testing.T) {
	u := PlayerUpdate{Name: StrPtr("Ada"), Life: IntPtr(0)}
	assert.Equal(t, []string{FieldName, FieldLife}, u.Fields())
	assert.False(t, u.Empty())
	assert.True(t, PlayerUpdate{}.Empty())

	p := u.Apply(Player{ID: "p1", Name: "Old", Life: 40, FontColor: "#fff"})
	assert.Equal(t, "Ada", p.Name)
	assert.Equal(t, 0, p.Life, "an explicit zero is written")
	assert.Equal(t, "#fff", p.FontColor)

	assert.Error(t, PlayerUpdate{Infect: IntPtr(-10001)}.Validate(DefaultLimits))
	assert.NoError(t, PlayerUpdate{Infect: IntPtr(-10000)}.Validate(DefaultLimits))
}

func TestOpponentRefMatches(t *testing.T) {
	byID := OpponentRef{ID: "p2", Name: "Sam"}
	assert.True(t, byID.Matches(CommanderDamage{OpponentID: "p2", CommanderName: "Renamed"}))
	assert.False(t, byID.Matches(CommanderDamage{OpponentID: "p3", CommanderName: "Sam"}))
	assert.True(t, byID.Matches(CommanderDamage{CommanderName: "Sam"}), "legacy entries match by name")

	byName := OpponentRef{Name: "Sam"}
	assert.True(t, byName.Matches(CommanderDamage{OpponentID: "p2", CommanderName: "Sam"}))
}

func TestHasStaged(t *testing.T) {
	assert.False(t, Player{Life: 40}.HasStaged())
	assert.True(t, Player{InfectToApply: -1}.HasStaged())
	assert.True(t, Player{CommanderDamages: []CommanderDamage{{CommanderName: "A", LifeToApply: 2}}}.HasStaged())
}
