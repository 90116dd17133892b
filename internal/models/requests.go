package models

// PlayerInput is the player snapshot a client sends when creating, joining
// or adding to a lobby. Staged deltas are never accepted from it.
type PlayerInput struct {
	ID              string `json:"id" binding:"max=128"`
	Name            string `json:"name" binding:"max=500"`
	BackgroundColor string `json:"backgroundColor" binding:"max=500"`
	FontColor       string `json:"fontColor" binding:"max=500"`
	Life            *int   `json:"life" binding:"omitempty,min=-10000,max=10000"`
	Infect          int    `json:"infect" binding:"min=-10000,max=10000"`
}

// Player converts the input into a fresh player record. A missing life is
// left at zero for the caller to default.
func (in PlayerInput) Player() Player {
	p := Player{
		ID:               in.ID,
		Name:             in.Name,
		BackgroundColor:  in.BackgroundColor,
		FontColor:        in.FontColor,
		Infect:           in.Infect,
		CommanderDamages: []CommanderDamage{},
	}
	if in.Life != nil {
		p.Life = *in.Life
	}
	return p
}

// CreateLobbyRequest represents the request to create a lobby
type CreateLobbyRequest struct {
	PlayerData *PlayerInput `json:"playerData" binding:"required"`
}

// JoinLobbyRequest represents the request to join a lobby by code
type JoinLobbyRequest struct {
	LobbyCode  string       `json:"lobbyCode" binding:"required,len=6,alphanum"`
	PlayerData *PlayerInput `json:"playerData" binding:"required"`
}

// LobbyResponse is returned by create and join
type LobbyResponse struct {
	Success   bool   `json:"success"`
	LobbyCode string `json:"lobbyCode"`
}

// AddPlayerRequest adds a player that is not tied to the caller. Every field
// is optional.
type AddPlayerRequest struct {
	PlayerData *PlayerInput `json:"playerData"`
}

type UpdatePlayerRequest struct {
	Updates *PlayerUpdate `json:"updates" binding:"required"`
}

type IncrementRequest struct {
	Field string `json:"field" binding:"required,oneof=life lifeToApply infect infectToApply"`
	Value *int   `json:"value" binding:"required,ne=0,min=-1000,max=1000"`
}

type StageRequest struct {
	Field string `json:"field" binding:"required,oneof=lifeToApply infectToApply"`
	Delta *int   `json:"delta" binding:"required,ne=0,min=-1000,max=1000"`
}

// StageCommanderRequest stages commander damage dealt by one opponent.
// OpponentID is preferred; CommanderName is the display label and the key of
// entries recorded before ids were tracked.
type StageCommanderRequest struct {
	OpponentID    string `json:"opponentId" binding:"required_without=CommanderName,max=128"`
	CommanderName string `json:"commanderName" binding:"required_without=OpponentID,max=500"`
	Delta         *int   `json:"delta" binding:"required,ne=0,min=-1000,max=1000"`
}

func (r StageCommanderRequest) Opponent() OpponentRef {
	return OpponentRef{ID: r.OpponentID, Name: r.CommanderName}
}

type CommanderDamagesRequest struct {
	CommanderDamages []CommanderDamage `json:"commanderDamages" binding:"required,max=16,dive"`
}

// SettingsRequest updates the display settings of a player.
type SettingsRequest struct {
	Name            *string `json:"name" binding:"omitempty,max=500"`
	BackgroundColor *string `json:"backgroundColor" binding:"omitempty,max=500"`
	FontColor       *string `json:"fontColor" binding:"omitempty,max=500"`
}

func (r SettingsRequest) Update() PlayerUpdate {
	return PlayerUpdate{
		Name:            r.Name,
		BackgroundColor: r.BackgroundColor,
		FontColor:       r.FontColor,
	}
}

type TimerRequest struct {
	DurationMinutes int `json:"durationMinutes" binding:"required,min=1,max=240"`
}

// SaveUserRequest records the profile of the signed-in user.
type SaveUserRequest struct {
	Name     string `json:"name" binding:"max=500"`
	Email    string `json:"email" binding:"omitempty,email,max=500"`
	PhotoURL string `json:"photoUrl" binding:"omitempty,url,max=500"`
}
