package models

// EventType names a live update pushed to lobby subscribers.
type EventType string

const (
	EventPlayerUpdated EventType = "player_updated"
	EventPlayerRemoved EventType = "player_removed"
	EventLobbyUpdated  EventType = "lobby_updated"
	EventLobbyClosed   EventType = "lobby_closed"
)

// LobbyEvent is broadcast to every client subscribed to a lobby after a
// mutation lands.
type LobbyEvent struct {
	Type     EventType `json:"type"`
	LobbyID  string    `json:"lobbyId"`
	PlayerID string    `json:"playerId,omitempty"`
	Player   *Player   `json:"player,omitempty"`
	Lobby    *Lobby    `json:"lobby,omitempty"`
	At       int64     `json:"at"`
}
