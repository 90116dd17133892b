package models

// Lobby is a short-lived game session players join with a human-typed code.
type Lobby struct {
	Code        string `json:"code"`        // Six-char join key, immutable
	OwnerID     string `json:"ownerId"`     // Actor who created the lobby
	OwnerName   string `json:"ownerName"`   // Display name of the owner at creation
	CreatedAt   int64  `json:"createdAt"`   // Unix millis
	LastUpdated int64  `json:"lastUpdated"` // Unix millis, drives retention
	TimerEnd    int64  `json:"timerEnd,omitempty"`
}

// User is the profile saved when an actor signs in.
type User struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email,omitempty"`
	PhotoURL string `json:"photoUrl,omitempty"`
	LastSeen int64  `json:"lastSeen"`
}
