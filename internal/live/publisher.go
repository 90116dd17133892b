// Package live pushes lobby changes to subscribed browsers.
//
// Mutations publish events on a per-lobby Redis channel; every instance
// holding websocket clients for that lobby relays them, so a change made
// through one instance reaches players connected to any other.
package live

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mossy-p/lifecounter/internal/models"
	"github.com/redis/go-redis/v9"
)

// Publisher broadcasts lobby events.
type Publisher interface {
	Publish(ctx context.Context, lobbyID string, ev models.LobbyEvent) error
}

// Channel is the pub/sub channel carrying a lobby's events.
func Channel(lobbyID string) string {
	return "lobby:" + lobbyID + ":events"
}

// RedisBroadcaster publishes events as JSON on the lobby channel.
type RedisBroadcaster struct {
	client *redis.Client
	now    func() time.Time
}

func NewRedisBroadcaster(client *redis.Client) *RedisBroadcaster {
	return &RedisBroadcaster{client: client, now: time.Now}
}

func (b *RedisBroadcaster) Publish(ctx context.Context, lobbyID string, ev models.LobbyEvent) error {
	ev.LobbyID = lobbyID
	if ev.At == 0 {
		ev.At = b.now().UnixMilli()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := b.client.Publish(ctx, Channel(lobbyID), data).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", Channel(lobbyID), err)
	}
	return nil
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(context.Context, string, models.LobbyEvent) error { return nil }
