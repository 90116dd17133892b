package live

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/mossy-p/lifecounter/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubRelaysPublishedEvents(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	hub := NewHub(client, logger)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		if err := hub.Attach(r.Context(), conn, "ABC234", "p1"); err != nil {
			conn.Close()
		}
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.RoomSize("ABC234") == 1 }, time.Second, 5*time.Millisecond)

	b := NewRedisBroadcaster(client)
	player := models.Player{ID: "p1", Name: "Ada", Life: 39}
	require.NoError(t, b.Publish(context.Background(), "ABC234", models.LobbyEvent{
		Type:     models.EventPlayerUpdated,
		PlayerID: "p1",
		Player:   &player,
	}))
	// Other lobbies' events are not relayed.
	require.NoError(t, b.Publish(context.Background(), "ZZZ999", models.LobbyEvent{Type: models.EventLobbyClosed}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var ev models.LobbyEvent
	require.NoError(t, json.Unmarshal(data, &ev))
	assert.Equal(t, models.EventPlayerUpdated, ev.Type)
	assert.Equal(t, "ABC234", ev.LobbyID)
	require.NotNil(t, ev.Player)
	assert.Equal(t, 39, ev.Player.Life)

	conn.Close()
	require.Eventually(t, func() bool { return hub.RoomSize("ABC234") == 0 }, time.Second, 5*time.Millisecond)
}

func TestSlowSubscribeDoesNotBlockHub(t *testing.T) {
	// A server that accepts connections and never answers.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	var (
		mu    sync.Mutex
		conns []net.Conn
	)
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, c)
			mu.Unlock()
		}
	}()
	t.Cleanup(func() {
		ln.Close()
		mu.Lock()
		for _, c := range conns {
			c.Close()
		}
		mu.Unlock()
	})

	client := redis.NewClient(&redis.Options{Addr: ln.Addr().String(), ReadTimeout: time.Second, MaxRetries: -1})
	t.Cleanup(func() { client.Close() })
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	hub := NewHub(client, logger)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- hub.Attach(ctx, nil, "SLOW22", "p1") }()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(conns) > 0
	}, time.Second, time.Millisecond)

	start := time.Now()
	assert.Equal(t, 0, hub.RoomSize("OTHER2"))
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("attach did not give up")
	}
	assert.Equal(t, 0, hub.RoomSize("SLOW22"))
}
