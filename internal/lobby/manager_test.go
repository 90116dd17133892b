package lobby

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/mossy-p/lifecounter/internal/apperr"
	"github.com/mossy-p/lifecounter/internal/models"
	"github.com/mossy-p/lifecounter/internal/store"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.LobbyEvent
}

func (r *recordingPublisher) Publish(_ context.Context, lobbyID string, ev models.LobbyEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev.LobbyID = lobbyID
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingPublisher) types() []models.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.EventType, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

type testEnv struct {
	mgr   *Manager
	store *store.RedisStore
	pub   *recordingPublisher
	now   *time.Time
}

func newTestEnv(t *testing.T, codeSeq ...string) *testEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	now := time.UnixMilli(1_700_000_000_000)
	clock := func() time.Time { return now }
	s := store.NewRedisStore(client, store.Options{Logger: logger, Now: clock, Backoff: time.Millisecond})
	pub := &recordingPublisher{}

	cfg := Config{StartingLife: 40, Now: clock}
	if len(codeSeq) > 0 {
		var mu sync.Mutex
		next := 0
		cfg.NewCode = func() (string, error) {
			mu.Lock()
			defer mu.Unlock()
			c := codeSeq[next%len(codeSeq)]
			next++
			return c, nil
		}
	}
	return &testEnv{
		mgr:   NewManager(s, pub, logger, cfg),
		store: s,
		pub:   pub,
		now:   &now,
	}
}

func TestGenerateCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		code, err := GenerateCode()
		require.NoError(t, err)
		require.Len(t, code, codeLength)
		assert.True(t, ValidCode(code))
		for _, r := range code {
			assert.Contains(t, codeChars, string(r))
		}
		seen[code] = true
	}
	assert.Greater(t, len(seen), 90)
}

func TestValidCode(t *testing.T) {
	assert.True(t, ValidCode("ABC234"))
	assert.True(t, ValidCode("K0O1I9"))
	assert.False(t, ValidCode("abc234"))
	assert.False(t, ValidCode("ABC23"))
	assert.False(t, ValidCode("ABC-34"))
	assert.Equal(t, "ABC234", NormalizeCode("  abc234 "))
}

func TestCreateSetsUpOwner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	code, err := env.mgr.Create(ctx, "u1", models.PlayerInput{Name: "Ada"})
	require.NoError(t, err)
	assert.True(t, ValidCode(code))

	l, err := env.mgr.Get(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, "u1", l.OwnerID)
	assert.Equal(t, "Ada", l.OwnerName)
	assert.Equal(t, env.now.UnixMilli(), l.CreatedAt)

	p, err := env.store.GetPlayer(ctx, code, "u1")
	require.NoError(t, err)
	assert.Equal(t, 40, p.Life)
	assert.Equal(t, 0, p.LifeToApply)
	assert.Empty(t, p.CommanderDamages)
}

func TestCreateRetriesOnCodeCollision(t *testing.T) {
	env := newTestEnv(t, "TAKEN2", "TAKEN2", "FRESH3")
	ctx := context.Background()

	first, err := env.mgr.Create(ctx, "u1", models.PlayerInput{Name: "Ada"})
	require.NoError(t, err)
	require.Equal(t, "TAKEN2", first)

	second, err := env.mgr.Create(ctx, "u2", models.PlayerInput{Name: "Bo"})
	require.NoError(t, err)
	assert.Equal(t, "FRESH3", second)

	l, err := env.mgr.Get(ctx, "TAKEN2")
	require.NoError(t, err)
	assert.Equal(t, "u1", l.OwnerID, "existing lobby must not be overwritten")

	players, err := env.mgr.Players(ctx, "TAKEN2")
	require.NoError(t, err)
	require.Len(t, players, 1)
	assert.Equal(t, "u1", players[0].ID)
}

func TestCreateGivesUpWhenEveryCodeIsTaken(t *testing.T) {
	env := newTestEnv(t, "TAKEN2")
	ctx := context.Background()
	_, err := env.mgr.Create(ctx, "u1", models.PlayerInput{Name: "Ada"})
	require.NoError(t, err)

	_, err = env.mgr.Create(ctx, "u2", models.PlayerInput{Name: "Bo"})
	assert.ErrorIs(t, err, ErrCodeSpaceExhausted)
}

func TestJoin(t *testing.T) {
	env := newTestEnv(t, "JOIN23")
	ctx := context.Background()
	code, err := env.mgr.Create(ctx, "u1", models.PlayerInput{Name: "Ada"})
	require.NoError(t, err)

	got, err := env.mgr.Join(ctx, "join23", "u2", models.PlayerInput{Name: "Bo"})
	require.NoError(t, err)
	assert.Equal(t, code, got)

	// Joining again replaces instead of duplicating.
	_, err = env.mgr.Join(ctx, code, "u2", models.PlayerInput{ID: "u1", Name: "Bobby"})
	require.NoError(t, err)

	players, err := env.mgr.Players(ctx, code)
	require.NoError(t, err)
	require.Len(t, players, 2)
	assert.Equal(t, "u1", players[0].ID)
	assert.Equal(t, "Ada", players[0].Name, "a snapshot id never redirects the write")
	assert.Equal(t, "u2", players[1].ID)
	assert.Equal(t, "Bobby", players[1].Name)
	assert.Equal(t, 40, players[1].Life)

	assert.Equal(t, []models.EventType{models.EventPlayerUpdated, models.EventPlayerUpdated}, env.pub.types())
}

func TestJoinKeepsExplicitZeroLife(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	code, err := env.mgr.Create(ctx, "u1", models.PlayerInput{Name: "Ada"})
	require.NoError(t, err)

	zero := 0
	_, err = env.mgr.Join(ctx, code, "u2", models.PlayerInput{Name: "Bo", Life: &zero})
	require.NoError(t, err)

	p, err := env.store.GetPlayer(ctx, code, "u2")
	require.NoError(t, err)
	assert.Equal(t, 0, p.Life)
}

func TestJoinUnknownLobby(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.mgr.Join(context.Background(), "NOPE22", "u2", models.PlayerInput{})
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = env.mgr.Join(context.Background(), "bad", "u2", models.PlayerInput{})
	assert.Equal(t, codes.InvalidArgument, apperr.CodeOf(err))
}

func TestAddPlayerGeneratesIdentity(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	code, err := env.mgr.Create(ctx, "u1", models.PlayerInput{Name: "Ada"})
	require.NoError(t, err)

	p, err := env.mgr.AddPlayer(ctx, code, models.PlayerInput{})
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	assert.Contains(t, dummyNames, p.Name)

	require.NoError(t, env.mgr.RemovePlayer(ctx, code, p.ID))
	players, err := env.mgr.Players(ctx, code)
	require.NoError(t, err)
	assert.Len(t, players, 1)

	assert.ErrorIs(t, env.mgr.RemovePlayer(ctx, code, p.ID), store.ErrNotFound)
}

func TestStartTimer(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	code, err := env.mgr.Create(ctx, "u1", models.PlayerInput{Name: "Ada"})
	require.NoError(t, err)

	end, err := env.mgr.StartTimer(ctx, code, 50)
	require.NoError(t, err)
	assert.Equal(t, env.now.Add(50*time.Minute).UnixMilli(), end.UnixMilli())

	l, err := env.mgr.Get(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, end.UnixMilli(), l.TimerEnd)

	_, err = env.mgr.StartTimer(ctx, code, 0)
	assert.Equal(t, codes.InvalidArgument, apperr.CodeOf(err))
	_, err = env.mgr.StartTimer(ctx, "NOPE22", 10)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestPurgeStale(t *testing.T) {
	env := newTestEnv(t, "OLD111", "OLD222", "NEW333")
	ctx := context.Background()

	for _, owner := range []string{"u1", "u2"} {
		_, err := env.mgr.Create(ctx, owner, models.PlayerInput{Name: owner})
		require.NoError(t, err)
	}
	*env.now = env.now.Add(30 * time.Hour)
	_, err := env.mgr.Create(ctx, "u3", models.PlayerInput{Name: "u3"})
	require.NoError(t, err)

	// Batch limit is honoured.
	n, err := env.mgr.PurgeStale(ctx, 24*time.Hour, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = env.mgr.PurgeStale(ctx, 24*time.Hour, 50)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	for _, code := range []string{"OLD111", "OLD222"} {
		_, err := env.mgr.Get(ctx, code)
		assert.ErrorIs(t, err, store.ErrNotFound)
		_, err = env.store.GetPlayer(ctx, code, "u1")
		assert.ErrorIs(t, err, store.ErrNotFound)
	}
	_, err = env.mgr.Get(ctx, "NEW333")
	assert.NoError(t, err)

	n, err = env.mgr.PurgeStale(ctx, 24*time.Hour, 50)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPurgeKeepsRecentlyTouchedLobby(t *testing.T) {
	env := newTestEnv(t, "IDLE22")
	ctx := context.Background()
	code, err := env.mgr.Create(ctx, "u1", models.PlayerInput{Name: "Ada"})
	require.NoError(t, err)

	*env.now = env.now.Add(30 * time.Hour)
	require.NoError(t, env.mgr.Touch(ctx, code))

	n, err := env.mgr.PurgeStale(ctx, 24*time.Hour, 50)
	require.NoError(t, err)
	assert.Zero(t, n)
	_, err = env.mgr.Get(ctx, code)
	assert.NoError(t, err)
}
