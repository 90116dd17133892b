package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mossy-p/lifecounter/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Options tune a RedisStore.
type Options struct {
	Limits     models.Limits
	MaxRetries int           // attempts per transaction before ErrUnavailable
	Backoff    time.Duration // base delay between attempts
	Now        func() time.Time
	Logger     *logrus.Logger
}

// RedisStore implements Store on Redis hashes. Transactions use
// WATCH/MULTI/EXEC and are retried when a watched key changes underneath.
type RedisStore struct {
	client     *redis.Client
	limits     models.Limits
	maxRetries int
	backoff    time.Duration
	now        func() time.Time
	logger     *logrus.Logger
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore returns a store backed by client.
func NewRedisStore(client *redis.Client, opts Options) *RedisStore {
	if opts.MaxRetries < 1 {
		opts.MaxRetries = 5
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 10 * time.Millisecond
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Limits == (models.Limits{}) {
		opts.Limits = models.DefaultLimits
	}
	return &RedisStore{
		client:     client,
		limits:     opts.Limits,
		maxRetries: opts.MaxRetries,
		backoff:    opts.Backoff,
		now:        opts.Now,
		logger:     opts.Logger,
	}
}

// Adds delta to a counter field only when the record exists, so a stray
// increment never creates a partial player.
var incrementScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return false
end
return redis.call('HINCRBY', KEYS[1], ARGV[1], ARGV[2])
`)

// Bumps lastUpdated only when the lobby still exists.
var touchScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return 0
end
redis.call('HSET', KEYS[1], 'lastUpdated', ARGV[1])
redis.call('ZADD', KEYS[2], ARGV[1], ARGV[2])
return 1
`)

func (s *RedisStore) nowMillis() int64 {
	return s.now().UnixMilli()
}

// retryable reports whether err is worth another attempt: a WATCH conflict or
// a network level failure.
func retryable(err error) bool {
	if errors.Is(err, redis.TxFailedErr) || errors.Is(err, io.EOF) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// retry runs op until it succeeds, fails with a non-retryable error or
// exhausts the attempt budget.
func (s *RedisStore) retry(ctx context.Context, op func() error) error {
	var err error
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		if attempt > 0 {
			t := time.NewTimer(time.Duration(attempt) * s.backoff)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}
		err = op()
		if err == nil || !retryable(err) {
			return err
		}
		s.logger.WithFields(logrus.Fields{
			"attempt": attempt + 1,
			"error":   err,
		}).Debug("store: retrying")
	}
	return fmt.Errorf("%w after %d attempts: %v", ErrUnavailable, s.maxRetries, err)
}

type hashReader interface {
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
}

func (s *RedisStore) readPlayer(ctx context.Context, c hashReader, key string) (models.Player, error) {
	h, err := c.HGetAll(ctx, key).Result()
	if err != nil {
		return models.Player{}, err
	}
	if len(h) == 0 {
		return models.Player{}, ErrNotFound
	}
	return decodePlayer(h)
}

// touch records activity on the lobby. Lost updates only delay retention,
// so failures are logged and dropped.
func (s *RedisStore) touch(ctx context.Context, code string) {
	now := s.nowMillis()
	err := touchScript.Run(ctx, s.client, []string{lobbyKey(code), activityKey}, now, code).Err()
	if err != nil {
		s.logger.WithFields(logrus.Fields{"lobby": code, "error": err}).Warn("store: failed to touch lobby")
	}
}

func (s *RedisStore) GetPlayer(ctx context.Context, lobbyID, playerID string) (models.Player, error) {
	var p models.Player
	err := s.retry(ctx, func() error {
		var err error
		p, err = s.readPlayer(ctx, s.client, playerKey(lobbyID, playerID))
		return err
	})
	return p, err
}

func (s *RedisStore) SetPlayer(ctx context.Context, lobbyID string, p models.Player) error {
	if err := p.Validate(s.limits); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if p.JoinedAt == 0 {
		p.JoinedAt = s.nowMillis()
	}
	fields, err := encodePlayer(p)
	if err != nil {
		return err
	}
	lk := lobbyKey(lobbyID)
	pk := playerKey(lobbyID, p.ID)
	err = s.retry(ctx, func() error {
		return s.client.Watch(ctx, func(tx *redis.Tx) error {
			n, err := tx.Exists(ctx, lk).Result()
			if err != nil {
				return err
			}
			if n == 0 {
				return ErrNotFound
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, pk)
				pipe.HSet(ctx, pk, fields)
				pipe.SAdd(ctx, playersKey(lobbyID), p.ID)
				return nil
			})
			return err
		}, lk)
	})
	if err != nil {
		return err
	}
	s.touch(ctx, lobbyID)
	return nil
}

func (s *RedisStore) UpdatePlayer(ctx context.Context, lobbyID, playerID string, u models.PlayerUpdate) (models.Player, error) {
	if err := u.Validate(s.limits); err != nil {
		return models.Player{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return s.RunAtomic(ctx, lobbyID, playerID, func(models.Player) (models.PlayerMutation, error) {
		return models.PlayerMutation{Set: u}, nil
	})
}

func (s *RedisStore) IncrementPlayerField(ctx context.Context, lobbyID, playerID, field string, delta int) (int, error) {
	if !models.CounterFields[field] {
		return 0, fmt.Errorf("%w: %q is not a counter field", ErrInvalid, field)
	}
	var v int64
	err := s.retry(ctx, func() error {
		var err error
		v, err = incrementScript.Run(ctx, s.client, []string{playerKey(lobbyID, playerID)}, field, delta).Int64()
		return err
	})
	switch {
	case errors.Is(err, redis.Nil):
		return 0, ErrNotFound
	case err != nil && strings.Contains(err.Error(), "not an integer"):
		return 0, fmt.Errorf("%w: %s: %v", ErrCorrupt, field, err)
	case err != nil:
		return 0, err
	}
	s.touch(ctx, lobbyID)
	return int(v), nil
}

func (s *RedisStore) DeletePlayer(ctx context.Context, lobbyID, playerID string) error {
	var removed int64
	err := s.retry(ctx, func() error {
		cmds, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, playerKey(lobbyID, playerID))
			pipe.SRem(ctx, playersKey(lobbyID), playerID)
			return nil
		})
		if err != nil {
			return err
		}
		removed = cmds[0].(*redis.IntCmd).Val()
		return nil
	})
	if err != nil {
		return err
	}
	if removed == 0 {
		return ErrNotFound
	}
	s.touch(ctx, lobbyID)
	return nil
}

func (s *RedisStore) ListPlayers(ctx context.Context, lobbyID string) ([]models.Player, error) {
	n, err := s.client.Exists(ctx, lobbyKey(lobbyID)).Result()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrNotFound
	}
	ids, err := s.client.SMembers(ctx, playersKey(lobbyID)).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []models.Player{}, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, playerKey(lobbyID, id))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	players := make([]models.Player, 0, len(ids))
	for i, cmd := range cmds {
		h := cmd.Val()
		if len(h) == 0 {
			continue
		}
		p, err := decodePlayer(h)
		if err != nil {
			s.logger.WithFields(logrus.Fields{
				"lobby":  lobbyID,
				"player": ids[i],
				"error":  err,
			}).Warn("store: skipping unreadable player")
			continue
		}
		players = append(players, p)
	}
	sort.Slice(players, func(i, j int) bool {
		if players[i].JoinedAt != players[j].JoinedAt {
			return players[i].JoinedAt < players[j].JoinedAt
		}
		return players[i].ID < players[j].ID
	})
	return players, nil
}

func (s *RedisStore) RunAtomic(ctx context.Context, lobbyID, playerID string, fn MutateFunc) (models.Player, error) {
	key := playerKey(lobbyID, playerID)
	var result models.Player
	err := s.retry(ctx, func() error {
		return s.client.Watch(ctx, func(tx *redis.Tx) error {
			current, err := s.readPlayer(ctx, tx, key)
			if err != nil {
				return err
			}
			mut, err := fn(current)
			if err != nil {
				return err
			}
			limits := s.limits
			if mut.Derived {
				limits = limits.StringsOnly()
			}
			if err := mut.Set.Validate(limits); err != nil {
				return fmt.Errorf("%w: %v", ErrInvalid, err)
			}
			for field := range mut.Add {
				if !models.CounterFields[field] {
					return fmt.Errorf("%w: %q is not a counter field", ErrInvalid, field)
				}
			}
			fields, err := encodeUpdate(mut.Set)
			if err != nil {
				return err
			}

			writes := len(fields)
			for _, d := range mut.Add {
				if d != 0 {
					writes++
				}
			}
			if writes > 0 {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					if len(fields) > 0 {
						pipe.HSet(ctx, key, fields)
					}
					for field, d := range mut.Add {
						if d != 0 {
							pipe.HIncrBy(ctx, key, field, int64(d))
						}
					}
					return nil
				})
				if err != nil {
					return err
				}
			}
			result = applyMutation(current, mut)
			return nil
		}, key)
	})
	if err != nil {
		return models.Player{}, err
	}
	s.touch(ctx, lobbyID)
	return result, nil
}

func (s *RedisStore) CreateLobby(ctx context.Context, l models.Lobby, owner models.Player) error {
	if err := owner.Validate(s.limits); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	now := s.nowMillis()
	if l.CreatedAt == 0 {
		l.CreatedAt = now
	}
	if l.LastUpdated == 0 {
		l.LastUpdated = now
	}
	if owner.JoinedAt == 0 {
		owner.JoinedAt = now
	}
	pf, err := encodePlayer(owner)
	if err != nil {
		return err
	}
	lk := lobbyKey(l.Code)
	return s.retry(ctx, func() error {
		return s.client.Watch(ctx, func(tx *redis.Tx) error {
			n, err := tx.Exists(ctx, lk).Result()
			if err != nil {
				return err
			}
			if n > 0 {
				return ErrConflict
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.HSet(ctx, lk, encodeLobby(l))
				pipe.Del(ctx, playerKey(l.Code, owner.ID))
				pipe.HSet(ctx, playerKey(l.Code, owner.ID), pf)
				pipe.SAdd(ctx, playersKey(l.Code), owner.ID)
				pipe.ZAdd(ctx, activityKey, redis.Z{Score: float64(l.LastUpdated), Member: l.Code})
				return nil
			})
			return err
		}, lk)
	})
}

func (s *RedisStore) GetLobby(ctx context.Context, code string) (models.Lobby, error) {
	h, err := s.client.HGetAll(ctx, lobbyKey(code)).Result()
	if err != nil {
		return models.Lobby{}, err
	}
	if len(h) == 0 {
		return models.Lobby{}, ErrNotFound
	}
	return decodeLobby(h), nil
}

func (s *RedisStore) TouchLobby(ctx context.Context, code string) error {
	n, err := touchScript.Run(ctx, s.client, []string{lobbyKey(code), activityKey}, s.nowMillis(), code).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *RedisStore) SetLobbyTimer(ctx context.Context, code string, end time.Time) (models.Lobby, error) {
	lk := lobbyKey(code)
	var l models.Lobby
	err := s.retry(ctx, func() error {
		return s.client.Watch(ctx, func(tx *redis.Tx) error {
			h, err := tx.HGetAll(ctx, lk).Result()
			if err != nil {
				return err
			}
			if len(h) == 0 {
				return ErrNotFound
			}
			now := s.nowMillis()
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.HSet(ctx, lk, "timerEnd", end.UnixMilli(), "lastUpdated", now)
				pipe.ZAdd(ctx, activityKey, redis.Z{Score: float64(now), Member: code})
				return nil
			})
			if err != nil {
				return err
			}
			l = decodeLobby(h)
			l.TimerEnd = end.UnixMilli()
			l.LastUpdated = now
			return nil
		}, lk)
	})
	return l, err
}

func (s *RedisStore) StaleLobbies(ctx context.Context, before time.Time, limit int) ([]string, error) {
	return s.client.ZRangeByScore(ctx, activityKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   "(" + strconv.FormatInt(before.UnixMilli(), 10),
		Count: int64(limit),
	}).Result()
}

func (s *RedisStore) DeleteLobbyIfStale(ctx context.Context, code string, before time.Time) (bool, error) {
	lk := lobbyKey(code)
	pk := playersKey(code)
	deleted := false
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.HGet(ctx, lk, "lastUpdated").Result()
		if errors.Is(err, redis.Nil) {
			// Index entry outlived its lobby.
			return tx.ZRem(ctx, activityKey, code).Err()
		}
		if err != nil {
			return err
		}
		last, _ := strconv.ParseInt(raw, 10, 64)
		if last >= before.UnixMilli() {
			return nil
		}
		ids, err := tx.SMembers(ctx, pk).Result()
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, id := range ids {
				pipe.Del(ctx, playerKey(code, id))
			}
			pipe.Del(ctx, pk, lk)
			pipe.ZRem(ctx, activityKey, code)
			return nil
		})
		if err != nil {
			return err
		}
		deleted = true
		return nil
	}, lk, pk)
	if errors.Is(err, redis.TxFailedErr) {
		// Someone wrote to the lobby while we were deciding: it is not idle.
		return false, nil
	}
	return deleted, err
}

func (s *RedisStore) SaveUser(ctx context.Context, u models.User) error {
	if u.LastSeen == 0 {
		u.LastSeen = s.nowMillis()
	}
	return s.client.HSet(ctx, userKey(u.ID),
		"id", u.ID,
		"name", u.Name,
		"email", u.Email,
		"photoUrl", u.PhotoURL,
		"lastSeen", u.LastSeen,
	).Err()
}

func (s *RedisStore) RecordInterest(ctx context.Context, actorID string) (bool, error) {
	n, err := s.client.SAdd(ctx, interestKey, actorID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
