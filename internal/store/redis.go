package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"shadebot/internal/logging"
	"shadebot/internal/types"
)

const (
	redisRecordPrefix = "shadebot:conv:"
	redisTurnsPrefix  = "shadebot:turns:"
	redisMaxRetries   = 5
)

// RedisStore keeps each record as a JSON string under shadebot:conv:<id>.
// Save is an optimistic WATCH/MULTI transaction.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	opts   Options
}

// NewRedisStore wraps an existing client. A zero ttl keeps records forever.
func NewRedisStore(client *redis.Client, ttl time.Duration, opts Options) *RedisStore {
	return &RedisStore{client: client, ttl: ttl, opts: opts.withDefaults()}
}

// DialRedis connects and pings the server.
func DialRedis(ctx context.Context, addr, password string, db int, ttl time.Duration, opts Options) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	logging.Store("RedisStore connected to %s (db %d, ttl %v)", addr, db, ttl)
	return NewRedisStore(client, ttl, opts), nil
}

func recordKey(userID string) string { return redisRecordPrefix + userID }
func turnsKey(userID string) string  { return redisTurnsPrefix + userID }

func (s *RedisStore) read(ctx context.Context, c redis.Cmdable, userID string) (*types.ConversationRecord, error) {
	raw, err := c.Get(ctx, recordKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	var rec types.ConversationRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode record %s: %w", userID, err)
	}
	return &rec, nil
}

func (s *RedisStore) Load(ctx context.Context, userID string) (*types.ConversationRecord, error) {
	rec, err := s.read(ctx, s.client, userID)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	rec = s.opts.newRecord(userID)
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	// SETNX so a concurrent creator wins cleanly
	created, err := s.client.SetNX(ctx, recordKey(userID), raw, s.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis setnx: %w", err)
	}
	if !created {
		return s.read(ctx, s.client, userID)
	}
	logging.StoreDebug("redis: created record for %s (persona %s)", userID, rec.PersonaName)
	return rec, nil
}

func (s *RedisStore) Save(ctx context.Context, userID string, patch types.RecordPatch) error {
	key := recordKey(userID)
	txf := func(tx *redis.Tx) error {
		rec, err := s.read(ctx, tx, userID)
		if errors.Is(err, ErrNotFound) {
			rec = s.opts.newRecord(userID)
		} else if err != nil {
			return err
		}
		s.opts.apply(rec, patch)
		raw, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, raw, s.ttl)
			return nil
		})
		return err
	}

	for i := 0; i < redisMaxRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			logging.StoreDebug("redis: optimistic lock lost for %s, retry %d", userID, i+1)
			continue
		}
		return err
	}
	return fmt.Errorf("redis save %s: too many concurrent writers", userID)
}

func (s *RedisStore) Reset(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, recordKey(userID), turnsKey(userID)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

// AppendTurn pushes onto a capped list, newest at the head.
func (s *RedisStore) AppendTurn(ctx context.Context, userID string, entry TurnEntry) error {
	if entry.At.IsZero() {
		entry.At = s.opts.Now()
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	key := turnsKey(userID)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, raw)
		pipe.LTrim(ctx, key, 0, int64(s.opts.HistoryLimit-1))
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis append turn: %w", err)
	}
	return nil
}

func (s *RedisStore) RecentTurns(ctx context.Context, userID string, limit int) ([]TurnEntry, error) {
	if limit <= 0 {
		limit = s.opts.HistoryLimit
	}
	items, err := s.client.LRange(ctx, turnsKey(userID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lrange: %w", err)
	}
	out := make([]TurnEntry, 0, len(items))
	for i := len(items) - 1; i >= 0; i-- {
		var e TurnEntry
		if err := json.Unmarshal([]byte(items[i]), &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *RedisStore) List(ctx context.Context, state types.State) ([]*types.ConversationRecord, error) {
	var out []*types.ConversationRecord
	iter := s.client.Scan(ctx, 0, redisRecordPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		userID := iter.Val()[len(redisRecordPrefix):]
		rec, err := s.read(ctx, s.client, userID)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if state == "" || rec.State == state {
			out = append(out, rec)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan: %w", err)
	}
	sortByActivity(out)
	return out, nil
}
