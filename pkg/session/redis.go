package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Soulfra/soulfra-sub004/pkg/proof"
)

const redisKeyPrefix = "tribunal:session:"

// RedisStore implements Store on Redis. Appends run under WATCH/MULTI
// optimistic concurrency so a racing writer aborts with ErrWriteConflict
// instead of clobbering the chain.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed session store. ttl of zero keeps
// sessions indefinitely.
func NewRedisStore(addr, password string, db int, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client: redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db}),
		ttl:    ttl,
	}
}

func (r *RedisStore) key(id string) string { return redisKeyPrefix + id }

func (r *RedisStore) Create(ctx context.Context, s *Session) error {
	if s.ID == "" {
		return fmt.Errorf("session: empty id")
	}
	cp := *s
	now := time.Now().UTC()
	cp.CreatedAt, cp.UpdatedAt = now, now
	if cp.Status == "" {
		cp.Status = StatusProposed
	}
	raw, err := json.Marshal(&cp)
	if err != nil {
		return fmt.Errorf("session: marshal: %w", err)
	}

	ok, err := r.client.SetNX(ctx, r.key(s.ID), raw, r.ttl).Result()
	if err != nil {
		return fmt.Errorf("session: redis setnx: %w", err)
	}
	if !ok {
		return ErrExists
	}
	return nil
}

func (r *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	raw, err := r.client.Get(ctx, r.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("session: redis get: %w", err)
	}
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("session: unmarshal: %w", err)
	}
	return &s, nil
}

func (r *RedisStore) AppendBlock(ctx context.Context, id string, b proof.Block) error {
	return r.update(ctx, id, func(s *Session) error {
		if s.Status.Closed() {
			return ErrClosed
		}
		chain, err := s.Chain.Append(b)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrWriteConflict, err)
		}
		s.Chain = chain
		s.Status = statusAfterAppend(b.Index)
		return nil
	})
}

func (r *RedisStore) Close(ctx context.Context, id string, status Status) error {
	if !status.Closed() {
		return fmt.Errorf("session: %q is not a terminal status", status)
	}
	return r.update(ctx, id, func(s *Session) error {
		if s.Status.Closed() {
			return ErrClosed
		}
		s.Status = status
		return nil
	})
}

// update applies mutate under WATCH; a concurrent write aborts the
// transaction and surfaces as ErrWriteConflict.
func (r *RedisStore) update(ctx context.Context, id string, mutate func(*Session) error) error {
	key := r.key(id)
	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("session: redis get: %w", err)
		}
		var s Session
		if err := json.Unmarshal(raw, &s); err != nil {
			return fmt.Errorf("session: unmarshal: %w", err)
		}
		if err := mutate(&s); err != nil {
			return err
		}
		s.UpdatedAt = time.Now().UTC()
		out, err := json.Marshal(&s)
		if err != nil {
			return fmt.Errorf("session: marshal: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, r.ttl)
			return nil
		})
		return err
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		return ErrWriteConflict
	}
	return err
}

func (r *RedisStore) List(ctx context.Context, limit int) ([]*Session, error) {
	var out []*Session
	iter := r.client.Scan(ctx, 0, redisKeyPrefix+"*", int64(limit)).Iterator()
	for iter.Next(ctx) {
		if limit > 0 && len(out) >= limit {
			break
		}
		raw, err := r.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			continue
		}
		var s Session
		if err := json.Unmarshal(raw, &s); err != nil {
			continue
		}
		out = append(out, &s)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("session: redis scan: %w", err)
	}
	return out, nil
}
