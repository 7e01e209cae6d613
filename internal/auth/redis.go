package auth

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	adminsKey = "admins"
	// records outlive their expiry so /status can still report it
	keepExpired = 7 * 24 * time.Hour
)

// RedisStore keeps each record in a hash auth:<uid> and admins in a set.
type RedisStore struct {
	rdb    redis.UniversalClient
	prefix string
}

// NewRedisStore namespaces every key with prefix (may be empty).
func NewRedisStore(rdb redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{rdb: rdb, prefix: prefix}
}

func (s *RedisStore) recordKey(user int64) string {
	return s.prefix + "auth:" + strconv.FormatInt(user, 10)
}

func (s *RedisStore) Get(ctx context.Context, user int64) (Record, bool, error) {
	m, err := s.rdb.HGetAll(ctx, s.recordKey(user)).Result()
	if err != nil {
		return Record{}, false, fmt.Errorf("get authorization: %w", err)
	}
	if len(m) == 0 {
		return Record{}, false, nil
	}
	r := Record{UserID: user, Token: m["token"]}
	if v, ok := m["expires_at"]; ok {
		sec, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return Record{}, false, fmt.Errorf("parse expires_at %q: %w", v, err)
		}
		r.ExpiresAt = time.Unix(sec, 0).UTC()
	}
	return r, true, nil
}

func (s *RedisStore) Put(ctx context.Context, r Record) error {
	key := s.recordKey(r.UserID)
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, key, "token", r.Token, "expires_at", strconv.FormatInt(r.ExpiresAt.Unix(), 10))
		p.ExpireAt(ctx, key, r.ExpiresAt.Add(keepExpired))
		return nil
	})
	if err != nil {
		return fmt.Errorf("put authorization: %w", err)
	}
	return nil
}

func (s *RedisStore) IsAdmin(ctx context.Context, user int64) (bool, error) {
	ok, err := s.rdb.SIsMember(ctx, s.prefix+adminsKey, user).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, fmt.Errorf("check admin: %w", err)
	}
	return ok, nil
}

func (s *RedisStore) AddAdmin(ctx context.Context, user int64) error {
	return s.rdb.SAdd(ctx, s.prefix+adminsKey, user).Err()
}

func (s *RedisStore) RemoveAdmin(ctx context.Context, user int64) error {
	return s.rdb.SRem(ctx, s.prefix+adminsKey, user).Err()
}

func (s *RedisStore) Admins(ctx context.Context) ([]int64, error) {
	members, err := s.rdb.SMembers(ctx, s.prefix+adminsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list admins: %w", err)
	}
	out := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}
