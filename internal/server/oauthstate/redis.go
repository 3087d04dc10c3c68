package oauthstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/crosspost/internal/common"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "crosspost:oauth:state:"

// redisClient is the subset of redis.Cmdable the store needs.
type redisClient interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	GetDel(ctx context.Context, key string) *redis.StringCmd
}

// RedisStore shares pending attempts across instances. GETDEL makes Take
// single-use even under concurrent callbacks.
type RedisStore struct {
	rc redisClient
}

func NewRedisStore(rc redisClient) *RedisStore {
	return &RedisStore{rc: rc}
}

// NewRedisClient builds a client with the short timeouts used for state
// lookups.
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

func (s *RedisStore) Save(ctx context.Context, state string, p Pending, ttl time.Duration) error {
	b, err := json.Marshal(p)
	if err != nil {
		return err
	}
	if err := s.rc.Set(ctx, keyPrefix+state, b, ttl).Err(); err != nil {
		return fmt.Errorf("save oauth state: %w", err)
	}
	return nil
}

func (s *RedisStore) Take(ctx context.Context, state string) (*Pending, error) {
	v, err := s.rc.GetDel(ctx, keyPrefix+state).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, common.ErrInvalidState
		}
		return nil, fmt.Errorf("take oauth state: %w", err)
	}

	p := &Pending{}
	if err := json.Unmarshal([]byte(v), p); err != nil {
		return nil, fmt.Errorf("%w: corrupt pending record", common.ErrInvalidState)
	}
	return p, nil
}
