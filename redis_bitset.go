package bloom

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-redis/redis/v9"
	"github.com/google/uuid"
)

// RedisKeyPrefix prefixes keys generated by NewRedisBitSet.
const RedisKeyPrefix = "bloom:"

// NewRedisBitSet returns a BitSet whose cells live in a Redis string at
// bitsetKey. An empty bitsetKey is replaced by a fresh
// RedisKeyPrefix+uuid key. A positive expiration is applied on Init.
//
// Redis limits bit offsets to 2^32-1, so tables must not be larger than
// 2^32 bits.
func NewRedisBitSet(redisClient redis.UniversalClient, bitsetKey string, expiration time.Duration) *RedisBitSet {
	if bitsetKey == "" {
		bitsetKey = RedisKeyPrefix + uuid.New().String()
	}
	return &RedisBitSet{
		redisClient: redisClient,
		bitsetKey:   bitsetKey,
		expiration:  expiration,
	}
}

// RedisBitSet keeps the bit table in Redis with SETBIT/GETBIT.
//
// BitSet methods cannot fail, so the first Redis error is kept and
// reported by Err. A failed Test reports the bit as set, which keeps
// the filter free of false negatives while the backend is unhealthy.
type RedisBitSet struct {
	redisClient redis.UniversalClient
	bitsetKey   string
	expiration  time.Duration
	length      uint64

	mu  sync.Mutex
	err error
}

func (r *RedisBitSet) Init(length uint64) BitSet {
	ctx := context.Background()
	r.length = length
	r.record(r.redisClient.Del(ctx, r.bitsetKey).Err())
	if length > 0 {
		// Allocates the whole string, zero filled.
		r.record(r.redisClient.SetBit(ctx, r.bitsetKey, int64(length-1), 0).Err())
	}
	if r.expiration > 0 {
		r.record(r.redisClient.Expire(ctx, r.bitsetKey, r.expiration).Err())
	}
	return r
}

func (r *RedisBitSet) Len() uint64 {
	return r.length
}

func (r *RedisBitSet) Set(i uint64) BitSet {
	r.record(r.redisClient.SetBit(context.Background(), r.bitsetKey, int64(i), 1).Err())
	return r
}

func (r *RedisBitSet) Test(i uint64) bool {
	v, err := r.redisClient.GetBit(context.Background(), r.bitsetKey, int64(i)).Result()
	if err != nil {
		r.record(err)
		return true
	}
	return v == 1
}

func (r *RedisBitSet) Count() uint64 {
	n, err := r.redisClient.BitCount(context.Background(), r.bitsetKey, nil).Result()
	r.record(err)
	return uint64(n)
}

func (r *RedisBitSet) Equal(c BitSet) bool {
	o, ok := c.(*RedisBitSet)
	if !ok || r.length != o.length {
		return false
	}
	return r.value() == o.value()
}

// Key returns the Redis key holding the cells.
func (r *RedisBitSet) Key() string {
	return r.bitsetKey
}

// Err returns the first Redis error seen by this BitSet, if any.
func (r *RedisBitSet) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *RedisBitSet) value() string {
	v, err := r.redisClient.Get(context.Background(), r.bitsetKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		r.record(err)
	}
	return v
}

func (r *RedisBitSet) record(err error) {
	if err == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err == nil {
		r.err = err
	}
}
