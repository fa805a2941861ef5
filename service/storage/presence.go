package storage

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Presence records which users currently hold a live connection and on which node.
type Presence interface {
	SetOnline(ctx context.Context, user, nodeID string, ttl time.Duration) error
	SetOffline(ctx context.Context, user string) error
	Lookup(ctx context.Context, user string) (nodeID string, online bool, err error)
	// OnlineAmong returns the subset of users that are online, in input order.
	OnlineAmong(ctx context.Context, users []string) ([]string, error)
}

// presence key: im:presence:<user>, value is the node id, TTL bounds staleness
func presenceKey(user string) string { return "im:presence:" + user }

type RedisPresence struct {
	rdb *redis.Client
}

func NewRedisPresence(rdb *redis.Client) *RedisPresence {
	return &RedisPresence{rdb: rdb}
}

func (p *RedisPresence) SetOnline(ctx context.Context, user, nodeID string, ttl time.Duration) error {
	return p.rdb.Set(ctx, presenceKey(user), nodeID, ttl).Err()
}

func (p *RedisPresence) SetOffline(ctx context.Context, user string) error {
	return p.rdb.Del(ctx, presenceKey(user)).Err()
}

func (p *RedisPresence) Lookup(ctx context.Context, user string) (string, bool, error) {
	val, err := p.rdb.Get(ctx, presenceKey(user)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (p *RedisPresence) OnlineAmong(ctx context.Context, users []string) ([]string, error) {
	if len(users) == 0 {
		return nil, nil
	}
	keys := make([]string, len(users))
	for i, u := range users {
		keys[i] = presenceKey(u)
	}
	vals, err := p.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(users))
	for i, v := range vals {
		if v != nil {
			out = append(out, users[i])
		}
	}
	return out, nil
}

type memEntry struct {
	node string
	exp  time.Time
}

// MemPresence is the single-process twin of RedisPresence.
type MemPresence struct {
	mu  sync.RWMutex
	m   map[string]memEntry
	now func() time.Time
}

func NewMemPresence() *MemPresence {
	return &MemPresence{m: make(map[string]memEntry), now: time.Now}
}

func (p *MemPresence) SetOnline(_ context.Context, user, nodeID string, ttl time.Duration) error {
	var exp time.Time
	if ttl > 0 {
		exp = p.now().Add(ttl)
	}
	p.mu.Lock()
	p.m[user] = memEntry{node: nodeID, exp: exp}
	p.mu.Unlock()
	return nil
}

func (p *MemPresence) SetOffline(_ context.Context, user string) error {
	p.mu.Lock()
	delete(p.m, user)
	p.mu.Unlock()
	return nil
}

func (p *MemPresence) Lookup(_ context.Context, user string) (string, bool, error) {
	p.mu.RLock()
	e, ok := p.m[user]
	p.mu.RUnlock()
	if !ok || (!e.exp.IsZero() && !e.exp.After(p.now())) {
		return "", false, nil
	}
	return e.node, true, nil
}

func (p *MemPresence) OnlineAmong(ctx context.Context, users []string) ([]string, error) {
	out := make([]string, 0, len(users))
	for _, u := range users {
		if _, ok, _ := p.Lookup(ctx, u); ok {
			out = append(out, u)
		}
	}
	return out, nil
}
