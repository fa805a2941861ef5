package mgo

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"ChatCore/data/database/mgo/mongoutil"

	"github.com/golang/glog"
	"go.mongodb.org/mongo-driver/mongo"
)

// MongoManager keeps one Mongo client alive, reconnecting with backoff when
// health checks fail.
type MongoManager struct {
	mu        sync.RWMutex
	client    *mongoutil.Client
	readyCh   chan struct{}
	readyOnce sync.Once

	lastErr atomic.Value // error
}

const (
	baseBackoff = 200 * time.Millisecond
	maxBackoff  = 5 * time.Second
	healthEvery = 10 * time.Second
	failThresh  = 3
)

var globalMgr = NewManager()

func NewManager() *MongoManager {
	return &MongoManager{readyCh: make(chan struct{})}
}

// StartAsync runs the global manager until ctx ends.
func StartAsync(ctx context.Context, cfg *mongoutil.Config) {
	globalMgr.Start(ctx, cfg)
}

func Manager() *MongoManager { return globalMgr }

// Start connects in the background. Ready is closed after the first successful connect.
func (m *MongoManager) Start(ctx context.Context, cfg *mongoutil.Config) {
	go func() {
		for {
			if !m.connect(ctx, cfg) {
				return
			}
			m.watch(ctx)
			if ctx.Err() != nil {
				return
			}
		}
	}()
}

func (m *MongoManager) connect(ctx context.Context, cfg *mongoutil.Config) bool {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return false
		}
		cli, err := mongoutil.NewMongoDB(ctx, cfg)
		if err == nil {
			m.mu.Lock()
			m.client = cli
			m.mu.Unlock()
			m.readyOnce.Do(func() { close(m.readyCh) })
			glog.Infof("[mgo] connected database=%s", cfg.Database)
			return true
		}
		m.lastErr.Store(err)
		glog.Warningf("[mgo] connect attempt=%d: %v", attempt, err)

		backoff := baseBackoff << attempt
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
		jitter := time.Duration(rand.Int63n(int64(backoff / 5)))
		timer := time.NewTimer(backoff - jitter/2)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-timer.C:
		}
		if attempt < 6 {
			attempt++
		}
	}
}

// watch pings periodically and returns after failThresh consecutive failures
// or when ctx ends, dropping the client in both cases.
func (m *MongoManager) watch(ctx context.Context) {
	ticker := time.NewTicker(healthEvery)
	defer ticker.Stop()
	fail := 0
	for {
		select {
		case <-ctx.Done():
			m.drop()
			return
		case <-ticker.C:
			m.mu.RLock()
			c := m.client
			m.mu.RUnlock()
			if c == nil {
				return
			}
			if err := c.GetDB().Client().Ping(ctx, nil); err != nil {
				fail++
				m.lastErr.Store(err)
				glog.Warningf("[mgo] ping failed (%d/%d): %v", fail, failThresh, err)
				if fail >= failThresh {
					m.drop()
					return
				}
			} else {
				fail = 0
			}
		}
	}
}

func (m *MongoManager) drop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client != nil {
		_ = m.client.Disconnect(context.Background())
		m.client = nil
	}
}

func (m *MongoManager) Ready() <-chan struct{} { return m.readyCh }

func (m *MongoManager) Err() error {
	if v := m.lastErr.Load(); v != nil {
		return v.(error)
	}
	return nil
}

func (m *MongoManager) TryGetDB() (*mongo.Database, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.client == nil {
		return nil, false
	}
	return m.client.GetDB(), true
}

func GetDB() *mongo.Database {
	db, ok := globalMgr.TryGetDB()
	if !ok {
		panic("Mongo not ready: wait Ready() or use TryGetDB()")
	}
	return db
}

func TryGetDB() (*mongo.Database, bool) { return globalMgr.TryGetDB() }

// WaitReady blocks until the first connect succeeded or ctx ends.
func WaitReady(ctx context.Context, m *MongoManager) error {
	if _, ok := m.TryGetDB(); ok {
		return nil
	}
	if m.readyCh == nil {
		return fmt.Errorf("mongo manager not started")
	}
	select {
	case <-m.readyCh:
		return nil
	case <-ctx.Done():
		if err := m.Err(); err != nil {
			return fmt.Errorf("%w (last connect error: %v)", ctx.Err(), err)
		}
		return ctx.Err()
	}
}
