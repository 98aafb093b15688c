package services

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// Lease gates job claiming: a station only claims queue jobs while it
// holds the tenant's print-server lease. Substituted in tests.
type Lease interface {
	Held() bool
}

// StaticLease is the no-coordination fallback used when no Redis
// address is configured. The at-least-once, possibly-more-than-once
// delivery semantics then rely on the store's first-writer-wins status
// transition alone.
type StaticLease bool

// Held reports the fixed lease state.
func (l StaticLease) Held() bool { return bool(l) }

// renewScript extends the lease only while this device still owns it.
var renewScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0
`)

// releaseScript deletes the lease only if this device owns it.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisLease is a short-TTL per-tenant lock with heartbeat renewal. At
// most one station holds it at a time, closing the window where two
// stations both believe they are the tenant's print server.
type RedisLease struct {
	client   *redis.Client
	key      string
	token    string
	ttl      time.Duration
	logger   *LoggerService
	held     atomic.Bool
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewRedisLease creates a lease for the tenant, owned under the
// station's device id.
func NewRedisLease(client *redis.Client, tenantID, deviceID string, ttl time.Duration, logger *LoggerService) *RedisLease {
	if ttl <= 0 {
		ttl = 15 * time.Second
	}
	return &RedisLease{
		client:   client,
		key:      "print_server_lease:" + tenantID,
		token:    deviceID,
		ttl:      ttl,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Held reports whether this station currently owns the lease.
func (l *RedisLease) Held() bool {
	return l.held.Load()
}

// Start runs the acquire/renew loop until Stop is called.
func (l *RedisLease) Start() {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer l.logger.RecoverPanic()

		interval := l.ttl / 3
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		l.tick()
		for {
			select {
			case <-ticker.C:
				l.tick()
			case <-l.stopChan:
				return
			}
		}
	}()
}

func (l *RedisLease) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if l.held.Load() {
		renewed, err := renewScript.Run(ctx, l.client, []string{l.key}, l.token, l.ttl.Milliseconds()).Int()
		if err != nil {
			l.logger.LogError("Lease renewal failed", err, "key="+l.key)
			l.held.Store(false)
			return
		}
		if renewed == 0 {
			l.logger.LogWarning("Lease lost to another station", "key="+l.key)
			l.held.Store(false)
		}
		return
	}

	acquired, err := l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		l.logger.LogError("Lease acquisition failed", err, "key="+l.key)
		return
	}
	if acquired {
		l.logger.LogInfo("Acquired print server lease", "key="+l.key)
		l.held.Store(true)
	}
}

// Stop halts renewal and releases the lease if held.
func (l *RedisLease) Stop() {
	l.stopOnce.Do(func() {
		close(l.stopChan)
	})
	l.wg.Wait()

	if !l.held.Load() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Int(); err != nil {
		l.logger.LogError("Lease release failed", err, "key="+l.key)
	}
	l.held.Store(false)
}
