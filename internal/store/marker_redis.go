package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockTimeout is returned when a conversation lock stays held past the wait budget.
var ErrLockTimeout = errors.New("conversation lock timeout")

// compare-and-delete so a holder whose TTL expired cannot free someone else's lock
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// extends the lease only while the caller still owns it
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

type RedisMarkerConfig struct {
	Prefix    string
	MarkerTTL time.Duration // 0 keeps markers until consumed or cancelled
	LockTTL   time.Duration
	LockWait  time.Duration
	LockPoll  time.Duration
	// LockRenew is how often a held lock's TTL is pushed back out to LockTTL.
	LockRenew time.Duration
}

// RedisMarkerStore shares meeting markers and locks across worker replicas.
type RedisMarkerStore struct {
	client redis.UniversalClient
	cfg    RedisMarkerConfig
}

func NewRedisMarkerStore(client redis.UniversalClient, cfg RedisMarkerConfig) *RedisMarkerStore {
	if cfg.Prefix == "" {
		cfg.Prefix = "notulis:meeting"
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 5 * time.Minute
	}
	if cfg.LockWait <= 0 {
		cfg.LockWait = cfg.LockTTL
	}
	if cfg.LockPoll <= 0 {
		cfg.LockPoll = 100 * time.Millisecond
	}
	if cfg.LockRenew <= 0 || cfg.LockRenew >= cfg.LockTTL {
		cfg.LockRenew = cfg.LockTTL / 3
	}
	return &RedisMarkerStore{client: client, cfg: cfg}
}

func (s *RedisMarkerStore) markerKey(conversationID string) string {
	return s.cfg.Prefix + ":" + conversationID
}

func (s *RedisMarkerStore) lockKey(conversationID string) string {
	return s.cfg.Prefix + ":" + conversationID + ":lock"
}

func (s *RedisMarkerStore) Get(ctx context.Context, conversationID string) (int64, bool, error) {
	raw, err := s.client.Get(ctx, s.markerKey(conversationID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get marker: %w", err)
	}
	ts, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("parsing marker %q: %w", raw, err)
	}
	return ts, true, nil
}

func (s *RedisMarkerStore) Set(ctx context.Context, conversationID string, startTimestamp int64) error {
	if err := s.client.Set(ctx, s.markerKey(conversationID), startTimestamp, s.cfg.MarkerTTL).Err(); err != nil {
		return fmt.Errorf("set marker: %w", err)
	}
	return nil
}

func (s *RedisMarkerStore) Delete(ctx context.Context, conversationID string) error {
	if err := s.client.Del(ctx, s.markerKey(conversationID)).Err(); err != nil {
		return fmt.Errorf("delete marker: %w", err)
	}
	return nil
}

// Lock spins on SET NX PX until acquired, ctx ends or LockWait elapses.
// While held, the lease is renewed every LockRenew so a slow run keeps it.
func (s *RedisMarkerStore) Lock(ctx context.Context, conversationID string) (func(), error) {
	key := s.lockKey(conversationID)
	token := uuid.NewString()

	deadline := time.NewTimer(s.cfg.LockWait)
	defer deadline.Stop()
	ticker := time.NewTicker(s.cfg.LockPoll)
	defer ticker.Stop()

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ok, err := s.client.SetNX(ctx, key, token, s.cfg.LockTTL).Result()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("acquire lock: %w", err)
		}
		if ok {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, fmt.Errorf("%w: %s", ErrLockTimeout, conversationID)
		case <-ticker.C:
		}
	}

	stop := make(chan struct{})
	renewed := make(chan struct{})
	go s.keepAlive(key, token, stop, renewed)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-renewed
			// release even if the caller's ctx was cancelled mid-run
			_ = releaseScript.Run(context.Background(), s.client, []string{key}, token).Err()
		})
	}, nil
}

func (s *RedisMarkerStore) keepAlive(key, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.cfg.LockRenew)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.LockRenew)
		n, err := renewScript.Run(ctx, s.client, []string{key}, token, s.cfg.LockTTL.Milliseconds()).Int64()
		cancel()
		switch {
		case err != nil:
			slog.Warn("failed to renew conversation lock", "key", key, "error", err)
		case n == 0:
			slog.Warn("conversation lock lost before release", "key", key)
			return
		}
	}
}
