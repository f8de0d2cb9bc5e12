package policy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// windowStore prunes timestamps older than cutoff for peer, and — only
// if the retained count is below max — records now as a new entry.
// Returns whether the request was admitted.
type windowStore interface {
	checkAndRecord(peer string, now, cutoff time.Time, max int) (bool, error)
}

// RateLimit enforces a sliding-window request cap per peer.
type RateLimit struct {
	maxRequests int
	window      time.Duration
	store       windowStore
}

// NewRateLimit builds an in-process RateLimit. Panics if maxRequests
// or window is non-positive, matching the teacher's fail-fast
// construction-time validation.
func NewRateLimit(maxRequests int, window time.Duration) *RateLimit {
	validateRateLimitArgs(maxRequests, window)
	return &RateLimit{maxRequests: maxRequests, window: window, store: newLocalWindowStore()}
}

// NewRateLimitRedis builds a RateLimit whose sliding window is shared
// across every proxy instance talking to client, for deployments
// running more than one supervised proxy behind the same upstream.
func NewRateLimitRedis(maxRequests int, window time.Duration, client *redis.Client) *RateLimit {
	validateRateLimitArgs(maxRequests, window)
	return &RateLimit{maxRequests: maxRequests, window: window, store: &redisWindowStore{client: client}}
}

func validateRateLimitArgs(maxRequests int, window time.Duration) {
	if maxRequests <= 0 {
		panic(fmt.Sprintf("policy: max_requests must be positive, got %d", maxRequests))
	}
	if window <= 0 {
		panic(fmt.Sprintf("policy: window_seconds must be positive, got %s", window))
	}
}

func (r *RateLimit) Check(ctx RequestContext) Decision {
	now := time.Now()
	cutoff := now.Add(-r.window)

	admitted, err := r.store.checkAndRecord(ctx.Peer, now, cutoff, r.maxRequests)
	if err != nil {
		// A window-store failure must not silently admit unbounded
		// traffic; fail closed.
		return Deny(fmt.Sprintf("rate limit store unavailable: %v", err))
	}
	if !admitted {
		return Deny(fmt.Sprintf("Rate limit exceeded (%d per %s)", r.maxRequests, r.window))
	}
	return Allow
}

// localWindowStore is the default in-process store, one timestamp
// slice per peer behind a single mutex — matching the Python
// original's threading.Lock-guarded dict.
type localWindowStore struct {
	mu         sync.Mutex
	timestamps map[string][]time.Time
}

func newLocalWindowStore() *localWindowStore {
	return &localWindowStore{timestamps: make(map[string][]time.Time)}
}

func (s *localWindowStore) checkAndRecord(peer string, now, cutoff time.Time, max int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	times := s.timestamps[peer]
	retained := times[:0]
	for _, t := range times {
		if t.After(cutoff) {
			retained = append(retained, t)
		}
	}

	if len(retained) >= max {
		s.timestamps[peer] = retained
		return false, nil
	}

	retained = append(retained, now)
	s.timestamps[peer] = retained
	return true, nil
}

// redisWindowStore keeps each peer's timestamps in a Redis sorted set
// keyed by peer, scored by Unix-nanosecond time. Pruning and counting
// happen in one pipeline; the conditional add is a second round trip,
// so two proxies racing at exactly the limit can both admit a request
// — an accepted imprecision for the distributed variant, not present
// in the single-instance localWindowStore.
type redisWindowStore struct {
	client *redis.Client
}

func (s *redisWindowStore) checkAndRecord(peer string, now, cutoff time.Time, max int) (bool, error) {
	ctx := context.Background()
	key := "pacsys:ratelimit:" + peer

	pipe := s.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", cutoff.UnixNano()))
	card := pipe.ZCard(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}

	if int(card.Val()) >= max {
		return false, nil
	}

	member := fmt.Sprintf("%d-%d", now.UnixNano(), now.Nanosecond())
	if err := s.client.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixNano()), Member: member}).Err(); err != nil {
		return false, err
	}
	s.client.Expire(ctx, key, 2*now.Sub(cutoff))
	return true, nil
}
