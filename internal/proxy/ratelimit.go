package proxy

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/edvin/stackd/internal/model"
)

const bucketShards = 16

// Limiter enforces per-zone request budgets with one token bucket per
// client key. Buckets are spread over hash shards with per-shard mutexes so
// bucket mutation never funnels through a single lock.
type Limiter struct {
	zones map[string]*limiterZone
}

type limiterZone struct {
	limit  rate.Limit
	burst  int
	shards [bucketShards]bucketShard
}

type bucketShard struct {
	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// NewLimiter builds a limiter from the zone declarations.
func NewLimiter(zones []model.RateLimitZone) *Limiter {
	l := &Limiter{zones: make(map[string]*limiterZone, len(zones))}
	for _, z := range zones {
		lz := &limiterZone{limit: rate.Limit(z.Rate), burst: z.Burst}
		for i := range lz.shards {
			lz.shards[i].buckets = make(map[string]*bucket)
		}
		l.zones[z.Name] = lz
	}
	return l
}

// Admit consumes one token from the (zone, key) bucket if available. It
// never blocks: when the bucket is empty the request is rejected and the
// caller answers with a rate-limit status. Unknown zones admit everything.
func (l *Limiter) Admit(zone, key string) bool {
	return l.admitAt(zone, key, time.Now())
}

func (l *Limiter) admitAt(zone, key string, now time.Time) bool {
	lz, ok := l.zones[zone]
	if !ok {
		return true
	}

	shard := &lz.shards[shardFor(key)]
	shard.mu.Lock()
	b, ok := shard.buckets[key]
	if !ok {
		// A fresh bucket starts full, so evicting an idle key can never
		// cause a false reject on its next request.
		b = &bucket{lim: rate.NewLimiter(lz.limit, lz.burst)}
		shard.buckets[key] = b
	}
	b.lastSeen = now
	shard.mu.Unlock()

	allowed := b.lim.AllowN(now, 1)
	if allowed {
		rateLimitAdmitted.WithLabelValues(zone).Inc()
	} else {
		rateLimitRejected.WithLabelValues(zone).Inc()
	}
	return allowed
}

// RunJanitor evicts buckets idle longer than idleAfter, bounding memory for
// churny key spaces. Blocks until the context is cancelled.
func (l *Limiter) RunJanitor(ctx context.Context, interval, idleAfter time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.evictIdle(time.Now().Add(-idleAfter))
		}
	}
}

func (l *Limiter) evictIdle(cutoff time.Time) int {
	evicted := 0
	for _, lz := range l.zones {
		for i := range lz.shards {
			shard := &lz.shards[i]
			shard.mu.Lock()
			for key, b := range shard.buckets {
				if b.lastSeen.Before(cutoff) {
					delete(shard.buckets, key)
					evicted++
				}
			}
			shard.mu.Unlock()
		}
	}
	return evicted
}

func shardFor(key string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(key))
	return h.Sum32() % bucketShards
}
