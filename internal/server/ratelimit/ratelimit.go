// Package ratelimit provides rate limiting functionality using token bucket algorithm.
package ratelimit

import (
	"sync"
	"time"
)

// TokenBucket represents a token bucket rate limiter.
// It allows a certain number of requests (tokens) per time window,
// with tokens refilling at a steady rate. TokenBucket is not safe for
// concurrent use; the bucketSet that owns it holds the lock.
type TokenBucket struct {
	capacity   int     // Maximum tokens (burst capacity)
	refillRate float64 // Tokens per second
	tokens     float64 // Current tokens available
	lastRefill time.Time
}

// newTokenBucket creates a new token bucket with the specified capacity and refill rate.
func newTokenBucket(capacity int, refillRate float64, now time.Time) *TokenBucket {
	return &TokenBucket{
		capacity:   capacity,
		refillRate: refillRate,
		tokens:     float64(capacity), // Start with full bucket
		lastRefill: now,
	}
}

// refill adds the tokens earned since the last refill, capped at capacity.
func (tb *TokenBucket) refill(now time.Time) {
	elapsed := now.Sub(tb.lastRefill)
	if elapsed > 0 {
		tb.tokens = min(float64(tb.capacity), tb.tokens+elapsed.Seconds()*tb.refillRate)
		tb.lastRefill = now
	}
}

// untilFull returns how long until the bucket is full again.
func (tb *TokenBucket) untilFull() time.Duration {
	missing := float64(tb.capacity) - tb.tokens
	if missing <= 0 {
		return 0
	}
	return time.Duration(missing / tb.refillRate * float64(time.Second))
}

// untilToken returns how long until one token is available.
func (tb *TokenBucket) untilToken() time.Duration {
	if tb.tokens >= 1 {
		return 0
	}
	return time.Duration((1 - tb.tokens) / tb.refillRate * float64(time.Second))
}

// bucketSet holds one bucket per rate of an endpoint. A request is admitted
// only when every bucket has a token, and then takes one from each.
type bucketSet struct {
	mu         sync.Mutex
	rates      []Rate
	buckets    []*TokenBucket
	lastAccess time.Time
}

func newBucketSet(rates []Rate, now time.Time) *bucketSet {
	set := &bucketSet{rates: rates, lastAccess: now}
	for _, rate := range rates {
		set.buckets = append(set.buckets, newTokenBucket(rate.Limit, rate.perSecond(), now))
	}
	return set
}

// take admits or rejects one request and reports the status of the tightest rate.
func (s *bucketSet) take(now time.Time) Info {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastAccess = now
	allowed := true
	for _, b := range s.buckets {
		b.refill(now)
		if b.tokens < 1 {
			allowed = false
		}
	}
	if allowed {
		for _, b := range s.buckets {
			b.tokens--
		}
	}

	tightest := 0
	var retryAfter time.Duration
	for i, b := range s.buckets {
		if int(b.tokens) < int(s.buckets[tightest].tokens) {
			tightest = i
		}
		if !allowed {
			retryAfter = max(retryAfter, b.untilToken())
		}
	}

	b := s.buckets[tightest]
	return Info{
		Allowed:    allowed,
		Limit:      s.rates[tightest].Limit,
		Remaining:  int(b.tokens),
		ResetTime:  now.Add(b.untilFull()),
		RetryAfter: retryAfter,
	}
}

// idleSince reports whether the set has been unused since cutoff.
func (s *bucketSet) idleSince(cutoff time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAccess.Before(cutoff)
}

// longestWindow is how long the set must be kept for its counts to matter.
func (s *bucketSet) longestWindow() time.Duration {
	var longest time.Duration
	for _, rate := range s.rates {
		longest = max(longest, rate.Window)
	}
	return longest
}

// Info contains information about rate limit status.
type Info struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetTime  time.Time
	RetryAfter time.Duration
}

// Limiter manages rate limiting for multiple clients using token buckets.
type Limiter struct {
	sets          map[string]*bucketSet // client + endpoint -> buckets
	mu            sync.RWMutex
	config        *Config
	now           func() time.Time
	cleanupTicker *time.Ticker
	cleanupStop   chan struct{}
	stopOnce      sync.Once
}

// Config holds rate limiting configuration.
type Config struct {
	Enabled         bool
	DefaultRates    []Rate
	CleanupInterval time.Duration
	Whitelist       map[string]bool
	Blacklist       map[string]bool
	EndpointConfigs []EndpointConfig
}

// NewLimiter creates a new rate limiter with the given configuration.
func NewLimiter(config *Config) *Limiter {
	if config == nil {
		config = &Config{
			Enabled:         true,
			DefaultRates:    []Rate{{Limit: 1000, Window: time.Minute}},
			CleanupInterval: 5 * time.Minute,
			Whitelist:       make(map[string]bool),
			Blacklist:       make(map[string]bool),
			EndpointConfigs: DefaultEndpointConfigs(DefaultAIRates(), DefaultAuthRates()),
		}
	}

	limiter := &Limiter{
		sets:   make(map[string]*bucketSet),
		config: config,
		now:    time.Now,
	}

	// Start cleanup goroutine if enabled
	if config.Enabled && config.CleanupInterval > 0 {
		limiter.cleanupTicker = time.NewTicker(config.CleanupInterval)
		limiter.cleanupStop = make(chan struct{})
		go limiter.cleanup()
	}

	return limiter
}

// Allow checks if a request from the given client is allowed for the specified endpoint.
// Returns true if allowed, false if rate limited, along with rate limit information.
func (l *Limiter) Allow(clientID string, endpoint string, method string) (bool, Info) {
	if !l.config.Enabled || l.config.Whitelist[clientID] {
		return true, Info{Allowed: true}
	}
	if l.config.Blacklist[clientID] {
		return false, Info{Allowed: false}
	}

	rates := l.config.DefaultRates
	if endpointConfig := MatchEndpoint(endpoint, method, l.config.EndpointConfigs); endpointConfig != nil {
		rates = endpointConfig.Rates
	}
	rates = activeRates(rates)

	// Unlimited endpoint (e.g., health check)
	if len(rates) == 0 {
		return true, Info{Allowed: true}
	}

	// Buckets are per client, endpoint and method, as with per-route limits.
	key := clientID + ":" + endpoint + ":" + method
	info := l.getSet(key, rates).take(l.now())
	return info.Allowed, info
}

// activeRates drops rates that cannot limit anything.
func activeRates(rates []Rate) []Rate {
	out := rates[:0:0]
	for _, rate := range rates {
		if rate.Limit > 0 && rate.Window > 0 {
			out = append(out, rate)
		}
	}
	return out
}

// getSet gets or creates the bucket set for the given key.
func (l *Limiter) getSet(key string, rates []Rate) *bucketSet {
	l.mu.RLock()
	set, exists := l.sets[key]
	l.mu.RUnlock()
	if exists {
		return set
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	// Double-check after acquiring write lock
	if existing, exists := l.sets[key]; exists {
		return existing
	}
	set = newBucketSet(rates, l.now())
	l.sets[key] = set
	return set
}

// cleanup removes old unused buckets to prevent memory leaks.
func (l *Limiter) cleanup() {
	for {
		select {
		case <-l.cleanupTicker.C:
			l.cleanupBuckets()
		case <-l.cleanupStop:
			return
		}
	}
}

// cleanupBuckets removes bucket sets that have been idle for longer than
// their longest window; by then they would be full again anyway.
func (l *Limiter) cleanupBuckets() {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	for key, set := range l.sets {
		if set.idleSince(now.Add(-set.longestWindow())) {
			delete(l.sets, key)
		}
	}
}

// Stop stops the cleanup goroutine. It is safe to call more than once.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() {
		if l.cleanupTicker != nil {
			l.cleanupTicker.Stop()
		}
		if l.cleanupStop != nil {
			close(l.cleanupStop)
		}
	})
}
