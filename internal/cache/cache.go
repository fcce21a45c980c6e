package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"brandwise/internal/logging"
	"brandwise/internal/types"
)

// DefaultTTL bounds cache growth: entries unseen for this long are swept.
const DefaultTTL = 30 * 24 * time.Hour

// TransformFunc computes a fresh result on a cache miss.
type TransformFunc func(ctx context.Context) ([]byte, types.ChangeLog, []types.Diagnostic, error)

// Outcome is what GetOrCompute hands back: the (possibly cached) result
// plus whether the probe hit and any store diagnostics.
type Outcome struct {
	Code        []byte
	ChangeLog   types.ChangeLog
	CacheHit    bool
	Degraded    bool
	Diagnostics []types.Diagnostic
}

// StatusEvent is emitted at most once per degraded-mode transition.
type StatusEvent struct {
	Degraded bool
	Reason   string
	At       time.Time
}

// Cache fronts the primary and secondary stores with per-signature
// coalescing: concurrent misses for one signature run a single transform,
// losers wait for the winner's result.
type Cache struct {
	primary   Store
	secondary Store
	ttl       time.Duration
	group     singleflight.Group

	mu       sync.Mutex
	degraded bool
	onStatus func(StatusEvent)
}

// New builds a cache over the given stores. Either store may be nil;
// with both nil the cache runs permanently degraded. onStatus may be nil.
func New(primary, secondary Store, ttl time.Duration, onStatus func(StatusEvent)) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{primary: primary, secondary: secondary, ttl: ttl, onStatus: onStatus}
}

// GetOrCompute implements the lookup protocol: probe, coalesce misses,
// compute, store best-effort. A store failure never fails the request.
func (c *Cache) GetOrCompute(ctx context.Context, signature string, fn TransformFunc) (*Outcome, error) {
	v, err, _ := c.group.Do(signature, func() (interface{}, error) {
		return c.lookup(ctx, signature, fn)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Outcome), nil
}

func (c *Cache) lookup(ctx context.Context, signature string, fn TransformFunc) (*Outcome, error) {
	now := time.Now()
	storesDown := 0

	for _, st := range []Store{c.primary, c.secondary} {
		if st == nil {
			storesDown++
			continue
		}
		e, err := st.Get(ctx, signature)
		if err != nil {
			logging.Cache("store probe failed for %.12s: %v", signature, err)
			storesDown++
			continue
		}
		if e == nil {
			continue
		}
		// Hit: refresh bookkeeping, fire-and-forget.
		if terr := st.Touch(ctx, signature, now); terr != nil {
			logging.CacheDebug("touch failed for %.12s: %v", signature, terr)
		}
		c.setDegraded(false, "")
		logging.CacheDebug("hit %.12s (hits=%d)", signature, e.HitCount+1)
		return &Outcome{Code: e.CodeOut, ChangeLog: e.ChangeLog, CacheHit: true}, nil
	}

	// Miss (or stores down): compute fresh.
	code, changeLog, diags, err := fn(ctx)
	if err != nil {
		return nil, err
	}

	out := &Outcome{Code: code, ChangeLog: changeLog, Diagnostics: diags}

	bothDown := storesDown >= 2 || (c.primary == nil && c.secondary == nil)
	if bothDown {
		// Degraded mode: compute and return without caching.
		c.setDegraded(true, "cache stores unavailable")
		out.Degraded = true
		out.Diagnostics = append(out.Diagnostics, types.Diagnostic{
			Kind:    types.DiagDependencyDown,
			Message: "cache store unavailable, result not cached",
		})
		return out, nil
	}

	entry := &Entry{
		Signature: signature,
		CodeOut:   code,
		ChangeLog: changeLog,
		CreatedAt: now,
		LastHitAt: now,
		SizeBytes: int64(len(code)),
	}
	if !c.storeBestEffort(ctx, entry) {
		c.setDegraded(true, "cache stores rejected write")
		out.Degraded = true
		out.Diagnostics = append(out.Diagnostics, types.Diagnostic{
			Kind:    types.DiagDependencyDown,
			Message: "cache store unavailable, result not cached",
		})
		return out, nil
	}

	c.setDegraded(false, "")
	return out, nil
}

// storeBestEffort writes to the primary, falling back to the secondary.
// Returns false only when every store refused the write.
func (c *Cache) storeBestEffort(ctx context.Context, e *Entry) bool {
	stored := false
	for _, st := range []Store{c.primary, c.secondary} {
		if st == nil {
			continue
		}
		if err := st.Put(ctx, e); err != nil {
			logging.Cache("store write failed for %.12s: %v", e.Signature, err)
			continue
		}
		stored = true
		break
	}
	return stored
}

// setDegraded tracks the degraded flag and emits the one-shot transition
// event.
func (c *Cache) setDegraded(degraded bool, reason string) {
	c.mu.Lock()
	changed := c.degraded != degraded
	c.degraded = degraded
	cb := c.onStatus
	c.mu.Unlock()

	if changed && cb != nil {
		cb(StatusEvent{Degraded: degraded, Reason: reason, At: time.Now()})
	}
	if changed {
		if degraded {
			logging.Cache("entering degraded mode: %s", reason)
		} else {
			logging.Cache("leaving degraded mode")
		}
	}
}

// Degraded reports the current degraded flag.
func (c *Cache) Degraded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.degraded
}

// Maintain sweeps both stores by the TTL.
func (c *Cache) Maintain(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-c.ttl)
	var total int64
	for _, st := range []Store{c.primary, c.secondary} {
		if st == nil {
			continue
		}
		n, err := st.Sweep(ctx, cutoff)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}
