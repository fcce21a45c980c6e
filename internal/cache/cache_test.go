package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"brandwise/internal/types"
)

func TestSignatureDeterminism(t *testing.T) {
	base := SignatureInput{
		Code:           []byte(".a{color:#fff}"),
		CodeType:       types.CodeCSS,
		BrandPackID:    "acme",
		BrandVersion:   "1.2.0",
		EngineVersion:  "1.0.0",
		RulesetVersion: "1",
		OverridesHash:  "abc",
		EnvFlagsHash:   "def",
	}

	sig := Signature(base)
	if sig != Signature(base) {
		t.Fatal("signature is not deterministic")
	}

	variants := []SignatureInput{base, base, base, base, base, base, base}
	variants[0].Code = []byte(".a{color:#000}")
	variants[1].CodeType = types.CodeHTML
	variants[2].BrandPackID = "other"
	variants[3].BrandVersion = "1.2.1"
	variants[4].EngineVersion = "1.0.1"
	variants[5].RulesetVersion = "2"
	variants[6].OverridesHash = "xyz"

	for i, v := range variants {
		if Signature(v) == sig {
			t.Errorf("variant %d did not change the signature", i)
		}
	}
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	now := time.Now()
	entry := &Entry{
		Signature: "sig-1",
		CodeOut:   []byte(".a{color:var(--color-primary)}"),
		ChangeLog: types.ChangeLog{Applied: []types.Edit{{Kind: types.EditColorToken, RuleID: "color-exact"}}},
		CreatedAt: now,
		LastHitAt: now,
		SizeBytes: 30,
	}
	if err := store.Put(ctx, entry); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := store.Get(ctx, "sig-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected a hit")
	}
	if string(got.CodeOut) != string(entry.CodeOut) {
		t.Errorf("code round-trip mismatch: %s", got.CodeOut)
	}
	if len(got.ChangeLog.Applied) != 1 || got.ChangeLog.Applied[0].RuleID != "color-exact" {
		t.Errorf("change log round-trip mismatch: %+v", got.ChangeLog)
	}

	if miss, err := store.Get(ctx, "nope"); err != nil || miss != nil {
		t.Errorf("miss should be (nil, nil), got (%v, %v)", miss, err)
	}

	if err := store.Touch(ctx, "sig-1", now.Add(time.Minute)); err != nil {
		t.Fatalf("Touch failed: %v", err)
	}
	got, _ = store.Get(ctx, "sig-1")
	if got.HitCount != 1 {
		t.Errorf("hit count = %d, want 1", got.HitCount)
	}

	st, err := store.Stats(ctx)
	if err != nil || st.Entries != 1 {
		t.Errorf("stats = %+v, err %v", st, err)
	}
}

func TestSQLiteSweep(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	old := time.Now().Add(-48 * time.Hour)
	fresh := time.Now()

	store.Put(ctx, &Entry{Signature: "old", CodeOut: []byte("a"), CreatedAt: old, LastHitAt: old})
	store.Put(ctx, &Entry{Signature: "new", CodeOut: []byte("b"), CreatedAt: fresh, LastHitAt: fresh})

	n, err := store.Sweep(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if n != 1 {
		t.Errorf("swept %d entries, want 1", n)
	}
	if e, _ := store.Get(ctx, "new"); e == nil {
		t.Error("fresh entry was swept")
	}
}

func TestCoalescingSingleTransform(t *testing.T) {
	c := New(NewMemoryStore(16), nil, 0, nil)

	var calls int64
	var release sync.WaitGroup
	release.Add(1)

	fn := func(ctx context.Context) ([]byte, types.ChangeLog, []types.Diagnostic, error) {
		atomic.AddInt64(&calls, 1)
		release.Wait()
		return []byte("out"), types.ChangeLog{}, nil, nil
	}

	var wg sync.WaitGroup
	results := make([]*Outcome, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := c.GetOrCompute(context.Background(), "same-sig", fn)
			if err != nil {
				t.Errorf("GetOrCompute failed: %v", err)
				return
			}
			results[i] = out
		}(i)
	}

	// Give every goroutine time to enter the flight group, then release.
	time.Sleep(50 * time.Millisecond)
	release.Done()
	wg.Wait()

	if got := atomic.LoadInt64(&calls); got != 1 {
		t.Errorf("transform ran %d times, want 1", got)
	}
	for i, r := range results {
		if r == nil || string(r.Code) != "out" {
			t.Errorf("result %d = %+v", i, r)
		}
	}
}

func TestCacheHonesty(t *testing.T) {
	c := New(NewMemoryStore(16), nil, 0, nil)
	ctx := context.Background()

	fn := func(ctx context.Context) ([]byte, types.ChangeLog, []types.Diagnostic, error) {
		return []byte("fresh-output"), types.ChangeLog{Applied: []types.Edit{{RuleID: "r"}}}, nil, nil
	}

	cold, err := c.GetOrCompute(ctx, "sig-h", fn)
	if err != nil || cold.CacheHit {
		t.Fatalf("cold path: %+v err=%v", cold, err)
	}

	warm, err := c.GetOrCompute(ctx, "sig-h", fn)
	if err != nil {
		t.Fatalf("warm path failed: %v", err)
	}
	if !warm.CacheHit {
		t.Fatal("second call should hit")
	}
	if string(warm.Code) != string(cold.Code) {
		t.Error("cache hit returned different bytes than the fresh transform")
	}
	if len(warm.ChangeLog.Applied) != len(cold.ChangeLog.Applied) {
		t.Error("cache hit returned different change log")
	}
}

// failStore errors on every operation, standing in for a down database.
type failStore struct{}

var errDown = errors.New("store offline")

func (failStore) Get(context.Context, string) (*Entry, error)        { return nil, errDown }
func (failStore) Put(context.Context, *Entry) error                  { return errDown }
func (failStore) Touch(context.Context, string, time.Time) error     { return errDown }
func (failStore) Sweep(context.Context, time.Time) (int64, error)    { return 0, errDown }
func (failStore) Stats(context.Context) (Stats, error)               { return Stats{}, errDown }
func (failStore) Close() error                                       { return nil }

func TestDegradedModeOneShotEvent(t *testing.T) {
	var events []StatusEvent
	var mu sync.Mutex
	c := New(failStore{}, failStore{}, 0, func(e StatusEvent) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	})

	fn := func(ctx context.Context) ([]byte, types.ChangeLog, []types.Diagnostic, error) {
		return []byte("computed"), types.ChangeLog{}, nil, nil
	}

	for i := 0; i < 3; i++ {
		out, err := c.GetOrCompute(context.Background(), "sig-d", fn)
		if err != nil {
			t.Fatalf("degraded call %d failed: %v", i, err)
		}
		if out.CacheHit {
			t.Errorf("call %d: no store can hit", i)
		}
		if !out.Degraded {
			t.Errorf("call %d: expected degraded outcome", i)
		}
		found := false
		for _, d := range out.Diagnostics {
			if d.Kind == types.DiagDependencyDown {
				found = true
			}
		}
		if !found {
			t.Errorf("call %d: missing dependency-unavailable diagnostic", i)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(events) != 1 {
		t.Errorf("status event fired %d times, want once per transition", len(events))
	}

	// singleflight must not share one result across distinct signatures.
	out, _ := c.GetOrCompute(context.Background(), "sig-other", fn)
	if string(out.Code) != "computed" {
		t.Errorf("unexpected result: %s", out.Code)
	}
}
