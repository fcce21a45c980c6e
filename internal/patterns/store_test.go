package patterns

import (
	"context"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create pattern store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func obs(accepted bool) Observation {
	return Observation{
		ProjectID:     "proj-1",
		ComponentType: "button",
		RuleID:        "color-exact",
		TokenChosen:   "color-primary",
		Accepted:      accepted,
	}
}

func TestObserveBuildsConfidence(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		if err := s.Observe(ctx, obs(true)); err != nil {
			t.Fatalf("Observe %d failed: %v", i, err)
		}
	}

	p, err := s.Get(ctx, "proj-1", "button", "color-exact", "color-primary")
	if err != nil || p == nil {
		t.Fatalf("Get failed: %v %v", p, err)
	}
	if p.SampleCount != 20 {
		t.Errorf("sample count = %d, want 20", p.SampleCount)
	}
	if p.Confidence < 0.9 {
		t.Errorf("20 accepts should push confidence past 0.9, got %.3f", p.Confidence)
	}
}

func TestRejectionsPullConfidenceDown(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		s.Observe(ctx, obs(true))
	}
	before, _ := s.Get(ctx, "proj-1", "button", "color-exact", "color-primary")

	for i := 0; i < 5; i++ {
		s.Observe(ctx, obs(false))
	}
	after, _ := s.Get(ctx, "proj-1", "button", "color-exact", "color-primary")

	if after.Confidence >= before.Confidence {
		t.Errorf("rejections should lower confidence: %.3f -> %.3f", before.Confidence, after.Confidence)
	}
	if after.SampleCount != 15 {
		t.Errorf("sample count = %d, want 15", after.SampleCount)
	}
}

func TestConfidenceDecaysWithAge(t *testing.T) {
	p := &Pattern{Confidence: 0.95, HalfLifeDays: 30, LastUpdated: time.Now().Add(-30 * 24 * time.Hour)}

	eff := p.EffectiveConfidence(time.Now())
	if eff > 0.48 || eff < 0.46 {
		t.Errorf("one half-life should halve confidence, got %.3f", eff)
	}

	fresh := &Pattern{Confidence: 0.95, HalfLifeDays: 30, LastUpdated: time.Now()}
	if got := fresh.EffectiveConfidence(time.Now()); got < 0.94 {
		t.Errorf("fresh pattern should not decay, got %.3f", got)
	}
}

func TestSuggestThresholds(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Strong pattern: 20 accepts.
	for i := 0; i < 20; i++ {
		s.Observe(ctx, obs(true))
	}
	// Weak pattern: alternating accept/reject hovers near 0.5.
	weak := Observation{ProjectID: "proj-1", ComponentType: "button", RuleID: "spacing-token", TokenChosen: "spacing-md"}
	for i := 0; i < 10; i++ {
		weak.Accepted = i%2 == 0
		s.Observe(ctx, weak)
	}

	candidates := []Candidate{
		{RuleID: "color-exact", TokenChosen: "color-primary", SafeClass: true},
		{RuleID: "spacing-token", TokenChosen: "spacing-md", SafeClass: true},
		{RuleID: "never-seen", TokenChosen: "x", SafeClass: true},
	}

	got, err := s.Suggest(ctx, "proj-1", "button", candidates, 5)
	if err != nil {
		t.Fatalf("Suggest failed: %v", err)
	}

	// The weak and unseen candidates are suppressed.
	if len(got) != 1 {
		t.Fatalf("suggestions = %+v, want only the strong pattern", got)
	}
	if got[0].RuleID != "color-exact" || !got[0].AutoApplyEligible {
		t.Errorf("strong safe pattern should be auto-apply eligible: %+v", got[0])
	}
}

func TestSuggestUnsafeClassNeverAutoApplies(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	o := Observation{ProjectID: "p", ComponentType: "card", RuleID: "gradient-preset", TokenChosen: "gradient-hero", Accepted: true}
	for i := 0; i < 20; i++ {
		s.Observe(ctx, o)
	}

	got, err := s.Suggest(ctx, "p", "card",
		[]Candidate{{RuleID: "gradient-preset", TokenChosen: "gradient-hero", SafeClass: false}}, 5)
	if err != nil || len(got) != 1 {
		t.Fatalf("Suggest failed: %v %+v", err, got)
	}
	if got[0].AutoApplyEligible {
		t.Error("advisory rule class must never be auto-apply eligible")
	}
}

func TestSampleFloorGatesAutoApply(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Few but perfect observations: confident yet under the sample floor.
	o := obs(true)
	for i := 0; i < 5; i++ {
		s.Observe(ctx, o)
	}
	// Five accepts from the 0.6 seed reach about 0.84 and do not cross 0.9,
	// so assert the gate using the stored pattern as it stands.
	p, _ := s.Get(ctx, "proj-1", "button", "color-exact", "color-primary")
	if p.SampleCount >= minSampleCount {
		t.Fatalf("test premise broken: %d samples", p.SampleCount)
	}

	got, err := s.Suggest(ctx, "proj-1", "button",
		[]Candidate{{RuleID: "color-exact", TokenChosen: "color-primary", SafeClass: true}}, 5)
	if err != nil {
		t.Fatalf("Suggest failed: %v", err)
	}
	for _, sg := range got {
		if sg.AutoApplyEligible {
			t.Error("under the sample floor nothing is auto-apply eligible")
		}
	}
}
