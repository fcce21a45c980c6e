// Package patterns persists per-project observations of applied edits and
// explicit feedback, and serves confidence-scored advisory suggestions.
// Confidence follows an EWMA over accept/reject, decayed by the time since
// the last observation. Patterns are never hard-deleted, only decayed.
package patterns

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"brandwise/internal/logging"
)

// ewmaAlpha weighs one observation against the running aggregate.
const ewmaAlpha = 0.2

// Eligibility thresholds.
const (
	suppressBelow   = 0.8
	autoApplyAbove  = 0.9
	minSampleCount  = 10
	defaultHalfLife = 30 // days
)

// Observation is one applied-edit or feedback event.
type Observation struct {
	ProjectID     string
	ComponentType string
	RuleID        string
	TokenChosen   string
	Accepted      bool
}

// Pattern is the stored aggregate for one (project, component, rule, token).
type Pattern struct {
	ProjectID     string    `json:"project_id"`
	ComponentType string    `json:"component_type"`
	RuleID        string    `json:"rule_id"`
	TokenChosen   string    `json:"token_chosen"`
	Confidence    float64   `json:"confidence"`
	SampleCount   int       `json:"sample_count"`
	HalfLifeDays  float64   `json:"half_life_days"`
	LastUpdated   time.Time `json:"last_updated"`
}

// EffectiveConfidence decays the stored confidence by the time since the
// last observation.
func (p *Pattern) EffectiveConfidence(now time.Time) float64 {
	days := now.Sub(p.LastUpdated).Hours() / 24
	if days <= 0 {
		return p.Confidence
	}
	half := p.HalfLifeDays
	if half <= 0 {
		half = defaultHalfLife
	}
	return p.Confidence * math.Pow(0.5, days/half)
}

// Suggestion is one advisory returned for a fragment's rule candidates.
type Suggestion struct {
	RuleID            string  `json:"rule_id"`
	TokenChosen       string  `json:"token_chosen"`
	Confidence        float64 `json:"confidence"`
	SampleCount       int     `json:"sample_count"`
	AutoApplyEligible bool    `json:"auto_apply_eligible"`
}

// Candidate is a rule/token pair the transform engine found in a fragment,
// to be intersected with the learned patterns.
type Candidate struct {
	RuleID      string
	TokenChosen string
	SafeClass   bool
}

// Store is the SQLite-backed pattern store.
type Store struct {
	db       *sql.DB
	mu       sync.RWMutex
	halfLife float64
	now      func() time.Time
}

// NewStore opens (and migrates) the pattern database at path.
func NewStore(path string) (*Store, error) {
	timer := logging.StartTimer(logging.CategoryPatterns, "NewStore")
	defer timer.Stop()

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create patterns directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pattern database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.PatternsDebug("failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.PatternsDebug("failed to set sqlite journal_mode=WAL: %v", err)
	}

	s := &Store{db: db, halfLife: defaultHalfLife, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	logging.Patterns("pattern store ready at %s", path)
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS patterns (
		project_id     TEXT NOT NULL,
		component_type TEXT NOT NULL,
		rule_id        TEXT NOT NULL,
		token_chosen   TEXT NOT NULL,
		confidence     REAL NOT NULL,
		sample_count   INTEGER NOT NULL,
		half_life_days REAL NOT NULL,
		last_updated   INTEGER NOT NULL,
		PRIMARY KEY (project_id, component_type, rule_id, token_chosen)
	)`)
	if err != nil {
		return fmt.Errorf("pattern migration failed: %w", err)
	}
	return nil
}

// Observe folds one event into the aggregate. Updates are optimistic per
// (projectId, componentType, ruleId, tokenChosen) key: the write is retried
// once when a concurrent update moved the sample count underneath it.
func (s *Store) Observe(ctx context.Context, obs Observation) error {
	for attempt := 0; attempt < 2; attempt++ {
		ok, err := s.tryObserve(ctx, obs)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	return fmt.Errorf("pattern update conflicted repeatedly for %s/%s", obs.ProjectID, obs.RuleID)
}

func (s *Store) tryObserve(ctx context.Context, obs Observation) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	row := s.db.QueryRowContext(ctx,
		`SELECT confidence, sample_count, half_life_days, last_updated FROM patterns
		 WHERE project_id = ? AND component_type = ? AND rule_id = ? AND token_chosen = ?`,
		obs.ProjectID, obs.ComponentType, obs.RuleID, obs.TokenChosen)

	var (
		conf     float64
		samples  int
		halfLife float64
		updated  int64
	)
	err := row.Scan(&conf, &samples, &halfLife, &updated)
	if err == sql.ErrNoRows {
		seed := 0.5
		if obs.Accepted {
			seed = 0.5 + ewmaAlpha*0.5
		} else {
			seed = 0.5 - ewmaAlpha*0.5
		}
		_, ierr := s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO patterns
			 (project_id, component_type, rule_id, token_chosen, confidence, sample_count, half_life_days, last_updated)
			 VALUES (?, ?, ?, ?, ?, 1, ?, ?)`,
			obs.ProjectID, obs.ComponentType, obs.RuleID, obs.TokenChosen, seed, s.halfLife, now.UnixMilli())
		if ierr != nil {
			return false, fmt.Errorf("pattern insert failed: %w", ierr)
		}
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("pattern read failed: %w", err)
	}

	// Decay the stored confidence to now, then fold in the observation.
	p := Pattern{Confidence: conf, HalfLifeDays: halfLife, LastUpdated: time.UnixMilli(updated)}
	decayed := p.EffectiveConfidence(now)
	target := 0.0
	if obs.Accepted {
		target = 1.0
	}
	next := decayed + ewmaAlpha*(target-decayed)

	res, uerr := s.db.ExecContext(ctx,
		`UPDATE patterns SET confidence = ?, sample_count = sample_count + 1, last_updated = ?
		 WHERE project_id = ? AND component_type = ? AND rule_id = ? AND token_chosen = ?
		   AND sample_count = ?`,
		next, now.UnixMilli(),
		obs.ProjectID, obs.ComponentType, obs.RuleID, obs.TokenChosen, samples)
	if uerr != nil {
		return false, fmt.Errorf("pattern update failed: %w", uerr)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		logging.PatternsDebug("optimistic conflict on %s/%s, retrying", obs.ProjectID, obs.RuleID)
		return false, nil
	}
	return true, nil
}

// Get fetches one pattern aggregate.
func (s *Store) Get(ctx context.Context, projectID, componentType, ruleID, tokenChosen string) (*Pattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT confidence, sample_count, half_life_days, last_updated FROM patterns
		 WHERE project_id = ? AND component_type = ? AND rule_id = ? AND token_chosen = ?`,
		projectID, componentType, ruleID, tokenChosen)

	p := Pattern{ProjectID: projectID, ComponentType: componentType, RuleID: ruleID, TokenChosen: tokenChosen}
	var updated int64
	err := row.Scan(&p.Confidence, &p.SampleCount, &p.HalfLifeDays, &updated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pattern get failed: %w", err)
	}
	p.LastUpdated = time.UnixMilli(updated)
	return &p, nil
}

// Suggest intersects the learned patterns with the fragment's candidates
// and returns the top-k by effective confidence. Below 0.8 is suppressed;
// 0.8-0.9 is advisory; at or above 0.9 the suggestion is auto-apply
// eligible only with enough samples and a safe rule class.
func (s *Store) Suggest(ctx context.Context, projectID, componentType string, candidates []Candidate, k int) ([]Suggestion, error) {
	if k <= 0 {
		k = 5
	}
	now := s.now()

	var out []Suggestion
	for _, c := range candidates {
		p, err := s.Get(ctx, projectID, componentType, c.RuleID, c.TokenChosen)
		if err != nil {
			return nil, err
		}
		if p == nil {
			continue
		}
		conf := p.EffectiveConfidence(now)
		if conf < suppressBelow {
			continue
		}
		out = append(out, Suggestion{
			RuleID:            c.RuleID,
			TokenChosen:       c.TokenChosen,
			Confidence:        conf,
			SampleCount:       p.SampleCount,
			AutoApplyEligible: conf >= autoApplyAbove && p.SampleCount >= minSampleCount && c.SafeClass,
		})
	}

	// Top-k by confidence.
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].Confidence > out[i].Confidence {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
