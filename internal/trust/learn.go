package trust

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/boshu2/warden/internal/storage"
)

// HistoryEntry is one learning event, appended for every outcome.
type HistoryEntry struct {
	RecipeID    string             `json:"recipeId"`
	Success     bool               `json:"success"`
	Deltas      map[string]float64 `json:"deltas,omitempty"`
	Attestation string             `json:"attestation,omitempty"`
	Trust       float64            `json:"trust"`
	Blacklisted bool               `json:"blacklisted,omitempty"`
	Timestamp   time.Time          `json:"timestamp"`
}

// Outcome is the input to Learn.
type Outcome struct {
	RecipeID    string
	Success     bool
	Deltas      map[string]float64
	Attestation string
}

// LearnResult reports the updated record and whether this call blacklisted it.
type LearnResult struct {
	Record      Record `json:"record"`
	Scored      bool   `json:"scored"`
	Blacklisted bool   `json:"blacklisted"`
	Message     string `json:"message,omitempty"`
}

// Learner applies outcomes to a Store. It is the only writer of trust
// records, and serializes every read-modify-write.
type Learner struct {
	store       Store
	historyPath string
	logger      *slog.Logger

	// ScoreNoop makes noop decisions count toward a "noop" record.
	ScoreNoop bool

	mu  sync.Mutex
	now func() time.Time
}

// NewLearner returns a Learner writing history to historyPath ("" disables history).
func NewLearner(store Store, historyPath string, logger *slog.Logger) *Learner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Learner{
		store:       store,
		historyPath: historyPath,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Learn records one outcome. Only storage failures are returned as errors.
func (l *Learner) Learn(o Outcome) (LearnResult, error) {
	if o.RecipeID == "" {
		return LearnResult{}, ErrEmptyID
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	rec, _, err := l.store.Get(o.RecipeID)
	if err != nil {
		return LearnResult{}, err
	}

	res := LearnResult{Record: rec}
	if o.RecipeID != NoopID || l.ScoreNoop {
		rec, res.Blacklisted = apply(rec, o.Success, l.now())
		if err := l.store.Put(rec); err != nil {
			return LearnResult{}, err
		}
		res.Record = rec
		res.Scored = true
	}

	if res.Blacklisted {
		res.Message = fmt.Sprintf("recipe %s blacklisted after %d consecutive failures", rec.ID, rec.ConsecutiveFailures)
		l.logger.Warn("recipe blacklisted", "recipe", rec.ID, "consecutive_failures", rec.ConsecutiveFailures)
	}

	if l.historyPath != "" {
		entry := HistoryEntry{
			RecipeID:    o.RecipeID,
			Success:     o.Success,
			Deltas:      o.Deltas,
			Attestation: o.Attestation,
			Trust:       res.Record.Trust,
			Blacklisted: res.Record.Blacklisted,
			Timestamp:   l.now(),
		}
		if err := storage.AppendJSONL(l.historyPath, entry); err != nil {
			return res, fmt.Errorf("append trust history: %w", err)
		}
	}

	l.logger.Debug("trust updated", "recipe", o.RecipeID, "success", o.Success,
		"runs", res.Record.Runs, "trust", res.Record.Trust, "scored", res.Scored)
	return res, nil
}

// Reset clears all statistics for id, lifting any blacklist.
func (l *Learner) Reset(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.store.Delete(id)
}

// apply is the pure scoring rule. It reports whether rec became blacklisted
// on this call.
func apply(rec Record, success bool, now time.Time) (Record, bool) {
	rec.Runs++
	if success {
		rec.Success++
		rec.ConsecutiveFailures = 0
	} else {
		rec.ConsecutiveFailures++
	}
	rec.Trust = Clamp(float64(rec.Success) / float64(rec.Runs))
	rec.LastUpdated = now

	newly := false
	if rec.ConsecutiveFailures >= BlacklistThreshold && !rec.Blacklisted {
		rec.Blacklisted = true
		newly = true
	}
	return rec, newly
}

// LoadHistory reads all learning events in append order.
func LoadHistory(path string) ([]HistoryEntry, error) {
	return storage.ReadJSONL[HistoryEntry](path, false)
}
