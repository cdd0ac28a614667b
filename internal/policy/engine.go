package policy

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/boshu2/warden/internal/storage"
)

// DecisionRecord is one line of the decision log.
type DecisionRecord struct {
	Approval
	Timestamp time.Time `json:"timestamp"`
}

// Engine evaluates commands against a policy file, reloading it when the
// file changes on disk.
type Engine struct {
	path   string
	logger *slog.Logger

	mu      sync.Mutex
	cache   *compiled
	modTime time.Time
	size    int64
	loaded  bool
	now     func() time.Time
}

// NewEngine returns an Engine for the policy at path.
func NewEngine(path string, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{path: path, logger: logger, now: time.Now}
}

// Path returns the policy file path.
func (e *Engine) Path() string { return e.path }

// Evaluate decides whether command is auto-approved. A missing or malformed
// policy file denies with safety reason "unknown".
func (e *Engine) Evaluate(command string) Approval {
	e.mu.Lock()
	c := e.current()
	e.mu.Unlock()

	a := c.evaluate(command)
	e.logger.Info("policy decision",
		"command", a.Command,
		"approved", a.Approved,
		"safety_reason", a.SafetyReason,
		"default_applied", a.DefaultApplied,
		"pattern", a.Pattern,
	)
	if c != nil && c.policy.Logging.Enabled {
		e.record(c.policy.Logging, a)
	}
	return a
}

// Policy returns the currently loaded policy, or nil when none is configured.
// Rule compilation problems are returned alongside.
func (e *Engine) Policy() (*Policy, []error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c := e.current()
	if c == nil {
		return nil, nil
	}
	return c.policy, c.errs
}

// current returns the cached policy, reloading when the file's mtime or size
// changed. Caller holds e.mu.
func (e *Engine) current() *compiled {
	info, err := os.Stat(e.path)
	if err != nil {
		if !isNotExist(err) {
			e.logger.Warn("cannot stat policy", "path", e.path, "error", err)
		}
		e.cache, e.loaded = nil, false
		return nil
	}
	if e.loaded && info.ModTime().Equal(e.modTime) && info.Size() == e.size {
		return e.cache
	}

	e.modTime, e.size, e.loaded = info.ModTime(), info.Size(), true
	p, err := Load(e.path)
	if err != nil {
		e.logger.Warn("ignoring malformed policy", "path", e.path, "error", err)
		e.cache = nil
		return nil
	}
	e.cache = compile(p)
	for _, err := range e.cache.errs {
		e.logger.Warn("skipping policy rule", "path", e.path, "error", err)
	}
	e.logger.Debug("policy loaded", "path", e.path, "allow", len(e.cache.allow), "deny", len(e.cache.deny))
	return e.cache
}

func (e *Engine) record(cfg Logging, a Approval) {
	path := cfg.Path
	if path == "" {
		path = "policy-decisions.jsonl"
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(filepath.Dir(e.path), path)
	}
	if err := storage.AppendJSONL(path, DecisionRecord{Approval: a, Timestamp: e.now().UTC()}); err != nil {
		e.logger.Warn("cannot write policy decision log", "path", path, "error", err)
	}
}
