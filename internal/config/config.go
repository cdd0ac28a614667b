// Package config provides configuration management for warden.
// Configuration is loaded from (highest to lowest priority):
// 1. Command-line flags
// 2. Environment variables (WARDEN_*)
// 3. Project config (.warden/config.yaml in cwd, or $WARDEN_CONFIG)
// 4. Home config (~/.warden/config.yaml)
// 5. Defaults
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all warden configuration.
type Config struct {
	// Output controls the default output format (table, json, jsonl, yaml, markdown).
	Output string `yaml:"output" json:"output"`

	// BaseDir is the warden data directory (default: .warden). Relative
	// paths are resolved against TargetDir.
	BaseDir string `yaml:"base_dir" json:"base_dir"`

	// TargetDir is the repository being governed (default: cwd).
	TargetDir string `yaml:"target_dir" json:"target_dir"`

	// Verbose enables debug logging.
	Verbose bool `yaml:"verbose" json:"verbose"`

	Observer ObserverConfig `yaml:"observer" json:"observer"`
	Executor ExecutorConfig `yaml:"executor" json:"executor"`
	Guard    GuardConfig    `yaml:"guard" json:"guard"`
	Watch    WatchConfig    `yaml:"watch" json:"watch"`
}

// ObserverConfig configures the external metrics analyzer.
type ObserverConfig struct {
	// Command is run with bash -c in TargetDir and must print JSON counts.
	Command string `yaml:"command" json:"command"`

	// Timeout bounds one analyzer run (e.g. "5m").
	Timeout string `yaml:"timeout" json:"timeout"`
}

// ExecutorConfig configures recipe execution.
type ExecutorConfig struct {
	// StepTimeout bounds one recipe step unless the action sets its own.
	StepTimeout string `yaml:"step_timeout" json:"step_timeout"`

	// RollbackOnFail restores the undo snapshot when gates fail.
	// Default: true. A pointer distinguishes "unset" from false.
	RollbackOnFail *bool `yaml:"rollback_on_fail" json:"rollback_on_fail"`
}

// GuardConfig configures the golden snapshot and evidence signing.
type GuardConfig struct {
	// CriticalFiles are hashed into the golden snapshot, relative to TargetDir.
	CriticalFiles []string `yaml:"critical_files" json:"critical_files"`

	// SigningKey is the HMAC key for evidence entries. When empty a random
	// key is kept in KeyFile.
	SigningKey string `yaml:"signing_key" json:"-"`

	// KeyFile holds the generated key (default: <base_dir>/signing.key).
	KeyFile string `yaml:"key_file" json:"key_file"`
}

// WatchConfig configures watch mode.
type WatchConfig struct {
	// Debounce is the quiet period after the last change before a cycle runs.
	Debounce string `yaml:"debounce" json:"debounce"`

	// Ignore lists path segments whose changes never trigger a cycle.
	// The data directory is always ignored.
	Ignore []string `yaml:"ignore" json:"ignore"`
}

// Default config values (used in resolution and validation).
const (
	defaultOutput         = "table"
	defaultBaseDir        = ".warden"
	defaultTargetDir      = "."
	defaultObserveTimeout = "5m"
	defaultStepTimeout    = "10m"
	defaultDebounce       = "2s"
)

// ValidOutputs enumerates the accepted Output values.
var ValidOutputs = map[string]bool{"table": true, "json": true, "jsonl": true, "yaml": true, "markdown": true}

// Default returns the default configuration.
func Default() *Config {
	rollback := true
	return &Config{
		Output:    defaultOutput,
		BaseDir:   defaultBaseDir,
		TargetDir: defaultTargetDir,
		Observer:  ObserverConfig{Timeout: defaultObserveTimeout},
		Executor: ExecutorConfig{
			StepTimeout:    defaultStepTimeout,
			RollbackOnFail: &rollback,
		},
		Guard: GuardConfig{
			CriticalFiles: []string{
				"package.json",
				"tsconfig.json",
				"go.mod",
				"pyproject.toml",
				".warden/policy.yaml",
				".warden/gates.yaml",
			},
		},
		Watch: WatchConfig{
			Debounce: defaultDebounce,
			Ignore:   []string{".git", "node_modules"},
		},
	}
}

// Load loads configuration with proper precedence.
// Priority: flags > env > project > home > defaults.
// projectPath overrides the project config location when non-empty.
// A malformed config file is an error; a missing one is not.
func Load(projectPath string, flagOverrides *Config) (*Config, error) {
	cfg := Default()

	homeConfig, err := loadFromPath(homeConfigPath())
	if err != nil {
		return nil, err
	}
	if homeConfig != nil {
		cfg = merge(cfg, homeConfig)
	}

	if projectPath == "" {
		projectPath = projectConfigPath()
	}
	projectConfig, err := loadFromPath(projectPath)
	if err != nil {
		return nil, err
	}
	if projectConfig != nil {
		cfg = merge(cfg, projectConfig)
	}

	cfg = applyEnv(cfg)

	if flagOverrides != nil {
		cfg = merge(cfg, flagOverrides)
	}

	return cfg, cfg.Validate()
}

// Validate checks enumerations and durations.
func (c *Config) Validate() error {
	if !ValidOutputs[c.Output] {
		return fmt.Errorf("invalid output %q (want table, json, jsonl, yaml or markdown)", c.Output)
	}
	for name, v := range map[string]string{
		"observer.timeout":      c.Observer.Timeout,
		"executor.step_timeout": c.Executor.StepTimeout,
		"watch.debounce":        c.Watch.Debounce,
	} {
		if v == "" {
			continue
		}
		if d, err := time.ParseDuration(v); err != nil || d <= 0 {
			return fmt.Errorf("invalid %s %q", name, v)
		}
	}
	return nil
}

// BasePath returns BaseDir resolved against TargetDir.
func (c *Config) BasePath() string {
	if filepath.IsAbs(c.BaseDir) {
		return c.BaseDir
	}
	return filepath.Join(c.TargetDir, c.BaseDir)
}

// KeyPath returns the signing key file location.
func (c *Config) KeyPath() string {
	if c.Guard.KeyFile != "" {
		if filepath.IsAbs(c.Guard.KeyFile) {
			return c.Guard.KeyFile
		}
		return filepath.Join(c.TargetDir, c.Guard.KeyFile)
	}
	return filepath.Join(c.BasePath(), "signing.key")
}

// ShouldRollback reports whether failed gates restore the undo snapshot.
func (c *Config) ShouldRollback() bool {
	return c.Executor.RollbackOnFail == nil || *c.Executor.RollbackOnFail
}

// ObserveTimeout parses Observer.Timeout.
func (c *Config) ObserveTimeout() time.Duration {
	return durationOr(c.Observer.Timeout, 5*time.Minute)
}

// StepTimeout parses Executor.StepTimeout.
func (c *Config) StepTimeout() time.Duration {
	return durationOr(c.Executor.StepTimeout, 10*time.Minute)
}

// DebounceInterval parses Watch.Debounce.
func (c *Config) DebounceInterval() time.Duration {
	return durationOr(c.Watch.Debounce, 2*time.Second)
}

func durationOr(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// homeConfigPath returns the home config path.
func homeConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".warden", "config.yaml")
}

// projectConfigPath returns the project config path.
func projectConfigPath() string {
	if override := strings.TrimSpace(os.Getenv("WARDEN_CONFIG")); override != "" {
		return override
	}
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	return filepath.Join(cwd, ".warden", "config.yaml")
}

// loadFromPath loads config from a YAML file. A missing file yields nil, nil.
func loadFromPath(path string) (*Config, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	return &cfg, nil
}

// applyEnv applies environment variable overrides.
func applyEnv(cfg *Config) *Config {
	if v := os.Getenv("WARDEN_OUTPUT"); v != "" {
		cfg.Output = v
	}
	if v := os.Getenv("WARDEN_BASE_DIR"); v != "" {
		cfg.BaseDir = v
	}
	if v := os.Getenv("WARDEN_TARGET_DIR"); v != "" {
		cfg.TargetDir = v
	}
	if v, ok := getEnvBool("WARDEN_VERBOSE"); ok && v {
		cfg.Verbose = true
	}
	if v := os.Getenv("WARDEN_OBSERVER_COMMAND"); v != "" {
		cfg.Observer.Command = v
	}
	if v := os.Getenv("WARDEN_OBSERVER_TIMEOUT"); v != "" {
		cfg.Observer.Timeout = v
	}
	if v := os.Getenv("WARDEN_STEP_TIMEOUT"); v != "" {
		cfg.Executor.StepTimeout = v
	}
	if v, ok := getEnvBool("WARDEN_ROLLBACK_ON_FAIL"); ok {
		cfg.Executor.RollbackOnFail = &v
	}
	if v := os.Getenv("WARDEN_CRITICAL_FILES"); v != "" {
		cfg.Guard.CriticalFiles = splitList(v)
	}
	if v := os.Getenv("WARDEN_SIGNING_KEY"); v != "" {
		cfg.Guard.SigningKey = v
	}
	if v := os.Getenv("WARDEN_WATCH_DEBOUNCE"); v != "" {
		cfg.Watch.Debounce = v
	}
	return cfg
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// mergeStr overwrites dst with src when src is non-empty.
func mergeStr(dst *string, src string) {
	if src != "" {
		*dst = src
	}
}

// mergeList overwrites dst with src when src is non-empty.
func mergeList(dst *[]string, src []string) {
	if len(src) > 0 {
		*dst = src
	}
}

// merge merges src into dst, with src values taking precedence.
// Booleans that default to true are pointers so an explicit false survives.
func merge(dst, src *Config) *Config {
	mergeStr(&dst.Output, src.Output)
	mergeStr(&dst.BaseDir, src.BaseDir)
	mergeStr(&dst.TargetDir, src.TargetDir)
	if src.Verbose {
		dst.Verbose = true
	}

	mergeStr(&dst.Observer.Command, src.Observer.Command)
	mergeStr(&dst.Observer.Timeout, src.Observer.Timeout)

	mergeStr(&dst.Executor.StepTimeout, src.Executor.StepTimeout)
	if src.Executor.RollbackOnFail != nil {
		v := *src.Executor.RollbackOnFail
		dst.Executor.RollbackOnFail = &v
	}

	mergeList(&dst.Guard.CriticalFiles, src.Guard.CriticalFiles)
	mergeStr(&dst.Guard.SigningKey, src.Guard.SigningKey)
	mergeStr(&dst.Guard.KeyFile, src.Guard.KeyFile)

	mergeStr(&dst.Watch.Debounce, src.Watch.Debounce)
	mergeList(&dst.Watch.Ignore, src.Watch.Ignore)

	return dst
}

// Source represents where a config value came from.
type Source string

const (
	SourceDefault Source = "default"
	SourceHome    Source = "~/.warden/config.yaml"
	SourceProject Source = ".warden/config.yaml"
	SourceEnv     Source = "environment"
	SourceFlag    Source = "flag"
)

// getEnvString returns the value and whether the env var was set.
func getEnvString(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}

// getEnvBool parses a boolean env var. ok is false when unset or unparsable.
func getEnvBool(key string) (value, ok bool) {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "true", "1", "yes":
		return true, true
	case "false", "0", "no":
		return false, true
	}
	return false, false
}

// resolveStringField resolves a string through the precedence chain.
// Returns the resolved value and its source.
func resolveStringField(home, project, env, flag, def string) resolved {
	result := resolved{Value: def, Source: SourceDefault}
	if home != "" {
		result = resolved{Value: home, Source: SourceHome}
	}
	if project != "" {
		result = resolved{Value: project, Source: SourceProject}
	}
	if env != "" {
		result = resolved{Value: env, Source: SourceEnv}
	}
	if flag != "" {
		result = resolved{Value: flag, Source: SourceFlag}
	}
	return result
}

// ResolvedConfig shows config values with their sources.
type ResolvedConfig struct {
	Output          resolved `json:"output" yaml:"output"`
	BaseDir         resolved `json:"base_dir" yaml:"base_dir"`
	TargetDir       resolved `json:"target_dir" yaml:"target_dir"`
	Verbose         resolved `json:"verbose" yaml:"verbose"`
	ObserverCommand resolved `json:"observer_command" yaml:"observer_command"`
	ObserverTimeout resolved `json:"observer_timeout" yaml:"observer_timeout"`
	StepTimeout     resolved `json:"step_timeout" yaml:"step_timeout"`
	RollbackOnFail  resolved `json:"rollback_on_fail" yaml:"rollback_on_fail"`
	SigningKey      resolved `json:"signing_key" yaml:"signing_key"`
	WatchDebounce   resolved `json:"watch_debounce" yaml:"watch_debounce"`
}

type resolved struct {
	Value  interface{} `json:"value" yaml:"value"`
	Source Source      `json:"source" yaml:"source"`
}

// Flags carries the command-line values that take part in resolution.
type Flags struct {
	Output    string
	BaseDir   string
	TargetDir string
	Verbose   bool
}

// Resolve returns configuration with source tracking.
// Uses precedence chain: flags > env > project > home > defaults.
func Resolve(projectPath string, flags Flags) *ResolvedConfig {
	home, _ := loadFromPath(homeConfigPath())
	if projectPath == "" {
		projectPath = projectConfigPath()
	}
	project, _ := loadFromPath(projectPath)
	if home == nil {
		home = &Config{}
	}
	if project == nil {
		project = &Config{}
	}

	field := func(get func(*Config) string, envKey, flag, def string) resolved {
		env, _ := getEnvString(envKey)
		return resolveStringField(get(home), get(project), env, flag, def)
	}

	rc := &ResolvedConfig{
		Output:          field(func(c *Config) string { return c.Output }, "WARDEN_OUTPUT", flags.Output, defaultOutput),
		BaseDir:         field(func(c *Config) string { return c.BaseDir }, "WARDEN_BASE_DIR", flags.BaseDir, defaultBaseDir),
		TargetDir:       field(func(c *Config) string { return c.TargetDir }, "WARDEN_TARGET_DIR", flags.TargetDir, defaultTargetDir),
		ObserverCommand: field(func(c *Config) string { return c.Observer.Command }, "WARDEN_OBSERVER_COMMAND", "", ""),
		ObserverTimeout: field(func(c *Config) string { return c.Observer.Timeout }, "WARDEN_OBSERVER_TIMEOUT", "", defaultObserveTimeout),
		StepTimeout:     field(func(c *Config) string { return c.Executor.StepTimeout }, "WARDEN_STEP_TIMEOUT", "", defaultStepTimeout),
		WatchDebounce:   field(func(c *Config) string { return c.Watch.Debounce }, "WARDEN_WATCH_DEBOUNCE", "", defaultDebounce),
		Verbose:         resolved{Value: false, Source: SourceDefault},
		RollbackOnFail:  resolved{Value: true, Source: SourceDefault},
		SigningKey:      resolved{Value: "(generated key file)", Source: SourceDefault},
	}

	// Verbose has OR semantics through the chain.
	if home.Verbose {
		rc.Verbose = resolved{Value: true, Source: SourceHome}
	}
	if project.Verbose {
		rc.Verbose = resolved{Value: true, Source: SourceProject}
	}
	if v, ok := getEnvBool("WARDEN_VERBOSE"); ok && v {
		rc.Verbose = resolved{Value: true, Source: SourceEnv}
	}
	if flags.Verbose {
		rc.Verbose = resolved{Value: true, Source: SourceFlag}
	}

	if home.Executor.RollbackOnFail != nil {
		rc.RollbackOnFail = resolved{Value: *home.Executor.RollbackOnFail, Source: SourceHome}
	}
	if project.Executor.RollbackOnFail != nil {
		rc.RollbackOnFail = resolved{Value: *project.Executor.RollbackOnFail, Source: SourceProject}
	}
	if v, ok := getEnvBool("WARDEN_ROLLBACK_ON_FAIL"); ok {
		rc.RollbackOnFail = resolved{Value: v, Source: SourceEnv}
	}

	// The key itself is never displayed.
	if home.Guard.SigningKey != "" {
		rc.SigningKey = resolved{Value: "(set)", Source: SourceHome}
	}
	if project.Guard.SigningKey != "" {
		rc.SigningKey = resolved{Value: "(set)", Source: SourceProject}
	}
	if _, ok := getEnvString("WARDEN_SIGNING_KEY"); ok {
		rc.SigningKey = resolved{Value: "(set)", Source: SourceEnv}
	}

	return rc
}
