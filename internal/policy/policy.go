package policy

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Action is a policy verdict.
type Action string

const (
	ActionAllow Action = "allow"
	ActionDeny  Action = "deny"
)

// SafetyReason explains which part of the policy produced a decision.
type SafetyReason string

const (
	ReasonDeny    SafetyReason = "deny"
	ReasonAllow   SafetyReason = "allow"
	ReasonDefault SafetyReason = "default"
	ReasonUnknown SafetyReason = "unknown"
)

// Rule matches commands by pattern. A pattern is an anchored glob where *
// matches any run of characters, or a regular expression when prefixed "re:".
type Rule struct {
	Pattern     string `yaml:"pattern" json:"pattern"`
	Reason      string `yaml:"reason,omitempty" json:"reason,omitempty"`
	SafetyLevel string `yaml:"safetyLevel,omitempty" json:"safetyLevel,omitempty"`
}

// Default is applied when no rule matches.
type Default struct {
	Action          Action `yaml:"action" json:"action"`
	Reason          string `yaml:"reason,omitempty" json:"reason,omitempty"`
	SafetyLevel     string `yaml:"safetyLevel,omitempty" json:"safetyLevel,omitempty"`
	RequireApproval bool   `yaml:"requireApproval,omitempty" json:"requireApproval,omitempty"`
}

// Logging configures the decision log.
type Logging struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path,omitempty" json:"path,omitempty"`
}

// Policy is the command approval configuration.
type Policy struct {
	Version     string  `yaml:"version" json:"version"`
	SafetyLevel string  `yaml:"safetyLevel,omitempty" json:"safetyLevel,omitempty"`
	Allow       []Rule  `yaml:"allow" json:"allow"`
	Deny        []Rule  `yaml:"deny" json:"deny"`
	Default     Default `yaml:"default" json:"default"`
	Logging     Logging `yaml:"logging" json:"logging"`
}

// Load reads a policy file. A missing file returns an error matching
// os.ErrNotExist. An unset default action is deny.
func Load(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes a YAML policy.
func Parse(data []byte) (*Policy, error) {
	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse policy: %w", err)
	}
	switch p.Default.Action {
	case "":
		p.Default.Action = ActionDeny
	case ActionAllow, ActionDeny:
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidAction, p.Default.Action)
	}
	return &p, nil
}

// matcher is a compiled rule.
type matcher struct {
	rule Rule
	re   *regexp.Regexp
}

func (m matcher) match(command string) bool {
	return m.re.MatchString(command)
}

func (m matcher) matchAny(lines []string) bool {
	for _, l := range lines {
		if m.match(l) {
			return true
		}
	}
	return false
}

// Compile turns a rule pattern into a regular expression. Glob patterns
// match across newlines.
func Compile(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidPattern)
	}
	if expr, ok := strings.CutPrefix(pattern, "re:"); ok {
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPattern, err)
		}
		return re, nil
	}
	parts := strings.Split(pattern, "*")
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	return regexp.MustCompile("(?s)^" + strings.Join(parts, ".*") + "$"), nil
}

// compiled holds a policy with every rule compiled. Rules whose patterns do
// not compile are dropped and reported in errs.
type compiled struct {
	policy *Policy
	deny   []matcher
	allow  []matcher
	errs   []error
}

func compile(p *Policy) *compiled {
	c := &compiled{policy: p}
	build := func(kind string, rules []Rule) []matcher {
		out := make([]matcher, 0, len(rules))
		for i, r := range rules {
			re, err := Compile(r.Pattern)
			if err != nil {
				c.errs = append(c.errs, fmt.Errorf("%s[%d] %q: %w", kind, i, r.Pattern, err))
				continue
			}
			out = append(out, matcher{rule: r, re: re})
		}
		return out
	}
	c.deny = build("deny", p.Deny)
	c.allow = build("allow", p.Allow)
	return c
}

// Approval is the outcome of evaluating one command.
type Approval struct {
	Command        string       `json:"command"`
	Approved       bool         `json:"approved"`
	SafetyReason   SafetyReason `json:"safetyReason"`
	DefaultApplied bool         `json:"defaultApplied"`
	Pattern        string       `json:"pattern,omitempty"`
	Reason         string       `json:"reason,omitempty"`
	SafetyLevel    string       `json:"safetyLevel,omitempty"`
}

// evaluate applies c to command. A nil c is the missing-policy posture.
func (c *compiled) evaluate(command string) Approval {
	command = strings.TrimSpace(command)
	if c == nil {
		return Approval{
			Command:        command,
			SafetyReason:   ReasonUnknown,
			DefaultApplied: true,
			Reason:         "no policy configured",
		}
	}
	lines := commandLines(command)
	for _, m := range c.deny {
		if m.match(command) || m.matchAny(lines) {
			return Approval{
				Command:      command,
				SafetyReason: ReasonDeny,
				Pattern:      m.rule.Pattern,
				Reason:       m.rule.Reason,
				SafetyLevel:  m.rule.SafetyLevel,
			}
		}
	}
	if m, ok := c.allowAll(command, lines); ok {
		return Approval{
			Command:      command,
			Approved:     true,
			SafetyReason: ReasonAllow,
			Pattern:      m.rule.Pattern,
			Reason:       m.rule.Reason,
			SafetyLevel:  m.rule.SafetyLevel,
		}
	}
	d := c.policy.Default
	return Approval{
		Command:        command,
		Approved:       d.Action == ActionAllow && !d.RequireApproval,
		SafetyReason:   ReasonDefault,
		DefaultApplied: true,
		Reason:         d.Reason,
		SafetyLevel:    d.SafetyLevel,
	}
}

// allowAll returns the allow rule approving command. A multi-line command
// is approved only when every line is matched by some allow rule.
func (c *compiled) allowAll(command string, lines []string) (matcher, bool) {
	if len(lines) <= 1 {
		for _, m := range c.allow {
			if m.match(command) {
				return m, true
			}
		}
		return matcher{}, false
	}
	var first matcher
	for i, line := range lines {
		found := false
		for _, m := range c.allow {
			if m.match(line) {
				if i == 0 {
					first = m
				}
				found = true
				break
			}
		}
		if !found {
			return matcher{}, false
		}
	}
	return first, true
}

// commandLines splits a shell script into its non-blank trimmed lines.
func commandLines(command string) []string {
	var out []string
	for _, line := range strings.Split(command, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

// Evaluate checks command against p without caching. A nil p denies.
func Evaluate(p *Policy, command string) Approval {
	if p == nil {
		return (*compiled)(nil).evaluate(command)
	}
	return compile(p).evaluate(command)
}

// isNotExist reports a missing policy file.
func isNotExist(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}
