package recipe

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ActionKind tags the variant of an Action.
type ActionKind string

const (
	// KindRunCommand runs a shell command. Requires policy approval.
	KindRunCommand ActionKind = "run_command"

	// KindWriteFile replaces a file's content.
	KindWriteFile ActionKind = "write_file"

	// KindReplaceText substitutes text inside a file.
	KindReplaceText ActionKind = "replace_text"

	// KindDeleteFile removes a file.
	KindDeleteFile ActionKind = "delete_file"
)

// ValidKinds enumerates the allowed ActionKind values.
var ValidKinds = map[ActionKind]bool{
	KindRunCommand:  true,
	KindWriteFile:   true,
	KindReplaceText: true,
	KindDeleteFile:  true,
}

// RequiresApproval reports whether actions of this kind go through the policy engine.
func (k ActionKind) RequiresApproval() bool {
	return k == KindRunCommand
}

// Action is one executable step. Which fields apply depends on Kind:
//
//	run_command:  Command, Touches (files the command is expected to modify)
//	write_file:   Path, Content
//	replace_text: Path, Find, Replace, Regex
//	delete_file:  Path
type Action struct {
	Kind    ActionKind `yaml:"kind" json:"kind" toml:"kind"`
	Name    string     `yaml:"name,omitempty" json:"name,omitempty" toml:"name"`
	Command string     `yaml:"command,omitempty" json:"command,omitempty" toml:"command"`
	Touches []string   `yaml:"touches,omitempty" json:"touches,omitempty" toml:"touches"`
	Path    string     `yaml:"path,omitempty" json:"path,omitempty" toml:"path"`
	Content string     `yaml:"content,omitempty" json:"content,omitempty" toml:"content"`
	Find    string     `yaml:"find,omitempty" json:"find,omitempty" toml:"find"`
	Replace string     `yaml:"replace,omitempty" json:"replace,omitempty" toml:"replace"`
	Regex   bool       `yaml:"regex,omitempty" json:"regex,omitempty" toml:"regex"`

	// Timeout overrides the executor's step timeout (e.g. "30s").
	Timeout string `yaml:"timeout,omitempty" json:"timeout,omitempty" toml:"timeout"`
}

// Paths returns the files this action is expected to touch.
func (a Action) Paths() []string {
	if a.Kind == KindRunCommand {
		return a.Touches
	}
	if a.Path == "" {
		return nil
	}
	return []string{a.Path}
}

// Label is a short human description of the action.
func (a Action) Label() string {
	if a.Name != "" {
		return a.Name
	}
	if a.Kind == KindRunCommand {
		return a.Command
	}
	return fmt.Sprintf("%s %s", a.Kind, a.Path)
}

// StepTimeout parses Timeout, returning def when unset or invalid.
func (a Action) StepTimeout(def time.Duration) time.Duration {
	if a.Timeout == "" {
		return def
	}
	d, err := time.ParseDuration(a.Timeout)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// Validate checks the kind-specific required fields.
func (a Action) Validate() error {
	if !ValidKinds[a.Kind] {
		return fmt.Errorf("invalid kind %q", a.Kind)
	}
	switch a.Kind {
	case KindRunCommand:
		if a.Command == "" {
			return fmt.Errorf("run_command requires command")
		}
	case KindReplaceText:
		if a.Path == "" || a.Find == "" {
			return fmt.Errorf("replace_text requires path and find")
		}
	default:
		if a.Path == "" {
			return fmt.Errorf("%s requires path", a.Kind)
		}
	}
	for _, p := range a.Paths() {
		if err := checkRelative(p); err != nil {
			return err
		}
	}
	if a.Timeout != "" {
		if _, err := time.ParseDuration(a.Timeout); err != nil {
			return fmt.Errorf("invalid timeout %q", a.Timeout)
		}
	}
	return nil
}

// checkRelative rejects paths that are absolute or climb out of the target.
func checkRelative(p string) error {
	if filepath.IsAbs(p) || strings.HasPrefix(p, "/") {
		return fmt.Errorf("path %q must be relative to the target", p)
	}
	clean := filepath.ToSlash(filepath.Clean(p))
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return fmt.Errorf("path %q escapes the target", p)
	}
	return nil
}

// actionFields breaks the UnmarshalYAML/UnmarshalJSON recursion.
type actionFields Action

// UnmarshalYAML accepts either a mapping or a bare command string.
func (a *Action) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*a = Action{Kind: KindRunCommand, Command: node.Value}
		return nil
	}
	var f actionFields
	if err := node.Decode(&f); err != nil {
		return err
	}
	*a = Action(f)
	return nil
}

// UnmarshalJSON accepts either an object or a bare command string.
func (a *Action) UnmarshalJSON(data []byte) error {
	var cmd string
	if err := json.Unmarshal(data, &cmd); err == nil {
		*a = Action{Kind: KindRunCommand, Command: cmd}
		return nil
	}
	var f actionFields
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*a = Action(f)
	return nil
}
