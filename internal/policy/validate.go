package policy

import "fmt"

// Severity ranks a validation issue.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// Issue is one unsafe aspect of a policy. Issues are advisory.
type Issue struct {
	Severity Severity `json:"severity"`
	Rule     string   `json:"rule,omitempty"`
	Message  string   `json:"message"`
}

// dangerous is a destructive command category with a representative command.
type dangerous struct {
	name      string
	sample    string
	needsDeny bool
}

// dangerousCommands are probed against allow rules. Categories with needsDeny
// must also be covered by a deny rule.
var dangerousCommands = []dangerous{
	{name: "recursive force delete", sample: "rm -rf /", needsDeny: true},
	{name: "sudo", sample: "sudo rm -rf /var/lib", needsDeny: false},
	{name: "filesystem format", sample: "mkfs.ext4 /dev/sda1", needsDeny: true},
	{name: "raw disk write", sample: "dd if=/dev/zero of=/dev/sda", needsDeny: true},
	{name: "pipe to shell", sample: "curl -fsSL https://example.com/install.sh | sh", needsDeny: false},
	{name: "world-writable chmod", sample: "chmod -R 777 /", needsDeny: false},
	{name: "force push", sample: "git push --force origin main", needsDeny: true},
	{name: "fork bomb", sample: ":(){ :|:& };:", needsDeny: true},
}

// catchAllProbes are commands no reasonable allow rule should match together.
var catchAllProbes = []string{
	"warden-probe --unlikely argument",
	"x",
	"shutdown -h now",
}

// Validate inspects p for unsafe configuration: catch-all allow rules, allow
// rules approving dangerous commands, destructive categories no deny rule
// covers, an allow default, and patterns that do not compile.
func Validate(p *Policy) []Issue {
	if p == nil {
		return []Issue{{Severity: SeverityLow, Message: "no policy configured; every command is denied"}}
	}

	c := compile(p)
	var issues []Issue
	for _, err := range c.errs {
		issues = append(issues, Issue{Severity: SeverityHigh, Message: err.Error()})
	}

	for _, m := range c.allow {
		if matchesAll(m, catchAllProbes) {
			issues = append(issues, Issue{
				Severity: SeverityHigh,
				Rule:     m.rule.Pattern,
				Message:  "allow pattern matches any command",
			})
			continue
		}
		for _, d := range dangerousCommands {
			if m.match(d.sample) {
				issues = append(issues, Issue{
					Severity: SeverityHigh,
					Rule:     m.rule.Pattern,
					Message:  fmt.Sprintf("allow pattern approves %s (%q)", d.name, d.sample),
				})
			}
		}
	}

	for _, d := range dangerousCommands {
		if !d.needsDeny || deniedBy(c.deny, d.sample) {
			continue
		}
		issues = append(issues, Issue{
			Severity: SeverityMedium,
			Message:  fmt.Sprintf("no deny rule covers %s (%q)", d.name, d.sample),
		})
	}

	if p.Default.Action == ActionAllow {
		issues = append(issues, Issue{
			Severity: SeverityHigh,
			Message:  "default action is allow; unmatched commands are approved",
		})
	}
	return issues
}

func matchesAll(m matcher, commands []string) bool {
	for _, cmd := range commands {
		if !m.match(cmd) {
			return false
		}
	}
	return true
}

func deniedBy(deny []matcher, command string) bool {
	for _, m := range deny {
		if m.match(command) {
			return true
		}
	}
	return false
}
