// Package policy decides whether a shell command emitted by a recipe may run
// without a human in the loop.
//
// Warden executes recipe steps autonomously, so every run_command step is
// checked here first. The package centralizes the threat model for those
// commands.
//
// # Threat Model
//
// T1 - Destructive Commands: A recipe step could remove the working tree,
// format a device, or overwrite disks (rm -rf, mkfs, dd). Mitigations are
// deny rules evaluated before any allow rule and a deny-by-default posture
// when no policy file exists.
//
// T2 - Privilege Escalation: Steps that invoke sudo or loosen permissions
// (chmod -R 777) escape the repository's trust boundary. Validate flags allow
// rules that would approve them.
//
// T3 - Remote Code Execution: Piping downloaded content to a shell
// (curl ... | sh) runs code nobody reviewed. Validate flags allow rules that
// would approve it.
//
// T4 - History Rewrites: Force pushes destroy shared history. Validate
// reports a policy that has no deny rule covering them.
//
// T5 - Permissive Policies: A catch-all allow pattern or a default action of
// allow silently approves everything the deny list forgets. Validate reports
// both; neither changes Evaluate's behavior.
//
// # Evaluation Order
//
// Deny rules are checked first and any match denies. Allow rules are checked
// next and any match approves. Otherwise the policy default applies. A
// missing policy file denies every command with safety reason "unknown".
package policy
