// Package sandbox mediates filesystem and shell effects. The policy is a
// pure decision function: given a proposed effect it answers ALLOW or DENY
// with a machine-readable reason, and never performs the effect itself.
package sandbox

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// EffectKind classifies a proposed effect for policy evaluation.
type EffectKind string

const (
	EffectFilesystem EffectKind = "filesystem"
	EffectTerminal   EffectKind = "terminal"
	EffectOther      EffectKind = "other"
)

// Denial reasons.
const (
	ReasonPathOutsideSandbox     = "path_outside_sandbox"
	ReasonCommandNotWhitelisted  = "terminal_cmd_not_whitelisted"
)

// Effect describes a proposed side effect.
type Effect struct {
	Kind    EffectKind
	Path    string // filesystem target
	Command string // shell command line
}

// Decision is the outcome of policy evaluation.
type Decision struct {
	Allowed bool
	Reason  string
}

// DeniedError is raised by the pre-check hook when the policy rejects an
// effect. It is non-retryable.
type DeniedError struct {
	Reason string
}

func (e *DeniedError) Error() string {
	return "Denied: " + e.Reason
}

// IsDenied reports whether err is a policy denial.
func IsDenied(err error) bool {
	_, ok := err.(*DeniedError)
	return ok
}

// DefaultCommandWhitelist covers the commands the deterministic demo and
// common agent objectives need. Additional patterns come from configuration.
var DefaultCommandWhitelist = []string{
	`^\./[\w./-]+\.sh$`,
	`^(ls|pwd|date|echo|cat|head|tail|wc)(\s|$)`,
	`^mkdir(\s+-p)?\s+[\w./-]+$`,
	`^chmod\s+[0-7]{3,4}\s+[\w./-]+$`,
	`^(go|git|make)\s+[\w\s./=-]*$`,
}

// Policy holds the allow rules. The zero value denies all filesystem and
// terminal effects; use NewPolicy.
type Policy struct {
	allowedRoot string
	whitelist   []*regexp.Regexp
}

// NewPolicy builds a policy with the given allowed filesystem root and
// command whitelist patterns. Invalid patterns are rejected.
func NewPolicy(allowedRoot string, commandPatterns []string) (*Policy, error) {
	if allowedRoot == "" {
		return nil, fmt.Errorf("sandbox: allowed root is required")
	}
	abs, err := filepath.Abs(allowedRoot)
	if err != nil {
		return nil, fmt.Errorf("sandbox: resolve allowed root: %w", err)
	}

	if commandPatterns == nil {
		commandPatterns = DefaultCommandWhitelist
	}
	whitelist := make([]*regexp.Regexp, 0, len(commandPatterns))
	for _, pattern := range commandPatterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("sandbox: invalid whitelist pattern %q: %w", pattern, err)
		}
		whitelist = append(whitelist, re)
	}

	return &Policy{allowedRoot: abs, whitelist: whitelist}, nil
}

// AllowedRoot returns the normalized root all filesystem effects must stay
// under.
func (p *Policy) AllowedRoot() string {
	return p.allowedRoot
}

// Decide evaluates one effect. Filesystem targets must normalize to a path
// under the allowed root; terminal commands must match the whitelist;
// everything else is allowed.
func (p *Policy) Decide(effect Effect) Decision {
	switch effect.Kind {
	case EffectFilesystem:
		if !p.pathAllowed(effect.Path) {
			return Decision{Allowed: false, Reason: ReasonPathOutsideSandbox}
		}
	case EffectTerminal:
		if !p.commandAllowed(effect.Command) {
			return Decision{Allowed: false, Reason: ReasonCommandNotWhitelisted}
		}
	}
	return Decision{Allowed: true}
}

// PreCheck is invoked before every effectful step. It returns a
// *DeniedError carrying the policy reason when the effect is rejected.
func (p *Policy) PreCheck(effect Effect) error {
	decision := p.Decide(effect)
	if !decision.Allowed {
		return &DeniedError{Reason: decision.Reason}
	}
	return nil
}

// Resolve normalizes path relative to the allowed root and verifies it
// stays inside. Returns the absolute path.
func (p *Policy) Resolve(path string) (string, error) {
	resolved := path
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(p.allowedRoot, resolved)
	}
	resolved = filepath.Clean(resolved)
	if !p.containsPath(resolved) {
		return "", &DeniedError{Reason: ReasonPathOutsideSandbox}
	}
	return resolved, nil
}

func (p *Policy) pathAllowed(path string) bool {
	if path == "" {
		return false
	}
	resolved := path
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(p.allowedRoot, resolved)
	}
	return p.containsPath(filepath.Clean(resolved))
}

func (p *Policy) containsPath(abs string) bool {
	if p.allowedRoot == "" {
		return false
	}
	if abs == p.allowedRoot {
		return true
	}
	return strings.HasPrefix(abs, p.allowedRoot+string(filepath.Separator))
}

func (p *Policy) commandAllowed(command string) bool {
	command = strings.TrimSpace(command)
	if command == "" {
		return false
	}
	for _, re := range p.whitelist {
		if re.MatchString(command) {
			return true
		}
	}
	return false
}

// Validator is the post-validate hook: it inspects the observed result of
// an effectful step and may reject it on semantic grounds (e.g. a terminal
// step whose stdout is missing a required sentinel).
type Validator func(output string) error

// ContainsValidator builds a Validator requiring the output to contain the
// sentinel string.
func ContainsValidator(sentinel string) Validator {
	return func(output string) error {
		if !strings.Contains(output, sentinel) {
			return fmt.Errorf("output missing required sentinel %q", sentinel)
		}
		return nil
	}
}
