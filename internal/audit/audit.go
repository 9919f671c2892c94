// Package audit runs security and best-practice checks against the objects
// of a bundle. Built-in rules are selected by a Pod Security Standards
// level; custom rules come from policy files.
package audit

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/hupe1980/promstack/internal/k8s"
)

// Severity ranks the impact of a finding.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// String returns the lowercase label for the severity.
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// ParseSeverity parses a severity string (case-insensitive).
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "critical":
		return SeverityCritical, nil
	case "high":
		return SeverityHigh, nil
	case "medium":
		return SeverityMedium, nil
	case "low":
		return SeverityLow, nil
	case "info":
		return SeverityInfo, nil
	default:
		return SeverityInfo, fmt.Errorf("unknown severity %q, valid values: critical, high, medium, low, info", s)
	}
}

// Level selects which built-in checks run.
type Level int

const (
	// LevelBestPractice runs only the best-practice checks.
	LevelBestPractice Level = iota
	// LevelBaseline adds the baseline Pod Security Standards checks.
	LevelBaseline
	// LevelRestricted adds the restricted Pod Security Standards checks.
	LevelRestricted
)

// ParseLevel parses "none", "baseline" or "restricted".
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return LevelBestPractice, nil
	case "baseline":
		return LevelBaseline, nil
	case "restricted":
		return LevelRestricted, nil
	default:
		return LevelBestPractice, fmt.Errorf("unknown security level %q, valid values: none, baseline, restricted", s)
	}
}

// Finding is a single audit result.
type Finding struct {
	RuleID      string   `json:"ruleId"`
	Severity    Severity `json:"-"`
	Object      string   `json:"object"`
	Kind        string   `json:"kind"`
	LogicalName string   `json:"logicalName,omitempty"`
	Message     string   `json:"message"`
	Remediation string   `json:"remediation"`
}

// findingFor returns a finding about obj.
func findingFor(id string, sev Severity, obj *k8s.Object, msg, remediation string) Finding {
	return Finding{
		RuleID:      id,
		Severity:    sev,
		Object:      objectRef(obj),
		Kind:        obj.Kind(),
		LogicalName: obj.LogicalName(),
		Message:     msg,
		Remediation: remediation,
	}
}

// objectRef returns "Kind/namespace/name", or "Kind/name" for objects
// without a namespace.
func objectRef(obj *k8s.Object) string {
	if ns := obj.Namespace(); ns != "" {
		return obj.Kind() + "/" + ns + "/" + obj.Name()
	}

	return obj.QualifiedName()
}

// Check is implemented by every audit rule.
type Check interface {
	ID() string
	Run(ctx context.Context, objs []*k8s.Object) []Finding
}

// Result aggregates the findings of all checks.
type Result struct {
	Findings []Finding
	Summary  map[string]int
	Ignored  int
}

// Passed reports whether no finding meets or exceeds threshold.
func (r *Result) Passed(threshold Severity) bool {
	for _, f := range r.Findings {
		if f.Severity >= threshold {
			return false
		}
	}

	return true
}

// Option configures an Auditor.
type Option func(*Auditor)

// WithIgnore suppresses findings of the given rule IDs.
func WithIgnore(ids ...string) Option {
	return func(a *Auditor) {
		for _, id := range ids {
			a.ignore = append(a.ignore, strings.ToUpper(strings.TrimSpace(id)))
		}
	}
}

// Auditor runs a set of checks.
type Auditor struct {
	checks []Check
	ignore []string
}

// New creates an Auditor with the given checks.
func New(checks []Check, opts ...Option) *Auditor {
	a := &Auditor{checks: checks}
	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Run executes every check. Findings are sorted by severity, highest
// first, then by rule ID and object.
func (a *Auditor) Run(ctx context.Context, objs []*k8s.Object) *Result {
	result := &Result{Summary: make(map[string]int)}

	for _, chk := range a.checks {
		if slices.Contains(a.ignore, strings.ToUpper(chk.ID())) {
			result.Ignored++
			continue
		}

		result.Findings = append(result.Findings, chk.Run(ctx, objs)...)
	}

	sort.SliceStable(result.Findings, func(i, j int) bool {
		fi, fj := result.Findings[i], result.Findings[j]
		if fi.Severity != fj.Severity {
			return fi.Severity > fj.Severity
		}

		if fi.RuleID != fj.RuleID {
			return fi.RuleID < fj.RuleID
		}

		return fi.Object < fj.Object
	})

	for _, f := range result.Findings {
		result.Summary[f.Severity.String()]++
	}

	return result
}

// DefaultChecks returns the built-in checks active at the given level.
func DefaultChecks(level Level) []Check {
	var checks []Check

	for _, rule := range builtinRules() {
		if rule.level <= level {
			checks = append(checks, rule.check)
		}
	}

	return checks
}
