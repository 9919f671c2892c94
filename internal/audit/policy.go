package audit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/promstack/internal/k8s"
)

// PolicyFile is a set of custom rules.
type PolicyFile struct {
	Rules []PolicyRule `yaml:"rules"`
}

// PolicyRule flags objects matching a named condition.
type PolicyRule struct {
	ID          string      `yaml:"id"`
	Severity    string      `yaml:"severity"`
	Match       PolicyMatch `yaml:"match"`
	Condition   string      `yaml:"condition"`
	Message     string      `yaml:"message"`
	Remediation string      `yaml:"remediation"`
}

// PolicyMatch restricts a rule to objects of one kind, one logical name,
// or both.
type PolicyMatch struct {
	Kind        string `yaml:"kind"`
	LogicalName string `yaml:"logicalName"`
}

// conditions maps condition names to pod spec predicates.
var conditions = map[string]func(podSpec map[string]interface{}) bool{
	"no liveness probe": func(ps map[string]interface{}) bool {
		return anyContainer(containersOf(ps, "containers"), func(c map[string]interface{}) bool { return c["livenessProbe"] == nil })
	},
	"no readiness probe": func(ps map[string]interface{}) bool {
		return anyContainer(containersOf(ps, "containers"), func(c map[string]interface{}) bool { return c["readinessProbe"] == nil })
	},
	"no resource limits": func(ps map[string]interface{}) bool {
		return anyContainer(allContainers(ps), func(c map[string]interface{}) bool { return !hasLimits(c) })
	},
	"uses latest tag": func(ps map[string]interface{}) bool {
		return anyContainer(allContainers(ps), func(c map[string]interface{}) bool {
			image, _ := c["image"].(string)
			return k8s.HasLatestTag(image)
		})
	},
	"privileged": func(ps map[string]interface{}) bool {
		return anyContainer(allContainers(ps), isPrivileged)
	},
	"runs as root": func(ps map[string]interface{}) bool {
		return anyContainer(allContainers(ps), func(c map[string]interface{}) bool { return !runsAsNonRoot(ps, c) })
	},
	"host networking": func(ps map[string]interface{}) bool {
		v, _ := ps["hostNetwork"].(bool)
		return v
	},
	"host path volume": func(ps map[string]interface{}) bool {
		return len(hostPaths(ps)) > 0
	},
	"no seccomp profile": func(ps map[string]interface{}) bool {
		return anyContainer(allContainers(ps), func(c map[string]interface{}) bool { return !hasSeccomp(ps, c) })
	},
}

func anyContainer(containers []map[string]interface{}, pred func(map[string]interface{}) bool) bool {
	return slices.ContainsFunc(containers, pred)
}

// Conditions returns the supported condition names, sorted.
func Conditions() []string {
	names := make([]string, 0, len(conditions))
	for name := range conditions {
		names = append(names, name)
	}

	slices.Sort(names)

	return names
}

// ParsePolicy decodes and validates a policy document. Unknown keys are
// rejected.
func ParsePolicy(data []byte) (*PolicyFile, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var pf PolicyFile
	if err := dec.Decode(&pf); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	seen := make(map[string]bool, len(pf.Rules))

	for i, r := range pf.Rules {
		if r.ID == "" {
			return nil, fmt.Errorf("rule %d: missing id", i)
		}

		if seen[r.ID] {
			return nil, fmt.Errorf("rule %s: duplicate id", r.ID)
		}

		seen[r.ID] = true

		if r.Message == "" {
			return nil, fmt.Errorf("rule %s: missing message", r.ID)
		}

		if _, err := ParseSeverity(r.Severity); r.Severity != "" && err != nil {
			return nil, fmt.Errorf("rule %s: %w", r.ID, err)
		}

		if _, ok := conditions[normalizeCondition(r.Condition)]; !ok {
			return nil, fmt.Errorf("rule %s: unknown condition %q; supported: %s",
				r.ID, r.Condition, strings.Join(Conditions(), ", "))
		}
	}

	return &pf, nil
}

// LoadPolicyFile reads and parses a policy file.
func LoadPolicyFile(path string) (*PolicyFile, error) {
	data, err := os.ReadFile(path) //nolint:gosec // user-provided policy path
	if err != nil {
		return nil, fmt.Errorf("reading policy file: %w", err)
	}

	pf, err := ParsePolicy(data)
	if err != nil {
		return nil, fmt.Errorf("policy file %s: %w", path, err)
	}

	return pf, nil
}

// Checks converts the rules into checks.
func (pf *PolicyFile) Checks() []Check {
	checks := make([]Check, 0, len(pf.Rules))
	for _, r := range pf.Rules {
		checks = append(checks, &policyCheck{rule: r})
	}

	return checks
}

func normalizeCondition(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

type policyCheck struct {
	rule PolicyRule
}

func (c *policyCheck) ID() string { return c.rule.ID }

func (c *policyCheck) Run(_ context.Context, objs []*k8s.Object) []Finding {
	sev, _ := ParseSeverity(c.rule.Severity)
	cond := conditions[normalizeCondition(c.rule.Condition)]

	var findings []Finding

	for _, obj := range objs {
		if c.rule.Match.Kind != "" && obj.Kind() != c.rule.Match.Kind {
			continue
		}

		if c.rule.Match.LogicalName != "" && obj.LogicalName() != c.rule.Match.LogicalName {
			continue
		}

		podSpec := podSpecOf(obj)
		if podSpec == nil || !cond(podSpec) {
			continue
		}

		findings = append(findings, findingFor(c.rule.ID, sev, obj, c.rule.Message, c.rule.Remediation))
	}

	return findings
}
