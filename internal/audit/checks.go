package audit

import (
	"context"
	"fmt"
	"sort"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/hupe1980/promstack/internal/k8s"
)

// note is a finding before it is attributed to an object.
type note struct {
	message     string
	remediation string
}

// podSpecOf returns the pod template spec of a workload, or nil.
func podSpecOf(obj *k8s.Object) map[string]interface{} {
	if !k8s.IsWorkload(obj.GVK()) {
		return nil
	}

	path := []string{"spec", "template", "spec"}
	if obj.Kind() == "CronJob" {
		path = []string{"spec", "jobTemplate", "spec", "template", "spec"}
	}

	spec, found, err := unstructured.NestedMap(obj.Document(), path...)
	if err != nil || !found {
		return nil
	}

	return spec
}

func containersOf(podSpec map[string]interface{}, key string) []map[string]interface{} {
	list, _ := podSpec[key].([]interface{})

	out := make([]map[string]interface{}, 0, len(list))
	for _, c := range list {
		if m, ok := c.(map[string]interface{}); ok {
			out = append(out, m)
		}
	}

	return out
}

// allContainers returns containers followed by initContainers.
func allContainers(podSpec map[string]interface{}) []map[string]interface{} {
	return append(containersOf(podSpec, "containers"), containersOf(podSpec, "initContainers")...)
}

func containerName(c map[string]interface{}, index int) string {
	if name, ok := c["name"].(string); ok && name != "" {
		return name
	}

	return fmt.Sprintf("[%d]", index)
}

func securityContext(m map[string]interface{}) map[string]interface{} {
	sc, _ := m["securityContext"].(map[string]interface{})

	return sc
}

// containerCheck evaluates every container of every workload.
type containerCheck struct {
	id       string
	severity Severity
	// mainOnly skips init containers.
	mainOnly bool
	eval     func(podSpec, container map[string]interface{}, name string) []note
}

func (c *containerCheck) ID() string { return c.id }

func (c *containerCheck) Run(_ context.Context, objs []*k8s.Object) []Finding {
	var findings []Finding

	for _, obj := range objs {
		podSpec := podSpecOf(obj)
		if podSpec == nil {
			continue
		}

		containers := allContainers(podSpec)
		if c.mainOnly {
			containers = containersOf(podSpec, "containers")
		}

		for i, container := range containers {
			for _, n := range c.eval(podSpec, container, containerName(container, i)) {
				findings = append(findings, findingFor(c.id, c.severity, obj, n.message, n.remediation))
			}
		}
	}

	return findings
}

// podCheck evaluates the pod spec of every workload.
type podCheck struct {
	id       string
	severity Severity
	eval     func(podSpec map[string]interface{}) []note
}

func (c *podCheck) ID() string { return c.id }

func (c *podCheck) Run(_ context.Context, objs []*k8s.Object) []Finding {
	var findings []Finding

	for _, obj := range objs {
		podSpec := podSpecOf(obj)
		if podSpec == nil {
			continue
		}

		for _, n := range c.eval(podSpec) {
			findings = append(findings, findingFor(c.id, c.severity, obj, n.message, n.remediation))
		}
	}

	return findings
}

// kindCheck evaluates every object of one kind.
type kindCheck struct {
	id       string
	severity Severity
	kind     string
	eval     func(obj *k8s.Object) []note
}

func (c *kindCheck) ID() string { return c.id }

func (c *kindCheck) Run(_ context.Context, objs []*k8s.Object) []Finding {
	var findings []Finding

	for _, obj := range objs {
		if obj.Kind() != c.kind {
			continue
		}

		for _, n := range c.eval(obj) {
			findings = append(findings, findingFor(c.id, c.severity, obj, n.message, n.remediation))
		}
	}

	return findings
}

// networkPolicyCheck flags bundles with workloads but no NetworkPolicy.
type networkPolicyCheck struct{}

func (c *networkPolicyCheck) ID() string { return "SEC-007" }

func (c *networkPolicyCheck) Run(_ context.Context, objs []*k8s.Object) []Finding {
	var workloads int

	for _, obj := range objs {
		if obj.Kind() == "NetworkPolicy" {
			return nil
		}

		if k8s.IsWorkload(obj.GVK()) {
			workloads++
		}
	}

	if workloads == 0 {
		return nil
	}

	return []Finding{{
		RuleID:      c.ID(),
		Severity:    SeverityMedium,
		Object:      "(bundle)",
		Message:     fmt.Sprintf("no NetworkPolicy restricts the %d workload(s) of the bundle", workloads),
		Remediation: "Add NetworkPolicy objects to the bundle as extra manifests",
	}}
}

var dangerousCapabilities = map[string]bool{
	"SYS_ADMIN":       true,
	"NET_ADMIN":       true,
	"SYS_PTRACE":      true,
	"SYS_RAWIO":       true,
	"SYS_MODULE":      true,
	"SYS_BOOT":        true,
	"DAC_READ_SEARCH": true,
	"NET_RAW":         true,
	"MKNOD":           true,
	"ALL":             true,
}

type rule struct {
	check Check
	level Level
}

func builtinRules() []rule {
	return []rule{
		{runAsRoot(), LevelBaseline},
		{privileged(), LevelBaseline},
		{hostNamespaces(), LevelBaseline},
		{capabilities(), LevelBaseline},
		{hostPathVolumes(), LevelBaseline},

		{readOnlyRootFS(), LevelRestricted},
		{seccompProfile(), LevelRestricted},

		{resourceLimits(), LevelBestPractice},
		{latestTag(), LevelBestPractice},
		{&networkPolicyCheck{}, LevelBestPractice},
		{broadSelector(), LevelBestPractice},
		{probes(), LevelBestPractice},
		{ingressTLS(), LevelBestPractice},
	}
}

func runAsRoot() Check {
	return &containerCheck{id: "SEC-001", severity: SeverityCritical, eval: func(podSpec, c map[string]interface{}, name string) []note {
		if runsAsNonRoot(podSpec, c) {
			return nil
		}

		return []note{{
			message:     fmt.Sprintf("container %s does not set runAsNonRoot: true", name),
			remediation: "Set runAsNonRoot to true in the pod or container securityContext",
		}}
	}}
}

func runsAsNonRoot(podSpec, c map[string]interface{}) bool {
	if v, ok := securityContext(c)["runAsNonRoot"].(bool); ok {
		return v
	}

	v, _ := securityContext(podSpec)["runAsNonRoot"].(bool)

	return v
}

func privileged() Check {
	return &containerCheck{id: "SEC-002", severity: SeverityCritical, eval: func(_, c map[string]interface{}, name string) []note {
		if !isPrivileged(c) {
			return nil
		}

		return []note{{
			message:     fmt.Sprintf("container %s is privileged", name),
			remediation: "Set securityContext.privileged to false or remove it",
		}}
	}}
}

func isPrivileged(c map[string]interface{}) bool {
	v, _ := securityContext(c)["privileged"].(bool)

	return v
}

func resourceLimits() Check {
	return &containerCheck{id: "SEC-003", severity: SeverityHigh, eval: func(_, c map[string]interface{}, name string) []note {
		if hasLimits(c) {
			return nil
		}

		return []note{{
			message:     fmt.Sprintf("container %s has no resource limits defined", name),
			remediation: "Set kubernetes.resources.<logical-name>.limits in the stack options",
		}}
	}}
}

func hasLimits(c map[string]interface{}) bool {
	limits, _, _ := unstructured.NestedMap(c, "resources", "limits")

	return len(limits) > 0
}

func latestTag() Check {
	return &containerCheck{id: "SEC-004", severity: SeverityHigh, eval: func(_, c map[string]interface{}, name string) []note {
		image, _ := c["image"].(string)
		if !k8s.HasLatestTag(image) {
			return nil
		}

		return []note{{
			message:     fmt.Sprintf("container %s uses the latest tag (%s)", name, image),
			remediation: "Pin the image to a version tag or sha256 digest",
		}}
	}}
}

func hostNamespaces() Check {
	fields := []struct{ key, desc string }{
		{"hostNetwork", "host networking"},
		{"hostPID", "host PID namespace"},
		{"hostIPC", "host IPC namespace"},
	}

	return &podCheck{id: "SEC-005", severity: SeverityHigh, eval: func(podSpec map[string]interface{}) []note {
		var notes []note

		for _, f := range fields {
			if v, _ := podSpec[f.key].(bool); v {
				notes = append(notes, note{
					message:     f.desc + " is enabled",
					remediation: fmt.Sprintf("Set %s to false unless the component needs host access", f.key),
				})
			}
		}

		return notes
	}}
}

func readOnlyRootFS() Check {
	return &containerCheck{id: "SEC-006", severity: SeverityMedium, eval: func(_, c map[string]interface{}, name string) []note {
		if v, _ := securityContext(c)["readOnlyRootFilesystem"].(bool); v {
			return nil
		}

		return []note{{
			message:     fmt.Sprintf("container %s does not set readOnlyRootFilesystem: true", name),
			remediation: "Set securityContext.readOnlyRootFilesystem to true",
		}}
	}}
}

func capabilities() Check {
	return &containerCheck{id: "SEC-008", severity: SeverityMedium, eval: func(_, c map[string]interface{}, name string) []note {
		added, _, _ := unstructured.NestedStringSlice(c, "securityContext", "capabilities", "add")

		var notes []note

		for _, capability := range added {
			if dangerousCapabilities[capability] {
				notes = append(notes, note{
					message:     fmt.Sprintf("container %s adds dangerous capability %s", name, capability),
					remediation: fmt.Sprintf("Remove %s from securityContext.capabilities.add", capability),
				})
			}
		}

		return notes
	}}
}

func broadSelector() Check {
	return &kindCheck{id: "SEC-009", severity: SeverityLow, kind: "Service", eval: func(obj *k8s.Object) []note {
		doc := obj.Document()
		if t, _, _ := unstructured.NestedString(doc, "spec", "type"); t == "ExternalName" {
			return nil
		}

		selector, _, _ := unstructured.NestedStringMap(doc, "spec", "selector")
		if len(selector) >= 2 {
			return nil
		}

		return []note{{
			message:     fmt.Sprintf("service selector has %d label(s), consider at least 2", len(selector)),
			remediation: "Select pods by name and component labels",
		}}
	}}
}

func probes() Check {
	return &containerCheck{id: "SEC-010", severity: SeverityLow, mainOnly: true, eval: func(_, c map[string]interface{}, name string) []note {
		var notes []note

		for _, probe := range []string{"livenessProbe", "readinessProbe"} {
			if _, ok := c[probe]; !ok {
				notes = append(notes, note{
					message:     fmt.Sprintf("container %s has no %s", name, probe),
					remediation: "Add " + probe + " to the container",
				})
			}
		}

		return notes
	}}
}

func ingressTLS() Check {
	return &kindCheck{id: "SEC-011", severity: SeverityInfo, kind: "Ingress", eval: func(obj *k8s.Object) []note {
		if tls, found, _ := unstructured.NestedSlice(obj.Document(), "spec", "tls"); found && len(tls) > 0 {
			return nil
		}

		return []note{{
			message:     "ingress has no TLS configuration",
			remediation: "Add spec.tls with a secret and hosts list",
		}}
	}}
}

func seccompProfile() Check {
	return &containerCheck{id: "SEC-012", severity: SeverityInfo, eval: func(podSpec, c map[string]interface{}, name string) []note {
		if hasSeccomp(podSpec, c) {
			return nil
		}

		return []note{{
			message:     fmt.Sprintf("container %s has no seccomp profile set", name),
			remediation: "Set securityContext.seccompProfile.type to RuntimeDefault",
		}}
	}}
}

func hasSeccomp(podSpec, c map[string]interface{}) bool {
	_, pod := securityContext(podSpec)["seccompProfile"]
	_, container := securityContext(c)["seccompProfile"]

	return pod || container
}

func hostPathVolumes() Check {
	return &podCheck{id: "SEC-013", severity: SeverityMedium, eval: func(podSpec map[string]interface{}) []note {
		var notes []note

		for _, path := range hostPaths(podSpec) {
			notes = append(notes, note{
				message:     fmt.Sprintf("volume mounts host path %s", path),
				remediation: "Replace hostPath volumes unless the component reads host state",
			})
		}

		return notes
	}}
}

func hostPaths(podSpec map[string]interface{}) []string {
	volumes, _ := podSpec["volumes"].([]interface{})

	var paths []string

	for _, v := range volumes {
		vol, _ := v.(map[string]interface{})
		if p, found, _ := unstructured.NestedString(vol, "hostPath", "path"); found {
			paths = append(paths, p)
		}
	}

	return paths
}

// RuleIDs returns the IDs of the built-in rules, sorted.
func RuleIDs() []string {
	rules := builtinRules()
	ids := make([]string, len(rules))

	for i, r := range rules {
		ids[i] = r.check.ID()
	}

	sort.Strings(ids)

	return ids
}
