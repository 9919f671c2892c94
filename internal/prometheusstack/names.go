package prometheusstack

import (
	"regexp"
	"strings"
)

// Logical object names. Renames are keyed by these identifiers.
const (
	LogicalPrometheusServiceAccount     = "prometheus-service-account"
	LogicalPrometheusClusterRole        = "prometheus-cluster-role"
	LogicalPrometheusClusterRoleBinding = "prometheus-cluster-role-binding"
	LogicalPrometheusConfig             = "prometheus-config"
	LogicalPrometheusStatefulSet        = "prometheus-statefulset"
	LogicalPrometheusService            = "prometheus-service"
	LogicalPrometheusStorageClaim       = "prometheus-storage-claim"

	LogicalGrafanaConfig       = "grafana-config"
	LogicalGrafanaConfigSecret = "grafana-config-secret"
	LogicalGrafanaDeployment   = "grafana-deployment"
	LogicalGrafanaService      = "grafana-service"
	LogicalGrafanaStorageClaim = "grafana-storage-claim"

	LogicalKubeStateMetricsServiceAccount     = "kube-state-metrics-service-account"
	LogicalKubeStateMetricsClusterRole        = "kube-state-metrics-cluster-role"
	LogicalKubeStateMetricsClusterRoleBinding = "kube-state-metrics-cluster-role-binding"
	LogicalKubeStateMetricsDeployment         = "kube-state-metrics-deployment"
	LogicalKubeStateMetricsService            = "kube-state-metrics-service"

	LogicalNodeExporterDaemonSet = "node-exporter-daemonset"
	LogicalNodeExporterService   = "node-exporter-service"
)

// nameSuffixes maps every logical name to the suffix appended to the
// basename to form its default object name.
var nameSuffixes = map[string]string{
	LogicalPrometheusServiceAccount:     "prometheus",
	LogicalPrometheusClusterRole:        "prometheus",
	LogicalPrometheusClusterRoleBinding: "prometheus",
	LogicalPrometheusConfig:             "prometheus-config",
	LogicalPrometheusStatefulSet:        "prometheus",
	LogicalPrometheusService:            "prometheus",
	LogicalPrometheusStorageClaim:       "prometheus-data",

	LogicalGrafanaConfig:       "grafana-config",
	LogicalGrafanaConfigSecret: "grafana-config-secret",
	LogicalGrafanaDeployment:   "grafana",
	LogicalGrafanaService:      "grafana",
	LogicalGrafanaStorageClaim: "grafana-data",

	LogicalKubeStateMetricsServiceAccount:     "kube-state-metrics",
	LogicalKubeStateMetricsClusterRole:        "kube-state-metrics",
	LogicalKubeStateMetricsClusterRoleBinding: "kube-state-metrics",
	LogicalKubeStateMetricsDeployment:         "kube-state-metrics",
	LogicalKubeStateMetricsService:            "kube-state-metrics",

	LogicalNodeExporterDaemonSet: "node-exporter",
	LogicalNodeExporterService:   "node-exporter",
}

// maxNameLength is the DNS-1123 label limit that Service names must honor.
const maxNameLength = 63

// nameSanitizer matches characters that are not valid in object names.
var nameSanitizer = regexp.MustCompile(`[^a-z0-9-]`)

// DefaultNames returns the default object name of every logical name for
// the given basename.
func DefaultNames(basename string) map[string]string {
	names := make(map[string]string, len(nameSuffixes))

	for logical, suffix := range nameSuffixes {
		names[logical] = objectName(basename, suffix)
	}

	return names
}

// LogicalNames returns all logical names the stack may emit.
func LogicalNames() []string {
	names := make([]string, 0, len(nameSuffixes))
	for logical := range nameSuffixes {
		names = append(names, logical)
	}

	return names
}

// objectName joins basename and suffix into a valid object name.
func objectName(basename, suffix string) string {
	name := sanitizeName(basename + "-" + suffix)
	if len(name) > maxNameLength {
		name = strings.TrimRight(name[:maxNameLength], "-")
	}

	return name
}

// sanitizeName lowercases and replaces invalid characters with hyphens,
// collapsing consecutive hyphens and trimming leading/trailing ones.
func sanitizeName(s string) string {
	s = strings.ToLower(s)
	s = nameSanitizer.ReplaceAllString(s, "-")

	for strings.Contains(s, "--") {
		s = strings.ReplaceAll(s, "--", "-")
	}

	return strings.Trim(s, "-")
}
