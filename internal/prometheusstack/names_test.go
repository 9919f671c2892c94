package prometheusstack

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"prometheusstack-prometheus", "prometheusstack-prometheus"},
		{"My_Stack-grafana", "my-stack-grafana"},
		{"a..b--c", "a-b-c"},
		{"-lead-trail-", "lead-trail"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, sanitizeName(tt.in))
		})
	}
}

func TestDefaultNames(t *testing.T) {
	names := DefaultNames("mon")

	assert.Len(t, names, len(LogicalNames()))
	assert.Equal(t, "mon-prometheus", names[LogicalPrometheusService])
	assert.Equal(t, "mon-prometheus-config", names[LogicalPrometheusConfig])
	assert.Equal(t, "mon-grafana-config-secret", names[LogicalGrafanaConfigSecret])
	assert.Equal(t, "mon-kube-state-metrics", names[LogicalKubeStateMetricsDeployment])
	assert.Equal(t, "mon-node-exporter", names[LogicalNodeExporterService])
	assert.Equal(t, "mon-grafana-data", names[LogicalGrafanaStorageClaim])
}

func TestObjectName_Truncates(t *testing.T) {
	name := objectName(strings.Repeat("a", 60), "prometheus")

	assert.LessOrEqual(t, len(name), maxNameLength)
	assert.False(t, strings.HasSuffix(name, "-"))
}
