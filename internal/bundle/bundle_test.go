package bundle

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/promstack/internal/config"
	"github.com/hupe1980/promstack/internal/output"
	"github.com/hupe1980/promstack/internal/prometheusstack"
)

func parseProject(t *testing.T, data string) *config.Project {
	t.Helper()

	p, err := config.ParseProject([]byte(data))
	require.NoError(t, err)

	return p
}

func render(t *testing.T, b *Bundle) *output.MemoryDriver {
	t.Helper()

	d := output.NewMemoryDriver()
	require.NoError(t, b.Output(d))

	return d
}

func fileContent(t *testing.T, d *output.MemoryDriver, name string) string {
	t.Helper()

	data, ok := d.File(name)
	require.True(t, ok, "missing file %s", name)

	return string(data)
}

// ---------------------------------------------------------------------------
// Layout
// ---------------------------------------------------------------------------

func TestAssemble_Defaults(t *testing.T) {
	b, err := Assemble(context.Background(), config.NewProject())
	require.NoError(t, err)

	d := render(t, b)
	assert.Equal(t, []string{"create.sh", "prometheus-stack-config.yaml", "prometheus-stack.yaml"}, d.Names())

	assert.Equal(t, `#!/bin/sh

set -e
kubectl apply -f prometheus-stack-config.yaml
kubectl apply -f prometheus-stack.yaml
`, fileContent(t, d, "create.sh"))

	cfg := fileContent(t, d, "prometheus-stack-config.yaml")
	assert.Contains(t, cfg, "kind: ClusterRoleBinding")
	assert.Contains(t, cfg, "kind: ConfigMap")
	assert.NotContains(t, cfg, "kind: StatefulSet")

	svc := fileContent(t, d, "prometheus-stack.yaml")
	assert.Contains(t, svc, "kind: StatefulSet")
	assert.Contains(t, svc, "kind: DaemonSet")
	assert.NotContains(t, svc, "creationTimestamp")

	state := b.Stack().State()
	assert.True(t, state.Built(prometheusstack.BuildStorage), "storage is built even when it produces nothing")
}

func TestAssemble_FullProject(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ingress.yaml"), []byte(`apiVersion: networking.k8s.io/v1
kind: Ingress
metadata:
  name: grafana
---
apiVersion: v1
kind: Namespace
metadata:
  name: other
`), 0o600))

	projectFile := filepath.Join(dir, config.DefaultProjectFile)
	require.NoError(t, os.WriteFile(projectFile, []byte(`
provider: kind
root:
  namespaces:
    mon: observability
stack:
  basename: myprom
  namespace: !root namespaces.mon
  kubernetes:
    storage:
      prometheus-data:
        size: 10Gi
renames:
  prometheus-service: prometheus
bundle:
  prefix: mon
  namespace: true
  set_context: true
extra:
  - ingress.yaml
`), 0o600))

	proj, err := config.LoadProject(projectFile)
	require.NoError(t, err)

	b, err := Assemble(context.Background(), proj)
	require.NoError(t, err)

	d := render(t, b)
	assert.Equal(t, []string{
		"create.sh",
		"mon-namespace.yaml",
		"mon-config.yaml",
		"mon-storage.yaml",
		"mon.yaml",
		"mon-extra.yaml",
	}, d.Names())

	assert.Equal(t, `#!/bin/sh

set -e
kubectl apply -f mon-namespace.yaml
kubectl config set-context --current --namespace=observability
kubectl apply -f mon-config.yaml
kubectl apply -f mon-storage.yaml
kubectl apply -f mon.yaml
kubectl apply -f mon-extra.yaml
`, fileContent(t, d, "create.sh"))

	ns := fileContent(t, d, "mon-namespace.yaml")
	assert.True(t, strings.HasPrefix(ns, "apiVersion: v1\nkind: Namespace\nmetadata:\n"), ns)
	assert.Contains(t, ns, "app.kubernetes.io/managed-by: promstack")
	assert.Contains(t, ns, "name: observability")
	assert.NotContains(t, ns, "status")

	storage := fileContent(t, d, "mon-storage.yaml")
	assert.Contains(t, storage, "storageClassName: standard")

	svc := fileContent(t, d, "mon.yaml")
	assert.Contains(t, svc, "name: prometheus\n")
	assert.Contains(t, svc, "claimName: myprom-prometheus-data")

	byName := make(map[string]string)
	for _, obj := range b.Objects() {
		byName[obj.LogicalName()] = obj.Namespace()
	}

	assert.Equal(t, "observability", byName["ingress-grafana"], "extra objects join the stack namespace")
	assert.Empty(t, byName["namespace-other"], "cluster-scoped extra objects stay unnamespaced")
	assert.Equal(t, "observability", byName["prometheus-service"])
}

func TestAssemble_StorageDisabled(t *testing.T) {
	proj := parseProject(t, `
stack:
  kubernetes:
    storage:
      prometheus-data:
        size: 10Gi
bundle:
  storage: false
`)

	b, err := Assemble(context.Background(), proj)
	require.NoError(t, err)

	assert.False(t, b.Stack().State().Built(prometheusstack.BuildStorage))

	d := render(t, b)
	assert.NotContains(t, d.Names(), "prometheus-stack-storage.yaml")
}

func TestAssemble_DirectoryDriverPaths(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "my bundle")

	b, err := Assemble(context.Background(), config.NewProject())
	require.NoError(t, err)

	require.NoError(t, b.Output(output.NewDirectoryDriver(dir)))

	script, err := os.ReadFile(filepath.Join(dir, "create.sh")) //nolint:gosec // test
	require.NoError(t, err)

	quoted := "'" + filepath.Join(dir, "prometheus-stack.yaml") + "'"
	assert.True(t, strings.Contains(string(script), "kubectl apply -f "+quoted), string(script))
}

func TestAssemble_ApplySets(t *testing.T) {
	proj := config.NewProject()
	require.NoError(t, proj.ApplySets([]string{"enable.grafana=false", "enable.nodeexporter=false"}))

	b, err := Assemble(context.Background(), proj)
	require.NoError(t, err)

	for _, obj := range b.Objects() {
		assert.NotContains(t, obj.LogicalName(), "grafana")
		assert.NotContains(t, obj.LogicalName(), "node-exporter")
	}
}

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

func TestAssemble_Errors(t *testing.T) {
	tests := []struct {
		name    string
		project string
		opts    []Option
		wantErr string
	}{
		{
			name:    "invalid provider",
			project: "provider: a/b/c\n",
			wantErr: "invalid provider",
		},
		{
			name:    "invalid default provider",
			project: "",
			opts:    []Option{WithDefaultProvider("x/y/z")},
			wantErr: "invalid provider",
		},
		{
			name:    "invalid rename",
			project: "renames:\n  prometheus-service: Not_Valid\n",
			wantErr: "invalid rename",
		},
		{
			name:    "invalid namespace",
			project: "stack:\n  namespace: Bad_NS\n",
			wantErr: "invalid namespace",
		},
		{
			name:    "missing root reference",
			project: "stack:\n  namespace: !root namespaces.mon\n",
			wantErr: "namespaces.mon",
		},
		{
			name:    "missing extra file",
			project: "extra:\n  - /does/not/exist.yaml\n",
			wantErr: "reading extra manifest",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Assemble(context.Background(), parseProject(t, tt.project), tt.opts...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestAssemble_DuplicateExtraObjects(t *testing.T) {
	dir := t.TempDir()

	doc := []byte("apiVersion: v1\nkind: ConfigMap\nmetadata:\n  name: shared\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), doc, 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yaml"), doc, 0o600))

	proj := config.NewProject()
	proj.Dir = dir
	proj.Extra = []string{"a.yaml", "b.yaml"}

	_, err := Assemble(context.Background(), proj)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ConfigMap/shared already defined")
}

func TestAssemble_OutputOnce(t *testing.T) {
	b, err := Assemble(context.Background(), config.NewProject())
	require.NoError(t, err)

	render(t, b)
	assert.ErrorIs(t, b.Output(output.NewMemoryDriver()), output.ErrAlreadyOutput)
}

func TestBundle_ManifestFiles(t *testing.T) {
	b, err := Assemble(context.Background(), config.NewProject())
	require.NoError(t, err)

	files := b.ManifestFiles()
	require.Len(t, files, 2)
	assert.Equal(t, "prometheus-stack-config.yaml", files[0].Name())
	assert.Equal(t, output.KindShellScript, b.Script().Kind())

}
