package output_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/promstack/internal/k8s"
	"github.com/hupe1980/promstack/internal/output"
)

func configMap(t *testing.T, logical, name string) *k8s.Object {
	t.Helper()

	obj, err := k8s.NewObject(map[string]interface{}{
		"apiVersion": "v1",
		"kind":       "ConfigMap",
		"metadata": map[string]interface{}{
			"name":              name,
			"namespace":         "monitoring",
			"creationTimestamp": nil,
		},
		"data": map[string]interface{}{"key": "value"},
	}, logical, "test", "test")
	require.NoError(t, err)

	return obj
}

// failingDriver fails on the named file.
type failingDriver struct {
	*output.MemoryDriver
	failOn string
	err    error
}

func (d *failingDriver) Render(f output.File, content []byte) error {
	if f.Name == d.failOn {
		return d.err
	}

	return d.MemoryDriver.Render(f, content)
}

// finishingDriver records Finish calls.
type finishingDriver struct {
	*output.MemoryDriver
	finished int
}

func (d *finishingDriver) Finish() error {
	d.finished++

	return nil
}

// ---- Files ----

func TestProject_NewFile(t *testing.T) {
	p := output.NewProject()

	script, err := p.NewFile(output.KindShellScript, "create")
	require.NoError(t, err)
	assert.Equal(t, "create.sh", script.Name())
	assert.Equal(t, output.KindShellScript, script.Kind())

	manifests, err := p.NewFile(output.KindKubernetes, "stack")
	require.NoError(t, err)
	assert.Equal(t, "stack.yaml", manifests.Name())
	assert.NotEqual(t, script.ID(), manifests.ID())

	explicit, err := p.NewFile(output.KindKubernetes, "extra.yml")
	require.NoError(t, err)
	assert.Equal(t, "extra.yml", explicit.Name())

	dotted, err := p.NewFile(output.KindKubernetes, "stack.v2-config")
	require.NoError(t, err)
	assert.Equal(t, "stack.v2-config.yaml", dotted.Name())

	assert.Equal(t, []output.File{
		{ID: script.ID(), Kind: output.KindShellScript, Name: "create.sh"},
		{ID: manifests.ID(), Kind: output.KindKubernetes, Name: "stack.yaml"},
		{ID: explicit.ID(), Kind: output.KindKubernetes, Name: "extra.yml"},
		{ID: dotted.ID(), Kind: output.KindKubernetes, Name: "stack.v2-config.yaml"},
	}, p.Files())
}

func TestProject_NewFile_Extensions(t *testing.T) {
	tests := []struct {
		kind output.FileKind
		name string
		want string
	}{
		{output.KindKubernetes, "stack.v2", "stack.v2.yaml"},
		{output.KindKubernetes, "stack.JSON", "stack.JSON"},
		{output.KindKubernetes, "create.sh", "create.sh.yaml"},
		{output.KindShellScript, "create.v1", "create.v1.sh"},
		{output.KindShellScript, "create.yaml", "create.yaml.sh"},
		{output.KindShellScript, "create.sh", "create.sh"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := output.NewProject().NewFile(tt.kind, tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.want, h.Name())
		})
	}
}

func TestProject_NewFile_Invalid(t *testing.T) {
	p := output.NewProject()

	_, err := p.NewFile(output.KindKubernetes, "stack")
	require.NoError(t, err)

	tests := []struct {
		name    string
		file    string
		wantErr string
	}{
		{name: "empty", file: "  ", wantErr: "empty name"},
		{name: "duplicate", file: "stack.yaml", wantErr: "duplicate file name"},
		{name: "duplicate without extension", file: "stack", wantErr: "duplicate file name"},
		{name: "path separator", file: "sub/stack.yaml", wantErr: "path separators"},
		{name: "kustomization index", file: "kustomization", wantErr: "reserved"},
		{name: "checksum index", file: "checksums.txt", wantErr: "reserved"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.NewFile(output.KindKubernetes, tt.file)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestProject_AppendKindMismatch(t *testing.T) {
	p := output.NewProject()

	script, err := p.NewFile(output.KindShellScript, "create")
	require.NoError(t, err)

	manifests, err := p.NewFile(output.KindKubernetes, "stack")
	require.NoError(t, err)

	err = p.AppendObjects(script, configMap(t, "cm", "cm"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shell-script file")

	err = p.AppendLines(manifests, output.Literal("echo"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kubernetes file")

	other := output.NewProject()
	foreign, err := other.NewFile(output.KindKubernetes, "foreign")
	require.NoError(t, err)

	err = p.AppendObjects(foreign, configMap(t, "cm", "cm"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown file handle")
}

// ---- Output ----

func TestProject_ForwardReference(t *testing.T) {
	p := output.NewProject()

	f1, err := p.NewFile(output.KindShellScript, "create")
	require.NoError(t, err)

	f2, err := p.NewFile(output.KindKubernetes, "stack-config")
	require.NoError(t, err)

	// F2 is still empty when the script line referencing it is appended.
	require.NoError(t, p.AppendLines(f1, output.Literal("set -e"), output.Apply(f2)))
	require.NoError(t, p.AppendObjects(f2, configMap(t, "prometheus-config", "prometheus")))

	d := output.NewMemoryDriver()
	require.NoError(t, p.Output(d))

	assert.Equal(t, []string{"create.sh", "stack-config.yaml"}, d.Names())

	script, ok := d.File("create.sh")
	require.True(t, ok)
	assert.Equal(t, "#!/bin/sh\n\nset -e\nkubectl apply -f stack-config.yaml\n", string(script))

	manifest, ok := d.File("stack-config.yaml")
	require.True(t, ok)
	assert.Equal(t, "apiVersion: v1\ndata:\n  key: value\nkind: ConfigMap\nmetadata:\n  name: prometheus\n  namespace: monitoring\n", string(manifest))
}

func TestProject_ReferenceBeforeCreation(t *testing.T) {
	p := output.NewProject()

	script, err := p.NewFile(output.KindShellScript, "create")
	require.NoError(t, err)

	// The next id is allocated after the line is appended.
	require.NoError(t, p.AppendLines(script, output.NewLine(output.Text("kubectl apply -f "), output.FileRef{ID: script.ID() + 1})))

	later, err := p.NewFile(output.KindKubernetes, "later")
	require.NoError(t, err)
	require.Equal(t, script.ID()+1, later.ID())

	d := output.NewMemoryDriver()
	require.NoError(t, p.Output(d))

	content, _ := d.File("create.sh")
	assert.Contains(t, string(content), "kubectl apply -f later.yaml")
}

func TestProject_UnresolvedReference(t *testing.T) {
	p := output.NewProject()

	script, err := p.NewFile(output.KindShellScript, "create")
	require.NoError(t, err)
	require.NoError(t, p.AppendLines(script, output.NewLine(output.Text("kubectl apply -f "), output.FileRef{ID: 42})))

	d := output.NewMemoryDriver()
	err = p.Output(d)

	var unresolved *output.FileReferenceUnresolvedError
	require.ErrorAs(t, err, &unresolved)
	assert.Equal(t, 42, unresolved.ID)
	assert.Equal(t, "create.sh", unresolved.File)
	assert.Empty(t, d.Names(), "nothing is rendered when references fail")
}

func TestProject_OutputOnce(t *testing.T) {
	p := output.NewProject()

	h, err := p.NewFile(output.KindKubernetes, "stack")
	require.NoError(t, err)
	require.NoError(t, p.AppendObjects(h, configMap(t, "cm", "cm")))

	require.NoError(t, p.Output(output.NewMemoryDriver()))
	require.ErrorIs(t, p.Output(output.NewMemoryDriver()), output.ErrAlreadyOutput)
	require.ErrorIs(t, p.AppendObjects(h, configMap(t, "cm2", "cm2")), output.ErrAlreadyOutput)
}

func TestProject_DriverErrorPropagates(t *testing.T) {
	p := output.NewProject()

	for _, name := range []string{"a", "b", "c"} {
		_, err := p.NewFile(output.KindKubernetes, name)
		require.NoError(t, err)
	}

	sentinel := errors.New("disk full")
	d := &failingDriver{MemoryDriver: output.NewMemoryDriver(), failOn: "b.yaml", err: sentinel}

	err := p.Output(d)
	require.ErrorIs(t, err, sentinel)
	assert.Equal(t, sentinel, err, "driver errors are returned unchanged")
	assert.Equal(t, []string{"a.yaml"}, d.Names())
}

func TestProject_Finisher(t *testing.T) {
	p := output.NewProject()

	_, err := p.NewFile(output.KindKubernetes, "stack")
	require.NoError(t, err)

	d := &finishingDriver{MemoryDriver: output.NewMemoryDriver()}
	require.NoError(t, p.Output(d))
	assert.Equal(t, 1, d.finished)
}

func TestProject_WithRenames(t *testing.T) {
	p := output.NewProject(output.WithRenames(k8s.RenameTable{"prometheus-service": "prometheus"}))

	h, err := p.NewFile(output.KindKubernetes, "stack")
	require.NoError(t, err)

	require.NoError(t, p.AppendObjects(h,
		configMap(t, "prometheus-service", "prometheusstack-prometheus"),
		configMap(t, "grafana-service", "prometheusstack-grafana"),
	))

	objs := p.Objects(h)
	require.Len(t, objs, 2)
	assert.Equal(t, "prometheus", objs[0].Name())
	assert.Equal(t, "prometheusstack-grafana", objs[1].Name())

	require.Error(t, p.AppendObjects(h, nil))
}

func TestProject_EmptyFiles(t *testing.T) {
	p := output.NewProject()

	_, err := p.NewFile(output.KindKubernetes, "empty")
	require.NoError(t, err)

	_, err = p.NewFile(output.KindShellScript, "empty")
	require.NoError(t, err)

	d := output.NewMemoryDriver()
	require.NoError(t, p.Output(d))

	yaml, _ := d.File("empty.yaml")
	assert.Empty(t, yaml)

	script, _ := d.File("empty.sh")
	assert.Equal(t, "#!/bin/sh\n\n", string(script))
}
