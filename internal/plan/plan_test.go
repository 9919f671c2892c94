package plan

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/promstack/internal/output"
)

const (
	configMapA = "apiVersion: v1\nkind: ConfigMap\nmetadata:\n  name: a\n  namespace: mon\ndata:\n  k: v\n"
	configMapB = "apiVersion: v1\nkind: ConfigMap\nmetadata:\n  name: b\n  namespace: mon\n"
	serviceA   = "apiVersion: v1\nkind: Service\nmetadata:\n  name: a\n  namespace: mon\n"
)

func generated(t *testing.T, files ...output.File) *output.MemoryDriver {
	t.Helper()

	return generatedWith(t, map[string]string{}, files...)
}

func generatedWith(t *testing.T, content map[string]string, files ...output.File) *output.MemoryDriver {
	t.Helper()

	d := output.NewMemoryDriver()
	for _, f := range files {
		require.NoError(t, d.Render(f, []byte(content[f.Name])))
	}

	return d
}

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()

	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
	}
}

// ---------------------------------------------------------------------------
// Compare
// ---------------------------------------------------------------------------

func TestCompare_Unchanged(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"stack.yaml":                 configMapA,
		"create.sh":                  "#!/bin/sh\n",
		output.ChecksumFileName:      "abc  stack.yaml\n",
		output.KustomizationFileName: "resources: []\n",
		"notes.txt":                  "ignored\n",
	})

	d := generatedWith(t, map[string]string{"stack.yaml": configMapA, "create.sh": "#!/bin/sh\n"},
		output.File{Kind: output.KindShellScript, Name: "create.sh"},
		output.File{Kind: output.KindKubernetes, Name: "stack.yaml"},
	)

	result, err := Compare(context.Background(), dir, d, DefaultDiffOptions())
	require.NoError(t, err)
	assert.False(t, result.HasChanges())
	assert.Equal(t, 2, result.Unchanged)
	assert.Empty(t, result.Objects)

	var buf bytes.Buffer
	FormatText(&buf, result, false)
	assert.Equal(t, "No differences found in "+dir+".\n", buf.String())
}

func TestCompare_Changes(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"stack.yaml": configMapA + "---\n" + configMapB,
		"old.yaml":   serviceA,
		"create.sh":  "#!/bin/sh\n",
	})

	modifiedA := "apiVersion: v1\nkind: ConfigMap\nmetadata:\n  name: a\n  namespace: mon\ndata:\n  k: changed\n"

	d := generatedWith(t, map[string]string{
		"create.sh":  "#!/bin/sh\n",
		"stack.yaml": modifiedA,
		"new.yaml":   serviceA,
	},
		output.File{Kind: output.KindShellScript, Name: "create.sh"},
		output.File{Kind: output.KindKubernetes, Name: "stack.yaml"},
		output.File{Kind: output.KindKubernetes, Name: "new.yaml"},
	)

	result, err := Compare(context.Background(), dir, d, DefaultDiffOptions())
	require.NoError(t, err)
	require.True(t, result.HasChanges())
	assert.Equal(t, 1, result.Unchanged)

	require.Len(t, result.Files, 3)
	assert.Equal(t, FileChange{Name: "stack.yaml", Type: ChangeModified, Diff: result.Files[0].Diff}, result.Files[0])
	assert.Equal(t, "new.yaml", result.Files[1].Name)
	assert.Equal(t, ChangeAdded, result.Files[1].Type)
	assert.Equal(t, "old.yaml", result.Files[2].Name)
	assert.Equal(t, ChangeRemoved, result.Files[2].Type)

	// The service moved from old.yaml to new.yaml unchanged.
	assert.Equal(t, []ObjectChange{
		{Type: ChangeRemoved, Kind: "ConfigMap", Namespace: "mon", Name: "b", File: "stack.yaml"},
		{Type: ChangeModified, Kind: "ConfigMap", Namespace: "mon", Name: "a", File: "stack.yaml"},
	}, result.Objects)

	var buf bytes.Buffer
	FormatText(&buf, result, false)

	out := buf.String()
	assert.Contains(t, out, "-  k: v")
	assert.Contains(t, out, "+  k: changed")
	assert.Contains(t, out, "Files: 1 added, 1 removed, 1 modified, 1 unchanged")
	assert.Contains(t, out, "  + new.yaml\n")
	assert.Contains(t, out, "Objects: 0 added, 1 removed, 1 modified")
	assert.Contains(t, out, "  - ConfigMap/mon/b (stack.yaml)\n")
}

func TestCompare_MissingDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "missing")

	d := generatedWith(t, map[string]string{"stack.yaml": serviceA},
		output.File{Kind: output.KindKubernetes, Name: "stack.yaml"},
	)

	result, err := Compare(context.Background(), dir, d, DefaultDiffOptions())
	require.NoError(t, err)
	require.Len(t, result.Files, 1)
	assert.Equal(t, ChangeAdded, result.Files[0].Type)
	assert.Equal(t, []ObjectChange{{Type: ChangeAdded, Kind: "Service", Namespace: "mon", Name: "a", File: "stack.yaml"}}, result.Objects)
}

func TestCompare_InvalidExistingManifest(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"broken.yaml": "kind: [\n"})

	_, err := Compare(context.Background(), dir, generated(t), DefaultDiffOptions())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "existing file broken.yaml")
}

func TestFormatJSON(t *testing.T) {
	d := generatedWith(t, map[string]string{"stack.yaml": serviceA},
		output.File{Kind: output.KindKubernetes, Name: "stack.yaml"},
	)

	result, err := Compare(context.Background(), t.TempDir(), d, DefaultDiffOptions())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, FormatJSON(&buf, result))

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, true, decoded["hasChanges"])
	assert.Contains(t, decoded["diffs"].(map[string]interface{})["stack.yaml"], "+kind: Service")
	assert.Len(t, decoded["files"], 1)
	assert.Len(t, decoded["objects"], 1)
}
