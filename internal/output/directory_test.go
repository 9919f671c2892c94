package output

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sigsyaml "sigs.k8s.io/yaml"
)

// ---------------------------------------------------------------------------
// DirectoryDriver
// ---------------------------------------------------------------------------

func TestDirectoryDriver_Render(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "bundle")
	d := NewDirectoryDriver(dir)

	require.NoError(t, d.Render(File{ID: 1, Kind: KindKubernetes, Name: "stack.yaml"}, []byte("kind: ConfigMap\n")))
	require.NoError(t, d.Render(File{ID: 2, Kind: KindShellScript, Name: "create.sh"}, []byte("#!/bin/sh\n")))

	got, err := os.ReadFile(filepath.Join(dir, "stack.yaml")) //nolint:gosec // test
	require.NoError(t, err)
	assert.Equal(t, "kind: ConfigMap\n", string(got))

	info, err := os.Stat(filepath.Join(dir, "stack.yaml"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())

	info, err = os.Stat(filepath.Join(dir, "create.sh"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())
}

func TestDirectoryDriver_CustomPermissions(t *testing.T) {
	dir := t.TempDir()
	d := NewDirectoryDriver(dir, WithPermissions(0o600))

	require.NoError(t, d.Render(File{Kind: KindKubernetes, Name: "secret.yaml"}, []byte("x")))

	info, err := os.Stat(filepath.Join(dir, "secret.yaml"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestDirectoryDriver_Path(t *testing.T) {
	f := File{Name: "stack.yaml"}

	assert.Equal(t, filepath.Join("out", "stack.yaml"), NewDirectoryDriver("out").Path(f))
	assert.Equal(t, "stack.yaml", NewDirectoryDriver("out", WithPathPrefix("")).Path(f))
	assert.Equal(t, filepath.Join("/opt/bundle", "stack.yaml"), NewDirectoryDriver("out", WithPathPrefix("/opt/bundle")).Path(f))
}

func TestDirectoryDriver_OverwriteWarns(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stack.yaml")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0o600))

	var logs bytes.Buffer
	d := NewDirectoryDriver(dir, WithLogger(newTestLogger(&logs)))

	require.NoError(t, d.Render(File{Kind: KindKubernetes, Name: "stack.yaml"}, []byte("new")))
	assert.Contains(t, logs.String(), "overwriting existing file")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm(), "mode of existing files is reset")
}

func TestDirectoryDriver_Finish(t *testing.T) {
	dir := t.TempDir()
	d := NewDirectoryDriver(dir, WithChecksums(true), WithKustomization(true))

	files := []struct {
		file    File
		content string
	}{
		{File{ID: 1, Kind: KindShellScript, Name: "create.sh"}, "#!/bin/sh\n"},
		{File{ID: 2, Kind: KindKubernetes, Name: "stack-config.yaml"}, "kind: ConfigMap\n"},
		{File{ID: 3, Kind: KindKubernetes, Name: "stack.yaml"}, "kind: Service\n"},
	}

	for _, f := range files {
		require.NoError(t, d.Render(f.file, []byte(f.content)))
	}

	require.NoError(t, d.Finish())

	data, err := os.ReadFile(filepath.Join(dir, KustomizationFileName)) //nolint:gosec // test
	require.NoError(t, err)

	var kustomization map[string]interface{}
	require.NoError(t, sigsyaml.Unmarshal(data, &kustomization))
	assert.Equal(t, "Kustomization", kustomization["kind"])
	assert.Equal(t, []interface{}{"stack-config.yaml", "stack.yaml"}, kustomization["resources"])

	data, err = os.ReadFile(filepath.Join(dir, ChecksumFileName)) //nolint:gosec // test
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, len(files))

	for i, f := range files {
		sum := sha256.Sum256([]byte(f.content))
		assert.Equal(t, hex.EncodeToString(sum[:])+"  "+f.file.Name, lines[i])
	}
}

func TestDirectoryDriver_FinishWithoutIndexes(t *testing.T) {
	dir := t.TempDir()
	d := NewDirectoryDriver(dir)

	require.NoError(t, d.Render(File{Kind: KindKubernetes, Name: "stack.yaml"}, []byte("x")))
	require.NoError(t, d.Finish())

	_, err := os.Stat(filepath.Join(dir, ChecksumFileName))
	assert.True(t, os.IsNotExist(err))

	_, err = os.Stat(filepath.Join(dir, KustomizationFileName))
	assert.True(t, os.IsNotExist(err))
}

// ---------------------------------------------------------------------------
// PrintDriver / MemoryDriver
// ---------------------------------------------------------------------------

func TestPrintDriver_Render(t *testing.T) {
	var buf bytes.Buffer
	d := NewPrintDriver(&buf)

	f := File{Kind: KindKubernetes, Name: "stack.yaml"}
	assert.Equal(t, "stack.yaml", d.Path(f))

	require.NoError(t, d.Render(f, []byte("kind: Service\n")))
	assert.Equal(t, "****** BEGIN FILE: stack.yaml ******\nkind: Service\n****** END FILE: stack.yaml ******\n", buf.String())
}

type brokenWriter struct{}

func (brokenWriter) Write([]byte) (int, error) { return 0, errors.New("pipe closed") }

func TestPrintDriver_RenderError(t *testing.T) {
	err := NewPrintDriver(brokenWriter{}).Render(File{Name: "stack.yaml"}, []byte("x"))
	require.Error(t, err)
	assert.Equal(t, "printing stack.yaml: pipe closed", err.Error())
	assert.NotContains(t, err.Error(), "stdout")
}

func TestPrintDriver_NilDefault(t *testing.T) {
	// When nil is passed, it defaults to os.Stdout; just verify it doesn't panic.
	assert.NotNil(t, NewPrintDriver(nil))
}

func TestMemoryDriver(t *testing.T) {
	d := NewMemoryDriver()

	content := []byte("a")
	require.NoError(t, d.Render(File{Name: "b.yaml"}, content))
	require.NoError(t, d.Render(File{Name: "a.sh"}, []byte("b")))

	content[0] = 'z'

	got, ok := d.File("b.yaml")
	require.True(t, ok)
	assert.Equal(t, "a", string(got), "content is copied")

	_, ok = d.File("missing")
	assert.False(t, ok)

	assert.Equal(t, []string{"b.yaml", "a.sh"}, d.Names())
	assert.Len(t, d.Files(), 2)
	assert.Equal(t, []File{{Name: "b.yaml"}, {Name: "a.sh"}}, d.Rendered())
}
