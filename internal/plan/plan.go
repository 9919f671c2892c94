// Package plan compares a freshly rendered bundle with the files of an
// existing bundle directory, both as unified text diffs and as object-level
// changes.
package plan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hupe1980/promstack/internal/k8s/parser"
	"github.com/hupe1980/promstack/internal/output"
)

// ChangeType classifies a change.
type ChangeType string

// Change types.
const (
	ChangeAdded    ChangeType = "added"
	ChangeRemoved  ChangeType = "removed"
	ChangeModified ChangeType = "modified"
)

// FileChange is a file that differs between the directory and the bundle.
type FileChange struct {
	Name string      `json:"name"`
	Type ChangeType  `json:"type"`
	Diff *DiffResult `json:"-"`
}

// Result is the outcome of Compare.
type Result struct {
	Dir       string         `json:"dir"`
	Files     []FileChange   `json:"files"`
	Objects   []ObjectChange `json:"objects"`
	Unchanged int            `json:"unchanged"`
}

// HasChanges reports whether any file differs.
func (r *Result) HasChanges() bool {
	return len(r.Files) > 0
}

// ignored are directory files the bundle does not own.
var ignored = map[string]bool{
	output.ChecksumFileName:      true,
	output.KustomizationFileName: true,
}

// Compare diffs the files rendered into generated against dir. A missing
// directory compares as empty, so every file shows up as added.
func Compare(ctx context.Context, dir string, generated *output.MemoryDriver, opts DiffOptions) (*Result, error) {
	existing, err := readBundleDir(dir)
	if err != nil {
		return nil, err
	}

	result := &Result{Dir: dir}

	var oldObjs, newObjs []located

	seen := make(map[string]bool)

	for _, f := range generated.Rendered() {
		seen[f.Name] = true

		content, _ := generated.File(f.Name)

		old, found := existing[f.Name]
		if err := result.addFile(f.Name, old, found, string(content), true, opts); err != nil {
			return nil, err
		}

		if f.Kind != output.KindKubernetes {
			continue
		}

		objs, err := parseFile(ctx, f.Name, content)
		if err != nil {
			return nil, fmt.Errorf("generated %w", err)
		}

		newObjs = append(newObjs, objs...)
	}

	for _, name := range sortedNames(existing) {
		if isManifest(name) {
			objs, err := parseFile(ctx, name, []byte(existing[name]))
			if err != nil {
				return nil, fmt.Errorf("existing %w", err)
			}

			oldObjs = append(oldObjs, objs...)
		}

		if seen[name] {
			continue
		}

		if err := result.addFile(name, existing[name], true, "", false, opts); err != nil {
			return nil, err
		}
	}

	result.Objects = compareLocated(oldObjs, newObjs)

	return result, nil
}

func (r *Result) addFile(name, old string, found bool, generated string, present bool, opts DiffOptions) error {
	diff, err := ComputeDiff(name, old, generated, opts)
	if err != nil {
		return err
	}

	var ct ChangeType

	switch {
	case !found:
		ct = ChangeAdded
	case !present:
		ct = ChangeRemoved
	case diff.HasDifferences:
		ct = ChangeModified
	default:
		r.Unchanged++
		return nil
	}

	r.Files = append(r.Files, FileChange{Name: name, Type: ct, Diff: diff})

	return nil
}

// readBundleDir reads the manifest and script files directly under dir.
func readBundleDir(dir string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}

	if err != nil {
		return nil, fmt.Errorf("reading bundle directory: %w", err)
	}

	files := make(map[string]string, len(entries))

	for _, e := range entries {
		name := e.Name()
		if !e.Type().IsRegular() || ignored[name] || !(isManifest(name) || filepath.Ext(name) == ".sh") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name)) //nolint:gosec // directory is user-provided
		if err != nil {
			return nil, fmt.Errorf("reading bundle file: %w", err)
		}

		files[name] = string(data)
	}

	return files, nil
}

func isManifest(name string) bool {
	ext := filepath.Ext(name)

	return (ext == ".yaml" || ext == ".yml") && !ignored[name]
}

func parseFile(ctx context.Context, name string, data []byte) ([]located, error) {
	objs, err := parser.NewParser(parser.WithSource("plan"), parser.WithInstance(name)).Parse(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("file %s: %w", name, err)
	}

	out := make([]located, len(objs))
	for i, obj := range objs {
		out[i] = located{obj: obj, file: name}
	}

	return out, nil
}

func sortedNames(m map[string]string) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// FormatText writes the file diffs followed by an object summary.
func FormatText(w io.Writer, r *Result, color bool) {
	if !r.HasChanges() {
		_, _ = fmt.Fprintf(w, "No differences found in %s.\n", r.Dir)
		return
	}

	for _, f := range r.Files {
		WriteDiff(w, f.Diff, color)
	}

	_, _ = fmt.Fprintln(w)
	FormatSummary(w, r)
}

// FormatSummary writes one line per file and object change.
func FormatSummary(w io.Writer, r *Result) {
	var added, removed, modified int

	for _, f := range r.Files {
		switch f.Type {
		case ChangeAdded:
			added++
		case ChangeRemoved:
			removed++
		case ChangeModified:
			modified++
		}
	}

	_, _ = fmt.Fprintf(w, "Files: %d added, %d removed, %d modified, %d unchanged\n", added, removed, modified, r.Unchanged)

	for _, f := range r.Files {
		_, _ = fmt.Fprintf(w, "  %s %s\n", changeIcon(f.Type), f.Name)
	}

	if len(r.Objects) == 0 {
		return
	}

	a, d, m := countObjectChanges(r.Objects)
	_, _ = fmt.Fprintf(w, "Objects: %d added, %d removed, %d modified\n", a, d, m)

	for _, c := range r.Objects {
		_, _ = fmt.Fprintf(w, "  %s %s (%s)\n", changeIcon(c.Type), c.Ref(), c.File)
	}
}

// FormatJSON writes the result as indented JSON. Diffs are included as
// unified text keyed by file name.
func FormatJSON(w io.Writer, r *Result) error {
	diffs := make(map[string]string, len(r.Files))
	for _, f := range r.Files {
		diffs[f.Name] = f.Diff.Unified
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(struct {
		*Result
		HasChanges bool              `json:"hasChanges"`
		Diffs      map[string]string `json:"diffs,omitempty"`
	}{Result: r, HasChanges: r.HasChanges(), Diffs: diffs})
}

func changeIcon(ct ChangeType) string {
	switch ct {
	case ChangeAdded:
		return "+"
	case ChangeRemoved:
		return "-"
	default:
		return "~"
	}
}

// joinRef joins the non-empty parts with "/".
func joinRef(parts ...string) string {
	nonEmpty := make([]string, 0, len(parts))

	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}

	return strings.Join(nonEmpty, "/")
}
