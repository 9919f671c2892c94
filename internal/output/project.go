package output

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/hupe1980/promstack/internal/k8s"
)

// FileKind is the content kind of a bundle file.
type FileKind int

const (
	// KindKubernetes files hold a batch of Kubernetes objects.
	KindKubernetes FileKind = iota
	// KindShellScript files hold script lines.
	KindShellScript
)

// String returns the kind name.
func (k FileKind) String() string {
	if k == KindShellScript {
		return "shell-script"
	}

	return "kubernetes"
}

// Extension returns the file name extension of the kind.
func (k FileKind) Extension() string {
	if k == KindShellScript {
		return ".sh"
	}

	return ".yaml"
}

func isReserved(name string) bool {
	return name == KustomizationFileName || name == ChecksumFileName
}

// hasExtension reports whether name already ends in an extension of the
// kind. Dots elsewhere in the name do not count.
func (k FileKind) hasExtension(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".sh":
		return k == KindShellScript
	case ".yaml", ".yml", ".json":
		return k == KindKubernetes
	}

	return false
}

// ErrAlreadyOutput is returned when Output is called a second time.
var ErrAlreadyOutput = errors.New("project has already been output")

// FileReferenceUnresolvedError is returned when a script line references a
// file id the project never created.
type FileReferenceUnresolvedError struct {
	File string
	ID   int
}

func (e *FileReferenceUnresolvedError) Error() string {
	return fmt.Sprintf("file %q references unknown file id %d", e.File, e.ID)
}

// FileHandle identifies a file slot of a project.
type FileHandle struct {
	id   int
	kind FileKind
	name string
}

// ID returns the project-internal file id.
func (h FileHandle) ID() int { return h.id }

// Kind returns the file kind.
func (h FileHandle) Kind() FileKind { return h.kind }

// Name returns the file name.
func (h FileHandle) Name() string { return h.name }

// File describes a file handed to a driver.
type File struct {
	ID   int
	Kind FileKind
	Name string
}

type fileSlot struct {
	File
	objects []*k8s.Object
	lines   []Line
}

// ProjectOption configures a Project.
type ProjectOption func(*Project)

// WithRenames applies table to every object appended to the project.
func WithRenames(table k8s.RenameTable) ProjectOption {
	return func(p *Project) {
		p.renames = table.Clone()
	}
}

// WithProjectLogger sets the logger.
func WithProjectLogger(logger *slog.Logger) ProjectOption {
	return func(p *Project) {
		p.logger = logger
	}
}

// Project is the in-memory bundle: an ordered set of files whose contents
// may reference each other. A Project is owned by a single caller.
type Project struct {
	files   []*fileSlot
	byID    map[int]*fileSlot
	names   map[string]bool
	nextID  int
	renames k8s.RenameTable
	logger  *slog.Logger
	output  bool
}

// NewProject creates an empty project.
func NewProject(opts ...ProjectOption) *Project {
	p := &Project{
		byID:   make(map[int]*fileSlot),
		names:  make(map[string]bool),
		nextID: 1,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// NewFile allocates a file slot. The handle is valid immediately, so other
// files can reference it before its contents are appended. A name without
// one of the kind's extensions gets the default one.
func (p *Project) NewFile(kind FileKind, name string) (FileHandle, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return FileHandle{}, fmt.Errorf("new %s file: empty name", kind)
	}

	if isReserved(name) {
		return FileHandle{}, fmt.Errorf("new %s file %q: name is reserved for the bundle index", kind, name)
	}

	if !kind.hasExtension(name) {
		name += kind.Extension()
	}

	if strings.ContainsAny(name, `/\`) {
		return FileHandle{}, fmt.Errorf("new %s file %q: name must not contain path separators", kind, name)
	}

	if isReserved(name) {
		return FileHandle{}, fmt.Errorf("new %s file %q: name is reserved for the bundle index", kind, name)
	}

	if p.names[name] {
		return FileHandle{}, fmt.Errorf("new %s file %q: duplicate file name", kind, name)
	}

	slot := &fileSlot{File: File{ID: p.nextID, Kind: kind, Name: name}}
	p.nextID++

	p.files = append(p.files, slot)
	p.byID[slot.ID] = slot
	p.names[name] = true

	return FileHandle{id: slot.ID, kind: kind, name: name}, nil
}

// Files returns the files in creation order.
func (p *Project) Files() []File {
	files := make([]File, len(p.files))
	for i, f := range p.files {
		files[i] = f.File
	}

	return files
}

// AppendObjects appends objects to a Kubernetes file, applying the project
// rename table.
func (p *Project) AppendObjects(h FileHandle, objs ...*k8s.Object) error {
	slot, err := p.slot(h, KindKubernetes)
	if err != nil {
		return err
	}

	for _, obj := range objs {
		if obj == nil {
			return fmt.Errorf("file %q: nil object", slot.Name)
		}

		slot.objects = append(slot.objects, obj.Rename(p.renames))
	}

	return nil
}

// AppendLines appends lines to a shell script file. References are checked
// at output time, so lines may refer to files created later.
func (p *Project) AppendLines(h FileHandle, lines ...Line) error {
	slot, err := p.slot(h, KindShellScript)
	if err != nil {
		return err
	}

	slot.lines = append(slot.lines, lines...)

	return nil
}

// Objects returns the objects appended to a Kubernetes file.
func (p *Project) Objects(h FileHandle) []*k8s.Object {
	slot, ok := p.byID[h.id]
	if !ok {
		return nil
	}

	return append([]*k8s.Object(nil), slot.objects...)
}

func (p *Project) slot(h FileHandle, kind FileKind) (*fileSlot, error) {
	if p.output {
		return nil, ErrAlreadyOutput
	}

	slot, ok := p.byID[h.id]
	if !ok || slot.Name != h.name {
		return nil, fmt.Errorf("unknown file handle %d (%s)", h.id, h.name)
	}

	if slot.Kind != kind {
		return nil, fmt.Errorf("file %q is a %s file, not %s", slot.Name, slot.Kind, kind)
	}

	return slot, nil
}

// Output resolves every file reference through the driver and renders the
// files in creation order. Reference errors are reported before anything
// is handed to the driver. Driver errors are returned unchanged. A project
// can be output once.
func (p *Project) Output(d Driver) error {
	if p.output {
		return ErrAlreadyOutput
	}

	rendered := make([][]byte, len(p.files))

	for i, f := range p.files {
		content, err := p.render(f, d)
		if err != nil {
			return err
		}

		rendered[i] = content
	}

	p.output = true

	for i, f := range p.files {
		p.logger.Debug("rendering file",
			slog.String("file", f.Name),
			slog.String("kind", f.Kind.String()),
			slog.Int("bytes", len(rendered[i])),
		)

		if err := d.Render(f.File, rendered[i]); err != nil {
			return err
		}
	}

	if fin, ok := d.(Finisher); ok {
		return fin.Finish()
	}

	return nil
}

func (p *Project) render(f *fileSlot, d Driver) ([]byte, error) {
	if f.Kind == KindKubernetes {
		return SerializeObjects(f.objects)
	}

	path := func(id int) (string, error) {
		target, ok := p.byID[id]
		if !ok {
			return "", &FileReferenceUnresolvedError{File: f.Name, ID: id}
		}

		return d.Path(target.File), nil
	}

	lines := make([]string, 0, len(f.lines))

	for _, l := range f.lines {
		s, err := l.render(path)
		if err != nil {
			return nil, err
		}

		lines = append(lines, s)
	}

	return RenderScript(lines), nil
}
