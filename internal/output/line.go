package output

import (
	"strings"

	"github.com/kballard/go-shellquote"
)

// Segment is one part of a script line.
type Segment interface {
	segment()
}

// Text is a literal segment, emitted verbatim.
type Text string

func (Text) segment() {}

// FileRef is a reference to another file of the same project. It renders as
// the file's shell-quoted path as reported by the driver.
type FileRef struct {
	ID int
}

func (FileRef) segment() {}

// Ref returns a reference to the file behind h.
func Ref(h FileHandle) FileRef {
	return FileRef{ID: h.ID()}
}

// Line is a single script line made of segments.
type Line struct {
	Segments []Segment
}

// NewLine builds a line from segments.
func NewLine(segments ...Segment) Line {
	return Line{Segments: append([]Segment(nil), segments...)}
}

// Literal returns a line consisting of text only.
func Literal(text string) Line {
	return NewLine(Text(text))
}

// Command returns a line running args, each shell-quoted.
func Command(args ...string) Line {
	return Literal(shellquote.Join(args...))
}

// Apply returns "kubectl apply -f <file>".
func Apply(h FileHandle) Line {
	return NewLine(Text("kubectl apply -f "), Ref(h))
}

// SetContextNamespace returns the command switching the current kubectl
// context to namespace ns.
func SetContextNamespace(ns string) Line {
	return Command("kubectl", "config", "set-context", "--current", "--namespace="+ns)
}

// References returns the ids of all files the line refers to.
func (l Line) References() []int {
	var ids []int

	for _, s := range l.Segments {
		if ref, ok := s.(FileRef); ok {
			ids = append(ids, ref.ID)
		}
	}

	return ids
}

// render resolves the line with path, which maps a file id to its path.
func (l Line) render(path func(id int) (string, error)) (string, error) {
	var b strings.Builder

	for _, s := range l.Segments {
		switch seg := s.(type) {
		case Text:
			b.WriteString(string(seg))
		case FileRef:
			p, err := path(seg.ID)
			if err != nil {
				return "", err
			}

			b.WriteString(shellquote.Join(p))
		}
	}

	return b.String(), nil
}
