package output

// Driver renders the files of a project. Path reports how a file is
// referenced from scripts; Render receives each file's resolved content in
// creation order.
type Driver interface {
	Path(f File) string
	Render(f File, content []byte) error
}

// Finisher is implemented by drivers that need a final step after the last
// file, such as writing an index.
type Finisher interface {
	Finish() error
}
