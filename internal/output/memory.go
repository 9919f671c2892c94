package output

// MemoryDriver keeps rendered files in memory.
type MemoryDriver struct {
	files map[string][]byte
	order []File
}

// NewMemoryDriver creates an empty in-memory driver.
func NewMemoryDriver() *MemoryDriver {
	return &MemoryDriver{files: make(map[string][]byte)}
}

// Path returns the bare file name.
func (d *MemoryDriver) Path(f File) string {
	return f.Name
}

// Render stores a copy of content.
func (d *MemoryDriver) Render(f File, content []byte) error {
	d.files[f.Name] = append([]byte(nil), content...)
	d.order = append(d.order, f)

	return nil
}

// File returns the content of a rendered file.
func (d *MemoryDriver) File(name string) ([]byte, bool) {
	content, ok := d.files[name]

	return content, ok
}

// Names returns the rendered file names in render order.
func (d *MemoryDriver) Names() []string {
	names := make([]string, len(d.order))
	for i, f := range d.order {
		names[i] = f.Name
	}

	return names
}

// Files returns all rendered files keyed by name.
func (d *MemoryDriver) Files() map[string][]byte {
	out := make(map[string][]byte, len(d.files))
	for name, content := range d.files {
		out[name] = append([]byte(nil), content...)
	}

	return out
}

// Rendered returns the rendered files in render order.
func (d *MemoryDriver) Rendered() []File {
	return append([]File(nil), d.order...)
}
