package output

import (
	"fmt"
	"io"
	"os"
)

// PrintDriver writes every file to a writer, delimited by banners.
type PrintDriver struct {
	out io.Writer
}

// NewPrintDriver creates a driver printing to w. If w is nil, os.Stdout is
// used.
func NewPrintDriver(w io.Writer) *PrintDriver {
	if w == nil {
		w = os.Stdout
	}

	return &PrintDriver{out: w}
}

// Path returns the bare file name.
func (d *PrintDriver) Path(f File) string {
	return f.Name
}

// Render prints the file between BEGIN and END banners.
func (d *PrintDriver) Render(f File, content []byte) error {
	if _, err := fmt.Fprintf(d.out, "****** BEGIN FILE: %s ******\n", f.Name); err != nil {
		return fmt.Errorf("printing %s: %w", f.Name, err)
	}

	if _, err := d.out.Write(content); err != nil {
		return fmt.Errorf("printing %s: %w", f.Name, err)
	}

	if _, err := fmt.Fprintf(d.out, "****** END FILE: %s ******\n", f.Name); err != nil {
		return fmt.Errorf("printing %s: %w", f.Name, err)
	}

	return nil
}
