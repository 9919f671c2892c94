package output

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	sigsyaml "sigs.k8s.io/yaml"
)

// Index files written by the directory driver.
const (
	ChecksumFileName      = "checksums.txt"
	KustomizationFileName = "kustomization.yaml"
)

// DirectoryDriver writes every file into a directory, creating it as
// needed. Scripts are written executable.
type DirectoryDriver struct {
	dir           string
	perm          os.FileMode
	scriptPerm    os.FileMode
	pathPrefix    *string
	checksums     bool
	kustomization bool
	logger        *slog.Logger

	written  []File
	checksum map[string]string
}

// DirectoryOption configures a DirectoryDriver.
type DirectoryOption func(*DirectoryDriver)

// WithPermissions overrides the default permissions of Kubernetes files
// (0644).
func WithPermissions(perm os.FileMode) DirectoryOption {
	return func(d *DirectoryDriver) {
		d.perm = perm
	}
}

// WithLogger sets a logger for the DirectoryDriver.
func WithLogger(logger *slog.Logger) DirectoryOption {
	return func(d *DirectoryDriver) {
		d.logger = logger
	}
}

// WithPathPrefix makes scripts reference files as prefix joined with the
// file name instead of the path inside the output directory. An empty
// prefix references bare file names, for scripts run from the directory.
func WithPathPrefix(prefix string) DirectoryOption {
	return func(d *DirectoryDriver) {
		d.pathPrefix = &prefix
	}
}

// WithChecksums writes checksums.txt with the SHA256 of every file.
func WithChecksums(enabled bool) DirectoryOption {
	return func(d *DirectoryDriver) {
		d.checksums = enabled
	}
}

// WithKustomization writes a kustomization.yaml listing the Kubernetes
// files in creation order.
func WithKustomization(enabled bool) DirectoryOption {
	return func(d *DirectoryDriver) {
		d.kustomization = enabled
	}
}

// NewDirectoryDriver creates a driver writing into dir.
func NewDirectoryDriver(dir string, opts ...DirectoryOption) *DirectoryDriver {
	d := &DirectoryDriver{
		dir:        dir,
		perm:       0o644,
		scriptPerm: 0o755,
		logger:     slog.Default(),
		checksum:   make(map[string]string),
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Dir returns the output directory.
func (d *DirectoryDriver) Dir() string {
	return d.dir
}

// Path returns the path scripts use to reference f.
func (d *DirectoryDriver) Path(f File) string {
	if d.pathPrefix != nil {
		if *d.pathPrefix == "" {
			return f.Name
		}

		return filepath.Join(*d.pathPrefix, f.Name)
	}

	return filepath.Join(d.dir, f.Name)
}

// Render writes the file.
func (d *DirectoryDriver) Render(f File, content []byte) error {
	perm := d.perm
	if f.Kind == KindShellScript {
		perm = d.scriptPerm
	}

	if err := d.write(f.Name, content, perm); err != nil {
		return err
	}

	sum := sha256.Sum256(content)
	d.checksum[f.Name] = hex.EncodeToString(sum[:])
	d.written = append(d.written, f)

	return nil
}

// Finish writes the optional index files.
func (d *DirectoryDriver) Finish() error {
	if d.kustomization {
		var resources []string

		for _, f := range d.written {
			if f.Kind == KindKubernetes {
				resources = append(resources, f.Name)
			}
		}

		data, err := sigsyaml.Marshal(map[string]interface{}{
			"apiVersion": "kustomize.config.k8s.io/v1beta1",
			"kind":       "Kustomization",
			"resources":  resources,
		})
		if err != nil {
			return fmt.Errorf("serializing kustomization: %w", err)
		}

		if err := d.write(KustomizationFileName, data, d.perm); err != nil {
			return err
		}
	}

	if d.checksums {
		lines := make([]string, 0, len(d.written))
		for _, f := range d.written {
			lines = append(lines, fmt.Sprintf("%s  %s", d.checksum[f.Name], f.Name))
		}

		if err := d.write(ChecksumFileName, []byte(strings.Join(lines, "\n")+"\n"), d.perm); err != nil {
			return err
		}

		d.logger.Debug("checksums generated",
			slog.Int("file_count", len(lines)),
			slog.String("path", filepath.Join(d.dir, ChecksumFileName)),
		)
	}

	return nil
}

func (d *DirectoryDriver) write(name string, data []byte, perm os.FileMode) error {
	if err := os.MkdirAll(d.dir, 0o750); err != nil {
		return fmt.Errorf("creating directory %s: %w", d.dir, err)
	}

	path := filepath.Join(d.dir, name)

	if _, err := os.Stat(path); err == nil {
		d.logger.Warn("overwriting existing file", slog.String("path", path))
	}

	if err := os.WriteFile(path, data, perm); err != nil {
		return fmt.Errorf("writing file %s: %w", path, err)
	}

	// WriteFile keeps the mode of existing files.
	if err := os.Chmod(path, perm); err != nil {
		return fmt.Errorf("setting permissions of %s: %w", path, err)
	}

	return nil
}
