package watch

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/hupe1980/promstack/internal/k8s"
	"github.com/hupe1980/promstack/internal/plan"
)

// RunFunc regenerates the bundle. It is called once on start and after
// every debounced change.
type RunFunc func(ctx context.Context) (*RunResult, error)

// RunResult describes one regeneration.
type RunResult struct {
	// Files lists the rendered file names.
	Files []string

	// Objects are the objects of the bundle, compared against the previous
	// run to report changes.
	Objects []*k8s.Object

	// OutputDir is where the bundle was written, if anywhere.
	OutputDir string
}

// ValidateFunc checks a regenerated bundle.
type ValidateFunc func(ctx context.Context, result *RunResult) error

// Options configures the watch behaviour.
type Options struct {
	// ProjectDir is the directory watched recursively.
	ProjectDir string

	// ExtraFiles are files outside ProjectDir to watch as well. Their
	// directories are watched and events on sibling files are dropped.
	ExtraFiles []string

	// IgnoreDirs are directories whose events never trigger a run, such as
	// the output directory when it lives inside ProjectDir.
	IgnoreDirs []string

	// Debounce is the quiet period before triggering a rebuild.
	Debounce time.Duration

	// ValidateFn is called after each successful run when set.
	ValidateFn ValidateFunc

	// Logger is used for structured logging.
	Logger *slog.Logger

	// Out is the writer for user-facing status messages.
	Out io.Writer
}

// DefaultOptions returns sensible default watch options.
func DefaultOptions() Options {
	return Options{
		Debounce: 500 * time.Millisecond,
		Logger:   slog.Default(),
		Out:      os.Stderr,
	}
}

// Run starts the file watcher and blocks until the context is cancelled
// or a SIGINT/SIGTERM signal is received.
func Run(ctx context.Context, opts Options, runFn RunFunc) error {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	if opts.Out == nil {
		opts.Out = io.Discard
	}

	ignore, err := absPaths(opts.IgnoreDirs)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := addRecursive(watcher, opts.ProjectDir, ignore); err != nil {
		return fmt.Errorf("watching project directory: %w", err)
	}

	projectDir, err := filepath.Abs(opts.ProjectDir)
	if err != nil {
		return fmt.Errorf("resolving project directory: %w", err)
	}

	extra, err := addExtraFiles(watcher, opts.ExtraFiles)
	if err != nil {
		return err
	}

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(opts.Out, "watching %s (debounce=%s)\n", opts.ProjectDir, opts.Debounce)

	r := &runner{opts: opts, runFn: runFn}
	r.run(sigCtx, "(initial)")

	debouncer := NewDebouncer(opts.Debounce, opts.Logger, func(paths []string) {
		r.run(sigCtx, triggerLabel(projectDir, paths))
	})
	defer debouncer.Stop()

	for {
		select {
		case <-sigCtx.Done():
			fmt.Fprintln(opts.Out, "\nshutting down watcher")
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if !isRelevant(event) || isIgnored(event.Name, ignore) {
				continue
			}

			inProject := isWithin(event.Name, projectDir)
			if !inProject && !extra[absPath(event.Name)] {
				continue
			}

			if inProject && event.Has(fsnotify.Create) {
				if info, statErr := os.Stat(event.Name); statErr == nil && info.IsDir() {
					_ = addRecursive(watcher, event.Name, ignore)
				}
			}

			debouncer.Trigger(event.Name)

		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			opts.Logger.Error("watcher error", slog.String("error", watchErr.Error()))
		}
	}
}

// runner remembers the objects of the last successful run. Debounced
// callbacks may overlap, so runs hold mu.
type runner struct {
	mu       sync.Mutex
	opts     Options
	runFn    RunFunc
	previous []*k8s.Object
	ran      bool
}

func (r *runner) run(ctx context.Context, trigger string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().Format("15:04:05")
	out := r.opts.Out

	result, err := r.runFn(ctx)
	if err != nil {
		fmt.Fprintf(out, "[%s] %s → ERROR: %v\n", now, trigger, err)
		return
	}

	fmt.Fprintf(out, "[%s] %s → OK (%d files, %d objects)\n", now, trigger, len(result.Files), len(result.Objects))

	if r.ran {
		if changes := plan.CompareObjects(r.previous, result.Objects); len(changes) > 0 {
			fmt.Fprintf(out, "  objects: %s\n", ChangeSummary(changes))
		}
	}

	r.previous = result.Objects
	r.ran = true

	if r.opts.ValidateFn != nil {
		if err := r.opts.ValidateFn(ctx, result); err != nil {
			fmt.Fprintf(out, "  validate: FAILED: %v\n", err)
			return
		}

		fmt.Fprintln(out, "  validate: OK")
	}
}

// ChangeSummary renders object changes as "+Kind/ns/name ~Kind/name ...".
func ChangeSummary(changes []plan.ObjectChange) string {
	parts := make([]string, len(changes))

	for i, c := range changes {
		var sign string

		switch c.Type {
		case plan.ChangeAdded:
			sign = "+"
		case plan.ChangeRemoved:
			sign = "-"
		default:
			sign = "~"
		}

		parts[i] = sign + c.Ref()
	}

	return strings.Join(parts, " ")
}

// addExtraFiles watches the parent directory of every extra file and returns
// the set of absolute file paths. Editors that save through a temporary file
// and a rename replace the watched inode, so the files are never watched
// directly.
func addExtraFiles(watcher *fsnotify.Watcher, files []string) (map[string]bool, error) {
	extra := make(map[string]bool, len(files))
	dirs := make(map[string]bool)

	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			return nil, fmt.Errorf("resolving extra file %q: %w", f, err)
		}

		extra[filepath.Clean(abs)] = true

		dir := filepath.Dir(abs)
		if dirs[dir] {
			continue
		}

		if err := watcher.Add(dir); err != nil {
			return nil, fmt.Errorf("watching directory of extra file %q: %w", abs, err)
		}

		dirs[dir] = true
	}

	return extra, nil
}

// triggerLabel lists the changed paths for the status line, relative to the
// project directory where possible.
func triggerLabel(projectDir string, paths []string) string {
	labels := make([]string, len(paths))

	for i, p := range paths {
		labels[i] = p

		if isWithin(p, projectDir) {
			if rel, err := filepath.Rel(projectDir, absPath(p)); err == nil {
				labels[i] = rel
			}
		}
	}

	return strings.Join(labels, ", ")
}

// addRecursive walks root and adds all directories to the watcher.
func addRecursive(watcher *fsnotify.Watcher, root string, ignore []string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if !d.IsDir() {
			return nil
		}

		if path != root && (strings.HasPrefix(d.Name(), ".") || isIgnored(path, ignore)) {
			return filepath.SkipDir
		}

		return watcher.Add(path)
	})
}

// isRelevant filters out events on editor and hidden files.
func isRelevant(event fsnotify.Event) bool {
	if event.Op == 0 {
		return false
	}

	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return false
	}

	name := filepath.Base(event.Name)

	if strings.HasPrefix(name, ".") || strings.HasSuffix(name, "~") ||
		strings.HasSuffix(name, ".swp") || strings.HasPrefix(name, "#") {
		return false
	}

	return true
}

// isIgnored reports whether path lies in one of the ignored directories.
func isIgnored(path string, ignore []string) bool {
	for _, dir := range ignore {
		if isWithin(path, dir) {
			return true
		}
	}

	return false
}

// isWithin reports whether path is dir or lies below it. dir must be
// absolute and clean.
func isWithin(path, dir string) bool {
	abs := absPath(path)
	if abs == "" {
		return false
	}

	return abs == dir || strings.HasPrefix(abs, dir+string(filepath.Separator))
}

// absPath returns the clean absolute form of path, or "" when it cannot be
// resolved.
func absPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return ""
	}

	return filepath.Clean(abs)
}

func absPaths(paths []string) ([]string, error) {
	out := make([]string, 0, len(paths))

	for _, p := range paths {
		if p == "" {
			continue
		}

		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("resolving ignored directory %q: %w", p, err)
		}

		out = append(out, filepath.Clean(abs))
	}

	return out, nil
}
