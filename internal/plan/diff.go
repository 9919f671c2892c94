package plan

import (
	"fmt"
	"io"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// DiffResult holds the unified diff of one file.
type DiffResult struct {
	Unified        string
	HasDifferences bool
	Hunks          []string
	OldLabel       string
	NewLabel       string
}

// DiffOptions configures diff computation.
type DiffOptions struct {
	// OldPrefix and NewPrefix are prepended to the file name in the
	// diff header.
	OldPrefix string
	NewPrefix string
	Context   int
}

// DefaultDiffOptions returns git-style a/ b/ labels and three lines of
// context.
func DefaultDiffOptions() DiffOptions {
	return DiffOptions{
		OldPrefix: "a/",
		NewPrefix: "b/",
		Context:   3,
	}
}

// ComputeDiff computes a unified diff of the file name between the existing
// and the generated content.
func ComputeDiff(name, existing, generated string, opts DiffOptions) (*DiffResult, error) {
	result := &DiffResult{
		OldLabel: opts.OldPrefix + name,
		NewLabel: opts.NewPrefix + name,
	}

	unified, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        splitLines(existing),
		B:        splitLines(generated),
		FromFile: result.OldLabel,
		ToFile:   result.NewLabel,
		Context:  opts.Context,
	})
	if err != nil {
		return nil, fmt.Errorf("computing diff of %s: %w", name, err)
	}

	result.Unified = unified
	result.HasDifferences = unified != ""

	if result.HasDifferences {
		result.Hunks = extractHunks(unified)
	}

	return result, nil
}

// extractHunks splits unified diff output at the @@ markers. The file
// header is not part of any hunk.
func extractHunks(unified string) []string {
	var (
		hunks   []string
		current strings.Builder
		inHunk  bool
	)

	for _, line := range strings.SplitAfter(unified, "\n") {
		if strings.HasPrefix(line, "@@") {
			if inHunk {
				hunks = append(hunks, current.String())
				current.Reset()
			}

			inHunk = true
		}

		if inHunk {
			current.WriteString(line)
		}
	}

	if current.Len() > 0 {
		hunks = append(hunks, current.String())
	}

	return hunks
}

// WriteDiff writes the diff, optionally with ANSI colors.
func WriteDiff(w io.Writer, result *DiffResult, color bool) {
	if !result.HasDifferences {
		return
	}

	for _, line := range strings.Split(strings.TrimSuffix(result.Unified, "\n"), "\n") {
		if color {
			writeColorLine(w, line)
		} else {
			_, _ = fmt.Fprintln(w, line)
		}
	}
}

func writeColorLine(w io.Writer, line string) {
	const (
		red   = "\033[31m"
		green = "\033[32m"
		cyan  = "\033[36m"
		bold  = "\033[1m"
		reset = "\033[0m"
	)

	var prefix string

	switch {
	case strings.HasPrefix(line, "---"), strings.HasPrefix(line, "+++"):
		prefix = bold
	case strings.HasPrefix(line, "@@"):
		prefix = cyan
	case strings.HasPrefix(line, "-"):
		prefix = red
	case strings.HasPrefix(line, "+"):
		prefix = green
	default:
		_, _ = fmt.Fprintln(w, line)
		return
	}

	_, _ = fmt.Fprintf(w, "%s%s%s\n", prefix, line, reset)
}

// splitLines splits s into lines that keep their trailing newline, as
// difflib expects. An empty string has no lines.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}

	return strings.SplitAfter(s, "\n")
}
