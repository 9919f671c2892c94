package audit

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/hupe1980/promstack/internal/version"
)

// Formatter writes audit results.
type Formatter interface {
	Format(w io.Writer, result *Result) error
}

// NewFormatter returns the formatter for "table", "json" or "sarif".
func NewFormatter(format string) (Formatter, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "table":
		return tableFormatter{}, nil
	case "json":
		return jsonFormatter{}, nil
	case "sarif":
		return sarifFormatter{}, nil
	default:
		return nil, fmt.Errorf("unsupported output format %q: use table, json, or sarif", format)
	}
}

var severities = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo}

type tableFormatter struct{}

func (tableFormatter) Format(w io.Writer, result *Result) error {
	if len(result.Findings) == 0 {
		_, err := fmt.Fprintln(w, "No findings.")

		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "SEVERITY\tRULE\tOBJECT\tMESSAGE")

	for _, f := range result.Findings {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", strings.ToUpper(f.Severity.String()), f.RuleID, f.Object, f.Message)
	}

	if err := tw.Flush(); err != nil {
		return err
	}

	var parts []string

	for _, sev := range severities {
		if n := result.Summary[sev.String()]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, sev))
		}
	}

	_, err := fmt.Fprintf(w, "\nFindings: %d total (%s)\n", len(result.Findings), strings.Join(parts, ", "))

	return err
}

type jsonFormatter struct{}

type jsonFinding struct {
	Finding
	Severity string `json:"severity"`
}

func (jsonFormatter) Format(w io.Writer, result *Result) error {
	findings := make([]jsonFinding, 0, len(result.Findings))
	for _, f := range result.Findings {
		findings = append(findings, jsonFinding{Finding: f, Severity: f.Severity.String()})
	}

	summary := result.Summary
	if summary == nil {
		summary = map[string]int{}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(struct {
		Findings []jsonFinding `json:"findings"`
		Summary  map[string]int `json:"summary"`
		Total    int            `json:"total"`
	}{findings, summary, len(findings)})
}

// SARIF v2.1.0, reduced to the fields code scanning tools read.

type sarifLog struct {
	Schema  string     `json:"$schema"`
	Version string     `json:"version"`
	Runs    []sarifRun `json:"runs"`
}

type sarifRun struct {
	Tool    sarifTool     `json:"tool"`
	Results []sarifResult `json:"results"`
}

type sarifTool struct {
	Driver sarifDriver `json:"driver"`
}

type sarifDriver struct {
	Name    string      `json:"name"`
	Version string      `json:"version"`
	Rules   []sarifRule `json:"rules"`
}

type sarifRule struct {
	ID               string       `json:"id"`
	ShortDescription sarifMessage `json:"shortDescription"`
	DefaultConfig    struct {
		Level string `json:"level"`
	} `json:"defaultConfiguration"`
}

type sarifMessage struct {
	Text string `json:"text"`
}

type sarifResult struct {
	RuleID    string          `json:"ruleId"`
	Level     string          `json:"level"`
	Message   sarifMessage    `json:"message"`
	Locations []sarifLocation `json:"locations,omitempty"`
}

type sarifLocation struct {
	LogicalLocations []sarifLogicalLocation `json:"logicalLocations"`
}

type sarifLogicalLocation struct {
	Name               string `json:"name"`
	FullyQualifiedName string `json:"fullyQualifiedName"`
	Kind               string `json:"kind"`
}

type sarifFormatter struct{}

func (sarifFormatter) Format(w io.Writer, result *Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(toSARIF(result))
}

func toSARIF(result *Result) sarifLog {
	rules := []sarifRule{}
	results := []sarifResult{}
	seen := make(map[string]bool)

	for _, f := range result.Findings {
		level := sarifLevel(f.Severity)

		if !seen[f.RuleID] {
			seen[f.RuleID] = true

			r := sarifRule{ID: f.RuleID, ShortDescription: sarifMessage{Text: f.Message}}
			r.DefaultConfig.Level = level
			rules = append(rules, r)
		}

		res := sarifResult{RuleID: f.RuleID, Level: level, Message: sarifMessage{Text: f.Message}}
		if f.Kind != "" {
			res.Locations = []sarifLocation{{LogicalLocations: []sarifLogicalLocation{{
				Name:               f.LogicalName,
				FullyQualifiedName: f.Object,
				Kind:               f.Kind,
			}}}}
		}

		results = append(results, res)
	}

	return sarifLog{
		Schema:  "https://raw.githubusercontent.com/oasis-tcs/sarif-spec/main/sarif-2.1/schema/sarif-schema-2.1.0.json",
		Version: "2.1.0",
		Runs: []sarifRun{{
			Tool:    sarifTool{Driver: sarifDriver{Name: "promstack-audit", Version: version.GetInfo().Version, Rules: rules}},
			Results: results,
		}},
	}
}

func sarifLevel(s Severity) string {
	switch s {
	case SeverityCritical, SeverityHigh:
		return "error"
	case SeverityMedium:
		return "warning"
	default:
		return "note"
	}
}
