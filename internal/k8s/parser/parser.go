// Package parser splits multi-document YAML manifests and parses them into
// free-standing k8s.Object values.
package parser

import (
	"context"
	"fmt"
	"strings"

	sigsyaml "sigs.k8s.io/yaml"

	"github.com/hupe1980/promstack/internal/k8s"
	"github.com/hupe1980/promstack/internal/yamlutil"
)

// Parser parses raw manifests into objects.
type Parser interface {
	Parse(ctx context.Context, manifests []byte) ([]*k8s.Object, error)
}

// compile-time interface conformance check.
var _ Parser = (*DefaultParser)(nil)

// DefaultParser is the default implementation of the Parser interface.
type DefaultParser struct {
	source   string
	instance string
}

// Option configures a DefaultParser.
type Option func(*DefaultParser)

// WithSource sets the source provenance tag of parsed objects.
func WithSource(source string) Option {
	return func(p *DefaultParser) {
		p.source = source
	}
}

// WithInstance sets the instance provenance tag of parsed objects.
func WithInstance(instance string) Option {
	return func(p *DefaultParser) {
		p.instance = instance
	}
}

// NewParser creates a new DefaultParser.
func NewParser(opts ...Option) *DefaultParser {
	p := &DefaultParser{source: "manifest"}
	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Parse splits the manifests into documents and parses each into an Object.
// Documents without apiVersion or kind are skipped. Logical names are
// derived as "<kind>-<name>" and must be unique within one call.
func (p *DefaultParser) Parse(ctx context.Context, manifests []byte) ([]*k8s.Object, error) {
	docs := SplitDocuments(manifests)

	var objects []*k8s.Object

	seen := make(map[string]int, len(docs))

	for i, doc := range docs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		obj, err := p.parseDocument(doc)
		if err != nil {
			return nil, fmt.Errorf("parsing document %d: %w", i+1, err)
		}

		if obj == nil {
			continue
		}

		if prev, dup := seen[obj.LogicalName()]; dup {
			return nil, fmt.Errorf("parsing document %d: %s duplicates document %d", i+1, obj.QualifiedName(), prev)
		}

		seen[obj.LogicalName()] = i + 1
		objects = append(objects, obj)
	}

	return objects, nil
}

// SplitDocuments splits a multi-document YAML byte slice into individual
// documents, filtering out empty ones. Delegates to the shared yamlutil package.
func SplitDocuments(data []byte) [][]byte {
	return yamlutil.SplitDocuments(data)
}

// LogicalName derives the logical name of a free-standing object.
func LogicalName(kind, name string) string {
	return strings.ToLower(kind) + "-" + name
}

// parseDocument parses a single YAML document into an Object.
// Returns nil (no error) if the document lacks apiVersion or kind.
func (p *DefaultParser) parseDocument(doc []byte) (*k8s.Object, error) {
	var obj map[string]interface{}
	if err := sigsyaml.Unmarshal(doc, &obj); err != nil {
		return nil, fmt.Errorf("unmarshaling YAML: %w", err)
	}

	if obj == nil {
		return nil, nil
	}

	apiVersion, _ := obj["apiVersion"].(string)
	kind, _ := obj["kind"].(string)

	if apiVersion == "" || kind == "" {
		return nil, nil
	}

	meta, _ := obj["metadata"].(map[string]interface{})
	name, _ := meta["name"].(string)

	if name == "" {
		return nil, fmt.Errorf("%s has no metadata.name", kind)
	}

	return k8s.NewObject(obj, LogicalName(kind, name), p.source, p.instance)
}
