package output

import (
	"fmt"
	"strings"

	sigsyaml "sigs.k8s.io/yaml"

	"github.com/hupe1980/promstack/internal/k8s"
	"github.com/hupe1980/promstack/internal/maputil"
	"github.com/hupe1980/promstack/internal/yamlutil"
)

// ScriptHeader is the first line of every rendered script.
const ScriptHeader = "#!/bin/sh"

// SerializeObjects renders objects as a multi-document YAML stream. Null
// values are stripped; keys are sorted, so output is deterministic.
func SerializeObjects(objs []*k8s.Object) ([]byte, error) {
	docs := make([][]byte, 0, len(objs))

	for _, obj := range objs {
		data, err := SerializeObject(obj)
		if err != nil {
			return nil, err
		}

		docs = append(docs, data)
	}

	return yamlutil.JoinDocuments(docs), nil
}

// SerializeObject renders a single object as YAML.
func SerializeObject(obj *k8s.Object) ([]byte, error) {
	doc := obj.Document()
	maputil.PruneNulls(doc)

	data, err := sigsyaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("serializing %s: %w", obj.QualifiedName(), err)
	}

	return data, nil
}

// RenderScript renders resolved script lines under the shell header.
func RenderScript(lines []string) []byte {
	var b strings.Builder

	b.WriteString(ScriptHeader)
	b.WriteString("\n\n")

	for _, l := range lines {
		b.WriteString(l)
		b.WriteByte('\n')
	}

	return []byte(b.String())
}
