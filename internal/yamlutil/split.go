// Package yamlutil provides shared YAML helpers for manifest files.
package yamlutil

import (
	"regexp"
	"strings"
)

// docSeparator matches YAML document separators: a line containing only "---"
// optionally followed by whitespace.
var docSeparator = regexp.MustCompile(`(?m)^---\s*$`)

// SplitDocuments splits a multi-document YAML byte slice into individual
// documents, filtering out empty ones. Each returned slice is a raw YAML
// document without the leading "---" separator.
func SplitDocuments(data []byte) [][]byte {
	parts := docSeparator.Split(string(data), -1)

	var docs [][]byte

	for _, part := range parts {
		if strings.TrimSpace(part) != "" {
			docs = append(docs, []byte(part))
		}
	}

	return docs
}

// SplitDocumentsString splits multi-document YAML into individual document
// strings, filtering out empty ones.
func SplitDocumentsString(data []byte) []string {
	parts := docSeparator.Split(string(data), -1)

	docs := make([]string, 0, len(parts))

	for _, part := range parts {
		if strings.TrimSpace(part) != "" {
			docs = append(docs, part)
		}
	}

	return docs
}

// JoinDocuments concatenates YAML documents with "---" separators. Each
// document is terminated by a newline.
func JoinDocuments(docs [][]byte) []byte {
	var b strings.Builder

	for i, doc := range docs {
		if i > 0 {
			b.WriteString("---\n")
		}

		b.Write(doc)

		if len(doc) > 0 && doc[len(doc)-1] != '\n' {
			b.WriteByte('\n')
		}
	}

	return []byte(b.String())
}
