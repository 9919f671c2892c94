package output

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLine_Render(t *testing.T) {
	paths := map[int]string{
		1: "/tmp/out/stack.yaml",
		2: "/tmp/my bundle/stack-config.yaml",
	}

	resolve := func(id int) (string, error) {
		p, ok := paths[id]
		if !ok {
			return "", fmt.Errorf("unknown %d", id)
		}

		return p, nil
	}

	tests := []struct {
		name string
		line Line
		want string
	}{
		{
			name: "literal",
			line: Literal("set -e"),
			want: "set -e",
		},
		{
			name: "apply",
			line: Apply(FileHandle{id: 1, name: "stack.yaml"}),
			want: "kubectl apply -f /tmp/out/stack.yaml",
		},
		{
			name: "path with space is quoted",
			line: Apply(FileHandle{id: 2, name: "stack-config.yaml"}),
			want: `kubectl apply -f '/tmp/my bundle/stack-config.yaml'`,
		},
		{
			name: "multiple references",
			line: NewLine(Text("cat "), FileRef{ID: 1}, Text(" "), FileRef{ID: 2}),
			want: `cat /tmp/out/stack.yaml '/tmp/my bundle/stack-config.yaml'`,
		},
		{
			name: "command quotes arguments",
			line: Command("echo", "hello world"),
			want: `echo 'hello world'`,
		},
		{
			name: "set context",
			line: SetContextNamespace("mon"),
			want: "kubectl config set-context --current --namespace=mon",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.line.render(resolve)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLine_RenderUnresolved(t *testing.T) {
	_, err := Apply(FileHandle{id: 7}).render(func(id int) (string, error) {
		return "", &FileReferenceUnresolvedError{File: "create.sh", ID: id}
	})

	var unresolved *FileReferenceUnresolvedError
	require.ErrorAs(t, err, &unresolved)
	assert.Equal(t, 7, unresolved.ID)
	assert.Equal(t, `file "create.sh" references unknown file id 7`, err.Error())
}

func TestLine_References(t *testing.T) {
	line := NewLine(Text("diff "), FileRef{ID: 3}, Text(" "), FileRef{ID: 5})
	assert.Equal(t, []int{3, 5}, line.References())
	assert.Empty(t, Literal("echo").References())
}

func TestLine_NewLineCopiesSegments(t *testing.T) {
	segments := []Segment{Text("a")}
	line := NewLine(segments...)
	segments[0] = Text("b")

	assert.Equal(t, Text("a"), line.Segments[0])
}
