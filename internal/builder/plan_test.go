package builder_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/promstack/internal/builder"
)

func TestPlan(t *testing.T) {
	graph := builder.Graph{
		"accesscontrol": nil,
		"config":        nil,
		"service":       {"accesscontrol", "config"},
		"storage":       nil,
		"extra":         {"service", "storage"},
	}

	tests := []struct {
		name      string
		state     builder.State
		requested []builder.Group
		want      []builder.Group
	}{
		{
			name:      "single group without prerequisites",
			requested: []builder.Group{"config"},
			want:      []builder.Group{"config"},
		},
		{
			name:      "prerequisites first in declaration order",
			requested: []builder.Group{"service"},
			want:      []builder.Group{"accesscontrol", "config", "service"},
		},
		{
			name:      "transitive prerequisites",
			requested: []builder.Group{"extra"},
			want:      []builder.Group{"accesscontrol", "config", "service", "storage", "extra"},
		},
		{
			name:      "each group once",
			requested: []builder.Group{"config", "service", "config"},
			want:      []builder.Group{"config", "accesscontrol", "service"},
		},
		{
			name:      "built groups are skipped",
			state:     builder.State{"accesscontrol": builder.Built},
			requested: []builder.Group{"service"},
			want:      []builder.Group{"config", "service"},
		},
		{
			name:      "everything built",
			state:     builder.State{"accesscontrol": builder.Built, "config": builder.Built, "service": builder.Built},
			requested: []builder.Group{"service"},
			want:      nil,
		},
		{
			name:      "nothing requested",
			requested: nil,
			want:      nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := tt.state
			if state == nil {
				state = builder.State{}
			}

			before := state.Clone()

			got, err := builder.Plan(graph, state, tt.requested...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, before, state, "Plan must not modify the state")
		})
	}
}

func TestPlan_Cycles(t *testing.T) {
	tests := []struct {
		name  string
		graph builder.Graph
		start builder.Group
		chain []builder.Group
	}{
		{
			name:  "self",
			graph: builder.Graph{"a": {"a"}},
			start: "a",
			chain: []builder.Group{"a", "a"},
		},
		{
			name:  "two groups",
			graph: builder.Graph{"a": {"b"}, "b": {"a"}},
			start: "a",
			chain: []builder.Group{"a", "b", "a"},
		},
		{
			name:  "cycle below the requested group",
			graph: builder.Graph{"top": {"a"}, "a": {"b"}, "b": {"c"}, "c": {"a"}},
			start: "top",
			chain: []builder.Group{"a", "b", "c", "a"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := builder.Plan(tt.graph, builder.State{}, tt.start)
			require.Error(t, err)

			var cycle *builder.DependencyCycleError
			require.ErrorAs(t, err, &cycle)
			assert.Equal(t, tt.chain, cycle.Chain)
			assert.Contains(t, err.Error(), "cycle")
		})
	}
}

func TestPlan_UnknownGroups(t *testing.T) {
	graph := builder.Graph{"service": {"config"}}

	_, err := builder.Plan(graph, builder.State{}, "nope")

	var unknown *builder.UnknownGroupError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, builder.Group("nope"), unknown.Group)
	assert.Empty(t, unknown.RequiredBy)

	_, err = builder.Plan(graph, builder.State{}, "service")
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, builder.Group("config"), unknown.Group)
	assert.Equal(t, builder.Group("service"), unknown.RequiredBy)
	assert.Contains(t, err.Error(), `required by "service"`)
}

func TestState(t *testing.T) {
	s := builder.State{"a": builder.Built}

	assert.True(t, s.Built("a"))
	assert.False(t, s.Built("b"))
	assert.Equal(t, "built", s["a"].String())
	assert.Equal(t, "not built", s["b"].String())

	c := s.Clone()
	c["b"] = builder.Built
	assert.False(t, s.Built("b"))
}
