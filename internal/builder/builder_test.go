package builder_test

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/promstack/internal/builder"
	"github.com/hupe1980/promstack/internal/k8s"
	"github.com/hupe1980/promstack/internal/option"
	"github.com/hupe1980/promstack/internal/provider"
)

const (
	groupA       builder.Group = "a"
	groupB       builder.Group = "b"
	groupService builder.Group = "service"
)

// recorder counts generator invocations and remembers their order.
type recorder struct {
	calls []builder.Group
}

func (r *recorder) generator(g builder.Group, logical ...string) builder.GenerateFunc {
	return func(b *builder.Builder) ([]*k8s.Object, error) {
		r.calls = append(r.calls, g)

		objs := make([]*k8s.Object, 0, len(logical))

		for _, l := range logical {
			obj, err := k8s.NewObject(map[string]interface{}{
				"apiVersion": "v1",
				"kind":       "ConfigMap",
				"metadata": map[string]interface{}{
					"name": b.ObjectName(l),
				},
			}, l, b.Name(), "test")
			if err != nil {
				return nil, err
			}

			objs = append(objs, obj)
		}

		return objs, nil
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestBuilder(t *testing.T, rec *recorder) *builder.Builder {
	t.Helper()

	b := builder.New("test", option.Empty(), provider.Generic, builder.WithLogger(quietLogger()))
	b.SetDefaultNames(map[string]string{
		"a-config":           "test-a",
		"b-config":           "test-b",
		"prometheus-service": "test-prometheus",
	})

	require.NoError(t, b.Register(builder.GroupSpec{Name: groupA, Generate: rec.generator(groupA, "a-config")}))
	require.NoError(t, b.Register(builder.GroupSpec{Name: groupB, Generate: rec.generator(groupB, "b-config")}))
	require.NoError(t, b.Register(builder.GroupSpec{
		Name:     groupService,
		Requires: []builder.Group{groupA, groupB},
		Generate: rec.generator(groupService, "prometheus-service"),
	}))

	return b
}

func logicalNames(objs []*k8s.Object) []string {
	names := make([]string, len(objs))
	for i, o := range objs {
		names[i] = o.LogicalName()
	}

	return names
}

// ---------------------------------------------------------------------------
// Registration
// ---------------------------------------------------------------------------

func TestBuilder_Register(t *testing.T) {
	rec := &recorder{}
	b := newTestBuilder(t, rec)

	assert.Equal(t, []builder.Group{groupA, groupB, groupService}, b.Groups())

	reqs, err := b.Requires(groupService)
	require.NoError(t, err)
	assert.Equal(t, []builder.Group{groupA, groupB}, reqs)

	_, err = b.Requires("nope")

	var unknown *builder.UnknownGroupError
	require.ErrorAs(t, err, &unknown)

	err = b.Register(builder.GroupSpec{Name: groupA, Generate: rec.generator(groupA)})
	require.ErrorIs(t, err, builder.ErrDuplicateGroup)

	require.Error(t, b.Register(builder.GroupSpec{Name: "", Generate: rec.generator("")}))
	require.Error(t, b.Register(builder.GroupSpec{Name: "x"}))
}

func TestBuilder_Accessors(t *testing.T) {
	opts, err := option.NewResolver(option.Tree{"basename": "x"})
	require.NoError(t, err)

	p := provider.Provider{Platform: "google", Service: "gke"}
	b := builder.New("stack", opts, p)

	assert.Equal(t, "stack", b.Name())
	assert.Same(t, opts, b.Options())
	assert.Equal(t, p, b.Provider())
	assert.NotNil(t, builder.New("nil-options", nil, p).Options())
}

// ---------------------------------------------------------------------------
// Building
// ---------------------------------------------------------------------------

func TestBuilder_BuildMaterializesPrerequisitesOnce(t *testing.T) {
	rec := &recorder{}
	b := newTestBuilder(t, rec)

	objs, err := b.Build(groupService)
	require.NoError(t, err)

	assert.Equal(t, []builder.Group{groupA, groupB, groupService}, rec.calls)
	assert.Equal(t, []string{"prometheus-service"}, logicalNames(objs))
	assert.Equal(t, builder.State{groupA: builder.Built, groupB: builder.Built, groupService: builder.Built}, b.State())
}

func TestBuilder_BuildIsIdempotent(t *testing.T) {
	rec := &recorder{}
	b := newTestBuilder(t, rec)

	first, err := b.Build(groupService, groupA)
	require.NoError(t, err)

	second, err := b.Build(groupService, groupA)
	require.NoError(t, err)

	assert.Equal(t, logicalNames(first), logicalNames(second))

	for i := range first {
		assert.Equal(t, first[i].Document(), second[i].Document())
	}

	assert.Len(t, rec.calls, 3, "no group is generated twice")
}

func TestBuilder_BuildOrderFollowsArguments(t *testing.T) {
	rec := &recorder{}
	b := newTestBuilder(t, rec)

	require.NoError(t, b.EnsureBuildNames(groupA, groupB))

	objs, err := b.Build(groupB, groupA)
	require.NoError(t, err)
	assert.Equal(t, []string{"b-config", "a-config"}, logicalNames(objs))

	objs, err = b.Build(groupService, groupB, groupA)
	require.NoError(t, err)
	assert.Equal(t, []string{"prometheus-service", "b-config", "a-config"}, logicalNames(objs))
}

func TestBuilder_EnsureBuildNamesUnknownGroup(t *testing.T) {
	rec := &recorder{}
	b := newTestBuilder(t, rec)

	err := b.EnsureBuildNames(groupA, "nope")

	var unknown *builder.UnknownGroupError
	require.ErrorAs(t, err, &unknown)
	assert.Empty(t, rec.calls)
	assert.Empty(t, b.State())
}

func TestBuilder_EnsureBuildNamesCycle(t *testing.T) {
	b := builder.New("cyclic", nil, provider.Generic, builder.WithLogger(quietLogger()))
	rec := &recorder{}

	require.NoError(t, b.Register(builder.GroupSpec{Name: "x", Requires: []builder.Group{"y"}, Generate: rec.generator("x")}))
	require.NoError(t, b.Register(builder.GroupSpec{Name: "y", Requires: []builder.Group{"x"}, Generate: rec.generator("y")}))

	err := b.EnsureBuildNames("x")

	var cycle *builder.DependencyCycleError
	require.ErrorAs(t, err, &cycle)
	assert.Equal(t, []builder.Group{"x", "y", "x"}, cycle.Chain)
	assert.Empty(t, rec.calls)
}

func TestBuilder_NoPartialSuccess(t *testing.T) {
	rec := &recorder{}
	b := builder.New("partial", nil, provider.Generic, builder.WithLogger(quietLogger()))

	boom := errors.New("boom")

	require.NoError(t, b.Register(builder.GroupSpec{Name: groupA, Generate: rec.generator(groupA, "a-config")}))
	require.NoError(t, b.Register(builder.GroupSpec{
		Name:     groupB,
		Requires: []builder.Group{groupA},
		Generate: func(*builder.Builder) ([]*k8s.Object, error) { return nil, boom },
	}))

	err := b.EnsureBuildNames(groupB)
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), `building group "b"`)

	assert.Empty(t, b.State(), "group a must not be committed")

	// The failed call left nothing behind; a is generated again on the next
	// successful request.
	objs, err := b.Build(groupA)
	require.NoError(t, err)
	assert.Equal(t, []string{"a-config"}, logicalNames(objs))
	assert.Equal(t, []builder.Group{groupA, groupA}, rec.calls)
}

func TestBuilder_DuplicateLogicalNames(t *testing.T) {
	rec := &recorder{}
	b := builder.New("dup", nil, provider.Generic, builder.WithLogger(quietLogger()))

	require.NoError(t, b.Register(builder.GroupSpec{Name: groupA, Generate: rec.generator(groupA, "same")}))
	require.NoError(t, b.Register(builder.GroupSpec{Name: groupB, Generate: rec.generator(groupB, "same")}))
	require.NoError(t, b.Register(builder.GroupSpec{Name: "twice", Generate: rec.generator("twice", "x", "x")}))

	require.NoError(t, b.EnsureBuildNames(groupA))

	err := b.EnsureBuildNames(groupB)

	var dup *builder.DuplicateObjectError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "same", dup.LogicalName)
	assert.Equal(t, groupB, dup.Group)
	assert.Equal(t, groupA, dup.Existing)
	assert.False(t, b.State().Built(groupB))

	err = b.EnsureBuildNames("twice")
	require.ErrorAs(t, err, &dup)
	assert.Contains(t, err.Error(), `duplicate object "x" in build group "twice"`)
}

func TestBuilder_SkipsNilObjects(t *testing.T) {
	b := builder.New("nil", nil, provider.Generic, builder.WithLogger(quietLogger()))

	require.NoError(t, b.Register(builder.GroupSpec{
		Name:     groupA,
		Generate: func(*builder.Builder) ([]*k8s.Object, error) { return []*k8s.Object{nil}, nil },
	}))

	objs, err := b.Build(groupA)
	require.NoError(t, err)
	assert.Empty(t, objs)
	assert.True(t, b.State().Built(groupA))
}

// ---------------------------------------------------------------------------
// Renames
// ---------------------------------------------------------------------------

func TestBuilder_RenameObjects(t *testing.T) {
	rec := &recorder{}
	b := newTestBuilder(t, rec)

	require.NoError(t, b.RenameObjects(k8s.RenameTable{"prometheus-service": "prometheus"}))
	assert.Equal(t, "prometheus", b.ObjectName("prometheus-service"))
	assert.Equal(t, "test-a", b.ObjectName("a-config"))
	assert.Equal(t, "unmapped", b.ObjectName("unmapped"))

	objs, err := b.Build(groupA, groupService)
	require.NoError(t, err)
	require.Len(t, objs, 2)

	assert.Equal(t, "test-a", objs[0].Name(), "objects without an entry keep their derived name")
	assert.Equal(t, "prometheus", objs[1].Name())
	assert.Equal(t, "prometheus-service", objs[1].LogicalName())
}

func TestBuilder_RenameAppliedAtEmit(t *testing.T) {
	b := builder.New("emit", nil, provider.Generic, builder.WithLogger(quietLogger()))

	// This generator ignores ObjectName; the rename still applies on emit.
	require.NoError(t, b.Register(builder.GroupSpec{
		Name: groupA,
		Generate: func(*builder.Builder) ([]*k8s.Object, error) {
			obj, err := k8s.NewObject(map[string]interface{}{
				"apiVersion": "v1",
				"kind":       "Service",
				"metadata":   map[string]interface{}{"name": "hardcoded"},
			}, "prometheus-service", "emit", "")

			return []*k8s.Object{obj}, err
		},
	}))

	require.NoError(t, b.RenameObjects(k8s.RenameTable{"prometheus-service": "prometheus"}))

	objs, err := b.Build(groupA)
	require.NoError(t, err)
	assert.Equal(t, "prometheus", objs[0].Name())
}

func TestBuilder_RenameAfterBuildFails(t *testing.T) {
	rec := &recorder{}
	b := newTestBuilder(t, rec)

	_, err := b.Build(groupA)
	require.NoError(t, err)

	err = b.RenameObjects(k8s.RenameTable{"a-config": "renamed"})

	var already *builder.AlreadyBuiltError
	require.ErrorAs(t, err, &already)
	assert.Equal(t, []builder.Group{groupA}, already.Built)
	assert.Equal(t, "test-a", b.ObjectName("a-config"))
}

func TestBuilder_RenameValidation(t *testing.T) {
	rec := &recorder{}
	b := newTestBuilder(t, rec)

	err := b.RenameObjects(k8s.RenameTable{"a-config": "Not_Valid"})
	require.Error(t, err)

	var invalid *k8s.InvalidRenameError
	require.ErrorAs(t, err, &invalid)
	assert.Empty(t, b.Renames())
}

func TestBuilder_RenameUnknownObjectWarns(t *testing.T) {
	var buf bytes.Buffer

	b := builder.New("warn", nil, provider.Generic, builder.WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))
	b.SetDefaultNames(map[string]string{"known": "k"})

	require.NoError(t, b.RenameObjects(k8s.RenameTable{"unknown": "u", "known": "k2"}))
	assert.Contains(t, buf.String(), "rename for unknown object")
	assert.Contains(t, buf.String(), "builder=warn object=unknown")
	assert.NotContains(t, buf.String(), "object=known")

	assert.Equal(t, k8s.RenameTable{"unknown": "u", "known": "k2"}, b.Renames())
	assert.Equal(t, map[string]string{"known": "k"}, b.DefaultNames())
}

func TestBuilder_RenamesAccumulate(t *testing.T) {
	b := builder.New("acc", nil, provider.Generic, builder.WithLogger(quietLogger()))

	require.NoError(t, b.RenameObjects(k8s.RenameTable{"a": "one"}))
	require.NoError(t, b.RenameObjects(k8s.RenameTable{"b": "two", "a": "uno"}))

	assert.Equal(t, k8s.RenameTable{"a": "uno", "b": "two"}, b.Renames())
}

func TestBuilder_DebugLogging(t *testing.T) {
	var buf bytes.Buffer

	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	rec := &recorder{}
	b := builder.New("dbg", nil, provider.Generic, builder.WithLogger(logger))

	require.NoError(t, b.Register(builder.GroupSpec{Name: groupA, Generate: rec.generator(groupA, "one", "two")}))
	require.NoError(t, b.EnsureBuildNames(groupA))

	assert.Contains(t, buf.String(), "built group")
	assert.Contains(t, buf.String(), "builder=dbg group=")
	assert.Contains(t, buf.String(), fmt.Sprintf("objects=%d", 2))
}
