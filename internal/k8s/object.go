// Package k8s provides the generated Kubernetes object model: documents that
// carry provenance metadata used for identity rewriting.
package k8s

import (
	"errors"
	"fmt"
	"strings"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"

	"github.com/hupe1980/promstack/internal/maputil"
)

// ErrEmptyLogicalName is returned when an object is constructed without a
// logical name.
var ErrEmptyLogicalName = errors.New("object logical name must not be empty")

// Object is an immutable Kubernetes document together with its provenance.
// The logical name is the stable internal identifier used for rename
// lookups; source and instance are informational tags.
type Object struct {
	doc         map[string]interface{}
	logicalName string
	source      string
	instance    string
}

// NewObject creates an Object from a raw document. The document is deep
// copied, later changes to doc do not affect the object.
func NewObject(doc map[string]interface{}, logicalName, source, instance string) (*Object, error) {
	if strings.TrimSpace(logicalName) == "" {
		return nil, ErrEmptyLogicalName
	}

	copied := maputil.DeepCopyMap(doc)
	if copied == nil {
		copied = map[string]interface{}{}
	}

	return &Object{
		doc:         copied,
		logicalName: logicalName,
		source:      source,
		instance:    instance,
	}, nil
}

// FromUnstructured creates an Object from an unstructured document.
func FromUnstructured(u *unstructured.Unstructured, logicalName, source, instance string) (*Object, error) {
	if u == nil {
		return nil, fmt.Errorf("object %q: nil document", logicalName)
	}

	return NewObject(u.Object, logicalName, source, instance)
}

// FromTyped converts a typed API object (for example a *corev1.Service) into
// an Object. The typed object must have its TypeMeta populated.
func FromTyped(obj runtime.Object, logicalName, source, instance string) (*Object, error) {
	gvk := obj.GetObjectKind().GroupVersionKind()
	if gvk.Kind == "" || gvk.Version == "" {
		return nil, fmt.Errorf("object %q: typed object %T has no apiVersion/kind", logicalName, obj)
	}

	doc, err := runtime.DefaultUnstructuredConverter.ToUnstructured(obj)
	if err != nil {
		return nil, fmt.Errorf("object %q: converting %s: %w", logicalName, gvk.Kind, err)
	}

	// Status is populated by the cluster, generated manifests never carry it.
	delete(doc, "status")

	return NewObject(doc, logicalName, source, instance)
}

// LogicalName returns the stable internal identifier.
func (o *Object) LogicalName() string { return o.logicalName }

// Source returns the provenance tag naming the producer of the object.
func (o *Object) Source() string { return o.source }

// Instance returns the provenance tag naming the producing instance.
func (o *Object) Instance() string { return o.instance }

// APIVersion returns the apiVersion string (e.g. "apps/v1").
func (o *Object) APIVersion() string {
	s, _ := o.doc["apiVersion"].(string)

	return s
}

// Kind returns the object kind (e.g. "Deployment").
func (o *Object) Kind() string {
	s, _ := o.doc["kind"].(string)

	return s
}

// GVK returns the GroupVersionKind of the object.
func (o *Object) GVK() schema.GroupVersionKind {
	return schema.FromAPIVersionAndKind(o.APIVersion(), o.Kind())
}

// Name returns metadata.name.
func (o *Object) Name() string {
	return o.view().GetName()
}

// Namespace returns metadata.namespace.
func (o *Object) Namespace() string {
	return o.view().GetNamespace()
}

// Labels returns a copy of metadata.labels.
func (o *Object) Labels() map[string]string {
	return o.view().GetLabels()
}

// Annotations returns a copy of metadata.annotations.
func (o *Object) Annotations() map[string]string {
	return o.view().GetAnnotations()
}

// QualifiedName returns "kind/name" for display purposes.
func (o *Object) QualifiedName() string {
	return o.Kind() + "/" + o.Name()
}

// Document returns a deep copy of the raw document.
func (o *Object) Document() map[string]interface{} {
	return maputil.DeepCopyMap(o.doc)
}

// Unstructured returns a deep copy of the document as an unstructured object.
func (o *Object) Unstructured() *unstructured.Unstructured {
	return &unstructured.Unstructured{Object: o.Document()}
}

// Rename returns a copy whose metadata.name is the table entry for the
// object's logical name. Objects without an entry keep their current name.
// The receiver is never modified.
func (o *Object) Rename(table RenameTable) *Object {
	name, ok := table.Get(o.logicalName)
	if !ok || name == o.Name() {
		return o
	}

	return o.mutate(func(u *unstructured.Unstructured) {
		u.SetName(name)
	})
}

// WithNamespace returns a copy with metadata.namespace set to ns when the
// object is namespaced and has no namespace yet.
func (o *Object) WithNamespace(ns string) *Object {
	if ns == "" || o.Namespace() != "" || IsClusterScoped(o.GVK()) {
		return o
	}

	return o.mutate(func(u *unstructured.Unstructured) {
		u.SetNamespace(ns)
	})
}

// WithProvenance returns a copy carrying different provenance tags.
func (o *Object) WithProvenance(source, instance string) *Object {
	return &Object{
		doc:         o.doc,
		logicalName: o.logicalName,
		source:      source,
		instance:    instance,
	}
}

// view wraps the internal document for read-only access through the
// unstructured accessors.
func (o *Object) view() *unstructured.Unstructured {
	return &unstructured.Unstructured{Object: o.doc}
}

func (o *Object) mutate(fn func(u *unstructured.Unstructured)) *Object {
	u := o.Unstructured()
	fn(u)

	return &Object{
		doc:         u.Object,
		logicalName: o.logicalName,
		source:      o.source,
		instance:    o.instance,
	}
}
