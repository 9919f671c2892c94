package prometheusstack

import (
	"strconv"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"

	"github.com/hupe1980/promstack/internal/builder"
	"github.com/hupe1980/promstack/internal/k8s"
)

// Recommended label keys.
const (
	LabelName      = "app.kubernetes.io/name"
	LabelInstance  = "app.kubernetes.io/instance"
	LabelComponent = "app.kubernetes.io/component"
	LabelManagedBy = "app.kubernetes.io/managed-by"

	// ManagedBy is the value of LabelManagedBy on generated objects.
	ManagedBy = "promstack"
)

// Scrape annotations understood by the generated scrape configuration.
const (
	AnnotationScrape = "prometheus.io/scrape"
	AnnotationPort   = "prometheus.io/port"
	AnnotationPath   = "prometheus.io/path"
)

// selectorLabels are the labels pods are selected by.
func (s *Stack) selectorLabels(component string) map[string]string {
	return map[string]string{
		LabelName:     component,
		LabelInstance: s.settings.basename,
	}
}

func (s *Stack) labels(component string) map[string]string {
	l := s.selectorLabels(component)
	l[LabelComponent] = component
	l[LabelManagedBy] = ManagedBy

	return l
}

// meta returns the object metadata for a namespaced object.
func (s *Stack) meta(b *builder.Builder, logicalName, component string) metav1.ObjectMeta {
	return metav1.ObjectMeta{
		Name:      b.ObjectName(logicalName),
		Namespace: s.settings.namespace,
		Labels:    s.labels(component),
	}
}

// clusterMeta returns the object metadata for a cluster-scoped object.
func (s *Stack) clusterMeta(b *builder.Builder, logicalName, component string) metav1.ObjectMeta {
	return metav1.ObjectMeta{
		Name:   b.ObjectName(logicalName),
		Labels: s.labels(component),
	}
}

// scrapeAnnotations returns the prometheus.io annotations for a service
// exposing metrics on port, or nil when annotation is disabled.
func (s *Stack) scrapeAnnotations(port int) map[string]string {
	if !s.settings.annotate {
		return nil
	}

	return map[string]string{
		AnnotationScrape: "true",
		AnnotationPort:   strconv.Itoa(port),
	}
}

// objects converts typed API objects into builder objects.
type objects struct {
	source   string
	instance string
	list     []*k8s.Object
	err      error
}

func (s *Stack) newObjects(b *builder.Builder) *objects {
	return &objects{source: b.Name(), instance: s.settings.basename}
}

func (o *objects) add(logicalName string, obj runtime.Object) {
	if o.err != nil {
		return
	}

	converted, err := k8s.FromTyped(obj, logicalName, o.source, o.instance)
	if err != nil {
		o.err = err

		return
	}

	o.list = append(o.list, converted)
}

func (o *objects) result() ([]*k8s.Object, error) {
	if o.err != nil {
		return nil, o.err
	}

	return o.list, nil
}
