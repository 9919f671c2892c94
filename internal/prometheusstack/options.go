package prometheusstack

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	"k8s.io/apimachinery/pkg/util/validation"
	sigsyaml "sigs.k8s.io/yaml"

	"github.com/hupe1980/promstack/internal/k8s"
	"github.com/hupe1980/promstack/internal/option"
	"github.com/hupe1980/promstack/internal/promconfig"
)

// Volume names configurable under kubernetes.volumes and kubernetes.storage.
const (
	VolumePrometheusData = "prometheus-data"
	VolumeGrafanaData    = "grafana-data"
)

// Default container images.
const (
	DefaultPrometheusImage       = "prom/prometheus:v2.53.0"
	DefaultGrafanaImage          = "grafana/grafana:10.4.2"
	DefaultKubeStateMetricsImage = "registry.k8s.io/kube-state-metrics/kube-state-metrics:v2.12.0"
	DefaultNodeExporterImage     = "prom/node-exporter:v1.8.1"
)

// Defaults returns the default option tree. User options are merged on top.
func Defaults() option.Tree {
	return option.Tree{
		"basename":  "prometheusstack",
		"namespace": "monitoring",
		"enable": map[string]interface{}{
			"prometheus":       true,
			"grafana":          true,
			"kubestatemetrics": true,
			"nodeexporter":     true,
		},
		"config": map[string]interface{}{
			"prometheus_annotation": false,
			"prometheus_config":     nil,
			"scrape_interval":       "30s",
			"retention":             "15d",
			"scrape": map[string]interface{}{
				"prometheus":        true,
				"pods":              true,
				"service_endpoints": true,
				"nodes":             true,
			},
			"grafana_provisioning": map[string]interface{}{
				"datasources": nil,
				"dashboards":  nil,
			},
			"grafana_admin": map[string]interface{}{
				"user":     "admin",
				"password": "admin",
			},
			"grafana_install_plugins": []interface{}{},
			"grafana_anonymous_auth":  false,
		},
		"container": stringTree(DefaultImages()),
		"kubernetes": map[string]interface{}{
			"volumes": map[string]interface{}{
				VolumePrometheusData: nil,
				VolumeGrafanaData:    nil,
			},
			"resources": map[string]interface{}{
				LogicalPrometheusStatefulSet:      nil,
				LogicalGrafanaDeployment:          nil,
				LogicalKubeStateMetricsDeployment: nil,
				LogicalNodeExporterDaemonSet:      nil,
			},
			"storage": map[string]interface{}{
				VolumePrometheusData: nil,
				VolumeGrafanaData:    nil,
			},
		},
	}
}

// DefaultImages returns the container image of every component, keyed by
// the component name used under the "container" option.
func DefaultImages() map[string]string {
	return map[string]string{
		"prometheus":         DefaultPrometheusImage,
		"grafana":            DefaultGrafanaImage,
		"kube-state-metrics": DefaultKubeStateMetricsImage,
		"node-exporter":      DefaultNodeExporterImage,
	}
}

// ImageConstraints returns the minimum versions the generated manifests rely
// on: Prometheus 2 flags and Grafana 5 provisioning.
func ImageConstraints() map[string]string {
	return map[string]string{
		"prometheus": ">= 2.0.0-0",
		"grafana":    ">= 5.0.0-0",
	}
}

func stringTree(m map[string]string) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}

	return out
}

// storageSpec configures a PersistentVolumeClaim.
type storageSpec struct {
	Size             resource.Quantity
	StorageClassName *string
	AccessModes      []corev1.PersistentVolumeAccessMode
}

// settings is the validated view of the option tree. Values that depend on
// object names (which may be renamed later) are resolved by the generators.
type settings struct {
	basename  string
	namespace string

	prometheus       bool
	grafana          bool
	kubeStateMetrics bool
	nodeExporter     bool

	annotate bool

	prometheusConfig option.Value
	scrape           promconfig.ScrapeOptions
	retention        string

	datasources option.Value
	dashboards  option.Value

	adminUser     string
	adminPassword string
	plugins       []string
	anonymousAuth bool

	images    map[string]string
	volumes   map[string]*corev1.VolumeSource
	resources map[string]*corev1.ResourceRequirements
	storage   map[string]*storageSpec
}

// loadSettings reads and validates the options.
func loadSettings(r *option.Resolver) (*settings, error) {
	s := &settings{
		images:    make(map[string]string),
		volumes:   make(map[string]*corev1.VolumeSource),
		resources: make(map[string]*corev1.ResourceRequirements),
		storage:   make(map[string]*storageSpec),
	}

	var err error

	if s.basename, err = r.String("basename"); err != nil {
		return nil, err
	}

	if errs := validation.IsDNS1123Label(s.basename); len(errs) > 0 {
		return nil, fmt.Errorf("option %q: invalid basename %q: %s", "basename", s.basename, strings.Join(errs, "; "))
	}

	if s.namespace, err = r.String("namespace"); err != nil {
		return nil, err
	}

	if errs := validation.IsDNS1123Label(s.namespace); len(errs) > 0 {
		return nil, fmt.Errorf("option %q: invalid namespace %q: %s", "namespace", s.namespace, strings.Join(errs, "; "))
	}

	flags := []struct {
		path string
		dst  *bool
	}{
		{"enable.prometheus", &s.prometheus},
		{"enable.grafana", &s.grafana},
		{"enable.kubestatemetrics", &s.kubeStateMetrics},
		{"enable.nodeexporter", &s.nodeExporter},
		{"config.prometheus_annotation", &s.annotate},
		{"config.grafana_anonymous_auth", &s.anonymousAuth},
		{"config.scrape.prometheus", &s.scrape.Prometheus},
		{"config.scrape.pods", &s.scrape.Pods},
		{"config.scrape.service_endpoints", &s.scrape.ServiceEndpoints},
		{"config.scrape.nodes", &s.scrape.Nodes},
	}

	for _, f := range flags {
		if *f.dst, err = r.BoolOr(f.path, false); err != nil {
			return nil, err
		}
	}

	if s.scrape.Interval, err = r.StringOr("config.scrape_interval", "30s"); err != nil {
		return nil, err
	}

	if s.retention, err = r.StringOr("config.retention", "15d"); err != nil {
		return nil, err
	}

	for _, d := range []string{s.scrape.Interval, s.retention} {
		if _, err := promconfig.ParseDuration(d); err != nil {
			return nil, fmt.Errorf("option config: %w", err)
		}
	}

	if s.prometheusConfig, err = optional(r, "config.prometheus_config", option.KindScalar, option.KindMapping); err != nil {
		return nil, err
	}

	if s.datasources, err = optional(r, "config.grafana_provisioning.datasources", option.KindSequence); err != nil {
		return nil, err
	}

	if s.dashboards, err = optional(r, "config.grafana_provisioning.dashboards", option.KindSequence); err != nil {
		return nil, err
	}

	if s.adminUser, err = r.StringOr("config.grafana_admin.user", "admin"); err != nil {
		return nil, err
	}

	if s.adminPassword, err = r.StringOr("config.grafana_admin.password", "admin"); err != nil {
		return nil, err
	}

	plugins, err := optional(r, "config.grafana_install_plugins", option.KindSequence)
	if err != nil {
		return nil, err
	}

	if !plugins.IsNull() {
		if s.plugins, err = plugins.Strings(); err != nil {
			return nil, err
		}
	}

	if err := s.loadImages(r); err != nil {
		return nil, err
	}

	for _, vol := range []string{VolumePrometheusData, VolumeGrafanaData} {
		if err := s.loadVolume(r, vol); err != nil {
			return nil, err
		}

		if err := s.loadStorage(r, vol); err != nil {
			return nil, err
		}
	}

	for _, name := range []string{
		LogicalPrometheusStatefulSet,
		LogicalGrafanaDeployment,
		LogicalKubeStateMetricsDeployment,
		LogicalNodeExporterDaemonSet,
	} {
		if err := s.loadResources(r, name); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// optional resolves a path that may be absent or null, checking its kind.
func optional(r *option.Resolver, path string, kinds ...option.Kind) (option.Value, error) {
	v, ok, err := r.Lookup(path)
	if err != nil {
		return option.Value{}, err
	}

	if !ok || v.IsNull() {
		return option.Value{}, nil
	}

	for _, k := range kinds {
		if v.Kind() == k {
			return v, nil
		}
	}

	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = k.String()
	}

	return option.Value{}, &option.TypeError{Path: path, Want: strings.Join(names, " or "), Got: v.Kind().String()}
}

func (s *settings) loadImages(r *option.Resolver) error {
	constraints := ImageConstraints()

	for component, def := range DefaultImages() {
		image, err := r.StringOr("container."+component, def)
		if err != nil {
			return err
		}

		if constraint, ok := constraints[component]; ok {
			if err := checkImageVersion(component, image, constraint); err != nil {
				return err
			}
		}

		s.images[component] = image
	}

	return nil
}

// checkImageVersion verifies that a semver image tag satisfies constraint.
// Tags that are not semantic versions (latest, digests, custom builds) are
// accepted as-is.
func checkImageVersion(component, image, constraint string) error {
	tag := k8s.ParseImage(image).Tag
	if tag == "" {
		return nil
	}

	v, err := semver.NewVersion(tag)
	if err != nil {
		return nil //nolint:nilerr // non-semver tags are not checked
	}

	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return fmt.Errorf("image constraint %q: %w", constraint, err)
	}

	if !c.Check(v) {
		return fmt.Errorf("option %q: image %q does not satisfy %s", "container."+component, image, constraint)
	}

	return nil
}

func (s *settings) loadVolume(r *option.Resolver, name string) error {
	path := "kubernetes.volumes." + name

	v, err := optional(r, path, option.KindMapping)
	if err != nil || v.IsNull() {
		return err
	}

	var src corev1.VolumeSource
	if err := decodeInto(v, &src); err != nil {
		return fmt.Errorf("option %q: %w", path, err)
	}

	s.volumes[name] = &src

	return nil
}

func (s *settings) loadResources(r *option.Resolver, name string) error {
	path := "kubernetes.resources." + name

	v, err := optional(r, path, option.KindMapping)
	if err != nil || v.IsNull() {
		return err
	}

	var req corev1.ResourceRequirements
	if err := decodeInto(v, &req); err != nil {
		return fmt.Errorf("option %q: %w", path, err)
	}

	s.resources[name] = &req

	return nil
}

func (s *settings) loadStorage(r *option.Resolver, name string) error {
	path := "kubernetes.storage." + name

	v, err := optional(r, path, option.KindMapping)
	if err != nil || v.IsNull() {
		return err
	}

	sub, err := option.NewResolver(option.Tree(mustMapping(v)))
	if err != nil {
		return err
	}

	sizeStr, err := sub.String("size")
	if err != nil {
		return fmt.Errorf("option %q: %w", path, err)
	}

	size, err := resource.ParseQuantity(sizeStr)
	if err != nil {
		return fmt.Errorf("option %q: invalid size %q: %w", path, sizeStr, err)
	}

	spec := &storageSpec{Size: size}

	if className, ok, err := sub.Lookup("storageClassName"); err != nil {
		return err
	} else if ok && !className.IsNull() {
		cls, err := className.String()
		if err != nil {
			return fmt.Errorf("option %q: %w", path, err)
		}

		spec.StorageClassName = &cls
	}

	modes, err := optional(sub, "accessModes", option.KindSequence)
	if err != nil {
		return fmt.Errorf("option %q: %w", path, err)
	}

	if modes.IsNull() {
		spec.AccessModes = []corev1.PersistentVolumeAccessMode{corev1.ReadWriteOnce}
	} else {
		names, err := modes.Strings()
		if err != nil {
			return fmt.Errorf("option %q: %w", path, err)
		}

		for _, m := range names {
			spec.AccessModes = append(spec.AccessModes, corev1.PersistentVolumeAccessMode(m))
		}
	}

	s.storage[name] = spec

	return nil
}

func mustMapping(v option.Value) map[string]interface{} {
	m, _ := v.Mapping()

	return m
}

// decodeInto converts a mapping option into a typed API struct, rejecting
// unknown fields.
func decodeInto(v option.Value, dst interface{}) error {
	data, err := sigsyaml.Marshal(v.Interface())
	if err != nil {
		return err
	}

	return sigsyaml.UnmarshalStrict(data, dst)
}
