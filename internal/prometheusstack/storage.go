package prometheusstack

import (
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/hupe1980/promstack/internal/builder"
	"github.com/hupe1980/promstack/internal/k8s"
)

var typePersistentVolumeClaim = metav1.TypeMeta{APIVersion: "v1", Kind: "PersistentVolumeClaim"}

// storage generates the STORAGE group: a claim for every enabled component
// whose data volume is configured under kubernetes.storage. Components with
// an explicit kubernetes.volumes entry do not get a claim.
func (s *Stack) storage(b *builder.Builder) ([]*k8s.Object, error) {
	out := s.newObjects(b)

	claims := []struct {
		enabled   bool
		volume    string
		logical   string
		component string
	}{
		{s.settings.prometheus, VolumePrometheusData, LogicalPrometheusStorageClaim, componentPrometheus},
		{s.settings.grafana, VolumeGrafanaData, LogicalGrafanaStorageClaim, componentGrafana},
	}

	for _, c := range claims {
		spec := s.settings.storage[c.volume]
		if !c.enabled || spec == nil || s.settings.volumes[c.volume] != nil {
			continue
		}

		out.add(c.logical, s.claim(b, c.logical, c.component, spec))
	}

	return out.result()
}

// claim returns the PersistentVolumeClaim for spec. Without an explicit
// storage class the provider's default class is used.
func (s *Stack) claim(b *builder.Builder, logicalName, component string, spec *storageSpec) *corev1.PersistentVolumeClaim {
	class := spec.StorageClassName
	if class == nil {
		if def := b.Provider().DefaultStorageClass(); def != "" {
			class = &def
		}
	}

	return &corev1.PersistentVolumeClaim{
		TypeMeta:   typePersistentVolumeClaim,
		ObjectMeta: s.meta(b, logicalName, component),
		Spec: corev1.PersistentVolumeClaimSpec{
			AccessModes:      append([]corev1.PersistentVolumeAccessMode(nil), spec.AccessModes...),
			StorageClassName: class,
			Resources: corev1.VolumeResourceRequirements{
				Requests: corev1.ResourceList{
					corev1.ResourceStorage: spec.Size.DeepCopy(),
				},
			},
		},
	}
}
