package prometheusstack

import (
	"strconv"
	"strings"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"

	"github.com/hupe1980/promstack/internal/builder"
	"github.com/hupe1980/promstack/internal/k8s"
)

var (
	typeService     = metav1.TypeMeta{APIVersion: "v1", Kind: "Service"}
	typeStatefulSet = metav1.TypeMeta{APIVersion: appsv1.SchemeGroupVersion.String(), Kind: "StatefulSet"}
	typeDeployment  = metav1.TypeMeta{APIVersion: appsv1.SchemeGroupVersion.String(), Kind: "Deployment"}
	typeDaemonSet   = metav1.TypeMeta{APIVersion: appsv1.SchemeGroupVersion.String(), Kind: "DaemonSet"}
)

// Volume names used inside pod specs.
const (
	volumeConfig = "config"
	volumeData   = "data"
)

// service generates the SERVICE group: the workloads and their services.
func (s *Stack) service(b *builder.Builder) ([]*k8s.Object, error) {
	out := s.newObjects(b)

	if s.settings.prometheus {
		out.add(LogicalPrometheusStatefulSet, s.prometheusStatefulSet(b))
		out.add(LogicalPrometheusService, s.serviceFor(b, LogicalPrometheusService, componentPrometheus, portPrometheus, portService))
	}

	if s.settings.grafana {
		out.add(LogicalGrafanaDeployment, s.grafanaDeployment(b))
		out.add(LogicalGrafanaService, s.serviceFor(b, LogicalGrafanaService, componentGrafana, portGrafana, portService))
	}

	if s.settings.kubeStateMetrics {
		out.add(LogicalKubeStateMetricsDeployment, s.kubeStateMetricsDeployment(b))
		out.add(LogicalKubeStateMetricsService, s.serviceFor(b, LogicalKubeStateMetricsService, componentKubeStateMetrics, portKubeStateMetrics, portKubeStateMetrics))
	}

	if s.settings.nodeExporter {
		out.add(LogicalNodeExporterDaemonSet, s.nodeExporterDaemonSet(b))
		out.add(LogicalNodeExporterService, s.serviceFor(b, LogicalNodeExporterService, componentNodeExporter, portNodeExporter, portNodeExporter))
	}

	return out.result()
}

// serviceFor returns a ClusterIP service forwarding port to targetPort of
// the component's pods.
func (s *Stack) serviceFor(b *builder.Builder, logicalName, component string, targetPort, port int) *corev1.Service {
	meta := s.meta(b, logicalName, component)
	meta.Annotations = s.scrapeAnnotations(targetPort)

	return &corev1.Service{
		TypeMeta:   typeService,
		ObjectMeta: meta,
		Spec: corev1.ServiceSpec{
			Type:     corev1.ServiceTypeClusterIP,
			Selector: s.selectorLabels(component),
			Ports: []corev1.ServicePort{{
				Name:       "http",
				Port:       int32(port),
				TargetPort: intstr.FromInt32(int32(targetPort)),
				Protocol:   corev1.ProtocolTCP,
			}},
		},
	}
}

func (s *Stack) prometheusStatefulSet(b *builder.Builder) *appsv1.StatefulSet {
	replicas := int32(1)

	container := corev1.Container{
		Name:  componentPrometheus,
		Image: s.settings.images["prometheus"],
		Args: []string{
			"--config.file=/etc/prometheus/" + KeyPrometheusConfig,
			"--storage.tsdb.path=/prometheus",
			"--storage.tsdb.retention.time=" + s.settings.retention,
			"--web.enable-lifecycle",
		},
		Ports: []corev1.ContainerPort{{Name: "http", ContainerPort: portPrometheus}},
		VolumeMounts: []corev1.VolumeMount{
			{Name: volumeConfig, MountPath: "/etc/prometheus"},
			{Name: volumeData, MountPath: "/prometheus"},
		},
		ReadinessProbe: httpProbe("/-/ready", portPrometheus),
		LivenessProbe:  httpProbe("/-/healthy", portPrometheus),
	}
	s.applyResources(&container, LogicalPrometheusStatefulSet)

	return &appsv1.StatefulSet{
		TypeMeta:   typeStatefulSet,
		ObjectMeta: s.meta(b, LogicalPrometheusStatefulSet, componentPrometheus),
		Spec: appsv1.StatefulSetSpec{
			ServiceName: b.ObjectName(LogicalPrometheusService),
			Replicas:    &replicas,
			Selector:    &metav1.LabelSelector{MatchLabels: s.selectorLabels(componentPrometheus)},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: s.labels(componentPrometheus)},
				Spec: corev1.PodSpec{
					ServiceAccountName: b.ObjectName(LogicalPrometheusServiceAccount),
					SecurityContext:    podSecurity(65534),
					Containers:         []corev1.Container{container},
					Volumes: []corev1.Volume{
						configMapVolume(volumeConfig, b.ObjectName(LogicalPrometheusConfig)),
						s.dataVolume(b, VolumePrometheusData, LogicalPrometheusStorageClaim),
					},
				},
			},
		},
	}
}

func (s *Stack) grafanaDeployment(b *builder.Builder) *appsv1.Deployment {
	replicas := int32(1)
	secret := b.ObjectName(LogicalGrafanaConfigSecret)

	env := []corev1.EnvVar{
		secretEnv("GF_SECURITY_ADMIN_USER", secret, KeyGrafanaAdminUser),
		secretEnv("GF_SECURITY_ADMIN_PASSWORD", secret, KeyGrafanaAdminPass),
		{Name: "GF_AUTH_ANONYMOUS_ENABLED", Value: strconv.FormatBool(s.settings.anonymousAuth)},
	}

	if len(s.settings.plugins) > 0 {
		env = append(env, corev1.EnvVar{Name: "GF_INSTALL_PLUGINS", Value: strings.Join(s.settings.plugins, ",")})
	}

	config := b.ObjectName(LogicalGrafanaConfig)

	container := corev1.Container{
		Name:  componentGrafana,
		Image: s.settings.images["grafana"],
		Env:   env,
		Ports: []corev1.ContainerPort{{Name: "http", ContainerPort: portGrafana}},
		VolumeMounts: []corev1.VolumeMount{
			{Name: "datasources", MountPath: "/etc/grafana/provisioning/datasources"},
			{Name: "dashboards", MountPath: "/etc/grafana/provisioning/dashboards"},
			{Name: volumeData, MountPath: "/var/lib/grafana"},
		},
		ReadinessProbe: httpProbe("/api/health", portGrafana),
	}
	s.applyResources(&container, LogicalGrafanaDeployment)

	return &appsv1.Deployment{
		TypeMeta:   typeDeployment,
		ObjectMeta: s.meta(b, LogicalGrafanaDeployment, componentGrafana),
		Spec: appsv1.DeploymentSpec{
			Replicas: &replicas,
			Selector: &metav1.LabelSelector{MatchLabels: s.selectorLabels(componentGrafana)},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: s.labels(componentGrafana)},
				Spec: corev1.PodSpec{
					SecurityContext: podSecurity(472),
					Containers:      []corev1.Container{container},
					Volumes: []corev1.Volume{
						configMapItemVolume("datasources", config, KeyGrafanaDatasources),
						configMapItemVolume("dashboards", config, KeyGrafanaDashboards),
						s.dataVolume(b, VolumeGrafanaData, LogicalGrafanaStorageClaim),
					},
				},
			},
		},
	}
}

func (s *Stack) kubeStateMetricsDeployment(b *builder.Builder) *appsv1.Deployment {
	replicas := int32(1)

	container := corev1.Container{
		Name:           componentKubeStateMetrics,
		Image:          s.settings.images["kube-state-metrics"],
		Ports:          []corev1.ContainerPort{{Name: "http", ContainerPort: portKubeStateMetrics}},
		ReadinessProbe: httpProbe("/healthz", portKubeStateMetrics),
	}
	s.applyResources(&container, LogicalKubeStateMetricsDeployment)

	return &appsv1.Deployment{
		TypeMeta:   typeDeployment,
		ObjectMeta: s.meta(b, LogicalKubeStateMetricsDeployment, componentKubeStateMetrics),
		Spec: appsv1.DeploymentSpec{
			Replicas: &replicas,
			Selector: &metav1.LabelSelector{MatchLabels: s.selectorLabels(componentKubeStateMetrics)},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: s.labels(componentKubeStateMetrics)},
				Spec: corev1.PodSpec{
					ServiceAccountName: b.ObjectName(LogicalKubeStateMetricsServiceAccount),
					SecurityContext:    podSecurity(65534),
					Containers:         []corev1.Container{container},
				},
			},
		},
	}
}

func (s *Stack) nodeExporterDaemonSet(b *builder.Builder) *appsv1.DaemonSet {
	container := corev1.Container{
		Name:  componentNodeExporter,
		Image: s.settings.images["node-exporter"],
		Args: []string{
			"--path.procfs=/host/proc",
			"--path.sysfs=/host/sys",
			"--path.rootfs=/host/root",
		},
		Ports: []corev1.ContainerPort{{Name: "http", ContainerPort: portNodeExporter, HostPort: portNodeExporter}},
		VolumeMounts: []corev1.VolumeMount{
			{Name: "proc", MountPath: "/host/proc", ReadOnly: true},
			{Name: "sys", MountPath: "/host/sys", ReadOnly: true},
			{Name: "root", MountPath: "/host/root", ReadOnly: true},
		},
	}
	s.applyResources(&container, LogicalNodeExporterDaemonSet)

	return &appsv1.DaemonSet{
		TypeMeta:   typeDaemonSet,
		ObjectMeta: s.meta(b, LogicalNodeExporterDaemonSet, componentNodeExporter),
		Spec: appsv1.DaemonSetSpec{
			Selector: &metav1.LabelSelector{MatchLabels: s.selectorLabels(componentNodeExporter)},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: s.labels(componentNodeExporter)},
				Spec: corev1.PodSpec{
					HostNetwork: true,
					HostPID:     true,
					Tolerations: []corev1.Toleration{{Operator: corev1.TolerationOpExists}},
					Containers:  []corev1.Container{container},
					Volumes: []corev1.Volume{
						hostPathVolume("proc", "/proc"),
						hostPathVolume("sys", "/sys"),
						hostPathVolume("root", "/"),
					},
				},
			},
		},
	}
}

// dataVolume returns the data volume of a component: the configured volume
// source, else the storage claim when storage is configured, else an
// emptyDir.
func (s *Stack) dataVolume(b *builder.Builder, name, claim string) corev1.Volume {
	vol := corev1.Volume{Name: volumeData}

	switch {
	case s.settings.volumes[name] != nil:
		vol.VolumeSource = *s.settings.volumes[name].DeepCopy()
	case s.settings.storage[name] != nil:
		vol.PersistentVolumeClaim = &corev1.PersistentVolumeClaimVolumeSource{
			ClaimName: b.ObjectName(claim),
		}
	default:
		vol.EmptyDir = &corev1.EmptyDirVolumeSource{}
	}

	return vol
}

func (s *Stack) applyResources(c *corev1.Container, logicalName string) {
	if req := s.settings.resources[logicalName]; req != nil {
		c.Resources = *req.DeepCopy()
	}
}

func configMapVolume(name, configMap string) corev1.Volume {
	return corev1.Volume{
		Name: name,
		VolumeSource: corev1.VolumeSource{
			ConfigMap: &corev1.ConfigMapVolumeSource{
				LocalObjectReference: corev1.LocalObjectReference{Name: configMap},
			},
		},
	}
}

// configMapItemVolume projects a single optional key of a ConfigMap.
func configMapItemVolume(name, configMap, key string) corev1.Volume {
	optional := true

	vol := configMapVolume(name, configMap)
	vol.ConfigMap.Items = []corev1.KeyToPath{{Key: key, Path: key}}
	vol.ConfigMap.Optional = &optional

	return vol
}

func hostPathVolume(name, path string) corev1.Volume {
	return corev1.Volume{
		Name: name,
		VolumeSource: corev1.VolumeSource{
			HostPath: &corev1.HostPathVolumeSource{Path: path},
		},
	}
}

func secretEnv(name, secret, key string) corev1.EnvVar {
	return corev1.EnvVar{
		Name: name,
		ValueFrom: &corev1.EnvVarSource{
			SecretKeyRef: &corev1.SecretKeySelector{
				LocalObjectReference: corev1.LocalObjectReference{Name: secret},
				Key:                  key,
			},
		},
	}
}

func httpProbe(path string, port int) *corev1.Probe {
	return &corev1.Probe{
		ProbeHandler: corev1.ProbeHandler{
			HTTPGet: &corev1.HTTPGetAction{
				Path: path,
				Port: intstr.FromInt32(int32(port)),
			},
		},
		InitialDelaySeconds: 10,
		PeriodSeconds:       10,
	}
}

func podSecurity(user int64) *corev1.PodSecurityContext {
	nonRoot := true

	return &corev1.PodSecurityContext{
		RunAsUser:    &user,
		RunAsNonRoot: &nonRoot,
		FSGroup:      &user,
	}
}
