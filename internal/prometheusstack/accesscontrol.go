package prometheusstack

import (
	corev1 "k8s.io/api/core/v1"
	rbacv1 "k8s.io/api/rbac/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/hupe1980/promstack/internal/builder"
	"github.com/hupe1980/promstack/internal/k8s"
)

var (
	typeServiceAccount     = metav1.TypeMeta{APIVersion: "v1", Kind: "ServiceAccount"}
	typeClusterRole        = metav1.TypeMeta{APIVersion: rbacv1.SchemeGroupVersion.String(), Kind: "ClusterRole"}
	typeClusterRoleBinding = metav1.TypeMeta{APIVersion: rbacv1.SchemeGroupVersion.String(), Kind: "ClusterRoleBinding"}
)

var readVerbs = []string{"get", "list", "watch"}

// prometheusRules grant service discovery and the kubelet metrics proxy.
var prometheusRules = []rbacv1.PolicyRule{
	{
		APIGroups: []string{""},
		Resources: []string{"nodes", "nodes/proxy", "nodes/metrics", "services", "endpoints", "pods"},
		Verbs:     readVerbs,
	},
	{
		APIGroups: []string{""},
		Resources: []string{"configmaps"},
		Verbs:     []string{"get"},
	},
	{
		APIGroups: []string{"discovery.k8s.io"},
		Resources: []string{"endpointslices"},
		Verbs:     readVerbs,
	},
	{
		APIGroups: []string{"networking.k8s.io"},
		Resources: []string{"ingresses"},
		Verbs:     readVerbs,
	},
	{
		NonResourceURLs: []string{"/metrics"},
		Verbs:           []string{"get"},
	},
}

// kubeStateMetricsRules grant list/watch on every object kind
// kube-state-metrics exports.
var kubeStateMetricsRules = []rbacv1.PolicyRule{
	{
		APIGroups: []string{""},
		Resources: []string{
			"configmaps", "secrets", "nodes", "pods", "services", "serviceaccounts",
			"resourcequotas", "replicationcontrollers", "limitranges",
			"persistentvolumeclaims", "persistentvolumes", "namespaces", "endpoints",
		},
		Verbs: []string{"list", "watch"},
	},
	{
		APIGroups: []string{"apps"},
		Resources: []string{"statefulsets", "daemonsets", "deployments", "replicasets"},
		Verbs:     []string{"list", "watch"},
	},
	{
		APIGroups: []string{"batch"},
		Resources: []string{"cronjobs", "jobs"},
		Verbs:     []string{"list", "watch"},
	},
	{
		APIGroups: []string{"autoscaling"},
		Resources: []string{"horizontalpodautoscalers"},
		Verbs:     []string{"list", "watch"},
	},
	{
		APIGroups: []string{"policy"},
		Resources: []string{"poddisruptionbudgets"},
		Verbs:     []string{"list", "watch"},
	},
	{
		APIGroups: []string{"storage.k8s.io"},
		Resources: []string{"storageclasses", "volumeattachments"},
		Verbs:     []string{"list", "watch"},
	},
	{
		APIGroups: []string{"networking.k8s.io"},
		Resources: []string{"networkpolicies", "ingresses"},
		Verbs:     []string{"list", "watch"},
	},
	{
		APIGroups: []string{"coordination.k8s.io"},
		Resources: []string{"leases"},
		Verbs:     []string{"list", "watch"},
	},
}

// accessControl generates the ACCESSCONTROL group: service accounts and
// cluster-wide RBAC for Prometheus and kube-state-metrics.
func (s *Stack) accessControl(b *builder.Builder) ([]*k8s.Object, error) {
	out := s.newObjects(b)

	if s.settings.prometheus {
		s.addRBAC(b, out, componentPrometheus, rbacNames{
			serviceAccount: LogicalPrometheusServiceAccount,
			role:           LogicalPrometheusClusterRole,
			binding:        LogicalPrometheusClusterRoleBinding,
		}, prometheusRules)
	}

	if s.settings.kubeStateMetrics {
		s.addRBAC(b, out, componentKubeStateMetrics, rbacNames{
			serviceAccount: LogicalKubeStateMetricsServiceAccount,
			role:           LogicalKubeStateMetricsClusterRole,
			binding:        LogicalKubeStateMetricsClusterRoleBinding,
		}, kubeStateMetricsRules)
	}

	return out.result()
}

type rbacNames struct {
	serviceAccount string
	role           string
	binding        string
}

func (s *Stack) addRBAC(b *builder.Builder, out *objects, component string, names rbacNames, rules []rbacv1.PolicyRule) {
	out.add(names.serviceAccount, &corev1.ServiceAccount{
		TypeMeta:   typeServiceAccount,
		ObjectMeta: s.meta(b, names.serviceAccount, component),
	})

	out.add(names.role, &rbacv1.ClusterRole{
		TypeMeta:   typeClusterRole,
		ObjectMeta: s.clusterMeta(b, names.role, component),
		Rules:      clonePolicyRules(rules),
	})

	out.add(names.binding, &rbacv1.ClusterRoleBinding{
		TypeMeta:   typeClusterRoleBinding,
		ObjectMeta: s.clusterMeta(b, names.binding, component),
		RoleRef: rbacv1.RoleRef{
			APIGroup: rbacv1.GroupName,
			Kind:     "ClusterRole",
			Name:     b.ObjectName(names.role),
		},
		Subjects: []rbacv1.Subject{{
			Kind:      rbacv1.ServiceAccountKind,
			Name:      b.ObjectName(names.serviceAccount),
			Namespace: s.settings.namespace,
		}},
	})
}

func clonePolicyRules(rules []rbacv1.PolicyRule) []rbacv1.PolicyRule {
	out := make([]rbacv1.PolicyRule, len(rules))
	for i := range rules {
		rules[i].DeepCopyInto(&out[i])
	}

	return out
}
