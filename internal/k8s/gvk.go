package k8s

import "k8s.io/apimachinery/pkg/runtime/schema"

// GVK classification functions used to describe generated objects.

func isCore(gvk schema.GroupVersionKind) bool {
	return gvk.Group == "" || gvk.Group == "core"
}

// IsWorkload returns true for pod-bearing workload resources.
func IsWorkload(gvk schema.GroupVersionKind) bool {
	switch gvk.Kind {
	case "Deployment", "StatefulSet", "DaemonSet", "ReplicaSet":
		return gvk.Group == "apps"
	case "Job", "CronJob":
		return gvk.Group == "batch"
	}

	return false
}

// IsService returns true for Service resources.
func IsService(gvk schema.GroupVersionKind) bool {
	return isCore(gvk) && gvk.Kind == "Service"
}

// IsConfig returns true for configuration resources (ConfigMap, Secret).
func IsConfig(gvk schema.GroupVersionKind) bool {
	return isCore(gvk) && (gvk.Kind == "ConfigMap" || gvk.Kind == "Secret")
}

// IsStorage returns true for storage resources.
func IsStorage(gvk schema.GroupVersionKind) bool {
	if isCore(gvk) {
		return gvk.Kind == "PersistentVolumeClaim" || gvk.Kind == "PersistentVolume"
	}

	return gvk.Group == "storage.k8s.io" && gvk.Kind == "StorageClass"
}

// IsRBAC returns true for RBAC resources.
func IsRBAC(gvk schema.GroupVersionKind) bool {
	if gvk.Group != "rbac.authorization.k8s.io" {
		return false
	}

	switch gvk.Kind {
	case "Role", "ClusterRole", "RoleBinding", "ClusterRoleBinding":
		return true
	}

	return false
}

// IsServiceAccount returns true for ServiceAccount resources.
func IsServiceAccount(gvk schema.GroupVersionKind) bool {
	return isCore(gvk) && gvk.Kind == "ServiceAccount"
}

// IsNamespace returns true for Namespace resources.
func IsNamespace(gvk schema.GroupVersionKind) bool {
	return isCore(gvk) && gvk.Kind == "Namespace"
}

// clusterScoped lists the cluster-scoped kinds a monitoring bundle may
// contain, keyed by group.
var clusterScoped = map[string]map[string]bool{
	"": {
		"Namespace":        true,
		"Node":             true,
		"PersistentVolume": true,
	},
	"rbac.authorization.k8s.io": {
		"ClusterRole":        true,
		"ClusterRoleBinding": true,
	},
	"storage.k8s.io": {
		"StorageClass": true,
	},
	"apiextensions.k8s.io": {
		"CustomResourceDefinition": true,
	},
	"scheduling.k8s.io": {
		"PriorityClass": true,
	},
	"admissionregistration.k8s.io": {
		"ValidatingWebhookConfiguration": true,
		"MutatingWebhookConfiguration":   true,
	},
}

// IsClusterScoped returns true for kinds that never carry a namespace.
func IsClusterScoped(gvk schema.GroupVersionKind) bool {
	group := gvk.Group
	if group == "core" {
		group = ""
	}

	return clusterScoped[group][gvk.Kind]
}

// Category returns a short human-readable category for the kind.
func Category(gvk schema.GroupVersionKind) string {
	switch {
	case IsWorkload(gvk):
		return "workload"
	case IsService(gvk):
		return "service"
	case IsConfig(gvk):
		return "config"
	case IsStorage(gvk):
		return "storage"
	case IsRBAC(gvk), IsServiceAccount(gvk):
		return "access-control"
	case IsNamespace(gvk):
		return "namespace"
	default:
		return "other"
	}
}
