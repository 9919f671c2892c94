// Package promconfig renders the configuration files embedded into the
// monitoring stack: the Prometheus scrape configuration and the Grafana
// provisioning documents.
package promconfig

import (
	"fmt"
	"time"

	"github.com/prometheus/common/model"
	sigsyaml "sigs.k8s.io/yaml"
)

// ScrapeOptions selects the jobs of the generated scrape configuration.
type ScrapeOptions struct {
	// Interval is the global scrape interval (Prometheus duration).
	Interval string

	// EvaluationInterval is the rule evaluation interval. Defaults to
	// Interval.
	EvaluationInterval string

	// Prometheus scrapes the Prometheus server itself.
	Prometheus bool

	// Pods scrapes pods annotated with prometheus.io/scrape.
	Pods bool

	// ServiceEndpoints scrapes endpoints of services annotated with
	// prometheus.io/scrape.
	ServiceEndpoints bool

	// Nodes scrapes the kubelet of every node through the API server proxy.
	Nodes bool
}

// DefaultScrapeOptions enables every job with a 30s interval.
func DefaultScrapeOptions() ScrapeOptions {
	return ScrapeOptions{
		Interval:         "30s",
		Prometheus:       true,
		Pods:             true,
		ServiceEndpoints: true,
		Nodes:            true,
	}
}

// ParseDuration parses a Prometheus duration such as "30s" or "15d".
func ParseDuration(s string) (time.Duration, error) {
	d, err := model.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}

	return time.Duration(d), nil
}

// ScrapeConfig builds the prometheus.yml document.
func ScrapeConfig(opts ScrapeOptions) (map[string]interface{}, error) {
	if opts.Interval == "" {
		opts.Interval = "30s"
	}

	if opts.EvaluationInterval == "" {
		opts.EvaluationInterval = opts.Interval
	}

	for _, d := range []string{opts.Interval, opts.EvaluationInterval} {
		if _, err := ParseDuration(d); err != nil {
			return nil, err
		}
	}

	jobs := []interface{}{}

	if opts.Prometheus {
		jobs = append(jobs, map[string]interface{}{
			"job_name": "prometheus",
			"static_configs": []interface{}{
				map[string]interface{}{"targets": []interface{}{"localhost:9090"}},
			},
		})
	}

	if opts.Nodes {
		jobs = append(jobs, nodesJob())
	}

	if opts.Pods {
		jobs = append(jobs, annotatedJob("kubernetes-pods", "pod"))
	}

	if opts.ServiceEndpoints {
		jobs = append(jobs, annotatedJob("kubernetes-service-endpoints", "endpoints"))
	}

	return map[string]interface{}{
		"global": map[string]interface{}{
			"scrape_interval":     opts.Interval,
			"evaluation_interval": opts.EvaluationInterval,
		},
		"scrape_configs": jobs,
	}, nil
}

func nodesJob() map[string]interface{} {
	return map[string]interface{}{
		"job_name": "kubernetes-nodes",
		"scheme":   "https",
		"tls_config": map[string]interface{}{
			"ca_file": "/var/run/secrets/kubernetes.io/serviceaccount/ca.crt",
		},
		"bearer_token_file":     "/var/run/secrets/kubernetes.io/serviceaccount/token",
		"kubernetes_sd_configs": []interface{}{map[string]interface{}{"role": "node"}},
		"relabel_configs": []interface{}{
			map[string]interface{}{
				"action": "labelmap",
				"regex":  "__meta_kubernetes_node_label_(.+)",
			},
			map[string]interface{}{
				"target_label": "__address__",
				"replacement":  "kubernetes.default.svc:443",
			},
			map[string]interface{}{
				"source_labels": []interface{}{"__meta_kubernetes_node_name"},
				"regex":         "(.+)",
				"target_label":  "__metrics_path__",
				"replacement":   "/api/v1/nodes/${1}/proxy/metrics",
			},
		},
	}
}

// annotatedJob scrapes objects of role that opt in through the
// prometheus.io/scrape, prometheus.io/path and prometheus.io/port
// annotations.
func annotatedJob(name, role string) map[string]interface{} {
	meta := "__meta_kubernetes_pod_annotation_"
	if role == "endpoints" {
		meta = "__meta_kubernetes_service_annotation_"
	}

	relabel := []interface{}{
		map[string]interface{}{
			"source_labels": []interface{}{meta + "prometheus_io_scrape"},
			"action":        "keep",
			"regex":         "true",
		},
		map[string]interface{}{
			"source_labels": []interface{}{meta + "prometheus_io_path"},
			"action":        "replace",
			"target_label":  "__metrics_path__",
			"regex":         "(.+)",
		},
		map[string]interface{}{
			"source_labels": []interface{}{"__address__", meta + "prometheus_io_port"},
			"action":        "replace",
			"regex":         `([^:]+)(?::\d+)?;(\d+)`,
			"replacement":   "$1:$2",
			"target_label":  "__address__",
		},
		map[string]interface{}{
			"action": "labelmap",
			"regex":  "__meta_kubernetes_" + labelPrefix(role) + "_label_(.+)",
		},
		map[string]interface{}{
			"source_labels": []interface{}{"__meta_kubernetes_namespace"},
			"action":        "replace",
			"target_label":  "kubernetes_namespace",
		},
	}

	if role == "endpoints" {
		relabel = append(relabel, map[string]interface{}{
			"source_labels": []interface{}{"__meta_kubernetes_service_name"},
			"action":        "replace",
			"target_label":  "kubernetes_name",
		})
	} else {
		relabel = append(relabel, map[string]interface{}{
			"source_labels": []interface{}{"__meta_kubernetes_pod_name"},
			"action":        "replace",
			"target_label":  "kubernetes_pod_name",
		})
	}

	return map[string]interface{}{
		"job_name":              name,
		"kubernetes_sd_configs": []interface{}{map[string]interface{}{"role": role}},
		"relabel_configs":       relabel,
	}
}

func labelPrefix(role string) string {
	if role == "endpoints" {
		return "service"
	}

	return role
}

// Datasource returns the default Grafana datasource for a Prometheus
// server reachable at url.
func Datasource(url string) map[string]interface{} {
	return map[string]interface{}{
		"name":      "Prometheus",
		"type":      "prometheus",
		"access":    "proxy",
		"url":       url,
		"isDefault": true,
	}
}

// ServiceURL returns the in-cluster URL of a service.
func ServiceURL(service string, port int) string {
	return fmt.Sprintf("http://%s:%d", service, port)
}

// DatasourcesFile renders a Grafana datasource provisioning file.
func DatasourcesFile(datasources []interface{}) (string, error) {
	return render(map[string]interface{}{
		"apiVersion":  1,
		"datasources": datasources,
	})
}

// DashboardProvidersFile renders a Grafana dashboard provider provisioning
// file.
func DashboardProvidersFile(providers []interface{}) (string, error) {
	return render(map[string]interface{}{
		"apiVersion": 1,
		"providers":  providers,
	})
}

// Render serializes a configuration document as YAML.
func Render(doc map[string]interface{}) (string, error) {
	return render(doc)
}

func render(doc map[string]interface{}) (string, error) {
	data, err := sigsyaml.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("rendering configuration: %w", err)
	}

	return string(data), nil
}
