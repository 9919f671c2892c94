package prometheusstack

import (
	"fmt"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/hupe1980/promstack/internal/builder"
	"github.com/hupe1980/promstack/internal/k8s"
	"github.com/hupe1980/promstack/internal/option"
	"github.com/hupe1980/promstack/internal/promconfig"
)

// Keys of the generated configuration objects.
const (
	KeyPrometheusConfig   = "prometheus.yml"
	KeyGrafanaDatasources = "datasources.yaml"
	KeyGrafanaDashboards  = "dashboards.yaml"
	KeyGrafanaAdminUser   = "admin-user"
	KeyGrafanaAdminPass   = "admin-password"
)

var (
	typeConfigMap = metav1.TypeMeta{APIVersion: "v1", Kind: "ConfigMap"}
	typeSecret    = metav1.TypeMeta{APIVersion: "v1", Kind: "Secret"}
)

// config generates the CONFIG group: the Prometheus configuration and the
// Grafana provisioning files and admin credentials.
func (s *Stack) config(b *builder.Builder) ([]*k8s.Object, error) {
	out := s.newObjects(b)

	if s.settings.prometheus {
		data, err := s.prometheusConfig()
		if err != nil {
			return nil, err
		}

		out.add(LogicalPrometheusConfig, &corev1.ConfigMap{
			TypeMeta:   typeConfigMap,
			ObjectMeta: s.meta(b, LogicalPrometheusConfig, componentPrometheus),
			Data:       map[string]string{KeyPrometheusConfig: data},
		})
	}

	if s.settings.grafana {
		data, err := s.grafanaProvisioning(b)
		if err != nil {
			return nil, err
		}

		out.add(LogicalGrafanaConfig, &corev1.ConfigMap{
			TypeMeta:   typeConfigMap,
			ObjectMeta: s.meta(b, LogicalGrafanaConfig, componentGrafana),
			Data:       data,
		})

		out.add(LogicalGrafanaConfigSecret, &corev1.Secret{
			TypeMeta:   typeSecret,
			ObjectMeta: s.meta(b, LogicalGrafanaConfigSecret, componentGrafana),
			Type:       corev1.SecretTypeOpaque,
			StringData: map[string]string{
				KeyGrafanaAdminUser: s.settings.adminUser,
				KeyGrafanaAdminPass: s.settings.adminPassword,
			},
		})
	}

	return out.result()
}

// prometheusConfig returns prometheus.yml. A string option is used
// verbatim, a mapping is rendered, and without either the default scrape
// configuration is generated.
func (s *Stack) prometheusConfig() (string, error) {
	v := s.settings.prometheusConfig

	switch v.Kind() {
	case option.KindScalar:
		return v.String()
	case option.KindMapping:
		m, err := v.Mapping()
		if err != nil {
			return "", err
		}

		return promconfig.Render(m)
	}

	cfg, err := promconfig.ScrapeConfig(s.settings.scrape)
	if err != nil {
		return "", fmt.Errorf("generating prometheus config: %w", err)
	}

	return promconfig.Render(cfg)
}

// grafanaProvisioning returns the provisioning files. Without configured
// datasources a default one pointing at the Prometheus service is added.
func (s *Stack) grafanaProvisioning(b *builder.Builder) (map[string]string, error) {
	data := map[string]string{}

	var datasources []interface{}

	if !s.settings.datasources.IsNull() {
		seq, err := s.settings.datasources.Sequence()
		if err != nil {
			return nil, err
		}

		datasources = seq
	} else if s.settings.prometheus {
		url := promconfig.ServiceURL(b.ObjectName(LogicalPrometheusService), portService)
		datasources = []interface{}{promconfig.Datasource(url)}
	}

	if len(datasources) > 0 {
		file, err := promconfig.DatasourcesFile(datasources)
		if err != nil {
			return nil, err
		}

		data[KeyGrafanaDatasources] = file
	}

	if !s.settings.dashboards.IsNull() {
		seq, err := s.settings.dashboards.Sequence()
		if err != nil {
			return nil, err
		}

		file, err := promconfig.DashboardProvidersFile(seq)
		if err != nil {
			return nil, err
		}

		data[KeyGrafanaDashboards] = file
	}

	return data, nil
}
