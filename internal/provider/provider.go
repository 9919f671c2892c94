// Package provider describes the Kubernetes platform a bundle targets.
package provider

import (
	"fmt"
	"strings"
)

// Well-known platforms.
const (
	PlatformGeneric      = "generic"
	PlatformGoogle       = "google"
	PlatformAmazon       = "amazon"
	PlatformMicrosoft    = "microsoft"
	PlatformDigitalOcean = "digitalocean"
	PlatformK3D          = "k3d"
	PlatformKind         = "kind"
)

// Provider is a read-only {platform, service} token, for example
// {google, gke}. Builders may branch on it to adjust generated manifests.
type Provider struct {
	Platform string
	Service  string
}

// Generic is the provider used when none is configured.
var Generic = Provider{Platform: PlatformGeneric, Service: "k8s"}

// storageClasses maps platforms to their default storage class names.
var storageClasses = map[string]string{
	PlatformGoogle:       "standard",
	PlatformAmazon:       "gp2",
	PlatformMicrosoft:    "default",
	PlatformDigitalOcean: "do-block-storage",
	PlatformK3D:          "local-path",
	PlatformKind:         "standard",
}

// Parse parses "platform/service" (for example "google/gke"). A bare
// platform is accepted and leaves the service empty. An empty string yields
// the generic provider.
func Parse(s string) (Provider, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Generic, nil
	}

	platform, service, _ := strings.Cut(s, "/")
	platform = strings.ToLower(strings.TrimSpace(platform))
	service = strings.ToLower(strings.TrimSpace(service))

	if platform == "" || strings.Contains(service, "/") {
		return Provider{}, fmt.Errorf("invalid provider %q: expected platform/service", s)
	}

	return Provider{Platform: platform, Service: service}, nil
}

// String returns "platform/service".
func (p Provider) String() string {
	if p.Service == "" {
		return p.Platform
	}

	return p.Platform + "/" + p.Service
}

// IsKnown reports whether the platform is one of the well-known platforms.
func (p Provider) IsKnown() bool {
	if p.Platform == PlatformGeneric {
		return true
	}

	_, ok := storageClasses[p.Platform]

	return ok
}

// DefaultStorageClass returns the storage class used when a volume claim
// does not name one. An empty result means the cluster default applies.
func (p Provider) DefaultStorageClass() string {
	return storageClasses[p.Platform]
}

// Platforms returns the names of the well-known platforms.
func Platforms() []string {
	return []string{
		PlatformGeneric,
		PlatformGoogle,
		PlatformAmazon,
		PlatformMicrosoft,
		PlatformDigitalOcean,
		PlatformK3D,
		PlatformKind,
	}
}
