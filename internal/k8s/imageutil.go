package k8s

import "strings"

// ImageReference is a container image split into its parts.
type ImageReference struct {
	// Repository is everything before the tag or digest
	// (e.g. "quay.io/prometheus/prometheus").
	Repository string

	// Tag is the image tag, empty when the reference has none.
	Tag string

	// Digest is the "sha256:..." digest, empty when the reference has none.
	Digest string
}

// ParseImage splits an image reference. Registry ports are not mistaken
// for tags ("registry.io:5000/app" has no tag).
func ParseImage(image string) ImageReference {
	var ref ImageReference

	if at := strings.Index(image, "@"); at >= 0 {
		ref.Digest = image[at+1:]
		image = image[:at]
	}

	ref.Repository = image

	slash := strings.LastIndex(image, "/")
	if colon := strings.LastIndex(image, ":"); colon > slash {
		ref.Repository = image[:colon]
		ref.Tag = image[colon+1:]
	}

	return ref
}

// IsImageDigest returns true if the image reference is pinned by digest.
func IsImageDigest(image string) bool {
	return strings.Contains(image, "@sha256:")
}

// HasLatestTag returns true if the image uses :latest or has no explicit tag.
// Images with digests are never considered "latest".
func HasLatestTag(image string) bool {
	if image == "" || IsImageDigest(image) {
		return false
	}

	tag := ParseImage(image).Tag

	return tag == "" || tag == "latest"
}
