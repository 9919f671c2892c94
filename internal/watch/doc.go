// Package watch regenerates a bundle whenever its project file, the
// manifests it pulls in or anything else under the project directory
// changes. Rapid events are debounced into a single regeneration whose
// status line names every file changed during the burst.
package watch
