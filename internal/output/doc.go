// Package output assembles generated objects and shell commands into a
// multi-file bundle and hands the rendered files to a driver.
//
// The package is organized around four concerns:
//
//   - Assembly (project.go): a [Project] allocates file slots up front so
//     script lines can reference files whose contents are appended later.
//
//   - Script lines (line.go): an intermediate representation of [Text] and
//     [FileRef] segments, resolved in one pass right before rendering.
//
//   - Drivers (driver.go, print.go, directory.go, memory.go): pluggable sinks
//     behind the [Driver] interface, selectable by name through a [Registry].
//
//   - Serialization and validation (serializer.go, validator.go): YAML
//     rendering of object batches and structural checks on generated
//     objects.
package output
