package logging

import "log/slog"

// Attribute keys shared by the build and bundle log lines.
const (
	KeyBuilder   = "builder"
	KeyGroup     = "group"
	KeyObject    = "object"
	KeyObjects   = "objects"
	KeyProvider  = "provider"
	KeyNamespace = "namespace"
)

// ForBuilder returns logger tagged with the name of a builder. A nil logger
// yields a discarding one.
func ForBuilder(logger *slog.Logger, name string) *slog.Logger {
	if logger == nil {
		logger = Discard()
	}

	return logger.With(slog.String(KeyBuilder, name))
}

// Group identifies a build group.
func Group(name string) slog.Attr { return slog.String(KeyGroup, name) }

// Object identifies an object by its logical name.
func Object(logicalName string) slog.Attr { return slog.String(KeyObject, logicalName) }

// Objects counts the objects of a batch.
func Objects(n int) slog.Attr { return slog.Int(KeyObjects, n) }

// Provider names the deployment target.
func Provider(p string) slog.Attr { return slog.String(KeyProvider, p) }

// Namespace names the stack namespace.
func Namespace(ns string) slog.Attr { return slog.String(KeyNamespace, ns) }

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
