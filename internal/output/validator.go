package output

import (
	"fmt"
	"strings"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/util/validation"

	"github.com/hupe1980/promstack/internal/k8s"
)

// ValidationSeverity indicates the severity of a validation finding.
type ValidationSeverity int

const (
	// SeverityError means the bundle is invalid.
	SeverityError ValidationSeverity = iota
	// SeverityWarning means the bundle may be problematic.
	SeverityWarning
)

// String returns the severity name.
func (s ValidationSeverity) String() string {
	if s == SeverityError {
		return "error"
	}

	return "warning"
}

// ValidationFinding is a single validation issue.
type ValidationFinding struct {
	Severity ValidationSeverity
	Field    string
	Message  string
}

// Error implements the error interface.
func (f *ValidationFinding) Error() string {
	return fmt.Sprintf("[%s] %s: %s", f.Severity, f.Field, f.Message)
}

// ValidationResult holds all findings from a validation run.
type ValidationResult struct {
	Findings []ValidationFinding
}

// Errors returns only error-severity findings.
func (r *ValidationResult) Errors() []ValidationFinding {
	return r.filter(SeverityError)
}

// Warnings returns only warning-severity findings.
func (r *ValidationResult) Warnings() []ValidationFinding {
	return r.filter(SeverityWarning)
}

// HasErrors returns true if any error-severity findings exist.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors()) > 0
}

// HasWarnings returns true if any warning-severity findings exist.
func (r *ValidationResult) HasWarnings() bool {
	return len(r.Warnings()) > 0
}

func (r *ValidationResult) filter(s ValidationSeverity) []ValidationFinding {
	var result []ValidationFinding

	for _, f := range r.Findings {
		if f.Severity == s {
			result = append(result, f)
		}
	}

	return result
}

// ValidateObjects checks the shape of generated objects: required identity
// fields, valid names, unique identities, and references between objects
// of the set (service accounts, config maps, secrets, claims). It does not
// validate kind-specific schemas.
func ValidateObjects(objs []*k8s.Object) *ValidationResult {
	v := &validator{
		objs:  objs,
		index: make(map[string]bool, len(objs)),
	}
	v.validate()

	return &v.result
}

type validator struct {
	objs   []*k8s.Object
	index  map[string]bool
	result ValidationResult
}

func (v *validator) addError(field, msg string) {
	v.result.Findings = append(v.result.Findings, ValidationFinding{
		Severity: SeverityError,
		Field:    field,
		Message:  msg,
	})
}

func (v *validator) addWarning(field, msg string) {
	v.result.Findings = append(v.result.Findings, ValidationFinding{
		Severity: SeverityWarning,
		Field:    field,
		Message:  msg,
	})
}

func (v *validator) validate() {
	v.validateIdentities()

	for _, obj := range v.objs {
		if k8s.IsWorkload(obj.GVK()) {
			v.validateWorkload(obj)
		}
	}
}

func identity(kind, namespace, name string) string {
	return kind + "/" + namespace + "/" + name
}

// validateIdentities checks required fields and duplicate identities.
func (v *validator) validateIdentities() {
	for _, obj := range v.objs {
		field := obj.LogicalName()

		if obj.APIVersion() == "" {
			v.addError(field+".apiVersion", "required field is missing")
		}

		if obj.Kind() == "" {
			v.addError(field+".kind", "required field is missing")
		}

		name := obj.Name()
		if name == "" {
			v.addError(field+".metadata.name", "required field is missing")

			continue
		}

		if errs := validation.IsDNS1123Subdomain(name); len(errs) > 0 {
			v.addError(field+".metadata.name", fmt.Sprintf("invalid name %q: %s", name, strings.Join(errs, "; ")))
		}

		if k8s.IsService(obj.GVK()) {
			if errs := validation.IsDNS1035Label(name); len(errs) > 0 {
				v.addError(field+".metadata.name", fmt.Sprintf("invalid service name %q: %s", name, strings.Join(errs, "; ")))
			}
		}

		id := identity(obj.Kind(), obj.Namespace(), name)
		if v.index[id] {
			v.addError(field, fmt.Sprintf("duplicate object %s", obj.QualifiedName()))
		}

		v.index[id] = true
	}
}

// validateWorkload checks images and the references of a pod template.
func (v *validator) validateWorkload(obj *k8s.Object) {
	doc := obj.Document()
	field := obj.LogicalName()
	ns := obj.Namespace()

	spec, found, _ := unstructured.NestedMap(doc, "spec", "template", "spec")
	if !found {
		return
	}

	if sa, _ := spec["serviceAccountName"].(string); sa != "" && !v.index[identity("ServiceAccount", ns, sa)] {
		v.addWarning(field+".serviceAccountName", fmt.Sprintf("references service account %q not in the bundle", sa))
	}

	containers, _ := spec["containers"].([]interface{})
	for i, c := range containers {
		container, _ := c.(map[string]interface{})
		image, _ := container["image"].(string)

		if k8s.HasLatestTag(image) {
			v.addWarning(fmt.Sprintf("%s.containers[%d].image", field, i),
				fmt.Sprintf("image %q uses the latest tag", image))
		}
	}

	volumes, _ := spec["volumes"].([]interface{})
	for i, vol := range volumes {
		volume, _ := vol.(map[string]interface{})
		path := fmt.Sprintf("%s.volumes[%d]", field, i)

		if cm, _, _ := unstructured.NestedString(volume, "configMap", "name"); cm != "" {
			optional, _, _ := unstructured.NestedBool(volume, "configMap", "optional")
			if !optional && !v.index[identity("ConfigMap", ns, cm)] {
				v.addWarning(path, fmt.Sprintf("references config map %q not in the bundle", cm))
			}
		}

		if secret, _, _ := unstructured.NestedString(volume, "secret", "secretName"); secret != "" && !v.index[identity("Secret", ns, secret)] {
			v.addWarning(path, fmt.Sprintf("references secret %q not in the bundle", secret))
		}

		if claim, _, _ := unstructured.NestedString(volume, "persistentVolumeClaim", "claimName"); claim != "" &&
			!v.index[identity("PersistentVolumeClaim", ns, claim)] {
			v.addWarning(path, fmt.Sprintf("references claim %q not in the bundle", claim))
		}
	}
}

// FormatValidationResult returns a human-readable string of all findings.
func FormatValidationResult(result *ValidationResult) string {
	if len(result.Findings) == 0 {
		return "Validation passed: no issues found."
	}

	var sb strings.Builder

	errors := result.Errors()
	warnings := result.Warnings()

	if len(errors) > 0 {
		_, _ = fmt.Fprintf(&sb, "Errors (%d):\n", len(errors))

		for _, f := range errors {
			_, _ = fmt.Fprintf(&sb, "  - %s: %s\n", f.Field, f.Message)
		}
	}

	if len(warnings) > 0 {
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}

		_, _ = fmt.Fprintf(&sb, "Warnings (%d):\n", len(warnings))

		for _, f := range warnings {
			_, _ = fmt.Fprintf(&sb, "  - %s: %s\n", f.Field, f.Message)
		}
	}

	return sb.String()
}
