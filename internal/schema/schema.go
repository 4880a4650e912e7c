// Package schema structurally validates the JSON/YAML documents Cast Sync
// persists (.cast/config.yaml, the registry, .cast/syncstate.json) against
// CUE schemas, catching hand-edited or partially-written files before the
// engine acts on them.
//
// Grounded on the teacher's internal/cli/loader.go and internal/compiler's
// use of the CUE Go SDK: a cuecontext.Context compiles a schema once,
// callers encode a decoded Go value back into a cue.Value and unify it
// against the schema, and a non-nil Validate error means the document
// doesn't conform.
package schema

import (
	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"

	"github.com/castsync/cast/internal/vault"
)

const (
	configSchema = `
cast_version!: int & >=1
cast_id!:      string & !=""
cast_name!:    string & !=""
cast_location: string
`

	registryEntrySchema = `
name!: string & !=""
root!: string & !=""
vault_location!: string & !=""
`

	baselineEntrySchema = `
digest!: string
ts!:     string
`
)

// ctx is a single shared CUE evaluation context. The CUE SDK recommends
// one cuecontext.Context per process; its Values are not safe to share
// across contexts but are safe to reuse within one.
var ctx = cuecontext.New()

// FieldError is one schema violation, field-addressed so a caller can
// report it the same way the engine reports any other *vault.Error.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError collects every violation CUE found in one document.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "schema: invalid document"
	}
	msg := e.Errors[0].Message
	if len(e.Errors) > 1 {
		msg += " (+more)"
	}
	return msg
}

// ValidateConfig checks a decoded config.yaml against the required-field
// schema config.yaml must satisfy: non-empty cast-id/cast-name, a
// cast-version the engine understands or newer, and (if present) a
// cast-location string.
func ValidateConfig(cfg vault.Config) error {
	return validate(configSchema, map[string]any{
		"cast_version":   cfg.CastVersion,
		"cast_id":        cfg.CastID,
		"cast_name":      cfg.CastName,
		"cast_location":  cfg.CastLocation,
	})
}

// ValidateRegistryEntry checks one decoded registry row.
func ValidateRegistryEntry(e vault.RegistryEntry) error {
	return validate(registryEntrySchema, map[string]any{
		"name":           e.Name,
		"root":           e.Root,
		"vault_location": e.VaultLocation,
	})
}

// ValidateBaselineEntry checks one decoded syncstate.json leaf entry.
func ValidateBaselineEntry(e vault.BaselineEntry) error {
	return validate(baselineEntrySchema, map[string]any{
		"digest": e.Digest,
		"ts":     e.TS,
	})
}

// validate compiles schemaSrc, encodes doc as a CUE value, unifies the
// two, and reports every field CUE's validation rejects.
func validate(schemaSrc string, doc map[string]any) error {
	schemaVal := ctx.CompileString(schemaSrc)
	if err := schemaVal.Err(); err != nil {
		return &vaultSchemaCompileError{err}
	}

	docVal := ctx.Encode(doc)
	unified := schemaVal.Unify(docVal)

	if err := unified.Validate(cue.Concrete(true), cue.All()); err != nil {
		return &ValidationError{Errors: fieldErrors(err)}
	}
	return nil
}

func fieldErrors(err error) []FieldError {
	var out []FieldError
	for _, e := range errors.Errors(err) {
		field := "document"
		if path := e.Path(); len(path) > 0 {
			field = path[len(path)-1]
		}
		out = append(out, FieldError{Field: field, Message: e.Error()})
	}
	if len(out) == 0 {
		out = []FieldError{{Field: "document", Message: err.Error()}}
	}
	return out
}

// vaultSchemaCompileError indicates a bug in one of this package's own CUE
// schema literals, not a problem with a caller's document; it should never
// occur against the fixed schemas above.
type vaultSchemaCompileError struct{ err error }

func (e *vaultSchemaCompileError) Error() string { return "schema: internal schema invalid: " + e.err.Error() }
func (e *vaultSchemaCompileError) Unwrap() error { return e.err }
