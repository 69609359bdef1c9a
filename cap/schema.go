package cap

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// ValidationErrorKind distinguishes the failure modes of schema
// validation (spec.md §4.4/§6).
type ValidationErrorKind string

const (
	ErrMediaValidation    ValidationErrorKind = "MediaValidation"
	ErrOutputValidation   ValidationErrorKind = "OutputValidation"
	ErrSchemaCompilation  ValidationErrorKind = "SchemaCompilation"
	ErrSchemaRefNotResolved ValidationErrorKind = "SchemaRefNotResolved"
	ErrInvalidJson        ValidationErrorKind = "InvalidJson"
)

// ValidationError reports a schema validation failure, carrying the
// failing argument name and every violation found (enumerated
// breadth-first, not short-circuited at the first one).
type ValidationError struct {
	Kind       ValidationErrorKind
	Argument   string
	Violations []string
}

func (e *ValidationError) Error() string {
	if e.Argument != "" {
		return fmt.Sprintf("%s: argument %q: %s", e.Kind, e.Argument, strings.Join(e.Violations, "; "))
	}
	return fmt.Sprintf("%s: %s", e.Kind, strings.Join(e.Violations, "; "))
}

// SchemaResolver resolves an external $ref (anything not a local "#/..."
// fragment) to a schema document.
type SchemaResolver interface {
	ResolveSchema(ref string) (any, error)
}

// FileSchemaResolver resolves refs as "<basePath>/<ref>.json" files on
// disk.
type FileSchemaResolver struct {
	basePath string
}

// NewFileSchemaResolver builds a resolver rooted at basePath.
func NewFileSchemaResolver(basePath string) *FileSchemaResolver {
	return &FileSchemaResolver{basePath: basePath}
}

func (f *FileSchemaResolver) ResolveSchema(ref string) (any, error) {
	clean := strings.TrimSuffix(ref, ".json")
	path := filepath.Join(f.basePath, clean+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ValidationError{Kind: ErrSchemaRefNotResolved, Violations: []string{
			fmt.Sprintf("schema ref %q could not be read from %q: %v", ref, path, err),
		}}
	}
	var parsed any
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, &ValidationError{Kind: ErrSchemaRefNotResolved, Violations: []string{
			fmt.Sprintf("schema ref %q at %q is not valid JSON: %v", ref, path, err),
		}}
	}
	return parsed, nil
}

var externalRefPattern = regexp.MustCompile(`"\$ref"\s*:\s*"([^"#][^"]*)"`)

// compiledEntry caches a compiled schema by content hash.
type compiledEntry struct {
	schema *gojsonschema.Schema
}

// Validator performs JSON Schema Draft-7 validation of cap arguments and
// outputs. Compiled schemas are cached for the process lifetime, keyed by
// a content hash of the schema document, so repeated validation against
// the same media spec does not recompile on every call.
type Validator struct {
	resolver SchemaResolver

	mu    sync.RWMutex
	cache map[string]*compiledEntry
}

// NewValidator builds a validator with no external $ref resolution.
func NewValidator() *Validator {
	return &Validator{cache: make(map[string]*compiledEntry)}
}

// NewValidatorWithResolver builds a validator that resolves external
// $ref entries through resolver before compiling.
func NewValidatorWithResolver(resolver SchemaResolver) *Validator {
	return &Validator{resolver: resolver, cache: make(map[string]*compiledEntry)}
}

func contentHash(schema any) (string, []byte, error) {
	data, err := json.Marshal(schema)
	if err != nil {
		return "", nil, err
	}
	sum := sha256.Sum256(data)
	return fmt.Sprintf("%x", sum), data, nil
}

// compile resolves external $ref references found in the schema document,
// injects them as named schemas, and compiles the result, caching by
// content hash.
func (v *Validator) compile(schema any) (*gojsonschema.Schema, error) {
	hash, data, err := contentHash(schema)
	if err != nil {
		return nil, &ValidationError{Kind: ErrSchemaCompilation, Violations: []string{fmt.Sprintf("marshal schema: %v", err)}}
	}

	v.mu.RLock()
	if entry, ok := v.cache[hash]; ok {
		v.mu.RUnlock()
		return entry.schema, nil
	}
	v.mu.RUnlock()

	loader := gojsonschema.NewSchemaLoader()
	for _, ref := range distinctExternalRefs(data) {
		if v.resolver == nil {
			return nil, &ValidationError{Kind: ErrSchemaRefNotResolved, Violations: []string{
				fmt.Sprintf("schema references external $ref %q but no resolver is configured", ref),
			}}
		}
		resolved, err := v.resolver.ResolveSchema(ref)
		if err != nil {
			return nil, err
		}
		if err := loader.AddSchema(ref, gojsonschema.NewGoLoader(resolved)); err != nil {
			return nil, &ValidationError{Kind: ErrSchemaRefNotResolved, Violations: []string{
				fmt.Sprintf("failed to register resolved schema for %q: %v", ref, err),
			}}
		}
	}

	compiled, err := loader.Compile(gojsonschema.NewGoLoader(schema))
	if err != nil {
		return nil, &ValidationError{Kind: ErrSchemaCompilation, Violations: []string{err.Error()}}
	}

	v.mu.Lock()
	v.cache[hash] = &compiledEntry{schema: compiled}
	v.mu.Unlock()

	return compiled, nil
}

func distinctExternalRefs(schemaJSON []byte) []string {
	matches := externalRefPattern.FindAllSubmatch(schemaJSON, -1)
	seen := make(map[string]bool, len(matches))
	var refs []string
	for _, m := range matches {
		ref := string(m[1])
		if !seen[ref] {
			seen[ref] = true
			refs = append(refs, ref)
		}
	}
	sort.Strings(refs)
	return refs
}

// ValidateArgument validates a resolved argument value against its
// declared schema. A nil schema is a no-op (scalars pass through
// undeclared, per spec.md §4.4).
func (v *Validator) ValidateArgument(argName string, schema any, value any) error {
	if schema == nil {
		return nil
	}
	return v.validate(argName, schema, value, ErrMediaValidation)
}

// ValidateOutput validates a cap's output value against its declared
// schema.
func (v *Validator) ValidateOutput(schema any, value any) error {
	if schema == nil {
		return nil
	}
	return v.validate("", schema, value, ErrOutputValidation)
}

func (v *Validator) validate(argName string, schema any, value any, onFailure ValidationErrorKind) error {
	compiled, err := v.compile(schema)
	if err != nil {
		return err
	}

	valueBytes, err := json.Marshal(value)
	if err != nil {
		return &ValidationError{Kind: ErrInvalidJson, Argument: argName, Violations: []string{err.Error()}}
	}

	result, err := compiled.Validate(gojsonschema.NewBytesLoader(valueBytes))
	if err != nil {
		return &ValidationError{Kind: ErrSchemaCompilation, Argument: argName, Violations: []string{err.Error()}}
	}

	if !result.Valid() {
		violations := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			violations = append(violations, desc.String())
		}
		return &ValidationError{Kind: onFailure, Argument: argName, Violations: violations}
	}
	return nil
}
