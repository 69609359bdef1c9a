package cap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func objectSchema() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []any{"name"},
		"properties": map[string]any{
			"name": map[string]any{"type": "string"},
			"age":  map[string]any{"type": "integer", "minimum": 0},
		},
	}
}

func TestValidateArgumentPassesValidValue(t *testing.T) {
	v := NewValidator()
	err := v.ValidateArgument("payload", objectSchema(), map[string]any{"name": "ada", "age": 30})
	require.NoError(t, err)
}

func TestValidateArgumentReportsAllViolations(t *testing.T) {
	v := NewValidator()
	err := v.ValidateArgument("payload", objectSchema(), map[string]any{"age": -5})
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, ErrMediaValidation, verr.Kind)
	assert.Equal(t, "payload", verr.Argument)
	assert.GreaterOrEqual(t, len(verr.Violations), 2)
}

func TestValidateArgumentNilSchemaIsNoOp(t *testing.T) {
	v := NewValidator()
	require.NoError(t, v.ValidateArgument("payload", nil, "anything"))
}

func TestValidateOutputUsesOutputKind(t *testing.T) {
	v := NewValidator()
	err := v.ValidateOutput(objectSchema(), map[string]any{})
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, ErrOutputValidation, verr.Kind)
}

func TestCompileCachesByContentHash(t *testing.T) {
	v := NewValidator()
	schema := objectSchema()
	require.NoError(t, v.ValidateArgument("a", schema, map[string]any{"name": "x"}))
	require.NoError(t, v.ValidateArgument("a", schema, map[string]any{"name": "y"}))

	v.mu.RLock()
	defer v.mu.RUnlock()
	assert.Len(t, v.cache, 1)
}

func TestExternalRefWithoutResolverFails(t *testing.T) {
	v := NewValidator()
	schema := map[string]any{"$ref": "shared/address.json"}
	err := v.ValidateArgument("addr", schema, map[string]any{})
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, ErrSchemaRefNotResolved, verr.Kind)
}

type stubResolver struct {
	schemas map[string]any
}

func (s *stubResolver) ResolveSchema(ref string) (any, error) {
	schema, ok := s.schemas[ref]
	if !ok {
		return nil, &ValidationError{Kind: ErrSchemaRefNotResolved, Violations: []string{"not found: " + ref}}
	}
	return schema, nil
}

func TestExternalRefResolvedThroughResolver(t *testing.T) {
	resolver := &stubResolver{schemas: map[string]any{
		"shared/address.json": map[string]any{"type": "object", "required": []any{"city"}},
	}}
	v := NewValidatorWithResolver(resolver)
	schema := map[string]any{"$ref": "shared/address.json"}

	err := v.ValidateArgument("addr", schema, map[string]any{"city": "Porto"})
	require.NoError(t, err)

	err = v.ValidateArgument("addr", schema, map[string]any{})
	require.Error(t, err)
}

func TestFileSchemaResolverMissingFile(t *testing.T) {
	resolver := NewFileSchemaResolver(t.TempDir())
	_, err := resolver.ResolveSchema("does-not-exist")
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, ErrSchemaRefNotResolved, verr.Kind)
}
