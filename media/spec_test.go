package media

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	return NewRegistry()
}

func TestResolveFromRegistryString(t *testing.T) {
	registry := testRegistry(t)
	resolved, err := ResolveMediaUrn("media:textable", nil, registry)
	require.NoError(t, err)
	assert.Equal(t, "text/plain", resolved.MediaType)
	assert.True(t, resolved.IsText())
}

func TestResolveFromRegistryRecord(t *testing.T) {
	registry := testRegistry(t)
	resolved, err := ResolveMediaUrn("media:record;textable", nil, registry)
	require.NoError(t, err)
	assert.Equal(t, "application/json", resolved.MediaType)
	assert.True(t, resolved.IsRecord())
}

func TestResolveFromRegistryVoidIsBinary(t *testing.T) {
	registry := testRegistry(t)
	resolved, err := ResolveMediaUrn("media:", nil, registry)
	require.NoError(t, err)
	assert.Equal(t, "application/octet-stream", resolved.MediaType)
	assert.True(t, resolved.IsBinary())
}

func TestResolveLocalMediaSpecTakesPrecedence(t *testing.T) {
	registry := testRegistry(t)
	local := []MediaSpecDef{
		{
			Urn:        "media:custom;textable",
			MediaType:  "application/x-custom",
			Title:      "Custom Spec",
			ProfileURI: "https://example.com/schema/custom",
		},
	}

	resolved, err := ResolveMediaUrn("media:custom;textable", local, registry)
	require.NoError(t, err)
	assert.Equal(t, "media:custom;textable", resolved.SpecID)
	assert.Equal(t, "application/x-custom", resolved.MediaType)
	assert.Equal(t, "https://example.com/schema/custom", resolved.ProfileURI)
}

func TestResolveLocalSpecWithSchema(t *testing.T) {
	registry := testRegistry(t)
	schema := map[string]any{
		"type":       "object",
		"properties": map[string]any{"name": map[string]any{"type": "string"}},
	}
	local := []MediaSpecDef{
		{Urn: "media:output-spec;record;textable", MediaType: "application/json", Schema: schema},
	}

	resolved, err := ResolveMediaUrn("media:output-spec;record;textable", local, registry)
	require.NoError(t, err)
	assert.Equal(t, schema, resolved.Schema)
	assert.True(t, resolved.IsRecord())
}

func TestResolveUnknownMediaUrnFailsHard(t *testing.T) {
	registry := testRegistry(t)
	_, err := ResolveMediaUrn("media:nonexistent-spec", nil, registry)
	require.Error(t, err)
}

func TestResolveRejectsNonMediaPrefix(t *testing.T) {
	registry := testRegistry(t)
	_, err := ResolveMediaUrn("cap:op=generate", nil, registry)
	assert.ErrorIs(t, err, ErrInvalidMediaUrn)
}

func TestValidateNoMediaSpecDuplicatesDetectsRepeat(t *testing.T) {
	specs := []MediaSpecDef{
		{Urn: "media:a;textable"},
		{Urn: "media:a;textable"},
	}
	err := ValidateNoMediaSpecDuplicates(specs)
	require.Error(t, err)
}

func TestValidateNoMediaSpecDuplicatesAllowsDistinct(t *testing.T) {
	specs := []MediaSpecDef{
		{Urn: "media:a;textable"},
		{Urn: "media:b;textable"},
	}
	require.NoError(t, ValidateNoMediaSpecDuplicates(specs))
}

func TestTypeFromMediaUrnClassifiesCommonForms(t *testing.T) {
	cases := map[string]string{
		"media:":                        "void",
		"media:binary":                  "binary",
		"media:record;textable":         "object",
		"media:list;textable":           "array",
		"media:integer;textable;numeric": "integer",
		"media:textable;numeric":         "number",
		"media:bool;textable":            "boolean",
		"media:textable":                 "string",
	}
	for u, want := range cases {
		assert.Equal(t, want, TypeFromMediaUrn(u), u)
	}
}

func TestRegistryAddSpecAndExtensionIndex(t *testing.T) {
	registry := NewEmptyRegistry()
	registry.AddSpec(StoredMediaSpec{
		Urn:        "media:custom;binary",
		MediaType:  "application/x-custom",
		Extensions: []string{"cst"},
	})

	spec, err := registry.GetMediaSpec("media:custom;binary")
	require.NoError(t, err)
	assert.Equal(t, "application/x-custom", spec.MediaType)

	urns := registry.SpecsByExtension("cst")
	require.Len(t, urns, 1)
	assert.Equal(t, "media:custom;binary", urns[0])
}

func TestRegistryGetMediaSpecNotFound(t *testing.T) {
	registry := NewEmptyRegistry()
	_, err := registry.GetMediaSpec("media:nonexistent")
	require.Error(t, err)
}

func TestToMediaSpecDefCopiesFields(t *testing.T) {
	stored := StoredMediaSpec{Urn: "media:pdf;binary", MediaType: "application/pdf", Title: "PDF"}
	def := stored.ToMediaSpecDef()
	assert.Equal(t, stored.Urn, def.Urn)
	assert.Equal(t, stored.MediaType, def.MediaType)
	assert.Equal(t, stored.Title, def.Title)
}
