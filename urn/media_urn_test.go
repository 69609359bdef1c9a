package urn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmptyMediaURNIsWildcard(t *testing.T) {
	e := Empty()
	assert.True(t, e.IsEmpty())
	assert.Equal(t, "media:", e.String())
}

func TestNewMediaURNRoundTrip(t *testing.T) {
	m := NewMediaURN("pdf", "binary")
	parsed, err := ParseMediaURN(m.String())
	require.NoError(t, err)
	assert.Equal(t, m.String(), parsed.String())
}

func TestParseMediaURNRequiresPrefix(t *testing.T) {
	_, err := ParseMediaURN("cap:op=generate")
	require.Error(t, err)
}

func TestFormatToken(t *testing.T) {
	m := NewMediaURN("json", "list", "record")
	format, ok := m.Format()
	require.True(t, ok)
	assert.Equal(t, "json", format)
}

func TestStructuralFlagPredicates(t *testing.T) {
	m := NewMediaURN("png", "image", "binary")
	assert.True(t, m.IsImage())
	assert.True(t, m.IsBinary())
	assert.False(t, m.IsTextable())
	assert.False(t, m.IsList())
}

func TestIsBinaryDefaultsTrueWithoutTextableFlag(t *testing.T) {
	m := NewMediaURN("octet-stream")
	assert.True(t, m.IsBinary())
}

func TestTextableMediaIsNotBinary(t *testing.T) {
	m := NewMediaURN("csv", "textable", "list")
	assert.False(t, m.IsBinary())
	assert.True(t, m.IsList())
}

func TestEqualsWildcardsEitherSide(t *testing.T) {
	concrete := NewMediaURN("pdf", "binary")
	wildcard := Empty()
	assert.True(t, concrete.Equals(wildcard))
	assert.True(t, wildcard.Equals(concrete))
}

func TestEqualsRejectsDifferentFormats(t *testing.T) {
	a := NewMediaURN("pdf")
	b := NewMediaURN("png")
	assert.False(t, a.Equals(b))
}

func TestMediaURNSpecificityCountsTags(t *testing.T) {
	m := NewMediaURN("json", "list", "record")
	assert.Equal(t, 3, m.Specificity())
	assert.Equal(t, 0, Empty().Specificity())
}

func TestMediaURNJSONRoundTrip(t *testing.T) {
	m := NewMediaURN("pdf", "binary")
	data, err := m.MarshalJSON()
	require.NoError(t, err)

	var decoded MediaURN
	require.NoError(t, decoded.UnmarshalJSON(data))
	assert.Equal(t, m.String(), decoded.String())
}
