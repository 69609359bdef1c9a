package cap

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArgSourceConstructors(t *testing.T) {
	assert.True(t, NewCliFlagSource("--input").IsCliFlag())
	assert.True(t, NewCliPositionalSource(0).IsCliPositional())
	assert.True(t, NewStdinSource().IsStdin())
	assert.True(t, NewLiteralSource("x").IsLiteral())
	assert.True(t, NewEnvSource("HOME").IsEnv())
}

func TestCapArgHasStdinSource(t *testing.T) {
	arg := NewCapArg("input", "media:pdf;binary", true, []ArgSource{NewStdinSource()})
	assert.True(t, arg.HasStdinSource())
	assert.False(t, arg.HasCliFlagSource())
}

func TestCapArgCliFlagName(t *testing.T) {
	arg := NewCapArg("quality", "media:textable", false, []ArgSource{NewCliFlagSource("--quality")})
	name, ok := arg.CliFlagName()
	require.True(t, ok)
	assert.Equal(t, "--quality", name)
}

func TestCapArgPositionalIndex(t *testing.T) {
	arg := NewCapArg("input", "media:pdf;binary", true, []ArgSource{NewCliPositionalSource(2)})
	idx, ok := arg.PositionalIndex()
	require.True(t, ok)
	assert.Equal(t, 2, idx)
}

func TestArgSourceJSONRoundTrip(t *testing.T) {
	sources := []ArgSource{
		NewCliFlagSource("--input"),
		NewCliPositionalSource(1),
		NewStdinSource(),
		NewLiteralSource(float64(42)),
		NewEnvSource("PATH"),
	}
	for _, s := range sources {
		data, err := json.Marshal(s)
		require.NoError(t, err)
		var decoded ArgSource
		require.NoError(t, json.Unmarshal(data, &decoded))
		assert.Equal(t, s, decoded)
	}
}

func TestArgSourceUnmarshalRejectsUnknownKind(t *testing.T) {
	var s ArgSource
	err := json.Unmarshal([]byte(`{"kind":"bogus"}`), &s)
	require.Error(t, err)
}
