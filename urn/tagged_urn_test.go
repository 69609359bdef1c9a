package urn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRoundTrip(t *testing.T) {
	cases := []string{
		"cap:op=generate;target=thumbnail",
		"media:pdf;bytes",
		`cap:key="Value With Spaces"`,
	}
	for _, s := range cases {
		u, err := Parse(s)
		require.NoError(t, err, s)
		reparsed, err := Parse(u.String())
		require.NoError(t, err)
		assert.Equal(t, u.String(), reparsed.String())
	}
}

func TestCanonicalFormSortsKeys(t *testing.T) {
	u := New("cap", map[string]string{"zeta": "1", "alpha": "2"})
	assert.Equal(t, "cap:alpha=2;zeta=1", u.String())
}

func TestQuotingReservedCharacters(t *testing.T) {
	u := New("cap", map[string]string{"key": "a;b"})
	assert.Equal(t, `cap:key="a;b"`, u.String())

	parsed, err := Parse(u.String())
	require.NoError(t, err)
	v, ok := parsed.GetTag("key")
	require.True(t, ok)
	assert.Equal(t, "a;b", v)
}

func TestQuoteEscaping(t *testing.T) {
	u := New("cap", map[string]string{"key": `say "hi"\`})
	str := u.String()
	parsed, err := Parse(str)
	require.NoError(t, err)
	v, _ := parsed.GetTag("key")
	assert.Equal(t, `say "hi"\`, v)
}

func TestEmptyValueIsQuoted(t *testing.T) {
	u := New("cap", map[string]string{"key": ""})
	assert.Equal(t, `cap:key=""`, u.String())
}

func TestBareTokenIsFlagShorthand(t *testing.T) {
	parsed, err := Parse("media:pdf;bytes")
	require.NoError(t, err)
	v, ok := parsed.GetTag("pdf")
	require.True(t, ok)
	assert.Equal(t, "pdf", v)
}

func TestTrailingSeparatorForbidden(t *testing.T) {
	_, err := Parse("cap:op=generate;")
	require.Error(t, err)
	var tErr *Error
	require.ErrorAs(t, err, &tErr)
	assert.Equal(t, ErrTrailingSeparator, tErr.Code)
}

func TestEmptyKeyForbidden(t *testing.T) {
	_, err := Parse("cap:=value")
	require.Error(t, err)
}

func TestDuplicateKeyForbidden(t *testing.T) {
	_, err := Parse("cap:op=a;op=b")
	require.Error(t, err)
	var tErr *Error
	require.ErrorAs(t, err, &tErr)
	assert.Equal(t, ErrDuplicateKey, tErr.Code)
}

func TestUnterminatedQuoteFails(t *testing.T) {
	_, err := Parse(`cap:key="unterminated`)
	require.Error(t, err)
	var tErr *Error
	require.ErrorAs(t, err, &tErr)
	assert.Equal(t, ErrUnterminatedQuote, tErr.Code)
}

func TestInvalidEscapeSequenceFails(t *testing.T) {
	_, err := Parse(`cap:key="bad\qescape"`)
	require.Error(t, err)
	var tErr *Error
	require.ErrorAs(t, err, &tErr)
	assert.Equal(t, ErrInvalidEscape, tErr.Code)
}

func TestMissingPrefixFails(t *testing.T) {
	_, err := Parse("op=generate")
	require.Error(t, err)
}

func TestSpecificityCountsNonWildcardTags(t *testing.T) {
	u := New("cap", map[string]string{"op": "generate", "ext": "*", "format": ""})
	assert.Equal(t, 1, u.Specificity())
}

func TestSpecificityMonotonicity(t *testing.T) {
	base := New("cap", map[string]string{"op": "generate"})
	withExtra := base.WithTag("ext", "pdf")
	withWildcard := base.WithTag("ext", "*")

	assert.Greater(t, withExtra.Specificity(), base.Specificity())
	assert.Equal(t, base.Specificity(), withWildcard.Specificity())
}

func TestMatchesReflexiveForConcreteURN(t *testing.T) {
	u := New("cap", map[string]string{"op": "generate", "ext": "pdf"})
	assert.True(t, u.Matches(u))
}

func TestMatchesWildcardRequest(t *testing.T) {
	provider := New("cap", map[string]string{"op": "generate", "ext": "pdf"})
	request := New("cap", map[string]string{"op": "generate", "ext": "*"})
	assert.True(t, provider.Matches(request))
}

func TestMatchesMissingProviderKeyTreatedAsWildcard(t *testing.T) {
	provider := New("cap", map[string]string{"op": "generate"})
	request := New("cap", map[string]string{"op": "generate", "ext": "*"})
	assert.True(t, provider.Matches(request))
}

func TestMatchesRejectsConflictingValue(t *testing.T) {
	provider := New("cap", map[string]string{"op": "generate", "ext": "png"})
	request := New("cap", map[string]string{"op": "generate", "ext": "pdf"})
	assert.False(t, provider.Matches(request))
}

func TestJSONRoundTrip(t *testing.T) {
	u := New("cap", map[string]string{"op": "generate"})
	data, err := u.MarshalJSON()
	require.NoError(t, err)

	var decoded TaggedURN
	require.NoError(t, decoded.UnmarshalJSON(data))
	assert.Equal(t, u.String(), decoded.String())
}

func TestHashStableAcrossEquivalentInsertionOrder(t *testing.T) {
	a := New("cap", map[string]string{"a": "1", "b": "2"})
	b := New("cap", map[string]string{"b": "2", "a": "1"})
	assert.Equal(t, a.Hash(), b.Hash())
}
