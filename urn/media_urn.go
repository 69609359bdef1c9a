package urn

import "strings"

// structuralFlags are the keyless structural tokens a media URN may carry
// after its format token, per spec.md §3.
var structuralFlags = map[string]bool{
	"list": true, "record": true, "textable": true,
	"image": true, "audio": true, "video": true, "code": true, "binary": true,
}

// MediaURN is a TaggedURN with the "media" prefix: a format token plus
// zero or more structural flag tokens. Media URNs have no wildcards of
// their own — the empty media URN ("media:") is the wildcard value used
// inside a cap's in/out tags, matched by the enclosing CapURN.
type MediaURN struct {
	inner *TaggedURN
}

// Empty returns the wildcard media URN "media:" — accepts anything.
func Empty() *MediaURN {
	return &MediaURN{inner: New("media", nil)}
}

// NewMediaURN builds a media URN from a format name and structural flags.
func NewMediaURN(format string, flags ...string) *MediaURN {
	tags := make(map[string]string, len(flags)+1)
	if format != "" {
		tags[format] = format
	}
	for _, f := range flags {
		tags[f] = f
	}
	return &MediaURN{inner: New("media", tags)}
}

// ParseMediaURN parses a media URN string, requiring the "media" prefix.
func ParseMediaURN(s string) (*MediaURN, error) {
	parsed, err := Parse(s)
	if err != nil {
		return nil, err
	}
	if parsed.Prefix() != "media" {
		return nil, newErr(ErrMissingPrefix, 0, "media URN must start with 'media:'")
	}
	return &MediaURN{inner: parsed}, nil
}

// String returns the canonical form.
func (m *MediaURN) String() string {
	if m == nil || m.inner == nil {
		return ""
	}
	return m.inner.String()
}

// IsEmpty reports whether this is the wildcard media URN.
func (m *MediaURN) IsEmpty() bool {
	return m == nil || m.inner == nil || len(m.inner.AllTags()) == 0
}

// GetTag retrieves a raw tag (format or flag) by name.
func (m *MediaURN) GetTag(name string) (string, bool) {
	if m == nil || m.inner == nil {
		return "", false
	}
	return m.inner.GetTag(name)
}

// HasFlag reports whether a structural flag token is present.
func (m *MediaURN) HasFlag(flag string) bool {
	_, ok := m.GetTag(flag)
	return ok
}

// Format returns the non-structural-flag tag, i.e. the format token
// (e.g. "pdf", "json", "csv"), if any.
func (m *MediaURN) Format() (string, bool) {
	if m == nil || m.inner == nil {
		return "", false
	}
	for k := range m.inner.AllTags() {
		if !structuralFlags[k] {
			return k, true
		}
	}
	return "", false
}

func (m *MediaURN) IsList() bool     { return m.HasFlag("list") }
func (m *MediaURN) IsRecord() bool   { return m.HasFlag("record") }
func (m *MediaURN) IsTextable() bool { return m.HasFlag("textable") }
func (m *MediaURN) IsBinary() bool   { return m.HasFlag("binary") || !m.IsTextable() }
func (m *MediaURN) IsImage() bool    { return m.HasFlag("image") }
func (m *MediaURN) IsAudio() bool    { return m.HasFlag("audio") }
func (m *MediaURN) IsVideo() bool    { return m.HasFlag("video") }
func (m *MediaURN) IsCode() bool     { return m.HasFlag("code") }

// Equals compares two media URNs by canonical string equality, with the
// empty media URN matching any concrete media URN (spec.md §3).
func (m *MediaURN) Equals(other *MediaURN) bool {
	if m == nil || other == nil {
		return m == other
	}
	if m.IsEmpty() || other.IsEmpty() {
		return true
	}
	return m.String() == other.String()
}

// Specificity returns the tag count (format token plus flags).
func (m *MediaURN) Specificity() int {
	if m == nil || m.inner == nil {
		return 0
	}
	return len(m.inner.AllTags())
}

// MarshalJSON/UnmarshalJSON delegate to the canonical string form.
func (m *MediaURN) MarshalJSON() ([]byte, error) {
	return m.inner.MarshalJSON()
}

func (m *MediaURN) UnmarshalJSON(data []byte) error {
	inner := &TaggedURN{}
	if err := inner.UnmarshalJSON(data); err != nil {
		return err
	}
	if strings.ToLower(inner.Prefix()) != "media" && len(data) > 2 {
		return newErr(ErrMissingPrefix, 0, "media URN must start with 'media:'")
	}
	m.inner = inner
	return nil
}
