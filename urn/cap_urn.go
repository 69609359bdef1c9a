package urn

import "strings"

// reservedCapKeys are the well-known tags of a cap URN beyond in/out
// (spec.md §3). Any other key is user metadata.
var reservedCapKeys = map[string]bool{
	"op": true, "ext": true, "format": true, "target": true, "type": true, "action": true,
}

// CapURN is a TaggedURN with prefix "cap" and two required direction
// tags: "in" (accepted input media URN) and "out" (produced output media
// URN). A cap URN whose in/out tag is the empty media URN ("media:")
// accepts/produces anything in that direction.
type CapURN struct {
	inner *TaggedURN
}

// NewCapURN builds a cap URN from direction specs and additional tags.
// Keys are normalized to lowercase; "in"/"out" in tags are ignored — use
// inSpec/outSpec instead.
func NewCapURN(inSpec, outSpec string, tags map[string]string) *CapURN {
	all := make(map[string]string, len(tags)+2)
	all["in"] = inSpec
	all["out"] = outSpec
	for k, v := range tags {
		kl := strings.ToLower(k)
		if kl == "in" || kl == "out" {
			continue
		}
		all[kl] = v
	}
	return &CapURN{inner: New("cap", all)}
}

// ParseCapURN parses a cap URN string. The "cap:" prefix and both "in"
// and "out" tags are required.
func ParseCapURN(s string) (*CapURN, error) {
	parsed, err := Parse(s)
	if err != nil {
		return nil, err
	}
	if parsed.Prefix() != "cap" {
		return nil, newErr(ErrMissingPrefix, 0, "cap URN must start with 'cap:'")
	}
	if _, ok := parsed.GetTag("in"); !ok {
		return nil, newErr(ErrInvalidFormat, 0, "cap URN is missing required 'in' tag")
	}
	if _, ok := parsed.GetTag("out"); !ok {
		return nil, newErr(ErrInvalidFormat, 0, "cap URN is missing required 'out' tag")
	}
	return &CapURN{inner: parsed}, nil
}

// InSpec returns the raw input media URN string.
func (c *CapURN) InSpec() string {
	v, _ := c.inner.GetTag("in")
	return v
}

// OutSpec returns the raw output media URN string.
func (c *CapURN) OutSpec() string {
	v, _ := c.inner.GetTag("out")
	return v
}

// GetTag returns a tag value, including "in"/"out".
func (c *CapURN) GetTag(key string) (string, bool) {
	return c.inner.GetTag(strings.ToLower(key))
}

// WithTag returns a new cap URN with key set to value. Attempts to set
// "in"/"out" are ignored; use WithInSpec/WithOutSpec.
func (c *CapURN) WithTag(key, value string) *CapURN {
	kl := strings.ToLower(key)
	if kl == "in" || kl == "out" {
		return c
	}
	return &CapURN{inner: c.inner.WithTag(kl, value)}
}

// WithInSpec returns a new cap URN with a different input spec.
func (c *CapURN) WithInSpec(inSpec string) *CapURN {
	return &CapURN{inner: c.inner.WithTag("in", inSpec)}
}

// WithOutSpec returns a new cap URN with a different output spec.
func (c *CapURN) WithOutSpec(outSpec string) *CapURN {
	return &CapURN{inner: c.inner.WithTag("out", outSpec)}
}

// String returns the canonical serialization.
func (c *CapURN) String() string {
	return c.inner.String()
}

// Equals compares two cap URNs by canonical form.
func (c *CapURN) Equals(other *CapURN) bool {
	if c == nil || other == nil {
		return c == other
	}
	return c.inner.Equals(other.inner)
}

// Specificity is the count of non-wildcard tags across in, out, and all
// other tags (spec.md §3): the in/out direction tags contribute per their
// own media-URN tag count rather than a flat 0/1, since a more specific
// media URN (more structural flags) should outrank a less specific one.
func (c *CapURN) Specificity() int {
	score := 0
	if in, err := ParseMediaURN(c.InSpec()); err == nil && !in.IsEmpty() {
		score += in.Specificity()
	}
	if out, err := ParseMediaURN(c.OutSpec()); err == nil && !out.IsEmpty() {
		score += out.Specificity()
	}
	for k, v := range c.inner.AllTags() {
		if k == "in" || k == "out" {
			continue
		}
		if !isWildcard(v) {
			score++
		}
	}
	return score
}

// Matches implements canHandle(provider=c, request) from spec.md §4.2.
// Direction tags are compared as media URNs (empty media URN is
// wildcard in either direction); all other tags use TaggedURN.Matches
// semantics.
func (c *CapURN) Matches(request *CapURN) bool {
	if request == nil {
		return true
	}
	provIn, errA := ParseMediaURN(c.InSpec())
	reqIn, errB := ParseMediaURN(request.InSpec())
	if errA == nil && errB == nil && !provIn.Equals(reqIn) {
		return false
	}
	provOut, errC := ParseMediaURN(c.OutSpec())
	reqOut, errD := ParseMediaURN(request.OutSpec())
	if errC == nil && errD == nil && !provOut.Equals(reqOut) {
		return false
	}
	for key, reqVal := range request.inner.AllTags() {
		if key == "in" || key == "out" {
			continue
		}
		provVal, ok := c.inner.GetTag(key)
		if !ok {
			if isWildcard(reqVal) {
				continue
			}
			return false
		}
		if isWildcard(provVal) || provVal == reqVal {
			continue
		}
		return false
	}
	return true
}

// CanHandle is an alias for Matches, matching the spec's naming.
func (c *CapURN) CanHandle(request *CapURN) bool {
	return c.Matches(request)
}

// IsMoreSpecificThan orders by specificity, tie-broken by canonical
// string comparison for a stable, deterministic total order (spec.md §4.2).
func (c *CapURN) IsMoreSpecificThan(other *CapURN) bool {
	if other == nil {
		return true
	}
	if c.Specificity() != other.Specificity() {
		return c.Specificity() > other.Specificity()
	}
	return c.String() < other.String()
}

// MarshalJSON/UnmarshalJSON delegate to the canonical string form.
func (c *CapURN) MarshalJSON() ([]byte, error) {
	return c.inner.MarshalJSON()
}

func (c *CapURN) UnmarshalJSON(data []byte) error {
	inner := &TaggedURN{}
	if err := inner.UnmarshalJSON(data); err != nil {
		return err
	}
	c.inner = inner
	return nil
}
