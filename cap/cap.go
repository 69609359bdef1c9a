package cap

import (
	"fmt"

	"github.com/filegrind/capforge/media"
	"github.com/filegrind/capforge/urn"
)

// Built-in scalar media URNs a cap's args/output may reference without
// declaring a local media spec (spec.md §3, Cap invariant).
var builtinScalarMediaUrns = map[string]bool{
	media.MediaVoid: true, media.MediaString: true, media.MediaInteger: true,
	media.MediaNumber: true, media.MediaBoolean: true, media.MediaRecord: true,
	media.MediaList: true, media.MediaBinary: true,
}

// Cap is an immutable capability record: what it's called, how it's
// invoked, and what media it accepts and produces.
type Cap struct {
	Urn          *urn.CapURN
	Title        string
	Command      string
	Description  string
	Metadata     map[string]string
	MediaSpecs   []media.MediaSpecDef
	Args         []CapArg
	Output       *CapOutput
	AcceptsStdin bool
}

// NewCap builds a cap from its required fields.
func NewCap(u *urn.CapURN, title, command string) *Cap {
	return &Cap{
		Urn:      u,
		Title:    title,
		Command:  command,
		Metadata: make(map[string]string),
	}
}

// Validate checks the cap invariant from spec.md §3: mediaSpecs carries
// unique URNs, and every mediaUrn referenced by an arg or the output
// resolves either locally or to a built-in scalar.
func (c *Cap) Validate() error {
	if err := media.ValidateNoMediaSpecDuplicates(c.MediaSpecs); err != nil {
		return err
	}
	local := make(map[string]bool, len(c.MediaSpecs))
	for _, spec := range c.MediaSpecs {
		local[spec.Urn] = true
	}
	check := func(mediaUrn, context string) error {
		if mediaUrn == "" {
			return fmt.Errorf("cap %s: %s has an empty media URN", c.Urn, context)
		}
		if local[mediaUrn] || builtinScalarMediaUrns[mediaUrn] {
			return nil
		}
		return fmt.Errorf("cap %s: %s media URN %q does not resolve locally or to a built-in scalar", c.Urn, context, mediaUrn)
	}
	for _, arg := range c.Args {
		if err := check(arg.MediaUrn, fmt.Sprintf("arg %q", arg.Name)); err != nil {
			return err
		}
	}
	if c.Output != nil {
		if err := check(c.Output.MediaUrn, "output"); err != nil {
			return err
		}
	}
	return nil
}

// ResolveMediaUrn resolves a media URN declared by this cap, preferring
// its local media_specs over the shared registry.
func (c *Cap) ResolveMediaUrn(mediaUrn string, registry *media.Registry) (*media.ResolvedMediaSpec, error) {
	return media.ResolveMediaUrn(mediaUrn, c.MediaSpecs, registry)
}

// CanHandle reports whether this cap's URN matches a request URN
// (urn.CapURN.Matches).
func (c *Cap) CanHandle(request *urn.CapURN) bool {
	return c.Urn.Matches(request)
}

// IsMoreSpecificThan orders two caps by their URN's specificity.
func (c *Cap) IsMoreSpecificThan(other *Cap) bool {
	if other == nil {
		return true
	}
	return c.Urn.IsMoreSpecificThan(other.Urn)
}

// GetArg finds a declared argument by name.
func (c *Cap) GetArg(name string) (*CapArg, bool) {
	for i := range c.Args {
		if c.Args[i].Name == name {
			return &c.Args[i], true
		}
	}
	return nil, false
}

// RequiredArgs returns all required argument declarations.
func (c *Cap) RequiredArgs() []CapArg {
	var out []CapArg
	for _, a := range c.Args {
		if a.Required {
			out = append(out, a)
		}
	}
	return out
}

// ArgNames returns the set of declared argument names, used by plan
// validation to check that a Cap node's argBindings key set is a subset
// of the cap's args (spec.md C11 invariant).
func (c *Cap) ArgNames() map[string]bool {
	names := make(map[string]bool, len(c.Args))
	for _, a := range c.Args {
		names[a.Name] = true
	}
	return names
}

// Clone returns a deep-enough copy for the Matrix's snapshot-on-register
// semantics (spec.md §3: "Registered caps are snapshot-copied; no
// aliasing").
func (c *Cap) Clone() *Cap {
	cp := *c
	cp.Metadata = make(map[string]string, len(c.Metadata))
	for k, v := range c.Metadata {
		cp.Metadata[k] = v
	}
	cp.MediaSpecs = append([]media.MediaSpecDef(nil), c.MediaSpecs...)
	cp.Args = append([]CapArg(nil), c.Args...)
	if c.Output != nil {
		out := *c.Output
		cp.Output = &out
	}
	return &cp
}
