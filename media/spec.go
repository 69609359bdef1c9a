// Package media provides media spec resolution for media URNs used in cap
// argument and output declarations.
//
// A media URN (urn.MediaURN) names a format plus structural flags, e.g.
// "media:pdf;binary" or "media:json;record;textable". MediaSpecDef is the
// structured definition behind a media URN: its MIME type, JSON Schema,
// validation rules and display metadata.
package media

import (
	"fmt"
	"os"
	"strings"

	"github.com/filegrind/capforge/urn"
)

// Built-in media URN constants, used by standard caps and tests as stable
// references instead of ad hoc strings.
const (
	MediaVoid    = "media:"
	MediaString  = "media:textable"
	MediaInteger = "media:integer;textable;numeric"
	MediaNumber  = "media:textable;numeric"
	MediaBoolean = "media:bool;textable"
	MediaRecord  = "media:record;textable"
	MediaList    = "media:list;textable"
	MediaBinary  = "media:binary"

	MediaImage = "media:image;png;binary"
	MediaAudio = "media:audio;wav;binary"
	MediaVideo = "media:video;binary"

	MediaPdf  = "media:pdf;binary"
	MediaEpub = "media:epub;binary"

	MediaMd   = "media:md;textable"
	MediaTxt  = "media:txt;textable"
	MediaHtml = "media:html;textable"
	MediaXml  = "media:xml;textable"
	MediaJson = "media:json;textable;record"
	MediaYaml = "media:yaml;textable;record"
	MediaCsv  = "media:csv;textable;list"
	MediaToml = "media:toml;textable;record"
)

// Profile URL constants, overridable at runtime via GetSchemaBase.
const (
	SchemaBase = "https://capforge.dev/schema"
)

// GetSchemaBase returns the schema base URL to use when generating profile
// URIs for built-in media specs. Resolution order:
//  1. CAPFORGE_SCHEMA_BASE_URL environment variable
//  2. CAPFORGE_REGISTRY_URL environment variable + "/schema"
//  3. the SchemaBase default
//
// This is the one piece of external configuration the library reads; there
// is no broader config file format since capforge is a library, not a
// daemon with its own settings surface.
func GetSchemaBase() string {
	if v := os.Getenv("CAPFORGE_SCHEMA_BASE_URL"); v != "" {
		return v
	}
	if v := os.Getenv("CAPFORGE_REGISTRY_URL"); v != "" {
		return v + "/schema"
	}
	return SchemaBase
}

// GetProfileURL builds a profile URL under the configured schema base.
func GetProfileURL(profileName string) string {
	return GetSchemaBase() + "/" + profileName
}

// MediaValidation carries constraint rules layered on top of JSON Schema
// validation (range/length/pattern/enum) for media specs that want
// validation stricter than their schema alone expresses.
type MediaValidation struct {
	Min           *float64 `json:"min,omitempty"`
	Max           *float64 `json:"max,omitempty"`
	MinLength     *int     `json:"min_length,omitempty"`
	MaxLength     *int     `json:"max_length,omitempty"`
	Pattern       *string  `json:"pattern,omitempty"`
	AllowedValues []string `json:"allowed_values,omitempty"`
}

// MediaSpecDef is a media spec as declared in a cap's local media_specs
// array. Urn identifies it within that array; it is always a structured
// object, never a bare string.
type MediaSpecDef struct {
	Urn         string                 `json:"urn"`
	MediaType   string                 `json:"media_type"`
	ProfileURI  string                 `json:"profile_uri,omitempty"`
	Schema      interface{}            `json:"schema,omitempty"`
	Title       string                 `json:"title,omitempty"`
	Description string                 `json:"description,omitempty"`
	Validation  *MediaValidation       `json:"validation,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	Extensions  []string               `json:"extensions,omitempty"`
}

// NewMediaSpecDef creates a media spec def with the required fields.
func NewMediaSpecDef(u, mediaType, profileURI string) MediaSpecDef {
	return MediaSpecDef{Urn: u, MediaType: mediaType, ProfileURI: profileURI}
}

// ResolvedMediaSpec is a fully resolved media spec, merged from whichever
// source answered ResolveMediaUrn.
type ResolvedMediaSpec struct {
	SpecID      string
	MediaType   string
	ProfileURI  string
	Schema      interface{}
	Title       string
	Description string
	Validation  *MediaValidation
	Metadata    map[string]interface{}
	Extensions  []string
}

func (r *ResolvedMediaSpec) flags() *urn.MediaURN {
	m, err := urn.ParseMediaURN(r.SpecID)
	if err != nil {
		panic(fmt.Sprintf("resolved media spec carries an invalid media URN '%s': %v", r.SpecID, err))
	}
	return m
}

// IsBinary reports whether the "binary" structural flag is present.
func (r *ResolvedMediaSpec) IsBinary() bool { return r.flags().IsBinary() }

// IsRecord reports whether the "record" structural flag is present.
func (r *ResolvedMediaSpec) IsRecord() bool { return r.flags().IsRecord() }

// IsList reports whether the "list" structural flag is present.
func (r *ResolvedMediaSpec) IsList() bool { return r.flags().IsList() }

// IsText reports whether the "textable" structural flag is present.
func (r *ResolvedMediaSpec) IsText() bool { return r.flags().IsTextable() }

// IsImage reports whether the "image" structural flag is present.
func (r *ResolvedMediaSpec) IsImage() bool { return r.flags().IsImage() }

// IsAudio reports whether the "audio" structural flag is present.
func (r *ResolvedMediaSpec) IsAudio() bool { return r.flags().IsAudio() }

// IsVideo reports whether the "video" structural flag is present.
func (r *ResolvedMediaSpec) IsVideo() bool { return r.flags().IsVideo() }

// IsCode reports whether the "code" structural flag is present.
func (r *ResolvedMediaSpec) IsCode() bool { return r.flags().IsCode() }

// IsStructured reports whether this represents structured data (record or
// list), which can be serialized as JSON when transmitted as text.
func (r *ResolvedMediaSpec) IsStructured() bool { return r.IsRecord() || r.IsList() }

// HasTag checks a raw tag on the spec's media URN.
func (r *ResolvedMediaSpec) HasTag(tagName string) bool {
	_, ok := r.flags().GetTag(tagName)
	return ok
}

// PrimaryType returns the first path segment of MediaType, e.g. "image"
// from "image/png".
func (r *ResolvedMediaSpec) PrimaryType() string {
	parts := strings.SplitN(r.MediaType, "/", 2)
	return parts[0]
}

// Subtype returns the second path segment of MediaType, e.g. "png" from
// "image/png".
func (r *ResolvedMediaSpec) Subtype() string {
	parts := strings.SplitN(r.MediaType, "/", 2)
	if len(parts) > 1 {
		return parts[1]
	}
	return ""
}

func (r *ResolvedMediaSpec) String() string {
	if r.ProfileURI != "" {
		return fmt.Sprintf("%s; profile=%s", r.MediaType, r.ProfileURI)
	}
	return r.MediaType
}

// SpecError is a media spec resolution or validation failure.
type SpecError struct {
	Message string
}

func (e *SpecError) Error() string { return e.Message }

var (
	ErrInvalidMediaUrn   = &SpecError{"invalid media URN - must start with 'media:'"}
	ErrDuplicateMediaUrn = &SpecError{"duplicate media URN in media_specs array"}
)

// NewUnresolvableMediaUrnError builds an error for a media URN that no
// source (local media_specs nor registry) could resolve.
func NewUnresolvableMediaUrnError(mediaUrn string) error {
	return &SpecError{Message: fmt.Sprintf("media URN '%s' cannot be resolved - not found in cap's media_specs or registry", mediaUrn)}
}

// ValidateNoMediaSpecDuplicates rejects a media_specs array containing the
// same URN twice.
func ValidateNoMediaSpecDuplicates(mediaSpecs []MediaSpecDef) error {
	seen := make(map[string]bool, len(mediaSpecs))
	for _, spec := range mediaSpecs {
		if seen[spec.Urn] {
			return &SpecError{Message: fmt.Sprintf("duplicate media URN '%s' in media_specs array", spec.Urn)}
		}
		seen[spec.Urn] = true
	}
	return nil
}

// ResolveMediaUrn resolves a media URN to a ResolvedMediaSpec. Resolution
// order:
//  1. mediaSpecs, a cap's local media_specs array (cap-specific definitions
//     take priority so a cap can refine or override a standard spec)
//  2. registry, the shared Registry of bundled and registered specs
//
// If neither source resolves the URN, ResolveMediaUrn fails hard rather
// than falling back to a guessed type: a plan referencing an unresolvable
// media URN is a configuration error, not a runtime condition to paper
// over.
func ResolveMediaUrn(mediaUrn string, mediaSpecs []MediaSpecDef, registry *Registry) (*ResolvedMediaSpec, error) {
	if !strings.HasPrefix(mediaUrn, "media:") {
		return nil, ErrInvalidMediaUrn
	}

	for i := range mediaSpecs {
		if mediaSpecs[i].Urn == mediaUrn {
			return resolveMediaSpecDef(&mediaSpecs[i]), nil
		}
	}

	if registry != nil {
		if stored, err := registry.GetMediaSpec(mediaUrn); err == nil {
			return &ResolvedMediaSpec{
				SpecID:      mediaUrn,
				MediaType:   stored.MediaType,
				ProfileURI:  stored.ProfileURI,
				Schema:      stored.Schema,
				Title:       stored.Title,
				Description: stored.Description,
				Validation:  stored.Validation,
				Metadata:    stored.Metadata,
				Extensions:  stored.Extensions,
			}, nil
		}
	}

	return nil, NewUnresolvableMediaUrnError(mediaUrn)
}

func resolveMediaSpecDef(def *MediaSpecDef) *ResolvedMediaSpec {
	return &ResolvedMediaSpec{
		SpecID:      def.Urn,
		MediaType:   def.MediaType,
		ProfileURI:  def.ProfileURI,
		Schema:      def.Schema,
		Title:       def.Title,
		Description: def.Description,
		Validation:  def.Validation,
		Metadata:    def.Metadata,
		Extensions:  def.Extensions,
	}
}

// TypeFromMediaUrn classifies a media URN string into a coarse value kind
// (binary, object, array, string, number, integer, boolean, void, unknown)
// used by argument coercion.
func TypeFromMediaUrn(mediaUrn string) string {
	parsed, err := urn.ParseMediaURN(mediaUrn)
	if err != nil {
		return "unknown"
	}
	if parsed.IsEmpty() {
		return "void"
	}
	if parsed.IsBinary() {
		return "binary"
	}
	if parsed.IsRecord() {
		return "object"
	}
	if parsed.IsList() {
		return "array"
	}
	if _, ok := parsed.GetTag("integer"); ok {
		return "integer"
	}
	if _, ok := parsed.GetTag("numeric"); ok {
		return "number"
	}
	if _, ok := parsed.GetTag("bool"); ok {
		return "boolean"
	}
	if parsed.IsTextable() {
		return "string"
	}
	return "unknown"
}

// GetMediaSpecFromCapUrn resolves the output media spec of a cap URN via
// its "out" direction tag.
func GetMediaSpecFromCapUrn(c *urn.CapURN, mediaSpecs []MediaSpecDef, registry *Registry) (*ResolvedMediaSpec, error) {
	outUrn := c.OutSpec()
	if outUrn == "" {
		return nil, fmt.Errorf("no 'out' tag found in cap URN")
	}
	return ResolveMediaUrn(outUrn, mediaSpecs, registry)
}
