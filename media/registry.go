package media

import (
	"fmt"
	"strings"
	"sync"

	"github.com/filegrind/capforge/urn"
)

// StoredMediaSpec is a media spec as held by the Registry: bundled
// standard specs plus anything registered at runtime.
type StoredMediaSpec struct {
	Urn         string           `json:"urn"`
	MediaType   string           `json:"media_type"`
	Title       string           `json:"title"`
	ProfileURI  string           `json:"profile_uri,omitempty"`
	Schema      any              `json:"schema,omitempty"`
	Description string           `json:"description,omitempty"`
	Validation  *MediaValidation `json:"validation,omitempty"`
	Metadata    map[string]any   `json:"metadata,omitempty"`
	Extensions  []string         `json:"extensions,omitempty"`
}

// ToMediaSpecDef converts a StoredMediaSpec into the cap-local MediaSpecDef
// shape, letting a cap author copy a standard spec as a starting point.
func (s *StoredMediaSpec) ToMediaSpecDef() MediaSpecDef {
	return MediaSpecDef{
		Urn:         s.Urn,
		MediaType:   s.MediaType,
		Title:       s.Title,
		ProfileURI:  s.ProfileURI,
		Schema:      s.Schema,
		Description: s.Description,
		Validation:  s.Validation,
		Metadata:    s.Metadata,
		Extensions:  s.Extensions,
	}
}

// Registry resolves media URNs to media specs: bundled standard specs plus
// anything added with AddSpec. Safe for concurrent reads; AddSpec takes the
// write lock (spec.md's single-writer/multi-reader contract, C5).
type Registry struct {
	mu          sync.RWMutex
	cachedSpecs map[string]StoredMediaSpec
	extIndex    map[string][]string
}

// RegistryError is a media registry lookup failure.
type RegistryError struct {
	Message string
}

func (e *RegistryError) Error() string { return e.Message }

// NewRegistry builds a registry preloaded with the bundled standard media
// specs.
func NewRegistry() *Registry {
	r := &Registry{
		cachedSpecs: make(map[string]StoredMediaSpec),
		extIndex:    make(map[string][]string),
	}
	for _, spec := range bundledStandardMediaSpecs() {
		r.AddSpec(spec)
	}
	return r
}

// NewEmptyRegistry builds a registry with no bundled specs, for tests that
// want full control over the resolvable set.
func NewEmptyRegistry() *Registry {
	return &Registry{
		cachedSpecs: make(map[string]StoredMediaSpec),
		extIndex:    make(map[string][]string),
	}
}

// GetMediaSpec looks up a media spec by its canonical URN form.
func (r *Registry) GetMediaSpec(mediaUrn string) (*StoredMediaSpec, error) {
	normalized := normalizeMediaUrn(mediaUrn)

	r.mu.RLock()
	defer r.mu.RUnlock()

	spec, ok := r.cachedSpecs[normalized]
	if !ok {
		return nil, &RegistryError{Message: fmt.Sprintf("media URN '%s' not found in registry", mediaUrn)}
	}
	return &spec, nil
}

// SpecsByExtension returns the media URNs registered under a file
// extension (lowercase, without the leading dot), in the order they
// were added.
func (r *Registry) SpecsByExtension(ext string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	urns := r.extIndex[strings.ToLower(ext)]
	out := make([]string, len(urns))
	copy(out, urns)
	return out
}

// AddSpec registers or overwrites a media spec in the registry.
func (r *Registry) AddSpec(spec StoredMediaSpec) {
	r.mu.Lock()
	defer r.mu.Unlock()

	normalized := normalizeMediaUrn(spec.Urn)
	r.cachedSpecs[normalized] = spec

	for _, ext := range spec.Extensions {
		extLower := strings.ToLower(ext)
		r.extIndex[extLower] = append(r.extIndex[extLower], spec.Urn)
	}
}

func normalizeMediaUrn(raw string) string {
	parsed, err := urn.ParseMediaURN(raw)
	if err != nil {
		return raw
	}
	return parsed.String()
}

func bundledStandardMediaSpecs() []StoredMediaSpec {
	return []StoredMediaSpec{
		{Urn: "media:", MediaType: "application/octet-stream", Title: "Void",
			ProfileURI: GetProfileURL("void"), Description: "No input/output."},
		{Urn: "media:binary", MediaType: "application/octet-stream", Title: "Bytes",
			ProfileURI: GetProfileURL("bytes"), Description: "Raw byte sequence."},
		{Urn: "media:textable", MediaType: "text/plain", Title: "String",
			ProfileURI: GetProfileURL("string"), Description: "UTF-8 string value."},
		{Urn: "media:record;textable", MediaType: "application/json", Title: "Record",
			ProfileURI: GetProfileURL("record"), Description: "String-keyed map value."},
		{Urn: "media:list;textable", MediaType: "application/json", Title: "List",
			ProfileURI: GetProfileURL("list"), Description: "Ordered list value."},
		{Urn: "media:textable;numeric", MediaType: "text/plain", Title: "Number",
			ProfileURI: GetProfileURL("number"), Description: "Numeric scalar value."},
		{Urn: "media:bool;textable", MediaType: "text/plain", Title: "Boolean",
			ProfileURI: GetProfileURL("boolean"), Description: "Boolean value."},
		{Urn: "media:integer;textable;numeric", MediaType: "text/plain", Title: "Integer",
			ProfileURI: GetProfileURL("integer"), Description: "Integer value."},
		{Urn: "media:pdf;binary", MediaType: "application/pdf", Title: "PDF",
			ProfileURI: GetProfileURL("pdf"), Description: "PDF document.", Extensions: []string{"pdf"}},
		{Urn: "media:epub;binary", MediaType: "application/epub+zip", Title: "EPUB",
			ProfileURI: GetProfileURL("epub"), Description: "EPUB document.", Extensions: []string{"epub"}},
		{Urn: "media:md;textable", MediaType: "text/markdown", Title: "Markdown",
			ProfileURI: GetProfileURL("md"), Description: "Markdown text.", Extensions: []string{"md", "markdown"}},
		{Urn: "media:txt;textable", MediaType: "text/plain", Title: "Plain Text",
			ProfileURI: GetProfileURL("txt"), Description: "Plain text.", Extensions: []string{"txt"}},
		{Urn: "media:html;textable", MediaType: "text/html", Title: "HTML",
			ProfileURI: GetProfileURL("html"), Description: "HTML document.", Extensions: []string{"html", "htm"}},
		{Urn: "media:xml;textable", MediaType: "text/xml", Title: "XML",
			ProfileURI: GetProfileURL("xml"), Description: "XML document.", Extensions: []string{"xml"}},
		{Urn: "media:json;textable;record", MediaType: "application/json", Title: "JSON",
			ProfileURI: GetProfileURL("json"), Description: "JSON data.", Extensions: []string{"json"}},
		{Urn: "media:json;textable;list", MediaType: "application/json", Title: "JSON Array",
			ProfileURI: GetProfileURL("json"), Description: "JSON array data.", Extensions: []string{"json"}},
		{Urn: "media:ndjson;textable;list", MediaType: "application/x-ndjson", Title: "NDJSON",
			ProfileURI: GetProfileURL("ndjson"), Description: "Newline-delimited JSON records.", Extensions: []string{"ndjson", "jsonl"}},
		{Urn: "media:yaml;textable;record", MediaType: "application/yaml", Title: "YAML",
			ProfileURI: GetProfileURL("yaml"), Description: "YAML data.", Extensions: []string{"yaml", "yml"}},
		{Urn: "media:toml;textable;record", MediaType: "application/toml", Title: "TOML",
			ProfileURI: GetProfileURL("toml"), Description: "TOML data.", Extensions: []string{"toml"}},
		{Urn: "media:csv;textable;list", MediaType: "text/csv", Title: "CSV",
			ProfileURI: GetProfileURL("csv"), Description: "Comma-separated values.", Extensions: []string{"csv"}},
		{Urn: "media:log;textable", MediaType: "text/plain", Title: "Log",
			ProfileURI: GetProfileURL("log"), Description: "Log text, one entry per line.", Extensions: []string{"log"}},
		{Urn: "media:image;png;binary", MediaType: "image/png", Title: "PNG Image",
			ProfileURI: GetProfileURL("image"), Description: "PNG image data.", Extensions: []string{"png"}},
		{Urn: "media:image;jpeg;binary", MediaType: "image/jpeg", Title: "JPEG Image",
			ProfileURI: GetProfileURL("image"), Description: "JPEG image data.", Extensions: []string{"jpg", "jpeg"}},
		{Urn: "media:audio;wav;binary", MediaType: "audio/wav", Title: "WAV Audio",
			ProfileURI: GetProfileURL("audio"), Description: "WAV audio data.", Extensions: []string{"wav"}},
		{Urn: "media:video;binary", MediaType: "video/mp4", Title: "Video",
			ProfileURI: GetProfileURL("video"), Description: "Video data.", Extensions: []string{"mp4"}},
	}
}
