// Package resolve turns a list of caller-supplied path strings into a
// ResolvedInputSet: concrete files, each classified by media URN and
// content structure, with overall cardinality and common-media detection.
package resolve

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/filegrind/capforge/media"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// ContentStructure classifies the shape of a resolved file's contents.
type ContentStructure string

const (
	ScalarOpaque ContentStructure = "scalar_opaque"
	ScalarRecord ContentStructure = "scalar_record"
	ListOpaque   ContentStructure = "list_opaque"
	ListRecord   ContentStructure = "list_record"
)

// Cardinality describes how many files a resolved input set carries.
type Cardinality string

const (
	Single   Cardinality = "single"
	Sequence Cardinality = "sequence"
)

// ResolvedFile is one concrete file after path resolution and classification.
type ResolvedFile struct {
	Path             string
	MediaUrn         string
	SizeBytes        int64
	ContentStructure ContentStructure
}

// ResolvedInputSet is the result of resolving a list of caller-supplied
// paths: the concrete files plus derived cardinality and common media.
type ResolvedInputSet struct {
	Files       []ResolvedFile
	Cardinality Cardinality
	CommonMedia string // empty means no common media URN across files
}

// IsHomogeneous reports whether every resolved file shares one media URN.
func (r *ResolvedInputSet) IsHomogeneous() bool {
	return r.CommonMedia != ""
}

// Error reports an input-resolution failure.
type Error struct {
	Kind    string
	Path    string
	Message string
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Path)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func newNotFoundError(path string) *Error {
	return &Error{Kind: "NotFound", Path: path, Message: "path does not exist"}
}

func newNoFilesResolvedError() *Error {
	return &Error{Kind: "NoFilesResolved", Message: "no files remained after filtering"}
}

func newEmptyInputError() *Error {
	return &Error{Kind: "EmptyInput", Message: "no input paths given"}
}

var excludedFileNames = map[string]bool{
	".DS_Store":   true,
	".localized":  true,
	"desktop.ini": true,
	"Thumbs.db":   true,
}

var excludedFilePrefixes = []string{"._", "~$"}
var excludedFileSuffixes = []string{".tmp", ".temp"}

var excludedDirNames = map[string]bool{
	".git":         true,
	"__MACOSX":     true,
	"node_modules": true,
	".svn":         true,
	".hg":          true,
}

func isExcludedFile(name string) bool {
	if excludedFileNames[name] {
		return true
	}
	for _, p := range excludedFilePrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	for _, s := range excludedFileSuffixes {
		if strings.HasSuffix(name, s) {
			return true
		}
	}
	return false
}

func isExcludedDir(name string) bool {
	return excludedDirNames[name]
}

// Resolver resolves caller-supplied input paths against a media spec
// registry, used to classify textable formats that carry a local schema.
type Resolver struct {
	registry *media.Registry
	sniffLen int
}

// NewResolver builds a resolver backed by registry for extension lookups.
// A nil registry falls back to media.NewRegistry()'s bundled standard set.
func NewResolver(registry *media.Registry) *Resolver {
	if registry == nil {
		registry = media.NewRegistry()
	}
	return &Resolver{registry: registry, sniffLen: 64 * 1024}
}

// ResolvePaths expands, filters, classifies and deduplicates a list of
// caller-supplied paths into a ResolvedInputSet.
func (r *Resolver) ResolvePaths(paths []string) (*ResolvedInputSet, error) {
	if len(paths) == 0 {
		return nil, newEmptyInputError()
	}

	var candidates []string
	seen := map[string]bool{}

	for _, p := range paths {
		expanded, err := r.expandOne(p)
		if err != nil {
			return nil, err
		}
		for _, c := range expanded {
			abs, err := filepath.Abs(c)
			if err != nil {
				abs = c
			}
			if seen[abs] {
				continue
			}
			seen[abs] = true
			candidates = append(candidates, c)
		}
	}

	var files []ResolvedFile
	for _, c := range candidates {
		info, err := os.Stat(c)
		if err != nil {
			continue
		}
		if info.IsDir() {
			continue
		}
		if isExcludedFile(filepath.Base(c)) {
			continue
		}
		mediaUrn, structure := r.detectFile(c)
		files = append(files, ResolvedFile{
			Path:             c,
			MediaUrn:         mediaUrn,
			SizeBytes:        info.Size(),
			ContentStructure: structure,
		})
	}

	if len(files) == 0 {
		return nil, newNoFilesResolvedError()
	}

	return &ResolvedInputSet{
		Files:       files,
		Cardinality: cardinalityOf(files),
		CommonMedia: commonMediaOf(files),
	}, nil
}

func cardinalityOf(files []ResolvedFile) Cardinality {
	if len(files) == 1 && isScalar(files[0].ContentStructure) {
		return Single
	}
	return Sequence
}

func isScalar(s ContentStructure) bool {
	return s == ScalarOpaque || s == ScalarRecord
}

func commonMediaOf(files []ResolvedFile) string {
	first := files[0].MediaUrn
	for _, f := range files[1:] {
		if f.MediaUrn != first {
			return ""
		}
	}
	return first
}

// expandOne expands a glob, walks a directory, or validates a single file
// exists; returns the list of concrete file paths it contributed.
func (r *Resolver) expandOne(path string) ([]string, error) {
	if strings.ContainsAny(path, "*?[") {
		matches, err := filepath.Glob(path)
		if err != nil {
			return nil, &Error{Kind: "NotFound", Path: path, Message: err.Error()}
		}
		if len(matches) == 0 {
			return nil, newNotFoundError(path)
		}
		var out []string
		for _, m := range matches {
			expanded, err := r.expandOne(m)
			if err != nil {
				continue
			}
			out = append(out, expanded...)
		}
		return out, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, newNotFoundError(path)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	var out []string
	err = filepath.Walk(path, func(p string, fi os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return nil
		}
		if fi.IsDir() {
			if p != path && isExcludedDir(fi.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if isExcludedFile(fi.Name()) {
			return nil
		}
		out = append(out, p)
		return nil
	})
	if err != nil {
		return nil, &Error{Kind: "NotFound", Path: path, Message: err.Error()}
	}
	sort.Strings(out)
	return out, nil
}

// extCodeFormats maps lowercased extensions (without dot) to a media
// format token for scalar-opaque "textable;code" classification.
var extCodeFormats = map[string]string{
	"py": "python", "rs": "rust", "go": "go", "js": "javascript",
	"ts": "typescript", "java": "java", "c": "c", "cpp": "cpp", "rb": "ruby",
	"sh": "shell",
}

var extBinaryFormats = map[string]string{
	"png": media.MediaImage, "jpg": "media:image;jpeg;binary", "jpeg": "media:image;jpeg;binary",
	"gif": "media:image;gif;binary", "webp": "media:image;webp;binary",
	"mp3": media.MediaAudio, "wav": media.MediaAudio, "flac": "media:audio;flac;binary",
	"mp4": media.MediaVideo, "mov": "media:video;mov;binary", "mkv": "media:video;mkv;binary",
	"pdf": media.MediaPdf, "epub": media.MediaEpub,
}

// detectFile classifies path by extension, falling back to magic-byte
// sniffing and finally the universal opaque binary media URN.
func (r *Resolver) detectFile(path string) (string, ContentStructure) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))

	switch ext {
	case "json":
		return r.detectJSON(path)
	case "ndjson", "jsonl":
		return r.detectNDJSON(path)
	case "csv", "tsv":
		return r.detectDelimited(path, ext)
	case "yaml", "yml":
		return r.detectYAML(path)
	case "toml":
		return r.detectTOML(path)
	case "log":
		return "media:log;list;textable", ListOpaque
	case "md":
		return media.MediaMd, ScalarOpaque
	case "txt":
		return media.MediaTxt, ScalarOpaque
	case "html", "htm":
		return media.MediaHtml, ScalarOpaque
	case "xml":
		return media.MediaXml, ScalarOpaque
	}

	if format, ok := extCodeFormats[ext]; ok {
		return fmt.Sprintf("media:%s;textable;code", format), ScalarOpaque
	}
	if urn, ok := extBinaryFormats[ext]; ok {
		return urn, ScalarOpaque
	}
	if fromRegistry := r.registrySpecFor(ext); fromRegistry != "" {
		return fromRegistry, ScalarOpaque
	}

	return r.sniffMagicBytes(path)
}

// registrySpecFor consults the media spec registry's extension index for
// extensions that carry a registered, non-built-in media spec (e.g. a
// caller-registered proprietary format) but aren't in the hardcoded tables
// above. Returns "" when the registry has no entry.
func (r *Resolver) registrySpecFor(ext string) string {
	urns := r.registry.SpecsByExtension(ext)
	if len(urns) == 0 {
		return ""
	}
	return urns[0]
}

func (r *Resolver) readPrefix(path string) []byte {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	buf := make([]byte, r.sniffLen)
	n, _ := f.Read(buf)
	return buf[:n]
}

func (r *Resolver) sniffMagicBytes(path string) (string, ContentStructure) {
	head := r.readPrefix(path)
	switch {
	case bytes.HasPrefix(head, []byte("%PDF-")):
		return media.MediaPdf, ScalarOpaque
	case bytes.HasPrefix(head, []byte("\x89PNG\r\n\x1a\n")):
		return media.MediaImage, ScalarOpaque
	case bytes.HasPrefix(head, []byte{0xFF, 0xD8, 0xFF}):
		return "media:image;jpeg;binary", ScalarOpaque
	case bytes.HasPrefix(head, []byte("GIF87a")), bytes.HasPrefix(head, []byte("GIF89a")):
		return "media:image;gif;binary", ScalarOpaque
	case bytes.HasPrefix(head, []byte("ID3")):
		return media.MediaAudio, ScalarOpaque
	}
	return media.MediaBinary, ScalarOpaque
}

func (r *Resolver) detectJSON(path string) (string, ContentStructure) {
	data := r.readPrefix(path)
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		// sniff-length read may have truncated a large document; the
		// extension still tells us enough to classify as textable JSON.
		return media.MediaJson, ScalarOpaque
	}
	switch val := v.(type) {
	case map[string]any:
		return "media:json;record;textable", ScalarRecord
	case []any:
		if len(val) > 0 {
			if _, ok := val[0].(map[string]any); ok {
				return "media:json;list;record;textable", ListRecord
			}
		}
		return "media:json;list;textable", ListOpaque
	default:
		return media.MediaJson, ScalarOpaque
	}
}

func (r *Resolver) detectNDJSON(path string) (string, ContentStructure) {
	f, err := os.Open(path)
	if err != nil {
		return "media:ndjson;list;textable", ListOpaque
	}
	defer f.Close()

	allObjects := true
	sawAny := false
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		sawAny = true
		var v any
		if err := json.Unmarshal([]byte(line), &v); err != nil {
			allObjects = false
			break
		}
		if _, ok := v.(map[string]any); !ok {
			allObjects = false
		}
	}
	if sawAny && allObjects {
		return "media:ndjson;list;record;textable", ListRecord
	}
	return "media:ndjson;list;textable", ListOpaque
}

func (r *Resolver) detectDelimited(path, ext string) (string, ContentStructure) {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Sprintf("media:%s;list;textable", ext), ListOpaque
	}
	defer f.Close()

	sep := ","
	if ext == "tsv" {
		sep = "\t"
	}

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return fmt.Sprintf("media:%s;list;textable", ext), ListOpaque
	}
	header := scanner.Text()
	columns := strings.Split(header, sep)
	if len(columns) > 1 {
		return fmt.Sprintf("media:%s;list;record;textable", ext), ListRecord
	}
	return fmt.Sprintf("media:%s;list;textable", ext), ListOpaque
}

// detectTOML parses the file to confirm it is well-formed TOML, mirroring
// detectYAML: a table document classifies as ScalarRecord, a parse failure
// falls back to ScalarOpaque rather than assuming the extension is honest.
func (r *Resolver) detectTOML(path string) (string, ContentStructure) {
	data := r.readPrefix(path)
	var v map[string]any
	if err := toml.Unmarshal(data, &v); err != nil {
		return media.MediaToml, ScalarOpaque
	}
	return media.MediaToml, ScalarRecord
}

func (r *Resolver) detectYAML(path string) (string, ContentStructure) {
	data := r.readPrefix(path)
	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return media.MediaYaml, ScalarOpaque
	}
	switch val := v.(type) {
	case map[string]any:
		return "media:yaml;record;textable", ScalarRecord
	case []any:
		if len(val) > 0 {
			if _, ok := val[0].(map[string]any); ok {
				return "media:yaml;list;record;textable", ListRecord
			}
		}
		return "media:yaml;list;textable", ListOpaque
	default:
		return media.MediaYaml, ScalarOpaque
	}
}
