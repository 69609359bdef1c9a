// Package cap defines the formal cap (capability) record: its identity
// (urn.CapURN), its arguments and their sources, its output, and the
// schema validator used to check argument/output values against declared
// media specs.
package cap

import (
	"encoding/json"
	"fmt"
)

// ArgSourceKind enumerates how an argument value may be supplied when a
// cap is invoked.
type ArgSourceKind string

const (
	SourceCliFlag       ArgSourceKind = "cli_flag"
	SourceCliPositional ArgSourceKind = "cli_positional"
	SourceStdin         ArgSourceKind = "stdin"
	SourceLiteral       ArgSourceKind = "literal"
	SourceEnv           ArgSourceKind = "env"
)

// ArgSource is a sum type over the five ways an argument can be sourced.
// Exactly one of the typed fields is populated, selected by Kind.
type ArgSource struct {
	Kind        ArgSourceKind `json:"kind"`
	CliFlagName string        `json:"cli_flag_name,omitempty"`
	Position    int           `json:"position,omitempty"`
	Literal     any           `json:"literal,omitempty"`
	EnvName     string        `json:"env_name,omitempty"`
}

// NewCliFlagSource builds a CLI-flag argument source.
func NewCliFlagSource(name string) ArgSource {
	return ArgSource{Kind: SourceCliFlag, CliFlagName: name}
}

// NewCliPositionalSource builds a CLI-positional argument source.
func NewCliPositionalSource(index int) ArgSource {
	return ArgSource{Kind: SourceCliPositional, Position: index}
}

// NewStdinSource builds a stdin argument source.
func NewStdinSource() ArgSource {
	return ArgSource{Kind: SourceStdin}
}

// NewLiteralSource builds a fixed-value argument source.
func NewLiteralSource(value any) ArgSource {
	return ArgSource{Kind: SourceLiteral, Literal: value}
}

// NewEnvSource builds an environment-variable argument source.
func NewEnvSource(name string) ArgSource {
	return ArgSource{Kind: SourceEnv, EnvName: name}
}

func (s ArgSource) IsCliFlag() bool       { return s.Kind == SourceCliFlag }
func (s ArgSource) IsCliPositional() bool { return s.Kind == SourceCliPositional }
func (s ArgSource) IsStdin() bool         { return s.Kind == SourceStdin }
func (s ArgSource) IsLiteral() bool       { return s.Kind == SourceLiteral }
func (s ArgSource) IsEnv() bool           { return s.Kind == SourceEnv }

// ArgumentValidation carries constraint rules layered on top of JSON
// Schema validation.
type ArgumentValidation struct {
	Min           *float64 `json:"min,omitempty"`
	Max           *float64 `json:"max,omitempty"`
	MinLength     *int     `json:"min_length,omitempty"`
	MaxLength     *int     `json:"max_length,omitempty"`
	Pattern       *string  `json:"pattern,omitempty"`
	AllowedValues []string `json:"allowed_values,omitempty"`
}

// CapArg is a single argument declaration of a cap.
type CapArg struct {
	Name         string              `json:"name"`
	MediaUrn     string              `json:"media_urn"`
	Required     bool                `json:"required"`
	Sources      []ArgSource         `json:"sources"`
	Description  string              `json:"description,omitempty"`
	Validation   *ArgumentValidation `json:"validation,omitempty"`
	DefaultValue any                 `json:"default_value,omitempty"`
}

// NewCapArg creates a cap argument; required sets whether callers must supply it.
func NewCapArg(name, mediaUrn string, required bool, sources []ArgSource) CapArg {
	return CapArg{Name: name, MediaUrn: mediaUrn, Required: required, Sources: sources}
}

func (a *CapArg) firstSource(kind ArgSourceKind) (ArgSource, bool) {
	for _, s := range a.Sources {
		if s.Kind == kind {
			return s, true
		}
	}
	return ArgSource{}, false
}

func (a *CapArg) HasStdinSource() bool { _, ok := a.firstSource(SourceStdin); return ok }

func (a *CapArg) HasCliFlagSource() bool { _, ok := a.firstSource(SourceCliFlag); return ok }

// CliFlagName returns the flag name if this arg has a CLI-flag source.
func (a *CapArg) CliFlagName() (string, bool) {
	s, ok := a.firstSource(SourceCliFlag)
	return s.CliFlagName, ok
}

func (a *CapArg) HasPositionalSource() bool { _, ok := a.firstSource(SourceCliPositional); return ok }

// PositionalIndex returns the positional index if this arg has a
// CLI-positional source.
func (a *CapArg) PositionalIndex() (int, bool) {
	s, ok := a.firstSource(SourceCliPositional)
	return s.Position, ok
}

// CapOutput is a cap's declared output.
type CapOutput struct {
	MediaUrn    string              `json:"media_urn"`
	Description string              `json:"description,omitempty"`
	Validation  *ArgumentValidation `json:"validation,omitempty"`
}

// NewCapOutput creates an output definition.
func NewCapOutput(mediaUrn, description string) *CapOutput {
	return &CapOutput{MediaUrn: mediaUrn, Description: description}
}

// argSourceJSON mirrors ArgSource for tag-discriminated marshaling.
type argSourceJSON struct {
	Kind        ArgSourceKind `json:"kind"`
	CliFlagName string        `json:"cli_flag_name,omitempty"`
	Position    *int          `json:"position,omitempty"`
	Literal     any           `json:"literal,omitempty"`
	EnvName     string        `json:"env_name,omitempty"`
}

// MarshalJSON omits the zero value of unrelated variant fields.
func (s ArgSource) MarshalJSON() ([]byte, error) {
	out := argSourceJSON{Kind: s.Kind, CliFlagName: s.CliFlagName, Literal: s.Literal, EnvName: s.EnvName}
	if s.Kind == SourceCliPositional {
		out.Position = &s.Position
	}
	return json.Marshal(out)
}

func (s *ArgSource) UnmarshalJSON(data []byte) error {
	var in argSourceJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	switch in.Kind {
	case SourceCliFlag, SourceCliPositional, SourceStdin, SourceLiteral, SourceEnv:
	default:
		return fmt.Errorf("unknown arg source kind %q", in.Kind)
	}
	s.Kind = in.Kind
	s.CliFlagName = in.CliFlagName
	s.Literal = in.Literal
	s.EnvName = in.EnvName
	if in.Position != nil {
		s.Position = *in.Position
	}
	return nil
}
