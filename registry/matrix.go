// Package registry holds the capability discovery layer: Matrix (a single
// named collection of cap sets), Block (an ordered composite of Matrix
// registries), and Graph (the derived conversion graph over media URNs).
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/filegrind/capforge/cap"
	"github.com/filegrind/capforge/urn"
)

// ResponseKind classifies the payload of a CapSet.ExecuteCap response.
type ResponseKind string

const (
	ResponseText   ResponseKind = "text"
	ResponseBinary ResponseKind = "binary"
	ResponseJSON   ResponseKind = "json"
)

// ResponseWrapper is the raw result of a host-level cap execution, before
// the plan executor reinterprets it as argument/output data.
type ResponseWrapper struct {
	Kind ResponseKind
	Data []byte
}

// CapSet is a capability host: something that can execute a cap by name,
// given positional/named arguments and optional stdin data. Concrete
// implementations live outside this package (e.g. ipcexec.Host).
type CapSet interface {
	ExecuteCap(ctx context.Context, capName string, positionalArgs []string, namedArgs map[string]string, stdinData []byte) (*ResponseWrapper, error)
}

// Error reports a registry-level failure.
type Error struct {
	Kind    string
	Message string
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Kind, e.Message) }

// NewNoSetsFoundError builds the error returned when no registered cap
// set can handle a request.
func NewNoSetsFoundError(request string) *Error {
	return &Error{Kind: "NoSetsFound", Message: fmt.Sprintf("no cap sets found for capability: %s", request)}
}

// ValidationErrorKind enumerates the pre-dispatch validation failures a
// Caller raises before a cap is ever invoked (spec.md §7's ValidationError
// vocabulary). Distinct from cap.ValidationError, which reports JSON
// Schema-level failures once a value is already in hand.
type ValidationErrorKind string

const (
	ErrUnknownCap               ValidationErrorKind = "UnknownCap"
	ErrMissingRequiredArgument  ValidationErrorKind = "MissingRequiredArgument"
	ErrInvalidArgumentType      ValidationErrorKind = "InvalidArgumentType"
	ErrArgumentValidationFailed ValidationErrorKind = "ArgumentValidationFailed"
	ErrInvalidOutputType        ValidationErrorKind = "InvalidOutputType"
	ErrOutputValidationFailed   ValidationErrorKind = "OutputValidationFailed"
	ErrInvalidCapSchema         ValidationErrorKind = "InvalidCapSchema"
	ErrTooManyArguments         ValidationErrorKind = "TooManyArguments"
	ErrJSONParseError           ValidationErrorKind = "JSONParseError"
)

// ValidationError reports a pre- or post-dispatch validation failure
// against a cap's declared argument/output shape.
type ValidationError struct {
	Kind     ValidationErrorKind
	CapUrn   string
	Argument string
	Message  string
}

func (e *ValidationError) Error() string {
	if e.Argument != "" {
		return fmt.Sprintf("%s: cap %q argument %q: %s", e.Kind, e.CapUrn, e.Argument, e.Message)
	}
	return fmt.Sprintf("%s: cap %q: %s", e.Kind, e.CapUrn, e.Message)
}

// NewUnknownCapError builds the error Can returns when no registered cap
// set serves request.
func NewUnknownCapError(request string) *ValidationError {
	return &ValidationError{Kind: ErrUnknownCap, CapUrn: request, Message: "no registered cap set can serve this request"}
}

// NewMissingRequiredArgumentError builds the error Dispatch returns when
// a cap's required argument was not supplied.
func NewMissingRequiredArgumentError(capUrn, argName string) *ValidationError {
	return &ValidationError{Kind: ErrMissingRequiredArgument, CapUrn: capUrn, Argument: argName, Message: "required argument was not provided"}
}

// NewTooManyArgumentsError builds the error Dispatch returns when more
// arguments were supplied than the cap declares.
func NewTooManyArgumentsError(capUrn string, max, got int) *ValidationError {
	return &ValidationError{Kind: ErrTooManyArguments, CapUrn: capUrn, Message: fmt.Sprintf("expects at most %d arguments but received %d", max, got)}
}

// NewJSONParseError builds the error Dispatch returns when a cap's raw
// response cannot be parsed as JSON for output schema validation.
func NewJSONParseError(capUrn string, cause error) *ValidationError {
	return &ValidationError{Kind: ErrJSONParseError, CapUrn: capUrn, Message: fmt.Sprintf("response is not valid JSON: %v", cause)}
}

// capSetEntry is one registered name -> (host, caps) binding.
type capSetEntry struct {
	name string
	host CapSet
	caps []*cap.Cap
}

// Match is the result of a lookup: which cap set, which host, which cap,
// and how specific the match was.
type Match struct {
	SetName     string
	Host        CapSet
	Cap         *cap.Cap
	Specificity int
}

// Matrix is a single registry: a name -> CapSetEntry map (spec.md C7).
// Safe for concurrent use: lookups take the read lock and
// RegisterCapSet/UnregisterCapSet take the write lock.
type Matrix struct {
	mu   sync.RWMutex
	sets map[string]*capSetEntry
}

// NewMatrix builds an empty registry.
func NewMatrix() *Matrix {
	return &Matrix{sets: make(map[string]*capSetEntry)}
}

// RegisterCapSet registers a named cap set. Fails on name collision or a
// duplicate cap URN within the set. Caps are snapshot-copied (cap.Clone)
// so later mutation of the caller's slice does not alias the registry.
func (m *Matrix) RegisterCapSet(name string, host CapSet, caps []*cap.Cap) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sets[name]; exists {
		return &Error{Kind: "DuplicateSetName", Message: fmt.Sprintf("cap set %q is already registered", name)}
	}

	seen := make(map[string]bool, len(caps))
	snapshot := make([]*cap.Cap, len(caps))
	for i, c := range caps {
		key := c.Urn.String()
		if seen[key] {
			return &Error{Kind: "DuplicateCapUrn", Message: fmt.Sprintf("cap URN %q appears more than once in set %q", key, name)}
		}
		seen[key] = true
		snapshot[i] = c.Clone()
	}

	m.sets[name] = &capSetEntry{name: name, host: host, caps: snapshot}
	return nil
}

// UnregisterCapSet removes a named cap set, reporting whether it existed.
func (m *Matrix) UnregisterCapSet(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sets[name]; !exists {
		return false
	}
	delete(m.sets, name)
	return true
}

// SetNames returns all registered cap set names.
func (m *Matrix) SetNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.sets))
	for name := range m.sets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AllCaps returns every cap across every registered set, grouped by set
// name in a stable (sorted) order — used by Graph construction.
func (m *Matrix) AllCaps() []struct {
	SetName string
	Cap     *cap.Cap
} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.sets))
	for name := range m.sets {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []struct {
		SetName string
		Cap     *cap.Cap
	}
	for _, name := range names {
		entry := m.sets[name]
		for _, c := range entry.caps {
			out = append(out, struct {
				SetName string
				Cap     *cap.Cap
			}{SetName: name, Cap: c})
		}
	}
	return out
}

// FindBestCapSet scans every cap in every set, keeps those whose URN
// canHandle's the request, and returns the globally most specific,
// ties broken by set name in ascending order, then cap order within the
// set. The order in which sets were registered is not tracked.
func (m *Matrix) FindBestCapSet(request *urn.CapURN) (*Match, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.sets))
	for name := range m.sets {
		names = append(names, name)
	}
	sort.Strings(names)

	var best *Match
	for _, name := range names {
		entry := m.sets[name]
		for _, c := range entry.caps {
			if !c.Urn.Matches(request) {
				continue
			}
			specificity := c.Urn.Specificity()
			if best == nil || specificity > best.Specificity {
				best = &Match{SetName: name, Host: entry.host, Cap: c, Specificity: specificity}
			}
		}
	}
	if best == nil {
		return nil, NewNoSetsFoundError(request.String())
	}
	return best, nil
}

// CanHandle reports whether any registered cap set can serve the request.
func (m *Matrix) CanHandle(request *urn.CapURN) bool {
	_, err := m.FindBestCapSet(request)
	return err == nil
}

// Can resolves request to its best matching cap set and returns a Caller
// bound to it (spec.md §4.5's "can(request) -> Caller" convenience), or a
// *ValidationError{Kind: UnknownCap} when nothing matches.
func (m *Matrix) Can(request *urn.CapURN) (*Caller, error) {
	match, err := m.FindBestCapSet(request)
	if err != nil {
		return nil, NewUnknownCapError(request.String())
	}
	return &Caller{match: match}, nil
}

// Caller is a dispatch handle bound to a single resolved Match: it knows
// which host and cap it talks to, and checks a call's shape against the
// cap's declared arguments before ever invoking the host.
type Caller struct {
	match *Match
}

// Match returns the resolved match (set name, host, cap, specificity)
// this Caller is bound to.
func (c *Caller) Match() *Match { return c.match }

// Cap returns the matched cap definition.
func (c *Caller) Cap() *cap.Cap { return c.match.Cap }

// Dispatch checks positionalArgs/namedArgs/stdinData against the bound
// cap's declared arguments (TooManyArguments, MissingRequiredArgument)
// and, only once the call shape is sound, invokes the bound host.
// Validating the response against the cap's declared output schema is
// the caller's job once it has decoded the raw bytes (see
// planexec.Executor.runCap), since this handle has no opinion on how a
// CapExecutor chooses to decode a host's raw response.
func (c *Caller) Dispatch(
	ctx context.Context,
	positionalArgs []string,
	namedArgs map[string]string,
	stdinData []byte,
) (*ResponseWrapper, error) {
	capUrn := c.match.Cap.Urn.String()

	maxArgs := len(c.match.Cap.Args)
	gotArgs := len(positionalArgs) + len(namedArgs)
	if gotArgs > maxArgs {
		return nil, NewTooManyArgumentsError(capUrn, maxArgs, gotArgs)
	}

	for _, arg := range c.match.Cap.RequiredArgs() {
		if !argSupplied(arg, positionalArgs, namedArgs, stdinData) {
			return nil, NewMissingRequiredArgumentError(capUrn, arg.Name)
		}
	}

	return c.match.Host.ExecuteCap(ctx, c.match.Cap.Command, positionalArgs, namedArgs, stdinData)
}

// argSupplied reports whether arg's declared source carries a value in
// this call's positional/named/stdin arguments.
func argSupplied(arg cap.CapArg, positionalArgs []string, namedArgs map[string]string, stdinData []byte) bool {
	switch {
	case arg.HasStdinSource():
		return len(stdinData) > 0
	case arg.HasCliFlagSource():
		flagName, _ := arg.CliFlagName()
		_, ok := namedArgs[flagName]
		return ok
	case arg.HasPositionalSource():
		idx, _ := arg.PositionalIndex()
		return idx < len(positionalArgs)
	default:
		_, ok := namedArgs[arg.Name]
		return ok
	}
}
