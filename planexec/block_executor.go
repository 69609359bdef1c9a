package planexec

import (
	"context"
	"fmt"

	"github.com/filegrind/capforge/cap"
	"github.com/filegrind/capforge/registry"
	"github.com/filegrind/capforge/urn"
)

// BlockCapExecutor is the default CapExecutor: it resolves a cap URN
// pattern to a concrete provider via a registry.Block's Can (spec.md
// §4.5), then dispatches through the returned Caller, which checks the
// call's shape against the cap's declared arguments before invoking the
// host. The executor that owns this BlockCapExecutor (planexec.Executor)
// validates the response against the cap's declared output schema once
// it has decoded the raw bytes. ArgValue pairs are marshaled to
// positional/named/stdin arguments by the cap's declared ArgSource,
// matching the Cap Set host interface (spec.md §6).
type BlockCapExecutor struct {
	Block *registry.Block
}

// NewBlockCapExecutor builds a BlockCapExecutor dispatching through block.
func NewBlockCapExecutor(block *registry.Block) *BlockCapExecutor {
	return &BlockCapExecutor{Block: block}
}

// HasCap reports whether any registered cap set can serve capUrn.
func (e *BlockCapExecutor) HasCap(capUrn string) bool {
	request, err := urn.ParseCapURN(capUrn)
	if err != nil {
		return false
	}
	return e.Block.AcceptsRequest(request)
}

// GetCap resolves capUrn to its concrete Cap definition.
func (e *BlockCapExecutor) GetCap(capUrn string) (*cap.Cap, error) {
	request, err := urn.ParseCapURN(capUrn)
	if err != nil {
		return nil, err
	}
	caller, err := e.Block.Can(request)
	if err != nil {
		return nil, err
	}
	return caller.Cap(), nil
}

// ExecuteCap resolves preferredCap when non-empty, otherwise capUrn, to a
// Caller, splits
// arguments into positional/named/stdin per the cap's declared
// ArgSource, and dispatches through the Caller, which checks the call's
// shape before ever reaching the host.
func (e *BlockCapExecutor) ExecuteCap(ctx context.Context, capUrn string, arguments []ArgValue, preferredCap string) ([]byte, error) {
	pattern := capUrn
	if preferredCap != "" {
		pattern = preferredCap
	}
	request, err := urn.ParseCapURN(pattern)
	if err != nil {
		return nil, err
	}

	caller, err := e.Block.Can(request)
	if err != nil {
		return nil, err
	}
	matchedCap := caller.Cap()

	var positional []string
	named := make(map[string]string)
	var stdin []byte

	for _, arg := range arguments {
		decl, ok := matchedCap.GetArg(arg.Name)
		if !ok {
			named[arg.Name] = fmt.Sprintf("%v", arg.Value)
			continue
		}
		switch {
		case decl.HasStdinSource():
			stdin = []byte(fmt.Sprintf("%v", arg.Value))
		case decl.HasCliFlagSource():
			flagName, _ := decl.CliFlagName()
			named[flagName] = fmt.Sprintf("%v", arg.Value)
		case decl.HasPositionalSource():
			positional = append(positional, fmt.Sprintf("%v", arg.Value))
		default:
			named[decl.Name] = fmt.Sprintf("%v", arg.Value)
		}
	}

	resp, err := caller.Dispatch(ctx, positional, named, stdin)
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}
