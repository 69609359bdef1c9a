package planexec

import (
	"fmt"

	"github.com/filegrind/capforge/plan"
	"github.com/filegrind/capforge/registry"
	"github.com/filegrind/capforge/urn"
)

// RegistryCapLookup adapts a registry.Block into the narrow plan.CapLookup
// interface, so plan.Plan.Validate can check Cap-node argument bindings
// against the block's registered caps without plan importing registry.
type RegistryCapLookup struct {
	Block *registry.Block
}

// LookupArgs resolves capUrnPattern to the best-matching registered cap
// and reports its declared argument names, the required subset, and
// which of those carry a cap-level default.
func (l *RegistryCapLookup) LookupArgs(capUrnPattern string) (map[string]bool, []string, map[string]bool, error) {
	request, err := urn.ParseCapURN(capUrnPattern)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("invalid cap URN pattern %q: %w", capUrnPattern, err)
	}

	match, err := l.Block.FindBestCapSet(request)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("no cap registered for pattern %q: %w", capUrnPattern, err)
	}

	argNames := match.Cap.ArgNames()
	required := make([]string, 0)
	hasDefault := make(map[string]bool)
	for _, arg := range match.Cap.RequiredArgs() {
		required = append(required, arg.Name)
		hasDefault[arg.Name] = arg.DefaultValue != nil
	}
	return argNames, required, hasDefault, nil
}
