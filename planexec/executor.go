// Package planexec walks a plan.Plan in topological order, resolving
// argument bindings and dispatching cap invocations through an injected
// CapExecutor.
package planexec

import (
	"context"

	"github.com/filegrind/capforge/cap"
)

// ArgValue pairs a resolved argument's declared media URN with its
// concrete value, the shape dispatched to a CapExecutor. Name additionally
// carries the declared argument name, so a concrete CapExecutor can map
// back to the cap's own ArgSource (stdin/cli flag/positional) without
// relying on slice order, which map-backed argBindings cannot guarantee.
type ArgValue struct {
	Name     string
	MediaUrn string
	Value    any
}

// CapExecutor is the injected collaborator that knows how to look up and
// invoke concrete caps (spec.md §6, external interfaces).
type CapExecutor interface {
	HasCap(capUrn string) bool
	GetCap(capUrn string) (*cap.Cap, error)
	ExecuteCap(ctx context.Context, capUrn string, arguments []ArgValue, preferredCap string) ([]byte, error)
}

// SettingsProvider is consulted before environment variables when
// resolving a FromEnv argument binding (spec.md §6).
type SettingsProvider interface {
	GetSetting(key string) (string, bool)
}

// NodeStatus is a node's position in its Pending -> Ready -> Running ->
// (Succeeded | Failed | Skipped) lifecycle.
type NodeStatus string

const (
	StatusPending   NodeStatus = "pending"
	StatusReady     NodeStatus = "ready"
	StatusRunning   NodeStatus = "running"
	StatusSucceeded NodeStatus = "succeeded"
	StatusFailed    NodeStatus = "failed"
	StatusSkipped   NodeStatus = "skipped"
)
