package planexec

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/filegrind/capforge/cap"
	"github.com/filegrind/capforge/media"
	"github.com/filegrind/capforge/plan"
	"github.com/filegrind/capforge/resolve"
)

// Executor walks a Plan in topological order, resolving argument bindings
// and dispatching Cap nodes through an injected CapExecutor. It is
// single-use: construct one per plan run.
type Executor struct {
	capExecutor      CapExecutor
	plan             *plan.Plan
	inputFiles       map[string]*resolve.ResolvedInputSet
	slotValues       map[string][]byte
	settingsProvider SettingsProvider
	validator        *cap.Validator
	mediaRegistry    *media.Registry
	lookup           plan.CapLookup

	outputs map[string]any
	cancel  <-chan struct{}
}

// NewExecutor builds an Executor. inputFiles maps plan input-slot names
// to their resolved file sets; pass a single entry keyed by "" (the
// default slot) for plans with one anonymous primary input. slotValues,
// settingsProvider and cancel may all be nil.
func NewExecutor(capExecutor CapExecutor, p *plan.Plan, inputFiles map[string]*resolve.ResolvedInputSet, slotValues map[string][]byte, settingsProvider SettingsProvider, lookup plan.CapLookup, cancel <-chan struct{}) *Executor {
	return &Executor{
		capExecutor:      capExecutor,
		plan:             p,
		inputFiles:       inputFiles,
		slotValues:       slotValues,
		settingsProvider: settingsProvider,
		validator:        cap.NewValidator(),
		mediaRegistry:    media.NewRegistry(),
		lookup:           lookup,
		outputs:          make(map[string]any),
		cancel:           cancel,
	}
}

// Run validates the plan, computes its topological order, and walks every
// node in order, halting on the first node failure.
func (e *Executor) Run(ctx context.Context) (*ChainExecutionResult, error) {
	if err := e.plan.Validate(e.lookup); err != nil {
		return nil, &Error{Kind: "Internal", Message: "plan validation failed: " + err.Error()}
	}

	order, err := e.plan.TopologicalOrder()
	if err != nil {
		return nil, &Error{Kind: "Internal", Message: "topological sort failed: " + err.Error()}
	}

	result := &ChainExecutionResult{
		Success:      true,
		NodeResults:  make(map[string]*NodeResult),
		FinalOutputs: make(map[string]any),
	}

	failedNode := ""
	for _, nodeID := range order {
		if failedNode != "" {
			result.NodeResults[nodeID] = &NodeResult{NodeID: nodeID, Status: StatusSkipped}
			continue
		}
		if e.isCancelled() {
			result.NodeResults[nodeID] = &NodeResult{NodeID: nodeID, Status: StatusSkipped}
			failedNode = nodeID
			result.Success = false
			result.Error = fmt.Sprintf("execution cancelled before node %s", nodeID)
			continue
		}

		node := e.plan.Nodes[nodeID]
		start := time.Now()
		value, binary, text, err := e.runNode(ctx, node)
		duration := time.Since(start)

		if err != nil {
			result.NodeResults[nodeID] = &NodeResult{
				NodeID:   nodeID,
				Status:   StatusFailed,
				Error:    err.Error(),
				Duration: duration,
			}
			result.Success = false
			result.Error = fmt.Sprintf("node %s failed: %s", nodeID, err.Error())
			failedNode = nodeID
			continue
		}

		e.outputs[nodeID] = value
		result.NodeResults[nodeID] = &NodeResult{
			NodeID:       nodeID,
			Status:       StatusSucceeded,
			Value:        value,
			BinaryOutput: binary,
			TextOutput:   text,
			Duration:     duration,
		}

		if node.Kind == plan.NodeOutput {
			result.FinalOutputs[node.OutputName] = value
		}
	}

	return result, nil
}

func (e *Executor) isCancelled() bool {
	if e.cancel == nil {
		return false
	}
	select {
	case <-e.cancel:
		return true
	default:
		return false
	}
}

func (e *Executor) runNode(ctx context.Context, node *plan.Node) (value any, binary []byte, text string, err error) {
	switch node.Kind {
	case plan.NodeInputSlot:
		value, err = e.runInputSlot(node)
		return value, nil, "", err
	case plan.NodeCap:
		return e.runCap(ctx, node)
	case plan.NodeForEach:
		value, err = e.runForEach(node)
		return value, nil, "", err
	case plan.NodeCollect:
		value, err = e.runCollect(node)
		return value, nil, "", err
	case plan.NodeOutput:
		source, ok := e.outputs[node.SourceNode]
		if !ok {
			return nil, nil, "", &Error{Kind: "UnknownNode", Message: fmt.Sprintf("output source node %q produced nothing", node.SourceNode)}
		}
		return source, nil, "", nil
	default:
		return nil, nil, "", &Error{Kind: "TypeMismatch", Message: fmt.Sprintf("unknown node kind %q", node.Kind)}
	}
}

func (e *Executor) runInputSlot(node *plan.Node) (any, error) {
	set, ok := e.inputFiles[node.SlotName]
	if !ok {
		// No files bound to this slot: the node emits no value. Bindings
		// that need a file (FromInputFile) still fail on their own.
		return nil, nil
	}
	records := make([]any, len(set.Files))
	for i, f := range set.Files {
		records[i] = fileRecord(f)
	}
	if set.Cardinality == resolve.Single && len(records) == 1 {
		return records[0], nil
	}
	return records, nil
}

func fileRecord(f resolve.ResolvedFile) map[string]any {
	return map[string]any{
		"path":             f.Path,
		"mediaUrn":         f.MediaUrn,
		"sizeBytes":        f.SizeBytes,
		"contentStructure": string(f.ContentStructure),
	}
}

func (e *Executor) runCap(ctx context.Context, node *plan.Node) (any, []byte, string, error) {
	capDef, err := e.capExecutor.GetCap(node.CapUrnPattern)
	if err != nil {
		return nil, nil, "", &Error{Kind: "UnknownNode", NodeID: node.ID, Message: err.Error()}
	}

	argCtx := &argContext{
		inputFiles:       e.inputFileRecordsBySlot(),
		slotValues:       e.slotValues,
		previousOutputs:  e.outputs,
		metadata:         e.plan.Metadata,
		settingsProvider: e.settingsProvider,
	}

	// Iterate the cap's own declared argument order (not the Go map order
	// of node.ArgBindings) so the resulting ArgValue list is deterministic
	// and positional arguments land in the cap's expected sequence.
	var arguments []ArgValue
	for _, arg := range capDef.Args {
		binding, bound := node.ArgBindings[arg.Name]
		if !bound {
			continue
		}
		name := arg.Name
		val, err := resolveArgumentBinding(argCtx, binding, name, capDef)
		if err != nil {
			return nil, nil, "", err
		}

		mediaSpec, resolveErr := capDef.ResolveMediaUrn(arg.MediaUrn, e.mediaRegistry)
		if resolveErr == nil && mediaSpec != nil && (mediaSpec.IsRecord() || mediaSpec.IsList()) {
			if verr := e.validator.ValidateArgument(name, mediaSpec.Schema, val); verr != nil {
				return nil, nil, "", verr
			}
		}

		arguments = append(arguments, ArgValue{Name: name, MediaUrn: arg.MediaUrn, Value: val})
	}

	raw, err := e.capExecutor.ExecuteCap(ctx, node.CapUrnPattern, arguments, node.PreferredCap)
	if err != nil {
		return nil, nil, "", &Error{Kind: "Internal", NodeID: node.ID, Message: err.Error()}
	}

	value, text := decodeCapOutput(raw)

	if capDef.Output != nil {
		outSpec, resolveErr := capDef.ResolveMediaUrn(capDef.Output.MediaUrn, e.mediaRegistry)
		if resolveErr == nil && outSpec != nil && (outSpec.IsRecord() || outSpec.IsList()) {
			if verr := e.validator.ValidateOutput(outSpec.Schema, value); verr != nil {
				return nil, nil, "", verr
			}
		}
	}

	return value, raw, text, nil
}

// decodeCapOutput implements spec.md §4.10's output-capture rule: raw
// bytes become textOutput when valid UTF-8, the downstream value is the
// JSON decode of those bytes, falling back to {"text": ...} when the
// bytes are not valid JSON.
func decodeCapOutput(raw []byte) (value any, text string) {
	if utf8.Valid(raw) {
		text = string(raw)
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err == nil {
		return decoded, text
	}
	return map[string]any{"text": text}, text
}

func (e *Executor) inputFileRecordsBySlot() map[string]any {
	out := make(map[string]any, len(e.inputFiles))
	for slot, set := range e.inputFiles {
		records := make([]any, len(set.Files))
		for i, f := range set.Files {
			records[i] = fileRecord(f)
		}
		if set.Cardinality == resolve.Single && len(records) == 1 {
			out[slot] = records[0]
		} else {
			out[slot] = records
		}
	}
	return out
}

func (e *Executor) runForEach(node *plan.Node) (any, error) {
	source, ok := e.outputs[node.InputNode]
	if !ok {
		return nil, &Error{Kind: "UnknownNode", NodeID: node.ID, Message: fmt.Sprintf("for_each input node %q produced nothing", node.InputNode)}
	}
	items, ok := source.([]any)
	if !ok {
		items = []any{source}
	}
	return map[string]any{
		"iteration_count": len(items),
		"items":           items,
		"body_entry":      node.BodyEntry,
		"body_exit":       node.BodyExit,
	}, nil
}

func (e *Executor) runCollect(node *plan.Node) (any, error) {
	var collected []any
	for _, inID := range node.InputNodes {
		val, ok := e.outputs[inID]
		if !ok {
			return nil, &Error{Kind: "UnknownNode", NodeID: node.ID, Message: fmt.Sprintf("collect input node %q produced nothing", inID)}
		}
		if arr, ok := val.([]any); ok {
			collected = append(collected, arr...)
		} else {
			collected = append(collected, val)
		}
	}
	return map[string]any{"collected": collected, "count": len(collected)}, nil
}
