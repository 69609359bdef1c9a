package planexec

import (
	"fmt"
	"os"

	"github.com/filegrind/capforge/cap"
	"github.com/filegrind/capforge/plan"
)

// argContext carries everything resolveArgumentBinding needs: the input
// file records available to FromInputFile, the caller-supplied raw slot
// bytes available to FromSlot, prior node outputs for FromNode, plan
// metadata for FromMetadata, and the settings provider consulted before
// the environment for FromEnv.
type argContext struct {
	inputFiles       map[string]any    // slot name (or "" for the default slot) -> file record
	slotValues       map[string][]byte // caller-supplied literal slot values
	previousOutputs  map[string]any    // node id -> decoded output value
	metadata         map[string]any
	settingsProvider SettingsProvider
}

// resolveArgumentBinding resolves one ArgumentBinding to a concrete value
// (spec.md §4.10 "Argument resolution"). capDef supplies the declared
// default for BindDefault bindings.
func resolveArgumentBinding(ctx *argContext, binding plan.ArgumentBinding, argName string, capDef *cap.Cap) (any, error) {
	switch binding.Kind {
	case plan.BindFromInputFile:
		return resolveDefaultInputFile(ctx)
	case plan.BindFromSlot:
		val, ok := ctx.slotValues[binding.SlotName]
		if !ok {
			return nil, &Error{Kind: "MissingBinding", Message: fmt.Sprintf("no value bound to slot %q", binding.SlotName)}
		}
		return string(val), nil
	case plan.BindFromNode:
		source, ok := ctx.previousOutputs[binding.NodeID]
		if !ok {
			return nil, &Error{Kind: "UnknownNode", Message: fmt.Sprintf("node %q has no recorded output", binding.NodeID)}
		}
		return applyEdgeType(source, binding.EdgeType, binding.Field, binding.Path)
	case plan.BindLiteral:
		return binding.Literal, nil
	case plan.BindFromMetadata:
		val, ok := ctx.metadata[binding.MetadataKey]
		if !ok {
			return nil, &Error{Kind: "MissingBinding", Message: fmt.Sprintf("metadata key %q not present", binding.MetadataKey)}
		}
		return val, nil
	case plan.BindFromEnv:
		if ctx.settingsProvider != nil {
			if val, ok := ctx.settingsProvider.GetSetting(binding.EnvName); ok {
				return val, nil
			}
		}
		if val, ok := os.LookupEnv(binding.EnvName); ok {
			return val, nil
		}
		return nil, &Error{Kind: "MissingBinding", Message: fmt.Sprintf("environment variable %q not set", binding.EnvName)}
	case plan.BindDefault:
		arg, ok := capDef.GetArg(argName)
		if !ok || arg.DefaultValue == nil {
			return nil, &Error{Kind: "MissingBinding", Message: fmt.Sprintf("argument %q has no cap-declared default", argName)}
		}
		return arg.DefaultValue, nil
	default:
		return nil, &Error{Kind: "TypeMismatch", Message: fmt.Sprintf("unknown binding kind %q", binding.Kind)}
	}
}

func resolveDefaultInputFile(ctx *argContext) (any, error) {
	if val, ok := ctx.inputFiles[defaultSlotName]; ok {
		return val, nil
	}
	if len(ctx.inputFiles) == 1 {
		for _, v := range ctx.inputFiles {
			return v, nil
		}
	}
	return nil, &Error{Kind: "MissingBinding", Message: "from_input_file binding requires a single unambiguous input slot"}
}

// defaultSlotName is the input-file slot name FromInputFile resolves to
// when the plan declared exactly one anonymous primary input.
const defaultSlotName = ""
