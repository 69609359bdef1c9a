package planexec

import (
	"fmt"
	"time"
)

// NodeResult records one node's outcome: either a Value (decoded JSON, or
// {text: ...} fallback, or a structural record for ForEach/Collect) plus
// the raw bytes a Cap node produced, or an error message.
type NodeResult struct {
	NodeID       string
	Status       NodeStatus
	Value        any
	BinaryOutput []byte
	TextOutput   string
	Error        string
	Duration     time.Duration
}

// ChainExecutionResult is the user-visible outcome of one plan run: a
// success flag, every node's result, the named Output values, and an
// aggregate error string naming the failing node when applicable.
type ChainExecutionResult struct {
	Success      bool
	NodeResults  map[string]*NodeResult
	FinalOutputs map[string]any
	Error        string
}

// Error reports a plan-execution-level failure (as distinct from a single
// node's recorded failure, which lives in NodeResult).
type Error struct {
	Kind    string
	NodeID  string
	Message string
}

func (e *Error) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("%s: %s (node %s)", e.Kind, e.Message, e.NodeID)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}
