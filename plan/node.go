// Package plan defines the execution plan DAG: nodes, edges and argument
// bindings that a planexec.Executor walks in topological order.
package plan

// NodeKind discriminates the five node variants a Plan can contain.
type NodeKind string

const (
	NodeInputSlot NodeKind = "input_slot"
	NodeCap       NodeKind = "cap"
	NodeForEach   NodeKind = "for_each"
	NodeCollect   NodeKind = "collect"
	NodeOutput    NodeKind = "output"
)

// Node is one node of a Plan DAG. Only the fields relevant to Kind are
// meaningful; see the NewXxxNode constructors.
type Node struct {
	ID   string
	Kind NodeKind

	// InputSlot
	SlotName string

	// Cap
	CapUrnPattern string
	PreferredCap  string
	ArgBindings   map[string]ArgumentBinding

	// ForEach
	InputNode string
	BodyEntry string
	BodyExit  string

	// Collect
	InputNodes []string

	// Output
	OutputName string
	SourceNode string
}

// NewInputSlotNode builds a node that emits the resolved input file(s)
// bound to slotName.
func NewInputSlotNode(id, slotName string) *Node {
	return &Node{ID: id, Kind: NodeInputSlot, SlotName: slotName}
}

// NewCapNode builds a node that dispatches a cap invocation.
func NewCapNode(id, capUrnPattern string, argBindings map[string]ArgumentBinding) *Node {
	if argBindings == nil {
		argBindings = make(map[string]ArgumentBinding)
	}
	return &Node{ID: id, Kind: NodeCap, CapUrnPattern: capUrnPattern, ArgBindings: argBindings}
}

// WithPreferredCap sets a concrete cap URN preference on a Cap node and
// returns it for chaining at construction time.
func (n *Node) WithPreferredCap(urn string) *Node {
	n.PreferredCap = urn
	return n
}

// NewForEachNode builds a node that iterates over inputNode's output,
// delegating body execution to the subgraph spanning bodyEntry..bodyExit.
func NewForEachNode(id, inputNode, bodyEntry, bodyExit string) *Node {
	return &Node{ID: id, Kind: NodeForEach, InputNode: inputNode, BodyEntry: bodyEntry, BodyExit: bodyExit}
}

// NewCollectNode builds a node that concatenates the outputs of inputNodes.
func NewCollectNode(id string, inputNodes []string) *Node {
	return &Node{ID: id, Kind: NodeCollect, InputNodes: append([]string(nil), inputNodes...)}
}

// NewOutputNode builds a node that surfaces sourceNode's output as
// outputName, the plan's externally visible result.
func NewOutputNode(id, outputName, sourceNode string) *Node {
	return &Node{ID: id, Kind: NodeOutput, OutputName: outputName, SourceNode: sourceNode}
}

// EdgeType discriminates how a downstream node's input is derived from an
// upstream node's output.
type EdgeType string

const (
	EdgeDirect     EdgeType = "direct"
	EdgeJsonField  EdgeType = "json_field"
	EdgeJsonPath   EdgeType = "json_path"
	EdgeIteration  EdgeType = "iteration"
	EdgeCollection EdgeType = "collection"
)

// Edge connects two nodes, carrying the reshaping rule applied to the
// upstream output before it reaches the downstream node.
type Edge struct {
	From     string
	To       string
	EdgeType EdgeType
	Field    string // only meaningful for EdgeJsonField
	Path     string // only meaningful for EdgeJsonPath
}

// NewDirectEdge builds an identity edge.
func NewDirectEdge(from, to string) Edge {
	return Edge{From: from, To: to, EdgeType: EdgeDirect}
}

// NewJsonFieldEdge builds an edge that projects a single object field.
func NewJsonFieldEdge(from, to, field string) Edge {
	return Edge{From: from, To: to, EdgeType: EdgeJsonField, Field: field}
}

// NewJsonPathEdge builds an edge that traverses a dotted path with
// optional [index] segments.
func NewJsonPathEdge(from, to, path string) Edge {
	return Edge{From: from, To: to, EdgeType: EdgeJsonPath, Path: path}
}

// NewIterationEdge builds the identity edge a ForEach body uses to
// receive each item.
func NewIterationEdge(from, to string) Edge {
	return Edge{From: from, To: to, EdgeType: EdgeIteration}
}

// NewCollectionEdge builds the identity edge feeding a Collect node.
func NewCollectionEdge(from, to string) Edge {
	return Edge{From: from, To: to, EdgeType: EdgeCollection}
}

// BindingKind discriminates the seven ArgumentBinding variants.
type BindingKind string

const (
	BindFromInputFile BindingKind = "from_input_file"
	BindFromSlot      BindingKind = "from_slot"
	BindFromNode      BindingKind = "from_node"
	BindLiteral       BindingKind = "literal"
	BindFromMetadata  BindingKind = "from_metadata"
	BindFromEnv       BindingKind = "from_env"
	BindDefault       BindingKind = "default"
)

// ArgumentBinding is the sum type resolving one cap argument at execution
// time (spec §4 Plan model).
type ArgumentBinding struct {
	Kind BindingKind

	SlotName string // BindFromSlot

	NodeID   string   // BindFromNode
	EdgeType EdgeType // BindFromNode
	Field    string   // BindFromNode, EdgeJsonField
	Path     string   // BindFromNode, EdgeJsonPath

	Literal any // BindLiteral

	MetadataKey string // BindFromMetadata
	EnvName     string // BindFromEnv
}

func NewFromInputFileBinding() ArgumentBinding {
	return ArgumentBinding{Kind: BindFromInputFile}
}

func NewFromSlotBinding(slotName string) ArgumentBinding {
	return ArgumentBinding{Kind: BindFromSlot, SlotName: slotName}
}

func NewFromNodeBinding(nodeID string, edgeType EdgeType, field, path string) ArgumentBinding {
	return ArgumentBinding{Kind: BindFromNode, NodeID: nodeID, EdgeType: edgeType, Field: field, Path: path}
}

func NewLiteralBinding(value any) ArgumentBinding {
	return ArgumentBinding{Kind: BindLiteral, Literal: value}
}

func NewFromMetadataBinding(key string) ArgumentBinding {
	return ArgumentBinding{Kind: BindFromMetadata, MetadataKey: key}
}

func NewFromEnvBinding(name string) ArgumentBinding {
	return ArgumentBinding{Kind: BindFromEnv, EnvName: name}
}

func NewDefaultBinding() ArgumentBinding {
	return ArgumentBinding{Kind: BindDefault}
}
