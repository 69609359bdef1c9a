package planexec

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/filegrind/capforge/cap"
	"github.com/filegrind/capforge/media"
	"github.com/filegrind/capforge/plan"
	"github.com/filegrind/capforge/resolve"
	"github.com/filegrind/capforge/urn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCapExecutor struct {
	caps     map[string]*cap.Cap
	response []byte
	err      error
	lastArgs []ArgValue
}

func (s *stubCapExecutor) HasCap(capUrn string) bool {
	_, ok := s.caps[capUrn]
	return ok
}

func (s *stubCapExecutor) GetCap(capUrn string) (*cap.Cap, error) {
	c, ok := s.caps[capUrn]
	if !ok {
		return nil, &Error{Kind: "UnknownNode", Message: "no such cap"}
	}
	return c, nil
}

func (s *stubCapExecutor) ExecuteCap(ctx context.Context, capUrn string, arguments []ArgValue, preferredCap string) ([]byte, error) {
	s.lastArgs = arguments
	if s.err != nil {
		return nil, s.err
	}
	return s.response, nil
}

func buildConvertCap() *cap.Cap {
	u := urn.NewCapURN("media:", "media:", map[string]string{"op": "c1"})
	c := cap.NewCap(u, "convert", "convert-cmd")
	c.Args = []cap.CapArg{
		cap.NewCapArg("doc", "media:textable", true, []cap.ArgSource{cap.NewStdinSource()}),
	}
	return c
}

// TestS6PlanExecution reproduces spec's S6 scenario: InputSlot "in" ->
// Cap "c1" (binding doc = FromSlot("in")) -> Output "out" (source c1).
func TestS6PlanExecution(t *testing.T) {
	p := plan.NewPlan()
	p.AddNode(plan.NewInputSlotNode("in", "document"))
	p.AddNode(plan.NewCapNode("c1", "cap:in=media:;op=c1;out=media:", map[string]plan.ArgumentBinding{
		"doc": plan.NewFromSlotBinding("in"),
	}))
	p.AddNode(plan.NewOutputNode("out", "result", "c1"))
	p.AddEdge(plan.NewDirectEdge("in", "c1"))
	p.AddEdge(plan.NewDirectEdge("c1", "out"))

	convertCap := buildConvertCap()
	executor := &stubCapExecutor{
		caps:     map[string]*cap.Cap{"cap:in=media:;op=c1;out=media:": convertCap},
		response: []byte(`{"ok":true}`),
	}

	e := NewExecutor(executor, p, nil, map[string][]byte{"in": []byte("hello")}, nil, nil, nil)
	result, err := e.Run(context.Background())
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Len(t, result.NodeResults, 3)
	assert.Equal(t, map[string]any{"ok": true}, result.FinalOutputs["result"])
}

func TestRunHaltsOnNodeFailureAndSkipsSuccessors(t *testing.T) {
	p := plan.NewPlan()
	p.AddNode(plan.NewCapNode("c1", "cap:in=media:;op=missing;out=media:", nil))
	p.AddNode(plan.NewOutputNode("out", "result", "c1"))
	p.AddEdge(plan.NewDirectEdge("c1", "out"))

	executor := &stubCapExecutor{caps: map[string]*cap.Cap{}}
	e := NewExecutor(executor, p, nil, nil, nil, nil, nil)

	result, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, StatusFailed, result.NodeResults["c1"].Status)
	assert.Equal(t, StatusSkipped, result.NodeResults["out"].Status)
}

func TestRunReturnsErrorOnInvalidPlan(t *testing.T) {
	p := plan.NewPlan()
	p.AddNode(plan.NewOutputNode("out", "", "missing"))
	e := NewExecutor(&stubCapExecutor{}, p, nil, nil, nil, nil, nil)
	_, err := e.Run(context.Background())
	require.Error(t, err)
}

func buildConvertCapWithOutputSchema() *cap.Cap {
	u := urn.NewCapURN("media:", "media:", map[string]string{"op": "c1"})
	c := cap.NewCap(u, "convert", "convert-cmd")
	c.Args = []cap.CapArg{
		cap.NewCapArg("doc", "media:textable", true, []cap.ArgSource{cap.NewStdinSource()}),
	}
	c.Output = cap.NewCapOutput("media:out;record;textable", "converted record")
	c.MediaSpecs = []media.MediaSpecDef{
		{
			Urn: "media:out;record;textable",
			Schema: map[string]any{
				"type":     "object",
				"required": []any{"ok"},
				"properties": map[string]any{
					"ok": map[string]any{"type": "boolean"},
				},
			},
		},
	}
	return c
}

func TestRunValidatesCapOutputAgainstDeclaredSchema(t *testing.T) {
	p := plan.NewPlan()
	p.AddNode(plan.NewInputSlotNode("in", "document"))
	p.AddNode(plan.NewCapNode("c1", "cap:in=media:;op=c1;out=media:", map[string]plan.ArgumentBinding{
		"doc": plan.NewFromSlotBinding("in"),
	}))
	p.AddNode(plan.NewOutputNode("out", "result", "c1"))
	p.AddEdge(plan.NewDirectEdge("in", "c1"))
	p.AddEdge(plan.NewDirectEdge("c1", "out"))

	convertCap := buildConvertCapWithOutputSchema()
	executor := &stubCapExecutor{
		caps:     map[string]*cap.Cap{"cap:in=media:;op=c1;out=media:": convertCap},
		response: []byte(`{"not_ok":true}`),
	}

	e := NewExecutor(executor, p, nil, map[string][]byte{"in": []byte("hello")}, nil, nil, nil)
	result, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, StatusFailed, result.NodeResults["c1"].Status)
}

func TestRunAcceptsCapOutputMatchingDeclaredSchema(t *testing.T) {
	p := plan.NewPlan()
	p.AddNode(plan.NewInputSlotNode("in", "document"))
	p.AddNode(plan.NewCapNode("c1", "cap:in=media:;op=c1;out=media:", map[string]plan.ArgumentBinding{
		"doc": plan.NewFromSlotBinding("in"),
	}))
	p.AddNode(plan.NewOutputNode("out", "result", "c1"))
	p.AddEdge(plan.NewDirectEdge("in", "c1"))
	p.AddEdge(plan.NewDirectEdge("c1", "out"))

	convertCap := buildConvertCapWithOutputSchema()
	executor := &stubCapExecutor{
		caps:     map[string]*cap.Cap{"cap:in=media:;op=c1;out=media:": convertCap},
		response: []byte(`{"ok":true}`),
	}

	e := NewExecutor(executor, p, nil, map[string][]byte{"in": []byte("hello")}, nil, nil, nil)
	result, err := e.Run(context.Background())
	require.NoError(t, err)
	require.True(t, result.Success)
}

func TestInputSlotEmitsSingleObjectForOneFile(t *testing.T) {
	p := plan.NewPlan()
	p.AddNode(plan.NewInputSlotNode("in", "document"))
	p.AddNode(plan.NewOutputNode("out", "result", "in"))
	p.AddEdge(plan.NewDirectEdge("in", "out"))

	set := &resolve.ResolvedInputSet{
		Files:       []resolve.ResolvedFile{{Path: "/a.pdf", MediaUrn: "media:pdf;binary", ContentStructure: resolve.ScalarOpaque}},
		Cardinality: resolve.Single,
	}
	e := NewExecutor(&stubCapExecutor{}, p, map[string]*resolve.ResolvedInputSet{"document": set}, nil, nil, nil, nil)

	result, err := e.Run(context.Background())
	require.NoError(t, err)
	require.True(t, result.Success)
	record, ok := result.FinalOutputs["result"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "/a.pdf", record["path"])
}

func TestInputSlotEmitsListForMultipleFiles(t *testing.T) {
	p := plan.NewPlan()
	p.AddNode(plan.NewInputSlotNode("in", "document"))
	p.AddNode(plan.NewOutputNode("out", "result", "in"))
	p.AddEdge(plan.NewDirectEdge("in", "out"))

	set := &resolve.ResolvedInputSet{
		Files: []resolve.ResolvedFile{
			{Path: "/a.pdf", MediaUrn: "media:pdf;binary", ContentStructure: resolve.ScalarOpaque},
			{Path: "/b.pdf", MediaUrn: "media:pdf;binary", ContentStructure: resolve.ScalarOpaque},
		},
		Cardinality: resolve.Sequence,
	}
	e := NewExecutor(&stubCapExecutor{}, p, map[string]*resolve.ResolvedInputSet{"document": set}, nil, nil, nil, nil)

	result, err := e.Run(context.Background())
	require.NoError(t, err)
	list, ok := result.FinalOutputs["result"].([]any)
	require.True(t, ok)
	assert.Len(t, list, 2)
}

func TestForEachCoercesScalarToSingleItemList(t *testing.T) {
	p := plan.NewPlan()
	p.AddNode(plan.NewInputSlotNode("in", "document"))
	p.AddNode(plan.NewForEachNode("loop", "in", "body-in", "body-out"))
	p.AddNode(plan.NewOutputNode("out", "result", "loop"))
	p.AddEdge(plan.NewDirectEdge("in", "loop"))
	p.AddEdge(plan.NewIterationEdge("loop", "out"))

	set := &resolve.ResolvedInputSet{
		Files:       []resolve.ResolvedFile{{Path: "/a.pdf", MediaUrn: "media:pdf;binary", ContentStructure: resolve.ScalarOpaque}},
		Cardinality: resolve.Single,
	}
	e := NewExecutor(&stubCapExecutor{}, p, map[string]*resolve.ResolvedInputSet{"document": set}, nil, nil, nil, nil)

	result, err := e.Run(context.Background())
	require.NoError(t, err)
	out, ok := result.FinalOutputs["result"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 1, out["iteration_count"])
}

func TestCollectFlattensOneLevel(t *testing.T) {
	p := plan.NewPlan()
	p.AddNode(plan.NewInputSlotNode("a", "slotA"))
	p.AddNode(plan.NewInputSlotNode("b", "slotB"))
	p.AddNode(plan.NewCollectNode("collect", []string{"a", "b"}))
	p.AddNode(plan.NewOutputNode("out", "result", "collect"))
	p.AddEdge(plan.NewCollectionEdge("a", "collect"))
	p.AddEdge(plan.NewCollectionEdge("b", "collect"))
	p.AddEdge(plan.NewDirectEdge("collect", "out"))

	setA := &resolve.ResolvedInputSet{
		Files: []resolve.ResolvedFile{
			{Path: "/a1.txt", MediaUrn: "media:txt;textable", ContentStructure: resolve.ScalarOpaque},
			{Path: "/a2.txt", MediaUrn: "media:txt;textable", ContentStructure: resolve.ScalarOpaque},
		},
		Cardinality: resolve.Sequence,
	}
	setB := &resolve.ResolvedInputSet{
		Files:       []resolve.ResolvedFile{{Path: "/b1.txt", MediaUrn: "media:txt;textable", ContentStructure: resolve.ScalarOpaque}},
		Cardinality: resolve.Single,
	}
	e := NewExecutor(&stubCapExecutor{}, p, map[string]*resolve.ResolvedInputSet{"slotA": setA, "slotB": setB}, nil, nil, nil, nil)

	result, err := e.Run(context.Background())
	require.NoError(t, err)
	out, ok := result.FinalOutputs["result"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 3, out["count"])
}

func TestDecodeCapOutputFallsBackToTextWrapper(t *testing.T) {
	value, text := decodeCapOutput([]byte("plain text, not json"))
	assert.Equal(t, "plain text, not json", text)
	assert.Equal(t, map[string]any{"text": "plain text, not json"}, value)
}

func TestDecodeCapOutputParsesJSON(t *testing.T) {
	value, _ := decodeCapOutput([]byte(`{"a":1}`))
	var expected map[string]any
	require.NoError(t, json.Unmarshal([]byte(`{"a":1}`), &expected))
	assert.Equal(t, expected, value)
}

func TestApplyEdgeTypeJsonField(t *testing.T) {
	out, err := applyEdgeType(map[string]any{"name": "ada"}, plan.EdgeJsonField, "name", "")
	require.NoError(t, err)
	assert.Equal(t, "ada", out)
}

func TestApplyEdgeTypeJsonFieldMissing(t *testing.T) {
	_, err := applyEdgeType(map[string]any{}, plan.EdgeJsonField, "missing", "")
	require.Error(t, err)
}

func TestApplyEdgeTypeJsonPathWithIndex(t *testing.T) {
	source := map[string]any{
		"items": []any{
			map[string]any{"name": "ada"},
			map[string]any{"name": "lin"},
		},
	}
	out, err := applyEdgeType(source, plan.EdgeJsonPath, "", "items[1].name")
	require.NoError(t, err)
	assert.Equal(t, "lin", out)
}

func TestApplyEdgeTypeJsonPathOutOfBounds(t *testing.T) {
	source := map[string]any{"items": []any{1}}
	_, err := applyEdgeType(source, plan.EdgeJsonPath, "", "items[5]")
	require.Error(t, err)
}

func TestResolveArgumentBindingFromEnvPrefersSettingsProvider(t *testing.T) {
	ctx := &argContext{settingsProvider: stubSettings{values: map[string]string{"TOKEN": "from-settings"}}}
	val, err := resolveArgumentBinding(ctx, plan.NewFromEnvBinding("TOKEN"), "token", nil)
	require.NoError(t, err)
	assert.Equal(t, "from-settings", val)
}

type stubSettings struct{ values map[string]string }

func (s stubSettings) GetSetting(key string) (string, bool) {
	v, ok := s.values[key]
	return v, ok
}

func TestResolveArgumentBindingDefaultUsesCapArgDefault(t *testing.T) {
	u := urn.NewCapURN("media:", "media:", nil)
	c := cap.NewCap(u, "t", "t-cmd")
	arg := cap.NewCapArg("quality", "media:textable", false, nil)
	arg.DefaultValue = "high"
	c.Args = []cap.CapArg{arg}

	ctx := &argContext{}
	val, err := resolveArgumentBinding(ctx, plan.NewDefaultBinding(), "quality", c)
	require.NoError(t, err)
	assert.Equal(t, "high", val)
}
