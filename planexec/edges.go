package planexec

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/filegrind/capforge/plan"
)

// applyEdgeType reshapes a source node's decoded output value per the
// edge's EdgeType (spec.md §4.10 "Edge application").
func applyEdgeType(sourceOutput any, edgeType plan.EdgeType, field, path string) (any, error) {
	switch edgeType {
	case plan.EdgeDirect, plan.EdgeIteration, plan.EdgeCollection:
		return sourceOutput, nil
	case plan.EdgeJsonField:
		obj, ok := sourceOutput.(map[string]any)
		if !ok {
			return nil, &Error{Kind: "TypeMismatch", Message: "json_field edge requires an object source"}
		}
		val, ok := obj[field]
		if !ok {
			return nil, &Error{Kind: "MissingBinding", Message: fmt.Sprintf("field %q not present in source object", field)}
		}
		return val, nil
	case plan.EdgeJsonPath:
		return applyJSONPath(sourceOutput, path)
	default:
		return nil, &Error{Kind: "TypeMismatch", Message: fmt.Sprintf("unknown edge type %q", edgeType)}
	}
}

// applyJSONPath walks a dotted path with optional [index] segments, e.g.
// "items[0].name", over a decoded JSON value.
func applyJSONPath(value any, path string) (any, error) {
	segments, err := splitPathSegments(path)
	if err != nil {
		return nil, err
	}

	current := value
	for _, seg := range segments {
		if seg.key != "" {
			obj, ok := current.(map[string]any)
			if !ok {
				return nil, &Error{Kind: "TypeMismatch", Message: fmt.Sprintf("path segment %q requires an object at this point", seg.key)}
			}
			val, ok := obj[seg.key]
			if !ok {
				return nil, &Error{Kind: "MissingBinding", Message: fmt.Sprintf("field %q not present in source object", seg.key)}
			}
			current = val
		}
		if seg.hasIndex {
			arr, ok := current.([]any)
			if !ok {
				return nil, &Error{Kind: "TypeMismatch", Message: "path index requires an array at this point"}
			}
			if seg.index < 0 || seg.index >= len(arr) {
				return nil, &Error{Kind: "TypeMismatch", Message: fmt.Sprintf("index %d out of bounds (len %d)", seg.index, len(arr))}
			}
			current = arr[seg.index]
		}
	}
	return current, nil
}

type pathSegment struct {
	key      string
	hasIndex bool
	index    int
}

func splitPathSegments(path string) ([]pathSegment, error) {
	var segments []pathSegment
	for _, raw := range strings.Split(path, ".") {
		if raw == "" {
			return nil, &Error{Kind: "TypeMismatch", Message: fmt.Sprintf("empty path segment in %q", path)}
		}
		seg := pathSegment{}
		key := raw
		if idx := strings.IndexByte(raw, '['); idx >= 0 {
			if !strings.HasSuffix(raw, "]") {
				return nil, &Error{Kind: "TypeMismatch", Message: fmt.Sprintf("malformed index in path segment %q", raw)}
			}
			key = raw[:idx]
			indexStr := raw[idx+1 : len(raw)-1]
			n, err := strconv.Atoi(indexStr)
			if err != nil {
				return nil, &Error{Kind: "TypeMismatch", Message: fmt.Sprintf("non-numeric index in path segment %q", raw)}
			}
			seg.hasIndex = true
			seg.index = n
		}
		seg.key = key
		segments = append(segments, seg)
	}
	return segments, nil
}
