package record

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	SplitToken     = "."
	IndexOpenChar  = "["
	IndexCloseChar = "]"
	Wildcard       = "*"

	// ParentPrefix scopes a path to the immediate parent document.
	ParentPrefix = "$parent"
)

var (
	ErrEmptyPath         = errors.New("path is empty")
	ErrEmptySegment      = errors.New("path contains an empty segment")
	ErrMalformedIndex    = errors.New("malformed index key")
	ErrNegativeIndex     = errors.New("index must not be negative")
	ErrParentWithoutPath = errors.New("parent path must name a field")
)

// Scope selects the document a path is resolved against.
type Scope int

const (
	ScopeSelf Scope = iota
	ScopeParent
)

type segment struct {
	key      string
	index    int
	wildcard bool
}

func (s segment) hasIndex() bool {
	return s.index >= 0
}

// positional segments select an array element rather than an object key
func (s segment) positional() bool {
	return s.hasIndex() && (s.key == "" || s.key == strconv.Itoa(s.index))
}

// Path is a parsed dotted path such as "tax_ids.data.0.value",
// "lines.data[0].price.product" or "$parent.currency".
//
// Resolution never fails: a missing or null intermediate yields nil. When a
// named key is applied to an array, the rest of the path is applied to every
// element and the non-nil results are collected.
type Path struct {
	expr     string
	scope    Scope
	segments []segment
}

// ParsePath validates and parses a path expression.
func ParsePath(expr string) (Path, error) {
	if strings.TrimSpace(expr) == "" {
		return Path{}, ErrEmptyPath
	}

	path := Path{expr: expr}
	parts := strings.Split(expr, SplitToken)

	if parts[0] == ParentPrefix {
		path.scope = ScopeParent
		parts = parts[1:]
		if len(parts) == 0 {
			return Path{}, ErrParentWithoutPath
		}
	}

	for _, part := range parts {
		seg, err := parseSegment(part)
		if err != nil {
			return Path{}, fmt.Errorf("invalid path %q: %w", expr, err)
		}
		path.segments = append(path.segments, seg)
	}

	return path, nil
}

// MustParsePath is ParsePath for package-level literals.
func MustParsePath(expr string) Path {
	path, err := ParsePath(expr)
	if err != nil {
		panic(err)
	}
	return path
}

func parseSegment(part string) (segment, error) {
	if part == "" {
		return segment{}, ErrEmptySegment
	}

	start := strings.Index(part, IndexOpenChar)
	end := strings.Index(part, IndexCloseChar)

	if start == -1 && end == -1 {
		// a bare number indexes into an array, e.g. "data.0.value"
		if i, err := strconv.Atoi(part); err == nil {
			if i < 0 {
				return segment{}, ErrNegativeIndex
			}
			return segment{key: part, index: i}, nil
		}
		return segment{key: part, index: -1}, nil
	}

	if start == -1 || end == -1 || end < start || end != len(part)-1 {
		return segment{}, ErrMalformedIndex
	}

	seg := segment{key: part[:start], index: -1}
	indexStr := part[start+1 : end]
	if indexStr == Wildcard {
		seg.wildcard = true
		return seg, nil
	}

	i, err := strconv.Atoi(indexStr)
	if err != nil {
		return segment{}, ErrMalformedIndex
	}
	if i < 0 {
		return segment{}, ErrNegativeIndex
	}
	seg.index = i

	return seg, nil
}

func (p Path) String() string {
	return p.expr
}

func (p Path) Scope() Scope {
	return p.scope
}

// IsZero reports whether the path was never parsed.
func (p Path) IsZero() bool {
	return p.expr == ""
}

// Resolve evaluates the path against obj, or against the immediate parent for
// "$parent." paths.
func (p Path) Resolve(obj Object, ancestors Ancestors) any {
	if p.scope == ScopeParent {
		parent, ok := ancestors.Parent()
		if !ok {
			return nil
		}
		return p.Lookup(parent.Object)
	}
	return p.Lookup(obj)
}

// Lookup evaluates the path segments against an arbitrary decoded value.
func (p Path) Lookup(v any) any {
	if p.IsZero() {
		return v
	}
	return lookup(v, p.segments)
}

func lookup(v any, segments []segment) any {
	if len(segments) == 0 {
		return v
	}

	seg := segments[0]
	rest := segments[1:]

	switch t := v.(type) {
	case nil:
		return nil
	case Object:
		return lookupInMap(map[string]any(t), seg, rest)
	case map[string]any:
		return lookupInMap(t, seg, rest)
	case []any:
		if seg.positional() {
			if seg.index >= len(t) {
				return nil
			}
			return lookup(t[seg.index], rest)
		}
		return aggregate(t, segments)
	default:
		return nil
	}
}

func lookupInMap(m map[string]any, seg segment, rest []segment) any {
	var value any
	var ok bool

	if seg.positional() {
		// a numeric segment against an object is a plain key
		value, ok = m[seg.key]
	} else {
		value, ok = m[seg.key]
		if ok && (seg.hasIndex() || seg.wildcard) {
			value = applyIndex(value, seg)
		}
	}

	if !ok || value == nil {
		return nil
	}

	if seg.wildcard {
		arr, isArr := value.([]any)
		if !isArr {
			return nil
		}
		return aggregate(arr, rest)
	}

	return lookup(value, rest)
}

func applyIndex(value any, seg segment) any {
	arr, ok := value.([]any)
	if !ok {
		return nil
	}
	if seg.wildcard {
		return arr
	}
	if seg.index >= len(arr) {
		return nil
	}
	return arr[seg.index]
}

// aggregate applies segments to every element, flattening nested arrays and
// dropping nil results.
func aggregate(arr []any, segments []segment) any {
	values := make([]any, 0, len(arr))
	for _, el := range arr {
		value := lookup(el, segments)
		if value == nil {
			continue
		}
		if nested, ok := value.([]any); ok && len(segments) > 0 {
			values = append(values, nested...)
			continue
		}
		values = append(values, value)
	}
	return values
}
