// Package mi implements the lexer, parser, and tagged value model for
// GDB's Machine Interface output grammar (result, async, and stream
// records), as described by the GDB/MI manual.
package mi

import "fmt"

// ValueKind tags the shape a parsed MI attribute value takes.
type ValueKind int

const (
	KindString ValueKind = iota
	KindTuple
	KindList
	KindNamedList
)

// NamedValue is one entry of a "name=value" list, e.g. the breakpoint-table
// body rows GDB returns as `[bkpt={...}, bkpt={...}]` style name=value lists.
type NamedValue struct {
	Name  string
	Value Value
}

// Value is the sum type `String | Tuple(map) | List(vec) | NamedList(vec
// of name=value)` called for in spec.md's design notes. Exactly one of the
// Str/Tuple/List/NamedList fields is meaningful, selected by Kind.
type Value struct {
	Kind      ValueKind
	Str       string
	Tuple     map[string]Value
	List      []Value
	NamedList []NamedValue
}

func stringValue(s string) Value { return Value{Kind: KindString, Str: s} }

// IsZero reports whether v is the unset zero Value.
func (v Value) IsZero() bool {
	return v.Kind == KindString && v.Str == "" && v.Tuple == nil && v.List == nil && v.NamedList == nil
}

// AsString returns the string payload and whether v actually held one.
func (v Value) AsString() (string, bool) {
	if v.Kind != KindString {
		return "", false
	}
	return v.Str, true
}

// Get looks up a named field. It works uniformly over tuples (map lookup)
// and named-lists (linear scan over Name=Value pairs), since GDB uses both
// shapes interchangeably for "attribute bags" depending on context.
func (v Value) Get(name string) (Value, bool) {
	switch v.Kind {
	case KindTuple:
		val, ok := v.Tuple[name]
		return val, ok
	case KindNamedList:
		for _, nv := range v.NamedList {
			if nv.Name == name {
				return nv.Value, true
			}
		}
	}
	return Value{}, false
}

// GetString is a typed accessor combining Get and AsString for the common
// case of a known scalar attribute (e.g. bkpt.number, bkpt.line).
func (v Value) GetString(name string) (string, bool) {
	child, ok := v.Get(name)
	if !ok {
		return "", false
	}
	return child.AsString()
}

// Items returns the elements of a List or the NamedValue.Value elements of
// a NamedList, uniformly, for callers that only care about the sequence of
// child values (e.g. walking GDB's `bkpt=...` rows of a breakpoint table).
func (v Value) Items() []Value {
	switch v.Kind {
	case KindList:
		return v.List
	case KindNamedList:
		out := make([]Value, len(v.NamedList))
		for i, nv := range v.NamedList {
			out[i] = nv.Value
		}
		return out
	}
	return nil
}

func (v Value) String() string {
	switch v.Kind {
	case KindString:
		return fmt.Sprintf("%q", v.Str)
	case KindTuple:
		return fmt.Sprintf("tuple(%d fields)", len(v.Tuple))
	case KindList:
		return fmt.Sprintf("list(%d items)", len(v.List))
	case KindNamedList:
		return fmt.Sprintf("named-list(%d items)", len(v.NamedList))
	default:
		return "invalid-value"
	}
}
