package dapadapter

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/stratos/gdbmiadapter/internal/adaptererrors"
	"github.com/stratos/gdbmiadapter/internal/mi"
	"github.com/stratos/gdbmiadapter/internal/session"
)

// MISubmitter is the surface evaluate/variables needs from the command
// queue: submit MI text and await its result.
type MISubmitter interface {
	Submit(ctx context.Context, text string) (mi.ResultRecord, error)
}

// accessScopeNames are the pseudo-children GDB's C++ pretty-printer
// support injects for class/struct members; spec.md §4.5 says these are
// transparently descended rather than shown to the front-end.
var accessScopeNames = map[string]bool{"public": true, "protected": true, "private": true}

// VarobjEngine implements the evaluate/variables/set-variable request
// family's varobj lifecycle (spec.md §4.5): lookup-or-create, staleness
// detection, and access-scope descent.
type VarobjEngine struct {
	state  *session.State
	submit MISubmitter
}

func NewVarobjEngine(state *session.State, submit MISubmitter) *VarobjEngine {
	return &VarobjEngine{state: state, submit: submit}
}

// PassThroughKind classifies an evaluate expression per spec.md §4.5:
// a leading ">" is CLI pass-through, a leading ">-" is MI pass-through.
type PassThroughKind int

const (
	PassThroughNone PassThroughKind = iota
	PassThroughCLI
	PassThroughMI
)

func ClassifyExpression(expr string) (PassThroughKind, string) {
	switch {
	case strings.HasPrefix(expr, ">-"):
		return PassThroughMI, strings.TrimPrefix(expr, ">-")
	case strings.HasPrefix(expr, ">"):
		return PassThroughCLI, strings.TrimPrefix(expr, ">")
	default:
		return PassThroughNone, expr
	}
}

// Evaluate resolves expr in the given frame, creating, refreshing, or
// recreating its backing varobj as needed (spec.md §4.5 "evaluate").
// frameLive reports whether the frame tuple key.ThreadID/key.FrameLevel
// still names a live frame at the current stop (supplied by the caller,
// which owns the latest -stack-list-frames result).
func (e *VarobjEngine) Evaluate(ctx context.Context, key session.VarobjKey, currentDepth int, frameLive bool) (*session.Varobj, error) {
	if kind, rest := ClassifyExpression(key.Expr); kind != PassThroughNone {
		return e.passThrough(ctx, kind, rest)
	}

	if v, ok := e.state.LookupVarobj(key, currentDepth, frameLive); ok {
		res, err := e.submit.Submit(ctx, fmt.Sprintf("-var-update --all-values %s", v.Name))
		if err != nil {
			return nil, err
		}
		applyVarUpdate(v, res.Attrs)
		return v, nil
	}

	// Either never created, or stale (out-of-scope): drop any stale entry
	// and re-create fresh.
	e.state.DeleteVarobj(key)
	return e.create(ctx, key)
}

func (e *VarobjEngine) create(ctx context.Context, key session.VarobjKey) (*session.Varobj, error) {
	cmd := fmt.Sprintf("-var-create - * %s", quoteMIExpr(key.Expr))
	res, err := e.submit.Submit(ctx, cmd)
	if err != nil {
		return nil, err
	}
	if res.Class == mi.ResultError {
		return nil, &adaptererrors.MIError{Command: cmd, Message: res.ErrorMessage, Code: res.ErrorCode}
	}
	name, _ := res.Attrs.GetString("name")
	typ, _ := res.Attrs.GetString("type")
	value, _ := res.Attrs.GetString("value")
	numChildStr, _ := res.Attrs.GetString("numchild")
	numChild, _ := strconv.Atoi(numChildStr)

	v := &session.Varobj{
		Name:            name,
		Expression:      key.Expr,
		Frame:           key,
		DepthAtCreation: key.StackDepth,
		Type:            typ,
		Value:           value,
		NumChild:        numChild,
		IsVar:           true,
	}
	e.state.PutVarobj(v)
	return v, nil
}

func applyVarUpdate(v *session.Varobj, attrs mi.Value) {
	changed := attrs.Items()
	if changelist, ok := attrs.Get("changelist"); ok {
		changed = changelist.Items()
	}
	for _, item := range changed {
		name, _ := item.GetString("name")
		if name != v.Name {
			continue
		}
		if val, ok := item.GetString("value"); ok {
			v.Value = val
		}
		if typ, ok := item.GetString("new_type"); ok {
			v.Type = typ
		}
	}
}

func (e *VarobjEngine) passThrough(ctx context.Context, kind PassThroughKind, rest string) (*session.Varobj, error) {
	rest = strings.TrimSpace(rest)
	var cmd string
	if kind == PassThroughCLI {
		cmd = fmt.Sprintf("-interpreter-exec console %s", quoteMIExpr(rest))
	} else {
		cmd = rest
	}
	res, err := e.submit.Submit(ctx, cmd)
	if err != nil {
		return nil, err
	}
	if res.Class == mi.ResultError {
		return nil, &adaptererrors.MIError{Command: cmd, Message: res.ErrorMessage, Code: res.ErrorCode}
	}
	return &session.Varobj{Expression: rest, Value: "", IsVar: false}, nil
}

// IsAccessScopePseudoChild reports whether a `-var-list-children` row is
// one of GDB's `public`/`protected`/`private` pseudo-children (exp equal
// to one of those names, with no type), which spec.md §4.5 says must be
// transparently descended rather than shown to the front-end.
func IsAccessScopePseudoChild(exp, typ string) bool {
	return typ == "" && accessScopeNames[exp]
}

// ListChildren runs `-var-list-children` for parentVarobjName and
// transparently descends into any access-scope pseudo-child exactly one
// level, flattening its children into the result — spec.md §4.5's
// "transparently descend one level" rule applied recursively since a
// class can nest public/protected/private at each level.
func (e *VarobjEngine) ListChildren(ctx context.Context, parentVarobjName string) ([]ChildVarobj, error) {
	res, err := e.submit.Submit(ctx, fmt.Sprintf("-var-list-children --all-values %s", parentVarobjName))
	if err != nil {
		return nil, err
	}
	if res.Class == mi.ResultError {
		return nil, &adaptererrors.MIError{Command: "-var-list-children", Message: res.ErrorMessage, Code: res.ErrorCode}
	}

	children, _ := res.Attrs.Get("children")
	var out []ChildVarobj
	arrayIdx := 0
	for _, row := range children.Items() {
		name, _ := row.GetString("name")
		exp, _ := row.GetString("exp")
		typ, _ := row.GetString("type")
		numChildStr, _ := row.GetString("numchild")
		numChild, _ := strconv.Atoi(numChildStr)

		if IsAccessScopePseudoChild(exp, typ) {
			nested, err := e.ListChildren(ctx, name)
			if err != nil {
				return nil, err
			}
			out = append(out, nested...)
			continue
		}

		isArrayElem := isArrayIndexExp(exp)
		child := ChildVarobj{Name: name, Expression: exp, Type: typ, NumChild: numChild, ArrayIndex: -1}
		if isArrayElem {
			child.IsArrayElem = true
			child.ArrayIndex = arrayIdx
			arrayIdx++
		}
		out = append(out, child)
	}
	return out, nil
}

func isArrayIndexExp(exp string) bool {
	if len(exp) < 2 || exp[0] != '[' || exp[len(exp)-1] != ']' {
		return false
	}
	_, err := strconv.Atoi(exp[1 : len(exp)-1])
	return err == nil
}

// ChildVarobj is a `-var-list-children` row reduced to what the
// translator needs for access-scope descent and array `[i]` naming.
type ChildVarobj struct {
	Name        string // GDB internal varobj name
	Expression  string // GDB's reported `exp` field
	Type        string
	NumChild    int
	ArrayIndex  int  // -1 if not an array element
	IsArrayElem bool
}

// EvaluateName composes the `-var-info-path-expression`-style evaluate
// name the front-end shows, using bracket syntax for array elements
// (spec.md §4.5 "Array elements display with [i] names").
func (c ChildVarobj) EvaluateName(parentEvaluateName string) string {
	if c.IsArrayElem {
		return fmt.Sprintf("%s[%d]", parentEvaluateName, c.ArrayIndex)
	}
	if parentEvaluateName == "" {
		return c.Expression
	}
	return parentEvaluateName + "." + c.Expression
}

func quoteMIExpr(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"', '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}
