package dapadapter

import (
	"context"
	"testing"

	"github.com/stratos/gdbmiadapter/internal/mi"
	"github.com/stratos/gdbmiadapter/internal/session"
)

type scriptedSubmitter struct {
	calls   []string
	results []mi.ResultRecord
	idx     int
}

func (s *scriptedSubmitter) Submit(ctx context.Context, text string) (mi.ResultRecord, error) {
	s.calls = append(s.calls, text)
	if s.idx >= len(s.results) {
		return mi.ResultRecord{Class: mi.ResultDone}, nil
	}
	r := s.results[s.idx]
	s.idx++
	return r, nil
}

func tupleOf(fields map[string]mi.Value) mi.Value {
	return mi.Value{Kind: mi.KindTuple, Tuple: fields}
}

func strVal(s string) mi.Value { return mi.Value{Kind: mi.KindString, Str: s} }

func TestClassifyExpression(t *testing.T) {
	if kind, rest := ClassifyExpression("x + 1"); kind != PassThroughNone || rest != "x + 1" {
		t.Errorf("plain expression misclassified: %v %q", kind, rest)
	}
	if kind, rest := ClassifyExpression(">print x"); kind != PassThroughCLI || rest != "print x" {
		t.Errorf("CLI pass-through misclassified: %v %q", kind, rest)
	}
	if kind, rest := ClassifyExpression(">--data-evaluate-expression x"); kind != PassThroughMI || rest != "-data-evaluate-expression x" {
		t.Errorf("MI pass-through misclassified: %v %q", kind, rest)
	}
}

func TestEvaluateCreatesVarobjWhenAbsent(t *testing.T) {
	state := session.New()
	sub := &scriptedSubmitter{
		results: []mi.ResultRecord{
			{Class: mi.ResultDone, Attrs: tupleOf(map[string]mi.Value{
				"name": strVal("var1"), "type": strVal("int"), "value": strVal("42"), "numchild": strVal("0"),
			})},
		},
	}
	engine := NewVarobjEngine(state, sub)

	key := session.VarobjKey{ThreadID: 1, FrameLevel: 0, StackDepth: 3, Expr: "x"}
	v, err := engine.Evaluate(context.Background(), key, 3, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Value != "42" || v.Type != "int" {
		t.Fatalf("unexpected varobj: %+v", v)
	}
	if len(sub.calls) != 1 {
		t.Fatalf("expected exactly one -var-create call, got %v", sub.calls)
	}
}

func TestEvaluateRefreshesCachedVarobj(t *testing.T) {
	state := session.New()
	key := session.VarobjKey{ThreadID: 1, FrameLevel: 0, StackDepth: 3, Expr: "x"}
	state.PutVarobj(&session.Varobj{Name: "var1", Expression: "x", Frame: key, DepthAtCreation: 3, Value: "1"})

	sub := &scriptedSubmitter{
		results: []mi.ResultRecord{
			{Class: mi.ResultDone, Attrs: mi.Value{Kind: mi.KindList, List: []mi.Value{
				tupleOf(map[string]mi.Value{"name": strVal("var1"), "value": strVal("2")}),
			}}},
		},
	}
	engine := NewVarobjEngine(state, sub)

	v, err := engine.Evaluate(context.Background(), key, 3, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Value != "2" {
		t.Fatalf("expected refreshed value 2, got %q", v.Value)
	}
	if len(sub.calls) != 1 || sub.calls[0] != "-var-update --all-values var1" {
		t.Fatalf("expected a -var-update call, got %v", sub.calls)
	}
}

func TestEvaluateRecreatesStaleVarobj(t *testing.T) {
	state := session.New()
	key := session.VarobjKey{ThreadID: 1, FrameLevel: 0, StackDepth: 3, Expr: "x"}
	// Cached at a different stack depth: stale.
	state.PutVarobj(&session.Varobj{Name: "var1", Expression: "x", Frame: key, DepthAtCreation: 5, Value: "1"})

	sub := &scriptedSubmitter{
		results: []mi.ResultRecord{
			{Class: mi.ResultDone, Attrs: tupleOf(map[string]mi.Value{
				"name": strVal("var2"), "type": strVal("int"), "value": strVal("7"), "numchild": strVal("0"),
			})},
		},
	}
	engine := NewVarobjEngine(state, sub)

	v, err := engine.Evaluate(context.Background(), key, 3, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Name != "var2" {
		t.Fatalf("expected a freshly created varobj, got %+v", v)
	}
	if len(sub.calls) != 1 || sub.calls[0] != `-var-create - * "x"` {
		t.Fatalf("expected a -var-create call, got %v", sub.calls)
	}
}

func TestListChildrenDescendsAccessScopePseudoChildren(t *testing.T) {
	sub := &scriptedSubmitter{
		results: []mi.ResultRecord{
			// top-level -var-list-children: one real field, one "public" pseudo-child
			{Class: mi.ResultDone, Attrs: tupleOf(map[string]mi.Value{
				"children": mi.Value{Kind: mi.KindList, List: []mi.Value{
					tupleOf(map[string]mi.Value{"name": strVal("var1.a"), "exp": strVal("a"), "type": strVal("int"), "numchild": strVal("0")}),
					tupleOf(map[string]mi.Value{"name": strVal("var1.pub"), "exp": strVal("public"), "numchild": strVal("1")}),
				}},
			})},
			// descent into the "public" pseudo-child
			{Class: mi.ResultDone, Attrs: tupleOf(map[string]mi.Value{
				"children": mi.Value{Kind: mi.KindList, List: []mi.Value{
					tupleOf(map[string]mi.Value{"name": strVal("var1.pub.b"), "exp": strVal("b"), "type": strVal("int"), "numchild": strVal("0")}),
				}},
			})},
		},
	}
	engine := NewVarobjEngine(session.New(), sub)

	children, err := engine.ListChildren(context.Background(), "var1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(children) != 2 {
		t.Fatalf("expected access-scope pseudo-child flattened away, got %d children: %+v", len(children), children)
	}
	names := map[string]bool{children[0].Expression: true, children[1].Expression: true}
	if !names["a"] || !names["b"] {
		t.Fatalf("expected children a and b, got %+v", children)
	}
}
