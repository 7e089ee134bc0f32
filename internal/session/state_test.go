package session

import "testing"

func TestNextBreakpointClientIDIsGloballyMonotonic(t *testing.T) {
	s := New()
	a := s.NextBreakpointClientID()
	b := s.NextBreakpointClientID()
	if b != a+1 {
		t.Fatalf("expected monotonically increasing ids, got %d then %d", a, b)
	}

	bp := &Breakpoint{ClientID: a, GDBNumber: "1", Kind: BreakpointSource, LastLine: 10}
	s.UpsertBreakpoint("foo.c", bp)
	fn := &Breakpoint{ClientID: b, GDBNumber: "2", Kind: BreakpointFunction, Location: "main"}
	s.UpsertBreakpoint("\x00function", fn)

	if s.BreakpointsForSource("foo.c")[0].ClientID == s.BreakpointsForSource("\x00function")[0].ClientID {
		t.Fatal("breakpoints tracked under different synthetic sources must not collide on client id")
	}
}

func TestResetFramesInvalidatesHandles(t *testing.T) {
	s := New()
	h := s.AllocFrameHandle(Frame{ThreadID: 1, Level: 0, StackDepth: 3})
	if _, ok := s.LookupFrame(h); !ok {
		t.Fatal("expected freshly allocated handle to resolve")
	}
	s.ResetFrames()
	if _, ok := s.LookupFrame(h); ok {
		t.Fatal("expected handle to be invalidated after ResetFrames")
	}
}

func TestLookupVarobjRejectsStaleDepth(t *testing.T) {
	s := New()
	key := VarobjKey{ThreadID: 1, FrameLevel: 0, StackDepth: 2, Expr: "x"}
	s.PutVarobj(&Varobj{Name: "var1", Expression: "x", Frame: key, DepthAtCreation: 2})

	if _, ok := s.LookupVarobj(key, 2, true); !ok {
		t.Fatal("expected varobj valid at matching depth and live frame")
	}
	if _, ok := s.LookupVarobj(key, 5, true); ok {
		t.Fatal("expected varobj stale when current stack depth diverges from depth-at-creation")
	}
	if _, ok := s.LookupVarobj(key, 2, false); ok {
		t.Fatal("expected varobj stale when its frame is reported not live")
	}
}

func TestDeleteBreakpointRemovesFromOrderedSourceList(t *testing.T) {
	s := New()
	id1 := s.NextBreakpointClientID()
	id2 := s.NextBreakpointClientID()
	s.UpsertBreakpoint("foo.c", &Breakpoint{ClientID: id1, GDBNumber: "1", LastLine: 4})
	s.UpsertBreakpoint("foo.c", &Breakpoint{ClientID: id2, GDBNumber: "2", LastLine: 6})

	s.DeleteBreakpoint("foo.c", id1)
	remaining := s.BreakpointsForSource("foo.c")
	if len(remaining) != 1 || remaining[0].ClientID != id2 {
		t.Fatalf("expected only id2 to remain, got %+v", remaining)
	}
}
