package mi

import (
	"strings"
	"testing"
)

func TestParseLineResultDone(t *testing.T) {
	rec := ParseLine(`12^done,bkpt={number="1",type="breakpoint",line="4"}`)
	if rec.Kind != RecordResult {
		t.Fatalf("expected RecordResult, got %v", rec.Kind)
	}
	if rec.Result.Token == nil || *rec.Result.Token != 12 {
		t.Fatalf("expected token 12, got %v", rec.Result.Token)
	}
	if rec.Result.Class != ResultDone {
		t.Fatalf("expected ResultDone, got %v", rec.Result.Class)
	}
	bkpt, ok := rec.Result.Attrs.Get("bkpt")
	if !ok || bkpt.Kind != KindTuple {
		t.Fatalf("expected bkpt tuple, got %#v", bkpt)
	}
	if line, ok := bkpt.GetString("line"); !ok || line != "4" {
		t.Fatalf("expected line=4, got %q ok=%v", line, ok)
	}
}

func TestParseLineResultError(t *testing.T) {
	rec := ParseLine(`5^error,msg="No symbol table is loaded.",code="undefined-command"`)
	if rec.Kind != RecordResult || rec.Result.Class != ResultError {
		t.Fatalf("expected error result, got %#v", rec)
	}
	if rec.Result.ErrorMessage != "No symbol table is loaded." {
		t.Fatalf("unexpected error message: %q", rec.Result.ErrorMessage)
	}
	if rec.Result.ErrorCode != "undefined-command" {
		t.Fatalf("unexpected error code: %q", rec.Result.ErrorCode)
	}
}

func TestParseLineAsyncStopped(t *testing.T) {
	rec := ParseLine(`*stopped,reason="breakpoint-hit",bkptno="1",thread-id="1",stopped-threads="all"`)
	if rec.Kind != RecordAsync || rec.Async.Kind != AsyncExec || rec.Async.Class != "stopped" {
		t.Fatalf("unexpected record: %#v", rec)
	}
	if reason, _ := rec.Async.Attrs.GetString("reason"); reason != "breakpoint-hit" {
		t.Fatalf("unexpected reason: %q", reason)
	}
}

func TestParseLineStreamChannels(t *testing.T) {
	cases := []struct {
		line    string
		channel StreamChannel
		text    string
	}{
		{`~"Starting program\n"`, StreamConsole, "Starting program\n"},
		{`@"hello from the inferior\n"`, StreamTarget, "hello from the inferior\n"},
		{`&"undefined command: \"foo\"\n"`, StreamLog, `undefined command: "foo"` + "\n"},
	}
	for _, tc := range cases {
		rec := ParseLine(tc.line)
		if rec.Kind != RecordStream || rec.Stream.Channel != tc.channel || rec.Stream.Text != tc.text {
			t.Fatalf("line %q: got %#v", tc.line, rec)
		}
	}
}

func TestParseLinePromptAndMalformed(t *testing.T) {
	if rec := ParseLine("(gdb)"); rec.Kind != RecordPrompt {
		t.Fatalf("expected RecordPrompt, got %v", rec.Kind)
	}
	if rec := ParseLine(`^done,bad{{{`); rec.Kind != RecordMalformed {
		t.Fatalf("expected RecordMalformed, got %v", rec.Kind)
	}
	if rec := ParseLine(""); rec.Kind != RecordMalformed {
		t.Fatalf("expected RecordMalformed for empty line, got %v", rec.Kind)
	}
}

func TestParseEscapes(t *testing.T) {
	// \xHH and \OOO per spec.md §4.1.
	s, err := ParseCString(`"\x41\x42\101\n"`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s != "ABA\n" {
		t.Fatalf("unexpected decode: %q", s)
	}
}

func TestParseListBothForms(t *testing.T) {
	v, err := ParseAttrList(`vals=["a","b","c"]`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	vals, _ := v.Get("vals")
	if vals.Kind != KindList || len(vals.List) != 3 {
		t.Fatalf("expected 3-element list, got %#v", vals)
	}

	v2, err := ParseAttrList(`threads=[{id="1",state="stopped"},{id="2",state="running"}]`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	threads, _ := v2.Get("threads")
	if threads.Kind != KindList || len(threads.List) != 2 {
		t.Fatalf("expected 2-element list, got %#v", threads)
	}

	v3, err := ParseAttrList(`results=[bkpt={number="1"},bkpt={number="2"}]`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	results, _ := v3.Get("results")
	if results.Kind != KindNamedList || len(results.NamedList) != 2 {
		t.Fatalf("expected named-list of 2, got %#v", results)
	}
}

func TestReaderToleratesMalformedLines(t *testing.T) {
	input := "12^done,a=\"1\"\n" + "garbage{{{\n" + "*stopped,reason=\"end-stepping-range\"\n" + "(gdb)\n"
	r := NewReader(strings.NewReader(input))

	var kinds []RecordKind
	for {
		rec, ok := r.Next()
		if !ok {
			break
		}
		kinds = append(kinds, rec.Kind)
	}
	want := []RecordKind{RecordResult, RecordMalformed, RecordAsync, RecordPrompt}
	if len(kinds) != len(want) {
		t.Fatalf("expected %d records, got %d: %v", len(want), len(kinds), kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("record %d: expected %v, got %v", i, want[i], kinds[i])
		}
	}
}
