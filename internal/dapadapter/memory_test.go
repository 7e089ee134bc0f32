package dapadapter

import "testing"

func TestDisassembleRangeUsesMeanInstructionSize(t *testing.T) {
	start, end, headInvalid := DisassembleRange(0x1000, 0, 10, DefaultMeanInstructionSize)
	if start != 0x1000 {
		t.Errorf("start = 0x%x, want 0x1000", start)
	}
	if want := uint64(0x1000 + 10*4); end != want {
		t.Errorf("end = 0x%x, want 0x%x", end, want)
	}
	if headInvalid != 0 {
		t.Errorf("expected no head invalid instructions, got %d", headInvalid)
	}
}

func TestDisassembleRangeNegativeOffsetClampsToZero(t *testing.T) {
	start, _, headInvalid := DisassembleRange(0x4, -10, 1, 4)
	if start != 0 {
		t.Errorf("expected clamped start of 0, got 0x%x", start)
	}
	if headInvalid <= 0 {
		t.Errorf("expected positive headInvalid count when offset reaches before address 0, got %d", headInvalid)
	}
}

func TestPrependInvalidSynthesizesLeadingPlaceholders(t *testing.T) {
	real := []Instruction{{Address: 0x10, Text: "nop"}}
	out := PrependInvalid(real, 2, 0x10)
	if len(out) != 3 {
		t.Fatalf("expected 3 instructions, got %d", len(out))
	}
	if !out[0].Invalid || !out[1].Invalid {
		t.Error("prepended instructions should be marked invalid")
	}
	if out[2].Invalid {
		t.Error("the real instruction should not be marked invalid")
	}
	if out[0].Address >= out[1].Address || out[1].Address >= out[2].Address {
		t.Error("prepended instruction addresses must be monotonically increasing")
	}
}

func TestPrependInvalidNoopWhenHeadCountZero(t *testing.T) {
	real := []Instruction{{Address: 0x10, Text: "nop"}}
	out := PrependInvalid(real, 0, 0x10)
	if len(out) != 1 {
		t.Fatalf("expected unchanged slice, got %d entries", len(out))
	}
}

func TestPadInstructionsAddsInvalidEntries(t *testing.T) {
	got := []Instruction{{Address: 0x100, Text: "nop"}}
	out := PadInstructions(got, 3, 0x100)
	if len(out) != 3 {
		t.Fatalf("expected 3 instructions, got %d", len(out))
	}
	if out[0].Invalid {
		t.Error("first instruction should not be marked invalid")
	}
	if !out[1].Invalid || !out[2].Invalid {
		t.Error("padded instructions should be marked invalid")
	}
	if out[1].Address <= out[0].Address || out[2].Address <= out[1].Address {
		t.Error("padded instruction addresses must be monotonically increasing")
	}
}

func TestPadInstructionsTrimsExcess(t *testing.T) {
	got := []Instruction{{Address: 1}, {Address: 2}, {Address: 3}}
	out := PadInstructions(got, 2, 0)
	if len(out) != 2 {
		t.Fatalf("expected trim to 2 instructions, got %d", len(out))
	}
}
