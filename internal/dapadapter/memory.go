package dapadapter

import "fmt"

// DefaultMeanInstructionSize is used to estimate the disassembly end
// address from a requested instruction count (spec.md §4.5 "disassemble").
const DefaultMeanInstructionSize = 4

// DisassembleRange computes the `-data-disassemble` start/end address
// pair for a request anchored at a memory reference plus an instruction
// offset/count, per spec.md §4.5: end is computed as
// start + count*meanInstructionSize, independent of actual instruction
// boundaries (GDB itself resolves those); the caller trims or pads the
// returned instruction list to match the requested count exactly.
// headInvalid reports how many leading "invalid" placeholder instructions
// are owed when the unclamped start address would have been negative
// (an instructionOffset reaching before address 0).
func DisassembleRange(baseAddr uint64, instructionOffset, instructionCount int, meanInstructionSize int) (startAddr, endAddr uint64, headInvalid int) {
	if meanInstructionSize <= 0 {
		meanInstructionSize = DefaultMeanInstructionSize
	}
	rawStart := int64(baseAddr) + int64(instructionOffset)*int64(meanInstructionSize)
	start := rawStart
	if start < 0 {
		headInvalid = int((-start + int64(meanInstructionSize) - 1) / int64(meanInstructionSize))
		start = 0
	}
	end := start + int64(instructionCount-headInvalid)*int64(meanInstructionSize)
	if end < start {
		end = start
	}
	return uint64(start), uint64(end), headInvalid
}

// Instruction is the subset of a disassembled instruction the translator
// assembles into the front-end's response.
type Instruction struct {
	Address uint64
	Text    string
	Invalid bool
}

// PadInstructions trims or pads got to exactly want entries, synthesizing
// "invalid" placeholder instructions with monotonically increasing
// addresses (step 2, per spec.md §4.5) for any shortfall — GDB may return
// fewer instructions than requested near the end of a mapped region.
func PadInstructions(got []Instruction, want int, lastAddr uint64) []Instruction {
	if len(got) >= want {
		return got[:want]
	}
	out := make([]Instruction, 0, want)
	out = append(out, got...)
	next := lastAddr
	if len(got) > 0 {
		next = got[len(got)-1].Address + 2
	}
	for len(out) < want {
		out = append(out, Instruction{
			Address: next,
			Text:    fmt.Sprintf("<invalid at 0x%x>", next),
			Invalid: true,
		})
		next += 2
	}
	return out
}

// PrependInvalid synthesizes headCount "invalid" placeholder instructions
// with monotonically increasing addresses (step 2) ending just before
// firstRealAddr, for the case where DisassembleRange's unclamped start
// address would have been negative (spec.md §4.5 "negative offsets
// produce empty invalid instructions ... monotonic addresses at step 2").
func PrependInvalid(real []Instruction, headCount int, firstRealAddr uint64) []Instruction {
	if headCount <= 0 {
		return real
	}
	out := make([]Instruction, 0, headCount+len(real))
	addr := firstRealAddr - uint64(2*headCount)
	for i := 0; i < headCount; i++ {
		out = append(out, Instruction{
			Address: addr,
			Text:    fmt.Sprintf("<invalid at 0x%x>", addr),
			Invalid: true,
		})
		addr += 2
	}
	return append(out, real...)
}
