// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

package interp

import (
	"math"
	"testing"

	"github.com/probeum/picavs/shader/isa"
	"github.com/probeum/picavs/shader/state"
)

// descAt installs pattern at table index id and returns id, mirroring how
// a real program's compiler would allocate descriptor-table entries.
func descAt(table *isa.DescriptorTable, id uint16, p isa.Pattern) uint16 {
	table[id] = isa.EncodePattern(p)
	return id
}

func fullMask() [4]bool { return [4]bool{true, true, true, true} }

func identitySelect() [4]isa.Component {
	return [4]isa.Component{isa.ComponentX, isa.ComponentY, isa.ComponentZ, isa.ComponentW}
}

func newFixture(code []uint32) (*state.Context, *state.Unit, *isa.DescriptorTable) {
	ctx := &state.Context{Code: code}
	table := &ctx.Descriptors
	u := state.NewUnit()
	u.Reset(0)
	return ctx, u, table
}

func TestMovIdentityIsIdentity(t *testing.T) {
	ctx, u, table := newFixture(nil)
	descID := descAt(table, 0, isa.Pattern{DestMask: fullMask(), Src1Select: identitySelect()})
	ctx.Code = []uint32{
		isa.EncodeCommon(isa.MOV, 16 /* r0 */, 0 /* v0 */, 0, 0, descID),
		isa.RawWord(isa.END),
	}
	u.Input[0] = [4]float32{1, 2, 3, 4}

	ip := New()
	if err := ip.Run(ctx, u); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if u.Temp[0] != [4]float32{1, 2, 3, 4} {
		t.Errorf("Temp[0] = %v", u.Temp[0])
	}
}

func TestNopPreservesState(t *testing.T) {
	ctx, u, _ := newFixture([]uint32{
		isa.RawWord(isa.NOP),
		isa.RawWord(isa.END),
	})
	u.Temp[3] = [4]float32{9, 8, 7, 6}
	u.CC[0] = true

	ip := New()
	if err := ip.Run(ctx, u); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if u.Temp[3] != [4]float32{9, 8, 7, 6} {
		t.Errorf("Temp[3] mutated by NOP: %v", u.Temp[3])
	}
	if !u.CC[0] {
		t.Errorf("CC[0] mutated by NOP")
	}
}

func TestMadEqualsAddMul(t *testing.T) {
	ctx, u, table := newFixture(nil)
	descID := descAt(table, 0, isa.Pattern{
		DestMask: fullMask(), Src1Select: identitySelect(),
		Src2Select: identitySelect(), Src3Select: identitySelect(),
	})
	// src2 names a Temp register, whose source-register index is offset by
	// NumInput (16): Temp[1] is source index 17. src3 is a 4-bit field, so
	// it can only address the input bank: index 2 is Input[2].
	ctx.Code = []uint32{
		isa.EncodeMad(isa.MAD, 16, 0, 17, 2, descID),
		isa.RawWord(isa.END),
	}
	u.Input[0] = [4]float32{2, 3, 4, 5}
	u.Temp[1] = [4]float32{1, 1, 1, 1}
	u.Input[2] = [4]float32{10, 20, 30, 40}

	ip := New()
	if err := ip.Run(ctx, u); err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := [4]float32{12, 23, 34, 45}
	if u.Temp[0] != want {
		t.Errorf("MAD result = %v, want %v", u.Temp[0], want)
	}
}

func TestCmpEqSemantics(t *testing.T) {
	ctx, u, table := newFixture(nil)
	// CMP reads cmpx/cmpy from the src3 selector bits; Src3Select all-W
	// encodes those bits as zero, so cmpx = EQ(0) and cmpy = EQ(0).
	allW := [4]isa.Component{isa.ComponentW, isa.ComponentW, isa.ComponentW, isa.ComponentW}
	descID := descAt(table, 0, isa.Pattern{Src1Select: identitySelect(), Src2Select: identitySelect(), Src3Select: allW})
	ctx.Code = []uint32{
		isa.EncodeCommon(isa.CMP, 0, 0, 1, 0, descID),
		isa.RawWord(isa.END),
	}
	u.Input[0] = [4]float32{5, float32(math.NaN()), 0, 0}
	u.Input[1] = [4]float32{5, float32(math.NaN()), 0, 0}

	ip := New()
	if err := ip.Run(ctx, u); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !u.CC[0] {
		t.Errorf("CC[0] (EQ(5,5)) = false, want true")
	}
	if u.CC[1] {
		t.Errorf("CC[1] (EQ(NaN,NaN)) = true, want false")
	}
}

func TestZeroWriteMaskLeavesDestUnchanged(t *testing.T) {
	ctx, u, table := newFixture(nil)
	descID := descAt(table, 0, isa.Pattern{Src1Select: identitySelect(), Src2Select: identitySelect()})
	ctx.Code = []uint32{
		isa.EncodeCommon(isa.ADD, 16, 0, 1, 0, descID),
		isa.RawWord(isa.END),
	}
	u.Temp[0] = [4]float32{1, 2, 3, 4}
	u.Input[0] = [4]float32{100, 100, 100, 100}
	u.Input[1] = [4]float32{100, 100, 100, 100}

	ip := New()
	if err := ip.Run(ctx, u); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if u.Temp[0] != [4]float32{1, 2, 3, 4} {
		t.Errorf("Temp[0] changed despite zero mask: %v", u.Temp[0])
	}
}

func TestMovaXOnlyLeavesYUnchanged(t *testing.T) {
	ctx, u, table := newFixture(nil)
	descID := descAt(table, 0, isa.Pattern{
		DestMask: [4]bool{true, false, false, false}, Src1Select: identitySelect(),
	})
	ctx.Code = []uint32{
		isa.EncodeCommon(isa.MOVA, 0, 0, 0, 0, descID),
		isa.RawWord(isa.END),
	}
	u.Input[0] = [4]float32{3.7, 9.2, 0, 0}
	u.AddrOffset[1] = 42

	ip := New()
	if err := ip.Run(ctx, u); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if u.AddrOffset[0] != 3 {
		t.Errorf("AddrOffset[0] = %d, want 3", u.AddrOffset[0])
	}
	if u.AddrOffset[1] != 42 {
		t.Errorf("AddrOffset[1] = %d, want unchanged 42", u.AddrOffset[1])
	}
}

func TestCallRunsRangeThenResumes(t *testing.T) {
	ctx, u, table := newFixture(nil)
	descID := descAt(table, 0, isa.Pattern{DestMask: fullMask(), Src1Select: identitySelect(), Src2Select: identitySelect()})
	// [0] CALL dest=3 n=1; [1] ADD r1 += v2 (post-call); [2] END
	// [3] ADD r0 += v2 (callee body)
	// Source index 16+k addresses Temp[k]; v2 holds a constant {1,1,1,1}.
	ctx.Code = []uint32{
		isa.EncodeFlow(isa.CALL, 3, 1, isa.CondJustX, false, false, 0, 0),
		isa.EncodeCommon(isa.ADD, 17, 17, 2, 0, descID),
		isa.RawWord(isa.END),
		isa.EncodeCommon(isa.ADD, 16, 16, 2, 0, descID),
	}
	u.Temp[0] = [4]float32{1, 1, 1, 1}
	u.Temp[1] = [4]float32{0, 0, 0, 0}
	u.Input[2] = [4]float32{1, 1, 1, 1}

	ip := New()
	if err := ip.Run(ctx, u); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if u.Temp[0] != [4]float32{2, 2, 2, 2} {
		t.Errorf("callee effect missing: Temp[0] = %v", u.Temp[0])
	}
	if u.Temp[1] != [4]float32{1, 1, 1, 1} {
		t.Errorf("post-call effect missing: Temp[1] = %v", u.Temp[1])
	}
}

func TestLoopIterationsAndCounterSequence(t *testing.T) {
	ctx, u, table := newFixture(nil)
	descID := descAt(table, 0, isa.Pattern{DestMask: fullMask(), Src1Select: identitySelect(), Src2Select: identitySelect()})
	// i0 = {count:4, start:0, inc:2} -> 5 iterations, loop_counter 0,2,4,6,8.
	ctx.IntUniform[0] = state.IntUniform{Count: 4, Start: 0, Increment: 2}
	// [0] LOOP i0 dest=1 (body is just instruction 1, inclusive)
	// [1] ADD r0 += v0 (body; source index 16 addresses Temp[0] itself)
	// [2] END
	ctx.Code = []uint32{
		isa.EncodeFlow(isa.LOOP, 1, 0, isa.CondJustX, false, false, 0, 0),
		isa.EncodeCommon(isa.ADD, 16, 16, 0, 0, descID),
		isa.RawWord(isa.END),
	}
	u.Temp[0] = [4]float32{0, 0, 0, 0}
	u.Input[0] = [4]float32{1, 1, 1, 1}

	ip := New()
	if err := ip.Run(ctx, u); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if u.Temp[0] != [4]float32{5, 5, 5, 5} {
		t.Errorf("Temp[0] after loop = %v, want 5,5,5,5", u.Temp[0])
	}
	// The counter steps by 2 between passes and is left at its last value.
	if u.LoopCounter != 8 {
		t.Errorf("LoopCounter after loop = %d, want 8", u.LoopCounter)
	}
}

func TestBackwardIfTargetRejected(t *testing.T) {
	ctx, u, _ := newFixture([]uint32{
		isa.EncodeFlow(isa.IF, 0, 1, isa.CondJustX, false, false, 0, 0),
		isa.RawWord(isa.END),
	})
	ip := New()
	if err := ip.Run(ctx, u); err != ErrBackwardTransfer {
		t.Errorf("Run error = %v, want ErrBackwardTransfer", err)
	}
}

func TestUnknownOpcodeTreatedAsNop(t *testing.T) {
	ctx, u, _ := newFixture([]uint32{
		uint32(0x3F) << 26, // unassigned opcode
		isa.RawWord(isa.END),
	})
	u.Temp[0] = [4]float32{1, 2, 3, 4}
	ip := New()
	if err := ip.Run(ctx, u); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if u.Temp[0] != [4]float32{1, 2, 3, 4} {
		t.Errorf("Temp[0] mutated by unknown opcode: %v", u.Temp[0])
	}
}
