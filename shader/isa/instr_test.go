// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

package isa

import "testing"

func TestEncodeDecodeCommonRoundTrip(t *testing.T) {
	word := EncodeCommon(ADD, 3, 100, 7, 2, 42)
	got := Decode(word)

	if got.Op != ADD {
		t.Fatalf("Op = %v, want ADD", got.Op)
	}
	if got.Form != FormCommon {
		t.Fatalf("Form = %v, want FormCommon", got.Form)
	}
	if got.Dest != 3 || got.Src1 != 100 || got.Src2 != 7 || got.AddrRegIndex != 2 || got.OpDescID != 42 {
		t.Errorf("decoded = %+v", got)
	}
}

func TestEncodeDecodeMadRoundTrip(t *testing.T) {
	word := EncodeMad(MAD, 5, 120, 20, 9, 17)
	got := Decode(word)

	if got.Op != MAD || got.Form != FormMad {
		t.Fatalf("Op/Form = %v/%v", got.Op, got.Form)
	}
	if got.Dest != 5 || got.Src1 != 120 || got.Src2 != 20 || got.Src3 != 9 || got.OpDescID != 17 {
		t.Errorf("decoded = %+v", got)
	}
}

func TestEncodeDecodeFlowRoundTrip(t *testing.T) {
	word := EncodeFlow(IF, 12, 4, CondAnd, true, false, 3, 1)
	got := Decode(word)

	if got.Op != IF || got.Form != FormFlow {
		t.Fatalf("Op/Form = %v/%v", got.Op, got.Form)
	}
	if got.DestOffset != 12 || got.NumInstructions != 4 || got.CondOp != CondAnd {
		t.Errorf("decoded = %+v", got)
	}
	if !got.RefX || got.RefY {
		t.Errorf("RefX/RefY = %v/%v, want true/false", got.RefX, got.RefY)
	}
	if got.BoolUniformID != 3 || got.IntUniformID != 1 {
		t.Errorf("decoded = %+v", got)
	}
}

func TestDecodeUnknownOpcodeYieldsZeroInstruction(t *testing.T) {
	word := uint32(0x3F) << 26
	got := Decode(word)
	if got.Op != Unknown || got.Form != FormNop {
		t.Errorf("decoded = %+v", got)
	}
}
