// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

package state

import "testing"

func TestResetZeroesControlState(t *testing.T) {
	u := NewUnit()
	u.AddrOffset[0] = 5
	u.AddrOffset[1] = -3
	u.LoopCounter = 9
	u.CC[0] = true
	u.CC[1] = true
	u.PushFrame(CallFrame{FinalAddress: 10})
	u.TouchOffset(42)

	u.Reset(7)

	if u.AddrOffset != [2]int32{0, 0} {
		t.Errorf("AddrOffset not reset: %v", u.AddrOffset)
	}
	if u.LoopCounter != 0 {
		t.Errorf("LoopCounter not reset: %v", u.LoopCounter)
	}
	if u.CC[0] || u.CC[1] {
		t.Errorf("CC not reset: %v", u.CC)
	}
	if u.PC != 7 {
		t.Errorf("PC = %d, want 7", u.PC)
	}
	if len(u.CallStack) != 0 {
		t.Errorf("CallStack not cleared: %v", u.CallStack)
	}
	if u.Debug() != (Debug{}) {
		t.Errorf("Debug not reset: %v", u.Debug())
	}
}

func TestCallStackPushPopTop(t *testing.T) {
	u := NewUnit()
	if _, ok := u.TopFrame(); ok {
		t.Fatalf("TopFrame on empty stack reported ok")
	}

	u.PushFrame(CallFrame{FinalAddress: 3})
	u.PushFrame(CallFrame{FinalAddress: 8})

	top, ok := u.TopFrame()
	if !ok || top.FinalAddress != 8 {
		t.Fatalf("TopFrame = %+v, %v", top, ok)
	}

	u.ReplaceTopFrame(CallFrame{FinalAddress: 8, RepeatCounter: 2})
	top, _ = u.TopFrame()
	if top.RepeatCounter != 2 {
		t.Fatalf("ReplaceTopFrame did not apply: %+v", top)
	}

	u.PopFrame()
	top, ok = u.TopFrame()
	if !ok || top.FinalAddress != 3 {
		t.Fatalf("TopFrame after pop = %+v, %v", top, ok)
	}
}

func TestCallStackDepthCeilingDropsSilently(t *testing.T) {
	u := NewUnit()
	for i := 0; i < maxCallDepth+4; i++ {
		u.PushFrame(CallFrame{FinalAddress: uint32(i)})
	}
	if len(u.CallStack) != maxCallDepth {
		t.Errorf("CallStack grew past ceiling: len=%d", len(u.CallStack))
	}
}

func TestDebugTracksMaxima(t *testing.T) {
	u := NewUnit()
	u.TouchOffset(3)
	u.TouchOffset(1)
	u.TouchOffset(9)
	u.TouchOpDescID(2)
	u.TouchOpDescID(40)
	u.TouchOpDescID(5)

	d := u.Debug()
	if d.MaxOffset != 9 {
		t.Errorf("MaxOffset = %d, want 9", d.MaxOffset)
	}
	if d.MaxOpDescID != 40 {
		t.Errorf("MaxOpDescID = %d, want 40", d.MaxOpDescID)
	}
}
