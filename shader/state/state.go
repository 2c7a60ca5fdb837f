// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

// Package state holds the PICA200 vertex unit's per-invocation register
// file and the read-only context (program, uniforms, descriptor table)
// shared across every invocation of one Setup/Run cycle.
package state

import (
	"github.com/probeum/picavs/shader/f24"
	"github.com/probeum/picavs/shader/isa"
)

// Vec4 is a four-lane register value. Input/Temp/Output registers hold
// binary32 lanes during execution per §3 ("the JIT and interpreter operate
// on binary32 lanes for host efficiency"); f24 is only the boundary format
// used by uniforms, InputVertex, and OutputVertex.
type Vec4 = [4]float32

const (
	NumInput = 16
	NumTemp  = 16
	NumOutput = 16
	NumFloatUniform = 96
	NumIntUniform   = 4
	NumBoolUniform  = 16

	maxCallDepth = 16
)

// IntUniform is one of the four integer uniform registers: a loop
// descriptor of {iteration count, start value, increment}, each an
// independent byte per §3.
type IntUniform struct {
	Count     int8
	Start     int8
	Increment int8
}

// Context is the process-wide read-only data a program runs against: code,
// descriptor table, and every uniform bank. The caller must not mutate it
// between Setup and the Run calls that follow.
type Context struct {
	Code        []uint32
	Descriptors isa.DescriptorTable

	FloatUniform [NumFloatUniform]f24.Vec4
	IntUniform   [NumIntUniform]IntUniform
	BoolUniform  [NumBoolUniform]bool

	// MainOffset is the program counter Setup resets Unit.PC to before the
	// first fetch of a Run.
	MainOffset uint32
}

// CallFrame is the single mechanism backing CALL, IF, and LOOP: each pushes
// one frame and the fetch loop pops it when PC reaches FinalAddress,
// optionally looping back via LoopAddress first. Grounded on Citra's
// CallStackElement.
type CallFrame struct {
	FinalAddress  uint32 // one past the last instruction covered by this frame
	ReturnAddress uint32 // PC to resume at once the frame is popped
	RepeatCounter uint32 // remaining LOOP iterations; 0 for CALL/IF frames
	LoopIncrement int32  // LOOP's per-iteration increment; 0 for CALL/IF
	LoopAddress   uint32 // PC to jump back to for the next LOOP iteration
}

// Debug tracks the live range actually touched during a Run, per §6's
// dump support: hardware dumps only reached code, not the whole program.
type Debug struct {
	MaxOffset    uint32
	MaxOpDescID  uint16
}

// Unit is the per-invocation register file: everything Setup resets and
// Run mutates while executing one vertex.
type Unit struct {
	Input  [NumInput]Vec4
	Output [NumOutput]Vec4
	Temp   [NumTemp]Vec4

	AddrOffset  [2]int32
	LoopCounter int32

	CC [2]bool

	PC uint32

	CallStack []CallFrame

	debug Debug
}

// NewUnit returns a Unit with its call stack pre-allocated to the depth
// the interpreter treats as the practical ceiling (nested
// loops are unsupported per §9, so real programs never approach this).
func NewUnit() *Unit {
	return &Unit{CallStack: make([]CallFrame, 0, maxCallDepth)}
}

// Reset zero-initialises everything Setup's contract requires reset per
// vertex: conditional codes, address offsets, loop counter, call stack,
// and the program counter (to mainOffset). Input/Temp/Output are left as
// the caller finds them — Run repopulates Input from the attribute map
// and shader code itself decides how much of Temp/Output it overwrites.
func (u *Unit) Reset(mainOffset uint32) {
	u.AddrOffset[0] = 0
	u.AddrOffset[1] = 0
	u.LoopCounter = 0
	u.CC[0] = false
	u.CC[1] = false
	u.PC = mainOffset
	u.CallStack = u.CallStack[:0]
	u.debug = Debug{}
}

// Debug returns the highest program offset and operand-descriptor id
// touched by the most recent Run, per §6's PICA_DUMP_SHADERS support.
func (u *Unit) Debug() Debug { return u.debug }

// TouchOffset records pc as reached, for Debug().MaxOffset.
func (u *Unit) TouchOffset(pc uint32) {
	if pc > u.debug.MaxOffset {
		u.debug.MaxOffset = pc
	}
}

// TouchOpDescID records id as referenced, for Debug().MaxOpDescID.
func (u *Unit) TouchOpDescID(id uint16) {
	if id > u.debug.MaxOpDescID {
		u.debug.MaxOpDescID = id
	}
}

// PushFrame pushes a call frame, silently dropping the push if the
// interpreter's practical depth ceiling is exceeded (malformed programs
// are clipped, not fatal, per §4.2's error contract).
func (u *Unit) PushFrame(f CallFrame) {
	if len(u.CallStack) >= cap(u.CallStack) {
		return
	}
	u.CallStack = append(u.CallStack, f)
}

// TopFrame returns the innermost active frame and whether one exists.
func (u *Unit) TopFrame() (CallFrame, bool) {
	if len(u.CallStack) == 0 {
		return CallFrame{}, false
	}
	return u.CallStack[len(u.CallStack)-1], true
}

// PopFrame removes the innermost frame.
func (u *Unit) PopFrame() {
	if len(u.CallStack) == 0 {
		return
	}
	u.CallStack = u.CallStack[:len(u.CallStack)-1]
}

// ReplaceTopFrame overwrites the innermost frame in place, used by LOOP to
// advance RepeatCounter without a pop/push round trip.
func (u *Unit) ReplaceTopFrame(f CallFrame) {
	if len(u.CallStack) == 0 {
		return
	}
	u.CallStack[len(u.CallStack)-1] = f
}
