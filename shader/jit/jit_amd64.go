// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

//go:build amd64

// Package jit compiles PICA200 vertex shader programs to native amd64
// machine code. CALL, IF, and LOOP are resolved at compile time by
// recursive-descent inlining — the compiled program never contains a
// host CALL instruction — so the only runtime control flow the emitted
// code carries is the forward conditional and unconditional jumps IF,
// CALLC and JMPC need, patched once their target's code position is known: the same
// two-pass label/patch technique the teacher's bytecode generator uses
// for its own forward branches, generalized from named block labels to
// absolute PICA instruction offsets.
package jit

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/cpu"

	"github.com/probeum/picavs/internal/xlog"
	"github.com/probeum/picavs/shader/isa"
	"github.com/probeum/picavs/shader/state"
)

//go:noescape
func callCompiled(entry, unit, uniforms uintptr)

// xmm register numbers. xmmA/B/C are scratch, reused across every
// instruction; xmmSign/xmmOne are loaded once in the prologue and held
// live for the program's whole body. Staying within 0-7 means no
// instruction in this file ever needs a REX prefix to select a register.
const (
	xmmA    = 0
	xmmB    = 1
	xmmC    = 2
	xmmSign = 3
	xmmOne  = 4
)

// gpr register numbers. AX and CX are the two pointer arguments
// callCompiled hands the generated code and must never be clobbered;
// DX, BX are scratch for constant-address loads and condition
// evaluation; SP is used only as a base register for red-zone scratch
// storage (valid since emitted code is a leaf: it never issues a host
// CALL, so the 128-byte SysV red zone below RSP is ours to use).
const (
	gprUnit     = 0 // AX: *state.Unit
	gprUniforms = 1 // CX: base of the precomputed binary32 uniform cache
	gprConst    = 2 // DX
	gprCond     = 3 // BX
	gprSP       = 4
)

const maxInlineDepth = 8

// Field byte offsets within state.Unit/state.Context, computed from the
// real struct layout rather than hardcoded so they can never silently
// drift from the Go struct definitions.
var (
	offInput       = int32(unsafe.Offsetof(state.Unit{}.Input))
	offOutput      = int32(unsafe.Offsetof(state.Unit{}.Output))
	offTemp        = int32(unsafe.Offsetof(state.Unit{}.Temp))
	offAddrOffset  = int32(unsafe.Offsetof(state.Unit{}.AddrOffset))
	offLoopCounter = int32(unsafe.Offsetof(state.Unit{}.LoopCounter))
	offCC          = int32(unsafe.Offsetof(state.Unit{}.CC))
)

// Compiler lowers PICA200 programs to amd64 machine code held in a
// single reusable executable Region. It probes CPU features once at
// construction per §4.3; this backend requires SSE4.1 (BLENDPS for
// masked commits, ROUNDPS for FLR) and declines to compile at all on
// hosts without it, falling back to the interpreter.
type Compiler struct {
	region   *Region
	hasSSE41 bool
	rcpFull  bool
	log      *xlog.Logger
}

// NewCompiler maps a fresh executable region and probes CPU features.
// rcpFull mirrors interp.RCPFull: when true, RCP/RSQ are lowered as
// exact binary32 division/square-root rather than the native
// approximate reciprocal instructions, matching the interpreter's two
// precision modes bit-for-bit instead of only its fast path.
func NewCompiler(rcpFull bool) (*Compiler, error) {
	region, err := NewRegion()
	if err != nil {
		return nil, err
	}
	return &Compiler{region: region, hasSSE41: cpu.X86.HasSSE41, rcpFull: rcpFull, log: xlog.Default()}, nil
}

// Close releases the underlying executable region.
func (c *Compiler) Close() error { return c.region.Close() }

// Program is one compiled, immediately runnable shader entry point.
type Program struct {
	region      *Region
	entryOff    int
	maxOffset   uint32
	maxOpDescID uint16
}

type jmpFixup struct {
	at     int    // byte offset of the rel32 field to patch
	target uint32 // PICA instruction offset the jump targets
}

type constFixup struct {
	at int // byte offset of the imm64 field to patch with the region's runtime address
}

// constPoolLen is the size in bytes of the constant pool newAsmBuf
// writes at the start of every asmBuf: a sign mask followed by an
// all-lanes 1.0f mask. Program.entryOff must skip past it — the pool is
// data, not a valid jump target.
const constPoolLen = 32

// asmBuf accumulates machine code for one compilation. Byte 0 always
// holds the constant pool (sign mask, then an all-lanes 1.0f mask);
// real code starts at constPoolLen.
type asmBuf struct {
	code      []byte
	label     map[uint32]int
	jmpFixup  []jmpFixup
	constFixs []constFixup
}

func newAsmBuf() *asmBuf {
	a := &asmBuf{label: make(map[uint32]int)}
	a.code = append(a.code,
		0x00, 0x00, 0x00, 0x80, 0x00, 0x00, 0x00, 0x80, 0x00, 0x00, 0x00, 0x80, 0x00, 0x00, 0x00, 0x80, // sign mask x4
		0x00, 0x00, 0x80, 0x3F, 0x00, 0x00, 0x80, 0x3F, 0x00, 0x00, 0x80, 0x3F, 0x00, 0x00, 0x80, 0x3F, // 1.0f x4
	)
	return a
}

// Compile lowers the program reachable from entry into machine code and
// writes it into the compiler's executable region, returning a Program
// that can be invoked directly. entry is the instruction offset
// Core.Setup resolved as the shader's main entry point.
func (c *Compiler) Compile(ctx *state.Context, entry uint32) (*Program, error) {
	if !c.hasSSE41 {
		return nil, ErrUnavailable
	}
	a := newAsmBuf()
	w := &walker{ctx: ctx, buf: a, compiler: c}
	w.emitPrologue()
	if err := w.compileRange(entry, ^uint32(0), 0); err != nil {
		return nil, err
	}
	a.ret()

	for _, fx := range a.jmpFixup {
		target, ok := a.label[fx.target]
		if !ok {
			return nil, fmt.Errorf("jit: unresolved branch target offset %d", fx.target)
		}
		rel := int32(target - (fx.at + 4))
		putLE32(a.code[fx.at:], uint32(rel))
	}

	off, err := c.region.Write(a.code)
	if err != nil {
		return nil, err
	}
	base := c.region.Base()
	for _, fx := range a.constFixs {
		addr := uint64(uintptr(unsafe.Pointer(&base[off])))
		putLE64(base[off+fx.at:], addr)
	}
	if err := c.region.MakeExecutable(); err != nil {
		return nil, err
	}
	return &Program{region: c.region, entryOff: off + constPoolLen, maxOffset: w.maxOffset, maxOpDescID: w.maxOpDescID}, nil
}

// Run converts ctx's f24 float uniforms to binary32 once, then jumps
// into the compiled program. Debug tracking is a deliberate
// over-approximation for the JIT path: because IF branch selection is
// data-dependent at runtime, the compile-time walk records the union of
// every offset and operand-descriptor id it inlined, a safe superset of
// whichever path this particular run actually takes — the interpreter,
// by contrast, records exactly the path it executed.
func (p *Program) Run(ctx *state.Context, u *state.Unit) {
	var uniforms [state.NumFloatUniform * 4]float32
	for i, fv := range ctx.FloatUniform {
		v := fv.ToFloat32()
		copy(uniforms[i*4:i*4+4], v[:])
	}
	u.TouchOffset(p.maxOffset)
	u.TouchOpDescID(p.maxOpDescID)

	entry := uintptr(unsafe.Pointer(&p.region.Base()[p.entryOff]))
	callCompiled(entry, uintptr(unsafe.Pointer(u)), uintptr(unsafe.Pointer(&uniforms[0])))
}

// walker performs the recursive-descent compile, mirroring interp.Run's
// fetch loop but unrolling CALL/IF/LOOP into inline code instead of a
// runtime call-frame stack.
type walker struct {
	ctx      *state.Context
	buf      *asmBuf
	compiler *Compiler

	maxOffset   uint32
	maxOpDescID uint16
}

func (w *walker) touch(off uint32, descID uint16) {
	if off > w.maxOffset {
		w.maxOffset = off
	}
	if descID > w.maxOpDescID {
		w.maxOpDescID = descID
	}
}

// markLabel records off as resolving to the current code position, if
// nothing has claimed that PICA offset yet. Needed for range boundaries
// a branch can target even when no real instruction sits exactly there
// (an IF's dest landing right at a CALL's end, for instance).
func (w *walker) markLabel(off uint32) {
	if _, ok := w.buf.label[off]; !ok {
		w.buf.label[off] = len(w.buf.code)
	}
}

func (w *walker) emitPrologue() {
	w.buf.movabsConst(gprConst)
	w.buf.movupsLoad(xmmSign, gprConst, 0)
	w.buf.movupsLoad(xmmOne, gprConst, 16)
}

// compileRange walks instructions starting at off until it reaches
// stopAt (the exclusive end of an inlined IF branch or CALL body) or
// hits END, recursing into CALL/IF/LOOP bodies up to maxInlineDepth.
func (w *walker) compileRange(off, stopAt uint32, depth int) error {
	if depth > maxInlineDepth {
		return fmt.Errorf("jit: inline depth exceeded at offset %d", off)
	}
	for off != stopAt {
		if int(off) >= len(w.ctx.Code) {
			return nil
		}
		w.buf.label[off] = len(w.buf.code)
		instr := isa.Decode(w.ctx.Code[off])
		w.touch(off, instr.OpDescID)

		switch instr.Op {
		case isa.END:
			return nil
		case isa.NOP, isa.Unknown:
			// no-op
		case isa.CALL:
			dest, end := instr.DestOffset, instr.DestOffset+uint32(instr.NumInstructions)
			if err := w.compileRange(dest, end, depth+1); err != nil {
				return err
			}
			w.markLabel(end)
		case isa.CALLC:
			dest, end := instr.DestOffset, instr.DestOffset+uint32(instr.NumInstructions)
			w.emitEvalCond(instr.CondOp, instr.RefX, instr.RefY)
			w.buf.jz(off + 1)
			if err := w.compileRange(dest, end, depth+1); err != nil {
				return err
			}
			w.markLabel(end)
		case isa.CALLU:
			// BoolUniform is fixed program-setup data, not a per-vertex
			// runtime value, so this condition is resolved once here at
			// compile time rather than with emitted branch code.
			if w.boolUniform(instr.BoolUniformID) {
				dest, end := instr.DestOffset, instr.DestOffset+uint32(instr.NumInstructions)
				if err := w.compileRange(dest, end, depth+1); err != nil {
					return err
				}
				w.markLabel(end)
			}
		case isa.IF, isa.IFC:
			end, err := w.compileIf(off, instr, depth)
			if err != nil {
				return err
			}
			off = end
			continue
		case isa.IFU:
			end, err := w.compileIfu(off, instr, depth)
			if err != nil {
				return err
			}
			off = end
			continue
		case isa.LOOP:
			bodyEnd, err := w.compileLoop(off, instr, depth)
			if err != nil {
				return err
			}
			off = bodyEnd
			continue
		case isa.JMPC:
			dest := instr.DestOffset
			w.emitEvalCond(instr.CondOp, instr.RefX, instr.RefY)
			w.buf.jnz(dest)
			if err := w.compileRange(off+1, dest, depth+1); err != nil {
				return err
			}
			w.markLabel(dest)
			off = dest
			continue
		case isa.JMPU:
			dest := instr.DestOffset
			if !w.boolUniform(instr.BoolUniformID) {
				if err := w.compileRange(off+1, dest, depth+1); err != nil {
					return err
				}
			}
			w.markLabel(dest)
			off = dest
			continue
		default:
			if err := w.compileArith(instr); err != nil {
				return err
			}
		}
		off++
	}
	return nil
}

func (w *walker) boolUniform(id uint8) bool {
	return w.ctx.BoolUniform[int(id)%state.NumBoolUniform]
}

// compileIf lowers IF/IFC, matching interp.execIf's true/false range
// split exactly: the true branch is [off+1, dest), the false branch is
// [dest, end). Returns end, the offset compilation resumes from.
func (w *walker) compileIf(off uint32, instr isa.Instruction, depth int) (uint32, error) {
	dest := instr.DestOffset
	end := dest + uint32(instr.NumInstructions)

	w.emitEvalCond(instr.CondOp, instr.RefX, instr.RefY)
	w.buf.jz(dest)

	if err := w.compileRange(off+1, dest, depth+1); err != nil {
		return 0, err
	}
	w.markLabel(dest)
	w.buf.jmp(end)

	if err := w.compileRange(dest, end, depth+1); err != nil {
		return 0, err
	}
	w.markLabel(end)
	return end, nil
}

// compileIfu lowers IFU, whose condition is a bool uniform rather than
// the CC register — fixed program-setup data, so (like LOOP's
// iteration count) it is resolved once here rather than compiled into
// a runtime branch: only the taken branch is ever emitted.
func (w *walker) compileIfu(off uint32, instr isa.Instruction, depth int) (uint32, error) {
	dest := instr.DestOffset
	end := dest + uint32(instr.NumInstructions)

	if w.boolUniform(instr.BoolUniformID) {
		if err := w.compileRange(off+1, dest, depth+1); err != nil {
			return 0, err
		}
	} else {
		if err := w.compileRange(dest, end, depth+1); err != nil {
			return 0, err
		}
	}
	w.markLabel(dest)
	w.markLabel(end)
	return end, nil
}

// compileLoop fully unrolls LOOP's body (the single inclusive range
// [off+1, dest+1)) Count+1 times, baking each iteration's loop-counter
// value in as an immediate store rather than computing it at runtime —
// valid because LOOP's iteration count is itself a compile-time
// constant (the integer uniform it names is part of program setup, not
// a per-vertex input).
func (w *walker) compileLoop(off uint32, instr isa.Instruction, depth int) (uint32, error) {
	iu := w.ctx.IntUniform[int(instr.IntUniformID)%state.NumIntUniform]
	bodyStart, bodyEnd := off+1, instr.DestOffset+1

	// Count is stored signed but interpreted as the repeat count via an
	// unsigned reinterpretation of its bits, matching interp.execLoop.
	repeats := int(uint8(iu.Count))
	for i := 0; i <= repeats; i++ {
		value := int32(iu.Start) + int32(i)*int32(iu.Increment)
		w.buf.movMemImm32(gprUnit, offLoopCounter, uint32(value))
		if err := w.compileRange(bodyStart, bodyEnd, depth+1); err != nil {
			return 0, err
		}
	}
	w.markLabel(bodyEnd)
	return bodyEnd, nil
}

// emitEvalCond lowers evalCond's CC-comparison logic, leaving ZF=1 in
// the flags register iff the condition is false (so a caller-emitted
// JZ skips the true branch exactly when interp.evalCond would).
func (w *walker) emitEvalCond(op isa.CondOp, refX, refY bool) {
	b := w.buf
	b.movzxR32Mem(gprCond, gprUnit, offCC+0)
	b.xorR32Imm8(gprCond, invertImm(refX))
	if op == isa.CondJustX {
		b.testR32R32(gprCond, gprCond)
		return
	}

	b.movMemReg8(gprSP, -24, gprCond)
	b.movzxR32Mem(gprCond, gprUnit, offCC+1)
	b.xorR32Imm8(gprCond, invertImm(refY))
	switch op {
	case isa.CondJustY:
		// gprCond already holds yBit.
	case isa.CondAnd:
		b.andR8Mem(gprCond, gprSP, -24)
	default: // isa.CondOr
		b.orR8Mem(gprCond, gprSP, -24)
	}
	b.testR32R32(gprCond, gprCond)
}

func invertImm(ref bool) byte {
	if ref {
		return 0
	}
	return 1
}

// ---- Arithmetic lowering ----------------------------------------------------

func (w *walker) compileArith(instr isa.Instruction) error {
	p := w.ctx.Descriptors.PatternAt(instr.OpDescID)
	if instr.Form == isa.FormMad {
		return w.compileMad(instr, p)
	}
	return w.compileCommon(instr, p)
}

func (w *walker) compileMad(instr isa.Instruction, p isa.Pattern) error {
	if err := w.loadOperand(xmmA, instr.Src1, p.Src1Select, p.Src1Negate, false, 0); err != nil {
		return err
	}
	if err := w.loadOperand(xmmB, instr.Src2, p.Src2Select, p.Src2Negate, false, 0); err != nil {
		return err
	}
	if err := w.loadOperand(xmmC, instr.Src3, p.Src3Select, p.Src3Negate, false, 0); err != nil {
		return err
	}
	w.buf.mulps(xmmA, xmmB)
	w.buf.addps(xmmA, xmmC)
	return w.storeResult(instr.Dest, p.DestMask)
}

// compileCommon mirrors execCommon exactly: both sources are loaded
// unconditionally before the opcode dispatch, offsettable-ness swapped
// by SrcInversed, even for the unary opcodes (MOV, MOVA, RCP, RSQ) that
// only end up using s1 — loading s2 too is harmless since nothing ever
// reads xmmB in those cases.
func (w *walker) compileCommon(instr isa.Instruction, p isa.Pattern) error {
	inversed := isa.SrcInversed(instr.Op)
	s1Off, s2Off := !inversed, inversed

	if err := w.loadOperand(xmmA, instr.Src1, p.Src1Select, p.Src1Negate, s1Off, instr.AddrRegIndex); err != nil {
		return err
	}
	if err := w.loadOperand(xmmB, instr.Src2, p.Src2Select, p.Src2Negate, s2Off, instr.AddrRegIndex); err != nil {
		return err
	}

	switch instr.Op {
	case isa.MOVA:
		w.buf.cvttps2dq(xmmA, xmmA)
		if p.DestMask[0] {
			w.buf.movdStore(gprUnit, offAddrOffset+0, xmmA)
		}
		if p.DestMask[1] {
			w.buf.shufps(xmmA, xmmA, 0x01)
			w.buf.movdStore(gprUnit, offAddrOffset+4, xmmA)
		}
		return nil
	case isa.CMP:
		return w.compileCmp(instr.OpDescID)
	case isa.ADD:
		w.buf.addps(xmmA, xmmB)
	case isa.MUL:
		w.buf.mulps(xmmA, xmmB)
	case isa.MAX:
		// MAXPS dst,src: dst = dst>src ? dst : src — already returns the
		// second operand on a NaN lane, the exact rule interp.maxNaN2
		// implements by hand.
		w.buf.maxps(xmmA, xmmB)
	case isa.MIN:
		w.buf.minps(xmmA, xmmB)
	case isa.FLR:
		w.buf.roundps(xmmA, xmmA, 0x09) // round toward -inf, suppress exceptions
	case isa.MOV:
		// xmmA already holds s1.
	case isa.RCP:
		w.emitRcp()
	case isa.RSQ:
		w.emitRsq()
	case isa.DP3, isa.DP4:
		lanes := 3
		if instr.Op == isa.DP4 {
			lanes = 4
		}
		w.buf.mulps(xmmA, xmmB)
		w.horizontalSum(lanes)
	case isa.SLT, isa.SLTI:
		w.buf.cmpps(xmmA, xmmB, 0x01) // LT_OS
		w.buf.andps(xmmA, xmmOne)
	default:
		return nil
	}
	return w.storeResult(instr.Dest, p.DestMask)
}

// emitRcp computes lane0's reciprocal, broadcast to all lanes, matching
// interp.rcp's two modes: full precision uses an exact scalar divide
// against the persistent 1.0 constant, fast uses the native
// approximate reciprocal instruction directly.
func (w *walker) emitRcp() {
	if w.compiler.rcpFull {
		w.buf.movaps(xmmB, xmmOne)
		w.buf.divss(xmmB, xmmA)
		w.buf.shufps(xmmB, xmmB, 0x00)
		w.buf.movaps(xmmA, xmmB)
		return
	}
	w.buf.rcpps(xmmA, xmmA)
	w.buf.shufps(xmmA, xmmA, 0x00)
}

// emitRsq mirrors emitRcp for 1/sqrt(x).
func (w *walker) emitRsq() {
	if w.compiler.rcpFull {
		w.buf.movaps(xmmB, xmmA)
		w.buf.sqrtss(xmmB, xmmB)
		w.buf.movaps(xmmC, xmmOne)
		w.buf.divss(xmmC, xmmB)
		w.buf.shufps(xmmC, xmmC, 0x00)
		w.buf.movaps(xmmA, xmmC)
		return
	}
	w.buf.rsqrtps(xmmA, xmmA)
	w.buf.shufps(xmmA, xmmA, 0x00)
}

// horizontalSum reduces the 4 lane-wise products already in xmmA into a
// single sum broadcast across all lanes, using only the three scratch
// registers this compiler has (no SSE3 HADDPS is assumed available).
func (w *walker) horizontalSum(lanes int) {
	b := w.buf
	b.movaps(xmmB, xmmA) // pristine backup of the products
	b.movaps(xmmC, xmmA) // accumulator, starts at lane0
	for i := 1; i < lanes; i++ {
		b.movaps(xmmA, xmmB)
		b.shufps(xmmA, xmmA, byte(i))
		b.addss(xmmC, xmmA)
	}
	b.shufps(xmmC, xmmC, 0x00)
	b.movaps(xmmA, xmmC)
}

// compileCmp lowers CMP's two independent lane comparisons, matching
// interp.execCmp/evalCmp exactly including the NaN-is-unordered
// handling UCOMISS gives for free.
func (w *walker) compileCmp(opDescID uint16) error {
	x, y := w.ctx.Descriptors.CmpOpsAt(opDescID)
	w.emitCmpLane(0, x, offCC+0)
	w.emitCmpLane(1, y, offCC+1)
	return nil
}

func (w *walker) emitCmpLane(lane int, op uint8, ccDisp int32) {
	b := w.buf
	b.movaps(xmmC, xmmB)
	if lane != 0 {
		b.shufps(xmmC, xmmC, byte(lane))
	}
	b.movssStore(gprSP, -16, xmmC) // b's lane -> scratch
	b.movaps(xmmC, xmmA)
	if lane != 0 {
		b.shufps(xmmC, xmmC, byte(lane))
	}
	b.ucomissMem(xmmC, gprSP, -16) // flags reflect a(xmmC) vs b(mem)

	switch op {
	case 0: // EQ
		b.setccReg(0x94, gprCond) // SETE
		b.setccMem(0x9B, gprSP, -17) // SETNP
		b.andR8Mem(gprCond, gprSP, -17)
	case 1: // NEQ
		b.setccReg(0x95, gprCond) // SETNE
		b.setccMem(0x9A, gprSP, -17) // SETP
		b.orR8Mem(gprCond, gprSP, -17)
	case 2: // LT
		b.setccReg(0x92, gprCond) // SETB
		b.setccMem(0x9B, gprSP, -17)
		b.andR8Mem(gprCond, gprSP, -17)
	case 3: // LE
		b.setccReg(0x96, gprCond) // SETBE
		b.setccMem(0x9B, gprSP, -17)
		b.andR8Mem(gprCond, gprSP, -17)
	case 4: // GT — SETA is already unordered-safe (CF=ZF=1 on NaN)
		b.setccReg(0x97, gprCond)
	case 5: // GE — SETAE is already unordered-safe
		b.setccReg(0x93, gprCond)
	default:
		b.movMemImm32(gprSP, -4, 0) // unknown op: leave CC at a safe false
		b.movzxR32Mem(gprCond, gprSP, -4)
		b.movMemReg8(gprUnit, ccDisp, gprCond)
		return
	}
	b.movMemReg8(gprUnit, ccDisp, gprCond)
}

// ---- Operand load/store ----------------------------------------------------

func (w *walker) loadOperand(dstXMM int, rawIdx uint8, sel [4]isa.Component, negate, offsettable bool, addrRegIndex uint8) error {
	idx := int(rawIdx)
	switch {
	case idx < state.NumInput:
		w.buf.movupsLoad(dstXMM, gprUnit, offInput+int32(idx)*16)
	case idx < state.NumInput+state.NumTemp:
		w.buf.movupsLoad(dstXMM, gprUnit, offTemp+int32(idx-state.NumInput)*16)
	default:
		if offsettable && addrRegIndex != 0 {
			return ErrAddressRegisterOffset
		}
		uidx := idx - state.NumInput - state.NumTemp
		uidx = ((uidx % state.NumFloatUniform) + state.NumFloatUniform) % state.NumFloatUniform
		w.buf.movupsLoad(dstXMM, gprUniforms, int32(uidx)*16)
	}
	w.buf.shufps(dstXMM, dstXMM, shuffleImm(sel))
	if negate {
		w.buf.xorps(dstXMM, xmmSign)
	}
	return nil
}

// storeResult commits the masked write of xmmA into the destination
// register's memory, using BLENDPS with the compile-time-known mask —
// the descriptor table (and therefore the mask) is fixed program setup
// data, not a per-vertex runtime value, so this never needs a runtime
// mask register.
func (w *walker) storeResult(destIdx uint8, mask [4]bool) error {
	off := destFieldOffset(destIdx)
	w.buf.movupsLoad(xmmB, gprUnit, off)
	w.buf.blendps(xmmB, xmmA, blendImm(mask))
	w.buf.movupsStore(gprUnit, off, xmmB)
	return nil
}

func destFieldOffset(destIdx uint8) int32 {
	idx := int(destIdx)
	if idx < state.NumOutput {
		return offOutput + int32(idx)*16
	}
	return offTemp + int32(idx-state.NumOutput)*16
}

func shuffleImm(sel [4]isa.Component) byte {
	return byte(sel[0]) | byte(sel[1])<<2 | byte(sel[2])<<4 | byte(sel[3])<<6
}

func blendImm(mask [4]bool) byte {
	var imm byte
	for i, m := range mask {
		if m {
			imm |= 1 << uint(i)
		}
	}
	return imm
}

func putLE32(b []byte, v uint32) {
	b[0], b[1], b[2], b[3] = byte(v), byte(v>>8), byte(v>>16), byte(v>>24)
}

func putLE64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}
