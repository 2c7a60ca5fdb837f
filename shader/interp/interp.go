// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.
//
// The ProbeChain is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The ProbeChain is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the ProbeChain. If not, see <http://www.gnu.org/licenses/>.

// Package interp is the portable PICA200 vertex shader interpreter: a
// direct fetch/decode/execute loop over shader/state, used both as the
// fallback on non-amd64 hosts and as the reference the JIT is checked
// against.
package interp

import (
	"errors"
	"math"

	"github.com/probeum/picavs/internal/diag"
	"github.com/probeum/picavs/shader/isa"
	"github.com/probeum/picavs/shader/state"
)

// ---- Error sentinels -------------------------------------------------------

// ErrBackwardTransfer is returned when IF/LOOP/JMPC/JMPU targets an offset
// at or before the current program counter. Per §4.2 this is a
// programmer/compatibility bug, not a data fault, so the interpreter
// rejects it rather than looping the fetch/decode/execute cycle forever.
var ErrBackwardTransfer = errors.New("interp: backward transfer unsupported")

// RCPMode selects the RCP/RSQ precision the interpreter uses. Hardware's
// true behaviour (rough reciprocal vs full precision) is an open question
// per §9; both are exposed so a caller can match whichever a given title
// turns out to need.
type RCPMode uint8

const (
	// RCPFull computes 1/x (or 1/sqrt(x)) at full binary32 precision.
	RCPFull RCPMode = iota
	// RCPFast approximates via math.Float32frombits Newton-Raphson seeding,
	// the same shape of approximation real GPUs use for these opcodes.
	RCPFast
)

// Interp runs one program against a shared *state.Context and a
// per-vertex *state.Unit. It carries no state of its own beyond config,
// so one Interp is safe to reuse (but not share concurrently) across runs.
type Interp struct {
	RCPMode RCPMode

	unknown *diag.Gate
}

// New returns an Interp with full-precision RCP/RSQ, logging unknown
// opcodes at most once per opcode value via its own diagnostic gate.
func New() *Interp {
	return &Interp{unknown: diag.NewGate()}
}

// Run executes ctx.Code starting at u.PC (Setup/Run callers are expected
// to have already called u.Reset(ctx.MainOffset)) until END or until the
// program counter runs off the end of the code slice. It never returns an
// error for data-level faults — only for the compile/structural class
// (backward transfers) that a well-formed program should never trigger.
func (ip *Interp) Run(ctx *state.Context, u *state.Unit) error {
	for {
		if popped, err := ip.settleFrames(u); err != nil {
			return err
		} else if popped && int(u.PC) >= len(ctx.Code) {
			break
		}

		if int(u.PC) >= len(ctx.Code) {
			break
		}

		word := ctx.Code[u.PC]
		instr := isa.Decode(word)
		u.TouchOffset(u.PC)
		pc := u.PC
		u.PC++

		if instr.Op == isa.Unknown {
			ip.unknown.Once(uint64(word>>26&0x3F), "unrecognized opcode, treating as NOP", "opcode", word>>26&0x3F)
		}

		switch instr.Op {
		case isa.END:
			return nil
		case isa.NOP, isa.Unknown:
			// no effect
		case isa.CALL:
			ip.execCall(u, instr)
		case isa.CALLC:
			if evalCond(u, instr.CondOp, instr.RefX, instr.RefY) {
				ip.execCall(u, instr)
			}
		case isa.CALLU:
			if ctx.BoolUniform[int(instr.BoolUniformID)%state.NumBoolUniform] {
				ip.execCall(u, instr)
			}
		case isa.IF:
			if err := ip.execIf(u, instr, evalCond(u, instr.CondOp, instr.RefX, instr.RefY), pc); err != nil {
				return err
			}
		case isa.IFU:
			cond := ctx.BoolUniform[int(instr.BoolUniformID)%state.NumBoolUniform]
			if err := ip.execIf(u, instr, cond, pc); err != nil {
				return err
			}
		case isa.IFC:
			cond := evalCond(u, instr.CondOp, instr.RefX, instr.RefY)
			if err := ip.execIf(u, instr, cond, pc); err != nil {
				return err
			}
		case isa.LOOP:
			if err := ip.execLoop(ctx, u, instr, pc); err != nil {
				return err
			}
		case isa.JMPC:
			if evalCond(u, instr.CondOp, instr.RefX, instr.RefY) {
				if err := jumpForward(u, instr.DestOffset, pc); err != nil {
					return err
				}
			}
		case isa.JMPU:
			cond := ctx.BoolUniform[int(instr.BoolUniformID)%state.NumBoolUniform]
			if cond {
				if err := jumpForward(u, instr.DestOffset, pc); err != nil {
					return err
				}
			}
		default:
			ip.execArith(ctx, u, instr)
		}
	}
	return nil
}

// settleFrames pops every frame whose FinalAddress the program counter has
// reached, advancing LOOP frames in place instead of popping them until
// their repeat count is exhausted. This is the single mechanism resolving
// CALL, IF, and LOOP, grounded on Citra's RunInterpreter.
func (ip *Interp) settleFrames(u *state.Unit) (popped bool, err error) {
	for {
		f, ok := u.TopFrame()
		if !ok || u.PC != f.FinalAddress {
			return popped, nil
		}
		popped = true
		if f.RepeatCounter > 0 {
			f.RepeatCounter--
			u.LoopCounter += f.LoopIncrement
			u.ReplaceTopFrame(f)
			u.PC = f.LoopAddress
			continue
		}
		u.PopFrame()
		u.PC = f.ReturnAddress
	}
}

func (ip *Interp) execCall(u *state.Unit, instr isa.Instruction) {
	dest := instr.DestOffset
	end := dest + instr.NumInstructions
	u.PushFrame(state.CallFrame{FinalAddress: end, ReturnAddress: u.PC})
	u.PC = dest
}

func (ip *Interp) execIf(u *state.Unit, instr isa.Instruction, cond bool, pc uint32) error {
	dest := instr.DestOffset
	if dest <= pc {
		return ErrBackwardTransfer
	}
	end := dest + instr.NumInstructions
	if cond {
		// True branch is [PC, dest): fall through normally, but skip the
		// else branch [dest, end) once we reach dest.
		u.PushFrame(state.CallFrame{FinalAddress: dest, ReturnAddress: end})
	} else {
		// False branch is [dest, end): jump straight there and let
		// execution fall through naturally once it ends.
		u.PC = dest
	}
	return nil
}

func (ip *Interp) execLoop(ctx *state.Context, u *state.Unit, instr isa.Instruction, pc uint32) error {
	dest := instr.DestOffset
	if dest <= pc {
		return ErrBackwardTransfer
	}
	iu := ctx.IntUniform[int(instr.IntUniformID)%state.NumIntUniform]
	u.LoopCounter = int32(iu.Start)
	bodyStart := u.PC
	final := dest + 1 // dest is inclusive of the last body instruction
	u.PushFrame(state.CallFrame{
		FinalAddress:  final,
		ReturnAddress: final,
		RepeatCounter: uint32(uint8(iu.Count)),
		LoopIncrement: int32(iu.Increment),
		LoopAddress:   bodyStart,
	})
	return nil
}

func jumpForward(u *state.Unit, dest, pc uint32) error {
	if dest <= pc {
		return ErrBackwardTransfer
	}
	u.PC = dest
	return nil
}

func evalCond(u *state.Unit, op isa.CondOp, refX, refY bool) bool {
	x := u.CC[0] == refX
	y := u.CC[1] == refY
	switch op {
	case isa.CondJustX:
		return x
	case isa.CondJustY:
		return y
	case isa.CondOr:
		return x || y
	default: // isa.CondAnd
		return x && y
	}
}

// ---- Arithmetic dispatch ----------------------------------------------------

func (ip *Interp) execArith(ctx *state.Context, u *state.Unit, instr isa.Instruction) {
	pattern := ctx.Descriptors.PatternAt(instr.OpDescID)
	u.TouchOpDescID(instr.OpDescID)

	switch instr.Form {
	case isa.FormMad:
		ip.execMad(ctx, u, instr, pattern)
	default:
		ip.execCommon(ctx, u, instr, pattern)
	}
}

// loadSrc resolves, offsets, swizzles, and negates one source operand.
// offsettable is whether this particular operand is the one eligible for
// address-register indexing for this instruction (see §4.2 step 2).
func loadSrc(ctx *state.Context, u *state.Unit, rawIdx uint8, selector [4]isa.Component, negate bool, offsettable bool, addrRegIndex uint8) [4]float32 {
	idx := int(rawIdx)
	var v [4]float32

	switch {
	case idx < state.NumInput:
		v = u.Input[idx]
	case idx < state.NumInput+state.NumTemp:
		v = u.Temp[idx-state.NumInput]
	default:
		uidx := idx - state.NumInput - state.NumTemp
		if offsettable && addrRegIndex != 0 {
			uidx += int(addressOffset(u, addrRegIndex))
			uidx = ((uidx % state.NumFloatUniform) + state.NumFloatUniform) % state.NumFloatUniform
		}
		v = ctx.FloatUniform[uidx].ToFloat32()
	}

	v = isa.Apply4(v, selector, negate)
	return v
}

// addressOffset resolves a Common-form address-register-index field (1 or
// 2 select the two MOVA-settable offsets; 3 selects the loop counter, the
// "third address register" §9 leaves the idle-value of unspecified — we
// zero-initialise it per Reset, matching the observed behaviour §9 notes).
func addressOffset(u *state.Unit, addrRegIndex uint8) int32 {
	switch addrRegIndex {
	case 1:
		return u.AddrOffset[0]
	case 2:
		return u.AddrOffset[1]
	case 3:
		return u.LoopCounter
	default:
		return 0
	}
}

func commit(dst *[4]float32, mask [4]bool, v [4]float32) {
	for c := 0; c < 4; c++ {
		if mask[c] {
			dst[c] = v[c]
		}
	}
}

func destPtr(u *state.Unit, idx uint8) *[4]float32 {
	i := int(idx)
	if i < state.NumOutput {
		return &u.Output[i]
	}
	return &u.Temp[i-state.NumOutput]
}

func (ip *Interp) execCommon(ctx *state.Context, u *state.Unit, instr isa.Instruction, p isa.Pattern) {
	inversed := isa.SrcInversed(instr.Op)
	s1Offsettable, s2Offsettable := !inversed, inversed

	s1 := loadSrc(ctx, u, instr.Src1, p.Src1Select, p.Src1Negate, s1Offsettable, instr.AddrRegIndex)
	s2 := loadSrc(ctx, u, instr.Src2, p.Src2Select, p.Src2Negate, s2Offsettable, instr.AddrRegIndex)

	switch instr.Op {
	case isa.MOVA:
		if p.DestMask[0] {
			u.AddrOffset[0] = int32(s1[0])
		}
		if p.DestMask[1] {
			u.AddrOffset[1] = int32(s1[1])
		}
		return
	case isa.CMP:
		execCmp(ctx, u, s1, s2, instr.OpDescID)
		return
	}

	var out [4]float32
	switch instr.Op {
	case isa.ADD:
		for c := range out {
			out[c] = s1[c] + s2[c]
		}
	case isa.MUL:
		for c := range out {
			out[c] = s1[c] * s2[c]
		}
	case isa.MAX:
		for c := range out {
			out[c] = maxNaN2(s1[c], s2[c])
		}
	case isa.MIN:
		for c := range out {
			out[c] = minNaN2(s1[c], s2[c])
		}
	case isa.FLR:
		for c := range out {
			out[c] = float32(math.Floor(float64(s1[c])))
		}
	case isa.MOV:
		out = s1
	case isa.RCP:
		r := ip.rcp(s1[0])
		out = [4]float32{r, r, r, r}
	case isa.RSQ:
		r := ip.rsq(s1[0])
		out = [4]float32{r, r, r, r}
	case isa.DP3:
		d := s1[0]*s2[0] + s1[1]*s2[1] + s1[2]*s2[2]
		out = [4]float32{d, d, d, d}
	case isa.DP4:
		d := s1[0]*s2[0] + s1[1]*s2[1] + s1[2]*s2[2] + s1[3]*s2[3]
		out = [4]float32{d, d, d, d}
	case isa.SLT, isa.SLTI:
		for c := range out {
			if s1[c] < s2[c] {
				out[c] = 1
			}
		}
	default:
		return
	}

	commit(destPtr(u, instr.Dest), p.DestMask, out)
}

func (ip *Interp) execMad(ctx *state.Context, u *state.Unit, instr isa.Instruction, p isa.Pattern) {
	s1 := loadSrc(ctx, u, instr.Src1, p.Src1Select, p.Src1Negate, false, 0)
	s2 := loadSrc(ctx, u, instr.Src2, p.Src2Select, p.Src2Negate, false, 0)
	s3 := loadSrc(ctx, u, instr.Src3, p.Src3Select, p.Src3Negate, false, 0)

	var out [4]float32
	for c := range out {
		out[c] = s1[c]*s2[c] + s3[c]
	}
	commit(destPtr(u, instr.Dest), p.DestMask, out)
}

func execCmp(ctx *state.Context, u *state.Unit, s1, s2 [4]float32, opDescID uint16) {
	rawX, rawY := ctx.Descriptors.CmpOpsAt(opDescID)
	u.CC[0] = evalCmp(cmpOp(rawX), s1[0], s2[0])
	u.CC[1] = evalCmp(cmpOp(rawY), s1[1], s2[1])
}

type cmpOp uint8

const (
	cmpEQ cmpOp = iota
	cmpNEQ
	cmpLT
	cmpLE
	cmpGT
	cmpGE
)

func evalCmp(op cmpOp, a, b float32) bool {
	switch op {
	case cmpEQ:
		return a == b
	case cmpNEQ:
		return a != b
	case cmpLT:
		return a < b
	case cmpLE:
		return a <= b
	case cmpGT:
		return a > b
	case cmpGE:
		return a >= b
	default:
		return false
	}
}

// maxNaN2/minNaN2 implement §4.2's documented NaN handling: MAX/MIN return
// the second operand when either lane is NaN, matching host SIMD MAX/MIN
// semantics per §9's open question on this point.
func maxNaN2(a, b float32) float32 {
	if math.IsNaN(float64(a)) || math.IsNaN(float64(b)) {
		return b
	}
	if a > b {
		return a
	}
	return b
}

func minNaN2(a, b float32) float32 {
	if math.IsNaN(float64(a)) || math.IsNaN(float64(b)) {
		return b
	}
	if a < b {
		return a
	}
	return b
}

func (ip *Interp) rcp(x float32) float32 {
	if ip.RCPMode == RCPFast {
		return fastRcp(x)
	}
	return 1 / x
}

func (ip *Interp) rsq(x float32) float32 {
	if ip.RCPMode == RCPFast {
		return fastRsq(x)
	}
	return 1 / float32(math.Sqrt(float64(x)))
}

// fastRcp is a single Newton-Raphson refinement of the classic bit-twiddle
// reciprocal seed, giving the coarse-approximation shape real GPU rough
// reciprocal units exhibit without claiming bit-exact hardware fidelity
// (§9 leaves the true behaviour as an open question).
func fastRcp(x float32) float32 {
	if x == 0 {
		return float32(math.Inf(int(math.Copysign(1, float64(x)))))
	}
	i := math.Float32bits(x)
	i = 0x7EF311C2 - i
	y := math.Float32frombits(i)
	return y * (2 - x*y)
}

func fastRsq(x float32) float32 {
	if x <= 0 {
		return float32(math.Inf(1))
	}
	i := math.Float32bits(x)
	i = 0x5F3759DF - i>>1
	y := math.Float32frombits(i)
	return y * (1.5 - 0.5*x*y*y)
}

