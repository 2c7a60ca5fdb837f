// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

//go:build amd64

package jit

// This file holds asmBuf's instruction encoders: small, direct
// byte-emitters for the handful of SSE2/SSE4.1 and scalar GPR
// instructions the compiler in jit_amd64.go needs. Every register
// operand stays within 0-7 so none of these ever need a REX prefix to
// select a register; the only REX byte emitted is movabsConst's REX.W.

func modrm(reg, rm int) byte { return 0xC0 | byte(reg<<3) | byte(rm) }

// memOp appends a ModRM+(SIB if needed)+disp32 addressing a [baseGPR+disp]
// operand for register reg. mod is always 0b10 (disp32 form) so callers
// never need to special-case a zero displacement.
func (a *asmBuf) memOp(reg, baseGPR int, disp int32) {
	rm := byte(baseGPR)
	if baseGPR == gprSP {
		a.code = append(a.code, 0x80|byte(reg<<3)|4, 0x24) // SIB: scale0 index=none base=RSP
	} else {
		a.code = append(a.code, 0x80|byte(reg<<3)|rm)
	}
	a.code = append(a.code, byte(disp), byte(disp>>8), byte(disp>>16), byte(disp>>24))
}

func (a *asmBuf) sse2reg(op byte, dst, src int) {
	a.code = append(a.code, 0x0F, op, modrm(dst, src))
}

func (a *asmBuf) movupsLoad(xmm, baseGPR int, disp int32) {
	a.code = append(a.code, 0x0F, 0x10)
	a.memOp(xmm, baseGPR, disp)
}

func (a *asmBuf) movupsStore(baseGPR int, disp int32, xmm int) {
	a.code = append(a.code, 0x0F, 0x11)
	a.memOp(xmm, baseGPR, disp)
}

func (a *asmBuf) movaps(dst, src int)  { a.sse2reg(0x28, dst, src) }
func (a *asmBuf) addps(dst, src int)   { a.sse2reg(0x58, dst, src) }
func (a *asmBuf) mulps(dst, src int)   { a.sse2reg(0x59, dst, src) }
func (a *asmBuf) maxps(dst, src int)   { a.sse2reg(0x5F, dst, src) }
func (a *asmBuf) minps(dst, src int)   { a.sse2reg(0x5D, dst, src) }
func (a *asmBuf) rcpps(dst, src int)   { a.sse2reg(0x53, dst, src) }
func (a *asmBuf) rsqrtps(dst, src int) { a.sse2reg(0x52, dst, src) }
func (a *asmBuf) xorps(dst, src int)   { a.sse2reg(0x57, dst, src) }
func (a *asmBuf) andps(dst, src int)   { a.sse2reg(0x54, dst, src) }
func (a *asmBuf) addss(dst, src int)   { a.code = append(a.code, 0xF3, 0x0F, 0x58, modrm(dst, src)) }
func (a *asmBuf) divss(dst, src int)   { a.code = append(a.code, 0xF3, 0x0F, 0x5E, modrm(dst, src)) }
func (a *asmBuf) sqrtss(dst, src int)  { a.code = append(a.code, 0xF3, 0x0F, 0x51, modrm(dst, src)) }

func (a *asmBuf) movssStore(baseGPR int, disp int32, xmm int) {
	a.code = append(a.code, 0xF3, 0x0F, 0x11)
	a.memOp(xmm, baseGPR, disp)
}

func (a *asmBuf) ucomissMem(xmm, baseGPR int, disp int32) {
	a.code = append(a.code, 0x0F, 0x2E)
	a.memOp(xmm, baseGPR, disp)
}

func (a *asmBuf) shufps(dst, src int, imm byte) {
	a.code = append(a.code, 0x0F, 0xC6, modrm(dst, src), imm)
}

func (a *asmBuf) cmpps(dst, src int, imm byte) {
	a.code = append(a.code, 0x0F, 0xC2, modrm(dst, src), imm)
}

// roundps is SSE4.1 (used only after Compiler confirms cpu.X86.HasSSE41).
func (a *asmBuf) roundps(dst, src int, imm byte) {
	a.code = append(a.code, 0x66, 0x0F, 0x3A, 0x08, modrm(dst, src), imm)
}

// blendps is SSE4.1; the mask immediate is the compile-time-constant
// destination write mask, selecting src's lanes where bit i is set and
// dst's lanes elsewhere.
func (a *asmBuf) blendps(dst, src int, imm byte) {
	a.code = append(a.code, 0x66, 0x0F, 0x3A, 0x0C, modrm(dst, src), imm)
}

func (a *asmBuf) cvttps2dq(dst, src int) {
	a.code = append(a.code, 0xF3, 0x0F, 0x5B, modrm(dst, src))
}

func (a *asmBuf) movdStore(baseGPR int, disp int32, xmm int) {
	a.code = append(a.code, 0x66, 0x0F, 0x7E)
	a.memOp(xmm, baseGPR, disp)
}

// ---- GPR / flag helpers ----------------------------------------------------

func (a *asmBuf) movzxR32Mem(dstGPR, baseGPR int, disp int32) {
	a.code = append(a.code, 0x0F, 0xB6)
	a.memOp(dstGPR, baseGPR, disp)
}

func (a *asmBuf) xorR32Imm8(reg int, imm byte) {
	a.code = append(a.code, 0x83, 0xF0|byte(reg), imm)
}

func (a *asmBuf) andR32R32(dst, src int) {
	a.code = append(a.code, 0x21, modrm(src, dst))
}

func (a *asmBuf) orR32R32(dst, src int) {
	a.code = append(a.code, 0x09, modrm(src, dst))
}

func (a *asmBuf) testR32R32(r1, r2 int) {
	a.code = append(a.code, 0x85, modrm(r1, r2))
}

func (a *asmBuf) andR8Mem(reg, baseGPR int, disp int32) {
	a.code = append(a.code, 0x22)
	a.memOp(reg, baseGPR, disp)
}

func (a *asmBuf) orR8Mem(reg, baseGPR int, disp int32) {
	a.code = append(a.code, 0x0A)
	a.memOp(reg, baseGPR, disp)
}

func (a *asmBuf) setccReg(cc byte, reg int) {
	a.code = append(a.code, 0x0F, cc, 0xC0|byte(reg))
}

func (a *asmBuf) setccMem(cc byte, baseGPR int, disp int32) {
	a.code = append(a.code, 0x0F, cc)
	a.memOp(0, baseGPR, disp)
}

func (a *asmBuf) movMemImm32(baseGPR int, disp int32, imm uint32) {
	a.code = append(a.code, 0xC7)
	a.memOp(0, baseGPR, disp)
	a.code = append(a.code, byte(imm), byte(imm>>8), byte(imm>>16), byte(imm>>24))
}

func (a *asmBuf) movMemReg8(baseGPR int, disp int32, reg int) {
	a.code = append(a.code, 0x88)
	a.memOp(reg, baseGPR, disp)
}

// movabsConst loads DX with the constant pool's absolute runtime
// address. The immediate is written as zero here and patched in place
// once the compiler knows where in the executable region this buffer
// landed — the same two-phase technique used for jump targets, just
// patching an absolute address instead of a relative displacement.
func (a *asmBuf) movabsConst(reg int) {
	a.code = append(a.code, 0x48, 0xB8|byte(reg))
	at := len(a.code)
	a.code = append(a.code, 0, 0, 0, 0, 0, 0, 0, 0)
	a.constFixs = append(a.constFixs, constFixup{at: at})
}

func (a *asmBuf) jz(target uint32) {
	a.code = append(a.code, 0x0F, 0x84, 0, 0, 0, 0)
	a.jmpFixup = append(a.jmpFixup, jmpFixup{at: len(a.code) - 4, target: target})
}

func (a *asmBuf) jnz(target uint32) {
	a.code = append(a.code, 0x0F, 0x85, 0, 0, 0, 0)
	a.jmpFixup = append(a.jmpFixup, jmpFixup{at: len(a.code) - 4, target: target})
}

func (a *asmBuf) jmp(target uint32) {
	a.code = append(a.code, 0xE9, 0, 0, 0, 0)
	a.jmpFixup = append(a.jmpFixup, jmpFixup{at: len(a.code) - 4, target: target})
}

func (a *asmBuf) ret() { a.code = append(a.code, 0xC3) }
