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

// Package f24 implements the PICA200's 24-bit floating point format: 1 sign
// bit, 7 exponent bits (bias 63), 16 fraction bits. It is never used for
// arithmetic directly — the interpreter and JIT both compute on binary32
// lanes — but every uniform load, input ingestion, and output commit
// round-trips through it, so conversion fidelity is the whole contract.
package f24

import "math"

const (
	bias32 = 127
	bias24 = 63

	signBit32  = 31
	fracBits32 = 23
	fracBits24 = 16
	expBits24  = 7
)

// T is a packed 24-bit float stored in the low 24 bits of a uint32.
type T uint32

// Zero is the additive identity.
const Zero T = 0

// FromFloat32 converts an IEEE-754 binary32 value to f24 by truncating the
// fraction to 16 bits and rebiasing the exponent from 127 to 63.
//
// Values whose rebiased exponent would exceed the 7-bit unsigned range
// saturate to the largest finite f24 magnitude rather than wrap; values
// whose rebiased exponent would be zero or below flush to a signed zero.
// NaN and infinity are preserved by forcing the exponent field to all-ones.
func FromFloat32(f float32) T {
	bits32 := math.Float32bits(f)

	sign := (bits32 >> signBit32) & 1
	exp32 := (bits32 >> fracBits32) & 0xFF
	frac32 := bits32 & (1<<fracBits32 - 1)

	if exp32 == 0xFF {
		frac24 := frac32 >> (fracBits32 - fracBits24)
		return T(sign<<23 | 0x7F<<16 | frac24)
	}
	if exp32 == 0 {
		// Zero or subnormal binary32: flush to signed zero, matching the
		// reference's documented lack of f24 subnormal support.
		return T(sign << 23)
	}

	exp24 := int32(exp32) - bias32 + bias24
	switch {
	case exp24 <= 0:
		return T(sign << 23)
	case exp24 >= 1<<expBits24-1:
		exp24 = 1<<expBits24 - 2
		frac32 = 1<<fracBits32 - 1
	}

	frac24 := frac32 >> (fracBits32 - fracBits24)
	return T(sign<<23 | uint32(exp24)<<16 | frac24)
}

// ToFloat32 converts an f24 value to IEEE-754 binary32 by widening the
// fraction back to 23 bits (zero-padded) and rebiasing the exponent from 63
// to 127. This is the exact inverse of FromFloat32 for every value
// FromFloat32 can produce, so FromFloat32(x.ToFloat32()) == x for all x.
func (v T) ToFloat32() float32 {
	u := uint32(v) & (1<<24 - 1)

	sign := (u >> 23) & 1
	exp24 := (u >> 16) & 0x7F
	frac24 := u & (1<<fracBits24 - 1)

	if exp24 == 0x7F {
		frac32 := frac24 << (fracBits32 - fracBits24)
		return math.Float32frombits(sign<<signBit32 | 0xFF<<fracBits32 | frac32)
	}
	if exp24 == 0 {
		return math.Float32frombits(sign << signBit32)
	}

	exp32 := uint32(int32(exp24) - bias24 + bias32)
	frac32 := frac24 << (fracBits32 - fracBits24)
	return math.Float32frombits(sign<<signBit32 | exp32<<fracBits32 | frac32)
}

// Bits returns the raw 24-bit packed representation.
func (v T) Bits() uint32 { return uint32(v) & (1<<24 - 1) }

// FromBits reconstructs an f24 from its packed 24-bit representation.
func FromBits(b uint32) T { return T(b & (1<<24 - 1)) }

// Neg returns -v by flipping the sign bit, the same cheap negation the
// interpreter and JIT both use for swizzle negate flags.
func (v T) Neg() T { return T(uint32(v) ^ 1<<23) }

// Abs returns |v| by clearing the sign bit.
func (v T) Abs() T { return T(uint32(v) &^ (1 << 23)) }

// Vec4 is a 4-lane f24 vector, lane order X, Y, Z, W.
type Vec4 [4]T

// ToFloat32 widens all four lanes to binary32.
func (v Vec4) ToFloat32() [4]float32 {
	return [4]float32{v[0].ToFloat32(), v[1].ToFloat32(), v[2].ToFloat32(), v[3].ToFloat32()}
}

// Vec4FromFloat32 narrows four binary32 lanes to f24.
func Vec4FromFloat32(f [4]float32) Vec4 {
	return Vec4{FromFloat32(f[0]), FromFloat32(f[1]), FromFloat32(f[2]), FromFloat32(f[3])}
}
