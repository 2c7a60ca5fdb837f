// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

package f24

import (
	"math"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	cases := []float32{0, 1, -1, 2.5, -2.5, 0.5, 100, -100, 1.0 / 3.0}
	for _, f := range cases {
		got := FromFloat32(f).ToFloat32()
		if math.Abs(float64(got-f)) > 1e-2 {
			t.Errorf("round trip %v: got %v", f, got)
		}
	}
}

func TestRoundTripBits(t *testing.T) {
	cases := []float32{0, 1, -1, 2.5, -2.5, 0.5, 100, -100, 1.0 / 3.0, 65504}
	for _, f := range cases {
		packed := FromFloat32(f)
		again := FromFloat32(packed.ToFloat32())
		if packed != again {
			t.Errorf("FromFloat32(ToFloat32(%v)) = %#x, want %#x", f, again, packed)
		}
	}
}

func TestNaN(t *testing.T) {
	v := FromFloat32(float32(math.NaN()))
	if !math.IsNaN(float64(v.ToFloat32())) {
		t.Errorf("NaN did not survive round trip: %v", v.ToFloat32())
	}
}

func TestInf(t *testing.T) {
	v := FromFloat32(float32(math.Inf(1)))
	if !math.IsInf(float64(v.ToFloat32()), 1) {
		t.Errorf("+Inf did not survive round trip: %v", v.ToFloat32())
	}
	v = FromFloat32(float32(math.Inf(-1)))
	if !math.IsInf(float64(v.ToFloat32()), -1) {
		t.Errorf("-Inf did not survive round trip: %v", v.ToFloat32())
	}
}

func TestNegAbs(t *testing.T) {
	v := FromFloat32(2.5)
	if v.Neg().ToFloat32() != -2.5 {
		t.Errorf("Neg: got %v", v.Neg().ToFloat32())
	}
	if v.Neg().Abs().ToFloat32() != 2.5 {
		t.Errorf("Abs(Neg): got %v", v.Neg().Abs().ToFloat32())
	}
}

func TestZero(t *testing.T) {
	if Zero.ToFloat32() != 0 {
		t.Errorf("Zero: got %v", Zero.ToFloat32())
	}
}
