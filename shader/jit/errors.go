// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

package jit

import "errors"

// ErrCodeRegionFull is returned when a compiled program would not fit
// in the remaining space of the executable code region.
var ErrCodeRegionFull = errors.New("jit: code region is full")

// ErrUnavailable is returned by Compile on platforms where no native
// backend exists. Callers fall back to the interpreter.
var ErrUnavailable = errors.New("jit: no native backend on this platform")

// ErrAddressRegisterOffset is returned by Compile when a program uses
// address-register-relative uniform addressing on an offsettable
// source; Core falls back to the interpreter for such programs rather
// than this backend lowering dynamic-index memory operands. Declared
// here rather than in jit_amd64.go so callers can compare against it
// without a build-tagged import split.
var ErrAddressRegisterOffset = errors.New("jit: address-register-relative uniform addressing is not supported")
