// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

//go:build !unix

package jit

import "errors"

// errRegionUnsupported is returned on platforms where the executable
// memory region backing the JIT cannot be mapped with this
// implementation. jit_generic.go already disables the JIT entirely on
// non-amd64 hosts, so this path is only reachable on an amd64 host
// running a non-unix OS.
var errRegionUnsupported = errors.New("jit: executable code regions are not supported on this platform")

// Region is a stub on non-unix platforms. NewRegion always fails,
// steering callers to the interpreter fallback.
type Region struct{}

func NewRegion() (*Region, error) {
	return nil, errRegionUnsupported
}

func (r *Region) Write(code []byte) (int, error) { return 0, errRegionUnsupported }
func (r *Region) MakeExecutable() error          { return errRegionUnsupported }
func (r *Region) Base() []byte                   { return nil }
func (r *Region) Clear()                         {}
func (r *Region) Close() error                   { return nil }
