// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

//go:build unix

package jit

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// regionSize is generous for a single vertex shader program; PICA200
// programs top out at 512 instructions and our lowering expands each
// instruction into at most a few dozen SSE bytes.
const regionSize = 1 << 20

// Region is a single mmap'd block of memory used to hold freshly
// compiled machine code. It starts life writable, and is mprotect'd to
// executable once a program has been written into it. Clear resets the
// write cursor without unmapping, so the same region is reused across
// compilations instead of mapping a fresh one each time.
type Region struct {
	mu   sync.Mutex
	mem  []byte
	cur  int
	exec bool
}

// NewRegion maps a fresh writable, non-executable memory region.
func NewRegion() (*Region, error) {
	mem, err := unix.Mmap(-1, 0, regionSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("jit: mmap code region: %w", err)
	}
	return &Region{mem: mem}, nil
}

// Write appends code to the region and returns the byte offset it was
// written at. It fails with ErrCodeRegionFull once the region has no
// room left, rather than growing: PICA200 programs are small and
// bounded, so a full region indicates a caller bug, not legitimate
// pressure.
func (r *Region) Write(code []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.exec {
		if err := r.protect(unix.PROT_READ | unix.PROT_WRITE); err != nil {
			return 0, err
		}
		r.exec = false
	}
	if r.cur+len(code) > len(r.mem) {
		return 0, ErrCodeRegionFull
	}
	off := r.cur
	copy(r.mem[off:], code)
	r.cur += len(code)
	return off, nil
}

// MakeExecutable mprotects the region to PROT_READ|PROT_EXEC. No further
// writes may occur until the next Write call flips it back.
func (r *Region) MakeExecutable() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.protect(unix.PROT_READ | unix.PROT_EXEC); err != nil {
		return err
	}
	r.exec = true
	return nil
}

func (r *Region) protect(prot int) error {
	if err := unix.Mprotect(r.mem, prot); err != nil {
		return fmt.Errorf("jit: mprotect: %w", err)
	}
	return nil
}

// Base returns the region's backing slice, for constructing function
// pointers at a given offset.
func (r *Region) Base() []byte {
	return r.mem
}

// Clear resets the write cursor to 0 without unmapping the region, so
// the next compiled program reuses the same pages.
func (r *Region) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cur = 0
}

// Close unmaps the region. Once closed, any function pointers derived
// from Base are invalid.
func (r *Region) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.mem == nil {
		return nil
	}
	err := unix.Munmap(r.mem)
	r.mem = nil
	return err
}
