// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

package cache

import (
	"testing"

	"github.com/probeum/picavs/shader/isa"
)

func TestFingerprintStableAcrossEqualInputs(t *testing.T) {
	code := []uint32{1, 2, 3}
	var desc isa.DescriptorTable
	a := Fingerprint(code, &desc, 0)
	b := Fingerprint(append([]uint32{}, code...), &desc, 0)
	if a != b {
		t.Fatalf("Fingerprint not stable: %#x != %#x", a, b)
	}
}

func TestFingerprintChangesOnByteMutation(t *testing.T) {
	code := []uint32{1, 2, 3}
	var desc isa.DescriptorTable
	before := Fingerprint(code, &desc, 0)
	code[1]++
	after := Fingerprint(code, &desc, 0)
	if before == after {
		t.Fatalf("Fingerprint did not change after mutating program code")
	}
}

func TestFingerprintChangesOnEntryOffset(t *testing.T) {
	code := []uint32{1, 2, 3}
	var desc isa.DescriptorTable
	a := Fingerprint(code, &desc, 0)
	b := Fingerprint(code, &desc, 4)
	if a == b {
		t.Fatalf("Fingerprint collided across distinct entry offsets")
	}
}

func TestGetOrCompileCompilesOnceForRepeatedFingerprint(t *testing.T) {
	c, err := New(16)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	calls := 0
	compile := func() (*Entry, error) {
		calls++
		return &Entry{}, nil
	}

	first, err := c.GetOrCompile(42, compile)
	if err != nil {
		t.Fatalf("GetOrCompile: %v", err)
	}
	second, err := c.GetOrCompile(42, compile)
	if err != nil {
		t.Fatalf("GetOrCompile: %v", err)
	}
	if calls != 1 {
		t.Errorf("compile called %d times, want 1", calls)
	}
	if first != second {
		t.Errorf("expected the same *Entry pointer on cache hit")
	}
}

func TestShutdownClearsCacheForcingRecompile(t *testing.T) {
	c, err := New(16)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	calls := 0
	compile := func() (*Entry, error) {
		calls++
		return &Entry{}, nil
	}

	if _, err := c.GetOrCompile(7, compile); err != nil {
		t.Fatalf("GetOrCompile: %v", err)
	}
	c.Shutdown()
	if _, err := c.GetOrCompile(7, compile); err != nil {
		t.Fatalf("GetOrCompile: %v", err)
	}
	if calls != 2 {
		t.Errorf("compile called %d times across a Shutdown boundary, want 2", calls)
	}
}

func TestGetOrCompilePropagatesCompileError(t *testing.T) {
	c, err := New(16)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	wantErr := ErrCacheUnavailable
	_, err = c.GetOrCompile(1, func() (*Entry, error) {
		return nil, wantErr
	})
	if err != wantErr {
		t.Errorf("GetOrCompile error = %v, want %v", err, wantErr)
	}
	if _, ok := c.Get(1); ok {
		t.Errorf("a failed compile must not populate the cache")
	}
}
