// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

// Package cache memoizes compiled shader entry points by a content-derived
// fingerprint of the program they came from, so the same program uploaded
// across many draw calls is compiled at most once per process lifetime.
package cache

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"

	"github.com/probeum/picavs/shader/isa"
)

// Fingerprint combines a hash of the program's code words, a hash of its
// operand-descriptor table, and the entry offset into a single 64-bit key.
// XOR composition is enough: xxhash is collision-resistant well beyond
// what a single emulator session will ever see, and the entry offset
// keeps two identical code blobs entered at different points from
// colliding with each other.
func Fingerprint(code []uint32, descriptors *isa.DescriptorTable, entry uint32) uint64 {
	codeHash := xxhash.Sum64(uint32sToBytes(code))
	descHash := xxhash.Sum64(uint32sToBytes(descriptors[:]))
	return codeHash ^ descHash ^ uint64(entry)
}

func uint32sToBytes(words []uint32) []byte {
	b := make([]byte, len(words)*4)
	for i, w := range words {
		binary.LittleEndian.PutUint32(b[i*4:], w)
	}
	return b
}
