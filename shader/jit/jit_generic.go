// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

//go:build !amd64

package jit

import "github.com/probeum/picavs/shader/state"

// Compiler is permanently disabled outside amd64: Core.Setup falls back
// to the interpreter on these hosts rather than attempting to compile.
type Compiler struct{}

func NewCompiler(rcpFull bool) (*Compiler, error) { return &Compiler{}, nil }

func (c *Compiler) Compile(ctx *state.Context, entry uint32) (*Program, error) {
	return nil, ErrUnavailable
}

// Program is opaque on non-amd64 hosts; no value is ever produced.
type Program struct{}

func (p *Program) Run(ctx *state.Context, u *state.Unit) {}

func (c *Compiler) Close() error { return nil }
