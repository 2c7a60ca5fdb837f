// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

// Package diag provides a one-shot-per-key diagnostic gate: a warning that
// should fire exactly once per distinct cause (an unknown opcode value, a
// cache-shutdown notice) rather than once per occurrence, which for a
// per-instruction dispatch loop would otherwise flood the log.
package diag

import (
	"sync"

	"github.com/go-stack/stack"

	"github.com/probeum/picavs/internal/xlog"
)

// Gate tracks which keys have already fired. The zero value is usable with
// a nil logger (Once becomes silent bookkeeping), but NewGate is preferred.
type Gate struct {
	seen sync.Map // uint64 -> struct{}
	log  *xlog.Logger
}

// NewGate returns a Gate that logs through xlog.Default() the first time
// each key is seen.
func NewGate() *Gate { return &Gate{log: xlog.Default()} }

// NewGateWithLogger returns a Gate logging through l instead of the default.
func NewGateWithLogger(l *xlog.Logger) *Gate { return &Gate{log: l} }

// Once reports whether this is the first time key has been seen, and if
// so logs msg/kv at Warn level tagged with the call site that raised it.
func (g *Gate) Once(key uint64, msg string, kv ...interface{}) bool {
	if _, loaded := g.seen.LoadOrStore(key, struct{}{}); loaded {
		return false
	}
	if g.log == nil {
		return true
	}
	call := stack.Caller(1)
	g.log.Warn(msg, append(kv, "at", call.String())...)
	return true
}

// Reset clears every seen key, so each key warns again the next time Once
// sees it.
func (g *Gate) Reset() {
	g.seen.Range(func(k, _ interface{}) bool {
		g.seen.Delete(k)
		return true
	})
}
