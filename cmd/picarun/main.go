// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

// Command picarun loads a PICA200 vertex program plus one input vertex
// from a JSON dump and prints the resulting output vertex.
//
// Usage:
//
//	picarun [flags] <program.json>
//
// Flags:
//
//	-o <output>    Output file (default: stdout)
//	-jit           Use the JIT backend where available (default: true)
//	-rcp-fast      Use the fast approximate RCP/RSQ instead of full precision
//	-dump          Emit a shader dump after running (same as PICA_DUMP_SHADERS)
//	-version       Print version and exit
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/probeum/picavs/shader"
	"github.com/probeum/picavs/shader/f24"
	"github.com/probeum/picavs/shader/interp"
	"github.com/probeum/picavs/shader/state"
)

const version = "0.1.0"

// program is the on-disk JSON shape picarun reads: everything a
// shader.Core needs for one Setup/Run — code, the swizzle/descriptor
// table, the uniform banks, the entry offset, and one input vertex.
type program struct {
	Code          []uint32     `json:"code"`
	Descriptors   []uint32     `json:"descriptors"`
	FloatUniforms [][4]float32 `json:"float_uniforms"`
	IntUniforms   [][3]int8    `json:"int_uniforms"`
	BoolUniforms  []bool       `json:"bool_uniforms"`
	MainOffset    uint32       `json:"main_offset"`
	Input         [][4]float32 `json:"input"`
	NumAttributes int          `json:"num_attributes"`
}

func main() {
	var (
		output  = flag.String("o", "", "Output file (default: stdout)")
		useJIT  = flag.Bool("jit", true, "Use the JIT backend where available")
		rcpFast = flag.Bool("rcp-fast", false, "Use the fast approximate RCP/RSQ instead of full precision")
		dump    = flag.Bool("dump", false, "Emit a shader dump after running")
		ver     = flag.Bool("version", false, "Print version and exit")
	)
	flag.Parse()

	if *ver {
		fmt.Printf("picarun %s\n", version)
		os.Exit(0)
	}

	if flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: picarun [flags] <program.json>")
		os.Exit(1)
	}

	raw, err := os.ReadFile(flag.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	var p program
	if err := json.Unmarshal(raw, &p); err != nil {
		fmt.Fprintf(os.Stderr, "error: parsing %s: %v\n", flag.Arg(0), err)
		os.Exit(1)
	}

	out := os.Stdout
	if *output != "" {
		f, err := os.Create(*output)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		out = f
	}

	cfg := shader.ConfigFromEnv()
	cfg.JITEnabled = *useJIT
	if *rcpFast {
		cfg.RCPMode = interp.RCPFast
	}
	if *dump {
		cfg.DumpShaders = true
	}

	core, err := shader.NewCore(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer core.Shutdown()

	ctx, err := toContext(p)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if err := core.Setup(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: setup: %v\n", err)
		os.Exit(1)
	}

	u := state.NewUnit()
	var in shader.InputVertex
	for i, attr := range p.Input {
		if i >= len(in.Attr) {
			break
		}
		in.Attr[i] = f24.Vec4FromFloat32(attr)
	}

	result, err := core.Run(ctx, u, &in, p.NumAttributes)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: run: %v\n", err)
		os.Exit(1)
	}

	printVertex(out, result)
}

func toContext(p program) (*state.Context, error) {
	ctx := &state.Context{
		Code:       p.Code,
		MainOffset: p.MainOffset,
	}
	if len(p.Descriptors) > len(ctx.Descriptors) {
		return nil, fmt.Errorf("descriptor table has %d entries, want at most %d", len(p.Descriptors), len(ctx.Descriptors))
	}
	for i, word := range p.Descriptors {
		ctx.Descriptors[i] = word
	}
	for i, v := range p.FloatUniforms {
		if i >= len(ctx.FloatUniform) {
			break
		}
		ctx.FloatUniform[i] = f24.Vec4FromFloat32(v)
	}
	for i, v := range p.IntUniforms {
		if i >= len(ctx.IntUniform) {
			break
		}
		ctx.IntUniform[i] = state.IntUniform{Count: v[0], Start: v[1], Increment: v[2]}
	}
	for i, b := range p.BoolUniforms {
		if i >= len(ctx.BoolUniform) {
			break
		}
		ctx.BoolUniform[i] = b
	}
	return ctx, nil
}

func printVertex(w *os.File, v shader.OutputVertex) {
	fmt.Fprintf(w, "pos   %s\n", fmtVec4(v.Pos))
	fmt.Fprintf(w, "quat  %s\n", fmtVec4(v.Quat))
	fmt.Fprintf(w, "color %s\n", fmtVec4(v.Color))
	fmt.Fprintf(w, "tc0   %s\n", fmtVec2(v.TC0))
	fmt.Fprintf(w, "tc1   %s\n", fmtVec2(v.TC1))
	fmt.Fprintf(w, "tc2   %s\n", fmtVec2(v.TC2))
	fmt.Fprintf(w, "view  %s\n", fmtVec3(v.View))
}

func fmtVec4(v [4]f24.T) string {
	return fmt.Sprintf("(%g, %g, %g, %g)", v[0].ToFloat32(), v[1].ToFloat32(), v[2].ToFloat32(), v[3].ToFloat32())
}

func fmtVec3(v [3]f24.T) string {
	return fmt.Sprintf("(%g, %g, %g)", v[0].ToFloat32(), v[1].ToFloat32(), v[2].ToFloat32())
}

func fmtVec2(v [2]f24.T) string {
	return fmt.Sprintf("(%g, %g)", v[0].ToFloat32(), v[1].ToFloat32())
}
