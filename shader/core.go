// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

// Package shader is the single collaborator a caller needs: Core wraps
// the instruction model, interpreter, JIT, and shader cache behind the
// three operations a command processor actually calls — Setup, Run, and
// Shutdown — per §6 and §9's "a clean re-expression is a single
// ShaderCore value".
package shader

import (
	"errors"
	"math"
	"os"
	"runtime"
	"unsafe"

	"github.com/probeum/picavs/internal/xlog"
	"github.com/probeum/picavs/shader/cache"
	"github.com/probeum/picavs/shader/f24"
	"github.com/probeum/picavs/shader/interp"
	"github.com/probeum/picavs/shader/isa"
	"github.com/probeum/picavs/shader/jit"
	"github.com/probeum/picavs/shader/state"
)

// InvalidSemantic marks an output component with no destination field:
// the commit step zeroes that field instead of writing to it, per §6.
const InvalidSemantic = 0x1F

// InputVertex holds up to 16 four-lane attribute vectors, fed into the
// input register file by the configured attribute map.
type InputVertex struct {
	Attr [state.NumInput]f24.Vec4
}

// OutputVertex is the fixed-layout record the first 7 output registers
// are mapped into: pos(xyzw), quat(xyzw), color(rgba), tc0(uv), tc1(uv),
// tc2(uv), view(xyz), padded to 24 f24 scalars total (§6). Flat provides
// the same storage as a contiguous array, since the semantic map
// addresses destination fields by flat scalar index.
type OutputVertex struct {
	Pos   [4]f24.T
	Quat  [4]f24.T
	Color [4]f24.T
	TC0   [2]f24.T
	TC1   [2]f24.T
	TC2   [2]f24.T
	View  [3]f24.T
	_pad  [3]f24.T
}

const outputVertexScalars = 24

// flat returns a mutable view over ret's 24 scalars in declaration order,
// the same layout OutputSemantics indexes into. Every field is an array
// of f24.T (itself a uint32), laid out contiguously with no padding, so
// reinterpreting the struct's address as a flat array is safe.
func (ret *OutputVertex) flat() *[outputVertexScalars]f24.T {
	return (*[outputVertexScalars]f24.T)(unsafe.Pointer(&ret.Pos[0]))
}

// OutputSemantics maps each of the first 7 output registers' 4
// components to a flat OutputVertex scalar index, or InvalidSemantic.
// This mirrors the GPU's vs_output_attributes register file, which is
// command-processor state the core does not own (§1); the caller
// supplies it once per program the same way it supplies AttributeMap.
type OutputSemantics [7][4]uint8

// DefaultOutputSemantics routes o0->pos, o1->quat, o2->color, o3->tc0,
// o4->tc1, o5->tc2, o6->view.w-less (view has only 3 live components;
// its fourth column is InvalidSemantic), matching the common case the
// example programs in this package's tests all use.
func DefaultOutputSemantics() OutputSemantics {
	return OutputSemantics{
		{0, 1, 2, 3},                                // o0 -> pos
		{4, 5, 6, 7},                                // o1 -> quat
		{8, 9, 10, 11},                               // o2 -> color
		{12, 13, InvalidSemantic, InvalidSemantic},   // o3 -> tc0
		{14, 15, InvalidSemantic, InvalidSemantic},   // o4 -> tc1
		{16, 17, InvalidSemantic, InvalidSemantic},   // o5 -> tc2
		{18, 19, 20, InvalidSemantic},                // o6 -> view
	}
}

// AttributeMap gives, for each of up to 16 input attribute slots, the
// input register it is written to (§3's "attribute_map[i]").
type AttributeMap [state.NumInput]uint8

// IdentityAttributeMap returns the map where attribute i always lands
// in register i.
func IdentityAttributeMap() AttributeMap {
	var m AttributeMap
	for i := range m {
		m[i] = uint8(i)
	}
	return m
}

// ProgramDumper receives the live (touched) slice of a program after a
// Run, when PICA_DUMP_SHADERS is set. Dumping itself is out of scope
// per §1; this is the seam a real dumper plugs into.
type ProgramDumper interface {
	DumpShader(code []uint32, maxOffset uint32, descriptors *isa.DescriptorTable, maxOpDescID uint16, entry uint32)
}

// logDumper is the default ProgramDumper: it logs the live range's size
// at debug level rather than rendering disassembly, which is out of
// scope per §1.
type logDumper struct {
	log *xlog.Logger
}

func (d logDumper) DumpShader(code []uint32, maxOffset uint32, descriptors *isa.DescriptorTable, maxOpDescID uint16, entry uint32) {
	live := int(maxOffset) + 1
	if live > len(code) {
		live = len(code)
	}
	d.log.Debug("shader dump", "entry", entry, "live_instructions", live, "max_opdesc_id", maxOpDescID)
}

// Config carries the runtime flags §6 says are "consumed from an ambient
// context object", passed in explicitly per §9's design note rather than
// read from package globals.
type Config struct {
	// JITEnabled mirrors shader_jit_enabled. Ignored on non-amd64 hosts,
	// where Core always falls back to the interpreter regardless.
	JITEnabled bool

	// RCPMode selects the RCP/RSQ precision both back-ends use; see
	// interp.RCPMode and §9's open question on this.
	RCPMode interp.RCPMode

	// DumpShaders mirrors PICA_DUMP_SHADERS.
	DumpShaders bool

	// Dumper receives live-range dumps when DumpShaders is set. A nil
	// Dumper falls back to logDumper.
	Dumper ProgramDumper

	AttributeMap    AttributeMap
	OutputSemantics OutputSemantics
}

// ConfigFromEnv returns a Config with JITEnabled defaulted to true on
// amd64 hosts, DumpShaders read from the PICA_DUMP_SHADERS environment
// variable, full-precision RCP/RSQ, and identity attribute/output maps —
// a reasonable starting point for a CLI harness to override piecemeal.
func ConfigFromEnv() Config {
	return Config{
		JITEnabled:      runtime.GOARCH == "amd64",
		RCPMode:         interp.RCPFull,
		DumpShaders:     os.Getenv("PICA_DUMP_SHADERS") != "",
		AttributeMap:    IdentityAttributeMap(),
		OutputSemantics: DefaultOutputSemantics(),
	}
}

// Core is the single ShaderCore value threading program code, uniforms,
// the interpreter, the JIT compiler, and the shader cache together
// behind Setup/Run/Shutdown (§6, §9).
type Core struct {
	cfg      Config
	cache    *cache.Cache
	ip       *interp.Interp
	compiler *jit.Compiler
	dumper   ProgramDumper
}

// NewCore constructs a Core. If cfg.JITEnabled is true and this host has
// a native backend, a Compiler is constructed; otherwise Core runs every
// program through the interpreter, per §4.3's "on non-x86 hosts, always
// use the interpreter" and the same fallback for a host missing required
// CPU features.
func NewCore(cfg Config) (*Core, error) {
	ch, err := cache.NewDefault()
	if err != nil {
		return nil, err
	}

	ip := interp.New()
	ip.RCPMode = cfg.RCPMode

	dumper := cfg.Dumper
	if dumper == nil {
		dumper = logDumper{log: xlog.New(os.Stderr, xlog.LevelDebug)}
	}

	c := &Core{cfg: cfg, cache: ch, ip: ip, dumper: dumper}

	if cfg.JITEnabled {
		comp, err := jit.NewCompiler(cfg.RCPMode == interp.RCPFull)
		if err != nil {
			xlog.Default().Warn("jit backend unavailable, interpreter-only", "err", err)
		} else {
			c.compiler = comp
		}
	}
	return c, nil
}

// Setup consults the JIT-enabled flag and, on a cache miss, compiles the
// program in ctx and stores the result keyed by its fingerprint (§6.1).
// A program the JIT declines to compile (ErrAddressRegisterOffset) is
// cached as an interpreter-only entry rather than retried every call.
func (c *Core) Setup(ctx *state.Context) error {
	if c.compiler == nil {
		return nil
	}
	fp := cache.Fingerprint(ctx.Code, &ctx.Descriptors, ctx.MainOffset)
	_, err := c.cache.GetOrCompile(fp, func() (*cache.Entry, error) {
		prog, err := c.compiler.Compile(ctx, ctx.MainOffset)
		if err != nil {
			if errors.Is(err, jit.ErrAddressRegisterOffset) || errors.Is(err, jit.ErrUnavailable) {
				return &cache.Entry{}, nil
			}
			return nil, err
		}
		return &cache.Entry{Program: prog}, nil
	})
	return err
}

// Run executes one vertex and returns the fixed output record (§6.2).
func (c *Core) Run(ctx *state.Context, u *state.Unit, input *InputVertex, numAttributes int) (OutputVertex, error) {
	u.Reset(ctx.MainOffset)
	c.populateInput(u, input, numAttributes)

	if err := c.execute(ctx, u); err != nil {
		return OutputVertex{}, err
	}

	ret := c.commit(u)

	if c.cfg.DumpShaders {
		dbg := u.Debug()
		c.dumper.DumpShader(ctx.Code, dbg.MaxOffset, &ctx.Descriptors, dbg.MaxOpDescID, ctx.MainOffset)
	}
	return ret, nil
}

func (c *Core) populateInput(u *state.Unit, input *InputVertex, numAttributes int) {
	if numAttributes > len(input.Attr) {
		numAttributes = len(input.Attr)
	}
	for i := 0; i < numAttributes; i++ {
		reg := c.cfg.AttributeMap[i]
		u.Input[int(reg)%state.NumInput] = input.Attr[i].ToFloat32()
	}
}

func (c *Core) execute(ctx *state.Context, u *state.Unit) error {
	if c.compiler != nil {
		fp := cache.Fingerprint(ctx.Code, &ctx.Descriptors, ctx.MainOffset)
		if e, ok := c.cache.Get(fp); ok && e.Program != nil {
			e.Program.Run(ctx, u)
			return nil
		}
	}
	return c.ip.Run(ctx, u)
}

// commit maps the first 7 output registers through OutputSemantics into
// the fixed record, then saturates color, matching shader.cpp's Run tail
// exactly: fmin(fabs(x), 1.0), color only (§6). fmin treats a NaN first
// operand as absent and returns the other, so a NaN lane saturates to
// 1.0 rather than propagating.
func (c *Core) commit(u *state.Unit) OutputVertex {
	var ret OutputVertex
	flat := ret.flat()

	for reg := 0; reg < 7; reg++ {
		sem := c.cfg.OutputSemantics[reg]
		for comp := 0; comp < 4; comp++ {
			idx := sem[comp]
			if idx == InvalidSemantic {
				continue
			}
			if int(idx) >= len(flat) {
				continue
			}
			flat[idx] = f24.FromFloat32(u.Output[reg][comp])
		}
	}

	for i := range ret.Color {
		v := ret.Color[i].ToFloat32()
		var saturated float32
		if math.IsNaN(float64(v)) {
			saturated = 1
		} else {
			if v < 0 {
				v = -v
			}
			saturated = v
			if saturated > 1 {
				saturated = 1
			}
		}
		ret.Color[i] = f24.FromFloat32(saturated)
	}
	return ret
}

// Shutdown clears the shader cache and releases JIT code memory (§6.3).
func (c *Core) Shutdown() error {
	c.cache.Shutdown()
	if c.compiler != nil {
		return c.compiler.Close()
	}
	return nil
}
