// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

package shader

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probeum/picavs/shader/f24"
	"github.com/probeum/picavs/shader/interp"
	"github.com/probeum/picavs/shader/isa"
	"github.com/probeum/picavs/shader/state"
)

func fullMask() [4]bool { return [4]bool{true, true, true, true} }

func identitySelect() [4]isa.Component {
	return [4]isa.Component{isa.ComponentX, isa.ComponentY, isa.ComponentZ, isa.ComponentW}
}

func descAt(table *isa.DescriptorTable, id uint16, p isa.Pattern) uint16 {
	table[id] = isa.EncodePattern(p)
	return id
}

func newCoreForTest(t *testing.T) *Core {
	t.Helper()
	cfg := Config{
		JITEnabled:      false,
		RCPMode:         interp.RCPFull,
		AttributeMap:    IdentityAttributeMap(),
		OutputSemantics: DefaultOutputSemantics(),
	}
	c, err := NewCore(cfg)
	require.NoError(t, err)
	return c
}

// passThroughVertexProgram builds `MOV o0.xyzw, v0; END` with an identity
// descriptor, the scenario 1 program from §8.
func passThroughVertexProgram() (*state.Context, uint16) {
	ctx := &state.Context{}
	descID := descAt(&ctx.Descriptors, 0, isa.Pattern{DestMask: fullMask(), Src1Select: identitySelect()})
	ctx.Code = []uint32{
		isa.EncodeCommon(isa.MOV, 0 /* o0 */, 0 /* v0 */, 0, 0, descID),
		isa.RawWord(isa.END),
	}
	return ctx, descID
}

func vec4ToFloat32(v [4]f24.T) [4]float32 {
	return [4]float32{v[0].ToFloat32(), v[1].ToFloat32(), v[2].ToFloat32(), v[3].ToFloat32()}
}

func TestPassThroughScenario(t *testing.T) {
	c := newCoreForTest(t)
	ctx, _ := passThroughVertexProgram()
	require.NoError(t, c.Setup(ctx))
	u := state.NewUnit()

	var in InputVertex
	in.Attr[0] = f24.Vec4FromFloat32([4]float32{1, 2, 3, 4})

	out, err := c.Run(ctx, u, &in, 1)
	require.NoError(t, err)
	assert.Equal(t, [4]float32{1, 2, 3, 4}, vec4ToFloat32(out.Pos))
	assert.Equal(t, [4]float32{0, 0, 0, 0}, vec4ToFloat32(out.Quat), "unwritten output register should stay zero")
}

func TestColorSaturationScenario(t *testing.T) {
	c := newCoreForTest(t)
	ctx := &state.Context{}
	descID := descAt(&ctx.Descriptors, 0, isa.Pattern{DestMask: fullMask(), Src1Select: identitySelect()})
	ctx.Code = []uint32{
		isa.EncodeCommon(isa.MOV, 2 /* o2 */, 1 /* v1 */, 0, 0, descID),
		isa.RawWord(isa.END),
	}
	require.NoError(t, c.Setup(ctx))
	u := state.NewUnit()

	var in InputVertex
	in.Attr[1] = f24.Vec4FromFloat32([4]float32{-2.0, 0.5, float32(math.NaN()), 100.0})

	out, err := c.Run(ctx, u, &in, 2)
	require.NoError(t, err)

	for i, v := range out.Color {
		f := v.ToFloat32()
		assert.GreaterOrEqualf(t, f, float32(0), "Color[%d]", i)
		assert.LessOrEqualf(t, f, float32(1), "Color[%d]", i)
	}
	assert.Equal(t, float32(1.0), out.Color[0].ToFloat32(), "|-2| saturated")
	assert.Equal(t, float32(0.5), out.Color[1].ToFloat32())
	assert.Equal(t, float32(1.0), out.Color[2].ToFloat32(), "NaN saturates to 1.0, does not propagate")
	assert.Equal(t, float32(1.0), out.Color[3].ToFloat32(), "100 saturated")
}

func TestInvalidSemanticZeroesDestination(t *testing.T) {
	c := newCoreForTest(t)
	c.cfg.OutputSemantics[3] = [4]uint8{InvalidSemantic, InvalidSemantic, InvalidSemantic, InvalidSemantic}
	ctx := &state.Context{}
	descID := descAt(&ctx.Descriptors, 0, isa.Pattern{DestMask: fullMask(), Src1Select: identitySelect()})
	ctx.Code = []uint32{
		isa.EncodeCommon(isa.MOV, 3 /* o3 */, 0 /* v0 */, 0, 0, descID),
		isa.RawWord(isa.END),
	}
	require.NoError(t, c.Setup(ctx))
	u := state.NewUnit()
	var in InputVertex
	in.Attr[0] = f24.Vec4FromFloat32([4]float32{9, 9, 9, 9})

	out, err := c.Run(ctx, u, &in, 1)
	require.NoError(t, err)
	assert.Equal(t, [2]float32{0, 0}, [2]float32{out.TC0[0].ToFloat32(), out.TC0[1].ToFloat32()},
		"routed entirely to InvalidSemantic")
}

func TestZeroAttributesLeavesInputsAtDefault(t *testing.T) {
	c := newCoreForTest(t)
	ctx, _ := passThroughVertexProgram()
	require.NoError(t, c.Setup(ctx))
	u := state.NewUnit()
	var in InputVertex
	in.Attr[0] = f24.Vec4FromFloat32([4]float32{1, 2, 3, 4})

	out, err := c.Run(ctx, u, &in, 0)
	require.NoError(t, err)
	assert.Equal(t, [4]float32{0, 0, 0, 0}, vec4ToFloat32(out.Pos))
}

func TestSetupIsIdempotentWithoutJIT(t *testing.T) {
	c := newCoreForTest(t)
	ctx, _ := passThroughVertexProgram()
	require.NoError(t, c.Setup(ctx))
	require.NoError(t, c.Setup(ctx))
}

func TestShutdownThenSetupSucceedsWithoutJIT(t *testing.T) {
	c := newCoreForTest(t)
	ctx, _ := passThroughVertexProgram()
	require.NoError(t, c.Setup(ctx))
	require.NoError(t, c.Shutdown())
	require.NoError(t, c.Setup(ctx))
}
