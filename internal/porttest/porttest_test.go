package porttest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisters_Contiguous(t *testing.T) {
	ctx := context.Background()
	regs := NewRegisters().Set(0x88, 0x70, 0x6B, 0x43)

	w, err := regs.ReadReg16(ctx, 0x88)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x6B70), w)
	b, err := regs.ReadReg8(ctx, 0x8A)
	require.NoError(t, err)
	assert.Equal(t, byte(0x43), b)
}

func TestRegisters_NoWraparound(t *testing.T) {
	ctx := context.Background()
	regs := NewRegisters()
	require.NoError(t, regs.WriteBuffer(ctx, 0xFF, []byte{0x11, 0xE5, 0x72, 0x8A}))
	assert.Equal(t, byte(0x11), regs.Get(0xFF))
	assert.Equal(t, byte(0), regs.Get(0x00))

	buf := []byte{0xAA, 0xAA}
	require.NoError(t, regs.ReadBuffer(ctx, 0xFF, buf))
	assert.Equal(t, []byte{0x11, 0x00}, buf)
}

func TestRegisters_Mailbox(t *testing.T) {
	ctx := context.Background()
	regs := NewRegisters().
		Mailbox(0x23, 0x24).
		Set(0x23, 0x10, 0x00).
		Set(0x24, 0x20, 0x07)

	buf := make([]byte, 2)
	require.NoError(t, regs.ReadBuffer(ctx, 0x23, buf))
	assert.Equal(t, []byte{0x10, 0x00}, buf)
	require.NoError(t, regs.ReadBuffer(ctx, 0x24, buf))
	assert.Equal(t, []byte{0x20, 0x07}, buf)

	require.NoError(t, regs.WriteBuffer(ctx, 0x24, []byte{0x30}))
	require.NoError(t, regs.ReadBuffer(ctx, 0x24, buf))
	assert.Equal(t, []byte{0x30, 0x00}, buf)
	assert.Equal(t, []Write{{Reg: 0x24, Data: []byte{0x30}}}, regs.Writes())
	assert.Equal(t, byte(0), regs.Get(0x25))
}
