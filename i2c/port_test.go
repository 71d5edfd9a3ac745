package i2c

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/i2c/i2ctest"
)

func TestPort_RegisterAccess(t *testing.T) {
	bus := &i2ctest.Playback{
		Ops: []i2ctest.IO{
			{Addr: 0x77, W: []byte{0xD0}, R: []byte{0x60}},
			{Addr: 0x77, W: []byte{0x88}, R: []byte{0x70, 0x6B}},
			{Addr: 0x77, W: []byte{0xF7}, R: []byte{0x65, 0x5A, 0xC0}},
			{Addr: 0x77, W: []byte{0xF4, 0x27}},
			{Addr: 0x77, W: []byte{0xE0, 0xB6}},
		},
		DontPanic: true,
	}
	ctx := context.Background()
	p := NewPort(bus, 0x77)

	id, err := p.ReadReg8(ctx, 0xD0)
	require.NoError(t, err)
	assert.Equal(t, byte(0x60), id)

	w, err := p.ReadReg16(ctx, 0x88)
	require.NoError(t, err)
	assert.Equal(t, uint16(27504), w)

	buf := make([]byte, 3)
	require.NoError(t, p.ReadBuffer(ctx, 0xF7, buf))
	assert.Equal(t, []byte{0x65, 0x5A, 0xC0}, buf)

	require.NoError(t, p.WriteReg8(ctx, 0xF4, 0x27))
	require.NoError(t, p.WriteBuffer(ctx, 0xE0, []byte{0xB6}))

	// the port does not own a bus passed in
	require.NoError(t, p.Close())
	assert.NoError(t, bus.Close())
}

func TestDriversPort_RegisterAccess(t *testing.T) {
	bus := &i2ctest.Playback{
		Ops: []i2ctest.IO{
			{Addr: 0x5B, W: []byte{0x20}, R: []byte{0x81}},
			{Addr: 0x5B, W: []byte{0x88}, R: []byte{0x18, 0xFC}},
			{Addr: 0x5B, W: []byte{0xF4}},
			{Addr: 0x5B, W: []byte{0xFF, 0x11, 0xE5, 0x72, 0x8A}},
		},
		DontPanic: true,
	}
	ctx := context.Background()
	p := NewDriversPort(bus, 0x5B, WithCloser(bus))

	id, err := p.ReadReg8(ctx, 0x20)
	require.NoError(t, err)
	assert.Equal(t, byte(0x81), id)

	w, err := p.ReadReg16(ctx, 0x88)
	require.NoError(t, err)
	assert.Equal(t, int16(-1000), int16(w))

	require.NoError(t, p.WriteBuffer(ctx, 0xF4, nil))
	require.NoError(t, p.WriteBuffer(ctx, 0xFF, []byte{0x11, 0xE5, 0x72, 0x8A}))
	// closing the port closes the playback, which verifies every op ran
	assert.NoError(t, p.Close())
}

func TestDriversPort_CancelledContext(t *testing.T) {
	bus := &i2ctest.Playback{DontPanic: true}
	p := NewDriversPort(bus, 0x40)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.ReadReg8(ctx, 0xE7)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, p.WriteReg8(ctx, 0xFE, 1), context.Canceled)
}
