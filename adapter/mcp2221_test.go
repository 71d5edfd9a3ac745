package adapter

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"

	"github.com/mklimuk/envsensors"
)

// fakeHID records every request report and answers with queued responses.
type fakeHID struct {
	requests  [][]byte
	responses [][]byte
	closed    int
}

func (f *fakeHID) open() (HIDDevice, error) {
	return f, nil
}

func (f *fakeHID) Write(b []byte) (int, error) {
	f.requests = append(f.requests, append([]byte(nil), b...))
	return len(b), nil
}

func (f *fakeHID) Read(b []byte) (int, error) {
	if len(f.responses) == 0 {
		return 0, errors.New("no response queued")
	}
	copy(b, f.responses[0])
	f.responses = f.responses[1:]
	return len(b), nil
}

func (f *fakeHID) Close() error {
	f.closed++
	return nil
}

func (f *fakeHID) respond(data ...byte) *fakeHID {
	r := make([]byte, reportSize)
	copy(r, data)
	f.responses = append(f.responses, r)
	return f
}

func newTestAdapter(f *fakeHID) *MCP2221 {
	return NewMCP2221(WithOpener(f.open), WithResponseWait(0))
}

func TestMCP2221_WriteToAddr(t *testing.T) {
	f := (&fakeHID{}).respond(cmdI2CWrite, 0x00)
	d := newTestAdapter(f)

	require.NoError(t, d.WriteToAddr(context.Background(), 0x77, []byte{0xF4, 0x27}))
	require.Len(t, f.requests, 1)
	assert.Equal(t, []byte{cmdI2CWrite, 0x02, 0x00, 0xEE, 0xF4, 0x27}, f.requests[0][:6])
	assert.Equal(t, 1, f.closed)
}

func TestMCP2221_WriteBusy(t *testing.T) {
	f := (&fakeHID{}).respond(cmdI2CWrite, statusBusy)
	d := newTestAdapter(f)

	err := d.WriteToAddr(context.Background(), 0x40, []byte{0xFE, 0x01})
	assert.ErrorIs(t, err, envsensors.ErrBusBusy)
}

func TestMCP2221_ReadFromAddr(t *testing.T) {
	f := (&fakeHID{}).
		respond(cmdI2CRead, 0x00).
		respond(cmdGetI2CData, 0x00, 0x00, 0x02, 0x6F, 0xFF)
	d := newTestAdapter(f)

	buf := make([]byte, 2)
	require.NoError(t, d.ReadFromAddr(context.Background(), 0x40, buf))
	assert.Equal(t, []byte{0x6F, 0xFF}, buf)
	require.Len(t, f.requests, 2)
	assert.Equal(t, []byte{cmdI2CRead, 0x02, 0x00, 0x81}, f.requests[0][:4])
	assert.Equal(t, byte(cmdGetI2CData), f.requests[1][0])
}

func TestMCP2221_ReadErrors(t *testing.T) {
	tests := []struct {
		name     string
		response []byte
		expected string
	}{
		{"engine failure", []byte{cmdGetI2CData, statusReadFail}, "error reading the I2C slave data from the I2C engine"},
		{"size mismatch", []byte{cmdGetI2CData, 0x00, 0x00, 0x01}, "invalid data size byte; expected 2, got 1"},
		{"size error", []byte{cmdGetI2CData, 0x00, 0x00, 127}, "invalid data size byte; expected 2, got 127"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			f := (&fakeHID{}).respond(cmdI2CRead, 0x00).respond(test.response...)
			d := newTestAdapter(f)
			err := d.ReadFromAddr(context.Background(), 0x40, make([]byte, 2))
			assert.EqualError(t, err, test.expected)
		})
	}
}

func TestMCP2221_PinOut(t *testing.T) {
	f := (&fakeHID{}).respond(cmdSetGPIO, 0x00).respond(cmdSetGPIO, 0x00)
	d := newTestAdapter(f)
	pin := d.Pin(2)

	require.NoError(t, pin.Out(gpio.Low))
	require.NoError(t, pin.Out(gpio.High))
	require.Len(t, f.requests, 2)
	assert.Equal(t, []byte{cmdSetGPIO, 0x00, 0, 0, 0, 0, 0, 0, 0, 0, 0x01, 0x00, 0x01, 0x00}, f.requests[0][:14])
	assert.Equal(t, []byte{0x01, 0x01, 0x01, 0x00}, f.requests[1][10:14])
	assert.Equal(t, "MCP2221/GP2", pin.String())

	assert.Error(t, d.SetGPIO(context.Background(), 4, gpio.High))
}

func TestMCP2221_ReadGPIO(t *testing.T) {
	f := (&fakeHID{}).respond(cmdGetGPIO, 0x00, 0x01, 0x00, 0x00, 0x01, 0xEF, 0xEF, 0x00, 0x00)
	d := newTestAdapter(f)

	values, err := d.ReadGPIO(context.Background())
	require.NoError(t, err)
	assert.Equal(t, GPIOValue{Mode: GPIOModeOut, Value: 1}, values[0])
	assert.Equal(t, GPIOValue{Mode: GPIOModeIn, Value: 0}, values[1])
	assert.Equal(t, GPIOModeNoOperation, values[2].Mode)
}

func TestMCP2221_Status(t *testing.T) {
	r := make([]byte, 26)
	r[0] = cmdStatus
	r[9], r[10] = 0x04, 0x00
	r[11], r[12] = 0x03, 0x00
	r[14] = 0x76
	r[16], r[17] = 0xEE, 0x00
	f := (&fakeHID{}).respond(r...)
	d := newTestAdapter(f)

	status, err := d.ReleaseBus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, byte(0x10), f.requests[0][2])
	assert.Equal(t, uint16(4), status.LastWriteRequestedSize)
	assert.Equal(t, uint16(3), status.LastWriteSentSize)
	assert.Equal(t, 0x76, status.I2CSpeedDivider)
	assert.Equal(t, "ee00", status.CurrentAddress)
}

func TestMCP2221_Tx(t *testing.T) {
	f := (&fakeHID{}).
		respond(cmdI2CWrite, 0x00).
		respond(cmdI2CRead, 0x00).
		respond(cmdGetI2CData, 0x00, 0x00, 0x01, 0x60)
	d := newTestAdapter(f)

	r := make([]byte, 1)
	require.NoError(t, d.Tx(0x76, []byte{0xD0}, r))
	assert.Equal(t, []byte{0x60}, r)
	require.Len(t, f.requests, 3)
	assert.Equal(t, []byte{cmdI2CWrite, 0x01, 0x00, 0xEC, 0xD0}, f.requests[0][:5])
}
