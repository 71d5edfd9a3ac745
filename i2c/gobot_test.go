package i2c

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockConn struct {
	mock.Mock
}

func (m *mockConn) ReadByteData(reg uint8) (uint8, error) {
	args := m.Called(reg)
	return args.Get(0).(uint8), args.Error(1)
}

func (m *mockConn) ReadWordData(reg uint8) (uint16, error) {
	args := m.Called(reg)
	return args.Get(0).(uint16), args.Error(1)
}

func (m *mockConn) ReadBlockData(reg uint8, b []byte) error {
	args := m.Called(reg, b)
	if data, ok := args.Get(0).([]byte); ok {
		copy(b, data)
	}
	return args.Error(1)
}

func (m *mockConn) WriteByteData(reg uint8, val uint8) error {
	return m.Called(reg, val).Error(0)
}

func (m *mockConn) WriteBlockData(reg uint8, b []byte) error {
	return m.Called(reg, b).Error(0)
}

func (m *mockConn) Write(b []byte) (int, error) {
	args := m.Called(b)
	return args.Int(0), args.Error(1)
}

func (m *mockConn) Close() error {
	return m.Called().Error(0)
}

func TestGobotPort(t *testing.T) {
	conn := new(mockConn)
	conn.On("ReadByteData", uint8(0x20)).Return(uint8(0x81), nil).Once()
	conn.On("ReadWordData", uint8(0x88)).Return(uint16(27504), nil).Once()
	conn.On("ReadBlockData", uint8(0x02), mock.Anything).Return([]byte{0x01, 0x90, 0x00, 0x2A}, nil).Once()
	conn.On("WriteByteData", uint8(0x01), uint8(0x10)).Return(nil).Once()
	conn.On("Write", []byte{0xF4}).Return(1, nil).Once()
	conn.On("WriteBlockData", uint8(0x05), []byte{0x61, 0x00, 0x61, 0x00}).Return(nil).Once()
	conn.On("Close").Return(nil).Once()

	ctx := context.Background()
	p := NewGobotPort(conn)

	id, err := p.ReadReg8(ctx, 0x20)
	require.NoError(t, err)
	assert.Equal(t, byte(0x81), id)
	w, err := p.ReadReg16(ctx, 0x88)
	require.NoError(t, err)
	assert.Equal(t, uint16(27504), w)
	buf := make([]byte, 4)
	require.NoError(t, p.ReadBuffer(ctx, 0x02, buf))
	assert.Equal(t, []byte{0x01, 0x90, 0x00, 0x2A}, buf)
	require.NoError(t, p.WriteReg8(ctx, 0x01, 0x10))
	require.NoError(t, p.WriteBuffer(ctx, 0xF4, nil))
	require.NoError(t, p.WriteBuffer(ctx, 0x05, []byte{0x61, 0x00, 0x61, 0x00}))
	require.NoError(t, p.Close())
	conn.AssertExpectations(t)
}
