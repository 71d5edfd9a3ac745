package environment

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/physic"

	"github.com/mklimuk/envsensors"
	"github.com/mklimuk/envsensors/internal/porttest"
)

var datasheetCalibration = Calibration{
	Temperature: TemperatureCalibration{T1: 27504, T2: 26435, T3: -1000},
	Pressure: PressureCalibration{
		P1: 36477, P2: -10685, P3: 3024, P4: 2855, P5: 140,
		P6: -7, P7: 15500, P8: -14600, P9: 6000,
	},
	Humidity: HumidityCalibration{H1: 75, H2: 362, H3: 0, H4: 324, H5: 0, H6: 30},
}

// bmxRegisters returns a register file holding the datasheet calibration and
// a sample of 25.08 °C, 1006.53 hPa and 44.55 %RH.
func bmxRegisters(chipID byte) *porttest.Registers {
	regs := porttest.NewRegisters().Set(bmxRegID, chipID)
	for i, w := range []uint16{27504, 26435, uint16(0xFC18)} {
		regs.SetWord(bmxRegTempCalib+byte(2*i), w)
	}
	for i, w := range []uint16{36477, 54851, 3024, 2855, 140, 65529, 15500, 50936, 6000} {
		regs.SetWord(bmxRegPressCalib+byte(2*i), w)
	}
	regs.Set(bmxRegHumCalib1, 75)
	regs.SetWord(bmxRegHumCalib2, 362)
	regs.Set(bmxRegHumCalib3, 0)
	regs.Set(bmxRegHumCalib4, 0x14, 0x04, 0x00)
	regs.Set(bmxRegHumCalib6, 30)
	regs.Set(bmxRegPress, 0x65, 0x5A, 0xC0)
	regs.Set(bmxRegTemp, 0x7E, 0xED, 0x00)
	regs.Set(bmxRegHum, 0x6F, 0xFF)
	return regs
}

func allChannels() []BMx280Opt {
	return []BMx280Opt{
		WithOversampling(Temperature, Oversampling1x),
		WithOversampling(Pressure, Oversampling1x),
		WithOversampling(Humidity, Oversampling1x),
		WithMode(ModeNormal),
	}
}

func TestBMx280Opts_ZeroValue(t *testing.T) {
	var o BMx280Opts
	assert.NotPanics(t, func() {
		for _, opt := range allChannels() {
			opt(&o)
		}
	})
	assert.Equal(t, map[Channel]Oversampling{
		Temperature: Oversampling1x,
		Pressure:    Oversampling1x,
		Humidity:    Oversampling1x,
	}, o.Oversampling)
	require.NotNil(t, o.Mode)
	assert.Equal(t, ModeNormal, *o.Mode)
}

func TestTemperatureCalibration_Compensate(t *testing.T) {
	temp, fine := datasheetCalibration.Temperature.Compensate(519888)
	assert.InDelta(t, 25.08247793081682, temp, 1e-9)
	assert.InDelta(t, 128422.28700578213, fine, 1e-6)
}

func TestPressureCalibration_Compensate(t *testing.T) {
	_, fine := datasheetCalibration.Temperature.Compensate(519888)
	assert.InDelta(t, 1006.5326677582515, datasheetCalibration.Pressure.Compensate(415148, fine), 1e-6)

	zero := datasheetCalibration.Pressure
	zero.P1 = 0
	assert.Equal(t, 0.0, zero.Compensate(415148, fine))
}

func TestHumidityCalibration_Compensate(t *testing.T) {
	_, fine := datasheetCalibration.Temperature.Compensate(519888)
	tests := []struct {
		raw      uint32
		expected float64
	}{
		{28671, 44.55424004901498},
		{30000, 51.96019795390009},
		{20000, 0},
		{0, 0},
		{65535, 100},
	}
	for _, test := range tests {
		t.Run(fmt.Sprint(test.raw), func(t *testing.T) {
			assert.InDelta(t, test.expected, datasheetCalibration.Humidity.Compensate(test.raw, fine), 1e-9)
		})
	}
}

func TestSplitHumidityNibbles(t *testing.T) {
	tests := []struct {
		given  []byte
		h4, h5 int16
	}{
		{[]byte{0x14, 0x04, 0x00}, 324, 0},
		{[]byte{0x13, 0x52, 0x03}, 306, 53},
		{[]byte{0xF0, 0x0F, 0xFF}, -241, -16},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("% x", test.given), func(t *testing.T) {
			h4, h5 := splitHumidityNibbles(test.given)
			assert.Equal(t, test.h4, h4)
			assert.Equal(t, test.h5, h5)
		})
	}
}

func TestBMx280_BringUp(t *testing.T) {
	t.Run("bme280 loads full calibration", func(t *testing.T) {
		regs := bmxRegisters(BME280ChipID)
		s, err := NewBMx280(context.Background(), regs)
		require.NoError(t, err)
		assert.Equal(t, VariantBME280, s.Variant())
		assert.Equal(t, byte(BME280ChipID), s.ChipID())
		assert.Equal(t, datasheetCalibration, s.Calibration())
		assert.Empty(t, regs.Writes(), "no configuration is written without options")
		assert.Equal(t, ModeSleep, s.Mode())
		assert.Equal(t, OversamplingSkipped, s.Oversampling(Temperature))
	})
	t.Run("bmp280 skips humidity calibration", func(t *testing.T) {
		regs := bmxRegisters(BMP280ChipID)
		s, err := NewBMx280(context.Background(), regs)
		require.NoError(t, err)
		assert.Equal(t, VariantBMP280, s.Variant())
		assert.False(t, s.Variant().HasHumidity())
		assert.NotContains(t, regs.Reads(), byte(bmxRegHumCalib1))
		assert.Equal(t, HumidityCalibration{}, s.Calibration().Humidity)
	})
	t.Run("bmp280 ignores humidity oversampling", func(t *testing.T) {
		regs := bmxRegisters(BMP280ChipID)
		s, err := NewBMx280(context.Background(), regs, allChannels()...)
		require.NoError(t, err)
		assert.Equal(t, OversamplingSkipped, s.Oversampling(Humidity))
		assert.Equal(t, Oversampling1x, s.Oversampling(Pressure))
		for _, w := range regs.Writes() {
			assert.NotEqual(t, byte(bmxRegCtrlHum), w.Reg)
		}
	})
	t.Run("unknown chip closes the port", func(t *testing.T) {
		regs := bmxRegisters(0x55)
		s, err := NewBMx280(context.Background(), regs)
		assert.Nil(t, s)
		assert.ErrorIs(t, err, ErrUnknownChip)
		var bringUp *envsensors.BringUpError
		assert.ErrorAs(t, err, &bringUp)
		assert.Equal(t, 1, regs.Closed())
	})
	t.Run("calibration failure closes the port", func(t *testing.T) {
		regs := bmxRegisters(BME280ChipID).Fail(bmxRegHumCalib4, nil)
		_, err := NewBMx280(context.Background(), regs)
		assert.ErrorIs(t, err, porttest.ErrInjected)
		var transport *envsensors.TransportError
		require.ErrorAs(t, err, &transport)
		assert.Equal(t, byte(bmxRegHumCalib4), transport.Reg)
		assert.Equal(t, 1, regs.Closed())
	})
	t.Run("soft reset before calibration", func(t *testing.T) {
		regs := bmxRegisters(BME280ChipID)
		_, err := NewBMx280(context.Background(), regs, WithSoftReset())
		require.NoError(t, err)
		assert.Equal(t, []porttest.Write{{Reg: bmxRegReset, Data: []byte{bmxResetCommand}}}, regs.Writes())
	})
}

func TestBMx280_ConfigurationPreservesOtherBits(t *testing.T) {
	regs := bmxRegisters(BME280ChipID).
		Set(bmxRegCtrlHum, 0b11111000).
		Set(bmxRegConfig, 0b00000001)
	s, err := NewBMx280(context.Background(), regs, allChannels()...)
	require.NoError(t, err)

	assert.Equal(t, byte(0b11111001), regs.Get(bmxRegCtrlHum))
	assert.Equal(t, byte(0b00100111), regs.Get(bmxRegCtrl))
	assert.Equal(t, ModeNormal, s.Mode())
	assert.Equal(t, Oversampling1x, s.Oversampling(Humidity))

	ctx := context.Background()
	require.NoError(t, s.SetOversampling(ctx, Pressure, Oversampling16x))
	assert.Equal(t, byte(0b00110111), regs.Get(bmxRegCtrl))

	require.NoError(t, s.SetFilter(ctx, Filter16))
	assert.Equal(t, byte(0b00010001), regs.Get(bmxRegConfig))
	require.NoError(t, s.SetStandby(ctx, Standby1000ms))
	assert.Equal(t, byte(0b10110001), regs.Get(bmxRegConfig))

	require.NoError(t, s.SetMode(ctx, ModeSleep))
	assert.Equal(t, byte(0b00110100), regs.Get(bmxRegCtrl))
}

func TestBMx280_HumidityOversamplingIsLatched(t *testing.T) {
	regs := bmxRegisters(BME280ChipID).Set(bmxRegCtrl, 0x27)
	s, err := NewBMx280(context.Background(), regs)
	require.NoError(t, err)
	regs.ResetLog()

	require.NoError(t, s.SetOversampling(context.Background(), Humidity, Oversampling4x))
	assert.Equal(t, []porttest.Write{
		{Reg: bmxRegCtrlHum, Data: []byte{0x03}},
		{Reg: bmxRegCtrl, Data: []byte{0x27}},
	}, regs.Writes())
}

func TestBMx280_Read(t *testing.T) {
	ctx := context.Background()
	s, err := NewBMx280(ctx, bmxRegisters(BME280ChipID), allChannels()...)
	require.NoError(t, err)

	temp, err := s.GetTemperature(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 25.082478, temp, 1e-4)

	press, err := s.GetPressure(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 1006.5327, press, 1e-3)

	hum, err := s.GetHumidity(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 44.55424, hum, 1e-4)

	m, err := s.GetAll(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 25.082478, m.Temperature, 1e-4)
	assert.InDelta(t, 1006.5327, m.Pressure, 1e-3)
	assert.InDelta(t, 44.55424, m.Humidity, 1e-4)

	var env physic.Env
	require.NoError(t, s.Sense(ctx, &env))
	assert.InDelta(t, 25.082, float64(env.Temperature-physic.ZeroCelsius)/float64(physic.Kelvin), 1e-3)
	assert.InDelta(t, 100653.27, float64(env.Pressure)/float64(physic.Pascal), 0.1)
	assert.InDelta(t, 44.554, float64(env.Humidity)/float64(physic.PercentRH), 1e-2)
}

func TestBMx280_TemperatureIsReadFirst(t *testing.T) {
	ctx := context.Background()
	regs := bmxRegisters(BME280ChipID)
	s, err := NewBMx280(ctx, regs, allChannels()...)
	require.NoError(t, err)

	regs.ResetLog()
	_, err = s.GetAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte{bmxRegTemp, bmxRegPress, bmxRegHum}, regs.Reads())

	regs.ResetLog()
	_, _, err = s.GetTempAndHum(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte{bmxRegTemp, bmxRegHum}, regs.Reads())
}

func TestBMx280_RejectedReadsDoNoIO(t *testing.T) {
	ctx := context.Background()

	t.Run("skipped pressure", func(t *testing.T) {
		regs := bmxRegisters(BME280ChipID)
		s, err := NewBMx280(ctx, regs, WithOversampling(Temperature, Oversampling2x), WithMode(ModeNormal))
		require.NoError(t, err)
		regs.ResetLog()

		_, err = s.GetPressure(ctx)
		assert.ErrorIs(t, err, envsensors.ErrConfiguration)
		_, err = s.GetAll(ctx)
		assert.ErrorIs(t, err, envsensors.ErrConfiguration)
		assert.Empty(t, regs.Reads())

		m, err := s.Measure(ctx)
		require.NoError(t, err)
		assert.InDelta(t, 25.082478, m.Temperature, 1e-4)
		assert.Zero(t, m.Pressure)
	})
	t.Run("humidity on bmp280", func(t *testing.T) {
		regs := bmxRegisters(BMP280ChipID)
		s, err := NewBMx280(ctx, regs, WithOversampling(Temperature, Oversampling1x))
		require.NoError(t, err)
		regs.ResetLog()

		_, err = s.GetHumidity(ctx)
		assert.ErrorIs(t, err, envsensors.ErrUnsupported)
		assert.ErrorIs(t, err, envsensors.ErrIllegalState)
		err = s.SetOversampling(ctx, Humidity, Oversampling1x)
		assert.ErrorIs(t, err, envsensors.ErrUnsupported)
		assert.Empty(t, regs.Reads())
		assert.Empty(t, regs.Writes())
	})
	t.Run("closed device", func(t *testing.T) {
		regs := bmxRegisters(BME280ChipID)
		s, err := NewBMx280(ctx, regs, allChannels()...)
		require.NoError(t, err)
		require.NoError(t, s.Close())
		require.NoError(t, s.Close())
		assert.False(t, s.IsOpen())
		assert.Equal(t, 1, regs.Closed())
		regs.ResetLog()

		_, err = s.GetTemperature(ctx)
		assert.ErrorIs(t, err, envsensors.ErrNotOpen)
		err = s.SetOversampling(ctx, Humidity, Oversampling1x)
		assert.ErrorIs(t, err, envsensors.ErrNotOpen)
		err = s.SetMode(ctx, ModeNormal)
		assert.ErrorIs(t, err, envsensors.ErrNotOpen)
		assert.Empty(t, regs.Reads())
	})
}

func TestBMx280_Trigger(t *testing.T) {
	t.Run("completes when measuring bit clears", func(t *testing.T) {
		regs := bmxRegisters(BME280ChipID)
		s, err := NewBMx280(context.Background(), regs, WithOversampling(Temperature, Oversampling1x))
		require.NoError(t, err)

		require.NoError(t, s.Trigger(context.Background()))
		assert.Equal(t, byte(0b00100001), regs.Get(bmxRegCtrl))
		assert.Contains(t, regs.Reads(), byte(bmxRegStatus))
		assert.Equal(t, ModeSleep, s.Mode())
	})
	t.Run("gives up with the context", func(t *testing.T) {
		regs := bmxRegisters(BME280ChipID).Set(bmxRegStatus, bmxStatusMeasuring)
		s, err := NewBMx280(context.Background(), regs, WithPollInterval(time.Millisecond))
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		err = s.Trigger(ctx)
		assert.True(t, errors.Is(err, context.DeadlineExceeded))
	})
}

func TestBMx280_Reset(t *testing.T) {
	regs := bmxRegisters(BME280ChipID)
	s, err := NewBMx280(context.Background(), regs, allChannels()...)
	require.NoError(t, err)
	regs.ResetLog()

	require.NoError(t, s.Reset(context.Background()))
	assert.Equal(t, []porttest.Write{{Reg: bmxRegReset, Data: []byte{bmxResetCommand}}}, regs.Writes())
	assert.Equal(t, ModeSleep, s.Mode())
	assert.Equal(t, OversamplingSkipped, s.Oversampling(Pressure))
}

func TestOversampling_String(t *testing.T) {
	assert.Equal(t, "skipped", OversamplingSkipped.String())
	assert.Equal(t, "1x", Oversampling1x.String())
	assert.Equal(t, "16x", Oversampling16x.String())
}
