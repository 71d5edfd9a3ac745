package environment

// Compensation formulas are the double precision variants from the Bosch
// BMP280 / BME280 datasheets (section 8.1).

// TemperatureCalibration holds dig_T1..dig_T3.
type TemperatureCalibration struct {
	T1 uint16
	T2 int16
	T3 int16
}

// PressureCalibration holds dig_P1..dig_P9.
type PressureCalibration struct {
	P1 uint16
	P2 int16
	P3 int16
	P4 int16
	P5 int16
	P6 int16
	P7 int16
	P8 int16
	P9 int16
}

// HumidityCalibration holds dig_H1..dig_H6 (BME280 only).
type HumidityCalibration struct {
	H1 uint8
	H2 int16
	H3 uint8
	H4 int16
	H5 int16
	H6 int8
}

// Calibration is the full set of trimming parameters read once at connect time.
type Calibration struct {
	Temperature TemperatureCalibration
	Pressure    PressureCalibration
	Humidity    HumidityCalibration
}

// Compensate returns the temperature in Celsius together with the fine
// temperature needed by the pressure and humidity formulas.
func (c TemperatureCalibration) Compensate(raw uint32) (float64, float64) {
	adc := float64(raw)
	t1 := float64(c.T1)
	t2 := float64(c.T2)
	t3 := float64(c.T3)
	v1 := (adc/16384.0 - t1/1024.0) * t2
	v2 := (adc/131072.0 - t1/8192.0) * (adc/131072.0 - t1/8192.0) * t3
	fine := v1 + v2
	return fine / 5120.0, fine
}

// Compensate returns the pressure in hPa. A calibration set producing a zero
// divisor yields 0 rather than an error.
func (c PressureCalibration) Compensate(raw uint32, fine float64) float64 {
	v1 := fine/2.0 - 64000.0
	v2 := v1 * v1 * float64(c.P6) / 32768.0
	v2 = v2 + v1*float64(c.P5)*2.0
	v2 = v2/4.0 + float64(c.P4)*65536.0
	v1 = (float64(c.P3)*v1*v1/524288.0 + float64(c.P2)*v1) / 524288.0
	v1 = (1.0 + v1/32768.0) * float64(c.P1)
	if v1 == 0 {
		return 0
	}
	p := 1048576.0 - float64(raw)
	p = (p - v2/4096.0) * 6250.0 / v1
	v1 = float64(c.P9) * p * p / 2147483648.0
	v2 = p * float64(c.P8) / 32768.0
	p = p + (v1+v2+float64(c.P7))/16.0
	return p / 100.0
}

// Compensate returns the relative humidity in %RH clamped to [0, 100].
func (c HumidityCalibration) Compensate(raw uint32, fine float64) float64 {
	h1 := float64(c.H1)
	h2 := float64(c.H2)
	h3 := float64(c.H3)
	h4 := float64(c.H4)
	h5 := float64(c.H5)
	h6 := float64(c.H6)
	h := fine - 76800.0
	h = (float64(raw) - (h4*64.0 + h5/16384.0*h)) *
		(h2 / 65536.0 * (1.0 + h6/67108864.0*h*(1.0+h3/67108864.0*h)))
	h = h * (1.0 - h1*h/524288.0)
	switch {
	case h > 100:
		return 100
	case h < 0:
		return 0
	}
	return h
}

// splitHumidityNibbles decodes dig_H4 and dig_H5 from registers 0xE4..0xE6:
//
//	dig_H4 = 0xE4[7:0] << 4 | 0xE5[3:0]
//	dig_H5 = 0xE6[7:0] << 4 | 0xE5[7:4]
//
// Both are signed 12-bit values; the whole register byte carries the sign.
func splitHumidityNibbles(b []byte) (int16, int16) {
	h4 := int16(int8(b[0]))<<4 | int16(b[1]&0x0F)
	h5 := int16(int8(b[2]))<<4 | int16(b[1]>>4)
	return h4, h5
}
