package environment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	mode, err := ParsePowerMode("Normal")
	require.NoError(t, err)
	assert.Equal(t, ModeNormal, mode)
	_, err = ParsePowerMode("turbo")
	assert.Error(t, err)

	tests := []struct {
		given    string
		expected Oversampling
	}{
		{"skipped", OversamplingSkipped},
		{"skip", OversamplingSkipped},
		{"0", OversamplingSkipped},
		{"1x", Oversampling1x},
		{"4X", Oversampling4x},
		{"16x", Oversampling16x},
	}
	for _, test := range tests {
		t.Run(test.given, func(t *testing.T) {
			o, err := ParseOversampling(test.given)
			require.NoError(t, err)
			assert.Equal(t, test.expected, o)
		})
	}
	_, err = ParseOversampling("32x")
	assert.Error(t, err)

	f, err := ParseFilter("16")
	require.NoError(t, err)
	assert.Equal(t, Filter16, f)
	f, err = ParseFilter("0")
	require.NoError(t, err)
	assert.Equal(t, FilterOff, f)

	sb, err := ParseStandby("62.5ms")
	require.NoError(t, err)
	assert.Equal(t, Standby62_5ms, sb)
	assert.Equal(t, "1000ms", Standby1000ms.String())

	res, err := ParseResolution("11/11")
	require.NoError(t, err)
	assert.Equal(t, Resolution11_11, res)

	ch, err := ParseChannel("pressure")
	require.NoError(t, err)
	assert.Equal(t, Pressure, ch)
}
