package console

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mklimuk/envsensors"
)

func TestChoose(t *testing.T) {
	tests := []struct {
		response string
		choices  []string
		expected string
	}{
		{"", []string{No, Yes}, No},
		{"y", []string{No, Yes}, Yes},
		{" Y ", []string{No, Yes}, Yes},
		{"yes", []string{No, Yes}, No},
		{"n", []string{No, Yes}, No},
		{"GP2", nil, "GP2"},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%q", test.response), func(t *testing.T) {
			assert.Equal(t, test.expected, choose(test.response, test.choices))
		})
	}
}

func TestPromptLine(t *testing.T) {
	assert.Equal(t, "reset? [N/y]:", promptLine("reset?", []string{No, Yes}))
	assert.Equal(t, "name:", promptLine("name:", nil))
}

func TestFail(t *testing.T) {
	SetColor(false)

	err := Fail(errors.New("nack"), "could not open %s", "bmx280")
	assert.Equal(t, ExitFailure, err.ExitCode())
	assert.Equal(t, "could not open bmx280: nack", err.Error())

	cfgErr := fmt.Errorf("%w: bmx280.filter: unknown filter", envsensors.ErrConfiguration)
	err = Fail(cfgErr, "")
	assert.Equal(t, ExitUsage, err.ExitCode())
	assert.Equal(t, cfgErr.Error(), err.Error())

	assert.Equal(t, ExitUsage, Usage("expected %d arguments", 2).ExitCode())
}

func TestVerbose(t *testing.T) {
	ctx := context.Background()
	assert.False(t, IsVerbose(ctx))
	assert.True(t, IsVerbose(SetVerbose(ctx, true)))
	assert.False(t, IsVerbose(SetVerbose(ctx, false)))
}
