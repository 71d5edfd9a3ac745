package main

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

// fakeBus answers single register reads from a map keyed by address and
// register.
type fakeBus map[uint16]map[byte]byte

func (b fakeBus) Tx(addr uint16, w, r []byte) error {
	regs, ok := b[addr]
	if !ok {
		return errors.New("nack")
	}
	v, ok := regs[w[0]]
	if !ok {
		return errors.New("nack")
	}
	r[0] = v
	return nil
}

func TestDetect(t *testing.T) {
	bus := fakeBus{
		0x76: {0xD0: 0x60},
		0x77: {0xD0: 0x42},
		0x5A: {0x20: 0x81},
		0x40: {0xE7: 0x02},
	}
	found := detect(context.Background(), bus)
	assert.Equal(t, []detected{
		{Address: 0x76, Chip: "BME280"},
		{Address: 0x5A, Chip: "CCS811"},
		{Address: 0x40, Chip: "HTU21D"},
	}, found)

	assert.Empty(t, detect(context.Background(), fakeBus{}))
}
