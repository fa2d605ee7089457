// Package channel is the shared state between samplers and the transmit loop.
// Analog channels are independent atomic cells, latest value wins.
// Digital inputs are not cached, every read goes to hardware.
package channel

import (
	"fmt"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/telemeter/helpers/cacheval"
	"github.com/temoto/telemeter/internal/packet"
)

type DigitalReader interface {
	ReadInputs() ([]bool, error)
}

type Cache struct {
	names        []string
	cells        []cacheval.Int32
	inputs       DigitalReader
	digitalCount int
}

// New cache with one cell per analog name, in packet order.
// valid is the age after which a reading is reported stale.
// inputs may be nil, then all digital flags read false.
func New(analogNames []string, valid time.Duration, inputs DigitalReader, digitalCount int) *Cache {
	c := &Cache{
		names:        append([]string(nil), analogNames...),
		cells:        make([]cacheval.Int32, len(analogNames)),
		inputs:       inputs,
		digitalCount: digitalCount,
	}
	for i := range c.cells {
		c.cells[i].Init(valid)
	}
	return c
}

func (c *Cache) AnalogCount() int  { return len(c.cells) }
func (c *Cache) DigitalCount() int { return c.digitalCount }
func (c *Cache) AnalogName(ch int) string {
	c.mustChannel(ch)
	return c.names[ch]
}

func (c *Cache) SetMillivolts(ch int, mv int32) {
	c.mustChannel(ch)
	c.cells[ch].Set(mv)
}

func (c *Cache) Millivolts(ch int) int32 {
	c.mustChannel(ch)
	return c.cells[ch].Get()
}

// Analog returns wire form of the channel, exactly 4 digits.
func (c *Cache) Analog(ch int) string { return packet.FormatMillivolts(c.Millivolts(ch)) }

func (c *Cache) Fresh(ch int) bool {
	c.mustChannel(ch)
	_, ok := c.cells[ch].GetFresh()
	return ok
}

// Age since last sample, 0 if never sampled.
func (c *Cache) Age(ch int) time.Duration {
	c.mustChannel(ch)
	return c.cells[ch].Age()
}

// Digital reads input pins in packet order.
func (c *Cache) Digital() ([]bool, error) {
	if c.inputs == nil {
		return make([]bool, c.digitalCount), nil
	}
	values, err := c.inputs.ReadInputs()
	if err != nil {
		return nil, err
	}
	if len(values) != c.digitalCount {
		return nil, errors.Errorf("digital inputs read=%d expected=%d", len(values), c.digitalCount)
	}
	return values, nil
}

func (c *Cache) mustChannel(ch int) {
	if ch < 0 || ch >= len(c.cells) {
		panic(fmt.Sprintf("code error analog channel=%d count=%d", ch, len(c.cells)))
	}
}
