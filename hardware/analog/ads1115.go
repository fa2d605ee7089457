package analog

import (
	"sync"

	"github.com/juju/errors"
	"periph.io/x/periph/conn/i2c"
	"periph.io/x/periph/conn/i2c/i2creg"
	"periph.io/x/periph/conn/physic"
	"periph.io/x/periph/experimental/devices/ads1x15"
	"periph.io/x/periph/host"
)

const (
	DefaultI2CAddress = 0x48
	DefaultMaxMv      = 4096
	defaultFrequency  = 128 * physic.Hertz
)

var singleEnded = [4]ads1x15.Channel{ads1x15.Channel0, ads1x15.Channel1, ads1x15.Channel2, ads1x15.Channel3}

var hostInit struct {
	sync.Once
	err error
}

// ADS1115 is one converter chip, four single ended inputs.
// Conversions on one chip are serialized by the driver.
type ADS1115 struct {
	dev   *ads1x15.Dev
	pins  [4]ads1x15.PinADC
	maxMv int32
}

func OpenBus(name string) (i2c.BusCloser, error) {
	hostInit.Do(func() {
		_, hostInit.err = host.Init()
	})
	if hostInit.err != nil {
		return nil, errors.Annotate(hostInit.err, "periph host init")
	}
	bus, err := i2creg.Open(name)
	if err != nil {
		return nil, errors.Annotatef(err, "i2c open bus=%s", name)
	}
	return bus, nil
}

func NewADS1115(bus i2c.Bus, address uint16, maxMv int32) (*ADS1115, error) {
	if address == 0 {
		address = DefaultI2CAddress
	}
	if maxMv <= 0 {
		maxMv = DefaultMaxMv
	}
	dev, err := ads1x15.NewADS1115(bus, &ads1x15.Opts{I2cAddress: address})
	if err != nil {
		return nil, errors.Annotatef(err, "ads1115 address=%#x", address)
	}
	return &ADS1115{dev: dev, maxMv: maxMv}, nil
}

// Input returns Reader for single ended input 0-3.
func (self *ADS1115) Input(input int) (Reader, error) {
	if input < 0 || input >= len(singleEnded) {
		return nil, errors.NotValidf("ads1115 input=%d", input)
	}
	if self.pins[input] == nil {
		pin, err := self.dev.PinForChannel(singleEnded[input], physic.ElectricPotential(self.maxMv)*physic.MilliVolt, defaultFrequency, ads1x15.BestQuality)
		if err != nil {
			return nil, errors.Annotatef(err, "ads1115 input=%d", input)
		}
		self.pins[input] = pin
	}
	pin := self.pins[input]
	return ReaderFunc(func() (int32, error) {
		sample, err := pin.Read()
		if err != nil {
			return 0, err
		}
		return int32(sample.V / physic.MilliVolt), nil
	}), nil
}

func (self *ADS1115) Close() error {
	var first error
	for _, p := range self.pins {
		if p != nil {
			if err := p.Halt(); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}
