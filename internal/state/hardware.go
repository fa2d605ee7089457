package state

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/juju/errors"
	gpio "github.com/temoto/gpio-cdev-go"
	"github.com/temoto/telemeter/hardware/analog"
	"github.com/temoto/telemeter/hardware/digital"
	"github.com/temoto/telemeter/hardware/lcd"
	"github.com/temoto/telemeter/hardware/text_display"
	"github.com/temoto/telemeter/helpers"
	"github.com/temoto/telemeter/log2"
)

// Fields may be set before Init to substitute hardware in tests.
type hardware struct {
	Chip struct {
		once
		Chip gpio.Chiper
	}
	Digital struct {
		once
		Bank *digital.Bank
	}
	Analog struct {
		once
		Readers []analog.Reader
		closers []io.Closer
	}
	HD44780 struct {
		once
		Device  *lcd.LCD
		Display *text_display.TextDisplay
	}
}

func (g *Global) GpioChip() (gpio.Chiper, error) {
	x := &g.Hardware.Chip // short alias
	_ = x.do(func() error {
		if x.Chip != nil {
			return nil
		}
		path := g.Config.Digital.Chip
		if path == "" {
			path = g.Config.Display.Chip
		}
		if path == "" {
			return nil
		}
		x.Chip, x.err = digital.OpenChip(path)
		return x.err
	})
	return x.Chip, x.err
}

// DigitalBank returns nil,nil without configured chip.
func (g *Global) DigitalBank() (*digital.Bank, error) {
	x := &g.Hardware.Digital // short alias
	_ = x.do(func() error {
		if x.Bank != nil {
			return nil
		}
		cfg := &g.Config.Digital
		if cfg.Chip == "" {
			g.Log.Infof("digital inputs disabled, sending zeros")
			return nil
		}
		chip, err := g.GpioChip()
		if err != nil {
			return err
		}
		x.Bank, x.err = digital.Open(chip, offsets(cfg.Inputs), offsets(cfg.Outputs), g.Log)
		return errors.Annotatef(x.err, "config: digital chip=%s", cfg.Chip)
	})
	return x.Bank, x.err
}

// AnalogReaders returns one Reader per configured channel, nil for driver=none.
func (g *Global) AnalogReaders() ([]analog.Reader, error) {
	x := &g.Hardware.Analog // short alias
	_ = x.do(func() error {
		if x.Readers != nil {
			return nil
		}
		cfg := &g.Config.Analog
		x.Readers = make([]analog.Reader, len(cfg.Channels))
		if cfg.Driver != "ads1115" {
			g.Log.Infof("analog driver=%s channels are not sampled", cfg.Driver)
			return nil
		}

		bus, err := analog.OpenBus(cfg.I2CBus)
		if err != nil {
			return err
		}
		x.closers = append(x.closers, bus)
		chips := make(map[uint16]*analog.ADS1115)
		for i, ch := range cfg.Channels {
			address := uint16(ch.Address)
			if address == 0 {
				address = analog.DefaultI2CAddress
			}
			adc, ok := chips[address]
			if !ok {
				if adc, err = analog.NewADS1115(bus, address, int32(cfg.MaxMv)); err != nil {
					return errors.Annotatef(err, "config: analog.channel=%s", ch.Name)
				}
				chips[address] = adc
				x.closers = append(x.closers, adc)
			}
			if x.Readers[i], err = adc.Input(ch.Input); err != nil {
				return errors.Annotatef(err, "config: analog.channel=%s", ch.Name)
			}
		}
		return nil
	})
	return x.Readers, x.err
}

// TextDisplay returns nil,nil with display.driver=none.
func (g *Global) TextDisplay() (*text_display.TextDisplay, error) {
	x := &g.Hardware.HD44780
	_ = x.do(func() error {
		if x.Display != nil {
			return nil
		}

		cfg := &g.Config.Display
		displayConfig := &text_display.TextDisplayConfig{
			Width:       uint32(cfg.Width),
			Codepage:    cfg.Codepage,
			ScrollDelay: time.Duration(cfg.ScrollMs) * time.Millisecond,
		}
		var dev text_display.Devicer
		switch cfg.Driver {
		case "none":
			return nil
		case "log":
		case "hd44780":
			chip, err := g.GpioChip()
			if err != nil {
				return err
			}
			if x.Device, err = lcd.Open(chip, cfg.Pinmap, cfg.Page1); err != nil {
				return errors.Annotatef(err, "config: display pinmap=%v", cfg.Pinmap)
			}
			dev = x.Device
		}
		disp, err := text_display.NewTextDisplay(displayConfig, dev, g.Log.Clone(log2.LInfo))
		if err != nil {
			return errors.Annotatef(err, "NewTextDisplay config=%#v", displayConfig)
		}
		x.Display = disp
		return nil
	})
	return x.Display, x.err
}

// openHardware opens independent devices concurrently, chip is shared via once.
// Each error is tagged with device name.
func (g *Global) openHardware(ctx context.Context) error {
	devices := []struct {
		name string
		open func() error
	}{
		{"display", func() error { _, err := g.TextDisplay(); return err }},
		{"digital", func() error { _, err := g.DigitalBank(); return err }},
		{"analog", func() error { _, err := g.AnalogReaders(); return err }},
	}
	errs := make([]error, len(devices))
	wg := sync.WaitGroup{}
	for i := range devices {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := devices[i].open(); err != nil {
				errs[i] = errors.Annotatef(err, "open %s", devices[i].name)
			}
		}(i)
	}
	wg.Wait()
	if err := helpers.FoldErrors(errs); err != nil {
		return err
	}
	return ctx.Err()
}

func (g *Global) closeHardware() error {
	closers := make([]io.Closer, 0, 8)
	if d := g.Hardware.HD44780.Device; d != nil {
		closers = append(closers, d)
	}
	if b := g.Hardware.Digital.Bank; b != nil {
		// bank closes chip
		closers = append(closers, b)
	} else if c := g.Hardware.Chip.Chip; c != nil {
		closers = append(closers, c)
	}
	for i := len(g.Hardware.Analog.closers) - 1; i >= 0; i-- {
		closers = append(closers, g.Hardware.Analog.closers[i])
	}
	errs := make([]error, len(closers))
	for i, c := range closers {
		errs[i] = c.Close()
	}
	return helpers.FoldErrors(errs)
}

func offsets(xs []int) []uint32 {
	result := make([]uint32, len(xs))
	for i, x := range xs {
		result[i] = uint32(x)
	}
	return result
}

type once struct {
	sync.Mutex
	called uint32 // atomic bool
	err    error
}

func (o *once) done() bool {
	return atomic.LoadUint32(&o.called) == 1
}

func (o *once) do(f func() error) error {
	if o.done() { // fast path
		return o.err
	}
	o.Lock()
	defer o.Unlock()
	if o.done() {
		return o.err
	}
	o.err = f()
	atomic.StoreUint32(&o.called, 1)
	return o.err
}
