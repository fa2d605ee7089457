// Package digital drives the discrete input and output lines over Linux GPIO character device.
package digital

import (
	"context"
	"io"
	"time"

	"github.com/juju/errors"
	gpio "github.com/temoto/gpio-cdev-go"
	"github.com/temoto/telemeter/helpers"
	"github.com/temoto/telemeter/log2"
)

const consumerLabel = "telemeter"

// Output lines are raised in this order: A, C, B, D.
var DefaultOutputOrder = []int{0, 2, 1, 3}

// CheckOrder accepts only a permutation of 0..n-1.
func CheckOrder(order []int, n int) error {
	if len(order) != n {
		return errors.NotValidf("output order=%v length=%d expected=%d", order, len(order), n)
	}
	seen := make([]bool, n)
	for _, index := range order {
		if index < 0 || index >= n || seen[index] {
			return errors.NotValidf("output order=%v index=%d", order, index)
		}
		seen[index] = true
	}
	return nil
}

func OpenChip(path string) (gpio.Chiper, error) {
	chip, err := gpio.Open(path, consumerLabel)
	if err != nil {
		return nil, errors.Annotatef(err, "gpio open chip=%s", path)
	}
	return chip, nil
}

// InputBank satisfies channel.DigitalReader.
type InputBank struct {
	lines   gpio.Lineser
	offsets []uint32
}

func OpenInputs(chip gpio.Chiper, offsets []uint32) (*InputBank, error) {
	if len(offsets) == 0 {
		return nil, errors.NotValidf("digital inputs empty list")
	}
	lines, err := chip.OpenLines(gpio.GPIOHANDLE_REQUEST_INPUT, consumerLabel+"-in", offsets...)
	if err != nil {
		return nil, errors.Annotatef(err, "gpio open inputs=%v", offsets)
	}
	return &InputBank{lines: lines, offsets: offsets}, nil
}

func (self *InputBank) Len() int { return len(self.offsets) }

// ReadInputs returns one level per configured line, in configuration order.
func (self *InputBank) ReadInputs() ([]bool, error) {
	data, err := self.lines.Read()
	if err != nil {
		return nil, errors.Annotate(err, "gpio read inputs")
	}
	result := make([]bool, len(self.offsets))
	for i := range result {
		result[i] = data.Values[i] != 0
	}
	return result, nil
}

func (self *InputBank) Close() error { return self.lines.Close() }

type OutputBank struct {
	log     *log2.Log
	lines   gpio.Lineser
	offsets []uint32
	setters []gpio.LineSetFunc
}

// OpenOutputs requests lines as outputs and drives them all low.
func OpenOutputs(chip gpio.Chiper, offsets []uint32, log *log2.Log) (*OutputBank, error) {
	if len(offsets) == 0 {
		return nil, errors.NotValidf("digital outputs empty list")
	}
	lines, err := chip.OpenLines(gpio.GPIOHANDLE_REQUEST_OUTPUT, consumerLabel+"-out", offsets...)
	if err != nil {
		return nil, errors.Annotatef(err, "gpio open outputs=%v", offsets)
	}
	self := &OutputBank{
		log:     log,
		lines:   lines,
		offsets: offsets,
		setters: make([]gpio.LineSetFunc, len(offsets)),
	}
	for i, o := range offsets {
		self.setters[i] = lines.SetFunc(o)
	}
	self.lines.SetBulk(make([]byte, len(offsets))...)
	if err = self.lines.Flush(); err != nil {
		_ = lines.Close()
		return nil, errors.Annotate(err, "gpio outputs initial low")
	}
	return self, nil
}

func (self *OutputBank) Set(index int, high bool) error {
	if index < 0 || index >= len(self.setters) {
		return errors.NotValidf("output index=%d", index)
	}
	var v byte
	if high {
		v = 1
	}
	self.setters[index](v)
	return errors.Annotatef(self.lines.Flush(), "gpio set line=%d", self.offsets[index])
}

// Init raises outputs one by one in given order, waiting settle before each.
// Stops early when ctx is done, leaving remaining lines low.
func (self *OutputBank) Init(ctx context.Context, order []int, settle time.Duration) error {
	if err := CheckOrder(order, len(self.setters)); err != nil {
		return err
	}
	for _, index := range order {
		tmr := time.NewTimer(settle)
		select {
		case <-tmr.C:
		case <-ctx.Done():
			tmr.Stop()
			return ctx.Err()
		}
		if err := self.Set(index, true); err != nil {
			return err
		}
		self.log.Debugf("output index=%d line=%d high", index, self.offsets[index])
	}
	return nil
}

func (self *OutputBank) Close() error { return self.lines.Close() }

// Bank owns the chip and both line groups for resource cleanup.
type Bank struct {
	Chip    gpio.Chiper
	Inputs  *InputBank
	Outputs *OutputBank
}

func Open(chip gpio.Chiper, inputs, outputs []uint32, log *log2.Log) (*Bank, error) {
	b := &Bank{Chip: chip}
	var err error
	if len(inputs) != 0 {
		if b.Inputs, err = OpenInputs(chip, inputs); err != nil {
			_ = b.Close()
			return nil, err
		}
	}
	if len(outputs) != 0 {
		if b.Outputs, err = OpenOutputs(chip, outputs, log); err != nil {
			_ = b.Close()
			return nil, err
		}
	}
	return b, nil
}

func (b *Bank) Close() error {
	closers := []io.Closer{}
	if b.Inputs != nil {
		closers = append(closers, b.Inputs)
	}
	if b.Outputs != nil {
		closers = append(closers, b.Outputs)
	}
	if b.Chip != nil {
		closers = append(closers, b.Chip)
	}
	errs := make([]error, len(closers))
	for i, c := range closers {
		errs[i] = c.Close()
	}
	return helpers.FoldErrors(errs)
}
