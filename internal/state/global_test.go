package state

import (
	"context"
	"fmt"
	"io/ioutil"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gpio "github.com/temoto/gpio-cdev-go"
	gpio_mock "github.com/temoto/gpio-cdev-go/mock"
	"github.com/temoto/telemeter/hardware/analog"
	"github.com/temoto/telemeter/internal/packet"
	"github.com/temoto/telemeter/log2"
)

func readPackets(t testing.TB, path string) []packet.Frame {
	b, err := ioutil.ReadFile(path)
	require.NoError(t, err)
	const size = 39
	require.Equal(t, 0, len(b)%size, "content=%q", b)
	result := make([]packet.Frame, 0, len(b)/size)
	for i := 0; i < len(b); i += size {
		f, err := packet.Verify(b[i:i+size], packet.DefaultAnalogCount, packet.DefaultDigitalCount)
		require.NoError(t, err)
		result = append(result, f)
	}
	return result
}

func TestRunFileLink(t *testing.T) {
	t.Parallel()

	out := filepath.Join(t.TempDir(), "packets")
	ctx, g := NewTestContext(t, fmt.Sprintf(`
pacing_ms = 10
link { driver = "file" address = "%s" }`, out))
	g.Cache.SetMillivolts(0, 1234)
	g.Cache.SetMillivolts(5, 12345)

	require.NoError(t, g.InitOutputs(ctx))
	require.NoError(t, g.OpenLink(ctx))
	ctx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()
	require.NoError(t, g.Run(ctx))
	require.NoError(t, g.Close())

	frames := readPackets(t, out)
	require.True(t, len(frames) >= 5, "packets=%d", len(frames))
	for i, f := range frames {
		assert.Equal(t, uint16(i), f.Seq)
		assert.Equal(t, []int32{1234, 0, 0, 0, 0, 9999}, f.Millivolts)
		assert.Equal(t, []bool{false, false, false, false}, f.Inputs)
	}
	st := g.Sender.Stat()
	assert.Equal(t, uint32(len(frames)), st.Sent)
	l1, l2 := g.StatusLines()
	assert.Equal(t, fmt.Sprintf("seq=%03d", st.LastSeq), l1)
	assert.Equal(t, fmt.Sprintf("ok=%d err=0", st.Sent), l2)
}

func TestRunStop(t *testing.T) {
	t.Parallel()

	out := filepath.Join(t.TempDir(), "packets")
	ctx, g := NewTestContext(t, fmt.Sprintf(`
pacing_ms = 5000
link { driver = "file" address = "%s" }`, out))
	require.NoError(t, g.OpenLink(ctx))
	g.NewSender()
	done := make(chan error)
	go func() { done <- g.Run(ctx) }()
	require.Eventually(t, func() bool { return g.Sender.Stat().Sent == 1 },
		time.Second, 5*time.Millisecond)
	g.Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
	assert.NoError(t, g.Close())
	assert.Len(t, readPackets(t, out), 1)
}

func TestOpenLinkProblem(t *testing.T) {
	t.Parallel()

	ctx, g := NewTestContext(t, `link { driver = "file" address = "/nonexistent/dir/packets" }`)
	err := g.OpenLink(ctx)
	require.Error(t, err)
	d, _ := g.TextDisplay()
	assert.Equal(t, MsgProblem, string(d.Lines()[0]))
	assert.Nil(t, g.Link)
	assert.NoError(t, g.Close())
}

// Mock chip: inputs 1..4, outputs A..D on 5..8.
func TestDigitalHardware(t *testing.T) {
	t.Parallel()

	log := log2.NewTest(t, log2.LDebug)
	fs := NewMockFullReader(map[string]string{"test-inline": fmt.Sprintf(`
pacing_ms = 10
digital { chip = "/dev/gpiochip-mock" inputs = [1, 2, 3, 4] outputs = [5, 6, 7, 8] settle_ms = 1 }
link { driver = "file" address = "%s" }`, filepath.Join(t.TempDir(), "packets"))})
	cfg, err := ReadConfig(log, fs, "test-inline")
	require.NoError(t, err)

	set := make(chan string, 8)
	inLines := &gpio_mock.MockLines{}
	data := gpio.HandleData{}
	data.Values[0] = 1
	data.Values[3] = 1
	inLines.On("Read").Return(data, nil)
	inLines.On("Close").Return(nil)
	outLines := &gpio_mock.MockLines{}
	for _, o := range []uint32{5, 6, 7, 8} {
		o := o
		outLines.On("SetFunc", o).Return(gpio.LineSetFunc(func(v byte) { set <- fmt.Sprintf("%d=%d", o, v) }))
	}
	outLines.On("SetBulk", byte(0), byte(0), byte(0), byte(0)).Return()
	outLines.On("Flush").Return(nil)
	outLines.On("Close").Return(nil)
	chip := &gpio_mock.MockChip{}
	chip.On("OpenLines", gpio.GPIOHANDLE_REQUEST_INPUT, "telemeter-in", uint32(1), uint32(2), uint32(3), uint32(4)).Return(inLines, nil)
	chip.On("OpenLines", gpio.GPIOHANDLE_REQUEST_OUTPUT, "telemeter-out", uint32(5), uint32(6), uint32(7), uint32(8)).Return(outLines, nil)
	chip.On("Close").Return(nil)

	ctx, g := NewContext(log)
	g.Hardware.Chip.Chip = chip
	g.Hardware.Analog.Readers = []analog.Reader{
		analog.ReaderFunc(func() (int32, error) { return 3300, nil }),
		nil, nil, nil, nil,
		analog.ReaderFunc(func() (int32, error) { return 42, nil }),
	}
	require.NoError(t, g.Init(ctx, cfg))
	require.NoError(t, g.InitOutputs(ctx))
	close(set)
	order := []string{}
	for s := range set {
		order = append(order, s)
	}
	// A C B D
	assert.Equal(t, []string{"5=1", "7=1", "6=1", "8=1"}, order)

	require.NoError(t, g.OpenLink(ctx))
	ctx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	require.NoError(t, g.Run(ctx))
	require.NoError(t, g.Close())

	frames := readPackets(t, cfg.Link.Address)
	require.NotEmpty(t, frames)
	last := frames[len(frames)-1]
	assert.Equal(t, []int32{3300, 0, 0, 0, 0, 42}, last.Millivolts)
	assert.Equal(t, []bool{true, false, false, true}, last.Inputs)
	inLines.AssertCalled(t, "Close")
	outLines.AssertCalled(t, "Close")
	chip.AssertCalled(t, "Close")
}

func TestInitOutputsOrder(t *testing.T) {
	t.Parallel()

	type Case struct {
		name   string
		order  string
		expect []string
	}
	cases := []Case{
		// A C B D: firmware lines D06 D08 D07 D09
		{"default", "", []string{"6=1", "8=1", "7=1", "9=1"}},
		{"reverse", "init_order = [3, 2, 1, 0]", []string{"9=1", "8=1", "7=1", "6=1"}},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			log := log2.NewTest(t, log2.LDebug)
			fs := NewMockFullReader(map[string]string{"test-inline": fmt.Sprintf(`
digital { chip = "/dev/gpiochip-mock" outputs = [6, 7, 8, 9] settle_ms = 1 %s }`, c.order)})
			cfg, err := ReadConfig(log, fs, "test-inline")
			require.NoError(t, err)

			set := make(chan string, 8)
			outLines := &gpio_mock.MockLines{}
			for _, o := range []uint32{6, 7, 8, 9} {
				o := o
				outLines.On("SetFunc", o).Return(gpio.LineSetFunc(func(v byte) { set <- fmt.Sprintf("%d=%d", o, v) }))
			}
			outLines.On("SetBulk", byte(0), byte(0), byte(0), byte(0)).Return()
			outLines.On("Flush").Return(nil)
			outLines.On("Close").Return(nil)
			chip := &gpio_mock.MockChip{}
			chip.On("OpenLines", gpio.GPIOHANDLE_REQUEST_OUTPUT, "telemeter-out", uint32(6), uint32(7), uint32(8), uint32(9)).Return(outLines, nil)
			chip.On("Close").Return(nil)

			ctx, g := NewContext(log)
			g.Hardware.Chip.Chip = chip
			require.NoError(t, g.Init(ctx, cfg))
			require.NoError(t, g.InitOutputs(ctx))
			close(set)
			order := []string{}
			for s := range set {
				order = append(order, s)
			}
			assert.Equal(t, c.expect, order)
			assert.NoError(t, g.Close())
			outLines.AssertCalled(t, "Close")
		})
	}
}

func TestInitHardwareError(t *testing.T) {
	t.Parallel()

	log := log2.NewTest(t, log2.LDebug)
	fs := NewMockFullReader(map[string]string{"test-inline": `
digital { chip = "/dev/gpiochip-mock" inputs = [1, 2, 3, 4] }`})
	cfg, err := ReadConfig(log, fs, "test-inline")
	require.NoError(t, err)

	chip := &gpio_mock.MockChip{}
	chip.On("OpenLines", gpio.GPIOHANDLE_REQUEST_INPUT, "telemeter-in", uint32(1), uint32(2), uint32(3), uint32(4)).
		Return((*gpio_mock.MockLines)(nil), fmt.Errorf("device busy"))
	chip.On("Close").Return(nil)

	ctx, g := NewContext(log)
	g.Hardware.Chip.Chip = chip
	err = g.Init(ctx, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open digital")
	assert.Contains(t, err.Error(), "device busy")
	assert.NotContains(t, err.Error(), "open display")
	assert.NotContains(t, err.Error(), "open analog")
}
