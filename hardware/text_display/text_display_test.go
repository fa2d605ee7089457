package text_display

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/telemeter/log2"
)

func TestWrap(t *testing.T) {
	t.Parallel()

	const width = 16
	spaces := strings.Repeat(" ", MaxWidth*2)
	canonical := func(input string, tick int) string {
		gap := width / 2
		length := len(input)
		if length <= width {
			return (input + spaces)[:width]
		}
		help := input + spaces[:gap] + input
		offset := tick % (length + gap)
		return help[offset : offset+width]
	}

	type Case struct {
		name  string
		input string
	}
	cases := []Case{
		{"short", "foobar"},
		{"full", "full-length-line"},
		{"long1", "too-much-very-long-line"},
		{"long2", "too-much-very-long-line1;too-much-very-long-line2"},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			for tick := 0; tick < len(c.input)*3; tick++ {
				var buf [width]byte
				window(buf[:], []byte(c.input), tick)
				expect := canonical(c.input, tick)
				result := string(buf[:])
				if result != expect {
					t.Errorf("input=(%d)'%s' tick=%d expected=(%d)'%s' actual=(%d)'%s'",
						len(c.input), c.input, tick, len(expect), expect, len(result), result)
				}
			}
		})
	}
}

func TestSetLinesLog(t *testing.T) {
	t.Parallel()

	var logged []string
	log := log2.NewFunc(func(format string, args ...interface{}) {
		logged = append(logged, fmt.Sprintf(format, args...))
	}, log2.LInfo)
	log.SetFlags(0)
	d, err := NewTextDisplay(&TextDisplayConfig{Width: 16}, nil, log)
	require.NoError(t, err)
	d.SetLines("Connecting...", "")
	d.SetLines("Connecting...", "")
	d.SetLines("Connected.", "sent 1")
	assert.Equal(t, []string{"display.L1=Connecting...", "display.L1=Connected.", "display.L2=sent 1"}, logged)
	assert.Equal(t, "Connected.\nsent 1", d.Lines().String())
}

func TestScrollRun(t *testing.T) {
	t.Parallel()

	d, dev := NewMockTextDisplay(&TextDisplayConfig{Width: 4, ScrollDelay: time.Millisecond})
	d.SetLines("abcdef", "xy")
	assert.Equal(t, "abcd\nxy  ", dev.String())
	go d.Run()
	require.Eventually(t, func() bool { return dev.String() != "abcd\nxy  " }, time.Second, time.Millisecond)
	d.Stop()
	assert.Equal(t, "xy  ", strings.Split(dev.String(), "\n")[1])
	assert.Equal(t, "abcdef\nxy", d.Lines().String())
	d.Clear()
	assert.Equal(t, "    \n    ", dev.String())
	assert.Equal(t, "\n", d.Lines().String())
	assert.Equal(t, 1, dev.clears)
}

// Short lines never redraw on scroll tick.
func TestScrollShortIdle(t *testing.T) {
	t.Parallel()

	d, dev := NewMockTextDisplay(&TextDisplayConfig{Width: 8})
	d.SetLines("ok", "seq=001")
	dev.writes = 0
	d.step()
	d.step()
	assert.Equal(t, 0, dev.writes)
	assert.Equal(t, "ok      \nseq=001 ", dev.String())
}

func TestCodepage(t *testing.T) {
	t.Parallel()

	d, dev := NewMockTextDisplay(&TextDisplayConfig{Width: 4, Codepage: "windows-1251"})
	d.SetLines("мир", "ok")
	assert.Equal(t, Lines{{0xec, 0xe8, 0xf0}, []byte("ok")}, d.Lines())
	assert.Equal(t, "\xec\xe8\xf0 \nok  ", dev.String())
}

func TestConfigErrors(t *testing.T) {
	t.Parallel()

	_, err := NewTextDisplay(&TextDisplayConfig{Codepage: "no-such-codepage"}, nil, nil)
	assert.Error(t, err)
	_, err = NewTextDisplay(&TextDisplayConfig{Width: 41}, nil, nil)
	assert.Error(t, err)
}
