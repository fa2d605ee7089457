package state

import (
	"strings"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/temoto/telemeter/log2"
)

func TestReadConfig(t *testing.T) {
	t.Parallel()

	type Case struct {
		name      string
		input     string
		check     func(testing.TB, *Config)
		expectErr string
	}
	cases := []Case{
		{"empty", "", func(t testing.TB, c *Config) {
			assert.Equal(t, 100*time.Millisecond, c.Interval())
			assert.Equal(t, 100*time.Millisecond, c.AnalogRefresh())
			assert.Equal(t, time.Second, c.AnalogValid())
			assert.Equal(t, 200*time.Millisecond, c.Settle())
			assert.Equal(t, []string{"a00", "a01", "a02", "a03", "a04", "a05"}, c.AnalogNames())
			assert.Equal(t, 4, c.DigitalCount())
			assert.Equal(t, []int{0, 2, 1, 3}, c.Digital.InitOrder)
			assert.Equal(t, "none", c.Analog.Driver)
			assert.Equal(t, "udp", c.Link.Driver)
			assert.Equal(t, "Meadow has connected!", c.Link.Greeting)
			assert.Equal(t, "log", c.Display.Driver)
		}, ""},

		{"full", `
pacing_ms = 50
analog {
	driver = "ads1115"
	i2c_bus = "1"
	refresh_ms = 10
	channel "temp" { input = 0 }
	channel "light" { input = 3 address = 73 }
}
digital {
	chip = "/dev/gpiochip0"
	inputs = [17, 27, 22]
	outputs = [5, 6, 13, 19]
	init_order = [3, 2, 1, 0]
	settle_ms = 500
}
link {
	driver = "tcp"
	address = "10.0.0.2:5000"
}
display { driver = "hd44780" pinmap { rs = 4 } }`,
			func(t testing.TB, c *Config) {
				assert.Equal(t, 50*time.Millisecond, c.Interval())
				assert.Equal(t, 10*time.Millisecond, c.AnalogRefresh())
				assert.Equal(t, []string{"temp", "light"}, c.AnalogNames())
				assert.Equal(t, 73, c.Analog.Channels[1].Address)
				assert.Equal(t, 3, c.DigitalCount())
				assert.Equal(t, []int{5, 6, 13, 19}, c.Digital.Outputs)
				assert.Equal(t, []int{3, 2, 1, 0}, c.Digital.InitOrder)
				assert.Equal(t, 500*time.Millisecond, c.Settle())
				assert.Equal(t, "", c.Link.Greeting)
				assert.Equal(t, "/dev/gpiochip0", c.Display.Chip)
				assert.Equal(t, 4, c.Display.Pinmap.RS)
			}, ""},

		{"mqtt", `link { driver = "mqtt" mqtt { broker = "tcp://broker:1883" topic = "meadow/telemetry" qos = 1 } }`,
			func(t testing.TB, c *Config) {
				assert.Equal(t, "tcp://broker:1883", c.Link.Mqtt.Broker)
				assert.Equal(t, "meadow/telemetry", c.Link.Mqtt.Topic)
				assert.Equal(t, 1, c.Link.Mqtt.Qos)
			}, ""},

		{"include-normalize", `
pacing_ms = 30
include "./empty" {}`,
			func(t testing.TB, c *Config) {
				assert.Equal(t, 30*time.Millisecond, c.Interval())
			}, ""},

		{"include-optional", `
include "pacing-250" {}
include "non-exist" { optional = true }`,
			func(t testing.TB, c *Config) {
				assert.Equal(t, 250*time.Millisecond, c.Interval())
			}, ""},

		{"include-overwrites", `
pacing_ms = 1
include "pacing-250" {}`,
			func(t testing.TB, c *Config) {
				assert.Equal(t, 250*time.Millisecond, c.Interval())
			}, ""},

		{"error-include-required", `include "non-exist" {}`, nil, "config required name=non-exist"},
		{"error-syntax", `hello`, nil, "key 'hello' expected start of object"},
		{"error-include-loop", `include "include-loop" {}`, nil, "config include loop: from=include-loop include=include-loop"},
		{"error-pacing", `pacing_ms = -5`, nil, "config: pacing_ms=-5"},
		{"error-analog-driver", `analog { driver = "mcp3008" }`, nil, "config: analog.driver=mcp3008"},
		{"error-analog-input", `analog { channel "x" { input = 4 } }`, nil, "config: analog.channel=x input=4"},
		{"error-analog-duplicate", `analog { channel "x" {} channel "x" {} }`, nil, "config: analog.channel=x duplicate"},
		{"error-digital-chip", `digital { inputs = [1] }`, nil, "without digital.chip"},
		{"error-outputs", `digital { chip = "/dev/gpiochip0" outputs = [1, 2] }`, nil, "config: digital.outputs length=2 expected=4"},
		{"error-init-order", `digital { init_order = [0, 1, 1, 3] }`, nil, "config: digital.init_order: output order=[0 1 1 3] index=1 not valid"},
		{"error-init-order-length", `digital { init_order = [0, 1] }`, nil, "config: digital.init_order: output order=[0 1] length=2 expected=4 not valid"},
		{"error-link-driver", `link { driver = "carrier-pigeon" }`, nil, "config: link.driver=carrier-pigeon"},
		{"error-display-chip", `display { driver = "hd44780" }`, nil, "config: display.chip"},
		{"error-display-driver", `display { driver = "vfd" }`, nil, "config: display.driver=vfd"},
	}
	mkCheck := func(c Case) func(*testing.T) {
		return func(t *testing.T) {
			log := log2.NewTest(t, log2.LDebug)
			fs := NewMockFullReader(map[string]string{
				"test-inline":  c.input,
				"empty":        "",
				"pacing-250":   "pacing_ms = 250",
				"include-loop": `include "include-loop" {}`,
			})
			cfg, err := ReadConfig(log, fs, "test-inline")
			if c.expectErr == "" {
				if err != nil {
					t.Fatalf("error expected=nil actual='%v'", errors.ErrorStack(err))
				}
				if c.check != nil {
					c.check(t, cfg)
				}
			} else {
				if err == nil || !strings.Contains(err.Error(), c.expectErr) {
					t.Fatalf("error expected='%s' actual='%v'", c.expectErr, err)
				}
			}
		}
	}
	for _, c := range cases {
		t.Run(c.name, mkCheck(c))
	}
}

func TestFunctionalBundled(t *testing.T) {
	// not Parallel
	t.Logf("this test needs OS open|read|stat access to file `../../telemeter.hcl`")

	log := log2.NewTest(t, log2.LDebug)
	c := MustReadConfig(log, NewOsFullReader(), "../../telemeter.hcl")
	assert.Len(t, c.AnalogNames(), 6)
}
