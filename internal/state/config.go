package state

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/hashicorp/hcl"
	"github.com/juju/errors"
	"github.com/temoto/telemeter/hardware/analog"
	"github.com/temoto/telemeter/hardware/digital"
	"github.com/temoto/telemeter/hardware/lcd"
	"github.com/temoto/telemeter/helpers"
	"github.com/temoto/telemeter/internal/link"
	"github.com/temoto/telemeter/internal/packet"
	"github.com/temoto/telemeter/internal/sender"
	"github.com/temoto/telemeter/log2"
)

const (
	DefaultSettle     = 200 * time.Millisecond
	DefaultValidAfter = 1 * time.Second
)

type Config struct {
	// includeSeen contains absolute paths to prevent include loops
	includeSeen map[string]struct{}
	// only used for Unmarshal, do not access
	XXX_Include []ConfigSource `hcl:"include"`

	PacingMs int  `hcl:"pacing_ms"`
	LogDebug bool `hcl:"log_debug"`

	Analog struct {
		Driver    string `hcl:"driver"`
		I2CBus    string `hcl:"i2c_bus"`
		RefreshMs int    `hcl:"refresh_ms"`
		// sample older than this is counted stale
		ValidMs  int             `hcl:"valid_ms"`
		MaxMv    int             `hcl:"max_mv"`
		Channels []AnalogChannel `hcl:"channel"`
	}
	Digital struct {
		Chip     string `hcl:"chip"`
		Inputs   []int  `hcl:"inputs"`
		Outputs  []int  `hcl:"outputs"`
		SettleMs int    `hcl:"settle_ms"`
	}
	Link    link.Config `hcl:"link"`
	Display struct {
		Driver   string     `hcl:"driver"`
		Chip     string     `hcl:"chip"`
		Codepage string     `hcl:"codepage"`
		Pinmap   lcd.PinMap `hcl:"pinmap"`
		Page1    bool       `hcl:"page1"`
		Width    int        `hcl:"width"`
		ScrollMs int        `hcl:"scroll_ms"`
	}

	_copy_guard sync.Mutex //nolint:unused
}

type ConfigSource struct {
	Name     string `hcl:"name,key"`
	Optional bool   `hcl:"optional"`
}

type AnalogChannel struct {
	Name    string `hcl:"name,key"`
	Address int    `hcl:"address"`
	Input   int    `hcl:"input"`
}

func (c *Config) Interval() time.Duration {
	return helpers.IntMillisecondDefault(c.PacingMs, sender.DefaultInterval)
}
func (c *Config) AnalogRefresh() time.Duration {
	return helpers.IntMillisecondDefault(c.Analog.RefreshMs, analog.DefaultRefresh)
}
func (c *Config) AnalogValid() time.Duration {
	return helpers.IntMillisecondDefault(c.Analog.ValidMs, DefaultValidAfter)
}
func (c *Config) Settle() time.Duration {
	return helpers.IntMillisecondDefault(c.Digital.SettleMs, DefaultSettle)
}

func (c *Config) AnalogNames() []string {
	names := make([]string, len(c.Analog.Channels))
	for i, ch := range c.Analog.Channels {
		names[i] = ch.Name
	}
	return names
}

func (c *Config) DigitalCount() int {
	if c.Digital.Chip == "" || len(c.Digital.Inputs) == 0 {
		return packet.DefaultDigitalCount
	}
	return len(c.Digital.Inputs)
}

// Validate applies defaults and checks everything that does not need hardware.
func (c *Config) Validate() error {
	errs := make([]error, 0, 8)

	if c.PacingMs < 0 {
		errs = append(errs, errors.NotValidf("config: pacing_ms=%d", c.PacingMs))
	}

	switch c.Analog.Driver {
	case "":
		c.Analog.Driver = "none"
	case "none", "ads1115":
	default:
		errs = append(errs, errors.NotValidf("config: analog.driver=%s valid: ads1115, none", c.Analog.Driver))
	}
	if len(c.Analog.Channels) == 0 {
		for i := 0; i < packet.DefaultAnalogCount; i++ {
			c.Analog.Channels = append(c.Analog.Channels, AnalogChannel{Name: fmt.Sprintf("a%02d", i)})
		}
	}
	seen := make(map[string]struct{}, len(c.Analog.Channels))
	for _, ch := range c.Analog.Channels {
		if _, ok := seen[ch.Name]; ok {
			errs = append(errs, errors.NotValidf("config: analog.channel=%s duplicate", ch.Name))
		}
		seen[ch.Name] = struct{}{}
		if ch.Input < 0 || ch.Input > 3 {
			errs = append(errs, errors.NotValidf("config: analog.channel=%s input=%d", ch.Name, ch.Input))
		}
	}

	if c.Digital.Chip == "" {
		if len(c.Digital.Inputs)+len(c.Digital.Outputs) != 0 {
			errs = append(errs, errors.NotValidf("config: digital.inputs/outputs without digital.chip"))
		}
	}
	if n := len(c.Digital.Outputs); n != 0 && n != len(digital.DefaultOutputOrder) {
		errs = append(errs, errors.NotValidf("config: digital.outputs length=%d expected=%d", n, len(digital.DefaultOutputOrder)))
	}
	if len(c.Digital.InitOrder) == 0 {
		c.Digital.InitOrder = append([]int(nil), digital.DefaultOutputOrder...)
	} else if err := digital.CheckOrder(c.Digital.InitOrder, len(digital.DefaultOutputOrder)); err != nil {
		errs = append(errs, errors.Annotate(err, "config: digital.init_order"))
	}

	switch c.Link.Driver {
	case "":
		c.Link.Driver = "udp"
	case "udp", "tcp", "serial", "mqtt", "file":
	default:
		errs = append(errs, errors.NotValidf("config: link.driver=%s valid: udp, tcp, serial, mqtt, file", c.Link.Driver))
	}
	if c.Link.Greeting == "" && (c.Link.Driver == "udp") {
		c.Link.Greeting = link.DefaultGreeting
	}

	switch c.Display.Driver {
	case "":
		c.Display.Driver = "log"
	case "none", "log":
	case "hd44780":
		if c.Display.Chip == "" {
			c.Display.Chip = c.Digital.Chip
		}
		if c.Display.Chip == "" {
			errs = append(errs, errors.NotValidf("config: display.chip"))
		}
	default:
		errs = append(errs, errors.NotValidf("config: display.driver=%s valid: hd44780, log, none", c.Display.Driver))
	}

	return helpers.FoldErrors(errs)
}

func (c *Config) read(log *log2.Log, fs FullReader, source ConfigSource, errs *[]error) {
	norm := fs.Normalize(source.Name)
	if _, ok := c.includeSeen[norm]; ok {
		*errs = append(*errs, errors.Errorf("config duplicate source=%s", source.Name))
		return
	}
	log.Debugf("config reading source='%s' path=%s", source.Name, norm)
	c.includeSeen[source.Name] = struct{}{}
	c.includeSeen[norm] = struct{}{}

	bs, err := fs.ReadAll(norm)
	if bs == nil && err == nil {
		if !source.Optional {
			err = errors.NotFoundf("config required name=%s path=%s", source.Name, norm)
			*errs = append(*errs, err)
		}
		return
	}
	if err != nil {
		*errs = append(*errs, errors.Annotatef(err, "config source=%s", source.Name))
		return
	}

	err = hcl.Unmarshal(bs, c)
	if err != nil {
		err = errors.Annotatef(err, "config unmarshal source=%s content='%s'", source.Name, string(bs))
		*errs = append(*errs, err)
		return
	}

	var includes []ConfigSource
	includes, c.XXX_Include = c.XXX_Include, nil
	for _, include := range includes {
		includeNorm := fs.Normalize(include.Name)
		if _, ok := c.includeSeen[includeNorm]; ok {
			err = errors.Errorf("config include loop: from=%s include=%s", source.Name, include.Name)
			*errs = append(*errs, err)
			continue
		}
		c.read(log, fs, include, errs)
	}
}

func ReadConfig(log *log2.Log, fs FullReader, names ...string) (*Config, error) {
	if len(names) == 0 {
		log.Fatal("code error [Must]ReadConfig() without names")
	}

	if osfs, ok := fs.(*OsFullReader); ok {
		dir, name := filepath.Split(names[0])
		osfs.SetBase(dir)
		names[0] = name
	}
	c := &Config{
		includeSeen: make(map[string]struct{}),
	}
	errs := make([]error, 0, 8)
	for _, name := range names {
		c.read(log, fs, ConfigSource{Name: name}, &errs)
	}
	if len(errs) == 0 {
		if err := c.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return c, helpers.FoldErrors(errs)
}

func MustReadConfig(log *log2.Log, fs FullReader, names ...string) *Config {
	c, err := ReadConfig(log, fs, names...)
	if err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
	return c
}
