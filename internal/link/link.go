// Package link delivers finished packets to the receiving side.
// Connection is established once at startup, after that only Write is used.
package link

import (
	"context"
	"io"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/telemeter/hardware/serial"
	"github.com/temoto/telemeter/helpers"
	"github.com/temoto/telemeter/log2"
)

const (
	DefaultTimeout  = 3 * time.Second
	DefaultGreeting = "Meadow has connected!"
)

type Sink interface {
	// Write sends one whole packet. Must not retain b.
	Write(b []byte) error
	Close() error
}

type Config struct {
	Driver    string        `hcl:"driver"`
	Address   string        `hcl:"address"`
	Greeting  string        `hcl:"greeting"`
	TimeoutMs int           `hcl:"timeout_ms"`
	Serial    serial.Config `hcl:"serial"`
	Mqtt      MqttConfig    `hcl:"mqtt"`
}

func (c *Config) Timeout() time.Duration {
	return helpers.IntMillisecondDefault(c.TimeoutMs, DefaultTimeout)
}

// Open establishes link and sends greeting, if configured.
func Open(ctx context.Context, c Config, log *log2.Log) (Sink, error) {
	var s Sink
	var err error
	switch c.Driver {
	case "udp", "":
		s, err = DialUDP(ctx, c.Address, c.Timeout())
	case "tcp":
		s, err = DialTCP(ctx, c.Address, c.Timeout(), log)
	case "serial":
		s, err = OpenSerial(c.Serial)
	case "mqtt":
		s, err = DialMqtt(c.Mqtt, c.Timeout(), log)
	case "file":
		s, err = OpenFile(c.Address)
	default:
		return nil, errors.NotValidf("link driver=%s", c.Driver)
	}
	if err != nil {
		return nil, errors.Annotatef(err, "link driver=%s", c.Driver)
	}
	if c.Greeting != "" {
		if err = s.Write([]byte(c.Greeting)); err != nil {
			_ = s.Close()
			return nil, errors.Annotate(err, "link greeting")
		}
		log.Debugf("link greeting sent %q", c.Greeting)
	}
	return s, nil
}

// WriterSink adapts io.WriteCloser, short writes are retried.
type WriterSink struct {
	w io.WriteCloser
}

func NewWriterSink(w io.WriteCloser) *WriterSink { return &WriterSink{w: w} }

func (self *WriterSink) Write(b []byte) error { return helpers.WriteAll(self.w, b) }
func (self *WriterSink) Close() error         { return self.w.Close() }

func OpenSerial(c serial.Config) (Sink, error) {
	p, err := serial.Open(c)
	if err != nil {
		return nil, err
	}
	return NewWriterSink(p), nil
}
