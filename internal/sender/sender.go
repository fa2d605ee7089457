// Package sender is the transmit loop: a five state machine that builds one
// packet per cycle from the channel cache and hands it to the link,
// paced on a fixed deadline grid.
package sender

import (
	"context"
	"fmt"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/telemeter/internal/packet"
	"github.com/temoto/telemeter/log2"
)

const DefaultInterval = 100 * time.Millisecond

type State uint8

const (
	StateStart State = iota
	StateAnalog
	StateDigital
	StateFinalize
	StateTransmit
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateAnalog:
		return "analog"
	case StateDigital:
		return "digital"
	case StateFinalize:
		return "finalize"
	case StateTransmit:
		return "transmit"
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// Source is what the loop reads every cycle, see channel.Cache.
type Source interface {
	AnalogCount() int
	DigitalCount() int
	Millivolts(ch int) int32
	Fresh(ch int) bool
	Digital() ([]bool, error)
}

// Sink accepts one complete packet. Must not retain b after return.
type Sink interface {
	Write(b []byte) error
}

type Config struct {
	Interval time.Duration
}

type Sender struct {
	config  Config
	log     *log2.Log
	source  Source
	sink    Sink
	clock   Clock
	builder *packet.Builder

	state    State
	seq      packet.Sequence
	current  uint16
	frame    []byte
	deadline time.Time
	stat     Stat
}

func New(config Config, log *log2.Log, source Source, sink Sink) *Sender {
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}
	return &Sender{
		config:  config,
		log:     log,
		source:  source,
		sink:    sink,
		clock:   RealClock{},
		builder: packet.NewBuilder(source.AnalogCount(), source.DigitalCount()),
	}
}

// SetClock is for tests, call before Run.
func (self *Sender) SetClock(c Clock) { self.clock = c }

func (self *Sender) State() State { return self.state }
func (self *Sender) Stat() Stat   { return self.stat.Snapshot() }

// Run cycles forever until ctx is done, then returns nil.
// Stop is noticed at the start of a cycle and during the pacing wait,
// then the packet waiting for its deadline is dropped.
func (self *Sender) Run(ctx context.Context) error {
	self.log.Infof("sender start interval=%s packet_len=%d", self.config.Interval, self.builder.Len())
	for {
		if err := self.Step(ctx); err != nil {
			if errors.Cause(err) == context.Canceled || errors.Cause(err) == context.DeadlineExceeded {
				st := self.Stat()
				self.log.Infof("sender stop sent=%d send_errors=%d", st.Sent, st.SendError)
				return nil
			}
			return err
		}
	}
}

// Step performs exactly one state transition.
// Returns only ctx error, all hardware and link failures are logged and counted.
func (self *Sender) Step(ctx context.Context) error {
	switch self.state {
	case StateStart:
		if err := ctx.Err(); err != nil {
			return err
		}
		self.current = self.seq.Next()
		self.builder.Start(self.current)
		self.state = StateAnalog

	case StateAnalog:
		n := self.source.AnalogCount()
		for ch := 0; ch < n; ch++ {
			if !self.source.Fresh(ch) {
				self.stat.incStale()
			}
			self.builder.AppendMillivolts(self.source.Millivolts(ch))
		}
		self.state = StateDigital

	case StateDigital:
		flags, err := self.source.Digital()
		if err != nil {
			self.stat.incInputError()
			self.log.Errorf("seq=%03d digital inputs read, sending zeros err=%v", self.current, err)
			flags = nil
		}
		n := self.builder.DigitalCount()
		for pin := 0; pin < n; pin++ {
			self.builder.AppendFlag(pin < len(flags) && flags[pin])
		}
		self.state = StateFinalize

	case StateFinalize:
		self.frame = self.builder.Finalize()
		self.state = StateTransmit

	case StateTransmit:
		// transmissions land on the deadline grid, late cycle re-anchors it
		now := self.clock.Now()
		switch {
		case self.deadline.IsZero():
			self.deadline = now
		case now.After(self.deadline):
			self.stat.incOverrun()
			self.log.Debugf("seq=%03d late=%s re-anchor", self.current, now.Sub(self.deadline))
			self.deadline = now
		default:
			if err := self.clock.WaitUntil(ctx, self.deadline); err != nil {
				return err
			}
		}

		if err := self.sink.Write(self.frame); err != nil {
			self.stat.incSendError()
			self.log.Errorf("seq=%03d send err=%v", self.current, err)
		} else {
			self.stat.incSent(self.current)
			if self.log.Enabled(log2.LDebug) {
				self.log.Debugf("sent %q", self.frame)
			}
		}
		self.frame = nil
		self.deadline = self.deadline.Add(self.config.Interval)
		self.state = StateStart

	default:
		panic("code error sender invalid state=" + self.state.String())
	}
	return nil
}
