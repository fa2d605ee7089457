// Package analog keeps the channel cache fresh from ADC inputs.
// Each channel is sampled by its own goroutine on a fixed refresh period.
package analog

import (
	"time"

	"github.com/temoto/alive/v2"
	"github.com/temoto/telemeter/log2"
)

const DefaultRefresh = 100 * time.Millisecond

type Reader interface {
	ReadMillivolts() (int32, error)
}

// Setter is implemented by channel.Cache.
type Setter interface {
	SetMillivolts(ch int, mv int32)
}

type ReaderFunc func() (int32, error)

func (f ReaderFunc) ReadMillivolts() (int32, error) { return f() }

type Sampler struct {
	alive   *alive.Alive
	log     *log2.Log
	readers []Reader
	setter  Setter
	refresh time.Duration
	errors  []uint32
}

// NewSampler maps readers[i] to cache channel i. nil reader leaves channel unsampled.
func NewSampler(log *log2.Log, readers []Reader, setter Setter, refresh time.Duration) *Sampler {
	if refresh <= 0 {
		refresh = DefaultRefresh
	}
	return &Sampler{
		alive:   alive.NewAlive(),
		log:     log,
		readers: readers,
		setter:  setter,
		refresh: refresh,
		errors:  make([]uint32, len(readers)),
	}
}

func (self *Sampler) Start() {
	for ch, r := range self.readers {
		if r == nil {
			continue
		}
		if !self.alive.Add(1) {
			return
		}
		go self.worker(ch, r)
	}
}

func (self *Sampler) Stop() {
	self.alive.Stop()
	self.alive.Wait()
}

// ErrorCount is only safe to call after Stop.
func (self *Sampler) ErrorCount(ch int) uint32 { return self.errors[ch] }

func (self *Sampler) worker(ch int, r Reader) {
	defer self.alive.Done()
	tmr := time.NewTicker(self.refresh)
	defer tmr.Stop()
	stopch := self.alive.StopChan()
	for {
		self.sample(ch, r)
		select {
		case <-tmr.C:
		case <-stopch:
			return
		}
	}
}

func (self *Sampler) sample(ch int, r Reader) {
	mv, err := r.ReadMillivolts()
	if err != nil {
		// keep previous value, cache freshness tells the rest
		self.errors[ch]++
		self.log.Debugf("analog ch=%d read err=%v", ch, err)
		return
	}
	self.setter.SetMillivolts(ch, mv)
}
