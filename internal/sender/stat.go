package sender

import (
	"fmt"
	"sync/atomic"
)

// Stat counters are written by the loop and read by display/logs concurrently.
type Stat struct {
	Sent       uint32
	SendError  uint32
	InputError uint32
	Stale      uint32
	Overrun    uint32
	LastSeq    uint32
	HasSent    uint32
}

func (s *Stat) incSent(seq uint16) {
	atomic.AddUint32(&s.Sent, 1)
	atomic.StoreUint32(&s.LastSeq, uint32(seq))
	atomic.StoreUint32(&s.HasSent, 1)
}
func (s *Stat) incSendError()  { atomic.AddUint32(&s.SendError, 1) }
func (s *Stat) incInputError() { atomic.AddUint32(&s.InputError, 1) }
func (s *Stat) incStale()      { atomic.AddUint32(&s.Stale, 1) }
func (s *Stat) incOverrun()    { atomic.AddUint32(&s.Overrun, 1) }

func (s *Stat) Snapshot() Stat {
	return Stat{
		Sent:       atomic.LoadUint32(&s.Sent),
		SendError:  atomic.LoadUint32(&s.SendError),
		InputError: atomic.LoadUint32(&s.InputError),
		Stale:      atomic.LoadUint32(&s.Stale),
		Overrun:    atomic.LoadUint32(&s.Overrun),
		LastSeq:    atomic.LoadUint32(&s.LastSeq),
		HasSent:    atomic.LoadUint32(&s.HasSent),
	}
}

func (s Stat) String() string {
	return fmt.Sprintf("sent=%d send_errors=%d input_errors=%d stale=%d overrun=%d last_seq=%03d",
		s.Sent, s.SendError, s.InputError, s.Stale, s.Overrun, s.LastSeq)
}
