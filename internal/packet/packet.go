// Package packet builds fixed-width ASCII telemetry frames:
//
//	###SSSAAAA..AAAABB..BBCCC\r\n
//
// SSS sequence 000-999, AAAA millivolts per analog channel, B '1'/'0' per
// digital input, CCC sum of bytes from SSS through last B modulo 1000.
// With 6 analog and 4 digital channels the frame is 39 bytes.
package packet

import (
	"fmt"
)

const (
	Header     = "###"
	Terminator = "\r\n"

	HeaderLen   = len(Header)
	SeqLen      = 3
	AnalogLen   = 4
	ChecksumLen = 3

	SeqModulo      = 1000
	ChecksumModulo = 1000
	MaxMillivolts  = 9999

	DefaultAnalogCount  = 6
	DefaultDigitalCount = 4
)

// Len is exact frame length for given channel counts.
func Len(analogCount, digitalCount int) int {
	return HeaderLen + SeqLen + AnalogLen*analogCount + digitalCount + ChecksumLen + len(Terminator)
}

// Sequence is rolling packet number 000-999. Not thread-safe, owned by one sender.
type Sequence struct{ n uint16 }

// Next returns current number and advances, 999 wraps to 0.
func (s *Sequence) Next() uint16 {
	v := s.n
	s.n = (s.n + 1) % SeqModulo
	return v
}
func (s *Sequence) Peek() uint16   { return s.n }
func (s *Sequence) Reset(v uint16) { s.n = v % SeqModulo }

// ClampMillivolts fits reading into 4 decimal digits.
func ClampMillivolts(mv int32) int32 {
	switch {
	case mv < 0:
		return 0
	case mv > MaxMillivolts:
		return MaxMillivolts
	}
	return mv
}

// FormatMillivolts returns exactly 4 digits, 7 -> "0007", 12345 -> "9999".
func FormatMillivolts(mv int32) string {
	b := appendDecimal(make([]byte, 0, AnalogLen), uint32(ClampMillivolts(mv)), AnalogLen)
	return string(b)
}

// Checksum is sum of byte values modulo 1000.
func Checksum(b []byte) uint16 {
	sum := uint32(0)
	for _, x := range b {
		sum += uint32(x)
	}
	return uint16(sum % ChecksumModulo)
}

type stage uint8

const (
	stageEmpty stage = iota
	stageBody
	stageDone
)

// Builder assembles one frame step by step, the way the transmit loop
// produces it: Start, analog fields, digital fields, Finalize.
// Every Start allocates a new buffer, so finalized frames are never mutated.
type Builder struct {
	analogCount  int
	digitalCount int
	buf          []byte
	analog       int
	digital      int
	stage        stage
}

func NewBuilder(analogCount, digitalCount int) *Builder {
	if analogCount < 0 || digitalCount < 0 {
		panic(fmt.Sprintf("code error packet.NewBuilder analog=%d digital=%d", analogCount, digitalCount))
	}
	return &Builder{analogCount: analogCount, digitalCount: digitalCount}
}

func (b *Builder) AnalogCount() int  { return b.analogCount }
func (b *Builder) DigitalCount() int { return b.digitalCount }
func (b *Builder) Len() int          { return Len(b.analogCount, b.digitalCount) }

// Start drops any unfinished frame, writes header and sequence number.
func (b *Builder) Start(seq uint16) {
	b.buf = make([]byte, 0, b.Len())
	b.buf = append(b.buf, Header...)
	b.buf = appendDecimal(b.buf, uint32(seq%SeqModulo), SeqLen)
	b.analog, b.digital = 0, 0
	b.stage = stageBody
}

func (b *Builder) AppendMillivolts(mv int32) {
	b.mustBody("AppendMillivolts")
	if b.digital != 0 || b.analog >= b.analogCount {
		panic(fmt.Sprintf("code error packet analog field %d/%d after digital=%d", b.analog+1, b.analogCount, b.digital))
	}
	b.buf = appendDecimal(b.buf, uint32(ClampMillivolts(mv)), AnalogLen)
	b.analog++
}

func (b *Builder) AppendFlag(v bool) {
	b.mustBody("AppendFlag")
	if b.analog != b.analogCount || b.digital >= b.digitalCount {
		panic(fmt.Sprintf("code error packet digital field %d/%d analog=%d/%d", b.digital+1, b.digitalCount, b.analog, b.analogCount))
	}
	c := byte('0')
	if v {
		c = '1'
	}
	b.buf = append(b.buf, c)
	b.digital++
}

// Finalize appends checksum over everything after header, then terminator.
// Returned slice is owned by caller.
func (b *Builder) Finalize() []byte {
	b.mustBody("Finalize")
	if b.analog != b.analogCount || b.digital != b.digitalCount {
		panic(fmt.Sprintf("code error packet.Finalize analog=%d/%d digital=%d/%d",
			b.analog, b.analogCount, b.digital, b.digitalCount))
	}
	sum := Checksum(b.buf[HeaderLen:])
	b.buf = appendDecimal(b.buf, uint32(sum), ChecksumLen)
	b.buf = append(b.buf, Terminator...)
	b.stage = stageDone
	out := b.buf
	b.buf = nil
	return out
}

func (b *Builder) mustBody(op string) {
	if b.stage != stageBody {
		panic("code error packet.Builder." + op + " without Start")
	}
}

// Encode builds complete frame in one call, advancing seq.
func Encode(seq *Sequence, millivolts []int32, inputs []bool) []byte {
	b := NewBuilder(len(millivolts), len(inputs))
	b.Start(seq.Next())
	for _, mv := range millivolts {
		b.AppendMillivolts(mv)
	}
	for _, v := range inputs {
		b.AppendFlag(v)
	}
	return b.Finalize()
}

// appendDecimal writes v as exactly width zero-padded digits, keeping low digits on overflow.
func appendDecimal(b []byte, v uint32, width int) []byte {
	start := len(b)
	for i := 0; i < width; i++ {
		b = append(b, '0')
	}
	for i := start + width - 1; i >= start; i-- {
		b[i] = byte('0' + v%10)
		v /= 10
	}
	return b
}
