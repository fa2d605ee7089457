package packet

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/juju/errors"
)

var (
	ErrFrameInvalid = errors.New("frame is invalid")
	ErrChecksum     = errors.New("frame checksum mismatch")
)

// Frame is decoded content of one received packet.
type Frame struct {
	Seq        uint16
	Millivolts []int32
	Inputs     []bool
	Checksum   uint16
}

func (f Frame) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "seq=%03d mv=[", f.Seq)
	for i, mv := range f.Millivolts {
		if i != 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%d", mv)
	}
	sb.WriteString("] in=")
	for _, v := range f.Inputs {
		if v {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}
	fmt.Fprintf(&sb, " sum=%03d", f.Checksum)
	return sb.String()
}

// Verify checks layout and checksum of a received frame.
// Errors have Cause ErrFrameInvalid or ErrChecksum.
func Verify(b []byte, analogCount, digitalCount int) (Frame, error) {
	f := Frame{}
	expectLen := Len(analogCount, digitalCount)
	if len(b) != expectLen {
		return f, errors.Annotatef(ErrFrameInvalid, "length=%d expected=%d", len(b), expectLen)
	}
	if !bytes.HasPrefix(b, []byte(Header)) {
		return f, errors.Annotatef(ErrFrameInvalid, "header=%q", b[:HeaderLen])
	}
	if !bytes.HasSuffix(b, []byte(Terminator)) {
		return f, errors.Annotatef(ErrFrameInvalid, "terminator=%q", b[len(b)-len(Terminator):])
	}

	pos := HeaderLen
	seq, err := parseDecimal(b, pos, SeqLen, "seq")
	if err != nil {
		return f, err
	}
	f.Seq = uint16(seq)
	pos += SeqLen

	f.Millivolts = make([]int32, analogCount)
	for i := range f.Millivolts {
		mv, err := parseDecimal(b, pos, AnalogLen, fmt.Sprintf("analog[%d]", i))
		if err != nil {
			return f, err
		}
		f.Millivolts[i] = int32(mv)
		pos += AnalogLen
	}

	f.Inputs = make([]bool, digitalCount)
	for i := range f.Inputs {
		switch b[pos] {
		case '0':
		case '1':
			f.Inputs[i] = true
		default:
			return f, errors.Annotatef(ErrFrameInvalid, "digital[%d]=%q", i, b[pos])
		}
		pos++
	}

	sum, err := parseDecimal(b, pos, ChecksumLen, "checksum")
	if err != nil {
		return f, err
	}
	f.Checksum = uint16(sum)
	if expect := Checksum(b[HeaderLen:pos]); expect != f.Checksum {
		return f, errors.Annotatef(ErrChecksum, "received=%03d computed=%03d", f.Checksum, expect)
	}
	return f, nil
}

func parseDecimal(b []byte, pos, width int, field string) (uint32, error) {
	v := uint32(0)
	for _, c := range b[pos : pos+width] {
		if c < '0' || c > '9' {
			return 0, errors.Annotatef(ErrFrameInvalid, "%s=%q", field, b[pos:pos+width])
		}
		v = v*10 + uint32(c-'0')
	}
	return v, nil
}
