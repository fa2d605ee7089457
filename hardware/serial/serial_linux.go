//go:build linux
// +build linux

package serial

import (
	"os"
	"syscall"
	"unsafe"

	"github.com/juju/errors"
	"github.com/temoto/telemeter/helpers"
	"golang.org/x/sys/unix"
)

const (
	cBOTHER   = 0x1000
	cNCCS     = 19
	cTCSETSF2 = 0x402c542d
	cTCSETSW2 = 0x402c542c
)

type cc_t byte
type speed_t uint32
type tcflag_t uint32
type termios2 struct {
	c_iflag  tcflag_t    // input mode flags
	c_oflag  tcflag_t    // output mode flags
	c_cflag  tcflag_t    // control mode flags
	c_lflag  tcflag_t    // local mode flags
	c_line   cc_t        // line discipline
	c_cc     [cNCCS]cc_t // control characters
	c_ispeed speed_t     // input speed
	c_ospeed speed_t     // output speed
}

type Port struct {
	f  *os.File
	t2 termios2
}

func Open(c Config) (*Port, error) {
	if c.Baud <= 0 {
		c.Baud = DefaultBaud
	}
	f, err := os.OpenFile(c.Device, os.O_RDWR|unix.O_NOCTTY, 0)
	if err != nil {
		return nil, errors.Annotatef(err, "serial open device=%s", c.Device)
	}
	p := &Port{f: f, t2: makeTermios(c.Baud)}
	// flush input and output
	if err = ioctl(f.Fd(), uintptr(cTCSETSF2), uintptr(unsafe.Pointer(&p.t2))); err != nil {
		f.Close()
		return nil, errors.Annotatef(err, "serial termios device=%s baud=%d", c.Device, c.Baud)
	}
	return p, nil
}

// makeTermios is raw mode 8N1, arbitrary baud via BOTHER.
func makeTermios(baud int) termios2 {
	t2 := termios2{
		c_cflag:  syscall.CLOCAL | syscall.CREAD | syscall.CS8 | cBOTHER,
		c_ispeed: speed_t(baud),
		c_ospeed: speed_t(baud),
	}
	t2.c_cc[syscall.VMIN] = 1
	return t2
}

func (self *Port) Write(p []byte) (int, error) {
	return self.f.Write(p)
}

// Drain blocks until output queue is transmitted.
func (self *Port) Drain() error {
	return ioctl(self.f.Fd(), uintptr(cTCSETSW2), uintptr(unsafe.Pointer(&self.t2)))
}

func (self *Port) Close() error {
	if self.f == nil {
		return nil
	}
	err := self.f.Close()
	self.f = nil
	return err
}

func ioctl(fd uintptr, op, arg uintptr) (err error) {
	r, _, errno := syscall.Syscall(syscall.SYS_IOCTL, fd, op, arg)
	if errno != 0 {
		err = os.NewSyscallError("SYS_IOCTL", errno)
	} else if r != 0 {
		err = errors.New("unknown error from SYS_IOCTL")
	}
	return err
}

// WritePacket writes whole packet, short write is an error.
func (self *Port) WritePacket(b []byte) error {
	return helpers.WriteAll(self, b)
}
