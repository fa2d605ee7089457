//go:build !linux
// +build !linux

package serial

import "github.com/juju/errors"

type Port struct{}

func Open(c Config) (*Port, error) {
	return nil, errors.NotSupportedf("serial on this platform")
}

func (self *Port) Write(p []byte) (int, error) { return 0, errors.NotSupportedf("serial") }
func (self *Port) WritePacket(b []byte) error  { return errors.NotSupportedf("serial") }
func (self *Port) Drain() error                { return nil }
func (self *Port) Close() error                { return nil }
