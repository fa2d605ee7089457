package link

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/telemeter/helpers"
	"github.com/temoto/telemeter/log2"
)

// ConnSink writes each packet with a deadline.
type ConnSink struct {
	conn    net.Conn
	timeout time.Duration
}

func DialUDP(ctx context.Context, address string, timeout time.Duration) (*ConnSink, error) {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "udp", address)
	if err != nil {
		return nil, errors.Annotatef(err, "dial udp address=%s", address)
	}
	return &ConnSink{conn: conn, timeout: timeout}, nil
}

func (self *ConnSink) Write(b []byte) error {
	if err := self.conn.SetWriteDeadline(time.Now().Add(self.timeout)); err != nil {
		return err
	}
	return helpers.WriteAll(self.conn, b)
}

func (self *ConnSink) Close() error { return self.conn.Close() }

// TCPSink reconnects lazily on Write after failure.
// Reconnect attempts are spaced by exponential backoff, while waiting
// Write fails immediately so the transmit loop is never blocked.
type TCPSink struct {
	mu      sync.Mutex
	log     *log2.Log
	address string
	timeout time.Duration
	conn    net.Conn
	backoff helpers.Backoff
}

var ErrBackoff = errors.New("reconnect delayed")

func DialTCP(ctx context.Context, address string, timeout time.Duration, log *log2.Log) (*TCPSink, error) {
	self := &TCPSink{
		log:     log,
		address: address,
		timeout: timeout,
		backoff: helpers.Backoff{Min: 100 * time.Millisecond, Max: 10 * time.Second, K: 2},
	}
	if err := self.dial(ctx); err != nil {
		return nil, err
	}
	return self, nil
}

func (self *TCPSink) dial(ctx context.Context) error {
	d := net.Dialer{Timeout: self.timeout}
	conn, err := d.DialContext(ctx, "tcp", self.address)
	self.backoff.Update(err == nil)
	if err != nil {
		return errors.Annotatef(err, "dial tcp address=%s", self.address)
	}
	self.conn = conn
	return nil
}

func (self *TCPSink) Write(b []byte) error {
	self.mu.Lock()
	defer self.mu.Unlock()
	if self.conn == nil {
		if !self.backoff.Ready() {
			return errors.Annotatef(ErrBackoff, "tcp address=%s next in %s", self.address, self.backoff.DelayBefore())
		}
		if err := self.dial(context.Background()); err != nil {
			return err
		}
		self.log.Infof("link tcp reconnected address=%s", self.address)
	}
	err := self.conn.SetWriteDeadline(time.Now().Add(self.timeout))
	if err == nil {
		err = helpers.WriteAll(self.conn, b)
	}
	if err != nil {
		_ = self.conn.Close()
		self.conn = nil
		self.backoff.Failure()
		return errors.Annotate(err, "tcp write")
	}
	return nil
}

func (self *TCPSink) Close() error {
	self.mu.Lock()
	defer self.mu.Unlock()
	if self.conn == nil {
		return nil
	}
	err := self.conn.Close()
	self.conn = nil
	return err
}
