package link

import (
	"os"

	"github.com/juju/errors"
)

// OpenFile appends packets to path, "-" is stdout.
func OpenFile(path string) (Sink, error) {
	if path == "" {
		return nil, errors.NotValidf("link file address empty")
	}
	if path == "-" {
		return NewWriterSink(nopCloser{os.Stdout}), nil
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
	if err != nil {
		return nil, errors.Annotatef(err, "open file=%s", path)
	}
	return NewWriterSink(f), nil
}

type nopCloser struct{ *os.File }

func (nopCloser) Close() error { return nil }
