package helpers

import (
	"io"
)

// WriteAll keeps writing until all of b is accepted or w fails.
// Short write without error is retried with the rest.
func WriteAll(w io.Writer, b []byte) error {
	for len(b) > 0 {
		n, err := w.Write(b)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		b = b[n:]
	}
	return nil
}
