package helpers

import "time"

func IntSecondDefault(x int, def time.Duration) time.Duration {
	if x <= 0 {
		return def
	}
	return time.Duration(x) * time.Second
}

// Config files keep periods as integer milliseconds, zero or negative means default.
func IntMillisecondDefault(x int, def time.Duration) time.Duration {
	if x <= 0 {
		return def
	}
	return time.Duration(x) * time.Millisecond
}
