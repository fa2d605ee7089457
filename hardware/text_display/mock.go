package text_display

import (
	"fmt"
	"sync"
)

// MockDevicer remembers last written content of each line.
type MockDevicer struct {
	mu     sync.Mutex
	l1, l2 []byte
	y, x   uint8
	clears int
	writes int
}

func NewMockTextDisplay(opt *TextDisplayConfig) (*TextDisplay, *MockDevicer) {
	dev := new(MockDevicer)
	display, err := NewTextDisplay(opt, dev, nil)
	if err != nil {
		panic(err)
	}
	return display, dev
}

func (self *MockDevicer) Clear() {
	self.mu.Lock()
	defer self.mu.Unlock()
	self.l1 = nil
	self.l2 = nil
	self.clears++
}

func (self *MockDevicer) CursorYX(y, x uint8) bool {
	self.mu.Lock()
	defer self.mu.Unlock()
	self.y, self.x = y, x
	return true
}

func (self *MockDevicer) Write(b []byte) {
	self.mu.Lock()
	defer self.mu.Unlock()
	self.writes++
	switch self.y {
	case 1:
		self.l1 = append([]byte(nil), b...)
	case 2:
		self.l2 = append([]byte(nil), b...)
	}
}

func (self *MockDevicer) String() string {
	self.mu.Lock()
	defer self.mu.Unlock()
	return fmt.Sprintf("%s\n%s", string(self.l1), string(self.l2))
}
