// Package text_display keeps two lines of status text and renders them
// to a character device, scrolling lines longer than display width.
package text_display

import (
	"fmt"
	"sync"
	"time"

	"github.com/juju/errors"
	"github.com/paulrosania/go-charset/charset"
	_ "github.com/paulrosania/go-charset/data"
	"github.com/temoto/alive/v2"
	"github.com/temoto/telemeter/log2"
)

const MaxWidth = 40

type TextDisplayConfig struct {
	Codepage    string
	ScrollDelay time.Duration
	Width       uint32
}

type Devicer interface {
	Clear()
	CursorYX(y, x uint8) bool
	Write(b []byte)
}

// Lines are translated device bytes, without padding.
type Lines [2][]byte

func (l Lines) String() string { return fmt.Sprintf("%s\n%s", l[0], l[1]) }

type TextDisplay struct {
	alive *alive.Alive
	log   *log2.Log
	dev   Devicer
	width int
	delay time.Duration

	mu    sync.Mutex
	tr    charset.Translator // reuses internal buffer, guarded by mu
	text  [2]string
	lines Lines
	tick  int
}

// NewTextDisplay with nil device only tracks and logs lines.
func NewTextDisplay(opt *TextDisplayConfig, dev Devicer, log *log2.Log) (*TextDisplay, error) {
	if opt == nil {
		opt = &TextDisplayConfig{}
	}
	width := int(opt.Width)
	if width == 0 {
		width = 16
	}
	if width > MaxWidth {
		return nil, errors.NotValidf("display width=%d max=%d", width, MaxWidth)
	}
	self := &TextDisplay{
		alive: alive.NewAlive(),
		log:   log,
		dev:   dev,
		width: width,
		delay: opt.ScrollDelay,
	}
	if opt.Codepage != "" {
		tr, err := charset.TranslatorTo(opt.Codepage)
		if err != nil {
			return nil, errors.Annotatef(err, "display codepage=%s", opt.Codepage)
		}
		self.tr = tr
	}
	return self, nil
}

func (self *TextDisplay) Clear() {
	self.mu.Lock()
	defer self.mu.Unlock()
	self.text = [2]string{}
	self.lines = Lines{}
	self.tick = 0
	if self.dev != nil {
		self.dev.Clear()
	}
	self.render()
}

// SetLines logs changed lines and restarts scroll.
func (self *TextDisplay) SetLines(line1, line2 string) {
	self.mu.Lock()
	defer self.mu.Unlock()
	for i, s := range [2]string{line1, line2} {
		if self.text[i] == s {
			continue
		}
		self.text[i] = s
		self.lines[i] = self.translate(s)
		self.log.Infof("display.L%d=%s", i+1, s)
	}
	self.tick = 0
	self.render()
}

func (self *TextDisplay) Lines() Lines {
	self.mu.Lock()
	defer self.mu.Unlock()
	return Lines{
		append([]byte(nil), self.lines[0]...),
		append([]byte(nil), self.lines[1]...),
	}
}

// Run scrolls long lines until Stop. Returns immediately without scroll delay.
func (self *TextDisplay) Run() {
	if self.delay == 0 || !self.alive.Add(1) {
		return
	}
	defer self.alive.Done()
	tmr := time.NewTicker(self.delay)
	defer tmr.Stop()
	stopch := self.alive.StopChan()
	for {
		select {
		case <-tmr.C:
			self.step()
		case <-stopch:
			return
		}
	}
}

func (self *TextDisplay) Stop() {
	self.alive.Stop()
	self.alive.Wait()
}

func (self *TextDisplay) step() {
	self.mu.Lock()
	defer self.mu.Unlock()
	if len(self.lines[0]) <= self.width && len(self.lines[1]) <= self.width {
		return
	}
	self.tick++
	self.render()
}

// caller holds mu
func (self *TextDisplay) render() {
	if self.dev == nil {
		return
	}
	var buf [MaxWidth]byte
	b := buf[:self.width]
	for i, line := range self.lines {
		window(b, line, self.tick)
		// rewrite without clear, looks smoother
		self.dev.CursorYX(uint8(i+1), 1)
		self.dev.Write(b)
	}
}

// caller holds mu
func (self *TextDisplay) translate(s string) []byte {
	if self.tr == nil || s == "" {
		return []byte(s)
	}
	_, tb, err := self.tr.Translate([]byte(s), true)
	if err != nil {
		self.log.Errorf("display translate err=%v", err)
		return []byte(s)
	}
	return append([]byte(nil), tb...)
}

// window fills buf with content padded by spaces.
// Longer content scrolls cyclically with width/2 spaces gap.
func window(buf []byte, content []byte, tick int) {
	if len(content) <= len(buf) {
		n := copy(buf, content)
		for i := n; i < len(buf); i++ {
			buf[i] = ' '
		}
		return
	}
	period := len(content) + len(buf)/2
	for i := range buf {
		if j := (tick + i) % period; j < len(content) {
			buf[i] = content[j]
		} else {
			buf[i] = ' '
		}
	}
}
