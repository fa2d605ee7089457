package main

import (
	"context"
	"flag"
	"os"
	"strconv"
	"strings"
	"time"

	prompt "github.com/c-bata/go-prompt"
	"github.com/juju/errors"
	"github.com/temoto/telemeter/helpers/cli"
	"github.com/temoto/telemeter/internal/packet"
	"github.com/temoto/telemeter/internal/state"
	"github.com/temoto/telemeter/log2"
)

const usage = `syntax: one command per line
(channels)
- set N MV   put MV millivolts into analog channel N cache
- get        show all analog channels
- in         read digital inputs
(packets)
- packet     build next packet from cache, show it
- send       build and send next packet over configured link
- send=N     send N packets, paced
- verify P   check packet P, \r\n may be omitted
(meta)
- sN         pause N milliseconds
- log=yes    enable debug logging
- log=no     disable debug logging
`

var log = log2.NewStderr(log2.LDebug)

func main() {
	cmdline := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	flagConfig := cmdline.String("config", "telemeter.hcl", "")
	_ = cmdline.Parse(os.Args[1:])

	log.SetFlags(log2.LInteractiveFlags)

	config := state.MustReadConfig(log, state.NewOsFullReader(), *flagConfig)
	ctx, g := state.NewContext(log)
	g.MustInit(ctx, config)
	b := &bench{g: g}
	if g.Sampler != nil {
		g.Sampler.Start()
	}

	cli.MainLoop("telemeter-cli", newExecutor(ctx, b), newCompleter(), func() {
		if g.Sampler != nil {
			g.Sampler.Stop()
		}
		_ = g.Close()
	})
	if g.Sampler != nil {
		g.Sampler.Stop()
	}
	if err := g.Close(); err != nil {
		log.Error(err)
	}
}

type bench struct {
	g   *state.Global
	seq packet.Sequence
}

func (b *bench) build() []byte {
	c := b.g.Cache
	mv := make([]int32, c.AnalogCount())
	for ch := range mv {
		mv[ch] = c.Millivolts(ch)
	}
	in, err := c.Digital()
	if err != nil {
		b.g.Log.Errorf("digital inputs read, using zeros err=%v", err)
		in = make([]bool, c.DigitalCount())
	}
	return packet.Encode(&b.seq, mv, in)
}

func (b *bench) send(ctx context.Context, n int) error {
	if b.g.Link == nil {
		if err := b.g.OpenLink(ctx); err != nil {
			return err
		}
	}
	interval := b.g.Config.Interval()
	next := time.Now()
	tmr := time.NewTimer(0)
	defer tmr.Stop()
	for i := 0; i < n; i++ {
		if i != 0 {
			next = next.Add(interval)
			if !tmr.Stop() {
				select {
				case <-tmr.C:
				default:
				}
			}
			tmr.Reset(time.Until(next))
			select {
			case <-tmr.C:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		p := b.build()
		if err := b.g.Link.Write(p); err != nil {
			return errors.Annotatef(err, "send %q", p)
		}
		b.g.Log.Infof("> %q", p)
	}
	return nil
}

type command func(ctx context.Context, b *bench) error

func newCompleter() func(d prompt.Document) []prompt.Suggest {
	suggests := []prompt.Suggest{
		{Text: "set", Description: "set N MV: analog channel cache"},
		{Text: "get", Description: "show analog channels"},
		{Text: "in", Description: "read digital inputs"},
		{Text: "packet", Description: "build next packet"},
		{Text: "send", Description: "send next packet"},
		{Text: "send=N", Description: "send N packets"},
		{Text: "verify", Description: "verify P: check packet"},
		{Text: "sN", Description: "pause for N ms"},
		{Text: "log=yes", Description: "enable debug logging"},
		{Text: "log=no", Description: "disable debug logging"},
	}

	return func(d prompt.Document) []prompt.Suggest {
		return prompt.FilterFuzzy(suggests, d.GetWordBeforeCursor(), true)
	}
}

func newExecutor(ctx context.Context, b *bench) func(string) {
	return func(line string) {
		cmd, err := parseLine(line)
		if err != nil {
			b.g.Log.Errorf(errors.ErrorStack(err))
			return
		}
		if err = cmd(ctx, b); err != nil {
			b.g.Log.Errorf(errors.ErrorStack(err))
		}
	}
}

func parseLine(line string) (command, error) {
	words := strings.Fields(line)
	if len(words) == 0 {
		return func(context.Context, *bench) error { return nil }, nil
	}
	word, args := words[0], words[1:]
	switch {
	case word == "help":
		return func(context.Context, *bench) error { log.Infof(usage); return nil }, nil

	case word == "log=yes":
		return func(_ context.Context, b *bench) error { b.g.Log.SetLevel(log2.LDebug); return nil }, nil
	case word == "log=no":
		return func(_ context.Context, b *bench) error { b.g.Log.SetLevel(log2.LError); return nil }, nil

	case word == "set":
		if len(args) != 2 {
			return nil, errors.Errorf("usage: set N MV")
		}
		ch, err := strconv.ParseUint(args[0], 10, 8)
		if err != nil {
			return nil, errors.Annotatef(err, "channel=%s", args[0])
		}
		mv, err := strconv.ParseInt(args[1], 10, 32)
		if err != nil {
			return nil, errors.Annotatef(err, "millivolts=%s", args[1])
		}
		return func(_ context.Context, b *bench) error {
			if int(ch) >= b.g.Cache.AnalogCount() {
				return errors.NotValidf("channel=%d count=%d", ch, b.g.Cache.AnalogCount())
			}
			b.g.Cache.SetMillivolts(int(ch), int32(mv))
			return nil
		}, nil

	case word == "get":
		return func(_ context.Context, b *bench) error {
			c := b.g.Cache
			for ch := 0; ch < c.AnalogCount(); ch++ {
				b.g.Log.Infof("%d %s mv=%s fresh=%t age=%s", ch, c.AnalogName(ch), c.Analog(ch), c.Fresh(ch), c.Age(ch))
			}
			return nil
		}, nil

	case word == "in":
		return func(_ context.Context, b *bench) error {
			flags, err := b.g.Cache.Digital()
			if err != nil {
				return err
			}
			b.g.Log.Infof("inputs=%v", flags)
			return nil
		}, nil

	case word == "packet":
		return func(_ context.Context, b *bench) error {
			b.g.Log.Infof("%q", b.build())
			return nil
		}, nil

	case word == "send" || strings.HasPrefix(word, "send="):
		n := uint64(1)
		if strings.HasPrefix(word, "send=") {
			var err error
			if n, err = strconv.ParseUint(word[5:], 10, 32); err != nil {
				return nil, errors.Annotatef(err, "word=%s", word)
			}
		}
		return func(ctx context.Context, b *bench) error { return b.send(ctx, int(n)) }, nil

	case word == "verify":
		if len(args) != 1 {
			return nil, errors.Errorf("usage: verify PACKET")
		}
		p := strings.TrimSuffix(args[0], `\r\n`)
		if !strings.HasSuffix(p, packet.Terminator) {
			p += packet.Terminator
		}
		return func(_ context.Context, b *bench) error {
			f, err := packet.Verify([]byte(p), b.g.Cache.AnalogCount(), b.g.Cache.DigitalCount())
			if err != nil {
				return err
			}
			b.g.Log.Infof("ok %s", f.String())
			return nil
		}, nil

	case word[0] == 's' && len(word) > 1:
		i, err := strconv.ParseUint(word[1:], 10, 32)
		if err != nil {
			return nil, errors.Annotatef(err, "word=%s", word)
		}
		return func(ctx context.Context, _ *bench) error {
			select {
			case <-time.After(time.Duration(i) * time.Millisecond):
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}, nil

	default:
		return nil, errors.Errorf("error: invalid command: '%s'", word)
	}
}
