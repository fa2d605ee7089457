package state

import (
	"context"
	"fmt"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/telemeter/hardware/analog"
	"github.com/temoto/telemeter/helpers"
	"github.com/temoto/telemeter/internal/channel"
	"github.com/temoto/telemeter/internal/link"
	"github.com/temoto/telemeter/internal/sender"
	"github.com/temoto/telemeter/log2"
)

const (
	MsgConnecting = "Connecting..."
	MsgConnected  = "Connected."
	MsgProblem    = "Problem Connecting."
)

type Global struct {
	Alive    *alive.Alive
	Config   *Config
	Hardware hardware // hardware.go
	Log      *log2.Log

	Cache   *channel.Cache
	Sampler *analog.Sampler
	Link    link.Sink
	Sender  *sender.Sender
}

const ContextKey = "run/state-global"

func NewContext(log *log2.Log) (context.Context, *Global) {
	if log == nil {
		panic("code error NewContext() log=nil")
	}

	g := &Global{
		Alive: alive.NewAlive(),
		Log:   log,
	}
	ctx := context.Background()
	ctx = context.WithValue(ctx, log2.ContextKey, log)
	ctx = context.WithValue(ctx, ContextKey, g)

	return ctx, g
}

func GetGlobal(ctx context.Context) *Global {
	v := ctx.Value(ContextKey)
	if v == nil {
		panic(fmt.Sprintf("context['%s'] is nil", ContextKey))
	}
	if g, ok := v.(*Global); ok {
		return g
	}
	panic(fmt.Sprintf("context['%s'] expected type *Global actual=%#v", ContextKey, v))
}

// Init opens hardware and builds channel cache.
// If `Init` fails, consider `Global` is in broken state.
func (g *Global) Init(ctx context.Context, cfg *Config) error {
	g.Config = cfg
	if cfg.LogDebug {
		g.Log.SetLevel(log2.LDebug)
	}

	if err := g.openHardware(ctx); err != nil {
		return err
	}

	if d, _ := g.TextDisplay(); d != nil {
		d.Clear()
	}
	bank, _ := g.DigitalBank()
	var inputs channel.DigitalReader
	if bank != nil && bank.Inputs != nil {
		inputs = bank.Inputs
	}
	g.Cache = channel.New(cfg.AnalogNames(), cfg.AnalogValid(), inputs, cfg.DigitalCount())

	readers, _ := g.AnalogReaders()
	if len(readers) != g.Cache.AnalogCount() {
		return errors.Errorf("code error analog readers=%d channels=%d", len(readers), g.Cache.AnalogCount())
	}
	g.Sampler = analog.NewSampler(g.Log.Clone(log2.LInfo), readers, g.Cache, cfg.AnalogRefresh())
	return nil
}

func (g *Global) MustInit(ctx context.Context, cfg *Config) {
	err := g.Init(ctx, cfg)
	if err != nil {
		g.Fatal(err)
	}
}

// InitOutputs drives outputs to their startup levels, with settle delays.
func (g *Global) InitOutputs(ctx context.Context) error {
	bank, err := g.DigitalBank()
	if err != nil {
		return err
	}
	if bank == nil || bank.Outputs == nil {
		return nil
	}
	g.Log.Debugf("outputs init settle=%s", g.Config.Settle())
	return errors.Annotate(bank.Outputs.Init(ctx, g.Config.Digital.InitOrder, g.Config.Settle()), "outputs init")
}

// OpenLink establishes link once, showing progress on the display.
func (g *Global) OpenLink(ctx context.Context) error {
	g.ShowLines(MsgConnecting, "")
	s, err := link.Open(ctx, g.Config.Link, g.Log)
	if err != nil {
		g.ShowLines(MsgProblem, "")
		return err
	}
	g.Link = s
	g.ShowLines(MsgConnected, "")
	g.Log.Infof("link driver=%s address=%s connected", g.Config.Link.Driver, g.Config.Link.Address)
	return nil
}

func (g *Global) NewSender() *sender.Sender {
	if g.Link == nil {
		panic("code error NewSender() before OpenLink()")
	}
	g.Sender = sender.New(sender.Config{Interval: g.Config.Interval()}, g.Log, g.Cache, g.Link)
	return g.Sender
}

// Run blocks until ctx is done or Stop.
// Sampler, display scroll and status update run while sender is running.
func (g *Global) Run(ctx context.Context) error {
	if g.Sender == nil {
		g.NewSender()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-g.Alive.StopChan():
			cancel()
		case <-ctx.Done():
		}
	}()

	if g.Sampler != nil {
		g.Sampler.Start()
		defer g.Sampler.Stop()
	}
	if d, _ := g.TextDisplay(); d != nil {
		go d.Run()
		defer d.Stop()
		go g.statusLoop(ctx, time.Second)
	}
	return g.Sender.Run(ctx)
}

func (g *Global) ShowLines(l1, l2 string) {
	if d, _ := g.TextDisplay(); d != nil {
		d.SetLines(l1, l2)
	}
}

func (g *Global) StatusLines() (string, string) {
	st := g.Sender.Stat()
	if st.HasSent == 0 {
		return MsgConnected, fmt.Sprintf("err=%d", st.SendError)
	}
	return fmt.Sprintf("seq=%03d", st.LastSeq), fmt.Sprintf("ok=%d err=%d", st.Sent, st.SendError)
}

func (g *Global) statusLoop(ctx context.Context, every time.Duration) {
	tmr := time.NewTicker(every)
	defer tmr.Stop()
	for {
		select {
		case <-tmr.C:
			g.ShowLines(g.StatusLines())
		case <-ctx.Done():
			return
		}
	}
}

func (g *Global) Stop() {
	g.Alive.Stop()
}

// Close releases link and hardware. Call after Run returned.
func (g *Global) Close() error {
	errs := make([]error, 0, 2)
	if g.Link != nil {
		errs = append(errs, errors.Annotate(g.Link.Close(), "link close"))
	}
	errs = append(errs, g.closeHardware())
	return helpers.FoldErrors(errs)
}

func (g *Global) Error(err error, args ...interface{}) {
	if err != nil {
		if len(args) != 0 {
			msg := args[0].(string)
			args = args[1:]
			err = errors.Annotatef(err, msg, args...)
		}
		g.Log.Error(err)
	}
}

func (g *Global) Fatal(err error, args ...interface{}) {
	if err != nil {
		g.Error(err, args...)
		g.Stop()
		_ = g.Close()
		g.Log.Fatal(errors.ErrorStack(err))
	}
}
