package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/coreos/go-systemd/daemon"
	"github.com/juju/errors"
	"github.com/temoto/telemeter/internal/state"
	"github.com/temoto/telemeter/log2"
)

var log = log2.NewStderr(log2.LDebug)

func main() {
	flagConfig := flag.String("config", "telemeter.hcl", "")
	flag.Parse()

	if sdnotify("start") {
		// we're under systemd, assume systemd journal logging, remove timestamp
		log.SetFlags(log2.LServiceFlags)
	} else {
		log.SetFlags(log2.LInteractiveFlags)
	}
	log.SetLevel(log2.LInfo)
	log.Infof("telemeter start config=%s", *flagConfig)

	config := state.MustReadConfig(log, state.NewOsFullReader(), *flagConfig)
	ctx, g := state.NewContext(log)
	if err := run(ctx, g, config); err != nil {
		g.Fatal(err)
	}
	log.Infof("telemeter stop")
}

func run(ctx context.Context, g *state.Global, config *state.Config) error {
	g.MustInit(ctx, config)
	g.Log.Debugf("config=%+v", g.Config)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	sigch := make(chan os.Signal, 1)
	signal.Notify(sigch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigch:
			g.Log.Infof("signal=%v stopping", sig)
			sdnotify(daemon.SdNotifyStopping)
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := g.InitOutputs(ctx); err != nil {
		if errors.Cause(err) == context.Canceled {
			return g.Close()
		}
		return err
	}
	if err := g.OpenLink(ctx); err != nil {
		return errors.Annotate(err, "link")
	}

	sdnotify(daemon.SdNotifyReady)
	g.Log.Debugf("init complete, sending")
	if err := g.Run(ctx); err != nil {
		return err
	}
	g.Log.Infof("stat %s", g.Sender.Stat().String())
	return g.Close()
}

func sdnotify(s string) bool {
	ok, err := daemon.SdNotify(false, s)
	if err != nil {
		log.Fatal("sdnotify: ", errors.ErrorStack(err))
	}
	return ok
}
