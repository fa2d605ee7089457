// Package cli runs line-oriented bench tools: go-prompt on a terminal,
// plain line-by-line stdin otherwise, so scripts can pipe commands in.
package cli

import (
	"bufio"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/c-bata/go-prompt"
	"github.com/mattn/go-isatty"
)

func IsInteractive() bool { return isatty.IsTerminal(os.Stdin.Fd()) }

// MainLoop blocks until stdin ends (pipe) or prompt exits (tty).
// onSignal runs once on SIGINT/SIGTERM/SIGHUP/SIGQUIT, then the process exits.
func MainLoop(tag string, exec func(line string), complete prompt.Completer, onSignal func()) {
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh,
		syscall.SIGHUP,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT)
	go func() {
		<-signalCh
		if onSignal != nil {
			onSignal()
		}
		os.Exit(1)
	}()

	if IsInteractive() {
		prompt.New(exec, complete,
			prompt.OptionPrefix(tag+"> "),
			prompt.OptionTitle(tag),
		).Run()
		return
	}
	RunLines(os.Stdin, exec)
}

// RunLines feeds every trimmed non-empty line of r to exec.
func RunLines(r io.Reader, exec func(line string)) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		exec(line)
	}
}
