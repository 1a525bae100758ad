// Package sys provide system utilities with the same API across OSes.
package sys

import (
	"context"
	"os"
	"os/signal"
	"runtime"

	"github.com/mattn/go-isatty"
)

// IsATTY determines whether the given file is a terminal.
func IsATTY(fd uintptr) bool {
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// WithInterrupt returns a context that is canceled when the process receives
// an interrupt or termination signal, after calling onSignal with the name of
// the signal. The returned function stops listening and cancels the context.
func WithInterrupt(parent context.Context, onSignal func(name string)) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, interruptSignals...)
	go func() {
		select {
		case sig := <-sigCh:
			if onSignal != nil {
				onSignal(signalName(sig))
			}
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, func() {
		signal.Stop(sigCh)
		cancel()
	}
}

const dumpStackBufSizeInit = 8192

// DumpStack returns the stacks of all goroutines.
func DumpStack() string {
	buf := make([]byte, dumpStackBufSizeInit)
	for {
		n := runtime.Stack(buf, true)
		if n < cap(buf) {
			return string(buf[:n])
		}
		buf = make([]byte, cap(buf)*2)
	}
}
