// Package signalhandler turns SIGINT and SIGTERM into cooperative
// cancellation.
package signalhandler

import (
	"context"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"

	"panofinder/logging"
)

// Handler cancels a context on the first interrupt and exits on the second.
type Handler struct {
	mu       sync.Mutex
	onSignal []func()
	sigChan  chan os.Signal
	stopOnce sync.Once
	done     chan struct{}
}

// SetupHandler returns a context cancelled by the first SIGINT or SIGTERM.
// Callbacks registered with OnSignal run before the cancel, so a running
// search can stop at its next stage boundary and still report its partial
// results. Call Stop to release the signal registration.
func SetupHandler(parent context.Context) (context.Context, *Handler) {
	ctx, cancel := context.WithCancel(parent)
	h := &Handler{
		sigChan: make(chan os.Signal, 2),
		done:    make(chan struct{}),
	}
	signal.Notify(h.sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-h.sigChan:
			logging.Warn("interrupt received, stopping", "signal", sig.String())
			h.runCallbacks()
			cancel()
		case <-h.done:
			cancel()
			return
		}

		select {
		case <-h.sigChan:
			os.Exit(130)
		case <-h.done:
		}
	}()
	return ctx, h
}

// OnSignal registers f to run on the first interrupt.
func (h *Handler) OnSignal(f func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onSignal = append(h.onSignal, f)
}

func (h *Handler) runCallbacks() {
	h.mu.Lock()
	fns := append([]func(){}, h.onSignal...)
	h.mu.Unlock()
	for _, f := range fns {
		f()
	}
}

// Stop unregisters the handler and cancels its context.
func (h *Handler) Stop() {
	h.stopOnce.Do(func() {
		signal.Stop(h.sigChan)
		close(h.done)
	})
}

// GetOptimalProcs returns the optimal number of worker goroutines for the system
func GetOptimalProcs() int {
	// cgo-heavy image work does not scale to every core
	maxProcs := (runtime.NumCPU() * 3) / 4
	if maxProcs < 1 {
		maxProcs = 1
	}
	return maxProcs
}
