package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// InterruptHandler cancels a context on SIGINT/SIGTERM and tells the user what
// state they were left in.
type InterruptHandler struct {
	writer      io.Writer
	message     string
	interrupted bool
	mu          sync.Mutex
}

// NewInterruptHandler creates a handler that prints message on interrupt.
func NewInterruptHandler(writer io.Writer, message string) *InterruptHandler {
	if writer == nil {
		writer = os.Stdout
	}
	return &InterruptHandler{writer: writer, message: message}
}

// HandleInterrupts returns a context canceled on the first interrupt signal.
// Call stop when the guarded work is done.
func (h *InterruptHandler) HandleInterrupts(ctx context.Context) (_ context.Context, stop func()) {
	ctx, cancel := context.WithCancel(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		select {
		case <-sigChan:
			h.interrupt()
			cancel()
		case <-done:
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		close(done)
		cancel()
	}
}

func (h *InterruptHandler) interrupt() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.interrupted {
		return
	}
	h.interrupted = true

	msg := "\n\n" + FormatWarning("Interrupted!")
	if h.message != "" {
		msg += "\n" + FormatInfo(h.message)
	}
	if _, err := fmt.Fprintln(h.writer, msg); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write interrupt message: %v\n", err)
	}
}

// WasInterrupted returns true if the process was interrupted.
func (h *InterruptHandler) WasInterrupted() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.interrupted
}
