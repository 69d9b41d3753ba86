package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

// ErrInputCancelled is returned when input is canceled by context.
var ErrInputCancelled = errors.New("input canceled")

// NonBlockingReader reads lines from a terminal without ignoring cancellation.
type NonBlockingReader struct {
	reader      *bufio.Reader
	readingLock sync.Mutex
}

// NewNonBlockingReader creates a new non-blocking reader.
func NewNonBlockingReader(reader io.Reader) *NonBlockingReader {
	return &NonBlockingReader{reader: bufio.NewReader(reader)}
}

// ReadLine reads one trimmed line, returning ErrInputCancelled if ctx ends first.
// The pending read keeps running and its line is discarded.
func (r *NonBlockingReader) ReadLine(ctx context.Context) (string, error) {
	type result struct {
		err   error
		value string
	}
	resultCh := make(chan result, 1)

	go func() {
		r.readingLock.Lock()
		defer r.readingLock.Unlock()

		value, err := r.reader.ReadString('\n')
		resultCh <- result{value: value, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ErrInputCancelled
	case res := <-resultCh:
		if res.err != nil && !(errors.Is(res.err, io.EOF) && res.value != "") {
			return "", res.err
		}
		return strings.TrimSpace(res.value), nil
	}
}

// Confirm asks a yes/no question; anything other than y or yes is no.
func Confirm(ctx context.Context, r *NonBlockingReader, w io.Writer, question string) (bool, error) {
	if _, err := fmt.Fprint(w, FormatPrompt(question+" [y/N]")); err != nil {
		return false, err
	}

	answer, err := r.ReadLine(ctx)
	if errors.Is(err, io.EOF) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	switch strings.ToLower(answer) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}
