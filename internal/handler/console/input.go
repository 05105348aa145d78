package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
)

const maxLineSize = 1024 * 1024

// LineReader delivers lines from an io.Reader while letting the caller stop
// waiting when ctx is cancelled. A single goroutine owns the reader.
type LineReader struct {
	lines   chan string
	readErr chan error
	done    chan struct{}
	closed  bool
}

// NewLineReader starts reading lines from in. Call Close when finished.
func NewLineReader(in io.Reader) *LineReader {
	r := &LineReader{
		lines:   make(chan string),
		readErr: make(chan error, 1),
		done:    make(chan struct{}),
	}

	go func() {
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
		for scanner.Scan() {
			select {
			case r.lines <- scanner.Text():
			case <-r.done:
				return
			}
		}
		r.readErr <- scanner.Err()
		close(r.lines)
	}()

	return r
}

// ReadLine waits for the next line. It returns io.EOF at the end of input
// and ctx.Err() when ctx is cancelled first.
func (r *LineReader) ReadLine(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-r.lines:
		if ok {
			return line, nil
		}
		if err := <-r.readErr; err != nil {
			r.readErr <- err
			return "", fmt.Errorf("read input: %w", err)
		}
		r.readErr <- nil
		return "", io.EOF
	}
}

// Close releases the reading goroutine once its current read returns.
func (r *LineReader) Close() {
	if r.closed {
		return
	}
	r.closed = true
	close(r.done)
}
