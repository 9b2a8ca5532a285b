package main

import (
	"encoding/json"
	"errors"
	"io"
	"sync"

	"signal-streamer/src/models"
)

var errTapeClosed = errors.New("tape closed")

// tapeConn writes every published message as one JSON line.
type tapeConn struct {
	mu      sync.Mutex
	enc     *json.Encoder
	limit   int // bars before closing, 0 for no limit
	bars    int
	done    chan struct{}
	once    sync.Once
	lastErr *models.MStreamError
}

func newTapeConn(w io.Writer, limit int) *tapeConn {
	return &tapeConn{enc: json.NewEncoder(w), limit: limit, done: make(chan struct{})}
}

func (t *tapeConn) ID() string { return "tape" }

func (t *tapeConn) Send(message interface{}) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	select {
	case <-t.done:
		return errTapeClosed
	default:
	}

	if err := t.enc.Encode(message); err != nil {
		return err
	}
	switch m := message.(type) {
	case models.MEnrichedBar:
		t.bars++
		if t.limit > 0 && t.bars >= t.limit {
			t.finish()
		}
	case models.MStreamError:
		t.lastErr = &m
	}
	return nil
}

func (t *tapeConn) Close() error {
	t.finish()
	return nil
}

func (t *tapeConn) finish() {
	t.once.Do(func() { close(t.done) })
}

// Done is closed once the limit is reached or the pipeline drops the tape.
func (t *tapeConn) Done() <-chan struct{} {
	return t.done
}

// StreamError returns the terminal error message, if the pipeline sent one.
func (t *tapeConn) StreamError() *models.MStreamError {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastErr
}
