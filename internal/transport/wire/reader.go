// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package wire

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"github.com/jeranaias/agentchat/internal/stream"
	"github.com/jeranaias/agentchat/internal/transport"
)

// maxLineSize bounds a single NDJSON frame.
const maxLineSize = 1 << 20

// ReadFunc returns the next raw frame. It returns io.EOF when the source ends.
type ReadFunc func() ([]byte, error)

// Mode selects how a FrameStream treats terminal events.
type Mode int

const (
	// ModeExchange ends the stream after the first done or error frame.
	ModeExchange Mode = iota
	// ModePush keeps reading after terminal frames; one push channel carries
	// many agent-initiated replies.
	ModePush
)

type readResult struct {
	ev  stream.Event
	err error
}

// =============================================================================
// FRAME STREAM
// =============================================================================

// FrameStream decodes frames from a blocking source into a stream.EventStream.
//
// A goroutine reads frames and hands decoded events over a channel, so Next can
// honor its context while the underlying read blocks. Close releases the
// source, which unblocks the reader.
type FrameStream struct {
	read   ReadFunc
	closer func() error
	mode   Mode
	log    zerolog.Logger

	events chan readResult
	closed chan struct{}
	once   sync.Once
	cerr   error
}

// NewFrameStream starts reading from read. closer runs once on Close.
func NewFrameStream(read ReadFunc, closer func() error, mode Mode, log zerolog.Logger) *FrameStream {
	fs := &FrameStream{
		read:   read,
		closer: closer,
		mode:   mode,
		log:    log,
		events: make(chan readResult),
		closed: make(chan struct{}),
	}
	go fs.loop()
	return fs
}

// NewLineStream reads newline-delimited frames from body.
func NewLineStream(body io.ReadCloser, mode Mode, log zerolog.Logger) *FrameStream {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	read := func() ([]byte, error) {
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			return append([]byte(nil), line...), nil
		}
		if err := scanner.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	return NewFrameStream(read, body.Close, mode, log)
}

func (fs *FrameStream) loop() {
	defer close(fs.events)

	for {
		data, err := fs.read()
		if err != nil {
			if errors.Is(err, io.EOF) || fs.isClosed() {
				return
			}
			fs.send(readResult{err: transport.Connection(err, "read stream")})
			return
		}

		ev, ok, err := DecodeEvent(data)
		if err != nil {
			if errors.Is(err, ErrMalformed) {
				fs.log.Debug().Err(err).Int("bytes", len(data)).Msg("skipping malformed frame")
				continue
			}
			fs.send(readResult{err: err})
			return
		}
		if !ok {
			continue
		}
		if !fs.send(readResult{ev: ev}) {
			return
		}
		if ev.IsTerminal() && fs.mode == ModeExchange {
			return
		}
	}
}

func (fs *FrameStream) send(r readResult) bool {
	select {
	case fs.events <- r:
		return true
	case <-fs.closed:
		return false
	}
}

func (fs *FrameStream) isClosed() bool {
	select {
	case <-fs.closed:
		return true
	default:
		return false
	}
}

// Next implements stream.EventStream.
func (fs *FrameStream) Next(ctx context.Context) (stream.Event, error) {
	if fs.isClosed() {
		return stream.Event{}, stream.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return stream.Event{}, err
	}

	select {
	case <-fs.closed:
		return stream.Event{}, stream.ErrClosed
	case <-ctx.Done():
		return stream.Event{}, ctx.Err()
	case r, ok := <-fs.events:
		if !ok {
			return stream.Event{}, io.EOF
		}
		if r.err != nil {
			return stream.Event{}, r.err
		}
		return r.ev, nil
	}
}

// Close implements stream.EventStream.
func (fs *FrameStream) Close() error {
	fs.once.Do(func() {
		close(fs.closed)
		if fs.closer != nil {
			fs.cerr = fs.closer()
		}
	})
	return fs.cerr
}
