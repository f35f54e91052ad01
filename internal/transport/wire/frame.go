// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package wire encodes and decodes the JSON frames exchanged with the agent.
//
// Every frame is one JSON object with a "type" field:
//
//	{"type":"delta","part":0,"text":"Hel","source":"email"}
//	{"type":"done"}
//	{"type":"error","reason":"model overloaded"}
//	{"type":"message","message":{...}}   client to agent
//	{"type":"clear"}                     client to agent
//
// Over HTTP frames are newline delimited; over websocket each frame is one
// text message.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jeranaias/agentchat/internal/model"
	"github.com/jeranaias/agentchat/internal/stream"
	"github.com/jeranaias/agentchat/internal/transport"
)

// Frame types.
const (
	TypeDelta   = "delta"
	TypeDone    = "done"
	TypeError   = "error"
	TypeMessage = "message"
	TypeClear   = "clear"
	TypePing    = "ping"
)

// ErrMalformed marks frames that are not valid JSON. Readers skip them.
var ErrMalformed = errors.New("wire: malformed frame")

// Frame is the JSON shape of every message on the wire.
type Frame struct {
	Type    string         `json:"type"`
	Part    int            `json:"part,omitempty"`
	Text    string         `json:"text,omitempty"`
	Reason  string         `json:"reason,omitempty"`
	Source  model.Source   `json:"source,omitempty"`
	Message *model.Message `json:"message,omitempty"`
}

// =============================================================================
// DECODING
// =============================================================================

// DecodeEvent parses one inbound frame.
//
// It returns ok=false for frames that carry no event (pings, unknown types).
// Malformed JSON and out-of-range part indexes are protocol errors.
func DecodeEvent(data []byte) (ev stream.Event, ok bool, err error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return stream.Event{}, false, transport.Protocol(fmt.Errorf("%w: %v", ErrMalformed, err), "decode frame")
	}

	switch f.Type {
	case TypeDelta:
		if f.Part < 0 || f.Part >= model.MaxParts {
			return stream.Event{}, false, transport.Protocol(nil, fmt.Sprintf("delta part %d out of range", f.Part))
		}
		if !f.Source.Valid() {
			f.Source = model.SourceUnset
		}
		ev = stream.Delta(f.Part, f.Text)
		ev.Source = f.Source
		return ev, true, nil

	case TypeDone:
		ev = stream.Done()
		ev.Source = f.Source
		return ev, true, nil

	case TypeError:
		reason := f.Reason
		if reason == "" {
			reason = "agent reported an error"
		}
		return stream.Failure(reason), true, nil

	default:
		return stream.Event{}, false, nil
	}
}

// =============================================================================
// ENCODING
// =============================================================================

// EncodeEvent renders ev as a frame. Used by agents and test servers.
func EncodeEvent(ev stream.Event) ([]byte, error) {
	f := Frame{Source: ev.Source}
	switch ev.Kind {
	case stream.EventDelta:
		f.Type, f.Part, f.Text = TypeDelta, ev.Part, ev.Text
	case stream.EventDone:
		f.Type = TypeDone
	case stream.EventError:
		f.Type, f.Reason = TypeError, ev.Reason
	default:
		return nil, fmt.Errorf("encode: unknown event kind %v", ev.Kind)
	}
	return json.Marshal(f)
}

// EncodeMessage renders the outbound frame for a user message.
func EncodeMessage(msg model.Message) ([]byte, error) {
	return json.Marshal(Frame{Type: TypeMessage, Message: &msg})
}

// EncodeClear renders the history reset frame.
func EncodeClear() []byte {
	return []byte(`{"type":"clear"}`)
}

// DecodeOutbound parses a client frame. Agents use it to read messages and clears.
func DecodeOutbound(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, transport.Protocol(err, "decode frame")
	}
	if f.Type == TypeMessage && f.Message == nil {
		return Frame{}, transport.Protocol(nil, "message frame without message")
	}
	return f, nil
}
