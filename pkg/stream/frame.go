package stream

import (
	"bytes"

	"github.com/agentstation/labelview/internal/codec"
	"github.com/agentstation/labelview/pkg/errors"
	"github.com/agentstation/labelview/pkg/labels"
)

// Message kinds carried in the event stream frame header.
const (
	kindLabels = "#labels"
	kindInfo   = "#info"
)

// Header op values: 1 is a regular message, -1 a terminal error.
const (
	opMessage = 1
	opError   = -1
)

// Frame is one decoded inbound message. The concrete types are
// LabelsFrame, InfoFrame, and DecodeFailure.
type Frame interface {
	frame()
}

// LabelsFrame carries a batch of label entries and the batch's sequence
// number. Each entry is forwarded paired with that sequence.
type LabelsFrame struct {
	Seq    int64
	Labels []labels.Wire
}

func (LabelsFrame) frame() {}

// InfoFrame is a non-fatal advisory from the remote side, e.g. that a
// supplied cursor was too old and the stream is resyncing.
type InfoFrame struct {
	Name    string
	Message string
}

func (InfoFrame) frame() {}

// DecodeFailure reports a frame whose header or body failed to decode.
// It is soft: the connection stays open and the sequence continues; the
// consumer decides whether to keep reading.
type DecodeFailure struct {
	Err error
}

func (DecodeFailure) frame() {}

// frameHeader is the first CBOR data item of every binary message.
type frameHeader struct {
	Op      int64  `cbor:"op"`
	T       string `cbor:"t"`
	Error   string `cbor:"error"`
	Message string `cbor:"message"`
}

type labelsBody struct {
	Seq    int64         `cbor:"seq"`
	Labels []labels.Wire `cbor:"labels"`
}

type infoBody struct {
	Name    string `cbor:"name"`
	Message string `cbor:"message"`
}

type errorBody struct {
	Error   string `cbor:"error"`
	Message string `cbor:"message"`
}

// decodeFrame interprets one binary websocket message: a CBOR header
// naming the message kind followed by a CBOR body. It returns a Frame
// for anything soft, or a terminal error that ends the sequence.
func decodeFrame(data []byte) (Frame, error) {
	dec := codec.NewDecoder(bytes.NewReader(data))

	var header frameHeader
	if err := dec.Decode(&header); err != nil {
		return DecodeFailure{Err: errors.NewFrameDecodeError("", "undecodable header", err)}, nil
	}

	if header.Op == opError {
		// Terminal error frame. The error detail may live in the body
		// or, from older emitters, in the header itself.
		body := errorBody{Error: header.Error, Message: header.Message}
		_ = dec.Decode(&body)
		if body.Error == "" {
			body.Error = "UnknownError"
		}
		return nil, &errors.StreamError{Kind: body.Error, Message: body.Message}
	}
	if header.Op != opMessage {
		return DecodeFailure{Err: errors.NewFrameDecodeError(header.T, "unrecognized frame op", nil)}, nil
	}

	switch header.T {
	case kindLabels:
		var body labelsBody
		if err := dec.Decode(&body); err != nil {
			return DecodeFailure{Err: errors.NewFrameDecodeError(kindLabels, "undecodable body", err)}, nil
		}
		return LabelsFrame{Seq: body.Seq, Labels: body.Labels}, nil
	case kindInfo:
		var body infoBody
		if err := dec.Decode(&body); err != nil {
			return DecodeFailure{Err: errors.NewFrameDecodeError(kindInfo, "undecodable body", err)}, nil
		}
		return InfoFrame{Name: body.Name, Message: body.Message}, nil
	default:
		return DecodeFailure{Err: errors.NewFrameDecodeError(header.T, "unknown message kind", nil)}, nil
	}
}
