// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Weft Contributors

package proto

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"

	werr "github.com/weft-dev/weft/pkg/errors"
)

// MaxFrameSize bounds a single frame's payload. Oversized frames are
// rejected before any payload allocation.
const MaxFrameSize = 16 << 20 // 16 MiB

// WriteFrame encodes msg as JSON and writes it with a 4-byte
// little-endian length prefix.
func WriteFrame(w io.Writer, msg *Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return werr.Wrapf(err, werr.CodeProtoDecodeInvalid, "encoding message %s", msg.ID)
	}
	if len(payload) > MaxFrameSize {
		return werr.Errorf(werr.CodeProtoFrameTooLarge, "frame of %d bytes exceeds max %d", len(payload), MaxFrameSize)
	}

	var prefix [4]byte
	binary.LittleEndian.PutUint32(prefix[:], uint32(len(payload)))
	if _, err := w.Write(prefix[:]); err != nil {
		return werr.Wrap(err, werr.CodeProtoConnectionClosed, "writing frame prefix")
	}
	if _, err := w.Write(payload); err != nil {
		return werr.Wrap(err, werr.CodeProtoConnectionClosed, "writing frame payload")
	}
	return nil
}

// ReadFrame reads one length-prefixed message. A clean EOF at a frame
// boundary yields CodeProtoConnectionClosed.
func ReadFrame(r io.Reader) (*Message, error) {
	var prefix [4]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, werr.New(werr.CodeProtoConnectionClosed, "connection closed")
		}
		return nil, werr.Wrap(err, werr.CodeProtoConnectionClosed, "reading frame prefix")
	}

	size := binary.LittleEndian.Uint32(prefix[:])
	if size > MaxFrameSize {
		return nil, werr.Errorf(werr.CodeProtoFrameTooLarge, "frame of %d bytes exceeds max %d", size, MaxFrameSize)
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, werr.Wrap(err, werr.CodeProtoConnectionClosed, "reading frame payload")
	}

	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, werr.Wrap(err, werr.CodeProtoDecodeInvalid, "decoding frame payload")
	}
	return &msg, nil
}
