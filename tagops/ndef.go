// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tagops

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/hsanjuan/go-ndef"
)

var (
	// ErrNoNDEF indicates the tag holds no NDEF message
	ErrNoNDEF = errors.New("no NDEF message found")
	// ErrInvalidNDEF indicates a malformed TLV area or NDEF message
	ErrInvalidNDEF = errors.New("invalid NDEF data")
	// ErrNDEFTooLarge indicates the message does not fit the data area
	ErrNDEFTooLarge = errors.New("NDEF message too large for tag")
)

// Type 2 tag TLV blocks
const (
	tlvNull       = 0x00
	tlvNDEF       = 0x03
	tlvTerminator = 0xFE
	tlvLongLength = 0xFF
)

// findNDEFTLV walks the TLV blocks of a data area and returns the value of
// the first NDEF TLV. Lock and memory control TLVs are skipped by length.
func findNDEFTLV(data []byte) ([]byte, error) {
	for i := 0; i < len(data); {
		tag := data[i]
		switch tag {
		case tlvNull:
			i++
			continue
		case tlvTerminator:
			return nil, ErrNoNDEF
		}

		length, header, err := tlvLength(data[i:])
		if err != nil {
			return nil, err
		}
		start := i + header
		if start+length > len(data) {
			return nil, fmt.Errorf("%w: TLV 0x%02X of %d bytes at offset %d overruns the data area",
				ErrInvalidNDEF, tag, length, i)
		}
		if tag == tlvNDEF {
			if length == 0 {
				return nil, ErrNoNDEF
			}
			return data[start : start+length], nil
		}
		i = start + length
	}
	return nil, ErrNoNDEF
}

// tlvLength decodes the length field of the TLV at the start of data and
// returns it with the size of the tag and length fields.
func tlvLength(data []byte) (length, header int, err error) {
	if len(data) < 2 {
		return 0, 0, fmt.Errorf("%w: truncated TLV", ErrInvalidNDEF)
	}
	if data[1] != tlvLongLength {
		return int(data[1]), 2, nil
	}
	if len(data) < 4 {
		return 0, 0, fmt.Errorf("%w: truncated TLV length", ErrInvalidNDEF)
	}
	return int(binary.BigEndian.Uint16(data[2:4])), 4, nil
}

// buildNDEFTLV wraps an encoded message in an NDEF TLV followed by a
// terminator.
func buildNDEFTLV(msg []byte) []byte {
	out := make([]byte, 0, len(msg)+5)
	if len(msg) < tlvLongLength {
		out = append(out, tlvNDEF, byte(len(msg)))
	} else {
		out = append(out, tlvNDEF, tlvLongLength)
		out = binary.BigEndian.AppendUint16(out, uint16(len(msg)))
	}
	out = append(out, msg...)
	return append(out, tlvTerminator)
}

// FirstText returns the text of the first well-known text record of msg.
func FirstText(msg *ndef.Message) (string, error) {
	for _, rec := range msg.Records {
		if rec.TNF() != ndef.NFCForumWellKnownType || rec.Type() != "T" {
			continue
		}
		payload, err := rec.Payload()
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrInvalidNDEF, err)
		}
		return parseTextPayload(payload.Marshal())
	}
	return "", ErrNoNDEF
}

// parseTextPayload strips the status byte and language code of a text
// record payload.
func parseTextPayload(payload []byte) (string, error) {
	if len(payload) < 1 {
		return "", fmt.Errorf("%w: text payload too short", ErrInvalidNDEF)
	}
	langLen := int(payload[0] & 0x3F)
	if len(payload) < 1+langLen {
		return "", fmt.Errorf("%w: text payload shorter than its language code", ErrInvalidNDEF)
	}
	return string(payload[1+langLen:]), nil
}
