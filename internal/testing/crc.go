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

package testing

// CRCA computes the ISO14443-3 Type A CRC of data, preset 0x6363. The result
// goes on the air low byte first.
func CRCA(data []byte) uint16 {
	return crc16(0x6363, data)
}

// AppendCRCA returns data followed by its CRC_A.
func AppendCRCA(data []byte) []byte {
	crc := CRCA(data)
	out := make([]byte, 0, len(data)+2)
	out = append(out, data...)
	return append(out, byte(crc), byte(crc>>8))
}

// checkCRCA reports whether frame ends in the CRC_A of the bytes before it.
func checkCRCA(frame []byte) bool {
	if len(frame) < 3 {
		return false
	}
	crc := CRCA(frame[:len(frame)-2])
	return frame[len(frame)-2] == byte(crc) && frame[len(frame)-1] == byte(crc>>8)
}

func crc16(preset uint16, data []byte) uint16 {
	crc := uint32(preset)
	for _, bt := range data {
		bt ^= uint8(crc & 0xff)
		bt ^= bt << 4
		bt32 := uint32(bt)
		crc = (crc >> 8) ^ (bt32 << 8) ^ (bt32 << 3) ^ (bt32 >> 4)
	}
	return uint16(crc)
}

// crcPreset maps ModeReg CRCPreset bits to the coprocessor start value.
func crcPreset(mode byte) uint16 {
	switch mode & 0x03 {
	case 0x00:
		return 0x0000
	case 0x01:
		return 0x6363
	case 0x02:
		return 0xA671
	default:
		return 0xFFFF
	}
}
