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

package mfrc522

import "fmt"

// Command is a PCD command written to the low nibble of CommandReg.
type Command byte

// PCD command codes
const (
	CmdIdle             Command = 0x00 // no action, cancels current command
	CmdMem              Command = 0x01 // stores 25 bytes into the internal buffer
	CmdGenerateRandomID Command = 0x02
	CmdCalcCRC          Command = 0x03 // CRC coprocessor or self-test
	CmdTransmit         Command = 0x04
	CmdNoCmdChange      Command = 0x07
	CmdReceive          Command = 0x08
	CmdTransceive       Command = 0x0C
	CmdMFAuthent        Command = 0x0E
	CmdSoftReset        Command = 0x0F
)

func (c Command) String() string {
	switch c {
	case CmdIdle:
		return "Idle"
	case CmdMem:
		return "Mem"
	case CmdGenerateRandomID:
		return "GenerateRandomID"
	case CmdCalcCRC:
		return "CalcCRC"
	case CmdTransmit:
		return "Transmit"
	case CmdNoCmdChange:
		return "NoCmdChange"
	case CmdReceive:
		return "Receive"
	case CmdTransceive:
		return "Transceive"
	case CmdMFAuthent:
		return "MFAuthent"
	case CmdSoftReset:
		return "SoftReset"
	default:
		return fmt.Sprintf("Command(0x%02X)", byte(c))
	}
}

// ISO14443-3 Type A PICC commands
const (
	PICCReqA   byte = 0x26 // 7-bit frame, IDLE -> READY
	PICCWupA   byte = 0x52 // 7-bit frame, IDLE or HALT -> READY
	PICCCT     byte = 0x88 // cascade tag
	PICCSelCL1 byte = 0x93
	PICCSelCL2 byte = 0x95
	PICCSelCL3 byte = 0x97
	PICCHltA   byte = 0x50
	PICCRATS   byte = 0xE0
)

// MIFARE Classic and Ultralight commands
const (
	MifareAuthKeyA  byte = 0x60
	MifareAuthKeyB  byte = 0x61
	MifareRead      byte = 0x30
	MifareWrite     byte = 0xA0
	MifareDecrement byte = 0xC0
	MifareIncrement byte = 0xC1
	MifareRestore   byte = 0xC2
	MifareTransfer  byte = 0xB0
	MifareULWrite   byte = 0xA2

	// MifareACK is the 4-bit acknowledge nibble.
	MifareACK byte = 0x0A
)

// Anti-collision framing
const (
	nvbSelect      byte = 0x70 // 7 valid bytes: SEL, NVB, 4 UID bytes, BCC
	nvbNoneKnown   byte = 0x20 // only SEL and NVB
	sakIncomplete  byte = 0x04
	shortFrameBits byte = 7
)

var cascadeCommands = [...]byte{PICCSelCL1, PICCSelCL2, PICCSelCL3}
