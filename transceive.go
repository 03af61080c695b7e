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

import (
	"errors"
	"fmt"
)

// Frame is the answer of a PICC to a transceive.
type Frame struct {
	Data []byte
	// ValidBits is the number of valid bits in the last byte of Data, 0
	// meaning all 8.
	ValidBits uint8
	// CollisionPos is the 1-based position of the first collided bit,
	// counted from bit 0 of Data[0] (receive alignment included). It is 0
	// when there was no collision or the chip could not locate it.
	CollisionPos int
}

// BitLen returns the number of bits held in Data.
func (f *Frame) BitLen() int {
	if len(f.Data) == 0 {
		return 0
	}
	if f.ValidBits == 0 {
		return len(f.Data) * 8
	}
	return (len(f.Data)-1)*8 + int(f.ValidBits)
}

type transceiveRequest struct {
	data       []byte
	txLastBits byte
	rxAlign    byte
	checkCRC   bool
}

// TransceiveRaw sends data to the PICC in the field and returns its answer.
// validBits is the number of bits of the last byte to send, 0 meaning all 8.
// No CRC is added or checked. On StatusCollision the returned frame holds the
// bits received and the collision position.
func (d *Device) TransceiveRaw(data []byte, validBits uint8) (*Frame, error) {
	if len(data) == 0 || validBits > 7 {
		return nil, statusError(StatusInvalid, "%d bytes with %d valid bits", len(data), validBits)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.transceive(transceiveRequest{data: data, txLastBits: validBits})
}

// transceive runs one Transceive exchange. With checkCRC set, a 4-bit
// answer is taken as a MIFARE ACK/NAK and anything else must end in a valid
// CRC_A, which is stripped.
func (d *Device) transceive(req transceiveRequest) (*Frame, error) {
	res, err := d.runCommand(commandRequest{
		command:  CmdTransceive,
		data:     req.data,
		waitIRq:  IrqRx | IrqIdle,
		framing:  req.rxAlign<<4 | req.txLastBits,
		readBack: true,
	})

	frame := &Frame{Data: res.data, ValidBits: res.validBits}
	if errors.Is(err, StatusCollision) {
		pos, collErr := d.collisionPosition()
		if collErr != nil {
			return nil, collErr
		}
		frame.CollisionPos = pos
		return frame, err
	}
	if err != nil {
		return nil, err
	}

	if len(frame.Data) == 0 {
		return nil, statusError(StatusInternalError, "transceive completed without data")
	}

	if !req.checkCRC {
		return frame, nil
	}
	if len(frame.Data) == 1 && frame.ValidBits == 4 {
		return nil, fmt.Errorf("%w: 4-bit answer 0x%X where data was expected", StatusMifareNack, frame.Data[0])
	}
	if frame.ValidBits != 0 {
		return nil, statusError(StatusCRCWrong, "partial last byte (%d bits)", frame.ValidBits)
	}
	payload, err := d.verifyCRC(frame.Data)
	if err != nil {
		return nil, err
	}
	frame.Data = payload
	return frame, nil
}

// collisionPosition reads CollReg after a collision. 0 means the chip
// flagged the position as not valid.
func (d *Device) collisionPosition() (int, error) {
	coll, err := d.readRegister(CollReg)
	if err != nil {
		return 0, err
	}
	if coll&CollPosNotValid != 0 {
		return 0, nil
	}
	pos := int(coll & CollPosMask)
	if pos == 0 {
		pos = 32
	}
	return pos, nil
}

// nakStatus interprets a 4-bit MIFARE answer.
func nakStatus(nibble byte) error {
	if nibble&0x0F == MifareACK {
		return nil
	}
	return fmt.Errorf("%w: NAK 0x%X", StatusMifareNack, nibble&0x0F)
}

// transceiveACK sends frame plus CRC and expects a 4-bit MIFARE ACK. With
// silenceIsOK a timeout counts as success, for the second step of value
// operations where the PICC does not answer.
func (d *Device) transceiveACK(frame []byte, silenceIsOK bool) error {
	withCRC, err := d.appendCRC(frame)
	if err != nil {
		return err
	}
	resp, err := d.transceive(transceiveRequest{data: withCRC})
	if err != nil {
		if silenceIsOK && errors.Is(err, StatusTimeout) {
			return nil
		}
		return err
	}
	if len(resp.Data) != 1 || resp.ValidBits != 4 {
		return statusError(StatusError, "expected 4-bit ACK, got %d bytes with %d valid bits",
			len(resp.Data), resp.ValidBits)
	}
	return nakStatus(resp.Data[0])
}
