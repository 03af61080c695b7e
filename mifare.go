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
	"encoding/binary"
	"fmt"
)

// MIFARE Classic geometry
const (
	MifareBlockSize     = 16
	MifareKeySize       = 6
	UltralightPageSize  = 4
	mifareValueSize     = 4
	authUIDBytes        = 4
	authCommandDataSize = 2 + MifareKeySize + authUIDBytes
)

// KeyType selects key A or key B of a sector.
type KeyType byte

const (
	KeyA KeyType = KeyType(MifareAuthKeyA)
	KeyB KeyType = KeyType(MifareAuthKeyB)
)

func (k KeyType) String() string {
	switch k {
	case KeyA:
		return "A"
	case KeyB:
		return "B"
	default:
		return fmt.Sprintf("KeyType(0x%02X)", byte(k))
	}
}

// Key is a MIFARE Classic sector key.
type Key [MifareKeySize]byte

// DefaultKey is the transport key of new MIFARE Classic cards.
var DefaultKey = Key{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

// AuthSession is the Crypto1 session the driver believes to be active.
type AuthSession struct {
	UID     []byte
	KeyType KeyType
	Block   byte
}

// Authenticate runs MFAuthent against the selected PICC for the sector of
// block. The first four UID bytes take part in the handshake. On success
// the chip encrypts all further traffic until StopCrypto1 or a reset.
//
// A PICC that rejects the key yields StatusMifareNack wrapping
// ErrTagAuthFailed. A chip that never sets MFCrypto1On within the poll
// budget also yields StatusMifareNack, without ErrTagAuthFailed.
func (d *Device) Authenticate(keyType KeyType, block byte, key Key, uid *UID) error {
	if keyType != KeyA && keyType != KeyB {
		return statusError(StatusInvalid, "key type 0x%02X", byte(keyType))
	}
	if uid == nil || len(uid.Bytes) < authUIDBytes {
		return statusError(StatusInvalid, "authentication needs at least %d UID bytes", authUIDBytes)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.session = nil
	data := make([]byte, 0, authCommandDataSize)
	data = append(data, byte(keyType), block)
	data = append(data, key[:]...)
	data = append(data, uid.Bytes[:authUIDBytes]...)

	if err := d.mfAuthent(data); err != nil {
		Debugf("Authentication with key %s for block %d failed: %v", keyType, block, err)
		return err
	}
	d.session = &AuthSession{
		UID:     append([]byte(nil), uid.Bytes...),
		KeyType: keyType,
		Block:   block,
	}
	return nil
}

// mfAuthent polls Status2Reg for MFCrypto1On instead of waiting for a
// generic completion bit. The bit is cleared first; a session left over from
// another sector would otherwise read as success.
func (d *Device) mfAuthent(data []byte) (err error) {
	if err = d.clearRegisterBits(Status2Reg, Status2MFCrypto1On); err != nil {
		return err
	}
	defer func() {
		if idleErr := d.writeRegister(CommandReg, byte(CmdIdle)); idleErr != nil && err == nil {
			err = idleErr
		}
	}()

	if err = d.startCommand(commandRequest{command: CmdMFAuthent, data: data}); err != nil {
		return err
	}

	polls := d.config.AuthPollBudget
	for range polls {
		irq, err := d.readRegister(ComIrqReg)
		if err != nil {
			return err
		}
		status2, err := d.readRegister(Status2Reg)
		if err != nil {
			return err
		}
		if status2&Status2MFCrypto1On != 0 {
			return nil
		}
		if irq&(IrqIdle|IrqErr|IrqTimer) != 0 {
			return fmt.Errorf("%w: %w", StatusMifareNack, ErrTagAuthFailed)
		}
	}
	return statusError(StatusMifareNack, "MFCrypto1On not set within %d polls", polls)
}

// StopCrypto1 leaves the authenticated state. It must be called after
// communicating with an authenticated PICC before new communication starts.
func (d *Device) StopCrypto1() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.session = nil
	return d.clearRegisterBits(Status2Reg, Status2MFCrypto1On)
}

// Session returns the active authentication session, or nil.
func (d *Device) Session() *AuthSession {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.session == nil {
		return nil
	}
	s := *d.session
	s.UID = append([]byte(nil), d.session.UID...)
	return &s
}

// dropSessionOnError forgets the session after a failed block operation;
// the PICC leaves the authenticated state on any error.
func (d *Device) dropSessionOnError(err error) error {
	if err != nil {
		d.session = nil
	}
	return err
}

// MIFARERead reads 16 bytes from block. On MIFARE Ultralight this returns
// four pages starting at block.
func (d *Device) MIFARERead(block byte) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	data, err := d.mifareRead(block)
	return data, d.dropSessionOnError(err)
}

func (d *Device) mifareRead(block byte) ([]byte, error) {
	tx, err := d.appendCRC([]byte{MifareRead, block})
	if err != nil {
		return nil, err
	}
	frame, err := d.transceive(transceiveRequest{data: tx, checkCRC: true})
	if err != nil {
		return nil, err
	}
	if len(frame.Data) != MifareBlockSize {
		return nil, statusError(StatusError, "READ returned %d bytes", len(frame.Data))
	}
	return frame.Data, nil
}

// MIFAREWrite writes 16 bytes to block in the two-step MIFARE exchange. On
// MIFARE Ultralight only the first 4 bytes are stored.
func (d *Device) MIFAREWrite(block byte, data []byte) error {
	if len(data) != MifareBlockSize {
		return statusError(StatusInvalid, "block data must be %d bytes, got %d", MifareBlockSize, len(data))
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	err := d.transceiveACK([]byte{MifareWrite, block}, false)
	if err == nil {
		err = d.transceiveACK(data, false)
	}
	return d.dropSessionOnError(err)
}

// UltralightWrite writes one 4 byte page of a MIFARE Ultralight.
func (d *Device) UltralightWrite(page byte, data []byte) error {
	if len(data) != UltralightPageSize {
		return statusError(StatusInvalid, "page data must be %d bytes, got %d", UltralightPageSize, len(data))
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	frame := make([]byte, 0, 2+UltralightPageSize)
	frame = append(frame, MifareULWrite, page)
	frame = append(frame, data...)
	return d.dropSessionOnError(d.transceiveACK(frame, false))
}

// MIFAREIncrement adds delta to the value block and keeps the result in the
// PICC's transfer buffer. Use MIFARETransfer to store it.
func (d *Device) MIFAREIncrement(block byte, delta uint32) error {
	return d.valueOperation(MifareIncrement, block, delta)
}

// MIFAREDecrement subtracts delta from the value block into the transfer
// buffer.
func (d *Device) MIFAREDecrement(block byte, delta uint32) error {
	return d.valueOperation(MifareDecrement, block, delta)
}

// MIFARERestore copies the value block into the transfer buffer.
func (d *Device) MIFARERestore(block byte) error {
	return d.valueOperation(MifareRestore, block, 0)
}

func (d *Device) valueOperation(cmd, block byte, operand uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	err := d.transceiveACK([]byte{cmd, block}, false)
	if err == nil {
		var arg [mifareValueSize]byte
		binary.LittleEndian.PutUint32(arg[:], operand)
		err = d.transceiveACK(arg[:], true)
	}
	return d.dropSessionOnError(err)
}

// MIFARETransfer stores the transfer buffer into block.
func (d *Device) MIFARETransfer(block byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dropSessionOnError(d.transceiveACK([]byte{MifareTransfer, block}, false))
}

// MIFAREGetValue reads a value block.
func (d *Device) MIFAREGetValue(block byte) (int32, error) {
	data, err := d.MIFARERead(block)
	if err != nil {
		return 0, err
	}
	return DecodeValueBlock(data)
}

// MIFARESetValue formats block as a value block holding value.
func (d *Device) MIFARESetValue(block byte, value int32) error {
	return d.MIFAREWrite(block, EncodeValueBlock(value, block))
}

// EncodeValueBlock builds the MIFARE value block layout: value, inverted
// value, value, then the address byte four times alternating with its
// inverse.
func EncodeValueBlock(value int32, addr byte) []byte {
	block := make([]byte, MifareBlockSize)
	v := uint32(value)
	binary.LittleEndian.PutUint32(block[0:4], v)
	binary.LittleEndian.PutUint32(block[4:8], ^v)
	binary.LittleEndian.PutUint32(block[8:12], v)
	block[12], block[13], block[14], block[15] = addr, ^addr, addr, ^addr
	return block
}

// DecodeValueBlock validates the redundancy of a value block and returns
// its value.
func DecodeValueBlock(block []byte) (int32, error) {
	if len(block) != MifareBlockSize {
		return 0, fmt.Errorf("%w: value block must be %d bytes", ErrInvalidFormat, MifareBlockSize)
	}
	v := binary.LittleEndian.Uint32(block[0:4])
	if binary.LittleEndian.Uint32(block[4:8]) != ^v || binary.LittleEndian.Uint32(block[8:12]) != v {
		return 0, fmt.Errorf("%w: value redundancy mismatch", ErrInvalidFormat)
	}
	if block[12] != block[14] || block[13] != block[15] || block[12] != ^block[13] {
		return 0, fmt.Errorf("%w: address redundancy mismatch", ErrInvalidFormat)
	}
	return int32(v), nil
}
