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
)

// maxAnticollisionRounds bounds the rounds of one cascade level. Every round
// learns at least one more of the 32 UID bits.
const maxAnticollisionRounds = 32

// RequestA sends REQA, moving PICCs in IDLE to READY. StatusTimeout means
// no PICC answered. With several PICCs in the field the ATQA may collide;
// the bits received are returned together with StatusCollision.
func (d *Device) RequestA() (ATQA, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.requestA(PICCReqA)
}

// WakeupA sends WUPA, which also wakes PICCs in HALT.
func (d *Device) WakeupA() (ATQA, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.requestA(PICCWupA)
}

func (d *Device) requestA(cmd byte) (ATQA, error) {
	if err := d.clearRegisterBits(CollReg, CollValuesAfterColl); err != nil {
		return ATQA{}, err
	}
	frame, err := d.transceive(transceiveRequest{data: []byte{cmd}, txLastBits: shortFrameBits})
	collision := errors.Is(err, StatusCollision)
	if err != nil && !collision {
		return ATQA{}, err
	}

	var atqa ATQA
	copy(atqa[:], frame.Data)
	if collision {
		return atqa, err
	}
	if len(frame.Data) != 2 || frame.ValidBits != 0 {
		return ATQA{}, statusError(StatusError, "ATQA of %d bytes with %d valid bits",
			len(frame.Data), frame.ValidBits)
	}
	return atqa, nil
}

// IsNewCardPresent reports whether a PICC in IDLE answers REQA. A collision
// means several PICCs answered, which counts as present.
func (d *Device) IsNewCardPresent() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.requestA(PICCReqA)
	return err == nil || errors.Is(err, StatusCollision)
}

// Select sends REQA and runs anti-collision and selection through every
// cascade level, leaving exactly one PICC in ACTIVE. StatusTimeout means no
// PICC is in the field.
func (d *Device) Select() (*UID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := d.requestA(PICCReqA); err != nil && !errors.Is(err, StatusCollision) {
		return nil, err
	}
	return d.selectCascade(nil)
}

// ReadCardSerial selects a PICC already moved to READY by RequestA,
// WakeupA or IsNewCardPresent.
func (d *Device) ReadCardSerial() (*UID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.selectCascade(nil)
}

// Reselect wakes a known PICC, including one in HALT, and selects it by its
// full UID without anti-collision rounds.
func (d *Device) Reselect(uid *UID) (*UID, error) {
	if uid == nil || !validUIDSize(len(uid.Bytes)) {
		return nil, statusError(StatusInvalid, "UID must be 4, 7 or 10 bytes")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := d.requestA(PICCWupA); err != nil && !errors.Is(err, StatusCollision) {
		return nil, err
	}
	return d.selectCascade(uid.Bytes)
}

// selectCascade walks cascade levels 1 to 3. known, if set, is the complete
// UID of the PICC to select.
func (d *Device) selectCascade(known []byte) (*UID, error) {
	if err := d.clearRegisterBits(CollReg, CollValuesAfterColl); err != nil {
		return nil, err
	}

	uid := make([]byte, 0, 10)
	for level, sel := range cascadeCommands {
		var levelKnown []byte
		if known != nil {
			levelKnown = knownFragment(known, level)
		}

		fragment, sak, err := d.selectLevel(sel, levelKnown)
		if err != nil {
			return nil, err
		}

		if sak&sakIncomplete == 0 {
			uid = append(uid, fragment...)
			Debugf("Selected PICC %x (SAK 0x%02X) at cascade level %d", uid, sak, level+1)
			return &UID{Bytes: uid, SAK: sak}, nil
		}
		if fragment[0] != PICCCT {
			return nil, statusError(StatusInternalError,
				"SAK 0x%02X announces another cascade level but fragment has no cascade tag", sak)
		}
		uid = append(uid, fragment[1:]...)
	}
	return nil, statusError(StatusInternalError, "UID still incomplete after cascade level 3")
}

// knownFragment returns the four bytes a PICC with the given UID sends at a
// cascade level, cascade tag included.
func knownFragment(uid []byte, level int) []byte {
	switch {
	case len(uid) == 4 && level == 0:
		return uid[0:4]
	case len(uid) == 7 && level == 0, len(uid) == 10 && level == 0:
		return []byte{PICCCT, uid[0], uid[1], uid[2]}
	case len(uid) == 7 && level == 1:
		return uid[3:7]
	case len(uid) == 10 && level == 1:
		return []byte{PICCCT, uid[3], uid[4], uid[5]}
	case len(uid) == 10 && level == 2:
		return uid[6:10]
	default:
		return nil
	}
}

// bcc is the XOR of a UID fragment.
func bcc(fragment []byte) byte {
	var b byte
	for _, v := range fragment {
		b ^= v
	}
	return b
}

// selectLevel resolves one cascade level and returns its 4 byte fragment and
// the SAK.
func (d *Device) selectLevel(sel byte, known []byte) (fragment []byte, sak byte, err error) {
	// SEL, NVB, 4 fragment bytes, BCC
	var buf [7]byte
	buf[0] = sel

	knownBits := 0
	receivedBCC := false
	if known != nil {
		copy(buf[2:6], known)
		knownBits = 32
	}

	for round := 0; knownBits < 32; round++ {
		if round == maxAnticollisionRounds {
			return nil, 0, statusError(StatusInternalError, "anti-collision did not converge")
		}

		complete, err := d.anticollisionRound(&buf, &knownBits)
		if err != nil {
			return nil, 0, err
		}
		receivedBCC = complete
	}

	if receivedBCC {
		if buf[6] != bcc(buf[2:6]) {
			return nil, 0, statusError(StatusCRCWrong, "BCC 0x%02X does not match fragment % X", buf[6], buf[2:6])
		}
	} else {
		buf[6] = bcc(buf[2:6])
	}

	sak, err = d.selectFragment(&buf)
	if err != nil {
		return nil, 0, err
	}
	return append([]byte(nil), buf[2:6]...), sak, nil
}

// anticollisionRound sends the known bits of the level and merges the answer
// into buf. It returns true once the whole fragment and BCC arrived without
// collision.
func (d *Device) anticollisionRound(buf *[7]byte, knownBits *int) (bool, error) {
	fullBytes := *knownBits / 8
	extraBits := byte(*knownBits % 8)
	start := 2 + fullBytes

	buf[1] = byte(start)<<4 | extraBits
	txLen := start
	if extraBits > 0 {
		txLen++
	}

	frame, err := d.transceive(transceiveRequest{
		data:       append([]byte(nil), buf[:txLen]...),
		txLastBits: extraBits,
		rxAlign:    extraBits,
	})
	collision := errors.Is(err, StatusCollision)
	if err != nil && !collision {
		return false, err
	}

	mergeReceived(buf[:], start, extraBits, frame.Data)

	if !collision {
		if want := len(buf) - start; len(frame.Data) != want || frame.ValidBits != 0 {
			return false, statusError(StatusError, "anti-collision answer of %d bytes (%d valid bits), want %d",
				len(frame.Data), frame.ValidBits, want)
		}
		*knownBits = 32
		return true, nil
	}

	if frame.CollisionPos == 0 {
		return false, statusError(StatusInternalError, "collision position not valid")
	}
	pos := fullBytes*8 + frame.CollisionPos
	if pos <= *knownBits || pos > 32 {
		return false, statusError(StatusInternalError, "collision at bit %d with %d bits known", pos, *knownBits)
	}

	// Keep the bits before the collision, take the 1 branch.
	idx := 2 + (pos-1)/8
	bit := byte((pos - 1) % 8)
	buf[idx] = buf[idx]&(1<<bit-1) | 1<<bit
	for i := idx + 1; i < len(buf); i++ {
		buf[i] = 0
	}
	Debugf("Collision at bit %d of level 0x%02X", pos, buf[0])
	*knownBits = pos
	return false, nil
}

// mergeReceived copies received bytes into buf at start. The low rxAlign
// bits of the first byte were sent by us and are kept.
func mergeReceived(buf []byte, start int, rxAlign byte, data []byte) {
	for i, v := range data {
		at := start + i
		if at >= len(buf) {
			return
		}
		if i == 0 && rxAlign > 0 {
			low := byte(1)<<rxAlign - 1
			buf[at] = buf[at]&low | v&^low
			continue
		}
		buf[at] = v
	}
}

// selectFragment sends SELECT for the fully known fragment in buf and
// returns the SAK.
func (d *Device) selectFragment(buf *[7]byte) (byte, error) {
	buf[1] = nvbSelect
	tx, err := d.appendCRC(buf[:])
	if err != nil {
		return 0, err
	}

	frame, err := d.transceive(transceiveRequest{data: tx})
	if errors.Is(err, StatusCollision) {
		return 0, statusError(StatusInternalError, "collision answering SELECT with a complete UID")
	}
	if err != nil {
		return 0, err
	}
	if len(frame.Data) != 3 || frame.ValidBits != 0 {
		return 0, statusError(StatusError, "SAK of %d bytes with %d valid bits", len(frame.Data), frame.ValidBits)
	}
	payload, err := d.verifyCRC(frame.Data)
	if err != nil {
		return 0, err
	}
	return payload[0], nil
}

// HaltA sends HLTA to the ACTIVE PICC. The PICC must stay silent; any
// answer is reported as StatusError.
func (d *Device) HaltA() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	tx, err := d.appendCRC([]byte{PICCHltA, 0x00})
	if err != nil {
		return err
	}
	_, err = d.transceive(transceiveRequest{data: tx})
	if errors.Is(err, StatusTimeout) {
		return nil
	}
	if err != nil {
		return err
	}
	return statusError(StatusError, "PICC answered HLTA")
}
