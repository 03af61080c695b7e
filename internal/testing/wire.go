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

import (
	"errors"

	"github.com/ZaparooProject/go-mfrc522/internal/syncutil"
)

// SPITransfer runs one full-duplex SPI transaction against the chip. The
// first byte selects the register: (addr<<1)&0x7E, with bit 7 set for a
// read. A write stores every following byte into that register; a read
// returns each addressed register one byte later than its address byte.
func (v *VirtualMFRC522) SPITransfer(w []byte) []byte {
	r := make([]byte, len(w))
	if len(w) == 0 {
		return r
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	if w[0]&0x80 == 0 {
		reg := (w[0] >> 1) & 0x3F
		for _, b := range w[1:] {
			v.write(reg, b)
		}
		return r
	}
	for i := 0; i < len(w)-1; i++ {
		r[i+1] = v.read((w[i] >> 1) & 0x3F)
	}
	return r
}

// I2CTransfer runs one I2C write-then-read. w starts with the register
// address; the remaining bytes are written to it. Each byte of r is a read
// of the same register.
func (v *VirtualMFRC522) I2CTransfer(w, r []byte) error {
	if len(w) == 0 {
		return errors.New("i2c transfer without register address")
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	reg := w[0] & 0x3F
	for _, b := range w[1:] {
		v.write(reg, b)
	}
	for i := range r {
		r[i] = v.read(reg)
	}
	return nil
}

// VirtualUART speaks the MFRC522 UART protocol. A byte with bit 7 set reads
// the register in its low six bits. A byte with bit 7 clear selects a
// register for writing; the next byte is the value, and the chip echoes the
// address byte once it is stored.
type VirtualUART struct {
	chip    *VirtualMFRC522
	out     []byte
	mu      syncutil.Mutex
	pending int
	closed  bool
	// NoEcho suppresses the write acknowledge.
	NoEcho bool
}

// NewVirtualUART connects a UART front end to chip.
func NewVirtualUART(chip *VirtualMFRC522) *VirtualUART {
	return &VirtualUART{chip: chip, pending: -1}
}

// Write feeds host bytes to the chip.
func (u *VirtualUART) Write(data []byte) (int, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return 0, errors.New("port closed")
	}
	for _, b := range data {
		if u.pending >= 0 {
			addr := byte(u.pending)
			u.chip.WriteRegister(addr, b)
			u.pending = -1
			if !u.NoEcho {
				u.out = append(u.out, addr)
			}
			continue
		}
		if b&0x80 != 0 {
			u.out = append(u.out, u.chip.ReadRegister(b&0x3F))
			continue
		}
		u.pending = int(b & 0x3F)
	}
	return len(data), nil
}

// Read returns chip bytes. It returns 0 bytes and no error when nothing is
// waiting, like a serial port whose read timeout expired.
func (u *VirtualUART) Read(buf []byte) (int, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return 0, errors.New("port closed")
	}
	n := copy(buf, u.out)
	u.out = u.out[n:]
	return n, nil
}

// ResetInputBuffer drops unread chip bytes.
func (u *VirtualUART) ResetInputBuffer() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.out = nil
	return nil
}

// Close marks the port closed.
func (u *VirtualUART) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.closed = true
	return nil
}
