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

// ReadRegister reads a single register.
func (d *Device) ReadRegister(reg Register) (byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.readRegister(reg)
}

// ReadRegisterBlock reads n bytes from the same register.
func (d *Device) ReadRegisterBlock(reg Register, n int) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	buf := make([]byte, n)
	if err := d.readRegisterBlock(reg, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// WriteRegister writes a single register.
func (d *Device) WriteRegister(reg Register, value byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.writeRegister(reg, value)
}

// WriteRegisterBlock writes data to the same register.
func (d *Device) WriteRegisterBlock(reg Register, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.writeRegisterBlock(reg, data)
}

// SetRegisterBits sets mask in reg with a read-modify-write.
func (d *Device) SetRegisterBits(reg Register, mask byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.setRegisterBits(reg, mask)
}

// ClearRegisterBits clears mask in reg with a read-modify-write.
func (d *Device) ClearRegisterBits(reg Register, mask byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.clearRegisterBits(reg, mask)
}

func (d *Device) readRegister(reg Register) (byte, error) {
	v, err := d.transport.ReadRegister(reg)
	if err != nil {
		return 0, transportFault("read", reg, err)
	}
	return v, nil
}

func (d *Device) readRegisterBlock(reg Register, buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	if err := d.transport.ReadRegisterBlock(reg, buf); err != nil {
		return transportFault("read block", reg, err)
	}
	return nil
}

func (d *Device) writeRegister(reg Register, value byte) error {
	if err := d.transport.WriteRegister(reg, value); err != nil {
		return transportFault("write", reg, err)
	}
	return nil
}

func (d *Device) writeRegisterBlock(reg Register, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if err := d.transport.WriteRegisterBlock(reg, data); err != nil {
		return transportFault("write block", reg, err)
	}
	return nil
}

func (d *Device) setRegisterBits(reg Register, mask byte) error {
	v, err := d.readRegister(reg)
	if err != nil {
		return err
	}
	return d.writeRegister(reg, v|mask)
}

func (d *Device) clearRegisterBits(reg Register, mask byte) error {
	v, err := d.readRegister(reg)
	if err != nil {
		return err
	}
	return d.writeRegister(reg, v&^mask)
}

// transportFault makes a bus failure an internal error while keeping the
// transport error reachable with errors.As.
func transportFault(op string, reg Register, err error) error {
	return fmt.Errorf("%w: %s %s: %w", StatusInternalError, op, reg, err)
}
