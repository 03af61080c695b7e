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
	"sync"
)

// Transport moves register values between the host and an MFRC522.
// This can be implemented by SPI, I2C or UART backends. Implementations do
// not retry; a failed access is reported and the driver gives up on the
// current operation.
type Transport interface {
	// ReadRegister reads one register.
	ReadRegister(reg Register) (byte, error)

	// ReadRegisterBlock fills buf with consecutive reads of the same
	// register (used to drain FIFODataReg).
	ReadRegisterBlock(reg Register, buf []byte) error

	// WriteRegister writes one register.
	WriteRegister(reg Register, value byte) error

	// WriteRegisterBlock writes data to the same register byte by byte
	// (used to fill FIFODataReg).
	WriteRegisterBlock(reg Register, data []byte) error

	// Close closes the transport connection
	Close() error

	// Type returns the transport type
	Type() TransportType
}

// Resetter is implemented by transports wired to the NRSTPD pin.
type Resetter interface {
	// AssertReset drives NRSTPD low, powering the chip down.
	AssertReset() error
	// ReleaseReset drives NRSTPD high, starting the oscillator.
	ReleaseReset() error
}

// TransportType represents the type of transport
type TransportType string

const (
	// TransportUART represents UART/serial transport.
	TransportUART TransportType = "uart"
	// TransportI2C represents I2C bus transport.
	TransportI2C TransportType = "i2c"
	// TransportSPI represents SPI bus transport.
	TransportSPI TransportType = "spi"
	// TransportMock represents a mock transport for testing
	TransportMock TransportType = "mock"
)

// MockTransport is a scripted register file for testing the driver without
// a chip model. Writes are stored and read back unless a register has queued
// reads, which are consumed first; the last queued value then sticks.
type MockTransport struct {
	errorMap  map[Register]error
	queued    map[Register][]byte
	writes    []RegisterWrite
	reads     map[Register]int
	registers [MaxRegister + 1]byte
	mu        sync.RWMutex
	closed    bool
}

// RegisterWrite is one write observed by MockTransport.
type RegisterWrite struct {
	Register Register
	Value    byte
}

// NewMockTransport creates a new mock transport
func NewMockTransport() *MockTransport {
	return &MockTransport{
		errorMap: make(map[Register]error),
		queued:   make(map[Register][]byte),
		reads:    make(map[Register]int),
	}
}

// ReadRegister implements Transport.
func (m *MockTransport) ReadRegister(reg Register) (byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readLocked(reg)
}

func (m *MockTransport) readLocked(reg Register) (byte, error) {
	if m.closed {
		return 0, NewTransportClosedError("ReadRegister", "mock")
	}
	if reg > MaxRegister {
		return 0, NewTransportError("ReadRegister", "mock", ErrInvalidParameter, ErrorTypePermanent)
	}
	m.reads[reg]++
	if err, ok := m.errorMap[reg]; ok {
		return 0, err
	}
	if q := m.queued[reg]; len(q) > 0 {
		v := q[0]
		if len(q) > 1 {
			m.queued[reg] = q[1:]
		} else {
			delete(m.queued, reg)
			m.registers[reg] = v
		}
		return v, nil
	}
	return m.registers[reg], nil
}

// ReadRegisterBlock implements Transport.
func (m *MockTransport) ReadRegisterBlock(reg Register, buf []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range buf {
		v, err := m.readLocked(reg)
		if err != nil {
			return err
		}
		buf[i] = v
	}
	return nil
}

// WriteRegister implements Transport.
func (m *MockTransport) WriteRegister(reg Register, value byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writeLocked(reg, value)
}

func (m *MockTransport) writeLocked(reg Register, value byte) error {
	if m.closed {
		return NewTransportClosedError("WriteRegister", "mock")
	}
	if reg > MaxRegister {
		return NewTransportError("WriteRegister", "mock", ErrInvalidParameter, ErrorTypePermanent)
	}
	if err, ok := m.errorMap[reg]; ok {
		return err
	}
	m.writes = append(m.writes, RegisterWrite{Register: reg, Value: value})
	m.registers[reg] = value
	return nil
}

// WriteRegisterBlock implements Transport.
func (m *MockTransport) WriteRegisterBlock(reg Register, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range data {
		if err := m.writeLocked(reg, v); err != nil {
			return err
		}
	}
	return nil
}

// Close implements Transport.
func (m *MockTransport) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// Type implements Transport.
func (*MockTransport) Type() TransportType {
	return TransportMock
}

// Test helper methods

// SetRegister sets the stored value of a register.
func (m *MockTransport) SetRegister(reg Register, value byte) {
	m.mu.Lock()
	m.registers[reg] = value
	m.mu.Unlock()
}

// Register returns the stored value of a register.
func (m *MockTransport) Register(reg Register) byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.registers[reg]
}

// QueueReads makes the next reads of reg return values in order.
func (m *MockTransport) QueueReads(reg Register, values ...byte) {
	m.mu.Lock()
	m.queued[reg] = append(m.queued[reg], values...)
	m.mu.Unlock()
}

// SetError makes every access to reg fail with err.
func (m *MockTransport) SetError(reg Register, err error) {
	m.mu.Lock()
	m.errorMap[reg] = err
	m.mu.Unlock()
}

// ClearError removes error injection for a register
func (m *MockTransport) ClearError(reg Register) {
	m.mu.Lock()
	delete(m.errorMap, reg)
	m.mu.Unlock()
}

// Writes returns every write seen so far, oldest first.
func (m *MockTransport) Writes() []RegisterWrite {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]RegisterWrite(nil), m.writes...)
}

// WritesTo returns the values written to reg, oldest first.
func (m *MockTransport) WritesTo(reg Register) []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []byte
	for _, w := range m.writes {
		if w.Register == reg {
			out = append(out, w.Value)
		}
	}
	return out
}

// GetReadCount returns how many times reg was read.
func (m *MockTransport) GetReadCount(reg Register) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.reads[reg]
}

// Reset clears all state.
func (m *MockTransport) Reset() {
	m.mu.Lock()
	m.errorMap = make(map[Register]error)
	m.queued = make(map[Register][]byte)
	m.reads = make(map[Register]int)
	m.writes = nil
	m.registers = [MaxRegister + 1]byte{}
	m.closed = false
	m.mu.Unlock()
}
