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

// Package i2c provides the I2C transport for the MFRC522.
package i2c

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ZaparooProject/go-mfrc522"
	"github.com/ZaparooProject/go-mfrc522/internal/syncutil"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

const (
	// DefaultAddress is the 7-bit address with EA low and ADR pins tied as on
	// common breakout boards.
	DefaultAddress uint16 = 0x28

	// Max clock frequency (400 kHz fast mode).
	maxClockFreq = 400 * physic.KiloHertz

	traceSize = 32
)

// Transport implements the mfrc522.Transport interface for I2C communication
type Transport struct {
	dev     *i2c.Dev
	bus     i2c.BusCloser // Held so Close() can release the OS file descriptor
	trace   *mfrc522.TraceBuffer
	busName string
	mu      syncutil.Mutex
	closed  bool
}

// ParsePath splits a detection path of the form "/dev/i2c-1:0x28" into bus
// and address. A bare bus name gets DefaultAddress.
func ParsePath(path string) (bus string, addr uint16, err error) {
	bus, suffix, found := strings.Cut(path, ":")
	if !found || suffix == "" {
		return bus, DefaultAddress, nil
	}
	v, err := strconv.ParseUint(suffix, 0, 7)
	if err != nil {
		return "", 0, fmt.Errorf("%w: I2C address %q", mfrc522.ErrInvalidParameter, suffix)
	}
	return bus, uint16(v), nil
}

// New opens the bus named in path ("/dev/i2c-1" or "/dev/i2c-1:0x2B").
func New(path string) (*Transport, error) {
	busName, addr, err := ParsePath(path)
	if err != nil {
		return nil, err
	}

	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("failed to open I2C bus %s: %w", busName, err)
	}

	_ = bus.SetSpeed(maxClockFreq) // Ignore error, continue with default speed

	return newTransport(bus, addr, path), nil
}

func newTransport(bus i2c.BusCloser, addr uint16, name string) *Transport {
	return &Transport{
		dev:     &i2c.Dev{Addr: addr, Bus: bus},
		bus:     bus,
		busName: name,
		trace:   mfrc522.NewTraceBuffer("I2C", name, traceSize),
	}
}

// ReadRegister implements mfrc522.Transport.
func (t *Transport) ReadRegister(reg mfrc522.Register) (byte, error) {
	var buf [1]byte
	if err := t.ReadRegisterBlock(reg, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

// ReadRegisterBlock writes the register address and reads len(buf) bytes
// in one combined transaction.
//
//nolint:wrapcheck // WrapError intentionally wraps errors with trace data
func (t *Transport) ReadRegisterBlock(reg mfrc522.Register, buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkOpen("ReadRegister", reg, len(buf)); err != nil {
		return err
	}

	if err := t.dev.Tx([]byte{byte(reg)}, buf); err != nil {
		t.trace.RecordTimeout(reg, err.Error())
		return t.trace.WrapError(mfrc522.NewTransportError("ReadRegister", t.busName,
			fmt.Errorf("%w: %w", mfrc522.ErrTransportRead, err), mfrc522.ErrorTypeTransient))
	}
	t.trace.RecordRead(reg, buf...)
	return nil
}

// WriteRegister implements mfrc522.Transport.
func (t *Transport) WriteRegister(reg mfrc522.Register, value byte) error {
	return t.WriteRegisterBlock(reg, []byte{value})
}

// WriteRegisterBlock implements mfrc522.Transport.
//
//nolint:wrapcheck // WrapError intentionally wraps errors with trace data
func (t *Transport) WriteRegisterBlock(reg mfrc522.Register, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkOpen("WriteRegister", reg, len(data)); err != nil {
		return err
	}

	w := make([]byte, 0, len(data)+1)
	w = append(w, byte(reg))
	w = append(w, data...)
	t.trace.RecordWrite(reg, data...)
	if err := t.dev.Tx(w, nil); err != nil {
		return t.trace.WrapError(mfrc522.NewTransportError("WriteRegister", t.busName,
			fmt.Errorf("%w: %w", mfrc522.ErrTransportWrite, err), mfrc522.ErrorTypeTransient))
	}
	return nil
}

func (t *Transport) checkOpen(op string, reg mfrc522.Register, n int) error {
	if t.closed {
		return mfrc522.NewTransportClosedError(op, t.busName)
	}
	if reg > mfrc522.MaxRegister {
		return mfrc522.NewTransportError(op, t.busName,
			fmt.Errorf("%w: register 0x%02X", mfrc522.ErrInvalidParameter, byte(reg)), mfrc522.ErrorTypePermanent)
	}
	if n > mfrc522.FIFOSize {
		return mfrc522.NewDataTooLargeError(op, t.busName)
	}
	return nil
}

// Address returns the 7-bit device address.
func (t *Transport) Address() uint16 {
	return t.dev.Addr
}

// Close closes the transport connection
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	if t.bus != nil {
		if err := t.bus.Close(); err != nil {
			return fmt.Errorf("I2C close failed: %w", err)
		}
	}
	return nil
}

// IsConnected returns true if the transport is connected
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.closed
}

// Type returns the transport type
func (*Transport) Type() mfrc522.TransportType {
	return mfrc522.TransportI2C
}
