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

// Package spi provides the SPI transport for the MFRC522.
package spi

import (
	"fmt"

	"github.com/ZaparooProject/go-mfrc522"
	"github.com/ZaparooProject/go-mfrc522/internal/syncutil"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

const (
	// Address byte: bit 7 selects read, bits 6-1 hold the register, bit 0 is 0.
	addrRead = 0x80
	addrMask = 0x7E

	// The MFRC522 accepts up to 10 MHz; 4 MHz keeps long jumper wires happy.
	defaultFreq = 4 * physic.MegaHertz
	mode        = spi.Mode0

	traceSize = 32
)

// resetPin drives NRSTPD.
type resetPin interface {
	Out(l gpio.Level) error
}

// Transport implements the mfrc522.Transport interface for SPI communication
type Transport struct {
	port     spi.PortCloser
	conn     spi.Conn
	reset    resetPin
	trace    *mfrc522.TraceBuffer
	portName string
	mu       syncutil.Mutex
	closed   bool
}

type config struct {
	resetPin string
	freq     physic.Frequency
}

// Option configures the SPI transport.
type Option func(*config)

// WithSpeed sets the SPI clock.
func WithSpeed(freq physic.Frequency) Option {
	return func(c *config) {
		c.freq = freq
	}
}

// WithResetPin wires the NRSTPD line to a GPIO, named as gpioreg knows it
// (for example "GPIO25"). The transport then implements mfrc522.Resetter.
func WithResetPin(name string) Option {
	return func(c *config) {
		c.resetPin = name
	}
}

// New creates a new SPI transport
func New(portName string, opts ...Option) (*Transport, error) {
	cfg := config{freq: defaultFreq}
	for _, opt := range opts {
		opt(&cfg)
	}

	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	port, err := spireg.Open(portName)
	if err != nil {
		return nil, fmt.Errorf("failed to open SPI port %s: %w", portName, err)
	}

	conn, err := port.Connect(cfg.freq, mode, 8)
	if err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("failed to connect SPI: %w", err)
	}

	var pin resetPin
	if cfg.resetPin != "" {
		p := gpioreg.ByName(cfg.resetPin)
		if p == nil {
			_ = port.Close()
			return nil, fmt.Errorf("reset pin %s not found", cfg.resetPin)
		}
		if err := p.Out(gpio.High); err != nil {
			_ = port.Close()
			return nil, fmt.Errorf("failed to drive reset pin %s: %w", cfg.resetPin, err)
		}
		pin = p
	}

	t := newTransport(conn, pin, portName)
	t.port = port
	return t, nil
}

func newTransport(conn spi.Conn, pin resetPin, portName string) *Transport {
	return &Transport{
		conn:     conn,
		reset:    pin,
		portName: portName,
		trace:    mfrc522.NewTraceBuffer("SPI", portName, traceSize),
	}
}

func writeAddr(reg mfrc522.Register) byte {
	return (byte(reg) << 1) & addrMask
}

func readAddr(reg mfrc522.Register) byte {
	return writeAddr(reg) | addrRead
}

// ReadRegister implements mfrc522.Transport.
func (t *Transport) ReadRegister(reg mfrc522.Register) (byte, error) {
	var buf [1]byte
	if err := t.ReadRegisterBlock(reg, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

// ReadRegisterBlock clocks out the read address once per byte; each answer
// arrives one byte after its address.
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

	w := make([]byte, len(buf)+1)
	addr := readAddr(reg)
	for i := range buf {
		w[i] = addr
	}
	r := make([]byte, len(w))
	if err := t.conn.Tx(w, r); err != nil {
		t.trace.RecordTimeout(reg, err.Error())
		return t.trace.WrapError(t.txError("ReadRegister", mfrc522.ErrTransportRead, err))
	}
	copy(buf, r[1:])
	t.trace.RecordRead(reg, buf...)
	return nil
}

// WriteRegister implements mfrc522.Transport.
func (t *Transport) WriteRegister(reg mfrc522.Register, value byte) error {
	return t.WriteRegisterBlock(reg, []byte{value})
}

// WriteRegisterBlock sends the write address followed by every data byte in
// one transaction.
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
	w = append(w, writeAddr(reg))
	w = append(w, data...)
	t.trace.RecordWrite(reg, data...)
	if err := t.conn.Tx(w, nil); err != nil {
		return t.trace.WrapError(t.txError("WriteRegister", mfrc522.ErrTransportWrite, err))
	}
	return nil
}

func (t *Transport) checkOpen(op string, reg mfrc522.Register, n int) error {
	if t.closed {
		return mfrc522.NewTransportClosedError(op, t.portName)
	}
	if reg > mfrc522.MaxRegister {
		return mfrc522.NewTransportError(op, t.portName,
			fmt.Errorf("%w: register 0x%02X", mfrc522.ErrInvalidParameter, byte(reg)), mfrc522.ErrorTypePermanent)
	}
	if n > mfrc522.FIFOSize {
		return mfrc522.NewDataTooLargeError(op, t.portName)
	}
	return nil
}

func (t *Transport) txError(op string, kind, err error) error {
	return mfrc522.NewTransportError(op, t.portName, fmt.Errorf("%w: %w", kind, err),
		mfrc522.ErrorTypeTransient)
}

// AssertReset drives NRSTPD low.
func (t *Transport) AssertReset() error {
	return t.driveReset(gpio.Low)
}

// ReleaseReset drives NRSTPD high.
func (t *Transport) ReleaseReset() error {
	return t.driveReset(gpio.High)
}

func (t *Transport) driveReset(level gpio.Level) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.reset == nil {
		return mfrc522.ErrResetNotSupported
	}
	if err := t.reset.Out(level); err != nil {
		return fmt.Errorf("reset pin: %w", err)
	}
	return nil
}

// Close closes the transport connection
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	if t.port != nil {
		if err := t.port.Close(); err != nil {
			return fmt.Errorf("SPI close failed: %w", err)
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
	return mfrc522.TransportSPI
}
