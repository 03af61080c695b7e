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

// Package uart provides the UART transport for the MFRC522.
package uart

import (
	"fmt"
	"io"
	"runtime"
	"strings"
	"time"

	"github.com/ZaparooProject/go-mfrc522"
	"github.com/ZaparooProject/go-mfrc522/internal/syncutil"
	"go.bug.st/serial"
)

const (
	// DefaultBaudRate is the rate the MFRC522 UART comes up with after reset.
	DefaultBaudRate = 9600

	addrRead = 0x80
	addrMask = 0x3F

	// Consecutive empty reads (each one a full port read timeout) before a
	// register access is given up.
	maxEmptyReads = 3

	traceSize = 32
)

// serialSpeeds maps baud rates to SerialSpeedReg values (BR_T0, BR_T1).
var serialSpeeds = map[int]byte{
	7200:    0xFA,
	9600:    0xEB,
	14400:   0xDA,
	19200:   0xCB,
	38400:   0xAB,
	57600:   0x9A,
	115200:  0x7A,
	128000:  0x74,
	230400:  0x5A,
	460800:  0x3A,
	921600:  0x1C,
	1228800: 0x15,
}

// port is the part of serial.Port the transport needs.
type port interface {
	io.ReadWriter
	ResetInputBuffer() error
	Close() error
}

// Transport implements the mfrc522.Transport interface for UART communication.
type Transport struct {
	port     port
	trace    *mfrc522.TraceBuffer
	portName string
	baudRate int
	mu       syncutil.Mutex
	closed   bool
}

// isWindows returns true if running on Windows
func isWindows() bool {
	return runtime.GOOS == "windows"
}

// getWindowsTimeout returns the port read timeout. Windows serial drivers
// deliver bytes later than Linux and macOS.
func getWindowsTimeout() time.Duration {
	if isWindows() {
		return 100 * time.Millisecond
	}
	return 50 * time.Millisecond
}

// New opens portName at DefaultBaudRate.
func New(portName string) (*Transport, error) {
	p, err := serial.Open(portName, &serial.Mode{
		BaudRate: DefaultBaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open UART port %s: %w", portName, err)
	}

	if err := p.SetReadTimeout(getWindowsTimeout()); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("failed to set UART read timeout: %w", err)
	}

	t := newTransport(p, portName)
	// Drop anything the chip sent while the port was closed.
	_ = p.ResetInputBuffer()
	return t, nil
}

func newTransport(p port, portName string) *Transport {
	return &Transport{
		port:     p,
		portName: portName,
		baudRate: DefaultBaudRate,
		trace:    mfrc522.NewTraceBuffer("UART", portName, traceSize),
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

// ReadRegisterBlock sends one read address per byte and collects the
// answers.
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

	addr := byte(reg)&addrMask | addrRead
	w := make([]byte, len(buf))
	for i := range w {
		w[i] = addr
	}
	if err := t.write("ReadRegister", w); err != nil {
		return t.trace.WrapError(err)
	}
	if err := t.readFull("ReadRegister", reg, buf); err != nil {
		return t.trace.WrapError(err)
	}
	t.trace.RecordRead(reg, buf...)
	return nil
}

// WriteRegister implements mfrc522.Transport.
func (t *Transport) WriteRegister(reg mfrc522.Register, value byte) error {
	return t.WriteRegisterBlock(reg, []byte{value})
}

// WriteRegisterBlock sends address and value pairs. The chip acknowledges
// every stored byte by echoing the address.
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
	return t.trace.WrapError(t.writeBlock(reg, data))
}

func (t *Transport) writeBlock(reg mfrc522.Register, data []byte) error {
	addr := byte(reg) & addrMask
	w := make([]byte, 0, 2*len(data))
	for _, v := range data {
		w = append(w, addr, v)
	}
	t.trace.RecordWrite(reg, data...)
	if err := t.write("WriteRegister", w); err != nil {
		return err
	}

	echo := make([]byte, len(data))
	if err := t.readFull("WriteRegister", reg, echo); err != nil {
		return err
	}
	for _, b := range echo {
		if b != addr {
			t.resync()
			return mfrc522.NewTransportError("WriteRegister", t.portName,
				fmt.Errorf("%w: sent 0x%02X, got 0x%02X", mfrc522.ErrEchoMismatch, addr, b),
				mfrc522.ErrorTypeTransient)
		}
	}
	return nil
}

func (t *Transport) write(op string, w []byte) error {
	n, err := t.port.Write(w)
	if err != nil {
		return mfrc522.NewTransportError(op, t.portName,
			fmt.Errorf("%w: %w", mfrc522.ErrTransportWrite, err), mfrc522.ErrorTypeTransient)
	}
	if n != len(w) {
		return mfrc522.NewTransportWriteError(op, t.portName)
	}
	return nil
}

// readFull fills buf, tolerating fragmented reads from USB bridges.
func (t *Transport) readFull(op string, reg mfrc522.Register, buf []byte) error {
	got := 0
	empty := 0
	for got < len(buf) {
		n, err := t.port.Read(buf[got:])
		if err != nil {
			return mfrc522.NewTransportError(op, t.portName,
				fmt.Errorf("%w: %w", mfrc522.ErrTransportRead, err), mfrc522.ErrorTypeTransient)
		}
		if n == 0 {
			empty++
			if empty >= maxEmptyReads {
				t.trace.RecordTimeout(reg, fmt.Sprintf("%d of %d bytes", got, len(buf)))
				t.resync()
				return mfrc522.NewTimeoutError(op, t.portName)
			}
			continue
		}
		empty = 0
		got += n
	}
	return nil
}

// resync drops late bytes so the next access starts on a clean line.
func (t *Transport) resync() {
	_ = t.port.ResetInputBuffer()
	_ = t.windowsPortRecovery()
}

// windowsPortRecovery drains the output buffer on Windows, where the driver
// may still hold bytes of the failed access.
func (t *Transport) windowsPortRecovery() error {
	if !isWindows() || t.port == nil {
		return nil
	}
	return t.drainWithRetry("Windows recovery")
}

// isInterruptedSystemCall checks if an error is caused by an interrupted system call
func isInterruptedSystemCall(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "interrupted system call") ||
		strings.Contains(errStr, "eintr")
}

// drainWithRetry performs port drain with retry logic for interrupted system calls
func (t *Transport) drainWithRetry(operation string) error {
	d, ok := t.port.(interface{ Drain() error })
	if !ok {
		return nil
	}

	const maxRetries = 3
	baseDelay := 2 * time.Millisecond

	for attempt := range maxRetries {
		err := d.Drain()
		if err == nil {
			return nil
		}
		if isInterruptedSystemCall(err) && attempt < maxRetries-1 {
			time.Sleep(baseDelay * time.Duration(1<<attempt)) // 2ms, 4ms
			continue
		}
		return fmt.Errorf("UART %s drain failed: %w", operation, err)
	}

	return fmt.Errorf("UART %s drain failed after %d retries", operation, maxRetries)
}

// SetBaudRate switches the chip and the host port to baud. The new
// SerialSpeedReg value is acknowledged at the old rate.
func (t *Transport) SetBaudRate(baud int) error {
	speed, ok := serialSpeeds[baud]
	if !ok {
		return fmt.Errorf("%w: baud rate %d", mfrc522.ErrInvalidParameter, baud)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkOpen("SetBaudRate", mfrc522.SerialSpeedReg, 1); err != nil {
		return err
	}

	ms, ok := t.port.(interface{ SetMode(*serial.Mode) error })
	if !ok {
		return fmt.Errorf("%w: port cannot change its baud rate", mfrc522.ErrTransportNotReady)
	}
	if err := t.writeBlock(mfrc522.SerialSpeedReg, []byte{speed}); err != nil {
		return t.trace.WrapError(err) //nolint:wrapcheck // WrapError intentionally wraps errors with trace data
	}
	if err := ms.SetMode(&serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}); err != nil {
		return fmt.Errorf("UART set mode failed: %w", err)
	}
	t.baudRate = baud
	return nil
}

// BaudRate returns the current line rate.
func (t *Transport) BaudRate() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.baudRate
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

// Close closes the transport connection
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	if err := t.port.Close(); err != nil {
		return fmt.Errorf("UART close failed: %w", err)
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
	return mfrc522.TransportUART
}
