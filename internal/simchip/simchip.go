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

// Package simchip connects a Device to the register-level chip simulator so
// packages layered on the driver can be tested without hardware.
package simchip

import (
	"testing"

	"github.com/ZaparooProject/go-mfrc522"
	"github.com/ZaparooProject/go-mfrc522/internal/syncutil"
	testutil "github.com/ZaparooProject/go-mfrc522/internal/testing"
	"github.com/stretchr/testify/require"
)

// Transport exposes a VirtualMFRC522 through the Transport interface.
type Transport struct {
	chip   *testutil.VirtualMFRC522
	mu     syncutil.Mutex
	closed bool
}

// NewTransport wraps chip.
func NewTransport(chip *testutil.VirtualMFRC522) *Transport {
	return &Transport{chip: chip}
}

func (t *Transport) checkOpen(op string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return mfrc522.NewTransportClosedError(op, "sim")
	}
	return nil
}

// ReadRegister reads one register of the simulated chip.
func (t *Transport) ReadRegister(reg mfrc522.Register) (byte, error) {
	if err := t.checkOpen("ReadRegister"); err != nil {
		return 0, err
	}
	return t.chip.ReadRegister(byte(reg)), nil
}

// ReadRegisterBlock reads reg len(buf) times.
func (t *Transport) ReadRegisterBlock(reg mfrc522.Register, buf []byte) error {
	if err := t.checkOpen("ReadRegisterBlock"); err != nil {
		return err
	}
	for i := range buf {
		buf[i] = t.chip.ReadRegister(byte(reg))
	}
	return nil
}

// WriteRegister writes one register of the simulated chip.
func (t *Transport) WriteRegister(reg mfrc522.Register, value byte) error {
	if err := t.checkOpen("WriteRegister"); err != nil {
		return err
	}
	t.chip.WriteRegister(byte(reg), value)
	return nil
}

// WriteRegisterBlock writes every byte of data to reg.
func (t *Transport) WriteRegisterBlock(reg mfrc522.Register, data []byte) error {
	if err := t.checkOpen("WriteRegisterBlock"); err != nil {
		return err
	}
	for _, v := range data {
		t.chip.WriteRegister(byte(reg), v)
	}
	return nil
}

// Close marks the transport closed. Later accesses fail.
func (t *Transport) Close() error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	return nil
}

// Type returns TransportMock.
func (*Transport) Type() mfrc522.TransportType {
	return mfrc522.TransportMock
}

// NewDevice returns an initialized device talking to a fresh simulated chip
// with cards in its field.
func NewDevice(tb testing.TB, cards ...*testutil.VirtualCard) (*mfrc522.Device, *testutil.VirtualMFRC522) {
	tb.Helper()

	chip := testutil.NewVirtualMFRC522()
	for _, c := range cards {
		chip.AddCard(c)
	}
	device, err := mfrc522.New(NewTransport(chip),
		mfrc522.WithPollBudget(50), mfrc522.WithCRCPollBudget(50), mfrc522.WithAuthPollBudget(50))
	require.NoError(tb, err)
	require.NoError(tb, device.Init())
	chip.ClearLogs()
	return device, chip
}
