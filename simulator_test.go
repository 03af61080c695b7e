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
	testutil "github.com/ZaparooProject/go-mfrc522/internal/testing"
	"github.com/stretchr/testify/require"
)

// simTransport connects a Device to the register-level chip simulator.
type simTransport struct {
	chip   *testutil.VirtualMFRC522
	closed bool
}

func (s *simTransport) ReadRegister(reg Register) (byte, error) {
	if s.closed {
		return 0, NewTransportClosedError("ReadRegister", "sim")
	}
	return s.chip.ReadRegister(byte(reg)), nil
}

func (s *simTransport) ReadRegisterBlock(reg Register, buf []byte) error {
	for i := range buf {
		v, err := s.ReadRegister(reg)
		if err != nil {
			return err
		}
		buf[i] = v
	}
	return nil
}

func (s *simTransport) WriteRegister(reg Register, value byte) error {
	if s.closed {
		return NewTransportClosedError("WriteRegister", "sim")
	}
	s.chip.WriteRegister(byte(reg), value)
	return nil
}

func (s *simTransport) WriteRegisterBlock(reg Register, data []byte) error {
	for _, v := range data {
		if err := s.WriteRegister(reg, v); err != nil {
			return err
		}
	}
	return nil
}

func (s *simTransport) Close() error {
	s.closed = true
	return nil
}

func (*simTransport) Type() TransportType {
	return TransportMock
}

type testingTB interface {
	require.TestingT
	Helper()
}

// newSimDevice returns a configured device talking to a simulated chip with
// cards in its field. The chip starts from its reset state, so the reset
// delay of Init is skipped.
func newSimDevice(t testingTB, cards ...*testutil.VirtualCard) (*Device, *testutil.VirtualMFRC522) {
	t.Helper()

	chip := testutil.NewVirtualMFRC522()
	for _, c := range cards {
		chip.AddCard(c)
	}
	device, err := New(&simTransport{chip: chip}, WithPollBudget(50), WithCRCPollBudget(50), WithAuthPollBudget(50))
	require.NoError(t, err)
	require.NoError(t, device.configure())
	chip.ClearLogs()
	return device, chip
}

// countFrames counts transmissions whose first bytes match prefix.
func countFrames(chip *testutil.VirtualMFRC522, prefix ...byte) int {
	n := 0
	for _, tx := range chip.Transmissions() {
		if len(tx.Data) < len(prefix) {
			continue
		}
		match := true
		for i, b := range prefix {
			if tx.Data[i] != b {
				match = false
				break
			}
		}
		if match {
			n++
		}
	}
	return n
}
