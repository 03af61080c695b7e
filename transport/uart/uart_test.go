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

package uart

import (
	"errors"
	"testing"

	"github.com/ZaparooProject/go-mfrc522"
	testutil "github.com/ZaparooProject/go-mfrc522/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
)

func newTestTransport() (*Transport, *testutil.VirtualUART, *testutil.VirtualMFRC522) {
	chip := testutil.NewVirtualMFRC522()
	line := testutil.NewVirtualUART(chip)
	return newTransport(line, "/dev/ttyUSB0"), line, chip
}

// recordingPort counts writes and can fail them.
type recordingPort struct {
	*testutil.VirtualUART
	writeErr error
	short    bool
	writes   [][]byte
}

func (p *recordingPort) Write(data []byte) (int, error) {
	p.writes = append(p.writes, append([]byte(nil), data...))
	if p.writeErr != nil {
		return 0, p.writeErr
	}
	if p.short {
		return len(data) - 1, nil
	}
	return p.VirtualUART.Write(data)
}

// modePort adds SetMode to the virtual line.
type modePort struct {
	*testutil.VirtualUART
	modes []*serial.Mode
}

func (p *modePort) SetMode(mode *serial.Mode) error {
	p.modes = append(p.modes, mode)
	return nil
}

func TestReadRegister(t *testing.T) {
	t.Parallel()

	tr, _, chip := newTestTransport()
	chip.SetVersion(0x91)

	v, err := tr.ReadRegister(mfrc522.VersionReg)
	require.NoError(t, err)
	assert.Equal(t, byte(0x91), v)
}

func TestWireFormat(t *testing.T) {
	t.Parallel()

	chip := testutil.NewVirtualMFRC522()
	p := &recordingPort{VirtualUART: testutil.NewVirtualUART(chip)}
	tr := newTransport(p, "uart")

	require.NoError(t, tr.WriteRegisterBlock(mfrc522.FIFODataReg, []byte{0x26, 0x52}))
	buf := make([]byte, 2)
	require.NoError(t, tr.ReadRegisterBlock(mfrc522.FIFODataReg, buf))
	assert.Equal(t, []byte{0x26, 0x52}, buf)

	require.Len(t, p.writes, 2)
	assert.Equal(t, []byte{0x09, 0x26, 0x09, 0x52}, p.writes[0])
	assert.Equal(t, []byte{0x89, 0x89}, p.writes[1])
}

func TestMissingEchoTimesOut(t *testing.T) {
	t.Parallel()

	tr, line, _ := newTestTransport()
	line.NoEcho = true

	err := tr.WriteRegister(mfrc522.CommandReg, 0)
	require.ErrorIs(t, err, mfrc522.ErrTransportTimeout)
	assert.ErrorIs(t, err, mfrc522.StatusInternalError)
	assert.True(t, mfrc522.IsRetryable(err))

	trace := mfrc522.GetTrace(err)
	require.NotNil(t, trace)
	require.Len(t, trace.Trace, 2)
	assert.Contains(t, trace.Trace[1].Note, "TIMEOUT")

	// Reads do not depend on the echo.
	line.NoEcho = false
	_, err = tr.ReadRegister(mfrc522.VersionReg)
	require.NoError(t, err)
}

func TestEchoMismatch(t *testing.T) {
	t.Parallel()

	tr, line, _ := newTestTransport()
	// A stale byte from an earlier access sits in front of the echo.
	_, err := line.Write([]byte{0x80 | byte(mfrc522.VersionReg)})
	require.NoError(t, err)

	err = tr.WriteRegister(mfrc522.CommandReg, 0)
	require.ErrorIs(t, err, mfrc522.ErrEchoMismatch)
	assert.True(t, mfrc522.IsRetryable(err))

	// The line was resynchronised.
	require.NoError(t, tr.WriteRegister(mfrc522.CommandReg, 0))
}

func TestWriteFailures(t *testing.T) {
	t.Parallel()

	chip := testutil.NewVirtualMFRC522()
	p := &recordingPort{VirtualUART: testutil.NewVirtualUART(chip), writeErr: errors.New("device reports readiness to read but returned no data")}
	tr := newTransport(p, "uart")

	err := tr.WriteRegister(mfrc522.CommandReg, 0)
	require.ErrorIs(t, err, mfrc522.ErrTransportWrite)
	assert.True(t, mfrc522.HasTrace(err))

	p.writeErr = nil
	p.short = true
	_, err = tr.ReadRegister(mfrc522.VersionReg)
	require.ErrorIs(t, err, mfrc522.ErrTransportWrite)
}

func TestClosedPort(t *testing.T) {
	t.Parallel()

	tr, line, _ := newTestTransport()
	require.NoError(t, line.Close())

	_, err := tr.ReadRegister(mfrc522.VersionReg)
	require.ErrorIs(t, err, mfrc522.ErrTransportWrite)

	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())
	_, err = tr.ReadRegister(mfrc522.VersionReg)
	require.ErrorIs(t, err, mfrc522.ErrTransportClosed)
	assert.True(t, mfrc522.IsFatal(err))
	assert.False(t, tr.IsConnected())
	assert.Equal(t, mfrc522.TransportUART, tr.Type())
}

func TestSetBaudRate(t *testing.T) {
	t.Parallel()

	chip := testutil.NewVirtualMFRC522()
	p := &modePort{VirtualUART: testutil.NewVirtualUART(chip)}
	tr := newTransport(p, "uart")

	require.NoError(t, tr.SetBaudRate(115200))
	assert.Equal(t, byte(0x7A), chip.ReadRegister(byte(mfrc522.SerialSpeedReg)))
	require.Len(t, p.modes, 1)
	assert.Equal(t, 115200, p.modes[0].BaudRate)
	assert.Equal(t, 115200, tr.BaudRate())

	require.ErrorIs(t, tr.SetBaudRate(12345), mfrc522.ErrInvalidParameter)

	plain, _, _ := newTestTransport()
	require.ErrorIs(t, plain.SetBaudRate(115200), mfrc522.ErrTransportNotReady)
	assert.Equal(t, DefaultBaudRate, plain.BaudRate())
}

func TestDeviceOverJitteryUART(t *testing.T) {
	t.Parallel()

	chip := testutil.NewVirtualMFRC522()
	chip.AddCard(testutil.NewVirtualMifare1K([]byte{0xDE, 0xAD, 0xBE, 0xEF}))
	line := testutil.NewJitteryConnection(testutil.NewVirtualUART(chip), testutil.JitterConfig{
		FragmentReads:    true,
		FragmentMinBytes: 1,
		Seed:             42,
	})
	tr := newTransport(line, "/dev/ttyUSB0")

	device, err := mfrc522.New(tr)
	require.NoError(t, err)
	require.NoError(t, device.Init())

	uid, err := device.Select()
	require.NoError(t, err)
	assert.Equal(t, "deadbeef", uid.String())
	require.NoError(t, device.HaltA())
}
