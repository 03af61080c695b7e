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
	"testing"

	testutil "github.com/ZaparooProject/go-mfrc522/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateCRC(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data []byte
		want uint16
	}{
		{name: "HLTA", data: []byte{PICCHltA, 0x00}, want: 0xCD57},
		{name: "READ block 0", data: []byte{MifareRead, 0x00}, want: 0xA802},
		{name: "empty", data: nil, want: 0x6363},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			device, chip := newSimDevice(t)
			crc, err := device.CalculateCRC(tt.data)
			require.NoError(t, err)
			assert.Equal(t, tt.want, crc)
			assert.Equal(t, byte(CmdIdle), chip.CurrentCommand())
		})
	}
}

func TestAppendCRC(t *testing.T) {
	t.Parallel()

	device, _ := newSimDevice(t)
	frame := []byte{PICCHltA, 0x00}
	out, err := device.appendCRC(frame)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x50, 0x00, 0x57, 0xCD}, out)
	assert.Equal(t, []byte{0x50, 0x00}, frame, "input is not modified")
}

func TestCalculateCRC_NoRoom(t *testing.T) {
	t.Parallel()

	device, chip := newSimDevice(t)
	_, err := device.CalculateCRC(make([]byte, FIFOSize+1))
	require.ErrorIs(t, err, StatusNoRoom)
	assert.Empty(t, chip.CommandLog())
}

func TestCalculateCRC_Stalled(t *testing.T) {
	t.Parallel()

	device, chip := newSimDevice(t)
	chip.StallCommands(true)

	_, err := device.CalculateCRC([]byte{0x01})
	require.ErrorIs(t, err, StatusTimeout)
	assert.Equal(t, byte(CmdIdle), chip.CurrentCommand())
}

func TestCalculateCRC_PollBudget(t *testing.T) {
	t.Parallel()

	mock := NewMockTransport()
	device, err := New(mock, WithCRCPollBudget(9))
	require.NoError(t, err)
	mock.QueueReads(DivIrqReg, 0x00)

	_, err = device.CalculateCRC([]byte{0x01})
	require.ErrorIs(t, err, StatusTimeout)
	assert.Equal(t, 9, mock.GetReadCount(DivIrqReg))
}

func TestCalculateCRC_MatchesReference(t *testing.T) {
	t.Parallel()

	device, _ := newSimDevice(t)
	data := []byte{PICCSelCL1, nvbSelect, 0x04, 0x12, 0x34, 0x56, 0x04 ^ 0x12 ^ 0x34 ^ 0x56}
	crc, err := device.CalculateCRC(data)
	require.NoError(t, err)
	assert.Equal(t, testutil.CRCA(data), crc)
}
