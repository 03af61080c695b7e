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

func TestAntennaOffResetsCards(t *testing.T) {
	t.Parallel()

	card := testutil.NewVirtualCard(nil, 0x00)
	device, _ := newSimDevice(t, card)

	_, err := device.Select()
	require.NoError(t, err)
	require.Equal(t, testutil.CardActive, card.State())

	require.NoError(t, device.AntennaOff())
	assert.Equal(t, testutil.CardIdle, card.State())
	_, err = device.RequestA()
	require.ErrorIs(t, err, StatusTimeout, "no field, no answer")

	require.NoError(t, device.AntennaOn())
	uid, err := device.Select()
	require.NoError(t, err)
	assert.Equal(t, card.UID, uid.Bytes)
}

func TestAntennaOn_Idempotent(t *testing.T) {
	t.Parallel()

	mock := NewMockTransport()
	device, err := New(mock)
	require.NoError(t, err)
	mock.SetRegister(TxControlReg, 0x83)

	require.NoError(t, device.AntennaOn())
	assert.Empty(t, mock.WritesTo(TxControlReg))

	mock.SetRegister(TxControlReg, 0x80)
	require.NoError(t, device.AntennaOn())
	assert.Equal(t, []byte{0x83}, mock.WritesTo(TxControlReg))
}

func TestAntennaGain(t *testing.T) {
	t.Parallel()

	device, chip := newSimDevice(t)
	chip.WriteRegister(byte(RFCfgReg), 0x48)

	for _, gain := range []AntennaGain{AntennaGainMin, AntennaGain38dB, AntennaGainMax} {
		require.NoError(t, device.SetAntennaGain(gain))
		got, err := device.AntennaGain()
		require.NoError(t, err)
		assert.Equal(t, gain, got)
		assert.Equal(t, byte(0x08), chip.ReadRegister(byte(RFCfgReg))&0x0F, "other bits kept")
	}

	require.ErrorIs(t, device.SetAntennaGain(AntennaGain(0x01)), StatusInvalid)
}

func TestAntennaGain_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "18dB", AntennaGain18dB2.String())
	assert.Equal(t, "23dB", AntennaGain23dB.String())
	assert.Equal(t, "48dB", AntennaGainMax.String())
	assert.Equal(t, "AntennaGain(0x01)", AntennaGain(0x01).String())
	assert.True(t, AntennaGainAvg.Valid())
	assert.False(t, AntennaGain(0x80).Valid())
}
