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
	"errors"
	"testing"

	testutil "github.com/ZaparooProject/go-mfrc522/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelect_SingleSizeUID(t *testing.T) {
	t.Parallel()

	device, chip := newSimDevice(t, testutil.NewVirtualCard([]byte{0x04, 0x12, 0x34, 0x56}, 0x00))

	uid, err := device.Select()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x04, 0x12, 0x34, 0x56}, uid.Bytes)
	assert.Equal(t, 4, uid.Size())
	assert.Equal(t, byte(0x00), uid.SAK)
	assert.Equal(t, "04123456", uid.String())

	assert.Equal(t, 1, countFrames(chip, PICCReqA))
	assert.Equal(t, 1, countFrames(chip, PICCSelCL1, nvbNoneKnown), "one anti-collision round")
	assert.Equal(t, 1, countFrames(chip, PICCSelCL1, nvbSelect), "one SELECT")
	assert.Zero(t, countFrames(chip, PICCSelCL2))

	sel := chip.Transmissions()[2].Data
	assert.Equal(t, byte(0x04^0x12^0x34^0x56), sel[6], "BCC sent with SELECT")
}

func TestSelect_CascadeLevels(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		uid    []byte
		levels int
		sak    byte
	}{
		{name: "single", uid: testutil.TestSingleUID, levels: 1, sak: 0x08},
		{name: "double", uid: testutil.TestDoubleUID, levels: 2, sak: 0x00},
		{name: "triple", uid: testutil.TestTripleUID, levels: 3, sak: 0x20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			card := testutil.NewVirtualCard(tt.uid, tt.sak)
			device, chip := newSimDevice(t, card)

			uid, err := device.Select()
			require.NoError(t, err)
			assert.Equal(t, tt.uid, uid.Bytes)
			assert.Equal(t, tt.sak, uid.SAK)
			assert.Equal(t, testutil.CardActive, card.State())

			for level, sel := range cascadeCommands {
				want := 0
				if level < tt.levels {
					want = 1
				}
				assert.Equal(t, want, countFrames(chip, sel, nvbNoneKnown), "anti-collision at level %d", level+1)
				assert.Equal(t, want, countFrames(chip, sel, nvbSelect), "SELECT at level %d", level+1)
			}
		})
	}
}

func TestSelect_NoCard(t *testing.T) {
	t.Parallel()

	device, _ := newSimDevice(t)
	uid, err := device.Select()
	require.ErrorIs(t, err, StatusTimeout)
	assert.Nil(t, uid)
	assert.False(t, device.IsNewCardPresent())
}

func TestSelect_CardLeavesAfterRequest(t *testing.T) {
	t.Parallel()

	card := testutil.NewVirtualCard(nil, 0x00)
	card.VanishAfterRequest = true
	device, chip := newSimDevice(t, card)

	uid, err := device.Select()
	require.ErrorIs(t, err, StatusTimeout)
	assert.Nil(t, uid)
	assert.Zero(t, countFrames(chip, PICCSelCL1, nvbSelect))
}

func TestSelect_TwoCardsTakeOneBranch(t *testing.T) {
	t.Parallel()

	// first difference is bit 3 of byte 1
	low := testutil.NewVirtualCard([]byte{0x04, 0x10, 0xAA, 0xBB}, 0x08)
	high := testutil.NewVirtualCard([]byte{0x04, 0x18, 0x01, 0x02}, 0x08)
	device, chip := newSimDevice(t, low, high)

	uid, err := device.Select()
	require.NoError(t, err)
	assert.Equal(t, high.UID, uid.Bytes, "the 1 branch wins")
	assert.Equal(t, testutil.CardActive, high.State())
	assert.Equal(t, testutil.CardReady, low.State())

	assert.Equal(t, 2, countFrames(chip, PICCSelCL1)-countFrames(chip, PICCSelCL1, nvbSelect),
		"one collided round and one resolving round")
	// 12 known bits: SEL, NVB 0x34, 0x04, low nibble 0x8
	assert.Equal(t, 1, countFrames(chip, PICCSelCL1, 0x34, 0x04, 0x08))
}

func TestSelect_InvalidCollisionPosition(t *testing.T) {
	t.Parallel()

	device, chip := newSimDevice(t,
		testutil.NewVirtualCard([]byte{0x01, 0x00, 0x00, 0x00}, 0x00),
		testutil.NewVirtualCard([]byte{0x03, 0x00, 0x00, 0x00}, 0x00),
	)
	chip.InvalidateCollisionPosition(true)

	_, err := device.Select()
	require.ErrorIs(t, err, StatusInternalError)
}

func TestSelect_CorruptBCC(t *testing.T) {
	t.Parallel()

	card := testutil.NewVirtualCard(nil, 0x00)
	card.CorruptBCC = true
	device, chip := newSimDevice(t, card)

	uid, err := device.Select()
	require.ErrorIs(t, err, StatusCRCWrong)
	assert.Nil(t, uid)
	assert.Zero(t, countFrames(chip, PICCSelCL1, nvbSelect), "no SELECT with a bad BCC")
}

func TestSelect_StalledChip(t *testing.T) {
	t.Parallel()

	device, chip := newSimDevice(t, testutil.NewVirtualCard(nil, 0x00))
	chip.StallCommands(true)

	_, err := device.Select()
	require.ErrorIs(t, err, StatusTimeout)
	assert.Equal(t, byte(CmdIdle), chip.CurrentCommand())
}

func TestRequestA(t *testing.T) {
	t.Parallel()

	device, _ := newSimDevice(t, testutil.NewVirtualCard(testutil.TestDoubleUID, 0x00))
	atqa, err := device.RequestA()
	require.NoError(t, err)
	assert.Equal(t, ATQA{0x44, 0x00}, atqa)
	assert.Equal(t, 7, atqa.UIDSize())
}

func TestRequestA_Collision(t *testing.T) {
	t.Parallel()

	device, _ := newSimDevice(t,
		testutil.NewVirtualCard(testutil.TestSingleUID, 0x08),
		testutil.NewVirtualCard(testutil.TestDoubleUID, 0x00),
	)
	_, err := device.RequestA()
	require.ErrorIs(t, err, StatusCollision)
}

func TestIsNewCardPresent_Collision(t *testing.T) {
	t.Parallel()

	device, _ := newSimDevice(t,
		testutil.NewVirtualCard(testutil.TestSingleUID, 0x08),
		testutil.NewVirtualCard(testutil.TestDoubleUID, 0x00),
	)
	assert.True(t, device.IsNewCardPresent())
}

func TestIsNewCardPresentThenReadCardSerial(t *testing.T) {
	t.Parallel()

	device, _ := newSimDevice(t, testutil.NewVirtualMifare1K(nil))
	require.True(t, device.IsNewCardPresent())

	uid, err := device.ReadCardSerial()
	require.NoError(t, err)
	assert.Equal(t, testutil.TestSingleUID, uid.Bytes)
	assert.Equal(t, PICCTypeMifare1K, uid.Type())
}

func TestHaltA(t *testing.T) {
	t.Parallel()

	card := testutil.NewVirtualCard(testutil.TestDoubleUID, 0x00)
	device, _ := newSimDevice(t, card)

	uid, err := device.Select()
	require.NoError(t, err)
	require.NoError(t, device.HaltA())
	assert.Equal(t, testutil.CardHalt, card.State())

	_, err = device.RequestA()
	require.ErrorIs(t, err, StatusTimeout, "REQA does not wake a halted card")

	again, err := device.Reselect(uid)
	require.NoError(t, err)
	assert.True(t, uid.Equal(again))
	assert.Equal(t, testutil.CardActive, card.State())
}

func TestHaltA_AnswerIsError(t *testing.T) {
	t.Parallel()

	mock := NewMockTransport()
	device, err := New(mock, WithPollBudget(5), WithCRCPollBudget(5))
	require.NoError(t, err)

	mock.SetRegister(DivIrqReg, IrqDivCRC)
	mock.QueueReads(FIFOLevelReg, 1)
	mock.QueueReads(FIFODataReg, 0x0A)
	mock.QueueReads(ControlReg, 4)

	err = device.HaltA()
	require.ErrorIs(t, err, StatusError)
}

func TestReselect_InvalidUID(t *testing.T) {
	t.Parallel()

	device, _ := newSimDevice(t)
	_, err := device.Reselect(&UID{Bytes: []byte{1, 2, 3}})
	require.ErrorIs(t, err, StatusInvalid)
	_, err = device.Reselect(nil)
	require.ErrorIs(t, err, StatusInvalid)
}

func TestReselect_SkipsAnticollision(t *testing.T) {
	t.Parallel()

	card := testutil.NewVirtualCard(testutil.TestTripleUID, 0x20)
	device, chip := newSimDevice(t, card)

	uid, err := device.Reselect(&UID{Bytes: testutil.TestTripleUID})
	require.NoError(t, err)
	assert.Equal(t, byte(0x20), uid.SAK)
	assert.Equal(t, 1, countFrames(chip, PICCWupA))
	assert.Zero(t, countFrames(chip, PICCSelCL1, nvbNoneKnown))
	assert.Equal(t, 3, countFrames(chip, PICCSelCL1, nvbSelect)+
		countFrames(chip, PICCSelCL2, nvbSelect)+countFrames(chip, PICCSelCL3, nvbSelect))
}

func TestFailedAuthenticationDoesNotBreakSelect(t *testing.T) {
	t.Parallel()

	card := testutil.NewVirtualMifare1K(nil)
	device, chip := newSimDevice(t, card)

	uid, err := device.Select()
	require.NoError(t, err)

	err = device.Authenticate(KeyA, 4, Key{0xA0, 0xA1, 0xA2, 0xA3, 0xA4, 0xA5}, uid)
	require.Error(t, err)
	assert.NotEqual(t, StatusOK, StatusOf(err))
	assert.True(t, errors.Is(err, ErrTagAuthFailed))
	assert.Nil(t, device.Session())
	assert.False(t, chip.CryptoOn())

	again, err := device.Select()
	require.NoError(t, err)
	assert.True(t, uid.Equal(again))
}

func TestFailedAuthenticationAfterSessionDoesNotBreakSelect(t *testing.T) {
	t.Parallel()

	card := testutil.NewVirtualMifare1K(nil)
	device, chip := newSimDevice(t, card)

	uid, err := device.Select()
	require.NoError(t, err)
	require.NoError(t, device.Authenticate(KeyA, 0, DefaultKey, uid))
	require.True(t, chip.CryptoOn())

	err = device.Authenticate(KeyB, 4, Key{0xA0, 0xA1, 0xA2, 0xA3, 0xA4, 0xA5}, uid)
	require.ErrorIs(t, err, ErrTagAuthFailed)
	assert.Equal(t, StatusMifareNack, StatusOf(err))
	assert.Nil(t, device.Session())
	assert.False(t, chip.CryptoOn())

	again, err := device.Select()
	require.NoError(t, err)
	assert.True(t, uid.Equal(again))
}

func TestKnownFragment(t *testing.T) {
	t.Parallel()

	uid10 := testutil.TestTripleUID
	assert.Equal(t, []byte{0x88, 0x04, 0x11, 0x22}, knownFragment(uid10, 0))
	assert.Equal(t, []byte{0x88, 0x33, 0x44, 0x55}, knownFragment(uid10, 1))
	assert.Equal(t, []byte{0x66, 0x77, 0x88, 0x99}, knownFragment(uid10, 2))
	assert.Nil(t, knownFragment(testutil.TestSingleUID, 1))
}

func TestMergeReceived(t *testing.T) {
	t.Parallel()

	buf := []byte{0x93, 0x34, 0x04, 0x0A, 0, 0, 0}
	mergeReceived(buf, 3, 4, []byte{0xF5, 0x11, 0x22, 0x33})
	assert.Equal(t, []byte{0x93, 0x34, 0x04, 0xFA, 0x11, 0x22, 0x33}, buf)
}
