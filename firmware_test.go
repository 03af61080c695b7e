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

func TestSelfTest(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		output  []byte
		version ChipVersion
		want    bool
	}{
		{name: "v2 passes", version: VersionV2, output: SelfTestReference(VersionV2), want: true},
		{name: "v1 passes", version: VersionV1, output: SelfTestReference(VersionV1), want: true},
		{name: "FM17522 passes", version: VersionFM17522, output: SelfTestReference(VersionFM17522), want: true},
		{name: "v2 with v1 output fails", version: VersionV2, output: SelfTestReference(VersionV1), want: false},
		{name: "counterfeit has no reference", version: VersionCounterfeit, output: make([]byte, FIFOSize), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			device, chip := newSimDevice(t)
			chip.SetVersion(byte(tt.version))
			chip.SetSelfTestOutput(tt.output)

			passed, err := device.SelfTest()
			require.NoError(t, err)
			assert.Equal(t, tt.want, passed)

			// the chip is usable again afterwards
			mode, err := device.ReadRegister(ModeReg)
			require.NoError(t, err)
			assert.Equal(t, ModeCRCPreset6363, mode)
			auto, err := device.ReadRegister(AutoTestReg)
			require.NoError(t, err)
			assert.Zero(t, auto&0x0F)
		})
	}
}

func TestSelfTest_NoOutput(t *testing.T) {
	t.Parallel()

	device, _ := newSimDevice(t)
	_, err := device.SelfTest()
	require.ErrorIs(t, err, StatusTimeout)
}

func TestSelfTest_CardsStillWork(t *testing.T) {
	t.Parallel()

	device, chip := newSimDevice(t, testutil.NewVirtualCard(nil, 0x08))
	chip.SetSelfTestOutput(SelfTestReference(VersionV2))

	passed, err := device.SelfTest()
	require.NoError(t, err)
	require.True(t, passed)

	uid, err := device.Select()
	require.NoError(t, err)
	assert.Equal(t, testutil.TestSingleUID, uid.Bytes)
}

func TestSelfTestReference(t *testing.T) {
	t.Parallel()

	for _, v := range []ChipVersion{VersionV0, VersionV1, VersionV2, VersionFM17522} {
		ref := SelfTestReference(v)
		require.Len(t, ref, FIFOSize, "%s", v)
		assert.Equal(t, byte(0x00), ref[0])
	}
	assert.Nil(t, SelfTestReference(VersionCounterfeit))

	ref := SelfTestReference(VersionV2)
	ref[1] = 0xFF
	assert.Equal(t, byte(0xEB), SelfTestReference(VersionV2)[1], "references are copies")
}

func TestChipVersion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		version ChipVersion
		known   bool
	}{
		{version: VersionV0, name: "v0.0", known: true},
		{version: VersionV1, name: "v1.0", known: true},
		{version: VersionV2, name: "v2.0", known: true},
		{version: VersionFM17522, name: "FM17522", known: true},
		{version: VersionCounterfeit, name: "counterfeit", known: true},
		{version: 0x00, name: "unknown (0x00)", known: false},
		{version: 0xFF, name: "unknown (0xFF)", known: false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.name, tt.version.String())
		assert.Equal(t, tt.known, tt.version.Known(), tt.name)
	}
}
