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
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptions(t *testing.T) {
	t.Parallel()

	retry := &RetryConfig{MaxAttempts: 7}
	device, err := New(NewMockTransport(),
		WithRetryConfig(retry),
		WithPollBudget(10),
		WithCRCPollBudget(11),
		WithAuthPollBudget(12),
		WithCommandTimeout(time.Second),
		WithAntennaGain(AntennaGain48dB),
	)
	require.NoError(t, err)

	cfg := device.Config()
	assert.Same(t, retry, cfg.RetryConfig)
	assert.Equal(t, 10, cfg.PollBudget)
	assert.Equal(t, 11, cfg.CRCPollBudget)
	assert.Equal(t, 12, cfg.AuthPollBudget)
	assert.Equal(t, time.Second, cfg.CommandTimeout)
	assert.Equal(t, AntennaGain48dB, cfg.AntennaGain)

	device.SetRetryConfig(nil)
	assert.Nil(t, device.Config().RetryConfig)
}

func TestOptions_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		opt  Option
		name string
	}{
		{name: "zero poll budget", opt: WithPollBudget(0)},
		{name: "negative CRC budget", opt: WithCRCPollBudget(-1)},
		{name: "zero auth budget", opt: WithAuthPollBudget(0)},
		{name: "zero timeout", opt: WithCommandTimeout(0)},
		{name: "gain outside RxGain bits", opt: WithAntennaGain(AntennaGain(0x0F))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := New(NewMockTransport(), tt.opt)
			require.ErrorIs(t, err, ErrInvalidParameter)
		})
	}
}

func TestCommand_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Transceive", CmdTransceive.String())
	assert.Equal(t, "MFAuthent", CmdMFAuthent.String())
	assert.Equal(t, "SoftReset", CmdSoftReset.String())
	assert.Equal(t, "Command(0x05)", Command(0x05).String())
}

func TestRegister(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "FIFODataReg", FIFODataReg.String())
	assert.Equal(t, "Reg(0x00)", Register(0x00).String())
	assert.True(t, VersionReg.Valid())
	assert.False(t, Register(0x10).Valid())
	assert.True(t, FIFODataReg.Volatile())
	assert.False(t, ModeReg.Volatile())
	assert.True(t, Register(0x20).Volatile(), "reserved registers are not trusted")

	regs := Registers()
	assert.Equal(t, CommandReg, regs[0])
	assert.Equal(t, TestADCReg, regs[len(regs)-1])
	for i := 1; i < len(regs); i++ {
		assert.Less(t, regs[i-1], regs[i])
	}
}
