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
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ZaparooProject/go-mfrc522/detection"
	testutil "github.com/ZaparooProject/go-mfrc522/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resetSimTransport adds an NRSTPD line to the simulator.
type resetSimTransport struct {
	simTransport
	asserted int
	released int
}

func (r *resetSimTransport) AssertReset() error {
	r.asserted++
	return nil
}

func (r *resetSimTransport) ReleaseReset() error {
	r.released++
	r.chip.WriteRegister(byte(CommandReg), byte(CmdSoftReset))
	return nil
}

func simFactory(chip *testutil.VirtualMFRC522) TransportFactory {
	return func(string) (Transport, error) {
		return &simTransport{chip: chip}, nil
	}
}

func TestNew(t *testing.T) {
	t.Parallel()

	_, err := New(nil)
	require.ErrorIs(t, err, ErrInvalidParameter)

	device, err := New(NewMockTransport())
	require.NoError(t, err)
	cfg := device.Config()
	assert.Equal(t, DefaultPollBudget, cfg.PollBudget)
	assert.Equal(t, DefaultCRCPollBudget, cfg.CRCPollBudget)
	assert.Equal(t, DefaultAuthPollBudget, cfg.AuthPollBudget)
	assert.Equal(t, DefaultCommandTimeout, cfg.CommandTimeout)
	assert.Equal(t, AntennaGain33dB, cfg.AntennaGain)
	assert.Equal(t, TransportMock, device.Transport().Type())
}

func TestConfigure(t *testing.T) {
	t.Parallel()

	device, chip := newSimDevice(t)

	expected := map[Register]byte{
		TModeReg:      TModeTAuto,
		TPrescalerReg: 0xA9,
		TReloadRegH:   0x03,
		TReloadRegL:   0xE8,
		TxASKReg:      TxASKForce100,
		ModeReg:       ModeCRCPreset6363,
	}
	for reg, want := range expected {
		got, err := device.ReadRegister(reg)
		require.NoError(t, err)
		assert.Equal(t, want, got, "%s", reg)
	}

	gain, err := device.AntennaGain()
	require.NoError(t, err)
	assert.Equal(t, AntennaGain33dB, gain)

	tx := chip.ReadRegister(byte(TxControlReg))
	assert.Equal(t, TxControlRFEn, tx&TxControlRFEn)
}

func TestTimerReload(t *testing.T) {
	t.Parallel()

	assert.Equal(t, uint16(1000), timerReload(25*time.Millisecond))
	assert.Equal(t, uint16(1), timerReload(0))
	assert.Equal(t, uint16(0xFFFF), timerReload(10*time.Second))
}

func TestInit(t *testing.T) {
	t.Parallel()

	chip := testutil.NewVirtualMFRC522()
	device, err := New(&simTransport{chip: chip}, WithCommandTimeout(50*time.Millisecond))
	require.NoError(t, err)
	require.NoError(t, device.Init())

	assert.Contains(t, chip.CommandLog(), byte(CmdSoftReset))
	h, _ := device.ReadRegister(TReloadRegH)
	l, _ := device.ReadRegister(TReloadRegL)
	assert.Equal(t, uint16(2000), uint16(h)<<8|uint16(l))

	v, err := device.Version()
	require.NoError(t, err)
	assert.Equal(t, VersionV2, v)
}

func TestSoftReset_HeldInPowerDown(t *testing.T) {
	t.Parallel()

	device, chip := newSimDevice(t)
	chip.HoldPowerDown(true)

	err := device.SoftReset()
	require.ErrorIs(t, err, StatusTimeout)
}

func TestSoftReset_DropsSession(t *testing.T) {
	t.Parallel()

	device, chip, card, _ := selectClassic(t, 4)
	require.NoError(t, device.SoftReset())

	assert.Nil(t, device.Session())
	assert.False(t, chip.CryptoOn())
	assert.Equal(t, testutil.CardIdle, card.State())
}

func TestHardReset(t *testing.T) {
	t.Parallel()

	chip := testutil.NewVirtualMFRC522()
	transport := &resetSimTransport{simTransport: simTransport{chip: chip}}
	device, err := New(transport)
	require.NoError(t, err)

	require.NoError(t, device.Reset())
	assert.Equal(t, 1, transport.asserted)
	assert.Equal(t, 1, transport.released)

	require.NoError(t, device.HardReset())
	assert.Equal(t, 2, transport.released)
}

func TestHardReset_NotSupported(t *testing.T) {
	t.Parallel()

	device, err := New(NewMockTransport())
	require.NoError(t, err)
	require.ErrorIs(t, device.HardReset(), ErrResetNotSupported)
}

func TestClose(t *testing.T) {
	t.Parallel()

	device, _ := newSimDevice(t)
	require.NoError(t, device.Close())

	_, err := device.Select()
	require.ErrorIs(t, err, StatusInternalError)
	require.ErrorIs(t, err, ErrTransportClosed)
	assert.True(t, IsFatal(err))
}

func TestConnectDevice(t *testing.T) {
	t.Parallel()

	chip := testutil.NewVirtualMFRC522()
	device, err := ConnectDevice(context.Background(), "/dev/spidev0.0",
		WithTransportFactory(simFactory(chip)),
		WithDeviceOptions(WithPollBudget(100)),
	)
	require.NoError(t, err)
	defer func() { _ = device.Close() }()

	assert.Equal(t, 100, device.Config().PollBudget)
	v, err := device.Version()
	require.NoError(t, err)
	assert.Equal(t, VersionV2, v)
}

func TestConnectDevice_UnknownVersion(t *testing.T) {
	t.Parallel()

	chip := testutil.NewVirtualMFRC522()
	chip.SetVersion(0x00)

	_, err := ConnectDevice(context.Background(), "/dev/spidev0.0", WithTransportFactory(simFactory(chip)))
	require.ErrorIs(t, err, ErrDeviceNotSupported)
}

func TestConnectDevice_Clone(t *testing.T) {
	t.Parallel()

	chip := testutil.NewVirtualMFRC522()
	chip.SetVersion(byte(VersionFM17522))

	device, err := ConnectDevice(context.Background(), "/dev/spidev0.0", WithTransportFactory(simFactory(chip)))
	require.NoError(t, err)
	_ = device.Close()
}

func TestConnectDevice_Errors(t *testing.T) {
	t.Parallel()

	_, err := ConnectDevice(context.Background(), "/dev/spidev0.0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transport factory not provided")

	_, err = ConnectDevice(context.Background(), "/dev/spidev0.0", WithConnectionRetries(0))
	require.Error(t, err)

	boom := errors.New("no such device")
	_, err = ConnectDevice(context.Background(), "/dev/spidev9.9",
		WithTransportFactory(func(string) (Transport, error) { return nil, boom }))
	require.ErrorIs(t, err, boom)
}

func TestConnectDevice_AutoDetect(t *testing.T) {
	t.Parallel()

	chip := testutil.NewVirtualMFRC522()
	var got detection.DeviceInfo

	device, err := ConnectDevice(context.Background(), "",
		WithAutoDetection(),
		WithDeviceDetector(func(_ context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
			assert.Equal(t, detection.Safe, opts.Mode)
			return []detection.DeviceInfo{{Transport: "i2c", Path: "/dev/i2c-1"}}, nil
		}),
		WithTransportFromDeviceFactory(func(info detection.DeviceInfo) (Transport, error) {
			got = info
			return &simTransport{chip: chip}, nil
		}),
	)
	require.NoError(t, err)
	_ = device.Close()
	assert.Equal(t, "/dev/i2c-1", got.Path)
}

func TestConnectDevice_AutoDetectNothing(t *testing.T) {
	t.Parallel()

	_, err := ConnectDevice(context.Background(), "",
		WithDeviceDetector(func(context.Context, *detection.Options) ([]detection.DeviceInfo, error) {
			return nil, nil
		}),
	)
	require.ErrorIs(t, err, ErrDeviceNotFound)
}
