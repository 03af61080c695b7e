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

package polling

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ZaparooProject/go-mfrc522"
	"github.com/ZaparooProject/go-mfrc522/internal/simchip"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultRecoverer(t *testing.T) {
	t.Parallel()

	device, _ := simchip.NewDevice(t)

	t.Run("WithDefaults", func(t *testing.T) {
		t.Parallel()
		r := NewDefaultRecoverer(device, nil, 0, 0)
		assert.Equal(t, 3, r.maxAttempts)
		assert.Equal(t, 500*time.Millisecond, r.backoff)
	})

	t.Run("WithCustomValues", func(t *testing.T) {
		t.Parallel()
		r := NewDefaultRecoverer(device, nil, 100*time.Millisecond, 5)
		assert.Equal(t, 5, r.maxAttempts)
		assert.Equal(t, 100*time.Millisecond, r.backoff)
	})
}

func TestDefaultRecoverer_InitSuccess(t *testing.T) {
	t.Parallel()

	device, chip := simchip.NewDevice(t)
	r := NewDefaultRecoverer(device, nil, 10*time.Millisecond, 3)

	require.NoError(t, r.AttemptRecovery(context.Background()))
	assert.Same(t, device, r.GetDevice())
	assert.Contains(t, chip.CommandLog(), byte(mfrc522.CmdSoftReset))
}

func TestDefaultRecoverer_InitFailsNoReopen(t *testing.T) {
	t.Parallel()

	device, _ := simchip.NewDevice(t)
	require.NoError(t, device.Transport().Close())

	clock := clockwork.NewFakeClock()
	r := NewDefaultRecoverer(device, nil, time.Second, 2)
	r.clock = clock

	errCh := make(chan error, 1)
	go func() { errCh <- r.AttemptRecovery(context.Background()) }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(time.Second)

	err := <-errCh
	require.ErrorIs(t, err, mfrc522.ErrTransportClosed)
}

func TestDefaultRecoverer_FullReconnectSuccess(t *testing.T) {
	t.Parallel()

	device, _ := simchip.NewDevice(t)
	require.NoError(t, device.Transport().Close())
	newDevice, _ := simchip.NewDevice(t)

	reopenCalled := false
	r := NewDefaultRecoverer(device, func() (*mfrc522.Device, error) {
		reopenCalled = true
		return newDevice, nil
	}, 10*time.Millisecond, 3)

	require.NoError(t, r.AttemptRecovery(context.Background()))
	assert.True(t, reopenCalled)
	assert.Same(t, newDevice, r.GetDevice())
}

func TestDefaultRecoverer_ContextCancelled(t *testing.T) {
	t.Parallel()

	device, _ := simchip.NewDevice(t)
	require.NoError(t, device.Transport().Close())

	r := NewDefaultRecoverer(device, func() (*mfrc522.Device, error) {
		return nil, errors.New("reader unplugged")
	}, time.Hour, 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := r.AttemptRecovery(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
