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
	"runtime"
	"testing"
	"time"

	testutil "github.com/ZaparooProject/go-mfrc522/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// drainPort fails Drain a number of times before succeeding.
type drainPort struct {
	*testutil.VirtualUART
	err      error
	failures int
	drains   int
}

func (p *drainPort) Drain() error {
	p.drains++
	if p.drains <= p.failures {
		return p.err
	}
	return nil
}

func TestWindowsPlatformDetection(t *testing.T) {
	t.Parallel()
	assert.Equal(t, runtime.GOOS == "windows", isWindows())
}

func TestWindowsSpecificTimeout(t *testing.T) {
	t.Parallel()

	want := 50 * time.Millisecond
	if runtime.GOOS == "windows" {
		want = 100 * time.Millisecond
	}
	assert.Equal(t, want, getWindowsTimeout())
}

func TestWindowsPortRecovery(t *testing.T) {
	t.Parallel()

	transport := &Transport{portName: "COM1"}
	if runtime.GOOS != "windows" {
		assert.NoError(t, transport.windowsPortRecovery())
	}
}

func TestIsInterruptedSystemCall(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		name string
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "eintr", err: errors.New("read /dev/ttyUSB0: EINTR"), want: true},
		{name: "interrupted", err: errors.New("interrupted system call"), want: true},
		{name: "other", err: errors.New("input/output error"), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, isInterruptedSystemCall(tt.err))
		})
	}
}

func TestDrainWithRetry(t *testing.T) {
	t.Parallel()

	t.Run("interrupted then ok", func(t *testing.T) {
		t.Parallel()
		p := &drainPort{VirtualUART: testutil.NewVirtualUART(testutil.NewVirtualMFRC522()),
			err: errors.New("interrupted system call"), failures: 2}
		tr := newTransport(p, "COM3")
		require.NoError(t, tr.drainWithRetry("test"))
		assert.Equal(t, 3, p.drains)
	})

	t.Run("hard failure", func(t *testing.T) {
		t.Parallel()
		p := &drainPort{VirtualUART: testutil.NewVirtualUART(testutil.NewVirtualMFRC522()),
			err: errors.New("device gone"), failures: 5}
		tr := newTransport(p, "COM3")
		require.ErrorContains(t, tr.drainWithRetry("test"), "device gone")
		assert.Equal(t, 1, p.drains)
	})

	t.Run("port without drain", func(t *testing.T) {
		t.Parallel()
		tr, _, _ := newTestTransport()
		assert.NoError(t, tr.drainWithRetry("test"))
	})
}
