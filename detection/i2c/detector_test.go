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

package i2c

import (
	"context"
	"testing"

	"github.com/ZaparooProject/go-mfrc522"
	"github.com/ZaparooProject/go-mfrc522/detection"
	i2ctransport "github.com/ZaparooProject/go-mfrc522/transport/i2c"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDetector(goos string, buses []string, present map[string]bool) (d *detector, opened *[]string) {
	opened = new([]string)
	d = &detector{
		goos:      goos,
		listBuses: func() ([]string, error) { return buses, nil },
		openTransport: func(path string) (mfrc522.Transport, error) {
			*opened = append(*opened, path)
			mock := mfrc522.NewMockTransport()
			if present[path] {
				mock.SetRegister(mfrc522.VersionReg, 0x92)
			}
			return mock, nil
		},
	}
	return d, opened
}

func TestDetector_Transport(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "i2c", New().Transport())
}

func TestDetector_UnsupportedPlatform(t *testing.T) {
	t.Parallel()

	d, _ := newTestDetector("windows", []string{"1"}, nil)
	opts := detection.DefaultOptions()
	_, err := d.Detect(context.Background(), &opts)
	require.ErrorIs(t, err, detection.ErrUnsupportedPlatform)
}

func TestDetector_Detect(t *testing.T) {
	t.Parallel()

	d, opened := newTestDetector("linux", []string{"/dev/i2c-0", "/dev/i2c-1"},
		map[string]bool{"/dev/i2c-1:0x28": true})
	opts := detection.DefaultOptions()

	devices, err := d.Detect(context.Background(), &opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"/dev/i2c-0:0x28", "/dev/i2c-1:0x28"}, *opened)
	require.Len(t, devices, 1)
	assert.Equal(t, "/dev/i2c-1:0x28", devices[0].Path)
	assert.Equal(t, detection.High, devices[0].Confidence)
	assert.Equal(t, "MFRC522 v2.0", devices[0].Name)
}

func TestDetector_IgnoreBus(t *testing.T) {
	t.Parallel()

	d, opened := newTestDetector("linux", []string{"/dev/i2c-0", "/dev/i2c-1"},
		map[string]bool{"/dev/i2c-0:0x28": true, "/dev/i2c-1:0x28": true})
	opts := detection.DefaultOptions()
	opts.IgnorePaths = []string{"/dev/i2c-0"}

	devices, err := d.Detect(context.Background(), &opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"/dev/i2c-1:0x28"}, *opened)
	require.Len(t, devices, 1)
}

func TestDetector_NothingAnswers(t *testing.T) {
	t.Parallel()

	d, _ := newTestDetector("linux", []string{"/dev/i2c-0"}, nil)
	opts := detection.DefaultOptions()
	_, err := d.Detect(context.Background(), &opts)
	require.ErrorIs(t, err, detection.ErrNoDevicesFound)
}

func TestAddressOverride(t *testing.T) {
	t.Setenv(EnvAddress, "0x2B")
	assert.Equal(t, uint16(0x2B), address())

	t.Setenv(EnvAddress, "bogus")
	assert.Equal(t, i2ctransport.DefaultAddress, address())
}
