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

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ZaparooProject/go-mfrc522"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseArgs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		wantErr  error
		name     string
		wantMode string
		wantText string
		args     []string
	}{
		{name: "default mode", args: nil, wantMode: modeScan},
		{name: "selftest", args: []string{"selftest"}, wantMode: modeSelfTest},
		{name: "dump with flags", args: []string{"-debug", "dump"}, wantMode: modeDump},
		{name: "write text", args: []string{"write-text", "hello"}, wantMode: modeWriteText, wantText: "hello"},
		{name: "write text without text", args: []string{"write-text"}, wantErr: errUsage},
		{name: "write text with empty text", args: []string{"write-text", ""}, wantErr: errUsage},
		{name: "unknown mode", args: []string{"format"}, wantErr: errUsage},
		{name: "extra arguments", args: []string{"scan", "now"}, wantErr: errUsage},
		{name: "unknown flag", args: []string{"-bogus"}, wantErr: errUsage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			opts, err := parseArgs(tt.args, &bytes.Buffer{})
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantMode, opts.mode)
			assert.Equal(t, tt.wantText, opts.text)
			assert.Equal(t, "en", opts.language)
		})
	}
}

func TestParseArgs_Defaults(t *testing.T) {
	t.Parallel()

	opts, err := parseArgs([]string{"-device", "/dev/spidev0.0", "-keys", "a0a1a2a3a4a5, d3:f7:d3:f7:d3:f7"}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, "/dev/spidev0.0", opts.config.Device)
	assert.Equal(t, []string{"a0a1a2a3a4a5", "d3:f7:d3:f7:d3:f7"}, opts.config.Keys)
	assert.Equal(t, 100*time.Millisecond, opts.config.Interval)
	assert.Equal(t, 30*time.Second, opts.config.Timeout)
	assert.False(t, opts.config.Debug)
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mfrc522.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestParseArgs_ConfigFile(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
device = "/dev/ttyUSB0"
transport = "uart"
poll_interval = "250ms"
timeout = "5s"
keys = ["112233445566"]
debug = true
`)

	opts, err := parseArgs([]string{"-config", path, "dump"}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, Config{
		Device:    "/dev/ttyUSB0",
		Transport: "uart",
		Keys:      []string{"112233445566"},
		Interval:  250 * time.Millisecond,
		Timeout:   5 * time.Second,
		Debug:     true,
	}, opts.config)
}

func TestParseArgs_FlagsOverrideConfigFile(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
device = "/dev/ttyUSB0"
poll_interval = "250ms"
debug = true
`)

	opts, err := parseArgs([]string{
		"-config", path, "-device", "/dev/i2c-1", "-interval", "50ms", "-debug=false",
	}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, "/dev/i2c-1", opts.config.Device)
	assert.Equal(t, 50*time.Millisecond, opts.config.Interval)
	assert.False(t, opts.config.Debug)
}

func TestParseArgs_ConfigFileErrors(t *testing.T) {
	t.Parallel()

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()
		_, err := parseArgs([]string{"-config", filepath.Join(t.TempDir(), "none.toml")}, &bytes.Buffer{})
		require.ErrorContains(t, err, "failed to read config file")
	})

	t.Run("bad toml", func(t *testing.T) {
		t.Parallel()
		_, err := parseArgs([]string{"-config", writeConfig(t, "device = ")}, &bytes.Buffer{})
		require.ErrorContains(t, err, "failed to parse config file")
	})

	t.Run("bad duration", func(t *testing.T) {
		t.Parallel()
		_, err := parseArgs([]string{"-config", writeConfig(t, `timeout = "soon"`)}, &bytes.Buffer{})
		require.ErrorContains(t, err, "invalid timeout")
	})
}

func TestTransportKind(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		path     string
		explicit string
		want     string
		wantErr  bool
	}{
		{name: "spidev", path: "/dev/spidev0.0", want: "spi"},
		{name: "periph SPI name", path: "SPI0.1", want: "spi"},
		{name: "i2c bus", path: "/dev/i2c-1", want: "i2c"},
		{name: "serial port", path: "/dev/ttyUSB0", want: "uart"},
		{name: "windows port", path: "COM3", want: "uart"},
		{name: "explicit wins", path: "/dev/ttyUSB0", explicit: "I2C", want: "i2c"},
		{name: "explicit unknown", path: "/dev/ttyUSB0", explicit: "usb", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := transportKind(tt.path, tt.explicit)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseKeys(t *testing.T) {
	t.Parallel()

	keys, err := parseKeys([]string{"FFFFFFFFFFFF", "a0:a1:a2:a3:a4:a5"})
	require.NoError(t, err)
	assert.Equal(t, []mfrc522.Key{
		mfrc522.DefaultKey,
		{0xA0, 0xA1, 0xA2, 0xA3, 0xA4, 0xA5},
	}, keys)

	_, err = parseKeys([]string{"xyz"})
	require.Error(t, err)

	_, err = parseKeys([]string{"FFFF"})
	require.ErrorContains(t, err, "want 6 bytes")
}

//nolint:paralleltest // replaces the global loggers
func TestSetupLogging_LogFile(t *testing.T) {
	prev := log.Logger
	t.Cleanup(func() { log.Logger = prev })
	path := filepath.Join(t.TempDir(), "reader.log")
	var stderr bytes.Buffer

	closer := setupLogging(&Config{LogFile: path}, &stderr)
	log.Info().Msg("reader ready")
	log.Debug().Msg("hidden at info level")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path) //nolint:gosec // test file
	require.NoError(t, err)
	assert.Contains(t, string(data), "reader ready")
	assert.NotContains(t, string(data), "hidden at info level")
	assert.Contains(t, stderr.String(), "reader ready")
	assert.False(t, mfrc522.DebugEnabled())
}
