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
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ZaparooProject/go-mfrc522"
	"github.com/ZaparooProject/go-mfrc522/detection"
	_ "github.com/ZaparooProject/go-mfrc522/detection/i2c"
	_ "github.com/ZaparooProject/go-mfrc522/detection/spi"
	_ "github.com/ZaparooProject/go-mfrc522/detection/uart"
	"github.com/ZaparooProject/go-mfrc522/transport/i2c"
	"github.com/ZaparooProject/go-mfrc522/transport/spi"
	"github.com/ZaparooProject/go-mfrc522/transport/uart"
	"github.com/rs/zerolog/log"
)

// transportKind picks the transport for path. An explicit choice wins;
// otherwise the path decides and serial ports are the fallback.
func transportKind(path, explicit string) (string, error) {
	if explicit != "" {
		kind := strings.ToLower(explicit)
		switch kind {
		case "spi", "i2c", "uart":
			return kind, nil
		default:
			return "", fmt.Errorf("unsupported transport type: %s", explicit)
		}
	}
	lower := strings.ToLower(path)
	switch {
	case strings.Contains(lower, "spi"):
		return "spi", nil
	case strings.Contains(lower, "i2c"):
		return "i2c", nil
	default:
		return "uart", nil
	}
}

func openTransport(kind, path, resetPin string) (mfrc522.Transport, error) {
	switch kind {
	case "spi":
		var opts []spi.Option
		if resetPin != "" {
			opts = append(opts, spi.WithResetPin(resetPin))
		}
		t, err := spi.New(path, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create SPI transport: %w", err)
		}
		return t, nil
	case "i2c":
		t, err := i2c.New(path)
		if err != nil {
			return nil, fmt.Errorf("failed to create I2C transport: %w", err)
		}
		return t, nil
	case "uart":
		t, err := uart.New(path)
		if err != nil {
			return nil, fmt.Errorf("failed to create UART transport: %w", err)
		}
		return t, nil
	default:
		return nil, fmt.Errorf("unsupported transport type: %s", kind)
	}
}

func connectToDevice(ctx context.Context, cfg *Config) (*mfrc522.Device, error) {
	opts := []mfrc522.ConnectOption{mfrc522.WithConnectTimeout(cfg.Timeout)}

	if cfg.Device == "" {
		log.Info().Msg("auto-detecting MFRC522 readers")
		opts = append(opts,
			mfrc522.WithAutoDetection(),
			mfrc522.WithTransportFromDeviceFactory(func(d detection.DeviceInfo) (mfrc522.Transport, error) {
				log.Info().Str("transport", d.Transport).Str("path", d.Path).Msg("using detected reader")
				return openTransport(strings.ToLower(d.Transport), d.Path, cfg.ResetPin)
			}))
	} else {
		kind, err := transportKind(cfg.Device, cfg.Transport)
		if err != nil {
			return nil, err
		}
		log.Info().Str("transport", kind).Str("path", cfg.Device).Msg("opening reader")
		opts = append(opts, mfrc522.WithTransportFactory(func(path string) (mfrc522.Transport, error) {
			return openTransport(kind, path, cfg.ResetPin)
		}))
	}

	device, err := mfrc522.ConnectDevice(ctx, cfg.Device, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MFRC522: %w", err)
	}
	if version, err := device.Version(); err == nil {
		log.Info().Stringer("version", version).Msg("reader ready")
	}
	return device, nil
}

// parseKeys decodes 6 byte hex keys.
func parseKeys(list []string) ([]mfrc522.Key, error) {
	keys := make([]mfrc522.Key, 0, len(list))
	for _, s := range list {
		raw, err := hex.DecodeString(strings.ReplaceAll(s, ":", ""))
		if err != nil {
			return nil, fmt.Errorf("invalid key %q: %w", s, err)
		}
		if len(raw) != mfrc522.MifareKeySize {
			return nil, fmt.Errorf("invalid key %q: want %d bytes, got %d", s, mfrc522.MifareKeySize, len(raw))
		}
		var k mfrc522.Key
		copy(k[:], raw)
		keys = append(keys, k)
	}
	return keys, nil
}
