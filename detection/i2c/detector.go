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

// Package i2c detects MFRC522 readers on I2C buses. Importing it registers
// the detector.
package i2c

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strconv"

	"github.com/ZaparooProject/go-mfrc522"
	"github.com/ZaparooProject/go-mfrc522/detection"
	"github.com/ZaparooProject/go-mfrc522/internal/probe"
	i2ctransport "github.com/ZaparooProject/go-mfrc522/transport/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// EnvAddress overrides the probed 7-bit address (e.g. "0x2B").
const EnvAddress = "MFRC522_I2C_ADDRESS"

// detector implements the Detector interface for I2C devices
type detector struct {
	listBuses     func() ([]string, error)
	openTransport func(path string) (mfrc522.Transport, error)
	goos          string
}

// New creates a new I2C detector
func New() detection.Detector {
	return &detector{
		listBuses: registeredBuses,
		openTransport: func(path string) (mfrc522.Transport, error) {
			return i2ctransport.New(path)
		},
		goos: runtime.GOOS,
	}
}

// init registers the detector on package import
func init() {
	detection.RegisterDetector(New())
}

// Transport returns the transport type
func (*detector) Transport() string {
	return "i2c"
}

func registeredBuses() ([]string, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}
	var buses []string
	for _, ref := range i2creg.All() {
		buses = append(buses, ref.Name)
	}
	return buses, nil
}

func address() uint16 {
	if env := os.Getenv(EnvAddress); env != "" {
		if v, err := strconv.ParseUint(env, 0, 7); err == nil {
			return uint16(v)
		}
		mfrc522.Debugf("Ignoring %s=%q", EnvAddress, env)
	}
	return i2ctransport.DefaultAddress
}

// Detect searches for MFRC522 readers on I2C buses. Only Linux exposes
// I2C buses to user space.
func (d *detector) Detect(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	if d.goos != "linux" {
		return nil, detection.ErrUnsupportedPlatform
	}

	buses, err := d.listBuses()
	if err != nil {
		return nil, err
	}

	addr := address()
	var devices []detection.DeviceInfo
	for _, bus := range buses {
		if ctx.Err() != nil {
			return devices, detection.ErrDetectionTimeout
		}
		path := fmt.Sprintf("%s:0x%02X", bus, addr)
		if detection.IsPathIgnored(path, opts.IgnorePaths) || detection.IsPathIgnored(bus, opts.IgnorePaths) {
			continue
		}

		res, err := probe.Open(ctx, func() (mfrc522.Transport, error) {
			return d.openTransport(path)
		}, opts.Mode)
		if err != nil {
			mfrc522.Debugf("I2C probe of %s: %v", path, err)
			continue
		}

		info := detection.DeviceInfo{
			Transport: "i2c",
			Path:      path,
			Name:      fmt.Sprintf("I2C device 0x%02X on %s", addr, bus),
		}
		probe.Annotate(&info, res, opts.Mode)
		devices = append(devices, info)
	}

	if len(devices) == 0 {
		return nil, detection.ErrNoDevicesFound
	}
	return devices, nil
}
