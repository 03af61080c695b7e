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

// Package spi detects MFRC522 readers on SPI buses. Importing it registers
// the detector.
package spi

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ZaparooProject/go-mfrc522"
	"github.com/ZaparooProject/go-mfrc522/detection"
	"github.com/ZaparooProject/go-mfrc522/internal/probe"
	spitransport "github.com/ZaparooProject/go-mfrc522/transport/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// EnvDevice names an SPI port to check before the enumerated ones.
const EnvDevice = "MFRC522_SPI_DEVICE"

// detector implements the Detector interface for SPI devices
type detector struct {
	listPorts     func() ([]string, error)
	openTransport func(path string) (mfrc522.Transport, error)
}

// New creates a new SPI detector
func New() detection.Detector {
	return &detector{
		listPorts: registeredPorts,
		openTransport: func(path string) (mfrc522.Transport, error) {
			return spitransport.New(path)
		},
	}
}

// init registers the detector on package import
func init() {
	detection.RegisterDetector(New())
}

// Transport returns the transport type
func (*detector) Transport() string {
	return "spi"
}

// registeredPorts lists the SPI ports periph knows, preferring the device
// node alias ("/dev/spidev0.0") over the bus name ("SPI0.0").
func registeredPorts() ([]string, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}
	var paths []string
	for _, ref := range spireg.All() {
		name := ref.Name
		for _, alias := range ref.Aliases {
			if strings.HasPrefix(alias, "/dev/") {
				name = alias
				break
			}
		}
		paths = append(paths, name)
	}
	return paths, nil
}

// gatherPaths puts the environment override first and drops duplicates.
func (d *detector) gatherPaths() ([]string, error) {
	var paths []string
	if env := os.Getenv(EnvDevice); env != "" {
		paths = append(paths, env)
	}
	listed, err := d.listPorts()
	if err != nil && len(paths) == 0 {
		return nil, err
	}
	paths = append(paths, listed...)

	seen := make(map[string]bool, len(paths))
	unique := paths[:0]
	for _, p := range paths {
		if !seen[p] {
			seen[p] = true
			unique = append(unique, p)
		}
	}
	return unique, nil
}

// Detect searches for MFRC522 readers on SPI ports
func (d *detector) Detect(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	paths, err := d.gatherPaths()
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, detection.ErrNoDevicesFound
	}

	var devices []detection.DeviceInfo
	for _, path := range paths {
		if ctx.Err() != nil {
			return devices, detection.ErrDetectionTimeout
		}
		if detection.IsPathIgnored(path, opts.IgnorePaths) {
			continue
		}

		res, err := probe.Open(ctx, func() (mfrc522.Transport, error) {
			return d.openTransport(path)
		}, opts.Mode)
		if err != nil {
			mfrc522.Debugf("SPI probe of %s: %v", path, err)
			continue
		}

		info := detection.DeviceInfo{
			Transport: "spi",
			Path:      path,
			Name:      "SPI device " + filepath.Base(path),
		}
		probe.Annotate(&info, res, opts.Mode)
		devices = append(devices, info)
	}

	if len(devices) == 0 {
		return nil, detection.ErrNoDevicesFound
	}
	return devices, nil
}
