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

// Package uart detects MFRC522 readers behind USB serial adapters.
// Importing it registers the detector.
package uart

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/ZaparooProject/go-mfrc522"
	"github.com/ZaparooProject/go-mfrc522/detection"
	"github.com/ZaparooProject/go-mfrc522/internal/probe"
	"github.com/ZaparooProject/go-mfrc522/transport/uart"
	"go.bug.st/serial/enumerator"
)

const probeTimeout = 2 * time.Second

// probeDeviceFn opens path and checks for an MFRC522 behind it.
var probeDeviceFn = probeDevice

// listPortsFn enumerates the serial ports of the host.
var listPortsFn = enumeratePorts

// detector implements the Detector interface for UART devices.
type detector struct{}

// New creates a new UART detector
func New() detection.Detector {
	return &detector{}
}

// init registers the detector on package import
func init() {
	detection.RegisterDetector(New())
}

// Transport returns the transport type
func (*detector) Transport() string {
	return "uart"
}

// serialPort represents a serial port with metadata
type serialPort struct {
	Path         string
	Name         string
	VIDPID       string
	Product      string
	SerialNumber string
}

// Detect searches for MFRC522 readers on serial ports
func (d *detector) Detect(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	ports, err := listPortsFn()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate serial ports: %w", err)
	}
	if len(ports) == 0 {
		return nil, detection.ErrNoDevicesFound
	}

	var devices []detection.DeviceInfo
	for i, port := range d.filterPorts(ports, opts) {
		if ctx.Err() != nil {
			if len(devices) == 0 {
				return nil, detection.ErrDetectionTimeout
			}
			break
		}
		mfrc522.Debugf("Checking serial port %d: %s", i, port.Path)
		if device, ok := d.processPort(ctx, &port, opts); ok {
			devices = append(devices, device)
		}
	}

	if len(devices) == 0 {
		return nil, detection.ErrNoDevicesFound
	}
	return devices, nil
}

func enumeratePorts() ([]serialPort, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, err //nolint:wrapcheck // wrapped by Detect
	}

	ports := make([]serialPort, 0, len(details))
	for _, p := range details {
		port := serialPort{
			Path: p.Name,
			Name: filepath.Base(p.Name),
		}
		if p.IsUSB {
			port.VIDPID = detection.FormatVIDPID(p.VID, p.PID)
			port.Product = p.Product
			port.SerialNumber = p.SerialNumber
			if p.Product != "" {
				port.Name = p.Product
			}
		}
		ports = append(ports, port)
	}
	return ports, nil
}

// filterPorts removes blocked and ignored ports and keeps the ones that look
// like a USB serial adapter.
func (d *detector) filterPorts(ports []serialPort, opts *detection.Options) []serialPort {
	var filtered []serialPort
	for i := range ports {
		port := &ports[i]
		if port.VIDPID != "" && detection.IsBlocked(port.VIDPID, opts.Blocklist) {
			continue
		}
		if detection.IsPathIgnored(port.Path, opts.IgnorePaths) {
			continue
		}
		if d.matchesGoodPatterns(port) || isLikelyReader(port) {
			filtered = append(filtered, *port)
		}
	}
	return filtered
}

// matchesGoodPatterns checks if the port name looks like a USB serial adapter
func (*detector) matchesGoodPatterns(port *serialPort) bool {
	goodPatterns := []string{
		"ttyusb",         // Linux usb-serial
		"ttyacm",         // Linux CDC ACM
		"usbserial",      // macOS FTDI and similar
		"slab_usbtouart", // macOS Silicon Labs CP210x
		"wchusbserial",   // macOS CH340
		"usbmodem",
	}

	lowerName := strings.ToLower(port.Name)
	lowerPath := strings.ToLower(port.Path)
	for _, pattern := range goodPatterns {
		if strings.Contains(lowerName, pattern) || strings.Contains(lowerPath, pattern) {
			return true
		}
	}
	return false
}

// isLikelyReader reports whether the port belongs to an adapter commonly
// wired to RC522 boards or names a reader in its product string.
func isLikelyReader(port *serialPort) bool {
	knownAdapters := []string{
		"1A86:7523", // QinHeng CH340
		"10C4:EA60", // Silicon Labs CP210x
		"0403:6001", // FTDI FT232R
		"067B:2303", // Prolific PL2303
	}

	upperVIDPID := strings.ToUpper(port.VIDPID)
	for _, known := range knownAdapters {
		if upperVIDPID == known {
			return true
		}
	}

	lowerProduct := strings.ToLower(port.Product)
	for _, keyword := range []string{"mfrc522", "rc522", "rfid", "nfc"} {
		if strings.Contains(lowerProduct, keyword) {
			return true
		}
	}
	return false
}

// processPort handles a single port's detection logic
func (d *detector) processPort(ctx context.Context, port *serialPort,
	opts *detection.Options,
) (detection.DeviceInfo, bool) {
	confidence, shouldProbe := d.determinePortHandling(port, opts.Mode)
	if opts.Mode == detection.Passive && confidence == 0 {
		return detection.DeviceInfo{}, false
	}

	device := d.createDeviceInfo(port, confidence)
	if !shouldProbe {
		return device, true
	}

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	res, err := probeDeviceFn(probeCtx, port.Path, opts.Mode)
	if err != nil {
		mfrc522.Debugf("UART probe of %s: %v", port.Path, err)
		// A likely adapter with some other firmware on it is a false
		// positive that would hide readers enumerated later.
		if opts.Mode == detection.Safe {
			return detection.DeviceInfo{}, false
		}
		return device, true
	}
	probe.Annotate(&device, res, opts.Mode)
	return device, true
}

// determinePortHandling decides confidence level and whether to probe based on mode
func (*detector) determinePortHandling(port *serialPort, mode detection.Mode) (detection.Confidence, bool) {
	switch mode {
	case detection.Passive:
		if isLikelyReader(port) {
			return detection.Medium, false
		}
		return 0, false
	case detection.Safe:
		if isLikelyReader(port) {
			return detection.Medium, true
		}
		return detection.Low, true
	case detection.Full:
		return detection.Low, true
	default:
		return detection.Low, false
	}
}

// createDeviceInfo builds a DeviceInfo struct from port data
func (d *detector) createDeviceInfo(port *serialPort, confidence detection.Confidence) detection.DeviceInfo {
	device := detection.DeviceInfo{
		Transport:  "uart",
		Path:       port.Path,
		Name:       port.Name,
		Confidence: confidence,
		Metadata:   make(map[string]string),
	}
	d.addPortMetadata(&device, port)
	return device
}

// addPortMetadata adds available port metadata to the device
func (*detector) addPortMetadata(device *detection.DeviceInfo, port *serialPort) {
	if port.VIDPID != "" {
		device.Metadata[detection.MetaVIDPID] = port.VIDPID
	}
	if port.Product != "" {
		device.Metadata[detection.MetaProduct] = port.Product
	}
	if port.SerialNumber != "" {
		device.Metadata[detection.MetaSerial] = port.SerialNumber
	}
}

// probeDevice opens the port once and checks the chip. Detection never
// retries so that unrelated serial devices see a single short exchange.
func probeDevice(ctx context.Context, path string, mode detection.Mode) (probe.Result, error) {
	return probe.Open(ctx, func() (mfrc522.Transport, error) {
		return uart.New(path)
	}, mode)
}
