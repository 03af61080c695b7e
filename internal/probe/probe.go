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

// Package probe identifies an MFRC522 behind a freshly opened transport for
// the detection subpackages.
package probe

import (
	"context"
	"fmt"
	"strconv"

	"github.com/ZaparooProject/go-mfrc522"
	"github.com/ZaparooProject/go-mfrc522/detection"
)

// Result is what a probe learned about a bus node.
type Result struct {
	Version    mfrc522.ChipVersion
	Confidence detection.Confidence
	// SelfTest is set in Full mode only.
	SelfTest   bool
}

// Probe reads VersionReg and, in Full mode, resets the chip and runs its
// self-test. A node reading 0x00 or 0xFF is an empty bus and yields
// mfrc522.ErrDeviceNotFound. Passive mode does not touch the bus.
func Probe(ctx context.Context, t mfrc522.Transport, mode detection.Mode) (Result, error) {
	if mode == detection.Passive {
		return Result{Confidence: detection.Low}, nil
	}
	if err := ctx.Err(); err != nil {
		return Result{}, fmt.Errorf("probe cancelled: %w", err)
	}

	device, err := mfrc522.New(t)
	if err != nil {
		return Result{}, fmt.Errorf("probe: %w", err)
	}
	version, err := device.Version()
	if err != nil {
		return Result{}, fmt.Errorf("probe: %w", err)
	}
	if version == 0x00 || version == 0xFF {
		return Result{}, fmt.Errorf("%w: version register reads 0x%02X", mfrc522.ErrDeviceNotFound, byte(version))
	}

	res := Result{Version: version, Confidence: detection.Medium}
	if version.Known() {
		res.Confidence = detection.High
	}
	if mode != detection.Full {
		return res, nil
	}

	if err := ctx.Err(); err != nil {
		return Result{}, fmt.Errorf("probe cancelled: %w", err)
	}
	if err := device.Init(); err != nil {
		return Result{}, fmt.Errorf("probe init: %w", err)
	}
	passed, err := device.SelfTest()
	if err != nil {
		return Result{}, fmt.Errorf("probe self-test: %w", err)
	}
	res.SelfTest = passed
	if !passed && res.Confidence == detection.High {
		// Clones report a genuine version but fail the reference check.
		res.Confidence = detection.Medium
	}
	return res, nil
}

// Annotate records the result on a detected device.
func Annotate(info *detection.DeviceInfo, res Result, mode detection.Mode) {
	info.Confidence = res.Confidence
	if mode == detection.Passive {
		return
	}
	if info.Metadata == nil {
		info.Metadata = make(map[string]string)
	}
	info.Metadata[detection.MetaVersion] = fmt.Sprintf("0x%02X", byte(res.Version))
	if mode == detection.Full {
		info.Metadata[detection.MetaSelfTest] = strconv.FormatBool(res.SelfTest)
	}
	if res.Version.Known() {
		info.Name = fmt.Sprintf("MFRC522 %s", res.Version)
	}
}

// Open opens a transport, probes it and closes it again. Probing makes a
// single attempt; a node that fails is simply not an MFRC522 as far as
// detection is concerned.
func Open(ctx context.Context, open func() (mfrc522.Transport, error), mode detection.Mode) (Result, error) {
	if mode == detection.Passive {
		return Result{Confidence: detection.Low}, nil
	}
	t, err := open()
	if err != nil {
		return Result{}, err
	}
	defer func() { _ = t.Close() }()
	return Probe(ctx, t, mode)
}
