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

// Command mfrc522 scans, dumps and writes tags with an MFRC522 reader.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/ZaparooProject/go-mfrc522"
	"github.com/rs/zerolog/log"
)

func main() {
	os.Exit(mainWithExitCode(os.Args[1:], os.Stdout, os.Stderr))
}

func mainWithExitCode(args []string, stdout, stderr io.Writer) int {
	opts, err := parseArgs(args, stderr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	logCloser := setupLogging(&opts.config, stderr)
	defer func() {
		_ = logCloser.Close()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	device, err := connectToDevice(ctx, &opts.config)
	if err != nil {
		log.Error().Err(err).Msg("connect failed")
		return 1
	}
	defer func() {
		if err := device.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close device")
		}
	}()

	if err := run(ctx, device, opts, stdout); err != nil {
		if errors.Is(err, context.Canceled) {
			return 0
		}
		log.Error().Err(err).Str("mode", opts.mode).Msg("command failed")
		return 1
	}
	return 0
}

func run(ctx context.Context, device *mfrc522.Device, opts *options, out io.Writer) error {
	switch opts.mode {
	case modeSelfTest:
		return runSelfTest(ctx, device, out)
	case modeDump:
		return runDump(ctx, device, &opts.config, out)
	case modeWriteText:
		return runWriteText(ctx, device, opts, out)
	default:
		return runScan(ctx, device, &opts.config, out)
	}
}
