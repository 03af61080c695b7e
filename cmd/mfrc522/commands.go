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
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ZaparooProject/go-mfrc522"
	"github.com/ZaparooProject/go-mfrc522/polling"
	"github.com/ZaparooProject/go-mfrc522/tagops"
	"github.com/rs/zerolog/log"
)

const tagWaitInterval = 100 * time.Millisecond

var errSelfTestFailed = errors.New("self-test failed")

func runScan(ctx context.Context, device *mfrc522.Device, cfg *Config, out io.Writer) error {
	pollCfg := polling.DefaultConfig()
	pollCfg.PollInterval = cfg.Interval
	monitor := polling.NewMonitor(device, pollCfg)

	monitor.SetOnCardDetected(func(uid *mfrc522.UID) error {
		_, _ = fmt.Fprintf(out, "Tag detected: UID=%s Type=%s SAK=0x%02X\n", uid, uid.Type(), uid.SAK)
		return nil
	})
	monitor.SetOnCardRemoved(func(uid *mfrc522.UID) {
		_, _ = fmt.Fprintf(out, "Tag removed: UID=%s\n", uid)
	})
	monitor.SetOnError(func(err error) {
		log.Error().Err(err).Msg("polling stopped")
	})

	if err := monitor.Start(ctx); err != nil {
		return fmt.Errorf("failed to start polling: %w", err)
	}
	defer monitor.Stop()

	_, _ = fmt.Fprintln(out, "Scanning for tags. Press Ctrl+C to stop...")
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-monitor.Done():
		if err := monitor.Err(); err != nil {
			return err
		}
		return ctx.Err()
	}
}

func runSelfTest(_ context.Context, device *mfrc522.Device, out io.Writer) error {
	version, err := device.Version()
	if err != nil {
		return fmt.Errorf("failed to read version: %w", err)
	}
	_, _ = fmt.Fprintf(out, "Chip version: %s\n", version)

	passed, err := device.SelfTest()
	if err != nil {
		return fmt.Errorf("failed to run self-test: %w", err)
	}
	if !passed {
		_, _ = fmt.Fprintln(out, "Self-test: FAILED")
		return errSelfTestFailed
	}
	_, _ = fmt.Fprintln(out, "Self-test: passed")
	return nil
}

// waitForTag polls until a supported tag is selected or timeout expires.
func waitForTag(ctx context.Context, ops *tagops.TagOperations, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	ticker := time.NewTicker(tagWaitInterval)
	defer ticker.Stop()
	for {
		err := ops.DetectTag(ctx)
		switch {
		case err == nil:
			return nil
		case ctx.Err() != nil:
			return tagWaitError(ctx, timeout)
		case !errors.Is(err, tagops.ErrNoTag):
			return err
		}
		select {
		case <-ctx.Done():
			return tagWaitError(ctx, timeout)
		case <-ticker.C:
		}
	}
}

func tagWaitError(ctx context.Context, timeout time.Duration) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("no tag within %s: %w", timeout, tagops.ErrNoTag)
	}
	return ctx.Err()
}

func newTagOps(device *mfrc522.Device, cfg *Config) (*tagops.TagOperations, error) {
	ops := tagops.New(device)
	if len(cfg.Keys) > 0 {
		keys, err := parseKeys(cfg.Keys)
		if err != nil {
			return nil, err
		}
		ops.SetKeys(append(keys, tagops.DefaultKeys...)...)
	}
	return ops, nil
}

func runDump(ctx context.Context, device *mfrc522.Device, cfg *Config, out io.Writer) error {
	ops, err := newTagOps(device, cfg)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(out, "Place a tag on the reader...")
	if err := waitForTag(ctx, ops, cfg.Timeout); err != nil {
		return err
	}
	defer func() {
		if err := ops.Halt(); err != nil {
			log.Debug().Err(err).Msg("halt after dump")
		}
	}()

	info, err := ops.GetTagInfo(ctx)
	if err != nil {
		return fmt.Errorf("failed to get tag info: %w", err)
	}
	_, _ = fmt.Fprintf(out, "UID: %s\nType: %s (%s)\nUser memory: %d bytes\n",
		info.UID, info.TypeName, info.Model, info.UserMemory)

	switch info.Type {
	case tagops.TagTypeUltralight:
		return dumpPages(ctx, ops, info, out)
	case tagops.TagTypeMIFARE:
		return dumpSectors(ctx, ops, info, out)
	case tagops.TagTypeUnknown:
	}
	return tagops.ErrUnsupportedTag
}

func dumpPages(ctx context.Context, ops *tagops.TagOperations, info *tagops.TagInfo, out io.Writer) error {
	data, err := ops.ReadPages(ctx, 0, byte(info.TotalPages-1))
	if err != nil {
		return err
	}
	for page := range info.TotalPages {
		off := page * mfrc522.UltralightPageSize
		_, _ = fmt.Fprintf(out, "Page %3d: % X\n", page, data[off:off+mfrc522.UltralightPageSize])
	}
	if info.NDEF {
		if text, err := ops.ReadText(ctx); err == nil {
			_, _ = fmt.Fprintf(out, "Text: %q\n", text)
		}
	}
	return nil
}

func dumpSectors(ctx context.Context, ops *tagops.TagOperations, info *tagops.TagInfo, out io.Writer) error {
	block := 0
	for sector := range info.Sectors {
		blocks, err := ops.ReadSector(ctx, sector)
		if errors.Is(err, tagops.ErrAuthFailed) {
			_, _ = fmt.Fprintf(out, "Sector %2d: no key\n", sector)
			block += sectorSize(sector)
			continue
		}
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(out, "Sector %2d:\n", sector)
		for _, data := range blocks {
			_, _ = fmt.Fprintf(out, "  Block %3d: % X\n", block, data)
			block++
		}
	}
	return nil
}

// sectorSize is the block count of a MIFARE Classic sector. Sectors past 31
// exist on 4K cards only and hold 16 blocks.
func sectorSize(sector int) int {
	if sector < 32 {
		return 4
	}
	return 16
}

func runWriteText(ctx context.Context, device *mfrc522.Device, opts *options, out io.Writer) error {
	ops, err := newTagOps(device, &opts.config)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "Waiting for tag to write text: %q\n", opts.text)
	if err := waitForTag(ctx, ops, opts.config.Timeout); err != nil {
		return err
	}
	defer func() {
		if err := ops.Halt(); err != nil {
			log.Debug().Err(err).Msg("halt after write")
		}
	}()

	if err := ops.WriteText(ctx, opts.text, opts.language); err != nil {
		return fmt.Errorf("failed to write text: %w", err)
	}
	_, _ = fmt.Fprintf(out, "Wrote %q to tag %s\n", opts.text, ops.UID())
	return nil
}
