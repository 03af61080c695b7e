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

// Package tagops provides card level operations on top of a Device: page
// and block access with authentication and retries, and NDEF text records
// on Ultralight and NTAG cards.
package tagops

import (
	"context"
	"errors"
	"fmt"

	"github.com/ZaparooProject/go-mfrc522"
)

var (
	// ErrNoTag indicates no tag was detected
	ErrNoTag = errors.New("no tag detected")
	// ErrUnsupportedTag indicates the tag type is not supported
	ErrUnsupportedTag = errors.New("unsupported tag type")
	// ErrAuthFailed indicates all authentication attempts failed
	ErrAuthFailed = errors.New("authentication failed with all known keys")
	// ErrProtectedBlock indicates a write to the manufacturer block, a sector
	// trailer or an Ultralight header page
	ErrProtectedBlock = errors.New("block is write protected by tagops")
	// ErrOutOfRange indicates a page or block beyond the tag memory
	ErrOutOfRange = errors.New("address out of range")
)

// TagType represents the family of a detected tag
type TagType int

const (
	// TagTypeUnknown represents an unknown or unsupported tag type
	TagTypeUnknown TagType = iota
	// TagTypeUltralight represents MIFARE Ultralight and NTAG2xx tags
	TagTypeUltralight
	// TagTypeMIFARE represents a MIFARE Classic tag
	TagTypeMIFARE
)

// DefaultKeys are tried in order when authenticating a MIFARE Classic sector.
var DefaultKeys = []mfrc522.Key{
	mfrc522.DefaultKey,
	{0xA0, 0xA1, 0xA2, 0xA3, 0xA4, 0xA5}, // MAD
	{0xD3, 0xF7, 0xD3, 0xF7, 0xD3, 0xF7}, // NFC Forum
	{0x00, 0x00, 0x00, 0x00, 0x00, 0x00},
}

type sectorKey struct {
	key     mfrc522.Key
	keyType mfrc522.KeyType
}

// TagOperations provides unified high-level tag operations
type TagOperations struct {
	device      *mfrc522.Device
	uid         *mfrc522.UID
	retry       *mfrc522.RetryConfig
	sectorKeys  map[int]sectorKey
	keys        []mfrc522.Key
	tagType     TagType
	totalPages  int
	totalBlocks int
}

// New creates a new TagOperations instance
func New(device *mfrc522.Device) *TagOperations {
	return &TagOperations{
		device: device,
		keys:   DefaultKeys,
		retry:  device.Config().RetryConfig,
	}
}

// SetKeys replaces the keys tried on MIFARE Classic sectors. Each key is
// tried as key A first, then as key B.
func (t *TagOperations) SetKeys(keys ...mfrc522.Key) {
	t.keys = append([]mfrc522.Key(nil), keys...)
	t.sectorKeys = nil
}

// SetRetryConfig sets the retries used for RF operations.
func (t *TagOperations) SetRetryConfig(config *mfrc522.RetryConfig) {
	t.retry = config
}

// DetectTag selects a tag and identifies its family. It must be called
// before any read or write.
func (t *TagOperations) DetectTag(ctx context.Context) error {
	var uid *mfrc522.UID
	err := mfrc522.RetryWithConfig(ctx, t.retry, func() error {
		var selErr error
		uid, selErr = t.device.Select()
		return selErr
	})
	if errors.Is(err, mfrc522.StatusTimeout) {
		return ErrNoTag
	}
	if err != nil {
		return fmt.Errorf("failed to detect tag: %w", err)
	}
	return t.UseTag(ctx, uid)
}

// UseTag sets up operations on a tag the caller already selected, e.g. in
// a polling callback.
func (t *TagOperations) UseTag(ctx context.Context, uid *mfrc522.UID) error {
	if uid == nil {
		return ErrNoTag
	}
	t.uid = uid
	t.sectorKeys = nil
	t.totalPages = 0
	t.totalBlocks = 0

	switch pt := uid.Type(); {
	case pt == mfrc522.PICCTypeMifareUL:
		t.tagType = TagTypeUltralight
		return t.readCapabilityContainer(ctx)
	case pt.IsMifareClassic():
		t.tagType = TagTypeMIFARE
		t.totalBlocks = pt.Sectors() * blocksPerSector
		if pt == mfrc522.PICCTypeMifare4K {
			t.totalBlocks = mifare4KBlocks
		}
		return nil
	default:
		t.tagType = TagTypeUnknown
		return fmt.Errorf("%w: %s", ErrUnsupportedTag, pt)
	}
}

// TagType returns the detected tag type
func (t *TagOperations) TagType() TagType {
	return t.tagType
}

// UID returns the tag's UID
func (t *TagOperations) UID() *mfrc522.UID {
	return t.uid
}

// Halt puts the tag to sleep and leaves any Crypto1 session.
func (t *TagOperations) Halt() error {
	if t.uid == nil {
		return ErrNoTag
	}
	err := t.device.HaltA()
	if stopErr := t.device.StopCrypto1(); err == nil {
		err = stopErr
	}
	return err
}

// withTag runs op, reselecting the tag before every retry. The tag leaves
// the ACTIVE state on any RF error.
func (t *TagOperations) withTag(ctx context.Context, op func() error) error {
	if t.uid == nil {
		return ErrNoTag
	}
	attempt := 0
	return mfrc522.RetryWithConfig(ctx, t.retry, func() error {
		attempt++
		if attempt > 1 {
			if _, err := t.device.Reselect(t.uid); err != nil {
				return err
			}
		}
		return op()
	})
}
