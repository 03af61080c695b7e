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

package tagops

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/ZaparooProject/go-mfrc522"
	"github.com/hsanjuan/go-ndef"
)

// ReadPages reads Ultralight pages start to end inclusive. READ returns
// four pages at a time, so a range costs one exchange per four pages.
func (t *TagOperations) ReadPages(ctx context.Context, start, end byte) ([]byte, error) {
	if t.uid == nil {
		return nil, ErrNoTag
	}
	if t.tagType != TagTypeUltralight {
		return nil, ErrUnsupportedTag
	}
	if start > end || int(end) >= t.totalPages {
		return nil, fmt.Errorf("%w: pages %d-%d of %d", ErrOutOfRange, start, end, t.totalPages)
	}

	result := make([]byte, 0, (int(end)-int(start)+1)*mfrc522.UltralightPageSize)
	for page := int(start); page <= int(end); page += 4 {
		var chunk []byte
		err := t.withTag(ctx, func() error {
			data, err := t.device.MIFARERead(byte(page))
			chunk = data
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("failed to read page %d: %w", page, err)
		}
		pages := min(4, int(end)-page+1)
		result = append(result, chunk[:pages*mfrc522.UltralightPageSize]...)
	}
	return result, nil
}

// ReadBlock reads one MIFARE Classic block, authenticating its sector with
// the configured keys first.
func (t *TagOperations) ReadBlock(ctx context.Context, block int) ([]byte, error) {
	if err := t.checkBlock(block); err != nil {
		return nil, err
	}

	var data []byte
	err := t.withTag(ctx, func() error {
		if err := t.authenticate(block); err != nil {
			return err
		}
		var readErr error
		data, readErr = t.device.MIFARERead(byte(block))
		return readErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read block %d: %w", block, err)
	}
	return data, nil
}

// ReadSector reads every block of the sector holding block, trailer
// included. Keys read back from a trailer are masked by the card.
func (t *TagOperations) ReadSector(ctx context.Context, sector int) ([][]byte, error) {
	first, count := sectorBlocks(sector)
	if err := t.checkBlock(first + count - 1); err != nil {
		return nil, err
	}

	blocks := make([][]byte, 0, count)
	for b := first; b < first+count; b++ {
		data, err := t.ReadBlock(ctx, b)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, data)
	}
	return blocks, nil
}

func (t *TagOperations) checkBlock(block int) error {
	if t.uid == nil {
		return ErrNoTag
	}
	if t.tagType != TagTypeMIFARE {
		return ErrUnsupportedTag
	}
	if block < 0 || block >= t.totalBlocks {
		return fmt.Errorf("%w: block %d of %d", ErrOutOfRange, block, t.totalBlocks)
	}
	return nil
}

// sectorBlocks returns the first block and the block count of sector.
func sectorBlocks(sector int) (first, count int) {
	small := largeSectorBase / blocksPerSector
	if sector < small {
		return sector * blocksPerSector, blocksPerSector
	}
	return largeSectorBase + (sector-small)*16, 16
}

// authenticate opens a Crypto1 session for the sector of block unless one
// is already active. A key that worked before is tried first. A failed
// attempt leaves the card IDLE, so it is reselected before the next key and
// once more when no key fits.
func (t *TagOperations) authenticate(block int) error {
	sector := sectorOf(block)
	if s := t.device.Session(); s != nil && bytes.Equal(s.UID, t.uid.Bytes) && sectorOf(int(s.Block)) == sector {
		return nil
	}

	candidates := make([]sectorKey, 0, 2*len(t.keys)+1)
	if known, ok := t.sectorKeys[sector]; ok {
		candidates = append(candidates, known)
	}
	for _, kt := range []mfrc522.KeyType{mfrc522.KeyA, mfrc522.KeyB} {
		for _, k := range t.keys {
			candidates = append(candidates, sectorKey{key: k, keyType: kt})
		}
	}

	for i, c := range candidates {
		if i > 0 {
			if _, err := t.device.Reselect(t.uid); err != nil {
				return err
			}
		}
		err := t.device.Authenticate(c.keyType, byte(block), c.key, t.uid)
		if err == nil {
			if t.sectorKeys == nil {
				t.sectorKeys = make(map[int]sectorKey)
			}
			t.sectorKeys[sector] = c
			return nil
		}
		if !errors.Is(err, mfrc522.StatusMifareNack) && !errors.Is(err, mfrc522.StatusTimeout) {
			return err
		}
	}
	if _, err := t.device.Reselect(t.uid); err != nil {
		mfrc522.Debugf("Reselect after failed authentication: %v", err)
	}
	return fmt.Errorf("%w: sector %d", ErrAuthFailed, sector)
}

// ReadNDEF reads and parses the NDEF message of an Ultralight or NTAG tag.
func (t *TagOperations) ReadNDEF(ctx context.Context) (*ndef.Message, error) {
	if t.uid == nil {
		return nil, ErrNoTag
	}
	if t.tagType != TagTypeUltralight {
		return nil, ErrUnsupportedTag
	}

	size, err := t.dataAreaSize(ctx)
	if err != nil {
		return nil, err
	}
	if size == 0 {
		return nil, ErrNoNDEF
	}
	lastPage := min(t.totalPages-1, firstDataPage+size/mfrc522.UltralightPageSize-1)
	data, err := t.ReadPages(ctx, firstDataPage, byte(lastPage))
	if err != nil {
		return nil, err
	}

	payload, err := findNDEFTLV(data)
	if err != nil {
		return nil, err
	}
	msg := &ndef.Message{}
	if _, err := msg.Unmarshal(payload); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidNDEF, err)
	}
	return msg, nil
}

// ReadText returns the text of the first NDEF text record.
func (t *TagOperations) ReadText(ctx context.Context) (string, error) {
	msg, err := t.ReadNDEF(ctx)
	if err != nil {
		return "", err
	}
	return FirstText(msg)
}
