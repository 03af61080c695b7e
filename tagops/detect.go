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
	"context"
	"fmt"

	"github.com/ZaparooProject/go-mfrc522"
)

const (
	unknownTagName    = "Unknown"
	ultralightName    = "MIFARE Ultralight / NTAG"
	mifareClassicName = "MIFARE Classic"

	ccPage          = 3
	ccMagic         = 0xE1
	firstDataPage   = 4
	blocksPerSector = 4
	mifare4KBlocks  = 256
	largeSectorBase = 128 // first block of the 16 block sectors of a 4K
)

// ultralightModels maps the data area size of the capability container to
// the model and its total page count.
var ultralightModels = map[byte]struct {
	name  string
	pages int
}{
	0x06: {"MIFARE Ultralight", 16},
	0x12: {"NTAG213", 45},
	0x3E: {"NTAG215", 135},
	0x6D: {"NTAG216", 231},
}

// TagInfo contains detailed information about a detected tag
type TagInfo struct {
	TypeName   string
	Model      string
	UID        *mfrc522.UID
	Type       TagType
	TotalPages int
	UserMemory int
	Sectors    int
	NDEF       bool
}

// readCapabilityContainer reads page 3 to size the data area.
func (t *TagOperations) readCapabilityContainer(ctx context.Context) error {
	var cc []byte
	err := t.withTag(ctx, func() error {
		data, err := t.device.MIFARERead(ccPage)
		if err != nil {
			return err
		}
		cc = data[:mfrc522.UltralightPageSize]
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to read capability container: %w", err)
	}

	if cc[0] != ccMagic {
		// Not NDEF formatted; only the header and the smallest data area
		// are known to exist.
		t.totalPages = 16
		return nil
	}
	if model, ok := ultralightModels[cc[2]]; ok {
		t.totalPages = model.pages
		return nil
	}
	t.totalPages = firstDataPage + int(cc[2])*8/mfrc522.UltralightPageSize
	return nil
}

// dataAreaSize returns the NDEF data area size from the capability
// container, or 0 for an unformatted tag.
func (t *TagOperations) dataAreaSize(ctx context.Context) (int, error) {
	data, err := t.ReadPages(ctx, ccPage, ccPage)
	if err != nil {
		return 0, err
	}
	if data[0] != ccMagic {
		return 0, nil
	}
	return int(data[2]) * 8, nil
}

// GetTagInfo returns detailed information about the currently detected tag
func (t *TagOperations) GetTagInfo(ctx context.Context) (*TagInfo, error) {
	if t.uid == nil {
		return nil, ErrNoTag
	}

	info := &TagInfo{
		Type:     t.tagType,
		TypeName: TagTypeDisplayName(t.tagType),
		UID:      t.uid,
	}

	switch t.tagType {
	case TagTypeUltralight:
		info.TotalPages = t.totalPages
		size, err := t.dataAreaSize(ctx)
		if err != nil {
			return nil, err
		}
		info.UserMemory = size
		info.NDEF = size > 0
		info.Model = "Ultralight family"
		for _, m := range ultralightModels {
			if m.pages == t.totalPages {
				info.Model = m.name
			}
		}
	case TagTypeMIFARE:
		pt := t.uid.Type()
		info.Model = pt.String()
		info.Sectors = pt.Sectors()
		info.UserMemory = (t.totalBlocks - info.Sectors - 1) * mfrc522.MifareBlockSize
	case TagTypeUnknown:
	}
	return info, nil
}

// TagTypeDisplayName returns a human-readable display name for a tag type
func TagTypeDisplayName(t TagType) string {
	switch t {
	case TagTypeUltralight:
		return ultralightName
	case TagTypeMIFARE:
		return mifareClassicName
	case TagTypeUnknown:
		return unknownTagName
	}
	return unknownTagName
}

func (t TagType) String() string {
	return TagTypeDisplayName(t)
}

// sectorOf returns the sector holding block.
func sectorOf(block int) int {
	if block < largeSectorBase {
		return block / blocksPerSector
	}
	return largeSectorBase/blocksPerSector + (block-largeSectorBase)/16
}

// isTrailer reports whether block is the last block of its sector.
func isTrailer(block int) bool {
	if block < largeSectorBase {
		return block%blocksPerSector == blocksPerSector-1
	}
	return (block-largeSectorBase)%16 == 15
}
