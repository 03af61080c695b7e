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
	"fmt"

	"github.com/ZaparooProject/go-mfrc522"
	"github.com/hsanjuan/go-ndef"
)

// WritePage writes one 4 byte Ultralight page. The UID, lock and
// capability container pages are refused.
func (t *TagOperations) WritePage(ctx context.Context, page byte, data []byte) error {
	if t.uid == nil {
		return ErrNoTag
	}
	if t.tagType != TagTypeUltralight {
		return ErrUnsupportedTag
	}
	if page < firstDataPage {
		return fmt.Errorf("%w: page %d", ErrProtectedBlock, page)
	}
	if int(page) >= t.totalPages {
		return fmt.Errorf("%w: page %d of %d", ErrOutOfRange, page, t.totalPages)
	}
	if len(data) != mfrc522.UltralightPageSize {
		return fmt.Errorf("%w: page data must be %d bytes", mfrc522.ErrInvalidParameter, mfrc522.UltralightPageSize)
	}

	return t.withTag(ctx, func() error {
		return t.device.UltralightWrite(page, data)
	})
}

// WritePages writes data page by page starting at start. data is padded
// with zeros to a whole page.
func (t *TagOperations) WritePages(ctx context.Context, start byte, data []byte) error {
	if rem := len(data) % mfrc522.UltralightPageSize; rem != 0 {
		padded := make([]byte, len(data)+mfrc522.UltralightPageSize-rem)
		copy(padded, data)
		data = padded
	}
	for i := 0; i < len(data); i += mfrc522.UltralightPageSize {
		page := int(start) + i/mfrc522.UltralightPageSize
		if page > 0xFF {
			return fmt.Errorf("%w: page %d", ErrOutOfRange, page)
		}
		if err := t.WritePage(ctx, byte(page), data[i:i+mfrc522.UltralightPageSize]); err != nil {
			return fmt.Errorf("failed to write page %d: %w", page, err)
		}
	}
	return nil
}

// WriteBlock writes one MIFARE Classic data block after authenticating its
// sector. Block 0 and sector trailers are refused, since a bad trailer
// locks the sector for good.
func (t *TagOperations) WriteBlock(ctx context.Context, block int, data []byte) error {
	if err := t.checkBlock(block); err != nil {
		return err
	}
	if block == 0 || isTrailer(block) {
		return fmt.Errorf("%w: block %d", ErrProtectedBlock, block)
	}
	if len(data) != mfrc522.MifareBlockSize {
		return fmt.Errorf("%w: block data must be %d bytes", mfrc522.ErrInvalidParameter, mfrc522.MifareBlockSize)
	}

	err := t.withTag(ctx, func() error {
		if err := t.authenticate(block); err != nil {
			return err
		}
		return t.device.MIFAREWrite(byte(block), data)
	})
	if err != nil {
		return fmt.Errorf("failed to write block %d: %w", block, err)
	}
	return nil
}

// WriteNDEF writes msg as the NDEF TLV of an Ultralight or NTAG tag and
// reads it back.
func (t *TagOperations) WriteNDEF(ctx context.Context, msg *ndef.Message) error {
	if t.uid == nil {
		return ErrNoTag
	}
	if t.tagType != TagTypeUltralight {
		return ErrUnsupportedTag
	}

	encoded, err := msg.Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal NDEF message: %w", err)
	}
	tlv := buildNDEFTLV(encoded)

	size, err := t.dataAreaSize(ctx)
	if err != nil {
		return err
	}
	if size == 0 {
		return fmt.Errorf("%w: tag is not NDEF formatted", ErrUnsupportedTag)
	}
	if len(tlv) > size {
		return fmt.Errorf("%w: %d bytes, data area holds %d", ErrNDEFTooLarge, len(tlv), size)
	}

	if err := t.WritePages(ctx, firstDataPage, tlv); err != nil {
		return err
	}

	written := len(tlv) + (mfrc522.UltralightPageSize-len(tlv)%mfrc522.UltralightPageSize)%mfrc522.UltralightPageSize
	lastPage := firstDataPage + written/mfrc522.UltralightPageSize - 1
	readBack, err := t.ReadPages(ctx, firstDataPage, byte(lastPage))
	if err != nil {
		return fmt.Errorf("failed to verify NDEF write: %w", err)
	}
	if !bytes.Equal(readBack[:len(tlv)], tlv) {
		return fmt.Errorf("%w: read back differs from written data", ErrInvalidNDEF)
	}
	mfrc522.Debugf("Wrote %d byte NDEF message to %s", len(encoded), t.uid)
	return nil
}

// WriteText writes a single NDEF text record.
func (t *TagOperations) WriteText(ctx context.Context, text, lang string) error {
	if lang == "" {
		lang = "en"
	}
	return t.WriteNDEF(ctx, ndef.NewTextMessage(text, lang))
}
