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

package mfrc522

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"
)

// UID is the identity of a selected PICC.
type UID struct {
	// Bytes holds 4, 7 or 10 bytes, cascade tags removed.
	Bytes []byte
	// SAK is the Select Acknowledge of the final cascade level.
	SAK byte
}

// Size returns the UID length in bytes.
func (u *UID) Size() int {
	return len(u.Bytes)
}

// String returns the UID as lowercase hex.
func (u *UID) String() string {
	return hex.EncodeToString(u.Bytes)
}

// Type classifies the PICC from its SAK.
func (u *UID) Type() PICCType {
	return PICCTypeFromSAK(u.SAK)
}

// Equal reports whether both UIDs have the same bytes.
func (u *UID) Equal(other *UID) bool {
	if u == nil || other == nil {
		return u == other
	}
	return bytes.Equal(u.Bytes, other.Bytes)
}

// ParseUID parses a hex UID, with or without ':' or ' ' separators.
func ParseUID(s string) (*UID, error) {
	clean := strings.NewReplacer(":", "", " ", "", "-", "").Replace(s)
	b, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFormat, err)
	}
	if !validUIDSize(len(b)) {
		return nil, fmt.Errorf("%w: UID must be 4, 7 or 10 bytes, got %d", ErrInvalidFormat, len(b))
	}
	return &UID{Bytes: b}, nil
}

func validUIDSize(n int) bool {
	return n == 4 || n == 7 || n == 10
}

// ATQA is the Answer To Request of a PICC, low byte first as received.
type ATQA [2]byte

// UIDSize returns the UID size announced in bits 7-6 of the ATQA.
func (a ATQA) UIDSize() int {
	switch a[0] >> 6 {
	case 0:
		return 4
	case 1:
		return 7
	case 2:
		return 10
	default:
		return 0
	}
}

func (a ATQA) String() string {
	return fmt.Sprintf("%02X%02X", a[1], a[0])
}

// PICCType is the card family derived from the SAK.
type PICCType int

const (
	PICCTypeUnknown PICCType = iota
	PICCTypeISO14443_4
	PICCTypeISO18092
	PICCTypeMifareMini
	PICCTypeMifare1K
	PICCTypeMifare4K
	PICCTypeMifareUL
	PICCTypeMifarePlus
	PICCTypeMifareDESFire
	PICCTypeTNP3XXX
	PICCTypeNotComplete
)

// PICCTypeFromSAK classifies a SAK byte. Bit 7 is ignored.
func PICCTypeFromSAK(sak byte) PICCType {
	switch sak & 0x7F {
	case 0x04:
		return PICCTypeNotComplete
	case 0x09:
		return PICCTypeMifareMini
	case 0x08:
		return PICCTypeMifare1K
	case 0x18:
		return PICCTypeMifare4K
	case 0x00:
		return PICCTypeMifareUL
	case 0x10, 0x11:
		return PICCTypeMifarePlus
	case 0x01:
		return PICCTypeTNP3XXX
	case 0x20:
		return PICCTypeISO14443_4
	case 0x40:
		return PICCTypeISO18092
	default:
		return PICCTypeUnknown
	}
}

// IsMifareClassic reports whether the PICC speaks Crypto1.
func (t PICCType) IsMifareClassic() bool {
	return t == PICCTypeMifareMini || t == PICCTypeMifare1K || t == PICCTypeMifare4K
}

func (t PICCType) String() string {
	switch t {
	case PICCTypeISO14443_4:
		return "PICC compliant with ISO/IEC 14443-4"
	case PICCTypeISO18092:
		return "PICC compliant with ISO/IEC 18092 (NFC)"
	case PICCTypeMifareMini:
		return "MIFARE Mini, 320 bytes"
	case PICCTypeMifare1K:
		return "MIFARE 1KB"
	case PICCTypeMifare4K:
		return "MIFARE 4KB"
	case PICCTypeMifareUL:
		return "MIFARE Ultralight or Ultralight C"
	case PICCTypeMifarePlus:
		return "MIFARE Plus"
	case PICCTypeMifareDESFire:
		return "MIFARE DESFire"
	case PICCTypeTNP3XXX:
		return "MIFARE TNP3XXX"
	case PICCTypeNotComplete:
		return "SAK indicates UID is not complete"
	default:
		return "Unknown type"
	}
}

// Sectors returns the number of sectors of a MIFARE Classic type.
func (t PICCType) Sectors() int {
	switch t {
	case PICCTypeMifareMini:
		return 5
	case PICCTypeMifare1K:
		return 16
	case PICCTypeMifare4K:
		return 40
	default:
		return 0
	}
}
