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
	"errors"
	"fmt"
)

// Status is the outcome of a driver operation. Every non-OK value is also an
// error, so operations return nil for success and a (possibly wrapped)
// Status otherwise:
//
//	if errors.Is(err, mfrc522.StatusTimeout) {
//	    // no card answered
//	}
type Status uint8

const (
	StatusOK            Status = iota // success
	StatusError                       // error in communication
	StatusCollision                   // collision detected
	StatusTimeout                     // timeout in communication
	StatusNoRoom                      // a buffer is not big enough
	StatusInternalError               // driver or transport fault
	StatusInvalid                     // invalid argument
	StatusCRCWrong                    // CRC_A or BCC does not match
	StatusMifareNack    Status = 0xFF // a MIFARE PICC responded with NAK
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusError:
		return "ERROR"
	case StatusCollision:
		return "COLLISION"
	case StatusTimeout:
		return "TIMEOUT"
	case StatusNoRoom:
		return "NO_ROOM"
	case StatusInternalError:
		return "INTERNAL_ERROR"
	case StatusInvalid:
		return "INVALID"
	case StatusCRCWrong:
		return "CRC_WRONG"
	case StatusMifareNack:
		return "MIFARE_NACK"
	default:
		return fmt.Sprintf("Status(0x%02X)", uint8(s))
	}
}

// Error implements the error interface.
func (s Status) Error() string {
	switch s {
	case StatusOK:
		return "success"
	case StatusError:
		return "error in communication"
	case StatusCollision:
		return "collision detected"
	case StatusTimeout:
		return "timeout in communication"
	case StatusNoRoom:
		return "buffer not big enough"
	case StatusInternalError:
		return "internal error"
	case StatusInvalid:
		return "invalid argument"
	case StatusCRCWrong:
		return "CRC_A does not match"
	case StatusMifareNack:
		return "MIFARE PICC responded with NAK"
	default:
		return s.String()
	}
}

// StatusOf returns the status carried by err. A nil error is StatusOK and an
// error without a Status in its chain is StatusInternalError.
func StatusOf(err error) Status {
	if err == nil {
		return StatusOK
	}
	var s Status
	if errors.As(err, &s) {
		return s
	}
	return StatusInternalError
}

// statusError attaches context to a status without hiding it from errors.Is.
func statusError(s Status, format string, args ...any) error {
	return fmt.Errorf("%w: %s", s, fmt.Sprintf(format, args...))
}
