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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatus_String(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status Status
		name   string
	}{
		{StatusOK, "OK"},
		{StatusError, "ERROR"},
		{StatusCollision, "COLLISION"},
		{StatusTimeout, "TIMEOUT"},
		{StatusNoRoom, "NO_ROOM"},
		{StatusInternalError, "INTERNAL_ERROR"},
		{StatusInvalid, "INVALID"},
		{StatusCRCWrong, "CRC_WRONG"},
		{StatusMifareNack, "MIFARE_NACK"},
		{Status(0x42), "Status(0x42)"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.name, tt.status.String())
		assert.NotEmpty(t, tt.status.Error())
	}
	assert.Equal(t, Status(0xFF), StatusMifareNack)
}

func TestStatusOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		name string
		want Status
	}{
		{name: "nil", err: nil, want: StatusOK},
		{name: "bare status", err: StatusCollision, want: StatusCollision},
		{name: "status with context", err: statusError(StatusCRCWrong, "SAK"), want: StatusCRCWrong},
		{name: "double wrapped", err: fmt.Errorf("select: %w", statusError(StatusTimeout, "REQA")), want: StatusTimeout},
		{name: "foreign error", err: errors.New("boom"), want: StatusInternalError},
		{name: "NAK with cause", err: fmt.Errorf("%w: %w", StatusMifareNack, ErrTagAuthFailed), want: StatusMifareNack},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, StatusOf(tt.err))
		})
	}
}

func TestStatusError(t *testing.T) {
	t.Parallel()

	err := statusError(StatusInvalid, "UID of %d bytes", 5)
	assert.ErrorIs(t, err, StatusInvalid)
	assert.Equal(t, "invalid argument: UID of 5 bytes", err.Error())
}
