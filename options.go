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
	"fmt"
	"time"
)

// Option is a functional option for configuring a Device
type Option func(*Device) error

// WithRetryConfig sets the retry configuration for the device
func WithRetryConfig(config *RetryConfig) Option {
	return func(d *Device) error {
		d.config.RetryConfig = config
		return nil
	}
}

// WithPollBudget sets how many times ComIrqReg is polled before a command
// is abandoned with StatusTimeout.
func WithPollBudget(polls int) Option {
	return func(d *Device) error {
		if polls < 1 {
			return fmt.Errorf("%w: poll budget must be positive, got %d", ErrInvalidParameter, polls)
		}
		d.config.PollBudget = polls
		return nil
	}
}

// WithCRCPollBudget sets the poll bound of the CRC coprocessor.
func WithCRCPollBudget(polls int) Option {
	return func(d *Device) error {
		if polls < 1 {
			return fmt.Errorf("%w: CRC poll budget must be positive, got %d", ErrInvalidParameter, polls)
		}
		d.config.CRCPollBudget = polls
		return nil
	}
}

// WithAuthPollBudget sets the poll bound of MFAuthent.
func WithAuthPollBudget(polls int) Option {
	return func(d *Device) error {
		if polls < 1 {
			return fmt.Errorf("%w: auth poll budget must be positive, got %d", ErrInvalidParameter, polls)
		}
		d.config.AuthPollBudget = polls
		return nil
	}
}

// WithCommandTimeout sets the chip timer used to end a transceive with no
// answer. It takes effect at Init.
func WithCommandTimeout(timeout time.Duration) Option {
	return func(d *Device) error {
		if timeout <= 0 {
			return fmt.Errorf("%w: command timeout must be positive, got %v", ErrInvalidParameter, timeout)
		}
		d.config.CommandTimeout = timeout
		return nil
	}
}

// WithAntennaGain sets the receiver gain applied at Init.
func WithAntennaGain(gain AntennaGain) Option {
	return func(d *Device) error {
		if !gain.Valid() {
			return fmt.Errorf("%w: antenna gain 0x%02X", ErrInvalidParameter, byte(gain))
		}
		d.config.AntennaGain = gain
		return nil
	}
}
