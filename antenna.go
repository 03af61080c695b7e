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

import "fmt"

// AntennaGain is the RxGain field of RFCfgReg (bits 6-4).
type AntennaGain byte

const (
	AntennaGain18dB  AntennaGain = 0x00
	AntennaGain23dB  AntennaGain = 0x10
	AntennaGain18dB2 AntennaGain = 0x20 // duplicate of 18 dB
	AntennaGain23dB2 AntennaGain = 0x30 // duplicate of 23 dB
	AntennaGain33dB  AntennaGain = 0x40
	AntennaGain38dB  AntennaGain = 0x50
	AntennaGain43dB  AntennaGain = 0x60
	AntennaGain48dB  AntennaGain = 0x70

	AntennaGainMin = AntennaGain18dB
	AntennaGainAvg = AntennaGain33dB
	AntennaGainMax = AntennaGain48dB
)

// Valid reports whether g only uses the RxGain bits.
func (g AntennaGain) Valid() bool {
	return byte(g)&^RFCfgRxGainMask == 0
}

func (g AntennaGain) String() string {
	switch g {
	case AntennaGain18dB, AntennaGain18dB2:
		return "18dB"
	case AntennaGain23dB, AntennaGain23dB2:
		return "23dB"
	case AntennaGain33dB:
		return "33dB"
	case AntennaGain38dB:
		return "38dB"
	case AntennaGain43dB:
		return "43dB"
	case AntennaGain48dB:
		return "48dB"
	default:
		return fmt.Sprintf("AntennaGain(0x%02X)", byte(g))
	}
}

// AntennaOn enables the TX1 and TX2 drivers.
func (d *Device) AntennaOn() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.antennaOn()
}

func (d *Device) antennaOn() error {
	v, err := d.readRegister(TxControlReg)
	if err != nil {
		return err
	}
	if v&TxControlRFEn == TxControlRFEn {
		return nil
	}
	return d.writeRegister(TxControlReg, v|TxControlRFEn)
}

// AntennaOff disables the field. PICCs in the field lose power and state.
func (d *Device) AntennaOff() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.session = nil
	return d.clearRegisterBits(TxControlReg, TxControlRFEn)
}

// AntennaGain returns the current receiver gain.
func (d *Device) AntennaGain() (AntennaGain, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, err := d.readRegister(RFCfgReg)
	if err != nil {
		return 0, err
	}
	return AntennaGain(v & RFCfgRxGainMask), nil
}

// SetAntennaGain changes the receiver gain.
func (d *Device) SetAntennaGain(gain AntennaGain) error {
	if !gain.Valid() {
		return statusError(StatusInvalid, "antenna gain 0x%02X", byte(gain))
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.setAntennaGain(gain)
}

func (d *Device) setAntennaGain(gain AntennaGain) error {
	v, err := d.readRegister(RFCfgReg)
	if err != nil {
		return err
	}
	if v&RFCfgRxGainMask == byte(gain) {
		return nil
	}
	return d.writeRegister(RFCfgReg, v&^RFCfgRxGainMask|byte(gain))
}
