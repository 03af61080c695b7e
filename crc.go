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

// CalculateCRC runs data through the chip's CRC_A coprocessor.
func (d *Device) CalculateCRC(data []byte) (uint16, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calculateCRC(data)
}

// calculateCRC returns the CRC_A of data as computed by the chip. The value
// goes on the air low byte first.
func (d *Device) calculateCRC(data []byte) (crc uint16, err error) {
	if len(data) > FIFOSize {
		return 0, statusError(StatusNoRoom, "%d bytes do not fit the FIFO", len(data))
	}

	defer func() {
		if idleErr := d.writeRegister(CommandReg, byte(CmdIdle)); idleErr != nil && err == nil {
			err = idleErr
		}
	}()

	if err = d.writeRegister(CommandReg, byte(CmdIdle)); err != nil {
		return 0, err
	}
	if err = d.writeRegister(DivIrqReg, IrqDivCRC); err != nil {
		return 0, err
	}
	if err = d.writeRegister(FIFOLevelReg, FIFOFlushBuffer); err != nil {
		return 0, err
	}
	if err = d.writeRegisterBlock(FIFODataReg, data); err != nil {
		return 0, err
	}
	if err = d.writeRegister(CommandReg, byte(CmdCalcCRC)); err != nil {
		return 0, err
	}

	polls := d.config.CRCPollBudget
	for range polls {
		irq, err := d.readRegister(DivIrqReg)
		if err != nil {
			return 0, err
		}
		if irq&IrqDivCRC == 0 {
			continue
		}
		if err := d.writeRegister(CommandReg, byte(CmdIdle)); err != nil {
			return 0, err
		}
		lo, err := d.readRegister(CRCResultRegL)
		if err != nil {
			return 0, err
		}
		hi, err := d.readRegister(CRCResultRegH)
		if err != nil {
			return 0, err
		}
		return uint16(lo) | uint16(hi)<<8, nil
	}

	Debugf("CRC coprocessor did not finish within %d polls", polls)
	return 0, statusError(StatusTimeout, "CRC coprocessor did not finish within %d polls", polls)
}

// appendCRC returns frame followed by its CRC_A, low byte first.
func (d *Device) appendCRC(frame []byte) ([]byte, error) {
	crc, err := d.calculateCRC(frame)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(frame)+2)
	out = append(out, frame...)
	return append(out, byte(crc), byte(crc>>8)), nil
}

// verifyCRC checks the trailing CRC_A of frame and returns the payload.
func (d *Device) verifyCRC(frame []byte) ([]byte, error) {
	if len(frame) < 2 {
		return nil, statusError(StatusCRCWrong, "%d byte frame has no CRC", len(frame))
	}
	payload := frame[:len(frame)-2]
	crc, err := d.calculateCRC(payload)
	if err != nil {
		return nil, err
	}
	if frame[len(frame)-2] != byte(crc) || frame[len(frame)-1] != byte(crc>>8) {
		return nil, statusError(StatusCRCWrong, "got %02X%02X, want %02X%02X",
			frame[len(frame)-2], frame[len(frame)-1], byte(crc), byte(crc>>8))
	}
	return payload, nil
}
