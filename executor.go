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

// commandRequest describes one PCD command run through the FIFO.
type commandRequest struct {
	data     []byte
	polls    int
	command  Command
	waitIRq  byte // ComIrqReg bits that mean the command is done
	framing  byte // BitFramingReg: RxAlign<<4 | TxLastBits
	readBack bool
}

// commandResult is what the chip left in the FIFO.
type commandResult struct {
	data []byte
	// validBits is the number of valid bits in the last byte, 0 meaning 8.
	validBits byte
}

// runCommand loads the FIFO, starts the command and polls ComIrqReg until
// one of the wait bits, the chip timer or the poll budget ends it.
// CommandReg is back at Idle whenever runCommand returns.
//
// A Transceive that ended in a bit collision returns the received bytes
// together with StatusCollision.
func (d *Device) runCommand(req commandRequest) (res commandResult, err error) {
	if len(req.data) > FIFOSize {
		return res, statusError(StatusNoRoom, "%d bytes do not fit the FIFO", len(req.data))
	}
	polls := req.polls
	if polls <= 0 {
		polls = d.config.PollBudget
	}

	defer func() {
		if idleErr := d.writeRegister(CommandReg, byte(CmdIdle)); idleErr != nil && err == nil {
			err = idleErr
		}
	}()

	if err = d.startCommand(req); err != nil {
		return res, err
	}

	if err = d.waitForIRq(req.command, req.waitIRq, polls); err != nil {
		return res, err
	}

	errReg, err := d.readRegister(ErrorReg)
	if err != nil {
		return res, err
	}
	status := classifyErrors(req.command, errReg)
	if status != StatusOK && status != StatusCollision {
		Debugf("%s failed: ErrorReg=0x%02X (%s)", req.command, errReg, status)
		return res, status
	}

	if req.readBack {
		if res, err = d.drainFIFO(); err != nil {
			return res, err
		}
	}
	if status == StatusCollision {
		return res, StatusCollision
	}
	return res, nil
}

func (d *Device) startCommand(req commandRequest) error {
	writes := []struct {
		reg Register
		val byte
	}{
		{CommandReg, byte(CmdIdle)},
		{ComIrqReg, IrqClearAll},
		{FIFOLevelReg, FIFOFlushBuffer},
	}
	for _, w := range writes {
		if err := d.writeRegister(w.reg, w.val); err != nil {
			return err
		}
	}
	if err := d.writeRegisterBlock(FIFODataReg, req.data); err != nil {
		return err
	}
	if err := d.writeRegister(BitFramingReg, req.framing); err != nil {
		return err
	}
	if err := d.writeRegister(CommandReg, byte(req.command)); err != nil {
		return err
	}
	if req.command == CmdTransceive {
		return d.setRegisterBits(BitFramingReg, BitFramingStartSend)
	}
	return nil
}

func (d *Device) waitForIRq(cmd Command, waitIRq byte, polls int) error {
	for range polls {
		irq, err := d.readRegister(ComIrqReg)
		if err != nil {
			return err
		}
		if irq&waitIRq != 0 {
			return nil
		}
		if irq&IrqTimer != 0 {
			return StatusTimeout
		}
	}
	Debugf("%s did not complete within %d polls", cmd, polls)
	return statusError(StatusTimeout, "%s did not complete within %d polls", cmd, polls)
}

// classifyErrors maps ErrorReg to a status. A collision wins for Transceive
// because anti-collision needs the bits received before it.
func classifyErrors(cmd Command, errReg byte) Status {
	switch {
	case cmd == CmdTransceive && errReg&ErrorBitColl != 0:
		return StatusCollision
	case errReg&ErrorBitBufferOvfl != 0:
		return StatusNoRoom
	case errReg&(ErrorBitParity|ErrorBitProtocol) != 0:
		return StatusError
	case errReg&ErrorBitCRC != 0:
		return StatusCRCWrong
	case errReg&ErrorBitColl != 0:
		return StatusCollision
	default:
		return StatusOK
	}
}

func (d *Device) drainFIFO() (commandResult, error) {
	level, err := d.readRegister(FIFOLevelReg)
	if err != nil {
		return commandResult{}, err
	}
	n := int(level & 0x7F)
	if n > FIFOSize {
		return commandResult{}, statusError(StatusNoRoom, "FIFO level %d", n)
	}
	data := make([]byte, n)
	if err := d.readRegisterBlock(FIFODataReg, data); err != nil {
		return commandResult{}, err
	}
	control, err := d.readRegister(ControlReg)
	if err != nil {
		return commandResult{}, err
	}
	return commandResult{data: data, validBits: control & ControlRxLastBits}, nil
}
