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

// Register is a 6-bit MFRC522 register address. Transports apply the
// bus-specific encoding (the SPI address byte is the register shifted left
// by one, with bit 7 set for reads).
type Register byte

// Page 0: command and status
const (
	CommandReg    Register = 0x01 // starts and stops command execution
	ComIEnReg     Register = 0x02 // enable and disable interrupt request control bits
	DivIEnReg     Register = 0x03 // enable and disable interrupt request control bits
	ComIrqReg     Register = 0x04 // interrupt request bits
	DivIrqReg     Register = 0x05 // interrupt request bits
	ErrorReg      Register = 0x06 // error status of the last command executed
	Status1Reg    Register = 0x07 // communication status bits
	Status2Reg    Register = 0x08 // receiver and transmitter status bits
	FIFODataReg   Register = 0x09 // input and output of the 64 byte FIFO
	FIFOLevelReg  Register = 0x0A // number of bytes stored in the FIFO
	WaterLevelReg Register = 0x0B // level for FIFO underflow and overflow warning
	ControlReg    Register = 0x0C // miscellaneous control bits
	BitFramingReg Register = 0x0D // adjustments for bit-oriented frames
	CollReg       Register = 0x0E // position of the first bit-collision
)

// Page 1: communication
const (
	ModeReg        Register = 0x11
	TxModeReg      Register = 0x12
	RxModeReg      Register = 0x13
	TxControlReg   Register = 0x14 // antenna driver pins TX1 and TX2
	TxASKReg       Register = 0x15
	TxSelReg       Register = 0x16
	RxSelReg       Register = 0x17
	RxThresholdReg Register = 0x18
	DemodReg       Register = 0x19
	MfTxReg        Register = 0x1C
	MfRxReg        Register = 0x1D
	SerialSpeedReg Register = 0x1F
)

// Page 2: configuration
const (
	CRCResultRegH     Register = 0x21
	CRCResultRegL     Register = 0x22
	ModWidthReg       Register = 0x24
	RFCfgReg          Register = 0x26 // receiver gain
	GsNReg            Register = 0x27
	CWGsPReg          Register = 0x28
	ModGsPReg         Register = 0x29
	TModeReg          Register = 0x2A
	TPrescalerReg     Register = 0x2B
	TReloadRegH       Register = 0x2C
	TReloadRegL       Register = 0x2D
	TCounterValueRegH Register = 0x2E
	TCounterValueRegL Register = 0x2F
)

// Page 3: test registers
const (
	TestSel1Reg     Register = 0x31
	TestSel2Reg     Register = 0x32
	TestPinEnReg    Register = 0x33
	TestPinValueReg Register = 0x34
	TestBusReg      Register = 0x35
	AutoTestReg     Register = 0x36 // digital self-test
	VersionReg      Register = 0x37
	AnalogTestReg   Register = 0x38
	TestDAC1Reg     Register = 0x39
	TestDAC2Reg     Register = 0x3A
	TestADCReg      Register = 0x3B
)

// MaxRegister is the highest addressable register.
const MaxRegister Register = 0x3F

// CommandReg bits
const (
	CommandRcvOff    byte = 0x20
	CommandPowerDown byte = 0x10
	CommandMask      byte = 0x0F
)

// ComIrqReg bits
const (
	IrqSet1      byte = 0x80
	IrqTx        byte = 0x40
	IrqRx        byte = 0x20
	IrqIdle      byte = 0x10
	IrqHiAlert   byte = 0x08
	IrqLoAlert   byte = 0x04
	IrqErr       byte = 0x02
	IrqTimer     byte = 0x01
	IrqClearAll  byte = 0x7F
	IrqDivCRC    byte = 0x04 // DivIrqReg CRCIRq
	IrqDivMfinAc byte = 0x10 // DivIrqReg MfinActIRq
)

// ErrorReg bits
const (
	ErrorBitWr         byte = 0x80
	ErrorBitTemp       byte = 0x40
	ErrorBitBufferOvfl byte = 0x10
	ErrorBitColl       byte = 0x08
	ErrorBitCRC        byte = 0x04
	ErrorBitParity     byte = 0x02
	ErrorBitProtocol   byte = 0x01
)

const (
	// Status2MFCrypto1On is set while a MIFARE Crypto1 session is active.
	Status2MFCrypto1On byte = 0x08

	// FIFOFlushBuffer clears the FIFO read and write pointers.
	FIFOFlushBuffer byte = 0x80

	// ControlRxLastBits holds the number of valid bits in the last received byte.
	ControlRxLastBits byte = 0x07

	BitFramingStartSend  byte = 0x80
	BitFramingRxAlign    byte = 0x70
	BitFramingTxLastBits byte = 0x07

	// CollValuesAfterColl clear means bits received after a collision are zeroed.
	CollValuesAfterColl byte = 0x80
	CollPosNotValid     byte = 0x20
	CollPosMask         byte = 0x1F

	TModeTAuto      byte = 0x80
	TxControlRFEn   byte = 0x03 // Tx1RFEn | Tx2RFEn
	TxASKForce100   byte = 0x40
	RFCfgRxGainMask byte = 0x70

	// ModeCRCPreset6363 selects the ISO14443-A CRC preset, TxWaitRF and an
	// active-high MFIN polarity.
	ModeCRCPreset6363 byte = 0x3D

	autoTestSelfTest byte = 0x09
)

// FIFOSize is the depth of the chip FIFO in bytes.
const FIFOSize = 64

var registerNames = map[Register]string{
	CommandReg: "CommandReg", ComIEnReg: "ComIEnReg", DivIEnReg: "DivIEnReg",
	ComIrqReg: "ComIrqReg", DivIrqReg: "DivIrqReg", ErrorReg: "ErrorReg",
	Status1Reg: "Status1Reg", Status2Reg: "Status2Reg", FIFODataReg: "FIFODataReg",
	FIFOLevelReg: "FIFOLevelReg", WaterLevelReg: "WaterLevelReg", ControlReg: "ControlReg",
	BitFramingReg: "BitFramingReg", CollReg: "CollReg",
	ModeReg: "ModeReg", TxModeReg: "TxModeReg", RxModeReg: "RxModeReg",
	TxControlReg: "TxControlReg", TxASKReg: "TxASKReg", TxSelReg: "TxSelReg",
	RxSelReg: "RxSelReg", RxThresholdReg: "RxThresholdReg", DemodReg: "DemodReg",
	MfTxReg: "MfTxReg", MfRxReg: "MfRxReg", SerialSpeedReg: "SerialSpeedReg",
	CRCResultRegH: "CRCResultRegH", CRCResultRegL: "CRCResultRegL",
	ModWidthReg: "ModWidthReg", RFCfgReg: "RFCfgReg", GsNReg: "GsNReg",
	CWGsPReg: "CWGsPReg", ModGsPReg: "ModGsPReg", TModeReg: "TModeReg",
	TPrescalerReg: "TPrescalerReg", TReloadRegH: "TReloadRegH", TReloadRegL: "TReloadRegL",
	TCounterValueRegH: "TCounterValueRegH", TCounterValueRegL: "TCounterValueRegL",
	TestSel1Reg: "TestSel1Reg", TestSel2Reg: "TestSel2Reg", TestPinEnReg: "TestPinEnReg",
	TestPinValueReg: "TestPinValueReg", TestBusReg: "TestBusReg", AutoTestReg: "AutoTestReg",
	VersionReg: "VersionReg", AnalogTestReg: "AnalogTestReg", TestDAC1Reg: "TestDAC1Reg",
	TestDAC2Reg: "TestDAC2Reg", TestADCReg: "TestADCReg",
}

// String returns the datasheet name of the register.
func (r Register) String() string {
	if name, ok := registerNames[r]; ok {
		return name
	}
	return fmt.Sprintf("Reg(0x%02X)", byte(r))
}

// Valid reports whether r is a documented register.
func (r Register) Valid() bool {
	_, ok := registerNames[r]
	return ok
}

// Volatile reports whether reading r back may return something other than
// the last value written.
func (r Register) Volatile() bool {
	switch r {
	case CommandReg, ComIrqReg, DivIrqReg, ErrorReg, Status1Reg, Status2Reg,
		FIFODataReg, FIFOLevelReg, ControlReg, BitFramingReg, CollReg,
		CRCResultRegH, CRCResultRegL, TCounterValueRegH, TCounterValueRegL,
		TestBusReg, AutoTestReg, VersionReg, TestADCReg:
		return true
	default:
		return !r.Valid()
	}
}

// Registers returns every documented register in address order.
func Registers() []Register {
	regs := make([]Register, 0, len(registerNames))
	for r := Register(0); r <= MaxRegister; r++ {
		if r.Valid() {
			regs = append(regs, r)
		}
	}
	return regs
}
