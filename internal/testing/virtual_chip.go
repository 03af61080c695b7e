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

// Package testing provides a register-level MFRC522 simulator with virtual
// ISO14443-A cards, for tests that need real chip behavior behind the
// register interface.
//
// The simulator runs commands synchronously when they are written to
// CommandReg (or when StartSend is set for Transceive), so the interrupt
// bits are already final when the driver starts polling.
package testing

import (
	"github.com/ZaparooProject/go-mfrc522/internal/syncutil"
)

// Register addresses used by the simulator
const (
	regCommand    = 0x01
	regComIEn     = 0x02
	regComIrq     = 0x04
	regDivIrq     = 0x05
	regError      = 0x06
	regStatus1    = 0x07
	regStatus2    = 0x08
	regFIFOData   = 0x09
	regFIFOLevel  = 0x0A
	regWaterLevel = 0x0B
	regControl    = 0x0C
	regBitFraming = 0x0D
	regColl       = 0x0E
	regMode       = 0x11
	regTxControl  = 0x14
	regTxSel      = 0x16
	regRxSel      = 0x17
	regRxThresh   = 0x18
	regDemod      = 0x19
	regMfTx       = 0x1C
	regSerial     = 0x1F
	regCRCH       = 0x21
	regCRCL       = 0x22
	regModWidth   = 0x24
	regRFCfg      = 0x26
	regGsN        = 0x27
	regCWGsP      = 0x28
	regModGsP     = 0x29
	regTestPinEn  = 0x33
	regAutoTest   = 0x36
	regVersion    = 0x37
	numRegisters  = 0x40
)

// Commands
const (
	cmdIdle       = 0x00
	cmdMem        = 0x01
	cmdRandomID   = 0x02
	cmdCalcCRC    = 0x03
	cmdTransmit   = 0x04
	cmdReceive    = 0x08
	cmdTransceive = 0x0C
	cmdMFAuthent  = 0x0E
	cmdSoftReset  = 0x0F
)

// Register bits
const (
	commandPowerDown = 0x10
	irqSet1          = 0x80
	irqTx            = 0x40
	irqRx            = 0x20
	irqIdle          = 0x10
	irqErr           = 0x02
	irqTimer         = 0x01
	divIrqCRC        = 0x04
	errBufferOvfl    = 0x10
	errColl          = 0x08
	errProtocol      = 0x01
	status2Crypto    = 0x08
	fifoFlush        = 0x80
	startSend        = 0x80
	collValuesAfter  = 0x80
	collPosNotValid  = 0x20
	antennaBits      = 0x03
	autoTestEnable   = 0x09
	fifoSize         = 64
	memBufferSize    = 25
	maxCollPos       = 32
	authFrameSize    = 12
)

// DefaultVersion is the VersionReg value of a new simulator.
const DefaultVersion = 0x92

// resetValues are the register contents after power-on or SoftReset.
var resetValues = map[byte]byte{
	regCommand:    0x20,
	regComIEn:     0x80,
	regComIrq:     0x14,
	regStatus1:    0x21,
	regWaterLevel: 0x08,
	regControl:    0x10,
	regColl:       0xA0,
	regMode:       0x3F,
	regTxControl:  0x80,
	regTxSel:      0x10,
	regRxSel:      0x84,
	regRxThresh:   0x84,
	regDemod:      0x4D,
	regMfTx:       0x62,
	regSerial:     0xEB,
	regCRCH:       0xFF,
	regCRCL:       0xFF,
	regModWidth:   0x26,
	regRFCfg:      0x48,
	regGsN:        0x88,
	regCWGsP:      0x20,
	regModGsP:     0x20,
	regTestPinEn:  0x80,
	regAutoTest:   0x40,
}

// Transmission is one frame the chip sent to the field.
type Transmission struct {
	Data []byte
	// LastBits is the number of valid bits in the last byte, 0 meaning 8.
	LastBits byte
}

// VirtualMFRC522 simulates an MFRC522 at register level.
type VirtualMFRC522 struct {
	cards          []*VirtualCard
	fifo           []byte
	memBuffer      []byte
	selfTestOutput []byte
	transmissions  []Transmission
	commandLog     []byte
	regs           [numRegisters]byte
	mu             syncutil.Mutex
	command        byte
	version        byte
	stall          bool
	invalidCollPos bool
	powerDownStuck bool
	powerDown      bool
}

// NewVirtualMFRC522 creates a simulator with its registers at their reset
// values and no cards in the field.
func NewVirtualMFRC522() *VirtualMFRC522 {
	v := &VirtualMFRC522{version: DefaultVersion}
	v.resetRegisters()
	return v
}

func (v *VirtualMFRC522) resetRegisters() {
	v.regs = [numRegisters]byte{}
	for reg, val := range resetValues {
		v.regs[reg] = val
	}
	v.fifo = nil
	v.command = cmdIdle
	v.powerDown = false
	for _, card := range v.cards {
		card.powerLoss()
	}
}

// AddCard places a card in the field.
func (v *VirtualMFRC522) AddCard(card *VirtualCard) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cards = append(v.cards, card)
}

// RemoveAllCards empties the field.
func (v *VirtualMFRC522) RemoveAllCards() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cards = nil
}

// SetCardPresent moves a card in or out of the field while the driver may
// be polling.
func (v *VirtualMFRC522) SetCardPresent(card *VirtualCard, present bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if present {
		card.Insert()
	} else {
		card.Remove()
	}
}

// SetVersion sets the value read from VersionReg.
func (v *VirtualMFRC522) SetVersion(version byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.version = version
}

// SetSelfTestOutput sets the 64 bytes the digital self-test leaves in the
// FIFO.
func (v *VirtualMFRC522) SetSelfTestOutput(out []byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.selfTestOutput = append([]byte(nil), out...)
}

// StallCommands makes Transceive, MFAuthent and CalcCRC start but never
// raise an interrupt.
func (v *VirtualMFRC522) StallCommands(stall bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.stall = stall
}

// InvalidateCollisionPosition makes CollReg flag every collision position
// as not valid.
func (v *VirtualMFRC522) InvalidateCollisionPosition(invalid bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.invalidCollPos = invalid
}

// HoldPowerDown keeps the PowerDown bit set after SoftReset.
func (v *VirtualMFRC522) HoldPowerDown(hold bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.powerDownStuck = hold
}

// Transmissions returns the frames sent to the field so far.
func (v *VirtualMFRC522) Transmissions() []Transmission {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]Transmission, len(v.transmissions))
	copy(out, v.transmissions)
	return out
}

// CommandLog returns every command written to CommandReg.
func (v *VirtualMFRC522) CommandLog() []byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]byte(nil), v.commandLog...)
}

// ClearLogs forgets recorded transmissions and commands.
func (v *VirtualMFRC522) ClearLogs() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.transmissions = nil
	v.commandLog = nil
}

// CurrentCommand returns the command the chip is executing.
func (v *VirtualMFRC522) CurrentCommand() byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.command
}

// CryptoOn reports whether Status2Reg has MFCrypto1On set.
func (v *VirtualMFRC522) CryptoOn() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.regs[regStatus2]&status2Crypto != 0
}

// ReadRegister returns the value of a register, applying read side effects.
func (v *VirtualMFRC522) ReadRegister(reg byte) byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.read(reg & 0x3F)
}

// WriteRegister stores a value in a register and runs any command it starts.
func (v *VirtualMFRC522) WriteRegister(reg, val byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.write(reg&0x3F, val)
}

func (v *VirtualMFRC522) read(reg byte) byte {
	switch reg {
	case regCommand:
		val := v.regs[regCommand]&0x20 | v.command
		if v.powerDown {
			val |= commandPowerDown
		}
		return val
	case regFIFOData:
		if len(v.fifo) == 0 {
			return 0
		}
		b := v.fifo[0]
		v.fifo = v.fifo[1:]
		return b
	case regFIFOLevel:
		return byte(len(v.fifo))
	case regVersion:
		return v.version
	default:
		return v.regs[reg]
	}
}

func (v *VirtualMFRC522) write(reg, val byte) {
	switch reg {
	case regCommand:
		v.regs[regCommand] = val & 0x30
		v.powerDown = val&commandPowerDown != 0
		v.execute(val & 0x0F)
	case regComIrq, regDivIrq:
		if val&irqSet1 != 0 {
			v.regs[reg] |= val & 0x7F
		} else {
			v.regs[reg] &^= val & 0x7F
		}
	case regFIFOData:
		if len(v.fifo) >= fifoSize {
			v.regs[regError] |= errBufferOvfl
			return
		}
		v.fifo = append(v.fifo, val)
	case regFIFOLevel:
		if val&fifoFlush != 0 {
			v.fifo = nil
			v.regs[regError] &^= errBufferOvfl
		}
	case regBitFraming:
		v.regs[regBitFraming] = val & 0x7F
		if val&startSend != 0 && v.command == cmdTransceive {
			v.transceive()
		}
	case regStatus2:
		v.regs[regStatus2] = v.regs[regStatus2]&^0xC8 | val&0xC8
		if val&status2Crypto == 0 {
			for _, card := range v.cards {
				card.authed = -1
			}
		}
	case regColl:
		v.regs[regColl] = v.regs[regColl]&^collValuesAfter | val&collValuesAfter
	case regError, regStatus1, regVersion, regCRCH, regCRCL:
	case regTxControl:
		v.regs[regTxControl] = val
		if val&antennaBits == 0 {
			for _, card := range v.cards {
				card.powerLoss()
			}
		}
	default:
		v.regs[reg] = val
	}
}

func (v *VirtualMFRC522) execute(cmd byte) {
	v.commandLog = append(v.commandLog, cmd)
	v.command = cmd
	if cmd != cmdIdle && cmd != cmdSoftReset {
		v.regs[regError] = 0
	}

	switch cmd {
	case cmdIdle:
	case cmdSoftReset:
		v.resetRegisters()
		v.powerDown = v.powerDownStuck
	case cmdMem:
		n := min(len(v.fifo), memBufferSize)
		v.memBuffer = append([]byte(nil), v.fifo[:n]...)
		v.fifo = v.fifo[n:]
		v.finish()
	case cmdRandomID:
		v.finish()
	case cmdCalcCRC:
		if v.stall {
			return
		}
		v.calcCRC()
	case cmdMFAuthent:
		if v.stall {
			return
		}
		v.mfAuthent()
	case cmdTransmit, cmdReceive, cmdTransceive:
	default:
		v.command = cmdIdle
	}
}

// finish ends a command that stops by itself.
func (v *VirtualMFRC522) finish() {
	v.command = cmdIdle
	v.regs[regComIrq] |= irqIdle
}

func (v *VirtualMFRC522) calcCRC() {
	if v.regs[regAutoTest]&0x0F == autoTestEnable {
		if len(v.selfTestOutput) > 0 {
			v.fifo = append([]byte(nil), v.selfTestOutput...)
		}
		return
	}
	crc := crc16(crcPreset(v.regs[regMode]), v.fifo)
	v.fifo = nil
	v.regs[regCRCL] = byte(crc)
	v.regs[regCRCH] = byte(crc >> 8)
	v.regs[regDivIrq] |= divIrqCRC
}

func (v *VirtualMFRC522) antennaOn() bool {
	return v.regs[regTxControl]&antennaBits != 0
}

func (v *VirtualMFRC522) mfAuthent() {
	frame := v.fifo
	v.fifo = nil
	if len(frame) != authFrameSize || !v.antennaOn() {
		v.regs[regComIrq] |= irqTimer
		return
	}
	for _, card := range v.cards {
		if card.authenticate(frame[0], frame[1], frame[2:8], frame[8:12]) {
			v.regs[regStatus2] |= status2Crypto
			v.finish()
			return
		}
	}
	// the PICC never answers the encrypted token
	v.regs[regComIrq] |= irqTimer
}

func (v *VirtualMFRC522) transceive() {
	tx := v.fifo
	v.fifo = nil
	framing := v.regs[regBitFraming]
	txLast := framing & 0x07
	rxAlign := int(framing>>4) & 0x07

	v.transmissions = append(v.transmissions, Transmission{Data: append([]byte(nil), tx...), LastBits: txLast})
	v.regs[regComIrq] |= irqTx
	if v.stall {
		return
	}

	txBits := len(tx) * 8
	if txLast != 0 && len(tx) > 0 {
		txBits = (len(tx)-1)*8 + int(txLast)
	}

	var answers [][]uint8
	if v.antennaOn() {
		for _, card := range v.cards {
			if bits := card.respond(tx, txBits); bits != nil {
				answers = append(answers, bits)
			}
		}
	}
	if len(answers) == 0 {
		v.regs[regComIrq] |= irqTimer
		return
	}

	bits, collAt := superpose(answers)
	if collAt >= 0 {
		bits = bits[:collAt+1]
		bits[collAt] = 1
	}
	data, lastBits := packBits(bits, rxAlign)
	v.fifo = data
	v.regs[regControl] = v.regs[regControl]&^0x07 | lastBits
	v.regs[regComIrq] |= irqRx

	coll := v.regs[regColl] & collValuesAfter
	if collAt < 0 {
		v.regs[regColl] = coll | collPosNotValid
		return
	}
	pos := rxAlign + collAt + 1
	switch {
	case v.invalidCollPos || pos > maxCollPos:
		coll |= collPosNotValid
	case pos < maxCollPos:
		coll |= byte(pos)
	}
	v.regs[regColl] = coll
	v.regs[regError] |= errColl
	v.regs[regComIrq] |= irqErr
}

// superpose combines the answers of several cards. It returns the merged
// bits and the index of the first bit on which cards disagree, or -1.
func superpose(answers [][]uint8) ([]uint8, int) {
	longest := 0
	for _, a := range answers {
		longest = max(longest, len(a))
	}
	out := make([]uint8, longest)
	for i := range longest {
		seen := -1
		for _, a := range answers {
			if i >= len(a) {
				continue
			}
			if seen >= 0 && int(a[i]) != seen {
				return out, i
			}
			seen = int(a[i])
		}
		out[i] = uint8(seen)
	}
	return out, -1
}

// packBits stores bits into bytes starting at bit rxAlign of the first
// byte and returns the number of valid bits in the last byte.
func packBits(bits []uint8, rxAlign int) ([]byte, byte) {
	total := rxAlign + len(bits)
	data := make([]byte, (total+7)/8)
	for i, b := range bits {
		at := rxAlign + i
		data[at/8] |= b << (at % 8)
	}
	return data, byte(total % 8)
}
