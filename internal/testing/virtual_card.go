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

package testing

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// CardState is the ISO14443-3 state of a virtual PICC.
type CardState int

const (
	CardIdle CardState = iota
	CardReady
	CardActive
	CardHalt
)

func (s CardState) String() string {
	switch s {
	case CardIdle:
		return "IDLE"
	case CardReady:
		return "READY"
	case CardActive:
		return "ACTIVE"
	case CardHalt:
		return "HALT"
	default:
		return fmt.Sprintf("CardState(%d)", int(s))
	}
}

// Card types
const (
	CardTypeGeneric    = "GENERIC"
	CardTypeMifare1K   = "MIFARE1K"
	CardTypeUltralight = "ULTRALIGHT"
)

// Test UIDs for the virtual cards.
var (
	TestSingleUID = []byte{0x04, 0x12, 0x34, 0x56}
	TestDoubleUID = []byte{0x04, 0xA1, 0xB2, 0xC3, 0xD4, 0xE5, 0x80}
	TestTripleUID = []byte{0x04, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77, 0x88, 0x99}
)

// PICC command bytes the cards understand
const (
	piccReqA      = 0x26
	piccWupA      = 0x52
	piccCT        = 0x88
	piccHltA      = 0x50
	piccSelCL1    = 0x93
	piccSelCL2    = 0x95
	piccSelCL3    = 0x97
	mfRead        = 0x30
	mfWrite       = 0xA0
	mfULWrite     = 0xA2
	mfDecrement   = 0xC0
	mfIncrement   = 0xC1
	mfRestore     = 0xC2
	mfTransfer    = 0xB0
	mfAuthKeyA    = 0x60
	mfAuthKeyB    = 0x61
	mfACK         = 0x0A
	nakNotAllowed = 0x04
	nakCRC        = 0x01
	nvbSelect     = 0x70
	sakIncomplete = 0x04
)

const (
	blockSize        = 16
	pageSize         = 4
	ultralightPages  = 16
	mifare1KBlocks   = 64
	mifare1KSectors  = 16
	blocksPerSector  = 4
	fragmentBits     = 40
	cascadeTagPrefix = 3
)

var cascadeSelects = [...]byte{piccSelCL1, piccSelCL2, piccSelCL3}

type pendingKind int

const (
	pendingNone pendingKind = iota
	pendingWrite
	pendingValue
)

type pendingOp struct {
	kind  pendingKind
	cmd   byte
	block byte
}

type transferBuffer struct {
	value uint32
	addr  byte
	valid bool
}

// VirtualCard is an ISO14443-A PICC in the field of a VirtualMFRC522. It
// answers at bit level, so several cards in the field collide the way real
// ones do.
type VirtualCard struct {
	sectorKeys map[int][2][]byte
	Type       string
	UID        []byte
	// Memory holds 16 byte blocks for MIFARE Classic and 4 byte pages for
	// Ultralight.
	Memory   [][]byte
	pending  pendingOp
	transfer transferBuffer
	ATQA     [2]byte
	state    CardState
	level    int
	authed   int
	SAK      byte
	Present  bool
	// CorruptBCC makes anti-collision answers carry a wrong BCC.
	CorruptBCC bool
	// VanishAfterRequest removes the card from the field right after it
	// answered REQA or WUPA.
	VanishAfterRequest bool
}

// NewVirtualCard creates a card that only takes part in selection.
func NewVirtualCard(uid []byte, sak byte) *VirtualCard {
	if uid == nil {
		uid = TestSingleUID
	}
	return &VirtualCard{
		Type:       CardTypeGeneric,
		UID:        append([]byte(nil), uid...),
		ATQA:       atqaForUID(len(uid)),
		SAK:        sak,
		Present:    true,
		authed:     -1,
		sectorKeys: make(map[int][2][]byte),
	}
}

// NewVirtualMifare1K creates a MIFARE Classic 1K with transport keys.
func NewVirtualMifare1K(uid []byte) *VirtualCard {
	card := NewVirtualCard(uid, 0x08)
	card.Type = CardTypeMifare1K
	card.Memory = make([][]byte, mifare1KBlocks)
	card.initMifare1KMemory()
	return card
}

// NewVirtualUltralight creates a MIFARE Ultralight with a 7 byte UID and an
// NDEF capability container.
func NewVirtualUltralight(uid []byte) *VirtualCard {
	if uid == nil {
		uid = TestDoubleUID
	}
	card := NewVirtualCard(uid, 0x00)
	card.Type = CardTypeUltralight
	card.Memory = make([][]byte, ultralightPages)
	card.initUltralightMemory()
	return card
}

func atqaForUID(size int) [2]byte {
	switch size {
	case 7:
		return [2]byte{0x44, 0x00}
	case 10:
		return [2]byte{0x84, 0x00}
	default:
		return [2]byte{0x04, 0x00}
	}
}

func (c *VirtualCard) initMifare1KMemory() {
	c.Memory[0] = make([]byte, blockSize)
	copy(c.Memory[0], c.UID)
	if len(c.UID) == 4 {
		c.Memory[0][4] = xor(c.UID)
	}
	c.Memory[0][5] = c.SAK

	for i := 1; i < mifare1KBlocks; i++ {
		c.Memory[i] = make([]byte, blockSize)
	}

	defaultKey := []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
	for sector := range mifare1KSectors {
		trailer := sector*blocksPerSector + blocksPerSector - 1
		c.Memory[trailer] = []byte{
			0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, // key A
			0xFF, 0x07, 0x80, 0x69, // access bits
			0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, // key B
		}
		c.sectorKeys[sector] = [2][]byte{defaultKey, defaultKey}
	}
}

func (c *VirtualCard) initUltralightMemory() {
	for i := range c.Memory {
		c.Memory[i] = make([]byte, pageSize)
	}
	copy(c.Memory[0], c.UID[0:3])
	c.Memory[0][3] = piccCT ^ xor(c.UID[0:3])
	copy(c.Memory[1], c.UID[3:7])
	c.Memory[2][0] = xor(c.UID[3:7])
	// capability container: NDEF 1.0, 48 bytes of data
	copy(c.Memory[3], []byte{0xE1, 0x10, 0x06, 0x00})
}

// UIDString returns the UID as a hex string.
func (c *VirtualCard) UIDString() string {
	return hex.EncodeToString(c.UID)
}

// State returns the ISO14443-3 state of the card.
func (c *VirtualCard) State() CardState {
	return c.state
}

// AuthenticatedSector returns the sector unlocked by MFAuthent, or -1.
func (c *VirtualCard) AuthenticatedSector() int {
	return c.authed
}

// Block returns a copy of a block or page without access checks.
func (c *VirtualCard) Block(n int) []byte {
	if n < 0 || n >= len(c.Memory) {
		return nil
	}
	return append([]byte(nil), c.Memory[n]...)
}

// SetBlock overwrites a block or page without access checks.
func (c *VirtualCard) SetBlock(n int, data []byte) {
	if n < 0 || n >= len(c.Memory) {
		return
	}
	c.Memory[n] = append([]byte(nil), data...)
}

// SetSectorKey replaces key A (0x60) or key B (0x61) of a sector.
func (c *VirtualCard) SetSectorKey(sector int, keyType byte, key []byte) error {
	keys, ok := c.sectorKeys[sector]
	if !ok {
		return fmt.Errorf("sector %d out of range", sector)
	}
	switch keyType {
	case mfAuthKeyA:
		keys[0] = append([]byte(nil), key...)
	case mfAuthKeyB:
		keys[1] = append([]byte(nil), key...)
	default:
		return fmt.Errorf("invalid key type 0x%02X", keyType)
	}
	c.sectorKeys[sector] = keys
	return nil
}

// Remove takes the card out of the field.
func (c *VirtualCard) Remove() {
	c.Present = false
	c.powerLoss()
}

// Insert puts the card back into the field in IDLE.
func (c *VirtualCard) Insert() {
	c.Present = true
	c.powerLoss()
}

// powerLoss returns the card to IDLE, as happens whenever the field drops.
func (c *VirtualCard) powerLoss() {
	c.toState(CardIdle)
}

func (c *VirtualCard) toState(s CardState) {
	c.state = s
	c.level = 0
	c.authed = -1
	c.pending = pendingOp{}
	c.transfer = transferBuffer{}
}

func (c *VirtualCard) isClassic() bool {
	return c.Type == CardTypeMifare1K
}

func (c *VirtualCard) isUltralight() bool {
	return c.Type == CardTypeUltralight
}

func (c *VirtualCard) levels() int {
	switch len(c.UID) {
	case 7:
		return 2
	case 10:
		return 3
	default:
		return 1
	}
}

// fragment returns the four UID bytes and the BCC sent at a cascade level.
func (c *VirtualCard) fragment(level int) []byte {
	var f []byte
	switch {
	case level == c.levels()-1:
		f = append(f, c.UID[level*cascadeTagPrefix:]...)
	default:
		f = append(f, piccCT)
		f = append(f, c.UID[level*cascadeTagPrefix:level*cascadeTagPrefix+cascadeTagPrefix]...)
	}
	return append(f, xor(f))
}

// respond handles one frame of txBits bits and returns the answer as bits,
// or nil when the card stays silent.
func (c *VirtualCard) respond(tx []byte, txBits int) []uint8 {
	if !c.Present || len(tx) == 0 {
		return nil
	}
	if txBits == 7 && len(tx) == 1 {
		return c.handleRequest(tx[0])
	}

	switch c.state {
	case CardReady:
		return c.handleAnticollision(tx, txBits)
	case CardActive:
		if txBits%8 != 0 {
			c.toState(CardIdle)
			return nil
		}
		return c.handleActive(tx)
	default:
		return nil
	}
}

func (c *VirtualCard) handleRequest(cmd byte) []uint8 {
	wakes := c.state == CardIdle && (cmd == piccReqA || cmd == piccWupA) ||
		c.state == CardHalt && cmd == piccWupA
	if !wakes {
		if c.state == CardReady || c.state == CardActive {
			c.toState(CardIdle)
		}
		return nil
	}
	c.toState(CardReady)
	if c.VanishAfterRequest {
		c.Present = false
	}
	return toBits(c.ATQA[:], 16)
}

func (c *VirtualCard) handleAnticollision(tx []byte, txBits int) []uint8 {
	if len(tx) < 2 || !isCascadeSelect(tx[0]) {
		c.toState(CardIdle)
		return nil
	}
	if tx[0] != cascadeSelects[c.level] {
		return nil
	}

	nvb := tx[1]
	if nvb == nvbSelect {
		return c.handleSelect(tx, txBits)
	}

	byteCount := int(nvb >> 4)
	bitCount := int(nvb & 0x0F)
	knownBits := (byteCount-2)*8 + bitCount
	if byteCount < 2 || bitCount > 7 || knownBits >= fragmentBits || txBits != 16+knownBits {
		return nil
	}

	frag := c.fragment(c.level)
	if c.CorruptBCC {
		frag[4] ^= 0xFF
	}
	all := toBits(frag, fragmentBits)
	sent := toBits(tx[2:], knownBits)
	for i, b := range sent {
		if all[i] != b {
			return nil
		}
	}
	return all[knownBits:]
}

func (c *VirtualCard) handleSelect(tx []byte, txBits int) []uint8 {
	if txBits != 72 || len(tx) != 9 || !checkCRCA(tx) {
		return nil
	}
	if !bytes.Equal(tx[2:7], c.fragment(c.level)) {
		return nil
	}
	sak := c.SAK
	if c.level < c.levels()-1 {
		sak = sakIncomplete
		c.level++
	} else {
		c.state = CardActive
	}
	return toBits(AppendCRCA([]byte{sak}), 24)
}

func isCascadeSelect(b byte) bool {
	return b == piccSelCL1 || b == piccSelCL2 || b == piccSelCL3
}

func (c *VirtualCard) handleActive(tx []byte) []uint8 {
	if !checkCRCA(tx) {
		return c.nak(nakCRC)
	}
	payload := tx[:len(tx)-2]

	if c.pending.kind != pendingNone {
		op := c.pending
		c.pending = pendingOp{}
		return c.finishPending(op, payload)
	}

	switch payload[0] {
	case piccHltA:
		if len(payload) == 2 && payload[1] == 0x00 {
			c.toState(CardHalt)
		}
		return nil
	case mfRead:
		return c.handleRead(payload)
	case mfWrite:
		return c.handleWrite(payload)
	case mfULWrite:
		return c.handleULWrite(payload)
	case mfDecrement, mfIncrement, mfRestore:
		return c.handleValue(payload)
	case mfTransfer:
		return c.handleTransfer(payload)
	default:
		return c.nak(nakNotAllowed)
	}
}

func (c *VirtualCard) handleRead(payload []byte) []uint8 {
	if len(payload) != 2 || len(c.Memory) == 0 {
		return c.nak(nakNotAllowed)
	}
	addr := int(payload[1])

	var data []byte
	switch {
	case c.isUltralight():
		if addr >= len(c.Memory) {
			return c.nak(nakNotAllowed)
		}
		for i := range 4 {
			data = append(data, c.Memory[(addr+i)%len(c.Memory)]...)
		}
	case c.canAccess(addr):
		data = append(data, c.Memory[addr]...)
	default:
		return c.nak(nakNotAllowed)
	}
	return toBits(AppendCRCA(data), (len(data)+2)*8)
}

func (c *VirtualCard) handleWrite(payload []byte) []uint8 {
	if len(payload) != 2 {
		return c.nak(nakNotAllowed)
	}
	addr := int(payload[1])
	if !c.writable(addr) {
		return c.nak(nakNotAllowed)
	}
	c.pending = pendingOp{kind: pendingWrite, block: payload[1]}
	return ack()
}

func (c *VirtualCard) handleULWrite(payload []byte) []uint8 {
	if !c.isUltralight() || len(payload) != 2+pageSize || !c.writable(int(payload[1])) {
		return c.nak(nakNotAllowed)
	}
	c.writePage(int(payload[1]), payload[2:])
	return ack()
}

func (c *VirtualCard) handleValue(payload []byte) []uint8 {
	if !c.isClassic() || len(payload) != 2 || !c.writable(int(payload[1])) {
		return c.nak(nakNotAllowed)
	}
	if _, _, ok := decodeValue(c.Memory[payload[1]]); !ok {
		return c.nak(nakNotAllowed)
	}
	c.pending = pendingOp{kind: pendingValue, cmd: payload[0], block: payload[1]}
	return ack()
}

func (c *VirtualCard) handleTransfer(payload []byte) []uint8 {
	if !c.isClassic() || len(payload) != 2 || !c.writable(int(payload[1])) || !c.transfer.valid {
		return c.nak(nakNotAllowed)
	}
	c.Memory[payload[1]] = encodeValue(c.transfer.value, c.transfer.addr)
	c.transfer = transferBuffer{}
	return ack()
}

func (c *VirtualCard) finishPending(op pendingOp, payload []byte) []uint8 {
	switch op.kind {
	case pendingWrite:
		if len(payload) != blockSize {
			return c.nak(nakNotAllowed)
		}
		if c.isUltralight() {
			c.writePage(int(op.block), payload[:pageSize])
		} else {
			c.Memory[op.block] = append([]byte(nil), payload...)
		}
		return ack()
	case pendingValue:
		if len(payload) != 4 {
			return c.nak(nakNotAllowed)
		}
		value, addr, _ := decodeValue(c.Memory[op.block])
		operand := binary.LittleEndian.Uint32(payload)
		switch op.cmd {
		case mfIncrement:
			value += operand
		case mfDecrement:
			value -= operand
		}
		c.transfer = transferBuffer{value: value, addr: addr, valid: true}
		// the PICC does not answer the operand
		return nil
	default:
		return nil
	}
}

// writePage applies Ultralight write semantics: lock and OTP bytes can only
// be set, never cleared.
func (c *VirtualCard) writePage(page int, data []byte) {
	if page == 2 {
		c.Memory[2][2] |= data[2]
		c.Memory[2][3] |= data[3]
		return
	}
	if page == 3 {
		for i := range pageSize {
			c.Memory[3][i] |= data[i]
		}
		return
	}
	copy(c.Memory[page], data)
}

func (c *VirtualCard) canAccess(block int) bool {
	if block < 0 || block >= len(c.Memory) {
		return false
	}
	if !c.isClassic() {
		return true
	}
	return c.authed == block/blocksPerSector
}

func (c *VirtualCard) writable(block int) bool {
	if c.isUltralight() {
		return block >= 2 && block < len(c.Memory)
	}
	return block > 0 && c.canAccess(block)
}

// authenticate checks the MFAuthent parameters against the card. A failed
// attempt sends the card back to IDLE.
func (c *VirtualCard) authenticate(keyType, block byte, key, uid4 []byte) bool {
	if !c.Present || c.state != CardActive || !c.isClassic() {
		return false
	}
	sector := int(block) / blocksPerSector
	keys, ok := c.sectorKeys[sector]
	idx := 0
	if keyType == mfAuthKeyB {
		idx = 1
	}
	if !ok || !bytes.Equal(c.UID[:4], uid4) || !bytes.Equal(keys[idx], key) ||
		(keyType != mfAuthKeyA && keyType != mfAuthKeyB) {
		c.toState(CardIdle)
		return false
	}
	c.authed = sector
	return true
}

func (c *VirtualCard) nak(code byte) []uint8 {
	c.toState(CardIdle)
	return toBits([]byte{code}, 4)
}

func ack() []uint8 {
	return toBits([]byte{mfACK}, 4)
}

func xor(data []byte) byte {
	var b byte
	for _, v := range data {
		b ^= v
	}
	return b
}

// toBits unpacks the first n bits of data, least significant bit first.
func toBits(data []byte, n int) []uint8 {
	bits := make([]uint8, n)
	for i := range n {
		bits[i] = (data[i/8] >> (i % 8)) & 1
	}
	return bits
}

func encodeValue(value uint32, addr byte) []byte {
	block := make([]byte, blockSize)
	binary.LittleEndian.PutUint32(block[0:4], value)
	binary.LittleEndian.PutUint32(block[4:8], ^value)
	binary.LittleEndian.PutUint32(block[8:12], value)
	block[12], block[13], block[14], block[15] = addr, ^addr, addr, ^addr
	return block
}

func decodeValue(block []byte) (value uint32, addr byte, ok bool) {
	if len(block) != blockSize {
		return 0, 0, false
	}
	value = binary.LittleEndian.Uint32(block[0:4])
	if binary.LittleEndian.Uint32(block[4:8]) != ^value || binary.LittleEndian.Uint32(block[8:12]) != value {
		return 0, 0, false
	}
	if block[12] != block[14] || block[13] != block[15] || block[12] != ^block[13] {
		return 0, 0, false
	}
	return value, block[12], true
}

// SetValueBlock formats a MIFARE Classic block as a value block.
func (c *VirtualCard) SetValueBlock(block int, value int32) {
	c.SetBlock(block, encodeValue(uint32(value), byte(block)))
}

// Value decodes a value block, reporting false if it is not one.
func (c *VirtualCard) Value(block int) (int32, bool) {
	v, _, ok := decodeValue(c.Block(block))
	return int32(v), ok
}
