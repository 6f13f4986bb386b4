package nfc

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/clausecker/freefare"
)

// MockStorageCard emulates a MIFARE Classic or Ultralight card behind a PC/SC
// reader that understands the storage card commands LOAD KEY, GENERAL
// AUTHENTICATE, READ BINARY and UPDATE BINARY.
//
// Example:
//
//	card := nfc.NewMockUltralightCard(16)
//	card.FormatNDEF()
//	tag := card.Attach(device, "04A1B2C3D4E5F6")
type MockStorageCard struct {
	classic bool
	sectors int
	blocks  [][]byte

	// Writes counts successful UPDATE BINARY commands
	Writes int

	mu         sync.Mutex
	loadedKey  []byte
	authSector int
}

// NewMockClassicCard creates a blank MIFARE Classic card with the given
// number of sectors (5, 16 or 40). Every sector uses the transport
// configuration with key A and key B set to DefaultMifareKey.
func NewMockClassicCard(sectors int) *MockStorageCard {
	c := &MockStorageCard{classic: true, sectors: sectors, authSector: -1}
	for s := 0; s < sectors; s++ {
		for i := 0; i < freefare.ClassicSectorBlockCount(byte(s)); i++ {
			c.blocks = append(c.blocks, make([]byte, 16))
		}
		c.SetSectorKeys(s, DefaultMifareKey, DefaultMifareKey)
		trailer := c.blocks[freefare.ClassicSectorLastBlock(byte(s))]
		copy(trailer[6:10], []byte{0xFF, 0x07, 0x80, 0x69})
	}
	return c
}

// NewMockUltralightCard creates a blank MIFARE Ultralight card with the given
// number of 4-byte pages (16 for Ultralight, 44 for Ultralight C).
func NewMockUltralightCard(pages int) *MockStorageCard {
	c := &MockStorageCard{authSector: -1}
	for p := 0; p < pages; p++ {
		c.blocks = append(c.blocks, make([]byte, 4))
	}
	return c
}

// SetSectorKeys replaces key A and key B in the trailer of a Classic sector.
func (c *MockStorageCard) SetSectorKeys(sector int, keyA, keyB [6]byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	trailer := c.blocks[freefare.ClassicSectorLastBlock(byte(sector))]
	copy(trailer[0:6], keyA[:])
	copy(trailer[10:16], keyB[:])
}

// FormatNDEF lays out an empty NDEF message the way NFC Forum formatted cards
// ship: the public key A and a read/write GPB on Classic data sectors, or a
// capability container on Ultralight.
func (c *MockStorageCard) FormatNDEF() {
	emptyTLV := []byte{TLVNDEF, 0x00, TLVTerminator}

	if c.classic {
		for s := 1; s < c.sectors; s++ {
			if s == 16 {
				continue
			}
			c.SetSectorKeys(s, ndefPublicKeyA, DefaultMifareKey)
			c.mu.Lock()
			c.blocks[freefare.ClassicSectorLastBlock(byte(s))][9] = 0x40
			c.mu.Unlock()
		}
		c.SetBlock(int(freefare.ClassicSectorFirstBlock(1)), append(emptyTLV, make([]byte, 13)...))
		return
	}

	dataEnd := len(c.blocks)
	if dataEnd > ultralightPageCount {
		dataEnd = ultralightCDataEnd
	}
	size := (dataEnd - ultralightFirstDataPage) * 4 / 8
	c.SetBlock(3, []byte{0xE1, 0x10, byte(size), 0x00})
	c.SetBlock(4, append(emptyTLV, 0x00))
}

// Block returns a copy of a block (Classic) or page (Ultralight).
func (c *MockStorageCard) Block(n int) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte(nil), c.blocks[n]...)
}

// SetBlock overwrites a block or page, bypassing authentication.
func (c *MockStorageCard) SetBlock(n int, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	copy(c.blocks[n], data)
}

// Attach routes device's Transceive to the card and returns the tag a PC/SC
// device would report for it.
func (c *MockStorageCard) Attach(device *MockDevice, uid string) Tag {
	device.TransceiveFunc = c.Transceive
	if c.classic {
		return newMifareClassicTag(device, &pcscClassicMemory{device: device}, uid, c.sectors)
	}
	return newMifareUltralightTag(device, &pcscPageMemory{device: device}, uid, len(c.blocks) > ultralightPageCount)
}

var (
	swOK              = []byte{0x90, 0x00}
	swAuthFailed      = []byte{0x63, 0x00}
	swWrongLength     = []byte{0x67, 0x00}
	swSecurityNotMet  = []byte{0x69, 0x82}
	swWrongParams     = []byte{0x6A, 0x86}
	swBlockOutOfRange = []byte{0x6A, 0x82}
	swINSNotSupported = []byte{0x6D, 0x00}
	swCLANotSupported = []byte{0x6E, 0x00}
	maskedKeyA        = make([]byte, 6)
)

// Transceive answers one storage card APDU.
func (c *MockStorageCard) Transceive(apdu []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(apdu) < 5 {
		return swWrongLength, nil
	}
	if apdu[0] != 0xFF {
		return swCLANotSupported, nil
	}

	switch apdu[1] {
	case INSLoadKey:
		if len(apdu) != 11 || apdu[4] != 6 {
			return swWrongLength, nil
		}
		c.loadedKey = append([]byte(nil), apdu[5:11]...)
		return swOK, nil

	case INSAuth:
		if len(apdu) != 10 || !c.classic {
			return swWrongParams, nil
		}
		return c.authenticate(apdu[7], apdu[8]), nil

	case INSReadBinary:
		return c.read(int(apdu[3]), int(apdu[4])), nil

	case INSUpdateBin:
		if int(apdu[4]) != len(apdu)-5 {
			return swWrongLength, nil
		}
		return c.write(int(apdu[3]), apdu[5:]), nil
	}
	return swINSNotSupported, nil
}

func (c *MockStorageCard) authenticate(block, keyType byte) []byte {
	c.authSector = -1
	if int(block) >= len(c.blocks) || c.loadedKey == nil {
		return swAuthFailed
	}
	sector := freefare.ClassicBlockSector(block)
	trailer := c.blocks[freefare.ClassicSectorLastBlock(sector)]

	var want []byte
	switch keyType {
	case MIFAREKeyA:
		want = trailer[0:6]
	case MIFAREKeyB:
		want = trailer[10:16]
	default:
		return swWrongParams
	}
	if !bytes.Equal(want, c.loadedKey) {
		return swAuthFailed
	}
	c.authSector = int(sector)
	return swOK
}

func (c *MockStorageCard) read(block, length int) []byte {
	if block >= len(c.blocks) {
		return swBlockOutOfRange
	}
	if !c.classic {
		var out []byte
		for i := 0; len(out) < length && i < 4; i++ {
			out = append(out, c.blocks[(block+i)%len(c.blocks)]...)
		}
		if len(out) > length {
			out = out[:length]
		}
		return append(out, swOK...)
	}

	sector := freefare.ClassicBlockSector(byte(block))
	if c.authSector != int(sector) {
		return swSecurityNotMet
	}
	if length != 16 {
		return swWrongLength
	}
	out := append([]byte(nil), c.blocks[block]...)
	if byte(block) == freefare.ClassicSectorLastBlock(sector) {
		copy(out[0:6], maskedKeyA)
	}
	return append(out, swOK...)
}

func (c *MockStorageCard) write(block int, data []byte) []byte {
	if block >= len(c.blocks) {
		return swBlockOutOfRange
	}
	if len(data) != len(c.blocks[block]) {
		return swWrongLength
	}
	if c.classic && c.authSector != int(freefare.ClassicBlockSector(byte(block))) {
		return swSecurityNotMet
	}
	copy(c.blocks[block], data)
	c.Writes++
	return swOK
}

func (c *MockStorageCard) String() string {
	if c.classic {
		return fmt.Sprintf("MIFARE Classic (%d sectors)", c.sectors)
	}
	return fmt.Sprintf("MIFARE Ultralight (%d pages)", len(c.blocks))
}
