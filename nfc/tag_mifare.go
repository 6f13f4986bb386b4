package nfc

import (
	"log"
	"sync"

	"github.com/clausecker/freefare"
)

// Tag type and standard labels of MIFARE memory cards
const (
	TagTypeMifareClassic    = "mifare_classic"
	TagTypeMifareUltralight = "mifare_ultralight"
	StandardISO14443A3      = "ISO 14443-3 (Type A)"
)

// DefaultMifareKey is the factory transport key, used when a caller gives none.
var DefaultMifareKey = [6]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

// ndefPublicKeyA is key A of NDEF formatted MIFARE Classic sectors.
var ndefPublicKeyA = [6]byte{0xD3, 0xF7, 0xD3, 0xF7, 0xD3, 0xF7}

// classicWriteKeys are tried as key B when writing NDEF data.
var classicWriteKeys = [][6]byte{
	DefaultMifareKey,
	ndefPublicKeyA,
	{0x00, 0x00, 0x00, 0x00, 0x00, 0x00},
}

// NDEFTag is implemented by tags with an NDEF data area.
type NDEFTag interface {
	Tag
	// ReadNDEF returns the records of the stored message. With cached set the
	// records of the last read or write are returned when there are any.
	ReadNDEF(cached bool) ([]NDEFRecord, error)
	WriteNDEF(records []NDEFRecord) error
	IsWritable() (bool, error)
	MakeReadOnly() error
}

// BlockTag is implemented by MIFARE memory cards.
//
// keyA authenticates MIFARE Classic sectors; nil or empty selects
// DefaultMifareKey. Ultralight cards ignore it and address pages: ReadBlock
// returns the 4 pages starting at block, WriteBlock writes a single page.
type BlockTag interface {
	Tag
	ReadBlock(block int, keyA []byte) ([]byte, error)
	ReadSector(sector int, keyA []byte) ([][]byte, error)
	WriteBlock(block int, data []byte, keyA []byte) error
	ReadAll(keyA []byte) (map[int][][]byte, error)
}

var (
	_ NDEFTag  = (*MifareClassicTag)(nil)
	_ BlockTag = (*MifareClassicTag)(nil)
	_ NDEFTag  = (*MifareUltralightTag)(nil)
	_ BlockTag = (*MifareUltralightTag)(nil)
)

func mifareKey(op string, key []byte) ([6]byte, error) {
	if len(key) == 0 {
		return DefaultMifareKey, nil
	}
	var k [6]byte
	if len(key) != 6 {
		return k, Errorf(ErrCodeInvalidData, op, "key must be 6 bytes, got %d", len(key))
	}
	copy(k[:], key)
	return k, nil
}

// ndefCache holds the records last read from or written to a tag.
type ndefCache struct {
	records []NDEFRecord
	valid   bool
}

func (c *ndefCache) get() ([]NDEFRecord, bool) {
	if !c.valid {
		return nil, false
	}
	return append([]NDEFRecord(nil), c.records...), true
}

func (c *ndefCache) set(records []NDEFRecord) {
	c.records = append([]NDEFRecord(nil), records...)
	c.valid = true
}

func (c *ndefCache) invalidate() {
	c.records = nil
	c.valid = false
}

func decodeNDEFArea(op string, area []byte) ([]NDEFRecord, error) {
	message, found, err := FindNDEFTLV(area)
	if err != nil {
		return nil, NewNDEFFormatError(op, err)
	}
	if !found {
		return []NDEFRecord{}, nil
	}
	records, err := ParseNDEFMessage(message)
	if err != nil {
		return nil, NewNDEFFormatError(op, err)
	}
	if records == nil {
		records = []NDEFRecord{}
	}
	return records, nil
}

// MIFARE Classic sector counts by card size
const (
	ClassicMiniSectors = 5
	Classic1KSectors   = 16
	Classic4KSectors   = 40
)

// MifareClassicTag is a MIFARE Classic card reached through libfreefare or
// PC/SC storage card commands.
type MifareClassicTag struct {
	device  Device
	mem     classicMemory
	uid     string
	sectors int

	mu    sync.Mutex
	cache ndefCache
}

// newMifareClassicTag wraps mem, a card with the given number of sectors.
func newMifareClassicTag(device Device, mem classicMemory, uid string, sectors int) *MifareClassicTag {
	return &MifareClassicTag{
		device:  device,
		mem:     mem,
		uid:     uid,
		sectors: sectors,
	}
}

func (t *MifareClassicTag) UID() string        { return t.uid }
func (t *MifareClassicTag) Type() string       { return TagTypeMifareClassic }
func (t *MifareClassicTag) Technology() string { return StandardISO14443A3 }
func (t *MifareClassicTag) Connect() error     { return t.mem.Connect() }
func (t *MifareClassicTag) Disconnect() error  { return t.mem.Disconnect() }

// Transceive is not available; MIFARE Classic speaks Crypto1, not ISO-DEP.
func (t *MifareClassicTag) Transceive(data []byte) ([]byte, error) {
	return nil, NewNotSupportedError("Transceive")
}

func (t *MifareClassicTag) product() string {
	switch t.sectors {
	case ClassicMiniSectors:
		return "MIFARE Mini"
	case Classic4KSectors:
		return "MIFARE Classic 4K"
	default:
		return "MIFARE Classic 1K"
	}
}

// Info describes the tag in the poll result format.
func (t *MifareClassicTag) Info() TagInfo {
	info := TagInfo{
		Type:     TagTypeMifareClassic,
		Standard: StandardISO14443A3,
		ID:       t.uid,
		Product:  t.product(),
	}
	if t.device != nil {
		info.Device = t.device.String()
	}
	return info
}

func (t *MifareClassicTag) blockCount() int {
	if t.sectors <= 32 {
		return t.sectors * 4
	}
	return 128 + (t.sectors-32)*16
}

// authenticateLocked opens sector with key. A card that rejects a key halts,
// so it is selected again before the error is returned.
func (t *MifareClassicTag) authenticateLocked(op string, sector byte, key [6]byte, keyType int) error {
	err := t.mem.Authenticate(freefare.ClassicSectorLastBlock(sector), key, keyType)
	if err == nil {
		return nil
	}
	if IsCardRemovedError(err) || IsTagRemovedError(err) {
		return err
	}
	if derr := t.mem.Disconnect(); derr == nil {
		if cerr := t.mem.Connect(); cerr != nil {
			log.Printf("MifareClassicTag UID %s: reselect after failed authentication: %v", t.uid, cerr)
		}
	}
	return NewAuthError(op, int(sector), err)
}

func (t *MifareClassicTag) readBlocksLocked(first byte, count int) ([][]byte, error) {
	blocks := make([][]byte, 0, count)
	for i := 0; i < count; i++ {
		data, err := t.mem.ReadBlock(first + byte(i))
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, data[:])
	}
	return blocks, nil
}

func (t *MifareClassicTag) readSectorLocked(op string, sector byte, key [6]byte) ([][]byte, error) {
	if err := t.authenticateLocked(op, sector, key, freefare.KeyA); err != nil {
		return nil, err
	}
	return t.readBlocksLocked(freefare.ClassicSectorFirstBlock(sector), freefare.ClassicSectorBlockCount(sector))
}

// ReadBlock authenticates the block's sector with keyA and reads 16 bytes.
func (t *MifareClassicTag) ReadBlock(block int, keyA []byte) ([]byte, error) {
	if block < 0 || block >= t.blockCount() {
		return nil, Errorf(ErrCodeInvalidData, "ReadBlock", "block %d out of range (0-%d)", block, t.blockCount()-1)
	}
	key, err := mifareKey("ReadBlock", keyA)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.authenticateLocked("ReadBlock", freefare.ClassicBlockSector(byte(block)), key, freefare.KeyA); err != nil {
		return nil, err
	}
	data, err := t.mem.ReadBlock(byte(block))
	if err != nil {
		return nil, err
	}
	return data[:], nil
}

// ReadSector authenticates sector with keyA and reads all of its blocks,
// sector trailer included.
func (t *MifareClassicTag) ReadSector(sector int, keyA []byte) ([][]byte, error) {
	if sector < 0 || sector >= t.sectors {
		return nil, Errorf(ErrCodeInvalidData, "ReadSector", "sector %d out of range (0-%d)", sector, t.sectors-1)
	}
	key, err := mifareKey("ReadSector", keyA)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	return t.readSectorLocked("ReadSector", byte(sector), key)
}

// WriteBlock authenticates the block's sector with keyA and writes 16 bytes.
func (t *MifareClassicTag) WriteBlock(block int, data []byte, keyA []byte) error {
	if block < 0 || block >= t.blockCount() {
		return Errorf(ErrCodeInvalidData, "WriteBlock", "block %d out of range (0-%d)", block, t.blockCount()-1)
	}
	if len(data) != 16 {
		return Errorf(ErrCodeInvalidData, "WriteBlock", "block data must be 16 bytes, got %d", len(data))
	}
	key, err := mifareKey("WriteBlock", keyA)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.authenticateLocked("WriteBlock", freefare.ClassicBlockSector(byte(block)), key, freefare.KeyA); err != nil {
		return err
	}
	var buf [16]byte
	copy(buf[:], data)
	if err := t.mem.WriteBlock(byte(block), buf); err != nil {
		return err
	}
	t.cache.invalidate()
	return nil
}

// ReadAll reads every sector with keyA, keyed by sector number.
func (t *MifareClassicTag) ReadAll(keyA []byte) (map[int][][]byte, error) {
	key, err := mifareKey("ReadAll", keyA)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[int][][]byte, t.sectors)
	for s := 0; s < t.sectors; s++ {
		blocks, err := t.readSectorLocked("ReadAll", byte(s), key)
		if err != nil {
			return nil, err
		}
		out[s] = blocks
	}
	return out, nil
}

// ndefSectors lists the sectors of the NDEF data area: all but the MAD
// sectors 0 and 16.
func (t *MifareClassicTag) ndefSectors() []byte {
	sectors := make([]byte, 0, t.sectors)
	for s := 1; s < t.sectors; s++ {
		if s == 16 {
			continue
		}
		sectors = append(sectors, byte(s))
	}
	return sectors
}

// openNDEFSectorLocked authenticates an NDEF sector with the public key A.
func (t *MifareClassicTag) openNDEFSectorLocked(op string, sector byte) error {
	err := t.authenticateLocked(op, sector, ndefPublicKeyA, freefare.KeyA)
	if err != nil && GetErrorCode(err) == ErrCodeAuthFailed && sector == 1 {
		return NewNDEFUnsupportedError(op, t.uid)
	}
	return err
}

// ReadNDEF reads the NDEF Message TLV from the NDEF sectors.
func (t *MifareClassicTag) ReadNDEF(cached bool) ([]NDEFRecord, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if cached {
		if records, ok := t.cache.get(); ok {
			return records, nil
		}
	}

	var area []byte
	for _, s := range t.ndefSectors() {
		if err := t.openNDEFSectorLocked("ReadNDEF", s); err != nil {
			if GetErrorCode(err) == ErrCodeAuthFailed {
				// Sectors past the NDEF application use other keys
				break
			}
			return nil, err
		}
		blocks, err := t.readBlocksLocked(freefare.ClassicSectorFirstBlock(s), freefare.ClassicSectorBlockCount(s)-1)
		if err != nil {
			return nil, err
		}
		for _, b := range blocks {
			area = append(area, b...)
		}
		if _, found, terminated, err := scanNDEFTLV(area); err == nil && (found || terminated) {
			break
		}
	}

	records, err := decodeNDEFArea("ReadNDEF", area)
	if err != nil {
		return nil, err
	}
	t.cache.set(records)
	return records, nil
}

// isWritableLocked checks the write access bits of the general purpose byte
// in sector 1's trailer: 00 is read/write, 11 read-only.
func (t *MifareClassicTag) isWritableLocked(op string) (bool, error) {
	if err := t.openNDEFSectorLocked(op, 1); err != nil {
		return false, err
	}
	trailer, err := t.mem.ReadBlock(freefare.ClassicSectorLastBlock(1))
	if err != nil {
		return false, err
	}
	return trailer[9]&0x03 == 0x00, nil
}

// IsWritable reports whether the NDEF data area accepts writes.
func (t *MifareClassicTag) IsWritable() (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.isWritableLocked("IsWritable")
}

// openWriteKeyLocked authenticates sector with the first key B that opens it.
func (t *MifareClassicTag) openWriteKeyLocked(op string, sector byte) error {
	var err error
	for _, key := range classicWriteKeys {
		if err = t.authenticateLocked(op, sector, key, freefare.KeyB); err == nil {
			return nil
		}
		if GetErrorCode(err) != ErrCodeAuthFailed {
			return err
		}
	}
	return err
}

// WriteNDEF replaces the stored message with records.
func (t *MifareClassicTag) WriteNDEF(records []NDEFRecord) error {
	message, err := EncodeNDEFMessage(records)
	if err != nil {
		return NewNDEFFormatError("WriteNDEF", err)
	}
	tlv, err := EncodeNDEFTLV(message)
	if err != nil {
		return NewNDEFFormatError("WriteNDEF", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	writable, err := t.isWritableLocked("WriteNDEF")
	if err != nil {
		return err
	}
	if !writable {
		return NewReadOnlyError("WriteNDEF", t.uid)
	}

	sectors := t.ndefSectors()
	capacity := 0
	for _, s := range sectors {
		capacity += (freefare.ClassicSectorBlockCount(s) - 1) * 16
	}
	if len(tlv) > capacity {
		return Errorf(ErrCodeInvalidData, "WriteNDEF", "NDEF message needs %d bytes, tag holds %d", len(tlv), capacity)
	}
	for len(tlv)%16 != 0 {
		tlv = append(tlv, TLVNull)
	}

	offset := 0
	for _, s := range sectors {
		if offset >= len(tlv) {
			break
		}
		if err := t.openWriteKeyLocked("WriteNDEF", s); err != nil {
			return err
		}
		first := freefare.ClassicSectorFirstBlock(s)
		last := freefare.ClassicSectorLastBlock(s)
		for b := first; b < last && offset < len(tlv); b++ {
			var buf [16]byte
			copy(buf[:], tlv[offset:offset+16])
			if err := t.mem.WriteBlock(b, buf); err != nil {
				t.cache.invalidate()
				return err
			}
			offset += 16
		}
	}

	t.cache.set(records)
	log.Printf("MifareClassicTag UID %s: wrote NDEF message (%d bytes)", t.uid, len(message))
	return nil
}

// MakeReadOnly is not supported on MIFARE Classic.
func (t *MifareClassicTag) MakeReadOnly() error {
	return NewNotSupportedError("MakeReadOnly")
}

// MIFARE Ultralight memory layout
const (
	ultralightFirstDataPage = 4
	ultralightPageCount     = 16
	ultralightCPageCount    = 44
	ultralightCDataEnd      = 40 // Pages 40-43 hold lock and authentication settings
)

// MifareUltralightTag is a MIFARE Ultralight or Ultralight C card reached
// through libfreefare or PC/SC storage card commands.
type MifareUltralightTag struct {
	device      Device
	mem         pageMemory
	uid         string
	ultralightC bool

	mu    sync.Mutex
	cache ndefCache
}

func newMifareUltralightTag(device Device, mem pageMemory, uid string, ultralightC bool) *MifareUltralightTag {
	return &MifareUltralightTag{
		device:      device,
		mem:         mem,
		uid:         uid,
		ultralightC: ultralightC,
	}
}

func (t *MifareUltralightTag) UID() string        { return t.uid }
func (t *MifareUltralightTag) Type() string       { return TagTypeMifareUltralight }
func (t *MifareUltralightTag) Technology() string { return StandardISO14443A3 }
func (t *MifareUltralightTag) Connect() error     { return t.mem.Connect() }
func (t *MifareUltralightTag) Disconnect() error  { return t.mem.Disconnect() }

// Transceive is not available; use ReadBlock and WriteBlock.
func (t *MifareUltralightTag) Transceive(data []byte) ([]byte, error) {
	return nil, NewNotSupportedError("Transceive")
}

// Info describes the tag in the poll result format.
func (t *MifareUltralightTag) Info() TagInfo {
	info := TagInfo{
		Type:     TagTypeMifareUltralight,
		Standard: StandardISO14443A3,
		ID:       t.uid,
		Product:  "MIFARE Ultralight",
	}
	if t.ultralightC {
		info.Product = "MIFARE Ultralight C"
	}
	if t.device != nil {
		info.Device = t.device.String()
	}
	return info
}

func (t *MifareUltralightTag) pageCount() int {
	if t.ultralightC {
		return ultralightCPageCount
	}
	return ultralightPageCount
}

func (t *MifareUltralightTag) dataEnd() int {
	if t.ultralightC {
		return ultralightCDataEnd
	}
	return ultralightPageCount
}

// ReadBlock reads the 4 pages starting at page block, rolling over at the
// end of memory like the card's READ command.
func (t *MifareUltralightTag) ReadBlock(block int, keyA []byte) ([]byte, error) {
	if block < 0 || block >= t.pageCount() {
		return nil, Errorf(ErrCodeInvalidData, "ReadBlock", "page %d out of range (0-%d)", block, t.pageCount()-1)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]byte, 0, 16)
	for i := 0; i < 4; i++ {
		page, err := t.mem.ReadPage(byte((block + i) % t.pageCount()))
		if err != nil {
			return nil, err
		}
		out = append(out, page[:]...)
	}
	return out, nil
}

// ReadSector is not supported; Ultralight memory has no sectors.
func (t *MifareUltralightTag) ReadSector(sector int, keyA []byte) ([][]byte, error) {
	return nil, NewNotSupportedError("ReadSector")
}

// WriteBlock writes 4 bytes to page block. Pages below 4 hold the UID, lock
// bytes and capability container and are refused.
func (t *MifareUltralightTag) WriteBlock(block int, data []byte, keyA []byte) error {
	if block < ultralightFirstDataPage {
		return Errorf(ErrCodeInvalidData, "WriteBlock", "page %d is below the first data page %d", block, ultralightFirstDataPage)
	}
	if block >= t.pageCount() {
		return Errorf(ErrCodeInvalidData, "WriteBlock", "page %d out of range (max %d)", block, t.pageCount()-1)
	}
	if len(data) != 4 {
		return Errorf(ErrCodeInvalidData, "WriteBlock", "page data must be 4 bytes, got %d", len(data))
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	var buf [4]byte
	copy(buf[:], data)
	if err := t.mem.WritePage(byte(block), buf); err != nil {
		return err
	}
	t.cache.invalidate()
	return nil
}

// ReadAll reads every page, keyed by page number.
func (t *MifareUltralightTag) ReadAll(keyA []byte) (map[int][][]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[int][][]byte, t.pageCount())
	for p := 0; p < t.pageCount(); p++ {
		page, err := t.mem.ReadPage(byte(p))
		if err != nil {
			return nil, err
		}
		out[p] = [][]byte{page[:]}
	}
	return out, nil
}

// capabilityContainerLocked reads page 3. An NDEF formatted tag carries the
// magic number E1 in its first byte.
func (t *MifareUltralightTag) capabilityContainerLocked(op string) ([4]byte, error) {
	cc, err := t.mem.ReadPage(3)
	if err != nil {
		return cc, err
	}
	if cc[0] != 0xE1 {
		return cc, NewNDEFUnsupportedError(op, t.uid)
	}
	return cc, nil
}

// dataAreaSize is the NDEF area size announced by cc, bounded by the chip.
func (t *MifareUltralightTag) dataAreaSize(cc [4]byte) int {
	max := (t.dataEnd() - ultralightFirstDataPage) * 4
	size := int(cc[2]) * 8
	if size == 0 || size > max {
		return max
	}
	return size
}

func (t *MifareUltralightTag) isWritableLocked(op string) (bool, error) {
	cc, err := t.capabilityContainerLocked(op)
	if err != nil {
		return false, err
	}
	if cc[3]&0x0F != 0x00 {
		return false, nil
	}
	lock, err := t.mem.ReadPage(2)
	if err != nil {
		return false, err
	}
	return !(lock[2] == 0xFF && lock[3] == 0xFF), nil
}

// ReadNDEF reads the NDEF Message TLV from the data area.
func (t *MifareUltralightTag) ReadNDEF(cached bool) ([]NDEFRecord, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if cached {
		if records, ok := t.cache.get(); ok {
			return records, nil
		}
	}

	cc, err := t.capabilityContainerLocked("ReadNDEF")
	if err != nil {
		return nil, err
	}
	size := t.dataAreaSize(cc)

	area := make([]byte, 0, size)
	for p := ultralightFirstDataPage; len(area) < size; p++ {
		page, err := t.mem.ReadPage(byte(p))
		if err != nil {
			return nil, err
		}
		area = append(area, page[:]...)
		if _, found, terminated, err := scanNDEFTLV(area); err == nil && (found || terminated) {
			break
		}
	}
	if len(area) > size {
		area = area[:size]
	}

	records, err := decodeNDEFArea("ReadNDEF", area)
	if err != nil {
		return nil, err
	}
	t.cache.set(records)
	return records, nil
}

// IsWritable checks the capability container write access and the static lock bytes.
func (t *MifareUltralightTag) IsWritable() (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.isWritableLocked("IsWritable")
}

// WriteNDEF replaces the stored message with records.
func (t *MifareUltralightTag) WriteNDEF(records []NDEFRecord) error {
	message, err := EncodeNDEFMessage(records)
	if err != nil {
		return NewNDEFFormatError("WriteNDEF", err)
	}
	tlv, err := EncodeNDEFTLV(message)
	if err != nil {
		return NewNDEFFormatError("WriteNDEF", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	writable, err := t.isWritableLocked("WriteNDEF")
	if err != nil {
		return err
	}
	if !writable {
		return NewReadOnlyError("WriteNDEF", t.uid)
	}

	cc, err := t.capabilityContainerLocked("WriteNDEF")
	if err != nil {
		return err
	}
	if size := t.dataAreaSize(cc); len(tlv) > size {
		return Errorf(ErrCodeInvalidData, "WriteNDEF", "NDEF message needs %d bytes, tag holds %d", len(tlv), size)
	}
	for len(tlv)%4 != 0 {
		tlv = append(tlv, TLVNull)
	}

	page := byte(ultralightFirstDataPage)
	for offset := 0; offset < len(tlv); offset += 4 {
		var buf [4]byte
		copy(buf[:], tlv[offset:offset+4])
		if err := t.mem.WritePage(page, buf); err != nil {
			t.cache.invalidate()
			return err
		}
		page++
	}

	t.cache.set(records)
	log.Printf("MifareUltralightTag UID %s: wrote NDEF message (%d bytes)", t.uid, len(message))
	return nil
}

// MakeReadOnly sets the capability container to read-only and the static
// lock bits for pages 3-15. This cannot be undone.
func (t *MifareUltralightTag) MakeReadOnly() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	cc, err := t.capabilityContainerLocked("MakeReadOnly")
	if err != nil {
		return err
	}
	cc[3] = 0x0F
	if err := t.mem.WritePage(3, cc); err != nil {
		return err
	}

	lock, err := t.mem.ReadPage(2)
	if err != nil {
		return err
	}
	lock[2], lock[3] = 0xFF, 0xFF
	if err := t.mem.WritePage(2, lock); err != nil {
		return err
	}

	log.Printf("MifareUltralightTag UID %s: locked read-only", t.uid)
	return nil
}
