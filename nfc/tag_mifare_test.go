package nfc

import (
	"bytes"
	"testing"
)

func attachClassic(t *testing.T, card *MockStorageCard) (*MockDevice, *MifareClassicTag) {
	t.Helper()
	device := NewMockDevice()
	tag, ok := card.Attach(device, "04A1B2C3").(*MifareClassicTag)
	if !ok {
		t.Fatal("Attach() did not return a *MifareClassicTag")
	}
	return device, tag
}

func attachUltralight(t *testing.T, card *MockStorageCard) (*MockDevice, *MifareUltralightTag) {
	t.Helper()
	device := NewMockDevice()
	tag, ok := card.Attach(device, "04A1B2C3D4E5F6").(*MifareUltralightTag)
	if !ok {
		t.Fatal("Attach() did not return a *MifareUltralightTag")
	}
	return device, tag
}

func sameRecords(t *testing.T, got, want []NDEFRecord) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d records, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].TNF != want[i].TNF ||
			!bytes.Equal(got[i].Type, want[i].Type) ||
			!bytes.Equal(got[i].ID, want[i].ID) ||
			!bytes.Equal(got[i].Payload, want[i].Payload) {
			t.Errorf("record %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestMifareClassicTag_Info(t *testing.T) {
	tests := []struct {
		sectors int
		product string
	}{
		{sectors: ClassicMiniSectors, product: "MIFARE Mini"},
		{sectors: Classic1KSectors, product: "MIFARE Classic 1K"},
		{sectors: Classic4KSectors, product: "MIFARE Classic 4K"},
	}

	for _, tt := range tests {
		t.Run(tt.product, func(t *testing.T) {
			_, tag := attachClassic(t, NewMockClassicCard(tt.sectors))
			info := tag.Info()
			if info.Type != TagTypeMifareClassic || info.Product != tt.product || info.ID != "04A1B2C3" {
				t.Errorf("Info() = %+v", info)
			}
			if info.Device != "Mock NFC Reader" {
				t.Errorf("Info().Device = %q", info.Device)
			}
		})
	}
}

func TestMifareClassicTag_ReadBlock(t *testing.T) {
	card := NewMockClassicCard(Classic1KSectors)
	data := bytes.Repeat([]byte{0x42}, 16)
	card.SetBlock(5, data)
	_, tag := attachClassic(t, card)

	got, err := tag.ReadBlock(5, nil)
	if err != nil {
		t.Fatalf("ReadBlock() error = %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("ReadBlock() = %X, want %X", got, data)
	}

	explicit, err := tag.ReadBlock(5, []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF})
	if err != nil || !bytes.Equal(explicit, data) {
		t.Errorf("ReadBlock(explicit key) = %X, %v", explicit, err)
	}
}

func TestMifareClassicTag_ReadBlockErrors(t *testing.T) {
	tests := []struct {
		name  string
		block int
		key   []byte
		code  ErrorCode
	}{
		{name: "wrong key", block: 4, key: []byte{1, 2, 3, 4, 5, 6}, code: ErrCodeAuthFailed},
		{name: "short key", block: 4, key: []byte{1, 2, 3}, code: ErrCodeInvalidData},
		{name: "negative block", block: -1, code: ErrCodeInvalidData},
		{name: "past last block", block: 64, code: ErrCodeInvalidData},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, tag := attachClassic(t, NewMockClassicCard(Classic1KSectors))
			_, err := tag.ReadBlock(tt.block, tt.key)
			if code := GetErrorCode(err); code != tt.code {
				t.Errorf("ReadBlock() error = %v (code %d), want code %d", err, code, tt.code)
			}
		})
	}
}

func TestMifareClassicTag_ReadSector(t *testing.T) {
	card := NewMockClassicCard(Classic1KSectors)
	card.SetBlock(8, bytes.Repeat([]byte{0x11}, 16))
	_, tag := attachClassic(t, card)

	blocks, err := tag.ReadSector(2, nil)
	if err != nil {
		t.Fatalf("ReadSector() error = %v", err)
	}
	if len(blocks) != 4 {
		t.Fatalf("ReadSector() returned %d blocks, want 4", len(blocks))
	}
	if !bytes.Equal(blocks[0], bytes.Repeat([]byte{0x11}, 16)) {
		t.Errorf("block 8 = %X", blocks[0])
	}
	// Key A is never readable from the trailer
	if !bytes.Equal(blocks[3][:6], make([]byte, 6)) {
		t.Errorf("trailer key A = %X, want zeros", blocks[3][:6])
	}

	if _, err := tag.ReadSector(16, nil); GetErrorCode(err) != ErrCodeInvalidData {
		t.Errorf("ReadSector(16) error = %v, want invalid data", err)
	}
}

func TestMifareClassicTag_ReadSector4KLargeSector(t *testing.T) {
	_, tag := attachClassic(t, NewMockClassicCard(Classic4KSectors))

	blocks, err := tag.ReadSector(39, nil)
	if err != nil {
		t.Fatalf("ReadSector(39) error = %v", err)
	}
	if len(blocks) != 16 {
		t.Errorf("ReadSector(39) returned %d blocks, want 16", len(blocks))
	}
}

func TestMifareClassicTag_WriteBlock(t *testing.T) {
	card := NewMockClassicCard(Classic1KSectors)
	_, tag := attachClassic(t, card)

	data := bytes.Repeat([]byte{0xA5}, 16)
	if err := tag.WriteBlock(9, data, nil); err != nil {
		t.Fatalf("WriteBlock() error = %v", err)
	}
	if got := card.Block(9); !bytes.Equal(got, data) {
		t.Errorf("card block 9 = %X, want %X", got, data)
	}

	if err := tag.WriteBlock(9, []byte{0x01}, nil); GetErrorCode(err) != ErrCodeInvalidData {
		t.Errorf("WriteBlock(1 byte) error = %v, want invalid data", err)
	}
	if err := tag.WriteBlock(9, data, []byte{1, 2, 3, 4, 5, 6}); GetErrorCode(err) != ErrCodeAuthFailed {
		t.Errorf("WriteBlock(wrong key) error = %v, want auth failure", err)
	}
}

func TestMifareClassicTag_ReadAll(t *testing.T) {
	_, tag := attachClassic(t, NewMockClassicCard(ClassicMiniSectors))

	all, err := tag.ReadAll(nil)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if len(all) != ClassicMiniSectors {
		t.Fatalf("ReadAll() returned %d sectors, want %d", len(all), ClassicMiniSectors)
	}
	for s, blocks := range all {
		if len(blocks) != 4 {
			t.Errorf("sector %d has %d blocks, want 4", s, len(blocks))
		}
	}
}

func TestMifareClassicTag_NDEF(t *testing.T) {
	card := NewMockClassicCard(Classic1KSectors)
	card.FormatNDEF()
	device, tag := attachClassic(t, card)

	records, err := tag.ReadNDEF(false)
	if err != nil {
		t.Fatalf("ReadNDEF() error = %v", err)
	}
	if len(records) != 0 {
		t.Errorf("ReadNDEF() on formatted card = %+v, want no records", records)
	}

	writable, err := tag.IsWritable()
	if err != nil || !writable {
		t.Fatalf("IsWritable() = %v, %v, want true", writable, err)
	}

	// Long enough to cross from sector 1 into sector 2
	want := []NDEFRecord{
		{TNF: TNFWellKnown, Type: []byte("T"), Payload: append([]byte{0x02, 'e', 'n'}, bytes.Repeat([]byte{'x'}, 80)...)},
		{TNF: TNFMedia, Type: []byte("text/plain"), ID: []byte("1"), Payload: []byte("hello")},
	}
	if err := tag.WriteNDEF(want); err != nil {
		t.Fatalf("WriteNDEF() error = %v", err)
	}
	if card.Block(8)[0] == 0x00 {
		t.Error("sector 2 was not written")
	}

	calls := len(device.GetCallLog())
	cached, err := tag.ReadNDEF(true)
	if err != nil {
		t.Fatalf("ReadNDEF(cached) error = %v", err)
	}
	sameRecords(t, cached, want)
	if len(device.GetCallLog()) != calls {
		t.Error("ReadNDEF(cached) talked to the card")
	}

	fresh, err := tag.ReadNDEF(false)
	if err != nil {
		t.Fatalf("ReadNDEF() error = %v", err)
	}
	sameRecords(t, fresh, want)
}

func TestMifareClassicTag_NDEFUnformatted(t *testing.T) {
	_, tag := attachClassic(t, NewMockClassicCard(Classic1KSectors))

	if _, err := tag.ReadNDEF(false); GetErrorCode(err) != ErrCodeNDEFUnsupported {
		t.Errorf("ReadNDEF() error = %v, want NDEF unsupported", err)
	}
	if _, err := tag.IsWritable(); GetErrorCode(err) != ErrCodeNDEFUnsupported {
		t.Errorf("IsWritable() error = %v, want NDEF unsupported", err)
	}
}

func TestMifareClassicTag_NDEFReadOnly(t *testing.T) {
	card := NewMockClassicCard(Classic1KSectors)
	card.FormatNDEF()
	trailer := card.Block(7)
	trailer[9] = 0x43
	card.SetBlock(7, trailer)
	_, tag := attachClassic(t, card)

	writable, err := tag.IsWritable()
	if err != nil || writable {
		t.Errorf("IsWritable() = %v, %v, want false", writable, err)
	}

	records := []NDEFRecord{{TNF: TNFWellKnown, Type: []byte("T"), Payload: []byte{0x02, 'e', 'n', 'a'}}}
	if err := tag.WriteNDEF(records); GetErrorCode(err) != ErrCodeReadOnly {
		t.Errorf("WriteNDEF() error = %v, want read-only", err)
	}
	if err := tag.MakeReadOnly(); !IsNotSupportedError(err) {
		t.Errorf("MakeReadOnly() error = %v, want not supported", err)
	}
}

func TestMifareClassicTag_NDEFCorrupt(t *testing.T) {
	card := NewMockClassicCard(Classic1KSectors)
	card.FormatNDEF()
	card.SetBlock(4, append([]byte{0x03, 0x04, 0xD1, 0x01, 0x09, 'T', 0xFE}, make([]byte, 9)...))
	_, tag := attachClassic(t, card)

	if _, err := tag.ReadNDEF(false); GetErrorCode(err) != ErrCodeNDEFFormat {
		t.Errorf("ReadNDEF() error = %v, want NDEF format error", err)
	}
}

func TestMifareClassicTag_TransceiveNotSupported(t *testing.T) {
	_, tag := attachClassic(t, NewMockClassicCard(Classic1KSectors))

	if _, err := tag.Transceive([]byte{0x00, 0xA4, 0x04, 0x00}); !IsNotSupportedError(err) {
		t.Errorf("Transceive() error = %v, want not supported", err)
	}
}

func TestMifareUltralightTag_ReadBlock(t *testing.T) {
	card := NewMockUltralightCard(ultralightPageCount)
	for p := 0; p < ultralightPageCount; p++ {
		card.SetBlock(p, []byte{byte(p), byte(p), byte(p), byte(p)})
	}
	_, tag := attachUltralight(t, card)

	got, err := tag.ReadBlock(4, nil)
	if err != nil {
		t.Fatalf("ReadBlock(4) error = %v", err)
	}
	want := []byte{4, 4, 4, 4, 5, 5, 5, 5, 6, 6, 6, 6, 7, 7, 7, 7}
	if !bytes.Equal(got, want) {
		t.Errorf("ReadBlock(4) = %X, want %X", got, want)
	}

	// Reads roll over to page 0 at the end of memory
	got, err = tag.ReadBlock(14, nil)
	if err != nil {
		t.Fatalf("ReadBlock(14) error = %v", err)
	}
	want = []byte{14, 14, 14, 14, 15, 15, 15, 15, 0, 0, 0, 0, 1, 1, 1, 1}
	if !bytes.Equal(got, want) {
		t.Errorf("ReadBlock(14) = %X, want %X", got, want)
	}

	if _, err := tag.ReadBlock(16, nil); GetErrorCode(err) != ErrCodeInvalidData {
		t.Errorf("ReadBlock(16) error = %v, want invalid data", err)
	}
}

func TestMifareUltralightTag_WriteBlock(t *testing.T) {
	tests := []struct {
		name    string
		page    int
		data    []byte
		wantErr bool
	}{
		{name: "first data page", page: 4, data: []byte{1, 2, 3, 4}},
		{name: "last page", page: 15, data: []byte{1, 2, 3, 4}},
		{name: "capability container", page: 3, data: []byte{1, 2, 3, 4}, wantErr: true},
		{name: "past end", page: 16, data: []byte{1, 2, 3, 4}, wantErr: true},
		{name: "short data", page: 5, data: []byte{1, 2}, wantErr: true},
		{name: "block sized data", page: 5, data: make([]byte, 16), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			card := NewMockUltralightCard(ultralightPageCount)
			_, tag := attachUltralight(t, card)

			err := tag.WriteBlock(tt.page, tt.data, nil)
			if tt.wantErr {
				if GetErrorCode(err) != ErrCodeInvalidData {
					t.Errorf("WriteBlock() error = %v, want invalid data", err)
				}
				if card.Writes != 0 {
					t.Errorf("card saw %d writes, want 0", card.Writes)
				}
				return
			}
			if err != nil {
				t.Fatalf("WriteBlock() error = %v", err)
			}
			if got := card.Block(tt.page); !bytes.Equal(got, tt.data) {
				t.Errorf("page %d = %X, want %X", tt.page, got, tt.data)
			}
		})
	}
}

func TestMifareUltralightTag_ReadAllAndSector(t *testing.T) {
	_, tag := attachUltralight(t, NewMockUltralightCard(ultralightCPageCount))

	all, err := tag.ReadAll(nil)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if len(all) != ultralightCPageCount {
		t.Errorf("ReadAll() returned %d pages, want %d", len(all), ultralightCPageCount)
	}
	if len(all[43]) != 1 || len(all[43][0]) != 4 {
		t.Errorf("page 43 = %X", all[43])
	}

	if _, err := tag.ReadSector(0, nil); !IsNotSupportedError(err) {
		t.Errorf("ReadSector() error = %v, want not supported", err)
	}
	if info := tag.Info(); info.Product != "MIFARE Ultralight C" {
		t.Errorf("Info().Product = %q", info.Product)
	}
}

func TestMifareUltralightTag_NDEF(t *testing.T) {
	card := NewMockUltralightCard(ultralightPageCount)
	card.FormatNDEF()
	_, tag := attachUltralight(t, card)

	records, err := tag.ReadNDEF(false)
	if err != nil {
		t.Fatalf("ReadNDEF() error = %v", err)
	}
	if len(records) != 0 {
		t.Errorf("ReadNDEF() on formatted card = %+v, want no records", records)
	}

	want := []NDEFRecord{
		{TNF: TNFWellKnown, Type: []byte("U"), Payload: append([]byte{0x04}, "example.com/pay"...)},
	}
	if err := tag.WriteNDEF(want); err != nil {
		t.Fatalf("WriteNDEF() error = %v", err)
	}
	if got := card.Block(4)[0]; got != TLVNDEF {
		t.Errorf("page 4 starts with %02X, want NDEF TLV", got)
	}

	fresh, err := tag.ReadNDEF(false)
	if err != nil {
		t.Fatalf("ReadNDEF() error = %v", err)
	}
	sameRecords(t, fresh, want)

	tooLarge := []NDEFRecord{{TNF: TNFMedia, Type: []byte("x"), Payload: make([]byte, 60)}}
	if err := tag.WriteNDEF(tooLarge); GetErrorCode(err) != ErrCodeInvalidData {
		t.Errorf("WriteNDEF(too large) error = %v, want invalid data", err)
	}
}

func TestMifareUltralightTag_MakeReadOnly(t *testing.T) {
	card := NewMockUltralightCard(ultralightPageCount)
	card.FormatNDEF()
	_, tag := attachUltralight(t, card)

	if err := tag.MakeReadOnly(); err != nil {
		t.Fatalf("MakeReadOnly() error = %v", err)
	}
	if cc := card.Block(3); cc[3] != 0x0F {
		t.Errorf("capability container = %X, want read-only access byte", cc)
	}
	if lock := card.Block(2); lock[2] != 0xFF || lock[3] != 0xFF {
		t.Errorf("lock bytes = %X, want FFFF", lock[2:])
	}

	writable, err := tag.IsWritable()
	if err != nil || writable {
		t.Errorf("IsWritable() = %v, %v, want false", writable, err)
	}
	records := []NDEFRecord{{TNF: TNFWellKnown, Type: []byte("T"), Payload: []byte{0x02, 'e', 'n', 'a'}}}
	if err := tag.WriteNDEF(records); GetErrorCode(err) != ErrCodeReadOnly {
		t.Errorf("WriteNDEF() error = %v, want read-only", err)
	}
}

func TestMifareUltralightTag_NDEFUnformatted(t *testing.T) {
	_, tag := attachUltralight(t, NewMockUltralightCard(ultralightPageCount))

	if _, err := tag.ReadNDEF(false); GetErrorCode(err) != ErrCodeNDEFUnsupported {
		t.Errorf("ReadNDEF() error = %v, want NDEF unsupported", err)
	}
	if err := tag.MakeReadOnly(); GetErrorCode(err) != ErrCodeNDEFUnsupported {
		t.Errorf("MakeReadOnly() error = %v, want NDEF unsupported", err)
	}
}
