package nfc

import (
	"fmt"

	"github.com/clausecker/freefare"
)

// classicMemory reaches the blocks of a MIFARE Classic card. keyType is
// freefare.KeyA or freefare.KeyB.
type classicMemory interface {
	Connect() error
	Disconnect() error
	Authenticate(block byte, key [6]byte, keyType int) error
	ReadBlock(block byte) ([16]byte, error)
	WriteBlock(block byte, data [16]byte) error
}

// pageMemory reaches the 4-byte pages of a MIFARE Ultralight card.
type pageMemory interface {
	Connect() error
	Disconnect() error
	ReadPage(page byte) ([4]byte, error)
	WritePage(page byte, data [4]byte) error
}

var (
	_ classicMemory = freefare.ClassicTag{}
	_ pageMemory    = freefare.UltralightTag{}
	_ classicMemory = (*pcscClassicMemory)(nil)
	_ pageMemory    = (*pcscPageMemory)(nil)
)

// pcscClassicMemory drives a MIFARE Classic card with the PC/SC storage card
// pseudo-APDUs (PC/SC part 3, 3.2.2.1). The card is already connected by the
// reader, so Connect and Disconnect do nothing.
type pcscClassicMemory struct {
	device Device
}

func (m *pcscClassicMemory) Connect() error    { return nil }
func (m *pcscClassicMemory) Disconnect() error { return nil }

func (m *pcscClassicMemory) Authenticate(block byte, key [6]byte, keyType int) error {
	var mifareKeyType byte
	switch keyType {
	case freefare.KeyA:
		mifareKeyType = MIFAREKeyA
	case freefare.KeyB:
		mifareKeyType = MIFAREKeyB
	default:
		return Errorf(ErrCodeInvalidData, "Authenticate", "invalid key type %d", keyType)
	}

	// Volatile key slot 0 is reused for every authentication
	if _, err := exchangeStorageAPDU(m.device, LoadKeyAPDU(0x00, key[:])); err != nil {
		return fmt.Errorf("failed to load key: %w", err)
	}
	if _, err := exchangeStorageAPDU(m.device, MIFAREAuthAPDU(block, mifareKeyType, 0x00)); err != nil {
		return err
	}
	return nil
}

func (m *pcscClassicMemory) ReadBlock(block byte) ([16]byte, error) {
	var out [16]byte
	data, err := exchangeStorageAPDU(m.device, ReadBinaryAPDU(block, 16))
	if err != nil {
		return out, err
	}
	if len(data) != 16 {
		return out, fmt.Errorf("block %d: read returned %d bytes, want 16", block, len(data))
	}
	copy(out[:], data)
	return out, nil
}

func (m *pcscClassicMemory) WriteBlock(block byte, data [16]byte) error {
	_, err := exchangeStorageAPDU(m.device, UpdateBinaryAPDU(block, data[:]))
	return err
}

// pcscPageMemory drives a MIFARE Ultralight card with the PC/SC storage card
// pseudo-APDUs.
type pcscPageMemory struct {
	device Device
}

func (m *pcscPageMemory) Connect() error    { return nil }
func (m *pcscPageMemory) Disconnect() error { return nil }

func (m *pcscPageMemory) ReadPage(page byte) ([4]byte, error) {
	var out [4]byte
	data, err := exchangeStorageAPDU(m.device, ReadBinaryAPDU(page, 4))
	if err != nil {
		return out, err
	}
	// Some readers return the full 16-byte READ response
	if len(data) < 4 {
		return out, fmt.Errorf("page %d: read returned %d bytes, want 4", page, len(data))
	}
	copy(out[:], data[:4])
	return out, nil
}

func (m *pcscPageMemory) WritePage(page byte, data [4]byte) error {
	_, err := exchangeStorageAPDU(m.device, UpdateBinaryAPDU(page, data[:]))
	return err
}

// exchangeStorageAPDU sends a reader pseudo-APDU and returns the response data
// when the status word is 9000.
func exchangeStorageAPDU(device Device, apdu []byte) ([]byte, error) {
	resp, err := device.Transceive(apdu)
	if err != nil {
		return nil, err
	}
	parsed, err := ParseAPDUResponse(resp)
	if err != nil {
		return nil, err
	}
	if !parsed.IsSuccess() {
		return nil, parsed.Error()
	}
	return parsed.Data, nil
}
