package nfc

import (
	"errors"
	"fmt"
)

// APDU status words
const (
	SW1Success     = 0x90
	SW2Success     = 0x00
	SW1MoreData    = 0x61 // More data available
	SW1WrongLength = 0x6C // Wrong Le field
)

// Common APDU command classes
const (
	CLAStandard = 0x00 // Standard ISO7816-4
	CLAPCSC     = 0xFF // PC/SC pseudo-APDU (reader commands)
)

// Instructions used by the transport layer itself
const (
	INSGetUID     = 0xCA // PC/SC GET DATA (UID)
	INSLoadKey    = 0x82 // Load authentication key
	INSAuth       = 0x86 // General authenticate
	INSReadBinary = 0xB0 // Read binary
	INSUpdateBin  = 0xD6 // Update binary
	INSSelectFile = 0xA4 // Select file
)

// MIFARE key types for General Authenticate
const (
	MIFAREKeyA = 0x60
	MIFAREKeyB = 0x61
)

// APDUResponse represents a parsed APDU response
type APDUResponse struct {
	Data []byte
	SW1  byte
	SW2  byte
}

// IsSuccess returns true if the response indicates success (SW1=90, SW2=00)
func (r APDUResponse) IsSuccess() bool {
	return r.SW1 == SW1Success && r.SW2 == SW2Success
}

// HasMoreData returns true if more data is available (SW1=61)
func (r APDUResponse) HasMoreData() bool {
	return r.SW1 == SW1MoreData
}

// Error returns an error if the response is not successful
func (r APDUResponse) Error() error {
	if r.IsSuccess() || r.HasMoreData() {
		return nil
	}
	return fmt.Errorf("APDU error: SW1=%02X SW2=%02X", r.SW1, r.SW2)
}

// StatusWord returns the 2-byte status word as uint16
func (r APDUResponse) StatusWord() uint16 {
	return uint16(r.SW1)<<8 | uint16(r.SW2)
}

// ParseAPDUResponse parses a raw response into APDUResponse
func ParseAPDUResponse(raw []byte) (APDUResponse, error) {
	if len(raw) < 2 {
		return APDUResponse{}, errors.New("response too short")
	}
	return APDUResponse{
		Data: raw[:len(raw)-2],
		SW1:  raw[len(raw)-2],
		SW2:  raw[len(raw)-1],
	}, nil
}

// BuildAPDU constructs a short APDU command
func BuildAPDU(cla, ins, p1, p2 byte, data []byte, le *byte) []byte {
	cmd := []byte{cla, ins, p1, p2}

	if len(data) > 0 {
		cmd = append(cmd, byte(len(data)))
		cmd = append(cmd, data...)
	}

	if le != nil {
		cmd = append(cmd, *le)
	}

	return cmd
}

// GetUIDAPDU returns the PC/SC pseudo-APDU for getting the card UID
func GetUIDAPDU() []byte {
	le := byte(0x00)
	return BuildAPDU(CLAPCSC, INSGetUID, 0x00, 0x00, nil, &le)
}

// LoadKeyAPDU returns the APDU for loading a key into reader memory.
// keySlot: 0x00-0x1F for volatile, 0x20+ for non-volatile
func LoadKeyAPDU(keySlot byte, key []byte) []byte {
	if len(key) != 6 {
		return nil
	}
	return BuildAPDU(CLAPCSC, INSLoadKey, 0x00, keySlot, key, nil)
}

// MIFAREAuthAPDU returns the APDU for MIFARE authentication of block with the
// key loaded in keySlot. keyType is MIFAREKeyA or MIFAREKeyB.
func MIFAREAuthAPDU(block byte, keyType byte, keySlot byte) []byte {
	// Version | 0x00 | Block | Key Type | Key Number
	data := []byte{0x01, 0x00, block, keyType, keySlot}
	return BuildAPDU(CLAPCSC, INSAuth, 0x00, 0x00, data, nil)
}

// ReadBinaryAPDU returns the APDU for reading binary data.
// For MIFARE: block/page number in P2, length in Le
func ReadBinaryAPDU(offset byte, length byte) []byte {
	return BuildAPDU(CLAPCSC, INSReadBinary, 0x00, offset, nil, &length)
}

// UpdateBinaryAPDU returns the APDU for writing binary data.
// For MIFARE: block/page number in P2
func UpdateBinaryAPDU(offset byte, data []byte) []byte {
	return BuildAPDU(CLAPCSC, INSUpdateBin, 0x00, offset, data, nil)
}

// SelectFileByAIDAPDU returns the APDU for selecting an application by AID
func SelectFileByAIDAPDU(aid []byte) []byte {
	le := byte(0x00)
	return BuildAPDU(CLAStandard, INSSelectFile, 0x04, 0x00, aid, &le)
}

// BytesToHex converts bytes to uppercase hex string
func BytesToHex(data []byte) string {
	const hexChars = "0123456789ABCDEF"
	result := make([]byte, len(data)*2)
	for i, b := range data {
		result[i*2] = hexChars[b>>4]
		result[i*2+1] = hexChars[b&0x0F]
	}
	return string(result)
}

// HexToBytes converts a hex string to bytes
func HexToBytes(hex string) ([]byte, error) {
	if len(hex)%2 != 0 {
		return nil, errors.New("hex string must have even length")
	}
	result := make([]byte, len(hex)/2)
	for i := 0; i < len(hex); i += 2 {
		var b byte
		for j := 0; j < 2; j++ {
			c := hex[i+j]
			b <<= 4
			switch {
			case c >= '0' && c <= '9':
				b |= c - '0'
			case c >= 'A' && c <= 'F':
				b |= c - 'A' + 10
			case c >= 'a' && c <= 'f':
				b |= c - 'a' + 10
			default:
				return nil, fmt.Errorf("invalid hex character: %c", c)
			}
		}
		result[i/2] = b
	}
	return result, nil
}

// CanonicalizeData accepts either a hex string or a byte slice and returns
// both representations. Hex output is uppercase.
func CanonicalizeData(data any) ([]byte, string, error) {
	switch v := data.(type) {
	case string:
		b, err := HexToBytes(v)
		if err != nil {
			return nil, "", Errorf(ErrCodeInvalidData, "CanonicalizeData", "%v", err)
		}
		return b, v, nil
	case []byte:
		return v, BytesToHex(v), nil
	default:
		return nil, "", Errorf(ErrCodeInvalidData, "CanonicalizeData", "unsupported data type %T", data)
	}
}
