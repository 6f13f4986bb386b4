package nfc

import (
	"fmt"

	"github.com/clausecker/freefare"
)

// TLV block types found in the data area of NFC Forum Type 2 and MIFARE Classic tags
const (
	TLVNull        = 0x00 // Null TLV
	TLVLockCtrl    = 0x01 // Lock Control TLV
	TLVMemCtrl     = 0x02 // Memory Control TLV
	TLVNDEF        = 0x03 // NDEF Message TLV
	TLVProprietary = 0xFD // Proprietary TLV
	TLVTerminator  = 0xFE // Terminator TLV
)

// EncodeNDEFTLV wraps an NDEF message in an NDEF Message TLV followed by a
// Terminator TLV.
func EncodeNDEFTLV(message []byte) ([]byte, error) {
	tlv := freefare.TLVencode(message, TLVNDEF)
	if tlv == nil {
		return nil, fmt.Errorf("NDEF message too large for a TLV (%d bytes)", len(message))
	}
	return tlv, nil
}

// FindNDEFTLV scans a TLV area and returns the value of the first NDEF
// Message TLV. found is false when a Terminator TLV or the end of the area
// comes first. A TLV running past the end of data is an error.
func FindNDEFTLV(data []byte) (message []byte, found bool, err error) {
	message, found, _, err = scanNDEFTLV(data)
	return message, found, err
}

// scanNDEFTLV is FindNDEFTLV that also reports whether a Terminator TLV ended
// the scan, so callers reading the area piecewise know when to stop.
func scanNDEFTLV(data []byte) (message []byte, found, terminated bool, err error) {
	offset := 0
	for offset < len(data) {
		switch data[offset] {
		case TLVNull:
			offset++
			continue
		case TLVTerminator:
			return nil, false, true, nil
		}

		// freefare.TLVrecordLength reads up to 3 bytes past the type
		if offset+2 > len(data) || (data[offset+1] == 0xFF && offset+4 > len(data)) {
			return nil, false, false, fmt.Errorf("TLV 0x%02X at offset %d: truncated length", data[offset], offset)
		}
		fls, fvs := freefare.TLVrecordLength(data[offset:])
		start := offset + 1 + fls
		end := start + fvs
		if end > len(data) {
			return nil, false, false, fmt.Errorf("TLV 0x%02X at offset %d: value (len %d) exceeds data area", data[offset], offset, fvs)
		}

		if data[offset] == TLVNDEF {
			return data[start:end], true, false, nil
		}
		offset = end
	}
	return nil, false, false, nil
}
