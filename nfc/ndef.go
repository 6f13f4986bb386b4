package nfc

import (
	"encoding/binary"
	"fmt"
)

// Type Name Format values (NFC Forum NDEF 1.0, 3.2.6)
const (
	TNFEmpty       byte = 0x00
	TNFWellKnown   byte = 0x01
	TNFMedia       byte = 0x02
	TNFAbsoluteURI byte = 0x03
	TNFExternal    byte = 0x04
	TNFUnknown     byte = 0x05
	TNFUnchanged   byte = 0x06
)

// TNF names used on the wire.
var tnfNames = map[byte]string{
	TNFEmpty:       "empty",
	TNFWellKnown:   "nfcWellKnown",
	TNFMedia:       "media",
	TNFAbsoluteURI: "absoluteURI",
	TNFExternal:    "nfcExternal",
	TNFUnknown:     "unknown",
	TNFUnchanged:   "unchanged",
}

// NDEFRecord is a single record of an NDEF message.
type NDEFRecord struct {
	TNF     byte
	Type    []byte
	ID      []byte
	Payload []byte
}

// TNFName returns the wire name of a Type Name Format. Reserved values map to "unknown".
func TNFName(tnf byte) string {
	if name, ok := tnfNames[tnf]; ok {
		return name
	}
	return tnfNames[TNFUnknown]
}

// ParseTNFName is the inverse of TNFName. Unrecognised names map to TNFUnknown.
func ParseTNFName(name string) byte {
	for tnf, n := range tnfNames {
		if n == name {
			return tnf
		}
	}
	return TNFUnknown
}

// ParseNDEFMessage splits raw NDEF message bytes into records.
// An empty message has no records. Chunked records are rejected.
func ParseNDEFMessage(ndefMessage []byte) ([]NDEFRecord, error) {
	var records []NDEFRecord
	offset := 0

	for offset < len(ndefMessage) {
		header := ndefMessage[offset]
		me := (header & 0x40) != 0 // Message End
		cf := (header & 0x20) != 0 // Chunk Flag
		sr := (header & 0x10) != 0 // Short Record
		il := (header & 0x08) != 0 // ID Length present
		tnf := header & 0x07

		if cf {
			return nil, fmt.Errorf("chunked record at offset %d not supported", offset)
		}

		pos := offset + 1
		if pos+1 > len(ndefMessage) {
			return nil, fmt.Errorf("truncated type length at offset %d", pos)
		}
		typeLength := int(ndefMessage[pos])
		pos++

		var payloadLength int
		if sr {
			if pos+1 > len(ndefMessage) {
				return nil, fmt.Errorf("truncated payload length at offset %d", pos)
			}
			payloadLength = int(ndefMessage[pos])
			pos++
		} else {
			if pos+4 > len(ndefMessage) {
				return nil, fmt.Errorf("truncated payload length at offset %d", pos)
			}
			length := binary.BigEndian.Uint32(ndefMessage[pos : pos+4])
			if uint64(length) > uint64(len(ndefMessage)) {
				return nil, fmt.Errorf("payload length %d exceeds message size", length)
			}
			payloadLength = int(length)
			pos += 4
		}

		var idLength int
		if il {
			if pos+1 > len(ndefMessage) {
				return nil, fmt.Errorf("truncated ID length at offset %d", pos)
			}
			idLength = int(ndefMessage[pos])
			pos++
		}

		if pos+typeLength+idLength+payloadLength > len(ndefMessage) {
			return nil, fmt.Errorf("record at offset %d exceeds message size", offset)
		}

		record := NDEFRecord{TNF: tnf}
		record.Type = append([]byte{}, ndefMessage[pos:pos+typeLength]...)
		pos += typeLength
		record.ID = append([]byte{}, ndefMessage[pos:pos+idLength]...)
		pos += idLength
		record.Payload = append([]byte{}, ndefMessage[pos:pos+payloadLength]...)
		pos += payloadLength

		if tnf == TNFEmpty && (typeLength != 0 || idLength != 0 || payloadLength != 0) {
			return nil, fmt.Errorf("empty record at offset %d carries data", offset)
		}

		records = append(records, record)
		offset = pos

		if me {
			if offset != len(ndefMessage) {
				return nil, fmt.Errorf("%d trailing bytes after last record", len(ndefMessage)-offset)
			}
			return records, nil
		}
	}

	if len(records) > 0 {
		return nil, fmt.Errorf("message end flag missing")
	}
	return records, nil
}

// EncodeNDEFMessage serialises records into a single NDEF message.
func EncodeNDEFMessage(records []NDEFRecord) ([]byte, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("cannot encode empty record list")
	}

	var result []byte
	for i, record := range records {
		if len(record.Type) > 0xFF {
			return nil, fmt.Errorf("record %d: type too long (%d bytes)", i, len(record.Type))
		}
		if len(record.ID) > 0xFF {
			return nil, fmt.Errorf("record %d: id too long (%d bytes)", i, len(record.ID))
		}
		if record.TNF > TNFUnchanged {
			return nil, fmt.Errorf("record %d: invalid TNF %d", i, record.TNF)
		}

		payloadLen := len(record.Payload)
		shortRecord := payloadLen <= 0xFF
		hasID := len(record.ID) > 0

		header := record.TNF & 0x07
		if i == 0 {
			header |= 0x80 // MB
		}
		if i == len(records)-1 {
			header |= 0x40 // ME
		}
		if shortRecord {
			header |= 0x10 // SR
		}
		if hasID {
			header |= 0x08 // IL
		}

		result = append(result, header, byte(len(record.Type)))
		if shortRecord {
			result = append(result, byte(payloadLen))
		} else {
			result = binary.BigEndian.AppendUint32(result, uint32(payloadLen))
		}
		if hasID {
			result = append(result, byte(len(record.ID)))
		}
		result = append(result, record.Type...)
		result = append(result, record.ID...)
		result = append(result, record.Payload...)
	}

	return result, nil
}
