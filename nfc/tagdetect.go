package nfc

// findHistoricalBytesStart finds the start of historical bytes in an ATR
func findHistoricalBytesStart(atr []byte) int {
	if len(atr) < 2 {
		return -1
	}

	// ATR format:
	// TS (3B or 3F)
	// T0 (format byte, lower nibble = number of historical bytes)
	// TA1, TB1, TC1, TD1 (optional, indicated by T0)
	// TA2, TB2, TC2, TD2 (optional, indicated by TD1)
	// ... more interface bytes
	// Historical bytes
	// TCK (check byte, only if T!=0)

	ts := atr[0]
	if ts != 0x3B && ts != 0x3F {
		return -1
	}

	t0 := atr[1]
	numHistBytes := int(t0 & 0x0F)
	if numHistBytes == 0 {
		return -1
	}

	pos := 2
	td := t0

	for {
		if (td & 0x10) != 0 {
			pos++ // TAi present
		}
		if (td & 0x20) != 0 {
			pos++ // TBi present
		}
		if (td & 0x40) != 0 {
			pos++ // TCi present
		}
		if (td & 0x80) != 0 {
			if pos >= len(atr) {
				return -1
			}
			td = atr[pos] // TDi present, read it
			pos++
		} else {
			break
		}
	}

	if pos >= len(atr) {
		return -1
	}

	return pos
}

// HistoricalBytesFromATR extracts the historical bytes from an ATR.
//
// PC/SC readers build the ATR of an ISO 14443-4 Type A card from its ATS
// (PC/SC part 3, 3.1.3.2.3.1), so these are the same bytes the card sent
// during activation. Returns an empty slice when the ATR carries none.
func HistoricalBytesFromATR(atr []byte) []byte {
	start := findHistoricalBytesStart(atr)
	if start < 0 {
		return []byte{}
	}
	end := start + int(atr[1]&0x0F)
	if end > len(atr) {
		end = len(atr)
	}
	hist := make([]byte, end-start)
	copy(hist, atr[start:end])
	return hist
}

// HistoricalBytesFromATS extracts the historical bytes from an ATS as libnfc
// reports it (length byte TL already stripped, starting at T0).
//
// T0 bits 5-7 announce the TA(1), TB(1) and TC(1) interface bytes; everything
// after them is historical.
func HistoricalBytesFromATS(ats []byte) []byte {
	if len(ats) == 0 {
		return []byte{}
	}
	t0 := ats[0]
	pos := 1
	if (t0 & 0x10) != 0 {
		pos++ // TA(1)
	}
	if (t0 & 0x20) != 0 {
		pos++ // TB(1)
	}
	if (t0 & 0x40) != 0 {
		pos++ // TC(1)
	}
	if pos >= len(ats) {
		return []byte{}
	}
	hist := make([]byte, len(ats)-pos)
	copy(hist, ats[pos:])
	return hist
}

// pcscStorageCardRID is the registered application provider ID PC/SC readers
// put in the ATR of ISO 14443-3 storage cards (MIFARE Classic, Ultralight, ...).
var pcscStorageCardRID = []byte{0xA0, 0x00, 0x00, 0x03, 0x06}

// isStorageCardATR reports whether a contactless ATR describes a storage card
// rather than an ISO 14443-4 card. Storage card historical bytes are
// 80 4F <len> <RID> <standard> <card name> ...
func isStorageCardATR(atr []byte) bool {
	hist := HistoricalBytesFromATR(atr)
	if len(hist) < 3+len(pcscStorageCardRID) {
		return false
	}
	if hist[0] != 0x80 || hist[1] != 0x4F {
		return false
	}
	for i, b := range pcscStorageCardRID {
		if hist[3+i] != b {
			return false
		}
	}
	return true
}

// PC/SC card names of the storage cards handled by MifareClassicTag and
// MifareUltralightTag (PC/SC part 3 supplement)
const (
	cardNameMifareClassic1K  uint16 = 0x0001
	cardNameMifareClassic4K  uint16 = 0x0002
	cardNameMifareUltralight uint16 = 0x0003
	cardNameMifareMini       uint16 = 0x0026
	cardNameUltralightC      uint16 = 0x003A
)

// storageCardName returns the two-byte card name of a storage card ATR.
func storageCardName(atr []byte) (uint16, bool) {
	if !isStorageCardATR(atr) {
		return 0, false
	}
	hist := HistoricalBytesFromATR(atr)
	if len(hist) < 11 {
		return 0, false
	}
	return uint16(hist[9])<<8 | uint16(hist[10]), true
}
