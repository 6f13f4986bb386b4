package nfc

import (
	"bytes"
	"testing"
)

func TestHistoricalBytesFromATR(t *testing.T) {
	tests := []struct {
		name string
		atr  []byte
		want []byte
	}{
		{
			name: "contactless ISO-DEP card",
			atr: []byte{0x3B, 0x8A, 0x80, 0x01,
				0x00, 0x31, 0xC1, 0x73, 0xC8, 0x40, 0x00, 0x00, 0x90, 0x00,
				0x90},
			want: []byte{0x00, 0x31, 0xC1, 0x73, 0xC8, 0x40, 0x00, 0x00, 0x90, 0x00},
		},
		{
			name: "storage card",
			atr: []byte{0x3B, 0x8F, 0x80, 0x01,
				0x80, 0x4F, 0x0C, 0xA0, 0x00, 0x00, 0x03, 0x06, 0x03, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00,
				0x6A},
			want: []byte{0x80, 0x4F, 0x0C, 0xA0, 0x00, 0x00, 0x03, 0x06, 0x03, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00},
		},
		{
			name: "contact ATR with TA1",
			atr:  []byte{0x3B, 0x12, 0x96, 0xAB, 0xCD},
			want: []byte{0xAB, 0xCD},
		},
		{
			name: "no historical bytes",
			atr:  []byte{0x3B, 0x80, 0x80, 0x01, 0x01},
			want: []byte{},
		},
		{
			name: "truncated",
			atr:  []byte{0x3B, 0x8A, 0x80, 0x01, 0x00, 0x31},
			want: []byte{0x00, 0x31},
		},
		{
			name: "invalid TS",
			atr:  []byte{0x12, 0x34, 0x56},
			want: []byte{},
		},
		{
			name: "empty",
			atr:  nil,
			want: []byte{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HistoricalBytesFromATR(tt.atr)
			if got == nil {
				t.Fatal("HistoricalBytesFromATR() = nil, want non-nil")
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("HistoricalBytesFromATR() = %X, want %X", got, tt.want)
			}
		})
	}
}

func TestHistoricalBytesFromATS(t *testing.T) {
	tests := []struct {
		name string
		ats  []byte
		want []byte
	}{
		{
			name: "TA TB TC present",
			ats:  []byte{0x78, 0x80, 0x70, 0x02, 0x80, 0x31, 0xC1},
			want: []byte{0x80, 0x31, 0xC1},
		},
		{
			name: "only TB",
			ats:  []byte{0x25, 0x81, 0xC1, 0x05},
			want: []byte{0xC1, 0x05},
		},
		{
			name: "no interface bytes",
			ats:  []byte{0x05, 0x4A, 0x43},
			want: []byte{0x4A, 0x43},
		},
		{
			name: "interface bytes only",
			ats:  []byte{0x75, 0x77, 0x81, 0x02},
			want: []byte{},
		},
		{
			name: "empty",
			ats:  []byte{},
			want: []byte{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HistoricalBytesFromATS(tt.ats)
			if got == nil {
				t.Fatal("HistoricalBytesFromATS() = nil, want non-nil")
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("HistoricalBytesFromATS() = %X, want %X", got, tt.want)
			}
		})
	}
}

func TestHistoricalBytesFromATS_ReturnsCopy(t *testing.T) {
	ats := []byte{0x05, 0x4A, 0x43}
	got := HistoricalBytesFromATS(ats)
	got[0] = 0xFF
	if ats[1] != 0x4A {
		t.Error("HistoricalBytesFromATS() aliases its input")
	}
}

func TestIsStorageCardATR(t *testing.T) {
	tests := []struct {
		name string
		atr  []byte
		want bool
	}{
		{
			name: "MIFARE Classic 1K",
			atr: []byte{0x3B, 0x8F, 0x80, 0x01,
				0x80, 0x4F, 0x0C, 0xA0, 0x00, 0x00, 0x03, 0x06, 0x03, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00,
				0x6A},
			want: true,
		},
		{
			name: "ISO-DEP card",
			atr: []byte{0x3B, 0x8A, 0x80, 0x01,
				0x00, 0x31, 0xC1, 0x73, 0xC8, 0x40, 0x00, 0x00, 0x90, 0x00,
				0x90},
			want: false,
		},
		{
			name: "short ATR",
			atr:  []byte{0x3B, 0x81, 0x80, 0x01, 0x80, 0x80},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isStorageCardATR(tt.atr); got != tt.want {
				t.Errorf("isStorageCardATR() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStorageCardName(t *testing.T) {
	storageATR := func(name1, name2 byte) []byte {
		return []byte{0x3B, 0x8F, 0x80, 0x01,
			0x80, 0x4F, 0x0C, 0xA0, 0x00, 0x00, 0x03, 0x06, 0x03, name1, name2, 0x00, 0x00, 0x00, 0x00,
			0x00}
	}

	tests := []struct {
		name   string
		atr    []byte
		want   uint16
		wantOK bool
	}{
		{name: "Classic 1K", atr: storageATR(0x00, 0x01), want: cardNameMifareClassic1K, wantOK: true},
		{name: "Classic 4K", atr: storageATR(0x00, 0x02), want: cardNameMifareClassic4K, wantOK: true},
		{name: "Ultralight", atr: storageATR(0x00, 0x03), want: cardNameMifareUltralight, wantOK: true},
		{name: "Ultralight C", atr: storageATR(0x00, 0x3A), want: cardNameUltralightC, wantOK: true},
		{name: "Mini", atr: storageATR(0x00, 0x26), want: cardNameMifareMini, wantOK: true},
		{
			name: "ISO-DEP card",
			atr: []byte{0x3B, 0x8A, 0x80, 0x01,
				0x00, 0x31, 0xC1, 0x73, 0xC8, 0x40, 0x00, 0x00, 0x90, 0x00,
				0x90},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := storageCardName(tt.atr)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("storageCardName() = %04X, %v, want %04X, %v", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}
