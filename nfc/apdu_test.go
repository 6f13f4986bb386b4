package nfc

import (
	"bytes"
	"testing"
)

func TestParseAPDUResponse(t *testing.T) {
	tests := []struct {
		name     string
		raw      []byte
		wantErr  bool
		wantData []byte
		wantSW   uint16
		wantOK   bool
		wantMore bool
	}{
		{
			name:     "success with data",
			raw:      []byte{0x6F, 0x01, 0x84, 0x90, 0x00},
			wantData: []byte{0x6F, 0x01, 0x84},
			wantSW:   0x9000,
			wantOK:   true,
		},
		{
			name:     "status word only",
			raw:      []byte{0x6A, 0x82},
			wantData: []byte{},
			wantSW:   0x6A82,
		},
		{
			name:     "more data",
			raw:      []byte{0x61, 0x10},
			wantData: []byte{},
			wantSW:   0x6110,
			wantMore: true,
		},
		{
			name:    "too short",
			raw:     []byte{0x90},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := ParseAPDUResponse(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseAPDUResponse() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if !bytes.Equal(resp.Data, tt.wantData) {
				t.Errorf("Data = %X, want %X", resp.Data, tt.wantData)
			}
			if resp.StatusWord() != tt.wantSW {
				t.Errorf("StatusWord() = %04X, want %04X", resp.StatusWord(), tt.wantSW)
			}
			if resp.IsSuccess() != tt.wantOK {
				t.Errorf("IsSuccess() = %v, want %v", resp.IsSuccess(), tt.wantOK)
			}
			if resp.HasMoreData() != tt.wantMore {
				t.Errorf("HasMoreData() = %v, want %v", resp.HasMoreData(), tt.wantMore)
			}
			if (resp.Error() == nil) != (tt.wantOK || tt.wantMore) {
				t.Errorf("Error() = %v", resp.Error())
			}
		})
	}
}

func TestBuildAPDU(t *testing.T) {
	le := byte(0x00)
	tests := []struct {
		name string
		got  []byte
		want []byte
	}{
		{
			name: "header only",
			got:  BuildAPDU(0x00, 0xB2, 0x01, 0x0C, nil, nil),
			want: []byte{0x00, 0xB2, 0x01, 0x0C},
		},
		{
			name: "header and le",
			got:  BuildAPDU(0x80, 0xCA, 0x9F, 0x17, nil, &le),
			want: []byte{0x80, 0xCA, 0x9F, 0x17, 0x00},
		},
		{
			name: "get uid",
			got:  GetUIDAPDU(),
			want: []byte{0xFF, 0xCA, 0x00, 0x00, 0x00},
		},
		{
			name: "select PPSE",
			got:  SelectFileByAIDAPDU([]byte("2PAY.SYS.DDF01")),
			want: append(append([]byte{0x00, 0xA4, 0x04, 0x00, 0x0E}, []byte("2PAY.SYS.DDF01")...), 0x00),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !bytes.Equal(tt.got, tt.want) {
				t.Errorf("APDU = %X, want %X", tt.got, tt.want)
			}
		})
	}
}

func TestHexToBytes(t *testing.T) {
	tests := []struct {
		name    string
		hex     string
		want    []byte
		wantErr bool
	}{
		{name: "uppercase", hex: "00A40400", want: []byte{0x00, 0xA4, 0x04, 0x00}},
		{name: "lowercase", hex: "9000", want: []byte{0x90, 0x00}},
		{name: "mixed case", hex: "aBcD", want: []byte{0xAB, 0xCD}},
		{name: "empty", hex: "", want: []byte{}},
		{name: "odd length", hex: "900", wantErr: true},
		{name: "invalid character", hex: "9G00", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := HexToBytes(tt.hex)
			if (err != nil) != tt.wantErr {
				t.Fatalf("HexToBytes(%q) error = %v, wantErr %v", tt.hex, err, tt.wantErr)
			}
			if !tt.wantErr && !bytes.Equal(got, tt.want) {
				t.Errorf("HexToBytes(%q) = %X, want %X", tt.hex, got, tt.want)
			}
		})
	}
}

func TestBytesToHex(t *testing.T) {
	if got := BytesToHex([]byte{0x00, 0xa4, 0x0f}); got != "00A40F" {
		t.Errorf("BytesToHex() = %q, want %q", got, "00A40F")
	}
	if got := BytesToHex(nil); got != "" {
		t.Errorf("BytesToHex(nil) = %q, want empty", got)
	}
}

func TestCanonicalizeData(t *testing.T) {
	tests := []struct {
		name      string
		data      any
		wantBytes []byte
		wantHex   string
		wantErr   bool
	}{
		{
			name:      "hex string keeps its spelling",
			data:      "00a40400",
			wantBytes: []byte{0x00, 0xA4, 0x04, 0x00},
			wantHex:   "00a40400",
		},
		{
			name:      "bytes",
			data:      []byte{0x90, 0x00},
			wantBytes: []byte{0x90, 0x00},
			wantHex:   "9000",
		},
		{
			name:    "bad hex",
			data:    "zz",
			wantErr: true,
		},
		{
			name:    "unsupported type",
			data:    42,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotBytes, gotHex, err := CanonicalizeData(tt.data)
			if (err != nil) != tt.wantErr {
				t.Fatalf("CanonicalizeData() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if !bytes.Equal(gotBytes, tt.wantBytes) {
				t.Errorf("CanonicalizeData() bytes = %X, want %X", gotBytes, tt.wantBytes)
			}
			if gotHex != tt.wantHex {
				t.Errorf("CanonicalizeData() hex = %q, want %q", gotHex, tt.wantHex)
			}
		})
	}
}
