package nfc

import (
	"bytes"
	"reflect"
	"strings"
	"testing"
)

func TestParseNDEFMessage(t *testing.T) {
	tests := []struct {
		name    string
		input   []byte
		want    []NDEFRecord
		wantErr string
	}{
		{
			name:  "empty",
			input: nil,
			want:  nil,
		},
		{
			name: "short URI record",
			// D1 01 04 55 03 61 2E 62 : MB ME SR, TNF well known, type "U"
			input: []byte{0xD1, 0x01, 0x04, 0x55, 0x03, 0x61, 0x2E, 0x62},
			want: []NDEFRecord{
				{TNF: TNFWellKnown, Type: []byte("U"), ID: []byte{}, Payload: []byte{0x03, 'a', '.', 'b'}},
			},
		},
		{
			name: "record with ID",
			input: []byte{0xDA, 0x0A, 0x01, 0x01,
				't', 'e', 'x', 't', '/', 'p', 'l', 'a', 'i', 'n', '7', 'x'},
			want: []NDEFRecord{
				{TNF: TNFMedia, Type: []byte("text/plain"), ID: []byte("7"), Payload: []byte("x")},
			},
		},
		{
			name: "two records",
			input: []byte{
				0x91, 0x01, 0x01, 'T', 0xAA,
				0x51, 0x01, 0x01, 'T', 0xBB,
			},
			want: []NDEFRecord{
				{TNF: TNFWellKnown, Type: []byte("T"), ID: []byte{}, Payload: []byte{0xAA}},
				{TNF: TNFWellKnown, Type: []byte("T"), ID: []byte{}, Payload: []byte{0xBB}},
			},
		},
		{
			name:  "long record",
			input: append([]byte{0xC2, 0x01, 0x00, 0x00, 0x00, 0x02, 'x'}, 0x01, 0x02),
			want: []NDEFRecord{
				{TNF: TNFMedia, Type: []byte("x"), ID: []byte{}, Payload: []byte{0x01, 0x02}},
			},
		},
		{
			name:    "chunked record",
			input:   []byte{0xB1, 0x01, 0x01, 'T', 0xAA},
			wantErr: "chunked",
		},
		{
			name:    "truncated payload",
			input:   []byte{0xD1, 0x01, 0x09, 'T', 0xAA},
			wantErr: "exceeds message size",
		},
		{
			name:    "truncated long length",
			input:   []byte{0xC1, 0x01, 0x00, 0x00},
			wantErr: "truncated payload length",
		},
		{
			name:    "missing message end",
			input:   []byte{0x91, 0x01, 0x01, 'T', 0xAA},
			wantErr: "message end flag missing",
		},
		{
			name:    "trailing bytes",
			input:   []byte{0xD1, 0x01, 0x01, 'T', 0xAA, 0x00},
			wantErr: "trailing bytes",
		},
		{
			name:    "empty record with payload",
			input:   []byte{0xD0, 0x00, 0x01, 0xAA},
			wantErr: "carries data",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseNDEFMessage(tt.input)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("ParseNDEFMessage() error = %v, want containing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseNDEFMessage() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseNDEFMessage() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestEncodeNDEFMessage(t *testing.T) {
	records := []NDEFRecord{
		{TNF: TNFWellKnown, Type: []byte("T"), Payload: []byte{0xAA}},
		{TNF: TNFMedia, Type: []byte("x"), ID: []byte("7"), Payload: bytes.Repeat([]byte{0x01}, 300)},
	}

	encoded, err := EncodeNDEFMessage(records)
	if err != nil {
		t.Fatalf("EncodeNDEFMessage() error = %v", err)
	}

	// MB + SR, TNF well known
	if encoded[0] != 0x91 {
		t.Errorf("first header = %02X, want 91", encoded[0])
	}
	// ME + IL, long record, TNF media
	if encoded[5] != 0x4A {
		t.Errorf("second header = %02X, want 4A", encoded[5])
	}

	parsed, err := ParseNDEFMessage(encoded)
	if err != nil {
		t.Fatalf("ParseNDEFMessage() error = %v", err)
	}
	if len(parsed) != 2 {
		t.Fatalf("parsed %d records, want 2", len(parsed))
	}
	if !bytes.Equal(parsed[1].Payload, records[1].Payload) || string(parsed[1].ID) != "7" {
		t.Errorf("second record = %+v", parsed[1])
	}
}

func TestEncodeNDEFMessage_Errors(t *testing.T) {
	tests := []struct {
		name    string
		records []NDEFRecord
	}{
		{name: "no records", records: nil},
		{name: "type too long", records: []NDEFRecord{{TNF: TNFExternal, Type: make([]byte, 256)}}},
		{name: "id too long", records: []NDEFRecord{{TNF: TNFWellKnown, Type: []byte("T"), ID: make([]byte, 256)}}},
		{name: "reserved TNF", records: []NDEFRecord{{TNF: 0x07}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := EncodeNDEFMessage(tt.records); err == nil {
				t.Error("EncodeNDEFMessage() error = nil, want error")
			}
		})
	}
}

func TestTNFName(t *testing.T) {
	for tnf := TNFEmpty; tnf <= TNFUnchanged; tnf++ {
		if got := ParseTNFName(TNFName(tnf)); got != tnf {
			t.Errorf("ParseTNFName(TNFName(%d)) = %d", tnf, got)
		}
	}
	if got := TNFName(0x07); got != "unknown" {
		t.Errorf("TNFName(7) = %q, want unknown", got)
	}
	if got := ParseTNFName("bogus"); got != TNFUnknown {
		t.Errorf("ParseTNFName(bogus) = %d, want %d", got, TNFUnknown)
	}
}
