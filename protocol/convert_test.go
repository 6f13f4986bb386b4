package protocol

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestDecodeByteArray(t *testing.T) {
	tests := []struct {
		name    string
		json    string
		want    []byte
		wantErr bool
	}{
		{name: "select", json: `[0, 164, 4, 0]`, want: []byte{0x00, 0xA4, 0x04, 0x00}},
		{name: "empty", json: `[]`, want: []byte{}},
		{name: "out of range", json: `[256]`, wantErr: true},
		{name: "negative", json: `[-1]`, wantErr: true},
		{name: "fraction", json: `[1.5]`, wantErr: true},
		{name: "string element", json: `["90"]`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var values []any
			if err := json.Unmarshal([]byte(tt.json), &values); err != nil {
				t.Fatalf("json.Unmarshal() error = %v", err)
			}
			got, err := DecodeByteArray(values)
			if (err != nil) != tt.wantErr {
				t.Fatalf("DecodeByteArray() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !bytes.Equal(got, tt.want) {
				t.Errorf("DecodeByteArray() = %X, want %X", got, tt.want)
			}
		})
	}
}

func TestEncodeByteArray(t *testing.T) {
	out, err := json.Marshal(TransceivePayload{Data: EncodeByteArray([]byte{0x90, 0x00})})
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	if string(out) != `{"data":[144,0]}` {
		t.Errorf("json = %s, want %s", out, `{"data":[144,0]}`)
	}
}

func TestPayloadDurationMillis(t *testing.T) {
	tests := []struct {
		name    string
		payload map[string]any
		wantMs  int
		wantOK  bool
		wantErr bool
	}{
		{name: "absent", payload: map[string]any{}},
		{name: "null", payload: map[string]any{"timeout": nil}},
		{name: "set", payload: map[string]any{"timeout": float64(1500)}, wantMs: 1500, wantOK: true},
		{name: "string", payload: map[string]any{"timeout": "1500"}, wantErr: true},
		{name: "negative", payload: map[string]any{"timeout": float64(-1)}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ms, ok, err := PayloadDurationMillis(tt.payload, "timeout")
			if (err != nil) != tt.wantErr {
				t.Fatalf("PayloadDurationMillis() error = %v, wantErr %v", err, tt.wantErr)
			}
			if ms != tt.wantMs || ok != tt.wantOK {
				t.Errorf("PayloadDurationMillis() = %d, %v, want %d, %v", ms, ok, tt.wantMs, tt.wantOK)
			}
		})
	}
}

func TestDecodeNDEFRecords(t *testing.T) {
	const records = `[{"identifier":"","payload":"02656E6869","type":"54","typeNameFormat":"nfcWellKnown"}]`

	tests := []struct {
		name    string
		raw     any
		wantErr bool
	}{
		{name: "JSON string", raw: records},
		{name: "array", raw: func() any {
			var v any
			json.Unmarshal([]byte(records), &v)
			return v
		}()},
		{name: "malformed string", raw: `[{"payload":`, wantErr: true},
		{name: "number", raw: 42.0, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeNDEFRecords(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("DecodeNDEFRecords() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if len(got) != 1 || got[0].Payload != "02656E6869" || got[0].TypeNameFormat != "nfcWellKnown" {
				t.Errorf("DecodeNDEFRecords() = %+v", got)
			}
		})
	}
}

func TestPayloadIndex(t *testing.T) {
	n, ok, err := PayloadIndex(map[string]any{"blockIndex": 4.0}, "blockIndex")
	if err != nil || !ok || n != 4 {
		t.Errorf("PayloadIndex() = %d, %v, %v, want 4, true, nil", n, ok, err)
	}
	if _, ok, err := PayloadIndex(map[string]any{}, "blockIndex"); ok || err != nil {
		t.Errorf("PayloadIndex(absent) = %v, %v, want false, nil", ok, err)
	}
	if _, _, err := PayloadIndex(map[string]any{"blockIndex": -1.0}, "blockIndex"); err == nil {
		t.Error("PayloadIndex(-1) error = nil, want error")
	}
}
