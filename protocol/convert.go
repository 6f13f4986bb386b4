package protocol

import (
	"encoding/json"
	"fmt"
	"math"
)

// DecodeByteArray converts a JSON number array (as decoded into []any) to bytes.
// Every element must be an integer in 0..255.
func DecodeByteArray(values []any) ([]byte, error) {
	result := make([]byte, len(values))
	for i, v := range values {
		n, ok := v.(float64)
		if !ok {
			return nil, fmt.Errorf("element %d is %T, not a number", i, v)
		}
		if n != math.Trunc(n) || n < 0 || n > 255 {
			return nil, fmt.Errorf("element %d (%v) is not a byte", i, n)
		}
		result[i] = byte(n)
	}
	return result, nil
}

// EncodeByteArray converts bytes to a JSON number array.
// encoding/json would otherwise emit []byte as base64.
func EncodeByteArray(data []byte) []int {
	result := make([]int, len(data))
	for i, b := range data {
		result[i] = int(b)
	}
	return result
}

// PayloadDurationMillis reads an optional millisecond count from a request payload.
// It returns ok=false when the key is absent or null.
func PayloadDurationMillis(payload map[string]any, key string) (ms int, ok bool, err error) {
	return payloadNonNegativeInt(payload, key)
}

// PayloadIndex reads an optional block, sector or page index from a request payload.
func PayloadIndex(payload map[string]any, key string) (n int, ok bool, err error) {
	return payloadNonNegativeInt(payload, key)
}

func payloadNonNegativeInt(payload map[string]any, key string) (int, bool, error) {
	raw, present := payload[key]
	if !present || raw == nil {
		return 0, false, nil
	}
	n, isNumber := raw.(float64)
	if !isNumber || n != math.Trunc(n) || n < 0 {
		return 0, false, fmt.Errorf("%s must be a non-negative integer", key)
	}
	return int(n), true, nil
}

// DecodeNDEFRecords reads the records of a writeNDEF request. Clients send
// them either as a JSON encoded string or as an array.
func DecodeNDEFRecords(raw any) ([]NDEFRecordPayload, error) {
	var data []byte
	switch v := raw.(type) {
	case string:
		data = []byte(v)
	case []any:
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		data = encoded
	default:
		return nil, fmt.Errorf("records must be a JSON string or array, got %T", raw)
	}

	var records []NDEFRecordPayload
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decoding records: %w", err)
	}
	return records, nil
}
