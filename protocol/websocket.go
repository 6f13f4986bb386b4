package protocol

// WebSocket message types. Method names match the mobile NFC plugin channel
// so existing clients can talk to the bridge unchanged.
const (
	WSTypeGetNFCAvailability     = "getNFCAvailability"
	WSTypePoll                   = "poll"
	WSTypeTransceive             = "transceive"
	WSTypeGetInitializationBytes = "getInitializationBytes"
	WSTypeFinish                 = "finish"
	WSTypeReadNDEF               = "readNDEF"
	WSTypeWriteNDEF              = "writeNDEF"
	WSTypeMakeNdefReadOnly       = "makeNdefReadOnly"
	WSTypeReadBlock              = "readBlock"
	WSTypeReadSector             = "readSector"
	WSTypeReadAll                = "readAll"
	WSTypeWriteBlock             = "writeBlock"
	WSTypeSession                = "session"
	WSTypeError                  = "error"
)

// WebSocketMessage is the generic message envelope for server-initiated messages.
type WebSocketMessage struct {
	ID      string `json:"id,omitempty"`
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// WebSocketRequest is for incoming requests from WebSocket clients.
type WebSocketRequest struct {
	ID      string         `json:"id,omitempty"`
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload,omitempty"`
}

// WebSocketResponse is for responses to WebSocket requests.
type WebSocketResponse struct {
	ID      string `json:"id,omitempty"`
	Type    string `json:"type"`
	Success bool   `json:"success"`
	Payload any    `json:"payload,omitempty"`
	Error   string `json:"error,omitempty"`
}

// SessionPayload is sent once when a client connects.
type SessionPayload struct {
	SessionID string `json:"sessionId"`
	Version   string `json:"version"`
	Backend   string `json:"backend,omitempty"`
}

// AvailabilityPayload answers getNFCAvailability.
type AvailabilityPayload struct {
	Availability string `json:"availability"` // "available", "disabled" or "not_supported"
}

// TransceivePayload carries the response APDU. Data mirrors the request
// encoding: a hex string for hex requests, a byte array otherwise.
type TransceivePayload struct {
	Data any `json:"data"`
}

// InitializationBytesPayload answers getInitializationBytes.
type InitializationBytesPayload struct {
	HistoricalBytes string `json:"historicalBytes"` // Uppercase hex
}

// NDEFRecordPayload is one NDEF record. Identifier, Payload and Type are
// uppercase hex; TypeNameFormat is a name such as "nfcWellKnown".
type NDEFRecordPayload struct {
	Identifier     string `json:"identifier"`
	Payload        string `json:"payload"`
	Type           string `json:"type"`
	TypeNameFormat string `json:"typeNameFormat"`
}

// NDEFPayload answers readNDEF.
type NDEFPayload struct {
	Records []NDEFRecordPayload `json:"records"`
}

// BlockPayload answers readBlock with 16 bytes of uppercase hex.
type BlockPayload struct {
	Data string `json:"data"`
}

// SectorPayload answers readSector, one hex string per block.
type SectorPayload struct {
	Blocks []string `json:"blocks"`
}

// ReadAllPayload answers readAll, keyed by sector (Classic) or page (Ultralight).
type ReadAllPayload struct {
	Data map[int][]string `json:"data"`
}

// ErrorPayload is the payload of an error response.
type ErrorPayload struct {
	Code    string `json:"code"`
	Details string `json:"details,omitempty"`
}
