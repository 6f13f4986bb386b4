package nfc

import "time"

// Tag represents a contactless card detected by a Device.
//
// Example:
//
//	tags, _ := device.GetTags()
//	for _, tag := range tags {
//	    if isoDep, ok := tag.(IsoDep); ok {
//	        resp, _ := isoDep.Transceive(nfc.SelectFileByAIDAPDU(aid))
//	    }
//	}
type Tag interface {
	UID() string
	Type() string
	Technology() string
	Transceive(data []byte) ([]byte, error)
	Connect() error
	Disconnect() error
	Info() TagInfo
}

// IsoDep is an activated ISO 14443-4 (ISO-DEP) session with a card.
//
// It is the transport handle consumed by card-data parsers: a blocking
// command/response exchange plus the historical bytes the card reported
// when it was activated.
type IsoDep interface {
	Transceive(cmd []byte) ([]byte, error)
	HistoricalBytes() ([]byte, error)
}

// TimeoutSetter is implemented by tags whose backend supports a per-exchange timeout.
type TimeoutSetter interface {
	SetTimeout(timeout time.Duration)
}

// TagInfo describes a polled tag. Field names follow the poll result of the
// mobile NFC plugins so clients can share parsing code.
type TagInfo struct {
	Type            string `json:"type"`
	Standard        string `json:"standard"`
	ID              string `json:"id"`
	ATQA            string `json:"atqa"`
	SAK             string `json:"sak"`
	HistoricalBytes string `json:"historicalBytes"`
	HiLayerResponse string `json:"hiLayerResponse"`
	ProtocolInfo    string `json:"protocolInfo"`
	ApplicationData string `json:"applicationData"`
	Product         string `json:"product,omitempty"`
	Device          string `json:"device,omitempty"`
}
