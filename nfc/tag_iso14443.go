package nfc

import (
	"fmt"
	"log"
	"sync"
	"time"
)

// Tag type and standard labels reported in TagInfo.
const (
	TagTypeISO7816    = "iso7816"
	StandardISO14443A = "ISO 14443-4 (Type A)"
)

// ActiveTag is an activated ISO-DEP tag.
type ActiveTag interface {
	Tag
	IsoDep
}

// ISO14443Tag is an activated ISO 14443-4 Type A card.
//
// It implements IsoDep on top of the Device that selected it. Historical
// bytes come from the ATS (libnfc) or from the reader-built ATR (PC/SC).
// Only Type A is handled; Type B higher-layer responses are not collected.
type ISO14443Tag struct {
	device     Device
	uid        string
	product    string // Chip family when known, e.g. "MIFARE DESFire"
	atqa       []byte
	sak        *byte
	historical func() ([]byte, error)
	timeout    time.Duration
	connected  bool
	mu         sync.Mutex
}

// NewISO14443Tag creates an ISO-DEP tag bound to device with fixed historical bytes.
func NewISO14443Tag(device Device, uid string, historicalBytes []byte) *ISO14443Tag {
	hist := make([]byte, len(historicalBytes))
	copy(hist, historicalBytes)
	return &ISO14443Tag{
		device: device,
		uid:    uid,
		historical: func() ([]byte, error) {
			return hist, nil
		},
		connected: true,
	}
}

// UID returns the tag UID as uppercase hex.
func (t *ISO14443Tag) UID() string {
	return t.uid
}

// Type returns the tag family, always "iso7816" for ISO-DEP tags.
func (t *ISO14443Tag) Type() string {
	return TagTypeISO7816
}

// Technology returns the radio standard.
func (t *ISO14443Tag) Technology() string {
	return StandardISO14443A
}

// Connect marks the tag as usable. Activation already happened when the device selected it.
func (t *ISO14443Tag) Connect() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = true
	return nil
}

// Disconnect stops further exchanges on this tag. The device is left open.
func (t *ISO14443Tag) Disconnect() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = false
	return nil
}

// SetTimeout sets the timeout used for subsequent exchanges when the device supports it.
func (t *ISO14443Tag) SetTimeout(timeout time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.timeout = timeout
}

// timedTransceiver is implemented by devices that accept a per-exchange timeout.
type timedTransceiver interface {
	TransceiveTimeout(txData []byte, timeout time.Duration) ([]byte, error)
}

// Transceive sends a raw APDU to the card and returns the raw response, status word included.
func (t *ISO14443Tag) Transceive(txData []byte) ([]byte, error) {
	t.mu.Lock()
	connected := t.connected
	timeout := t.timeout
	t.mu.Unlock()

	if t.device == nil {
		return nil, fmt.Errorf("no device available for transceive operation on tag %s", t.uid)
	}
	if !connected {
		return nil, NewNotConnectedError("Transceive", t.uid)
	}
	// Both backends hand the first byte's address to C.
	if len(txData) == 0 {
		return nil, Errorf(ErrCodeInvalidData, "Transceive", "empty command")
	}

	var (
		resp []byte
		err  error
	)
	if timed, ok := t.device.(timedTransceiver); ok && timeout > 0 {
		resp, err = timed.TransceiveTimeout(txData, timeout)
	} else {
		resp, err = t.device.Transceive(txData)
	}
	if err != nil {
		log.Printf("ISO14443Tag UID %s Transceive Error: %v", t.uid, err)
		return nil, err
	}
	return resp, nil
}

// HistoricalBytes returns the historical bytes the card reported on activation.
func (t *ISO14443Tag) HistoricalBytes() ([]byte, error) {
	if t.historical == nil {
		return []byte{}, nil
	}
	return t.historical()
}

// Info describes the tag in the poll result format.
func (t *ISO14443Tag) Info() TagInfo {
	info := TagInfo{
		Type:     TagTypeISO7816,
		Standard: StandardISO14443A,
		ID:       t.uid,
		ATQA:     BytesToHex(t.atqa),
		Product:  t.product,
	}
	if t.sak != nil {
		info.SAK = BytesToHex([]byte{*t.sak})
	}
	if hist, err := t.HistoricalBytes(); err == nil {
		info.HistoricalBytes = BytesToHex(hist)
	} else {
		log.Printf("ISO14443Tag UID %s: historical bytes unavailable: %v", t.uid, err)
	}
	if t.device != nil {
		info.Device = t.device.String()
	}
	return info
}
