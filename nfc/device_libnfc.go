package nfc

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/clausecker/freefare"
	"github.com/clausecker/nfc/v2"
)

// maxFrameSize is the largest response a short APDU can produce (256 data bytes + SW1 SW2),
// rounded up to the PN53x frame buffer.
const maxFrameSize = 262

// libnfcDevice implements Device using an actual nfc.Device from libnfc.
type libnfcDevice struct {
	device nfc.Device
}

// NewDevice creates a new Device from an nfc.Device.
func NewDevice(dev nfc.Device) Device {
	return &libnfcDevice{device: dev}
}

func (d *libnfcDevice) Close() error {
	return d.device.Close()
}

func (d *libnfcDevice) InitiatorInit() error {
	return d.device.InitiatorInit()
}

func (d *libnfcDevice) String() string {
	return d.device.String()
}

func (d *libnfcDevice) Connection() string {
	return d.device.Connection()
}

// DeviceType returns the device type identifier (implements DeviceInfoProvider)
func (d *libnfcDevice) DeviceType() string {
	return "libnfc"
}

// Transceive exchanges a frame with the selected target without a timeout.
func (d *libnfcDevice) Transceive(txData []byte) ([]byte, error) {
	return d.transceive(txData, 0)
}

// TransceiveTimeout exchanges a frame with the selected target, giving up after timeout.
func (d *libnfcDevice) TransceiveTimeout(txData []byte, timeout time.Duration) ([]byte, error) {
	return d.transceive(txData, int(timeout/time.Millisecond))
}

func (d *libnfcDevice) transceive(txData []byte, timeoutMs int) ([]byte, error) {
	var rxData [maxFrameSize]byte
	count, err := d.device.InitiatorTransceiveBytes(txData, rxData[:], timeoutMs)
	if err != nil {
		return nil, classifyLibnfcError("libnfcDevice.Transceive", err)
	}
	resp := make([]byte, count)
	copy(resp, rxData[:count])
	return resp, nil
}

// classifyLibnfcError maps libnfc error codes onto the package error taxonomy.
func classifyLibnfcError(op string, err error) error {
	var nfcErr nfc.Error
	if errors.As(err, &nfcErr) {
		switch nfcErr {
		case nfc.ETGRELEASED, nfc.ERFTRANS:
			return NewTagRemovedError(op, err)
		case nfc.ETIMEOUT:
			return fmt.Errorf("%s: %w: %v", op, ErrTimeout, err)
		case nfc.EDEVNOTSUPP:
			return NewNotSupportedError(op)
		}
	}
	return NewTransceiveError(op, err)
}

// GetTags polls for an ISO-DEP card and activates it.
//
// freefare identifies MIFARE products first so the tag can be labelled, then
// ISO14443A targets are listed and the first one with SAK bit 6 (0x20,
// ISO 14443-4 compliant) is selected. When no ISO-DEP card is present the
// first MIFARE Classic or Ultralight card freefare found is returned.
func (d *libnfcDevice) GetTags() ([]Tag, error) {
	products := make(map[string]string)

	ffTags, ffErr := freefare.GetTags(d.device)
	if ffErr != nil {
		log.Printf("Error getting tags from freefare.GetTags: %v", ffErr)
	} else {
		for _, ffTag := range ffTags {
			uid := strings.ToUpper(ffTag.UID())
			switch ffTag.(type) {
			case freefare.DESFireTag:
				products[uid] = "MIFARE DESFire"
			case freefare.ClassicTag:
				products[uid] = "MIFARE Classic"
			case freefare.UltralightTag:
				products[uid] = "MIFARE Ultralight"
			default:
				products[uid] = fmt.Sprintf("%T", ffTag)
			}
		}
	}

	modulation := nfc.Modulation{Type: nfc.ISO14443a, BaudRate: nfc.Nbr106}
	targets, err := d.device.InitiatorListPassiveTargets(modulation)
	if err != nil {
		if ffErr != nil {
			return nil, fmt.Errorf("error from freefare (%v) AND passive targets (%w)", ffErr, err)
		}
		return nil, fmt.Errorf("listing passive targets: %w", err)
	}

	for _, target := range targets {
		isoATarget, ok := target.(*nfc.ISO14443aTarget)
		if !ok || isoATarget.UIDLen <= 0 || isoATarget.UIDLen > len(isoATarget.UID) {
			continue
		}
		uidBytes := isoATarget.UID[:isoATarget.UIDLen]
		uid := strings.ToUpper(hex.EncodeToString(uidBytes))

		if (isoATarget.Sak & 0x20) == 0 {
			log.Printf("Skipping non ISO-DEP tag: UID %s, SAK %02X (%s)", uid, isoATarget.Sak, products[uid])
			continue
		}

		selected, err := d.device.InitiatorSelectPassiveTarget(modulation, uidBytes)
		if err != nil {
			return nil, classifyLibnfcError("libnfcDevice.GetTags", err)
		}
		selectedA, ok := selected.(*nfc.ISO14443aTarget)
		if !ok {
			return nil, fmt.Errorf("selected target %s has unexpected type %T", uid, selected)
		}

		log.Printf("Activated ISO14443-4A tag: UID %s, SAK %02X", uid, selectedA.Sak)
		return []Tag{newLibnfcISO14443Tag(d, selectedA, products[uid])}, nil
	}

	for _, ffTag := range ffTags {
		uid := strings.ToUpper(ffTag.UID())
		switch t := ffTag.(type) {
		case freefare.ClassicTag:
			sectors := Classic1KSectors
			if t.Type() == freefare.Classic4k {
				sectors = Classic4KSectors
			}
			log.Printf("Found MIFARE Classic tag: UID %s", uid)
			return []Tag{newMifareClassicTag(d, t, uid, sectors)}, nil
		case freefare.UltralightTag:
			log.Printf("Found MIFARE Ultralight tag: UID %s", uid)
			return []Tag{newMifareUltralightTag(d, t, uid, t.Type() == freefare.UltralightC)}, nil
		}
	}

	return nil, nil
}

// newLibnfcISO14443Tag builds an ISO14443Tag from an activated libnfc target.
func newLibnfcISO14443Tag(d *libnfcDevice, target *nfc.ISO14443aTarget, product string) *ISO14443Tag {
	atsLen := target.AtsLen
	if atsLen < 0 || atsLen > len(target.Ats) {
		atsLen = 0
	}
	hist := HistoricalBytesFromATS(target.Ats[:atsLen])
	sak := target.Sak

	return &ISO14443Tag{
		device:  d,
		uid:     strings.ToUpper(hex.EncodeToString(target.UID[:target.UIDLen])),
		product: product,
		atqa:    []byte{target.Atqa[0], target.Atqa[1]},
		sak:     &sak,
		historical: func() ([]byte, error) {
			out := make([]byte, len(hist))
			copy(out, hist)
			return out, nil
		},
		connected: true,
	}
}
