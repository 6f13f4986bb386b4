package nfc

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/ebfe/scard"
)

// cardMonitorInterval bounds each wait for a reader state change.
const cardMonitorInterval = 500 * time.Millisecond

// pcscDevice implements Device using PC/SC via ebfe/scard.
// A pcscDevice exists only while a card is connected in its reader.
type pcscDevice struct {
	ctx        *scard.Context
	card       *scard.Card
	readerName string
	uid        string
	mu         sync.Mutex

	// Card presence tracking for reliable removal detection
	lastEventState scard.StateFlag // Last known EventState from GetStatusChange

	// Background monitoring for card removal
	stopMonitor chan struct{} // Signals the monitor goroutine to stop
	cardRemoved chan struct{} // Signals that card was removed (detected by monitor)

	// Tracks if an unsupported card was already reported for the current card
	unsupportedReported bool
}

// newPCSCDevice creates a new PC/SC device from a connected card
func newPCSCDevice(ctx *scard.Context, card *scard.Card, readerName string) (*pcscDevice, error) {
	// Validate protocol before any operations - the scard library panics on invalid protocol
	proto := card.ActiveProtocol()
	if proto != scard.ProtocolT0 && proto != scard.ProtocolT1 {
		return nil, fmt.Errorf("unsupported card protocol: %d", proto)
	}

	dev := &pcscDevice{
		ctx:        ctx,
		card:       card,
		readerName: readerName,
	}

	readerStates := []scard.ReaderState{
		{Reader: readerName, CurrentState: scard.StateUnaware},
	}
	if err := ctx.GetStatusChange(readerStates, 0); err == nil {
		dev.lastEventState = readerStates[0].EventState & ^scard.StateChanged
	}

	uid, err := dev.getUID()
	if err != nil {
		log.Printf("Warning: could not get UID: %v", err)
	} else {
		dev.uid = uid
	}

	dev.startCardMonitor()

	return dev, nil
}

func (d *pcscDevice) Close() error {
	// Stop the background monitor first (outside the lock to avoid deadlock)
	d.stopCardMonitor()

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.card != nil {
		err := d.card.Disconnect(scard.LeaveCard)
		d.card = nil
		return err
	}
	return nil
}

// startCardMonitor starts a background goroutine that watches the reader for card removal.
func (d *pcscDevice) startCardMonitor() {
	d.stopMonitor = make(chan struct{})
	d.cardRemoved = make(chan struct{}, 1)

	go func() {
		d.mu.Lock()
		readerStates := []scard.ReaderState{
			{Reader: d.readerName, CurrentState: d.lastEventState},
		}
		ctx := d.ctx
		d.mu.Unlock()

		if ctx == nil {
			return
		}

		for {
			select {
			case <-d.stopMonitor:
				return
			default:
			}

			// Timeout allows checking stopMonitor periodically
			err := ctx.GetStatusChange(readerStates, cardMonitorInterval)
			if err != nil {
				if errors.Is(err, scard.ErrCancelled) {
					return
				}
				if strings.Contains(strings.ToLower(err.Error()), "timeout") {
					continue
				}
				log.Printf("cardMonitor: error %v, treating as removal", err)
				d.signalRemoval()
				return
			}

			eventState := readerStates[0].EventState
			if (eventState & scard.StateEmpty) != 0 {
				d.signalRemoval()
				return
			}

			readerStates[0].CurrentState = eventState & ^scard.StateChanged
		}
	}()
}

func (d *pcscDevice) signalRemoval() {
	select {
	case d.cardRemoved <- struct{}{}:
	default:
	}
}

// stopCardMonitor stops the background card removal monitor
func (d *pcscDevice) stopCardMonitor() {
	if d.stopMonitor != nil {
		close(d.stopMonitor)
		d.stopMonitor = nil
	}
}

// removedByMonitor reports whether the background monitor saw the card leave.
func (d *pcscDevice) removedByMonitor() bool {
	if d.cardRemoved == nil {
		return false
	}
	select {
	case <-d.cardRemoved:
		// Keep the signal for later callers
		d.signalRemoval()
		return true
	default:
		return false
	}
}

func (d *pcscDevice) String() string {
	return d.readerName
}

func (d *pcscDevice) Connection() string {
	return d.readerName
}

// DeviceType returns the device type identifier (implements DeviceInfoProvider)
func (d *pcscDevice) DeviceType() string {
	return "pcsc"
}

// InitiatorInit is a no-op: the PC/SC reader handles RF configuration itself.
func (d *pcscDevice) InitiatorInit() error {
	return nil
}

// Transceive sends raw data to the card and returns the response.
// Card removal is detected via the background monitor and via transmit errors.
func (d *pcscDevice) Transceive(txData []byte) ([]byte, error) {
	if d.removedByMonitor() {
		return nil, NewCardRemovedError(fmt.Errorf("card removed (detected by monitor)"))
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.card == nil {
		return nil, NewCardRemovedError(fmt.Errorf("device not connected"))
	}

	// Validate protocol before transmit - the scard library panics on invalid protocol
	proto := d.card.ActiveProtocol()
	if proto != scard.ProtocolT0 && proto != scard.ProtocolT1 {
		return nil, NewCardRemovedError(fmt.Errorf("invalid card protocol"))
	}

	rxData, err := d.card.Transmit(txData)
	if err != nil {
		if isCardRemovedPCSCError(err) {
			return nil, NewCardRemovedError(err)
		}
		return nil, NewTransceiveError("pcscDevice.Transceive", err)
	}

	return rxData, nil
}

// ATR reads the current ATR from the reader.
func (d *pcscDevice) ATR() ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.card == nil {
		return nil, NewCardRemovedError(fmt.Errorf("device not connected"))
	}
	status, err := d.card.Status()
	if err != nil {
		if isCardRemovedPCSCError(err) {
			return nil, NewCardRemovedError(err)
		}
		return nil, fmt.Errorf("failed to get card status: %w", err)
	}
	return status.Atr, nil
}

// isCardRemovedPCSCError checks if a PC/SC error indicates the card was removed.
// Uses typed error checking first, with string matching fallback.
func isCardRemovedPCSCError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, scard.ErrRemovedCard) ||
		errors.Is(err, scard.ErrResetCard) ||
		errors.Is(err, scard.ErrNoSmartcard) ||
		errors.Is(err, scard.ErrUnpoweredCard) {
		return true
	}

	errLower := strings.ToLower(err.Error())
	return strings.Contains(errLower, "removed") ||
		strings.Contains(errLower, "reset") ||
		strings.Contains(errLower, "unpowered") ||
		strings.Contains(errLower, "no smart card")
}

// getUID retrieves the card UID using the GET DATA pseudo-APDU
func (d *pcscDevice) getUID() (string, error) {
	// GET UID: FF CA 00 00 00
	resp, err := d.card.Transmit(GetUIDAPDU())
	if err != nil {
		return "", fmt.Errorf("GET UID failed: %w", err)
	}

	parsed, err := ParseAPDUResponse(resp)
	if err != nil {
		return "", err
	}

	if !parsed.IsSuccess() {
		return "", parsed.Error()
	}

	return BytesToHex(parsed.Data), nil
}

// GetTags returns the connected card. ISO 14443-4 cards are returned as
// ISO14443Tag; MIFARE Classic and Ultralight storage cards are driven through
// the reader's storage card commands.
func (d *pcscDevice) GetTags() ([]Tag, error) {
	if d.removedByMonitor() {
		return nil, NewCardRemovedError(fmt.Errorf("card removed (detected by monitor)"))
	}

	atr, err := d.ATR()
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	var storageTag func(uid string) Tag
	if name, ok := storageCardName(atr); ok {
		storageTag = d.storageTagFactory(name)
		if storageTag == nil {
			// Report once per card session to avoid log spam while polling
			if !d.unsupportedReported {
				d.unsupportedReported = true
				log.Printf("Skipping unsupported storage card %04X in %s (ATR: %s)", name, d.readerName, BytesToHex(atr))
			}
			return nil, nil
		}
	} else if isStorageCardATR(atr) {
		if !d.unsupportedReported {
			d.unsupportedReported = true
			log.Printf("Skipping non ISO-DEP card in %s (ATR: %s)", d.readerName, BytesToHex(atr))
		}
		return nil, nil
	}

	if d.uid == "" {
		uid, err := d.getUID()
		if err != nil {
			return nil, fmt.Errorf("failed to get UID: %w", err)
		}
		d.uid = uid
	}

	if storageTag != nil {
		return []Tag{storageTag(d.uid)}, nil
	}
	return []Tag{newPCSCISO14443Tag(d, d.uid)}, nil
}

// storageTagFactory returns a constructor for the storage card with the given
// PC/SC card name, or nil when the card is not supported.
func (d *pcscDevice) storageTagFactory(name uint16) func(uid string) Tag {
	switch name {
	case cardNameMifareClassic1K, cardNameMifareClassic4K, cardNameMifareMini:
		sectors := Classic1KSectors
		switch name {
		case cardNameMifareClassic4K:
			sectors = Classic4KSectors
		case cardNameMifareMini:
			sectors = ClassicMiniSectors
		}
		return func(uid string) Tag {
			return newMifareClassicTag(d, &pcscClassicMemory{device: d}, uid, sectors)
		}
	case cardNameMifareUltralight, cardNameUltralightC:
		return func(uid string) Tag {
			return newMifareUltralightTag(d, &pcscPageMemory{device: d}, uid, name == cardNameUltralightC)
		}
	}
	return nil
}

// newPCSCISO14443Tag builds an ISO14443Tag whose historical bytes are read from the live ATR.
func newPCSCISO14443Tag(d *pcscDevice, uid string) *ISO14443Tag {
	return &ISO14443Tag{
		device: d,
		uid:    uid,
		historical: func() ([]byte, error) {
			atr, err := d.ATR()
			if err != nil {
				return nil, NewActivationError("HistoricalBytes", uid, err)
			}
			return HistoricalBytesFromATR(atr), nil
		},
		connected: true,
	}
}

// readerContainsPattern checks if reader name contains common NFC reader patterns
func readerContainsPattern(name string) bool {
	patterns := []string{
		"ACR", "ACS", "NFC", "PICC", "Contactless",
		"SCL", "HID", "Identiv", "CCID", "Dual",
	}
	upperName := strings.ToUpper(name)
	for _, p := range patterns {
		if strings.Contains(upperName, strings.ToUpper(p)) {
			return true
		}
	}
	return false
}

// filterContactlessReaders drops SAM slots and puts readers that look contactless first.
func filterContactlessReaders(readers []string) []string {
	var contactless, other []string
	for _, r := range readers {
		if strings.Contains(strings.ToUpper(r), "SAM") {
			continue
		}
		if readerContainsPattern(r) {
			contactless = append(contactless, r)
		} else {
			other = append(other, r)
		}
	}
	return append(contactless, other...)
}
