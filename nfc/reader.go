package nfc

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// Reader owns a device opened through a Manager and the tag polled on it.
//
// Poll, Current and Finish are safe for concurrent use; Poll holds the reader
// until it returns. Tags handed out are only valid until the next Finish or Poll.
type Reader struct {
	manager      Manager
	deviceStr    string
	pollInterval time.Duration

	mu     sync.Mutex
	device Device
	tag    Tag
}

// NewReader creates a Reader for deviceStr ("" selects the first device).
func NewReader(manager Manager, deviceStr string) (*Reader, error) {
	if manager == nil {
		return nil, fmt.Errorf("NFCManager cannot be nil")
	}
	return &Reader{
		manager:      manager,
		deviceStr:    deviceStr,
		pollInterval: DefaultPollingInterval,
	}, nil
}

// SetPollInterval changes the delay between polling attempts.
func (r *Reader) SetPollInterval(interval time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if interval > 0 {
		r.pollInterval = interval
	}
}

// Availability reports whether any device can be used: "available" when one
// is, "disabled" when devices cannot be listed, "not_supported" when none exist.
func (r *Reader) Availability() string {
	// A Poll in progress holds the lock and is using a device
	if !r.mu.TryLock() {
		return AvailabilityAvailable
	}
	hasDevice := r.device != nil
	r.mu.Unlock()
	if hasDevice {
		return AvailabilityAvailable
	}

	devices, err := r.manager.ListDevices()
	if err != nil {
		// The reader service or driver exists but cannot be reached
		log.Printf("Listing devices failed: %v", err)
		return AvailabilityDisabled
	}
	if len(devices) == 0 {
		return AvailabilityNotSupported
	}
	return AvailabilityAvailable
}

// Poll waits until a tag is connected, ctx is done, or timeout elapses.
// Any previously polled tag is released first. ISO-DEP tags are preferred
// over memory cards in the field at the same time.
func (r *Reader) Poll(ctx context.Context, timeout time.Duration) (Tag, error) {
	if timeout <= 0 {
		timeout = DefaultPollTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.releaseTagLocked()

	for {
		tag, err := r.pollOnceLocked()
		if err != nil {
			return nil, err
		}
		if tag != nil {
			r.tag = tag
			log.Printf("Polled tag UID %s on %s", tag.UID(), r.deviceName())
			return tag, nil
		}

		select {
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				return nil, ErrPollTimeout
			}
			return nil, ctx.Err()
		case <-time.After(r.pollInterval):
		}
	}
}

// pollOnceLocked makes one attempt to find a tag. A nil tag with a nil error
// means the caller should retry. Caller must hold r.mu.
func (r *Reader) pollOnceLocked() (Tag, error) {
	if r.device == nil {
		dev, err := r.manager.OpenDevice(r.deviceStr)
		if err != nil {
			if IsNoCardError(err) {
				return nil, nil
			}
			return nil, fmt.Errorf("failed to open NFC device: %w", err)
		}
		r.device = dev
	}

	tags, err := r.device.GetTags()
	if err != nil {
		if IsCardRemovedError(err) || IsTagRemovedError(err) || IsNoCardError(err) || IsDeviceClosedError(err) {
			// Card-bound backends (PC/SC) need a fresh connection for the next card
			r.closeDeviceLocked()
			return nil, nil
		}
		if IsTimeoutError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get tags: %w", err)
	}

	if len(tags) == 0 {
		return nil, nil
	}
	selected := tags[0]
	for _, tag := range tags {
		if _, ok := tag.(ActiveTag); ok {
			selected = tag
			break
		}
	}
	for _, tag := range tags {
		if tag != selected {
			log.Printf("Ignoring tag %s (%s)", tag.UID(), tag.Type())
		}
	}
	if err := selected.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect tag %s: %w", selected.UID(), err)
	}
	return selected, nil
}

// Current returns the polled tag or ErrNoTag.
func (r *Reader) Current() (Tag, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tag == nil {
		return nil, ErrNoTag
	}
	return r.tag, nil
}

// Finish releases the polled tag and closes the device.
func (r *Reader) Finish() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.releaseTagLocked()
	return r.closeDeviceLocked()
}

// Close is an alias for Finish.
func (r *Reader) Close() error {
	return r.Finish()
}

func (r *Reader) releaseTagLocked() {
	if r.tag == nil {
		return
	}
	if err := r.tag.Disconnect(); err != nil {
		log.Printf("Close tag error: %v", err)
	}
	r.tag = nil
}

func (r *Reader) closeDeviceLocked() error {
	if r.device == nil {
		return nil
	}
	err := r.device.Close()
	r.device = nil
	return err
}

func (r *Reader) deviceName() string {
	if r.device == nil {
		return "<none>"
	}
	if info, ok := r.device.(DeviceInfoProvider); ok {
		return r.device.String() + " (" + info.DeviceType() + ")"
	}
	return r.device.String()
}
