package nfc

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ebfe/scard"
)

// pcscManager implements Manager using PC/SC via ebfe/scard
type pcscManager struct {
	ctx   *scard.Context
	ctxMu sync.Mutex
}

// newPCSCManager creates a new PC/SC manager
func newPCSCManager() *pcscManager {
	return &pcscManager{}
}

// ensureContext ensures we have a valid PC/SC context
func (m *pcscManager) ensureContext() error {
	m.ctxMu.Lock()
	defer m.ctxMu.Unlock()

	if m.ctx != nil {
		// A context that can still list readers is valid
		if _, err := m.ctx.ListReaders(); err == nil {
			return nil
		}
		m.ctx.Release()
		m.ctx = nil
	}

	ctx, err := scard.EstablishContext()
	if err != nil {
		return fmt.Errorf("failed to establish PC/SC context: %w", err)
	}
	m.ctx = ctx
	return nil
}

// OpenDevice connects to the card in a reader. It returns a no-card error
// when the reader is empty so pollers can retry.
func (m *pcscManager) OpenDevice(deviceStr string) (Device, error) {
	if err := m.ensureContext(); err != nil {
		return nil, err
	}

	m.ctxMu.Lock()
	ctx := m.ctx
	m.ctxMu.Unlock()

	readerName := deviceStr
	if readerName == "" {
		readers, err := ctx.ListReaders()
		if err != nil {
			return nil, fmt.Errorf("failed to list readers: %w", err)
		}

		readers = filterContactlessReaders(readers)
		if len(readers) == 0 {
			return nil, fmt.Errorf("no PC/SC readers found")
		}

		readerName = readers[0]
	}

	// Check presence first so Connect() does not block on an empty reader
	cardPresent, err := m.isCardPresent(ctx, readerName)
	if err != nil {
		return nil, fmt.Errorf("failed to check card presence: %w", err)
	}
	if !cardPresent {
		return nil, &noCardError{ReaderName: readerName}
	}

	card, err := ctx.Connect(readerName, scard.ShareShared, scard.ProtocolAny)
	if err != nil {
		if IsNoCardError(err) || strings.Contains(strings.ToLower(err.Error()), "card not present") {
			return nil, &noCardError{ReaderName: readerName}
		}
		return nil, fmt.Errorf("failed to connect to reader %s: %w", readerName, err)
	}

	dev, err := newPCSCDevice(ctx, card, readerName)
	if err != nil {
		card.Disconnect(scard.LeaveCard)
		return nil, fmt.Errorf("failed to initialize device: %w", err)
	}

	return dev, nil
}

// isCardPresent checks the reader state without waiting.
func (m *pcscManager) isCardPresent(ctx *scard.Context, readerName string) (bool, error) {
	readerStates := []scard.ReaderState{
		{
			Reader:       readerName,
			CurrentState: scard.StateUnaware,
		},
	}

	err := ctx.GetStatusChange(readerStates, 0)
	if err != nil {
		// Timeout is expected - it means no state change, check current state
		if !strings.Contains(strings.ToLower(err.Error()), "timeout") {
			return false, err
		}
	}

	return (readerStates[0].EventState & scard.StatePresent) != 0, nil
}

// ListDevices lists available PC/SC readers
func (m *pcscManager) ListDevices() ([]string, error) {
	var lastErr error

	for i := 0; i < DeviceEnumRetries; i++ {
		if err := m.ensureContext(); err != nil {
			lastErr = err
			time.Sleep(time.Millisecond * 100)
			continue
		}

		m.ctxMu.Lock()
		ctx := m.ctx
		m.ctxMu.Unlock()

		readers, err := ctx.ListReaders()
		if err != nil {
			lastErr = err
			time.Sleep(time.Millisecond * 100)
			continue
		}

		return filterContactlessReaders(readers), nil
	}

	return nil, fmt.Errorf("failed to list PC/SC readers after %d retries: %w", DeviceEnumRetries, lastErr)
}

// Release releases the PC/SC context
func (m *pcscManager) Release() error {
	m.ctxMu.Lock()
	defer m.ctxMu.Unlock()

	if m.ctx != nil {
		err := m.ctx.Release()
		m.ctx = nil
		return err
	}
	return nil
}
