package nfc

import "sync"

// MockIsoDep is a test implementation of IsoDep.
type MockIsoDep struct {
	// TransceiveFunc, if set, handles every exchange
	TransceiveFunc func([]byte) ([]byte, error)

	// TransceiveResponse is returned when TransceiveFunc is nil and TransceiveError is unset
	TransceiveResponse []byte

	// TransceiveError, if set, will be returned by Transceive()
	TransceiveError error

	// Historical is returned by HistoricalBytes()
	Historical []byte

	// HistoricalError, if set, will be returned by HistoricalBytes()
	HistoricalError error

	// Commands records every command passed to Transceive
	Commands [][]byte

	mu sync.Mutex
}

// Transceive records cmd and returns the configured response.
func (m *MockIsoDep) Transceive(cmd []byte) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Commands = append(m.Commands, cmd)

	if m.TransceiveFunc != nil {
		return m.TransceiveFunc(cmd)
	}
	if m.TransceiveError != nil {
		return nil, m.TransceiveError
	}
	return m.TransceiveResponse, nil
}

// HistoricalBytes returns the configured historical bytes.
func (m *MockIsoDep) HistoricalBytes() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.HistoricalError != nil {
		return nil, m.HistoricalError
	}
	return m.Historical, nil
}
