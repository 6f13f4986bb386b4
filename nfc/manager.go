package nfc

import "fmt"

// Manager handles NFC device discovery.
//
// Example:
//
//	manager := nfc.NewManager()
//	devices, _ := manager.ListDevices()
//	device, _ := manager.OpenDevice(devices[0])
//	tags, _ := device.GetTags()
type Manager interface {
	OpenDevice(deviceStr string) (Device, error)
	ListDevices() ([]string, error)
}

// Backend names accepted by NewManagerForBackend.
const (
	BackendLibnfc = "libnfc"
	BackendPCSC   = "pcsc"
)

// NewManager creates a new Manager using the default libnfc/freefare implementation.
func NewManager() Manager {
	return &defaultManager{}
}

// NewPCSCManager creates a Manager backed by the system PC/SC service.
func NewPCSCManager() Manager {
	return newPCSCManager()
}

// NewManagerForBackend returns the Manager for a backend name.
func NewManagerForBackend(name string) (Manager, error) {
	switch name {
	case "", BackendLibnfc:
		return NewManager(), nil
	case BackendPCSC:
		return NewPCSCManager(), nil
	default:
		return nil, fmt.Errorf("unknown NFC backend %q (want %q or %q)", name, BackendLibnfc, BackendPCSC)
	}
}
