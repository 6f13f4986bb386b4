package nfc

import (
	"errors"
	"fmt"
	"testing"
)

func TestNewManagerForBackend(t *testing.T) {
	tests := []struct {
		name    string
		backend string
		wantErr bool
	}{
		{name: "default", backend: ""},
		{name: "libnfc", backend: BackendLibnfc},
		{name: "pcsc", backend: BackendPCSC},
		{name: "unknown", backend: "bluetooth", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			manager, err := NewManagerForBackend(tt.backend)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewManagerForBackend(%q) error = %v, wantErr %v", tt.backend, err, tt.wantErr)
			}
			if !tt.wantErr && manager == nil {
				t.Errorf("NewManagerForBackend(%q) = nil", tt.backend)
			}
		})
	}
}

func TestFilterContactlessReaders(t *testing.T) {
	readers := []string{
		"Generic Smart Card Reader 00 00",
		"ACS ACR1252 1S CL Reader PICC 0",
		"ACS ACR1252 1S CL Reader SAM 0",
		"Identiv uTrust 3700 F CL Reader 0",
	}

	got := filterContactlessReaders(readers)
	want := []string{
		"ACS ACR1252 1S CL Reader PICC 0",
		"Identiv uTrust 3700 F CL Reader 0",
		"Generic Smart Card Reader 00 00",
	}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("filterContactlessReaders() = %q, want %q", got, want)
	}
}

func TestMockManager_ListDevices(t *testing.T) {
	manager := NewMockManager()
	manager.DevicesList = []string{"pn532_uart:/dev/ttyUSB0", "acr122_usb:001:004"}

	devices, err := manager.ListDevices()
	if err != nil {
		t.Fatalf("ListDevices() error = %v", err)
	}
	if len(devices) != 2 {
		t.Errorf("ListDevices() returned %d devices, want 2", len(devices))
	}

	manager.ListDevicesError = errors.New("libnfc unavailable")
	if _, err := manager.ListDevices(); err == nil {
		t.Error("ListDevices() error = nil, want ListDevicesError")
	}
}

func TestMockManager_OpenDevice(t *testing.T) {
	manager := NewMockManager()

	device, err := manager.OpenDevice("acr122_usb:001:004")
	if err != nil {
		t.Fatalf("OpenDevice() error = %v", err)
	}
	if device.Connection() != "acr122_usb:001:004" {
		t.Errorf("Connection() = %q, want %q", device.Connection(), "acr122_usb:001:004")
	}

	// A closed device is reopened for the next caller
	device.Close()
	device, _ = manager.OpenDevice("")
	if err := device.InitiatorInit(); err != nil {
		t.Errorf("InitiatorInit() on reopened device error = %v", err)
	}

	manager.OpenDeviceError = errors.New("no NFC devices found")
	if _, err := manager.OpenDevice(""); err == nil {
		t.Error("OpenDevice() error = nil, want OpenDeviceError")
	}

	want := []string{"OpenDevice(acr122_usb:001:004)", "OpenDevice()", "OpenDevice()"}
	if got := manager.GetCallLog(); fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("GetCallLog() = %v, want %v", got, want)
	}
}
