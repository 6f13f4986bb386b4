package emv

import (
	"reflect"

	"github.com/dotside-studios/davi-emv-bridge/nfc"
)

// Provider is the transport capability an EMV parser drives.
type Provider interface {
	// Transceive sends a fully framed command and returns the card's response.
	// Transport failures are reported as *CommunicationError.
	Transceive(cmd []byte) ([]byte, error)

	// InitializationBytes returns the historical bytes from card activation.
	InitializationBytes() ([]byte, error)
}

// IsoDepProvider implements Provider over a borrowed nfc.IsoDep.
//
// The provider never opens, closes or otherwise manages the handle; it must
// not outlive it. It adds no locking: concurrent use is as safe as the
// handle's own Transceive.
type IsoDepProvider struct {
	isoDep nfc.IsoDep
}

var _ Provider = (*IsoDepProvider)(nil)

// NewProvider returns a Provider forwarding to isoDep. isoDep may be nil,
// including a nil pointer of a concrete handle type.
func NewProvider(isoDep nfc.IsoDep) *IsoDepProvider {
	if isNilHandle(isoDep) {
		isoDep = nil
	}
	return &IsoDepProvider{isoDep: isoDep}
}

// isNilHandle reports whether isoDep is nil or an interface holding a nil value.
func isNilHandle(isoDep nfc.IsoDep) bool {
	if isoDep == nil {
		return true
	}
	v := reflect.ValueOf(isoDep)
	switch v.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return v.IsNil()
	}
	return false
}

// Transceive forwards cmd verbatim and returns the response unmodified.
//
// Without a handle it returns an empty response and no error. A transport
// error is replaced by a *CommunicationError carrying the same message. The
// exchange is attempted once.
func (p *IsoDepProvider) Transceive(cmd []byte) ([]byte, error) {
	if p.isoDep == nil {
		return []byte{}, nil
	}

	resp, err := p.isoDep.Transceive(cmd)
	if err != nil {
		return nil, NewCommunicationError(err)
	}
	return resp, nil
}

// InitializationBytes returns the handle's historical bytes. Errors from the
// handle are returned as is.
//
// Only Type A historical bytes are returned; a Type B card's higher-layer
// response is not consulted. Unlike Transceive there is no nil-handle
// fallback: calling this without a handle panics.
func (p *IsoDepProvider) InitializationBytes() ([]byte, error) {
	return p.isoDep.HistoricalBytes()
}
