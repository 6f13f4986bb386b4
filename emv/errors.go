package emv

// CommunicationError is returned by Provider.Transceive when the transport
// exchange fails. Message is the transport error's text, unchanged.
type CommunicationError struct {
	Message string
	cause   error
}

// NewCommunicationError wraps a transport failure, keeping its message.
func NewCommunicationError(cause error) *CommunicationError {
	return &CommunicationError{
		Message: cause.Error(),
		cause:   cause,
	}
}

func (e *CommunicationError) Error() string {
	return e.Message
}

// Unwrap exposes the transport error so callers can still test for tag loss.
func (e *CommunicationError) Unwrap() error {
	return e.cause
}
