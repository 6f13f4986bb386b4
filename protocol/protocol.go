// Package protocol provides the WebSocket message types of the EMV bridge.
// This package is designed to be importable without pulling in server dependencies.
package protocol

// Error codes carried in ErrorPayload.Code. They follow the numeric codes of
// the mobile NFC plugin method channel.
const (
	ErrCodeBadArgument   = "400" // Missing or malformed request data
	ErrCodeUnavailable   = "404" // No usable reader
	ErrCodeNotSupported  = "405" // Operation not supported by the polled tag
	ErrCodeNoTag         = "406" // No tag polled
	ErrCodePollTimeout   = "408" // Polling tag timeout
	ErrCodeCommunication = "500" // Communication error with the tag or reader
	ErrCodeReadBlock     = "501" // readBlock failed
	ErrCodeReadSector    = "502" // readSector failed
	ErrCodeReadAll       = "503" // readAll failed
	ErrCodeWriteBlock    = "504" // writeBlock failed
	ErrCodeUnknownType   = "UNKNOWN_TYPE"
	ErrCodeParseError    = "PARSE_ERROR"
	ErrCodeSessionClosed = "SESSION_CLOSED"
)

// Error messages paired with the codes above.
const (
	MsgBadArgument        = "Bad argument"
	MsgCommandFormatError = "Command format error"
	MsgUnavailable        = "NFC not available"
	MsgNotSupported       = "Transceive not supported for this type of card"
	MsgNoTag              = "No tag polled"
	MsgPollTimeout        = "Polling tag timeout"
	MsgCommunicationError = "Communication error"
	MsgInvalidFormat      = "Invalid message format"
	MsgSessionClosed      = "Session is no longer active"

	MsgInitBytesNotSupported = "Initialization bytes not available for this type of card"
	MsgNDEFFormatError       = "NDEF format error"
	MsgNDEFNotSupported      = "NDEF not supported on current tag"
	MsgNotWritable           = "Tag not writable"
	MsgLockFailed            = "Failed to lock NDEF tag"
	MsgMifareNotSupported    = "Block access not supported on current tag"
)
