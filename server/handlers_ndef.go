package server

import (
	"context"
	"fmt"
	"log"

	"github.com/dotside-studios/davi-emv-bridge/nfc"
	"github.com/dotside-studios/davi-emv-bridge/protocol"
	"github.com/gorilla/websocket"
)

// NDEFHandler reads and writes NDEF messages on the polled tag.
type NDEFHandler struct {
	reader *nfc.Reader
}

// NewNDEFHandler creates a new NDEF handler.
func NewNDEFHandler(reader *nfc.Reader) *NDEFHandler {
	return &NDEFHandler{reader: reader}
}

// Register implements ServerHandler interface.
func (h *NDEFHandler) Register(server HandlerServer) {
	server.Handle(protocol.WSTypeReadNDEF, h.handleReadNDEF)
	server.Handle(protocol.WSTypeWriteNDEF, h.handleWriteNDEF)
	server.Handle(protocol.WSTypeMakeNdefReadOnly, h.handleMakeReadOnly)
}

// currentNDEFTag answers with an error and returns nil when no NDEF capable tag is polled.
func (h *NDEFHandler) currentNDEFTag(conn *websocket.Conn, req protocol.WebSocketRequest) (nfc.NDEFTag, error) {
	tag, err := h.reader.Current()
	if err != nil {
		return nil, sendErrorResponse(conn, req.ID, protocol.ErrCodeNoTag, protocol.MsgNoTag, "")
	}
	ndefTag, ok := tag.(nfc.NDEFTag)
	if !ok {
		return nil, sendErrorResponse(conn, req.ID, protocol.ErrCodeNotSupported, protocol.MsgNDEFNotSupported, "")
	}
	return ndefTag, nil
}

func (h *NDEFHandler) handleReadNDEF(ctx context.Context, conn *websocket.Conn, req protocol.WebSocketRequest) error {
	cached := false
	if raw, ok := req.Payload["cached"]; ok && raw != nil {
		b, isBool := raw.(bool)
		if !isBool {
			return sendErrorResponse(conn, req.ID, protocol.ErrCodeBadArgument, protocol.MsgBadArgument, "cached must be a boolean")
		}
		cached = b
	}

	tag, err := h.currentNDEFTag(conn, req)
	if tag == nil {
		return err
	}

	records, err := tag.ReadNDEF(cached)
	if err != nil {
		log.Printf("Read NDEF error: %v", err)
		return sendNDEFError(conn, req.ID, err)
	}

	return sendResponse(conn, req, protocol.NDEFPayload{Records: recordsToPayload(records)})
}

func (h *NDEFHandler) handleWriteNDEF(ctx context.Context, conn *websocket.Conn, req protocol.WebSocketRequest) error {
	raw, ok := req.Payload["data"]
	if !ok || raw == nil {
		return sendErrorResponse(conn, req.ID, protocol.ErrCodeBadArgument, protocol.MsgBadArgument, "")
	}
	decoded, err := protocol.DecodeNDEFRecords(raw)
	if err != nil {
		return sendErrorResponse(conn, req.ID, protocol.ErrCodeBadArgument, protocol.MsgNDEFFormatError, err.Error())
	}
	records, err := payloadToRecords(decoded)
	if err != nil {
		return sendErrorResponse(conn, req.ID, protocol.ErrCodeBadArgument, protocol.MsgNDEFFormatError, err.Error())
	}

	tag, err := h.currentNDEFTag(conn, req)
	if tag == nil {
		return err
	}

	if err := tag.WriteNDEF(records); err != nil {
		log.Printf("Write NDEF error: %v", err)
		return sendNDEFError(conn, req.ID, err)
	}
	return sendResponse(conn, req, struct{}{})
}

func (h *NDEFHandler) handleMakeReadOnly(ctx context.Context, conn *websocket.Conn, req protocol.WebSocketRequest) error {
	tag, err := h.currentNDEFTag(conn, req)
	if tag == nil {
		return err
	}

	writable, err := tag.IsWritable()
	if err != nil {
		log.Printf("NDEF writable check error: %v", err)
		return sendNDEFError(conn, req.ID, err)
	}
	if !writable {
		return sendErrorResponse(conn, req.ID, protocol.ErrCodeNotSupported, protocol.MsgNotWritable, "")
	}

	if err := tag.MakeReadOnly(); err != nil {
		log.Printf("Make read-only error: %v", err)
		if nfc.GetErrorCode(err) == nfc.ErrCodeNDEFUnsupported {
			return sendNDEFError(conn, req.ID, err)
		}
		return sendErrorResponse(conn, req.ID, protocol.ErrCodeCommunication, protocol.MsgLockFailed, err.Error())
	}
	return sendResponse(conn, req, struct{}{})
}

// sendNDEFError maps an NDEF operation error to its method channel code.
func sendNDEFError(conn *websocket.Conn, requestID string, err error) error {
	switch nfc.GetErrorCode(err) {
	case nfc.ErrCodeNDEFUnsupported:
		return sendErrorResponse(conn, requestID, protocol.ErrCodeNotSupported, protocol.MsgNDEFNotSupported, "")
	case nfc.ErrCodeReadOnly:
		return sendErrorResponse(conn, requestID, protocol.ErrCodeNotSupported, protocol.MsgNotWritable, "")
	case nfc.ErrCodeNDEFFormat, nfc.ErrCodeInvalidData:
		return sendErrorResponse(conn, requestID, protocol.ErrCodeBadArgument, protocol.MsgNDEFFormatError, err.Error())
	}
	return sendErrorResponse(conn, requestID, protocol.ErrCodeCommunication, protocol.MsgCommunicationError, err.Error())
}

func recordsToPayload(records []nfc.NDEFRecord) []protocol.NDEFRecordPayload {
	out := make([]protocol.NDEFRecordPayload, 0, len(records))
	for _, r := range records {
		out = append(out, protocol.NDEFRecordPayload{
			Identifier:     nfc.BytesToHex(r.ID),
			Payload:        nfc.BytesToHex(r.Payload),
			Type:           nfc.BytesToHex(r.Type),
			TypeNameFormat: nfc.TNFName(r.TNF),
		})
	}
	return out
}

func payloadToRecords(payload []protocol.NDEFRecordPayload) ([]nfc.NDEFRecord, error) {
	out := make([]nfc.NDEFRecord, 0, len(payload))
	for i, p := range payload {
		id, err := nfc.HexToBytes(p.Identifier)
		if err != nil {
			return nil, fmt.Errorf("record %d identifier: %w", i, err)
		}
		data, err := nfc.HexToBytes(p.Payload)
		if err != nil {
			return nil, fmt.Errorf("record %d payload: %w", i, err)
		}
		typ, err := nfc.HexToBytes(p.Type)
		if err != nil {
			return nil, fmt.Errorf("record %d type: %w", i, err)
		}
		out = append(out, nfc.NDEFRecord{
			TNF:     nfc.ParseTNFName(p.TypeNameFormat),
			Type:    typ,
			ID:      id,
			Payload: data,
		})
	}
	return out, nil
}
