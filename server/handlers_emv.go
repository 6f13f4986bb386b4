package server

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/dotside-studios/davi-emv-bridge/emv"
	"github.com/dotside-studios/davi-emv-bridge/nfc"
	"github.com/dotside-studios/davi-emv-bridge/protocol"
	"github.com/gorilla/websocket"
)

// EMVHandler exposes the reader and the EMV transport adapter over the method channel.
type EMVHandler struct {
	reader *nfc.Reader
}

// NewEMVHandler creates a new EMV handler.
func NewEMVHandler(reader *nfc.Reader) *EMVHandler {
	return &EMVHandler{reader: reader}
}

// Register implements ServerHandler interface.
func (h *EMVHandler) Register(server HandlerServer) {
	server.Handle(protocol.WSTypeGetNFCAvailability, h.handleAvailability)
	server.Handle(protocol.WSTypePoll, h.handlePoll)
	server.Handle(protocol.WSTypeTransceive, h.handleTransceive)
	server.Handle(protocol.WSTypeGetInitializationBytes, h.handleInitializationBytes)
	server.Handle(protocol.WSTypeFinish, h.handleFinish)

	// Release the card field when the server shuts down
	server.StartLifecycle(func(ctx context.Context) {
		go func() {
			<-ctx.Done()
			if err := h.reader.Finish(); err != nil {
				log.Printf("Reader finish on shutdown: %v", err)
			}
		}()
	})
}

func (h *EMVHandler) handleAvailability(ctx context.Context, conn *websocket.Conn, req protocol.WebSocketRequest) error {
	return sendResponse(conn, req, protocol.AvailabilityPayload{
		Availability: h.reader.Availability(),
	})
}

func (h *EMVHandler) handlePoll(ctx context.Context, conn *websocket.Conn, req protocol.WebSocketRequest) error {
	timeout := nfc.DefaultPollTimeout
	ms, ok, err := protocol.PayloadDurationMillis(req.Payload, "timeout")
	if err != nil {
		return sendErrorResponse(conn, req.ID, protocol.ErrCodeBadArgument, protocol.MsgBadArgument, err.Error())
	}
	if ok {
		timeout = time.Duration(ms) * time.Millisecond
	}

	if h.reader.Availability() != nfc.AvailabilityAvailable {
		return sendErrorResponse(conn, req.ID, protocol.ErrCodeUnavailable, protocol.MsgUnavailable, "")
	}

	tag, err := h.reader.Poll(ctx, timeout)
	if err != nil {
		if errors.Is(err, nfc.ErrPollTimeout) {
			return sendErrorResponse(conn, req.ID, protocol.ErrCodePollTimeout, protocol.MsgPollTimeout, "")
		}
		log.Printf("Poll error: %v", err)
		return sendErrorResponse(conn, req.ID, protocol.ErrCodeCommunication, protocol.MsgCommunicationError, err.Error())
	}

	return sendResponse(conn, req, tag.Info())
}

func (h *EMVHandler) handleTransceive(ctx context.Context, conn *websocket.Conn, req protocol.WebSocketRequest) error {
	data, ok := req.Payload["data"]
	if !ok || data == nil {
		return sendErrorResponse(conn, req.ID, protocol.ErrCodeBadArgument, protocol.MsgBadArgument, "")
	}

	// Byte arrays arrive as JSON number arrays
	asHex := true
	if values, isArray := data.([]any); isArray {
		raw, err := protocol.DecodeByteArray(values)
		if err != nil {
			return sendErrorResponse(conn, req.ID, protocol.ErrCodeBadArgument, protocol.MsgBadArgument, err.Error())
		}
		data = raw
		asHex = false
	} else if _, isString := data.(string); !isString {
		return sendErrorResponse(conn, req.ID, protocol.ErrCodeBadArgument, protocol.MsgBadArgument, "")
	}

	ms, hasTimeout, err := protocol.PayloadDurationMillis(req.Payload, "timeout")
	if err != nil {
		return sendErrorResponse(conn, req.ID, protocol.ErrCodeBadArgument, protocol.MsgBadArgument, err.Error())
	}

	tag, err := h.reader.Current()
	if err != nil {
		return sendErrorResponse(conn, req.ID, protocol.ErrCodeNoTag, protocol.MsgNoTag, "")
	}
	isoDep, ok := tag.(nfc.IsoDep)
	if !ok {
		return sendErrorResponse(conn, req.ID, protocol.ErrCodeNotSupported, protocol.MsgNotSupported, "")
	}

	command, hexCommand, err := nfc.CanonicalizeData(data)
	if err != nil {
		return sendErrorResponse(conn, req.ID, protocol.ErrCodeBadArgument, protocol.MsgCommandFormatError, err.Error())
	}

	if hasTimeout {
		if setter, ok := tag.(nfc.TimeoutSetter); ok {
			setter.SetTimeout(time.Duration(ms) * time.Millisecond)
		}
	}

	resp, err := emv.NewProvider(isoDep).Transceive(command)
	if err != nil {
		log.Printf("Transceive Error: %s: %v", hexCommand, err)
		if nfc.IsNotSupportedError(err) {
			return sendErrorResponse(conn, req.ID, protocol.ErrCodeNotSupported, protocol.MsgNotSupported, "")
		}
		var commErr *emv.CommunicationError
		if errors.As(err, &commErr) {
			return sendErrorResponse(conn, req.ID, protocol.ErrCodeCommunication, protocol.MsgCommunicationError, commErr.Message)
		}
		return sendErrorResponse(conn, req.ID, protocol.ErrCodeCommunication, protocol.MsgCommunicationError, err.Error())
	}

	if asHex {
		return sendResponse(conn, req, protocol.TransceivePayload{Data: nfc.BytesToHex(resp)})
	}
	return sendResponse(conn, req, protocol.TransceivePayload{Data: protocol.EncodeByteArray(resp)})
}

func (h *EMVHandler) handleInitializationBytes(ctx context.Context, conn *websocket.Conn, req protocol.WebSocketRequest) error {
	tag, err := h.reader.Current()
	if err != nil {
		return sendErrorResponse(conn, req.ID, protocol.ErrCodeNoTag, protocol.MsgNoTag, "")
	}
	isoDep, ok := tag.(nfc.IsoDep)
	if !ok {
		return sendErrorResponse(conn, req.ID, protocol.ErrCodeNotSupported, protocol.MsgInitBytesNotSupported, "")
	}

	hist, err := emv.NewProvider(isoDep).InitializationBytes()
	if err != nil {
		log.Printf("Historical bytes error: %v", err)
		return sendErrorResponse(conn, req.ID, protocol.ErrCodeCommunication, protocol.MsgCommunicationError, err.Error())
	}

	return sendResponse(conn, req, protocol.InitializationBytesPayload{
		HistoricalBytes: nfc.BytesToHex(hist),
	})
}

func (h *EMVHandler) handleFinish(ctx context.Context, conn *websocket.Conn, req protocol.WebSocketRequest) error {
	if err := h.reader.Finish(); err != nil {
		log.Printf("Finish error: %v", err)
	}
	return sendResponse(conn, req, struct{}{})
}

