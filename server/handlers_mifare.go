package server

import (
	"context"
	"log"

	"github.com/dotside-studios/davi-emv-bridge/nfc"
	"github.com/dotside-studios/davi-emv-bridge/protocol"
	"github.com/gorilla/websocket"
)

// MifareHandler gives block level access to MIFARE Classic and Ultralight cards.
//
// Requests carry "blockIndex" or "sectorIndex", an optional
// "authenticateKeyA" (hex, default FFFFFFFFFFFF) and for writeBlock a hex
// "message". Ultralight cards treat blockIndex as a page number.
type MifareHandler struct {
	reader *nfc.Reader
}

// NewMifareHandler creates a new MIFARE handler.
func NewMifareHandler(reader *nfc.Reader) *MifareHandler {
	return &MifareHandler{reader: reader}
}

// Register implements ServerHandler interface.
func (h *MifareHandler) Register(server HandlerServer) {
	server.Handle(protocol.WSTypeReadBlock, h.handleReadBlock)
	server.Handle(protocol.WSTypeReadSector, h.handleReadSector)
	server.Handle(protocol.WSTypeReadAll, h.handleReadAll)
	server.Handle(protocol.WSTypeWriteBlock, h.handleWriteBlock)
}

// blockRequest holds the decoded arguments of a block operation.
type blockRequest struct {
	index   int
	keyA    []byte
	message []byte
}

// parseBlockRequest decodes indexKey (when not empty), the key and, with
// needMessage set, the message of req. A nil result means an error was sent.
func (h *MifareHandler) parseBlockRequest(conn *websocket.Conn, req protocol.WebSocketRequest, indexKey string, needMessage bool) (*blockRequest, error) {
	var br blockRequest

	if indexKey != "" {
		index, ok, err := protocol.PayloadIndex(req.Payload, indexKey)
		if err != nil {
			return nil, sendErrorResponse(conn, req.ID, protocol.ErrCodeBadArgument, protocol.MsgBadArgument, err.Error())
		}
		if !ok {
			return nil, sendErrorResponse(conn, req.ID, protocol.ErrCodeBadArgument, protocol.MsgBadArgument, indexKey+" is required")
		}
		br.index = index
	}

	if raw, ok := req.Payload["authenticateKeyA"]; ok && raw != nil {
		keyHex, isString := raw.(string)
		if !isString {
			return nil, sendErrorResponse(conn, req.ID, protocol.ErrCodeBadArgument, protocol.MsgBadArgument, "authenticateKeyA must be a hex string")
		}
		key, err := nfc.HexToBytes(keyHex)
		if err != nil {
			return nil, sendErrorResponse(conn, req.ID, protocol.ErrCodeBadArgument, protocol.MsgBadArgument, err.Error())
		}
		br.keyA = key
	}

	if needMessage {
		messageHex, isString := req.Payload["message"].(string)
		if !isString {
			return nil, sendErrorResponse(conn, req.ID, protocol.ErrCodeBadArgument, protocol.MsgBadArgument, "message must be a hex string")
		}
		message, err := nfc.HexToBytes(messageHex)
		if err != nil {
			return nil, sendErrorResponse(conn, req.ID, protocol.ErrCodeBadArgument, protocol.MsgBadArgument, err.Error())
		}
		br.message = message
	}

	return &br, nil
}

// currentBlockTag answers with an error and returns nil when no MIFARE card is polled.
func (h *MifareHandler) currentBlockTag(conn *websocket.Conn, req protocol.WebSocketRequest) (nfc.BlockTag, error) {
	tag, err := h.reader.Current()
	if err != nil {
		return nil, sendErrorResponse(conn, req.ID, protocol.ErrCodeNoTag, protocol.MsgNoTag, "")
	}
	blockTag, ok := tag.(nfc.BlockTag)
	if !ok {
		return nil, sendErrorResponse(conn, req.ID, protocol.ErrCodeNotSupported, protocol.MsgMifareNotSupported, "")
	}
	return blockTag, nil
}

func (h *MifareHandler) handleReadBlock(ctx context.Context, conn *websocket.Conn, req protocol.WebSocketRequest) error {
	br, err := h.parseBlockRequest(conn, req, "blockIndex", false)
	if br == nil {
		return err
	}
	tag, err := h.currentBlockTag(conn, req)
	if tag == nil {
		return err
	}

	data, err := tag.ReadBlock(br.index, br.keyA)
	if err != nil {
		log.Printf("Read block %d error: %v", br.index, err)
		return sendErrorResponse(conn, req.ID, protocol.ErrCodeReadBlock, err.Error(), "")
	}
	return sendResponse(conn, req, protocol.BlockPayload{Data: nfc.BytesToHex(data)})
}

func (h *MifareHandler) handleReadSector(ctx context.Context, conn *websocket.Conn, req protocol.WebSocketRequest) error {
	br, err := h.parseBlockRequest(conn, req, "sectorIndex", false)
	if br == nil {
		return err
	}
	tag, err := h.currentBlockTag(conn, req)
	if tag == nil {
		return err
	}

	blocks, err := tag.ReadSector(br.index, br.keyA)
	if err != nil {
		log.Printf("Read sector %d error: %v", br.index, err)
		return sendErrorResponse(conn, req.ID, protocol.ErrCodeReadSector, err.Error(), "")
	}
	return sendResponse(conn, req, protocol.SectorPayload{Blocks: blocksToHex(blocks)})
}

func (h *MifareHandler) handleReadAll(ctx context.Context, conn *websocket.Conn, req protocol.WebSocketRequest) error {
	br, err := h.parseBlockRequest(conn, req, "", false)
	if br == nil {
		return err
	}
	tag, err := h.currentBlockTag(conn, req)
	if tag == nil {
		return err
	}

	all, err := tag.ReadAll(br.keyA)
	if err != nil {
		log.Printf("Read all error: %v", err)
		return sendErrorResponse(conn, req.ID, protocol.ErrCodeReadAll, err.Error(), "")
	}
	out := make(map[int][]string, len(all))
	for index, blocks := range all {
		out[index] = blocksToHex(blocks)
	}
	return sendResponse(conn, req, protocol.ReadAllPayload{Data: out})
}

func (h *MifareHandler) handleWriteBlock(ctx context.Context, conn *websocket.Conn, req protocol.WebSocketRequest) error {
	br, err := h.parseBlockRequest(conn, req, "blockIndex", true)
	if br == nil {
		return err
	}
	tag, err := h.currentBlockTag(conn, req)
	if tag == nil {
		return err
	}

	if err := tag.WriteBlock(br.index, br.message, br.keyA); err != nil {
		log.Printf("Write block %d error: %v", br.index, err)
		return sendErrorResponse(conn, req.ID, protocol.ErrCodeWriteBlock, err.Error(), "")
	}
	return sendResponse(conn, req, struct{}{})
}

func blocksToHex(blocks [][]byte) []string {
	out := make([]string, len(blocks))
	for i, b := range blocks {
		out[i] = nfc.BytesToHex(b)
	}
	return out
}
