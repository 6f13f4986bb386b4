package server

import (
	"log"

	"github.com/dotside-studios/davi-emv-bridge/protocol"
	"github.com/gorilla/websocket"
)

// sendResponse sends a successful response correlated with req.
func sendResponse(conn *websocket.Conn, req protocol.WebSocketRequest, payload any) error {
	response := protocol.WebSocketResponse{
		ID:      req.ID,
		Type:    req.Type,
		Success: true,
		Payload: payload,
	}

	if err := conn.WriteJSON(response); err != nil {
		log.Printf("Failed to send %s response: %v", req.Type, err)
		return err
	}
	return nil
}

// sendErrorResponse sends a structured error response to a WebSocket client.
func sendErrorResponse(conn *websocket.Conn, requestID string, code string, message string, details string) error {
	response := protocol.WebSocketResponse{
		ID:      requestID,
		Type:    protocol.WSTypeError,
		Success: false,
		Error:   message,
		Payload: protocol.ErrorPayload{
			Code:    code,
			Details: details,
		},
	}

	if err := conn.WriteJSON(response); err != nil {
		log.Printf("Failed to send error response: %v", err)
		return err
	}
	return nil
}
