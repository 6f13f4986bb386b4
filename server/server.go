// Package server exposes the NFC reader and the EMV transport adapter to
// WebSocket clients using the mobile NFC plugin method names.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/dotside-studios/davi-emv-bridge/buildinfo"
	"github.com/dotside-studios/davi-emv-bridge/nfc"
	"github.com/dotside-studios/davi-emv-bridge/protocol"
	"github.com/gorilla/websocket"
	"github.com/grandcat/zeroconf"
)

// Config holds the server configuration
type Config struct {
	Reader      *nfc.Reader
	Port        int
	APISecret   string // Optional API secret for WebSocket connection
	Backend     string // Reader backend name, reported to clients
	DisableMDNS bool
}

// Server manages the HTTP and WebSocket server
type Server struct {
	config     Config
	httpServer *http.Server
	ctx        context.Context
	cancel     context.CancelFunc

	sessions *SessionManager
	upgrader websocket.Upgrader

	handlerRegistry *HandlerRegistry

	// mDNS service for auto-discovery
	mdnsServer *zeroconf.Server
}

// New creates a new server instance
func New(config Config) *Server {
	if config.Port == 0 {
		config.Port = DefaultServerPort
	}

	s := &Server{
		config:   config,
		sessions: NewSessionManager(config.APISecret),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins
			},
		},
		handlerRegistry: NewHandlerRegistry(),
	}

	if config.Reader != nil {
		NewEMVHandler(config.Reader).Register(s)
		NewNDEFHandler(config.Reader).Register(s)
		NewMifareHandler(config.Reader).Register(s)
	}

	return s
}

// Handle implements HandlerServer interface.
func (s *Server) Handle(messageType string, handler HandlerFunc) error {
	return s.handlerRegistry.Handle(messageType, handler)
}

// StartLifecycle implements HandlerServer interface.
func (s *Server) StartLifecycle(start func(ctx context.Context)) {
	s.handlerRegistry.RegisterLifecycle(start)
}

// Sessions returns the session manager guarding the WebSocket endpoint.
func (s *Server) Sessions() *SessionManager {
	return s.sessions
}

// enableCORS is a middleware that adds CORS headers to responses
func enableCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", CORSAllowOrigin)
		w.Header().Set("Access-Control-Allow-Methods", CORSAllowMethods)
		w.Header().Set("Access-Control-Allow-Headers", CORSAllowHeaders)

		// Handle preflight OPTIONS requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

// Handler returns the HTTP routes of the bridge.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc(HealthPath, enableCORS(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.handleHealthCheck(w, r)
	}))

	mux.HandleFunc(WebSocketPath, s.handleWebSocket)

	mux.HandleFunc("/", enableCORS(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(buildinfo.DisplayName + " Running"))
	}))

	return mux
}

// Start starts the HTTP server and blocks until Stop is called or the listener fails.
func (s *Server) Start() error {
	log.Printf("Starting %s %s...", buildinfo.DisplayName, buildinfo.FullVersion())

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.config.Port),
		Handler: s.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Starting server on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	if s.config.DisableMDNS {
		log.Printf("mDNS advertisement disabled")
	} else if err := s.startMDNS(); err != nil {
		log.Printf("Warning: Failed to start mDNS service: %v", err)
		log.Printf("Auto-discovery will not be available, but server will continue normally")
	}

	s.handlerRegistry.StartLifecycleHandlers(s.ctx)

	select {
	case <-s.ctx.Done():
		log.Println("Server context cancelled, initiating shutdown...")
		return nil
	case err := <-errCh:
		s.Stop()
		return fmt.Errorf("HTTP server error: %w", err)
	}
}

// Stop stops the HTTP server gracefully
func (s *Server) Stop() {
	if s.mdnsServer != nil {
		s.mdnsServer.Shutdown()
		s.mdnsServer = nil
		log.Printf("mDNS service stopped")
	}

	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(ctx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
		s.httpServer = nil
	}
	if s.cancel != nil {
		s.cancel()
	}
}

// mdnsTXTRecords describes the service for discovery clients.
func (s *Server) mdnsTXTRecords() []string {
	records := []string{
		"version=" + buildinfo.Version,
		"protocol=websocket",
		"path=" + WebSocketPath,
	}
	if s.config.Backend != "" {
		records = append(records, "backend="+s.config.Backend)
	}
	if s.config.APISecret != "" {
		records = append(records, "auth=secret")
	}
	return records
}

// startMDNS registers the bridge as an mDNS service for auto-discovery
func (s *Server) startMDNS() error {
	server, err := zeroconf.Register(MDNSServiceName, MDNSServiceType, MDNSDomain, s.config.Port, s.mdnsTXTRecords(), nil)
	if err != nil {
		return fmt.Errorf("failed to register mDNS service: %w", err)
	}

	s.mdnsServer = server
	log.Printf("mDNS service registered: %s (%s) on port %d", MDNSServiceName, MDNSServiceType, s.config.Port)
	return nil
}

// handleWebSocket upgrades HTTP connections to WebSocket connections and manages
// the client connection lifecycle
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := s.sessions.Acquire(r.URL.Query().Get("secret"), r.Header.Get("Origin"), r.RemoteAddr)
	if sessionID == "" {
		if s.config.APISecret != "" && r.URL.Query().Get("secret") != s.config.APISecret {
			log.Printf("WebSocket connection rejected: invalid API secret")
			http.Error(w, "Unauthorized: Invalid API secret", http.StatusUnauthorized)
			return
		}
		log.Printf("WebSocket connection rejected: session already claimed")
		http.Error(w, "Session already claimed by another client", http.StatusConflict)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.sessions.Release(sessionID)
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	log.Printf("WebSocket connected from %s", r.RemoteAddr)

	defer func() {
		conn.Close()
		// The next client starts with an idle field
		if s.config.Reader != nil {
			if err := s.config.Reader.Finish(); err != nil {
				log.Printf("Reader finish error: %v", err)
			}
		}
		s.sessions.Release(sessionID)
		log.Printf("WebSocket disconnected, session released")
	}()

	conn.WriteJSON(protocol.WebSocketMessage{
		Type: protocol.WSTypeSession,
		Payload: protocol.SessionPayload{
			SessionID: sessionID,
			Version:   buildinfo.FullVersion(),
			Backend:   s.config.Backend,
		},
	})

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			break
		}

		if messageType != websocket.TextMessage {
			continue
		}

		var wsRequest protocol.WebSocketRequest
		if err := json.Unmarshal(message, &wsRequest); err != nil {
			log.Printf("Failed to parse WebSocket message: %v", err)
			sendErrorResponse(conn, "", protocol.ErrCodeParseError, protocol.MsgInvalidFormat, err.Error())
			continue
		}

		// The session can be revoked through Sessions().Release while connected
		if !s.sessions.Validate(sessionID) {
			log.Printf("Dropping %s request: session %s is no longer active", wsRequest.Type, sessionID)
			sendErrorResponse(conn, wsRequest.ID, protocol.ErrCodeSessionClosed, protocol.MsgSessionClosed, "")
			break
		}

		handler, ok := s.handlerRegistry.Get(wsRequest.Type)
		if !ok {
			log.Printf("Unknown message type: %s", wsRequest.Type)
			sendErrorResponse(conn, wsRequest.ID, protocol.ErrCodeUnknownType, fmt.Sprintf("Unknown message type: %s", wsRequest.Type), "")
			continue
		}

		if err := s.dispatch(ctx, conn, handler, wsRequest); err != nil {
			// Error already sent by handler, just log it
			log.Printf("Handler error for message type '%s': %v", wsRequest.Type, err)
		}
	}
}

// dispatch runs one handler, turning a panic into a communication error response.
func (s *Server) dispatch(ctx context.Context, conn *websocket.Conn, handler HandlerFunc, req protocol.WebSocketRequest) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Handler panic recovered for '%s': %v", req.Type, r)
			err = fmt.Errorf("handler panic: %v", r)
			sendErrorResponse(conn, req.ID, protocol.ErrCodeCommunication, protocol.MsgCommunicationError, fmt.Sprint(r))
		}
	}()
	return handler(ctx, conn, req)
}

// handleHealthCheck provides a health check endpoint (GET /api/v1/health)
func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	availability := nfc.AvailabilityNotSupported
	if s.config.Reader != nil {
		availability = s.config.Reader.Availability()
	}

	body := map[string]interface{}{
		"status":        "ok",
		"version":       buildinfo.FullVersion(),
		"availability":  availability,
		"sessionActive": false,
		"timestamp":     time.Now().Format(time.RFC3339),
	}
	if info, ok := s.sessions.Info(); ok {
		body["sessionActive"] = true
		body["sessionOrigin"] = info.Origin
		body["sessionSince"] = info.Since.Format(time.RFC3339)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(body)
}
