package server

import "github.com/dotside-studios/davi-emv-bridge/buildinfo"

// mDNS service discovery constants
var (
	MDNSServiceType = "_emv-bridge._tcp"
	MDNSServiceName = buildinfo.DisplayName
	MDNSDomain      = "local."
)

// HTTP routes
const (
	APIV1Prefix       = "/api/v1"
	HealthPath        = APIV1Prefix + "/health"
	WebSocketPath     = "/ws"
	DefaultServerPort = 18080
)

// CORS configuration
const (
	CORSAllowOrigin  = "*"
	CORSAllowMethods = "GET, POST, OPTIONS"
	CORSAllowHeaders = "Content-Type, Authorization"
)
