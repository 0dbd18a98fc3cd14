package config

import (
	"fmt"
	"strings"
)

// Protocol selects which backend endpoint a base URL is resolved for.
type Protocol string

const (
	ProtocolWS   Protocol = "ws"
	ProtocolHTTP Protocol = "http"
)

// DefaultBackendPort is where the room server listens in local setups.
const DefaultBackendPort = "3000"

// Resolver maps a protocol kind to the backend base URL.
type Resolver interface {
	BaseURL(p Protocol) string
}

// EnvResolver resolves base URLs from explicit configuration first, then
// from hostname heuristics, then from a local default.
type EnvResolver struct {
	WSURL  string
	APIURL string
	Host   string
}

// BaseURL implements Resolver.
func (r *EnvResolver) BaseURL(p Protocol) string {
	switch {
	case p == ProtocolWS && r.WSURL != "":
		return strings.TrimRight(r.WSURL, "/")
	case p == ProtocolHTTP && r.APIURL != "":
		return strings.TrimRight(r.APIURL, "/")
	}

	host := r.Host
	if host == "" {
		host = "localhost"
	}

	// Forwarded dev environments expose the frontend port in the hostname
	// (app-5173.example.dev) and serve the backend on the sibling -3000 host
	// over TLS.
	if strings.Contains(host, "-5173") {
		backend := strings.Replace(host, "-5173", "-"+DefaultBackendPort, 1)
		return fmt.Sprintf("%s://%s", secure(p), backend)
	}
	return fmt.Sprintf("%s://%s:%s", p, host, DefaultBackendPort)
}

func secure(p Protocol) string {
	if p == ProtocolWS {
		return "wss"
	}
	return "https"
}

// StaticResolver returns fixed base URLs.
type StaticResolver struct {
	WS   string
	HTTP string
}

// BaseURL implements Resolver.
func (r StaticResolver) BaseURL(p Protocol) string {
	if p == ProtocolWS {
		return r.WS
	}
	return r.HTTP
}
