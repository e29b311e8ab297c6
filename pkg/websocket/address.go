package websocket

import (
	"net"
	"net/http"
	"strings"
)

// UnknownAddress is used when no source address can be derived.
const UnknownAddress = "unknown"

// forwardingHeaders are consulted in order. Except where a trusted proxy
// overwrites them, every one of these is set by the client, so the derived
// address can be spoofed to dodge per-address rate limits.
var forwardingHeaders = []string{
	"X-Forwarded-For",
	"X-Real-IP",
	"CF-Connecting-IP",
	"X-Forwarded",
	"True-Client-IP",
	"X-Client-IP",
	"X-Cluster-Client-IP",
	"Fastly-Client-IP",
	"X-AppEngine-User-IP",
}

// ClientAddress derives the rate-limit key for r: the first forwarding header
// present, then the transport peer address, then UnknownAddress.
func ClientAddress(r *http.Request) string {
	for _, name := range forwardingHeaders {
		if v := firstListValue(r.Header.Get(name)); v != "" {
			return v
		}
	}

	remote := strings.TrimSpace(r.RemoteAddr)
	if remote == "" {
		return UnknownAddress
	}
	host, _, err := net.SplitHostPort(remote)
	if err != nil || host == "" {
		return remote
	}
	return host
}

func firstListValue(v string) string {
	if i := strings.IndexByte(v, ','); i >= 0 {
		v = v[:i]
	}
	return strings.TrimSpace(v)
}
