package http

import (
	"net"
	"net/http"
	"strings"
)

// IPConfig names the proxy CIDRs whose forwarding headers we believe.
// The client IP feeds the login guard's per-IP failure counter and the
// audit trail, so a spoofable value would let an attacker shift blame
// or dodge the block.
type IPConfig struct {
	TrustedProxies []string
}

// Trusts reports whether ip falls inside one of the configured proxy
// ranges. Malformed CIDR entries are skipped rather than treated as
// wildcards.
func (c *IPConfig) Trusts(ip string) bool {
	if c == nil || len(c.TrustedProxies) == 0 {
		return false
	}

	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}

	for _, cidr := range c.TrustedProxies {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			continue
		}
		if network.Contains(parsed) {
			return true
		}
	}
	return false
}

// ExtractClientIP resolves the client address for guard counters and
// audit records. Forwarding headers are honored only when the TCP peer
// is a trusted proxy; otherwise the peer address itself is the answer,
// no matter what headers the client sent.
func ExtractClientIP(r *http.Request, config *IPConfig) string {
	peer := peerAddr(r)

	if !config.Trusts(peer) {
		return peer
	}

	for _, candidate := range strings.Split(r.Header.Get("X-Forwarded-For"), ",") {
		candidate = strings.TrimSpace(candidate)
		if net.ParseIP(candidate) != nil {
			return candidate
		}
	}

	if real := r.Header.Get("X-Real-IP"); net.ParseIP(real) != nil {
		return real
	}

	return peer
}

// peerAddr strips the port from RemoteAddr.
func peerAddr(r *http.Request) string {
	if r.RemoteAddr == "" {
		return "unknown"
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
