package clientip

import (
	"net"
	"net/http"
	"strings"
)

// ipv6PrefixBits groups IPv6 clients by /64, the usual per-subscriber allocation.
const ipv6PrefixBits = 64

// RealClientIP returns the client IP from the request.
// Uses r.RemoteAddr only; proxy headers are honored only when the router
// rewrites RemoteAddr from them upstream of this call.
func RealClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return strings.TrimSpace(host)
}

// LimiterKey returns the key used to bucket a client for rate limiting.
// IPv4 addresses are used as is; IPv6 addresses collapse to their /64 so a
// client cannot dodge limits by rotating interface ids.
func LimiterKey(r *http.Request) string {
	raw := RealClientIP(r)
	ip := net.ParseIP(raw)
	if ip == nil {
		return raw
	}
	return KeyForIP(ip)
}

// KeyForIP returns the limiter key of ip.
func KeyForIP(ip net.IP) string {
	if v4 := ip.To4(); v4 != nil {
		return v4.String()
	}
	return ip.Mask(net.CIDRMask(ipv6PrefixBits, 128)).String() + "/64"
}

// ParseKey turns an admin supplied address into a limiter key. It accepts a
// plain IP, or an IPv6 /64 prefix as produced by LimiterKey.
func ParseKey(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if ip := net.ParseIP(s); ip != nil {
		return KeyForIP(ip), true
	}
	ip, network, err := net.ParseCIDR(s)
	if err != nil || ip.To4() != nil {
		return "", false
	}
	if ones, _ := network.Mask.Size(); ones != ipv6PrefixBits {
		return "", false
	}
	return KeyForIP(ip), true
}
