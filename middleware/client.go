package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/MrEthical07/orgauth"
)

// ClientFromRequest returns the caller's IP and user agent. With trustProxy the
// first X-Forwarded-For entry wins over the socket address.
func ClientFromRequest(r *http.Request, trustProxy bool) orgauth.Client {
	return orgauth.Client{
		IP:        clientIP(r, trustProxy),
		UserAgent: r.UserAgent(),
	}
}

func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
