package requestutil

import (
	"net"
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"
)

// proxyHeaders are consulted in order; X-Real-Ip is less common but still
// set by some reverse proxies.
var proxyHeaders = []string{"X-Forwarded-For", "X-Real-Ip"}

// RemoteAddr extracts the remote address of the request, taking into
// account proxy headers. Only the first hop of X-Forwarded-For is used.
func RemoteAddr(r *http.Request) string {
	for _, header := range proxyHeaders {
		value := r.Header.Get(header)
		if value == "" {
			continue
		}

		first, _, _ := strings.Cut(value, ",")
		first = strings.TrimSpace(first)
		if net.ParseIP(first) != nil {
			return first
		}
		log.WithField("header", header).Warnf("invalid remote IP address: %q", first)
	}

	return r.RemoteAddr
}

// RemoteIP extracts the remote IP of the request, taking into
// account proxy headers.
func RemoteIP(r *http.Request) string {
	addr := RemoteAddr(r)

	if ip, _, err := net.SplitHostPort(addr); err == nil {
		return ip
	}

	return addr
}
