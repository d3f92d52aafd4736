package server

import (
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"

	"github.com/gorilla/websocket"
)

// WebSocketConn is the connection surface the pumps need: JSON in, JSON
// out, close. Tests substitute their own implementation.
type WebSocketConn interface {
	io.Closer
	WriteJSON(v any) error
	ReadJSON(v any) error
}

var upgrader = websocket.Upgrader{
	CheckOrigin: checkOrigin,
}

// checkOrigin admits same-origin requests and clients on the studio
// network. A panel served from the same host (directly or behind a
// reverse proxy) passes the same-origin comparison.
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	// Non-browser clients and same-origin requests omit the header.
	if origin == "" {
		return true
	}

	u, err := url.Parse(origin)
	if err != nil {
		slog.Warn("rejected WebSocket connection: invalid origin URL", "origin", origin)
		return false
	}

	if trustedOriginHost(u.Hostname(), r.Host) {
		return true
	}

	slog.Warn("rejected WebSocket connection", "origin", origin, "host", u.Hostname())
	return false
}

// trustedOriginHost reports whether the origin host is this server or a
// machine on the local network.
func trustedOriginHost(originHost, requestHost string) bool {
	switch originHost {
	case "localhost", "127.0.0.1", "::1":
		return true
	}

	if h, _, err := net.SplitHostPort(requestHost); err == nil {
		requestHost = h
	}
	if originHost == requestHost {
		return true
	}

	ip := net.ParseIP(originHost)
	return ip != nil && (ip.IsLoopback() || ip.IsPrivate())
}

// UpgradeConnection switches an HTTP request to the WebSocket protocol.
func UpgradeConnection(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	return upgrader.Upgrade(w, r, nil)
}
