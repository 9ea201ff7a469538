package wccrypto

import (
	"net/url"
	"strings"
)

// WebSocketURL turns a bridge http(s) url into its websocket endpoint with the protocol query the bridge expects.
func WebSocketURL(bridgeURL, protocol, version string) string {
	switch {
	case strings.HasPrefix(bridgeURL, "https://"):
		bridgeURL = "wss://" + strings.TrimPrefix(bridgeURL, "https://")
	case strings.HasPrefix(bridgeURL, "http://"):
		bridgeURL = "ws://" + strings.TrimPrefix(bridgeURL, "http://")
	}
	q := url.Values{}
	q.Set("protocol", protocol)
	q.Set("version", version)
	q.Set("env", "moff-wallet")
	sep := "?"
	if strings.Contains(bridgeURL, "?") {
		sep = "&"
	}
	return bridgeURL + sep + q.Encode()
}
