package ratelimit

import "strings"

// ClientKey derives the per-client bucket key: the API key if present,
// otherwise the left-most address in X-Forwarded-For, otherwise the
// connection's remote host.
func ClientKey(apiKey, forwardedFor, remoteHost string) string {
	if apiKey != "" {
		return "key:" + apiKey
	}
	if forwardedFor != "" {
		first := strings.TrimSpace(strings.SplitN(forwardedFor, ",", 2)[0])
		if first != "" {
			return "ip:" + first
		}
	}
	return "ip:" + remoteHost
}
