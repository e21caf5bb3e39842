package util

import "strings"

// IsBot checks if a user agent matches a configurable deny list. Bot traffic
// is never forwarded to the events endpoint.
func IsBot(ua string, denyList []string) bool {
	if ua == "" {
		return false
	}
	uaLower := strings.ToLower(ua)
	for _, fragment := range denyList {
		fragment = strings.ToLower(strings.TrimSpace(fragment))
		if fragment == "" {
			continue
		}
		if strings.Contains(uaLower, fragment) {
			return true
		}
	}
	return false
}
