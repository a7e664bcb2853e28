// Package classify holds the string predicates applied to decoded QR text.
package classify

import "strings"

// LPAPrefix starts every eSIM activation code.
const LPAPrefix = "LPA:1$"

// MatchesProtocol reports whether text is an eSIM activation code.
func MatchesProtocol(text string) bool {
	return strings.HasPrefix(text, LPAPrefix)
}

// MatchesProvider reports whether text contains any of domains. An empty
// domain list places no constraint and always matches. Blank entries are
// ignored.
func MatchesProvider(text string, domains []string) bool {
	constrained := false
	for _, d := range domains {
		d = strings.TrimSpace(d)
		if d == "" {
			continue
		}
		constrained = true
		if strings.Contains(text, d) {
			return true
		}
	}
	return !constrained
}

// SMDPAddress returns the SM-DP+ address field of an activation code, or ""
// when text is not one.
func SMDPAddress(text string) string {
	if !MatchesProtocol(text) {
		return ""
	}
	rest := strings.TrimPrefix(text, LPAPrefix)
	addr, _, _ := strings.Cut(rest, "$")
	return addr
}
