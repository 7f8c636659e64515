package capfeed

import "regexp"

var (
	linkIdentifierRe = regexp.MustCompile(`identifier=(\d+)`)
	longDigitRunRe   = regexp.MustCompile(`\d{16,}`)
)

// extractIdentifier applies the fallback cascade from spec.md §4.2:
// (a) identifier=(\d+) in the item link, (b) a pure-digit guid or the same
// pattern in guid, (c) a run of 16+ digits anywhere in title+description.
// The first hit wins; an empty string means the item must be dropped.
func extractIdentifier(link, guid, title, description string) string {
	if m := linkIdentifierRe.FindStringSubmatch(link); m != nil {
		return m[1]
	}
	if isAllDigits(guid) {
		return guid
	}
	if m := linkIdentifierRe.FindStringSubmatch(guid); m != nil {
		return m[1]
	}
	if m := longDigitRunRe.FindString(title + description); m != "" {
		return m
	}
	return ""
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
