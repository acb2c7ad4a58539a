package logging

import "strings"

// RedactEmail keeps the first two characters of the local part and the
// domain: "student@uni.ca" becomes "st***@uni.ca".
func RedactEmail(s string) string {
	local, domain, ok := strings.Cut(s, "@")
	if !ok || domain == "" || strings.Contains(domain, "@") {
		return "***"
	}
	if len(local) > 2 {
		return local[:2] + "***@" + domain
	}
	return "***@" + domain
}
