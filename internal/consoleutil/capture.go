// Package consoleutil holds the small shared helpers used by more than one
// console: capture-between regex matching (anchoring exec()'s nonce
// delimiters), a run-with-timeout helper for one-shot blocking work, and the
// RFB pixel-format to 24-bit RGB converter VC's PutPixels handler uses.
package consoleutil

import (
	"regexp"
)

// CaptureBetween returns the text strictly between left and right in src, or
// ("", false) if no match exists. Both delimiters are regex-escaped before
// matching; the capture group is greedy (matches up to the rightmost
// occurrence of right), mirroring the original's dynamically-built
// (?s)left(.*)right pattern.
func CaptureBetween(src, left, right string) (string, bool) {
	pattern := "(?s)" + regexp.QuoteMeta(left) + "(.*)" + regexp.QuoteMeta(right)
	re, err := regexp.Compile(pattern)
	if err != nil {
		return "", false
	}
	m := re.FindStringSubmatch(src)
	if m == nil {
		return "", false
	}
	return m[1], true
}
