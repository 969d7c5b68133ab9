package util

import (
	"regexp"
	"strings"
)

var e164Pattern = regexp.MustCompile(`^\+[1-9]\d{1,14}$`)

// phoneSeparators are formatting characters stripped before a number is sent
// to the gateway, including the Unicode bidi marks spreadsheets sometimes
// embed around RTL contact data.
var phoneSeparators = strings.NewReplacer(
	" ", "",
	"-", "",
	"(", "",
	")", "",
	".", "",
	"‎", "",
	"‏", "",
)

// NormalizePhone rewrites a raw phone cell into the form the gateway expects.
// Separators are stripped, an international 00 prefix becomes +, and a local
// number (no leading +) is prefixed with countryPrefix when one is supplied.
// With ensurePlus the result is guaranteed to start with +. Normalization is
// purely about formatting; it never validates that the digits form a real
// number.
func NormalizePhone(raw, countryPrefix string, ensurePlus bool) string {
	s := phoneSeparators.Replace(strings.TrimSpace(raw))
	if s == "" {
		return ""
	}
	if strings.HasPrefix(s, "00") {
		s = "+" + s[2:]
	}
	if !strings.HasPrefix(s, "+") && countryPrefix != "" {
		prefixDigits := strings.TrimPrefix(countryPrefix, "+")
		if !strings.HasPrefix(s, prefixDigits) {
			s = countryPrefix + strings.TrimLeft(s, "0")
		}
	}
	if ensurePlus && !strings.HasPrefix(s, "+") {
		s = "+" + s
	}
	return s
}

// IsE164 reports whether the value is an E.164 formatted number. Dispatchers
// only use this for diagnostics; a non-conforming number is still sent.
func IsE164(value string) bool {
	return e164Pattern.MatchString(value)
}
