package model

import "strings"

// SanitizeText trims s and strips angle brackets so stored text never
// carries markup.
func SanitizeText(s string) string {
	s = strings.TrimSpace(s)
	return strings.NewReplacer("<", "", ">", "").Replace(s)
}
