package util

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const defaultExtension = "bin"

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// SanitizeFileName replaces every character outside [A-Za-z0-9._-] with an underscore.
func SanitizeFileName(name string) string {
	return unsafeFileChars.ReplaceAllString(strings.TrimSpace(name), "_")
}

// FileExtension returns the lowercased, sanitized extension of name without the dot.
// Names without an extension map to "bin".
func FileExtension(name string) string {
	base := strings.TrimSpace(name)
	if i := strings.LastIndexAny(base, `/\`); i >= 0 {
		base = base[i+1:]
	}
	dot := strings.LastIndex(base, ".")
	if dot < 0 || dot == len(base)-1 {
		return defaultExtension
	}
	ext := strings.ToLower(SanitizeFileName(base[dot+1:]))
	ext = strings.Trim(ext, "._-")
	if ext == "" {
		return defaultExtension
	}
	return ext
}

// TruncateRunes cuts s to at most max runes without splitting a UTF-8 sequence.
func TruncateRunes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}
