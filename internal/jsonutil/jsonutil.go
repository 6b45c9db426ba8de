// Package jsonutil extracts JSON payloads from language-model style
// responses, which routinely arrive wrapped in markdown code fences or
// surrounded by prose.
package jsonutil

import (
	"regexp"
	"strings"
)

var fenceOpen = regexp.MustCompile("^```(?:json)?\\s*\\n?")
var fenceClose = regexp.MustCompile("\\n?```\\s*$")

// Extract returns the JSON document embedded in text: code fences are
// stripped, then the outermost {...} or [...] span is returned. When no
// JSON delimiters are present the trimmed text is returned as-is and
// left for the caller's decoder to reject.
func Extract(text string) string {
	cleaned := strings.TrimSpace(text)
	if strings.HasPrefix(cleaned, "```") {
		cleaned = fenceOpen.ReplaceAllString(cleaned, "")
		cleaned = fenceClose.ReplaceAllString(cleaned, "")
		cleaned = strings.TrimSpace(cleaned)
	}

	objStart := strings.IndexByte(cleaned, '{')
	arrStart := strings.IndexByte(cleaned, '[')

	start := objStart
	end := strings.LastIndexByte(cleaned, '}')
	if arrStart != -1 && (objStart == -1 || arrStart < objStart) {
		start = arrStart
		end = strings.LastIndexByte(cleaned, ']')
	}

	if start == -1 || end == -1 || end < start {
		return cleaned
	}
	return cleaned[start : end+1]
}
