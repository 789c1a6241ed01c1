package gateway

import (
	"strings"
	"unicode"
)

// ComposeContent appends hashtags to content as a trailing line of #tag tokens.
// Tags are stripped of whitespace and leading '#'; blank tags are dropped.
func ComposeContent(content string, hashtags []string) string {
	tokens := make([]string, 0, len(hashtags))
	for _, raw := range hashtags {
		tag := strings.Map(func(r rune) rune {
			if unicode.IsSpace(r) {
				return -1
			}
			return r
		}, raw)
		tag = strings.TrimLeft(tag, "#")
		if tag == "" {
			continue
		}
		tokens = append(tokens, "#"+tag)
	}

	if len(tokens) == 0 {
		return content
	}
	if strings.TrimSpace(content) == "" {
		return strings.Join(tokens, " ")
	}
	return strings.TrimRight(content, " \t\r\n") + "\n\n" + strings.Join(tokens, " ")
}
