package format

import (
	"fmt"
	"strings"
)

const (
	// MarkdownV1 denotes Telegram markdown version 1.
	MarkdownV1 = 1
	// MarkdownV2 denotes Telegram markdown version 2.
	MarkdownV2 = 2
)

const (
	mdV1Specials = "_*`[\\"
	mdV2Specials = "_*[]()~`>#+-=|{}.!\\"
	// Inside code and pre entities only the backtick and backslash terminate
	// the entity; everything else is literal.
	mdCodeSpecials = "`\\"
)

// EscapeMarkdown escapes text for safe interpolation into a Markdown message.
// entityType may be "code" or "pre" when the text lands inside backticks;
// empty means regular message body.
func EscapeMarkdown(text string, version int, entityType string) (string, error) {
	var specials string
	switch version {
	case MarkdownV1:
		specials = mdV1Specials
	case MarkdownV2:
		specials = mdV2Specials
	default:
		return "", fmt.Errorf("unsupported markdown version: %d", version)
	}
	if entityType == "code" || entityType == "pre" {
		specials = mdCodeSpecials
	}

	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if strings.ContainsRune(specials, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String(), nil
}

// EscapeMD escapes text for the regular MarkdownV1 message body, swallowing
// the impossible version error.
func EscapeMD(text string) string {
	escaped, _ := EscapeMarkdown(text, MarkdownV1, "")
	return escaped
}

// EscapeMDCode escapes text destined for a MarkdownV1 inline code entity.
func EscapeMDCode(text string) string {
	escaped, _ := EscapeMarkdown(text, MarkdownV1, "code")
	return escaped
}
