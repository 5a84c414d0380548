package epub

import (
	"fmt"
	"strings"

	"ranobepub/pkg/models"
)

// emptyParagraphs are the blank lines the upstream rich text editor leaves
// between paragraphs. They carry no content.
var emptyParagraphs = []string{
	"<p>\u00a0</p>",
	"<p>&nbsp;</p>",
}

// StripEmptyParagraphs removes every empty non-breaking-space paragraph and
// leaves the rest of the content byte for byte.
func StripEmptyParagraphs(content string) string {
	for _, marker := range emptyParagraphs {
		content = strings.ReplaceAll(content, marker, "")
	}
	return content
}

// SectionFilename names the XHTML file of the chapter at position i.
//
// Names sort lexically in reading order: they start with the 1-based
// position, zero padded, followed by the chapter's volume and number.
func SectionFilename(i int, ch models.Chapter) string {
	return fmt.Sprintf("%05d_volume_%s_number_%s.xhtml", i+1, padNumeric(ch.Volume), padNumeric(ch.Number))
}

// padNumeric makes a volume or chapter number filename safe and pads its
// integer part to four digits, so "2" and "10.5" become "0002" and "0010.5".
func padNumeric(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "0000"
	}

	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '.', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	safe := b.String()

	digits := 0
	for digits < len(safe) && safe[digits] >= '0' && safe[digits] <= '9' {
		digits++
	}
	if digits > 0 && digits < 4 {
		safe = strings.Repeat("0", 4-digits) + safe
	}
	return safe
}
