package telegram

import (
	"strings"
	"unicode/utf16"
)

// MessageLimit is the Bot API text limit, counted in UTF-16 code units.
const MessageLimit = 4096

// SplitMessage packs whole lines into chunks of at most limit UTF-16 units.
// A single line longer than limit is cut at rune boundaries. limit <= 0
// means MessageLimit.
func SplitMessage(text string, limit int) []string {
	if limit <= 0 {
		limit = MessageLimit
	}
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	if utf16Len(trimmed) <= limit {
		return []string{trimmed}
	}

	var (
		parts   []string
		current strings.Builder
		size    int
	)
	flush := func() {
		if chunk := strings.Trim(current.String(), "\n"); chunk != "" {
			parts = append(parts, chunk)
		}
		current.Reset()
		size = 0
	}

	for _, line := range strings.Split(trimmed, "\n") {
		n := utf16Len(line)
		sep := 0
		if size > 0 {
			sep = 1
		}
		if size+sep+n <= limit {
			if sep == 1 {
				current.WriteByte('\n')
			}
			current.WriteString(line)
			size += sep + n
			continue
		}
		flush()
		pieces := cutLine(line, limit)
		last := len(pieces) - 1
		parts = append(parts, pieces[:last]...)
		current.WriteString(pieces[last])
		size = utf16Len(pieces[last])
	}
	flush()
	return parts
}

// cutLine режет строку на куски не длиннее limit.
func cutLine(line string, limit int) []string {
	var (
		pieces []string
		start  int
		size   int
	)
	for i, r := range line {
		w := utf16.RuneLen(r)
		if w < 0 {
			w = 1
		}
		if size > 0 && size+w > limit {
			pieces = append(pieces, line[start:i])
			start, size = i, 0
		}
		size += w
	}
	return append(pieces, line[start:])
}

func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		if w := utf16.RuneLen(r); w > 0 {
			n += w
		} else {
			n++
		}
	}
	return n
}
