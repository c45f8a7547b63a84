package stream

import (
	"strings"
	"unicode/utf8"
)

// Chunk splits text into pieces of at most size runes, preferring to cut after
// whitespace. Joining the pieces yields text unchanged. A size <= 0 returns the
// whole text as one piece.
func Chunk(text string, size int) []string {
	if text == "" {
		return nil
	}
	if size <= 0 || utf8.RuneCountInString(text) <= size {
		return []string{text}
	}

	var chunks []string
	for text != "" {
		if utf8.RuneCountInString(text) <= size {
			chunks = append(chunks, text)
			break
		}
		cut := byteOffset(text, size)
		if ws := strings.LastIndexAny(text[:cut], " \n\t"); ws > 0 {
			cut = ws + 1
		}
		chunks = append(chunks, text[:cut])
		text = text[cut:]
	}
	return chunks
}

// byteOffset returns the byte index just past the first n runes of s.
func byteOffset(s string, n int) int {
	i := 0
	for range n {
		_, w := utf8.DecodeRuneInString(s[i:])
		i += w
	}
	return i
}
