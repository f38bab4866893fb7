package fallback

import (
	"strings"
	"unicode"
)

// TextQuality captures metrics about extracted text, used to flag
// documents whose text layer is likely garbage (scanned pages, broken
// font encodings).
type TextQuality struct {
	PrintableRatio float64 `json:"printable_ratio"`
	WordlikeRatio  float64 `json:"wordlike_ratio"`
}

// Suspect reports whether the text is likely not real prose.
func (q TextQuality) Suspect() bool {
	return q.PrintableRatio < 0.85 || q.WordlikeRatio < 0.3
}

// MeasureText computes quality metrics for extracted text.
func MeasureText(text string) TextQuality {
	return TextQuality{
		PrintableRatio: printableRatio(text),
		WordlikeRatio:  wordlikeRatio(text),
	}
}

// printableRatio returns the ratio of printable characters in text.
// Excludes PUA U+E000-U+F8FF, control chars < U+0020 (except \n\r\t),
// and U+FFFD.
func printableRatio(text string) float64 {
	if len(text) == 0 {
		return 1.0
	}
	total := 0
	printable := 0
	for _, r := range text {
		total++
		if isGarbageRune(r) {
			continue
		}
		if unicode.IsPrint(r) || r == '\n' || r == '\r' || r == '\t' {
			printable++
		}
	}
	return float64(printable) / float64(total)
}

func isGarbageRune(r rune) bool {
	// Private Use Area
	if r >= 0xE000 && r <= 0xF8FF {
		return true
	}
	// Replacement character
	if r == 0xFFFD {
		return true
	}
	// Control chars except whitespace
	if r < 0x0020 && r != '\n' && r != '\r' && r != '\t' {
		return true
	}
	return false
}

// wordlikeRatio returns the ratio of word-like tokens (length 2-15) to
// total tokens.
func wordlikeRatio(text string) float64 {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return 0
	}
	wordlike := 0
	for _, f := range fields {
		n := len([]rune(f))
		if n >= 2 && n <= 15 {
			wordlike++
		}
	}
	return float64(wordlike) / float64(len(fields))
}
