package engine

import (
	"strings"
	"time"
	"unicode"
)

// defaultWordsPerMinute is the speaking-rate assumption used for reading
// time estimates at 1.0x.
const defaultWordsPerMinute = 150

// CountWords returns the number of whitespace-delimited tokens in s.
func CountWords(s string) int {
	return len(strings.Fields(s))
}

// WordsBefore counts the whitespace-delimited tokens in text[:charIndex].
// A token split by the cut still counts.
func WordsBefore(text string, charIndex int) int {
	if charIndex <= 0 {
		return 0
	}
	if charIndex > len(text) {
		charIndex = len(text)
	}
	return len(strings.Fields(text[:charIndex]))
}

// WordOffsets returns the byte offset of the first character of each
// whitespace-delimited word in text, in order.
func WordOffsets(text string) []int {
	var offsets []int
	inWord := false
	for i, r := range text {
		if unicode.IsSpace(r) {
			inWord = false
			continue
		}
		if !inWord {
			offsets = append(offsets, i)
			inWord = true
		}
	}
	return offsets
}

// EstimateReadingTime estimates the speaking duration for text at the
// given words-per-minute rate. A wpm of 0 uses the default.
func EstimateReadingTime(text string, wpm int) time.Duration {
	if wpm <= 0 {
		wpm = defaultWordsPerMinute
	}
	words := CountWords(text)
	if words == 0 {
		return 0
	}
	return time.Duration(float64(words) / float64(wpm) * float64(time.Minute))
}
