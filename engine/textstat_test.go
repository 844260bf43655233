package engine

import (
	"testing"
	"time"
)

func TestCountWords(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{"empty", "", 0},
		{"whitespace only", "  \n\t ", 0},
		{"single word", "hello", 1},
		{"sentence", "Hello world. This is a test.", 6},
		{"mixed whitespace", "one\ttwo\nthree  four", 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CountWords(tt.text); got != tt.want {
				t.Errorf("CountWords(%q) = %d, want %d", tt.text, got, tt.want)
			}
		})
	}
}

func TestWordsBefore(t *testing.T) {
	text := "Hello world. This is a test."
	tests := []struct {
		name  string
		index int
		want  int
	}{
		{"start", 0, 0},
		{"negative", -3, 0},
		{"mid first word", 3, 1},
		{"after second word", 12, 2},
		{"past the end", 1000, 6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := WordsBefore(text, tt.index); got != tt.want {
				t.Errorf("WordsBefore(%d) = %d, want %d", tt.index, got, tt.want)
			}
		})
	}
}

func TestWordOffsets(t *testing.T) {
	got := WordOffsets("ab  cd\ne")
	want := []int{0, 4, 7}
	if len(got) != len(want) {
		t.Fatalf("WordOffsets() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("offset %d = %d, want %d", i, got[i], want[i])
		}
	}

	if offsets := WordOffsets(""); len(offsets) != 0 {
		t.Errorf("WordOffsets(\"\") = %v, want none", offsets)
	}
}

func TestEstimateReadingTime(t *testing.T) {
	if got := EstimateReadingTime("", 150); got != 0 {
		t.Errorf("empty text estimate = %v, want 0", got)
	}

	// 150 words at 150 wpm is one minute.
	words := make([]byte, 0, 300)
	for i := 0; i < 150; i++ {
		words = append(words, "go "...)
	}
	if got := EstimateReadingTime(string(words), 150); got != time.Minute {
		t.Errorf("estimate = %v, want %v", got, time.Minute)
	}

	// Zero wpm falls back to the default rate.
	if got := EstimateReadingTime("one two three", 0); got <= 0 {
		t.Errorf("estimate with default rate = %v, want positive", got)
	}
}
