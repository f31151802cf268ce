package tts

import (
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplitSentences(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"basic", "Hello there. How are you? Great!", []string{"Hello there.", "How are you?", "Great!"}},
		{"no terminal", "just words", []string{"just words"}},
		{"decimal stays", "It is 3.5 degrees. Bring a coat.", []string{"It is 3.5 degrees.", "Bring a coat."}},
		{"extra whitespace", "  One.\n\nTwo.  ", []string{"One.", "Two."}},
		{"empty", "   ", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitSentences(tt.text)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestChunk_OneSentencePerChunkAtSmallCap(t *testing.T) {
	chunks := Chunk("A. B. C.", 3)

	want := []string{"A.", "B.", "C."}
	if len(chunks) != len(want) {
		t.Fatalf("Expected %d chunks, got %d: %+v", len(want), len(chunks), chunks)
	}
	for i, c := range chunks {
		if c.Index != i || c.Text != want[i] {
			t.Errorf("Expected chunk %d %q, got %+v", i, want[i], c)
		}
	}
}

func TestChunk_PacksGreedily(t *testing.T) {
	chunks := Chunk("A. B. C.", 5)

	if len(chunks) != 2 {
		t.Fatalf("Expected 2 chunks, got %+v", chunks)
	}
	if chunks[0].Text != "A. B." || chunks[1].Text != "C." {
		t.Errorf("Unexpected chunks %+v", chunks)
	}
}

func TestChunk_LongSentencePassesThrough(t *testing.T) {
	long := strings.Repeat("x", 40) + "."
	chunks := Chunk("Hi. "+long+" Bye.", 10)

	if len(chunks) != 3 {
		t.Fatalf("Expected 3 chunks, got %+v", chunks)
	}
	if chunks[1].Text != long {
		t.Errorf("Expected long sentence unmodified, got %q", chunks[1].Text)
	}
}

func TestChunk_RespectsCap(t *testing.T) {
	text := "The forecast for Berlin shows rain. Temperatures stay around twelve degrees. " +
		"Wind picks up in the evening! Would you like the hourly numbers? " +
		"I can also search the web for news. Ok."

	for limit := 1; limit <= 120; limit++ {
		chunks := Chunk(text, limit)

		var rejoined []string
		for i, c := range chunks {
			if c.Index != i {
				t.Fatalf("cap %d: expected index %d, got %d", limit, i, c.Index)
			}
			n := utf8.RuneCountInString(c.Text)
			if n > limit && len(SplitSentences(c.Text)) != 1 {
				t.Errorf("cap %d: chunk %q exceeds cap with several sentences", limit, c.Text)
			}
			rejoined = append(rejoined, c.Text)
		}

		if strings.Join(rejoined, " ") != strings.Join(SplitSentences(text), " ") {
			t.Errorf("cap %d: chunks lost or reordered text", limit)
		}
	}
}

func TestChunk_CountsCharactersNotBytes(t *testing.T) {
	// 7 characters, 10 bytes
	chunks := Chunk("äöü. ß.", 7)
	if len(chunks) != 1 {
		t.Errorf("Expected one chunk, got %+v", chunks)
	}
}
