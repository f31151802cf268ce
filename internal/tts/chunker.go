package tts

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultMaxChunkChars caps the characters sent in one synthesis request.
const DefaultMaxChunkChars = 500

// TextChunk is a run of whole sentences, tagged with its position in the reply.
type TextChunk struct {
	Index int
	Text  string
}

// SplitSentences splits text after '.', '!' or '?' when followed by
// whitespace. Sentences are trimmed and empty ones dropped.
func SplitSentences(text string) []string {
	var sentences []string
	start := 0
	runes := []rune(text)

	for i := 0; i < len(runes)-1; i++ {
		if !isTerminal(runes[i]) || !unicode.IsSpace(runes[i+1]) {
			continue
		}
		if s := strings.TrimSpace(string(runes[start : i+1])); s != "" {
			sentences = append(sentences, s)
		}
		start = i + 1
	}
	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

func isTerminal(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

// Chunk packs sentences greedily into chunks of at most maxChars characters,
// joined by single spaces. A sentence longer than maxChars becomes a chunk of
// its own and is not cut.
func Chunk(text string, maxChars int) []TextChunk {
	if maxChars <= 0 {
		maxChars = DefaultMaxChunkChars
	}

	var chunks []TextChunk
	var current strings.Builder
	currentLen := 0

	flush := func() {
		if currentLen == 0 {
			return
		}
		chunks = append(chunks, TextChunk{Index: len(chunks), Text: current.String()})
		current.Reset()
		currentLen = 0
	}

	for _, sentence := range SplitSentences(text) {
		n := utf8.RuneCountInString(sentence)

		newLen := n
		if currentLen > 0 {
			newLen = currentLen + 1 + n
		}
		if newLen > maxChars {
			flush()
			newLen = n
		}

		if currentLen > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(sentence)
		currentLen = newLen
	}
	flush()

	return chunks
}
