package stations

const (
	// ChunkSize is the maximum chunk length in characters.
	ChunkSize = 25000
	// chunkLookback bounds the backward search for a sentence boundary.
	chunkLookback = 1000
)

func isBreak(r rune) bool {
	switch r {
	case '.', '!', '?', '؟', '\n':
		return true
	}
	return false
}

// ChunkText splits text into chunks of at most ChunkSize characters. A cut
// that would fall mid-sentence moves back to just after the nearest
// sentence-ending punctuation or line break within the lookback window.
// Concatenating the chunks always reproduces text.
func ChunkText(text string) []string {
	runes := []rune(text)
	if len(runes) <= ChunkSize {
		return []string{text}
	}

	var chunks []string
	pos := 0
	for pos < len(runes) {
		end := min(pos+ChunkSize, len(runes))
		if end < len(runes) {
			floor := max(pos, end-chunkLookback)
			for i := end - 1; i > floor; i-- {
				if isBreak(runes[i]) {
					end = i + 1
					break
				}
			}
		}
		chunks = append(chunks, string(runes[pos:end]))
		pos = end
	}
	return chunks
}

// prefix returns at most n characters from the start of text.
func prefix(text string, n int) string {
	count := 0
	for i := range text {
		if count == n {
			return text[:i]
		}
		count++
	}
	return text
}
