// Package chunk splits artifact text into overlapping windows sized to the
// generation service's context limit.
package chunk

// Split cuts text into windows of size bytes, each window starting
// size-overlap bytes after the previous one. The final window may be
// shorter. Split is pure and deterministic.
//
// Precondition: 0 <= overlap < size. Config validation enforces this at
// startup; an overlap >= size would never advance the window.
func Split(text string, size, overlap int) []string {
	if text == "" {
		return nil
	}
	var chunks []string
	step := size - overlap
	for start := 0; start < len(text); start += step {
		end := start + size
		if end > len(text) {
			end = len(text)
		}
		chunks = append(chunks, text[start:end])
	}
	return chunks
}
