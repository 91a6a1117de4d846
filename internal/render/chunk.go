package render

import "strings"

// fenceMargin reserves room for the synthetic "```" terminator appended
// when a chunk boundary falls inside an open code fence.
const fenceMargin = 4

// paragraphFill is the fraction of maxChars after which a blank line is
// taken as a chunk boundary.
const paragraphFill = 0.75

// Split cuts text into chunks of at most maxChars, cutting only on line
// boundaries. Open code fences are never split silently: the outgoing
// chunk is closed with a synthetic "```" and the next chunk reopens with
// the original fence marker. Outside fences a blank line ends the chunk
// once it is at least 75% full. A single line longer than maxChars is
// passed through as an oversized chunk. If the result would exceed
// maxChunks the text is returned unsplit; the caller decides on a
// fallback such as a file attachment.
func Split(text string, maxChars, maxChunks int) []string {
	if maxChars <= 0 || len(text) <= maxChars {
		return []string{text}
	}

	lines := strings.Split(text, "\n")
	var chunks []string
	var cur []string
	curLen := 0
	inFence := false
	fenceOpen := ""

	appendLine := func(line string) {
		if len(cur) > 0 {
			curLen++ // joining newline
		}
		cur = append(cur, line)
		curLen += len(line)
	}

	flush := func() {
		if len(cur) == 0 {
			return
		}
		chunks = append(chunks, strings.Join(cur, "\n"))
		cur = nil
		curLen = 0
	}

	for _, line := range lines {
		limit := maxChars
		if inFence {
			limit -= fenceMargin
		}
		need := len(line)
		if len(cur) > 0 {
			need++
		}
		if curLen+need > limit && len(cur) > 0 {
			if inFence {
				appendLine("```")
				flush()
				appendLine(fenceOpen)
			} else {
				flush()
			}
		}

		if isFenceLine(line) {
			if inFence {
				inFence = false
				fenceOpen = ""
			} else {
				inFence = true
				fenceOpen = line
			}
		}
		appendLine(line)

		if !inFence && strings.TrimSpace(line) == "" &&
			float64(curLen) >= float64(maxChars)*paragraphFill {
			flush()
		}
	}
	flush()

	if maxChunks > 0 && len(chunks) > maxChunks {
		return []string{text}
	}
	return chunks
}

// isFenceLine reports whether the line opens or closes a fenced code block.
func isFenceLine(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), "```")
}
