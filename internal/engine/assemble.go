package engine

import "strings"

// segment is one unit of assembled section output: either flushable text or
// a detected marker occurrence.
type segment struct {
	Text   string
	Marker bool
}

// chunkAssembler reassembles a section's chunk stream into flushable text and
// marker occurrences. Chunk boundaries are arbitrary: a marker literal can
// arrive split across any number of chunks, so the assembler never releases
// a buffer tail that is a non-empty prefix of the marker.
type chunkAssembler struct {
	marker    string
	threshold int
	buf       string
}

func newChunkAssembler(marker string, threshold int) *chunkAssembler {
	return &chunkAssembler{marker: marker, threshold: threshold}
}

// Feed appends one chunk and returns the segments ready for delivery, in
// order. Complete markers are cut out of the buffer; the remaining text is
// flushed only when a flush trigger fires on its releasable portion.
func (a *chunkAssembler) Feed(chunk string) []segment {
	a.buf += chunk
	var segs []segment

	for {
		idx := strings.Index(a.buf, a.marker)
		if idx < 0 {
			break
		}
		if idx > 0 {
			segs = append(segs, segment{Text: a.buf[:idx]})
		}
		segs = append(segs, segment{Marker: true})
		a.buf = a.buf[idx+len(a.marker):]
	}

	hold := a.markerPrefixHold()
	releasable := a.buf[:len(a.buf)-hold]
	if releasable != "" && a.shouldFlush(releasable) {
		segs = append(segs, segment{Text: releasable})
		a.buf = a.buf[len(a.buf)-hold:]
	}

	return segs
}

// Finish releases whatever remains buffered, flush triggers or not. Called
// once the producer's stream has ended; a dangling partial marker at stream
// end is plain text.
func (a *chunkAssembler) Finish() (string, bool) {
	rest := a.buf
	a.buf = ""
	return rest, rest != ""
}

// markerPrefixHold returns the length of the longest buffer suffix that is a
// non-empty proper prefix of the marker. That tail must be withheld from any
// flush: the next chunk may complete the marker.
func (a *chunkAssembler) markerPrefixHold() int {
	max := len(a.marker) - 1
	if len(a.buf) < max {
		max = len(a.buf)
	}
	for l := max; l > 0; l-- {
		if strings.HasPrefix(a.marker, a.buf[len(a.buf)-l:]) {
			return l
		}
	}
	return 0
}

func (a *chunkAssembler) shouldFlush(text string) bool {
	if len(text) >= a.threshold {
		return true
	}
	if strings.Contains(text, "\n\n") {
		return true
	}
	switch text[len(text)-1] {
	case '.', '!', '?', '\n':
		return true
	}
	return false
}
