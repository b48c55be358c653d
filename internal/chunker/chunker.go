package chunker

import (
	"fmt"

	"docqa/internal/extract"
	"docqa/internal/models"
	"docqa/internal/util"
)

// segSpan marks where a segment begins in the concatenated rune stream.
type segSpan struct {
	start int
	page  int
}

// Chunk splits the concatenation of segment texts into rune windows of
// chunkSize with exactly overlap runes repeated between consecutive chunks.
// Offsets are rune offsets into the concatenated text. Each chunk carries
// the page of the segment its start offset falls in.
//
// The function is deterministic: identical segments and configuration always
// produce identical boundaries. Input shorter than chunkSize yields exactly
// one chunk equal to the input. overlap < chunkSize is validated at config
// load, not here.
func Chunk(documentID string, segments []extract.Segment, chunkSize, overlap int) []models.Chunk {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = 0
	}

	var full []rune
	spans := make([]segSpan, 0, len(segments))
	for _, seg := range segments {
		spans = append(spans, segSpan{start: len(full), page: seg.Page})
		full = append(full, []rune(seg.Text)...)
	}
	if len(full) == 0 {
		return nil
	}

	step := chunkSize - overlap
	out := make([]models.Chunk, 0, len(full)/step+1)
	for start := 0; start < len(full); start += step {
		end := start + chunkSize
		if end > len(full) {
			end = len(full)
		}
		text := string(full[start:end])
		idx := len(out)
		out = append(out, models.Chunk{
			ChunkID:       chunkID(documentID, idx, text),
			DocumentID:    documentID,
			SequenceIndex: idx,
			Text:          text,
			CharStart:     start,
			CharEnd:       end,
			PageNumber:    pageAt(spans, start),
		})
		if end == len(full) {
			break
		}
	}
	return out
}

// Reassemble reverses Chunk: it concatenates chunk texts dropping the
// leading overlap runes of every chunk after the first. Used by tests and
// the admin reconcile path to verify chunk integrity.
func Reassemble(chunks []models.Chunk, overlap int) string {
	var full []rune
	for i, c := range chunks {
		runes := []rune(c.Text)
		if i > 0 {
			if overlap >= len(runes) {
				continue
			}
			runes = runes[overlap:]
		}
		full = append(full, runes...)
	}
	return string(full)
}

func chunkID(documentID string, idx int, text string) string {
	return util.SHA256Hex([]byte(fmt.Sprintf("%s:%d:%s", documentID, idx, util.SHA256Hex([]byte(text)))))
}

func pageAt(spans []segSpan, offset int) *int {
	page := 0
	for _, s := range spans {
		if s.start > offset {
			break
		}
		page = s.page
	}
	if page == 0 {
		return nil
	}
	p := page
	return &p
}
