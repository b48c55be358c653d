package extract

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"docqa/internal/util"

	"github.com/ledongthuc/pdf"
)

// Segment is one extracted unit of text: a PDF page, a CSV row, or a whole
// markdown/plain-text file. Page is 1-based for PDF pages and CSV data rows,
// 0 when the format has no page notion.
type Segment struct {
	Text string `json:"text"`
	Page int    `json:"page"`
}

// Extract converts raw file bytes into text segments. A corrupt PDF page
// degrades to an empty segment for that page; the whole call fails only when
// no segment yields any text.
func Extract(data []byte, fileType string) ([]Segment, error) {
	switch strings.ToLower(strings.TrimSpace(fileType)) {
	case "pdf":
		return extractPDF(data)
	case "csv":
		return extractCSV(data)
	case "md", "txt":
		return extractPlain(data)
	default:
		return nil, fmt.Errorf("%w: %q", util.ErrUnsupportedFormat, fileType)
	}
}

func extractPDF(data []byte) ([]Segment, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", util.ErrExtraction)
	}
	total := r.NumPage()
	if total == 0 {
		return nil, fmt.Errorf("pdf has no pages: %w", util.ErrExtraction)
	}
	segments := make([]Segment, 0, total)
	nonEmpty := 0
	for i := 1; i <= total; i++ {
		text := extractPDFPage(r, i)
		if text != "" {
			nonEmpty++
		}
		segments = append(segments, Segment{Text: text, Page: i})
	}
	if nonEmpty == 0 {
		return nil, fmt.Errorf("pdf yielded no text on any page: %w", util.ErrExtraction)
	}
	return segments, nil
}

func extractPDFPage(r *pdf.Reader, n int) (text string) {
	// The pdf package panics on some malformed page content streams.
	defer func() {
		if rec := recover(); rec != nil {
			text = ""
		}
	}()
	page := r.Page(n)
	if page.V.IsNull() {
		return ""
	}
	s, err := page.GetPlainText(nil)
	if err != nil {
		return ""
	}
	return util.SanitizeText(s)
}

// extractCSV renders each data row as "column: value" pairs so structured
// data stays queryable as prose. The header row names the columns.
func extractCSV(data []byte) ([]Segment, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", util.ErrExtraction)
	}
	segments := make([]Segment, 0, 64)
	row := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// A malformed row degrades to an empty segment, mirroring the
			// per-page PDF policy.
			row++
			segments = append(segments, Segment{Text: "", Page: row})
			continue
		}
		row++
		pairs := make([]string, 0, len(record))
		for i, val := range record {
			col := fmt.Sprintf("column_%d", i+1)
			if i < len(header) && strings.TrimSpace(header[i]) != "" {
				col = strings.TrimSpace(header[i])
			}
			pairs = append(pairs, col+": "+strings.TrimSpace(val))
		}
		segments = append(segments, Segment{Text: util.SanitizeText(strings.Join(pairs, ", ")), Page: row})
	}
	if len(segments) == 0 {
		return nil, fmt.Errorf("csv has no data rows: %w", util.ErrExtraction)
	}
	return segments, nil
}

func extractPlain(data []byte) ([]Segment, error) {
	text := util.SanitizeText(string(data))
	if text == "" {
		return nil, fmt.Errorf("empty file: %w", util.ErrExtraction)
	}
	return []Segment{{Text: text}}, nil
}
