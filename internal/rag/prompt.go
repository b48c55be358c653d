package rag

import (
	"fmt"
	"strings"

	"docqa/internal/models"
)

// buildContext renders the retrieved chunks as tagged context blocks, one
// per chunk. Tags are stable ([C1], [C2], ...) so the model can cite them
// and a reader can map citations back to sources by position.
func buildContext(hits []models.SearchHit) []string {
	out := make([]string, 0, len(hits))
	for i, h := range hits {
		loc := h.FileName
		if h.PageNumber != nil {
			loc = fmt.Sprintf("%s, page %d", h.FileName, *h.PageNumber)
		}
		out = append(out, fmt.Sprintf("[C%d] (%s) %s", i+1, loc, strings.TrimSpace(h.Text)))
	}
	return out
}

func buildPrompt(queryText string) string {
	var b strings.Builder
	b.WriteString("Answer the question using only the provided context blocks.\n")
	b.WriteString("Cite supporting blocks inline with their tags, e.g. [C1].\n")
	b.WriteString("If the context does not contain the answer, say so plainly.\n\n")
	b.WriteString("Question: ")
	b.WriteString(strings.TrimSpace(queryText))
	return b.String()
}
