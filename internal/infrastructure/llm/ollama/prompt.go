package ollama

import (
	"fmt"
	"strings"

	"github.com/GoBeromsu/My-awesome-RA/internal/core/domain"
)

const maxPassageChars = 2000

func buildAnswerPrompt(question string, results []domain.EvidenceResult) string {
	var contextBuilder strings.Builder
	for idx, r := range results {
		source := r.Title
		if source == "" {
			source = r.DocumentID
		}
		if len(r.MatchedCiteKeys) > 0 {
			source += " [" + strings.Join(r.MatchedCiteKeys, ", ") + "]"
		}
		text := r.Text
		if len(text) > maxPassageChars {
			text = text[:maxPassageChars]
		}
		fmt.Fprintf(&contextBuilder, "[%d] source=%s page=%d score=%.3f\n%s\n\n", idx+1, source, r.Page, r.Score, text)
	}

	return fmt.Sprintf(`Answer the research question only from the evidence passages below.
Cite passages by their [number]. If the evidence is insufficient, say it directly.

Question:
%s

Evidence:
%s
`, question, contextBuilder.String())
}
