package usecase

import (
	"sort"
	"strings"

	"github.com/GoBeromsu/My-awesome-RA/internal/core/domain"
)

// Reconcile merges bibliography entries, tracked documents and cached
// metadata into one reference list. Bibliography-backed papers come first,
// sorted by cite key; documents matching no entry by hint or title follow as orphans in
// input order. The result depends only on the inputs.
func Reconcile(
	entries []domain.BibliographyEntry,
	docs []domain.IndexedDocument,
	metadata map[string]domain.PaperMetadata,
) []domain.ReferencePaper {
	byKey := make(map[string]int, len(docs))
	byTitle := make(map[string]int, len(docs))
	for i, doc := range docs {
		if hint := strings.ToLower(strings.TrimSpace(doc.CiteKey)); hint != "" {
			if _, exists := byKey[hint]; !exists {
				byKey[hint] = i
			}
		}
		if title := normalizeTitle(doc.Title); title != "" {
			if _, exists := byTitle[title]; !exists {
				byTitle[title] = i
			}
		}
	}

	sorted := make([]domain.BibliographyEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CiteKey < sorted[j].CiteKey
	})

	// every document matching any entry is claimed, even when another
	// document supplies the entry's status
	entryKeys := make(map[string]bool, len(sorted))
	papers := make([]domain.ReferencePaper, 0, len(entries)+len(docs))
	for _, entry := range sorted {
		paper := domain.ReferencePaper{
			CiteKey:        entry.CiteKey,
			Title:          entry.Title,
			Authors:        entry.Authors,
			Year:           entry.Year,
			HasPDF:         entry.HasAttachedPDF,
			AttachmentID:   entry.AttachmentID,
			AttachmentName: entry.AttachmentName,
			Status:         domain.StatusNotIndexed,
		}
		if meta, ok := metadata[entry.CiteKey]; ok {
			if paper.Title == "" {
				paper.Title = meta.Title
			}
			if paper.Authors == "" {
				paper.Authors = meta.Authors
			}
			if paper.Year == "" {
				paper.Year = meta.Year
			}
		}

		key := strings.ToLower(entry.CiteKey)
		idx, ok := byKey[key]
		if !ok {
			idx, ok = byTitle[key]
		}
		if ok {
			applyDocument(&paper, docs[idx])
		}
		if key != "" {
			entryKeys[key] = true
		}
		papers = append(papers, paper)
	}

	for _, doc := range docs {
		if entryKeys[strings.ToLower(strings.TrimSpace(doc.CiteKey))] || entryKeys[normalizeTitle(doc.Title)] {
			continue
		}
		title := doc.Title
		if title == "" {
			title = doc.ID
		}
		paper := domain.ReferencePaper{
			CiteKey: title,
			Title:   title,
			Authors: doc.Authors,
			Year:    doc.Year,
			HasPDF:  true,
			Orphan:  true,
		}
		applyDocument(&paper, doc)
		papers = append(papers, paper)
	}
	return papers
}

func applyDocument(paper *domain.ReferencePaper, doc domain.IndexedDocument) {
	paper.Status = doc.Status
	paper.DocumentID = doc.ID
	paper.ChunkCount = doc.ChunkCount
	if doc.Status == domain.StatusError {
		paper.Error = doc.Message
	}
}

func normalizeTitle(title string) string {
	t := strings.ToLower(strings.TrimSpace(title))
	return strings.TrimSuffix(t, ".pdf")
}

// MatchCiteKeys annotates a search result title with the bibliography keys it
// plausibly refers to: case-insensitive substring containment either way.
func MatchCiteKeys(title string, citeKeys []string) []string {
	t := strings.ToLower(strings.TrimSpace(title))
	if t == "" {
		return nil
	}
	var matched []string
	for _, key := range citeKeys {
		k := strings.ToLower(strings.TrimSpace(key))
		if k == "" {
			continue
		}
		if strings.Contains(t, k) || strings.Contains(k, t) {
			matched = append(matched, key)
		}
	}
	return matched
}
