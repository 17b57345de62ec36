package usecase

import (
	"reflect"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/GoBeromsu/My-awesome-RA/internal/core/domain"
)

func TestReconcileMatchesByHintThenTitle(t *testing.T) {
	entries := []domain.BibliographyEntry{
		{CiteKey: "Vaswani2017", Title: "Attention Is All You Need", HasAttachedPDF: true},
		{CiteKey: "Devlin2019"},
		{CiteKey: "Brown2020", Title: "Language Models are Few-Shot Learners"},
	}
	docs := []domain.IndexedDocument{
		{ID: "d-brown", Title: "brown2020.PDF", Status: domain.StatusIndexing},
		{ID: "d-vas", Title: "attention.pdf", CiteKey: "vaswani2017", Status: domain.StatusIndexed, ChunkCount: 40},
		{ID: "d-orphan", Title: "Untitled Notes", Status: domain.StatusError, Message: "bad pdf"},
	}

	got := Reconcile(entries, docs, nil)
	want := []domain.ReferencePaper{
		{CiteKey: "Brown2020", Title: "Language Models are Few-Shot Learners", Status: domain.StatusIndexing, DocumentID: "d-brown"},
		{CiteKey: "Devlin2019", Status: domain.StatusNotIndexed},
		{CiteKey: "Vaswani2017", Title: "Attention Is All You Need", HasPDF: true, Status: domain.StatusIndexed, DocumentID: "d-vas", ChunkCount: 40},
		{CiteKey: "Untitled Notes", Title: "Untitled Notes", HasPDF: true, Status: domain.StatusError, DocumentID: "d-orphan", Error: "bad pdf", Orphan: true},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Reconcile() mismatch (-want +got):\n%s", diff)
	}
}

func TestReconcileFirstMatchWins(t *testing.T) {
	entries := []domain.BibliographyEntry{{CiteKey: "Smith2020"}}
	docs := []domain.IndexedDocument{
		{ID: "first", CiteKey: "SMITH2020", Title: "a.pdf", Status: domain.StatusIndexed},
		{ID: "second", CiteKey: "smith2020", Title: "b.pdf", Status: domain.StatusIndexing},
	}

	got := Reconcile(entries, docs, nil)
	if len(got) != 1 {
		t.Fatalf("expected both documents claimed by the entry, got %+v", got)
	}
	if got[0].DocumentID != "first" || got[0].Status != domain.StatusIndexed {
		t.Fatalf("expected first document to supply status, got %+v", got[0])
	}
}

func TestReconcileTitleMatchIsClaimedAlongsideHintMatch(t *testing.T) {
	entries := []domain.BibliographyEntry{{CiteKey: "Smith2020"}}
	docs := []domain.IndexedDocument{
		{ID: "d1", CiteKey: "Smith2020", Title: "paper.pdf", Status: domain.StatusIndexed},
		{ID: "d2", Title: "Smith2020.pdf", Status: domain.StatusIndexed},
		{ID: "d3", Title: "Other.pdf", Status: domain.StatusIndexed},
	}

	got := Reconcile(entries, docs, nil)
	if len(got) != 2 {
		t.Fatalf("expected one paper and one orphan, got %+v", got)
	}
	if got[0].CiteKey != "Smith2020" || got[0].DocumentID != "d1" {
		t.Fatalf("expected hint match to win, got %+v", got[0])
	}
	if !got[1].Orphan || got[1].DocumentID != "d3" {
		t.Fatalf("expected only the unmatched document as orphan, got %+v", got[1])
	}
}

func TestReconcileMetadataFillsOnlyMissingFields(t *testing.T) {
	entries := []domain.BibliographyEntry{
		{CiteKey: "Lee2021", Title: "Bib Title"},
		{CiteKey: "Kim2022"},
	}
	meta := map[string]domain.PaperMetadata{
		"Lee2021": {CiteKey: "Lee2021", Title: "Looked Up Title", Authors: "Lee, J.", Year: "2021"},
	}

	got := Reconcile(entries, nil, meta)
	if got[1].Title != "Bib Title" || got[1].Authors != "Lee, J." || got[1].Year != "2021" {
		t.Fatalf("unexpected merged paper: %+v", got[1])
	}
	if got[0].CiteKey != "Kim2022" || got[0].Title != "" {
		t.Fatalf("missing metadata must fall back to the bare key: %+v", got[0])
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	entries := []domain.BibliographyEntry{{CiteKey: "b"}, {CiteKey: "a"}, {CiteKey: "c", Title: "C"}}
	docs := []domain.IndexedDocument{
		{ID: "1", Title: "a.pdf", Status: domain.StatusIndexed},
		{ID: "2", Title: "zzz", Status: domain.StatusIndexing},
		{ID: "3", CiteKey: "C", Status: domain.StatusError, Message: "x"},
	}
	meta := map[string]domain.PaperMetadata{"b": {Title: "B"}}

	first := Reconcile(entries, docs, meta)
	second := Reconcile(entries, docs, meta)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("Reconcile() is not idempotent:\n%s", cmp.Diff(first, second))
	}
	if entries[0].CiteKey != "b" {
		t.Fatalf("Reconcile() must not reorder its input")
	}
}

func TestReconcileEveryInputIsRepresented(t *testing.T) {
	entries := []domain.BibliographyEntry{{CiteKey: "x"}, {CiteKey: "y"}}
	docs := []domain.IndexedDocument{
		{ID: "1", Title: "x.pdf"},
		{ID: "2", Title: "Other"},
		{ID: "3"},
	}

	got := Reconcile(entries, docs, nil)
	orphans := 0
	for _, p := range got {
		if p.Orphan {
			orphans++
		}
	}
	if len(got)-orphans != len(entries) {
		t.Fatalf("expected one paper per entry, got %+v", got)
	}
	if orphans != 2 {
		t.Fatalf("expected 2 orphans, got %d", orphans)
	}
	if got[len(got)-1].CiteKey != "3" {
		t.Fatalf("untitled orphan must fall back to its id, got %+v", got[len(got)-1])
	}
}

func TestMatchCiteKeys(t *testing.T) {
	keys := []string{"Vaswani2017", "attention", "AI", ""}

	got := MatchCiteKeys("Attention Is All You Need", keys)
	if diff := cmp.Diff([]string{"attention"}, got); diff != "" {
		t.Fatalf("MatchCiteKeys() mismatch (-want +got):\n%s", diff)
	}

	got = MatchCiteKeys("vaswani", keys)
	if diff := cmp.Diff([]string{"Vaswani2017"}, got); diff != "" {
		t.Fatalf("reverse containment mismatch (-want +got):\n%s", diff)
	}

	if got := MatchCiteKeys("", keys); got != nil {
		t.Fatalf("empty title must match nothing, got %v", got)
	}
}
