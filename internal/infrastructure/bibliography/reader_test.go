package bibliography

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/GoBeromsu/My-awesome-RA/internal/core/domain"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", rel, err)
	}
}

func TestReaderEntriesResolvesAttachments(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "refs.bib", `
@article{Smith2020,
  title = {Deep Learning},
  author = {Smith, Jane and Doe, John},
  year = {2020},
  doi = {https://doi.org/10.1000/ABC}
}
@inproceedings{Vaswani2017Attention,
  title = {Attention Is All You Need},
  year = {2017},
  file = {Full Text:papers/Attention.pdf:application/pdf}
}
@book{Knuth1984,
  title = {The TeXbook}
}
`)
	writeFile(t, root, "z-extra.bib", `@article{Smith2020, title = {Shadowed duplicate}}`)
	writeFile(t, root, ".trash/old.bib", `@article{Hidden2000, title = {Hidden}}`)
	writeFile(t, root, "SMITH2020.pdf", "%PDF-1.4")
	writeFile(t, root, "papers/Attention.pdf", "%PDF-1.4")

	entries, err := NewReader(root).Entries(context.Background())
	if err != nil {
		t.Fatalf("Entries() error = %v", err)
	}

	want := []domain.BibliographyEntry{
		{
			CiteKey:        "Smith2020",
			Title:          "Deep Learning",
			Authors:        "Smith, Jane; Doe, John",
			Year:           "2020",
			DOI:            "10.1000/abc",
			HasAttachedPDF: true,
			AttachmentID:   "SMITH2020.pdf",
			AttachmentName: "SMITH2020.pdf",
		},
		{
			CiteKey:        "Vaswani2017Attention",
			Title:          "Attention Is All You Need",
			Year:           "2017",
			HasAttachedPDF: true,
			AttachmentID:   "papers/Attention.pdf",
			AttachmentName: "Attention.pdf",
		},
		{CiteKey: "Knuth1984", Title: "The TeXbook"},
	}
	if diff := cmp.Diff(want, entries); diff != "" {
		t.Fatalf("Entries() mismatch (-want +got):\n%s", diff)
	}
}

func TestReaderMissingRootHasNoEntries(t *testing.T) {
	entries, err := NewReader(filepath.Join(t.TempDir(), "absent")).Entries(context.Background())
	if err != nil {
		t.Fatalf("Entries() error = %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no entries, got %+v", entries)
	}
}

func TestReaderHonoursCancellation(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "refs.bib", `@article{A2020, title = {A}}`)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewReader(root).Entries(ctx); err == nil {
		t.Fatal("expected cancellation error")
	}
}

func TestReaderSkipsUnreadablePDFDuringInspection(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "refs.bib", `@article{Broken2022, title = {Broken}}`)
	writeFile(t, root, "Broken2022.pdf", "not really a pdf")

	entries, err := NewReader(root, WithPDFInspection(true)).Entries(context.Background())
	if err != nil {
		t.Fatalf("Entries() error = %v", err)
	}
	if len(entries) != 1 || !entries[0].HasAttachedPDF || entries[0].DOI != "" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}
