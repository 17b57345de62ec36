package bibliography

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/GoBeromsu/My-awesome-RA/internal/core/domain"
)

// Reader scans one project directory for .bib files and attached PDFs.
type Reader struct {
	root        string
	logger      *slog.Logger
	inspectPDFs bool
}

type Option func(*Reader)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Reader) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithPDFInspection reads attached PDFs to recover a DOI the entry lacks.
func WithPDFInspection(enabled bool) Option {
	return func(r *Reader) { r.inspectPDFs = enabled }
}

func NewReader(root string, opts ...Option) *Reader {
	r := &Reader{root: root, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Reader) Root() string {
	return r.root
}

type projectFiles struct {
	bibs []string
	// pdfs maps a lower-cased base name without extension to a relative path.
	pdfs map[string]string
	// byPath maps a lower-cased relative path to its original spelling.
	byPath map[string]string
}

// Entries returns every bibliography entry of the project in .bib file name
// order, then source order. Duplicate cite keys keep the first entry. A
// missing project directory yields no entries.
func (r *Reader) Entries(ctx context.Context) ([]domain.BibliographyEntry, error) {
	files, err := r.scan(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var entries []domain.BibliographyEntry
	for _, rel := range files.bibs {
		raw, err := os.ReadFile(filepath.Join(r.root, rel))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", rel, err)
		}
		for _, be := range parseBibTeX(string(raw)) {
			if seen[be.Key] {
				r.logger.Debug("duplicate_cite_key", "cite_key", be.Key, "file", rel)
				continue
			}
			seen[be.Key] = true
			entries = append(entries, r.toEntry(ctx, be, files))
		}
	}
	return entries, nil
}

func (r *Reader) toEntry(ctx context.Context, be bibEntry, files projectFiles) domain.BibliographyEntry {
	entry := domain.BibliographyEntry{
		CiteKey: be.Key,
		Title:   be.Fields["title"],
		Authors: displayAuthors(be.Fields["author"]),
		Year:    be.Fields["year"],
		DOI:     normalizeDOI(be.Fields["doi"]),
	}

	rel, ok := files.pdfs[strings.ToLower(be.Key)]
	if !ok {
		rel, ok = attachmentFromField(be.Fields["file"], files)
	}
	if ok {
		entry.HasAttachedPDF = true
		entry.AttachmentID = filepath.ToSlash(rel)
		entry.AttachmentName = filepath.Base(rel)
	}

	if entry.DOI == "" && entry.HasAttachedPDF && r.inspectPDFs && ctx.Err() == nil {
		doi, err := ExtractDOI(filepath.Join(r.root, rel))
		if err != nil {
			r.logger.Warn("pdf_doi_extract_failed", "file", rel, "error", err)
		} else {
			entry.DOI = doi
		}
	}
	return entry
}

// attachmentFromField resolves a JabRef/Zotero style file field
// ("desc:path/to/file.pdf:PDF") against the scanned PDFs.
func attachmentFromField(field string, files projectFiles) (string, bool) {
	if field == "" {
		return "", false
	}
	for _, part := range strings.Split(field, ";") {
		for _, seg := range strings.Split(part, ":") {
			seg = filepath.ToSlash(strings.TrimSpace(seg))
			if !strings.EqualFold(filepath.Ext(seg), ".pdf") {
				continue
			}
			if rel, ok := files.byPath[strings.ToLower(seg)]; ok {
				return rel, true
			}
			base := strings.TrimSuffix(strings.ToLower(filepath.Base(seg)), ".pdf")
			if rel, ok := files.pdfs[base]; ok {
				return rel, true
			}
		}
	}
	return "", false
}

func (r *Reader) scan(ctx context.Context) (projectFiles, error) {
	files := projectFiles{pdfs: map[string]string{}, byPath: map[string]string{}}
	err := filepath.WalkDir(r.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == r.root {
				return fs.SkipAll
			}
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			if path != r.root && strings.HasPrefix(d.Name(), ".") {
				return fs.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(r.root, path)
		if err != nil {
			return err
		}
		switch strings.ToLower(filepath.Ext(d.Name())) {
		case ".bib":
			files.bibs = append(files.bibs, rel)
		case ".pdf":
			base := strings.TrimSuffix(strings.ToLower(d.Name()), ".pdf")
			if _, dup := files.pdfs[base]; !dup {
				files.pdfs[base] = rel
			}
			files.byPath[strings.ToLower(filepath.ToSlash(rel))] = rel
		}
		return nil
	})
	if err != nil {
		return projectFiles{}, fmt.Errorf("scan project %s: %w", r.root, err)
	}
	sort.Strings(files.bibs)
	return files, nil
}

func normalizeDOI(doi string) string {
	doi = strings.TrimSpace(doi)
	for _, prefix := range []string{"https://doi.org/", "http://doi.org/", "doi.org/", "DOI:", "doi:"} {
		doi = strings.TrimPrefix(doi, prefix)
	}
	return strings.ToLower(strings.TrimSpace(doi))
}
