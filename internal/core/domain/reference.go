package domain

import "time"

// BibliographyEntry is one citation parsed from the project's bibliography files.
type BibliographyEntry struct {
	CiteKey        string `json:"cite_key"`
	Title          string `json:"title,omitempty"`
	Authors        string `json:"authors,omitempty"`
	Year           string `json:"year,omitempty"`
	DOI            string `json:"doi,omitempty"`
	HasAttachedPDF bool   `json:"has_attached_pdf"`
	AttachmentID   string `json:"attachment_id,omitempty"`
	AttachmentName string `json:"attachment_name,omitempty"`
}

// PaperMetadata is bibliographic metadata recovered from an external lookup.
type PaperMetadata struct {
	CiteKey   string    `json:"cite_key"`
	Title     string    `json:"title,omitempty"`
	Authors   string    `json:"authors,omitempty"`
	Year      string    `json:"year,omitempty"`
	Source    string    `json:"source,omitempty"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Complete reports whether the metadata carries every display field.
func (m PaperMetadata) Complete() bool {
	return m.Title != "" && m.Authors != "" && m.Year != ""
}

// ReferencePaper is the reconciled view of one reference. It is derived on
// every reconciliation and never persisted.
type ReferencePaper struct {
	CiteKey        string      `json:"cite_key"`
	Title          string      `json:"title,omitempty"`
	Authors        string      `json:"authors,omitempty"`
	Year           string      `json:"year,omitempty"`
	HasPDF         bool        `json:"has_pdf"`
	AttachmentID   string      `json:"attachment_id,omitempty"`
	AttachmentName string      `json:"attachment_name,omitempty"`
	Status         IndexStatus `json:"status"`
	DocumentID     string      `json:"document_id,omitempty"`
	ChunkCount     int         `json:"chunk_count,omitempty"`
	Error          string      `json:"error,omitempty"`
	Orphan         bool        `json:"orphan"`
}
