package domain

import "io"

type IndexStatus string

const (
	StatusNotIndexed IndexStatus = "not_indexed"
	StatusIndexing   IndexStatus = "indexing"
	StatusIndexed    IndexStatus = "indexed"
	StatusError      IndexStatus = "error"
)

// RemoteStatus is the lifecycle status reported by the remote indexing service.
type RemoteStatus string

const (
	RemoteProcessing RemoteStatus = "processing"
	RemoteIndexed    RemoteStatus = "indexed"
	RemoteError      RemoteStatus = "error"
)

// IndexedDocument is the locally tracked view of one document known to the
// remote indexing service.
type IndexedDocument struct {
	ID                  string      `json:"document_id"`
	Title               string      `json:"title"`
	CiteKey             string      `json:"cite_key,omitempty"`
	Authors             string      `json:"authors,omitempty"`
	Year                string      `json:"year,omitempty"`
	Status              IndexStatus `json:"status"`
	ChunkCount          int         `json:"chunk_count,omitempty"`
	Message             string      `json:"message,omitempty"`
	IndexedAt           string      `json:"indexed_at,omitempty"`
	ConsecutiveFailures int         `json:"consecutive_failures"`
}

// UploadFile is a candidate file for indexing as declared by the uploader.
type UploadFile struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// UploadAck is the remote acknowledgment of an accepted upload.
type UploadAck struct {
	DocumentID string       `json:"document_id"`
	Status     RemoteStatus `json:"status"`
	Message    string       `json:"message,omitempty"`
}

// StatusReport is a single poll response for one document.
type StatusReport struct {
	DocumentID string       `json:"document_id"`
	Status     RemoteStatus `json:"status"`
	Message    string       `json:"message,omitempty"`
	ChunkCount int          `json:"chunk_count,omitempty"`
}

// RemoteDocument is one entry of the remote document listing.
type RemoteDocument struct {
	DocumentID string `json:"document_id"`
	Title      string `json:"title"`
	CiteKey    string `json:"cite_key,omitempty"`
	Authors    string `json:"authors,omitempty"`
	Year       string `json:"year,omitempty"`
	ChunkCount int    `json:"chunk_count"`
	IndexedAt  string `json:"indexed_at,omitempty"`
}

// UploadResult is the per-file outcome of a batch upload.
type UploadResult struct {
	Filename string           `json:"filename"`
	Document *IndexedDocument `json:"document,omitempty"`
	Error    string           `json:"error,omitempty"`
	Err      error            `json:"-"`
}
