package httpadapter

import "github.com/GoBeromsu/My-awesome-RA/internal/core/domain"

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

type referencesResponse struct {
	SessionID  string                  `json:"session_id"`
	References []domain.ReferencePaper `json:"references"`
}

type documentsResponse struct {
	SessionID string                   `json:"session_id"`
	Documents []domain.IndexedDocument `json:"documents"`
}

type uploadResponse struct {
	Results []domain.UploadResult `json:"results"`
}

type paragraphRequest struct {
	Text string `json:"text"`
}

type autoModeRequest struct {
	Enabled *bool `json:"enabled"`
}

type autoModeResponse struct {
	Enabled bool `json:"enabled"`
}

type searchRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k,omitempty"`
}

type askRequest struct {
	Question string `json:"question"`
	TopK     int    `json:"top_k,omitempty"`
}
