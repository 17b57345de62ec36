package domain

type SearchPhase string

const (
	SearchIdle    SearchPhase = "idle"
	SearchLoading SearchPhase = "loading"
	SearchSuccess SearchPhase = "success"
	SearchError   SearchPhase = "error"
)

// EvidenceResult is one retrieved passage returned by the evidence search.
type EvidenceResult struct {
	DocumentID      string   `json:"document_id"`
	ChunkID         string   `json:"chunk_id,omitempty"`
	Text            string   `json:"text"`
	Page            int      `json:"page,omitempty"`
	Score           float64  `json:"score"`
	Title           string   `json:"title,omitempty"`
	CiteKey         string   `json:"cite_key,omitempty"`
	MatchedCiteKeys []string `json:"matched_cite_keys,omitempty"`
}

type SearchResponse struct {
	Results []EvidenceResult `json:"results"`
	Query   string           `json:"query"`
	Total   int              `json:"total"`
}

// SearchState is the single live search state of an editor session.
type SearchState struct {
	Phase   SearchPhase      `json:"phase"`
	Query   string           `json:"query,omitempty"`
	Results []EvidenceResult `json:"results,omitempty"`
	Total   int              `json:"total"`
	Message string           `json:"message,omitempty"`
}

func IdleSearch() SearchState {
	return SearchState{Phase: SearchIdle}
}

type Answer struct {
	Text    string           `json:"text"`
	Sources []EvidenceResult `json:"sources"`
}
