package domain

import (
	"encoding/json"
	"fmt"
)

type SignalName string

const (
	SignalParagraphChanged    SignalName = "paragraph_changed"
	SignalShowEvidencePanel   SignalName = "show_evidence_panel"
	SignalReferencesUpdated   SignalName = "references_updated"
	SignalSearchStateChanged  SignalName = "search_state_changed"
	SignalBibliographyChanged SignalName = "bibliography_changed"
	SignalSessionClosed       SignalName = "session_closed"
)

// Signal is an event exchanged between the host editor and a session.
// Payload holds the JSON form of the typed payload registered for Name.
type Signal struct {
	Name      SignalName      `json:"name"`
	SessionID string          `json:"session_id"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type ParagraphChanged struct {
	Text string `json:"text"`
}

type ShowEvidencePanel struct {
	Query string `json:"query"`
}

type ReferencesUpdated struct {
	References []ReferencePaper `json:"references"`
}

type SearchStateChanged struct {
	State SearchState `json:"state"`
}

type BibliographyChanged struct {
	Path string `json:"path,omitempty"`
}

type SessionClosed struct{}

func NewSignal(name SignalName, sessionID string, payload any) (Signal, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Signal{}, fmt.Errorf("marshal %s payload: %w", name, err)
	}
	return Signal{Name: name, SessionID: sessionID, Payload: raw}, nil
}

func (s Signal) Decode(v any) error {
	if len(s.Payload) == 0 {
		return WrapError(ErrInvalidInput, "decode "+string(s.Name), fmt.Errorf("empty payload"))
	}
	if err := json.Unmarshal(s.Payload, v); err != nil {
		return WrapError(ErrInvalidInput, "decode "+string(s.Name), err)
	}
	return nil
}
