package domain

import (
	"errors"
	"fmt"
)

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrTemporary        = errors.New("temporary failure")
	ErrSearchSuperseded = errors.New("search superseded")
	ErrSessionClosed    = errors.New("session closed")
	ErrSessionNotFound  = errors.New("session not found")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// ValidationError rejects a file before any network call is made.
type ValidationError struct {
	Filename   string
	Constraint string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Filename, e.Constraint)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// TransportError is a failed request: the connection failed or the remote
// answered with a non-success HTTP status.
type TransportError struct {
	Operation  string
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Operation, e.Err)
	case e.Body != "":
		return fmt.Sprintf("%s: status %d: %s", e.Operation, e.StatusCode, e.Body)
	default:
		return fmt.Sprintf("%s: status %d", e.Operation, e.StatusCode)
	}
}

func (e *TransportError) Unwrap() []error {
	var errs []error
	switch e.StatusCode {
	case 400, 413, 415, 422:
		errs = append(errs, ErrInvalidInput)
	case 401, 403:
		errs = append(errs, ErrUnauthorized)
	case 404:
		errs = append(errs, ErrDocumentNotFound)
	default:
		errs = append(errs, ErrTemporary)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// ReportedError carries an error the remote service reported explicitly,
// either as a document status or as a "detail" message on a rejected request.
// Message is shown to the user verbatim.
type ReportedError struct {
	DocumentID string
	StatusCode int
	Message    string
}

func (e *ReportedError) Error() string {
	return e.Message
}

func (e *ReportedError) Unwrap() error {
	switch e.StatusCode {
	case 400, 413, 415, 422:
		return ErrInvalidInput
	case 401, 403:
		return ErrUnauthorized
	case 404:
		return ErrDocumentNotFound
	default:
		return nil
	}
}

func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
