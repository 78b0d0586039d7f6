package attendance

import (
	"context"
	"errors"
	"fmt"

	"attendease/internal/card"
	"attendease/internal/nfc"
)

// Reason classifies why a scan session failed.
type Reason string

const (
	ReasonReaderUnavailable    Reason = "reader_unavailable"
	ReasonReaderFailed         Reason = "reader_failed"
	ReasonNoRecordsFound       Reason = "no_records_found"
	ReasonUndecodablePayload   Reason = "undecodable_card_payload"
	ReasonInvalidCardFormat    Reason = "invalid_card_format"
	ReasonCourseMismatch       Reason = "course_mismatch"
	ReasonUnknownProfessorCard Reason = "unknown_professor_card"
	ReasonStudentNotFound      Reason = "student_not_found"
	ReasonLookupFailed         Reason = "lookup_failed"
	ReasonSessionCancelled     Reason = "session_cancelled"
	ReasonWriteFailed          Reason = "write_failed"
)

var (
	// ErrLookupTimeout is the cause of a lookup that ran out of time.
	ErrLookupTimeout = errors.New("lookup timed out")
	// ErrScanTimeout is the cause of a session that outlived its scan timeout.
	ErrScanTimeout = errors.New("scan timed out")
)

// Lookup stages reported on LookupFailed.
const (
	LookupProfessor = "professor"
	LookupStudent   = "student"
)

// ScanError is the terminal failure of a scan session. Its Error text is
// the message shown to the user.
type ScanError struct {
	Reason   Reason
	Scanned  string // course token read from the card, for CourseMismatch
	Selected string // selected course, for CourseMismatch
	Lookup   string // failing lookup stage, for LookupFailed
	Err      error
}

// Sentinels for errors.Is.
var (
	ErrReaderUnavailable    = &ScanError{Reason: ReasonReaderUnavailable}
	ErrReaderFailed         = &ScanError{Reason: ReasonReaderFailed}
	ErrNoRecordsFound       = &ScanError{Reason: ReasonNoRecordsFound}
	ErrUndecodablePayload   = &ScanError{Reason: ReasonUndecodablePayload}
	ErrInvalidCardFormat    = &ScanError{Reason: ReasonInvalidCardFormat}
	ErrCourseMismatch       = &ScanError{Reason: ReasonCourseMismatch}
	ErrUnknownProfessorCard = &ScanError{Reason: ReasonUnknownProfessorCard}
	ErrStudentNotFound      = &ScanError{Reason: ReasonStudentNotFound}
	ErrLookupFailed         = &ScanError{Reason: ReasonLookupFailed}
	ErrSessionCancelled     = &ScanError{Reason: ReasonSessionCancelled}
	ErrWriteFailed          = &ScanError{Reason: ReasonWriteFailed}
)

func (e *ScanError) Error() string {
	switch e.Reason {
	case ReasonReaderUnavailable:
		return "NFC is not supported on this device"
	case ReasonReaderFailed:
		if e.Err != nil {
			return "Error: " + e.Err.Error()
		}
		return "Error: reader failed"
	case ReasonNoRecordsFound:
		return "No valid records found on card"
	case ReasonUndecodablePayload:
		return "Unable to decode card data"
	case ReasonInvalidCardFormat:
		return "Invalid card format"
	case ReasonCourseMismatch:
		return fmt.Sprintf("This card is not for the selected course. Scanned: %s, Selected: %s", e.Scanned, e.Selected)
	case ReasonUnknownProfessorCard:
		return "Invalid professor card for this course"
	case ReasonStudentNotFound:
		return "Student information not found"
	case ReasonLookupFailed:
		prefix := "Database error"
		if e.Lookup == LookupStudent {
			prefix = "Error fetching student data"
		}
		if e.Err != nil {
			return prefix + ": " + e.Err.Error()
		}
		return prefix
	case ReasonSessionCancelled:
		return "Scanning was canceled"
	case ReasonWriteFailed:
		if e.Err != nil {
			return "Unable to save attendance: " + e.Err.Error()
		}
		return "Unable to save attendance"
	}
	return string(e.Reason)
}

func (e *ScanError) Unwrap() error { return e.Err }

// Is matches any ScanError with the same Reason.
func (e *ScanError) Is(target error) bool {
	t, ok := target.(*ScanError)
	return ok && t.Reason == e.Reason
}

func fail(reason Reason, err error) *ScanError {
	return &ScanError{Reason: reason, Err: err}
}

// ReasonOf returns the failure reason of err, or "" for nil and errors
// that are not scan failures.
func ReasonOf(err error) Reason {
	var se *ScanError
	if errors.As(err, &se) {
		return se.Reason
	}
	return ""
}

// UserMessage renders err as the single message shown to the user.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var se *ScanError
	if errors.As(err, &se) {
		return se.Error()
	}
	return "Error: " + err.Error()
}

func parseError(err error) *ScanError {
	switch {
	case errors.Is(err, card.ErrInvalidCardFormat):
		return fail(ReasonInvalidCardFormat, err)
	default:
		return fail(ReasonUndecodablePayload, err)
	}
}

// readerError classifies an error reported by the tag reader.
func readerError(err error) *ScanError {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, nfc.ErrClosed):
		return fail(ReasonSessionCancelled, err)
	case errors.Is(err, nfc.ErrUnavailable):
		return fail(ReasonReaderUnavailable, err)
	case errors.Is(err, nfc.ErrNoRecordsFound):
		return fail(ReasonNoRecordsFound, err)
	case errors.Is(err, context.DeadlineExceeded):
		return fail(ReasonReaderFailed, ErrScanTimeout)
	default:
		return fail(ReasonReaderFailed, err)
	}
}

// sessionError classifies the end of a session context. A deadline is the
// scan timeout and reads the same as a reader that timed out.
func sessionError(err error) *ScanError {
	if errors.Is(err, context.DeadlineExceeded) {
		return fail(ReasonReaderFailed, ErrScanTimeout)
	}
	return fail(ReasonSessionCancelled, err)
}
