// Package card decodes the course cards professors hand out. A card holds
// one NDEF text record: a single status/language prefix byte followed by
// "<courseToken>|<professorId>".
package card

import (
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
)

const (
	// Delimiter separates the course token from the professor id.
	Delimiter = "|"

	// languageCode is written by the card programmers in front of the
	// course token and left behind after the prefix byte is dropped.
	languageCode = "en"
)

var (
	ErrUndecodablePayload = errors.New("card: payload is not valid text")
	ErrInvalidCardFormat  = errors.New("card: invalid card format")
	// ErrUnencodable is returned by Encode for ids that would not read back
	// unchanged.
	ErrUnencodable = errors.New("card: ids do not survive decoding")
)

// Payload is the decoded content of a course card.
type Payload struct {
	CourseToken string
	ProfessorID string
}

// Parse decodes a raw record payload. The course token has every "en"
// removed before trimming, so "3en80|17" yields course "380". An empty
// payload has no delimiter and is an invalid format.
func Parse(raw []byte) (Payload, error) {
	body := raw[min(1, len(raw)):]
	if !utf8.Valid(body) {
		return Payload{}, ErrUndecodablePayload
	}

	parts := strings.Split(string(body), Delimiter)
	if len(parts) < 2 {
		return Payload{}, ErrInvalidCardFormat
	}

	return Payload{
		CourseToken: strings.TrimSpace(strings.ReplaceAll(parts[0], languageCode, "")),
		ProfessorID: strings.TrimSpace(parts[1]),
	}, nil
}

// Encode builds the payload written to a card for courseID and professorID.
// It fails when Parse would not give back the same ids, e.g. for a course
// id containing "en".
func Encode(courseID, professorID string) ([]byte, error) {
	if courseID == "" || professorID == "" {
		return nil, errors.Wrap(ErrUnencodable, "course and professor id required")
	}
	out := make([]byte, 0, 1+len(languageCode)+len(courseID)+1+len(professorID))
	out = append(out, byte(len(languageCode)))
	out = append(out, languageCode...)
	out = append(out, courseID...)
	out = append(out, Delimiter...)
	out = append(out, professorID...)

	got, err := Parse(out)
	if err != nil {
		return nil, errors.Wrapf(ErrUnencodable, "course %q professor %q: %v", courseID, professorID, err)
	}
	if got.CourseToken != courseID || got.ProfessorID != professorID {
		return nil, errors.Wrapf(ErrUnencodable, "course %q professor %q read back as %q %q",
			courseID, professorID, got.CourseToken, got.ProfessorID)
	}
	return out, nil
}
