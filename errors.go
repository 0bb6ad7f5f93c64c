package leadcapture

import "fmt"

// FallbackSubmissionMessage is reported when the endpoint rejects a lead
// without saying why.
const FallbackSubmissionMessage = "Function call failed"

// SubmissionErrorKind tells why a submission failed.
type SubmissionErrorKind string

const (
	// SubmissionRejected means the endpoint answered with a non-2xx status.
	SubmissionRejected SubmissionErrorKind = "rejected"
	// SubmissionTransport means no response was received.
	SubmissionTransport SubmissionErrorKind = "transport"
	// SubmissionMalformed means the endpoint answered with a body that could
	// not be decoded.
	SubmissionMalformed SubmissionErrorKind = "malformed"
	// SubmissionAborted means the submit call did not return normally.
	SubmissionAborted SubmissionErrorKind = "aborted"
)

// SubmissionError is returned when the remote endpoint does not accept a lead.
type SubmissionError struct {
	Kind       SubmissionErrorKind
	StatusCode int
	Message    string
	Err        error
}

func (e *SubmissionError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("submission %s (status %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("submission %s: %s", e.Kind, e.Message)
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}
