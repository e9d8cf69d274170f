package adapter

import "fmt"

type FailureKind string

const (
	KindHTTPError      FailureKind = "http_error"
	KindTransportError FailureKind = "transport_error"
	KindConfigError    FailureKind = "config_error"
)

const (
	MessageTransportError = "Unable to process request."
	MessageConfigError    = "Provider is not configured."
)

// Failure is the caller-facing description of a failed call. Message is
// safe to show to an end user; technical detail only goes to the log.
type Failure struct {
	Kind    FailureKind
	Message string
}

func (f *Failure) Error() string {
	return f.Message
}

// Result is either a reply (Failure == nil) or a Failure.
type Result struct {
	Text    string
	Failure *Failure
}

func (r Result) OK() bool {
	return r.Failure == nil
}

// Err returns the Failure as an error, or nil on success.
func (r Result) Err() error {
	if r.Failure == nil {
		return nil
	}
	return r.Failure
}

func success(text string) Result {
	return Result{Text: text}
}

func httpFailure(status int) Result {
	return Result{Failure: &Failure{Kind: KindHTTPError, Message: fmt.Sprintf("HTTP error! status: %d", status)}}
}

func transportFailure() Result {
	return Result{Failure: &Failure{Kind: KindTransportError, Message: MessageTransportError}}
}

func configFailure() Result {
	return Result{Failure: &Failure{Kind: KindConfigError, Message: MessageConfigError}}
}
