package domain

import "context"

type Disposition int

const (
	DispositionSucceeded Disposition = iota
	DispositionRetryable
	DispositionTerminal
)

// Result is the explicit three-way outcome of a handler run. The store's
// state transitions are driven by this value, never by panics: a retryable
// failure re-queues with backoff until retries run out, a terminal failure
// dead-letters immediately.
type Result struct {
	Disposition Disposition
	Reason      string
}

func Succeed() Result {
	return Result{Disposition: DispositionSucceeded}
}

func Retry(err error) Result {
	return Result{Disposition: DispositionRetryable, Reason: errReason(err)}
}

func Fail(err error) Result {
	return Result{Disposition: DispositionTerminal, Reason: errReason(err)}
}

func errReason(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}

// Handler executes one claimed job.
type Handler func(ctx context.Context, job Payload) Result
