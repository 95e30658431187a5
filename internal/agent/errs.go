package agent

import "github.com/raibid-labs/raibid-ci/internal/domain"

// buildFailure pairs a terminal Reason with the error that produced it,
// the agent-side equivalent of the dispatcher's httpapi.APIError (spec §7's
// "closed error enumeration carrying reason").
type buildFailure struct {
	reason domain.Reason
	err    error
}

func (f *buildFailure) Error() string {
	if f.err == nil {
		return string(f.reason)
	}
	return string(f.reason) + ": " + f.err.Error()
}

func (f *buildFailure) Unwrap() error { return f.err }
