package agent

import (
	"context"
	"os/exec"
	"strings"

	"github.com/raibid-labs/raibid-ci/internal/domain"
)

// cloner is the narrow git surface the executor needs, kept as an
// interface so tests can substitute a fake instead of shelling out.
type cloner interface {
	// Clone performs a shallow checkout of commit on repo into dir. If
	// commit is domain.HEADCommit, it resolves to the current tip of
	// branch and returns the resolved SHA (spec §4.2's "Clone" rule).
	Clone(ctx context.Context, repo, branch, commit, dir string) (resolvedCommit string, err error)
}

// shellCloner shells out to the system git binary, mirroring the
// teacher's pattern of driving external tools via os/exec (its
// BuildApplication step invokes `go build` the same way) rather than
// pulling in a pure-Go git implementation no pack repo uses.
type shellCloner struct{}

func (shellCloner) Clone(ctx context.Context, repo, branch, commit, dir string) (string, error) {
	if branch == "" {
		branch = "main"
	}

	cmd := exec.CommandContext(ctx, "git", "clone", "--quiet", "--depth", "1", "--branch", branch, repo, dir)
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", &buildFailure{reason: domain.ReasonCloneFailed, err: wrapOutput(err, out)}
	}

	if commit == "" || commit == domain.HEADCommit {
		head, err := resolveHead(ctx, dir)
		if err != nil {
			return "", &buildFailure{reason: domain.ReasonCloneFailed, err: err}
		}
		return head, nil
	}

	cmd = exec.CommandContext(ctx, "git", "-C", dir, "checkout", "--quiet", commit)
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", &buildFailure{reason: domain.ReasonCloneFailed, err: wrapOutput(err, out)}
	}
	return commit, nil
}

func resolveHead(ctx context.Context, dir string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", "-C", dir, "rev-parse", "HEAD")
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func wrapOutput(err error, out []byte) error {
	trimmed := strings.TrimSpace(string(out))
	if trimmed == "" {
		return err
	}
	return &execOutputError{underlying: err, output: trimmed}
}

type execOutputError struct {
	underlying error
	output     string
}

func (e *execOutputError) Error() string { return e.underlying.Error() + ": " + e.output }
func (e *execOutputError) Unwrap() error { return e.underlying }
