package agent

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/raibid-labs/raibid-ci/internal/domain"
)

// buildFile is the single recognized file name for a repository's declared
// build procedure (SPEC_FULL.md §4.2 expansion).
const buildFile = ".raibid.yml"

// buildProcedure is the one recognized shape of .raibid.yml: a single
// shell command. Naming follows the original agent's pipeline module
// (crates/agent/src/pipeline.rs) generalized to Go.
type buildProcedure struct {
	Build string `yaml:"build"`
}

// loadBuildProcedure reads and parses .raibid.yml from the workspace root.
// Its absence, or an empty build command, is a clone-phase failure with
// reason "no-build-file" (spec §4.2), not a crash.
func loadBuildProcedure(workspaceRoot string) (*buildProcedure, error) {
	raw, err := os.ReadFile(filepath.Join(workspaceRoot, buildFile))
	if os.IsNotExist(err) {
		return nil, &buildFailure{reason: domain.ReasonNoBuildFile, err: err}
	}
	if err != nil {
		return nil, &buildFailure{reason: domain.ReasonNoBuildFile, err: err}
	}

	var proc buildProcedure
	if err := yaml.Unmarshal(raw, &proc); err != nil {
		return nil, &buildFailure{reason: domain.ReasonNoBuildFile, err: err}
	}
	if proc.Build == "" {
		return nil, &buildFailure{reason: domain.ReasonNoBuildFile, err: errEmptyBuildCommand}
	}
	return &proc, nil
}

var errEmptyBuildCommand = buildFailureErr("no build command declared in " + buildFile)

type buildFailureErr string

func (e buildFailureErr) Error() string { return string(e) }
