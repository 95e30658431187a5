package agent

import "time"

// Config is the agent process's configuration slice of the dispatcher's
// Config struct (spec §6's "recognized options", the agents.* keys).
// Queue/status-store connection details live in internal/config.Config
// instead — only the fields the agent's own run loop reads belong here.
type Config struct {
	BuildImage     string
	BuildDeadline  time.Duration
	ReclaimMinIdle time.Duration
	DrainGrace     time.Duration
}

// DefaultBuildDeadline is the "implementation-defined default in the tens
// of minutes" spec §4.2 calls for.
const DefaultBuildDeadline = 30 * time.Minute

// DefaultDrainGrace bounds how long an agent waits for an in-flight build
// to finish naturally after a termination signal before killing it.
const DefaultDrainGrace = 2 * time.Minute
