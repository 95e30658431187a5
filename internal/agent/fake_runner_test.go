package agent

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// fakeRunner is a hand-written Runner fake (no real Docker daemon touched
// in tests, matching the narrow-interface fake pattern used for
// queue.Stream and statusstore.Store).
type fakeRunner struct {
	mu         sync.Mutex
	containers map[string]bool
	logLines   []string
	exitCode   int64
	waitErr    error
	killed     []string
}

func newFakeRunner(exitCode int64, logLines ...string) *fakeRunner {
	return &fakeRunner{
		containers: make(map[string]bool),
		logLines:   logLines,
		exitCode:   exitCode,
	}
}

func (f *fakeRunner) Pull(ctx context.Context, image string) error { return nil }

func (f *fakeRunner) Exists(ctx context.Context, name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.containers[name]
}

func (f *fakeRunner) Create(ctx context.Context, spec ContainerSpec) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.containers[spec.Name] = true
	return spec.Name, nil
}

func (f *fakeRunner) Start(ctx context.Context, id string) error { return nil }

func (f *fakeRunner) Logs(ctx context.Context, id string, follow bool) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(strings.Join(f.logLines, "\n") + "\n")), nil
}

func (f *fakeRunner) Wait(ctx context.Context, id string) (int64, error) {
	return f.exitCode, f.waitErr
}

func (f *fakeRunner) Kill(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.killed = append(f.killed, id)
	return nil
}

func (f *fakeRunner) Remove(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.containers, id)
	return nil
}

// fakeCloner substitutes for shellCloner so tests never shell out to git.
// When buildYAML is non-empty it writes a .raibid.yml into dir, simulating
// a successful checkout that leaves the declared build procedure in place.
type fakeCloner struct {
	resolved  string
	buildYAML string
	err       error
}

func (f fakeCloner) Clone(ctx context.Context, repo, branch, commit, dir string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if f.buildYAML != "" {
		if err := os.WriteFile(filepath.Join(dir, buildFile), []byte(f.buildYAML), 0o644); err != nil {
			return "", err
		}
	}
	return f.resolved, nil
}
