package preflight

import (
	"context"

	"github.com/HaozheZhao/cua-annotation-tool/internal/config"
	"github.com/HaozheZhao/cua-annotation-tool/internal/deps"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
	// Optional failures are reported but do not fail the session.
	Optional bool `json:"optional,omitempty"`
}

// RunAll executes every check for cfg in a stable order.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckReadableDirectory("Data directory", cfg.Paths.DataDir),
		CheckReadableFile("Roster CSV", cfg.Paths.RosterCSV),
		CheckDirectoryAccess("Output directory", cfg.Paths.OutputDir),
	}
	if cfg.Paths.StateDir != cfg.Paths.OutputDir {
		results = append(results, CheckDirectoryAccess("State directory", cfg.Paths.StateDir))
	}
	results = append(results, CheckStateLock(cfg.Paths.StateDir))
	log := CheckDirectoryAccess("Log directory", cfg.Paths.LogDir)
	log.Optional = true
	results = append(results, log)

	for _, status := range deps.CheckMedia(ctx, cfg) {
		results = append(results, fromStatus(status))
	}
	return results
}

// Failed returns the required checks that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed && !r.Optional {
			failed = append(failed, r)
		}
	}
	return failed
}

func fromStatus(status deps.Status) Result {
	r := Result{Name: status.Name, Passed: status.Available, Optional: status.Optional}
	switch {
	case !status.Available:
		r.Detail = status.Detail
	case status.Version != "":
		r.Detail = status.Command + " (" + status.Version + ")"
	case status.Detail != "":
		r.Detail = status.Command + " (" + status.Detail + ")"
	default:
		r.Detail = status.Command
	}
	return r
}
