package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/offcache/internal/doc"
	"github.com/roach88/offcache/internal/remote"
)

// TraceSnapshot captures what a scenario run did locally and remotely.
type TraceSnapshot struct {
	ScenarioName string        `json:"scenario_name"`
	Trace        []TraceEvent  `json:"trace"`
	RemoteCalls  []remote.Call `json:"remote_calls"`
}

// toCanonicalMap converts the snapshot into the plain values
// doc.MarshalCanonical accepts. Id lists are kept only on the events whose
// op produces them, so an empty result still shows as [].
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	trace := make([]any, len(s.Trace))
	for i, ev := range s.Trace {
		m := map[string]any{
			"seq": ev.Seq,
			"op":  ev.Op,
		}
		if ev.Collection != "" {
			m["collection"] = ev.Collection
		}
		if ev.ID != "" {
			m["id"] = ev.ID
		}
		if ev.Error != "" {
			m["error"] = ev.Error
		}
		if ev.IDs != nil {
			m["ids"] = ev.IDs
		}
		if ev.Pass != "" {
			m["pass"] = ev.Pass
			m["commit"] = nonNil(ev.Commit)
			m["cancel"] = nonNil(ev.Cancel)
		}
		trace[i] = m
	}

	calls := make([]any, len(s.RemoteCalls))
	for i, c := range s.RemoteCalls {
		m := map[string]any{
			"op":         c.Op,
			"collection": c.Collection,
			"ids":        nonNil(c.IDs),
		}
		if c.Failed {
			m["failed"] = true
		}
		calls[i] = m
	}

	return map[string]any{
		"scenario_name": s.ScenarioName,
		"trace":         trace,
		"remote_calls":  calls,
	}
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

// Snapshot renders a result as canonical JSON.
func Snapshot(name string, result *Result) ([]byte, error) {
	s := TraceSnapshot{
		ScenarioName: name,
		Trace:        result.Trace,
		RemoteCalls:  result.RemoteCalls,
	}
	return doc.MarshalCanonical(s.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Expectation failures are reported through t. Returns an error only if the
// scenario could not run.
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}
	for _, msg := range result.Errors {
		t.Error(msg)
	}
	return AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an existing result against its golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	snapshot, err := Snapshot(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, snapshot)
	return nil
}
