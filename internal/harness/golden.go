package harness

import (
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/jeffcaljr/Unix-Message-Passing-and-Operating-System-Simulator/internal/simlog"
)

// Summary is the deterministic part of a run, compared against golden files.
// Wall-clock durations and the final virtual clock are left out.
type Summary struct {
	Scenario         string         `json:"scenario"`
	StopReason       string         `json:"stop_reason"`
	TotalSpawned     int            `json:"total_spawned"`
	Completions      int            `json:"completions"`
	Live             int            `json:"live"`
	CompletedWorkers []int          `json:"completed_workers"`
	EventCounts      map[string]int `json:"event_counts"`
}

// Summarize extracts the golden summary from a result.
func Summarize(name string, result *Result) Summary {
	s := Summary{
		Scenario:         name,
		StopReason:       result.Sim.Reason.String(),
		TotalSpawned:     result.Sim.TotalSpawned,
		Completions:      result.Sim.Completions,
		Live:             result.Sim.Live,
		CompletedWorkers: []int{},
		EventCounts:      map[string]int{},
	}
	for _, ev := range result.Events {
		s.EventCounts[string(ev.Kind)]++
		if ev.Kind == simlog.KindCompletion {
			s.CompletedWorkers = append(s.CompletedWorkers, int(ev.Worker))
		}
	}
	return s
}

// RunWithGolden executes a scenario and compares its summary against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against its golden file.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	data, err := json.MarshalIndent(Summarize(name, result), "", "  ")
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}
