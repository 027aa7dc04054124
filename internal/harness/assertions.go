package harness

import (
	"fmt"
	"strings"

	"github.com/jeffcaljr/Unix-Message-Passing-and-Operating-System-Simulator/internal/simlog"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Events   []simlog.Event
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nEvents:\n")
	for i, ev := range e.Events {
		fmt.Fprintf(&buf, "  [%d] %s worker=%d spawned=%d live=%d\n",
			i+1, ev.Kind, ev.Worker, ev.TotalSpawned, ev.Live)
	}

	return buf.String()
}

// EvaluateAssertions runs every assertion and returns the failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion, population int) []string {
	var failures []string
	for _, a := range assertions {
		if err := evaluate(result, a, population); err != nil {
			failures = append(failures, err.Error())
		}
	}
	return failures
}

func evaluate(result *Result, a Assertion, population int) error {
	switch a.Type {
	case AssertStopReason:
		if got := result.Sim.Reason.String(); got != a.Reason {
			return &AssertionError{Type: a.Type, Expected: a.Reason, Actual: got}
		}
		return nil
	case AssertEventCount:
		return assertEventCount(result.Events, a)
	case AssertEventOrder:
		return assertEventOrder(result.Events, a)
	case AssertSpawnSequence:
		return assertSpawnSequence(result.Events, population)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func assertEventCount(events []simlog.Event, a Assertion) error {
	n := 0
	for _, ev := range events {
		if string(ev.Kind) == a.Kind {
			n++
		}
	}
	if n != a.Count {
		return &AssertionError{
			Type:     AssertEventCount,
			Expected: fmt.Sprintf("%d %s events", a.Count, a.Kind),
			Actual:   fmt.Sprintf("%d", n),
			Events:   events,
		}
	}
	return nil
}

// assertEventOrder checks that the first event of each kind appears in the
// listed order. Kinds don't need to be consecutive.
func assertEventOrder(events []simlog.Event, a Assertion) error {
	first := make(map[string]int)
	for i, ev := range events {
		if _, seen := first[string(ev.Kind)]; !seen {
			first[string(ev.Kind)] = i
		}
	}

	last := -1
	for _, kind := range a.Kinds {
		pos, ok := first[kind]
		if !ok {
			return &AssertionError{
				Type:     AssertEventOrder,
				Expected: fmt.Sprintf("order %v", a.Kinds),
				Actual:   fmt.Sprintf("no %s event", kind),
				Events:   events,
			}
		}
		if pos < last {
			return &AssertionError{
				Type:     AssertEventOrder,
				Expected: fmt.Sprintf("order %v", a.Kinds),
				Actual:   fmt.Sprintf("%s first appears at %d, before %d", kind, pos, last),
				Events:   events,
			}
		}
		last = pos
	}
	return nil
}

// assertSpawnSequence checks that spawn totals count up by exactly one and
// that live never leaves [0, population].
func assertSpawnSequence(events []simlog.Event, population int) error {
	want := 0
	for i, ev := range events {
		if ev.Live < 0 || ev.Live > population {
			return &AssertionError{
				Type:     AssertSpawnSequence,
				Expected: fmt.Sprintf("0 <= live <= %d", population),
				Actual:   fmt.Sprintf("live=%d at event %d", ev.Live, i+1),
				Events:   events,
			}
		}
		if ev.Kind != simlog.KindSpawn {
			continue
		}
		want++
		if ev.TotalSpawned != want {
			return &AssertionError{
				Type:     AssertSpawnSequence,
				Expected: fmt.Sprintf("total_spawned=%d", want),
				Actual:   fmt.Sprintf("total_spawned=%d at event %d", ev.TotalSpawned, i+1),
				Events:   events,
			}
		}
	}
	return nil
}
