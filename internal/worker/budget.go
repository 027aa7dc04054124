package worker

import (
	"math/rand/v2"

	"github.com/jeffcaljr/Unix-Message-Passing-and-Operating-System-Simulator/internal/ipc"
	"github.com/jeffcaljr/Unix-Message-Passing-and-Operating-System-Simulator/internal/vclock"
)

// DefaultBudgetMax is the upper bound of a worker's run budget, in virtual
// nanoseconds.
const DefaultBudgetMax = 100_000

// BudgetSource decides how long a worker runs. Implementations must be safe
// for concurrent use; every worker calls Budget once at startup.
type BudgetSource interface {
	Budget(start vclock.Time, id ipc.WorkerID) uint32
}

// RandomBudget draws budgets uniformly from [1, Max].
//
// Each worker seeds its own generator from the clock reading it observed at
// startup, mixed with its ID so that workers started on the same tick still
// draw different budgets.
type RandomBudget struct {
	Max uint32
}

// Budget implements BudgetSource.
func (r RandomBudget) Budget(start vclock.Time, id ipc.WorkerID) uint32 {
	limit := r.Max
	if limit == 0 {
		limit = DefaultBudgetMax
	}
	rng := rand.New(rand.NewPCG(start.Nanos(), uint64(id)))
	return rng.Uint32N(limit) + 1
}

// FixedBudget gives every worker the same budget. A zero budget makes a worker
// finish the first time it holds the token.
type FixedBudget uint32

// Budget implements BudgetSource.
func (f FixedBudget) Budget(vclock.Time, ipc.WorkerID) uint32 {
	return uint32(f)
}
