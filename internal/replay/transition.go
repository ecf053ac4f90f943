// Package replay implements the in-process experience-replay engines:
// a circular buffer with uniform sampling, a prioritized buffer backed by
// a sum tree, and an episodic buffer for recurrent unrolls.
//
// The engines are single-writer, single-reader data structures; callers
// that share a buffer across goroutines must serialize access externally.
package replay

// Transition is one environment step: the agent observed State, took
// Action, received Reward and landed in NextState. Absorbing marks a true
// MDP termination; Last marks the end of an episode, including truncation.
type Transition struct {
	State     []float64 `json:"state"`
	Action    []float64 `json:"action"`
	Reward    float64   `json:"reward"`
	NextState []float64 `json:"next_state"`
	Absorbing bool      `json:"absorbing"`
	Last      bool      `json:"last"`
}

// Batch holds sampled transitions as six parallel slices aligned by
// position, the layout value-function fitting code consumes directly.
type Batch struct {
	States     [][]float64 `json:"states"`
	Actions    [][]float64 `json:"actions"`
	Rewards    []float64   `json:"rewards"`
	NextStates [][]float64 `json:"next_states"`
	Absorbing  []bool      `json:"absorbing"`
	Last       []bool      `json:"last"`
}

func newBatch(n int) Batch {
	return Batch{
		States:     make([][]float64, 0, n),
		Actions:    make([][]float64, 0, n),
		Rewards:    make([]float64, 0, n),
		NextStates: make([][]float64, 0, n),
		Absorbing:  make([]bool, 0, n),
		Last:       make([]bool, 0, n),
	}
}

func (b *Batch) append(t Transition) {
	b.States = append(b.States, t.State)
	b.Actions = append(b.Actions, t.Action)
	b.Rewards = append(b.Rewards, t.Reward)
	b.NextStates = append(b.NextStates, t.NextState)
	b.Absorbing = append(b.Absorbing, t.Absorbing)
	b.Last = append(b.Last, t.Last)
}

// Len returns the number of transitions in the batch.
func (b *Batch) Len() int {
	return len(b.Rewards)
}

// SequenceBatch holds windowed sequences for recurrent training. The two
// outer axes are unroll step and batch position; Sample returns them
// time-major ([step][batch]) and SampleBatchFirst batch-major
// ([batch][step]).
type SequenceBatch struct {
	States     [][][]float64 `json:"states"`
	Actions    [][][]float64 `json:"actions"`
	Rewards    [][]float64   `json:"rewards"`
	NextStates [][][]float64 `json:"next_states"`
	Absorbing  [][]bool      `json:"absorbing"`
	Last       [][]bool      `json:"last"`
}

func newSequenceBatch(outer int) SequenceBatch {
	return SequenceBatch{
		States:     make([][][]float64, 0, outer),
		Actions:    make([][][]float64, 0, outer),
		Rewards:    make([][]float64, 0, outer),
		NextStates: make([][][]float64, 0, outer),
		Absorbing:  make([][]bool, 0, outer),
		Last:       make([][]bool, 0, outer),
	}
}

func (b *SequenceBatch) append(row Batch) {
	b.States = append(b.States, row.States)
	b.Actions = append(b.Actions, row.Actions)
	b.Rewards = append(b.Rewards, row.Rewards)
	b.NextStates = append(b.NextStates, row.NextStates)
	b.Absorbing = append(b.Absorbing, row.Absorbing)
	b.Last = append(b.Last, row.Last)
}
