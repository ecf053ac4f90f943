package replay

// Schedule yields the value of a hyperparameter that may change as
// training progresses, such as the importance-sampling exponent beta.
// Value advances the schedule by one step and returns the current value.
type Schedule interface {
	Value() float64
}

// Constant is a Schedule that always returns the same value.
type Constant float64

// Value implements Schedule.
func (c Constant) Value() float64 {
	return float64(c)
}

// Linear anneals from Start to End over Steps calls, then stays at End.
type Linear struct {
	Start float64
	End   float64
	Steps int

	n int
}

// Value implements Schedule.
func (l *Linear) Value() float64 {
	if l.Steps <= 0 || l.n >= l.Steps {
		return l.End
	}
	v := l.Start + (l.End-l.Start)*float64(l.n)/float64(l.Steps)
	l.n++
	return v
}
