package scheduler

import "fmt"

// SchedError is a custom error type for scheduler errors
type SchedError struct {
	Message string
}

func (e SchedError) Error() string {
	return fmt.Sprintf("scheduler error: %s", e.Message)
}

// ErrInvalidConfig creates an error for invalid configuration
func ErrInvalidConfig(msg string) error {
	return SchedError{Message: fmt.Sprintf("invalid config: %s", msg)}
}

// ErrWeightTrackerFull is returned when the weight tracker cannot allocate a
// counter for a new weight value. Callers degrade the symmetry heuristic and
// carry on; correctness is unaffected.
var ErrWeightTrackerFull = SchedError{Message: "weight tracker at capacity"}
