package research

import "fmt"

// Stage identifies where in the run a fatal error originated.
type Stage string

const (
	StagePlanning   Stage = "planning"
	StageSearch     Stage = "search"
	StageEvaluation Stage = "evaluation"
	StageSynthesis  Stage = "synthesis"
)

// StageError is returned for any fatal run failure. It names the stage that
// failed and the number of rounds completed before the failure, so callers
// never see a silently truncated answer.
type StageError struct {
	Stage  Stage
	Rounds int
	Err    error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed after %d completed rounds: %v", e.Stage, e.Rounds, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
