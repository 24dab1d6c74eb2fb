package claim

// ProgressStatus reflects whether any claim work is in flight. It is
// process-wide per Claimer, not per group: the loop oscillates between
// Idle (at each group's reset step and at run completion) and InProgress
// (once a group begins real verification work). Errors do not change
// status; they are reported out of band.
type ProgressStatus string

const (
	StatusIdle       ProgressStatus = "idle"
	StatusInProgress ProgressStatus = "in_progress"
)

// stepOutcome is the per-group step result: either the loop continues to
// the next group, or the whole run stops (the sponsorship short-circuit).
// Making the early exit a tagged value keeps the loop's control flow
// explicit.
type stepOutcome int

const (
	outcomeContinue stepOutcome = iota
	outcomeStopRun
)
