package sequencer

// Failure kinds recorded in the population store for post-hoc audit.
const (
	KindInvalidPlan   = "INVALID_PLAN"
	KindStepTimeout   = "STEP_TIMEOUT"
	KindHardwareError = "STEP_HARDWARE_ERROR"
)

// Result is the terminal outcome of executing one plan.
type Result struct {
	Success bool
	// Kind is one of the failure kind constants when Success is false.
	Kind string
	// FailingStep names the first step that timed out or faulted.
	FailingStep string
	// Detail carries device- or validation-reported diagnostics.
	Detail string
}

func success() *Result {
	return &Result{Success: true}
}

func failure(kind, step, detail string) *Result {
	return &Result{Kind: kind, FailingStep: step, Detail: detail}
}
