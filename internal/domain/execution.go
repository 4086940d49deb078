package domain

// ExecutionStatus is the terminal outcome of an execution request.
type ExecutionStatus string

// Execution status values
const (
	ExecutionFilled   ExecutionStatus = "FILLED"
	ExecutionFailed   ExecutionStatus = "FAILED"
	ExecutionTimedOut ExecutionStatus = "TIMED_OUT" // outcome unknown, treated as not filled
)

// ExecutionResult describes what happened to one entry or exit.
type ExecutionResult struct {
	Status        ExecutionStatus
	ExecutedPrice float64 // SOL per whole token
	TokenAmount   uint64  // token base units bought or sold
	QuoteAmount   uint64  // lamports spent or received
	Signature     string  // last submitted transaction signature
	AttemptID     string  // id of the final attempt
	Attempts      int     // number of submit attempts
	Err           error   // cause when not FILLED
}

// Filled reports whether the execution is a confirmed fill.
func (r ExecutionResult) Filled() bool {
	return r.Status == ExecutionFilled
}
