package combinex

// ContractViolationError is the panic value for programmer errors
// against the reactive-streams protocol,
// such as delivering values before a subscription was received,
// delivering a second terminal signal,
// or emitting more values than were requested.
//
// These are not recoverable: continuing would corrupt demand accounting.
type ContractViolationError struct {
	Op     string
	Reason string
}

func (e ContractViolationError) Error() string {
	return "combinex: contract violation in " + e.Op + ": " + e.Reason
}
