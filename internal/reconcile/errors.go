package reconcile

// StateUnavailableError reports that required external state (queue depth,
// fleet or work counts) could not be read. The tick aborts without mutating
// anything; this is the only error RunTick surfaces past the result.
type StateUnavailableError struct {
	Err error
}

func (e *StateUnavailableError) Error() string {
	return "state unavailable: " + e.Err.Error()
}

func (e *StateUnavailableError) Unwrap() error {
	return e.Err
}
