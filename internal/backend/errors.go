package backend

import "fmt"

// StageError reports a failed backend stage. StatusCode is zero for transport and
// decoding failures.
type StageError struct {
	Stage      string
	StatusCode int
	Message    string
	Err        error
}

func (e *StageError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Message != "":
		return fmt.Sprintf("%s: HTTP error! status: %d (%s)", e.Stage, e.StatusCode, e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: HTTP error! status: %d", e.Stage, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Stage, e.Err)
	default:
		return fmt.Sprintf("%s: request failed", e.Stage)
	}
}

func (e *StageError) Unwrap() error {
	return e.Err
}
