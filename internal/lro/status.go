package lro

// Terminal status vocabulary. Matching is exact and case-sensitive; any other
// status string means the operation is still in progress.
const (
	StatusSucceeded = "Succeeded"
	StatusFailed    = "Failed"
	StatusCanceled  = "Canceled"

	// StatusInProgress is reported by strategies whose server gives no status
	// string of its own (a 202 from a Location URL, a fresh Azure-AsyncOperation).
	StatusInProgress = "InProgress"
)

// IsTerminal reports whether status is one of Succeeded, Failed or Canceled
func IsTerminal(status string) bool {
	switch status {
	case StatusSucceeded, StatusFailed, StatusCanceled:
		return true
	}
	return false
}

// ErrorInfo is the error detail a service reports next to a Failed or Canceled status
type ErrorInfo struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// OperationStatus pairs an optional result with the status it was observed at.
// Failed and Canceled are ordinary values here, not errors: the operation ran
// to completion on the service side and the caller decides what it means.
type OperationStatus[T any] struct {
	Value   *T
	Status  string
	Failure *ErrorInfo
}

// IsTerminal reports whether the status is terminal
func (s OperationStatus[T]) IsTerminal() bool {
	return IsTerminal(s.Status)
}

// Succeeded reports whether the operation finished successfully
func (s OperationStatus[T]) Succeeded() bool {
	return s.Status == StatusSucceeded
}

// Failed reports whether the operation finished with Failed
func (s OperationStatus[T]) Failed() bool {
	return s.Status == StatusFailed
}

// Canceled reports whether the operation finished with Canceled
func (s OperationStatus[T]) Canceled() bool {
	return s.Status == StatusCanceled
}
