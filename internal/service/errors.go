package service

import (
	"errors"
	"fmt"
)

// Sentinel errors for curation operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrProvisioning indicates the assistant could not be created or reused.
	ErrProvisioning = errors.New("assistant provisioning failed")

	// ErrAmbiguousAssistant indicates more than one assistant carries the
	// configured name and no owned ID disambiguates them.
	ErrAmbiguousAssistant = errors.New("ambiguous assistant name")

	// ErrRunIncomplete indicates a run timed out, was cancelled, expired or
	// completed without a usable reply.
	ErrRunIncomplete = errors.New("run did not complete in the expected manner")

	// ErrRunFailed indicates the platform reported the run as failed.
	ErrRunFailed = errors.New("run failed")

	// ErrTeardown indicates some acquired resources could not be released.
	ErrTeardown = errors.New("teardown incomplete")
)

// RunFailedError carries the platform's diagnostic for a failed run.
type RunFailedError struct {
	RunID   string
	Code    string
	Message string
}

func (e *RunFailedError) Error() string {
	return fmt.Sprintf("run %s failed: %s: %s", e.RunID, e.Code, e.Message)
}

// Is reports whether target is ErrRunFailed.
func (e *RunFailedError) Is(target error) bool {
	return target == ErrRunFailed
}
